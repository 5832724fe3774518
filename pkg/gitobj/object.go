// Package gitobj implements the canonical git object encoding: content is
// stored as "<type> <size>\x00<payload>" and addressed by the SHA-1 of that
// encoding. Objects are write-once; identical content always yields the
// identical ID.
package gitobj

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"strconv"

	"github.com/m-mizutani/goerr/v2"
	"github.com/soloforge/soloforge/pkg/domain/types"
)

type Type string

const (
	TypeCommit Type = "commit"
	TypeTree   Type = "tree"
	TypeBlob   Type = "blob"
	TypeTag    Type = "tag"
)

// ValidType reports whether t is one of the four git object types.
func ValidType(t Type) bool {
	switch t {
	case TypeCommit, TypeTree, TypeBlob, TypeTag:
		return true
	}
	return false
}

// Encode produces the canonical object bytes for a type and payload.
func Encode(t Type, payload []byte) []byte {
	header := string(t) + " " + strconv.Itoa(len(payload)) + "\x00"
	buf := make([]byte, 0, len(header)+len(payload))
	buf = append(buf, header...)
	buf = append(buf, payload...)
	return buf
}

// Decode splits canonical object bytes into type and payload. The declared
// size must match the actual payload length.
func Decode(data []byte) (Type, []byte, error) {
	nul := bytes.IndexByte(data, 0)
	if nul < 0 {
		return "", nil, goerr.Wrap(types.ErrObjectCorrupt, "missing object header terminator")
	}

	header := string(data[:nul])
	sp := bytes.IndexByte([]byte(header), ' ')
	if sp < 0 {
		return "", nil, goerr.Wrap(types.ErrObjectCorrupt, "malformed object header",
			goerr.V("header", header),
		)
	}

	t := Type(header[:sp])
	if !ValidType(t) {
		return "", nil, goerr.Wrap(types.ErrObjectCorrupt, "unknown object type",
			goerr.V("type", t),
		)
	}

	size, err := strconv.Atoi(header[sp+1:])
	if err != nil {
		return "", nil, goerr.Wrap(types.ErrObjectCorrupt, "invalid object size",
			goerr.V("header", header),
		)
	}

	payload := data[nul+1:]
	if len(payload) != size {
		return "", nil, goerr.Wrap(types.ErrObjectCorrupt, "object size mismatch",
			goerr.V("declared", size),
			goerr.V("actual", len(payload)),
		)
	}

	return t, payload, nil
}

// Sum computes the object ID of canonical object bytes.
func Sum(data []byte) types.ObjectID {
	h := sha1.Sum(data)
	return types.ObjectID(hex.EncodeToString(h[:]))
}

// Hash computes the object ID for a type and payload.
func Hash(t Type, payload []byte) types.ObjectID {
	return Sum(Encode(t, payload))
}

// ValidID reports whether s is a well-formed 40-hex object ID.
func ValidID(id types.ObjectID) bool {
	if len(id) != 40 {
		return false
	}
	_, err := hex.DecodeString(string(id))
	return err == nil
}
