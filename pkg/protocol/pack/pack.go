// Package pack reads and writes git packfiles: "PACK", a version and object
// count, then per object a varint type/size header and a zlib-compressed
// payload, closed by a SHA-1 trailer over everything before it.
//
// Only whole objects are handled. Deltified entries (ofs-delta, ref-delta)
// are rejected; pushes must use full objects.
package pack

import (
	"bytes"
	"compress/zlib"
	"crypto/sha1"
	"encoding/binary"
	"hash"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/gitobj"
)

const version = 2

var objTypeCode = map[gitobj.Type]byte{
	gitobj.TypeCommit: 1,
	gitobj.TypeTree:   2,
	gitobj.TypeBlob:   3,
	gitobj.TypeTag:    4,
}

var codeObjType = map[byte]gitobj.Type{
	1: gitobj.TypeCommit,
	2: gitobj.TypeTree,
	3: gitobj.TypeBlob,
	4: gitobj.TypeTag,
}

// Object is one packfile entry.
type Object struct {
	Type    gitobj.Type
	Payload []byte
}

// ID returns the content address of the entry.
func (x Object) ID() types.ObjectID {
	return gitobj.Hash(x.Type, x.Payload)
}

// Write streams objects as a single packfile.
func Write(w io.Writer, objects []Object) error {
	sum := sha1.New()
	out := io.MultiWriter(w, sum)

	header := make([]byte, 12)
	copy(header, "PACK")
	binary.BigEndian.PutUint32(header[4:], version)
	binary.BigEndian.PutUint32(header[8:], uint32(len(objects)))
	if _, err := out.Write(header); err != nil {
		return goerr.Wrap(types.ErrTransportFailure, "writing pack header")
	}

	for _, obj := range objects {
		code, ok := objTypeCode[obj.Type]
		if !ok {
			return goerr.Wrap(types.ErrObjectCorrupt, "unsupported pack object type",
				goerr.V("type", obj.Type),
			)
		}
		if _, err := out.Write(entryHeader(code, len(obj.Payload))); err != nil {
			return goerr.Wrap(types.ErrTransportFailure, "writing pack entry header")
		}

		zw := zlib.NewWriter(out)
		if _, err := zw.Write(obj.Payload); err != nil {
			return goerr.Wrap(types.ErrTransportFailure, "compressing pack entry")
		}
		if err := zw.Close(); err != nil {
			return goerr.Wrap(types.ErrTransportFailure, "closing pack entry")
		}
	}

	if _, err := w.Write(sum.Sum(nil)); err != nil {
		return goerr.Wrap(types.ErrTransportFailure, "writing pack trailer")
	}
	return nil
}

// entryHeader encodes the object type and size: the low nibble of the first
// byte plus a base-128 continuation for the remaining size bits.
func entryHeader(code byte, size int) []byte {
	b := byte(code<<4) | byte(size&0x0f)
	size >>= 4

	header := []byte{b}
	for size > 0 {
		header[len(header)-1] |= 0x80
		header = append(header, byte(size&0x7f))
		size >>= 7
	}
	return header
}

// Read consumes an entire packfile and returns its objects. The trailer
// checksum is verified; any mismatch or malformed entry yields
// ErrObjectCorrupt without partial results.
func Read(r io.Reader) ([]Object, error) {
	sum := sha1.New()
	tee := &teeByteReader{r: r, h: sum}

	header := make([]byte, 12)
	if _, err := io.ReadFull(tee, header); err != nil {
		return nil, goerr.Wrap(types.ErrTransportFailure, "reading pack header")
	}
	if !bytes.Equal(header[:4], []byte("PACK")) {
		return nil, goerr.Wrap(types.ErrObjectCorrupt, "bad pack signature")
	}
	if v := binary.BigEndian.Uint32(header[4:8]); v != version {
		return nil, goerr.Wrap(types.ErrObjectCorrupt, "unsupported pack version",
			goerr.V("version", v),
		)
	}
	count := binary.BigEndian.Uint32(header[8:12])

	objects := make([]Object, 0, count)
	for i := uint32(0); i < count; i++ {
		code, size, err := readEntryHeader(tee)
		if err != nil {
			return nil, err
		}

		objType, ok := codeObjType[code]
		if !ok {
			return nil, goerr.Wrap(types.ErrObjectCorrupt, "unsupported pack object type",
				goerr.V("code", code),
			)
		}

		zr, err := zlib.NewReader(tee)
		if err != nil {
			return nil, goerr.Wrap(types.ErrObjectCorrupt, "opening pack entry")
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(zr, payload); err != nil {
			return nil, goerr.Wrap(types.ErrObjectCorrupt, "decompressing pack entry")
		}
		// Drain any padding so the stream position lands on the next entry.
		if _, err := io.Copy(io.Discard, zr); err != nil {
			return nil, goerr.Wrap(types.ErrObjectCorrupt, "draining pack entry")
		}
		if err := zr.Close(); err != nil {
			return nil, goerr.Wrap(types.ErrObjectCorrupt, "closing pack entry")
		}

		objects = append(objects, Object{Type: objType, Payload: payload})
	}

	want := sum.Sum(nil)
	trailer := make([]byte, sha1.Size)
	if _, err := io.ReadFull(r, trailer); err != nil {
		return nil, goerr.Wrap(types.ErrTransportFailure, "reading pack trailer")
	}
	if !bytes.Equal(trailer, want) {
		return nil, goerr.Wrap(types.ErrObjectCorrupt, "pack checksum mismatch")
	}

	return objects, nil
}

func readEntryHeader(r io.ByteReader) (byte, int, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, 0, goerr.Wrap(types.ErrTransportFailure, "reading pack entry header")
	}

	code := (b >> 4) & 0x07
	size := int(b & 0x0f)
	shift := 4
	for b&0x80 != 0 {
		if b, err = r.ReadByte(); err != nil {
			return 0, 0, goerr.Wrap(types.ErrTransportFailure, "reading pack entry size")
		}
		size |= int(b&0x7f) << shift
		shift += 7
	}
	return code, size, nil
}

// teeByteReader hashes every byte it hands out, and reads one byte at a
// time: zlib reads ahead otherwise, which would desynchronize the stream
// between entries.
type teeByteReader struct {
	r io.Reader
	h hash.Hash
}

func (x *teeByteReader) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	n, err := x.r.Read(p)
	if n > 0 {
		_, _ = x.h.Write(p[:n])
	}
	return n, err
}

func (x *teeByteReader) ReadByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(x, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}
