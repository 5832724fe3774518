package gitobj

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/soloforge/soloforge/pkg/domain/types"
)

// Commit is the parsed form of a commit object payload.
type Commit struct {
	Tree      types.ObjectID
	Parents   []types.ObjectID
	Author    string
	Committer string
	Message   string
}

// ParseCommit parses a commit object payload. Headers end at the first
// blank line; the rest is the message.
func ParseCommit(payload []byte) (*Commit, error) {
	var commit Commit

	head, message, found := bytes.Cut(payload, []byte("\n\n"))
	if found {
		commit.Message = string(message)
	} else {
		head = payload
	}

	for _, line := range strings.Split(string(head), "\n") {
		key, value, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		switch key {
		case "tree":
			oid := types.ObjectID(value)
			if !ValidID(oid) {
				return nil, goerr.Wrap(types.ErrObjectCorrupt, "invalid tree ID in commit",
					goerr.V("tree", value),
				)
			}
			commit.Tree = oid
		case "parent":
			oid := types.ObjectID(value)
			if !ValidID(oid) {
				return nil, goerr.Wrap(types.ErrObjectCorrupt, "invalid parent ID in commit",
					goerr.V("parent", value),
				)
			}
			commit.Parents = append(commit.Parents, oid)
		case "author":
			commit.Author = value
		case "committer":
			commit.Committer = value
		}
	}

	if commit.Tree == "" {
		return nil, goerr.Wrap(types.ErrObjectCorrupt, "commit has no tree")
	}

	return &commit, nil
}

// FormatCommit renders a commit object payload. The identity is rendered
// in the standard "name <email> timestamp zone" form.
func FormatCommit(tree types.ObjectID, parents []types.ObjectID, name, email string, at time.Time, message string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", tree)
	for _, p := range parents {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	ident := fmt.Sprintf("%s <%s> %d %s", name, email, at.Unix(), at.Format("-0700"))
	fmt.Fprintf(&buf, "author %s\n", ident)
	fmt.Fprintf(&buf, "committer %s\n", ident)
	buf.WriteString("\n")
	buf.WriteString(message)
	if !strings.HasSuffix(message, "\n") {
		buf.WriteString("\n")
	}
	return buf.Bytes()
}

// TreeEntry is one row of a tree object.
type TreeEntry struct {
	Mode string
	Name string
	OID  types.ObjectID
}

// IsTree reports whether the entry points at a subtree.
func (x TreeEntry) IsTree() bool {
	return x.Mode == "40000" || x.Mode == "040000"
}

// ParseTree parses the binary tree payload: repeated
// "<mode> <name>\x00<20-byte raw oid>".
func ParseTree(payload []byte) ([]TreeEntry, error) {
	var entries []TreeEntry
	rest := payload

	for len(rest) > 0 {
		nul := bytes.IndexByte(rest, 0)
		if nul < 0 || len(rest) < nul+1+20 {
			return nil, goerr.Wrap(types.ErrObjectCorrupt, "truncated tree entry")
		}

		mode, name, ok := strings.Cut(string(rest[:nul]), " ")
		if !ok || name == "" {
			return nil, goerr.Wrap(types.ErrObjectCorrupt, "malformed tree entry")
		}

		oid := types.ObjectID(hex.EncodeToString(rest[nul+1 : nul+1+20]))
		entries = append(entries, TreeEntry{Mode: mode, Name: name, OID: oid})
		rest = rest[nul+1+20:]
	}

	return entries, nil
}

// FormatTree renders entries as a binary tree payload in canonical name
// order.
func FormatTree(entries []TreeEntry) ([]byte, error) {
	sorted := make([]TreeEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var buf bytes.Buffer
	for _, e := range sorted {
		raw, err := hex.DecodeString(string(e.OID))
		if err != nil || len(raw) != 20 {
			return nil, goerr.Wrap(types.ErrObjectCorrupt, "invalid object ID in tree entry",
				goerr.V("oid", e.OID),
			)
		}
		fmt.Fprintf(&buf, "%s %s\x00", e.Mode, e.Name)
		buf.Write(raw)
	}
	return buf.Bytes(), nil
}

// Tag is the parsed form of an annotated tag object payload.
type Tag struct {
	Object  types.ObjectID
	Type    Type
	Name    string
	Tagger  string
	Message string
}

func ParseTag(payload []byte) (*Tag, error) {
	var tag Tag

	head, message, found := bytes.Cut(payload, []byte("\n\n"))
	if found {
		tag.Message = string(message)
	} else {
		head = payload
	}

	for _, line := range strings.Split(string(head), "\n") {
		key, value, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		switch key {
		case "object":
			oid := types.ObjectID(value)
			if !ValidID(oid) {
				return nil, goerr.Wrap(types.ErrObjectCorrupt, "invalid object ID in tag",
					goerr.V("object", value),
				)
			}
			tag.Object = oid
		case "type":
			tag.Type = Type(value)
		case "tag":
			tag.Name = value
		case "tagger":
			tag.Tagger = value
		}
	}

	if tag.Object == "" {
		return nil, goerr.Wrap(types.ErrObjectCorrupt, "tag has no object")
	}

	return &tag, nil
}
