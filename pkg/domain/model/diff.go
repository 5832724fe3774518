package model

import "github.com/soloforge/soloforge/pkg/domain/types"

type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
)

// FileChange is one path-level difference between two commits.
type FileChange struct {
	Path   string         `json:"path"`
	Kind   ChangeKind     `json:"kind"`
	OldOID types.ObjectID `json:"old_oid,omitempty"`
	NewOID types.ObjectID `json:"new_oid,omitempty"`
}

// Diff is the file-level comparison of two commits.
type Diff struct {
	Repo    types.RepoName `json:"repo"`
	From    types.ObjectID `json:"from"`
	To      types.ObjectID `json:"to"`
	Changes []FileChange   `json:"changes"`
}
