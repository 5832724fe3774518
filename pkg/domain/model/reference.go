package model

import (
	"strings"

	"github.com/soloforge/soloforge/pkg/domain/types"
)

// Reference maps a fully qualified ref name (refs/heads/*, refs/tags/*)
// to an object ID within a repository.
type Reference struct {
	Repo   types.RepoName
	Name   types.RefName
	Target types.ObjectID
	Type   types.RefType
}

// RefTypeOf classifies a fully qualified ref name.
func RefTypeOf(name types.RefName) types.RefType {
	if strings.HasPrefix(string(name), "refs/tags/") {
		return types.RefTypeTag
	}
	return types.RefTypeBranch
}

// ShortRefName strips the refs/heads/ or refs/tags/ prefix.
func ShortRefName(name types.RefName) string {
	s := string(name)
	for _, prefix := range []string{"refs/heads/", "refs/tags/"} {
		if strings.HasPrefix(s, prefix) {
			return strings.TrimPrefix(s, prefix)
		}
	}
	return s
}

// RefUpdate is one requested reference change within a push, carrying the
// client-declared old value for the compare-and-swap.
type RefUpdate struct {
	Name  types.RefName
	Old   types.ObjectID
	New   types.ObjectID
	Force bool
}

// IsCreate reports whether the update creates the reference.
func (x RefUpdate) IsCreate() bool {
	return x.Old.IsZero() && !x.New.IsZero()
}

// IsDelete reports whether the update deletes the reference.
func (x RefUpdate) IsDelete() bool {
	return !x.Old.IsZero() && x.New.IsZero()
}

// RefResult is the per-reference outcome of a push. One reference failing
// never rolls back another.
type RefResult struct {
	Update RefUpdate
	OK     bool
	Reason string
}

// PushResult aggregates the per-reference outcomes of one receive-pack
// request.
type PushResult struct {
	Repo    types.RepoName
	Pusher  types.Username
	Results []RefResult
}

// Applied returns the successfully applied updates.
func (x *PushResult) Applied() []RefUpdate {
	var applied []RefUpdate
	for _, r := range x.Results {
		if r.OK {
			applied = append(applied, r.Update)
		}
	}
	return applied
}
