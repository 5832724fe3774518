package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/soloforge/soloforge/pkg/domain/types"
)

type PRState string

const (
	PRStateOpen   PRState = "open"
	PRStateMerged PRState = "merged"
	PRStateClosed PRState = "closed"
)

type MergeMethod string

const (
	MergeMethodMerge  MergeMethod = "merge"
	MergeMethodSquash MergeMethod = "squash"
	MergeMethodRebase MergeMethod = "rebase"
)

// PullRequest is a proposed merge between two branches of one repository.
type PullRequest struct {
	ID          int64
	Repo        types.RepoName
	FromBranch  types.RefName
	ToBranch    types.RefName
	Title       string
	Description string
	Author      types.Username
	State       PRState
	MergeMethod MergeMethod
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (x *PullRequest) Validate() error {
	if x.Repo == "" {
		return goerr.Wrap(types.ErrValidationFailed, "pull request repository is empty")
	}
	if x.FromBranch == "" || x.ToBranch == "" {
		return goerr.Wrap(types.ErrValidationFailed, "pull request branches are required",
			goerr.V("from", x.FromBranch),
			goerr.V("to", x.ToBranch),
		)
	}
	if x.FromBranch == x.ToBranch {
		return goerr.Wrap(types.ErrValidationFailed, "pull request branches must differ",
			goerr.V("branch", x.FromBranch),
		)
	}
	if x.Title == "" {
		return goerr.Wrap(types.ErrValidationFailed, "pull request title is empty")
	}
	return nil
}
