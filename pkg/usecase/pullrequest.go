package usecase

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/soloforge/soloforge/pkg/domain/model"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/gitobj"
	"github.com/soloforge/soloforge/pkg/utils/logging"
)

// fullBranchRef accepts both "feature" and "refs/heads/feature".
func fullBranchRef(name types.RefName) types.RefName {
	if strings.HasPrefix(string(name), "refs/") {
		return name
	}
	return types.RefName("refs/heads/" + string(name))
}

// OpenPullRequest opens a pull request and publishes PullRequestOpened.
func (x *UseCase) OpenPullRequest(ctx context.Context, actor types.Username, pr *model.PullRequest) (*model.PullRequest, error) {
	if err := x.Authorize(ctx, actor, pr.Repo, types.ActionPush); err != nil {
		return nil, err
	}

	pr.FromBranch = fullBranchRef(pr.FromBranch)
	pr.ToBranch = fullBranchRef(pr.ToBranch)
	if err := pr.Validate(); err != nil {
		return nil, err
	}

	for _, branch := range []types.RefName{pr.FromBranch, pr.ToBranch} {
		if _, err := x.clients.ForgeRepository().GetRef(ctx, pr.Repo, branch); err != nil {
			return nil, goerr.Wrap(types.ErrValidationFailed, "pull request branch does not exist",
				goerr.V("repo", pr.Repo),
				goerr.V("branch", branch),
			)
		}
	}

	pr.Author = actor
	pr.State = model.PRStateOpen
	pr.CreatedAt = logging.CtxTime(ctx)
	pr.UpdatedAt = pr.CreatedAt

	id, err := x.clients.ForgeRepository().CreatePullRequest(ctx, pr)
	if err != nil {
		return nil, err
	}
	pr.ID = id

	payload, err := model.MarshalPayload(model.PullRequestPayload{
		ID:         pr.ID,
		FromBranch: pr.FromBranch,
		ToBranch:   pr.ToBranch,
		Title:      pr.Title,
		Author:     pr.Author,
	})
	if err != nil {
		return nil, err
	}
	if _, err := x.clients.EventBus().Publish(ctx, &model.Event{
		Repo:    pr.Repo,
		Kind:    model.EventPullRequestOpened,
		Payload: payload,
	}); err != nil {
		return nil, err
	}
	return pr, nil
}

func (x *UseCase) ListPullRequests(ctx context.Context, actor types.Username, repo types.RepoName) ([]*model.PullRequest, error) {
	if err := x.Authorize(ctx, actor, repo, types.ActionClone); err != nil {
		return nil, err
	}
	return x.clients.ForgeRepository().ListPullRequests(ctx, repo)
}

// MergePullRequest merges an open pull request into its target branch.
// Fast-forward is used when the target has not diverged; otherwise the
// merge method decides: merge creates a two-parent merge commit, squash a
// single-parent commit carrying the source tree, and rebase refuses a
// diverged target.
func (x *UseCase) MergePullRequest(ctx context.Context, actor types.Username, repo types.RepoName, id int64, method model.MergeMethod) (*model.PullRequest, error) {
	if err := x.Authorize(ctx, actor, repo, types.ActionPush); err != nil {
		return nil, err
	}

	pr, err := x.clients.ForgeRepository().GetPullRequest(ctx, repo, id)
	if err != nil {
		return nil, err
	}
	if pr.State != model.PRStateOpen {
		return nil, goerr.Wrap(types.ErrValidationFailed, "pull request is not open",
			goerr.V("id", id),
			goerr.V("state", pr.State),
		)
	}

	fromRef, err := x.clients.ForgeRepository().GetRef(ctx, repo, pr.FromBranch)
	if err != nil {
		return nil, err
	}
	toRef, err := x.clients.ForgeRepository().GetRef(ctx, repo, pr.ToBranch)
	if err != nil {
		return nil, err
	}

	newTip, err := x.mergeTip(ctx, actor, pr, method, fromRef.Target, toRef.Target)
	if err != nil {
		return nil, err
	}

	if err := x.clients.ForgeRepository().CompareAndSwapRef(ctx, repo, pr.ToBranch, toRef.Target, newTip); err != nil {
		return nil, err
	}

	pr.State = model.PRStateMerged
	pr.MergeMethod = method
	pr.UpdatedAt = logging.CtxTime(ctx)
	if err := x.clients.ForgeRepository().UpdatePullRequest(ctx, pr); err != nil {
		return nil, err
	}

	payload, err := model.MarshalPayload(model.PullRequestPayload{
		ID:         pr.ID,
		FromBranch: pr.FromBranch,
		ToBranch:   pr.ToBranch,
		MergedBy:   actor,
	})
	if err != nil {
		return nil, err
	}
	if _, err := x.clients.EventBus().Publish(ctx, &model.Event{
		Repo:    repo,
		Kind:    model.EventPullRequestMerged,
		Payload: payload,
	}); err != nil {
		return nil, err
	}

	logging.From(ctx).Info("pull request merged",
		slog.Any("repo", repo),
		slog.Int64("id", id),
		slog.Any("method", method),
	)
	return pr, nil
}

// mergeTip computes the commit the target branch should point at.
func (x *UseCase) mergeTip(ctx context.Context, actor types.Username, pr *model.PullRequest, method model.MergeMethod, fromTip, toTip types.ObjectID) (types.ObjectID, error) {
	ff, err := x.isAncestor(ctx, toTip, fromTip)
	if err != nil {
		return "", err
	}
	if ff {
		return fromTip, nil
	}

	fromCommit, err := x.loadCommit(ctx, fromTip)
	if err != nil {
		return "", err
	}

	now := logging.CtxTime(ctx)
	var payload []byte

	switch method {
	case model.MergeMethodMerge:
		payload = gitobj.FormatCommit(fromCommit.Tree,
			[]types.ObjectID{toTip, fromTip},
			string(actor), x.owner.Email, now,
			"Merge "+string(pr.FromBranch)+" into "+string(pr.ToBranch))

	case model.MergeMethodSquash:
		payload = gitobj.FormatCommit(fromCommit.Tree,
			[]types.ObjectID{toTip},
			string(actor), x.owner.Email, now,
			pr.Title+" (#"+formatID(pr.ID)+")")

	case model.MergeMethodRebase:
		return "", goerr.Wrap(types.ErrReferenceConflict, "target branch diverged, rebase merge requires fast-forward",
			goerr.V("from", fromTip),
			goerr.V("to", toTip),
		)

	default:
		return "", goerr.Wrap(types.ErrValidationFailed, "unknown merge method",
			goerr.V("method", method),
		)
	}

	return x.clients.ObjectStore().Put(ctx, gitobj.Encode(gitobj.TypeCommit, payload))
}

// isAncestor reports whether old is reachable from tip through parents.
func (x *UseCase) isAncestor(ctx context.Context, old, tip types.ObjectID) (bool, error) {
	visited := map[types.ObjectID]struct{}{}
	stack := []types.ObjectID{tip}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == old {
			return true, nil
		}
		if _, ok := visited[id]; ok {
			continue
		}
		visited[id] = struct{}{}

		commit, err := x.loadCommit(ctx, id)
		if err != nil {
			return false, err
		}
		stack = append(stack, commit.Parents...)
	}
	return false, nil
}

func (x *UseCase) ClosePullRequest(ctx context.Context, actor types.Username, repo types.RepoName, id int64) (*model.PullRequest, error) {
	if err := x.Authorize(ctx, actor, repo, types.ActionPush); err != nil {
		return nil, err
	}

	pr, err := x.clients.ForgeRepository().GetPullRequest(ctx, repo, id)
	if err != nil {
		return nil, err
	}
	if pr.State != model.PRStateOpen {
		return nil, goerr.Wrap(types.ErrValidationFailed, "pull request is not open",
			goerr.V("id", id),
			goerr.V("state", pr.State),
		)
	}

	pr.State = model.PRStateClosed
	pr.UpdatedAt = logging.CtxTime(ctx)
	if err := x.clients.ForgeRepository().UpdatePullRequest(ctx, pr); err != nil {
		return nil, err
	}
	return pr, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
