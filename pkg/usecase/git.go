package usecase

import (
	"context"
	"io"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/soloforge/soloforge/pkg/domain/model"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/protocol"
	"github.com/soloforge/soloforge/pkg/utils/logging"
)

func actionForService(service string) (types.Action, error) {
	switch service {
	case protocol.ServiceUploadPack:
		return types.ActionClone, nil
	case protocol.ServiceReceivePack:
		return types.ActionPush, nil
	default:
		return "", goerr.Wrap(types.ErrValidationFailed, "unknown git service",
			goerr.V("service", service),
		)
	}
}

// AdvertiseRefs authorizes the discovery request and writes the ref
// advertisement. Fetch discovery needs read, push discovery needs write.
func (x *UseCase) AdvertiseRefs(ctx context.Context, actor types.Username, repo types.RepoName, service string, w io.Writer) error {
	action, err := actionForService(service)
	if err != nil {
		return err
	}
	if err := x.Authorize(ctx, actor, repo, action); err != nil {
		return err
	}
	return x.engine.AdvertiseRefs(ctx, repo, service, w)
}

func (x *UseCase) UploadPack(ctx context.Context, actor types.Username, repo types.RepoName, r io.Reader, w io.Writer) error {
	if err := x.Authorize(ctx, actor, repo, types.ActionClone); err != nil {
		return err
	}
	return x.engine.UploadPack(ctx, repo, r, w)
}

// ReceivePack authorizes and applies a push, then publishes the resulting
// events before returning. The report-status the client sees is written by
// the engine; the events are the contract plugins depend on, so publishing
// happens before the HTTP response goes out.
func (x *UseCase) ReceivePack(ctx context.Context, actor types.Username, repo types.RepoName, r io.Reader, w io.Writer) (*model.PushResult, error) {
	if err := x.Authorize(ctx, actor, repo, types.ActionPush); err != nil {
		return nil, err
	}

	result, err := x.engine.ReceivePack(ctx, repo, actor, r, w)
	if err != nil {
		return nil, err
	}

	if err := x.publishPushEvents(ctx, repo, result); err != nil {
		// The refs are already applied; surface the publication failure
		// rather than pretending the push pipeline completed.
		return result, err
	}
	return result, nil
}

// publishPushEvents emits one logical CommitPushed event per push plus
// per-ref sub-events, and FileChanged when the default branch advanced.
func (x *UseCase) publishPushEvents(ctx context.Context, repo types.RepoName, result *model.PushResult) error {
	applied := result.Applied()
	if len(applied) == 0 {
		return nil
	}

	repository, err := x.clients.ForgeRepository().GetRepository(ctx, repo)
	if err != nil {
		return err
	}

	// The logical push event tracks the default branch when it moved,
	// otherwise the first applied branch update.
	var pushUpdate *model.RefUpdate
	for i := range applied {
		u := &applied[i]
		if model.RefTypeOf(u.Name) != types.RefTypeBranch || u.New.IsZero() {
			continue
		}
		if u.Name == repository.DefaultBranch {
			pushUpdate = u
			break
		}
		if pushUpdate == nil {
			pushUpdate = u
		}
	}

	if pushUpdate != nil {
		payload, err := model.MarshalPayload(model.CommitPushedPayload{
			Ref:    pushUpdate.Name,
			From:   pushUpdate.Old,
			To:     pushUpdate.New,
			Pusher: result.Pusher,
		})
		if err != nil {
			return err
		}
		if _, err := x.clients.EventBus().Publish(ctx, &model.Event{
			Repo:    repo,
			Kind:    model.EventCommitPushed,
			Payload: payload,
		}); err != nil {
			return err
		}
	}

	for _, u := range applied {
		if err := x.publishRefEvent(ctx, repo, result.Pusher, u); err != nil {
			return err
		}
	}

	if pushUpdate != nil && pushUpdate.Name == repository.DefaultBranch {
		if err := x.publishFileChanged(ctx, repo, *pushUpdate); err != nil {
			return err
		}
	}
	return nil
}

func (x *UseCase) publishRefEvent(ctx context.Context, repo types.RepoName, pusher types.Username, u model.RefUpdate) error {
	var kind types.EventKind
	var payload any

	switch {
	case model.RefTypeOf(u.Name) == types.RefTypeTag && u.IsCreate():
		kind = model.EventTagCreated
		payload = model.TagCreatedPayload{
			Tag:    model.ShortRefName(u.Name),
			Target: u.New,
			Tagger: pusher,
		}
	case u.IsCreate():
		kind = model.EventBranchCreated
		payload = model.BranchPayload{Branch: u.Name, Target: u.New, Pusher: pusher}
	case u.IsDelete() && model.RefTypeOf(u.Name) == types.RefTypeBranch:
		kind = model.EventBranchDeleted
		payload = model.BranchPayload{Branch: u.Name, Pusher: pusher}
	default:
		return nil
	}

	raw, err := model.MarshalPayload(payload)
	if err != nil {
		return err
	}
	_, err = x.clients.EventBus().Publish(ctx, &model.Event{
		Repo:    repo,
		Kind:    kind,
		Payload: raw,
	})
	return err
}

// publishFileChanged diffs the default branch update and emits a single
// FileChanged event listing the touched paths. A diff failure is logged,
// not surfaced: the push itself already succeeded.
func (x *UseCase) publishFileChanged(ctx context.Context, repo types.RepoName, u model.RefUpdate) error {
	diff, err := x.diff(ctx, repo, u.Old, u.New)
	if err != nil {
		logging.From(ctx).Warn("failed to compute diff for file change event",
			slog.Any("repo", repo),
			slog.Any("ref", u.Name),
			slog.Any("error", err),
		)
		return nil
	}
	if len(diff.Changes) == 0 {
		return nil
	}

	payload, err := model.MarshalPayload(model.FileChangedPayload{
		Ref:    u.Name,
		Commit: u.New,
		Files:  diff.Changes,
	})
	if err != nil {
		return err
	}
	_, err = x.clients.EventBus().Publish(ctx, &model.Event{
		Repo:    repo,
		Kind:    model.EventFileChanged,
		Payload: payload,
	})
	return err
}

func (x *UseCase) ListReferences(ctx context.Context, actor types.Username, repo types.RepoName) ([]*model.Reference, error) {
	if err := x.Authorize(ctx, actor, repo, types.ActionClone); err != nil {
		return nil, err
	}
	return x.clients.ForgeRepository().ListRefs(ctx, repo)
}

func (x *UseCase) ListEvents(ctx context.Context, actor types.Username, repo types.RepoName, from types.EventID, limit int) ([]*model.Event, error) {
	if err := x.Authorize(ctx, actor, repo, types.ActionClone); err != nil {
		return nil, err
	}
	return x.clients.ForgeRepository().ListEvents(ctx, repo, from, limit)
}
