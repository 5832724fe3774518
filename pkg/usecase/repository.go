package usecase

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/soloforge/soloforge/pkg/domain/model"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/utils/logging"
)

// CreateRepository creates a repository and publishes RepositoryCreated.
// Only the owner creates repositories.
func (x *UseCase) CreateRepository(ctx context.Context, actor types.Username, repo *model.Repository) (*model.Repository, error) {
	if actor != x.owner.Username || actor == AnonymousActor {
		return nil, goerr.Wrap(types.ErrAuthorizationDenied, "only the owner can create repositories",
			goerr.V("actor", actor),
		)
	}

	if repo.DefaultBranch == "" {
		repo.DefaultBranch = "refs/heads/main"
	}
	if repo.Visibility == "" {
		repo.Visibility = types.VisibilityPrivate
	}
	if err := repo.Validate(); err != nil {
		return nil, err
	}
	repo.CreatedAt = logging.CtxTime(ctx)

	if err := x.clients.ForgeRepository().CreateRepository(ctx, repo); err != nil {
		return nil, err
	}

	payload, err := model.MarshalPayload(model.RepositoryCreatedPayload{
		Name:          repo.Name,
		Visibility:    repo.Visibility,
		DefaultBranch: repo.DefaultBranch,
	})
	if err != nil {
		return nil, err
	}
	if _, err := x.clients.EventBus().Publish(ctx, &model.Event{
		Repo:    repo.Name,
		Kind:    model.EventRepositoryCreated,
		Payload: payload,
	}); err != nil {
		return nil, err
	}

	logging.From(ctx).Info("repository created",
		slog.Any("repo", repo.Name),
		slog.Any("visibility", repo.Visibility),
	)
	return repo, nil
}

func (x *UseCase) GetRepository(ctx context.Context, actor types.Username, name types.RepoName) (*model.Repository, error) {
	if err := x.Authorize(ctx, actor, name, types.ActionClone); err != nil {
		return nil, err
	}
	return x.clients.ForgeRepository().GetRepository(ctx, name)
}

// ListRepositories returns the repositories the actor can read.
func (x *UseCase) ListRepositories(ctx context.Context, actor types.Username) ([]*model.Repository, error) {
	repos, err := x.clients.ForgeRepository().ListRepositories(ctx)
	if err != nil {
		return nil, err
	}

	if actor != AnonymousActor && actor == x.owner.Username {
		return repos, nil
	}

	var visible []*model.Repository
	for _, repo := range repos {
		if err := x.Authorize(ctx, actor, repo.Name, types.ActionClone); err == nil {
			visible = append(visible, repo)
		}
	}
	return visible, nil
}

func (x *UseCase) DeleteRepository(ctx context.Context, actor types.Username, name types.RepoName) error {
	if err := x.Authorize(ctx, actor, name, types.ActionAdminister); err != nil {
		return err
	}
	if err := x.clients.ForgeRepository().DeleteRepository(ctx, name); err != nil {
		return err
	}
	logging.From(ctx).Info("repository deleted", slog.Any("repo", name))
	return nil
}

// SaveCollaborator registers or updates a collaborator account. Owner only.
func (x *UseCase) SaveCollaborator(ctx context.Context, actor types.Username, collab *model.Collaborator) error {
	if err := x.requireOwner(actor); err != nil {
		return err
	}
	if collab.Username == "" {
		return goerr.Wrap(types.ErrValidationFailed, "collaborator username is empty")
	}
	if collab.CreatedAt.IsZero() {
		collab.CreatedAt = logging.CtxTime(ctx)
	}
	return x.clients.ForgeRepository().SaveCollaborator(ctx, collab)
}

func (x *UseCase) DeleteCollaborator(ctx context.Context, actor types.Username, username types.Username) error {
	if err := x.requireOwner(actor); err != nil {
		return err
	}
	return x.clients.ForgeRepository().DeleteCollaborator(ctx, username)
}

// SetGrant binds a collaborator to a repository with a permission level.
// Requires admin on the repository.
func (x *UseCase) SetGrant(ctx context.Context, actor types.Username, grant *model.Grant) error {
	if err := x.Authorize(ctx, actor, grant.Repo, types.ActionAdminister); err != nil {
		return err
	}
	if _, err := x.clients.ForgeRepository().GetCollaborator(ctx, grant.Username); err != nil {
		return goerr.Wrap(types.ErrValidationFailed, "grant references unknown collaborator",
			goerr.V("username", grant.Username),
		)
	}
	return x.clients.ForgeRepository().SetGrant(ctx, grant)
}

func (x *UseCase) DeleteGrant(ctx context.Context, actor types.Username, username types.Username, repo types.RepoName) error {
	if err := x.Authorize(ctx, actor, repo, types.ActionAdminister); err != nil {
		return err
	}
	return x.clients.ForgeRepository().DeleteGrant(ctx, username, repo)
}

func (x *UseCase) requireOwner(actor types.Username) error {
	if actor == AnonymousActor || actor != x.owner.Username {
		return goerr.Wrap(types.ErrAuthorizationDenied, "owner privilege required",
			goerr.V("actor", actor),
		)
	}
	return nil
}
