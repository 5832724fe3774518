package usecase

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/repository"
	"github.com/soloforge/soloforge/pkg/utils/logging"
)

// AnonymousActor is the actor of an unauthenticated request. It can only
// clone public repositories.
const AnonymousActor = types.Username("")

// ResolveActor authenticates credentials to an actor. The owner matches by
// the configured token; collaborators match by token hash. Empty
// credentials resolve to the anonymous actor.
func (x *UseCase) ResolveActor(ctx context.Context, username types.Username, token types.APIToken) (types.Username, error) {
	if username == "" && token == "" {
		return AnonymousActor, nil
	}

	// A bare token (e.g. bearer auth) can only belong to the owner.
	if username == "" {
		if x.owner.Token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(x.owner.Token)) == 1 {
			return x.owner.Username, nil
		}
		return AnonymousActor, goerr.Wrap(types.ErrAuthorizationDenied, "invalid token")
	}

	if username == x.owner.Username && x.owner.Token != "" {
		if subtle.ConstantTimeCompare([]byte(token), []byte(x.owner.Token)) == 1 {
			return x.owner.Username, nil
		}
		return AnonymousActor, goerr.Wrap(types.ErrAuthorizationDenied, "invalid owner credentials")
	}

	collab, err := x.clients.ForgeRepository().GetCollaborator(ctx, username)
	if err != nil {
		return AnonymousActor, goerr.Wrap(types.ErrAuthorizationDenied, "unknown user",
			goerr.V("username", username),
		)
	}

	sum := sha256.Sum256([]byte(token))
	if subtle.ConstantTimeCompare([]byte(hex.EncodeToString(sum[:])), []byte(collab.TokenHash)) != 1 {
		return AnonymousActor, goerr.Wrap(types.ErrAuthorizationDenied, "invalid credentials",
			goerr.V("username", username),
		)
	}
	return collab.Username, nil
}

// authzInput is the document handed to the optional Rego policy.
type authzInput struct {
	Actor      types.Username   `json:"actor"`
	Repo       types.RepoName   `json:"repo"`
	Action     types.Action     `json:"action"`
	Visibility types.Visibility `json:"visibility"`
	Builtin    bool             `json:"builtin_allow"`
}

type authzResult struct {
	Deny []string `json:"deny"`
}

// Authorize resolves (actor, repository, action) to allow or deny. Deny is
// the default: the owner always has admin, public repositories allow
// anonymous clone, everything else requires an explicit grant covering the
// action. A configured policy can veto any builtin allow and fails closed.
func (x *UseCase) Authorize(ctx context.Context, actor types.Username, repo types.RepoName, action types.Action) error {
	repository, err := x.clients.ForgeRepository().GetRepository(ctx, repo)
	if err != nil {
		return goerr.Wrap(types.ErrAuthorizationDenied, "unknown repository",
			goerr.V("repo", repo),
		)
	}

	allowed := x.builtinAllow(ctx, actor, repo, repository.Visibility, action)

	if policy := x.clients.PolicyClient(); policy != nil {
		var result authzResult
		input := authzInput{
			Actor:      actor,
			Repo:       repo,
			Action:     action,
			Visibility: repository.Visibility,
			Builtin:    allowed,
		}
		if err := policy.Query(ctx, input, &result); err != nil {
			logging.From(ctx).Warn("authorization policy query failed, denying",
				slog.Any("actor", actor),
				slog.Any("repo", repo),
				slog.Any("error", err),
			)
			return goerr.Wrap(types.ErrAuthorizationDenied, "authorization policy unavailable")
		}
		if len(result.Deny) > 0 {
			return goerr.Wrap(types.ErrAuthorizationDenied, "denied by policy",
				goerr.V("reasons", result.Deny),
			)
		}
	}

	if !allowed {
		return goerr.Wrap(types.ErrAuthorizationDenied, "access denied",
			goerr.V("actor", actor),
			goerr.V("repo", repo),
			goerr.V("action", action),
		)
	}
	return nil
}

func (x *UseCase) builtinAllow(ctx context.Context, actor types.Username, repo types.RepoName, visibility types.Visibility, action types.Action) bool {
	if actor != AnonymousActor && actor == x.owner.Username {
		return true
	}
	if visibility == types.VisibilityPublic && action == types.ActionClone {
		return true
	}
	if actor == AnonymousActor {
		return false
	}

	grant, err := x.clients.ForgeRepository().GetGrant(ctx, actor, repo)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logging.From(ctx).Warn("grant lookup failed",
				slog.Any("actor", actor),
				slog.Any("repo", repo),
				slog.Any("error", err),
			)
		}
		return false
	}
	return grant.Permission.Covers(action.Required())
}
