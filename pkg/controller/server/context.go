package server

import (
	"context"

	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/utils/logging"
)

type ctxActorKey struct{}

// WithActor records the authenticated user on the request context. An empty
// username means the request is anonymous.
func WithActor(ctx context.Context, actor types.Username) context.Context {
	return context.WithValue(ctx, ctxActorKey{}, actor)
}

// ActorFrom returns the authenticated user, or an empty username for
// anonymous requests.
func ActorFrom(ctx context.Context) types.Username {
	if actor, ok := ctx.Value(ctxActorKey{}).(types.Username); ok {
		return actor
	}
	return ""
}

// DetachContext creates a new context.Background() based context that inherits
// logger, request ID, and time function from the original context.
// This is useful when running background goroutines from HTTP request handlers,
// as the original request context will be cancelled when the HTTP request completes.
func DetachContext(ctx context.Context) context.Context {
	bgCtx := context.Background()

	// Inherit logger from the original context
	bgCtx = logging.With(bgCtx, logging.From(ctx))

	// Inherit request ID and time function from the original context
	bgCtx = logging.InheritContextValues(bgCtx, ctx)

	return bgCtx
}
