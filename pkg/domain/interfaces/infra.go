package interfaces

import (
	"context"

	"github.com/soloforge/soloforge/pkg/domain/model"
	"github.com/soloforge/soloforge/pkg/domain/types"
)

// ObjectStore is content-addressable storage of canonical git object bytes.
// Put is idempotent: identical content yields the identical ID and a second
// write is a verified no-op.
type ObjectStore interface {
	Put(ctx context.Context, data []byte) (types.ObjectID, error)
	Get(ctx context.Context, id types.ObjectID) ([]byte, error)
	Has(ctx context.Context, id types.ObjectID) (bool, error)
}

// WebhookClient delivers one event to a plugin endpoint and awaits an
// acknowledgement within the attempt timeout. Probe checks endpoint health
// without delivering anything.
type WebhookClient interface {
	Deliver(ctx context.Context, plugin *model.PluginRegistration, ev *model.Event) error
	Probe(ctx context.Context, plugin *model.PluginRegistration) error
}

// PolicyClient evaluates an external authorization policy. A nil client
// means the built-in owner/collaborator model decides alone.
type PolicyClient interface {
	Query(ctx context.Context, input any, result any) error
}

// EventArchive is an optional append-only export of published events for
// analytics. Archive failures are logged, never surfaced to git clients.
type EventArchive interface {
	Insert(ctx context.Context, ev *model.Event) error
}
