package interfaces

import (
	"context"

	"github.com/soloforge/soloforge/pkg/domain/model"
	"github.com/soloforge/soloforge/pkg/domain/types"
)

// ForgeRepository is the durable store for everything except object
// payloads: repositories, collaborators, references, pull requests, events,
// plugin registrations and webhook deliveries.
type ForgeRepository interface {
	// Repository operations
	CreateRepository(ctx context.Context, repo *model.Repository) error
	GetRepository(ctx context.Context, name types.RepoName) (*model.Repository, error)
	ListRepositories(ctx context.Context) ([]*model.Repository, error)
	DeleteRepository(ctx context.Context, name types.RepoName) error

	// Collaborator operations
	SaveCollaborator(ctx context.Context, collab *model.Collaborator) error
	GetCollaborator(ctx context.Context, username types.Username) (*model.Collaborator, error)
	ListCollaborators(ctx context.Context) ([]*model.Collaborator, error)
	DeleteCollaborator(ctx context.Context, username types.Username) error

	// Permission grants. GetGrant returns ErrNotFound for an absent grant;
	// callers treat that as no access.
	SetGrant(ctx context.Context, grant *model.Grant) error
	GetGrant(ctx context.Context, username types.Username, repo types.RepoName) (*model.Grant, error)
	ListGrants(ctx context.Context, repo types.RepoName) ([]*model.Grant, error)
	DeleteGrant(ctx context.Context, username types.Username, repo types.RepoName) error

	// Reference operations. CompareAndSwapRef is the sole concurrency
	// control point for pushes: the update commits only when the stored
	// value equals old at the instant of update, otherwise it returns
	// types.ErrReferenceConflict. A zero old creates, a zero new deletes.
	// ListRefs returns a point-in-time snapshot ordered by name.
	CompareAndSwapRef(ctx context.Context, repo types.RepoName, name types.RefName, old, new types.ObjectID) error
	GetRef(ctx context.Context, repo types.RepoName, name types.RefName) (*model.Reference, error)
	ListRefs(ctx context.Context, repo types.RepoName) ([]*model.Reference, error)

	// Pull request operations
	CreatePullRequest(ctx context.Context, pr *model.PullRequest) (int64, error)
	GetPullRequest(ctx context.Context, repo types.RepoName, id int64) (*model.PullRequest, error)
	ListPullRequests(ctx context.Context, repo types.RepoName) ([]*model.PullRequest, error)
	UpdatePullRequest(ctx context.Context, pr *model.PullRequest) error

	// Event operations. AppendEvent assigns the next monotonic per-repo
	// event ID and a global feed cursor in one transaction and returns the
	// stored record. ListEvents pages a single repository's stream;
	// FeedEvents pages the global feed used by the dispatcher.
	AppendEvent(ctx context.Context, ev *model.Event) (*model.Event, error)
	ListEvents(ctx context.Context, repo types.RepoName, from types.EventID, limit int) ([]*model.Event, error)
	FeedEvents(ctx context.Context, cursor int64, limit int) ([]*model.Event, int64, error)

	// Plugin operations
	SavePlugin(ctx context.Context, plugin *model.PluginRegistration) error
	GetPlugin(ctx context.Context, name types.PluginName) (*model.PluginRegistration, error)
	ListPlugins(ctx context.Context) ([]*model.PluginRegistration, error)
	DeletePlugin(ctx context.Context, name types.PluginName) error
	UpdatePluginHealth(ctx context.Context, name types.PluginName, health types.PluginHealth) error

	// Webhook delivery operations. SaveDelivery upserts by
	// (event ID, plugin). Terminal records are retained for audit.
	SaveDelivery(ctx context.Context, delivery *model.WebhookDelivery) error
	ListDeliveries(ctx context.Context, plugin types.PluginName, limit int) ([]*model.WebhookDelivery, error)
	ListDeliveriesByState(ctx context.Context, state types.DeliveryState, limit int) ([]*model.WebhookDelivery, error)

	// Dispatcher feed cursor, persisted so a restart resumes the
	// at-least-once fan-out without losing events.
	GetDispatchCursor(ctx context.Context) (int64, error)
	SetDispatchCursor(ctx context.Context, cursor int64) error
}
