package interfaces

import (
	"context"
	"io"

	"github.com/soloforge/soloforge/pkg/domain/model"
	"github.com/soloforge/soloforge/pkg/domain/types"
)

// UseCase is the set of core entry points exposed to the HTTP controller
// and to surrounding services.
type UseCase interface {
	// Authentication and authorization
	ResolveActor(ctx context.Context, username types.Username, token types.APIToken) (types.Username, error)
	Authorize(ctx context.Context, actor types.Username, repo types.RepoName, action types.Action) error

	// Repository management
	CreateRepository(ctx context.Context, actor types.Username, repo *model.Repository) (*model.Repository, error)
	GetRepository(ctx context.Context, actor types.Username, name types.RepoName) (*model.Repository, error)
	ListRepositories(ctx context.Context, actor types.Username) ([]*model.Repository, error)
	DeleteRepository(ctx context.Context, actor types.Username, name types.RepoName) error

	// Collaborators and grants
	SaveCollaborator(ctx context.Context, actor types.Username, collab *model.Collaborator) error
	DeleteCollaborator(ctx context.Context, actor types.Username, username types.Username) error
	SetGrant(ctx context.Context, actor types.Username, grant *model.Grant) error
	DeleteGrant(ctx context.Context, actor types.Username, username types.Username, repo types.RepoName) error

	// Git smart-HTTP protocol
	AdvertiseRefs(ctx context.Context, actor types.Username, repo types.RepoName, service string, w io.Writer) error
	UploadPack(ctx context.Context, actor types.Username, repo types.RepoName, r io.Reader, w io.Writer) error
	ReceivePack(ctx context.Context, actor types.Username, repo types.RepoName, r io.Reader, w io.Writer) (*model.PushResult, error)

	// Read-side entry points
	ListReferences(ctx context.Context, actor types.Username, repo types.RepoName) ([]*model.Reference, error)
	ComputeDiff(ctx context.Context, actor types.Username, repo types.RepoName, from, to types.ObjectID) (*model.Diff, error)
	ListEvents(ctx context.Context, actor types.Username, repo types.RepoName, from types.EventID, limit int) ([]*model.Event, error)

	// Pull requests
	OpenPullRequest(ctx context.Context, actor types.Username, pr *model.PullRequest) (*model.PullRequest, error)
	ListPullRequests(ctx context.Context, actor types.Username, repo types.RepoName) ([]*model.PullRequest, error)
	MergePullRequest(ctx context.Context, actor types.Username, repo types.RepoName, id int64, method model.MergeMethod) (*model.PullRequest, error)
	ClosePullRequest(ctx context.Context, actor types.Username, repo types.RepoName, id int64) (*model.PullRequest, error)

	// Plugin management and delivery inspection
	RegisterPlugin(ctx context.Context, actor types.Username, plugin *model.PluginRegistration) error
	ListPlugins(ctx context.Context, actor types.Username) ([]*model.PluginRegistration, error)
	DeletePlugin(ctx context.Context, actor types.Username, name types.PluginName) error
	ListDeadLetters(ctx context.Context, actor types.Username, limit int) ([]*model.WebhookDelivery, error)
}
