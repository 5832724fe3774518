package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/soloforge/soloforge/pkg/domain/interfaces"
	"github.com/soloforge/soloforge/pkg/domain/model"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/repository"
)

// New creates a new in-memory repository
func New() interfaces.ForgeRepository {
	return &forgeRepository{
		repos:         make(map[types.RepoName]*repoData),
		collaborators: make(map[types.Username]*model.Collaborator),
		grants:        make(map[grantKey]*model.Grant),
		plugins:       make(map[types.PluginName]*model.PluginRegistration),
		deliveries:    make(map[deliveryKey]*model.WebhookDelivery),
	}
}

type grantKey struct {
	username types.Username
	repo     types.RepoName
}

type deliveryKey struct {
	eventID types.EventID
	repo    types.RepoName
	plugin  types.PluginName
}

type repoData struct {
	repo   *model.Repository
	refs   map[types.RefName]*model.Reference
	events []*model.Event
	prs    map[int64]*model.PullRequest
	nextPR int64
}

type forgeRepository struct {
	mu             sync.RWMutex
	repos          map[types.RepoName]*repoData
	collaborators  map[types.Username]*model.Collaborator
	grants         map[grantKey]*model.Grant
	plugins        map[types.PluginName]*model.PluginRegistration
	deliveries     map[deliveryKey]*model.WebhookDelivery
	feed           []*model.Event
	dispatchCursor int64
}

// Repository operations

func (r *forgeRepository) CreateRepository(ctx context.Context, repo *model.Repository) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.repos[repo.Name]; exists {
		return goerr.Wrap(repository.ErrAlreadyExists, "repository already exists",
			goerr.V("name", repo.Name),
		)
	}

	r.repos[repo.Name] = &repoData{
		repo: copyRepository(repo),
		refs: make(map[types.RefName]*model.Reference),
		prs:  make(map[int64]*model.PullRequest),
	}

	return nil
}

func (r *forgeRepository) GetRepository(ctx context.Context, name types.RepoName) (*model.Repository, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, exists := r.repos[name]
	if !exists {
		return nil, goerr.Wrap(repository.ErrNotFound, "repository not found",
			goerr.V("name", name),
		)
	}

	return copyRepository(data.repo), nil
}

func (r *forgeRepository) ListRepositories(ctx context.Context) ([]*model.Repository, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var repos []*model.Repository
	for _, data := range r.repos {
		repos = append(repos, copyRepository(data.repo))
	}
	sort.Slice(repos, func(i, j int) bool { return repos[i].Name < repos[j].Name })

	return repos, nil
}

func (r *forgeRepository) DeleteRepository(ctx context.Context, name types.RepoName) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.repos[name]; !exists {
		return goerr.Wrap(repository.ErrNotFound, "repository not found",
			goerr.V("name", name),
		)
	}
	delete(r.repos, name)

	for key := range r.grants {
		if key.repo == name {
			delete(r.grants, key)
		}
	}

	return nil
}

// Collaborator operations

func (r *forgeRepository) SaveCollaborator(ctx context.Context, collab *model.Collaborator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.collaborators[collab.Username] = copyCollaborator(collab)
	return nil
}

func (r *forgeRepository) GetCollaborator(ctx context.Context, username types.Username) (*model.Collaborator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	collab, exists := r.collaborators[username]
	if !exists {
		return nil, goerr.Wrap(repository.ErrNotFound, "collaborator not found",
			goerr.V("username", username),
		)
	}
	return copyCollaborator(collab), nil
}

func (r *forgeRepository) ListCollaborators(ctx context.Context) ([]*model.Collaborator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var collabs []*model.Collaborator
	for _, c := range r.collaborators {
		collabs = append(collabs, copyCollaborator(c))
	}
	sort.Slice(collabs, func(i, j int) bool { return collabs[i].Username < collabs[j].Username })

	return collabs, nil
}

func (r *forgeRepository) DeleteCollaborator(ctx context.Context, username types.Username) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.collaborators[username]; !exists {
		return goerr.Wrap(repository.ErrNotFound, "collaborator not found",
			goerr.V("username", username),
		)
	}
	delete(r.collaborators, username)

	for key := range r.grants {
		if key.username == username {
			delete(r.grants, key)
		}
	}

	return nil
}

// Grant operations

func (r *forgeRepository) SetGrant(ctx context.Context, grant *model.Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := *grant
	r.grants[grantKey{username: grant.Username, repo: grant.Repo}] = &cpy
	return nil
}

func (r *forgeRepository) GetGrant(ctx context.Context, username types.Username, repo types.RepoName) (*model.Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	grant, exists := r.grants[grantKey{username: username, repo: repo}]
	if !exists {
		return nil, goerr.Wrap(repository.ErrNotFound, "grant not found",
			goerr.V("username", username),
			goerr.V("repo", repo),
		)
	}
	cpy := *grant
	return &cpy, nil
}

func (r *forgeRepository) ListGrants(ctx context.Context, repo types.RepoName) ([]*model.Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var grants []*model.Grant
	for key, grant := range r.grants {
		if key.repo == repo {
			cpy := *grant
			grants = append(grants, &cpy)
		}
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].Username < grants[j].Username })

	return grants, nil
}

func (r *forgeRepository) DeleteGrant(ctx context.Context, username types.Username, repo types.RepoName) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := grantKey{username: username, repo: repo}
	if _, exists := r.grants[key]; !exists {
		return goerr.Wrap(repository.ErrNotFound, "grant not found",
			goerr.V("username", username),
			goerr.V("repo", repo),
		)
	}
	delete(r.grants, key)
	return nil
}

// Helper functions for deep copy

func copyRepository(repo *model.Repository) *model.Repository {
	if repo == nil {
		return nil
	}
	cpy := *repo
	return &cpy
}

func copyCollaborator(collab *model.Collaborator) *model.Collaborator {
	if collab == nil {
		return nil
	}
	cpy := *collab
	if collab.PublicKeys != nil {
		cpy.PublicKeys = make([]model.PublicKey, len(collab.PublicKeys))
		copy(cpy.PublicKeys, collab.PublicKeys)
	}
	return &cpy
}

func copyEvent(ev *model.Event) *model.Event {
	if ev == nil {
		return nil
	}
	cpy := *ev
	if ev.Payload != nil {
		cpy.Payload = make([]byte, len(ev.Payload))
		copy(cpy.Payload, ev.Payload)
	}
	return &cpy
}

func copyPlugin(plugin *model.PluginRegistration) *model.PluginRegistration {
	if plugin == nil {
		return nil
	}
	cpy := *plugin
	if plugin.Kinds != nil {
		cpy.Kinds = make([]types.EventKind, len(plugin.Kinds))
		copy(cpy.Kinds, plugin.Kinds)
	}
	return &cpy
}
