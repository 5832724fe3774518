package memory

import (
	"context"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/soloforge/soloforge/pkg/domain/model"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/repository"
)

// Reference operations. The single write lock makes the compare-and-swap
// linearizable per (repository, name).

func (r *forgeRepository) CompareAndSwapRef(ctx context.Context, repo types.RepoName, name types.RefName, old, new types.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, exists := r.repos[repo]
	if !exists {
		return goerr.Wrap(repository.ErrNotFound, "repository not found",
			goerr.V("repo", repo),
		)
	}

	current := types.ZeroObjectID
	if ref, ok := data.refs[name]; ok {
		current = ref.Target
	}

	if !old.IsZero() || !current.IsZero() {
		if old.IsZero() {
			old = types.ZeroObjectID
		}
		if current != old {
			return goerr.Wrap(types.ErrReferenceConflict, "reference changed concurrently",
				goerr.V("repo", repo),
				goerr.V("name", name),
				goerr.V("expected", old),
				goerr.V("current", current),
			)
		}
	}

	if new.IsZero() {
		delete(data.refs, name)
		return nil
	}

	data.refs[name] = &model.Reference{
		Repo:   repo,
		Name:   name,
		Target: new,
		Type:   model.RefTypeOf(name),
	}
	return nil
}

func (r *forgeRepository) GetRef(ctx context.Context, repo types.RepoName, name types.RefName) (*model.Reference, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, exists := r.repos[repo]
	if !exists {
		return nil, goerr.Wrap(repository.ErrNotFound, "repository not found",
			goerr.V("repo", repo),
		)
	}

	ref, exists := data.refs[name]
	if !exists {
		return nil, goerr.Wrap(repository.ErrNotFound, "reference not found",
			goerr.V("repo", repo),
			goerr.V("name", name),
		)
	}

	cpy := *ref
	return &cpy, nil
}

func (r *forgeRepository) ListRefs(ctx context.Context, repo types.RepoName) ([]*model.Reference, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, exists := r.repos[repo]
	if !exists {
		return nil, goerr.Wrap(repository.ErrNotFound, "repository not found",
			goerr.V("repo", repo),
		)
	}

	var refs []*model.Reference
	for _, ref := range data.refs {
		cpy := *ref
		refs = append(refs, &cpy)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })

	return refs, nil
}
