package memory

import (
	"context"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/soloforge/soloforge/pkg/domain/model"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/repository"
)

// Pull request operations

func (r *forgeRepository) CreatePullRequest(ctx context.Context, pr *model.PullRequest) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, exists := r.repos[pr.Repo]
	if !exists {
		return 0, goerr.Wrap(repository.ErrNotFound, "repository not found",
			goerr.V("repo", pr.Repo),
		)
	}

	data.nextPR++
	cpy := *pr
	cpy.ID = data.nextPR
	data.prs[cpy.ID] = &cpy

	return cpy.ID, nil
}

func (r *forgeRepository) GetPullRequest(ctx context.Context, repo types.RepoName, id int64) (*model.PullRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, exists := r.repos[repo]
	if !exists {
		return nil, goerr.Wrap(repository.ErrNotFound, "repository not found",
			goerr.V("repo", repo),
		)
	}

	pr, exists := data.prs[id]
	if !exists {
		return nil, goerr.Wrap(repository.ErrNotFound, "pull request not found",
			goerr.V("repo", repo),
			goerr.V("id", id),
		)
	}

	cpy := *pr
	return &cpy, nil
}

func (r *forgeRepository) ListPullRequests(ctx context.Context, repo types.RepoName) ([]*model.PullRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, exists := r.repos[repo]
	if !exists {
		return nil, goerr.Wrap(repository.ErrNotFound, "repository not found",
			goerr.V("repo", repo),
		)
	}

	var prs []*model.PullRequest
	for _, pr := range data.prs {
		cpy := *pr
		prs = append(prs, &cpy)
	}
	sort.Slice(prs, func(i, j int) bool { return prs[i].ID < prs[j].ID })

	return prs, nil
}

func (r *forgeRepository) UpdatePullRequest(ctx context.Context, pr *model.PullRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, exists := r.repos[pr.Repo]
	if !exists {
		return goerr.Wrap(repository.ErrNotFound, "repository not found",
			goerr.V("repo", pr.Repo),
		)
	}

	if _, exists := data.prs[pr.ID]; !exists {
		return goerr.Wrap(repository.ErrNotFound, "pull request not found",
			goerr.V("repo", pr.Repo),
			goerr.V("id", pr.ID),
		)
	}

	cpy := *pr
	data.prs[pr.ID] = &cpy
	return nil
}
