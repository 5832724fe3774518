package memory

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/soloforge/soloforge/pkg/domain/model"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/repository"
)

// Event operations

func (r *forgeRepository) AppendEvent(ctx context.Context, ev *model.Event) (*model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, exists := r.repos[ev.Repo]
	if !exists {
		return nil, goerr.Wrap(repository.ErrNotFound, "repository not found",
			goerr.V("repo", ev.Repo),
		)
	}

	stored := copyEvent(ev)
	stored.ID = types.EventID(len(data.events) + 1)

	data.events = append(data.events, stored)
	r.feed = append(r.feed, stored)

	return copyEvent(stored), nil
}

func (r *forgeRepository) ListEvents(ctx context.Context, repo types.RepoName, from types.EventID, limit int) ([]*model.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, exists := r.repos[repo]
	if !exists {
		return nil, goerr.Wrap(repository.ErrNotFound, "repository not found",
			goerr.V("repo", repo),
		)
	}

	var events []*model.Event
	for _, ev := range data.events {
		if ev.ID < from {
			continue
		}
		events = append(events, copyEvent(ev))
		if limit > 0 && len(events) >= limit {
			break
		}
	}

	return events, nil
}

func (r *forgeRepository) FeedEvents(ctx context.Context, cursor int64, limit int) ([]*model.Event, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cursor < 0 || cursor > int64(len(r.feed)) {
		cursor = int64(len(r.feed))
	}

	rest := r.feed[cursor:]
	if limit > 0 && len(rest) > limit {
		rest = rest[:limit]
	}

	events := make([]*model.Event, 0, len(rest))
	for _, ev := range rest {
		events = append(events, copyEvent(ev))
	}

	return events, cursor + int64(len(events)), nil
}

func (r *forgeRepository) GetDispatchCursor(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dispatchCursor, nil
}

func (r *forgeRepository) SetDispatchCursor(ctx context.Context, cursor int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatchCursor = cursor
	return nil
}
