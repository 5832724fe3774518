// Package eventbus is the durable, ordered event stream of the forge.
// Publish commits the event before returning, so a client-visible success
// response always happens after its event is durably recorded. Subscribers
// get a restartable, at-least-once, gap-free per-repository sequence.
package eventbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/soloforge/soloforge/pkg/domain/interfaces"
	"github.com/soloforge/soloforge/pkg/domain/model"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/metrics"
	"github.com/soloforge/soloforge/pkg/utils/logging"
)

type Bus struct {
	repo    interfaces.ForgeRepository
	archive interfaces.EventArchive
	metrics *metrics.EventMetrics

	mu   sync.Mutex
	wake chan struct{}
}

type Option func(*Bus)

// WithArchive attaches an optional append-only event export. Archive
// failures are logged and never fail the publish.
func WithArchive(archive interfaces.EventArchive) Option {
	return func(x *Bus) {
		x.archive = archive
	}
}

// WithMetrics attaches an optional metrics collector counting published
// events per kind.
func WithMetrics(m *metrics.EventMetrics) Option {
	return func(x *Bus) {
		x.metrics = m
	}
}

func New(repo interfaces.ForgeRepository, options ...Option) *Bus {
	bus := &Bus{
		repo: repo,
		wake: make(chan struct{}),
	}
	for _, opt := range options {
		opt(bus)
	}
	return bus
}

// Publish validates, assigns the next per-repository ID and durably commits
// the event. It returns only after the commit; the caller's success
// response to the client must come after this returns.
func (x *Bus) Publish(ctx context.Context, ev *model.Event) (*model.Event, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = logging.CtxTime(ctx)
	}

	stored, err := x.repo.AppendEvent(ctx, ev)
	if err != nil {
		return nil, err
	}
	x.metrics.EventReceived(stored.Kind)

	if x.archive != nil {
		if err := x.archive.Insert(ctx, stored); err != nil {
			logging.From(ctx).Warn("failed to archive event",
				slog.Any("error", err),
				slog.Any("repo", stored.Repo),
				slog.Any("event_id", stored.ID),
			)
		}
	}

	x.notify()
	return stored, nil
}

// Wake returns a channel closed on the next publish. Callers re-acquire a
// fresh channel after each wake-up.
func (x *Bus) Wake() <-chan struct{} {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.wake
}

func (x *Bus) notify() {
	x.mu.Lock()
	defer x.mu.Unlock()
	close(x.wake)
	x.wake = make(chan struct{})
}

// Subscribe returns a lazy, restartable stream of a repository's events
// beginning at fromID.
func (x *Bus) Subscribe(repo types.RepoName, fromID types.EventID) *Stream {
	if fromID < 1 {
		fromID = 1
	}
	return &Stream{bus: x, repo: repo, next: fromID}
}

// Stream yields a repository's events in strictly increasing ID order.
type Stream struct {
	bus  *Bus
	repo types.RepoName
	next types.EventID
}

// Next blocks until an event with ID >= the cursor exists or the context
// is done.
func (x *Stream) Next(ctx context.Context) (*model.Event, error) {
	for {
		wake := x.bus.Wake()

		events, err := x.bus.repo.ListEvents(ctx, x.repo, x.next, 1)
		if err != nil {
			return nil, err
		}
		if len(events) > 0 {
			ev := events[0]
			x.next = ev.ID + 1
			return ev, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		}
	}
}
