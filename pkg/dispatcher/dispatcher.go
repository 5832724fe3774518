// Package dispatcher fans published events out to registered plugins.
// Each plugin gets its own sequential delivery lane, so one plugin's
// backoff never blocks another's deliveries. Deliveries are at-least-once:
// the feed cursor advances only after delivery records are durably created.
package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/soloforge/soloforge/pkg/domain/interfaces"
	"github.com/soloforge/soloforge/pkg/domain/model"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/eventbus"
	"github.com/soloforge/soloforge/pkg/metrics"
	"github.com/soloforge/soloforge/pkg/utils/logging"
)

type Config struct {
	MaxAttempts          int
	BaseBackoff          time.Duration
	MaxBackoff           time.Duration
	DeliveryTimeout      time.Duration
	PollInterval         time.Duration
	ProbeInterval        time.Duration
	DegradedThreshold    int
	UnreachableThreshold int
	LaneBuffer           int

	// Metrics is an optional collector for delivery outcomes and attempt
	// latencies. A nil collector disables instrumentation.
	Metrics *metrics.EventMetrics
}

func (x *Config) setDefaults() {
	if x.MaxAttempts <= 0 {
		x.MaxAttempts = 5
	}
	if x.BaseBackoff <= 0 {
		x.BaseBackoff = 500 * time.Millisecond
	}
	if x.MaxBackoff <= 0 {
		x.MaxBackoff = time.Minute
	}
	if x.DeliveryTimeout <= 0 {
		x.DeliveryTimeout = 10 * time.Second
	}
	if x.PollInterval <= 0 {
		x.PollInterval = 5 * time.Second
	}
	if x.ProbeInterval <= 0 {
		x.ProbeInterval = 30 * time.Second
	}
	if x.DegradedThreshold <= 0 {
		x.DegradedThreshold = 3
	}
	if x.UnreachableThreshold <= x.DegradedThreshold {
		x.UnreachableThreshold = x.DegradedThreshold * 2
	}
	if x.LaneBuffer <= 0 {
		x.LaneBuffer = 256
	}
}

type Dispatcher struct {
	repo   interfaces.ForgeRepository
	bus    *eventbus.Bus
	client interfaces.WebhookClient
	cfg    Config

	mu    sync.Mutex
	lanes map[types.PluginName]*lane
	wg    sync.WaitGroup
}

type lane struct {
	plugin   types.PluginName
	queue    chan *model.Event
	failures int
}

func New(repo interfaces.ForgeRepository, bus *eventbus.Bus, client interfaces.WebhookClient, cfg Config) *Dispatcher {
	cfg.setDefaults()
	return &Dispatcher{
		repo:   repo,
		bus:    bus,
		client: client,
		cfg:    cfg,
		lanes:  make(map[types.PluginName]*lane),
	}
}

// Run drives the fan-out loop until the context is cancelled. It first
// re-enqueues deliveries that were in flight when the process last
// stopped, then follows the global event feed.
func (x *Dispatcher) Run(ctx context.Context) error {
	logger := logging.From(ctx)
	logger.Info("plugin dispatcher started",
		slog.Int("max_attempts", x.cfg.MaxAttempts),
		slog.Duration("delivery_timeout", x.cfg.DeliveryTimeout),
	)

	if err := x.recover(ctx); err != nil {
		logger.Warn("failed to recover in-flight deliveries", slog.Any("error", err))
	}

	ticker := time.NewTicker(x.cfg.PollInterval)
	defer ticker.Stop()

	for {
		wake := x.bus.Wake()

		if err := x.fanOut(ctx); err != nil && ctx.Err() == nil {
			logger.Error("event fan-out failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			x.shutdown()
			return ctx.Err()
		case <-wake:
		case <-ticker.C:
		}
	}
}

// fanOut reads new events from the feed, records a pending delivery per
// subscribed plugin, enqueues them, and only then advances the cursor.
func (x *Dispatcher) fanOut(ctx context.Context) error {
	cursor, err := x.repo.GetDispatchCursor(ctx)
	if err != nil {
		return err
	}

	for {
		events, next, err := x.repo.FeedEvents(ctx, cursor, 64)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		plugins, err := x.repo.ListPlugins(ctx)
		if err != nil {
			return err
		}

		for _, ev := range events {
			for _, plugin := range plugins {
				if !plugin.Subscribed(ev.Kind) {
					continue
				}
				delivery := &model.WebhookDelivery{
					EventID:   ev.ID,
					Repo:      ev.Repo,
					Plugin:    plugin.Name,
					State:     types.DeliveryStatePending,
					UpdatedAt: logging.CtxTime(ctx),
				}
				if err := x.repo.SaveDelivery(ctx, delivery); err != nil {
					return err
				}
				x.enqueue(ctx, plugin.Name, ev)
			}
		}

		cursor = next
		if err := x.repo.SetDispatchCursor(ctx, cursor); err != nil {
			return err
		}
	}
}

// recover re-enqueues every non-terminal delivery so a restart never
// silently drops one.
func (x *Dispatcher) recover(ctx context.Context) error {
	for _, state := range []types.DeliveryState{
		types.DeliveryStatePending,
		types.DeliveryStateDelivering,
		types.DeliveryStateRetrying,
	} {
		deliveries, err := x.repo.ListDeliveriesByState(ctx, state, 0)
		if err != nil {
			return err
		}
		for _, d := range deliveries {
			events, err := x.repo.ListEvents(ctx, d.Repo, d.EventID, 1)
			if err != nil || len(events) == 0 || events[0].ID != d.EventID {
				continue
			}
			x.enqueue(ctx, d.Plugin, events[0])
		}
	}
	return nil
}

func (x *Dispatcher) enqueue(ctx context.Context, plugin types.PluginName, ev *model.Event) {
	x.mu.Lock()
	ln, ok := x.lanes[plugin]
	if !ok {
		ln = &lane{
			plugin: plugin,
			queue:  make(chan *model.Event, x.cfg.LaneBuffer),
		}
		x.lanes[plugin] = ln
		x.wg.Add(1)
		go x.runLane(ctx, ln)
	}
	x.mu.Unlock()

	select {
	case ln.queue <- ev:
	case <-ctx.Done():
	}
}

func (x *Dispatcher) shutdown() {
	x.mu.Lock()
	for _, ln := range x.lanes {
		close(ln.queue)
	}
	x.lanes = make(map[types.PluginName]*lane)
	x.mu.Unlock()
	x.wg.Wait()
}

func (x *Dispatcher) runLane(ctx context.Context, ln *lane) {
	defer x.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ln.queue:
			if !ok {
				return
			}
			x.deliver(ctx, ln, ev)
		}
	}
}

// deliver walks one (event, plugin) pair through the delivery state
// machine: Delivering -> Delivered, or Retrying cycles bounded by
// MaxAttempts ending in DeadLettered.
func (x *Dispatcher) deliver(ctx context.Context, ln *lane, ev *model.Event) {
	logger := logging.From(ctx).With(
		slog.Any("plugin", ln.plugin),
		slog.Any("repo", ev.Repo),
		slog.Any("event_id", ev.ID),
	)

	plugin, err := x.repo.GetPlugin(ctx, ln.plugin)
	if err != nil {
		// The plugin was deleted while the delivery was queued.
		x.saveState(ctx, ev, ln.plugin, types.DeliveryStateDeadLettered, 0, "plugin no longer registered")
		return
	}

	if plugin.Health == types.PluginHealthUnreachable {
		if !x.awaitProbe(ctx, plugin) {
			return
		}
	}

	delivery := &model.WebhookDelivery{
		EventID: ev.ID,
		Repo:    ev.Repo,
		Plugin:  ln.plugin,
	}

	for attempt := 1; attempt <= x.cfg.MaxAttempts; attempt++ {
		delivery.Attempts = attempt
		delivery.State = types.DeliveryStateDelivering
		delivery.UpdatedAt = logging.CtxTime(ctx)
		if err := x.repo.SaveDelivery(ctx, delivery); err != nil {
			logger.Error("failed to record delivery state", slog.Any("error", err))
		}

		attemptCtx, cancel := context.WithTimeout(ctx, x.cfg.DeliveryTimeout)
		started := time.Now()
		err := x.client.Deliver(attemptCtx, plugin, ev)
		elapsed := time.Since(started)
		cancel()

		if err == nil {
			x.cfg.Metrics.DeliverySucceeded(ln.plugin, elapsed)
			delivery.State = types.DeliveryStateDelivered
			delivery.LastError = ""
			delivery.UpdatedAt = logging.CtxTime(ctx)
			if err := x.repo.SaveDelivery(ctx, delivery); err != nil {
				logger.Error("failed to record delivered state", slog.Any("error", err))
			}
			x.markSuccess(ctx, ln, plugin)
			return
		}

		x.cfg.Metrics.DeliveryFailed(ln.plugin, elapsed, errors.Is(err, context.DeadlineExceeded))
		delivery.LastError = err.Error()
		x.markFailure(ctx, ln, plugin)
		logger.Warn("webhook delivery attempt failed",
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)

		if attempt == x.cfg.MaxAttempts {
			break
		}

		delivery.State = types.DeliveryStateRetrying
		delivery.UpdatedAt = logging.CtxTime(ctx)
		if err := x.repo.SaveDelivery(ctx, delivery); err != nil {
			logger.Error("failed to record retrying state", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff(x.cfg.BaseBackoff, x.cfg.MaxBackoff, attempt)):
		}
	}

	delivery.State = types.DeliveryStateDeadLettered
	delivery.UpdatedAt = logging.CtxTime(ctx)
	if err := x.repo.SaveDelivery(ctx, delivery); err != nil {
		logger.Error("failed to record dead-lettered state", slog.Any("error", err))
	}
	logger.Error("webhook delivery dead-lettered",
		slog.Int("attempts", delivery.Attempts),
		slog.String("last_error", delivery.LastError),
	)
}

func (x *Dispatcher) saveState(ctx context.Context, ev *model.Event, plugin types.PluginName, state types.DeliveryState, attempts int, reason string) {
	delivery := &model.WebhookDelivery{
		EventID:   ev.ID,
		Repo:      ev.Repo,
		Plugin:    plugin,
		State:     state,
		Attempts:  attempts,
		LastError: reason,
		UpdatedAt: logging.CtxTime(ctx),
	}
	if err := x.repo.SaveDelivery(ctx, delivery); err != nil {
		logging.From(ctx).Error("failed to record delivery state", slog.Any("error", err))
	}
}

func (x *Dispatcher) markSuccess(ctx context.Context, ln *lane, plugin *model.PluginRegistration) {
	ln.failures = 0
	if plugin.Health != types.PluginHealthHealthy {
		if err := x.repo.UpdatePluginHealth(ctx, plugin.Name, types.PluginHealthHealthy); err != nil {
			logging.From(ctx).Warn("failed to mark plugin healthy", slog.Any("error", err))
		}
		plugin.Health = types.PluginHealthHealthy
	}
}

func (x *Dispatcher) markFailure(ctx context.Context, ln *lane, plugin *model.PluginRegistration) {
	ln.failures++

	var health types.PluginHealth
	switch {
	case ln.failures >= x.cfg.UnreachableThreshold:
		health = types.PluginHealthUnreachable
	case ln.failures >= x.cfg.DegradedThreshold:
		health = types.PluginHealthDegraded
	default:
		return
	}

	if plugin.Health == health {
		return
	}
	if err := x.repo.UpdatePluginHealth(ctx, plugin.Name, health); err != nil {
		logging.From(ctx).Warn("failed to update plugin health", slog.Any("error", err))
	}
	plugin.Health = health
}

// awaitProbe defers deliveries to an unreachable plugin until a health
// probe succeeds. Returns false when the context ends first.
func (x *Dispatcher) awaitProbe(ctx context.Context, plugin *model.PluginRegistration) bool {
	logger := logging.From(ctx).With(slog.Any("plugin", plugin.Name))

	for {
		probeCtx, cancel := context.WithTimeout(ctx, x.cfg.DeliveryTimeout)
		err := x.client.Probe(probeCtx, plugin)
		cancel()

		if err == nil {
			logger.Info("plugin probe succeeded, resuming deliveries")
			if err := x.repo.UpdatePluginHealth(ctx, plugin.Name, types.PluginHealthDegraded); err != nil {
				logger.Warn("failed to update plugin health", slog.Any("error", err))
			}
			plugin.Health = types.PluginHealthDegraded
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(x.cfg.ProbeInterval):
		}
	}
}
