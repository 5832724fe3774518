package dispatcher_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/soloforge/soloforge/pkg/dispatcher"
	"github.com/soloforge/soloforge/pkg/domain/interfaces"
	"github.com/soloforge/soloforge/pkg/domain/model"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/eventbus"
	"github.com/soloforge/soloforge/pkg/metrics"
	"github.com/soloforge/soloforge/pkg/repository/memory"
)

type mockWebhookClient struct {
	mu        sync.Mutex
	failures  map[types.PluginName]int
	delivered []types.EventID
	probes    int
	done      chan struct{}
}

func newMockWebhookClient() *mockWebhookClient {
	return &mockWebhookClient{
		failures: map[types.PluginName]int{},
		done:     make(chan struct{}, 16),
	}
}

func (x *mockWebhookClient) Deliver(ctx context.Context, plugin *model.PluginRegistration, ev *model.Event) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if n := x.failures[plugin.Name]; n > 0 {
		x.failures[plugin.Name] = n - 1
		return errors.New("connection refused")
	}
	x.delivered = append(x.delivered, ev.ID)
	select {
	case x.done <- struct{}{}:
	default:
	}
	return nil
}

func (x *mockWebhookClient) Probe(ctx context.Context, plugin *model.PluginRegistration) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.probes++
	return nil
}

func newTestRepo(t *testing.T) interfaces.ForgeRepository {
	t.Helper()
	repo := memory.New()
	gt.NoError(t, repo.CreateRepository(context.Background(), &model.Repository{Name: "blog"}))
	return repo
}

func testConfig() dispatcher.Config {
	return dispatcher.Config{
		MaxAttempts:     3,
		BaseBackoff:     time.Millisecond,
		MaxBackoff:      5 * time.Millisecond,
		DeliveryTimeout: time.Second,
		PollInterval:    10 * time.Millisecond,
		ProbeInterval:   time.Millisecond,
	}
}

func setupPlugin(t *testing.T, repo interface {
	SavePlugin(ctx context.Context, plugin *model.PluginRegistration) error
}, name types.PluginName, kinds ...types.EventKind) {
	t.Helper()
	gt.NoError(t, repo.SavePlugin(context.Background(), &model.PluginRegistration{
		Name:     name,
		Type:     types.PluginTypeGeneric,
		Endpoint: "https://plugin.example.com/hook",
		Kinds:    kinds,
		Health:   types.PluginHealthHealthy,
	}))
}

func waitDeliveryState(t *testing.T, repo interface {
	ListDeliveries(ctx context.Context, plugin types.PluginName, limit int) ([]*model.WebhookDelivery, error)
}, plugin types.PluginName, state types.DeliveryState) *model.WebhookDelivery {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		deliveries, err := repo.ListDeliveries(context.Background(), plugin, 0)
		gt.NoError(t, err)
		for _, d := range deliveries {
			if d.State == state {
				return d
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("delivery never reached state %s for plugin %s", state, plugin)
	return nil
}

func TestDispatcherDelivers(t *testing.T) {
	repo := newTestRepo(t)
	bus := eventbus.New(repo)
	client := newMockWebhookClient()
	setupPlugin(t, repo, "ci-runner")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := dispatcher.New(repo, bus, client, testConfig())
	go func() {
		_ = d.Run(ctx)
	}()

	ev, err := bus.Publish(ctx, &model.Event{
		Repo: "blog",
		Kind: model.EventCommitPushed,
	})
	gt.NoError(t, err)

	got := waitDeliveryState(t, repo, "ci-runner", types.DeliveryStateDelivered)
	gt.Equal(t, got.EventID, ev.ID)
	gt.Equal(t, got.Attempts, 1)
}

func TestDispatcherSubscriptionFilter(t *testing.T) {
	repo := newTestRepo(t)
	bus := eventbus.New(repo)
	client := newMockWebhookClient()
	setupPlugin(t, repo, "tagger", model.EventTagCreated)
	setupPlugin(t, repo, "catch-all")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := dispatcher.New(repo, bus, client, testConfig())
	go func() {
		_ = d.Run(ctx)
	}()

	_, err := bus.Publish(ctx, &model.Event{
		Repo: "blog",
		Kind: model.EventCommitPushed,
	})
	gt.NoError(t, err)

	waitDeliveryState(t, repo, "catch-all", types.DeliveryStateDelivered)

	deliveries, err := repo.ListDeliveries(ctx, "tagger", 0)
	gt.NoError(t, err)
	gt.A(t, deliveries).Length(0)
}

func TestDispatcherRetriesThenSucceeds(t *testing.T) {
	repo := newTestRepo(t)
	bus := eventbus.New(repo)
	client := newMockWebhookClient()
	client.failures["flaky"] = 2
	setupPlugin(t, repo, "flaky")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := dispatcher.New(repo, bus, client, testConfig())
	go func() {
		_ = d.Run(ctx)
	}()

	_, err := bus.Publish(ctx, &model.Event{
		Repo: "blog",
		Kind: model.EventCommitPushed,
	})
	gt.NoError(t, err)

	got := waitDeliveryState(t, repo, "flaky", types.DeliveryStateDelivered)
	gt.Equal(t, got.Attempts, 3)
}

func TestDispatcherDeadLetters(t *testing.T) {
	repo := newTestRepo(t)
	bus := eventbus.New(repo)
	client := newMockWebhookClient()
	client.failures["down"] = 100
	setupPlugin(t, repo, "down")
	setupPlugin(t, repo, "healthy")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := dispatcher.New(repo, bus, client, testConfig())
	go func() {
		_ = d.Run(ctx)
	}()

	ev, err := bus.Publish(ctx, &model.Event{
		Repo: "blog",
		Kind: model.EventCommitPushed,
	})
	gt.NoError(t, err)

	dead := waitDeliveryState(t, repo, "down", types.DeliveryStateDeadLettered)
	gt.Equal(t, dead.EventID, ev.ID)
	gt.Equal(t, dead.Attempts, 3)
	gt.S(t, dead.LastError).Contains("connection refused")

	// One plugin's failures never block another's lane.
	waitDeliveryState(t, repo, "healthy", types.DeliveryStateDelivered)

	deadLettered, err := repo.ListDeliveriesByState(ctx, types.DeliveryStateDeadLettered, 0)
	gt.NoError(t, err)
	gt.A(t, deadLettered).Length(1)
}

func TestDispatcherHealthDegrades(t *testing.T) {
	repo := newTestRepo(t)
	bus := eventbus.New(repo)
	client := newMockWebhookClient()
	client.failures["shaky"] = 2
	setupPlugin(t, repo, "shaky")

	cfg := testConfig()
	cfg.DegradedThreshold = 2
	cfg.UnreachableThreshold = 10

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := dispatcher.New(repo, bus, client, cfg)
	go func() {
		_ = d.Run(ctx)
	}()

	_, err := bus.Publish(ctx, &model.Event{
		Repo: "blog",
		Kind: model.EventCommitPushed,
	})
	gt.NoError(t, err)

	waitDeliveryState(t, repo, "shaky", types.DeliveryStateDelivered)

	// Recovery after a success returns the plugin to healthy.
	plugin, err := repo.GetPlugin(ctx, "shaky")
	gt.NoError(t, err)
	gt.Equal(t, plugin.Health, types.PluginHealthHealthy)
}

func TestDispatcherRecordsMetrics(t *testing.T) {
	repo := newTestRepo(t)
	bus := eventbus.New(repo)
	client := newMockWebhookClient()
	client.failures["flaky"] = 1
	setupPlugin(t, repo, "flaky")

	cfg := testConfig()
	cfg.Metrics = metrics.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := dispatcher.New(repo, bus, client, cfg)
	go func() {
		_ = d.Run(ctx)
	}()

	_, err := bus.Publish(ctx, &model.Event{
		Repo: "blog",
		Kind: model.EventCommitPushed,
	})
	gt.NoError(t, err)

	waitDeliveryState(t, repo, "flaky", types.DeliveryStateDelivered)

	rec := httptest.NewRecorder()
	cfg.Metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	gt.S(t, body).Contains(`soloforge_deliveries_succeeded_total{plugin="flaky"} 1`)
	gt.S(t, body).Contains(`soloforge_deliveries_failed_total{plugin="flaky"} 1`)
}

func TestDispatcherResumesFromCursor(t *testing.T) {
	repo := newTestRepo(t)
	bus := eventbus.New(repo)
	setupPlugin(t, repo, "late")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Events published before the dispatcher starts are still fanned out.
	for i := 0; i < 3; i++ {
		_, err := bus.Publish(ctx, &model.Event{
			Repo: "blog",
			Kind: model.EventCommitPushed,
		})
		gt.NoError(t, err)
	}

	client := newMockWebhookClient()
	d := dispatcher.New(repo, bus, client, testConfig())
	go func() {
		_ = d.Run(ctx)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		deliveries, err := repo.ListDeliveriesByState(ctx, types.DeliveryStateDelivered, 0)
		gt.NoError(t, err)
		if len(deliveries) == 3 {
			cursor, err := repo.GetDispatchCursor(ctx)
			gt.NoError(t, err)
			gt.N(t, cursor).Greater(0)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("not all backlog events were delivered")
}
