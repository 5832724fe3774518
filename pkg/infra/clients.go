package infra

import (
	"net/http"

	"github.com/soloforge/soloforge/pkg/domain/interfaces"
	"github.com/soloforge/soloforge/pkg/eventbus"
	"github.com/soloforge/soloforge/pkg/infra/webhook"
	"github.com/soloforge/soloforge/pkg/metrics"
	"github.com/soloforge/soloforge/pkg/repository/memory"
)

type Clients struct {
	forgeRepository interfaces.ForgeRepository
	objectStore     interfaces.ObjectStore
	webhookClient   interfaces.WebhookClient
	policyClient    interfaces.PolicyClient
	eventArchive    interfaces.EventArchive
	eventBus        *eventbus.Bus
	eventMetrics    *metrics.EventMetrics
	httpClient      HTTPClient
}

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Option func(*Clients)

func New(options ...Option) *Clients {
	client := &Clients{
		httpClient: http.DefaultClient,
	}

	for _, opt := range options {
		opt(client)
	}

	if client.forgeRepository == nil {
		client.forgeRepository = memory.New()
	}
	if client.webhookClient == nil {
		client.webhookClient = webhook.New(webhook.WithHTTPClient(client.httpClient))
	}
	if client.eventBus == nil {
		busOptions := []eventbus.Option{}
		if client.eventArchive != nil {
			busOptions = append(busOptions, eventbus.WithArchive(client.eventArchive))
		}
		if client.eventMetrics != nil {
			busOptions = append(busOptions, eventbus.WithMetrics(client.eventMetrics))
		}
		client.eventBus = eventbus.New(client.forgeRepository, busOptions...)
	}

	return client
}

func (x *Clients) ForgeRepository() interfaces.ForgeRepository {
	return x.forgeRepository
}
func (x *Clients) ObjectStore() interfaces.ObjectStore {
	return x.objectStore
}
func (x *Clients) WebhookClient() interfaces.WebhookClient {
	return x.webhookClient
}
func (x *Clients) PolicyClient() interfaces.PolicyClient {
	return x.policyClient
}
func (x *Clients) EventArchive() interfaces.EventArchive {
	return x.eventArchive
}
func (x *Clients) EventBus() *eventbus.Bus {
	return x.eventBus
}
func (x *Clients) EventMetrics() *metrics.EventMetrics {
	return x.eventMetrics
}
func (x *Clients) HTTPClient() HTTPClient {
	return x.httpClient
}

func WithForgeRepository(repo interfaces.ForgeRepository) Option {
	return func(x *Clients) {
		x.forgeRepository = repo
	}
}

func WithObjectStore(store interfaces.ObjectStore) Option {
	return func(x *Clients) {
		x.objectStore = store
	}
}

func WithWebhookClient(client interfaces.WebhookClient) Option {
	return func(x *Clients) {
		x.webhookClient = client
	}
}

func WithPolicyClient(client interfaces.PolicyClient) Option {
	return func(x *Clients) {
		x.policyClient = client
	}
}

func WithEventArchive(archive interfaces.EventArchive) Option {
	return func(x *Clients) {
		x.eventArchive = archive
	}
}

func WithEventMetrics(m *metrics.EventMetrics) Option {
	return func(x *Clients) {
		x.eventMetrics = m
	}
}

func WithHTTPClient(client HTTPClient) Option {
	return func(x *Clients) {
		x.httpClient = client
	}
}
