package memory

import (
	"context"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/soloforge/soloforge/pkg/domain/model"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/repository"
)

// Plugin operations

func (r *forgeRepository) SavePlugin(ctx context.Context, plugin *model.PluginRegistration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.plugins[plugin.Name] = copyPlugin(plugin)
	return nil
}

func (r *forgeRepository) GetPlugin(ctx context.Context, name types.PluginName) (*model.PluginRegistration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	plugin, exists := r.plugins[name]
	if !exists {
		return nil, goerr.Wrap(repository.ErrNotFound, "plugin not found",
			goerr.V("name", name),
		)
	}
	return copyPlugin(plugin), nil
}

func (r *forgeRepository) ListPlugins(ctx context.Context) ([]*model.PluginRegistration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var plugins []*model.PluginRegistration
	for _, plugin := range r.plugins {
		plugins = append(plugins, copyPlugin(plugin))
	}
	sort.Slice(plugins, func(i, j int) bool { return plugins[i].Name < plugins[j].Name })

	return plugins, nil
}

func (r *forgeRepository) DeletePlugin(ctx context.Context, name types.PluginName) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[name]; !exists {
		return goerr.Wrap(repository.ErrNotFound, "plugin not found",
			goerr.V("name", name),
		)
	}
	delete(r.plugins, name)
	return nil
}

func (r *forgeRepository) UpdatePluginHealth(ctx context.Context, name types.PluginName, health types.PluginHealth) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	plugin, exists := r.plugins[name]
	if !exists {
		return goerr.Wrap(repository.ErrNotFound, "plugin not found",
			goerr.V("name", name),
		)
	}
	plugin.Health = health
	return nil
}

// Webhook delivery operations

func (r *forgeRepository) SaveDelivery(ctx context.Context, delivery *model.WebhookDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := *delivery
	key := deliveryKey{eventID: delivery.EventID, repo: delivery.Repo, plugin: delivery.Plugin}
	r.deliveries[key] = &cpy
	return nil
}

func (r *forgeRepository) ListDeliveries(ctx context.Context, plugin types.PluginName, limit int) ([]*model.WebhookDelivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.filterDeliveries(func(d *model.WebhookDelivery) bool {
		return plugin == "" || d.Plugin == plugin
	}, limit), nil
}

func (r *forgeRepository) ListDeliveriesByState(ctx context.Context, state types.DeliveryState, limit int) ([]*model.WebhookDelivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.filterDeliveries(func(d *model.WebhookDelivery) bool {
		return d.State == state
	}, limit), nil
}

func (r *forgeRepository) filterDeliveries(match func(*model.WebhookDelivery) bool, limit int) []*model.WebhookDelivery {
	var deliveries []*model.WebhookDelivery
	for _, d := range r.deliveries {
		if match(d) {
			cpy := *d
			deliveries = append(deliveries, &cpy)
		}
	}
	sort.Slice(deliveries, func(i, j int) bool {
		if deliveries[i].EventID != deliveries[j].EventID {
			return deliveries[i].EventID < deliveries[j].EventID
		}
		return deliveries[i].Plugin < deliveries[j].Plugin
	})
	if limit > 0 && len(deliveries) > limit {
		deliveries = deliveries[:limit]
	}
	return deliveries
}
