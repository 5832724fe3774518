package usecase

import (
	"context"
	"log/slog"

	"github.com/soloforge/soloforge/pkg/domain/model"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/utils/logging"
)

// RegisterPlugin registers or updates a plugin endpoint. Owner only: the
// registered endpoint receives repository activity.
func (x *UseCase) RegisterPlugin(ctx context.Context, actor types.Username, plugin *model.PluginRegistration) error {
	if err := x.requireOwner(actor); err != nil {
		return err
	}
	if err := plugin.Validate(); err != nil {
		return err
	}
	if plugin.Health == "" {
		plugin.Health = types.PluginHealthHealthy
	}
	if plugin.CreatedAt.IsZero() {
		plugin.CreatedAt = logging.CtxTime(ctx)
	}

	if err := x.clients.ForgeRepository().SavePlugin(ctx, plugin); err != nil {
		return err
	}
	logging.From(ctx).Info("plugin registered",
		slog.Any("name", plugin.Name),
		slog.Any("type", plugin.Type),
		slog.String("endpoint", plugin.Endpoint),
	)
	return nil
}

func (x *UseCase) ListPlugins(ctx context.Context, actor types.Username) ([]*model.PluginRegistration, error) {
	if err := x.requireOwner(actor); err != nil {
		return nil, err
	}
	return x.clients.ForgeRepository().ListPlugins(ctx)
}

func (x *UseCase) DeletePlugin(ctx context.Context, actor types.Username, name types.PluginName) error {
	if err := x.requireOwner(actor); err != nil {
		return err
	}
	return x.clients.ForgeRepository().DeletePlugin(ctx, name)
}

// ListDeadLetters returns deliveries that exhausted their retries, for
// operator inspection.
func (x *UseCase) ListDeadLetters(ctx context.Context, actor types.Username, limit int) ([]*model.WebhookDelivery, error) {
	if err := x.requireOwner(actor); err != nil {
		return nil, err
	}
	return x.clients.ForgeRepository().ListDeliveriesByState(ctx, types.DeliveryStateDeadLettered, limit)
}
