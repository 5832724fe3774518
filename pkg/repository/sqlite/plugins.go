package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/soloforge/soloforge/pkg/domain/model"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/repository"
)

// Plugin operations

func (r *forgeRepository) SavePlugin(ctx context.Context, plugin *model.PluginRegistration) error {
	kinds, err := json.Marshal(plugin.Kinds)
	if err != nil {
		return goerr.Wrap(err, "marshaling subscription kinds")
	}

	const query = `
		INSERT INTO plugins (name, type, endpoint, secret, kinds, health, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			type = excluded.type,
			endpoint = excluded.endpoint,
			secret = excluded.secret,
			kinds = excluded.kinds,
			health = excluded.health
	`
	_, err = r.db.writer.ExecContext(ctx, query,
		plugin.Name, plugin.Type, plugin.Endpoint, string(plugin.Secret),
		string(kinds), plugin.Health, plugin.CreatedAt.UTC(),
	)
	if err != nil {
		return goerr.Wrap(err, "upserting plugin", goerr.V("name", plugin.Name))
	}
	return nil
}

func (r *forgeRepository) GetPlugin(ctx context.Context, name types.PluginName) (*model.PluginRegistration, error) {
	const query = `
		SELECT name, type, endpoint, secret, kinds, health, created_at
		FROM plugins WHERE name = ?
	`
	plugin, err := scanPlugin(r.db.reader.QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(repository.ErrNotFound, "plugin not found",
			goerr.V("name", name),
		)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "querying plugin", goerr.V("name", name))
	}
	return plugin, nil
}

func (r *forgeRepository) ListPlugins(ctx context.Context) ([]*model.PluginRegistration, error) {
	const query = `
		SELECT name, type, endpoint, secret, kinds, health, created_at
		FROM plugins ORDER BY name
	`
	rows, err := r.db.reader.QueryContext(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "querying plugins")
	}
	defer func() { _ = rows.Close() }()

	var plugins []*model.PluginRegistration
	for rows.Next() {
		plugin, err := scanPlugin(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "scanning plugin row")
		}
		plugins = append(plugins, plugin)
	}
	return plugins, rows.Err()
}

func (r *forgeRepository) DeletePlugin(ctx context.Context, name types.PluginName) error {
	res, err := r.db.writer.ExecContext(ctx, `DELETE FROM plugins WHERE name = ?`, name)
	if err != nil {
		return goerr.Wrap(err, "deleting plugin", goerr.V("name", name))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return goerr.Wrap(repository.ErrNotFound, "plugin not found",
			goerr.V("name", name),
		)
	}
	return nil
}

func (r *forgeRepository) UpdatePluginHealth(ctx context.Context, name types.PluginName, health types.PluginHealth) error {
	res, err := r.db.writer.ExecContext(ctx, `UPDATE plugins SET health = ? WHERE name = ?`, health, name)
	if err != nil {
		return goerr.Wrap(err, "updating plugin health", goerr.V("name", name))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return goerr.Wrap(repository.ErrNotFound, "plugin not found",
			goerr.V("name", name),
		)
	}
	return nil
}

// Webhook delivery operations

func (r *forgeRepository) SaveDelivery(ctx context.Context, delivery *model.WebhookDelivery) error {
	const query = `
		INSERT INTO deliveries (event_id, repo, plugin, state, attempts, last_error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id, repo, plugin) DO UPDATE SET
			state = excluded.state,
			attempts = excluded.attempts,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`
	_, err := r.db.writer.ExecContext(ctx, query,
		delivery.EventID, delivery.Repo, delivery.Plugin, delivery.State,
		delivery.Attempts, delivery.LastError, delivery.UpdatedAt.UTC(),
	)
	if err != nil {
		return goerr.Wrap(err, "upserting delivery",
			goerr.V("event_id", delivery.EventID),
			goerr.V("plugin", delivery.Plugin),
		)
	}
	return nil
}

func (r *forgeRepository) ListDeliveries(ctx context.Context, plugin types.PluginName, limit int) ([]*model.WebhookDelivery, error) {
	const query = `
		SELECT event_id, repo, plugin, state, attempts, last_error, updated_at
		FROM deliveries
		WHERE (? = '' OR plugin = ?)
		ORDER BY event_id, plugin
		LIMIT ?
	`
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.reader.QueryContext(ctx, query, plugin, plugin, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "querying deliveries", goerr.V("plugin", plugin))
	}
	defer func() { _ = rows.Close() }()

	return scanDeliveries(rows)
}

func (r *forgeRepository) ListDeliveriesByState(ctx context.Context, state types.DeliveryState, limit int) ([]*model.WebhookDelivery, error) {
	const query = `
		SELECT event_id, repo, plugin, state, attempts, last_error, updated_at
		FROM deliveries
		WHERE state = ?
		ORDER BY event_id, plugin
		LIMIT ?
	`
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.reader.QueryContext(ctx, query, state, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "querying deliveries by state", goerr.V("state", state))
	}
	defer func() { _ = rows.Close() }()

	return scanDeliveries(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlugin(row rowScanner) (*model.PluginRegistration, error) {
	var plugin model.PluginRegistration
	var secret, kinds string
	if err := row.Scan(&plugin.Name, &plugin.Type, &plugin.Endpoint, &secret, &kinds, &plugin.Health, &plugin.CreatedAt); err != nil {
		return nil, err
	}
	plugin.Secret = types.WebhookSecret(secret)
	if err := json.Unmarshal([]byte(kinds), &plugin.Kinds); err != nil {
		return nil, goerr.Wrap(err, "unmarshaling subscription kinds")
	}
	return &plugin, nil
}

func scanDeliveries(rows *sql.Rows) ([]*model.WebhookDelivery, error) {
	var deliveries []*model.WebhookDelivery
	for rows.Next() {
		var d model.WebhookDelivery
		if err := rows.Scan(&d.EventID, &d.Repo, &d.Plugin, &d.State, &d.Attempts, &d.LastError, &d.UpdatedAt); err != nil {
			return nil, goerr.Wrap(err, "scanning delivery row")
		}
		deliveries = append(deliveries, &d)
	}
	return deliveries, rows.Err()
}
