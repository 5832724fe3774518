package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/soloforge/soloforge/pkg/domain/model"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/repository"
	"github.com/soloforge/soloforge/pkg/utils/safe"
)

// AppendEvent allocates the next per-repository event ID and the global
// feed sequence in one transaction, so the stream has no gaps even under
// concurrent pushes.
func (r *forgeRepository) AppendEvent(ctx context.Context, ev *model.Event) (*model.Event, error) {
	tx, err := r.db.writer.BeginTx(ctx, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "beginning event transaction")
	}
	defer safe.Rollback(tx)

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM repositories WHERE name = ?)`, ev.Repo).Scan(&exists); err != nil {
		return nil, goerr.Wrap(err, "checking repository", goerr.V("repo", ev.Repo))
	}
	if !exists {
		return nil, goerr.Wrap(repository.ErrNotFound, "repository not found",
			goerr.V("repo", ev.Repo),
		)
	}

	var nextID int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) + 1 FROM events WHERE repo = ?`, ev.Repo).Scan(&nextID); err != nil {
		return nil, goerr.Wrap(err, "allocating event ID", goerr.V("repo", ev.Repo))
	}

	const query = `
		INSERT INTO events (repo, id, kind, payload, occurred_at)
		VALUES (?, ?, ?, ?, ?)
	`
	payload := string(ev.Payload)
	if payload == "" {
		payload = "{}"
	}
	if _, err := tx.ExecContext(ctx, query, ev.Repo, nextID, ev.Kind, payload, ev.OccurredAt.UTC()); err != nil {
		return nil, goerr.Wrap(err, "inserting event",
			goerr.V("repo", ev.Repo),
			goerr.V("kind", ev.Kind),
		)
	}

	if err := tx.Commit(); err != nil {
		return nil, goerr.Wrap(err, "committing event transaction")
	}

	stored := *ev
	stored.ID = types.EventID(nextID)
	stored.Payload = []byte(payload)
	return &stored, nil
}

func (r *forgeRepository) ListEvents(ctx context.Context, repo types.RepoName, from types.EventID, limit int) ([]*model.Event, error) {
	var exists bool
	if err := r.db.reader.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM repositories WHERE name = ?)`, repo).Scan(&exists); err != nil {
		return nil, goerr.Wrap(err, "checking repository", goerr.V("repo", repo))
	}
	if !exists {
		return nil, goerr.Wrap(repository.ErrNotFound, "repository not found",
			goerr.V("repo", repo),
		)
	}

	const query = `
		SELECT id, repo, kind, payload, occurred_at
		FROM events
		WHERE repo = ? AND id >= ?
		ORDER BY id
		LIMIT ?
	`
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.reader.QueryContext(ctx, query, repo, from, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "querying events", goerr.V("repo", repo))
	}
	defer func() { _ = rows.Close() }()

	return scanEvents(rows)
}

func (r *forgeRepository) FeedEvents(ctx context.Context, cursor int64, limit int) ([]*model.Event, int64, error) {
	const query = `
		SELECT seq, id, repo, kind, payload, occurred_at
		FROM events
		WHERE seq > ?
		ORDER BY seq
		LIMIT ?
	`
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.reader.QueryContext(ctx, query, cursor, limit)
	if err != nil {
		return nil, cursor, goerr.Wrap(err, "querying event feed")
	}
	defer func() { _ = rows.Close() }()

	var events []*model.Event
	next := cursor
	for rows.Next() {
		var seq int64
		var ev model.Event
		var payload string
		if err := rows.Scan(&seq, &ev.ID, &ev.Repo, &ev.Kind, &payload, &ev.OccurredAt); err != nil {
			return nil, cursor, goerr.Wrap(err, "scanning event feed row")
		}
		ev.Payload = []byte(payload)
		events = append(events, &ev)
		next = seq
	}
	return events, next, rows.Err()
}

func (r *forgeRepository) GetDispatchCursor(ctx context.Context) (int64, error) {
	var cursor int64
	err := r.db.reader.QueryRowContext(ctx, `SELECT cursor FROM dispatch_cursor WHERE id = 1`).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, goerr.Wrap(err, "querying dispatch cursor")
	}
	return cursor, nil
}

func (r *forgeRepository) SetDispatchCursor(ctx context.Context, cursor int64) error {
	if _, err := r.db.writer.ExecContext(ctx, `UPDATE dispatch_cursor SET cursor = ? WHERE id = 1`, cursor); err != nil {
		return goerr.Wrap(err, "updating dispatch cursor")
	}
	return nil
}

func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	var events []*model.Event
	for rows.Next() {
		var ev model.Event
		var payload string
		if err := rows.Scan(&ev.ID, &ev.Repo, &ev.Kind, &payload, &ev.OccurredAt); err != nil {
			return nil, goerr.Wrap(err, "scanning event row")
		}
		ev.Payload = []byte(payload)
		events = append(events, &ev)
	}
	return events, rows.Err()
}
