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

// CompareAndSwapRef runs the whole read-compare-write inside one transaction
// on the single writer connection, so the swap is atomic per (repo, name).
func (r *forgeRepository) CompareAndSwapRef(ctx context.Context, repo types.RepoName, name types.RefName, old, new types.ObjectID) error {
	tx, err := r.db.writer.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "beginning ref transaction")
	}
	defer safe.Rollback(tx)

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM repositories WHERE name = ?)`, repo).Scan(&exists); err != nil {
		return goerr.Wrap(err, "checking repository", goerr.V("repo", repo))
	}
	if !exists {
		return goerr.Wrap(repository.ErrNotFound, "repository not found",
			goerr.V("repo", repo),
		)
	}

	current := types.ZeroObjectID
	var target string
	err = tx.QueryRowContext(ctx, `SELECT target FROM refs WHERE repo = ? AND name = ?`, repo, name).Scan(&target)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return goerr.Wrap(err, "querying reference",
			goerr.V("repo", repo),
			goerr.V("name", name),
		)
	default:
		current = types.ObjectID(target)
	}

	expected := old
	if expected.IsZero() {
		expected = types.ZeroObjectID
	}
	if current != expected {
		return goerr.Wrap(types.ErrReferenceConflict, "reference changed concurrently",
			goerr.V("repo", repo),
			goerr.V("name", name),
			goerr.V("expected", expected),
			goerr.V("current", current),
		)
	}

	switch {
	case new.IsZero():
		if _, err := tx.ExecContext(ctx, `DELETE FROM refs WHERE repo = ? AND name = ?`, repo, name); err != nil {
			return goerr.Wrap(err, "deleting reference",
				goerr.V("repo", repo),
				goerr.V("name", name),
			)
		}
	default:
		const query = `
			INSERT INTO refs (repo, name, target, type)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(repo, name) DO UPDATE SET target = excluded.target
		`
		if _, err := tx.ExecContext(ctx, query, repo, name, new, model.RefTypeOf(name)); err != nil {
			return goerr.Wrap(err, "upserting reference",
				goerr.V("repo", repo),
				goerr.V("name", name),
			)
		}
	}

	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "committing ref transaction")
	}
	return nil
}

func (r *forgeRepository) GetRef(ctx context.Context, repo types.RepoName, name types.RefName) (*model.Reference, error) {
	const query = `SELECT repo, name, target, type FROM refs WHERE repo = ? AND name = ?`

	var ref model.Reference
	err := r.db.reader.QueryRowContext(ctx, query, repo, name).Scan(&ref.Repo, &ref.Name, &ref.Target, &ref.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(repository.ErrNotFound, "reference not found",
			goerr.V("repo", repo),
			goerr.V("name", name),
		)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "querying reference",
			goerr.V("repo", repo),
			goerr.V("name", name),
		)
	}
	return &ref, nil
}

func (r *forgeRepository) ListRefs(ctx context.Context, repo types.RepoName) ([]*model.Reference, error) {
	var exists bool
	if err := r.db.reader.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM repositories WHERE name = ?)`, repo).Scan(&exists); err != nil {
		return nil, goerr.Wrap(err, "checking repository", goerr.V("repo", repo))
	}
	if !exists {
		return nil, goerr.Wrap(repository.ErrNotFound, "repository not found",
			goerr.V("repo", repo),
		)
	}

	const query = `SELECT repo, name, target, type FROM refs WHERE repo = ? ORDER BY name`

	rows, err := r.db.reader.QueryContext(ctx, query, repo)
	if err != nil {
		return nil, goerr.Wrap(err, "querying references", goerr.V("repo", repo))
	}
	defer func() { _ = rows.Close() }()

	var refs []*model.Reference
	for rows.Next() {
		var ref model.Reference
		if err := rows.Scan(&ref.Repo, &ref.Name, &ref.Target, &ref.Type); err != nil {
			return nil, goerr.Wrap(err, "scanning reference row")
		}
		refs = append(refs, &ref)
	}
	return refs, rows.Err()
}
