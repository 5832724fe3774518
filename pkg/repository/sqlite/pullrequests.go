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

// Pull request operations

func (r *forgeRepository) CreatePullRequest(ctx context.Context, pr *model.PullRequest) (int64, error) {
	tx, err := r.db.writer.BeginTx(ctx, nil)
	if err != nil {
		return 0, goerr.Wrap(err, "beginning pull request transaction")
	}
	defer safe.Rollback(tx)

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM repositories WHERE name = ?)`, pr.Repo).Scan(&exists); err != nil {
		return 0, goerr.Wrap(err, "checking repository", goerr.V("repo", pr.Repo))
	}
	if !exists {
		return 0, goerr.Wrap(repository.ErrNotFound, "repository not found",
			goerr.V("repo", pr.Repo),
		)
	}

	var nextID int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) + 1 FROM pull_requests WHERE repo = ?`, pr.Repo).Scan(&nextID); err != nil {
		return 0, goerr.Wrap(err, "allocating pull request ID", goerr.V("repo", pr.Repo))
	}

	const query = `
		INSERT INTO pull_requests (repo, id, from_branch, to_branch, title, description, author, state, merge_method, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		pr.Repo, nextID, pr.FromBranch, pr.ToBranch, pr.Title, pr.Description,
		pr.Author, pr.State, pr.MergeMethod, pr.CreatedAt.UTC(), pr.UpdatedAt.UTC(),
	)
	if err != nil {
		return 0, goerr.Wrap(err, "inserting pull request", goerr.V("repo", pr.Repo))
	}

	if err := tx.Commit(); err != nil {
		return 0, goerr.Wrap(err, "committing pull request transaction")
	}
	return nextID, nil
}

func (r *forgeRepository) GetPullRequest(ctx context.Context, repo types.RepoName, id int64) (*model.PullRequest, error) {
	const query = `
		SELECT repo, id, from_branch, to_branch, title, description, author, state, merge_method, created_at, updated_at
		FROM pull_requests WHERE repo = ? AND id = ?
	`
	var pr model.PullRequest
	err := r.db.reader.QueryRowContext(ctx, query, repo, id).Scan(
		&pr.Repo, &pr.ID, &pr.FromBranch, &pr.ToBranch, &pr.Title, &pr.Description,
		&pr.Author, &pr.State, &pr.MergeMethod, &pr.CreatedAt, &pr.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(repository.ErrNotFound, "pull request not found",
			goerr.V("repo", repo),
			goerr.V("id", id),
		)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "querying pull request",
			goerr.V("repo", repo),
			goerr.V("id", id),
		)
	}
	return &pr, nil
}

func (r *forgeRepository) ListPullRequests(ctx context.Context, repo types.RepoName) ([]*model.PullRequest, error) {
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
		SELECT repo, id, from_branch, to_branch, title, description, author, state, merge_method, created_at, updated_at
		FROM pull_requests WHERE repo = ? ORDER BY id
	`
	rows, err := r.db.reader.QueryContext(ctx, query, repo)
	if err != nil {
		return nil, goerr.Wrap(err, "querying pull requests", goerr.V("repo", repo))
	}
	defer func() { _ = rows.Close() }()

	var prs []*model.PullRequest
	for rows.Next() {
		var pr model.PullRequest
		if err := rows.Scan(&pr.Repo, &pr.ID, &pr.FromBranch, &pr.ToBranch, &pr.Title, &pr.Description,
			&pr.Author, &pr.State, &pr.MergeMethod, &pr.CreatedAt, &pr.UpdatedAt); err != nil {
			return nil, goerr.Wrap(err, "scanning pull request row")
		}
		prs = append(prs, &pr)
	}
	return prs, rows.Err()
}

func (r *forgeRepository) UpdatePullRequest(ctx context.Context, pr *model.PullRequest) error {
	const query = `
		UPDATE pull_requests
		SET title = ?, description = ?, state = ?, merge_method = ?, updated_at = ?
		WHERE repo = ? AND id = ?
	`
	res, err := r.db.writer.ExecContext(ctx, query,
		pr.Title, pr.Description, pr.State, pr.MergeMethod, pr.UpdatedAt.UTC(), pr.Repo, pr.ID,
	)
	if err != nil {
		return goerr.Wrap(err, "updating pull request",
			goerr.V("repo", pr.Repo),
			goerr.V("id", pr.ID),
		)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return goerr.Wrap(repository.ErrNotFound, "pull request not found",
			goerr.V("repo", pr.Repo),
			goerr.V("id", pr.ID),
		)
	}
	return nil
}
