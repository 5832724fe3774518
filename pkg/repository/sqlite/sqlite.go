package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/soloforge/soloforge/pkg/domain/interfaces"
	"github.com/soloforge/soloforge/pkg/domain/model"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/repository"
)

var _ interfaces.ForgeRepository = (*forgeRepository)(nil)

type forgeRepository struct {
	db *DB
}

// New opens the database at path, applies migrations and returns the
// repository.
func New(path string) (interfaces.ForgeRepository, *DB, error) {
	db, err := NewDB(path)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return &forgeRepository{db: db}, db, nil
}

// NewWithDB wraps an already-opened database, used by tests.
func NewWithDB(db *DB) interfaces.ForgeRepository {
	return &forgeRepository{db: db}
}

// Repository operations

func (r *forgeRepository) CreateRepository(ctx context.Context, repo *model.Repository) error {
	const query = `
		INSERT INTO repositories (name, description, visibility, default_branch, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := r.db.writer.ExecContext(ctx, query,
		repo.Name, repo.Description, repo.Visibility, repo.DefaultBranch, repo.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return goerr.Wrap(repository.ErrAlreadyExists, "repository already exists",
				goerr.V("name", repo.Name),
			)
		}
		return goerr.Wrap(err, "inserting repository", goerr.V("name", repo.Name))
	}
	return nil
}

func (r *forgeRepository) GetRepository(ctx context.Context, name types.RepoName) (*model.Repository, error) {
	const query = `
		SELECT name, description, visibility, default_branch, created_at
		FROM repositories WHERE name = ?
	`
	var repo model.Repository
	err := r.db.reader.QueryRowContext(ctx, query, name).Scan(
		&repo.Name, &repo.Description, &repo.Visibility, &repo.DefaultBranch, &repo.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(repository.ErrNotFound, "repository not found",
			goerr.V("name", name),
		)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "querying repository", goerr.V("name", name))
	}
	return &repo, nil
}

func (r *forgeRepository) ListRepositories(ctx context.Context) ([]*model.Repository, error) {
	const query = `
		SELECT name, description, visibility, default_branch, created_at
		FROM repositories ORDER BY name
	`
	rows, err := r.db.reader.QueryContext(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "querying repositories")
	}
	defer func() { _ = rows.Close() }()

	var repos []*model.Repository
	for rows.Next() {
		var repo model.Repository
		if err := rows.Scan(&repo.Name, &repo.Description, &repo.Visibility, &repo.DefaultBranch, &repo.CreatedAt); err != nil {
			return nil, goerr.Wrap(err, "scanning repository row")
		}
		repos = append(repos, &repo)
	}
	return repos, rows.Err()
}

func (r *forgeRepository) DeleteRepository(ctx context.Context, name types.RepoName) error {
	res, err := r.db.writer.ExecContext(ctx, `DELETE FROM repositories WHERE name = ?`, name)
	if err != nil {
		return goerr.Wrap(err, "deleting repository", goerr.V("name", name))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return goerr.Wrap(repository.ErrNotFound, "repository not found",
			goerr.V("name", name),
		)
	}

	// Child rows are keyed by repo name; events are kept for audit.
	for _, query := range []string{
		`DELETE FROM refs WHERE repo = ?`,
		`DELETE FROM grants WHERE repo = ?`,
		`DELETE FROM pull_requests WHERE repo = ?`,
	} {
		if _, err := r.db.writer.ExecContext(ctx, query, name); err != nil {
			return goerr.Wrap(err, "deleting repository children", goerr.V("name", name))
		}
	}
	return nil
}

// Collaborator operations

func (r *forgeRepository) SaveCollaborator(ctx context.Context, collab *model.Collaborator) error {
	keys, err := json.Marshal(collab.PublicKeys)
	if err != nil {
		return goerr.Wrap(err, "marshaling public keys")
	}

	const query = `
		INSERT INTO collaborators (username, email, public_keys, token_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			email = excluded.email,
			public_keys = excluded.public_keys,
			token_hash = excluded.token_hash
	`
	_, err = r.db.writer.ExecContext(ctx, query,
		collab.Username, collab.Email, string(keys), collab.TokenHash, collab.CreatedAt.UTC(),
	)
	if err != nil {
		return goerr.Wrap(err, "upserting collaborator", goerr.V("username", collab.Username))
	}
	return nil
}

func (r *forgeRepository) GetCollaborator(ctx context.Context, username types.Username) (*model.Collaborator, error) {
	const query = `
		SELECT username, email, public_keys, token_hash, created_at
		FROM collaborators WHERE username = ?
	`
	var collab model.Collaborator
	var keys string
	err := r.db.reader.QueryRowContext(ctx, query, username).Scan(
		&collab.Username, &collab.Email, &keys, &collab.TokenHash, &collab.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(repository.ErrNotFound, "collaborator not found",
			goerr.V("username", username),
		)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "querying collaborator", goerr.V("username", username))
	}
	if err := json.Unmarshal([]byte(keys), &collab.PublicKeys); err != nil {
		return nil, goerr.Wrap(err, "unmarshaling public keys", goerr.V("username", username))
	}
	return &collab, nil
}

func (r *forgeRepository) ListCollaborators(ctx context.Context) ([]*model.Collaborator, error) {
	const query = `
		SELECT username, email, public_keys, token_hash, created_at
		FROM collaborators ORDER BY username
	`
	rows, err := r.db.reader.QueryContext(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "querying collaborators")
	}
	defer func() { _ = rows.Close() }()

	var collabs []*model.Collaborator
	for rows.Next() {
		var collab model.Collaborator
		var keys string
		if err := rows.Scan(&collab.Username, &collab.Email, &keys, &collab.TokenHash, &collab.CreatedAt); err != nil {
			return nil, goerr.Wrap(err, "scanning collaborator row")
		}
		if err := json.Unmarshal([]byte(keys), &collab.PublicKeys); err != nil {
			return nil, goerr.Wrap(err, "unmarshaling public keys")
		}
		collabs = append(collabs, &collab)
	}
	return collabs, rows.Err()
}

func (r *forgeRepository) DeleteCollaborator(ctx context.Context, username types.Username) error {
	res, err := r.db.writer.ExecContext(ctx, `DELETE FROM collaborators WHERE username = ?`, username)
	if err != nil {
		return goerr.Wrap(err, "deleting collaborator", goerr.V("username", username))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return goerr.Wrap(repository.ErrNotFound, "collaborator not found",
			goerr.V("username", username),
		)
	}
	if _, err := r.db.writer.ExecContext(ctx, `DELETE FROM grants WHERE username = ?`, username); err != nil {
		return goerr.Wrap(err, "deleting collaborator grants", goerr.V("username", username))
	}
	return nil
}

// Grant operations

func (r *forgeRepository) SetGrant(ctx context.Context, grant *model.Grant) error {
	const query = `
		INSERT INTO grants (username, repo, permission)
		VALUES (?, ?, ?)
		ON CONFLICT(username, repo) DO UPDATE SET permission = excluded.permission
	`
	_, err := r.db.writer.ExecContext(ctx, query, grant.Username, grant.Repo, grant.Permission.String())
	if err != nil {
		return goerr.Wrap(err, "upserting grant",
			goerr.V("username", grant.Username),
			goerr.V("repo", grant.Repo),
		)
	}
	return nil
}

func (r *forgeRepository) GetGrant(ctx context.Context, username types.Username, repo types.RepoName) (*model.Grant, error) {
	const query = `SELECT username, repo, permission FROM grants WHERE username = ? AND repo = ?`

	var grant model.Grant
	var perm string
	err := r.db.reader.QueryRowContext(ctx, query, username, repo).Scan(&grant.Username, &grant.Repo, &perm)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(repository.ErrNotFound, "grant not found",
			goerr.V("username", username),
			goerr.V("repo", repo),
		)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "querying grant",
			goerr.V("username", username),
			goerr.V("repo", repo),
		)
	}

	grant.Permission, err = types.ParsePermission(perm)
	if err != nil {
		return nil, goerr.Wrap(err, "parsing stored permission", goerr.V("permission", perm))
	}
	return &grant, nil
}

func (r *forgeRepository) ListGrants(ctx context.Context, repo types.RepoName) ([]*model.Grant, error) {
	const query = `SELECT username, repo, permission FROM grants WHERE repo = ? ORDER BY username`

	rows, err := r.db.reader.QueryContext(ctx, query, repo)
	if err != nil {
		return nil, goerr.Wrap(err, "querying grants", goerr.V("repo", repo))
	}
	defer func() { _ = rows.Close() }()

	var grants []*model.Grant
	for rows.Next() {
		var grant model.Grant
		var perm string
		if err := rows.Scan(&grant.Username, &grant.Repo, &perm); err != nil {
			return nil, goerr.Wrap(err, "scanning grant row")
		}
		if grant.Permission, err = types.ParsePermission(perm); err != nil {
			return nil, goerr.Wrap(err, "parsing stored permission", goerr.V("permission", perm))
		}
		grants = append(grants, &grant)
	}
	return grants, rows.Err()
}

func (r *forgeRepository) DeleteGrant(ctx context.Context, username types.Username, repo types.RepoName) error {
	res, err := r.db.writer.ExecContext(ctx, `DELETE FROM grants WHERE username = ? AND repo = ?`, username, repo)
	if err != nil {
		return goerr.Wrap(err, "deleting grant",
			goerr.V("username", username),
			goerr.V("repo", repo),
		)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return goerr.Wrap(repository.ErrNotFound, "grant not found",
			goerr.V("username", username),
			goerr.V("repo", repo),
		)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
