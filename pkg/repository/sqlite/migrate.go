package sqlite

import (
	"embed"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/m-mizutani/goerr/v2"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies all pending migrations on the writer connection. Safe to
// call on every startup; already-applied migrations are skipped.
func (db *DB) Migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return goerr.Wrap(err, "creating migration source")
	}

	dbDriver, err := migratesqlite.WithInstance(db.writer, &migratesqlite.Config{})
	if err != nil {
		return goerr.Wrap(err, "creating migration driver")
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return goerr.Wrap(err, "creating migrator")
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return goerr.Wrap(err, "running migrations")
	}

	return nil
}
