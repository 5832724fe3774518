// Package sqlite is the durable ForgeRepository backed by a local SQLite
// database. A single writer connection serializes mutations, which is what
// makes the reference compare-and-swap linearizable per (repository, name).
package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite"
)

// DB holds dual reader/writer connections with WAL mode enabled. The writer
// is limited to one connection to avoid "database is locked" errors; readers
// pool up to 4 connections.
type DB struct {
	writer *sql.DB
	reader *sql.DB
}

// NewDB opens the database with WAL journaling, busy timeout, synchronous
// NORMAL and foreign keys enabled.
func NewDB(path string) (*DB, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		path,
	)

	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "opening writer connection", goerr.V("path", path))
	}
	writer.SetMaxOpenConns(1)

	if err := writer.Ping(); err != nil {
		_ = writer.Close()
		return nil, goerr.Wrap(err, "pinging writer connection", goerr.V("path", path))
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = writer.Close()
		return nil, goerr.Wrap(err, "opening reader connection", goerr.V("path", path))
	}
	reader.SetMaxOpenConns(4)

	if err := reader.Ping(); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		return nil, goerr.Wrap(err, "pinging reader connection", goerr.V("path", path))
	}

	return &DB{writer: writer, reader: reader}, nil
}

// Close closes both connections and returns the first error encountered.
func (db *DB) Close() error {
	var firstErr error
	if err := db.reader.Close(); err != nil {
		firstErr = goerr.Wrap(err, "closing reader connection")
	}
	if err := db.writer.Close(); err != nil && firstErr == nil {
		firstErr = goerr.Wrap(err, "closing writer connection")
	}
	return firstErr
}
