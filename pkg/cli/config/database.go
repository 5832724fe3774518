package config

import (
	"log/slog"

	"github.com/soloforge/soloforge/pkg/domain/interfaces"
	"github.com/soloforge/soloforge/pkg/repository/memory"
	"github.com/soloforge/soloforge/pkg/repository/sqlite"
	"github.com/urfave/cli/v3"
)

// Database selects the forge metadata store. An empty path keeps everything
// in memory, which is only useful for local experiments.
type Database struct {
	path string
}

func (x *Database) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "db-path",
			Usage:       "Path to SQLite database file (empty for in-memory store)",
			Category:    "Database",
			Sources:     cli.EnvVars("SOLOFORGE_DB_PATH"),
			Destination: &x.path,
		},
	}
}

func (x *Database) Path() string {
	return x.path
}

// NewRepository opens the store. The returned closer is nil for the
// in-memory store.
func (x *Database) NewRepository() (interfaces.ForgeRepository, *sqlite.DB, error) {
	if x.path == "" {
		return memory.New(), nil, nil
	}
	return sqlite.New(x.path)
}

func (x *Database) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("path", x.path),
	)
}
