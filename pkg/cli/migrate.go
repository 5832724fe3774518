package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/soloforge/soloforge/pkg/cli/config"
	"github.com/soloforge/soloforge/pkg/repository/sqlite"
	"github.com/soloforge/soloforge/pkg/utils/logging"
	"github.com/soloforge/soloforge/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

func migrateCommand() *cli.Command {
	var database config.Database

	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply database migrations and exit",
		Flags: database.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			if database.Path() == "" {
				return goerr.New("db-path is required for migrate")
			}

			db, err := sqlite.NewDB(database.Path())
			if err != nil {
				return err
			}
			defer safe.Close(db)

			if err := db.Migrate(); err != nil {
				return err
			}

			logging.Default().Info("migrations applied", "path", database.Path())
			return nil
		},
	}
}
