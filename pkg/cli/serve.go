package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gots/slice"
	"github.com/soloforge/soloforge/pkg/cli/config"
	"github.com/soloforge/soloforge/pkg/controller/server"
	"github.com/soloforge/soloforge/pkg/dispatcher"
	"github.com/soloforge/soloforge/pkg/infra"
	"github.com/soloforge/soloforge/pkg/metrics"
	"github.com/soloforge/soloforge/pkg/usecase"
	"github.com/soloforge/soloforge/pkg/utils/logging"
	"github.com/soloforge/soloforge/pkg/utils/safe"

	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var (
		addr string

		owner       config.Owner
		database    config.Database
		objectStore config.ObjectStore
		webhooks    config.Dispatcher
		policy      config.Policy
		bigQuery    config.BigQuery
		sentry      config.Sentry
	)
	serveFlags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Binding address",
			Value:       "127.0.0.1:8000",
			Sources:     cli.EnvVars("SOLOFORGE_ADDR"),
			Destination: &addr,
		},
	}

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Server mode",
		Flags: slice.Flatten(
			serveFlags,
			owner.Flags(),
			database.Flags(),
			objectStore.Flags(),
			webhooks.Flags(),
			policy.Flags(),
			bigQuery.Flags(),
			sentry.Flags(),
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			logging.Default().Info("starting serve",
				slog.Any("Addr", addr),
				slog.Any("Owner", owner),
				slog.Any("Database", database),
				slog.Any("ObjectStore", objectStore),
				slog.Any("Webhooks", webhooks),
				slog.Any("Policy", policy),
				slog.Any("BigQuery", bigQuery),
				slog.Any("Sentry", sentry),
			)

			if err := sentry.Configure(ctx); err != nil {
				return err
			}

			forgeRepo, db, err := database.NewRepository()
			if err != nil {
				return err
			}
			if db != nil {
				defer safe.Close(db)
			}

			store, err := objectStore.NewStore(ctx)
			if err != nil {
				return err
			}

			infraOptions := []infra.Option{
				infra.WithForgeRepository(forgeRepo),
				infra.WithObjectStore(store),
			}

			if policyClient, err := policy.NewClient(); err != nil {
				return err
			} else if policyClient != nil {
				infraOptions = append(infraOptions, infra.WithPolicyClient(policyClient))
			}

			if bqClient, err := bigQuery.NewClient(ctx); err != nil {
				return err
			} else if bqClient != nil {
				infraOptions = append(infraOptions, infra.WithEventArchive(bqClient))
			}

			eventMetrics := metrics.New()
			infraOptions = append(infraOptions, infra.WithEventMetrics(eventMetrics))

			clients := infra.New(infraOptions...)

			uc := usecase.New(clients, usecase.WithOwner(owner.Model()))
			s := server.New(uc, server.WithMetricsHandler(eventMetrics.Handler()))

			dispatchCtx, stopDispatch := context.WithCancel(ctx)
			defer stopDispatch()
			dispatchCfg := webhooks.Config()
			dispatchCfg.Metrics = eventMetrics
			dsp := dispatcher.New(forgeRepo, clients.EventBus(), clients.WebhookClient(), dispatchCfg)
			dispatchDone := make(chan struct{})
			go func() {
				defer close(dispatchDone)
				if err := dsp.Run(dispatchCtx); err != nil {
					logging.Default().Error("webhook dispatcher stopped", "error", err)
				}
			}()

			serverErr := make(chan error, 1)
			httpServer := &http.Server{
				Addr:    addr,
				Handler: s.Mux(),

				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      30 * time.Second,
			}

			go func() {
				logging.Default().Info("starting http server", "addr", addr)
				if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
					serverErr <- goerr.Wrap(err, "failed to listen and serve")
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-serverErr:
				return err

			case sig := <-quit:
				logging.Default().Info("shutting down server", "signal", sig)

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server")
				}

				stopDispatch()
				select {
				case <-dispatchDone:
				case <-shutdownCtx.Done():
					logging.Default().Warn("webhook dispatcher did not drain in time")
				}
			}

			return nil
		},
	}
}
