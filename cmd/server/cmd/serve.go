package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Togather-Foundation/recipes/internal/api"
	"github.com/Togather-Foundation/recipes/internal/api/handlers"
	"github.com/Togather-Foundation/recipes/internal/auth"
	"github.com/Togather-Foundation/recipes/internal/config"
	"github.com/Togather-Foundation/recipes/internal/jobs"
	"github.com/Togather-Foundation/recipes/internal/metrics"
	"github.com/Togather-Foundation/recipes/internal/telemetry"
)

// serveOptions override the server address from config.
type serveOptions struct {
	host string
	port int
}

func newServeCommand(opts *globalOptions) *cobra.Command {
	so := serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the recipes HTTP server",
		Long: `Start the HTTP server and the River job workers.

The server will:
- Load configuration from the YAML file (--config) and environment variables
- Start River workers for batch imports and periodic maintenance
- Serve the import, batch, job, reconcile and review endpoints
- Handle graceful shutdown on SIGINT/SIGTERM

Examples:
  # Start with configuration from env vars
  server serve

  # Start on a specific host and port
  server serve --host 127.0.0.1 --port 9090

  # Start with a config file and debug logging
  server serve --config /etc/togather/recipes.yaml --log-level debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts, so)
		},
	}
	cmd.Flags().StringVar(&so.host, "host", "", "server host address (default: 0.0.0.0)")
	cmd.Flags().IntVar(&so.port, "port", 0, "server port (default: 8080)")
	return cmd
}

func runServe(cmd *cobra.Command, opts *globalOptions, so serveOptions) error {
	cfg, err := loadConfig(opts, true)
	if err != nil {
		return err
	}
	if so.host != "" {
		cfg.Server.Host = so.host
	}
	if so.port != 0 {
		cfg.Server.Port = so.port
	}

	logger := config.NewLogger(cfg.Logging)
	logger.Info().Str("version", Version).Str("environment", cfg.Environment).Msg("starting recipes server")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error().Err(err).Msg("tracing shutdown error")
		}
	}()

	metrics.Init(Version, GitCommit, BuildDate)

	startCtx, startCancel := context.WithTimeout(ctx, 10*time.Second)
	a, err := newApp(startCtx, cfg, logger)
	startCancel()
	if err != nil {
		return err
	}
	defer a.Close()

	collectorCtx, collectorCancel := context.WithCancel(ctx)
	defer collectorCancel()
	go metrics.NewDBCollector(a.pool).Run(collectorCtx, 15*time.Second)

	riverClient, err := newRiverClient(a)
	if err != nil {
		return fmt.Errorf("river client: %w", err)
	}
	if cfg.Jobs.Enabled {
		// Shutdown is driven by stopRiver, not by the signal context.
		if err := riverClient.Start(context.WithoutCancel(ctx)); err != nil {
			return fmt.Errorf("river workers failed to start: %w", err)
		}
		logger.Info().Msg("river workers started")
		// In-flight imports run out their per-URL ceiling before the pool closes.
		defer stopRiver(riverClient, cfg.Ingest.URLTimeout+15*time.Second, logger)
	} else {
		logger.Warn().Msg("jobs disabled; batches are queued but not worked by this process")
	}

	health := handlers.NewHealthChecker(Version,
		handlers.Check{Name: "database", Required: true, Probe: func(ctx context.Context) error { return a.pool.Ping(ctx) }},
		handlers.Check{Name: "fetch_provider", Probe: a.fetcher.Ping},
	)

	router := api.NewRouter(api.Deps{
		Importer:   a.orchestrator,
		Batches:    jobs.NewBatchEnqueuer(a.batches, riverClient),
		Jobs:       a.repo.Jobs(),
		Reconciler: a.reconciler,
		Reviewer:   a.recipes,
		Health:     health,
		JWT:        auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.Issuer),
		Build:      api.BuildInfo{Version: Version, GitCommit: GitCommit, BuildDate: BuildDate},
	}, cfg.Environment, logger)

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		// A single import may run for the whole per-URL ceiling.
		WriteTimeout:   cfg.Ingest.URLTimeout + 15*time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newRiverClient builds a working client when jobs are enabled and an
// insert-only one otherwise.
func newRiverClient(a *app) (*river.Client[pgx.Tx], error) {
	riverLogger := a.slog.With("component", "river")
	if !a.cfg.Jobs.Enabled {
		return jobs.NewInsertOnlyClient(a.pool, riverLogger)
	}
	workers := jobs.NewWorkers(jobs.WorkerDeps{
		Batch:      a.batches,
		Reconciler: a.reconciler,
		Recipes:    a.recipes,
	})
	return jobs.NewClient(a.pool, workers, riverLogger,
		jobs.FailExhaustedBatches(a.repo.Jobs(), riverLogger),
		[]rivertype.Hook{metrics.NewRiverMetricsHook()},
		jobs.NewPeriodicJobs(a.cfg.Jobs.ReconcileInterval, a.cfg.Jobs.VisibilityInterval),
	)
}

type riverStopper interface {
	StopAndCancel(ctx context.Context) error
}

// stopRiver cancels running jobs' contexts so batches stop dispatching new
// URLs, then waits for them to return.
func stopRiver(client riverStopper, timeout time.Duration, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.StopAndCancel(ctx); err != nil {
		logger.Error().Err(err).Msg("river workers shutdown error")
		return
	}
	logger.Info().Msg("river workers stopped")
}
