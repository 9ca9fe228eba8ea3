package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/Togather-Foundation/recipes/internal/config"
	"github.com/Togather-Foundation/recipes/internal/domain/recipes"
	"github.com/Togather-Foundation/recipes/internal/extractor"
	"github.com/Togather-Foundation/recipes/internal/fetcher"
	"github.com/Togather-Foundation/recipes/internal/ingest"
	"github.com/Togather-Foundation/recipes/internal/jobs"
	"github.com/Togather-Foundation/recipes/internal/qa"
	"github.com/Togather-Foundation/recipes/internal/reconcile"
	"github.com/Togather-Foundation/recipes/internal/storage/postgres"
)

// app wires the pipeline from configuration. serve, import and reconcile all
// build the same graph.
type app struct {
	cfg    config.Config
	logger zerolog.Logger
	slog   *slog.Logger

	pool         *pgxpool.Pool
	repo         *postgres.Repository
	fetcher      *fetcher.Client
	recipes      *recipes.Service
	orchestrator *ingest.Orchestrator
	batches      *jobs.BatchManager
	reconciler   *reconcile.Reconciler
}

func newApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	pool, err := openPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	repo, err := postgres.NewRepository(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}

	slogger := config.NewSlogLogger(cfg.Logging)

	fetchClient := fetcher.NewClient(cfg.Fetcher.BaseURL,
		fetcher.WithHTTPClient(&http.Client{Timeout: cfg.Fetcher.Timeout}),
		fetcher.WithAPIKey(cfg.Fetcher.APIKey),
		fetcher.WithUserAgent(cfg.Fetcher.UserAgent),
		fetcher.WithRateLimit(cfg.Fetcher.RateLimit, cfg.Fetcher.Burst),
		fetcher.WithRobots(cfg.Fetcher.RespectRobots),
		fetcher.WithLogger(logger.With().Str("component", "fetcher").Logger()),
	)

	completer := extractor.NewChatClient(extractor.ChatConfig{
		Endpoint:    cfg.Extractor.Endpoint,
		Model:       cfg.Extractor.Model,
		APIKey:      cfg.Extractor.APIKey,
		Temperature: cfg.Extractor.Temperature,
		Timeout:     cfg.Extractor.Timeout,
	})
	ext := extractor.New(completer, extractor.Config{
		MaxAttempts:     cfg.Extractor.MaxAttempts,
		BaseDelay:       cfg.Extractor.BaseDelay,
		MaxContentChars: cfg.Extractor.MaxContentChars,
	}, logger.With().Str("component", "extractor").Logger())

	orchestrator := ingest.NewOrchestrator(fetchClient, ext, qa.NewClassifier(qa.Config{}), repo.Recipes(), ingest.Config{
		FetchAttempts:  cfg.Ingest.FetchAttempts,
		FetchBaseDelay: cfg.Ingest.FetchBaseDelay,
		URLTimeout:     cfg.Ingest.URLTimeout,
		DefaultPublish: cfg.Ingest.DefaultPublish,
	}, logger.With().Str("component", "ingest").Logger())

	return &app{
		cfg:          cfg,
		logger:       logger,
		slog:         slogger,
		pool:         pool,
		repo:         repo,
		fetcher:      fetchClient,
		recipes:      recipes.NewService(repo.Recipes(), cfg.Ingest.DefaultPublish),
		orchestrator: orchestrator,
		batches:      jobs.NewBatchManager(orchestrator, fetchClient, repo.Jobs(), cfg.Batch.Workers, logger),
		reconciler:   reconcile.New(repo.Owners(), slogger.With("component", "reconcile")),
	}, nil
}

func (a *app) Close() {
	a.pool.Close()
}

func openPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConnections)
	}
	if cfg.MinConnections > 0 {
		poolCfg.MinConns = int32(cfg.MinConnections)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}
