package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Togather-Foundation/recipes/internal/api/handlers"
	"github.com/Togather-Foundation/recipes/internal/api/middleware"
	"github.com/Togather-Foundation/recipes/internal/auth"
	"github.com/Togather-Foundation/recipes/internal/metrics"
)

// Deps are the services the HTTP surface drives. Batches may be nil when the
// process cannot enqueue River jobs.
type Deps struct {
	Importer   handlers.Importer
	Batches    handlers.BatchEnqueuer
	Jobs       handlers.JobReader
	Reconciler handlers.Reconciler
	Reviewer   handlers.Reviewer
	Health     *handlers.HealthChecker
	JWT        *auth.JWTManager
	Build      BuildInfo
}

func NewRouter(deps Deps, env string, logger zerolog.Logger) http.Handler {
	importHandler := handlers.NewImportHandler(deps.Importer, deps.Batches, deps.Jobs, env)
	reconcileHandler := handlers.NewReconcileHandler(deps.Reconciler, env)
	reviewHandler := handlers.NewReviewHandler(deps.Reviewer, env)

	requireIngest := middleware.RequireScope(deps.JWT, auth.ScopeIngest, env)
	small := middleware.RequestSize(middleware.DefaultMaxBodySize)
	large := middleware.RequestSize(middleware.BatchMaxBodySize)

	protect := func(h http.HandlerFunc, size func(http.Handler) http.Handler) http.Handler {
		return requireIngest(size(h))
	}

	mux := http.NewServeMux()
	if deps.Health != nil {
		mux.HandleFunc("GET /healthz", deps.Health.Healthz)
		mux.HandleFunc("GET /readyz", deps.Health.Readyz)
	}
	mux.Handle("GET /version", VersionHandler(deps.Build))
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	mux.Handle("POST /api/v1/import", protect(importHandler.Import, small))
	mux.Handle("POST /api/v1/import-batch", protect(importHandler.ImportBatch, large))
	mux.Handle("GET /api/v1/jobs/{id}", protect(importHandler.GetJob, small))
	mux.Handle("POST /api/v1/reconcile", protect(reconcileHandler.Reconcile, small))
	mux.Handle("POST /api/v1/recipes/{id}/review", protect(reviewHandler.Review, small))

	// metrics reads r.Pattern, which the mux sets on the request it was handed,
	// so it must wrap the mux directly.
	var handler http.Handler = metrics.HTTPMiddleware(mux)
	handler = middleware.Tracing(handler)
	handler = middleware.RequestLogging(logger)(handler)
	handler = middleware.CorrelationID(logger)(handler)
	return handler
}
