package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"

	"github.com/Togather-Foundation/recipes/internal/metrics"
	"github.com/Togather-Foundation/recipes/internal/reconcile"
)

// BatchImportTimeout bounds one River attempt at a batch. River's default
// one-minute job timeout is far below a realistic batch.
const BatchImportTimeout = 2 * time.Hour

// BatchImportArgs carries the URLs for an IngestionJob created by the HTTP surface.
type BatchImportArgs struct {
	JobID   string   `json:"job_id"`
	URLs    []string `json:"urls"`
	OwnerID *string  `json:"owner_id,omitempty"`
}

func (BatchImportArgs) Kind() string { return JobKindBatchImport }

type BatchImportWorker struct {
	river.WorkerDefaults[BatchImportArgs]
	Manager *BatchManager
}

func (BatchImportWorker) Kind() string { return JobKindBatchImport }

func (BatchImportWorker) Timeout(*river.Job[BatchImportArgs]) time.Duration {
	return BatchImportTimeout
}

func (w BatchImportWorker) Work(ctx context.Context, job *river.Job[BatchImportArgs]) error {
	if w.Manager == nil {
		return fmt.Errorf("batch manager not configured")
	}
	if job == nil {
		return fmt.Errorf("batch import job missing")
	}
	if job.Args.JobID == "" {
		return fmt.Errorf("ingestion job id is required")
	}

	_, err := w.Manager.Run(ctx, job.Args.JobID, BatchRequest{URLs: job.Args.URLs, OwnerID: job.Args.OwnerID})
	return err
}

type ReconcileOwnerCountsArgs struct {
	OwnerID string `json:"owner_id,omitempty"`
	DryRun  bool   `json:"dry_run,omitempty"`
}

func (ReconcileOwnerCountsArgs) Kind() string { return JobKindReconcileOwnerCounts }

// ReconcileOwnerCountsWorker restores owners.recipe_count from owner_recipes.
type ReconcileOwnerCountsWorker struct {
	river.WorkerDefaults[ReconcileOwnerCountsArgs]
	Reconciler *reconcile.Reconciler
}

func (ReconcileOwnerCountsWorker) Kind() string { return JobKindReconcileOwnerCounts }

func (w ReconcileOwnerCountsWorker) Work(ctx context.Context, job *river.Job[ReconcileOwnerCountsArgs]) error {
	if w.Reconciler == nil {
		return fmt.Errorf("reconciler not configured")
	}
	if job == nil {
		return fmt.Errorf("reconcile job missing")
	}
	if _, err := w.Reconciler.Reconcile(ctx, reconcile.Options{OwnerID: job.Args.OwnerID, DryRun: job.Args.DryRun}); err != nil {
		return fmt.Errorf("reconcile owner counts: %w", err)
	}
	return nil
}

type VisibilityFixupArgs struct{}

func (VisibilityFixupArgs) Kind() string { return JobKindVisibilityFixup }

// VisibilityEnforcer hides recipes that must not be public.
// *recipes.Service satisfies it.
type VisibilityEnforcer interface {
	EnforceVisibility(ctx context.Context) (int64, error)
}

// VisibilityFixupWorker hides removed, unreviewed or soft-deleted recipes that are still public.
type VisibilityFixupWorker struct {
	river.WorkerDefaults[VisibilityFixupArgs]
	Recipes VisibilityEnforcer
}

func (VisibilityFixupWorker) Kind() string { return JobKindVisibilityFixup }

func (w VisibilityFixupWorker) Work(ctx context.Context, job *river.Job[VisibilityFixupArgs]) error {
	if w.Recipes == nil {
		return fmt.Errorf("recipe service not configured")
	}
	hidden, err := w.Recipes.EnforceVisibility(ctx)
	if err != nil {
		return fmt.Errorf("enforce visibility: %w", err)
	}
	metrics.VisibilityFixups.Add(float64(hidden))
	return nil
}

// WorkerDeps are the services the River workers call into.
type WorkerDeps struct {
	Batch      *BatchManager
	Reconciler *reconcile.Reconciler
	Recipes    VisibilityEnforcer
}

func NewWorkers(deps WorkerDeps) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker[BatchImportArgs](workers, BatchImportWorker{Manager: deps.Batch})
	river.AddWorker[ReconcileOwnerCountsArgs](workers, ReconcileOwnerCountsWorker{Reconciler: deps.Reconciler})
	river.AddWorker[VisibilityFixupArgs](workers, VisibilityFixupWorker{Recipes: deps.Recipes})
	return workers
}
