package jobs

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/Togather-Foundation/recipes/internal/domain/recipes"
)

// Inserter is the part of *river.Client the enqueuer needs.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// BatchEnqueuer records a pending IngestionJob and hands it to River, so the
// HTTP surface can answer 202 with the job id before any URL is fetched.
type BatchEnqueuer struct {
	manager  *BatchManager
	inserter Inserter
}

func NewBatchEnqueuer(manager *BatchManager, inserter Inserter) *BatchEnqueuer {
	return &BatchEnqueuer{manager: manager, inserter: inserter}
}

func (e *BatchEnqueuer) Enqueue(ctx context.Context, req BatchRequest) (*recipes.IngestionJob, error) {
	job, err := e.manager.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	opts := InsertOptsForKind(JobKindBatchImport)
	args := BatchImportArgs{JobID: job.ID, URLs: req.URLs, OwnerID: req.OwnerID}
	if _, err := e.inserter.Insert(ctx, args, &opts); err != nil {
		// Without a River job nothing would ever move the row out of pending.
		if _, finishErr := e.manager.store.FinishJob(context.WithoutCancel(ctx), job.ID, recipes.JobFailed, "batch could not be queued"); finishErr != nil {
			e.manager.logger.Error().Err(finishErr).Str("job_id", job.ID).Msg("failed to mark unqueued batch as failed")
		}
		return nil, fmt.Errorf("enqueue batch %s: %w", job.ID, err)
	}

	e.manager.logger.Info().Str("job_id", job.ID).Int("urls", len(req.URLs)).Msg("batch queued")
	return job, nil
}
