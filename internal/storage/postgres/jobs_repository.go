package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Togather-Foundation/recipes/internal/domain/recipes"
)

type JobRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

const jobReturning = `RETURNING id, owner_id::text, batch_id, status, total_urls, recipes_scraped, recipes_failed,
          coalesce(error, ''), created_at, started_at, completed_at`

func scanJob(row pgx.Row) (*recipes.IngestionJob, error) {
	var (
		job         recipes.IngestionJob
		ownerID     pgtype.Text
		status      string
		startedAt   pgtype.Timestamptz
		completedAt pgtype.Timestamptz
	)
	if err := row.Scan(&job.ID, &ownerID, &job.BatchID, &status, &job.TotalURLs, &job.RecipesScraped,
		&job.RecipesFailed, &job.Error, &job.CreatedAt, &startedAt, &completedAt); err != nil {
		return nil, err
	}
	job.OwnerID = textPtr(ownerID)
	job.Status = recipes.JobStatus(status)
	job.StartedAt = timePtr(startedAt)
	job.CompletedAt = timePtr(completedAt)
	return &job, nil
}

func (r *JobRepository) CreateJob(ctx context.Context, params recipes.JobCreateParams) (*recipes.IngestionJob, error) {
	var ownerID *string
	if params.OwnerID != nil && *params.OwnerID != "" {
		ownerID = params.OwnerID
	}
	job, err := scanJob(r.queryer().QueryRow(ctx, `
INSERT INTO ingestion_jobs (owner_id, batch_id, status, total_urls)
VALUES ($1, $2, 'pending', $3)
`+jobReturning, ownerID, params.BatchID, params.TotalURLs))
	if err != nil {
		if isInvalidText(err) || isForeignKeyViolation(err) {
			return nil, recipes.ErrOwnerNotFound
		}
		return nil, fmt.Errorf("create ingestion job: %w", err)
	}
	return job, nil
}

func (r *JobRepository) GetJob(ctx context.Context, id string) (*recipes.IngestionJob, error) {
	job, err := scanJob(r.queryer().QueryRow(ctx, `
SELECT id, owner_id::text, batch_id, status, total_urls, recipes_scraped, recipes_failed,
       coalesce(error, ''), created_at, started_at, completed_at
  FROM ingestion_jobs
 WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
			return nil, recipes.ErrJobNotFound
		}
		return nil, fmt.Errorf("get ingestion job %q: %w", id, err)
	}
	return job, nil
}

// StartJob moves a pending job to running. A job already running (a redelivered
// batch after a crash) has its counters reset so the rerun recounts from zero.
func (r *JobRepository) StartJob(ctx context.Context, id string) (*recipes.IngestionJob, error) {
	job, err := scanJob(r.queryer().QueryRow(ctx, `
UPDATE ingestion_jobs
   SET status = 'running',
       started_at = coalesce(started_at, now()),
       recipes_scraped = 0,
       recipes_failed = 0
 WHERE id = $1
   AND status IN ('pending', 'running')
`+jobReturning, id))
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) && !isInvalidText(err) {
		return nil, fmt.Errorf("start ingestion job %q: %w", id, err)
	}
	existing, getErr := r.GetJob(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if existing.Status.Terminal() {
		return existing, recipes.ErrJobTerminal
	}
	return nil, fmt.Errorf("start ingestion job %q: unexpected status %q", id, existing.Status)
}

// RecordResult atomically bumps one counter. Concurrent workers never lose updates.
func (r *JobRepository) RecordResult(ctx context.Context, id string, success bool) error {
	column := "recipes_failed"
	if success {
		column = "recipes_scraped"
	}
	tag, err := r.queryer().Exec(ctx, `
UPDATE ingestion_jobs
   SET `+column+` = `+column+` + 1
 WHERE id = $1 AND status = 'running'`, id)
	if err != nil {
		return fmt.Errorf("record ingestion result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record ingestion result for %q: %w", id, recipes.ErrJobNotFound)
	}
	return nil
}

// FinishJob moves a non-terminal job to completed or failed.
func (r *JobRepository) FinishJob(ctx context.Context, id string, status recipes.JobStatus, summary string) (*recipes.IngestionJob, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("finish ingestion job: %q is not a terminal status", status)
	}
	var errText *string
	if summary != "" {
		errText = &summary
	}
	job, err := scanJob(r.queryer().QueryRow(ctx, `
UPDATE ingestion_jobs
   SET status = $2,
       error = $3,
       started_at = coalesce(started_at, now()),
       completed_at = now()
 WHERE id = $1
   AND status IN ('pending', 'running')
`+jobReturning, id, string(status), errText))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			existing, getErr := r.GetJob(ctx, id)
			if getErr != nil {
				return nil, getErr
			}
			return existing, recipes.ErrJobTerminal
		}
		return nil, fmt.Errorf("finish ingestion job %q: %w", id, err)
	}
	return job, nil
}
