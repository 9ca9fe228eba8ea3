package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Togather-Foundation/recipes/internal/domain/ids"
	"github.com/Togather-Foundation/recipes/internal/domain/recipes"
	"github.com/Togather-Foundation/recipes/internal/fetcher"
	"github.com/Togather-Foundation/recipes/internal/ingest"
	"github.com/Togather-Foundation/recipes/internal/metrics"
)

const (
	DefaultBatchWorkers = 4
	MaxBatchWorkers     = 16
)

// ErrEmptyBatch is returned when a batch carries no URLs.
var ErrEmptyBatch = errors.New("batch has no urls")

type Importer interface {
	Import(ctx context.Context, req ingest.Request) ingest.Result
}

// Prober reports whether the fetch provider can be reached at all.
type Prober interface {
	Ping(ctx context.Context) error
}

// JobStore persists IngestionJob rows. *postgres.JobRepository satisfies it.
type JobStore interface {
	CreateJob(ctx context.Context, params recipes.JobCreateParams) (*recipes.IngestionJob, error)
	GetJob(ctx context.Context, id string) (*recipes.IngestionJob, error)
	StartJob(ctx context.Context, id string) (*recipes.IngestionJob, error)
	RecordResult(ctx context.Context, id string, success bool) error
	FinishJob(ctx context.Context, id string, status recipes.JobStatus, summary string) (*recipes.IngestionJob, error)
}

type BatchRequest struct {
	URLs    []string
	OwnerID *string
}

// ItemResult is the per-URL outcome of a batch.
type ItemResult struct {
	URL             string `json:"url"`
	Success         bool   `json:"success"`
	RecipeID        string `json:"recipeId,omitempty"`
	AlreadyImported bool   `json:"alreadyImported,omitempty"`
	Stage           string `json:"stage,omitempty"`
	Error           string `json:"error,omitempty"`
}

// BatchResult is the final job row plus what happened to each URL, in input order.
type BatchResult struct {
	Job   *recipes.IngestionJob
	Items []ItemResult
}

// BatchManager runs a set of URLs through the importer with bounded parallelism
// and records progress on the job row.
type BatchManager struct {
	importer Importer
	prober   Prober
	store    JobStore
	workers  int
	logger   zerolog.Logger
}

func NewBatchManager(importer Importer, prober Prober, store JobStore, workers int, logger zerolog.Logger) *BatchManager {
	return &BatchManager{
		importer: importer,
		prober:   prober,
		store:    store,
		workers:  ClampWorkers(workers),
		logger:   logger.With().Str("component", "batch").Logger(),
	}
}

// ClampWorkers bounds the pool width to 1..MaxBatchWorkers, defaulting when unset.
func ClampWorkers(n int) int {
	switch {
	case n <= 0:
		return DefaultBatchWorkers
	case n > MaxBatchWorkers:
		return MaxBatchWorkers
	default:
		return n
	}
}

// Create records a pending job for the batch.
func (m *BatchManager) Create(ctx context.Context, req BatchRequest) (*recipes.IngestionJob, error) {
	if len(req.URLs) == 0 {
		return nil, ErrEmptyBatch
	}
	batchID, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("generate batch id: %w", err)
	}
	job, err := m.store.CreateJob(ctx, recipes.JobCreateParams{
		OwnerID:   req.OwnerID,
		BatchID:   batchID,
		TotalURLs: len(req.URLs),
	})
	if err != nil {
		return nil, fmt.Errorf("create ingestion job: %w", err)
	}
	return job, nil
}

// RunBatch creates the job and runs it to completion.
func (m *BatchManager) RunBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	job, err := m.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	return m.Run(ctx, job.ID, req)
}

// Run drives an existing job. A job that already finished is returned as is.
// Cancelling ctx stops dispatch; imports already in flight run to completion
// under their own per-URL ceiling.
func (m *BatchManager) Run(ctx context.Context, jobID string, req BatchRequest) (*BatchResult, error) {
	log := m.logger.With().Str("job_id", jobID).Logger()
	detached := context.WithoutCancel(ctx)

	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		log.Info().Str("status", string(job.Status)).Msg("job already finished, skipping")
		return &BatchResult{Job: job}, nil
	}

	start := time.Now()
	if _, err := m.store.StartJob(ctx, jobID); err != nil {
		if errors.Is(err, recipes.ErrJobTerminal) {
			finished, getErr := m.store.GetJob(detached, jobID)
			if getErr != nil {
				return nil, getErr
			}
			return &BatchResult{Job: finished}, nil
		}
		return nil, fmt.Errorf("start job: %w", err)
	}

	if m.prober != nil {
		if err := m.prober.Ping(ctx); err != nil {
			log.Error().Err(err).Msg("fetch provider unreachable, failing job")
			items := make([]ItemResult, len(req.URLs))
			if recordErr := m.recordSkipped(detached, jobID, req.URLs, items, make([]bool, len(req.URLs))); recordErr != nil {
				log.Error().Err(recordErr).Msg("failed to record batch progress")
			}
			return m.finish(detached, jobID, recipes.JobFailed, "fetch provider unreachable; no urls were attempted", items, start)
		}
	}
	log.Info().Int("urls", len(req.URLs)).Int("workers", m.workers).Msg("batch started")

	var (
		items     = make([]ItemResult, len(req.URLs))
		attempted = make([]bool, len(req.URLs))
		successes atomic.Int64
		aborted   atomic.Bool
		recordMu  sync.Mutex
		recordErr error
	)

	var g errgroup.Group
	g.SetLimit(m.workers)

	for i, url := range req.URLs {
		if ctx.Err() != nil || aborted.Load() {
			break
		}
		g.Go(func() error {
			// The slot may have been granted after cancellation or an abort.
			if ctx.Err() != nil || aborted.Load() {
				return nil
			}
			attempted[i] = true
			metrics.BatchURLsInFlight.Inc()
			defer metrics.BatchURLsInFlight.Dec()

			res := m.importer.Import(detached, ingest.Request{URL: url, OwnerID: req.OwnerID})
			items[i] = itemFromResult(res)

			if res.Success {
				successes.Add(1)
			} else if fetcher.IsProviderUnavailable(res.Error) && successes.Load() == 0 {
				aborted.Store(true)
			}

			if err := m.store.RecordResult(detached, jobID, res.Success); err != nil {
				recordMu.Lock()
				recordErr = errors.Join(recordErr, err)
				recordMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	skipped := 0
	for _, ok := range attempted {
		if !ok {
			skipped++
		}
	}
	recordErr = errors.Join(recordErr, m.recordSkipped(detached, jobID, req.URLs, items, attempted))
	if recordErr != nil {
		log.Error().Err(recordErr).Msg("failed to record batch progress")
	}

	status := recipes.JobFailed
	if successes.Load() > 0 {
		status = recipes.JobCompleted
	}
	summary := ""
	switch {
	case aborted.Load() && successes.Load() == 0:
		summary = fmt.Sprintf("fetch provider became unavailable; %d of %d urls not attempted", skipped, len(req.URLs))
	case ctx.Err() != nil && skipped > 0:
		summary = fmt.Sprintf("cancelled; %d of %d urls not attempted", skipped, len(req.URLs))
	case status == recipes.JobFailed:
		summary = fmt.Sprintf("all %d urls failed", len(req.URLs))
	}

	return m.finish(detached, jobID, status, summary, items, start)
}

func (m *BatchManager) finish(ctx context.Context, jobID string, status recipes.JobStatus, summary string, items []ItemResult, start time.Time) (*BatchResult, error) {
	job, err := m.store.FinishJob(ctx, jobID, status, summary)
	if err != nil {
		return nil, fmt.Errorf("finish job: %w", err)
	}
	metrics.BatchJobsTotal.WithLabelValues(string(job.Status)).Inc()
	metrics.BatchJobDuration.Observe(time.Since(start).Seconds())

	event := m.logger.Info()
	if job.Status == recipes.JobFailed {
		event = m.logger.Warn()
	}
	event.
		Str("job_id", jobID).
		Str("status", string(job.Status)).
		Int("scraped", job.RecipesScraped).
		Int("failed", job.RecipesFailed).
		Int("total", job.TotalURLs).
		Str("summary", job.Error).
		Msg("batch finished")
	return &BatchResult{Job: job, Items: items}, nil
}

// recordSkipped counts every URL that was never attempted as failed, so a
// terminal job always satisfies scraped + failed == total.
func (m *BatchManager) recordSkipped(ctx context.Context, jobID string, urls []string, items []ItemResult, attempted []bool) error {
	var errs error
	for i, url := range urls {
		if attempted[i] {
			continue
		}
		items[i] = ItemResult{URL: url, Error: "not attempted"}
		if err := m.store.RecordResult(ctx, jobID, false); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

func itemFromResult(res ingest.Result) ItemResult {
	item := ItemResult{
		URL:             res.URL,
		Success:         res.Success,
		AlreadyImported: res.AlreadyImported,
		Stage:           string(res.Stage),
	}
	if res.Recipe != nil {
		item.RecipeID = res.Recipe.ID
	}
	if res.Error != nil {
		item.Error = res.Error.Error()
	}
	return item
}
