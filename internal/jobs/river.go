package jobs

import (
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
)

const (
	JobKindBatchImport          = "batch_import"
	JobKindReconcileOwnerCounts = "reconcile_owner_counts"
	JobKindVisibilityFixup      = "visibility_fixup"
)

const (
	BatchImportMaxAttempts    = 3
	ReconcileMaxAttempts      = 5
	VisibilityFixupMaxAttempt = 3
)

// QueueIngest holds batch imports so long batches never starve maintenance jobs.
const QueueIngest = "ingest"

const (
	DefaultReconcileInterval = 6 * time.Hour
	DefaultFixupInterval     = time.Hour
)

// RetryConfig controls per-kind retry behavior.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// RetryPolicy implements River's ClientRetryPolicy with per-kind exponential backoff.
type RetryPolicy struct {
	Default RetryConfig
	ByKind  map[string]RetryConfig
}

func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		Default: RetryConfig{
			MaxAttempts: ReconcileMaxAttempts,
			BaseDelay:   30 * time.Second,
			MaxDelay:    30 * time.Minute,
		},
		ByKind: map[string]RetryConfig{
			JobKindBatchImport: {
				MaxAttempts: BatchImportMaxAttempts,
				BaseDelay:   30 * time.Second,
				MaxDelay:    5 * time.Minute,
			},
			JobKindReconcileOwnerCounts: {
				MaxAttempts: ReconcileMaxAttempts,
				BaseDelay:   time.Minute,
				MaxDelay:    time.Hour,
			},
			JobKindVisibilityFixup: {
				MaxAttempts: VisibilityFixupMaxAttempt,
				BaseDelay:   time.Minute,
				MaxDelay:    15 * time.Minute,
			},
		},
	}
}

// NextRetry determines the next retry time for a failed job.
func (p *RetryPolicy) NextRetry(job *rivertype.JobRow) time.Time {
	config := p.configFor(job.Kind)
	if config.BaseDelay == 0 {
		return time.Now()
	}

	attempt := job.Attempt
	if attempt < 1 {
		attempt = 1
	}

	delay := time.Duration(float64(config.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	if job.AttemptedAt != nil {
		return job.AttemptedAt.Add(delay)
	}
	return time.Now().Add(delay)
}

// InsertOptsForKind returns default insert options for a job kind.
func InsertOptsForKind(kind string) river.InsertOpts {
	config := NewRetryPolicy().configFor(kind)
	opts := river.InsertOpts{MaxAttempts: config.MaxAttempts}
	if kind == JobKindBatchImport {
		opts.Queue = QueueIngest
	}
	return opts
}

// NewClientConfig builds a River client configuration with retry policy.
// alert may be nil.
func NewClientConfig(workers *river.Workers, logger *slog.Logger, alert AlertFunc, hooks []rivertype.Hook, periodicJobs []*river.PeriodicJob) *river.Config {
	policy := NewRetryPolicy()
	config := &river.Config{
		Workers:      workers,
		RetryPolicy:  policy,
		MaxAttempts:  policy.Default.MaxAttempts,
		PeriodicJobs: periodicJobs,
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 4},
			QueueIngest:        {MaxWorkers: 2},
		},
		Hooks: hooks,
	}
	if logger != nil {
		config.Logger = logger
		config.ErrorHandler = NewAlertingErrorHandler(logger, alert)
	}
	return config
}

// NewClient creates a River client using pgx v5.
func NewClient(pool *pgxpool.Pool, workers *river.Workers, logger *slog.Logger, alert AlertFunc, hooks []rivertype.Hook, periodicJobs []*river.PeriodicJob) (*river.Client[pgx.Tx], error) {
	return river.NewClient(riverpgxv5.New(pool), NewClientConfig(workers, logger, alert, hooks, periodicJobs))
}

// NewInsertOnlyClient creates a client for processes that enqueue but never work jobs.
func NewInsertOnlyClient(pool *pgxpool.Pool, logger *slog.Logger) (*river.Client[pgx.Tx], error) {
	config := &river.Config{}
	if logger != nil {
		config.Logger = logger
	}
	return river.NewClient(riverpgxv5.New(pool), config)
}

// NewPeriodicJobs creates the maintenance schedule:
// - owner recipe_count reconciliation every reconcileEvery (default 6h)
// - visibility fixup every fixupEvery (default 1h)
func NewPeriodicJobs(reconcileEvery, fixupEvery time.Duration) []*river.PeriodicJob {
	if reconcileEvery <= 0 {
		reconcileEvery = DefaultReconcileInterval
	}
	if fixupEvery <= 0 {
		fixupEvery = DefaultFixupInterval
	}
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(reconcileEvery),
			func() (river.JobArgs, *river.InsertOpts) {
				opts := InsertOptsForKind(JobKindReconcileOwnerCounts)
				return ReconcileOwnerCountsArgs{}, &opts
			},
			&river.PeriodicJobOpts{RunOnStart: false},
		),
		river.NewPeriodicJob(
			river.PeriodicInterval(fixupEvery),
			func() (river.JobArgs, *river.InsertOpts) {
				opts := InsertOptsForKind(JobKindVisibilityFixup)
				return VisibilityFixupArgs{}, &opts
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}
}

func (p *RetryPolicy) configFor(kind string) RetryConfig {
	if p == nil {
		return RetryConfig{MaxAttempts: ReconcileMaxAttempts, BaseDelay: time.Minute, MaxDelay: time.Hour}
	}
	if config, ok := p.ByKind[kind]; ok {
		return config
	}
	return p.Default
}
