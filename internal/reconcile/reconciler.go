// Package reconcile restores Owner.recipe_count from the authoritative
// owner_recipes rows.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Togather-Foundation/recipes/internal/metrics"
)

// OwnerCount pairs an owner's cached count with the actual link-row count.
type OwnerCount struct {
	OwnerID string
	Slug    string
	Cached  int
	Actual  int
}

// Store is the persistence the reconciler needs. Defined by the consumer;
// *postgres.OwnerRepository satisfies it.
type Store interface {
	// OwnerCounts returns counts for one owner, or every owner when ownerID is empty.
	OwnerCounts(ctx context.Context, ownerID string) ([]OwnerCount, error)
	SetRecipeCount(ctx context.Context, ownerID string, count int) error
}

type Options struct {
	// OwnerID limits the run to one owner. Empty means all owners.
	OwnerID string
	// DryRun reports drift without writing corrections.
	DryRun bool
}

// Correction records one drifted owner.
type Correction struct {
	OwnerID string `json:"ownerId"`
	Slug    string `json:"slug"`
	Cached  int    `json:"cached"`
	Actual  int    `json:"actual"`
	Applied bool   `json:"applied"`
}

// Report summarizes a reconciliation run.
type Report struct {
	Scope           string       `json:"scope"`
	DryRun          bool         `json:"dryRun"`
	OwnersChecked   int          `json:"ownersChecked"`
	OwnersDrifted   int          `json:"ownersDrifted"`
	OwnersCorrected int          `json:"ownersCorrected"`
	Corrections     []Correction `json:"corrections"`
	StartedAt       time.Time    `json:"startedAt"`
	CompletedAt     time.Time    `json:"completedAt"`
}

type Reconciler struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func New(store Store, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, logger: logger, now: time.Now}
}

// Reconcile compares cached counts to link rows and overwrites the cache where
// they differ. It never writes owner_recipes, and a consistent store sees no writes.
func (r *Reconciler) Reconcile(ctx context.Context, opts Options) (*Report, error) {
	report := &Report{
		Scope:       "all",
		DryRun:      opts.DryRun,
		Corrections: []Correction{},
		StartedAt:   r.now(),
	}
	if opts.OwnerID != "" {
		report.Scope = "owner:" + opts.OwnerID
	}

	counts, err := r.store.OwnerCounts(ctx, opts.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("load owner counts: %w", err)
	}
	report.OwnersChecked = len(counts)

	for _, c := range counts {
		if c.Cached == c.Actual {
			continue
		}
		report.OwnersDrifted++
		correction := Correction{OwnerID: c.OwnerID, Slug: c.Slug, Cached: c.Cached, Actual: c.Actual}

		if !opts.DryRun {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := r.store.SetRecipeCount(ctx, c.OwnerID, c.Actual); err != nil {
				return nil, fmt.Errorf("correct owner %s: %w", c.Slug, err)
			}
			correction.Applied = true
			report.OwnersCorrected++
			metrics.ReconcileOwnersCorrected.Inc()
		}

		r.logger.Info("owner recipe_count drift",
			"owner_id", c.OwnerID,
			"slug", c.Slug,
			"cached", c.Cached,
			"actual", c.Actual,
			"applied", correction.Applied,
		)
		report.Corrections = append(report.Corrections, correction)
	}

	report.CompletedAt = r.now()
	metrics.ReconcileDrift.Set(float64(report.OwnersDrifted))

	r.logger.Info("reconciliation complete",
		"scope", report.Scope,
		"dry_run", report.DryRun,
		"owners_checked", report.OwnersChecked,
		"owners_drifted", report.OwnersDrifted,
		"owners_corrected", report.OwnersCorrected,
	)
	return report, nil
}
