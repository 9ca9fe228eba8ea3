package recipes

import (
	"context"
	"errors"
)

var (
	ErrNotFound      = errors.New("recipe not found")
	ErrOwnerNotFound = errors.New("owner not found")

	// ErrConflict is raised by storage when a canonical URL is already taken.
	// Ingestion converts it into an idempotent success.
	ErrConflict = errors.New("recipe conflict")

	// ErrPersistence marks storage failures that are not conflicts.
	ErrPersistence = errors.New("recipe persistence failed")
)

// ImportParams carries a classified candidate into storage.
type ImportParams struct {
	Name         string
	Slug         string
	Description  string
	Ingredients  []string
	Instructions []string
	Cuisine      string
	Tags         []string
	SourceURL    string
	CanonicalURL string
	OwnerID      *string
	IsPublic     bool
	QAStatus     QAStatus
	QAMethod     string
	QAConfidence float64
	QANotes      string
}

// SaveResult reports what an import write actually did.
type SaveResult struct {
	Recipe *Recipe
	// Created is false when the canonical URL already existed.
	Created bool
	// Linked is true when a new owner_recipes row was written.
	Linked bool
}

// ReviewParams is the storage-level form of a manual QA decision.
type ReviewParams struct {
	QAStatus QAStatus
	QAMethod string
	QANotes  string
	IsPublic bool
	// SoftDelete stamps deleted_at; it is never cleared by a review.
	SoftDelete bool
}

type Repository interface {
	GetByID(ctx context.Context, id string) (*Recipe, error)
	GetByCanonicalURL(ctx context.Context, canonicalURL string) (*Recipe, error)
	GetOwner(ctx context.Context, id string) (*Owner, error)

	// SaveImported writes the recipe and its owner link in one transaction.
	SaveImported(ctx context.Context, params ImportParams) (*SaveResult, error)
	// LinkOwner records attribution for an existing recipe, ignoring duplicates.
	LinkOwner(ctx context.Context, ownerID, recipeID string) (bool, error)

	UpdateReview(ctx context.Context, id string, params ReviewParams) (*Recipe, error)
	// EnforceVisibility hides removed or soft-deleted recipes that are still public.
	EnforceVisibility(ctx context.Context) (int64, error)
}
