package recipes

import (
	"errors"
	"time"
)

// JobStatus is the lifecycle state of a batch ingestion job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

var (
	ErrJobNotFound = errors.New("ingestion job not found")
	// ErrJobTerminal is returned when a completed or failed job would be restarted.
	ErrJobTerminal = errors.New("ingestion job already finished")
)

// IngestionJob is the persisted record of one batch import.
type IngestionJob struct {
	ID             string
	OwnerID        *string
	BatchID        string
	Status         JobStatus
	TotalURLs      int
	RecipesScraped int
	RecipesFailed  int
	Error          string
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

type JobCreateParams struct {
	OwnerID   *string
	BatchID   string
	TotalURLs int
}
