package recipes

import (
	"time"
)

// QAStatus is the quality classification attached to every persisted recipe.
type QAStatus string

const (
	QAPending     QAStatus = "pending"
	QAValidated   QAStatus = "validated"
	QANeedsReview QAStatus = "needs_review"
	QARemoved     QAStatus = "removed"
)

// Valid reports whether s is one of the known statuses.
func (s QAStatus) Valid() bool {
	switch s {
	case QAPending, QAValidated, QANeedsReview, QARemoved:
		return true
	}
	return false
}

const (
	MethodAutomated    = "automated-extraction"
	MethodManualReview = "manual-review"
)

type Recipe struct {
	ID           string
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
	IsSystem     bool
	QAStatus     QAStatus
	QAMethod     string
	QAConfidence float64
	QANotes      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// Visible reports whether the recipe may appear in public reads.
func (r *Recipe) Visible() bool {
	return r != nil && r.IsPublic && r.DeletedAt == nil && r.QAStatus != QARemoved
}

type Owner struct {
	ID          string
	Slug        string
	Name        string
	RecipeCount int
	IsActive    bool
	AutoPublish bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OwnerRecipe is the authoritative attribution link between an owner and a recipe.
type OwnerRecipe struct {
	OwnerID   string
	RecipeID  string
	CreatedAt time.Time
}
