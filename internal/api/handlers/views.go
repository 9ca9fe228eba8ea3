package handlers

import (
	"time"

	"github.com/Togather-Foundation/recipes/internal/domain/recipes"
)

type recipeView struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Slug         string     `json:"slug"`
	Description  string     `json:"description,omitempty"`
	Ingredients  []string   `json:"ingredients"`
	Instructions []string   `json:"instructions"`
	Cuisine      string     `json:"cuisine,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	SourceURL    string     `json:"sourceUrl"`
	CanonicalURL string     `json:"canonicalUrl"`
	OwnerID      *string    `json:"ownerId,omitempty"`
	IsPublic     bool       `json:"isPublic"`
	QAStatus     string     `json:"qaStatus"`
	QAMethod     string     `json:"qaMethod,omitempty"`
	QAConfidence float64    `json:"qaConfidence"`
	QANotes      string     `json:"qaNotes,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	DeletedAt    *time.Time `json:"deletedAt,omitempty"`
}

func newRecipeView(r *recipes.Recipe) *recipeView {
	if r == nil {
		return nil
	}
	return &recipeView{
		ID:           r.ID,
		Name:         r.Name,
		Slug:         r.Slug,
		Description:  r.Description,
		Ingredients:  r.Ingredients,
		Instructions: r.Instructions,
		Cuisine:      r.Cuisine,
		Tags:         r.Tags,
		SourceURL:    r.SourceURL,
		CanonicalURL: r.CanonicalURL,
		OwnerID:      r.OwnerID,
		IsPublic:     r.IsPublic,
		QAStatus:     string(r.QAStatus),
		QAMethod:     r.QAMethod,
		QAConfidence: r.QAConfidence,
		QANotes:      r.QANotes,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		DeletedAt:    r.DeletedAt,
	}
}

type jobView struct {
	ID             string     `json:"id"`
	BatchID        string     `json:"batchId"`
	OwnerID        *string    `json:"ownerId,omitempty"`
	Status         string     `json:"status"`
	TotalURLs      int        `json:"totalUrls"`
	RecipesScraped int        `json:"recipesScraped"`
	RecipesFailed  int        `json:"recipesFailed"`
	Error          string     `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

func newJobView(j *recipes.IngestionJob) jobView {
	return jobView{
		ID:             j.ID,
		BatchID:        j.BatchID,
		OwnerID:        j.OwnerID,
		Status:         string(j.Status),
		TotalURLs:      j.TotalURLs,
		RecipesScraped: j.RecipesScraped,
		RecipesFailed:  j.RecipesFailed,
		Error:          j.Error,
		CreatedAt:      j.CreatedAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
	}
}
