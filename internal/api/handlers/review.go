package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Togather-Foundation/recipes/internal/api/middleware"
	"github.com/Togather-Foundation/recipes/internal/api/problem"
	"github.com/Togather-Foundation/recipes/internal/domain/recipes"
)

type Reviewer interface {
	Review(ctx context.Context, id string, decision recipes.Decision) (*recipes.Recipe, error)
}

type ReviewHandler struct {
	reviewer Reviewer
	env      string
}

func NewReviewHandler(reviewer Reviewer, env string) *ReviewHandler {
	return &ReviewHandler{reviewer: reviewer, env: env}
}

type reviewRequest struct {
	Decision string `json:"decision" validate:"required,oneof=promote needs_review remove"`
	Notes    string `json:"notes" validate:"max=2000"`
}

type reviewResponse struct {
	Success bool        `json:"success"`
	Recipe  *recipeView `json:"recipe"`
}

// Review applies a manual QA decision. This is the only way a needs_review
// recipe becomes validated.
func (h *ReviewHandler) Review(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		problem.Write(w, r, http.StatusBadRequest, problem.CodeBadRequest, "Recipe id is required", nil, h.env)
		return
	}

	var req reviewRequest
	if !decodeBody(w, r, &req, h.env) {
		return
	}

	decision := recipes.Decision{
		Action: recipes.ReviewAction(req.Decision),
		Notes:  req.Notes,
	}
	if claims := middleware.Claims(r); claims != nil {
		decision.Reviewer = claims.Subject
	}

	recipe, err := h.reviewer.Review(r.Context(), id, decision)
	if err != nil {
		switch {
		case errors.Is(err, recipes.ErrNotFound):
			problem.Write(w, r, http.StatusNotFound, problem.CodeNotFound, "Recipe not found", err, h.env)
		case errors.Is(err, recipes.ErrOwnerNotFound):
			problem.Write(w, r, http.StatusConflict, problem.CodeConflict, "Recipe owner no longer exists", err, h.env)
		default:
			problem.Write(w, r, http.StatusInternalServerError, problem.CodeInternal, "Review failed", err, h.env)
		}
		return
	}

	loggerFor(r).Info().
		Str("recipe_id", recipe.ID).
		Str("decision", req.Decision).
		Str("reviewer", decision.Reviewer).
		Str("qa_status", string(recipe.QAStatus)).
		Msg("recipe reviewed")
	writeJSON(w, http.StatusOK, reviewResponse{Success: true, Recipe: newRecipeView(recipe)})
}
