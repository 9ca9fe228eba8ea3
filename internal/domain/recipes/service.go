package recipes

import (
	"context"
	"fmt"
	"strings"
)

// ReviewAction is a manual QA decision. needs_review recipes only leave that
// state through an explicit review; nothing promotes them automatically.
type ReviewAction string

const (
	ActionPromote     ReviewAction = "promote"
	ActionNeedsReview ReviewAction = "needs_review"
	ActionRemove      ReviewAction = "remove"
)

type Decision struct {
	Action   ReviewAction
	Notes    string
	Reviewer string
}

type Service struct {
	repo           Repository
	defaultPublish bool
}

// NewService builds the recipe service. defaultPublish applies to recipes with no owner.
func NewService(repo Repository, defaultPublish bool) *Service {
	return &Service{repo: repo, defaultPublish: defaultPublish}
}

func (s *Service) GetByID(ctx context.Context, id string) (*Recipe, error) {
	return s.repo.GetByID(ctx, id)
}

// GetPublic returns the recipe only when it is publicly visible.
func (s *Service) GetPublic(ctx context.Context, id string) (*Recipe, error) {
	recipe, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !recipe.Visible() {
		return nil, ErrNotFound
	}
	return recipe, nil
}

// PublishDefault resolves the publication default for an optional owner.
func (s *Service) PublishDefault(ctx context.Context, ownerID *string) (bool, error) {
	if ownerID == nil || *ownerID == "" {
		return s.defaultPublish, nil
	}
	owner, err := s.repo.GetOwner(ctx, *ownerID)
	if err != nil {
		return false, err
	}
	return owner.AutoPublish && owner.IsActive, nil
}

// Review applies a manual QA decision.
func (s *Service) Review(ctx context.Context, id string, decision Decision) (*Recipe, error) {
	recipe, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if recipe.DeletedAt != nil {
		return nil, ErrNotFound
	}

	params := ReviewParams{
		QAMethod: MethodManualReview,
		QANotes:  reviewNotes(decision),
	}

	switch decision.Action {
	case ActionPromote:
		publish, err := s.PublishDefault(ctx, recipe.OwnerID)
		if err != nil {
			return nil, fmt.Errorf("resolve publication default: %w", err)
		}
		params.QAStatus = QAValidated
		params.IsPublic = publish
	case ActionNeedsReview:
		params.QAStatus = QANeedsReview
	case ActionRemove:
		params.QAStatus = QARemoved
		params.SoftDelete = true
	default:
		return nil, fmt.Errorf("unknown review action %q", decision.Action)
	}

	return s.repo.UpdateReview(ctx, id, params)
}

// EnforceVisibility re-asserts that removed and soft-deleted recipes are not public.
func (s *Service) EnforceVisibility(ctx context.Context) (int64, error) {
	return s.repo.EnforceVisibility(ctx)
}

func reviewNotes(decision Decision) string {
	notes := strings.TrimSpace(decision.Notes)
	reviewer := strings.TrimSpace(decision.Reviewer)
	if reviewer == "" {
		return notes
	}
	if notes == "" {
		return "reviewed by " + reviewer
	}
	return notes + " (reviewed by " + reviewer + ")"
}
