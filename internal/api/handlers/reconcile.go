package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/Togather-Foundation/recipes/internal/api/problem"
	"github.com/Togather-Foundation/recipes/internal/domain/recipes"
	"github.com/Togather-Foundation/recipes/internal/reconcile"
)

type Reconciler interface {
	Reconcile(ctx context.Context, opts reconcile.Options) (*reconcile.Report, error)
}

type ReconcileHandler struct {
	reconciler Reconciler
	env        string
}

func NewReconcileHandler(reconciler Reconciler, env string) *ReconcileHandler {
	return &ReconcileHandler{reconciler: reconciler, env: env}
}

type reconcileRequest struct {
	OwnerID *string `json:"ownerId" validate:"omitempty,uuid"`
	DryRun  bool    `json:"dryRun"`
}

type reconcileResponse struct {
	Success bool              `json:"success"`
	Report  *reconcile.Report `json:"report"`
}

// Reconcile recomputes cached owner recipe counts. An empty body reconciles
// every owner.
func (h *ReconcileHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if r.ContentLength != 0 {
		if !decodeBody(w, r, &req, h.env) {
			return
		}
	}

	opts := reconcile.Options{DryRun: req.DryRun}
	if owner := optionalString(req.OwnerID); owner != nil {
		opts.OwnerID = *owner
	}

	report, err := h.reconciler.Reconcile(r.Context(), opts)
	switch {
	case errors.Is(err, recipes.ErrOwnerNotFound):
		problem.Write(w, r, http.StatusNotFound, problem.CodeNotFound, "Owner not found", err, h.env)
		return
	case err != nil:
		problem.Write(w, r, http.StatusInternalServerError, problem.CodeInternal, "Reconciliation failed", err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, reconcileResponse{Success: true, Report: report})
}
