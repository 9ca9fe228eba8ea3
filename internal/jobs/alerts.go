package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/Togather-Foundation/recipes/internal/domain/recipes"
)

// AlertFunc is invoked when a job fails or panics.
type AlertFunc func(ctx context.Context, job *rivertype.JobRow, err error)

// AlertingErrorHandler logs and forwards job failures for alerting.
type AlertingErrorHandler struct {
	Logger *slog.Logger
	Notify AlertFunc
}

func NewAlertingErrorHandler(logger *slog.Logger, notify AlertFunc) *AlertingErrorHandler {
	return &AlertingErrorHandler{
		Logger: logger,
		Notify: notify,
	}
}

func (h *AlertingErrorHandler) HandleError(ctx context.Context, job *rivertype.JobRow, err error) *river.ErrorHandlerResult {
	if h.Logger != nil {
		h.Logger.Error("job failed", "job_id", job.ID, "kind", job.Kind, "attempt", job.Attempt, "max_attempts", job.MaxAttempts, "error", err)
	}
	if h.Notify != nil {
		h.Notify(ctx, job, err)
	}
	return nil
}

func (h *AlertingErrorHandler) HandlePanic(ctx context.Context, job *rivertype.JobRow, panicVal any, trace string) *river.ErrorHandlerResult {
	panicErr := fmt.Errorf("panic: %v", panicVal)
	if h.Logger != nil {
		h.Logger.Error("job panicked", "job_id", job.ID, "kind", job.Kind, "attempt", job.Attempt, "error", panicErr, "trace", trace)
	}
	if h.Notify != nil {
		h.Notify(ctx, job, panicErr)
	}
	return nil
}

// FailExhaustedBatches returns an AlertFunc that marks the IngestionJob failed
// once River has spent the last attempt of a batch_import job, so the row
// never stays running after River discards the job.
func FailExhaustedBatches(store JobStore, logger *slog.Logger) AlertFunc {
	return func(ctx context.Context, job *rivertype.JobRow, err error) {
		if job == nil || job.Kind != JobKindBatchImport || job.Attempt < job.MaxAttempts {
			return
		}
		var args BatchImportArgs
		if uerr := json.Unmarshal(job.EncodedArgs, &args); uerr != nil || args.JobID == "" {
			return
		}
		summary := fmt.Sprintf("batch worker gave up after %d attempts", job.Attempt)
		_, ferr := store.FinishJob(context.WithoutCancel(ctx), args.JobID, recipes.JobFailed, summary)
		if ferr != nil && !errors.Is(ferr, recipes.ErrJobTerminal) && logger != nil {
			logger.Error("failed to mark ingestion job failed", "ingestion_job_id", args.JobID, "error", ferr)
		}
	}
}
