package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Togather-Foundation/recipes/internal/api/problem"
	"github.com/Togather-Foundation/recipes/internal/domain/recipes"
	"github.com/Togather-Foundation/recipes/internal/extractor"
	"github.com/Togather-Foundation/recipes/internal/fetcher"
	"github.com/Togather-Foundation/recipes/internal/ingest"
	"github.com/Togather-Foundation/recipes/internal/jobs"
)

// MaxBatchURLs caps a single import-batch request.
const MaxBatchURLs = 1000

type Importer interface {
	Import(ctx context.Context, req ingest.Request) ingest.Result
}

type BatchEnqueuer interface {
	Enqueue(ctx context.Context, req jobs.BatchRequest) (*recipes.IngestionJob, error)
}

type JobReader interface {
	GetJob(ctx context.Context, id string) (*recipes.IngestionJob, error)
}

type ImportHandler struct {
	importer Importer
	batches  BatchEnqueuer
	jobs     JobReader
	env      string
}

func NewImportHandler(importer Importer, batches BatchEnqueuer, jobs JobReader, env string) *ImportHandler {
	return &ImportHandler{importer: importer, batches: batches, jobs: jobs, env: env}
}

type importRequest struct {
	URL     string  `json:"url" validate:"required"`
	OwnerID *string `json:"ownerId" validate:"omitempty,uuid"`
}

type importResponse struct {
	Success         bool             `json:"success"`
	URL             string           `json:"url"`
	Recipe          *recipeView      `json:"recipe,omitempty"`
	AlreadyImported bool             `json:"alreadyImported"`
	Error           string           `json:"error,omitempty"`
	Stage           string           `json:"stage,omitempty"`
	Attempts        []ingest.Attempt `json:"attempts,omitempty"`
}

// Import runs one URL through the pipeline inline and reports the outcome.
func (h *ImportHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !decodeBody(w, r, &req, h.env) {
		return
	}

	res := h.importer.Import(r.Context(), ingest.Request{
		URL:     strings.TrimSpace(req.URL),
		OwnerID: optionalString(req.OwnerID),
	})

	body := importResponse{
		Success:         res.Success,
		URL:             res.URL,
		Recipe:          newRecipeView(res.Recipe),
		AlreadyImported: res.AlreadyImported,
		Stage:           string(res.Stage),
		Attempts:        res.Attempts,
	}
	if res.Success {
		status := http.StatusCreated
		if res.AlreadyImported {
			status = http.StatusOK
		}
		writeJSON(w, status, body)
		return
	}

	body.Error = res.Error.Error()
	status := importFailureStatus(res.Error)
	logger := loggerFor(r)
	event := logger.Warn()
	if status >= 500 {
		event = logger.Error()
	}
	event.Err(res.Error).Str("url", res.URL).Str("stage", body.Stage).Int("status", status).Msg("import failed")
	writeJSON(w, status, body)
}

// importFailureStatus maps a failed import to an HTTP status. Problems with
// the page or its content are 422; upstream outages are 5xx.
func importFailureStatus(err error) int {
	switch {
	case errors.Is(err, recipes.ErrOwnerNotFound):
		return http.StatusNotFound
	case errors.Is(err, fetcher.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, fetcher.ErrTransient), errors.Is(err, extractor.ErrCompletion):
		return http.StatusBadGateway
	case errors.Is(err, recipes.ErrPersistence), errors.Is(err, ingest.ErrPanic):
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

type importBatchRequest struct {
	URLs    []string `json:"urls" validate:"required,min=1,max=1000"`
	OwnerID *string  `json:"ownerId" validate:"omitempty,uuid"`
}

type importBatchResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId"`
	BatchID string `json:"batchId"`
	Total   int    `json:"totalUrls"`
}

// ImportBatch records a pending job and queues it. Progress is read from GetJob.
func (h *ImportHandler) ImportBatch(w http.ResponseWriter, r *http.Request) {
	if h.batches == nil {
		problem.Write(w, r, http.StatusServiceUnavailable, problem.CodeUnavailable, "Batch imports are not available", nil, h.env)
		return
	}

	var req importBatchRequest
	if !decodeBody(w, r, &req, h.env) {
		return
	}

	urls := make([]string, len(req.URLs))
	for i, u := range req.URLs {
		urls[i] = strings.TrimSpace(u)
	}

	job, err := h.batches.Enqueue(r.Context(), jobs.BatchRequest{URLs: urls, OwnerID: optionalString(req.OwnerID)})
	if err != nil {
		if errors.Is(err, jobs.ErrEmptyBatch) {
			problem.Write(w, r, http.StatusBadRequest, problem.CodeValidation, "At least one url is required", err, h.env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, problem.CodeInternal, "Could not queue batch", err, h.env)
		return
	}

	w.Header().Set("Location", "/api/v1/jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, importBatchResponse{
		Success: true,
		JobID:   job.ID,
		BatchID: job.BatchID,
		Total:   job.TotalURLs,
	})
}

type jobResponse struct {
	Success bool    `json:"success"`
	Job     jobView `json:"job"`
}

func (h *ImportHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		problem.Write(w, r, http.StatusBadRequest, problem.CodeBadRequest, "Job id is required", nil, h.env)
		return
	}

	job, err := h.jobs.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, recipes.ErrJobNotFound) {
			problem.Write(w, r, http.StatusNotFound, problem.CodeNotFound, "Job not found", err, h.env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, problem.CodeInternal, "Could not load job", err, h.env)
		return
	}

	writeJSON(w, http.StatusOK, jobResponse{Success: true, Job: newJobView(job)})
}
