// Package ingest drives a single recipe URL through fetch, extraction, QA and
// persistence, and reports the outcome as a Result instead of an error.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Togather-Foundation/recipes/internal/domain/recipes"
	"github.com/Togather-Foundation/recipes/internal/extractor"
	"github.com/Togather-Foundation/recipes/internal/fetcher"
	"github.com/Togather-Foundation/recipes/internal/metrics"
	"github.com/Togather-Foundation/recipes/internal/qa"
	"github.com/Togather-Foundation/recipes/internal/retry"
	"github.com/Togather-Foundation/recipes/internal/telemetry"
)

const (
	DefaultFetchAttempts  = 3
	DefaultFetchBaseDelay = time.Second
	DefaultURLTimeout     = 3 * time.Minute
)

// Stage names the step an import was in when it finished.
type Stage string

const (
	StageFetching   Stage = "fetching"
	StageExtracting Stage = "extracting"
	StageValidating Stage = "validating"
	StagePersisting Stage = "persisting"
	StageDone       Stage = "done"
)

var (
	// ErrRejected is returned when QA classifies the candidate as removed.
	ErrRejected = errors.New("recipe rejected by quality checks")
	// ErrPanic marks an import that panicked and was recovered.
	ErrPanic = errors.New("import panicked")
)

type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetcher.Page, error)
}

type Extractor interface {
	Extract(ctx context.Context, src extractor.Source) (*extractor.Candidate, error)
}

type Classifier interface {
	Classify(candidate extractor.Candidate) qa.Assessment
}

// Request is one URL to import, optionally attributed to an owner.
type Request struct {
	URL     string
	OwnerID *string
}

// Attempt records one pass through a stage. It lives only as long as the Result.
type Attempt struct {
	Number int    `json:"number"`
	Stage  Stage  `json:"stage"`
	Error  string `json:"error,omitempty"`
}

// Result is the outcome of one Import. Import never returns an error; failures
// are carried here.
type Result struct {
	Success         bool
	URL             string
	Recipe          *recipes.Recipe
	Error           error
	Stage           Stage
	AlreadyImported bool
	Attempts        []Attempt
}

type Config struct {
	FetchAttempts  int
	FetchBaseDelay time.Duration
	URLTimeout     time.Duration
	// DefaultPublish applies to recipes imported without an owner.
	DefaultPublish bool
}

type Orchestrator struct {
	fetcher    Fetcher
	extractor  Extractor
	classifier Classifier
	repo       recipes.Repository
	service    *recipes.Service
	fetchRetry retry.Policy
	urlTimeout time.Duration
	logger     zerolog.Logger
	tracer     trace.Tracer
}

func NewOrchestrator(f Fetcher, e Extractor, c Classifier, repo recipes.Repository, cfg Config, logger zerolog.Logger) *Orchestrator {
	if cfg.FetchAttempts <= 0 {
		cfg.FetchAttempts = DefaultFetchAttempts
	}
	if cfg.FetchBaseDelay <= 0 {
		cfg.FetchBaseDelay = DefaultFetchBaseDelay
	}
	if cfg.URLTimeout <= 0 {
		cfg.URLTimeout = DefaultURLTimeout
	}

	policy := retry.DefaultPolicy(cfg.FetchAttempts, cfg.FetchBaseDelay)
	policy.IsRetryable = fetcher.IsTransient

	return &Orchestrator{
		fetcher:    f,
		extractor:  e,
		classifier: c,
		repo:       repo,
		service:    recipes.NewService(repo, cfg.DefaultPublish),
		fetchRetry: policy,
		urlTimeout: cfg.URLTimeout,
		logger:     logger.With().Str("component", "ingest").Logger(),
		tracer:     telemetry.GetTracer("github.com/Togather-Foundation/recipes/internal/ingest"),
	}
}

// Import runs the pipeline for one URL. Stages run strictly in order and a
// terminal failure in any stage ends the import there.
func (o *Orchestrator) Import(ctx context.Context, req Request) (result Result) {
	start := time.Now()
	result = Result{URL: req.URL, Stage: StageFetching}

	ctx, span := o.tracer.Start(ctx, "ingest.Import", trace.WithAttributes(attribute.String("recipe.url", req.URL)))
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			o.logger.Error().
				Str("url", req.URL).
				Str("stage", string(result.Stage)).
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("import panicked")
			result.Success = false
			result.Recipe = nil
			result.Error = fmt.Errorf("%w: %v", ErrPanic, rec)
		}
		o.observe(span, &result, time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, o.urlTimeout)
	defer cancel()

	canonical, err := fetcher.CanonicalURL(req.URL)
	if err != nil {
		return o.fail(result, StageFetching, err)
	}

	ownerID := req.OwnerID
	if ownerID != nil && *ownerID == "" {
		ownerID = nil
	}
	publish, err := o.service.PublishDefault(ctx, ownerID)
	if err != nil {
		return o.fail(result, StageFetching, fmt.Errorf("resolve owner: %w", err))
	}

	existing, err := o.repo.GetByCanonicalURL(ctx, canonical)
	switch {
	case err == nil:
		return o.alreadyImported(ctx, result, existing, ownerID)
	case !errors.Is(err, recipes.ErrNotFound):
		return o.fail(result, StagePersisting, fmt.Errorf("%w: %w", recipes.ErrPersistence, err))
	}

	page, err := o.fetch(ctx, req.URL, &result)
	if err != nil {
		return o.fail(result, StageFetching, err)
	}

	result.Stage = StageExtracting
	candidate, err := o.extract(ctx, canonical, page, &result)
	if err != nil {
		return o.fail(result, StageExtracting, err)
	}

	result.Stage = StageValidating
	assessment := o.classifier.Classify(*candidate)
	metrics.QAClassifications.WithLabelValues(string(assessment.Status)).Inc()
	if assessment.Status == recipes.QARemoved {
		return o.fail(result, StageValidating, fmt.Errorf("%w: %s", ErrRejected, assessment.NotesText()))
	}

	result.Stage = StagePersisting
	saved, err := o.persist(ctx, req.URL, canonical, ownerID, candidate, assessment, publish)
	if err != nil {
		if errors.Is(err, recipes.ErrConflict) {
			recipe, getErr := o.repo.GetByCanonicalURL(ctx, canonical)
			if getErr == nil {
				return o.alreadyImported(ctx, result, recipe, ownerID)
			}
		}
		return o.fail(result, StagePersisting, err)
	}

	result.Stage = StageDone
	result.Success = true
	result.Recipe = saved.Recipe
	result.AlreadyImported = !saved.Created
	o.logger.Info().
		Str("url", req.URL).
		Str("recipe_id", saved.Recipe.ID).
		Str("qa_status", string(saved.Recipe.QAStatus)).
		Bool("created", saved.Created).
		Bool("public", saved.Recipe.IsPublic).
		Msg("recipe imported")
	return result
}

func (o *Orchestrator) fetch(ctx context.Context, url string, result *Result) (*fetcher.Page, error) {
	ctx, span := o.tracer.Start(ctx, "ingest.fetch")
	defer span.End()

	var page *fetcher.Page
	_, err := o.fetchRetry.Do(ctx, func(ctx context.Context, attempt int) error {
		p, err := o.fetcher.Fetch(ctx, url)
		a := Attempt{Number: attempt, Stage: StageFetching}
		if err != nil {
			a.Error = err.Error()
			result.Attempts = append(result.Attempts, a)
			if fetcher.IsTransient(err) {
				metrics.FetchAttempts.WithLabelValues("transient").Inc()
			} else {
				metrics.FetchAttempts.WithLabelValues("permanent").Inc()
			}
			return err
		}
		result.Attempts = append(result.Attempts, a)
		metrics.FetchAttempts.WithLabelValues("success").Inc()
		page = p
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		o.logger.Warn().
			Err(err).
			Str("url", url).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("fetch failed, retrying")
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return page, nil
}

func (o *Orchestrator) extract(ctx context.Context, canonical string, page *fetcher.Page, result *Result) (*extractor.Candidate, error) {
	ctx, span := o.tracer.Start(ctx, "ingest.extract")
	defer span.End()

	candidate, err := o.extractor.Extract(ctx, extractor.Source{
		URL:         canonical,
		Title:       page.Metadata.Title,
		Description: page.Metadata.Description,
		Content:     page.Content(),
	})
	a := Attempt{Number: 1, Stage: StageExtracting}
	var extractErr *extractor.Error
	if errors.As(err, &extractErr) && extractErr.Attempts > 0 {
		a.Number = extractErr.Attempts
	}
	if err != nil {
		a.Error = err.Error()
		span.RecordError(err)
	}
	result.Attempts = append(result.Attempts, a)
	return candidate, err
}

func (o *Orchestrator) persist(ctx context.Context, sourceURL, canonical string, ownerID *string, candidate *extractor.Candidate, assessment qa.Assessment, publish bool) (*recipes.SaveResult, error) {
	ctx, span := o.tracer.Start(ctx, "ingest.persist")
	defer span.End()

	saved, err := o.repo.SaveImported(ctx, recipes.ImportParams{
		Name:         candidate.Name,
		Slug:         recipes.Slugify(candidate.Name),
		Description:  candidate.Description,
		Ingredients:  candidate.Ingredients,
		Instructions: candidate.Instructions,
		Cuisine:      candidate.Cuisine,
		Tags:         candidate.Tags,
		SourceURL:    sourceURL,
		CanonicalURL: canonical,
		OwnerID:      ownerID,
		IsPublic:     qa.Visibility(assessment.Status, publish),
		QAStatus:     assessment.Status,
		QAMethod:     assessment.Method,
		QAConfidence: assessment.Confidence,
		QANotes:      assessment.NotesText(),
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return saved, nil
}

// alreadyImported turns a canonical URL hit into a successful no-op, recording
// the owner link when one is missing. Soft-deleted recipes are left alone.
func (o *Orchestrator) alreadyImported(ctx context.Context, result Result, recipe *recipes.Recipe, ownerID *string) Result {
	if ownerID != nil && recipe.DeletedAt == nil {
		if _, err := o.repo.LinkOwner(ctx, *ownerID, recipe.ID); err != nil {
			return o.fail(result, StagePersisting, err)
		}
	}
	result.Stage = StageDone
	result.Success = true
	result.AlreadyImported = true
	result.Recipe = recipe
	o.logger.Debug().Str("url", result.URL).Str("recipe_id", recipe.ID).Msg("recipe already imported")
	return result
}

func (o *Orchestrator) fail(result Result, stage Stage, err error) Result {
	result.Stage = stage
	result.Success = false
	result.Recipe = nil
	result.Error = err
	o.logger.Warn().Err(err).Str("url", result.URL).Str("stage", string(stage)).Msg("import failed")
	return result
}

func (o *Orchestrator) observe(span trace.Span, result *Result, elapsed time.Duration) {
	outcome := "failed"
	switch {
	case result.Success && result.AlreadyImported:
		outcome = "already_imported"
	case result.Success:
		outcome = "created"
	}
	metrics.ImportsTotal.WithLabelValues(outcome, string(result.Stage)).Inc()
	metrics.ImportDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())

	span.SetAttributes(
		attribute.String("ingest.outcome", outcome),
		attribute.String("ingest.stage", string(result.Stage)),
	)
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, result.Error.Error())
	}
}
