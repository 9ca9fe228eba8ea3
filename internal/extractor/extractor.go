// Package extractor turns fetched page text into a structured recipe candidate
// using a language-model completion.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Togather-Foundation/recipes/internal/metrics"
	"github.com/Togather-Foundation/recipes/internal/retry"
)

const (
	DefaultMaxAttempts     = 3
	DefaultBaseDelay       = 2 * time.Second
	DefaultMaxContentChars = 24000
)

var (
	// ErrParse marks output that could not be turned into JSON. Retried.
	ErrParse = errors.New("extraction output could not be parsed")
	// ErrValidation marks well-formed output with the wrong shape. Terminal.
	ErrValidation = errors.New("extraction output failed validation")
	// ErrCompletion marks a failed completion request.
	ErrCompletion = errors.New("completion request failed")
)

// Candidate is a recipe as recovered from a page, before QA.
type Candidate struct {
	Name         string   `json:"name" validate:"required"`
	Description  string   `json:"description"`
	Ingredients  []string `json:"ingredients" validate:"required,min=1,dive,required"`
	Instructions []string `json:"instructions" validate:"required,min=1,dive,required"`
	Cuisine      string   `json:"cuisine"`
	Tags         []string `json:"tags"`
}

// Source is the fetched material handed to extraction.
type Source struct {
	URL         string
	Title       string
	Description string
	Content     string
}

// Error is the terminal extraction failure. It never carries a partial candidate.
type Error struct {
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extraction failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type Config struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxContentChars int
}

type Extractor struct {
	completer Completer
	policy    retry.Policy
	maxChars  int
	logger    zerolog.Logger
}

func New(completer Completer, cfg Config, logger zerolog.Logger) *Extractor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxContentChars <= 0 {
		cfg.MaxContentChars = DefaultMaxContentChars
	}

	policy := retry.DefaultPolicy(cfg.MaxAttempts, cfg.BaseDelay)
	policy.IsRetryable = func(err error) bool {
		return !errors.Is(err, ErrValidation) && !errors.Is(err, ErrCompletionRejected)
	}

	return &Extractor{
		completer: completer,
		policy:    policy,
		maxChars:  cfg.MaxContentChars,
		logger:    logger,
	}
}

// Extract calls the model at most MaxAttempts times and returns the first
// candidate that parses and validates.
func (e *Extractor) Extract(ctx context.Context, src Source) (*Candidate, error) {
	if src.Content == "" {
		return nil, &Error{Attempts: 0, Err: fmt.Errorf("%w: no page content", ErrValidation)}
	}
	prompt := userPrompt(src, e.maxChars)

	var candidate *Candidate
	attempts, err := e.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		raw, err := e.completer.Complete(ctx, systemPrompt, prompt)
		if err != nil {
			metrics.ExtractionAttempts.WithLabelValues("completion").Inc()
			return fmt.Errorf("%w: %w", ErrCompletion, err)
		}
		parsed, err := parseCandidate(raw)
		if err != nil {
			metrics.ExtractionAttempts.WithLabelValues(resultLabel(err)).Inc()
			return err
		}
		metrics.ExtractionAttempts.WithLabelValues("success").Inc()
		candidate = parsed
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		e.logger.Warn().
			Err(err).
			Str("url", src.URL).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("extractor: attempt failed, retrying")
	})
	if err != nil {
		return nil, &Error{Attempts: attempts, Err: err}
	}
	return candidate, nil
}

func resultLabel(err error) string {
	if errors.Is(err, ErrValidation) {
		return "validation"
	}
	return "parse"
}
