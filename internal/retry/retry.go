// Package retry holds the single retry policy shared by page fetching and
// recipe extraction.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrMaxAttemptsExceeded wraps the last error once every attempt has been spent.
var ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")

// Policy describes how an operation is retried.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	// Jitter is the backoff randomization factor in [0,1).
	Jitter float64
	// IsRetryable decides whether an error earns another attempt. Nil retries everything.
	IsRetryable func(error) bool
}

// Notify is called after a failed attempt that will be retried.
type Notify func(attempt int, err error, wait time.Duration)

// DefaultPolicy returns exponential backoff starting at base, doubling, capped at one minute.
func DefaultPolicy(maxAttempts int, base time.Duration) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   base,
		Multiplier:  2,
		MaxDelay:    time.Minute,
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, the context ends,
// or MaxAttempts is reached. It returns the number of attempts made.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error, notify Notify) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	attempt := 0
	op := func() error {
		attempt++
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !p.retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	// WithMaxRetries treats zero as unlimited, so a single attempt bypasses backoff.
	if maxAttempts == 1 {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		err := op()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return attempt, perm.Err
		}
		if err != nil {
			return attempt, fmt.Errorf("%w: %w", ErrMaxAttemptsExceeded, err)
		}
		return attempt, nil
	}

	b := p.backOff(ctx, maxAttempts)
	err := backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		if notify != nil {
			notify(attempt, err, wait)
		}
	})
	if err == nil {
		return attempt, nil
	}
	if ctx.Err() == nil && attempt >= maxAttempts && p.retryable(err) {
		return attempt, fmt.Errorf("%w: %w", ErrMaxAttemptsExceeded, err)
	}
	return attempt, err
}

// Delay returns the nominal wait before the given retry, without jitter.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= p.multiplier()
	}
	if maxDelay := p.maxDelay(); time.Duration(delay) > maxDelay {
		return maxDelay
	}
	return time.Duration(delay)
}

func (p Policy) backOff(ctx context.Context, maxAttempts int) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	exp.Multiplier = p.multiplier()
	exp.RandomizationFactor = p.Jitter
	exp.MaxInterval = p.maxDelay()
	exp.MaxElapsedTime = 0
	exp.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(maxAttempts-1)), ctx)
}

func (p Policy) retryable(err error) bool {
	if p.IsRetryable == nil {
		return true
	}
	return p.IsRetryable(err)
}

func (p Policy) multiplier() float64 {
	if p.Multiplier <= 1 {
		return 2
	}
	return p.Multiplier
}

func (p Policy) maxDelay() time.Duration {
	if p.MaxDelay <= 0 {
		return time.Minute
	}
	return p.MaxDelay
}
