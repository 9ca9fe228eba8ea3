package fetcher

import (
	"errors"
	"fmt"
)

var (
	// ErrTransient matches any fetch failure worth retrying.
	ErrTransient = errors.New("transient fetch failure")
	// ErrPermanent matches fetch failures that will not change on retry.
	ErrPermanent = errors.New("permanent fetch failure")
	// ErrProviderUnavailable marks failures to reach the fetch provider at all.
	ErrProviderUnavailable = errors.New("fetch provider unavailable")
	// ErrDisallowed is returned when robots.txt forbids the page.
	ErrDisallowed = errors.New("disallowed by robots.txt")
)

// TransientError is a fetch failure that may succeed on a later attempt:
// timeouts, network errors, rate limiting and 5xx responses.
type TransientError struct {
	URL        string
	StatusCode int
	Reason     string
	Err        error
}

func (e *TransientError) Error() string {
	return formatFetchError("transient", e.URL, e.StatusCode, e.Reason, e.Err)
}

func (e *TransientError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransient}
	}
	return []error{ErrTransient, e.Err}
}

// PermanentError is a fetch failure that retrying cannot fix: not found,
// malformed URL, disallowed by policy.
type PermanentError struct {
	URL        string
	StatusCode int
	Reason     string
	Err        error
}

func (e *PermanentError) Error() string {
	return formatFetchError("permanent", e.URL, e.StatusCode, e.Reason, e.Err)
}

func (e *PermanentError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrPermanent}
	}
	return []error{ErrPermanent, e.Err}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsProviderUnavailable reports whether err means the provider itself could not be reached.
func IsProviderUnavailable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}

func formatFetchError(kind, url string, status int, reason string, err error) string {
	msg := fmt.Sprintf("%s fetch failure for %q", kind, url)
	if status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", status)
	}
	if reason != "" {
		msg += ": " + reason
	}
	if err != nil {
		msg += ": " + err.Error()
	}
	return msg
}
