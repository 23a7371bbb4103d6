package designgen

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPollTimeout is returned when a deferred job stays pending past the
	// maximum poll attempt count.
	ErrPollTimeout = errors.New("polling attempts exhausted before job completed")

	// ErrUnusableResponse is returned when a submission response carries
	// neither inline image data nor a polling URL.
	ErrUnusableResponse = errors.New("provider response contains neither image data nor polling URL")

	// ErrMissingAPIKey is returned when a required provider credential is
	// absent from the environment. This is a configuration error, never retried.
	ErrMissingAPIKey = errors.New("provider API key is not configured")

	// ErrStorageNotConfigured is returned when storage operations are attempted
	// without a configured storage backend.
	ErrStorageNotConfigured = errors.New("storage not configured")
)

// ProviderError reports a non-success HTTP status from a provider call
// (submission, polling, or result-image fetch). It is fatal for the job;
// transport-level failures are never retried.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Provider, e.StatusCode)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// MalformedResponseError reports a provider body that failed JSON parsing
// where JSON was expected. Excerpt holds a truncated copy of the raw body
// for diagnostics.
type MalformedResponseError struct {
	Provider string
	Excerpt  string
	Err      error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response body: %q", e.Provider, e.Excerpt)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// JobFailedError reports an explicit failure status from the provider for a
// submitted job. Reason carries the provider-supplied message when present.
type JobFailedError struct {
	Provider string
	Reason   string
}

func (e *JobFailedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: generation failed: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("%s: generation failed", e.Provider)
}

// RateLimitError is returned when a rate limit is hit.
type RateLimitError struct {
	RetryAfter time.Duration
	LimitType  string
	Model      string
	Err        error // Underlying error from the provider
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: %s limit, retry after %v",
		e.Model, e.LimitType, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// IsRateLimitError checks if an error is a RateLimitError.
func IsRateLimitError(err error) bool {
	var rlErr *RateLimitError
	return errors.As(err, &rlErr)
}

// IsJobFailed checks if an error is a provider-reported job failure.
func IsJobFailed(err error) bool {
	var jfErr *JobFailedError
	return errors.As(err, &jfErr)
}
