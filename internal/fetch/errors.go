package fetch

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidProxyAddress is returned when the proxy address format is invalid.
	// Expected format is "host:port".
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrTransientStatus marks a response whose status code is worth retrying.
	ErrTransientStatus = errors.New("transient HTTP status")
)

// FetchError describes a failed or retryable fetch attempt.
type FetchError struct {
	// URL is the requested URL.
	URL string
	// Attempts is how many requests were made.
	Attempts int
	// StatusCode is set when the failure was a transient HTTP status.
	StatusCode int
	// RetryAfter is the server-requested wait, zero when absent.
	RetryAfter time.Duration
	// Retryable tells the retry loop whether another attempt may help.
	Retryable bool
	// Err is the underlying cause.
	Err error

	hasRetryAfter bool
}

// Error implements error.
func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// shouldRetry is the retry policy: attempt is zero-based.
func shouldRetry(err *FetchError, attempt, maxRetries int) bool {
	return err != nil && err.Retryable && attempt < maxRetries
}

// backoff returns the wait before the next attempt.
func backoff(err *FetchError, base time.Duration, attempt int) time.Duration {
	if err != nil && err.hasRetryAfter {
		return err.RetryAfter
	}
	return base * time.Duration(1<<attempt)
}
