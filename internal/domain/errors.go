package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrTransientRemote marks remote failures worth retrying: 429, 5xx,
	// timeouts, temporary network faults.
	ErrTransientRemote = errors.New("transient remote failure")
	// ErrPermanentRemote marks remote failures that retrying cannot fix:
	// non-429 4xx and malformed response bodies.
	ErrPermanentRemote = errors.New("permanent remote failure")
	// ErrDataValidation marks a source record missing required fields.
	// Such records are skipped, never escalated.
	ErrDataValidation = errors.New("record validation failed")
	// ErrStoreConflict marks a unique-key violation outside the expected
	// upsert path. Fatal for the operation in progress.
	ErrStoreConflict = errors.New("store conflict")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
)

// RateLimitError wraps ErrTransientRemote with the server's Retry-After hint.
type RateLimitError struct {
	RetryAfter time.Duration // zero when the server sent no usable hint
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

func (e *RateLimitError) Unwrap() error { return ErrTransientRemote }

// ClassifyHTTPStatus maps a response status onto the error taxonomy:
// 2xx is nil, 429 and 5xx are transient, remaining non-2xx are permanent.
func ClassifyHTTPStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests, status >= 500:
		return fmt.Errorf("status %d: %w", status, ErrTransientRemote)
	default:
		return fmt.Errorf("status %d: %w", status, ErrPermanentRemote)
	}
}

// IsTransient reports whether err is retryable under the taxonomy.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientRemote)
}

// RetryAfterHint extracts a server-provided retry delay from err, if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter, true
	}
	return 0, false
}
