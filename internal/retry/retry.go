// Package retry provides the backoff schedule shared by the catalog
// fetcher and the embedding pipeline. The loops themselves live at the
// call sites, where the error classification decides whether another
// attempt makes sense.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Defaults for the exponential schedule.
const (
	DefaultBase       = 1.5
	DefaultMaxRetries = 6

	maxJitter = 500 * time.Millisecond
)

// Policy computes per-attempt delays: base^attempt seconds plus a
// uniform jitter in [0, 500ms) to avoid synchronized retry storms.
type Policy struct {
	Base       float64 // exponent base, in seconds; <=0 means DefaultBase
	MaxRetries int     // retries allowed after the initial attempt
}

// Delay returns the backoff before retry number attempt, where attempt
// is the 0-based count of failures so far.
func (p Policy) Delay(attempt int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = DefaultBase
	}
	backoff := time.Duration(math.Pow(base, float64(attempt)) * float64(time.Second))
	return backoff + time.Duration(rand.Int63n(int64(maxJitter)))
}

// Exhausted reports whether attempt failures have used up the retry
// budget.
func (p Policy) Exhausted(attempt int) bool {
	limit := p.MaxRetries
	if limit <= 0 {
		limit = DefaultMaxRetries
	}
	return attempt >= limit
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
