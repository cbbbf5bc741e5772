// Package ratelimit gates calls to a remote dependency behind a shared
// minimum-interval budget.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limiter serializes acquisitions so that no two grants happen closer
// than 1/rps apart, across every goroutine sharing the instance. The
// gate is the elapsed-time budget, not call-order fairness.
type Limiter struct {
	l *rate.Limiter
}

// New builds a limiter for the given requests-per-second budget.
// rps <= 0 degrades to unthrottled: Acquire never blocks.
func New(rps float64) *Limiter {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Limiter{l: rate.NewLimiter(limit, 1)}
}

// Acquire blocks until the budget grants a slot or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.l.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}
