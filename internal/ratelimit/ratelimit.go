// Package ratelimit paces live scenario replay with golang.org/x/time/rate.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Pacer throttles tick emission when a human is watching the replay.
// A nil Pacer (or one built with rate <= 0) never blocks, which is the
// batch-mode default.
type Pacer struct {
	limiter *rate.Limiter
}

// New creates a Pacer that releases ticksPerSecond ticks.
func New(ticksPerSecond float64) *Pacer {
	if ticksPerSecond <= 0 {
		return &Pacer{}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Limit(ticksPerSecond), 1)}
}

// Wait blocks until the next tick may run or the context is cancelled.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.limiter == nil {
		return ctx.Err()
	}
	return p.limiter.Wait(ctx)
}

// SetRate updates the replay speed mid-run.
func (p *Pacer) SetRate(ticksPerSecond float64) {
	if p == nil || p.limiter == nil {
		return
	}
	p.limiter.SetLimit(rate.Limit(ticksPerSecond))
}
