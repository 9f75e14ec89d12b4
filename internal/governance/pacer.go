// Package governance holds the invocation pacing primitive the simulator
// uses to keep attack batteries from hammering a real provider.
package governance

import (
	"context"
	"sync"
	"time"
)

// Pacer enforces an invocation rate with a token bucket. The bucket starts
// full, refills continuously and caps at the burst size. A nil or zero-rate
// pacer admits everything.
type Pacer struct {
	mu         sync.Mutex
	rate       float64 // tokens per second
	capacity   float64
	tokens     float64
	lastRefill time.Time
}

// PacerStats exposes the current state of the bucket.
type PacerStats struct {
	Rate      int     `json:"rate"`
	Burst     int     `json:"burst"`
	Available float64 `json:"available"`
}

// NewPacer builds a pacer admitting rps invocations per second with the
// given burst. Burst <= 0 defaults to the rate; rps <= 0 disables pacing.
func NewPacer(rps, burst int) *Pacer {
	if rps <= 0 {
		return &Pacer{}
	}
	if burst <= 0 {
		burst = rps
	}
	return &Pacer{
		rate:       float64(rps),
		capacity:   float64(burst),
		tokens:     float64(burst),
		lastRefill: time.Now(),
	}
}

// Allow consumes a token when one is free, without blocking.
func (p *Pacer) Allow() bool {
	if p == nil || p.rate == 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.refill()
	if p.tokens >= 1.0 {
		p.tokens -= 1.0
		return true
	}
	return false
}

// Wait blocks until a token is free or the context ends.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p == nil || p.rate == 0 {
		return nil
	}

	for {
		p.mu.Lock()
		p.refill()
		if p.tokens >= 1.0 {
			p.tokens -= 1.0
			p.mu.Unlock()
			return nil
		}
		// Sleep just long enough for the deficit to refill, then re-race
		// for the token; another waiter may have taken it first.
		deficit := 1.0 - p.tokens
		p.mu.Unlock()

		timer := time.NewTimer(time.Duration(deficit / p.rate * float64(time.Second)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Stats reports the bucket's configuration and available tokens.
func (p *Pacer) Stats() PacerStats {
	if p == nil || p.rate == 0 {
		return PacerStats{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.refill()
	return PacerStats{
		Rate:      int(p.rate),
		Burst:     int(p.capacity),
		Available: p.tokens,
	}
}

// refill adds tokens for the elapsed time, capped at capacity. Callers hold
// the mutex.
func (p *Pacer) refill() {
	now := time.Now()
	p.tokens += now.Sub(p.lastRefill).Seconds() * p.rate
	if p.tokens > p.capacity {
		p.tokens = p.capacity
	}
	p.lastRefill = now
}
