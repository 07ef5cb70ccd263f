// Package ratelimit provides a token bucket that paces calls to a shared
// backend.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIG
// ══════════════════════════════════════════════════════════════════════════════

// Config describes the bucket.
type Config struct {
	// Rate is the sustained number of calls per second. Zero or less
	// disables limiting.
	Rate float64

	// Burst is the bucket size. At least 1.
	Burst int

	// MaxWait bounds how long Wait blocks for one token. Zero means the
	// context deadline alone applies.
	MaxWait time.Duration
}

// FactSourceConfig paces the nightly batch against the fact source.
func FactSourceConfig() Config {
	return Config{
		Rate:    20,
		Burst:   5,
		MaxWait: 30 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LIMITER
// ══════════════════════════════════════════════════════════════════════════════

// WaitError is returned when a token cannot be had within MaxWait.
type WaitError struct {
	RetryAfter time.Duration
}

func (e *WaitError) Error() string {
	return fmt.Sprintf("rate limit: no token available, retry after %s", e.RetryAfter)
}

// Limiter is a token bucket. A nil *Limiter allows everything.
type Limiter struct {
	mu sync.Mutex

	rate    float64
	burst   float64
	maxWait time.Duration

	tokens float64
	last   time.Time
	now    func() time.Time
}

// New creates a limiter with a full bucket. It returns nil when cfg.Rate is
// not positive.
func New(cfg Config) *Limiter {
	if cfg.Rate <= 0 {
		return nil
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	l := &Limiter{
		rate:    cfg.Rate,
		burst:   float64(cfg.Burst),
		maxWait: cfg.MaxWait,
		tokens:  float64(cfg.Burst),
		now:     time.Now,
	}
	l.last = l.now()
	return l
}

// Wait blocks until a token is available, ctx is done or MaxWait is exceeded.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}

	for {
		wait, ok := l.reserve()
		if ok {
			return nil
		}
		if l.maxWait > 0 && wait > l.maxWait {
			return &WaitError{RetryAfter: wait}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TryAcquire takes a token without blocking.
func (l *Limiter) TryAcquire() bool {
	if l == nil {
		return true
	}
	_, ok := l.reserve()
	return ok
}

// Available returns the current number of tokens.
func (l *Limiter) Available() float64 {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	return l.tokens
}

func (l *Limiter) reserve() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	if l.tokens >= 1 {
		l.tokens--
		return 0, true
	}
	missing := 1 - l.tokens
	return time.Duration(missing / l.rate * float64(time.Second)), false
}

// refill must be called with mu held.
func (l *Limiter) refill() {
	now := l.now()
	elapsed := now.Sub(l.last).Seconds()
	if elapsed <= 0 {
		return
	}
	l.tokens += elapsed * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
	l.last = now
}
