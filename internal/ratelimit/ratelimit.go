// Package ratelimit gates every call to the AI backend behind one shared token bucket.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// ErrAcquireTimeout is returned when a bounded wait for a token expires.
var ErrAcquireTimeout = errors.New("rate limiter: acquire timed out")

const (
	DefaultCapacity       = 30
	DefaultRefillInterval = 2 * time.Second
)

// Config describes the bucket. A zero AcquireTimeout waits without bound.
type Config struct {
	Capacity       int
	RefillInterval time.Duration
	AcquireTimeout time.Duration
}

// Limiter is a token bucket shared by all AI-calling units. It never rejects
// on its own; it only delays callers until a token is available.
type Limiter struct {
	bucket  *rate.Limiter
	timeout time.Duration
}

// New creates a limiter that starts full and refills one token per interval.
func New(cfg Config) *Limiter {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = DefaultRefillInterval
	}
	return &Limiter{
		bucket:  rate.NewLimiter(rate.Every(cfg.RefillInterval), cfg.Capacity),
		timeout: cfg.AcquireTimeout,
	}
}

// Acquire blocks until one token is taken, ctx is done, or the acquire
// timeout (if configured) elapses.
func (l *Limiter) Acquire(ctx context.Context) error {
	waitCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	if err := l.bucket.Wait(waitCtx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("rate limiter: %w", ctxErr)
		}
		// Wait fails fast when the deadline cannot be met, before waitCtx is done.
		if l.timeout > 0 {
			return ErrAcquireTimeout
		}
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// Available reports the number of tokens currently in the bucket.
func (l *Limiter) Available() float64 {
	return l.bucket.Tokens()
}
