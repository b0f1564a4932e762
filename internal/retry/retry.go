// Package retry runs a single unit of work with a fixed number of attempts
// and a constant pause between them.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"newsquiz/internal/logger"
)

// ErrExhausted wraps the last error once every attempt has failed.
var ErrExhausted = errors.New("retry attempts exhausted")

const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = 2 * time.Second
)

// Sleeper pauses between attempts. It must return ctx.Err() if ctx ends first.
type Sleeper func(ctx context.Context, d time.Duration) error

// Policy is a fixed-backoff retry policy. Backoff does not grow between attempts.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
	Sleep       Sleeper
	Logger      *slog.Logger
}

// NewPolicy returns a policy with the given limits, falling back to defaults
// for non-positive values.
func NewPolicy(maxAttempts int, backoff time.Duration) *Policy {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	return &Policy{
		MaxAttempts: maxAttempts,
		Backoff:     backoff,
		Sleep:       ContextSleep,
		Logger:      logger.Get(),
	}
}

// ContextSleep waits for d or until ctx is done.
func ContextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do runs fn until it succeeds or MaxAttempts is reached. unit names the
// work item in logs. Cancellation during backoff abandons the unit and
// returns an error wrapping ctx.Err().
func (p *Policy) Do(ctx context.Context, unit string, fn func(ctx context.Context) error) error {
	log := p.Logger
	if log == nil {
		log = logger.Get()
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = ContextSleep
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 1 {
				log.Info("unit succeeded after retry", "unit", unit, "attempt", attempt)
			}
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			log.Warn("unit failed permanently", "unit", unit, "attempt", attempt, "error", perm.err)
			return perm.err
		}

		log.Warn("unit attempt failed",
			"unit", unit,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", lastErr)

		if attempt == maxAttempts {
			break
		}

		if err := sleep(ctx, p.Backoff); err != nil {
			log.Warn("retry cancelled during backoff", "unit", unit, "attempt", attempt, "error", err)
			return fmt.Errorf("retry %s cancelled: %w", unit, err)
		}
	}

	log.Error("unit abandoned after retries", "unit", unit, "attempts", maxAttempts, "error", lastErr)
	return fmt.Errorf("%w: %s after %d attempts: %w", ErrExhausted, unit, maxAttempts, lastErr)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error
// immediately without sleeping.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}
