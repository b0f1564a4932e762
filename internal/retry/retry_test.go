package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingSleeper struct {
	calls []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.calls = append(r.calls, d)
	return ctx.Err()
}

func TestDoSucceedsOnThirdAttempt(t *testing.T) {
	s := &recordingSleeper{}
	p := NewPolicy(3, 2*time.Second)
	p.Sleep = s.sleep

	attempts := 0
	err := p.Do(context.Background(), "article-1", func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	if len(s.calls) != 2 {
		t.Fatalf("Expected exactly 2 sleeps, got %d", len(s.calls))
	}
	for i, d := range s.calls {
		if d != 2*time.Second {
			t.Errorf("Sleep %d: expected fixed 2s backoff, got %v", i, d)
		}
	}
}

func TestDoExhausted(t *testing.T) {
	s := &recordingSleeper{}
	p := NewPolicy(3, time.Second)
	p.Sleep = s.sleep

	cause := errors.New("bad gateway")
	attempts := 0
	err := p.Do(context.Background(), "article-2", func(ctx context.Context) error {
		attempts++
		return cause
	})

	if !errors.Is(err, ErrExhausted) {
		t.Errorf("Expected ErrExhausted, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("Expected last error to be wrapped, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected no fourth attempt, got %d attempts", attempts)
	}
	if len(s.calls) != 2 {
		t.Errorf("Expected 2 sleeps, got %d", len(s.calls))
	}
}

func TestDoCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPolicy(3, time.Hour)

	attempts := 0
	err := p.Do(ctx, "article-3", func(ctx context.Context) error {
		attempts++
		cancel()
		return errors.New("transient")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled to propagate, got %v", err)
	}
	if errors.Is(err, ErrExhausted) {
		t.Error("Cancellation must not be reported as exhaustion")
	}
	if attempts != 1 {
		t.Errorf("Expected unit abandoned after 1 attempt, got %d", attempts)
	}
}

func TestNewPolicyDefaults(t *testing.T) {
	p := NewPolicy(0, 0)
	if p.MaxAttempts != DefaultMaxAttempts || p.Backoff != DefaultBackoff {
		t.Errorf("Unexpected defaults: %d, %v", p.MaxAttempts, p.Backoff)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	s := &recordingSleeper{}
	p := NewPolicy(3, time.Second)
	p.Sleep = s.sleep

	cause := errors.New("article missing")
	attempts := 0
	err := p.Do(context.Background(), "article-3", func(ctx context.Context) error {
		attempts++
		return Permanent(cause)
	})

	if err != cause {
		t.Errorf("Expected the unwrapped cause, got %v", err)
	}
	if errors.Is(err, ErrExhausted) {
		t.Error("Permanent failure must not be reported as exhaustion")
	}
	if attempts != 1 || len(s.calls) != 0 {
		t.Errorf("Expected a single attempt without sleeping, got %d attempts and %d sleeps", attempts, len(s.calls))
	}
	if Permanent(nil) != nil {
		t.Error("Expected Permanent(nil) to be nil")
	}
}
