package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeTx struct {
	commitErr  error
	committed  atomic.Bool
	rolledBack atomic.Bool
	onCommit   func()
}

func (f *fakeTx) Commit() error {
	if f.onCommit != nil {
		f.onCommit()
	}
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed.Store(true)
	return nil
}

func (f *fakeTx) Rollback() error {
	f.rolledBack.Store(true)
	return nil
}

func waitBus(t *testing.T, b *Bus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
}

func TestAfterCommitHandlerRunsOnceAfterCommit(t *testing.T) {
	bus := NewBus()
	tx := &fakeTx{}

	var calls atomic.Int32
	var sawCommitted atomic.Bool
	bus.Subscribe(TypeArticlePersisted, "quiz", func(ctx context.Context, e Event) error {
		calls.Add(1)
		sawCommitted.Store(tx.committed.Load())
		return nil
	}, SubscribeOptions{AfterCommit: true})

	scope := bus.Begin(tx)
	if err := scope.Publish(context.Background(), Event{Type: TypeArticlePersisted, ArticleID: "a1"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	waitBus(t, bus)
	if calls.Load() != 0 {
		t.Fatal("After-commit handler ran before commit")
	}

	if err := scope.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	waitBus(t, bus)

	if calls.Load() != 1 {
		t.Errorf("Expected exactly one invocation, got %d", calls.Load())
	}
	if !sawCommitted.Load() {
		t.Error("Handler observed uncommitted state")
	}

	if err := scope.Commit(); !errors.Is(err, ErrScopeDone) {
		t.Errorf("Expected ErrScopeDone on second commit, got %v", err)
	}
	waitBus(t, bus)
	if calls.Load() != 1 {
		t.Errorf("Expected no redelivery, got %d invocations", calls.Load())
	}
}

func TestImmediateHandlerRunsInsideScope(t *testing.T) {
	bus := NewBus()
	tx := &fakeTx{}

	var seen []string
	bus.Subscribe(TypeArticlePersisted, "linkage", func(ctx context.Context, e Event) error {
		if tx.committed.Load() {
			t.Error("Immediate handler expected to run before commit")
		}
		seen = append(seen, e.ArticleID)
		return nil
	}, SubscribeOptions{})

	scope := bus.Begin(tx)
	_ = scope.Publish(context.Background(), Event{Type: TypeArticlePersisted, ArticleID: "a1"})
	_ = scope.Publish(context.Background(), Event{Type: TypeArticlePersisted, ArticleID: "a2"})

	if len(seen) != 2 {
		t.Errorf("Expected immediate handler to see both events synchronously, got %v", seen)
	}
	_ = scope.Commit()
}

func TestRollbackAndFailedCommitDiscardEvents(t *testing.T) {
	bus := NewBus()
	var calls atomic.Int32
	bus.Subscribe(TypeQuizzesPersisted, "aggregate", func(ctx context.Context, e Event) error {
		calls.Add(1)
		return nil
	}, SubscribeOptions{AfterCommit: true})

	rolled := &fakeTx{}
	scope := bus.Begin(rolled)
	_ = scope.Publish(context.Background(), Event{Type: TypeQuizzesPersisted})
	if err := scope.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if !rolled.rolledBack.Load() {
		t.Error("Expected underlying rollback")
	}

	failing := &fakeTx{commitErr: errors.New("serialization failure")}
	scope = bus.Begin(failing)
	_ = scope.Publish(context.Background(), Event{Type: TypeQuizzesPersisted})
	if err := scope.Commit(); err == nil {
		t.Error("Expected commit error to surface")
	}

	waitBus(t, bus)
	if calls.Load() != 0 {
		t.Errorf("Expected no dispatch without a successful commit, got %d", calls.Load())
	}
}

func TestPublishOutsideScopeDispatches(t *testing.T) {
	bus := NewBus()
	var mu sync.Mutex
	var got []Event
	bus.Subscribe(TypeQuizzesPersisted, "aggregate", func(ctx context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
		return nil
	}, SubscribeOptions{AfterCommit: true})

	ctx, cancel := context.WithCancel(context.Background())
	if err := bus.Publish(ctx, Event{Type: TypeQuizzesPersisted, ArticleID: "a9"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	cancel()
	waitBus(t, bus)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].ArticleID != "a9" || got[0].ID == "" {
		t.Errorf("Unexpected events: %+v", got)
	}
}

func TestWaitCoversChainedDispatch(t *testing.T) {
	bus := NewBus()
	var finished atomic.Bool

	bus.Subscribe(TypeArticlePersisted, "quiz", func(ctx context.Context, e Event) error {
		time.Sleep(10 * time.Millisecond)
		return bus.Publish(ctx, Event{Type: TypeQuizzesPersisted, ArticleID: e.ArticleID})
	}, SubscribeOptions{AfterCommit: true})
	bus.Subscribe(TypeQuizzesPersisted, "aggregate", func(ctx context.Context, e Event) error {
		time.Sleep(10 * time.Millisecond)
		finished.Store(true)
		return nil
	}, SubscribeOptions{AfterCommit: true})

	_ = bus.Publish(context.Background(), Event{Type: TypeArticlePersisted, ArticleID: "a1"})
	waitBus(t, bus)

	if !finished.Load() {
		t.Error("Expected Wait to cover handlers dispatched by handlers")
	}
}

func TestImmediateHandlerErrorIsReturned(t *testing.T) {
	bus := NewBus()
	boom := errors.New("boom")
	bus.Subscribe(TypeArticlePersisted, "linkage", func(ctx context.Context, e Event) error {
		return boom
	}, SubscribeOptions{})

	err := bus.Begin(&fakeTx{}).Publish(context.Background(), Event{Type: TypeArticlePersisted})
	if !errors.Is(err, boom) {
		t.Errorf("Expected handler error, got %v", err)
	}
}

func TestRunIDPropagatesToHandlers(t *testing.T) {
	bus := NewBus()
	got := make(chan string, 1)
	bus.Subscribe(TypeQuizzesPersisted, "aggregate", func(ctx context.Context, e Event) error {
		got <- e.RunID + "|" + RunID(ctx)
		return nil
	}, SubscribeOptions{AfterCommit: true})

	ctx, cancel := context.WithCancel(WithRunID(context.Background(), "run-7"))
	if err := bus.Publish(ctx, Event{Type: TypeQuizzesPersisted, ArticleID: "a1"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	cancel()
	waitBus(t, bus)

	if v := <-got; v != "run-7|run-7" {
		t.Errorf("Expected run ID on event and handler context, got %q", v)
	}
}
