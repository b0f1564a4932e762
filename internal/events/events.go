// Package events chains pipeline stages through in-process domain events.
// Handlers subscribed with AfterCommit only see events whose enclosing
// transaction has committed.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"newsquiz/internal/logger"
)

// Type names a domain event.
type Type string

const (
	TypeArticlePersisted Type = "ArticlePersisted"
	TypeQuizzesPersisted Type = "QuizzesPersisted"
)

// ErrScopeDone is returned when a committed or rolled back scope is reused.
var ErrScopeDone = errors.New("event scope already finished")

// Event is a fact about durable state.
type Event struct {
	ID         string
	Type       Type
	RunID      string
	ArticleID  string
	Date       time.Time
	OccurredAt time.Time
}

// Handler reacts to an event.
type Handler func(ctx context.Context, e Event) error

// SubscribeOptions controls when a handler runs.
type SubscribeOptions struct {
	// AfterCommit defers the handler until the publishing transaction commits.
	// Such handlers run asynchronously, exactly once per committed event.
	AfterCommit bool
}

// Committer is the transaction an event scope is bound to.
type Committer interface {
	Commit() error
	Rollback() error
}

type subscription struct {
	name    string
	handler Handler
	opts    SubscribeOptions
}

// Bus dispatches events to subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs map[Type][]subscription
	log  *slog.Logger

	flightMu sync.Mutex
	inflight int
	idle     chan struct{}
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	idle := make(chan struct{})
	close(idle)
	return &Bus{
		subs: make(map[Type][]subscription),
		log:  logger.Get(),
		idle: idle,
	}
}

// Subscribe registers handler for events of type t. name identifies the
// handler in logs.
func (b *Bus) Subscribe(t Type, name string, handler Handler, opts SubscribeOptions) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[t] = append(b.subs[t], subscription{name: name, handler: handler, opts: opts})
}

func (b *Bus) subscribers(t Type, afterCommit bool) []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []subscription
	for _, s := range b.subs[t] {
		if s.opts.AfterCommit == afterCommit {
			out = append(out, s)
		}
	}
	return out
}

// Publish announces an event whose data is already committed. Immediate
// handlers run before Publish returns; after-commit handlers are dispatched
// asynchronously.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	e = stamp(ctx, e)
	err := b.runImmediate(ctx, e)
	b.dispatch(ctx, e)
	return err
}

// Begin opens a scope bound to a transaction. Events published through the
// scope reach after-commit handlers only once c.Commit succeeds.
func (b *Bus) Begin(c Committer) *Scope {
	return &Scope{bus: b, committer: c}
}

type runIDKey struct{}

// WithRunID tags ctx with the pipeline run that events published under it belong to.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunID returns the run ID carried by ctx, if any.
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

func stamp(ctx context.Context, e Event) Event {
	if e.RunID == "" {
		e.RunID = RunID(ctx)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	return e
}

func (b *Bus) runImmediate(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range b.subscribers(e.Type, false) {
		if err := s.handler(ctx, e); err != nil {
			b.log.Warn("event handler failed",
				"event_type", e.Type,
				"event_id", e.ID,
				"handler", s.name,
				"error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

// dispatch runs after-commit handlers in the background, detached from the
// publisher's cancellation.
func (b *Bus) dispatch(ctx context.Context, e Event) {
	subs := b.subscribers(e.Type, true)
	if len(subs) == 0 {
		return
	}

	detached := context.WithoutCancel(ctx)
	for _, s := range subs {
		b.begin()
		go func(s subscription) {
			defer b.end()
			defer func() {
				if r := recover(); r != nil {
					b.log.Error("event handler panicked", "event_type", e.Type, "handler", s.name, "panic", fmt.Sprint(r))
				}
			}()
			if err := s.handler(detached, e); err != nil {
				b.log.Warn("after-commit handler failed",
					"event_type", e.Type,
					"event_id", e.ID,
					"article_id", e.ArticleID,
					"handler", s.name,
					"error", err)
			}
		}(s)
	}
}

func (b *Bus) begin() {
	b.flightMu.Lock()
	defer b.flightMu.Unlock()
	if b.inflight == 0 {
		b.idle = make(chan struct{})
	}
	b.inflight++
}

func (b *Bus) end() {
	b.flightMu.Lock()
	defer b.flightMu.Unlock()
	b.inflight--
	if b.inflight == 0 {
		close(b.idle)
	}
}

// Wait blocks until no after-commit handler is running, including handlers
// dispatched by other handlers while waiting.
func (b *Bus) Wait(ctx context.Context) error {
	for {
		b.flightMu.Lock()
		if b.inflight == 0 {
			b.flightMu.Unlock()
			return nil
		}
		idle := b.idle
		b.flightMu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Scope is an outbox of events bound to one transaction.
type Scope struct {
	bus       *Bus
	committer Committer

	mu     sync.Mutex
	ctx    context.Context
	outbox []Event
	done   bool
}

// Publish runs immediate handlers now and holds the event until Commit.
func (s *Scope) Publish(ctx context.Context, e Event) error {
	e = stamp(ctx, e)

	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return ErrScopeDone
	}
	s.outbox = append(s.outbox, e)
	if s.ctx == nil {
		s.ctx = ctx
	}
	s.mu.Unlock()

	return s.bus.runImmediate(ctx, e)
}

// Commit commits the transaction and, only if that succeeds, dispatches the
// outbox to after-commit handlers.
func (s *Scope) Commit() error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return ErrScopeDone
	}
	s.done = true
	outbox := s.outbox
	ctx := s.ctx
	s.outbox = nil
	s.mu.Unlock()

	if err := s.committer.Commit(); err != nil {
		s.bus.log.Warn("transaction commit failed, discarding events", "events", len(outbox), "error", err)
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	for _, e := range outbox {
		s.bus.dispatch(ctx, e)
	}
	return nil
}

// Rollback rolls the transaction back and discards the outbox.
func (s *Scope) Rollback() error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return ErrScopeDone
	}
	s.done = true
	s.outbox = nil
	s.mu.Unlock()

	return s.committer.Rollback()
}
