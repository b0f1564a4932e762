// Package quiz generates per-article detail quizzes and curates the daily quiz set.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"newsquiz/internal/core"
	"newsquiz/internal/events"
	"newsquiz/internal/llm"
	"newsquiz/internal/logger"
	"newsquiz/internal/persistence"
	"newsquiz/internal/processor"
	"newsquiz/internal/retry"
	"newsquiz/internal/workers"
)

// Tracker records quiz generation outcomes for analytics.
type Tracker interface {
	TrackQuizGeneration(ctx context.Context, articleID string, quizzes int, success bool, duration time.Duration) error
}

// Service generates quiz sets for articles. A generation is two phases: the
// model call, then a transactional replace of the article's quiz set which
// is the commit point.
type Service struct {
	db        persistence.Database
	bus       *events.Bus
	pool      *workers.Pool
	transport llm.Transport
	limiter   processor.Limiter
	policy    *retry.Policy
	processor processor.QuizProcessor
	tracker   Tracker
	log       *slog.Logger
}

// NewService creates a quiz service. A nil policy uses the retry defaults.
func NewService(db persistence.Database, bus *events.Bus, pool *workers.Pool, transport llm.Transport, limiter processor.Limiter, policy *retry.Policy) *Service {
	if policy == nil {
		policy = retry.NewPolicy(retry.DefaultMaxAttempts, retry.DefaultBackoff)
	}
	if bus == nil {
		bus = events.NewBus()
	}
	return &Service{
		db:        db,
		bus:       bus,
		pool:      pool,
		transport: transport,
		limiter:   limiter,
		policy:    policy,
		log:       logger.Get().With("component", "quiz"),
	}
}

// WithTracker reports generation outcomes to t.
func (s *Service) WithTracker(t Tracker) *Service {
	s.tracker = t
	return s
}

// Generate creates and stores a fresh set of quizzes for articleID,
// replacing any existing set. An unknown article yields *core.NotFoundError.
func (s *Service) Generate(ctx context.Context, articleID string) ([]core.QuizItem, error) {
	article, err := s.db.Articles().Get(ctx, articleID)
	if err != nil {
		return nil, err
	}

	items, err := processor.Execute(ctx, s.limiter, s.transport, s.processor, *article)
	if err != nil {
		return nil, fmt.Errorf("failed to generate quizzes for %s: %w", articleID, err)
	}

	return s.save(ctx, article, items)
}

// save replaces the article's quiz set and announces it for the article's
// quiz date, so a regenerated set stays in the day it was selected for.
func (s *Service) save(ctx context.Context, article *core.ArticleRef, items []core.QuizItem) ([]core.QuizItem, error) {
	articleID := article.ID
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	scope := s.bus.Begin(tx)

	stored, err := tx.Quizzes().ReplaceSet(ctx, articleID, items)
	if err != nil {
		_ = scope.Rollback()
		return nil, fmt.Errorf("failed to replace quiz set for %s: %w", articleID, err)
	}

	date := article.QuizDate
	if date.IsZero() {
		date = core.DateOnly(article.CreatedAt)
	}
	if err := scope.Publish(ctx, events.Event{Type: events.TypeQuizzesPersisted, ArticleID: articleID, Date: date}); err != nil {
		_ = scope.Rollback()
		return nil, fmt.Errorf("quizzes persisted handler failed for %s: %w", articleID, err)
	}

	if err := scope.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit quiz set for %s: %w", articleID, err)
	}

	s.log.Info("Saved quiz set", "article_id", articleID, "quizzes", len(stored), "run_id", events.RunID(ctx))
	return stored, nil
}

// GenerateWithRetry runs Generate under the retry policy; every retry redoes
// the model call. Unknown articles are not retried.
func (s *Service) GenerateWithRetry(ctx context.Context, articleID string) error {
	started := time.Now()
	var stored int

	err := s.policy.Do(ctx, "quiz "+articleID, func(ctx context.Context) error {
		items, err := s.Generate(ctx, articleID)
		if errors.Is(err, core.ErrNotFound) {
			return retry.Permanent(err)
		}
		stored = len(items)
		return err
	})

	if s.tracker != nil {
		if terr := s.tracker.TrackQuizGeneration(ctx, articleID, stored, err == nil, time.Since(started)); terr != nil {
			s.log.Debug("Failed to track quiz generation", "article_id", articleID, "error", terr.Error())
		}
	}
	return err
}

// GenerateQueued runs GenerateWithRetry on the worker pool and waits for it.
// A saturated pool rejects the unit.
func (s *Service) GenerateQueued(ctx context.Context, articleID string) error {
	_, err := workers.Submit(ctx, s.pool, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.GenerateWithRetry(ctx, articleID)
	}).Await(ctx)
	return err
}

// GenerateBatch fans GenerateWithRetry out over the worker pool and waits for
// every unit. IDs are submitted in windows no larger than the pool's capacity
// so a long batch never saturates it. A failed or rejected unit is counted and
// skipped.
func (s *Service) GenerateBatch(ctx context.Context, articleIDs []string) core.StageStats {
	stats := core.StageStats{Attempted: len(articleIDs)}

	window := max(s.pool.Capacity(), 1)
	for start := 0; start < len(articleIDs); start += window {
		batch := articleIDs[start:min(start+window, len(articleIDs))]

		futures := make([]*workers.Future[struct{}], len(batch))
		for i, id := range batch {
			futures[i] = workers.Submit(ctx, s.pool, func(ctx context.Context) (struct{}, error) {
				return struct{}{}, s.GenerateWithRetry(ctx, id)
			})
		}

		for _, r := range workers.Settle(ctx, futures) {
			if r.Err != nil {
				stats.Failed++
				s.log.Warn("Quiz generation abandoned", "article_id", batch[r.Index], "error", r.Err.Error())
				continue
			}
			stats.Succeeded++
		}
	}

	s.log.Info("Quiz batch finished",
		"articles", stats.Attempted,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed)
	return stats
}
