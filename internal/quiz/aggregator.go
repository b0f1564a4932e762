package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"newsquiz/internal/core"
	"newsquiz/internal/logger"
	"newsquiz/internal/persistence"
)

// DefaultDailySetSize is the number of quizzes in a curated daily set.
const DefaultDailySetSize = 10

// Aggregator curates the daily quiz set from the quizzes of articles selected for that day.
type Aggregator struct {
	repos persistence.Repositories
	size  int
	log   *slog.Logger

	mu sync.Mutex
}

// NewAggregator creates an aggregator producing sets of up to size quizzes.
func NewAggregator(repos persistence.Repositories, size int) *Aggregator {
	if size <= 0 {
		size = DefaultDailySetSize
	}
	return &Aggregator{
		repos: repos,
		size:  size,
		log:   logger.Get().With("component", "aggregator"),
	}
}

// Aggregate recomputes the set for date. It reports whether anything was
// written; recomputing an unchanged set is a no-op.
func (a *Aggregator) Aggregate(ctx context.Context, date time.Time) (*core.DailyQuizSet, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	day := core.DateOnly(date)
	items, err := a.repos.Quizzes().ListByDate(ctx, day)
	if err != nil {
		return nil, false, fmt.Errorf("failed to list quizzes for %s: %w", day.Format(time.DateOnly), err)
	}

	current, err := a.repos.DailyQuizzes().Get(ctx, day)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to load daily quiz set: %w", err)
	}

	ids := Curate(items, a.size)
	if current != nil && slices.Equal(current.QuizIDs, ids) {
		return current, false, nil
	}
	if current == nil && len(ids) == 0 {
		return nil, false, nil
	}

	set := &core.DailyQuizSet{Date: day, QuizIDs: ids}
	if err := a.repos.DailyQuizzes().Save(ctx, set); err != nil {
		return nil, false, fmt.Errorf("failed to save daily quiz set: %w", err)
	}

	a.log.Info("Aggregated daily quiz set", "date", day.Format(time.DateOnly), "quizzes", len(ids), "candidates", len(items))
	return set, true, nil
}

// Curate picks up to size quiz IDs, one per article per round, so the set
// spans as many articles as possible. The choice depends only on the items,
// never on their order.
func Curate(items []core.QuizItem, size int) []string {
	byArticle := make(map[string][]string)
	for _, q := range items {
		byArticle[q.SourceArticleID] = append(byArticle[q.SourceArticleID], q.ID)
	}

	articles := make([]string, 0, len(byArticle))
	for id, quizIDs := range byArticle {
		sort.Strings(quizIDs)
		articles = append(articles, id)
	}
	sort.Strings(articles)

	var ids []string
	for round := 0; len(ids) < size; round++ {
		added := false
		for _, article := range articles {
			if quizIDs := byArticle[article]; round < len(quizIDs) && len(ids) < size {
				ids = append(ids, quizIDs[round])
				added = true
			}
		}
		if !added {
			break
		}
	}
	return ids
}
