package pipeline

import (
	"context"
	"time"

	"newsquiz/internal/core"
)

// KeywordGenerator produces the day's search keywords
type KeywordGenerator interface {
	// GenerateTodaysKeywords returns two keywords per category and records their usage
	GenerateTodaysKeywords(ctx context.Context, date time.Time) (map[core.Category][]core.Keyword, error)
}

// ArticleCollector gathers, scores and selects candidate articles
type ArticleCollector interface {
	// Collect searches every keyword, skipping failed searches
	Collect(ctx context.Context, keywords []core.Keyword) ([]core.CandidateArticle, core.StageStats)

	// Analyze scores candidates in batches, skipping failed batches
	Analyze(ctx context.Context, candidates []core.CandidateArticle) ([]core.ScoredArticle, core.StageStats)

	// Select keeps articles at or above minScore (zero uses the configured threshold)
	Select(scored []core.ScoredArticle, minScore int) []core.ScoredArticle
}

// SyntheticGenerator produces fabricated counterparts of persisted articles.
// Its join is all-or-nothing.
type SyntheticGenerator interface {
	GenerateAll(ctx context.Context, articles []core.ArticleRef) ([]core.SyntheticArticle, error)
}

// QuizGenerator produces detail quizzes with per-unit retry
type QuizGenerator interface {
	// GenerateQueued generates one article's quizzes on the worker pool
	GenerateQueued(ctx context.Context, articleID string) error

	// GenerateBatch generates quizzes for every article, skipping failed units
	GenerateBatch(ctx context.Context, articleIDs []string) core.StageStats
}

// QuizAggregator curates the daily quiz set
type QuizAggregator interface {
	// Aggregate recomputes the set for date and reports whether it changed
	Aggregate(ctx context.Context, date time.Time) (*core.DailyQuizSet, bool, error)
}

// RunTracker records finished runs for analytics (optional)
type RunTracker interface {
	TrackRun(ctx context.Context, report *core.RunReport) error
}

// RunNotifier announces finished runs to operators (optional)
type RunNotifier interface {
	NotifyRun(ctx context.Context, report *core.RunReport) error
}
