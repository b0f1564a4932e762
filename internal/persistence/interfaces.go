// Package persistence provides database abstraction interfaces for storing
// articles, synthetic news, quizzes and keyword usage.
package persistence

import (
	"context"
	"time"

	"newsquiz/internal/core"
)

// ArticleRepository handles selected "real news" articles
type ArticleRepository interface {
	// SaveSelected stores the selected articles for date's quiz set and returns
	// their durable refs. An article already stored keeps its ID and original date.
	SaveSelected(ctx context.Context, date time.Time, articles []core.ScoredArticle) ([]core.ArticleRef, error)

	// Get retrieves an article by ID, returning *core.NotFoundError if missing
	Get(ctx context.Context, id string) (*core.ArticleRef, error)

	// FindNeedingQuizzes returns articles that have no quiz items yet, oldest first
	FindNeedingQuizzes(ctx context.Context, limit int) ([]core.ArticleRef, error)
}

// SyntheticRepository handles fabricated counterparts of real articles
type SyntheticRepository interface {
	// Save stores a synthetic article. There is at most one per source article.
	Save(ctx context.Context, article *core.SyntheticArticle) error

	// GetBySource retrieves the synthetic article for a source article
	GetBySource(ctx context.Context, sourceArticleID string) (*core.SyntheticArticle, error)
}

// QuizRepository handles quiz items
type QuizRepository interface {
	// ReplaceSet deletes every quiz for the article and inserts items in their place
	ReplaceSet(ctx context.Context, articleID string, items []core.QuizItem) ([]core.QuizItem, error)

	// ListByArticle returns the current quiz set for an article
	ListByArticle(ctx context.Context, articleID string) ([]core.QuizItem, error)

	// ListByDate returns the quizzes of articles assigned to the given day, oldest first
	ListByDate(ctx context.Context, date time.Time) ([]core.QuizItem, error)
}

// KeywordRepository handles the append-only keyword usage history
type KeywordRepository interface {
	// RecordUsage appends one usage row per keyword for the given date
	RecordUsage(ctx context.Context, keywords []core.Keyword, date time.Time) error

	// FindOverused returns keywords used at least minUsage times on or after since
	FindOverused(ctx context.Context, since time.Time, minUsage int) ([]string, error)
}

// DailyQuizRepository handles the curated per-day quiz sets
type DailyQuizRepository interface {
	// Get returns the set for a day, or *core.NotFoundError
	Get(ctx context.Context, date time.Time) (*core.DailyQuizSet, error)

	// Save creates or replaces the set for its day
	Save(ctx context.Context, set *core.DailyQuizSet) error
}

// Repositories groups the repositories available on a database or transaction
type Repositories interface {
	Articles() ArticleRepository
	Synthetic() SyntheticRepository
	Quizzes() QuizRepository
	Keywords() KeywordRepository
	DailyQuizzes() DailyQuizRepository
}

// Database represents the main database interface that aggregates all repositories
type Database interface {
	Repositories

	// Close closes the database connection
	Close() error

	// Ping verifies the database connection
	Ping(ctx context.Context) error

	// BeginTx starts a new transaction
	BeginTx(ctx context.Context) (Transaction, error)
}

// Transaction represents a database transaction
type Transaction interface {
	Repositories

	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error
}
