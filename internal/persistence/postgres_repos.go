package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"newsquiz/internal/core"
)

// postgresArticleRepo implements ArticleRepository for PostgreSQL
type postgresArticleRepo conn

func (r *postgresArticleRepo) SaveSelected(ctx context.Context, date time.Time, articles []core.ScoredArticle) ([]core.ArticleRef, error) {
	query := `
		INSERT INTO articles (
			id, title, body, description, link, source, author, keyword,
			category, quality_score, published_at, quiz_date, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (link) DO UPDATE SET
			quality_score = EXCLUDED.quality_score,
			category = EXCLUDED.category
		RETURNING id, quiz_date, created_at
	`
	day := core.DateOnly(date)

	refs := make([]core.ArticleRef, 0, len(articles))
	err := conn(*r).inTx(ctx, func(q queryer) error {
		now := time.Now().UTC()
		for _, a := range articles {
			ref := core.ArticleRef{
				ID:           uuid.NewString(),
				Title:        a.Title,
				Body:         a.Body,
				Description:  a.Description,
				Link:         a.Link,
				Source:       a.Source,
				Category:     a.Category,
				QualityScore: a.QualityScore,
				PublishedAt:  a.PublishedAt,
			}
			err := q.QueryRowContext(ctx, query,
				ref.ID, a.Title, a.Body, a.Description, a.Link, a.Source, a.Author, a.Keyword,
				string(a.Category), a.QualityScore, nullTime(a.PublishedAt), day, now,
			).Scan(&ref.ID, &ref.QuizDate, &ref.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert article %s: %w", a.Link, err)
			}
			ref.QuizDate = core.DateOnly(ref.QuizDate)
			refs = append(refs, ref)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

const articleColumns = `id, title, body, description, link, source, category, quality_score, published_at, quiz_date, created_at`

func (r *postgresArticleRepo) Get(ctx context.Context, id string) (*core.ArticleRef, error) {
	row := conn(*r).query().QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = $1`, id)
	ref, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Kind: "article", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article: %w", err)
	}
	return ref, nil
}

func (r *postgresArticleRepo) FindNeedingQuizzes(ctx context.Context, limit int) ([]core.ArticleRef, error) {
	query := `
		SELECT ` + articleColumns + `
		FROM articles a
		WHERE NOT EXISTS (SELECT 1 FROM quiz_items q WHERE q.source_article_id = a.id)
		ORDER BY a.created_at ASC, a.id ASC
	`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := conn(*r).query().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find articles needing quizzes: %w", err)
	}
	defer rows.Close()

	var refs []core.ArticleRef
	for rows.Next() {
		ref, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		refs = append(refs, *ref)
	}
	return refs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanArticle(s scanner) (*core.ArticleRef, error) {
	var ref core.ArticleRef
	var category string
	var publishedAt sql.NullTime
	if err := s.Scan(&ref.ID, &ref.Title, &ref.Body, &ref.Description, &ref.Link, &ref.Source,
		&category, &ref.QualityScore, &publishedAt, &ref.QuizDate, &ref.CreatedAt); err != nil {
		return nil, err
	}
	ref.Category = core.Category(category)
	ref.QuizDate = core.DateOnly(ref.QuizDate)
	if publishedAt.Valid {
		ref.PublishedAt = publishedAt.Time
	}
	return &ref, nil
}

// postgresSyntheticRepo implements SyntheticRepository for PostgreSQL
type postgresSyntheticRepo conn

func (r *postgresSyntheticRepo) Save(ctx context.Context, article *core.SyntheticArticle) error {
	if article.ID == "" {
		article.ID = uuid.NewString()
	}
	if article.CreatedAt.IsZero() {
		article.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO synthetic_articles (id, source_article_id, title, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source_article_id) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content
		RETURNING id
	`
	err := conn(*r).query().QueryRowContext(ctx, query,
		article.ID, article.SourceArticleID, article.Title, article.Content, article.CreatedAt,
	).Scan(&article.ID)
	if err != nil {
		return fmt.Errorf("failed to save synthetic article: %w", err)
	}
	return nil
}

func (r *postgresSyntheticRepo) GetBySource(ctx context.Context, sourceArticleID string) (*core.SyntheticArticle, error) {
	query := `SELECT id, source_article_id, title, content, created_at FROM synthetic_articles WHERE source_article_id = $1`
	var a core.SyntheticArticle
	err := conn(*r).query().QueryRowContext(ctx, query, sourceArticleID).
		Scan(&a.ID, &a.SourceArticleID, &a.Title, &a.Content, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Kind: "synthetic article", ID: sourceArticleID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get synthetic article: %w", err)
	}
	return &a, nil
}

// postgresQuizRepo implements QuizRepository for PostgreSQL
type postgresQuizRepo conn

func (r *postgresQuizRepo) ReplaceSet(ctx context.Context, articleID string, items []core.QuizItem) ([]core.QuizItem, error) {
	stored := make([]core.QuizItem, 0, len(items))
	err := conn(*r).inTx(ctx, func(q queryer) error {
		if _, err := q.ExecContext(ctx, `DELETE FROM quiz_items WHERE source_article_id = $1`, articleID); err != nil {
			return fmt.Errorf("failed to delete quiz set: %w", err)
		}

		now := time.Now().UTC()
		for _, item := range items {
			item.ID = uuid.NewString()
			item.SourceArticleID = articleID
			item.CreatedAt = now
			_, err := q.ExecContext(ctx, `
				INSERT INTO quiz_items (id, source_article_id, question, options, correct_option_index, explanation, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, item.ID, articleID, item.Question, pq.Array(item.Options), item.CorrectOptionIndex, item.Explanation, item.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert quiz item: %w", err)
			}
			stored = append(stored, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

const quizColumns = `id, source_article_id, question, options, correct_option_index, explanation, created_at`

func (r *postgresQuizRepo) ListByArticle(ctx context.Context, articleID string) ([]core.QuizItem, error) {
	return r.list(ctx, `SELECT `+quizColumns+` FROM quiz_items WHERE source_article_id = $1 ORDER BY created_at, id`, articleID)
}

func (r *postgresQuizRepo) ListByDate(ctx context.Context, date time.Time) ([]core.QuizItem, error) {
	query := `
		SELECT q.id, q.source_article_id, q.question, q.options, q.correct_option_index, q.explanation, q.created_at
		FROM quiz_items q
		JOIN articles a ON a.id = q.source_article_id
		WHERE a.quiz_date = $1
		ORDER BY q.created_at, q.id
	`
	return r.list(ctx, query, core.DateOnly(date))
}

func (r *postgresQuizRepo) list(ctx context.Context, query string, args ...interface{}) ([]core.QuizItem, error) {
	rows, err := conn(*r).query().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list quizzes: %w", err)
	}
	defer rows.Close()

	var items []core.QuizItem
	for rows.Next() {
		var item core.QuizItem
		if err := rows.Scan(&item.ID, &item.SourceArticleID, &item.Question, pq.Array(&item.Options),
			&item.CorrectOptionIndex, &item.Explanation, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan quiz item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// postgresKeywordRepo implements KeywordRepository for PostgreSQL
type postgresKeywordRepo conn

func (r *postgresKeywordRepo) RecordUsage(ctx context.Context, keywords []core.Keyword, date time.Time) error {
	day := core.DateOnly(date)
	return conn(*r).inTx(ctx, func(q queryer) error {
		for _, k := range keywords {
			_, err := q.ExecContext(ctx, `
				INSERT INTO keyword_usage (keyword, category, keyword_type, used_date)
				VALUES ($1, $2, $3, $4)
			`, k.Text, string(k.Category), string(k.Type), day)
			if err != nil {
				return fmt.Errorf("failed to record keyword usage: %w", err)
			}
		}
		return nil
	})
}

func (r *postgresKeywordRepo) FindOverused(ctx context.Context, since time.Time, minUsage int) ([]string, error) {
	query := `
		SELECT keyword
		FROM keyword_usage
		WHERE used_date >= $1
		GROUP BY keyword
		HAVING COUNT(*) >= $2
		ORDER BY keyword
	`
	rows, err := conn(*r).query().QueryContext(ctx, query, core.DateOnly(since), minUsage)
	if err != nil {
		return nil, fmt.Errorf("failed to find overused keywords: %w", err)
	}
	defer rows.Close()

	var keywords []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keywords = append(keywords, k)
	}
	return keywords, rows.Err()
}

// postgresDailyQuizRepo implements DailyQuizRepository for PostgreSQL
type postgresDailyQuizRepo conn

func (r *postgresDailyQuizRepo) Get(ctx context.Context, date time.Time) (*core.DailyQuizSet, error) {
	day := core.DateOnly(date)
	var set core.DailyQuizSet
	err := conn(*r).query().QueryRowContext(ctx,
		`SELECT quiz_date, quiz_ids, updated_at FROM daily_quiz_sets WHERE quiz_date = $1`, day,
	).Scan(&set.Date, pq.Array(&set.QuizIDs), &set.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Kind: "daily quiz set", ID: day.Format("2006-01-02")}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily quiz set: %w", err)
	}
	set.Date = core.DateOnly(set.Date)
	return &set, nil
}

func (r *postgresDailyQuizRepo) Save(ctx context.Context, set *core.DailyQuizSet) error {
	set.Date = core.DateOnly(set.Date)
	if set.UpdatedAt.IsZero() {
		set.UpdatedAt = time.Now().UTC()
	}
	_, err := conn(*r).query().ExecContext(ctx, `
		INSERT INTO daily_quiz_sets (quiz_date, quiz_ids, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (quiz_date) DO UPDATE SET
			quiz_ids = EXCLUDED.quiz_ids,
			updated_at = EXCLUDED.updated_at
	`, set.Date, pq.Array(set.QuizIDs), set.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save daily quiz set: %w", err)
	}
	return nil
}
