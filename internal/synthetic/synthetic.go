// Package synthetic generates fabricated counterparts of selected articles.
package synthetic

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"newsquiz/internal/core"
	"newsquiz/internal/llm"
	"newsquiz/internal/logger"
	"newsquiz/internal/persistence"
	"newsquiz/internal/processor"
	"newsquiz/internal/workers"
)

// Generator fans synthetic-news generation out over a worker pool.
type Generator struct {
	pool      *workers.Pool
	transport llm.Transport
	limiter   processor.Limiter
	store     persistence.SyntheticRepository
	processor processor.SyntheticNewsProcessor
	log       *slog.Logger
}

// NewGenerator creates a synthetic news generator.
func NewGenerator(pool *workers.Pool, transport llm.Transport, limiter processor.Limiter, store persistence.SyntheticRepository) *Generator {
	return &Generator{
		pool:      pool,
		transport: transport,
		limiter:   limiter,
		store:     store,
		log:       logger.Get().With("component", "synthetic"),
	}
}

// GenerateAll produces and saves one synthetic article per source article.
//
// Unlike quiz generation there is no per-unit retry: the join is
// all-or-nothing and the first failed unit (by input position) fails the
// whole call. Units that already succeeded stay saved. Callers should
// isolate this stage so that one bad article cannot abort a larger run.
func (g *Generator) GenerateAll(ctx context.Context, articles []core.ArticleRef) ([]core.SyntheticArticle, error) {
	started := time.Now()

	futures := make([]*workers.Future[core.SyntheticArticle], len(articles))
	for i, article := range articles {
		futures[i] = workers.Submit(ctx, g.pool, func(ctx context.Context) (core.SyntheticArticle, error) {
			return g.Generate(ctx, article)
		})
	}

	generated, err := workers.AwaitAll(ctx, futures)
	if err != nil {
		g.log.Error("Synthetic news batch failed",
			"error", err,
			"articles", len(articles),
			"duration", time.Since(started))
		return nil, fmt.Errorf("synthetic news batch of %d failed: %w", len(articles), err)
	}

	g.log.Info("Generated synthetic news",
		"articles", len(articles),
		"duration", time.Since(started))
	return generated, nil
}

// Generate produces and saves the synthetic counterpart of one article.
func (g *Generator) Generate(ctx context.Context, article core.ArticleRef) (core.SyntheticArticle, error) {
	res, err := processor.Execute(ctx, g.limiter, g.transport, g.processor, article)
	if err != nil {
		return core.SyntheticArticle{}, fmt.Errorf("article %s: %w", article.ID, err)
	}

	synthetic := core.SyntheticArticle{
		SourceArticleID: article.ID,
		Title:           res.Title,
		Content:         res.Content,
	}
	if err := g.store.Save(ctx, &synthetic); err != nil {
		return core.SyntheticArticle{}, fmt.Errorf("failed to save synthetic article for %s: %w", article.ID, err)
	}

	g.log.Debug("Saved synthetic article", "article_id", article.ID, "synthetic_id", synthetic.ID)
	return synthetic, nil
}
