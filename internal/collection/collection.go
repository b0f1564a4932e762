// Package collection gathers candidate articles for keywords, scores them in
// batches and selects the ones worth turning into quizzes.
package collection

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"newsquiz/internal/core"
	"newsquiz/internal/llm"
	"newsquiz/internal/logger"
	"newsquiz/internal/processor"
	"newsquiz/internal/search"
)

const (
	DefaultBatchSize      = 3
	DefaultMinScore       = 70
	DefaultMaxPerCategory = 5
	DefaultConcurrency    = 2

	// Bodies shorter than this are replaced with the fetched page text when
	// full-text fetching is enabled.
	minBodyChars = 400
)

// TextFetcher downloads the readable text of an article page.
type TextFetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// Config holds collection and analysis tunables.
type Config struct {
	BatchSize      int
	MinScore       int
	MaxPerCategory int // Zero disables the cap
	Concurrency    int // Parallel keyword searches
	Search         search.Config
}

// Collector runs the collection, analysis and selection stages.
type Collector struct {
	provider  search.Provider
	transport llm.Transport
	limiter   processor.Limiter
	analyzer  processor.AnalysisProcessor
	fetcher   TextFetcher
	config    Config
	log       *slog.Logger
}

// NewCollector creates a collector. Zero config values use the defaults.
func NewCollector(provider search.Provider, transport llm.Transport, limiter processor.Limiter, cfg Config) *Collector {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = DefaultMinScore
	}
	if cfg.MaxPerCategory < 0 {
		cfg.MaxPerCategory = 0
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Collector{
		provider:  provider,
		transport: transport,
		limiter:   limiter,
		config:    cfg,
		log:       logger.Get().With("component", "collection"),
	}
}

// WithFetcher enables full-text enrichment of short article bodies.
func (c *Collector) WithFetcher(f TextFetcher) *Collector {
	c.fetcher = f
	return c
}

// Collect searches every keyword and returns the merged candidates. A failed
// search is logged and skipped. Candidates are deduplicated by link and those
// without any text are dropped.
func (c *Collector) Collect(ctx context.Context, keywords []core.Keyword) ([]core.CandidateArticle, core.StageStats) {
	stats := core.StageStats{Attempted: len(keywords)}
	perKeyword := make([][]core.CandidateArticle, len(keywords))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Concurrency)
	for i, kw := range keywords {
		g.Go(func() error {
			results, err := c.provider.Search(gctx, kw.Text, c.config.Search)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.Failed++
				c.log.Warn("Search failed, skipping keyword",
					"keyword", kw.Text,
					"category", kw.Category,
					"provider", c.provider.GetName(),
					"error", err.Error())
				return nil
			}
			stats.Succeeded++
			perKeyword[i] = results
			return nil
		})
	}
	_ = g.Wait() // units never return errors

	seen := make(map[string]bool)
	var candidates []core.CandidateArticle
	for i, results := range perKeyword {
		for _, a := range results {
			if a.Link == "" || seen[a.Link] {
				stats.Skipped++
				continue
			}
			if strings.TrimSpace(a.Body) == "" && strings.TrimSpace(a.Description) == "" {
				stats.Skipped++
				continue
			}
			seen[a.Link] = true
			if a.Keyword == "" {
				a.Keyword = keywords[i].Text
			}
			candidates = append(candidates, a)
		}
	}

	if c.fetcher != nil {
		c.enrich(ctx, candidates)
	}

	c.log.Info("Collected candidate articles",
		"keywords", len(keywords),
		"failed_keywords", stats.Failed,
		"candidates", len(candidates),
		"dropped", stats.Skipped)
	return candidates, stats
}

// enrich replaces short bodies with the fetched page text in place.
func (c *Collector) enrich(ctx context.Context, candidates []core.CandidateArticle) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Concurrency)
	for i := range candidates {
		if len(candidates[i].Body) >= minBodyChars {
			continue
		}
		g.Go(func() error {
			text, err := c.fetcher.FetchText(gctx, candidates[i].Link)
			if err != nil {
				c.log.Debug("Full text fetch failed, keeping snippet", "link", candidates[i].Link, "error", err.Error())
				return nil
			}
			if len(text) > len(candidates[i].Body) {
				candidates[i].Body = text
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Analyze scores candidates in fixed-size batches. A batch whose call,
// parse or validation fails is logged and skipped; the output concatenates
// the surviving batches in input order.
func (c *Collector) Analyze(ctx context.Context, candidates []core.CandidateArticle) ([]core.ScoredArticle, core.StageStats) {
	var stats core.StageStats
	var scored []core.ScoredArticle

	for start := 0; start < len(candidates); start += c.config.BatchSize {
		if ctx.Err() != nil {
			stats.Skipped += (len(candidates) - start + c.config.BatchSize - 1) / c.config.BatchSize
			break
		}

		end := min(start+c.config.BatchSize, len(candidates))
		batch := candidates[start:end]
		stats.Attempted++

		started := time.Now()
		results, err := processor.Execute(ctx, c.limiter, c.transport, c.analyzer, batch)
		if err != nil {
			stats.Failed++
			c.log.Warn("Analysis batch failed, skipping",
				"batch_start", start,
				"batch_size", len(batch),
				"error", err.Error())
			continue
		}

		stats.Succeeded++
		scored = append(scored, results...)
		c.log.Debug("Analyzed batch",
			"batch_start", start,
			"batch_size", len(batch),
			"duration", time.Since(started))
	}

	c.log.Info("Analyzed candidate articles",
		"candidates", len(candidates),
		"scored", len(scored),
		"failed_batches", stats.Failed)
	return scored, stats
}

// Select keeps articles scoring at least minScore, at most MaxPerCategory per
// category (highest scores win, ties keep input order). The result preserves
// input order.
func (c *Collector) Select(scored []core.ScoredArticle, minScore int) []core.ScoredArticle {
	if minScore <= 0 {
		minScore = c.config.MinScore
	}

	ranked := make([]int, 0, len(scored))
	for i, a := range scored {
		if a.QualityScore >= minScore {
			ranked = append(ranked, i)
		}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return scored[ranked[a]].QualityScore > scored[ranked[b]].QualityScore
	})

	keep := make(map[int]bool, len(ranked))
	perCategory := make(map[core.Category]int)
	for _, i := range ranked {
		cat := scored[i].Category
		if c.config.MaxPerCategory > 0 && perCategory[cat] >= c.config.MaxPerCategory {
			continue
		}
		perCategory[cat]++
		keep[i] = true
	}

	selected := make([]core.ScoredArticle, 0, len(keep))
	for i, a := range scored {
		if keep[i] {
			selected = append(selected, a)
		}
	}
	return selected
}

// Summary formats per-category selection counts for logs.
func Summary(selected []core.ScoredArticle) string {
	counts := make(map[core.Category]int)
	for _, a := range selected {
		counts[a.Category]++
	}
	parts := make([]string, 0, len(counts))
	for _, cat := range core.Categories() {
		if n := counts[cat]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", cat, n))
		}
	}
	return strings.Join(parts, " ")
}
