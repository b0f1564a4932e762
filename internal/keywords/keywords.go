// Package keywords generates the daily per-category search keywords.
package keywords

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"newsquiz/internal/core"
	"newsquiz/internal/llm"
	"newsquiz/internal/logger"
	"newsquiz/internal/persistence"
	"newsquiz/internal/processor"
)

const (
	DefaultCooldownDays = 3
	DefaultMinUsage     = 2
)

// Config holds the keyword cooldown policy.
type Config struct {
	CooldownDays int // Look-back window for overuse
	MinUsage     int // Uses within the window that mark a keyword as overused
}

// Generator asks the model for today's keywords, steering it away from
// recently overused ones.
type Generator struct {
	transport llm.Transport
	limiter   processor.Limiter
	usage     persistence.KeywordRepository
	processor processor.KeywordProcessor
	config    Config
	log       *slog.Logger
}

// NewGenerator creates a keyword generator. Zero config values use the defaults.
func NewGenerator(transport llm.Transport, limiter processor.Limiter, usage persistence.KeywordRepository, cfg Config) *Generator {
	if cfg.CooldownDays <= 0 {
		cfg.CooldownDays = DefaultCooldownDays
	}
	if cfg.MinUsage <= 0 {
		cfg.MinUsage = DefaultMinUsage
	}
	return &Generator{
		transport: transport,
		limiter:   limiter,
		usage:     usage,
		config:    cfg,
		log:       logger.Get().With("component", "keywords"),
	}
}

// GenerateTodaysKeywords returns two keywords for each category and records
// their usage for date.
func (g *Generator) GenerateTodaysKeywords(ctx context.Context, date time.Time) (map[core.Category][]core.Keyword, error) {
	return g.generate(ctx, date, true)
}

// Preview generates keywords for date without recording usage.
func (g *Generator) Preview(ctx context.Context, date time.Time) (map[core.Category][]core.Keyword, error) {
	return g.generate(ctx, date, false)
}

func (g *Generator) generate(ctx context.Context, date time.Time, record bool) (map[core.Category][]core.Keyword, error) {
	day := core.DateOnly(date)

	excluded, err := g.Exclusions(ctx, day)
	if err != nil {
		return nil, err
	}

	req := processor.KeywordRequest{
		Date:       day,
		Categories: core.Categories(),
		Excluded:   excluded,
	}
	// The exclusion list only shapes the prompt; the reply is not filtered.
	byCategory, err := processor.Execute(ctx, g.limiter, g.transport, g.processor, req)
	if err != nil {
		return nil, fmt.Errorf("failed to generate keywords: %w", err)
	}

	if record {
		if err := g.usage.RecordUsage(ctx, Flatten(byCategory), day); err != nil {
			return nil, fmt.Errorf("failed to record keyword usage: %w", err)
		}
	}

	g.log.Info("Generated keywords",
		"date", day.Format("2006-01-02"),
		"excluded", len(excluded),
		"recorded", record)
	return byCategory, nil
}

// Exclusions returns the keywords used at least MinUsage times in the last
// CooldownDays plus everything used on the preceding day.
func (g *Generator) Exclusions(ctx context.Context, date time.Time) ([]string, error) {
	day := core.DateOnly(date)

	overused, err := g.usage.FindOverused(ctx, day.AddDate(0, 0, -g.config.CooldownDays), g.config.MinUsage)
	if err != nil {
		return nil, fmt.Errorf("failed to find overused keywords: %w", err)
	}
	yesterday, err := g.usage.FindOverused(ctx, day.AddDate(0, 0, -1), 1)
	if err != nil {
		return nil, fmt.Errorf("failed to find yesterday's keywords: %w", err)
	}

	seen := make(map[string]bool, len(overused)+len(yesterday))
	var out []string
	for _, k := range append(overused, yesterday...) {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Flatten lists keywords in category display order.
func Flatten(byCategory map[core.Category][]core.Keyword) []core.Keyword {
	var out []core.Keyword
	for _, c := range core.Categories() {
		out = append(out, byCategory[c]...)
	}
	return out
}
