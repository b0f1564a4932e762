// Package observability sends pipeline analytics to PostHog.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/posthog/posthog-go"

	"newsquiz/internal/config"
	"newsquiz/internal/core"
	"newsquiz/internal/logger"
)

// systemID is the distinct ID used for events not tied to a user.
const systemID = "newsquiz-pipeline"

// PostHogClient wraps the PostHog SDK for product analytics
type PostHogClient struct {
	client  posthog.Client
	enabled bool
	log     *slog.Logger
}

// EventProperties contains properties for an event
type EventProperties map[string]any

// NewPostHogClient creates a new PostHog analytics client. A disabled
// configuration yields a client whose methods do nothing.
func NewPostHogClient(cfg config.PostHogConfig) (*PostHogClient, error) {
	if !cfg.Enabled {
		return &PostHogClient{
			enabled: false,
			log:     logger.Get(),
		}, nil
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("PostHog enabled but missing API key")
	}

	client, err := posthog.NewWithConfig(cfg.APIKey, posthog.Config{
		Endpoint: cfg.Host,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create PostHog client: %w", err)
	}

	return newWithClient(client), nil
}

func newWithClient(client posthog.Client) *PostHogClient {
	return &PostHogClient{
		client:  client,
		enabled: true,
		log:     logger.Get(),
	}
}

// IsEnabled returns whether PostHog tracking is enabled
func (p *PostHogClient) IsEnabled() bool {
	return p.enabled
}

// Capture sends an event to PostHog
func (p *PostHogClient) Capture(ctx context.Context, distinctID string, event string, properties EventProperties) error {
	if !p.enabled {
		return nil
	}

	props := posthog.NewProperties()
	for k, v := range properties {
		props.Set(k, v)
	}
	return p.client.Enqueue(posthog.Capture{
		DistinctId: distinctID,
		Event:      event,
		Properties: props,
	})
}

// TrackLLMCall tracks model calls for cost and latency monitoring
func (p *PostHogClient) TrackLLMCall(ctx context.Context, model string, operation string, tokens int, latencyMs int64, success bool) error {
	return p.Capture(ctx, systemID, "llm_call", EventProperties{
		"model":      model,
		"operation":  operation, // "keyword", "analysis", "synthetic", "quiz"
		"tokens":     tokens,
		"latency_ms": latencyMs,
		"success":    success,
	})
}

// TrackQuizGeneration tracks the outcome of one article's quiz generation
func (p *PostHogClient) TrackQuizGeneration(ctx context.Context, articleID string, quizzes int, success bool, duration time.Duration) error {
	return p.Capture(ctx, systemID, "quiz_generated", EventProperties{
		"article_id":  articleID,
		"quizzes":     quizzes,
		"success":     success,
		"duration_ms": duration.Milliseconds(),
	})
}

// TrackRun tracks a finished pipeline run
func (p *PostHogClient) TrackRun(ctx context.Context, report *core.RunReport) error {
	return p.Capture(ctx, systemID, "pipeline_run", EventProperties{
		"run_id":      report.RunID,
		"date":        report.Date.Format(time.DateOnly),
		"final_state": lastState(report),
		"keywords":    report.Keywords.Succeeded,
		"candidates":  report.Collection.Succeeded,
		"selected":    report.Selection.Succeeded,
		"synthetic":   report.Synthetic.Succeeded,
		"quizzes":     report.Quizzes.Succeeded,
		"failed":      report.Failed(),
		"duration_ms": report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	})
}

// TrackError tracks when an error occurs
func (p *PostHogClient) TrackError(ctx context.Context, errorType string, errorMessage string, component string) error {
	return p.Capture(ctx, systemID, "error_occurred", EventProperties{
		"error_type":    errorType,
		"error_message": errorMessage,
		"component":     component,
	})
}

// Shutdown flushes pending events and closes the client
func (p *PostHogClient) Shutdown(ctx context.Context) error {
	if !p.enabled {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- p.client.Close() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		p.log.Warn("PostHog shutdown timed out, pending events may be lost")
		return ctx.Err()
	}
}

func lastState(r *core.RunReport) string {
	if len(r.States) == 0 {
		return string(core.StateIdle)
	}
	return string(r.States[len(r.States)-1])
}
