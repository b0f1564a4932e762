package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"newsquiz/internal/core"
	"newsquiz/internal/logger"
)

// Runner runs the pipeline for a date
type Runner interface {
	Run(ctx context.Context, date time.Time) (*core.RunReport, error)
}

// Scheduler triggers a run on a fixed interval within this process.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	loc      *time.Location
	now      func() time.Time
	log      *slog.Logger
}

// NewScheduler creates a scheduler. Dates are computed in loc (UTC if nil).
func NewScheduler(runner Runner, interval time.Duration, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		loc:      loc,
		now:      time.Now,
		log:      logger.Get().With("component", "scheduler"),
	}
}

// Start blocks, running the pipeline every interval until ctx is done.
// A tick that finds a run in progress is skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %v", s.interval)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.log.Info("Scheduler started", "interval", s.interval, "timezone", s.loc.String())

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	date := s.now().In(s.loc)
	// Run dates are the local calendar day.
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	report, err := s.runner.Run(ctx, day)
	switch {
	case errors.Is(err, ErrRunInProgress):
		s.log.Warn("Skipping scheduled run, previous run still active")
	case err != nil:
		s.log.Error("Scheduled run failed", "error", err.Error())
	default:
		s.log.Info("Scheduled run completed", "run_id", report.RunID, "failed_units", report.Failed())
	}
}
