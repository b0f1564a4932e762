// Package pipeline sequences the daily content run and chains the quiz
// stages through commit-gated events.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"newsquiz/internal/core"
	"newsquiz/internal/events"
	"newsquiz/internal/keywords"
	"newsquiz/internal/logger"
	"newsquiz/internal/persistence"
)

// ErrRunInProgress is returned when a run is requested while another is active.
var ErrRunInProgress = errors.New("a pipeline run is already in progress")

// Config holds orchestrator settings
type Config struct {
	MinScore      int // Zero defers to the collector's threshold
	BackfillLimit int // Zero means no limit
}

// Dependencies are the stages and collaborators an Orchestrator drives
type Dependencies struct {
	DB         persistence.Database
	Bus        *events.Bus
	Keywords   KeywordGenerator
	Collector  ArticleCollector
	Synthetic  SyntheticGenerator
	Quizzes    QuizGenerator
	Aggregator QuizAggregator
	Tracker    RunTracker  // Optional
	Notifier   RunNotifier // Optional
}

// Orchestrator runs the daily pipeline:
//
//	Idle → KeywordsGenerated → ArticlesCollected → ArticlesScored →
//	ArticlesSelected → QuizzesRequested → QuizzesPersisted →
//	DailyQuizAggregated → Idle
//
// Selected articles are saved in one transaction that publishes
// ArticlePersisted per article. Quiz generation listens after commit, and
// every committed quiz set triggers aggregation of the daily set.
type Orchestrator struct {
	deps   Dependencies
	config Config
	log    *slog.Logger
	now    func() time.Time

	running sync.Mutex

	runsMu sync.Mutex
	runs   map[string]*runState
}

// runState is the per-run data shared with event handlers.
type runState struct {
	mu      sync.Mutex
	linked  []string
	quizzes core.StageStats
}

func (s *runState) link(articleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.linked = append(s.linked, articleID)
}

func (s *runState) recordQuiz(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes.Attempted++
	if err != nil {
		s.quizzes.Failed++
	} else {
		s.quizzes.Succeeded++
	}
}

func (s *runState) snapshot() ([]string, core.StageStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.linked...), s.quizzes
}

// New creates an orchestrator and subscribes its event handlers on deps.Bus.
func New(deps Dependencies, cfg Config) *Orchestrator {
	if deps.Bus == nil {
		deps.Bus = events.NewBus()
	}
	o := &Orchestrator{
		deps:   deps,
		config: cfg,
		log:    logger.Get().With("component", "pipeline"),
		now:    func() time.Time { return time.Now().UTC() },
		runs:   make(map[string]*runState),
	}

	deps.Bus.Subscribe(events.TypeArticlePersisted, "link-synthetic", o.linkArticle, events.SubscribeOptions{})
	deps.Bus.Subscribe(events.TypeArticlePersisted, "generate-quizzes", o.generateQuizzes, events.SubscribeOptions{AfterCommit: true})
	deps.Bus.Subscribe(events.TypeQuizzesPersisted, "aggregate-daily", o.aggregateDaily, events.SubscribeOptions{AfterCommit: true})
	return o
}

// Run executes one daily run for date. Partial failures are counted in the
// report; an error is returned only when the run could not continue, and
// the report is returned with it.
func (o *Orchestrator) Run(ctx context.Context, date time.Time) (*core.RunReport, error) {
	if !o.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer o.running.Unlock()

	runID := uuid.NewString()
	ctx = events.WithRunID(ctx, runID)
	state := o.register(runID)
	defer o.unregister(runID)

	report := &core.RunReport{
		RunID:     runID,
		Date:      core.DateOnly(date),
		StartedAt: o.now(),
	}
	log := o.log.With("run_id", runID, "date", report.Date.Format(time.DateOnly))
	log.Info("Pipeline run started")

	err := o.run(ctx, log, state, report)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
	}
	o.finish(ctx, log, report)
	return report, err
}

func (o *Orchestrator) run(ctx context.Context, log *slog.Logger, state *runState, report *core.RunReport) error {
	byCategory, err := o.deps.Keywords.GenerateTodaysKeywords(ctx, report.Date)
	if err != nil {
		report.Keywords = core.StageStats{Attempted: 1, Failed: 1}
		return fmt.Errorf("keyword generation failed: %w", err)
	}
	kws := keywords.Flatten(byCategory)
	report.Keywords = core.StageStats{Attempted: len(kws), Succeeded: len(kws)}
	o.enter(log, report, core.StateKeywordsGenerated)

	candidates, collected := o.deps.Collector.Collect(ctx, kws)
	report.Collection = collected
	o.enter(log, report, core.StateArticlesCollected)

	scored, analyzed := o.deps.Collector.Analyze(ctx, candidates)
	report.Analysis = analyzed
	o.enter(log, report, core.StateArticlesScored)

	selected := o.deps.Collector.Select(scored, o.config.MinScore)
	report.Selection = core.StageStats{
		Attempted: len(scored),
		Succeeded: len(selected),
		Skipped:   len(scored) - len(selected),
	}
	if len(selected) == 0 {
		log.Warn("No articles selected, ending run early", "scored", len(scored))
		return nil
	}

	refs, err := o.persistSelected(ctx, report.Date, selected)
	if err != nil {
		return err
	}
	o.enter(log, report, core.StateArticlesSelected)

	// Quiz generation was dispatched by the commit above.
	o.enter(log, report, core.StateQuizzesRequested)

	linked, _ := state.snapshot()
	byID := make(map[string]core.ArticleRef, len(refs))
	for _, ref := range refs {
		byID[ref.ID] = ref
	}
	sources := make([]core.ArticleRef, 0, len(linked))
	for _, id := range linked {
		if ref, ok := byID[id]; ok {
			sources = append(sources, ref)
		}
	}

	var g errgroup.Group
	g.Go(func() error {
		// Synthetic failures are contained here so they cannot void the run.
		report.Synthetic.Attempted = len(sources)
		generated, err := o.deps.Synthetic.GenerateAll(ctx, sources)
		if err != nil {
			report.Synthetic.Failed = len(sources)
			report.Errors = append(report.Errors, fmt.Sprintf("synthetic news: %v", err))
			return nil
		}
		report.Synthetic.Succeeded = len(generated)
		return nil
	})
	g.Go(func() error {
		return o.deps.Bus.Wait(ctx)
	})
	if err := g.Wait(); err != nil {
		_, report.Quizzes = state.snapshot()
		return fmt.Errorf("waiting for quiz generation: %w", err)
	}

	_, report.Quizzes = state.snapshot()
	o.enter(log, report, core.StateQuizzesPersisted)
	// Aggregation handlers are chained off the quiz events and covered by Wait.
	o.enter(log, report, core.StateDailyQuizAggregate)
	return nil
}

// persistSelected saves the articles and publishes ArticlePersisted for
// each one through the transaction's event scope.
func (o *Orchestrator) persistSelected(ctx context.Context, date time.Time, selected []core.ScoredArticle) ([]core.ArticleRef, error) {
	tx, err := o.deps.DB.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	scope := o.deps.Bus.Begin(tx)

	refs, err := tx.Articles().SaveSelected(ctx, date, selected)
	if err != nil {
		_ = scope.Rollback()
		return nil, fmt.Errorf("failed to save selected articles: %w", err)
	}

	for _, ref := range refs {
		err := scope.Publish(ctx, events.Event{
			Type:      events.TypeArticlePersisted,
			ArticleID: ref.ID,
			Date:      date,
		})
		if err != nil {
			_ = scope.Rollback()
			return nil, fmt.Errorf("article persisted handler failed for %s: %w", ref.ID, err)
		}
	}

	if err := scope.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit selected articles: %w", err)
	}
	return refs, nil
}

// Backfill generates quizzes for stored articles that have none.
func (o *Orchestrator) Backfill(ctx context.Context) (core.StageStats, error) {
	refs, err := o.deps.DB.Articles().FindNeedingQuizzes(ctx, o.config.BackfillLimit)
	if err != nil {
		return core.StageStats{}, fmt.Errorf("failed to find articles needing quizzes: %w", err)
	}
	if len(refs) == 0 {
		o.log.Info("No articles need quizzes")
		return core.StageStats{}, nil
	}

	ids := make([]string, len(refs))
	for i, ref := range refs {
		ids[i] = ref.ID
	}
	stats := o.deps.Quizzes.GenerateBatch(ctx, ids)
	if err := o.deps.Bus.Wait(ctx); err != nil {
		return stats, fmt.Errorf("waiting for aggregation: %w", err)
	}

	o.log.Info("Backfill finished", "articles", len(ids), "succeeded", stats.Succeeded, "failed", stats.Failed)
	return stats, nil
}

func (o *Orchestrator) linkArticle(ctx context.Context, e events.Event) error {
	if state := o.lookup(e.RunID); state != nil {
		state.link(e.ArticleID)
	}
	return nil
}

func (o *Orchestrator) generateQuizzes(ctx context.Context, e events.Event) error {
	err := o.deps.Quizzes.GenerateQueued(ctx, e.ArticleID)
	if state := o.lookup(e.RunID); state != nil {
		state.recordQuiz(err)
	}
	return err
}

func (o *Orchestrator) aggregateDaily(ctx context.Context, e events.Event) error {
	_, _, err := o.deps.Aggregator.Aggregate(ctx, e.Date)
	return err
}

func (o *Orchestrator) enter(log *slog.Logger, report *core.RunReport, s core.RunState) {
	report.Enter(s)
	log.Info("Pipeline state", "state", s)
}

func (o *Orchestrator) finish(ctx context.Context, log *slog.Logger, report *core.RunReport) {
	report.Enter(core.StateIdle)
	report.FinishedAt = o.now()

	log.Info("Pipeline run finished",
		"duration", report.FinishedAt.Sub(report.StartedAt),
		"keywords", report.Keywords.Succeeded,
		"selected", report.Selection.Succeeded,
		"synthetic", report.Synthetic.Succeeded,
		"quizzes", report.Quizzes.Succeeded,
		"failed_units", report.Failed(),
		"errors", len(report.Errors))

	if o.deps.Tracker != nil {
		if err := o.deps.Tracker.TrackRun(ctx, report); err != nil {
			log.Debug("Failed to track run", "error", err.Error())
		}
	}
	if o.deps.Notifier != nil {
		if err := o.deps.Notifier.NotifyRun(ctx, report); err != nil {
			log.Warn("Failed to send run notification", "error", err.Error())
		}
	}
}

func (o *Orchestrator) register(runID string) *runState {
	o.runsMu.Lock()
	defer o.runsMu.Unlock()
	s := &runState{}
	o.runs[runID] = s
	return s
}

func (o *Orchestrator) unregister(runID string) {
	o.runsMu.Lock()
	defer o.runsMu.Unlock()
	delete(o.runs, runID)
}

func (o *Orchestrator) lookup(runID string) *runState {
	if runID == "" {
		return nil
	}
	o.runsMu.Lock()
	defer o.runsMu.Unlock()
	return o.runs[runID]
}
