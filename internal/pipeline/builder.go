package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"newsquiz/internal/collection"
	"newsquiz/internal/config"
	"newsquiz/internal/events"
	"newsquiz/internal/fetch"
	"newsquiz/internal/keywords"
	"newsquiz/internal/llm"
	"newsquiz/internal/logger"
	"newsquiz/internal/messaging"
	"newsquiz/internal/observability"
	"newsquiz/internal/persistence"
	"newsquiz/internal/quiz"
	"newsquiz/internal/ratelimit"
	"newsquiz/internal/retry"
	"newsquiz/internal/search"
	"newsquiz/internal/synthetic"
	"newsquiz/internal/workers"
)

// Runtime holds a fully wired pipeline and the components the CLI and
// admin server call directly.
type Runtime struct {
	Orchestrator *Orchestrator
	Keywords     *keywords.Generator
	Quizzes      *quiz.Service
	Aggregator   *quiz.Aggregator
	DB           persistence.Database
	Bus          *events.Bus
	Analytics    *observability.PostHogClient

	pool    *workers.Pool
	closers []func() error
}

// Close waits for in-flight event handlers, then releases the pool, the
// analytics client and the database.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	if err := r.Bus.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("waiting for event handlers: %w", err))
	}
	r.pool.Close()
	if err := r.Analytics.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("analytics shutdown: %w", err))
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Builder helps construct a fully configured Runtime
type Builder struct {
	cfg       *config.Config
	db        persistence.Database
	transport llm.Transport
	provider  search.Provider
	analytics *observability.PostHogClient
	dryRun    bool
}

// NewBuilder creates a builder for cfg
func NewBuilder(cfg *config.Config) *Builder {
	return &Builder{cfg: cfg}
}

// WithDatabase sets the persistence collaborator
func (b *Builder) WithDatabase(db persistence.Database) *Builder {
	b.db = db
	return b
}

// WithTransport sets the AI transport
func (b *Builder) WithTransport(t llm.Transport) *Builder {
	b.transport = t
	return b
}

// WithSearchProvider sets the search provider
func (b *Builder) WithSearchProvider(p search.Provider) *Builder {
	b.provider = p
	return b
}

// WithAnalytics sets the analytics client
func (b *Builder) WithAnalytics(c *observability.PostHogClient) *Builder {
	b.analytics = c
	return b
}

// DryRun keeps every write in memory instead of PostgreSQL
func (b *Builder) DryRun() *Builder {
	b.dryRun = true
	return b
}

// Build constructs the Runtime
func (b *Builder) Build(ctx context.Context) (*Runtime, error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	cfg := b.cfg
	rt := &Runtime{}

	fail := func(err error) (*Runtime, error) {
		for i := len(rt.closers) - 1; i >= 0; i-- {
			_ = rt.closers[i]()
		}
		return nil, err
	}

	db := b.db
	switch {
	case db != nil:
	case b.dryRun:
		logger.Info("Dry run: using in-memory store")
		db = persistence.NewMemoryStore()
	default:
		if cfg.Database.ConnectionString == "" {
			return fail(fmt.Errorf("database connection string is required (set DATABASE_URL or use --dry-run)"))
		}
		pg, err := persistence.NewPostgresDB(cfg.Database.ConnectionString)
		if err != nil {
			return fail(err)
		}
		db = pg
		rt.closers = append(rt.closers, pg.Close)
	}

	analytics := b.analytics
	if analytics == nil {
		var err error
		analytics, err = observability.NewPostHogClient(cfg.Observability.PostHog)
		if err != nil {
			return fail(err)
		}
	}

	transport := b.transport
	model := cfg.AI.Gemini.Model
	if transport == nil {
		client, err := llm.NewClient(ctx, cfg.AI.Gemini)
		if err != nil {
			return fail(fmt.Errorf("failed to create AI client: %w", err))
		}
		transport = client
		model = client.ModelName()
		rt.closers = append(rt.closers, func() error { client.Close(); return nil })
	}
	traced := func(operation string) llm.Transport {
		if !analytics.IsEnabled() {
			return transport
		}
		return llm.NewTracedTransport(transport, analytics, model, operation)
	}

	provider := b.provider
	if provider == nil {
		var err error
		provider, err = search.NewProviderFactory().CreateProvider(
			search.ProviderType(cfg.Search.DefaultProvider),
			config.GetSearchProviderConfig(cfg, cfg.Search.DefaultProvider))
		if err != nil {
			return fail(fmt.Errorf("failed to create search provider %q: %w", cfg.Search.DefaultProvider, err))
		}
	}

	limiter := ratelimit.New(ratelimit.Config{
		Capacity:       cfg.RateLimit.Capacity,
		RefillInterval: cfg.RateLimit.RefillInterval,
		AcquireTimeout: cfg.RateLimit.AcquireTimeout,
	})
	pool := workers.NewPool(workers.Config{
		CoreSize:  cfg.Workers.CoreSize,
		MaxSize:   cfg.Workers.MaxSize,
		QueueSize: cfg.Workers.QueueSize,
		KeepAlive: cfg.Workers.KeepAlive,
	})
	policy := retry.NewPolicy(cfg.Retry.MaxAttempts, cfg.Retry.Backoff)
	bus := events.NewBus()

	kw := keywords.NewGenerator(traced("keyword"), limiter, db.Keywords(), keywords.Config{
		CooldownDays: cfg.Keywords.CooldownDays,
		MinUsage:     cfg.Keywords.MinUsage,
	})

	collector := collection.NewCollector(provider, traced("analysis"), limiter, collection.Config{
		BatchSize:      cfg.Pipeline.AnalysisBatchSize,
		MinScore:       cfg.Pipeline.MinQualityScore,
		MaxPerCategory: cfg.Pipeline.MaxPerCategory,
		Concurrency:    cfg.Search.Concurrency,
		Search: search.Config{
			MaxResults: cfg.Search.MaxResults,
			SinceTime:  time.Duration(cfg.Search.SinceHours) * time.Hour,
			Language:   cfg.Search.Language,
		},
	})
	if cfg.Search.FetchFullText {
		collector.WithFetcher(fetch.NewClient(cfg.Search.Timeout))
	}

	syn := synthetic.NewGenerator(pool, traced("synthetic"), limiter, db.Synthetic())

	quizzes := quiz.NewService(db, bus, pool, traced("quiz"), limiter, policy)
	if analytics.IsEnabled() {
		quizzes.WithTracker(analytics)
	}
	aggregator := quiz.NewAggregator(db, cfg.Pipeline.DailyQuizSetSize)

	deps := Dependencies{
		DB:         db,
		Bus:        bus,
		Keywords:   kw,
		Collector:  collector,
		Synthetic:  syn,
		Quizzes:    quizzes,
		Aggregator: aggregator,
	}
	if analytics.IsEnabled() {
		deps.Tracker = analytics
	}

	notifier, err := messaging.NewClient(cfg.Notifications.SlackWebhookURL, cfg.Notifications.DiscordWebhookURL)
	if err != nil {
		return fail(fmt.Errorf("invalid notification settings: %w", err))
	}
	if notifier.IsEnabled() {
		deps.Notifier = notifier
	}

	rt.Orchestrator = New(deps, Config{
		MinScore:      cfg.Pipeline.MinQualityScore,
		BackfillLimit: cfg.Pipeline.BackfillLimit,
	})
	rt.Keywords = kw
	rt.Quizzes = quizzes
	rt.Aggregator = aggregator
	rt.DB = db
	rt.Bus = bus
	rt.Analytics = analytics
	rt.pool = pool
	return rt, nil
}
