package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"newsquiz/internal/config"
	"newsquiz/internal/core"
	"newsquiz/internal/logger"
	"newsquiz/internal/persistence"
)

// Pipeline is the run surface the admin API triggers
type Pipeline interface {
	Run(ctx context.Context, date time.Time) (*core.RunReport, error)
	Backfill(ctx context.Context) (core.StageStats, error)
}

// QuizGenerator regenerates the quiz set of one article
type QuizGenerator interface {
	GenerateWithRetry(ctx context.Context, articleID string) error
}

// Server represents the admin HTTP server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	db         persistence.Database
	pipeline   Pipeline
	quizzes    QuizGenerator
	config     config.Server
	loc        *time.Location
	log        *slog.Logger
}

// New creates a new HTTP server instance. Run dates given without an
// explicit date are resolved in loc.
func New(db persistence.Database, pipeline Pipeline, quizzes QuizGenerator, cfg config.Server, loc *time.Location) *Server {
	if loc == nil {
		loc = time.UTC
	}
	s := &Server{
		router:   chi.NewRouter(),
		db:       db,
		pipeline: pipeline,
		quizzes:  quizzes,
		config:   cfg,
		loc:      loc,
		log:      logger.Get().With("component", "server"),
	}

	s.setupMiddleware()
	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// setupMiddleware configures middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders)

	// A full pipeline run can take several minutes
	timeout := s.config.WriteTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	s.router.Use(middleware.Timeout(timeout))
}

// setupRoutes configures routes for the server
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/quizzes/daily/{date}", s.handleGetDailySet)
		r.Get("/articles/{id}/quizzes", s.handleListArticleQuizzes)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdminAPI)
			r.Post("/pipeline/runs", s.handleRunPipeline)
			r.Post("/articles/{id}/quizzes", s.handleGenerateQuizzes)
			r.Post("/quizzes/backfill", s.handleBackfill)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info("Starting HTTP server",
		"addr", s.httpServer.Addr,
		"read_timeout", s.config.ReadTimeout,
		"write_timeout", s.config.WriteTimeout,
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server gracefully...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.log.Info("HTTP server stopped")
	return nil
}

// Router returns the chi router instance (useful for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}
