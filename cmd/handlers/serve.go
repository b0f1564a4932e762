package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"newsquiz/internal/config"
	"newsquiz/internal/logger"
	"newsquiz/internal/pipeline"
	"newsquiz/internal/server"
)

// NewServeCmd creates the serve command for starting the admin HTTP server
func NewServeCmd() *cobra.Command {
	var (
		port     int
		host     string
		interval time.Duration
		dryRun   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the admin HTTP server",
		Long: `Start the admin server that triggers pipeline runs and serves quiz sets.

The server provides:
  • POST /api/pipeline/runs          run the pipeline (admin key)
  • POST /api/articles/{id}/quizzes  regenerate quizzes (admin key)
  • POST /api/quizzes/backfill       backfill missing quizzes (admin key)
  • GET  /api/quizzes/daily/{date}   the curated quiz set for a day
  • GET  /health

With --interval the pipeline also runs on a fixed schedule in-process.

Examples:
  # Start server on default port 8080
  newsquiz serve

  # Start and run the pipeline every 24 hours
  newsquiz serve --interval 24h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port, host, interval, dryRun)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP server port (default from config: 8080)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP server host (default from config: 0.0.0.0)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Run the pipeline on this interval (default from config, 0 disables)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Keep all writes in memory")

	return cmd
}

func runServe(ctx context.Context, port int, host string, interval time.Duration, dryRun bool) error {
	log := logger.Get()
	cfg := config.Get()

	serverCfg := cfg.Server
	if port != 0 {
		serverCfg.Port = port
	}
	if host != "" {
		serverCfg.Host = host
	}
	if interval == 0 {
		interval = serverCfg.DailyInterval
	}

	rt, err := buildRuntime(ctx, dryRun)
	if err != nil {
		return err
	}
	defer closeRuntime(rt)

	if err := rt.DB.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w\n\n"+
			"Make sure PostgreSQL is running and the connection string is correct.\n"+
			"Run 'newsquiz migrate up' to initialize the database schema.", err)
	}

	srv := server.New(rt.DB, rt.Orchestrator, rt.Quizzes, serverCfg, cfg.App.Location())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErrors := make(chan error, 1)
	go func() {
		log.Info(fmt.Sprintf("Server listening on http://%s:%d", serverCfg.Host, serverCfg.Port))
		serverErrors <- srv.Start()
	}()

	if interval > 0 {
		scheduler := pipeline.NewScheduler(rt.Orchestrator, interval, cfg.App.Location())
		go func() {
			if err := scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Scheduler stopped", "error", err.Error())
			}
		}()
	}

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		log.Info("Server shutdown initiated")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info("Server stopped successfully")
	return nil
}
