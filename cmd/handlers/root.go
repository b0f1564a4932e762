package handlers

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"newsquiz/internal/config"
	"newsquiz/internal/logger"
	"newsquiz/internal/pipeline"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "newsquiz",
		Short: "newsquiz builds a daily set of news reading quizzes.",
		Long: `newsquiz runs the daily content pipeline:

  keywords → news search → quality analysis → selection →
  synthetic news + quizzes → daily quiz set

Each run is driven by an AI model and stored in PostgreSQL. Use --dry-run
on any command that writes to keep the results in memory.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("error loading configuration: %w", err)
			}
			logger.Configure(cfg.Logging.Format, cfg.Logging.Level, os.Stderr)
			if cfg.App.Debug {
				logger.SetLevel("debug")
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.newsquiz.yaml or $HOME/.newsquiz.yaml)")

	rootCmd.AddCommand(NewRunCmd())
	rootCmd.AddCommand(NewKeywordsCmd())
	rootCmd.AddCommand(NewQuizCmd())
	rootCmd.AddCommand(NewAggregateCmd())
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewMigrateCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRuntime wires the pipeline from the loaded configuration
func buildRuntime(ctx context.Context, dryRun bool) (*pipeline.Runtime, error) {
	b := pipeline.NewBuilder(config.Get())
	if dryRun {
		b.DryRun()
	}
	return b.Build(ctx)
}

// closeRuntime releases rt, logging instead of failing the command
func closeRuntime(rt *pipeline.Runtime) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := rt.Close(ctx); err != nil {
		logger.Error("Failed to close runtime", err)
	}
}

// parseDate resolves a --date flag. Empty means today in the configured timezone.
func parseDate(value string) (time.Time, error) {
	if value == "" {
		now := time.Now().In(config.Get().App.Location())
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	date, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	return date, nil
}
