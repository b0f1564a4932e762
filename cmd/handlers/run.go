package handlers

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"newsquiz/internal/core"
)

// NewRunCmd creates the run command that executes one daily pipeline run
func NewRunCmd() *cobra.Command {
	var (
		date   string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daily content pipeline once",
		Long: `Run the full pipeline for one day.

The run generates keywords, searches and scores news, selects the best
articles, then produces synthetic news and quizzes and rebuilds the day's
quiz set. Failed units are counted in the report and do not stop the run.

Examples:
  # Run for today
  newsquiz run

  # Re-run a past day without touching the database
  newsquiz run --date 2026-03-14 --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), date, dryRun)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Run date as YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Keep all writes in memory")

	return cmd
}

func runPipeline(ctx context.Context, dateFlag string, dryRun bool) error {
	date, err := parseDate(dateFlag)
	if err != nil {
		return err
	}

	rt, err := buildRuntime(ctx, dryRun)
	if err != nil {
		return err
	}
	defer closeRuntime(rt)

	report, err := rt.Orchestrator.Run(ctx, date)
	if report != nil {
		printReport(os.Stdout, report)
	}
	if err != nil {
		return fmt.Errorf("pipeline run failed: %w", err)
	}
	return nil
}

func printReport(w io.Writer, r *core.RunReport) {
	fmt.Fprintf(w, "Run %s for %s (%s)\n", r.RunID, r.Date.Format(time.DateOnly),
		r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(w, "%-12s %9s %9s %6s %7s\n", "Stage", "Attempted", "Succeeded", "Failed", "Skipped")
	for _, row := range []struct {
		name  string
		stats core.StageStats
	}{
		{"keywords", r.Keywords},
		{"collection", r.Collection},
		{"analysis", r.Analysis},
		{"selection", r.Selection},
		{"synthetic", r.Synthetic},
		{"quizzes", r.Quizzes},
	} {
		fmt.Fprintf(w, "%-12s %9d %9d %6d %7d\n", row.name,
			row.stats.Attempted, row.stats.Succeeded, row.stats.Failed, row.stats.Skipped)
	}

	states := make([]string, len(r.States))
	for i, s := range r.States {
		states[i] = string(s)
	}
	fmt.Fprintf(w, "States: %s\n", strings.Join(states, " → "))
	for _, e := range r.Errors {
		fmt.Fprintf(w, "Error: %s\n", e)
	}
}
