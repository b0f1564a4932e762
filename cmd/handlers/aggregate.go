package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewAggregateCmd creates the aggregate command that rebuilds a daily quiz set
func NewAggregateCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Rebuild the daily quiz set for a day",
		Long: `Rebuild the curated quiz set from the quizzes created on a day.
Running it again with no new quizzes leaves the stored set unchanged.

Example:
  newsquiz aggregate --date 2026-03-14`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAggregate(cmd.Context(), date)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Date as YYYY-MM-DD (default today)")

	return cmd
}

func runAggregate(ctx context.Context, dateFlag string) error {
	date, err := parseDate(dateFlag)
	if err != nil {
		return err
	}

	rt, err := buildRuntime(ctx, false)
	if err != nil {
		return err
	}
	defer closeRuntime(rt)

	set, changed, err := rt.Aggregator.Aggregate(ctx, date)
	if err != nil {
		return fmt.Errorf("aggregation failed: %w", err)
	}
	if set == nil {
		fmt.Printf("No quizzes created on %s\n", date.Format(time.DateOnly))
		return nil
	}

	status := "unchanged"
	if changed {
		status = "updated"
	}
	fmt.Printf("Daily quiz set for %s %s: %d quizzes\n", date.Format(time.DateOnly), status, len(set.QuizIDs))
	return nil
}
