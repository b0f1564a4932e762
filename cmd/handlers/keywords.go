package handlers

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"newsquiz/internal/core"
)

// NewKeywordsCmd creates the keywords command that previews a day's keywords
func NewKeywordsCmd() *cobra.Command {
	var (
		date   string
		record bool
	)

	cmd := &cobra.Command{
		Use:   "keywords",
		Short: "Generate search keywords for a day",
		Long: `Ask the AI model for the day's search keywords, two per category,
avoiding keywords used too often recently.

By default the keywords are only printed. Use --record to count them as used.

Example:
  newsquiz keywords --date 2026-03-14`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeywords(cmd.Context(), date, record)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Date as YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&record, "record", false, "Record keyword usage")

	return cmd
}

func runKeywords(ctx context.Context, dateFlag string, record bool) error {
	date, err := parseDate(dateFlag)
	if err != nil {
		return err
	}

	// Previews never write, so they do not need the database
	rt, err := buildRuntime(ctx, !record)
	if err != nil {
		return err
	}
	defer closeRuntime(rt)

	excluded, err := rt.Keywords.Exclusions(ctx, date)
	if err != nil {
		return fmt.Errorf("failed to load keyword history: %w", err)
	}

	var byCategory map[core.Category][]core.Keyword
	if record {
		byCategory, err = rt.Keywords.GenerateTodaysKeywords(ctx, date)
	} else {
		byCategory, err = rt.Keywords.Preview(ctx, date)
	}
	if err != nil {
		return fmt.Errorf("keyword generation failed: %w", err)
	}

	if len(excluded) > 0 {
		fmt.Printf("Excluded: %v\n\n", excluded)
	}
	for _, cat := range core.Categories() {
		fmt.Printf("%s\n", cat)
		for _, kw := range byCategory[cat] {
			fmt.Printf("  • %s (%s)\n", kw.Text, kw.Type)
		}
	}
	return nil
}
