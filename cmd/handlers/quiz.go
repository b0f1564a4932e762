package handlers

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewQuizCmd creates the quiz command group
func NewQuizCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Generate quizzes for stored articles",
	}

	cmd.AddCommand(newQuizGenerateCmd())
	cmd.AddCommand(newQuizBackfillCmd())

	return cmd
}

func newQuizGenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate <article-id>",
		Short: "Regenerate the quiz set of one article",
		Long: `Generate quizzes for a stored article, replacing any existing set.
Failed attempts are retried with backoff.

Example:
  newsquiz quiz generate 6f1c0a4e-2b7d-4c55-9a39-0b6f5e2d9c11`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuizGenerate(cmd.Context(), args[0])
		},
	}
}

func newQuizBackfillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill",
		Short: "Generate quizzes for every article that has none",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuizBackfill(cmd.Context())
		},
	}
}

func runQuizGenerate(ctx context.Context, articleID string) error {
	rt, err := buildRuntime(ctx, false)
	if err != nil {
		return err
	}
	defer closeRuntime(rt)

	if err := rt.Quizzes.GenerateWithRetry(ctx, articleID); err != nil {
		return fmt.Errorf("quiz generation failed: %w", err)
	}

	items, err := rt.DB.Quizzes().ListByArticle(ctx, articleID)
	if err != nil {
		return fmt.Errorf("failed to list quizzes: %w", err)
	}
	for i, q := range items {
		fmt.Printf("%d. %s\n", i+1, q.Question)
		for j, opt := range q.Options {
			marker := " "
			if j == q.CorrectOptionIndex {
				marker = "*"
			}
			fmt.Printf("   %s %s\n", marker, opt)
		}
	}
	return nil
}

func runQuizBackfill(ctx context.Context) error {
	rt, err := buildRuntime(ctx, false)
	if err != nil {
		return err
	}
	defer closeRuntime(rt)

	stats, err := rt.Orchestrator.Backfill(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Backfill: %d attempted, %d succeeded, %d failed\n", stats.Attempted, stats.Succeeded, stats.Failed)
	return nil
}
