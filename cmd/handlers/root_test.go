package handlers

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"newsquiz/internal/core"
)

func TestRootCommandTree(t *testing.T) {
	root := NewRootCmd()

	for _, path := range [][]string{
		{"run"}, {"keywords"}, {"quiz", "generate"}, {"quiz", "backfill"},
		{"aggregate"}, {"serve"}, {"migrate", "up"}, {"migrate", "status"},
	} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd.Name() != path[len(path)-1] {
			t.Errorf("Expected command %v, got %v (%v)", path, cmd, err)
		}
	}

	run, _, _ := root.Find([]string{"run"})
	for _, flag := range []string{"date", "dry-run"} {
		if run.Flags().Lookup(flag) == nil {
			t.Errorf("Expected run --%s flag", flag)
		}
	}
}

func TestParseExplicitDate(t *testing.T) {
	got, err := parseDate("2026-03-14")
	if err != nil {
		t.Fatalf("parseDate failed: %v", err)
	}
	if want := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	if _, err := parseDate("March 14"); err == nil {
		t.Error("Expected error for malformed date")
	}
}

func TestPrintReport(t *testing.T) {
	start := time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)
	report := &core.RunReport{
		RunID:      "run-1",
		Date:       time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		States:     []core.RunState{core.StateKeywordsGenerated, core.StateIdle},
		Keywords:   core.StageStats{Attempted: 10, Succeeded: 10},
		Quizzes:    core.StageStats{Attempted: 5, Succeeded: 4, Failed: 1},
		Errors:     []string{"synthetic news: boom"},
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
	}

	var buf bytes.Buffer
	printReport(&buf, report)
	out := buf.String()

	for _, want := range []string{
		"Run run-1 for 2026-03-14 (1m30s)",
		"KeywordsGenerated → Idle",
		"Error: synthetic news: boom",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
	if !strings.Contains(out, "quizzes") || !strings.Contains(out, "        5         4      1") {
		t.Errorf("Expected quiz stats row, got:\n%s", out)
	}
}
