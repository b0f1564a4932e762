package keywords

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"newsquiz/internal/core"
	"newsquiz/internal/llm"
	"newsquiz/internal/persistence"
)

const reply = "```json\n" + `{
  "POLITICS": [{"keyword": "election", "type": "ONGOING"}, {"keyword": "cabinet reshuffle", "type": "BREAKING"}],
  "ECONOMY": [{"keyword": "interest rates", "type": "ONGOING"}, {"keyword": "exports", "type": "GENERAL"}],
  "SOCIETY": [{"keyword": "housing", "type": "GENERAL"}, {"keyword": "heatwave", "type": "SEASONAL"}],
  "CULTURE": [{"keyword": "film festival", "type": "SEASONAL"}, {"keyword": "k-pop", "type": "GENERAL"}],
  "TECHNOLOGY": [{"keyword": "chips", "type": "ONGOING"}, {"keyword": "ai regulation", "type": "BREAKING"}]
}` + "\n```"

var today = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

func seedUsage(t *testing.T, repo persistence.KeywordRepository, text string, days ...int) {
	t.Helper()
	for _, d := range days {
		kw := []core.Keyword{{Text: text, Category: core.CategoryPolitics, Type: core.KeywordOngoing}}
		if err := repo.RecordUsage(context.Background(), kw, today.AddDate(0, 0, -d)); err != nil {
			t.Fatalf("RecordUsage failed: %v", err)
		}
	}
}

func excludedSection(prompt string) string {
	_, after, ok := strings.Cut(prompt, "Recently overused keywords")
	if !ok {
		return ""
	}
	section, _, _ := strings.Cut(after, "\n\n")
	return section
}

func TestGenerateExcludesOverusedKeywordsInPrompt(t *testing.T) {
	store := persistence.NewMemoryStore()
	seedUsage(t, store.Keywords(), "election", 1, 2, 3)
	seedUsage(t, store.Keywords(), "budget", 2)       // once in window, not yesterday
	seedUsage(t, store.Keywords(), "olympics", 1)     // used yesterday
	seedUsage(t, store.Keywords(), "old scandal", 10) // outside the window

	transport := llm.NewMockTransport(reply)
	gen := NewGenerator(transport, nil, store.Keywords(), Config{CooldownDays: 3, MinUsage: 2})

	got, err := gen.GenerateTodaysKeywords(context.Background(), today)
	if err != nil {
		t.Fatalf("GenerateTodaysKeywords failed: %v", err)
	}

	section := excludedSection(transport.Prompts()[0])
	for _, want := range []string{"- election", "- olympics"} {
		if !strings.Contains(section, want) {
			t.Errorf("Expected %q in exclusion list, got %q", want, section)
		}
	}
	for _, unwanted := range []string{"budget", "old scandal"} {
		if strings.Contains(section, unwanted) {
			t.Errorf("Did not expect %q in exclusion list, got %q", unwanted, section)
		}
	}

	// The reply reuses "election"; it is kept because exclusion is advisory.
	if got[core.CategoryPolitics][0].Text != "election" {
		t.Errorf("Expected excluded keyword to survive in output, got %+v", got[core.CategoryPolitics])
	}
	for _, c := range core.Categories() {
		if len(got[c]) != 2 {
			t.Errorf("Expected 2 keywords for %s, got %d", c, len(got[c]))
		}
	}
}

func TestGenerateRecordsUsage(t *testing.T) {
	store := persistence.NewMemoryStore()
	gen := NewGenerator(llm.NewMockTransport(reply), nil, store.Keywords(), Config{})

	if _, err := gen.GenerateTodaysKeywords(context.Background(), today.Add(15*time.Hour)); err != nil {
		t.Fatalf("GenerateTodaysKeywords failed: %v", err)
	}

	used, err := store.Keywords().FindOverused(context.Background(), today, 1)
	if err != nil {
		t.Fatalf("FindOverused failed: %v", err)
	}
	if len(used) != 10 {
		t.Errorf("Expected 10 recorded keywords, got %d: %v", len(used), used)
	}

	// Tomorrow every keyword from today is excluded.
	excluded, err := gen.Exclusions(context.Background(), today.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("Exclusions failed: %v", err)
	}
	if len(excluded) != 10 {
		t.Errorf("Expected yesterday's 10 keywords excluded, got %v", excluded)
	}
}

func TestPreviewDoesNotRecord(t *testing.T) {
	store := persistence.NewMemoryStore()
	gen := NewGenerator(llm.NewMockTransport(reply), nil, store.Keywords(), Config{})

	if _, err := gen.Preview(context.Background(), today); err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	used, _ := store.Keywords().FindOverused(context.Background(), today, 1)
	if len(used) != 0 {
		t.Errorf("Expected no recorded usage, got %v", used)
	}
}

func TestGenerateRejectsInvalidReply(t *testing.T) {
	store := persistence.NewMemoryStore()
	short := `{"POLITICS": [{"keyword": "election", "type": "ONGOING"}]}`
	gen := NewGenerator(llm.NewMockTransport(short), nil, store.Keywords(), Config{})

	_, err := gen.GenerateTodaysKeywords(context.Background(), today)
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("Expected validation failure, got %v", err)
	}
	used, _ := store.Keywords().FindOverused(context.Background(), today, 1)
	if len(used) != 0 {
		t.Errorf("Expected nothing recorded after a rejected reply, got %v", used)
	}
}

func TestFlattenOrder(t *testing.T) {
	byCategory := map[core.Category][]core.Keyword{
		core.CategoryTechnology: {{Text: "chips"}},
		core.CategoryPolitics:   {{Text: "election"}},
	}
	flat := Flatten(byCategory)
	if len(flat) != 2 || flat[0].Text != "election" || flat[1].Text != "chips" {
		t.Errorf("Unexpected order: %+v", flat)
	}
}
