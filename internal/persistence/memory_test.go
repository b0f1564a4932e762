package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"newsquiz/internal/core"
)

var selectionDay = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

func scored(link string, score int, cat core.Category) core.ScoredArticle {
	return core.ScoredArticle{
		CandidateArticle: core.CandidateArticle{Title: "Title " + link, Body: "body", Link: link},
		QualityScore:     score,
		Category:         cat,
	}
}

func threeQuizzes(prefix string) []core.QuizItem {
	var items []core.QuizItem
	for i := 0; i < 3; i++ {
		items = append(items, core.QuizItem{
			Question:           prefix + " question",
			Options:            []string{"a", "b", "c"},
			CorrectOptionIndex: i,
		})
	}
	return items
}

func TestMemoryStoreSaveAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	refs, err := store.Articles().SaveSelected(ctx, selectionDay, []core.ScoredArticle{
		scored("https://a", 80, core.CategoryPolitics),
		scored("https://b", 90, core.CategoryEconomy),
	})
	if err != nil {
		t.Fatalf("SaveSelected failed: %v", err)
	}
	if len(refs) != 2 || refs[0].ID == "" || refs[0].ID == refs[1].ID {
		t.Fatalf("Expected 2 distinct refs, got %+v", refs)
	}

	got, err := store.Articles().Get(ctx, refs[1].ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Link != "https://b" || got.QualityScore != 90 {
		t.Errorf("Unexpected article: %+v", got)
	}

	_, err = store.Articles().Get(ctx, "missing")
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}

	again, _ := store.Articles().SaveSelected(ctx, selectionDay, []core.ScoredArticle{scored("https://a", 95, core.CategoryPolitics)})
	if again[0].ID != refs[0].ID {
		t.Errorf("Expected existing link to keep its ID, got %s vs %s", again[0].ID, refs[0].ID)
	}
}

func TestMemoryStoreReplaceQuizSetIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	refs, _ := store.Articles().SaveSelected(ctx, selectionDay, []core.ScoredArticle{scored("https://a", 80, core.CategoryCulture)})
	id := refs[0].ID

	if _, err := store.Quizzes().ReplaceSet(ctx, id, threeQuizzes("first")); err != nil {
		t.Fatalf("first ReplaceSet: %v", err)
	}
	if _, err := store.Quizzes().ReplaceSet(ctx, id, threeQuizzes("second")); err != nil {
		t.Fatalf("second ReplaceSet: %v", err)
	}

	items, _ := store.Quizzes().ListByArticle(ctx, id)
	if len(items) != 3 {
		t.Fatalf("Expected exactly 3 stored quizzes, got %d", len(items))
	}
	for _, it := range items {
		if it.Question != "second question" {
			t.Errorf("Expected second set to replace first, got %q", it.Question)
		}
	}
}

func TestMemoryTransactionStagesUntilCommit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx failed: %v", err)
	}
	refs, err := tx.Articles().SaveSelected(ctx, selectionDay, []core.ScoredArticle{scored("https://a", 80, core.CategorySociety)})
	if err != nil {
		t.Fatalf("SaveSelected in tx failed: %v", err)
	}

	if _, err := store.Articles().Get(ctx, refs[0].ID); !errors.Is(err, core.ErrNotFound) {
		t.Error("Expected staged article to be invisible before commit")
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if _, err := store.Articles().Get(ctx, refs[0].ID); err != nil {
		t.Errorf("Expected article after commit, got %v", err)
	}
	if err := tx.Commit(); !errors.Is(err, ErrTxDone) {
		t.Errorf("Expected ErrTxDone on second commit, got %v", err)
	}
}

func TestMemoryTransactionRollback(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	tx, _ := store.BeginTx(ctx)
	_ = tx.Keywords().RecordUsage(ctx, []core.Keyword{{Text: "inflation"}}, time.Now())
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	got, _ := store.Keywords().FindOverused(ctx, time.Now().AddDate(0, 0, -1), 1)
	if len(got) != 0 {
		t.Errorf("Expected rolled back usage to be discarded, got %v", got)
	}
	if _, err := tx.Articles().SaveSelected(ctx, selectionDay, nil); !errors.Is(err, ErrTxDone) {
		t.Errorf("Expected writes after rollback to fail, got %v", err)
	}
}

func TestMemoryFindOverused(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	today := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	record := func(text string, daysAgo int) {
		_ = store.Keywords().RecordUsage(ctx, []core.Keyword{{Text: text, Category: core.CategoryEconomy}}, today.AddDate(0, 0, -daysAgo))
	}
	record("interest rates", 1)
	record("interest rates", 2)
	record("interest rates", 3)
	record("heat wave", 1)
	record("election", 3)
	record("election", 5)

	got, _ := store.Keywords().FindOverused(ctx, today.AddDate(0, 0, -3), 2)
	if len(got) != 1 || got[0] != "interest rates" {
		t.Errorf("Expected [interest rates], got %v", got)
	}

	got, _ = store.Keywords().FindOverused(ctx, today.AddDate(0, 0, -1), 1)
	if len(got) != 2 || got[0] != "heat wave" || got[1] != "interest rates" {
		t.Errorf("Expected yesterday's keywords, got %v", got)
	}
}

func TestMemoryFindNeedingQuizzes(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	refs, _ := store.Articles().SaveSelected(ctx, selectionDay, []core.ScoredArticle{
		scored("https://a", 80, core.CategoryPolitics),
		scored("https://b", 80, core.CategoryPolitics),
		scored("https://c", 80, core.CategoryPolitics),
	})
	_, _ = store.Quizzes().ReplaceSet(ctx, refs[1].ID, threeQuizzes("q"))

	got, _ := store.Articles().FindNeedingQuizzes(ctx, 0)
	if len(got) != 2 || got[0].ID != refs[0].ID || got[1].ID != refs[2].ID {
		t.Errorf("Unexpected articles needing quizzes: %+v", got)
	}

	got, _ = store.Articles().FindNeedingQuizzes(ctx, 1)
	if len(got) != 1 {
		t.Errorf("Expected limit to apply, got %d", len(got))
	}
}

func TestMemoryListQuizzesByDateAndDailySet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	day := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	// 08:00 in Seoul on the 19th is still the 18th in UTC
	store.SetClock(func() time.Time { return time.Date(2026, 10, 18, 23, 0, 0, 0, time.UTC) })

	refs, _ := store.Articles().SaveSelected(ctx, day, []core.ScoredArticle{scored("https://a", 80, core.CategoryPolitics)})
	if !refs[0].QuizDate.Equal(day) {
		t.Errorf("Expected quiz date %v, got %v", day, refs[0].QuizDate)
	}
	_, _ = store.Quizzes().ReplaceSet(ctx, refs[0].ID, threeQuizzes("q"))

	items, _ := store.Quizzes().ListByDate(ctx, day)
	if len(items) != 3 {
		t.Errorf("Expected 3 quizzes on the article's day, got %d", len(items))
	}
	items, _ = store.Quizzes().ListByDate(ctx, day.AddDate(0, 0, -1))
	if len(items) != 0 {
		t.Errorf("Expected none on the UTC creation day, got %d", len(items))
	}

	// Reselecting a stored link on a later day keeps its original date
	again, _ := store.Articles().SaveSelected(ctx, day.AddDate(0, 0, 1), []core.ScoredArticle{scored("https://a", 90, core.CategoryPolitics)})
	if again[0].ID != refs[0].ID || !again[0].QuizDate.Equal(day) {
		t.Errorf("Expected original article and date, got %+v", again[0])
	}

	if _, err := store.DailyQuizzes().Get(ctx, day); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Expected no daily set yet, got %v", err)
	}
	set := &core.DailyQuizSet{Date: day, QuizIDs: []string{"x", "y"}}
	if err := store.DailyQuizzes().Save(ctx, set); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := store.DailyQuizzes().Get(ctx, day)
	if err != nil || len(got.QuizIDs) != 2 || !got.Date.Equal(core.DateOnly(day)) {
		t.Errorf("Unexpected daily set %+v (%v)", got, err)
	}
}
