package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"newsquiz/internal/config"
	"newsquiz/internal/core"
	"newsquiz/internal/persistence"
	"newsquiz/internal/pipeline"
)

const adminKey = "secret"

type fakePipeline struct {
	dates    []time.Time
	runErr   error
	backfill core.StageStats
}

func (f *fakePipeline) Run(ctx context.Context, date time.Time) (*core.RunReport, error) {
	f.dates = append(f.dates, date)
	if f.runErr == pipeline.ErrRunInProgress {
		return nil, f.runErr
	}
	return &core.RunReport{RunID: "run-1", Date: date, States: []core.RunState{core.StateIdle}}, f.runErr
}

func (f *fakePipeline) Backfill(ctx context.Context) (core.StageStats, error) {
	return f.backfill, nil
}

// storeQuizzes writes a fixed quiz set for articles that exist.
type storeQuizzes struct {
	store *persistence.MemoryStore
}

func (g storeQuizzes) GenerateWithRetry(ctx context.Context, articleID string) error {
	if _, err := g.store.Articles().Get(ctx, articleID); err != nil {
		return err
	}
	_, err := g.store.Quizzes().ReplaceSet(ctx, articleID, []core.QuizItem{
		{Question: "Q?", Options: []string{"a", "b"}, CorrectOptionIndex: 1},
	})
	return err
}

func newTestServer(t *testing.T) (*Server, *fakePipeline, *persistence.MemoryStore) {
	t.Helper()
	store := persistence.NewMemoryStore()
	store.SetClock(func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) })
	fp := &fakePipeline{}
	cfg := config.Server{Host: "127.0.0.1", Port: 0, AdminAPIKey: adminKey}
	return New(store, fp, storeQuizzes{store: store}, cfg, time.UTC), fp, store
}

func do(s *Server, method, path, body string, auth bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if auth {
		req.Header.Set("Authorization", "Bearer "+adminKey)
	}
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	return rr
}

func saveArticle(t *testing.T, store *persistence.MemoryStore) string {
	t.Helper()
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	refs, err := store.Articles().SaveSelected(context.Background(), day, []core.ScoredArticle{{
		CandidateArticle: core.CandidateArticle{Title: "t", Body: "b", Link: "https://x/1"},
		QualityScore:     90,
		Category:         core.CategoryEconomy,
	}})
	if err != nil {
		t.Fatalf("SaveSelected failed: %v", err)
	}
	return refs[0].ID
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t)

	rr := do(s, http.MethodGet, "/health", "", false)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Checks["database"] != "ok" {
		t.Errorf("Unexpected health response: %+v", resp)
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("Expected security headers")
	}
}

func TestAdminAuth(t *testing.T) {
	s, fp, _ := newTestServer(t)

	if rr := do(s, http.MethodPost, "/api/pipeline/runs", "", false); rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without key, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/quizzes/backfill", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with wrong key, got %d", rr.Code)
	}

	s.config.AdminAPIKey = ""
	if rr := do(s, http.MethodPost, "/api/pipeline/runs", "", true); rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 when admin key unset, got %d", rr.Code)
	}
	if len(fp.dates) != 0 {
		t.Errorf("Pipeline must not run without auth, ran %d times", len(fp.dates))
	}
}

func TestRunPipeline(t *testing.T) {
	s, fp, _ := newTestServer(t)

	rr := do(s, http.MethodPost, "/api/pipeline/runs", `{"date": "2026-03-14"}`, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp RunResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Report == nil || resp.Report.RunID != "run-1" {
		t.Errorf("Unexpected report: %+v", resp.Report)
	}
	if want := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC); !fp.dates[0].Equal(want) {
		t.Errorf("Expected run for %v, got %v", want, fp.dates[0])
	}

	if rr := do(s, http.MethodPost, "/api/pipeline/runs", "", true); rr.Code != http.StatusOK {
		t.Errorf("Expected empty body to run today, got %d", rr.Code)
	}
	if rr := do(s, http.MethodPost, "/api/pipeline/runs", `{"date": "14/03/2026"}`, true); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad date, got %d", rr.Code)
	}

	fp.runErr = pipeline.ErrRunInProgress
	if rr := do(s, http.MethodPost, "/api/pipeline/runs", "", true); rr.Code != http.StatusConflict {
		t.Errorf("Expected 409 while running, got %d", rr.Code)
	}
}

func TestGenerateQuizzes(t *testing.T) {
	s, _, store := newTestServer(t)

	if rr := do(s, http.MethodPost, "/api/articles/missing/quizzes", "", true); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown article, got %d", rr.Code)
	}

	id := saveArticle(t, store)
	rr := do(s, http.MethodPost, "/api/articles/"+id+"/quizzes", "", true)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var items []core.QuizItem
	if err := json.NewDecoder(rr.Body).Decode(&items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 || items[0].SourceArticleID != id {
		t.Errorf("Unexpected quizzes: %+v", items)
	}

	rr = do(s, http.MethodGet, "/api/articles/"+id+"/quizzes", "", false)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected public listing, got %d", rr.Code)
	}
}

func TestDailySet(t *testing.T) {
	s, _, store := newTestServer(t)
	ctx := context.Background()

	if rr := do(s, http.MethodGet, "/api/quizzes/daily/2026-03-14", "", false); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 before aggregation, got %d", rr.Code)
	}
	if rr := do(s, http.MethodGet, "/api/quizzes/daily/yesterday", "", false); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad date, got %d", rr.Code)
	}

	id := saveArticle(t, store)
	stored, err := store.Quizzes().ReplaceSet(ctx, id, []core.QuizItem{
		{Question: "first", Options: []string{"a", "b"}},
		{Question: "second", Options: []string{"a", "b"}},
	})
	if err != nil {
		t.Fatalf("ReplaceSet failed: %v", err)
	}
	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	set := &core.DailyQuizSet{Date: date, QuizIDs: []string{stored[1].ID, stored[0].ID}}
	if err := store.DailyQuizzes().Save(ctx, set); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	rr := do(s, http.MethodGet, "/api/quizzes/daily/2026-03-14", "", false)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	var resp DailySetResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Date != "2026-03-14" || len(resp.Quizzes) != 2 || resp.Quizzes[0].Question != "second" {
		t.Errorf("Expected quizzes in set order, got %+v", resp)
	}
}

func TestBackfill(t *testing.T) {
	s, fp, _ := newTestServer(t)
	fp.backfill = core.StageStats{Attempted: 4, Succeeded: 3, Failed: 1}

	rr := do(s, http.MethodPost, "/api/quizzes/backfill", "", true)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	var stats core.StageStats
	if err := json.NewDecoder(rr.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats != fp.backfill {
		t.Errorf("Expected %+v, got %+v", fp.backfill, stats)
	}
}
