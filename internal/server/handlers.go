package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"newsquiz/internal/core"
	"newsquiz/internal/pipeline"
)

// HealthResponse is the body of /health
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// RunRequest optionally names the day to run
type RunRequest struct {
	Date string `json:"date"`
}

// RunResponse wraps a pipeline report
type RunResponse struct {
	Report *core.RunReport `json:"report"`
	Error  string          `json:"error,omitempty"`
}

// DailySetResponse is a daily set with its quizzes resolved in set order
type DailySetResponse struct {
	Date      string          `json:"date"`
	UpdatedAt time.Time       `json:"updated_at"`
	Quizzes   []core.QuizItem `json:"quizzes"`
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleHealth handles the /health endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	if err := s.db.Ping(r.Context()); err != nil {
		checks["database"] = "error"
		s.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "unhealthy",
			Checks: checks,
		})
		return
	}

	checks["database"] = "ok"
	s.respondJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Checks: checks,
	})
}

// handleRunPipeline handles POST /api/pipeline/runs
func (s *Server) handleRunPipeline(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	date := time.Now().In(s.loc)
	if req.Date != "" {
		parsed, err := time.Parse(time.DateOnly, req.Date)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD")
			return
		}
		date = parsed
	} else {
		date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	}

	report, err := s.pipeline.Run(r.Context(), date)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		s.respondError(w, http.StatusConflict, err.Error())
	case err != nil:
		s.log.Error("Pipeline run failed", "error", err.Error())
		s.respondJSON(w, http.StatusInternalServerError, RunResponse{Report: report, Error: err.Error()})
	default:
		s.respondJSON(w, http.StatusOK, RunResponse{Report: report})
	}
}

// handleGenerateQuizzes handles POST /api/articles/{id}/quizzes
func (s *Server) handleGenerateQuizzes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.quizzes.GenerateWithRetry(r.Context(), id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "Article not found")
			return
		}
		s.log.Error("Quiz generation failed", "article_id", id, "error", err.Error())
		s.respondError(w, http.StatusBadGateway, "Quiz generation failed")
		return
	}

	items, err := s.db.Quizzes().ListByArticle(r.Context(), id)
	if err != nil {
		s.log.Error("Failed to list quizzes", "article_id", id, "error", err.Error())
		s.respondError(w, http.StatusInternalServerError, "Failed to load quizzes")
		return
	}
	s.respondJSON(w, http.StatusCreated, items)
}

// handleListArticleQuizzes handles GET /api/articles/{id}/quizzes
func (s *Server) handleListArticleQuizzes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.db.Articles().Get(r.Context(), id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "Article not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, "Failed to load article")
		return
	}

	items, err := s.db.Quizzes().ListByArticle(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "Failed to load quizzes")
		return
	}
	s.respondJSON(w, http.StatusOK, items)
}

// handleBackfill handles POST /api/quizzes/backfill
func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	stats, err := s.pipeline.Backfill(r.Context())
	if err != nil {
		s.log.Error("Backfill failed", "error", err.Error())
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

// handleGetDailySet handles GET /api/quizzes/daily/{date}
func (s *Server) handleGetDailySet(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse(time.DateOnly, chi.URLParam(r, "date"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD")
		return
	}

	set, err := s.db.DailyQuizzes().Get(r.Context(), date)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "No quiz set for "+date.Format(time.DateOnly))
			return
		}
		s.respondError(w, http.StatusInternalServerError, "Failed to load daily quiz set")
		return
	}

	items, err := s.db.Quizzes().ListByDate(r.Context(), date)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "Failed to load quizzes")
		return
	}
	byID := make(map[string]core.QuizItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	resp := DailySetResponse{
		Date:      set.Date.Format(time.DateOnly),
		UpdatedAt: set.UpdatedAt,
		Quizzes:   make([]core.QuizItem, 0, len(set.QuizIDs)),
	}
	for _, id := range set.QuizIDs {
		// Quizzes replaced since the last aggregation are dropped
		if item, ok := byID[id]; ok {
			resp.Quizzes = append(resp.Quizzes, item)
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("Failed to encode JSON response", "error", err.Error())
	}
}

// respondError writes a JSON error response
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}
