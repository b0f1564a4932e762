package core

import "time"

// StageStats counts unit outcomes for one pipeline stage.
type StageStats struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Add merges other into s.
func (s *StageStats) Add(other StageStats) {
	s.Attempted += other.Attempted
	s.Succeeded += other.Succeeded
	s.Failed += other.Failed
	s.Skipped += other.Skipped
}

// RunState names the steps of a daily pipeline run.
type RunState string

const (
	StateIdle               RunState = "Idle"
	StateKeywordsGenerated  RunState = "KeywordsGenerated"
	StateArticlesCollected  RunState = "ArticlesCollected"
	StateArticlesScored     RunState = "ArticlesScored"
	StateArticlesSelected   RunState = "ArticlesSelected"
	StateQuizzesRequested   RunState = "QuizzesRequested"
	StateQuizzesPersisted   RunState = "QuizzesPersisted"
	StateDailyQuizAggregate RunState = "DailyQuizAggregated"
)

// RunReport is the transient outcome of one pipeline run. It is logged and
// returned, never persisted.
type RunReport struct {
	RunID      string     `json:"run_id"`
	Date       time.Time  `json:"date"`
	States     []RunState `json:"states"`
	Keywords   StageStats `json:"keywords"`
	Collection StageStats `json:"collection"`
	Analysis   StageStats `json:"analysis"`
	Selection  StageStats `json:"selection"`
	Synthetic  StageStats `json:"synthetic"`
	Quizzes    StageStats `json:"quizzes"`
	Errors     []string   `json:"errors,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
}

// Enter records a state transition.
func (r *RunReport) Enter(s RunState) {
	r.States = append(r.States, s)
}

// Failed returns the number of failed units across all stages.
func (r *RunReport) Failed() int {
	return r.Keywords.Failed + r.Collection.Failed + r.Analysis.Failed +
		r.Synthetic.Failed + r.Quizzes.Failed
}
