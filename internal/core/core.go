package core

import (
	"fmt"
	"strings"
	"time"
)

// Category is one of the fixed news sections keywords and articles are filed under.
type Category string

const (
	CategoryPolitics   Category = "POLITICS"
	CategoryEconomy    Category = "ECONOMY"
	CategorySociety    Category = "SOCIETY"
	CategoryCulture    Category = "CULTURE"
	CategoryTechnology Category = "TECHNOLOGY"
)

// Categories returns the five categories in display order.
func Categories() []Category {
	return []Category{
		CategoryPolitics,
		CategoryEconomy,
		CategorySociety,
		CategoryCulture,
		CategoryTechnology,
	}
}

// ParseCategory normalizes a category name emitted by the model.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Categories() {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// KeywordType classifies why a keyword is newsworthy today.
type KeywordType string

const (
	KeywordBreaking KeywordType = "BREAKING"
	KeywordOngoing  KeywordType = "ONGOING"
	KeywordGeneral  KeywordType = "GENERAL"
	KeywordSeasonal KeywordType = "SEASONAL"
)

// ParseKeywordType falls back to GENERAL for anything unrecognized.
func ParseKeywordType(s string) KeywordType {
	switch t := KeywordType(strings.ToUpper(strings.TrimSpace(s))); t {
	case KeywordBreaking, KeywordOngoing, KeywordGeneral, KeywordSeasonal:
		return t
	default:
		return KeywordGeneral
	}
}

// Keyword is a search term generated for a category on a given day.
// Usage history is append-only: a keyword row is never updated in place.
type Keyword struct {
	Text     string      `json:"text"`
	Category Category    `json:"category"`
	Type     KeywordType `json:"type"`
	UsedDate time.Time   `json:"used_date"`
}

// CandidateArticle is a raw search hit. It lives only in memory for the
// duration of a pipeline run.
type CandidateArticle struct {
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Description string    `json:"description"`
	Link        string    `json:"link"`
	PublishedAt time.Time `json:"published_at"`
	Source      string    `json:"source"`
	Author      string    `json:"author"`
	Keyword     string    `json:"keyword"` // Search term that surfaced this article
}

// ScoredArticle is a candidate after AI quality analysis.
type ScoredArticle struct {
	CandidateArticle
	QualityScore int      `json:"quality_score"` // 1..100
	Category     Category `json:"category"`
}

// ArticleRef is a durable "real news" record as returned by persistence.
type ArticleRef struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	Description  string    `json:"description"`
	Link         string    `json:"link"`
	Source       string    `json:"source"`
	Category     Category  `json:"category"`
	QualityScore int       `json:"quality_score"`
	PublishedAt  time.Time `json:"published_at"`
	QuizDate     time.Time `json:"quiz_date"` // Day whose quiz set the article feeds
	CreatedAt    time.Time `json:"created_at"`
}

// Text returns the best available body for prompting.
func (a ArticleRef) Text() string {
	if strings.TrimSpace(a.Body) != "" {
		return a.Body
	}
	return a.Description
}

// SyntheticArticle is the fabricated counterpart of a real article.
type SyntheticArticle struct {
	ID              string    `json:"id"`
	SourceArticleID string    `json:"source_article_id"`
	Title           string    `json:"title"`
	Content         string    `json:"content"`
	CreatedAt       time.Time `json:"created_at"`
}

// QuizOptionCount is the number of options every quiz item carries.
const QuizOptionCount = 3

// QuizSetSize is the number of quiz items generated per article.
const QuizSetSize = 3

// QuizItem is one multiple-choice question about an article.
type QuizItem struct {
	ID                 string    `json:"id"`
	SourceArticleID    string    `json:"source_article_id"`
	Question           string    `json:"question"`
	Options            []string  `json:"options"`
	CorrectOptionIndex int       `json:"correct_option_index"`
	Explanation        string    `json:"explanation"`
	CreatedAt          time.Time `json:"created_at"`
}

// DailyQuizSet is the curated set of quizzes published for one day.
type DailyQuizSet struct {
	Date      time.Time `json:"date"`
	QuizIDs   []string  `json:"quiz_ids"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DateOnly truncates t to midnight UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
