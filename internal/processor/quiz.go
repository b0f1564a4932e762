package processor

import (
	"fmt"
	"strings"

	"google.golang.org/genai"

	"newsquiz/internal/core"
)

// QuizProcessor writes a set of multiple-choice questions about one article.
type QuizProcessor struct{}

type quizEntry struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation"`
}

type quizReply struct {
	Quizzes []quizEntry `json:"quizzes"`
}

func (QuizProcessor) Name() string { return "quiz" }

func (QuizProcessor) BuildPrompt(article core.ArticleRef) string {
	var sb strings.Builder
	sb.WriteString("You write reading-comprehension quizzes about news articles.\n")
	fmt.Fprintf(&sb, "Write exactly %d multiple-choice questions about the article below. ", core.QuizSetSize)
	fmt.Fprintf(&sb, "Each question has exactly %d options, one correct answer, and a one-sentence explanation. ", core.QuizOptionCount)
	sb.WriteString("Questions must be answerable from the article alone.\n\n")
	fmt.Fprintf(&sb, "Title: %s\nContent:\n%s\n\n", article.Title, article.Text())
	sb.WriteString(`Respond with JSON {"quizzes": [{"question": "...", "options": ["...", "...", "..."], "correct_index": 0, "explanation": "..."}]}. `)
	sb.WriteString("correct_index is zero-based. Return only the JSON object.")
	return sb.String()
}

func (QuizProcessor) ResponseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"quizzes": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"question":      {Type: genai.TypeString},
						"options":       {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
						"correct_index": {Type: genai.TypeInteger, Description: "Zero-based index of the correct option"},
						"explanation":   {Type: genai.TypeString},
					},
					Required: []string{"question", "options", "correct_index", "explanation"},
				},
			},
		},
		Required: []string{"quizzes"},
	}
}

func (p QuizProcessor) ParseResponse(article core.ArticleRef, raw string) ([]core.QuizItem, error) {
	var reply quizReply
	if err := decodeJSON(p.Name(), raw, &reply); err != nil {
		return nil, err
	}

	if len(reply.Quizzes) != core.QuizSetSize {
		return nil, &core.ValidationError{
			Processor: p.Name(),
			Reason:    fmt.Sprintf("got %d quizzes, want %d", len(reply.Quizzes), core.QuizSetSize),
		}
	}

	items := make([]core.QuizItem, 0, len(reply.Quizzes))
	for i, q := range reply.Quizzes {
		question := strings.TrimSpace(q.Question)
		if question == "" {
			return nil, &core.ValidationError{Processor: p.Name(), Reason: fmt.Sprintf("quiz %d has no question", i)}
		}
		if len(q.Options) != core.QuizOptionCount {
			return nil, &core.ValidationError{Processor: p.Name(), Reason: fmt.Sprintf("quiz %d has %d options, want %d", i, len(q.Options), core.QuizOptionCount)}
		}
		if q.CorrectIndex < 0 || q.CorrectIndex >= core.QuizOptionCount {
			return nil, &core.ValidationError{Processor: p.Name(), Reason: fmt.Sprintf("quiz %d correct index %d out of range", i, q.CorrectIndex)}
		}
		items = append(items, core.QuizItem{
			SourceArticleID:    article.ID,
			Question:           question,
			Options:            q.Options,
			CorrectOptionIndex: q.CorrectIndex,
			Explanation:        strings.TrimSpace(q.Explanation),
		})
	}
	return items, nil
}
