package processor

import (
	"fmt"
	"strings"

	"google.golang.org/genai"

	"newsquiz/internal/core"
)

// SyntheticResult is the model's rewritten, fictional version of an article.
type SyntheticResult struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// SyntheticNewsProcessor writes a plausible but fabricated counterpart of a real article.
type SyntheticNewsProcessor struct{}

func (SyntheticNewsProcessor) Name() string { return "synthetic" }

func (SyntheticNewsProcessor) BuildPrompt(article core.ArticleRef) string {
	var sb strings.Builder
	sb.WriteString("You write training material for a news literacy quiz.\n")
	sb.WriteString("Based on the real article below, write a fabricated news article on the same topic ")
	sb.WriteString("that looks realistic but changes key facts (numbers, actors, outcomes). ")
	sb.WriteString("Keep the tone and length similar to the original.\n\n")
	fmt.Fprintf(&sb, "Category: %s\nTitle: %s\nContent:\n%s\n\n", article.Category, article.Title, article.Text())
	sb.WriteString(`Respond with JSON {"title": "...", "content": "..."} and nothing else.`)
	return sb.String()
}

func (SyntheticNewsProcessor) ResponseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title":   {Type: genai.TypeString},
			"content": {Type: genai.TypeString},
		},
		Required: []string{"title", "content"},
	}
}

func (p SyntheticNewsProcessor) ParseResponse(article core.ArticleRef, raw string) (SyntheticResult, error) {
	var res SyntheticResult
	if err := decodeJSON(p.Name(), raw, &res); err != nil {
		return SyntheticResult{}, err
	}
	res.Title = strings.TrimSpace(res.Title)
	res.Content = strings.TrimSpace(res.Content)
	if res.Content == "" {
		return SyntheticResult{}, &core.ValidationError{Processor: p.Name(), Reason: "empty content for article " + article.ID}
	}
	if res.Title == "" {
		res.Title = article.Title
	}
	return res, nil
}
