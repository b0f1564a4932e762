package processor

import (
	"fmt"
	"strings"

	"google.golang.org/genai"

	"newsquiz/internal/core"
)

// AnalysisProcessor scores and categorizes a batch of candidate articles.
// Result i always corresponds to input i.
type AnalysisProcessor struct {
	// MaxBodyChars truncates article bodies in the prompt. Zero means 1500.
	MaxBodyChars int
}

type analysisEntry struct {
	QualityScore int    `json:"quality_score"`
	Category     string `json:"category"`
}

type analysisReply struct {
	Articles []analysisEntry `json:"articles"`
}

func (AnalysisProcessor) Name() string { return "analysis" }

func (p AnalysisProcessor) BuildPrompt(batch []core.CandidateArticle) string {
	limit := p.MaxBodyChars
	if limit <= 0 {
		limit = 1500
	}

	var sb strings.Builder
	sb.WriteString("You are a news editor evaluating articles for a daily news quiz.\n")
	sb.WriteString("For each article, rate its quality from 1 to 100 (factual depth, clarity, newsworthiness) ")
	sb.WriteString("and assign exactly one category from: ")
	names := make([]string, 0, 5)
	for _, c := range core.Categories() {
		names = append(names, string(c))
	}
	sb.WriteString(strings.Join(names, ", "))
	sb.WriteString(".\n\n")

	for i, a := range batch {
		text := a.Body
		if strings.TrimSpace(text) == "" {
			text = a.Description
		}
		if runes := []rune(text); len(runes) > limit {
			text = string(runes[:limit]) + "..."
		}
		fmt.Fprintf(&sb, "Article %d\nTitle: %s\nSource: %s\nContent: %s\n\n", i+1, a.Title, a.Source, text)
	}

	fmt.Fprintf(&sb, "Respond with JSON {\"articles\": [...]} containing exactly %d entries, in the same order as the articles above, ", len(batch))
	sb.WriteString(`each shaped like {"quality_score": 85, "category": "ECONOMY"}. Return only the JSON object.`)
	return sb.String()
}

func (AnalysisProcessor) ResponseSchema() *genai.Schema {
	names := make([]string, 0, 5)
	for _, c := range core.Categories() {
		names = append(names, string(c))
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"articles": {
				Type:        genai.TypeArray,
				Description: "One entry per input article, in input order",
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"quality_score": {Type: genai.TypeInteger, Description: "Quality score from 1 to 100"},
						"category":      {Type: genai.TypeString, Enum: names},
					},
					Required: []string{"quality_score", "category"},
				},
			},
		},
		Required: []string{"articles"},
	}
}

func (p AnalysisProcessor) ParseResponse(batch []core.CandidateArticle, raw string) ([]core.ScoredArticle, error) {
	var entries []analysisEntry
	if isJSONArray(raw) {
		if err := decodeJSON(p.Name(), raw, &entries); err != nil {
			return nil, err
		}
	} else {
		var reply analysisReply
		if err := decodeJSON(p.Name(), raw, &reply); err != nil {
			return nil, err
		}
		entries = reply.Articles
	}

	if len(entries) != len(batch) {
		return nil, &core.ParseError{
			Processor: p.Name(),
			Reason:    fmt.Sprintf("result count %d does not match batch size %d", len(entries), len(batch)),
			Raw:       raw,
		}
	}

	scored := make([]core.ScoredArticle, len(batch))
	for i, e := range entries {
		if e.QualityScore < 1 || e.QualityScore > 100 {
			return nil, &core.ValidationError{Processor: p.Name(), Reason: fmt.Sprintf("item %d: quality score %d out of range", i, e.QualityScore)}
		}
		cat, err := core.ParseCategory(e.Category)
		if err != nil {
			return nil, &core.ValidationError{Processor: p.Name(), Reason: fmt.Sprintf("item %d: %v", i, err)}
		}
		scored[i] = core.ScoredArticle{
			CandidateArticle: batch[i],
			QualityScore:     e.QualityScore,
			Category:         cat,
		}
	}
	return scored, nil
}
