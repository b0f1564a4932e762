package processor

import (
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"newsquiz/internal/core"
)

// KeywordsPerCategory is the exact number of keywords required per category.
const KeywordsPerCategory = 2

// KeywordRequest asks for today's search keywords.
type KeywordRequest struct {
	Date       time.Time
	Categories []core.Category
	Excluded   []string
}

// KeywordProcessor generates two search keywords for every category.
type KeywordProcessor struct{}

type keywordEntry struct {
	Keyword string `json:"keyword"`
	Type    string `json:"type"`
}

func (KeywordProcessor) Name() string { return "keyword" }

func (KeywordProcessor) BuildPrompt(req KeywordRequest) string {
	categories := req.Categories
	if len(categories) == 0 {
		categories = core.Categories()
	}

	var sb strings.Builder
	sb.WriteString("You are a news editor choosing search keywords for today's news quiz.\n")
	fmt.Fprintf(&sb, "Date: %s\n\n", req.Date.Format("2006-01-02"))
	fmt.Fprintf(&sb, "For each category below, propose exactly %d search keywords that are likely to return fresh, substantive news articles today.\n", KeywordsPerCategory)
	sb.WriteString("Categories:\n")
	for _, c := range categories {
		fmt.Fprintf(&sb, "- %s\n", c)
	}

	if len(req.Excluded) > 0 {
		sb.WriteString("\nRecently overused keywords. Avoid these unless a genuinely new development justifies it:\n")
		for _, k := range req.Excluded {
			fmt.Fprintf(&sb, "- %s\n", k)
		}
	}

	sb.WriteString("\nClassify each keyword type as one of BREAKING, ONGOING, GENERAL or SEASONAL.\n")
	sb.WriteString("Respond with a JSON object keyed by category name, for example:\n")
	sb.WriteString(`{"POLITICS": [{"keyword": "...", "type": "BREAKING"}, {"keyword": "...", "type": "ONGOING"}], ...}`)
	sb.WriteString("\nReturn only the JSON object.")
	return sb.String()
}

func (KeywordProcessor) ResponseSchema() *genai.Schema {
	entry := &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"keyword": {Type: genai.TypeString, Description: "Search keyword"},
				"type": {
					Type: genai.TypeString,
					Enum: []string{string(core.KeywordBreaking), string(core.KeywordOngoing), string(core.KeywordGeneral), string(core.KeywordSeasonal)},
				},
			},
			Required: []string{"keyword", "type"},
		},
	}

	props := make(map[string]*genai.Schema)
	var required []string
	for _, c := range core.Categories() {
		props[string(c)] = entry
		required = append(required, string(c))
	}
	return &genai.Schema{Type: genai.TypeObject, Properties: props, Required: required}
}

func (p KeywordProcessor) ParseResponse(req KeywordRequest, raw string) (map[core.Category][]core.Keyword, error) {
	var parsed map[string][]keywordEntry
	if err := decodeJSON(p.Name(), raw, &parsed); err != nil {
		return nil, err
	}

	result := make(map[core.Category][]core.Keyword, len(parsed))
	for name, entries := range parsed {
		cat, err := core.ParseCategory(name)
		if err != nil {
			return nil, &core.ValidationError{Processor: p.Name(), Reason: fmt.Sprintf("unknown category %q", name)}
		}
		for _, e := range entries {
			text := strings.TrimSpace(e.Keyword)
			if text == "" {
				return nil, &core.ValidationError{Processor: p.Name(), Reason: fmt.Sprintf("empty keyword in %s", cat)}
			}
			result[cat] = append(result[cat], core.Keyword{
				Text:     text,
				Category: cat,
				Type:     core.ParseKeywordType(e.Type),
				UsedDate: core.DateOnly(req.Date),
			})
		}
	}

	for _, cat := range core.Categories() {
		if n := len(result[cat]); n != KeywordsPerCategory {
			return nil, &core.ValidationError{
				Processor: p.Name(),
				Reason:    fmt.Sprintf("category %s has %d keywords, want %d", cat, n, KeywordsPerCategory),
			}
		}
	}

	return result, nil
}
