package processor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"newsquiz/internal/core"
	"newsquiz/internal/llm"
)

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"plain fence", "```\n[1,2]\n```", `[1,2]`},
		{"surrounding space", "  \n```json\n{}\n```  \n", `{}`},
		{"single line fence", "```json{\"a\":1}```", `{"a":1}`},
		{"prose before fence", "Here is the JSON:\n```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around fence", "Sure! ```json {\"a\":1}``` Let me know.", `{"a":1}`},
		{"multi-line object without info string", "```{\n\"a\":1\n}```", "{\n\"a\":1\n}"},
		{"unterminated fence", "Result:\n```json\n[1]", `[1]`},
		{"no fence", "  plain text  ", `plain text`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripCodeFence(tt.in); got != tt.want {
				t.Errorf("StripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

type countingLimiter struct {
	calls int
	err   error
}

func (l *countingLimiter) Acquire(ctx context.Context) error {
	l.calls++
	return l.err
}

func TestExecuteAcquiresBeforeInvoking(t *testing.T) {
	transport := llm.NewMockTransport("```json\n{\"title\":\"T\",\"content\":\"C\"}\n```")
	limiter := &countingLimiter{}

	res, err := Execute(context.Background(), limiter, transport, SyntheticNewsProcessor{}, core.ArticleRef{ID: "a1", Title: "Real"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Title != "T" || res.Content != "C" {
		t.Errorf("Unexpected result: %+v", res)
	}
	if limiter.calls != 1 {
		t.Errorf("Expected one token acquired, got %d", limiter.calls)
	}
	if transport.Schemas()[0] == nil {
		t.Error("Expected response schema to be sent to a schema-capable transport")
	}
}

func TestExecuteLimiterFailureSkipsTransport(t *testing.T) {
	transport := llm.NewMockTransport(`{}`)
	limiter := &countingLimiter{err: context.Canceled}

	_, err := Execute(context.Background(), limiter, transport, SyntheticNewsProcessor{}, core.ArticleRef{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected limiter error, got %v", err)
	}
	if transport.Calls() != 0 {
		t.Error("Transport must not be invoked without a token")
	}
}

func TestExecuteWrapsTransportErrors(t *testing.T) {
	transport := llm.NewMockTransport(`{}`)
	transport.FailNext(errors.New("connection refused"))

	_, err := Execute(context.Background(), nil, transport, QuizProcessor{}, core.ArticleRef{ID: "a1"})
	if !errors.Is(err, core.ErrTransport) {
		t.Errorf("Expected transport error, got %v", err)
	}

	transport = llm.NewMockTransport("   ")
	_, err = Execute(context.Background(), nil, transport, QuizProcessor{}, core.ArticleRef{ID: "a1"})
	if !errors.Is(err, core.ErrTransport) {
		t.Errorf("Expected blank reply to be a transport error, got %v", err)
	}
}

func TestDecodeJSONMalformed(t *testing.T) {
	var v map[string]any
	err := decodeJSON("test", "```json\n{not json\n```", &v)
	var pe *core.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected *core.ParseError, got %v", err)
	}
	if pe.Processor != "test" || !strings.Contains(pe.Error(), "malformed JSON") {
		t.Errorf("Expected descriptive parse error, got %v", pe)
	}
}

const validKeywords = `{
  "POLITICS": [{"keyword": "election reform", "type": "ONGOING"}, {"keyword": "cabinet reshuffle", "type": "BREAKING"}],
  "ECONOMY": [{"keyword": "interest rates", "type": "ONGOING"}, {"keyword": "export data", "type": "GENERAL"}],
  "SOCIETY": [{"keyword": "housing costs", "type": "GENERAL"}, {"keyword": "heat wave", "type": "SEASONAL"}],
  "CULTURE": [{"keyword": "film festival", "type": "SEASONAL"}, {"keyword": "museum opening", "type": "GENERAL"}],
  "TECHNOLOGY": [{"keyword": "chip exports", "type": "BREAKING"}, {"keyword": "AI regulation", "type": "ONGOING"}]
}`

func TestKeywordProcessorParse(t *testing.T) {
	date := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	p := KeywordProcessor{}

	got, err := p.ParseResponse(KeywordRequest{Date: date}, "```json\n"+validKeywords+"\n```")
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("Expected 5 categories, got %d", len(got))
	}
	for cat, kws := range got {
		if len(kws) != 2 {
			t.Errorf("Category %s: expected 2 keywords, got %d", cat, len(kws))
		}
		for _, k := range kws {
			if k.Category != cat || !k.UsedDate.Equal(core.DateOnly(date)) {
				t.Errorf("Unexpected keyword %+v", k)
			}
		}
	}
	if got[core.CategorySociety][1].Type != core.KeywordSeasonal {
		t.Errorf("Expected SEASONAL type, got %s", got[core.CategorySociety][1].Type)
	}
}

func TestKeywordProcessorRejectsWrongCounts(t *testing.T) {
	p := KeywordProcessor{}
	oneCulture := strings.Replace(validKeywords, `, {"keyword": "museum opening", "type": "GENERAL"}`, "", 1)
	noTech := `{
  "POLITICS": [{"keyword": "a"}, {"keyword": "b"}],
  "ECONOMY": [{"keyword": "c"}, {"keyword": "d"}],
  "SOCIETY": [{"keyword": "e"}, {"keyword": "f"}],
  "CULTURE": [{"keyword": "g"}, {"keyword": "h"}]
}`
	threePolitics := strings.Replace(validKeywords, `{"keyword": "election reform", "type": "ONGOING"}`, `{"keyword": "x"}, {"keyword": "y"}`, 1)

	for name, raw := range map[string]string{
		"one keyword in a category": oneCulture,
		"missing category":          noTech,
		"three keywords":            threePolitics,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := p.ParseResponse(KeywordRequest{}, raw)
			if !errors.Is(err, core.ErrValidation) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}

	_, err := p.ParseResponse(KeywordRequest{}, `{"SPORTS": []}`)
	if !errors.Is(err, core.ErrValidation) {
		t.Errorf("Expected unknown category to fail validation, got %v", err)
	}
}

func TestKeywordPromptIncludesExclusions(t *testing.T) {
	prompt := KeywordProcessor{}.BuildPrompt(KeywordRequest{
		Date:     time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
		Excluded: []string{"interest rates", "heat wave"},
	})
	for _, want := range []string{"2026-10-19", "interest rates", "heat wave", "POLITICS", "TECHNOLOGY"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Expected prompt to contain %q", want)
		}
	}

	plain := KeywordProcessor{}.BuildPrompt(KeywordRequest{})
	if strings.Contains(plain, "overused") {
		t.Error("Expected no exclusion section without excluded keywords")
	}
}

func candidates(n int) []core.CandidateArticle {
	out := make([]core.CandidateArticle, n)
	for i := range out {
		out[i] = core.CandidateArticle{Title: string(rune('A' + i)), Link: "https://example.com/" + string(rune('a'+i))}
	}
	return out
}

func TestAnalysisProcessorPairsByPosition(t *testing.T) {
	batch := candidates(3)
	raw := `{"articles": [
	  {"quality_score": 90, "category": "POLITICS"},
	  {"quality_score": 40, "category": "ECONOMY"},
	  {"quality_score": 75, "category": "CULTURE"}
	]}`

	scored, err := AnalysisProcessor{}.ParseResponse(batch, raw)
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	wantCats := []core.Category{core.CategoryPolitics, core.CategoryEconomy, core.CategoryCulture}
	wantScores := []int{90, 40, 75}
	for i, s := range scored {
		if s.Title != batch[i].Title {
			t.Errorf("Result %d paired with %q, want %q", i, s.Title, batch[i].Title)
		}
		if s.Category != wantCats[i] || s.QualityScore != wantScores[i] {
			t.Errorf("Result %d: got %s/%d", i, s.Category, s.QualityScore)
		}
	}
}

func TestAnalysisProcessorArityMismatch(t *testing.T) {
	raw := "```json\n[{\"quality_score\": 90, \"category\": \"POLITICS\"}, {\"quality_score\": 80, \"category\": \"SOCIETY\"}]\n```"

	_, err := AnalysisProcessor{}.ParseResponse(candidates(3), raw)
	if !errors.Is(err, core.ErrParse) {
		t.Fatalf("Expected parse error for 2 results on a batch of 3, got %v", err)
	}
	if !strings.Contains(err.Error(), "does not match batch size 3") {
		t.Errorf("Expected arity in message, got %v", err)
	}
}

func TestAnalysisProcessorValidatesItems(t *testing.T) {
	batch := candidates(1)
	for name, raw := range map[string]string{
		"score too high":   `{"articles": [{"quality_score": 101, "category": "POLITICS"}]}`,
		"score zero":       `{"articles": [{"quality_score": 0, "category": "POLITICS"}]}`,
		"unknown category": `{"articles": [{"quality_score": 50, "category": "SPORTS"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := (AnalysisProcessor{}).ParseResponse(batch, raw); !errors.Is(err, core.ErrValidation) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}
}

func TestAnalysisPromptListsEveryArticle(t *testing.T) {
	batch := candidates(3)
	batch[1].Body = strings.Repeat("x", 5000)
	prompt := AnalysisProcessor{MaxBodyChars: 100}.BuildPrompt(batch)
	for i := 1; i <= 3; i++ {
		if !strings.Contains(prompt, "Article "+string(rune('0'+i))) {
			t.Errorf("Expected article %d in prompt", i)
		}
	}
	if strings.Contains(prompt, strings.Repeat("x", 101)) {
		t.Error("Expected body truncated to MaxBodyChars")
	}
	if !strings.Contains(prompt, "exactly 3 entries") {
		t.Error("Expected expected count in prompt")
	}
}

func TestAnalysisPromptTruncatesByCharacter(t *testing.T) {
	batch := candidates(1)
	batch[0].Body = strings.Repeat("경제", 100)
	prompt := AnalysisProcessor{MaxBodyChars: 5}.BuildPrompt(batch)

	if !utf8.ValidString(prompt) {
		t.Fatal("Expected truncation to keep the prompt valid UTF-8")
	}
	if !strings.Contains(prompt, "Content: 경제경제경...\n") {
		t.Errorf("Expected body cut to 5 characters, got %q", prompt)
	}
}

func TestSyntheticProcessorRequiresContent(t *testing.T) {
	_, err := SyntheticNewsProcessor{}.ParseResponse(core.ArticleRef{ID: "a1"}, `{"title": "x", "content": "  "}`)
	if !errors.Is(err, core.ErrValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}

	res, err := SyntheticNewsProcessor{}.ParseResponse(core.ArticleRef{Title: "Original"}, `{"content": "body"}`)
	if err != nil || res.Title != "Original" {
		t.Errorf("Expected title fallback, got %+v (%v)", res, err)
	}
}

const validQuizzes = `{"quizzes": [
  {"question": "Q1?", "options": ["a", "b", "c"], "correct_index": 0, "explanation": "e1"},
  {"question": "Q2?", "options": ["a", "b", "c"], "correct_index": 2, "explanation": "e2"},
  {"question": "Q3?", "options": ["a", "b", "c"], "correct_index": 1, "explanation": "e3"}
]}`

func TestQuizProcessorParse(t *testing.T) {
	items, err := QuizProcessor{}.ParseResponse(core.ArticleRef{ID: "art-7"}, validQuizzes)
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(items))
	}
	for _, it := range items {
		if it.SourceArticleID != "art-7" {
			t.Errorf("Expected source article art-7, got %s", it.SourceArticleID)
		}
	}
	if items[1].CorrectOptionIndex != 2 {
		t.Errorf("Expected correct index 2, got %d", items[1].CorrectOptionIndex)
	}
}

func TestQuizProcessorValidation(t *testing.T) {
	cases := map[string]string{
		"two quizzes":    strings.Replace(validQuizzes, `,
  {"question": "Q3?", "options": ["a", "b", "c"], "correct_index": 1, "explanation": "e3"}`, "", 1),
		"four options":   strings.Replace(validQuizzes, `["a", "b", "c"], "correct_index": 0`, `["a", "b", "c", "d"], "correct_index": 0`, 1),
		"index too high": strings.Replace(validQuizzes, `"correct_index": 2`, `"correct_index": 3`, 1),
		"negative index": strings.Replace(validQuizzes, `"correct_index": 2`, `"correct_index": -1`, 1),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := (QuizProcessor{}).ParseResponse(core.ArticleRef{}, raw); !errors.Is(err, core.ErrValidation) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}

	if _, err := (QuizProcessor{}).ParseResponse(core.ArticleRef{}, "Sorry, I can't help with that."); !errors.Is(err, core.ErrParse) {
		t.Errorf("Expected parse error for prose reply, got %v", err)
	}
}
