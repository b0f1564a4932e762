package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"newsquiz/internal/core"
)

// MockProvider implements Provider for testing and dry runs
type MockProvider struct {
	name string

	mu       sync.Mutex
	results  map[string][]core.CandidateArticle
	failures map[string]error
	queries  []string
}

// NewMockProvider creates a new mock search provider that synthesizes
// three articles for any query without canned results.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		name:     "Mock",
		results:  make(map[string][]core.CandidateArticle),
		failures: make(map[string]error),
	}
}

// GetName returns the name of this provider
func (m *MockProvider) GetName() string {
	return m.name
}

// Search returns canned results, a configured failure, or generated articles
func (m *MockProvider) Search(ctx context.Context, query string, config Config) ([]core.CandidateArticle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.queries = append(m.queries, query)
	err, failing := m.failures[query]
	canned, hasCanned := m.results[query]
	m.mu.Unlock()

	if failing {
		return nil, err
	}

	results := canned
	if !hasCanned {
		results = generated(query)
	}

	maxResults := config.MaxResults
	if maxResults <= 0 || maxResults > len(results) {
		maxResults = len(results)
	}
	out := make([]core.CandidateArticle, maxResults)
	copy(out, results[:maxResults])
	return out, nil
}

func generated(query string) []core.CandidateArticle {
	slug := strings.ReplaceAll(strings.ToLower(query), " ", "-")
	now := time.Now().UTC()
	var out []core.CandidateArticle
	for i := 1; i <= 3; i++ {
		out = append(out, core.CandidateArticle{
			Title:       fmt.Sprintf("%s: development %d", query, i),
			Body:        fmt.Sprintf("Reporting on %s. This is mock article %d with enough text to analyze.", query, i),
			Description: fmt.Sprintf("Mock coverage of %s", query),
			Link:        fmt.Sprintf("https://example.com/%s/%d", slug, i),
			PublishedAt: now.Add(-time.Duration(i) * time.Hour),
			Source:      "example.com",
			Keyword:     query,
		})
	}
	return out
}

// SetResults sets canned results for a query
func (m *MockProvider) SetResults(query string, results []core.CandidateArticle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[query] = results
}

// SetFailure makes searches for query fail with err
func (m *MockProvider) SetFailure(query string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[query] = err
}

// Queries returns every query received so far
func (m *MockProvider) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

// SetName allows customization of provider name for testing
func (m *MockProvider) SetName(name string) {
	m.name = name
}
