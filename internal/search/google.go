package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"newsquiz/internal/core"
	"newsquiz/internal/fetch"
	"newsquiz/internal/logger"
)

const defaultGoogleBaseURL = "https://www.googleapis.com/customsearch/v1"

// GoogleProvider implements Provider using Google Custom Search API
type GoogleProvider struct {
	apiKey    string
	searchID  string
	baseURL   string
	client    *http.Client
	rateLimit time.Duration

	mu       sync.Mutex
	lastCall time.Time
}

// NewGoogleProvider creates a new Google Custom Search provider
func NewGoogleProvider(apiKey, searchID string) *GoogleProvider {
	return &GoogleProvider{
		apiKey:    apiKey,
		searchID:  searchID,
		baseURL:   defaultGoogleBaseURL,
		client:    &http.Client{Timeout: 30 * time.Second},
		rateLimit: 100 * time.Millisecond, // Google CSE has generous rate limits
	}
}

// GetName returns the name of this provider
func (g *GoogleProvider) GetName() string {
	return "Google Custom Search"
}

type googleResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
		Pagemap struct {
			Metatags []map[string]string `json:"metatags"`
		} `json:"pagemap"`
	} `json:"items"`
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Search performs a search using Google Custom Search API
func (g *GoogleProvider) Search(ctx context.Context, query string, config Config) ([]core.CandidateArticle, error) {
	if err := g.throttle(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("key", g.apiKey)
	params.Set("cx", g.searchID)
	params.Set("q", query)
	maxResults := config.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}
	params.Set("num", strconv.Itoa(min(maxResults, 10))) // Google CSE allows max 10 results per request
	if config.Language != "" {
		params.Set("lr", "lang_"+config.Language)
	}
	if config.SinceTime > 0 {
		days := int(config.SinceTime.Hours()/24) + 1
		params.Set("dateRestrict", "d"+strconv.Itoa(days))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google CSE request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &core.TransportError{Op: "google search", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &core.TransportError{Op: "google search", Err: statusError("google CSE", resp)}
	}

	var apiResponse googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, &core.TransportError{Op: "google search", Err: fmt.Errorf("failed to parse Google CSE response: %w", err)}
	}
	if apiResponse.Error.Code != 0 {
		return nil, &core.TransportError{Op: "google search", Err: fmt.Errorf("google CSE API error (%d): %s", apiResponse.Error.Code, apiResponse.Error.Message)}
	}

	var results []core.CandidateArticle
	for _, item := range apiResponse.Items {
		candidate := core.CandidateArticle{
			Title:       fetch.CleanSnippet(item.Title),
			Description: fetch.CleanSnippet(item.Snippet),
			Link:        item.Link,
			Source:      extractDomain(item.Link),
			Keyword:     query,
		}
		for _, tags := range item.Pagemap.Metatags {
			if d := tags["og:description"]; d != "" && len(d) > len(candidate.Description) {
				candidate.Description = fetch.CleanSnippet(d)
			}
			if p := tags["article:published_time"]; p != "" && candidate.PublishedAt.IsZero() {
				candidate.PublishedAt, _ = time.Parse(time.RFC3339, p)
			}
			if a := tags["author"]; a != "" && candidate.Author == "" {
				candidate.Author = a
			}
		}
		results = append(results, candidate)
	}

	logger.Info("Google Custom Search completed", "query", query, "results_found", len(results))
	return results, nil
}

// throttle spaces consecutive calls by rateLimit
func (g *GoogleProvider) throttle(ctx context.Context) error {
	g.mu.Lock()
	wait := g.rateLimit - time.Since(g.lastCall)
	g.lastCall = time.Now().Add(max(wait, 0))
	g.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}
