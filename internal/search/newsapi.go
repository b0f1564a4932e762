package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"newsquiz/internal/core"
	"newsquiz/internal/fetch"
	"newsquiz/internal/logger"
)

const defaultNewsAPIBaseURL = "https://newsapi.org/v2"

// NewsAPIProvider implements Provider using the newsapi.org /everything endpoint
type NewsAPIProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewNewsAPIProvider creates a new NewsAPI provider. An empty baseURL uses the public API.
func NewNewsAPIProvider(apiKey, baseURL string) *NewsAPIProvider {
	if baseURL == "" {
		baseURL = defaultNewsAPIBaseURL
	}
	return &NewsAPIProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// GetName returns the name of this provider
func (n *NewsAPIProvider) GetName() string {
	return "NewsAPI"
}

type newsAPIResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Author      string `json:"author"`
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
		Content     string `json:"content"`
	} `json:"articles"`
}

// Search queries /everything sorted by publish date
func (n *NewsAPIProvider) Search(ctx context.Context, query string, config Config) ([]core.CandidateArticle, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("sortBy", "publishedAt")
	if config.MaxResults > 0 {
		params.Set("pageSize", strconv.Itoa(min(config.MaxResults, 100)))
	}
	if config.Language != "" {
		params.Set("language", config.Language)
	}
	if config.SinceTime > 0 {
		params.Set("from", time.Now().UTC().Add(-config.SinceTime).Format(time.RFC3339))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/everything?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create NewsAPI request: %w", err)
	}
	req.Header.Set("X-Api-Key", n.apiKey)

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, &core.TransportError{Op: "newsapi search", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	var apiResponse newsAPIResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&apiResponse)

	if resp.StatusCode != http.StatusOK {
		err := statusError("newsapi", resp)
		if decodeErr == nil && apiResponse.Message != "" {
			err = fmt.Errorf("%w: %s", err, apiResponse.Message)
		}
		return nil, &core.TransportError{Op: "newsapi search", Err: err}
	}
	if decodeErr != nil {
		return nil, &core.TransportError{Op: "newsapi search", Err: fmt.Errorf("failed to parse NewsAPI response: %w", decodeErr)}
	}
	if apiResponse.Status != "ok" {
		return nil, &core.TransportError{Op: "newsapi search", Err: fmt.Errorf("newsapi error (%s): %s", apiResponse.Code, apiResponse.Message)}
	}

	results := make([]core.CandidateArticle, 0, len(apiResponse.Articles))
	for _, a := range apiResponse.Articles {
		if a.URL == "" || a.Title == "[Removed]" {
			continue
		}
		published, _ := time.Parse(time.RFC3339, a.PublishedAt)
		source := a.Source.Name
		if source == "" {
			source = extractDomain(a.URL)
		}
		results = append(results, core.CandidateArticle{
			Title:       fetch.CleanSnippet(a.Title),
			Body:        fetch.CleanSnippet(a.Content),
			Description: fetch.CleanSnippet(a.Description),
			Link:        a.URL,
			PublishedAt: published,
			Source:      source,
			Author:      a.Author,
			Keyword:     query,
		})
	}

	logger.Info("NewsAPI search completed", "query", query, "results_found", len(results))
	return results, nil
}
