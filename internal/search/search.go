package search

import (
	"context"
	"net/url"
	"strings"
	"time"

	"newsquiz/internal/core"
)

// Provider defines the unified interface for news search providers
type Provider interface {
	// Search returns candidate articles for a query
	Search(ctx context.Context, query string, config Config) ([]core.CandidateArticle, error)

	// GetName returns the name of the search provider
	GetName() string
}

// Config holds configuration for search requests
type Config struct {
	MaxResults int           // Maximum number of results to return
	SinceTime  time.Duration // Only return results newer than this duration
	Language   string        // Language preference (e.g., "en", "ko")
}

// ProviderType represents the type of search provider
type ProviderType string

const (
	ProviderTypeNewsAPI ProviderType = "newsapi"
	ProviderTypeGoogle  ProviderType = "google"
	ProviderTypeMock    ProviderType = "mock"
)

// ProviderFactory creates search providers based on type and configuration
type ProviderFactory struct{}

// NewProviderFactory creates a new provider factory
func NewProviderFactory() *ProviderFactory {
	return &ProviderFactory{}
}

// CreateProvider creates a search provider of the specified type
func (f *ProviderFactory) CreateProvider(providerType ProviderType, config map[string]string) (Provider, error) {
	switch providerType {
	case ProviderTypeNewsAPI:
		apiKey := config["api_key"]
		if apiKey == "" {
			return nil, ErrMissingAPIKey
		}
		return NewNewsAPIProvider(apiKey, config["base_url"]), nil
	case ProviderTypeGoogle:
		apiKey := config["api_key"]
		if apiKey == "" {
			return nil, ErrMissingAPIKey
		}
		searchID := config["search_id"]
		if searchID == "" {
			return nil, ErrMissingSearchID
		}
		return NewGoogleProvider(apiKey, searchID), nil
	case ProviderTypeMock:
		return NewMockProvider(), nil
	default:
		return nil, ErrUnsupportedProvider
	}
}

// GetAvailableProviders returns a list of available provider types
func (f *ProviderFactory) GetAvailableProviders() []ProviderType {
	return []ProviderType{
		ProviderTypeNewsAPI,
		ProviderTypeGoogle,
		ProviderTypeMock,
	}
}

// extractDomain extracts the host name from a URL without a www. prefix
func extractDomain(urlStr string) string {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(parsed.Hostname(), "www.")
}
