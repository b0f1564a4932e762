package search

import (
	"fmt"
	"net/http"
)

// statusError maps a non-200 provider response to an error.
func statusError(provider string, resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", provider, ErrRateLimited)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%s: %w (status %d)", provider, ErrProviderUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("%s request failed with status: %d", provider, resp.StatusCode)
	}
}
