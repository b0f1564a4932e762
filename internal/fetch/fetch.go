// Package fetch downloads news pages and extracts their readable text.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"newsquiz/internal/core"
)

const (
	defaultTimeout  = 20 * time.Second
	maxPageBytes    = 4 << 20
	defaultUA       = "newsquiz/1.0 (+https://github.com/newsquiz)"
	minUsefulLength = 200
)

var (
	// truncationMarker matches the "[+1234 chars]" suffix news APIs append to content previews.
	truncationMarker = regexp.MustCompile(`\s*\[\+\d+ chars\]\s*$`)
	blankLines       = regexp.MustCompile(`\n\s*\n+`)
	spaces           = regexp.MustCompile(`[ \t\r\f\v]+`)
)

// noise lists elements that never hold article text.
const noise = "script, style, nav, footer, header, aside, form, iframe, noscript, figure, .sidebar, #sidebar, .ad, .advertisement, .popup, .modal, .cookie-banner, .related, .share"

// mainSelectors are tried in order to locate the article body.
var mainSelectors = []string{"article", "main", "[role='main']", ".article-body", ".story-body", ".post-content", "#content", ".content"}

// Client fetches article pages.
type Client struct {
	http      *http.Client
	userAgent string
}

// NewClient creates a fetch client. A zero timeout uses the default.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		userAgent: defaultUA,
	}
}

// FetchText downloads url and returns its main readable text.
func (c *Client) FetchText(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &core.TransportError{Op: "fetch " + url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", &core.TransportError{Op: "fetch " + url, Err: fmt.Errorf("status code %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", &core.TransportError{Op: "fetch " + url, Err: err}
	}

	return ExtractText(string(body))
}

// ExtractText returns the article text of an HTML page, preferring common
// main-content containers and falling back to the whole body.
func ExtractText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc.Find(noise).Remove()

	var sb strings.Builder
	collect := func(sel *goquery.Selection) {
		sel.Find("p, h1, h2, h3, li, blockquote").Each(func(_ int, item *goquery.Selection) {
			if text := strings.TrimSpace(item.Text()); text != "" {
				sb.WriteString(text)
				sb.WriteString("\n\n")
			}
		})
	}

	for _, selector := range mainSelectors {
		collect(doc.Find(selector).First())
		if sb.Len() >= minUsefulLength {
			break
		}
		sb.Reset()
	}
	if sb.Len() == 0 {
		collect(doc.Find("body"))
	}

	return normalize(sb.String()), nil
}

// CleanSnippet strips markup from a short HTML fragment such as a search
// snippet or API content preview.
func CleanSnippet(s string) string {
	if s == "" {
		return ""
	}
	text := s
	if strings.ContainsAny(s, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			text = doc.Text()
		}
	}
	text = truncationMarker.ReplaceAllString(text, "")
	return normalize(text)
}

func normalize(s string) string {
	s = spaces.ReplaceAllString(s, " ")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
