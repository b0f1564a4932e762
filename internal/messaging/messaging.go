// Package messaging posts pipeline run summaries to chat webhooks.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"newsquiz/internal/core"
)

// MessagePlatform represents different messaging platforms
type MessagePlatform string

const (
	PlatformSlack   MessagePlatform = "slack"
	PlatformDiscord MessagePlatform = "discord"
)

const (
	colorOK      = 0x10b981
	colorPartial = 0xf59e0b
	colorFailed  = 0xdc2626
)

// SlackMessage represents a Slack message structure
type SlackMessage struct {
	Text        string            `json:"text,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
}

// SlackAttachment represents legacy Slack attachments
type SlackAttachment struct {
	Color  string       `json:"color,omitempty"`
	Title  string       `json:"title,omitempty"`
	Text   string       `json:"text,omitempty"`
	Fields []SlackField `json:"fields,omitempty"`
	Footer string       `json:"footer,omitempty"`
	Ts     int64        `json:"ts,omitempty"`
}

// SlackField represents fields in attachments
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// DiscordMessage represents a Discord message structure
type DiscordMessage struct {
	Content  string         `json:"content,omitempty"`
	Username string         `json:"username,omitempty"`
	Embeds   []DiscordEmbed `json:"embeds,omitempty"`
}

// DiscordEmbed represents a Discord embed
type DiscordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Fields      []DiscordEmbedField `json:"fields,omitempty"`
	Footer      *DiscordEmbedFooter `json:"footer,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
}

// DiscordEmbedField represents fields in Discord embeds
type DiscordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// DiscordEmbedFooter represents footer in Discord embeds
type DiscordEmbedFooter struct {
	Text string `json:"text"`
}

// Client sends run summaries to the configured webhooks
type Client struct {
	SlackWebhookURL   string
	DiscordWebhookURL string
	HTTPClient        *http.Client
}

// NewClient creates a messaging client. Empty URLs disable that platform.
func NewClient(slackURL, discordURL string) (*Client, error) {
	if slackURL != "" {
		if err := ValidateWebhookURL(PlatformSlack, slackURL); err != nil {
			return nil, err
		}
	}
	if discordURL != "" {
		if err := ValidateWebhookURL(PlatformDiscord, discordURL); err != nil {
			return nil, err
		}
	}
	return &Client{
		SlackWebhookURL:   slackURL,
		DiscordWebhookURL: discordURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// IsEnabled reports whether any webhook is configured
func (c *Client) IsEnabled() bool {
	return c != nil && (c.SlackWebhookURL != "" || c.DiscordWebhookURL != "")
}

// NotifyRun posts report to every configured platform
func (c *Client) NotifyRun(ctx context.Context, report *core.RunReport) error {
	var errs []error
	if c.SlackWebhookURL != "" {
		if err := c.post(ctx, PlatformSlack, c.SlackWebhookURL, SlackRunMessage(report)); err != nil {
			errs = append(errs, err)
		}
	}
	if c.DiscordWebhookURL != "" {
		if err := c.post(ctx, PlatformDiscord, c.DiscordWebhookURL, DiscordRunMessage(report)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func title(r *core.RunReport) string {
	return fmt.Sprintf("News quiz run %s", r.Date.Format(time.DateOnly))
}

func color(r *core.RunReport) int {
	switch {
	case len(r.Errors) > 0:
		return colorFailed
	case r.Failed() > 0:
		return colorPartial
	default:
		return colorOK
	}
}

type stageLine struct {
	name  string
	stats core.StageStats
}

func stages(r *core.RunReport) []stageLine {
	return []stageLine{
		{"Keywords", r.Keywords},
		{"Articles", r.Selection},
		{"Synthetic", r.Synthetic},
		{"Quizzes", r.Quizzes},
	}
}

func (l stageLine) value() string {
	v := fmt.Sprintf("%d/%d", l.stats.Succeeded, l.stats.Attempted)
	if l.stats.Failed > 0 {
		v += fmt.Sprintf(" (%d failed)", l.stats.Failed)
	}
	return v
}

func errorText(r *core.RunReport) string {
	if len(r.Errors) == 0 {
		return "No errors"
	}
	text := strings.Join(r.Errors, "\n")
	if len(text) > 500 {
		text = text[:497] + "..."
	}
	return text
}

// SlackRunMessage renders report as a Slack attachment
func SlackRunMessage(r *core.RunReport) *SlackMessage {
	var fields []SlackField
	for _, l := range stages(r) {
		fields = append(fields, SlackField{Title: l.name, Value: l.value(), Short: true})
	}

	return &SlackMessage{
		Text:      fmt.Sprintf("📰 %s", title(r)),
		Username:  "newsquiz",
		IconEmoji: ":newspaper:",
		Attachments: []SlackAttachment{
			{
				Color:  fmt.Sprintf("#%06x", color(r)),
				Title:  title(r),
				Text:   errorText(r),
				Fields: fields,
				Footer: "run " + r.RunID,
				Ts:     r.FinishedAt.Unix(),
			},
		},
	}
}

// DiscordRunMessage renders report as a Discord embed
func DiscordRunMessage(r *core.RunReport) *DiscordMessage {
	var fields []DiscordEmbedField
	for _, l := range stages(r) {
		fields = append(fields, DiscordEmbedField{Name: l.name, Value: l.value(), Inline: true})
	}

	return &DiscordMessage{
		Username: "newsquiz",
		Embeds: []DiscordEmbed{{
			Title:       title(r),
			Description: errorText(r),
			Color:       color(r),
			Fields:      fields,
			Footer:      &DiscordEmbedFooter{Text: "run " + r.RunID},
			Timestamp:   r.FinishedAt.Format(time.RFC3339),
		}},
	}
}

func (c *Client) post(ctx context.Context, platform MessagePlatform, url string, message any) error {
	jsonData, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", platform, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", platform, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s message: %w", platform, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Slack answers 200, Discord 204
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s webhook returned status %d: %s", platform, resp.StatusCode, string(body))
	}

	return nil
}

// ValidateWebhookURL validates if a webhook URL is properly formatted
func ValidateWebhookURL(platform MessagePlatform, url string) error {
	if url == "" {
		return fmt.Errorf("%s webhook URL cannot be empty", platform)
	}
	if !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://") {
		return fmt.Errorf("invalid %s webhook URL: %s", platform, url)
	}

	switch platform {
	case PlatformSlack:
		if !strings.Contains(url, "hooks.slack.com") {
			return fmt.Errorf("invalid Slack webhook URL format")
		}
	case PlatformDiscord:
		if !strings.Contains(url, "discord.com/api/webhooks") {
			return fmt.Errorf("invalid Discord webhook URL format")
		}
	default:
		return fmt.Errorf("unknown platform: %s", platform)
	}

	return nil
}
