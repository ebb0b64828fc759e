// Package notify delivers trade lifecycle notifications to a Discord-style
// webhook. Delivery is best effort; callers swallow failures.
package notify

import (
	"context"
	"fmt"
	"time"

	"gammaTradeBot/internal/domain"
	"gammaTradeBot/internal/ports"

	"github.com/go-resty/resty/v2"
)

// Embed colors per urgency level.
const (
	colorInfo     = 0x2ecc71 // green
	colorWarning  = 0xf1c40f // yellow
	colorCritical = 0xe74c3c // red
)

// Webhook posts notifications to a Discord-compatible webhook URL.
type Webhook struct {
	http   *resty.Client
	url    string
	logger ports.Logger
}

// Config holds configuration for the webhook sink.
type Config struct {
	URL     string
	Timeout time.Duration
	Logger  ports.Logger
}

// NewWebhook creates a new webhook notification sink.
func NewWebhook(cfg Config) (*Webhook, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: webhook URL is required", ports.ErrConfiguration)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for webhook sink", ports.ErrConfiguration)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	rc := resty.New().
		SetTimeout(timeout).
		SetRetryCount(1).
		SetRetryWaitTime(500 * time.Millisecond)

	return &Webhook{http: rc, url: cfg.URL, logger: cfg.Logger}, nil
}

type embed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
}

type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

// Send posts a single embed to the webhook.
func (w *Webhook) Send(ctx context.Context, title, body string, urgency domain.Urgency) error {
	payload := webhookPayload{
		Embeds: []embed{{
			Title:       title,
			Description: body,
			Color:       colorFor(urgency),
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		}},
	}

	resp, err := w.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("%w: webhook post: %v", ports.ErrServiceUnavailable, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: webhook returned %s", ports.ErrServiceUnavailable, resp.Status())
	}
	return nil
}

func colorFor(urgency domain.Urgency) int {
	switch urgency {
	case domain.UrgencyCritical:
		return colorCritical
	case domain.UrgencyWarning:
		return colorWarning
	default:
		return colorInfo
	}
}

// NoopSink is used when no webhook URL is configured.
type NoopSink struct{}

// Send discards the notification.
func (NoopSink) Send(context.Context, string, string, domain.Urgency) error { return nil }
