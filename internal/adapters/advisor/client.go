// Package advisor is the REST client for the optional hold/close advisory
// service. The exit engine treats any failure here as "no decision" and falls
// back to deterministic rules.
package advisor

import (
	"context"
	"fmt"
	"time"

	"gammaTradeBot/internal/ports"

	"github.com/go-resty/resty/v2"
)

// Client implements ports.Advisor against an HTTP advisory endpoint.
type Client struct {
	http   *resty.Client
	logger ports.Logger
}

// Config holds configuration for the advisory client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  ports.Logger
}

// NewClient creates a new advisory client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: advisor URL is required", ports.ErrConfiguration)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for advisory client", ports.ErrConfiguration)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{http: rc, logger: cfg.Logger}, nil
}

type adviseRequest struct {
	Symbol           string  `json:"symbol"`
	Strategy         string  `json:"strategy"`
	Thesis           string  `json:"thesis"`
	EntryPrice       float64 `json:"entry_price"`
	CurrentPrice     float64 `json:"current_price"`
	EntrySpot        float64 `json:"entry_spot"`
	CurrentSpot      float64 `json:"current_spot"`
	EntryNetGEX      float64 `json:"entry_net_gex"`
	CurrentNetGEX    float64 `json:"current_net_gex"`
	EntryFlipPoint   float64 `json:"entry_flip_point"`
	CurrentFlipPoint float64 `json:"current_flip_point"`
	UnrealizedPnLPct float64 `json:"unrealized_pnl_pct"`
	DaysToExpiration int     `json:"days_to_expiration"`
}

type adviseResponse struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

// Decide asks the advisory service whether to hold or close a position.
func (c *Client) Decide(ctx context.Context, actx ports.AdvisoryContext) (*ports.AdvisoryDecision, error) {
	req := adviseRequest{
		Symbol:           actx.Symbol,
		Strategy:         actx.Strategy,
		Thesis:           actx.Thesis,
		EntryPrice:       actx.EntryPrice,
		CurrentPrice:     actx.CurrentPrice,
		EntrySpot:        actx.EntrySpot,
		CurrentSpot:      actx.CurrentSpot,
		EntryNetGEX:      actx.EntryNetGEX,
		CurrentNetGEX:    actx.CurrentNetGEX,
		EntryFlipPoint:   actx.EntryFlipPoint,
		CurrentFlipPoint: actx.CurrentFlipPoint,
		UnrealizedPnLPct: actx.UnrealizedPnLPct,
		DaysToExpiration: actx.DaysToExpiration,
	}

	var out adviseResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/v1/advise")
	if err != nil {
		return nil, fmt.Errorf("%w: advise request for %s: %v", ports.ErrAdvisoryUnavailable, actx.Symbol, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: advise for %s returned %s", ports.ErrAdvisoryUnavailable, actx.Symbol, resp.Status())
	}

	verdict := ports.AdvisoryVerdict(out.Decision)
	if verdict != ports.AdvisoryHold && verdict != ports.AdvisoryClose {
		return nil, fmt.Errorf("%w: advise for %s returned unknown verdict %q", ports.ErrAdvisoryUnavailable, actx.Symbol, out.Decision)
	}
	return &ports.AdvisoryDecision{Verdict: verdict, Reason: out.Reason}, nil
}
