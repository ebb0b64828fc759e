// Package gexfeed is the REST client for the upstream dealer-positioning
// service: GEX snapshots, regime signals, and option quotes.
package gexfeed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"gammaTradeBot/internal/domain"
	"gammaTradeBot/internal/ports"

	"github.com/go-resty/resty/v2"
)

// Client implements ports.MarketDataProvider and ports.OptionPricingProvider
// against the GEX feed's HTTP API.
type Client struct {
	http   *resty.Client
	logger ports.Logger
}

// Config holds configuration for the GEX feed client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Logger  ports.Logger
}

// NewClient creates a new GEX feed client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: market data URL is required", ports.ErrConfiguration)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for GEX feed client", ports.ErrConfiguration)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(250*time.Millisecond).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		rc.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}

	return &Client{http: rc, logger: cfg.Logger}, nil
}

type snapshotResponse struct {
	Symbol    string  `json:"symbol"`
	SpotPrice float64 `json:"spot_price"`
	NetGEX    float64 `json:"net_gex"`
	FlipPoint float64 `json:"flip_point"`
	CallWall  float64 `json:"call_wall"`
	PutWall   float64 `json:"put_wall"`
	Timestamp int64   `json:"timestamp"` // unix seconds
}

type signalResponse struct {
	Active     bool    `json:"active"`
	Symbol     string  `json:"symbol"`
	Strategy   string  `json:"strategy"`
	Regime     string  `json:"regime"`
	Action     string  `json:"action"`
	Strike     float64 `json:"strike"`
	OptionType string  `json:"option_type"`
	Expiration string  `json:"expiration"` // YYYY-MM-DD
	Confidence float64 `json:"confidence"`
	Volatility string  `json:"volatility"`
	Thesis     string  `json:"thesis"`

	Snapshot snapshotResponse `json:"snapshot"`
}

type quoteResponse struct {
	Symbol     string  `json:"symbol"`
	ContractID string  `json:"contract_id"`
	Strike     float64 `json:"strike"`
	OptionType string  `json:"option_type"`
	Expiration string  `json:"expiration"`
	Bid        float64 `json:"bid"`
	Ask        float64 `json:"ask"`
	Last       float64 `json:"last"`
	ImpliedVol float64 `json:"implied_vol"`
	Delta      float64 `json:"delta"`
	Gamma      float64 `json:"gamma"`
	Theta      float64 `json:"theta"`
	Vega       float64 `json:"vega"`
	Timestamp  int64   `json:"timestamp"`
}

// GetSnapshot retrieves the current GEX picture for a symbol.
func (c *Client) GetSnapshot(ctx context.Context, symbol string) (*domain.MarketSnapshot, error) {
	var out snapshotResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&out).
		Get("/v1/gex/snapshot")
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot request for %s: %v", ports.ErrServiceUnavailable, symbol, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: snapshot for %s returned %s", ports.ErrServiceUnavailable, symbol, resp.Status())
	}
	return snapshotFromResponse(&out), nil
}

// GetSignal retrieves the active regime signal for a symbol, if any.
// Returns nil, nil when the classifier has no actionable signal.
func (c *Client) GetSignal(ctx context.Context, symbol string) (*domain.RegimeSignal, error) {
	var out signalResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&out).
		Get("/v1/gex/signal")
	if err != nil {
		return nil, fmt.Errorf("%w: signal request for %s: %v", ports.ErrServiceUnavailable, symbol, err)
	}
	if resp.StatusCode() == http.StatusNoContent || resp.StatusCode() == http.StatusNotFound {
		return nil, nil // no actionable signal right now
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: signal for %s returned %s", ports.ErrServiceUnavailable, symbol, resp.Status())
	}
	if !out.Active {
		return nil, nil
	}

	expiration, err := time.ParseInLocation(domain.EntryDateLayout, out.Expiration, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: signal for %s has invalid expiration %q", ports.ErrServiceUnavailable, symbol, out.Expiration)
	}

	sig := &domain.RegimeSignal{
		Symbol:     out.Symbol,
		Strategy:   out.Strategy,
		Regime:     domain.RegimeKind(out.Regime),
		Action:     domain.TradeAction(out.Action),
		Strike:     out.Strike,
		OptionType: domain.OptionType(out.OptionType),
		Expiration: expiration,
		Confidence: out.Confidence,
		Volatility: domain.VolatilityRegime(out.Volatility),
		Thesis:     out.Thesis,
		Snapshot:   *snapshotFromResponse(&out.Snapshot),
	}
	if sig.OptionType == "" {
		sig.OptionType = sig.Action.OptionType()
	}
	return sig, nil
}

// GetQuote retrieves the quote for a single option contract.
func (c *Client) GetQuote(ctx context.Context, symbol string, strike float64, optType domain.OptionType, expiration time.Time) (*domain.OptionQuote, error) {
	var out quoteResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":      symbol,
			"strike":      fmt.Sprintf("%g", strike),
			"option_type": string(optType),
			"expiration":  expiration.UTC().Format(domain.EntryDateLayout),
		}).
		SetResult(&out).
		Get("/v1/options/quote")
	if err != nil {
		return nil, fmt.Errorf("%w: quote request for %s %g %s: %v", ports.ErrServiceUnavailable, symbol, strike, optType, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: quote for %s %g %s returned %s", ports.ErrServiceUnavailable, symbol, strike, optType, resp.Status())
	}

	return &domain.OptionQuote{
		Symbol:     out.Symbol,
		ContractID: out.ContractID,
		Strike:     out.Strike,
		OptionType: domain.OptionType(out.OptionType),
		Expiration: expiration,
		Bid:        out.Bid,
		Ask:        out.Ask,
		Last:       out.Last,
		ImpliedVol: out.ImpliedVol,
		Greeks: domain.Greeks{
			Delta: out.Delta,
			Gamma: out.Gamma,
			Theta: out.Theta,
			Vega:  out.Vega,
		},
		Timestamp: time.Unix(out.Timestamp, 0).UTC(),
	}, nil
}

func snapshotFromResponse(s *snapshotResponse) *domain.MarketSnapshot {
	return &domain.MarketSnapshot{
		Symbol:    s.Symbol,
		SpotPrice: s.SpotPrice,
		NetGEX:    s.NetGEX,
		FlipPoint: s.FlipPoint,
		CallWall:  s.CallWall,
		PutWall:   s.PutWall,
		Timestamp: time.Unix(s.Timestamp, 0).UTC(),
	}
}
