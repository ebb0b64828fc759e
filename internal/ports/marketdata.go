package ports

import (
	"context"
	"time"

	"gammaTradeBot/internal/domain"
)

// MarketDataProvider serves dealer-positioning snapshots and regime signals.
// Both calls carry bounded timeouts via ctx; failures are wrapped with
// ErrServiceUnavailable and treated as "skip this cycle" by callers.
type MarketDataProvider interface {
	// GetSnapshot retrieves the current GEX picture for a symbol.
	GetSnapshot(ctx context.Context, symbol string) (*domain.MarketSnapshot, error)

	// GetSignal retrieves the active regime signal for a symbol, if any.
	// Returns nil, nil when the classifier has no actionable signal.
	GetSignal(ctx context.Context, symbol string) (*domain.RegimeSignal, error)
}

// OptionPricingProvider serves option contract quotes. Pricing theory lives
// entirely behind this port.
type OptionPricingProvider interface {
	// GetQuote retrieves the quote for a single option contract.
	GetQuote(ctx context.Context, symbol string, strike float64, optType domain.OptionType, expiration time.Time) (*domain.OptionQuote, error)
}
