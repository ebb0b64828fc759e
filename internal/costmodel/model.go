// Package costmodel computes realistic fill prices and commissions for
// simulated option orders. It is pure: the same quote, side, and size always
// produce the same result, and entries and exits share one code path with
// opposite sides.
package costmodel

import (
	"fmt"
	"math"

	"gammaTradeBot/internal/domain"
	"gammaTradeBot/internal/ports"
)

// TouchOverrunPct bounds how far a fill may cross beyond the quoted touch.
const TouchOverrunPct = 0.01

// Config holds the cost model parameters.
type Config struct {
	// SpreadCapture is the fraction of the quoted spread captured back from
	// the touch: 0 pays the full spread (buy at ask, sell at bid), 0.5 fills
	// at mid, 1.0 captures the whole spread.
	SpreadCapture float64

	// ImpactBpsPerContract is the size-dependent market impact in basis
	// points per contract, capped at MaxImpactBps.
	ImpactBpsPerContract float64
	MaxImpactBps         float64

	// Commission parameters.
	PerContract   float64
	RegulatoryFee float64 // per contract
	MinPerOrder   float64
}

// DefaultConfig returns retail-realistic cost parameters.
func DefaultConfig() Config {
	return Config{
		SpreadCapture:        0.5,
		ImpactBpsPerContract: 2.0,
		MaxImpactBps:         25.0,
		PerContract:          0.65,
		RegulatoryFee:        0.02,
		MinPerOrder:          1.00,
	}
}

// FillBreakdown records every component of a computed fill, kept for
// audit and testability.
type FillBreakdown struct {
	Bid        float64
	Ask        float64
	Mid        float64
	Spread     float64
	SpreadCost float64 // per-contract cost of the uncaptured spread, signed against the trader
	ImpactBps  float64
	ImpactCost float64 // per-contract impact cost, signed against the trader
	RawPrice   float64 // before the touch-overrun clamp
	Price      float64
	Clamped    bool
}

// Model computes fills and commissions.
type Model struct {
	cfg Config
}

// New validates the configuration and returns a cost model.
func New(cfg Config) (*Model, error) {
	if cfg.SpreadCapture < 0 || cfg.SpreadCapture > 1 {
		return nil, fmt.Errorf("%w: spread capture %.3f outside [0,1]", ports.ErrConfiguration, cfg.SpreadCapture)
	}
	if cfg.ImpactBpsPerContract < 0 || cfg.MaxImpactBps < 0 {
		return nil, fmt.Errorf("%w: impact settings cannot be negative", ports.ErrConfiguration)
	}
	if cfg.PerContract < 0 || cfg.RegulatoryFee < 0 || cfg.MinPerOrder < 0 {
		return nil, fmt.Errorf("%w: commission settings cannot be negative", ports.ErrConfiguration)
	}
	return &Model{cfg: cfg}, nil
}

// FillPrice computes the achievable execution price for an order of the given
// side and size against the quoted bid/ask. Requires 0 < bid <= ask.
//
// Buys fill between mid and ask, sells between bid and mid (for spread
// capture <= 0.5); market impact pushes the price further against the trader
// as size grows. The result never crosses more than TouchOverrunPct beyond
// the quoted touch.
func (m *Model) FillPrice(bid, ask float64, side domain.OrderSide, contracts int) (float64, *FillBreakdown, error) {
	if bid <= 0 || ask <= 0 || bid > ask {
		return 0, nil, fmt.Errorf("%w: bid=%.4f ask=%.4f", ports.ErrInvalidQuote, bid, ask)
	}
	if contracts <= 0 {
		return 0, nil, fmt.Errorf("%w: contracts must be positive, got %d", ports.ErrInvalidQuote, contracts)
	}

	mid := (bid + ask) / 2
	spread := ask - bid
	captured := m.cfg.SpreadCapture * spread

	b := &FillBreakdown{Bid: bid, Ask: ask, Mid: mid, Spread: spread}

	var raw float64
	switch side {
	case domain.Buy:
		raw = ask - captured
		b.SpreadCost = raw - mid
	case domain.Sell:
		raw = bid + captured
		b.SpreadCost = mid - raw
	default:
		return 0, nil, fmt.Errorf("%w: unknown side %q", ports.ErrInvalidQuote, side)
	}

	b.ImpactBps = math.Min(m.cfg.ImpactBpsPerContract*float64(contracts), m.cfg.MaxImpactBps)
	impact := raw * b.ImpactBps / 10000
	b.ImpactCost = impact
	if side == domain.Buy {
		raw += impact
	} else {
		raw -= impact
	}
	b.RawPrice = raw

	// Never cross more than TouchOverrunPct beyond the quoted touch.
	price := raw
	if upper := ask * (1 + TouchOverrunPct); price > upper {
		price = upper
		b.Clamped = true
	}
	if lower := bid * (1 - TouchOverrunPct); price < lower {
		price = lower
		b.Clamped = true
	}
	b.Price = price

	return price, b, nil
}

// Commission returns the all-in order commission: linear per-contract fee
// plus a small per-contract regulatory fee, floored at the per-order minimum.
func (m *Model) Commission(contracts int) float64 {
	if contracts <= 0 {
		return 0
	}
	total := (m.cfg.PerContract + m.cfg.RegulatoryFee) * float64(contracts)
	return math.Max(total, m.cfg.MinPerOrder)
}

// RoundTripCommission returns entry plus exit commission for the given size.
func (m *Model) RoundTripCommission(contracts int) float64 {
	return 2 * m.Commission(contracts)
}
