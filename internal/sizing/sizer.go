// Package sizing turns an entry price, confidence score, volatility regime,
// and historical-performance gate into a contract count. Every multiplier
// applied on the way is retained in the Decision for audit and testing.
package sizing

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"gammaTradeBot/internal/backtest"
	"gammaTradeBot/internal/domain"
	"gammaTradeBot/internal/ledger"
	"gammaTradeBot/internal/ports"
)

// volatilityFactors scales position size down as the volatility regime
// worsens. Unknown regimes size as normal.
var volatilityFactors = map[domain.VolatilityRegime]float64{
	domain.VolLow:     1.2,
	domain.VolNormal:  1.0,
	domain.VolHigh:    0.7,
	domain.VolExtreme: 0.4,
}

// Config holds sizing limits.
type Config struct {
	MaxPositionPct float64 // fraction of available capital per position, default 0.05
	MaxContracts   int     // liquidity cap, default 500
}

// Decision is the ephemeral, immutable audit record of one sizing computation.
type Decision struct {
	ID               string
	Strategy         string
	EntryPrice       float64
	AvailableCapital float64
	MaxPositionValue float64
	ConfidenceFactor float64
	VolatilityFactor float64
	BacktestFactor   float64
	AdjustedValue    float64
	RawContracts     int
	Contracts        int
	Reason           string
}

// Sizer computes contract counts.
type Sizer struct {
	ledger    *ledger.Ledger
	validator *backtest.Validator
	logger    ports.Logger
	cfg       Config
}

// New creates a position sizer.
func New(l *ledger.Ledger, v *backtest.Validator, log ports.Logger, cfg Config) (*Sizer, error) {
	if l == nil || v == nil || log == nil {
		return nil, fmt.Errorf("%w: sizer requires ledger, validator, and logger", ports.ErrConfiguration)
	}
	if cfg.MaxPositionPct <= 0 || cfg.MaxPositionPct > 1 {
		return nil, fmt.Errorf("%w: max position pct %.3f outside (0,1]", ports.ErrConfiguration, cfg.MaxPositionPct)
	}
	if cfg.MaxContracts <= 0 {
		return nil, fmt.Errorf("%w: max contracts must be positive", ports.ErrConfiguration)
	}
	return &Sizer{ledger: l, validator: v, logger: log, cfg: cfg}, nil
}

// Size computes the contract count for an entry. It returns 0 contracts with
// an explanatory reason, not an error, when the entry price is non-positive
// or capital is insufficient; errors are reserved for persistence failures.
func (s *Sizer) Size(ctx context.Context, entryPrice, confidence float64, vol domain.VolatilityRegime, strategy string) (int, *Decision, error) {
	d := &Decision{
		ID:         uuid.NewString(),
		Strategy:   strategy,
		EntryPrice: entryPrice,
	}

	if entryPrice <= 0 {
		d.Reason = fmt.Sprintf("entry price %.4f is not positive", entryPrice)
		return 0, d, nil
	}

	available, err := s.ledger.AvailableCapital(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("sizing capital check: %w", err)
	}
	d.AvailableCapital = available
	d.MaxPositionValue = available * s.cfg.MaxPositionPct
	if d.MaxPositionValue <= 0 {
		d.Reason = fmt.Sprintf("no available capital (%.2f)", available)
		return 0, d, nil
	}

	confidence = math.Min(math.Max(confidence, 0), 100)
	d.ConfidenceFactor = 0.5 + 0.5*(confidence/100)

	d.VolatilityFactor = 1.0
	if f, ok := volatilityFactors[vol]; ok {
		d.VolatilityFactor = f
	}

	val, err := s.validator.Validate(ctx, strategy)
	if err != nil {
		return 0, nil, fmt.Errorf("sizing backtest gate: %w", err)
	}
	if !val.ShouldTrade {
		d.Reason = "backtest validator rejected: " + val.Reason
		return 0, d, nil
	}
	d.BacktestFactor = val.SizeMultiplier

	d.AdjustedValue = d.MaxPositionValue * d.ConfidenceFactor * d.VolatilityFactor * d.BacktestFactor

	perContract := entryPrice * domain.ContractMultiplier
	d.RawContracts = int(math.Floor(d.AdjustedValue / perContract))
	if d.RawContracts <= 0 {
		d.Reason = fmt.Sprintf("adjusted value %.2f cannot fund one contract at %.2f", d.AdjustedValue, perContract)
		return 0, d, nil
	}

	d.Contracts = d.RawContracts
	if d.Contracts > s.cfg.MaxContracts {
		d.Contracts = s.cfg.MaxContracts
		d.Reason = fmt.Sprintf("capped at liquidity limit of %d contracts", s.cfg.MaxContracts)
	}

	s.logger.Debug(ctx, "Sizing decision", map[string]interface{}{
		"decisionID": d.ID,
		"strategy":   strategy,
		"contracts":  d.Contracts,
		"raw":        d.RawContracts,
		"adjusted":   d.AdjustedValue,
	})
	return d.Contracts, d, nil
}
