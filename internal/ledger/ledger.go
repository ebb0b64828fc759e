// Package ledger derives capital figures from the trade record. Nothing here
// is cached: every figure is recomputed from storage on each call so the
// displayed number can never drift from the true position.
package ledger

import (
	"context"
	"fmt"

	"gammaTradeBot/internal/ports"
)

// Ledger derives available and deployed capital from the persisted record.
type Ledger struct {
	positions ports.PositionRepository
	trades    ports.TradeRepository
	capital   ports.CapitalConfigRepository
}

// New creates a capital ledger over the given repositories.
func New(positions ports.PositionRepository, trades ports.TradeRepository, capital ports.CapitalConfigRepository) (*Ledger, error) {
	if positions == nil || trades == nil || capital == nil {
		return nil, fmt.Errorf("%w: ledger requires position, trade, and capital repositories", ports.ErrConfiguration)
	}
	return &Ledger{positions: positions, trades: trades, capital: capital}, nil
}

// AvailableCapital returns starting capital plus all realized P&L minus the
// cost basis of every open position.
func (l *Ledger) AvailableCapital(ctx context.Context) (float64, error) {
	starting, err := l.capital.StartingCapital(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading starting capital: %w", err)
	}
	realized, err := l.trades.RealizedPnL(ctx)
	if err != nil {
		return 0, fmt.Errorf("summing realized pnl: %w", err)
	}
	deployed, err := l.positions.OpenNotional(ctx)
	if err != nil {
		return 0, fmt.Errorf("summing open notional: %w", err)
	}
	return starting + realized - deployed, nil
}

// DeployedCapital returns the summed cost basis of all open positions.
func (l *Ledger) DeployedCapital(ctx context.Context) (float64, error) {
	deployed, err := l.positions.OpenNotional(ctx)
	if err != nil {
		return 0, fmt.Errorf("summing open notional: %w", err)
	}
	return deployed, nil
}

// RealizedPnL returns the summed realized P&L of all closed trades.
func (l *Ledger) RealizedPnL(ctx context.Context) (float64, error) {
	realized, err := l.trades.RealizedPnL(ctx)
	if err != nil {
		return 0, fmt.Errorf("summing realized pnl: %w", err)
	}
	return realized, nil
}

// Equity returns starting capital plus realized P&L plus the unrealized P&L
// of all open positions at their last refreshed marks.
func (l *Ledger) Equity(ctx context.Context) (float64, error) {
	starting, err := l.capital.StartingCapital(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading starting capital: %w", err)
	}
	realized, err := l.trades.RealizedPnL(ctx)
	if err != nil {
		return 0, fmt.Errorf("summing realized pnl: %w", err)
	}
	open, err := l.positions.FindOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading open positions: %w", err)
	}
	equity := starting + realized
	for _, pos := range open {
		equity += pos.UnrealizedPnL
	}
	return equity, nil
}

// StartingCapital returns the immutable baseline.
func (l *Ledger) StartingCapital(ctx context.Context) (float64, error) {
	return l.capital.StartingCapital(ctx)
}
