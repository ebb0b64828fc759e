package ports

import (
	"context"
	"time"

	"gammaTradeBot/internal/domain"
)

// PositionRepository defines the interface for storing and retrieving open positions.
type PositionRepository interface {
	// Create saves a new open position and returns its assigned ID.
	// Returns an error wrapping ErrDuplicateTrade when a position with the
	// same (symbol, strike, option type, expiration, entry date) exists;
	// the storage-layer uniqueness constraint is the source of truth.
	Create(ctx context.Context, pos *domain.OpenPosition) (int64, error)

	// UpdateMark persists the refreshed mark-to-market fields of a position.
	UpdateMark(ctx context.Context, pos *domain.OpenPosition) error

	// FindOpen retrieves all open positions, ordered by entry time ascending.
	FindOpen(ctx context.Context) ([]*domain.OpenPosition, error)

	// FindOpenByContract retrieves the open position matching the duplicate-guard
	// key, if any. Returns nil, nil when no such position exists.
	FindOpenByContract(ctx context.Context, symbol string, strike float64, optType domain.OptionType, expiration time.Time, entryDate string) (*domain.OpenPosition, error)

	// OpenNotional returns the summed entry cost basis of all open positions.
	OpenNotional(ctx context.Context) (float64, error)

	// CountOpenedToday counts open positions entered on the given UTC date.
	CountOpenedToday(ctx context.Context, entryDate string) (int, error)
}

// TradeRepository defines the interface for the append-only closed trade record.
type TradeRepository interface {
	// RecordClose atomically inserts the closed trade and deletes the open
	// position it came from. Either both happen or neither; on failure the
	// position stays open and the error wraps ErrPersistenceFailure.
	RecordClose(ctx context.Context, positionID int64, trade *domain.ClosedTrade) (int64, error)

	// FindAll retrieves all closed trades, ordered by exit time ascending.
	FindAll(ctx context.Context) ([]*domain.ClosedTrade, error)

	// FindByStrategy retrieves the most recent closed trades for a strategy label.
	FindByStrategy(ctx context.Context, strategy string, limit int) ([]*domain.ClosedTrade, error)

	// RealizedPnL returns the summed realized P&L of all closed trades.
	RealizedPnL(ctx context.Context) (float64, error)

	// CountEnteredToday counts closed trades whose entry date is the given UTC date.
	CountEnteredToday(ctx context.Context, entryDate string) (int, error)

	// PnLClosedToday returns the summed realized P&L of trades closed on the given UTC date.
	PnLClosedToday(ctx context.Context, exitDate string) (float64, error)
}

// StatsRepository defines the interface for per-strategy backtest statistics.
type StatsRepository interface {
	// Get retrieves stats for an exact strategy label. Returns nil, nil on miss.
	Get(ctx context.Context, strategy string) (*domain.StrategyStats, error)
	// GetAll retrieves all stored strategy stats.
	GetAll(ctx context.Context) ([]*domain.StrategyStats, error)
	// Upsert inserts or replaces the stats row for the label.
	Upsert(ctx context.Context, stats *domain.StrategyStats) error
}

// CapitalConfigRepository exposes the key-value capital configuration.
type CapitalConfigRepository interface {
	// StartingCapital returns the immutable starting capital baseline.
	StartingCapital(ctx context.Context) (float64, error)
	// SetStartingCapital seeds the baseline; it is written once at startup.
	SetStartingCapital(ctx context.Context, amount float64) error
}

// AuditLogRepository is the append-only audit trail.
type AuditLogRepository interface {
	Append(ctx context.Context, event *domain.AuditEvent) error
}

// NotificationSink delivers fire-and-forget notifications. Failures are
// logged and swallowed by callers, never propagated.
type NotificationSink interface {
	Send(ctx context.Context, title, body string, urgency domain.Urgency) error
}
