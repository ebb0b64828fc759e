package domain

import "time"

// ClosedTrade is the immutable record produced when an open position is
// closed. RealizedPnL is net of both entry and exit commissions.
type ClosedTrade struct {
	ID         int64
	PositionID int64
	Symbol     string
	Strategy   string
	Action     TradeAction
	OptionType OptionType
	Strike     float64
	Expiration time.Time
	Contracts  int

	EntryPrice      float64
	EntrySpot       float64
	EntryCommission float64
	EntryTime       time.Time
	Confidence      float64

	ExitPrice      float64
	ExitSpot       float64
	ExitCommission float64
	ExitTime       time.Time
	CloseReason    CloseReason
	ExitDetail     string // human-readable reason, e.g. the advisory text

	RealizedPnL  float64
	HoldDuration time.Duration
}

// GrossPnL returns the premium P&L before commissions.
func (t *ClosedTrade) GrossPnL() float64 {
	return (t.ExitPrice - t.EntryPrice) * float64(t.Contracts) * ContractMultiplier
}
