package domain

import "time"

// StrategyStats is the per-strategy-label historical performance aggregate.
// It is updated after every close and consulted before every new entry.
type StrategyStats struct {
	Strategy   string
	Trades     int
	Wins       int
	Losses     int
	WinRate    float64
	AvgWin     float64 // average winning trade P&L, positive
	AvgLoss    float64 // average losing trade P&L magnitude, positive
	Expectancy float64 // WinRate*AvgWin - (1-WinRate)*AvgLoss
	TotalPnL   float64
	UpdatedAt  time.Time
}

// Proven reports whether the sample is large enough to trust the statistics.
func (s *StrategyStats) Proven(threshold int) bool {
	return s.Trades >= threshold
}
