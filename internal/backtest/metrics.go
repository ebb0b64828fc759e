package backtest

import (
	"math"
	"sort"
	"time"

	"gammaTradeBot/internal/domain"
)

// PerformanceMetrics holds aggregate performance figures over closed trades.
type PerformanceMetrics struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	TotalPnL      float64
	AverageWin    float64 // positive
	AverageLoss   float64 // magnitude, positive
	Expectancy    float64
	ProfitFactor  float64 // gross wins / gross losses
	SharpeRatio   float64 // per-trade returns against starting capital, rf=0
	MaxDrawdown   float64 // fraction of peak equity
	FinalEquity   float64

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageHoldDuration  time.Duration
	EquityCurve          []EquityPoint
}

// EquityPoint is one point on the post-trade equity curve.
type EquityPoint struct {
	Time     time.Time
	Equity   float64
	Drawdown float64
}

// ComputeMetrics aggregates closed trades into performance metrics against a
// starting capital baseline. Trades are processed in exit-time order.
func ComputeMetrics(trades []*domain.ClosedTrade, startingCapital float64) *PerformanceMetrics {
	m := &PerformanceMetrics{
		FinalEquity: startingCapital,
		EquityCurve: make([]EquityPoint, 0, len(trades)),
	}
	if len(trades) == 0 {
		return m
	}

	sorted := make([]*domain.ClosedTrade, len(trades))
	copy(sorted, trades)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ExitTime.Before(sorted[j].ExitTime)
	})

	equity := startingCapital
	peak := startingCapital
	var grossWins, grossLosses float64
	var consecWins, consecLosses int
	var totalHold time.Duration
	returns := make([]float64, 0, len(sorted))

	for _, t := range sorted {
		m.TotalTrades++
		m.TotalPnL += t.RealizedPnL
		totalHold += t.HoldDuration

		if t.RealizedPnL > 0 {
			m.WinningTrades++
			grossWins += t.RealizedPnL
			consecWins++
			consecLosses = 0
		} else {
			m.LosingTrades++
			grossLosses += -t.RealizedPnL
			consecLosses++
			consecWins = 0
		}
		if consecWins > m.MaxConsecutiveWins {
			m.MaxConsecutiveWins = consecWins
		}
		if consecLosses > m.MaxConsecutiveLosses {
			m.MaxConsecutiveLosses = consecLosses
		}

		equity += t.RealizedPnL
		if startingCapital > 0 {
			returns = append(returns, t.RealizedPnL/startingCapital)
		}

		if equity > peak {
			peak = equity
		}
		dd := 0.0
		if peak > 0 {
			dd = (peak - equity) / peak
		}
		if dd > m.MaxDrawdown {
			m.MaxDrawdown = dd
		}
		m.EquityCurve = append(m.EquityCurve, EquityPoint{Time: t.ExitTime, Equity: equity, Drawdown: dd})
	}

	m.FinalEquity = equity
	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	if m.WinningTrades > 0 {
		m.AverageWin = grossWins / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AverageLoss = grossLosses / float64(m.LosingTrades)
	}
	m.Expectancy = m.WinRate*m.AverageWin - (1-m.WinRate)*m.AverageLoss
	if grossLosses > 0 {
		m.ProfitFactor = grossWins / grossLosses
	}
	m.AverageHoldDuration = totalHold / time.Duration(len(sorted))
	m.SharpeRatio = sharpe(returns)

	return m
}

// sharpe computes mean/stddev of per-trade returns. Fewer than two trades or
// zero variance yields 0.
func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	if variance == 0 {
		return 0
	}
	return mean / math.Sqrt(variance)
}

// RebuildStats recomputes a strategy's stats row from its full trade history.
// Used by the report tool to verify the incremental feedback path.
func RebuildStats(strategy string, trades []*domain.ClosedTrade) *domain.StrategyStats {
	s := &domain.StrategyStats{Strategy: strategy}
	var grossWins, grossLosses float64
	for _, t := range trades {
		if t.Strategy != strategy {
			continue
		}
		s.Trades++
		s.TotalPnL += t.RealizedPnL
		if t.RealizedPnL > 0 {
			s.Wins++
			grossWins += t.RealizedPnL
		} else {
			s.Losses++
			grossLosses += -t.RealizedPnL
		}
	}
	if s.Trades == 0 {
		return s
	}
	s.WinRate = float64(s.Wins) / float64(s.Trades)
	if s.Wins > 0 {
		s.AvgWin = grossWins / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLoss = grossLosses / float64(s.Losses)
	}
	s.Expectancy = s.WinRate*s.AvgWin - (1-s.WinRate)*s.AvgLoss
	s.UpdatedAt = time.Now().UTC()
	return s
}
