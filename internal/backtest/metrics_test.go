package backtest

import (
	"testing"
	"time"

	"gammaTradeBot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closedTrade(strategy string, pnl float64, exitTime time.Time, hold time.Duration) *domain.ClosedTrade {
	return &domain.ClosedTrade{
		Strategy:     strategy,
		RealizedPnL:  pnl,
		ExitTime:     exitTime,
		HoldDuration: hold,
	}
}

func TestComputeMetrics_Empty(t *testing.T) {
	m := ComputeMetrics(nil, 100000)
	assert.Zero(t, m.TotalTrades)
	assert.Zero(t, m.WinRate)
	assert.Equal(t, 100000.0, m.FinalEquity)
	assert.Empty(t, m.EquityCurve)
}

func TestComputeMetrics_Aggregates(t *testing.T) {
	base := time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)
	trades := []*domain.ClosedTrade{
		closedTrade("a", 500, base, time.Hour),
		closedTrade("a", -200, base.Add(24*time.Hour), 2*time.Hour),
		closedTrade("b", 300, base.Add(48*time.Hour), 30*time.Minute),
		closedTrade("b", -100, base.Add(72*time.Hour), time.Hour),
		closedTrade("a", 400, base.Add(96*time.Hour), 90*time.Minute),
	}

	m := ComputeMetrics(trades, 10000)

	assert.Equal(t, 5, m.TotalTrades)
	assert.Equal(t, 3, m.WinningTrades)
	assert.Equal(t, 2, m.LosingTrades)
	assert.InDelta(t, 0.6, m.WinRate, 1e-9)
	assert.InDelta(t, 900, m.TotalPnL, 1e-9)
	assert.InDelta(t, 400, m.AverageWin, 1e-9)
	assert.InDelta(t, 150, m.AverageLoss, 1e-9)
	assert.InDelta(t, 0.6*400-0.4*150, m.Expectancy, 1e-9)
	assert.InDelta(t, 1200.0/300.0, m.ProfitFactor, 1e-9)
	assert.InDelta(t, 10900, m.FinalEquity, 1e-9)
	assert.Equal(t, 1, m.MaxConsecutiveWins)
	assert.Equal(t, 1, m.MaxConsecutiveLosses)
	assert.Len(t, m.EquityCurve, 5)
}

func TestComputeMetrics_SortsOutOfOrderTrades(t *testing.T) {
	base := time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)
	trades := []*domain.ClosedTrade{
		closedTrade("a", -300, base.Add(48*time.Hour), time.Hour),
		closedTrade("a", 100, base, time.Hour),
		closedTrade("a", 200, base.Add(24*time.Hour), time.Hour),
	}

	m := ComputeMetrics(trades, 1000)
	require.Len(t, m.EquityCurve, 3)
	assert.InDelta(t, 1100, m.EquityCurve[0].Equity, 1e-9)
	assert.InDelta(t, 1300, m.EquityCurve[1].Equity, 1e-9)
	assert.InDelta(t, 1000, m.EquityCurve[2].Equity, 1e-9)

	// Drawdown is measured from the post-sort peak of 1300.
	assert.InDelta(t, 300.0/1300.0, m.MaxDrawdown, 1e-9)
}

func TestComputeMetrics_Streaks(t *testing.T) {
	base := time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)
	pnls := []float64{100, 200, 300, -50, -60, 100, -10, -20, -30, -40}
	trades := make([]*domain.ClosedTrade, 0, len(pnls))
	for i, p := range pnls {
		trades = append(trades, closedTrade("s", p, base.Add(time.Duration(i)*time.Hour), time.Minute))
	}

	m := ComputeMetrics(trades, 100000)
	assert.Equal(t, 3, m.MaxConsecutiveWins)
	assert.Equal(t, 4, m.MaxConsecutiveLosses)
}

func TestComputeMetrics_SharpeZeroWithOneTrade(t *testing.T) {
	base := time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)
	m := ComputeMetrics([]*domain.ClosedTrade{closedTrade("s", 100, base, time.Hour)}, 10000)
	assert.Zero(t, m.SharpeRatio)
}

func TestRebuildStats_FiltersByStrategy(t *testing.T) {
	base := time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)
	trades := []*domain.ClosedTrade{
		closedTrade("a", 100, base, time.Hour),
		closedTrade("b", -500, base, time.Hour),
		closedTrade("a", -40, base, time.Hour),
	}

	s := RebuildStats("a", trades)
	assert.Equal(t, 2, s.Trades)
	assert.Equal(t, 1, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.InDelta(t, 60, s.TotalPnL, 1e-9)
	assert.InDelta(t, 100, s.AvgWin, 1e-9)
	assert.InDelta(t, 40, s.AvgLoss, 1e-9)

	empty := RebuildStats("missing", trades)
	assert.Zero(t, empty.Trades)
}
