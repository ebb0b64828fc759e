package sizing

import (
	"context"
	"testing"
	"time"

	"gammaTradeBot/internal/backtest"
	"gammaTradeBot/internal/domain"
	"gammaTradeBot/internal/ledger"
	"gammaTradeBot/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type fakePositions struct {
	notional float64
}

func (f *fakePositions) Create(ctx context.Context, pos *domain.OpenPosition) (int64, error) {
	return 1, nil
}
func (f *fakePositions) UpdateMark(ctx context.Context, pos *domain.OpenPosition) error { return nil }
func (f *fakePositions) FindOpen(ctx context.Context) ([]*domain.OpenPosition, error) {
	return nil, nil
}
func (f *fakePositions) FindOpenByContract(ctx context.Context, symbol string, strike float64, optType domain.OptionType, expiration time.Time, entryDate string) (*domain.OpenPosition, error) {
	return nil, nil
}
func (f *fakePositions) OpenNotional(ctx context.Context) (float64, error) {
	return f.notional, nil
}
func (f *fakePositions) CountOpenedToday(ctx context.Context, entryDate string) (int, error) {
	return 0, nil
}

type fakeTrades struct {
	realized float64
}

func (f *fakeTrades) RecordClose(ctx context.Context, positionID int64, trade *domain.ClosedTrade) (int64, error) {
	return 1, nil
}
func (f *fakeTrades) FindAll(ctx context.Context) ([]*domain.ClosedTrade, error) { return nil, nil }
func (f *fakeTrades) FindByStrategy(ctx context.Context, strategy string, limit int) ([]*domain.ClosedTrade, error) {
	return nil, nil
}
func (f *fakeTrades) RealizedPnL(ctx context.Context) (float64, error) { return f.realized, nil }
func (f *fakeTrades) CountEnteredToday(ctx context.Context, entryDate string) (int, error) {
	return 0, nil
}
func (f *fakeTrades) PnLClosedToday(ctx context.Context, exitDate string) (float64, error) {
	return 0, nil
}

type fakeCapital struct {
	starting float64
}

func (f *fakeCapital) StartingCapital(ctx context.Context) (float64, error) {
	return f.starting, nil
}
func (f *fakeCapital) SetStartingCapital(ctx context.Context, amount float64) error { return nil }

type fakeStats struct {
	rows map[string]*domain.StrategyStats
}

func (f *fakeStats) Get(ctx context.Context, strategy string) (*domain.StrategyStats, error) {
	if f.rows == nil {
		return nil, nil
	}
	s, ok := f.rows[strategy]
	if !ok {
		return nil, nil
	}
	return s, nil
}
func (f *fakeStats) GetAll(ctx context.Context) ([]*domain.StrategyStats, error) {
	all := make([]*domain.StrategyStats, 0, len(f.rows))
	for _, s := range f.rows {
		all = append(all, s)
	}
	return all, nil
}
func (f *fakeStats) Upsert(ctx context.Context, stats *domain.StrategyStats) error { return nil }

type harness struct {
	sizer     *Sizer
	positions *fakePositions
	stats     *fakeStats
}

func newHarness(t *testing.T, starting float64) *harness {
	t.Helper()
	positions := &fakePositions{}
	stats := &fakeStats{rows: make(map[string]*domain.StrategyStats)}

	l, err := ledger.New(positions, &fakeTrades{}, &fakeCapital{starting: starting})
	require.NoError(t, err)
	v, err := backtest.NewValidator(stats, &mockLogger{}, backtest.ValidatorConfig{ProvenTradeThreshold: 10, MinWinRate: 0.40})
	require.NoError(t, err)
	s, err := New(l, v, &mockLogger{}, Config{MaxPositionPct: 0.05, MaxContracts: 500})
	require.NoError(t, err)

	return &harness{sizer: s, positions: positions, stats: stats}
}

func provenStats(strategy string) *domain.StrategyStats {
	return &domain.StrategyStats{
		Strategy:   strategy,
		Trades:     20,
		WinRate:    0.60,
		AvgWin:     200,
		AvgLoss:    100,
		Expectancy: 0.60*200 - 0.40*100,
	}
}

func TestSize_FactorMath(t *testing.T) {
	h := newHarness(t, 100000)

	// Unproven strategy: 100000 * 0.05 * (0.5 + 0.5*0.85) * 1.0 * 0.5
	// = 2312.50 adjusted, which funds floor(2312.50/250) = 9 contracts.
	contracts, d, err := h.sizer.Size(context.Background(), 2.50, 85, domain.VolNormal, "fresh_strategy")
	require.NoError(t, err)
	assert.Equal(t, 9, contracts)
	assert.InDelta(t, 5000, d.MaxPositionValue, 1e-9)
	assert.InDelta(t, 0.925, d.ConfidenceFactor, 1e-9)
	assert.InDelta(t, 1.0, d.VolatilityFactor, 1e-9)
	assert.InDelta(t, 0.5, d.BacktestFactor, 1e-9)
	assert.InDelta(t, 2312.50, d.AdjustedValue, 1e-9)
	assert.NotEmpty(t, d.ID)
}

func TestSize_ProvenDoublesUnproven(t *testing.T) {
	h := newHarness(t, 100000)
	h.stats.rows["proven_play"] = provenStats("proven_play")

	proven, _, err := h.sizer.Size(context.Background(), 2.50, 85, domain.VolNormal, "proven_play")
	require.NoError(t, err)
	unproven, _, err := h.sizer.Size(context.Background(), 2.50, 85, domain.VolNormal, "unknown_play")
	require.NoError(t, err)

	assert.Greater(t, proven, unproven)
	assert.Equal(t, 18, proven)
	assert.Equal(t, 9, unproven)
}

func TestSize_VolatilityScaling(t *testing.T) {
	h := newHarness(t, 100000)
	ctx := context.Background()

	low, _, err := h.sizer.Size(ctx, 2.50, 100, domain.VolLow, "s")
	require.NoError(t, err)
	normal, _, err := h.sizer.Size(ctx, 2.50, 100, domain.VolNormal, "s")
	require.NoError(t, err)
	high, _, err := h.sizer.Size(ctx, 2.50, 100, domain.VolHigh, "s")
	require.NoError(t, err)
	extreme, _, err := h.sizer.Size(ctx, 2.50, 100, domain.VolExtreme, "s")
	require.NoError(t, err)

	assert.Greater(t, low, normal)
	assert.Greater(t, normal, high)
	assert.Greater(t, high, extreme)

	// Unknown regimes size as normal rather than rejecting.
	unknown, _, err := h.sizer.Size(ctx, 2.50, 100, domain.VolatilityRegime("sideways"), "s")
	require.NoError(t, err)
	assert.Equal(t, normal, unknown)
}

func TestSize_ConfidenceClamped(t *testing.T) {
	h := newHarness(t, 100000)
	ctx := context.Background()

	_, over, err := h.sizer.Size(ctx, 2.50, 250, domain.VolNormal, "s")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, over.ConfidenceFactor, 1e-9)

	_, under, err := h.sizer.Size(ctx, 2.50, -10, domain.VolNormal, "s")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, under.ConfidenceFactor, 1e-9)
}

func TestSize_ZeroContractOutcomes(t *testing.T) {
	t.Run("non-positive entry price", func(t *testing.T) {
		h := newHarness(t, 100000)
		contracts, d, err := h.sizer.Size(context.Background(), 0, 85, domain.VolNormal, "s")
		require.NoError(t, err)
		assert.Zero(t, contracts)
		assert.Contains(t, d.Reason, "not positive")
	})

	t.Run("no available capital", func(t *testing.T) {
		h := newHarness(t, 100000)
		h.positions.notional = 100000 // everything deployed
		contracts, d, err := h.sizer.Size(context.Background(), 2.50, 85, domain.VolNormal, "s")
		require.NoError(t, err)
		assert.Zero(t, contracts)
		assert.Contains(t, d.Reason, "no available capital")
	})

	t.Run("cannot fund one contract", func(t *testing.T) {
		h := newHarness(t, 1000) // max position value 50, a 2.50 contract costs 250
		contracts, d, err := h.sizer.Size(context.Background(), 2.50, 85, domain.VolNormal, "s")
		require.NoError(t, err)
		assert.Zero(t, contracts)
		assert.Contains(t, d.Reason, "cannot fund one contract")
	})

	t.Run("validator rejection", func(t *testing.T) {
		h := newHarness(t, 100000)
		h.stats.rows["bad"] = &domain.StrategyStats{
			Strategy: "bad", Trades: 20, WinRate: 0.30, AvgWin: 50, AvgLoss: 100,
			Expectancy: 0.30*50 - 0.70*100,
		}
		contracts, d, err := h.sizer.Size(context.Background(), 2.50, 85, domain.VolNormal, "bad")
		require.NoError(t, err)
		assert.Zero(t, contracts)
		assert.Contains(t, d.Reason, "backtest validator rejected")
	})
}

func TestSize_LiquidityCap(t *testing.T) {
	positions := &fakePositions{}
	stats := &fakeStats{rows: map[string]*domain.StrategyStats{"s": provenStats("s")}}
	l, err := ledger.New(positions, &fakeTrades{}, &fakeCapital{starting: 10000000})
	require.NoError(t, err)
	v, err := backtest.NewValidator(stats, &mockLogger{}, backtest.ValidatorConfig{})
	require.NoError(t, err)
	s, err := New(l, v, &mockLogger{}, Config{MaxPositionPct: 0.05, MaxContracts: 100})
	require.NoError(t, err)

	// Cheap contract and deep capital would size past the cap.
	contracts, d, err := s.Size(context.Background(), 0.50, 100, domain.VolLow, "s")
	require.NoError(t, err)
	assert.Equal(t, 100, contracts)
	assert.Greater(t, d.RawContracts, 100)
	assert.Contains(t, d.Reason, "liquidity limit")
}

func TestNew_Validation(t *testing.T) {
	l, err := ledger.New(&fakePositions{}, &fakeTrades{}, &fakeCapital{})
	require.NoError(t, err)
	v, err := backtest.NewValidator(&fakeStats{}, &mockLogger{}, backtest.ValidatorConfig{})
	require.NoError(t, err)

	_, err = New(nil, v, &mockLogger{}, Config{MaxPositionPct: 0.05, MaxContracts: 10})
	assert.ErrorIs(t, err, ports.ErrConfiguration)
	_, err = New(l, v, &mockLogger{}, Config{MaxPositionPct: 1.5, MaxContracts: 10})
	assert.ErrorIs(t, err, ports.ErrConfiguration)
	_, err = New(l, v, &mockLogger{}, Config{MaxPositionPct: 0.05, MaxContracts: 0})
	assert.ErrorIs(t, err, ports.ErrConfiguration)
}
