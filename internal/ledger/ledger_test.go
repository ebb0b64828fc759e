package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"gammaTradeBot/internal/domain"
	"gammaTradeBot/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// In-memory repository fakes. Capital figures are derived, never stored, so
// the ledger under test only needs the three aggregate queries.

type fakePositions struct {
	open []*domain.OpenPosition
	err  error
}

func (f *fakePositions) Create(ctx context.Context, pos *domain.OpenPosition) (int64, error) {
	f.open = append(f.open, pos)
	return int64(len(f.open)), nil
}
func (f *fakePositions) UpdateMark(ctx context.Context, pos *domain.OpenPosition) error { return nil }
func (f *fakePositions) FindOpen(ctx context.Context) ([]*domain.OpenPosition, error) {
	return f.open, f.err
}
func (f *fakePositions) FindOpenByContract(ctx context.Context, symbol string, strike float64, optType domain.OptionType, expiration time.Time, entryDate string) (*domain.OpenPosition, error) {
	return nil, nil
}
func (f *fakePositions) OpenNotional(ctx context.Context) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	var total float64
	for _, p := range f.open {
		total += p.CostBasis()
	}
	return total, nil
}
func (f *fakePositions) CountOpenedToday(ctx context.Context, entryDate string) (int, error) {
	return 0, nil
}

type fakeTrades struct {
	trades []*domain.ClosedTrade
}

func (f *fakeTrades) RecordClose(ctx context.Context, positionID int64, trade *domain.ClosedTrade) (int64, error) {
	f.trades = append(f.trades, trade)
	return int64(len(f.trades)), nil
}
func (f *fakeTrades) FindAll(ctx context.Context) ([]*domain.ClosedTrade, error) {
	return f.trades, nil
}
func (f *fakeTrades) FindByStrategy(ctx context.Context, strategy string, limit int) ([]*domain.ClosedTrade, error) {
	return nil, nil
}
func (f *fakeTrades) RealizedPnL(ctx context.Context) (float64, error) {
	var total float64
	for _, t := range f.trades {
		total += t.RealizedPnL
	}
	return total, nil
}
func (f *fakeTrades) CountEnteredToday(ctx context.Context, entryDate string) (int, error) {
	return 0, nil
}
func (f *fakeTrades) PnLClosedToday(ctx context.Context, exitDate string) (float64, error) {
	return 0, nil
}

type fakeCapital struct {
	starting float64
	err      error
}

func (f *fakeCapital) StartingCapital(ctx context.Context) (float64, error) {
	return f.starting, f.err
}
func (f *fakeCapital) SetStartingCapital(ctx context.Context, amount float64) error {
	f.starting = amount
	return nil
}

func openPos(entryPrice float64, contracts int, commission, unrealized float64) *domain.OpenPosition {
	return &domain.OpenPosition{
		EntryPrice:      entryPrice,
		Contracts:       contracts,
		EntryCommission: commission,
		UnrealizedPnL:   unrealized,
	}
}

func TestLedger_Baseline(t *testing.T) {
	l, err := New(&fakePositions{}, &fakeTrades{}, &fakeCapital{starting: 100000})
	require.NoError(t, err)
	ctx := context.Background()

	available, err := l.AvailableCapital(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 100000, available, 1e-9)

	equity, err := l.Equity(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 100000, equity, 1e-9)
}

func TestLedger_OpeningReducesAvailableNotEquity(t *testing.T) {
	positions := &fakePositions{}
	l, err := New(positions, &fakeTrades{}, &fakeCapital{starting: 100000})
	require.NoError(t, err)
	ctx := context.Background()

	// 5 contracts at 2.525 plus 3.35 commission: 1265.85 deployed.
	positions.open = append(positions.open, openPos(2.525, 5, 3.35, 0))

	available, err := l.AvailableCapital(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 100000-1265.85, available, 1e-9)

	deployed, err := l.DeployedCapital(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1265.85, deployed, 1e-9)

	// Marked flat, equity only reflects the unrealized P&L, which starts at 0
	// minus nothing here (commission sits in the unrealized figure when the
	// manager refreshes marks).
	equity, err := l.Equity(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 100000, equity, 1e-9)
}

func TestLedger_CloseMovesPnLIntoRealized(t *testing.T) {
	positions := &fakePositions{}
	trades := &fakeTrades{}
	l, err := New(positions, trades, &fakeCapital{starting: 100000})
	require.NoError(t, err)
	ctx := context.Background()

	// Simulate a completed round trip: the open position is gone and a closed
	// trade with net P&L exists.
	trades.trades = append(trades.trades, &domain.ClosedTrade{RealizedPnL: 130.80})

	available, err := l.AvailableCapital(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 100130.80, available, 1e-9)

	realized, err := l.RealizedPnL(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 130.80, realized, 1e-9)

	equity, err := l.Equity(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 100130.80, equity, 1e-9)
}

func TestLedger_EquityIncludesUnrealized(t *testing.T) {
	positions := &fakePositions{}
	positions.open = append(positions.open, openPos(2.50, 4, 3.0, 250), openPos(1.80, 2, 2.0, -80))
	l, err := New(positions, &fakeTrades{}, &fakeCapital{starting: 50000})
	require.NoError(t, err)

	equity, err := l.Equity(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 50000+250-80, equity, 1e-9)
}

func TestLedger_ErrorsPropagate(t *testing.T) {
	l, err := New(&fakePositions{err: errors.New("disk gone")}, &fakeTrades{}, &fakeCapital{starting: 1000})
	require.NoError(t, err)
	_, err = l.AvailableCapital(context.Background())
	assert.Error(t, err)

	l2, err := New(&fakePositions{}, &fakeTrades{}, &fakeCapital{err: ports.ErrNotFound})
	require.NoError(t, err)
	_, err = l2.Equity(context.Background())
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestNew_RequiresRepositories(t *testing.T) {
	_, err := New(nil, &fakeTrades{}, &fakeCapital{})
	assert.ErrorIs(t, err, ports.ErrConfiguration)
}
