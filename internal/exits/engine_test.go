package exits

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

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// mockAdvisor returns a canned decision or error and records the call.
type mockAdvisor struct {
	decision *ports.AdvisoryDecision
	err      error
	delay    time.Duration
	called   bool
	lastCtx  ports.AdvisoryContext
}

func (m *mockAdvisor) Decide(ctx context.Context, actx ports.AdvisoryContext) (*ports.AdvisoryDecision, error) {
	m.called = true
	m.lastCtx = actx
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	}
	return m.decision, m.err
}

var testNow = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

func testPosition() *domain.OpenPosition {
	return &domain.OpenPosition{
		ID:               1,
		Symbol:           "SPX",
		Strategy:         "negative_gamma_breakout",
		OptionType:       domain.Call,
		Strike:           5900,
		Expiration:       testNow.Add(10 * 24 * time.Hour),
		Contracts:        2,
		EntryPrice:       2.50,
		EntryNetGEX:      -1.2e9,
		Confidence:       85,
		ProfitTargetPct:  50,
		StopLossPct:      20,
		EntryTime:        testNow.Add(-2 * time.Hour),
		CurrentPrice:     2.60,
		UnrealizedPnLPct: 4,
	}
}

func testSnapshot() *domain.MarketSnapshot {
	return &domain.MarketSnapshot{
		Symbol:    "SPX",
		SpotPrice: 5910,
		NetGEX:    -1.1e9,
		FlipPoint: 5950,
		Timestamp: testNow,
	}
}

func newEngine(t *testing.T, advisor ports.Advisor) *Engine {
	t.Helper()
	e, err := New(advisor, &mockLogger{}, Config{HardStopPct: 50, AdvisoryTimeout: 100 * time.Millisecond})
	require.NoError(t, err)
	return e
}

func TestDecide_HardStopOverridesEverything(t *testing.T) {
	// Even a healthy-looking advisory HOLD cannot save a position past the
	// hard stop, and the advisor must never be consulted.
	advisor := &mockAdvisor{decision: &ports.AdvisoryDecision{Verdict: ports.AdvisoryHold, Reason: "thesis intact"}}
	e := newEngine(t, advisor)

	pos := testPosition()
	pos.UnrealizedPnLPct = -60

	d := e.Decide(context.Background(), pos, testSnapshot(), testNow)
	assert.True(t, d.Close)
	assert.Equal(t, domain.CloseReasonHardStop, d.Reason)
	assert.Equal(t, SourceHardStop, d.Source)
	assert.False(t, advisor.called)
}

func TestDecide_HardStopBoundary(t *testing.T) {
	e := newEngine(t, nil)

	pos := testPosition()
	pos.UnrealizedPnLPct = -50 // exactly at the threshold triggers
	d := e.Decide(context.Background(), pos, testSnapshot(), testNow)
	assert.True(t, d.Close)
	assert.Equal(t, domain.CloseReasonHardStop, d.Reason)

	pos.UnrealizedPnLPct = -49.9
	d = e.Decide(context.Background(), pos, testSnapshot(), testNow)
	assert.NotEqual(t, domain.CloseReasonHardStop, d.Reason)
}

func TestDecide_ExpirationBeforeAdvisory(t *testing.T) {
	advisor := &mockAdvisor{decision: &ports.AdvisoryDecision{Verdict: ports.AdvisoryHold}}
	e := newEngine(t, advisor)

	pos := testPosition()
	pos.Expiration = testNow // same calendar day, DTE 0

	d := e.Decide(context.Background(), pos, testSnapshot(), testNow)
	assert.True(t, d.Close)
	assert.Equal(t, domain.CloseReasonExpiration, d.Reason)
	assert.Equal(t, SourceExpiration, d.Source)
	assert.False(t, advisor.called)
}

func TestDecide_AdvisoryClose(t *testing.T) {
	advisor := &mockAdvisor{decision: &ports.AdvisoryDecision{Verdict: ports.AdvisoryClose, Reason: "momentum fading"}}
	e := newEngine(t, advisor)

	d := e.Decide(context.Background(), testPosition(), testSnapshot(), testNow)
	assert.True(t, d.Close)
	assert.Equal(t, domain.CloseReasonAdvisory, d.Reason)
	assert.Equal(t, "momentum fading", d.Detail)
	assert.Equal(t, SourceAdvisory, d.Source)
}

func TestDecide_AdvisoryHoldShortCircuitsFallback(t *testing.T) {
	advisor := &mockAdvisor{decision: &ports.AdvisoryDecision{Verdict: ports.AdvisoryHold, Reason: "thesis intact"}}
	e := newEngine(t, advisor)

	// Fallback would close on profit target; advisory hold takes precedence.
	pos := testPosition()
	pos.UnrealizedPnLPct = 55

	d := e.Decide(context.Background(), pos, testSnapshot(), testNow)
	assert.False(t, d.Close)
	assert.Equal(t, SourceAdvisory, d.Source)
}

func TestDecide_AdvisoryContextCarriesBothReadings(t *testing.T) {
	advisor := &mockAdvisor{decision: &ports.AdvisoryDecision{Verdict: ports.AdvisoryHold}}
	e := newEngine(t, advisor)

	snap := testSnapshot()
	e.Decide(context.Background(), testPosition(), snap, testNow)

	require.True(t, advisor.called)
	assert.Equal(t, -1.2e9, advisor.lastCtx.EntryNetGEX)
	assert.Equal(t, snap.NetGEX, advisor.lastCtx.CurrentNetGEX)
	assert.Equal(t, snap.FlipPoint, advisor.lastCtx.CurrentFlipPoint)
	assert.Equal(t, 10, advisor.lastCtx.DaysToExpiration)
}

func TestDecide_AdvisoryFailuresFallThrough(t *testing.T) {
	tests := []struct {
		name    string
		advisor *mockAdvisor
	}{
		{name: "error", advisor: &mockAdvisor{err: errors.New("llm down")}},
		{name: "nil decision", advisor: &mockAdvisor{}},
		{name: "unknown verdict", advisor: &mockAdvisor{decision: &ports.AdvisoryDecision{Verdict: "MAYBE"}}},
		{name: "timeout", advisor: &mockAdvisor{delay: time.Second, decision: &ports.AdvisoryDecision{Verdict: ports.AdvisoryClose}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t, tt.advisor)
			// Profit target hit, so the fallback closes.
			pos := testPosition()
			pos.UnrealizedPnLPct = 55

			d := e.Decide(context.Background(), pos, testSnapshot(), testNow)
			assert.True(t, d.Close)
			assert.Equal(t, domain.CloseReasonProfitTarget, d.Reason)
			assert.Equal(t, SourceFallback, d.Source)
		})
	}
}

func TestDecide_NilAdvisorUsesFallback(t *testing.T) {
	e := newEngine(t, nil)
	d := e.Decide(context.Background(), testPosition(), testSnapshot(), testNow)
	assert.False(t, d.Close)
	assert.Equal(t, SourceFallback, d.Source)
}

func TestFallbackRules_Priority(t *testing.T) {
	e := newEngine(t, nil)

	t.Run("profit target", func(t *testing.T) {
		pos := testPosition()
		pos.UnrealizedPnLPct = 50
		d := e.FallbackRules(pos, testSnapshot(), testNow)
		assert.True(t, d.Close)
		assert.Equal(t, domain.CloseReasonProfitTarget, d.Reason)
	})

	t.Run("stop loss", func(t *testing.T) {
		pos := testPosition()
		pos.UnrealizedPnLPct = -20
		d := e.FallbackRules(pos, testSnapshot(), testNow)
		assert.True(t, d.Close)
		assert.Equal(t, domain.CloseReasonStopLoss, d.Reason)
	})

	t.Run("near expiry", func(t *testing.T) {
		pos := testPosition()
		pos.Expiration = testNow.Add(24 * time.Hour) // 1 DTE
		d := e.FallbackRules(pos, testSnapshot(), testNow)
		assert.True(t, d.Close)
		assert.Equal(t, domain.CloseReasonNearExpiry, d.Reason)
	})

	t.Run("gex flip closes despite flat pnl", func(t *testing.T) {
		// Entered short-gamma at -1.2e9; dealers have since flipped long.
		pos := testPosition()
		pos.UnrealizedPnLPct = 2
		snap := testSnapshot()
		snap.NetGEX = 8.0e8

		d := e.FallbackRules(pos, snap, testNow)
		assert.True(t, d.Close)
		assert.Equal(t, domain.CloseReasonGEXFlip, d.Reason)
		assert.Contains(t, d.Detail, "thesis invalidated")
	})

	t.Run("zero gex reading is not a flip", func(t *testing.T) {
		pos := testPosition()
		snap := testSnapshot()
		snap.NetGEX = 0

		d := e.FallbackRules(pos, snap, testNow)
		assert.False(t, d.Close)
	})

	t.Run("hold", func(t *testing.T) {
		d := e.FallbackRules(testPosition(), testSnapshot(), testNow)
		assert.False(t, d.Close)
		assert.Equal(t, SourceFallback, d.Source)
	})
}

func TestProfitThresholds(t *testing.T) {
	tests := []struct {
		confidence   float64
		wantTarget   float64
		wantStopLoss float64
	}{
		{confidence: 95, wantTarget: 50, wantStopLoss: 20},
		{confidence: 80, wantTarget: 50, wantStopLoss: 20},
		{confidence: 79.9, wantTarget: 40, wantStopLoss: 25},
		{confidence: 60, wantTarget: 40, wantStopLoss: 25},
		{confidence: 59.9, wantTarget: 30, wantStopLoss: 30},
		{confidence: 0, wantTarget: 30, wantStopLoss: 30},
	}
	for _, tt := range tests {
		target, stop := ProfitThresholds(tt.confidence)
		assert.Equal(t, tt.wantTarget, target, "confidence %.1f", tt.confidence)
		assert.Equal(t, tt.wantStopLoss, stop, "confidence %.1f", tt.confidence)
	}
}
