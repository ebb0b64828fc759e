// Package executor turns an approved regime signal into a persisted open
// position. The whole precondition/risk-check/insert sequence runs under one
// mutex so the duplicate guard is race-free; management of existing positions
// never takes this lock.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"gammaTradeBot/internal/adapters/telemetry"
	"gammaTradeBot/internal/backtest"
	"gammaTradeBot/internal/costmodel"
	"gammaTradeBot/internal/domain"
	"gammaTradeBot/internal/exits"
	"gammaTradeBot/internal/ledger"
	"gammaTradeBot/internal/ports"
	"gammaTradeBot/internal/sizing"
)

// Rejection reason categories, used for metrics labels.
const (
	RejectInvalidQuote = "invalid_quote"
	RejectValidator    = "validator"
	RejectDuplicate    = "duplicate"
	RejectSizing       = "sizing"
	RejectRiskLimit    = "risk_limit"
)

// Config holds the executor's risk limits.
type Config struct {
	MaxPositionPct  float64 // entry cost basis vs available capital
	MaxDeltaPct     float64 // portfolio delta notional vs equity
	MaxDailyTrades  int
	MaxDailyLossPct float64 // realized loss today vs starting capital
	MaxDrawdownPct  float64 // realized equity drawdown from peak
}

// Result reports the outcome of one execution attempt. Rejected attempts are
// recorded with a reason, never silently dropped.
type Result struct {
	Accepted   bool
	PositionID int64
	Reason     string
	RejectKind string // one of the Reject* categories when not accepted
	Position   *domain.OpenPosition
	Decision   *sizing.Decision
}

// Executor validates preconditions and risk limits, then atomically opens a
// position record.
type Executor struct {
	mu sync.Mutex

	cfg       Config
	cost      *costmodel.Model
	ledger    *ledger.Ledger
	validator *backtest.Validator
	sizer     *sizing.Sizer
	pricing   ports.OptionPricingProvider
	positions ports.PositionRepository
	trades    ports.TradeRepository
	audit     ports.AuditLogRepository
	metrics   *telemetry.Metrics // optional
	logger    ports.Logger
	now       func() time.Time
}

// Deps bundles the executor's collaborators.
type Deps struct {
	Cost      *costmodel.Model
	Ledger    *ledger.Ledger
	Validator *backtest.Validator
	Sizer     *sizing.Sizer
	Pricing   ports.OptionPricingProvider
	Positions ports.PositionRepository
	Trades    ports.TradeRepository
	Audit     ports.AuditLogRepository
	Metrics   *telemetry.Metrics
	Logger    ports.Logger
	Now       func() time.Time
}

// New creates a trade executor.
func New(deps Deps, cfg Config) (*Executor, error) {
	if deps.Cost == nil || deps.Ledger == nil || deps.Validator == nil || deps.Sizer == nil ||
		deps.Pricing == nil || deps.Positions == nil || deps.Trades == nil || deps.Logger == nil {
		return nil, fmt.Errorf("%w: executor missing required dependencies", ports.ErrConfiguration)
	}
	if cfg.MaxPositionPct <= 0 || cfg.MaxDailyTrades <= 0 || cfg.MaxDailyLossPct <= 0 || cfg.MaxDrawdownPct <= 0 || cfg.MaxDeltaPct <= 0 {
		return nil, fmt.Errorf("%w: executor risk limits must be positive", ports.ErrConfiguration)
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Executor{
		cfg:       cfg,
		cost:      deps.Cost,
		ledger:    deps.Ledger,
		validator: deps.Validator,
		sizer:     deps.Sizer,
		pricing:   deps.Pricing,
		positions: deps.Positions,
		trades:    deps.Trades,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       deps.Now,
	}, nil
}

// Execute attempts to open a position for the signal. A market-data failure
// returns an error wrapping ports.ErrServiceUnavailable, meaning "skip this
// cycle, retry next tick". Precondition and risk failures return a rejected
// Result with a nil error.
func (e *Executor) Execute(ctx context.Context, signal *domain.RegimeSignal) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	op := "execute"
	now := e.now()

	quote, err := e.pricing.GetQuote(ctx, signal.Symbol, signal.Strike, signal.OptionType, signal.Expiration)
	if err != nil {
		return nil, fmt.Errorf("%w: option quote for %s %g %s: %v", ports.ErrServiceUnavailable, signal.Symbol, signal.Strike, signal.OptionType, err)
	}

	// (a) Entry price must be positive and the quote sane.
	if quote.Bid <= 0 || quote.Ask <= 0 || quote.Bid > quote.Ask {
		return e.reject(ctx, signal, RejectInvalidQuote,
			fmt.Sprintf("invalid quote bid=%.4f ask=%.4f", quote.Bid, quote.Ask), nil), nil
	}

	// (b) Historical-performance gate.
	val, err := e.validator.Validate(ctx, signal.Strategy)
	if err != nil {
		return nil, fmt.Errorf("backtest validation: %w", err)
	}
	if !val.ShouldTrade {
		return e.reject(ctx, signal, RejectValidator, val.Reason, nil), nil
	}

	// (c) Duplicate guard: one entry per contract per day.
	entryDate := now.UTC().Format(domain.EntryDateLayout)
	existing, err := e.positions.FindOpenByContract(ctx, signal.Symbol, signal.Strike, signal.OptionType, signal.Expiration, entryDate)
	if err != nil {
		return nil, fmt.Errorf("duplicate guard lookup: %w", err)
	}
	if existing != nil {
		return e.reject(ctx, signal, RejectDuplicate,
			fmt.Sprintf("%v: position %d", ports.ErrDuplicateTrade, existing.ID), nil), nil
	}

	// Size off the midpoint; the realized fill below includes slippage.
	contracts, decision, err := e.sizer.Size(ctx, quote.Mid(), signal.Confidence, signal.Volatility, signal.Strategy)
	if err != nil {
		return nil, fmt.Errorf("sizing: %w", err)
	}
	if contracts == 0 {
		return e.reject(ctx, signal, RejectSizing, decision.Reason, decision), nil
	}

	fill, breakdown, err := e.cost.FillPrice(quote.Bid, quote.Ask, domain.Buy, contracts)
	if err != nil {
		return e.reject(ctx, signal, RejectInvalidQuote, err.Error(), decision), nil
	}
	commission := e.cost.Commission(contracts)

	// (d) Risk limits, checked against the realistic fill.
	if reason, err := e.checkRiskLimits(ctx, signal, quote, fill, contracts, commission, entryDate); err != nil {
		return nil, err
	} else if reason != "" {
		return e.reject(ctx, signal, RejectRiskLimit, reason, decision), nil
	}

	targetPct, stopPct := exits.ProfitThresholds(signal.Confidence)
	pos := &domain.OpenPosition{
		Symbol:          signal.Symbol,
		Strategy:        signal.Strategy,
		Action:          signal.Action,
		OptionType:      signal.OptionType,
		Strike:          signal.Strike,
		Expiration:      signal.Expiration,
		Contracts:       contracts,
		EntryPrice:      fill,
		EntryBid:        quote.Bid,
		EntryAsk:        quote.Ask,
		EntrySpot:       signal.Snapshot.SpotPrice,
		EntryCommission: commission,
		EntryGreeks:     quote.Greeks,
		EntryIV:         quote.ImpliedVol,
		EntryNetGEX:     signal.Snapshot.NetGEX,
		EntryFlipPoint:  signal.Snapshot.FlipPoint,
		Confidence:      signal.Confidence,
		Thesis:          signal.Thesis,
		ProfitTargetPct: targetPct,
		StopLossPct:     stopPct,
		EntryTime:       now,
		CurrentPrice:    fill,
		CurrentSpot:     signal.Snapshot.SpotPrice,
	}

	id, err := e.positions.Create(ctx, pos)
	if err != nil {
		if errors.Is(err, ports.ErrDuplicateTrade) {
			// Lost a race to the storage-layer uniqueness constraint;
			// expected and harmless.
			return e.reject(ctx, signal, RejectDuplicate, err.Error(), decision), nil
		}
		return nil, fmt.Errorf("persisting position: %w", err)
	}
	pos.ID = id

	e.appendAudit(ctx, domain.AuditTradeOpened, map[string]interface{}{
		"positionID": id,
		"symbol":     pos.Symbol,
		"strategy":   pos.Strategy,
		"contracts":  contracts,
		"fill":       fill,
		"commission": commission,
		"spreadCost": breakdown.SpreadCost,
		"impactBps":  breakdown.ImpactBps,
		"decisionID": decision.ID,
	})
	if e.metrics != nil {
		e.metrics.TradeOpened(pos.Strategy)
	}
	e.logger.Info(ctx, op+": position opened", map[string]interface{}{
		"positionID": id,
		"symbol":     pos.Symbol,
		"strategy":   pos.Strategy,
		"contracts":  contracts,
		"entryPrice": fill,
	})

	return &Result{Accepted: true, PositionID: id, Position: pos, Decision: decision}, nil
}

// checkRiskLimits returns a non-empty reason naming the breached limit, or ""
// when all limits pass.
func (e *Executor) checkRiskLimits(ctx context.Context, signal *domain.RegimeSignal, quote *domain.OptionQuote, fill float64, contracts int, commission float64, entryDate string) (string, error) {
	available, err := e.ledger.AvailableCapital(ctx)
	if err != nil {
		return "", fmt.Errorf("risk check capital: %w", err)
	}
	costBasis := fill*float64(contracts)*domain.ContractMultiplier + commission
	if costBasis > available*e.cfg.MaxPositionPct {
		return fmt.Sprintf("%v: position notional %.2f exceeds %.1f%% of available capital %.2f",
			ports.ErrRiskLimitBreached, costBasis, e.cfg.MaxPositionPct*100, available), nil
	}
	if costBasis > available {
		return fmt.Sprintf("%v: position notional %.2f exceeds available capital %.2f",
			ports.ErrInsufficientCapital, costBasis, available), nil
	}

	// Portfolio delta exposure, existing plus the candidate.
	open, err := e.positions.FindOpen(ctx)
	if err != nil {
		return "", fmt.Errorf("risk check open positions: %w", err)
	}
	deltaNotional := math.Abs(quote.Greeks.Delta) * float64(contracts) * domain.ContractMultiplier * signal.Snapshot.SpotPrice
	for _, p := range open {
		spot := p.CurrentSpot
		if spot == 0 {
			spot = p.EntrySpot
		}
		deltaNotional += math.Abs(p.EntryGreeks.Delta) * float64(p.Contracts) * domain.ContractMultiplier * spot
	}
	equity, err := e.ledger.Equity(ctx)
	if err != nil {
		return "", fmt.Errorf("risk check equity: %w", err)
	}
	if deltaNotional > equity*e.cfg.MaxDeltaPct {
		return fmt.Sprintf("%v: portfolio delta notional %.0f exceeds %.1f%% of equity %.2f",
			ports.ErrRiskLimitBreached, deltaNotional, e.cfg.MaxDeltaPct*100, equity), nil
	}

	// Daily trade count covers positions still open and those already closed.
	openedToday, err := e.positions.CountOpenedToday(ctx, entryDate)
	if err != nil {
		return "", fmt.Errorf("risk check daily count: %w", err)
	}
	closedEnteredToday, err := e.trades.CountEnteredToday(ctx, entryDate)
	if err != nil {
		return "", fmt.Errorf("risk check daily count: %w", err)
	}
	if openedToday+closedEnteredToday >= e.cfg.MaxDailyTrades {
		return fmt.Sprintf("%v: daily trade limit reached (%d/%d)",
			ports.ErrRiskLimitBreached, openedToday+closedEnteredToday, e.cfg.MaxDailyTrades), nil
	}

	starting, err := e.ledger.StartingCapital(ctx)
	if err != nil {
		return "", fmt.Errorf("risk check starting capital: %w", err)
	}
	pnlToday, err := e.trades.PnLClosedToday(ctx, entryDate)
	if err != nil {
		return "", fmt.Errorf("risk check daily pnl: %w", err)
	}
	if pnlToday <= -e.cfg.MaxDailyLossPct*starting {
		return fmt.Sprintf("%v: daily loss %.2f breaches %.1f%% of starting capital",
			ports.ErrRiskLimitBreached, pnlToday, e.cfg.MaxDailyLossPct*100), nil
	}

	// Realized drawdown from the equity peak.
	realized, err := e.ledger.RealizedPnL(ctx)
	if err != nil {
		return "", fmt.Errorf("risk check realized pnl: %w", err)
	}
	trades, err := e.trades.FindAll(ctx)
	if err != nil {
		return "", fmt.Errorf("risk check trade history: %w", err)
	}
	peak := starting
	running := starting
	for _, t := range trades {
		running += t.RealizedPnL
		if running > peak {
			peak = running
		}
	}
	current := starting + realized
	if peak > 0 {
		if dd := (peak - current) / peak; dd > e.cfg.MaxDrawdownPct {
			return fmt.Sprintf("%v: drawdown %.1f%% exceeds %.1f%% cap",
				ports.ErrRiskLimitBreached, dd*100, e.cfg.MaxDrawdownPct*100), nil
		}
	}

	return "", nil
}

// reject records a rejected attempt (audit, metrics, log) and returns it.
func (e *Executor) reject(ctx context.Context, signal *domain.RegimeSignal, kind, reason string, decision *sizing.Decision) *Result {
	e.appendAudit(ctx, domain.AuditTradeRejected, map[string]interface{}{
		"symbol":   signal.Symbol,
		"strategy": signal.Strategy,
		"kind":     kind,
		"reason":   reason,
	})
	if e.metrics != nil {
		e.metrics.TradeRejected(kind)
	}
	e.logger.Warn(ctx, "Trade rejected", map[string]interface{}{
		"symbol":   signal.Symbol,
		"strategy": signal.Strategy,
		"kind":     kind,
		"reason":   reason,
	})
	return &Result{Accepted: false, Reason: reason, RejectKind: kind, Decision: decision}
}

// appendAudit writes an audit event; audit failures are logged, never fatal.
func (e *Executor) appendAudit(ctx context.Context, typ domain.AuditEventType, payload map[string]interface{}) {
	if e.audit == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		e.logger.Error(ctx, err, "Failed to encode audit payload", map[string]interface{}{"type": typ})
		return
	}
	event := &domain.AuditEvent{
		ID:        uuid.NewString(),
		Type:      typ,
		Payload:   string(raw),
		CreatedAt: e.now(),
	}
	if err := e.audit.Append(ctx, event); err != nil {
		e.logger.Error(ctx, err, "Failed to append audit event", map[string]interface{}{"type": typ})
	}
}
