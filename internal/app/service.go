package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"

	"gammaTradeBot/config"
	"gammaTradeBot/internal/adapters/telemetry"
	"gammaTradeBot/internal/backtest"
	"gammaTradeBot/internal/costmodel"
	"gammaTradeBot/internal/domain"
	"gammaTradeBot/internal/executor"
	"gammaTradeBot/internal/exits"
	"gammaTradeBot/internal/ledger"
	"gammaTradeBot/internal/ports"
)

// Service orchestrates the position lifecycle: one bounded management pass
// over all open positions per tick, then a poll of the upstream classifier
// for a new entry signal.
type Service struct {
	cfg        *config.Config
	logger     ports.Logger
	market     ports.MarketDataProvider
	pricing    ports.OptionPricingProvider
	cost       *costmodel.Model
	exec       *executor.Executor
	exitEngine *exits.Engine
	ledger     *ledger.Ledger
	validator  *backtest.Validator
	positions  ports.PositionRepository
	trades     ports.TradeRepository
	audit      ports.AuditLogRepository
	notifier   ports.NotificationSink // optional
	metrics    *telemetry.Metrics     // optional
	now        func() time.Time
}

// Deps bundles the service's collaborators.
type Deps struct {
	Config     *config.Config
	Logger     ports.Logger
	Market     ports.MarketDataProvider
	Pricing    ports.OptionPricingProvider
	Cost       *costmodel.Model
	Executor   *executor.Executor
	ExitEngine *exits.Engine
	Ledger     *ledger.Ledger
	Validator  *backtest.Validator
	Positions  ports.PositionRepository
	Trades     ports.TradeRepository
	Audit      ports.AuditLogRepository
	Notifier   ports.NotificationSink
	Metrics    *telemetry.Metrics
	Now        func() time.Time
}

// NewService creates the orchestration service.
func NewService(deps Deps) (*Service, error) {
	if deps.Config == nil || deps.Logger == nil || deps.Market == nil || deps.Pricing == nil ||
		deps.Cost == nil || deps.Executor == nil || deps.ExitEngine == nil || deps.Ledger == nil ||
		deps.Validator == nil || deps.Positions == nil || deps.Trades == nil {
		return nil, fmt.Errorf("%w: service missing required dependencies", ports.ErrConfiguration)
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		cfg:        deps.Config,
		logger:     deps.Logger,
		market:     deps.Market,
		pricing:    deps.Pricing,
		cost:       deps.Cost,
		exec:       deps.Executor,
		exitEngine: deps.ExitEngine,
		ledger:     deps.Ledger,
		validator:  deps.Validator,
		positions:  deps.Positions,
		trades:     deps.Trades,
		audit:      deps.Audit,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		now:        deps.Now,
	}, nil
}

// Run drives the tick loop until the context is canceled or a shutdown
// signal arrives. Failed invocations back off rather than spinning.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info(ctx, "Starting position manager", map[string]interface{}{
		"symbol":       s.cfg.Symbol,
		"tickInterval": s.cfg.TickInterval.String(),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
		cancel()
	}()

	retry := &backoff.Backoff{
		Min:    s.cfg.TickInterval,
		Max:    10 * s.cfg.TickInterval,
		Factor: 2,
		Jitter: true,
	}

	for {
		wait := s.cfg.TickInterval
		if err := s.Tick(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			wait = retry.Duration()
			s.logger.Error(ctx, err, "Invocation failed, backing off", map[string]interface{}{
				"retryIn": wait.String(),
			})
		} else {
			retry.Reset()
		}

		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Position manager stopped")
			return nil
		case <-time.After(wait):
		}
	}
	s.logger.Info(ctx, "Position manager stopped")
	return nil
}

// Tick is one invocation: manage existing positions, then poll for a new
// entry signal. Expected to finish within the tick interval.
func (s *Service) Tick(ctx context.Context) error {
	if err := s.ManagePositions(ctx); err != nil {
		return err
	}
	s.pollSignal(ctx)
	return nil
}

// ManagePositions makes one bounded pass over all open positions: refresh,
// decide, close. Per-position failures are logged and never abort siblings;
// only a whole-invocation failure (the open-position query itself) propagates.
func (s *Service) ManagePositions(ctx context.Context) error {
	open, err := s.positions.FindOpen(ctx)
	if err != nil {
		return fmt.Errorf("%w: loading open positions: %v", ports.ErrPersistenceFailure, err)
	}

	snapshots := make(map[string]*domain.MarketSnapshot)
	closed := 0
	for _, pos := range open {
		if err := s.managePosition(ctx, pos, snapshots, &closed); err != nil {
			s.logger.Error(ctx, err, "Failed to manage position, continuing batch", map[string]interface{}{
				"positionID": pos.ID,
				"symbol":     pos.Symbol,
			})
		}
	}

	if s.metrics != nil {
		s.metrics.SetOpenPositions(len(open) - closed)
		if equity, err := s.ledger.Equity(ctx); err == nil {
			s.metrics.SetEquity(equity)
		}
	}
	s.logger.Debug(ctx, "Management pass complete", map[string]interface{}{
		"open":   len(open),
		"closed": closed,
	})
	return nil
}

// managePosition refreshes one position's marks, runs the exit engine, and
// closes when told to.
func (s *Service) managePosition(ctx context.Context, pos *domain.OpenPosition, snapshots map[string]*domain.MarketSnapshot, closed *int) error {
	now := s.now()

	snap, ok := snapshots[pos.Symbol]
	if !ok {
		cctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
		var err error
		snap, err = s.market.GetSnapshot(cctx, pos.Symbol)
		cancel()
		if err != nil {
			// Skip this position this cycle; the exit engine would be
			// deciding against stale context.
			return fmt.Errorf("%w: market snapshot for %s: %v", ports.ErrServiceUnavailable, pos.Symbol, err)
		}
		snapshots[pos.Symbol] = snap
	}

	cctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	quote, err := s.pricing.GetQuote(cctx, pos.Symbol, pos.Strike, pos.OptionType, pos.Expiration)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: quote for position %d: %v", ports.ErrServiceUnavailable, pos.ID, err)
	}

	// Mark at the realistic exit fill: selling the position at this size.
	mark, _, err := s.cost.FillPrice(quote.Bid, quote.Ask, domain.Sell, pos.Contracts)
	if err != nil {
		return fmt.Errorf("marking position %d: %w", pos.ID, err)
	}

	pos.CurrentPrice = mark
	pos.CurrentSpot = snap.SpotPrice
	pos.UnrealizedPnL = (mark-pos.EntryPrice)*float64(pos.Contracts)*domain.ContractMultiplier - pos.EntryCommission
	pos.UnrealizedPnLPct = (mark - pos.EntryPrice) / pos.EntryPrice * 100

	if err := s.positions.UpdateMark(ctx, pos); err != nil {
		// The in-memory marks are fresh; still decide, but surface the write failure.
		s.logger.Warn(ctx, "Failed to persist position refresh", map[string]interface{}{
			"positionID": pos.ID,
			"error":      err.Error(),
		})
	}

	decision := s.exitEngine.Decide(ctx, pos, snap, now)
	s.recordAdvisoryOutcome(decision)
	if !decision.Close {
		return nil
	}

	if err := s.closePosition(ctx, pos, decision, now); err != nil {
		return err
	}
	*closed++
	return nil
}

// closePosition converts an open position into a closed trade via the atomic
// close transaction, then fires the best-effort post-commit effects.
func (s *Service) closePosition(ctx context.Context, pos *domain.OpenPosition, decision exits.Decision, now time.Time) error {
	op := "closePosition"
	exitPrice := pos.CurrentPrice
	exitCommission := s.cost.Commission(pos.Contracts)
	realized := (exitPrice-pos.EntryPrice)*float64(pos.Contracts)*domain.ContractMultiplier - pos.EntryCommission - exitCommission

	trade := &domain.ClosedTrade{
		PositionID:      pos.ID,
		Symbol:          pos.Symbol,
		Strategy:        pos.Strategy,
		Action:          pos.Action,
		OptionType:      pos.OptionType,
		Strike:          pos.Strike,
		Expiration:      pos.Expiration,
		Contracts:       pos.Contracts,
		EntryPrice:      pos.EntryPrice,
		EntrySpot:       pos.EntrySpot,
		EntryCommission: pos.EntryCommission,
		EntryTime:       pos.EntryTime,
		Confidence:      pos.Confidence,
		ExitPrice:       exitPrice,
		ExitSpot:        pos.CurrentSpot,
		ExitCommission:  exitCommission,
		ExitTime:        now,
		CloseReason:     decision.Reason,
		ExitDetail:      decision.Detail,
		RealizedPnL:     realized,
		HoldDuration:    now.Sub(pos.EntryTime),
	}

	if _, err := s.trades.RecordClose(ctx, pos.ID, trade); err != nil {
		// The transaction rolled back; the position is still open and will
		// be retried next cycle rather than risk losing or duplicating it.
		return fmt.Errorf("close transaction for position %d: %w", pos.ID, err)
	}

	s.logger.Info(ctx, op+": position closed", map[string]interface{}{
		"positionID": pos.ID,
		"symbol":     pos.Symbol,
		"reason":     trade.CloseReason,
		"detail":     trade.ExitDetail,
		"pnl":        realized,
	})

	// Post-commit, best-effort secondary effects.
	if err := s.validator.RecordTrade(ctx, trade); err != nil {
		s.logger.Error(ctx, err, op+": strategy stats feedback failed", map[string]interface{}{"positionID": pos.ID})
	}
	s.snapshotEquity(ctx)
	if s.metrics != nil {
		s.metrics.TradeClosed(string(trade.CloseReason))
	}
	s.notify(ctx,
		fmt.Sprintf("Closed %s %s %g %s", pos.Symbol, pos.OptionType, pos.Strike, trade.CloseReason),
		fmt.Sprintf("%s | %d contracts | P&L %.2f | %s", pos.Strategy, pos.Contracts, realized, trade.ExitDetail),
		urgencyFor(realized))
	return nil
}

// pollSignal asks the upstream classifier for an actionable signal and hands
// it to the executor. Market-data failures mean "retry next tick".
func (s *Service) pollSignal(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	sig, err := s.market.GetSignal(cctx, s.cfg.Symbol)
	cancel()
	if err != nil {
		s.logger.Warn(ctx, "Signal poll failed, retrying next tick", map[string]interface{}{
			"symbol": s.cfg.Symbol,
			"error":  err.Error(),
		})
		return
	}
	if sig == nil {
		return
	}

	result, err := s.exec.Execute(ctx, sig)
	if err != nil {
		if errors.Is(err, ports.ErrServiceUnavailable) {
			s.logger.Warn(ctx, "Execution skipped this cycle", map[string]interface{}{"error": err.Error()})
			return
		}
		s.logger.Error(ctx, err, "Execution failed", map[string]interface{}{"strategy": sig.Strategy})
		return
	}
	if result.Accepted {
		pos := result.Position
		s.notify(ctx,
			fmt.Sprintf("Opened %s %s %g exp %s", pos.Symbol, pos.OptionType, pos.Strike, pos.Expiration.Format("2006-01-02")),
			fmt.Sprintf("%s | %d contracts @ %.2f | confidence %.0f", pos.Strategy, pos.Contracts, pos.EntryPrice, pos.Confidence),
			domain.UrgencyInfo)
	}
}

// snapshotEquity appends an equity snapshot to the audit log.
func (s *Service) snapshotEquity(ctx context.Context) {
	if s.audit == nil {
		return
	}
	equity, err := s.ledger.Equity(ctx)
	if err != nil {
		s.logger.Warn(ctx, "Equity snapshot skipped", map[string]interface{}{"error": err.Error()})
		return
	}
	available, _ := s.ledger.AvailableCapital(ctx)
	payload, err := json.Marshal(map[string]interface{}{
		"equity":    equity,
		"available": available,
	})
	if err != nil {
		return
	}
	event := &domain.AuditEvent{
		ID:        uuid.NewString(),
		Type:      domain.AuditEquitySnapshot,
		Payload:   string(payload),
		CreatedAt: s.now(),
	}
	if err := s.audit.Append(ctx, event); err != nil {
		s.logger.Warn(ctx, "Equity snapshot append failed", map[string]interface{}{"error": err.Error()})
	}
	if s.metrics != nil {
		s.metrics.SetEquity(equity)
	}
}

// notify sends a fire-and-forget notification; failures are logged and swallowed.
func (s *Service) notify(ctx context.Context, title, body string, urgency domain.Urgency) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, title, body, urgency); err != nil {
		s.logger.Warn(ctx, "Notification failed", map[string]interface{}{
			"title": title,
			"error": err.Error(),
		})
	}
}

func (s *Service) recordAdvisoryOutcome(decision exits.Decision) {
	if s.metrics == nil {
		return
	}
	switch decision.Source {
	case exits.SourceAdvisory:
		if decision.Close {
			s.metrics.AdvisoryOutcome("close")
		} else {
			s.metrics.AdvisoryOutcome("hold")
		}
	case exits.SourceFallback:
		s.metrics.AdvisoryOutcome("fallback")
	}
}

func urgencyFor(pnl float64) domain.Urgency {
	if pnl < 0 {
		return domain.UrgencyWarning
	}
	return domain.UrgencyInfo
}
