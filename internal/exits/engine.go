// Package exits decides, per open position, whether to close. Rules run in
// strict priority order: hard safety rules first, then the external advisory,
// then deterministic fallback rules when the advisory cannot answer. No rule
// mutates anything beyond the position under evaluation.
package exits

import (
	"context"
	"fmt"
	"time"

	"gammaTradeBot/internal/domain"
	"gammaTradeBot/internal/ports"
)

// Source identifies which stage of the engine produced a decision.
type Source string

const (
	SourceHardStop   Source = "hard_stop"
	SourceExpiration Source = "expiration"
	SourceAdvisory   Source = "advisory"
	SourceFallback   Source = "fallback"
)

// Decision is the engine's verdict for one position.
type Decision struct {
	Close  bool
	Reason domain.CloseReason
	Detail string
	Source Source
}

func hold(src Source, detail string) Decision {
	return Decision{Close: false, Source: src, Detail: detail}
}

// Config holds the exit engine parameters.
type Config struct {
	// HardStopPct is the unrealized loss percent that forces a close,
	// expressed positive (50 means close at -50%).
	HardStopPct float64
	// AdvisoryTimeout bounds the advisory call before falling back.
	AdvisoryTimeout time.Duration
}

// Engine evaluates exit rules for open positions.
type Engine struct {
	advisor ports.Advisor // nil disables the advisory stage entirely
	logger  ports.Logger
	cfg     Config
}

// New creates an exit decision engine. A nil advisor is allowed; the engine
// then always falls through to the deterministic rules.
func New(advisor ports.Advisor, log ports.Logger, cfg Config) (*Engine, error) {
	if log == nil {
		return nil, fmt.Errorf("%w: exit engine requires a logger", ports.ErrConfiguration)
	}
	if cfg.HardStopPct <= 0 {
		cfg.HardStopPct = 50
	}
	if cfg.AdvisoryTimeout <= 0 {
		cfg.AdvisoryTimeout = 10 * time.Second
	}
	return &Engine{advisor: advisor, logger: log, cfg: cfg}, nil
}

// Decide runs the priority-ordered state machine for one position. The
// position must carry refreshed mark fields; snap is the current market
// picture for its symbol.
func (e *Engine) Decide(ctx context.Context, pos *domain.OpenPosition, snap *domain.MarketSnapshot, now time.Time) Decision {
	// 1. Hard stop. Terminal, non-negotiable: no advisory opinion can
	// override capital protection.
	if pos.UnrealizedPnLPct <= -e.cfg.HardStopPct {
		return Decision{
			Close:  true,
			Reason: domain.CloseReasonHardStop,
			Detail: fmt.Sprintf("hard stop at %.1f%% loss, protect capital", pos.UnrealizedPnLPct),
			Source: SourceHardStop,
		}
	}

	// 2. Expiration. Terminal: avoid assignment/settlement.
	if dte := pos.DaysToExpiration(now); dte <= 0 {
		return Decision{
			Close:  true,
			Reason: domain.CloseReasonExpiration,
			Detail: "at expiration, avoid assignment/settlement",
			Source: SourceExpiration,
		}
	}

	// 3. Advisory, under a timeout budget.
	if e.advisor != nil {
		if d, ok := e.askAdvisory(ctx, pos, snap, now); ok {
			return d
		}
	}

	// 4. Deterministic fallback rules.
	return e.FallbackRules(pos, snap, now)
}

// askAdvisory invokes the advisory capability. The second return value is
// false on any non-decision outcome (error, timeout, malformed verdict),
// which sends the caller to the fallback rules.
func (e *Engine) askAdvisory(ctx context.Context, pos *domain.OpenPosition, snap *domain.MarketSnapshot, now time.Time) (Decision, bool) {
	actx := ports.AdvisoryContext{
		Symbol:           pos.Symbol,
		Strategy:         pos.Strategy,
		Thesis:           pos.Thesis,
		EntryPrice:       pos.EntryPrice,
		CurrentPrice:     pos.CurrentPrice,
		EntrySpot:        pos.EntrySpot,
		CurrentSpot:      pos.CurrentSpot,
		EntryNetGEX:      pos.EntryNetGEX,
		EntryFlipPoint:   pos.EntryFlipPoint,
		UnrealizedPnLPct: pos.UnrealizedPnLPct,
		DaysToExpiration: pos.DaysToExpiration(now),
	}
	if snap != nil {
		actx.CurrentNetGEX = snap.NetGEX
		actx.CurrentFlipPoint = snap.FlipPoint
	}

	cctx, cancel := context.WithTimeout(ctx, e.cfg.AdvisoryTimeout)
	defer cancel()

	decision, err := e.advisor.Decide(cctx, actx)
	if err != nil {
		e.logger.Warn(ctx, "Advisory unavailable, using fallback rules", map[string]interface{}{
			"positionID": pos.ID,
			"error":      err.Error(),
		})
		return Decision{}, false
	}
	if decision == nil {
		return Decision{}, false
	}

	switch decision.Verdict {
	case ports.AdvisoryClose:
		return Decision{
			Close:  true,
			Reason: domain.CloseReasonAdvisory,
			Detail: decision.Reason,
			Source: SourceAdvisory,
		}, true
	case ports.AdvisoryHold:
		return hold(SourceAdvisory, decision.Reason), true
	default:
		e.logger.Warn(ctx, "Advisory returned unknown verdict, using fallback rules", map[string]interface{}{
			"positionID": pos.ID,
			"verdict":    string(decision.Verdict),
		})
		return Decision{}, false
	}
}

// FallbackRules is the pure deterministic rule set applied when the advisory
// cannot answer. Order: profit target, stop loss, near expiry, thesis
// invalidation by GEX sign flip, else hold.
func (e *Engine) FallbackRules(pos *domain.OpenPosition, snap *domain.MarketSnapshot, now time.Time) Decision {
	if pos.UnrealizedPnLPct >= pos.ProfitTargetPct {
		return Decision{
			Close:  true,
			Reason: domain.CloseReasonProfitTarget,
			Detail: fmt.Sprintf("profit target %.0f%% reached (%.1f%%)", pos.ProfitTargetPct, pos.UnrealizedPnLPct),
			Source: SourceFallback,
		}
	}
	if pos.UnrealizedPnLPct <= -pos.StopLossPct {
		return Decision{
			Close:  true,
			Reason: domain.CloseReasonStopLoss,
			Detail: fmt.Sprintf("stop loss %.0f%% reached (%.1f%%)", pos.StopLossPct, pos.UnrealizedPnLPct),
			Source: SourceFallback,
		}
	}
	if dte := pos.DaysToExpiration(now); dte <= 1 {
		return Decision{
			Close:  true,
			Reason: domain.CloseReasonNearExpiry,
			Detail: fmt.Sprintf("%d day(s) to expiration", dte),
			Source: SourceFallback,
		}
	}
	if snap != nil && pos.GEXFlipped(snap.NetGEX) {
		return Decision{
			Close:  true,
			Reason: domain.CloseReasonGEXFlip,
			Detail: fmt.Sprintf("GEX flip: thesis invalidated (entry %.2e, now %.2e)", pos.EntryNetGEX, snap.NetGEX),
			Source: SourceFallback,
		}
	}
	return hold(SourceFallback, "no exit rule triggered")
}
