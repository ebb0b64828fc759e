// Package backtest gates new entries on historical per-strategy performance
// and aggregates closed trades into the statistics that feed back into sizing.
package backtest

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"gammaTradeBot/internal/domain"
	"gammaTradeBot/internal/ports"
)

// Defaults used when a strategy has no recorded history yet.
const (
	DefaultWinRate = 0.55
	DefaultAvgWin  = 8.0
	DefaultAvgLoss = 12.0

	// KellyCap bounds the applied Kelly fraction.
	KellyCap = 0.25
	// ProvenKellyScale and UnprovenKellyScale discount raw Kelly to applied Kelly.
	ProvenKellyScale   = 0.5
	UnprovenKellyScale = 0.25

	// Sizing multipliers by gating outcome.
	ProvenMultiplier   = 1.0
	UnprovenMultiplier = 0.5
)

// qualifierTokens are label suffixes/prefixes stripped by CoreToken so that
// e.g. "negative_gamma_breakout_v2" and "negative_gamma_breakout_signal"
// resolve to the same stats row.
var qualifierTokens = map[string]struct{}{
	"signal": {}, "strategy": {}, "setup": {}, "trade": {},
	"v1": {}, "v2": {}, "v3": {}, "test": {}, "live": {}, "paper": {},
}

// ValidatorConfig holds the gating policy parameters.
type ValidatorConfig struct {
	ProvenTradeThreshold int     // default 10
	MinWinRate           float64 // default 0.40
}

// Validation is the gating outcome for a single entry attempt.
type Validation struct {
	Strategy       string
	MatchedLabel   string // stats row the lookup resolved to, "" on total miss
	ShouldTrade    bool
	Reason         string
	SizeMultiplier float64
	Proven         bool
	WinRate        float64
	Kelly          float64 // raw Kelly fraction, floored at 0
	AppliedKelly   float64 // discounted Kelly, capped at KellyCap
}

// Validator decides go/no-go plus a sizing multiplier from historical stats.
type Validator struct {
	stats  ports.StatsRepository
	logger ports.Logger
	cfg    ValidatorConfig
}

// NewValidator creates a backtest validator.
func NewValidator(stats ports.StatsRepository, log ports.Logger, cfg ValidatorConfig) (*Validator, error) {
	if stats == nil || log == nil {
		return nil, fmt.Errorf("%w: validator requires stats repository and logger", ports.ErrConfiguration)
	}
	if cfg.ProvenTradeThreshold <= 0 {
		cfg.ProvenTradeThreshold = 10
	}
	if cfg.MinWinRate <= 0 {
		cfg.MinWinRate = 0.40
	}
	return &Validator{stats: stats, logger: log, cfg: cfg}, nil
}

// NormalizeLabel lowercases a strategy label and collapses every run of
// non-alphanumeric characters into a single underscore.
func NormalizeLabel(label string) string {
	var sb strings.Builder
	lastUnderscore := true // trim leading separators
	for _, r := range strings.ToLower(strings.TrimSpace(label)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			lastUnderscore = false
		} else if !lastUnderscore {
			sb.WriteRune('_')
			lastUnderscore = true
		}
	}
	return strings.TrimRight(sb.String(), "_")
}

// CoreToken reduces a label to its core identity by normalizing and dropping
// qualifier tokens. Matching on core tokens replaces ad hoc substring scans:
// the rules are enumerable and testable.
func CoreToken(label string) string {
	parts := strings.Split(NormalizeLabel(label), "_")
	core := parts[:0]
	for _, p := range parts {
		if _, ok := qualifierTokens[p]; ok {
			continue
		}
		if p == "" {
			continue
		}
		core = append(core, p)
	}
	return strings.Join(core, "_")
}

// Validate returns the gating decision for a strategy label.
//
// Lookup order: exact label, then normalized label, then core-token match
// across all stored stats. A total miss yields conservative defaults
// (55% win rate, unproven).
func (v *Validator) Validate(ctx context.Context, label string) (*Validation, error) {
	stats, matched, err := v.lookup(ctx, label)
	if err != nil {
		return nil, err
	}

	val := &Validation{Strategy: label, MatchedLabel: matched}

	winRate := DefaultWinRate
	avgWin := DefaultAvgWin
	avgLoss := DefaultAvgLoss
	trades := 0
	expectancy := 0.0
	if stats != nil {
		trades = stats.Trades
		winRate = stats.WinRate
		expectancy = stats.Expectancy
		if stats.AvgWin > 0 {
			avgWin = stats.AvgWin
		}
		if stats.AvgLoss > 0 {
			avgLoss = stats.AvgLoss
		}
	}

	val.Proven = trades >= v.cfg.ProvenTradeThreshold
	val.WinRate = winRate
	val.Kelly = kellyFraction(winRate, avgWin, avgLoss)
	scale := UnprovenKellyScale
	if val.Proven {
		scale = ProvenKellyScale
	}
	val.AppliedKelly = math.Min(val.Kelly*scale, KellyCap)

	switch {
	case val.Proven && expectancy <= 0:
		val.ShouldTrade = false
		val.Reason = fmt.Sprintf("proven strategy has non-positive expectancy (%.2f over %d trades)", expectancy, trades)
	case val.Proven && winRate < v.cfg.MinWinRate:
		val.ShouldTrade = false
		val.Reason = fmt.Sprintf("proven strategy win rate %.1f%% below %.1f%% floor", winRate*100, v.cfg.MinWinRate*100)
	case val.Proven:
		val.ShouldTrade = true
		val.SizeMultiplier = ProvenMultiplier
		val.Reason = fmt.Sprintf("proven: %d trades, %.1f%% win rate, expectancy %.2f", trades, winRate*100, expectancy)
	default:
		val.ShouldTrade = true
		val.SizeMultiplier = UnprovenMultiplier
		val.Reason = fmt.Sprintf("unproven (%d/%d trades), sizing at half weight", trades, v.cfg.ProvenTradeThreshold)
	}

	v.logger.Debug(ctx, "Backtest validation", map[string]interface{}{
		"strategy":    label,
		"matched":     matched,
		"shouldTrade": val.ShouldTrade,
		"multiplier":  val.SizeMultiplier,
		"kelly":       val.Kelly,
		"reason":      val.Reason,
	})
	return val, nil
}

func (v *Validator) lookup(ctx context.Context, label string) (*domain.StrategyStats, string, error) {
	// Exact label.
	stats, err := v.stats.Get(ctx, label)
	if err != nil {
		return nil, "", fmt.Errorf("stats lookup for %q: %w", label, err)
	}
	if stats != nil {
		return stats, stats.Strategy, nil
	}

	// Normalized label.
	if norm := NormalizeLabel(label); norm != label {
		stats, err = v.stats.Get(ctx, norm)
		if err != nil {
			return nil, "", fmt.Errorf("stats lookup for %q: %w", norm, err)
		}
		if stats != nil {
			return stats, stats.Strategy, nil
		}
	}

	// Core-token match across all stored labels.
	core := CoreToken(label)
	if core == "" {
		return nil, "", nil
	}
	all, err := v.stats.GetAll(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("stats scan: %w", err)
	}
	for _, s := range all {
		if CoreToken(s.Strategy) == core {
			return s, s.Strategy, nil
		}
	}
	return nil, "", nil
}

// kellyFraction computes the raw Kelly criterion, floored at 0. Missing
// payoff data degrades to zero rather than a division blowup.
func kellyFraction(winRate, avgWin, avgLoss float64) float64 {
	if avgWin <= 0 || avgLoss <= 0 {
		return 0
	}
	payoff := avgWin / avgLoss
	k := winRate - (1-winRate)/payoff
	return math.Max(k, 0)
}

// RecordTrade folds a closed trade into the strategy's stats row, creating
// the row on first close. This is the feedback half of the validator's
// bidirectional coupling with the trade record.
func (v *Validator) RecordTrade(ctx context.Context, trade *domain.ClosedTrade) error {
	stats, err := v.stats.Get(ctx, trade.Strategy)
	if err != nil {
		return fmt.Errorf("stats lookup for %q: %w", trade.Strategy, err)
	}
	if stats == nil {
		stats = &domain.StrategyStats{Strategy: trade.Strategy}
	}

	stats.Trades++
	stats.TotalPnL += trade.RealizedPnL
	if trade.RealizedPnL > 0 {
		stats.Wins++
		stats.AvgWin = stats.AvgWin + (trade.RealizedPnL-stats.AvgWin)/float64(stats.Wins)
	} else {
		stats.Losses++
		loss := -trade.RealizedPnL
		stats.AvgLoss = stats.AvgLoss + (loss-stats.AvgLoss)/float64(stats.Losses)
	}
	stats.WinRate = float64(stats.Wins) / float64(stats.Trades)
	stats.Expectancy = stats.WinRate*stats.AvgWin - (1-stats.WinRate)*stats.AvgLoss
	stats.UpdatedAt = time.Now().UTC()

	if err := v.stats.Upsert(ctx, stats); err != nil {
		return fmt.Errorf("stats upsert for %q: %w", trade.Strategy, err)
	}
	v.logger.Debug(ctx, "Strategy stats updated", map[string]interface{}{
		"strategy":   stats.Strategy,
		"trades":     stats.Trades,
		"winRate":    stats.WinRate,
		"expectancy": stats.Expectancy,
	})
	return nil
}
