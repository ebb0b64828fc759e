package domain

import "time"

// RegimeKind is the closed set of dealer-gamma regime classifications
// produced upstream. The engine never derives these itself.
type RegimeKind string

const (
	RegimePositiveGamma RegimeKind = "positive_gamma"
	RegimeNegativeGamma RegimeKind = "negative_gamma"
	RegimeNearFlip      RegimeKind = "near_flip"
	RegimeUnknown       RegimeKind = "unknown"
)

// MarketSnapshot is the live dealer-positioning picture for a symbol.
type MarketSnapshot struct {
	Symbol    string
	SpotPrice float64
	NetGEX    float64 // aggregate dealer gamma exposure, signed
	FlipPoint float64 // spot level where aggregate gamma crosses zero
	CallWall  float64
	PutWall   float64
	Timestamp time.Time
}

// GEXSignFlipped reports whether the net gamma exposure sign differs between
// two readings. A zero reading on either side is treated as no flip.
func GEXSignFlipped(entry, current float64) bool {
	if entry == 0 || current == 0 {
		return false
	}
	return (entry > 0) != (current > 0)
}

// RegimeSignal is the categorical output of the upstream classifier that the
// executor turns into a sized trade.
type RegimeSignal struct {
	Symbol     string
	Strategy   string // strategy label, e.g. "negative_gamma_breakout"
	Regime     RegimeKind
	Action     TradeAction
	Strike     float64
	OptionType OptionType
	Expiration time.Time
	Confidence float64 // 0..100
	Volatility VolatilityRegime
	Thesis     string // free-text rationale, passed to the advisory on exit
	Snapshot   MarketSnapshot
}
