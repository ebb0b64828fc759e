package domain

import "time"

// ContractMultiplier is the standard index option contract multiplier.
const ContractMultiplier = 100.0

// EntryDateLayout is the calendar-date key used by the same-day duplicate guard.
const EntryDateLayout = "2006-01-02"

// OpenPosition represents a live paper position. It is created by the trade
// executor, its mark fields are mutated only by the position manager refresh,
// and it is destroyed by conversion into a ClosedTrade.
type OpenPosition struct {
	ID         int64
	Symbol     string
	Strategy   string // strategy label the position was entered under
	Action     TradeAction
	OptionType OptionType
	Strike     float64
	Expiration time.Time
	Contracts  int

	// Entry snapshot, immutable after creation.
	EntryPrice      float64
	EntryBid        float64
	EntryAsk        float64
	EntrySpot       float64
	EntryCommission float64
	EntryGreeks     Greeks
	EntryIV         float64
	EntryNetGEX     float64
	EntryFlipPoint  float64
	Confidence      float64 // 0..100
	Thesis          string
	ProfitTargetPct float64 // confidence-tiered, derived at entry
	StopLossPct     float64
	EntryTime       time.Time

	// Mark-to-market fields, refreshed each management pass.
	CurrentPrice     float64
	CurrentSpot      float64
	UnrealizedPnL    float64
	UnrealizedPnLPct float64
}

// Notional returns the premium paid at entry, excluding commission.
func (p *OpenPosition) Notional() float64 {
	return p.EntryPrice * float64(p.Contracts) * ContractMultiplier
}

// CostBasis returns the capital consumed by the position, commission included.
func (p *OpenPosition) CostBasis() float64 {
	return p.Notional() + p.EntryCommission
}

// EntryDate returns the UTC calendar date of entry, used by the duplicate guard.
func (p *OpenPosition) EntryDate() string {
	return p.EntryTime.UTC().Format(EntryDateLayout)
}

// DaysToExpiration returns whole calendar days until expiration. Same-day
// expiration yields 0, a past expiration is negative.
func (p *OpenPosition) DaysToExpiration(now time.Time) int {
	expDay := p.Expiration.UTC().Truncate(24 * time.Hour)
	nowDay := now.UTC().Truncate(24 * time.Hour)
	return int(expDay.Sub(nowDay).Hours() / 24)
}

// GEXFlipped reports whether the net gamma exposure sign has flipped since entry.
func (p *OpenPosition) GEXFlipped(currentNetGEX float64) bool {
	return GEXSignFlipped(p.EntryNetGEX, currentNetGEX)
}
