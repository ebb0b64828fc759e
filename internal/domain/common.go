package domain

// OrderSide represents the side of a simulated fill (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// OptionType distinguishes calls from puts.
type OptionType string

const (
	Call OptionType = "CALL"
	Put  OptionType = "PUT"
)

// TradeAction is the directional instruction carried by a regime signal.
// The engine only opens long premium positions.
type TradeAction string

const (
	ActionBuyCall TradeAction = "BUY_CALL"
	ActionBuyPut  TradeAction = "BUY_PUT"
)

// OptionType returns the option leg implied by the action.
func (a TradeAction) OptionType() OptionType {
	if a == ActionBuyPut {
		return Put
	}
	return Call
}

// VolatilityRegime is the upstream volatility classification used for sizing.
type VolatilityRegime string

const (
	VolLow     VolatilityRegime = "low"
	VolNormal  VolatilityRegime = "normal"
	VolHigh    VolatilityRegime = "high"
	VolExtreme VolatilityRegime = "extreme"
)

// CloseReason indicates why a position was closed.
type CloseReason string

const (
	CloseReasonHardStop     CloseReason = "HARD_STOP"
	CloseReasonExpiration   CloseReason = "EXPIRATION"
	CloseReasonAdvisory     CloseReason = "ADVISORY"
	CloseReasonProfitTarget CloseReason = "PROFIT_TARGET"
	CloseReasonStopLoss     CloseReason = "STOP_LOSS"
	CloseReasonNearExpiry   CloseReason = "NEAR_EXPIRY"
	CloseReasonGEXFlip      CloseReason = "GEX_FLIP"
	CloseReasonManual       CloseReason = "MANUAL"
	CloseReasonUnknown      CloseReason = "UNKNOWN"
)

// Urgency grades outbound notifications.
type Urgency string

const (
	UrgencyInfo     Urgency = "info"
	UrgencyWarning  Urgency = "warning"
	UrgencyCritical Urgency = "critical"
)
