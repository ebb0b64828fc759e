package exits

// ProfitThresholds returns the confidence-tiered profit target and stop loss
// percentages applied to a new position. Higher-conviction entries are given
// more room to run and a tighter stop.
func ProfitThresholds(confidence float64) (targetPct, stopPct float64) {
	switch {
	case confidence >= 80:
		return 50, 20
	case confidence >= 60:
		return 40, 25
	default:
		return 30, 30
	}
}
