package domain

import "time"

// Greeks is the per-contract sensitivity snapshot attached to a quote.
type Greeks struct {
	Delta float64
	Gamma float64
	Theta float64
	Vega  float64
}

// OptionQuote is a single option contract quote as returned by the pricing
// provider.
type OptionQuote struct {
	Symbol     string
	ContractID string
	Strike     float64
	OptionType OptionType
	Expiration time.Time
	Bid        float64
	Ask        float64
	Last       float64
	ImpliedVol float64
	Greeks     Greeks
	Timestamp  time.Time
}

// Mid returns the quote midpoint.
func (q *OptionQuote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}
