package ports

import "context"

// AdvisoryVerdict is the closed set of answers the advisory capability may give.
type AdvisoryVerdict string

const (
	AdvisoryHold  AdvisoryVerdict = "HOLD"
	AdvisoryClose AdvisoryVerdict = "CLOSE"
)

// AdvisoryContext is the structured position context handed to the advisory
// capability when deciding whether to hold or close.
type AdvisoryContext struct {
	Symbol           string
	Strategy         string
	Thesis           string
	EntryPrice       float64
	CurrentPrice     float64
	EntrySpot        float64
	CurrentSpot      float64
	EntryNetGEX      float64
	CurrentNetGEX    float64
	EntryFlipPoint   float64
	CurrentFlipPoint float64
	UnrealizedPnLPct float64
	DaysToExpiration int
}

// AdvisoryDecision is the advisory's answer.
type AdvisoryDecision struct {
	Verdict AdvisoryVerdict
	Reason  string
}

// Advisor is the opaque hold/close advisory capability. It may be slow,
// erroring, or entirely unavailable; callers must budget a timeout and fall
// back to deterministic rules on any non-decision outcome.
type Advisor interface {
	Decide(ctx context.Context, actx AdvisoryContext) (*AdvisoryDecision, error)
}
