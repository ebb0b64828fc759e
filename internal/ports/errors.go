package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General
	ErrNotFound      = errors.New("resource not found")
	ErrTimeout       = errors.New("operation timed out")
	ErrConfiguration = errors.New("invalid or missing configuration")

	// Trading
	ErrInvalidQuote        = errors.New("invalid quote (bid/ask non-positive or crossed)")
	ErrInsufficientCapital = errors.New("insufficient available capital")
	ErrDuplicateTrade      = errors.New("duplicate trade rejected (same contract already opened today)")
	ErrRiskLimitBreached   = errors.New("risk limit breached")

	// External collaborators
	ErrServiceUnavailable    = errors.New("external service unavailable")
	ErrAdvisoryUnavailable   = errors.New("advisory capability unavailable")
	ErrPersistenceFailure    = errors.New("persistence operation failed")
	ErrTransactionRolledBack = errors.New("close transaction rolled back")
)
