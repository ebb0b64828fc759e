package domain

import "time"

// AuditEventType enumerates the append-only audit log entry kinds.
type AuditEventType string

const (
	AuditTradeOpened    AuditEventType = "trade_opened"
	AuditTradeClosed    AuditEventType = "trade_closed"
	AuditTradeRejected  AuditEventType = "trade_rejected"
	AuditEquitySnapshot AuditEventType = "equity_snapshot"
)

// AuditEvent is a single append-only audit log entry. Payload is a
// JSON-encoded detail blob; the log is write-only from the engine's view.
type AuditEvent struct {
	ID        string // uuid
	Type      AuditEventType
	Payload   string
	CreatedAt time.Time
}
