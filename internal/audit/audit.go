// Package audit records reconciliation lifecycle events. Recording never
// blocks or fails the operation that produced the event.
package audit

import (
	"context"
	"time"
)

// EventType names a lifecycle transition.
type EventType string

const (
	// EventCommitted is emitted after a reconciliation is committed.
	EventCommitted EventType = "reconciliation.committed"
	// EventReversed is emitted after a reconciliation is reversed.
	EventReversed EventType = "reconciliation.reversed"
)

// Event is one audit log line.
type Event struct {
	ID                string                 `json:"id"`
	CompanyID         string                 `json:"company_id"`
	Type              EventType              `json:"type"`
	ReconciliationID  string                 `json:"reconciliation_id"`
	BankTransactionID string                 `json:"bank_transaction_id"`
	Actor             string                 `json:"actor,omitempty"`
	Data              map[string]interface{} `json:"data,omitempty"`
	OccurredAt        time.Time              `json:"occurred_at"`
}

// Logger accepts events fire-and-forget.
type Logger interface {
	Record(ctx context.Context, e Event)
}

// Sink persists events somewhere. Sinks may fail; the dispatcher retries and
// then logs.
type Sink interface {
	Name() string
	Write(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

// Name implements Sink.
func (f SinkFunc) Name() string { return "func" }

// Write implements Sink.
func (f SinkFunc) Write(ctx context.Context, e Event) error { return f(ctx, e) }

// Nop discards events.
type Nop struct{}

// Record implements Logger.
func (Nop) Record(context.Context, Event) {}

var _ Logger = Nop{}
