package audit

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSink writes events as structured log lines.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a sink writing to log.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

// Name implements Sink.
func (s *LogSink) Name() string { return "log" }

// Write implements Sink.
func (s *LogSink) Write(ctx context.Context, e Event) error {
	ev := s.log.Info().
		Str("event_id", e.ID).
		Str("type", string(e.Type)).
		Str("company_id", e.CompanyID).
		Str("reconciliation_id", e.ReconciliationID).
		Str("transaction_id", e.BankTransactionID).
		Time("occurred_at", e.OccurredAt)
	if e.Actor != "" {
		ev = ev.Str("actor", e.Actor)
	}
	if len(e.Data) > 0 {
		ev = ev.Fields(e.Data)
	}
	ev.Msg("Reconciliation audit event")
	return nil
}

var _ Sink = (*LogSink)(nil)
