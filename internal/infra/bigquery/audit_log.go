package bigquery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/bank-reconciliation/internal/audit"
)

const auditTable = "reconciliation_audit_log"

// AuditEventRow mirrors a row of reconciliation_audit_log.
type AuditEventRow struct {
	ID                string              `bigquery:"id"`
	CompanyID         string              `bigquery:"company_id"`
	EventType         string              `bigquery:"event_type"`
	ReconciliationID  string              `bigquery:"reconciliation_id"`
	BankTransactionID string              `bigquery:"bank_transaction_id"`
	Actor             bigquery.NullString `bigquery:"actor"`
	Data              bigquery.NullJSON   `bigquery:"data"`
	OccurredAt        time.Time           `bigquery:"occurred_at"`
}

// NewAuditEventRow converts an audit event for streaming insert.
func NewAuditEventRow(e audit.Event) (*AuditEventRow, error) {
	row := &AuditEventRow{
		ID:                e.ID,
		CompanyID:         e.CompanyID,
		EventType:         string(e.Type),
		ReconciliationID:  e.ReconciliationID,
		BankTransactionID: e.BankTransactionID,
		Actor:             nullString(e.Actor),
		OccurredAt:        e.OccurredAt,
	}
	if len(e.Data) > 0 {
		b, err := json.Marshal(e.Data)
		if err != nil {
			return nil, fmt.Errorf("NewAuditEventRow: marshaling data: %w", err)
		}
		row.Data = bigquery.NullJSON{JSONVal: string(b), Valid: true}
	}
	return row, nil
}

// InsertAuditEventsWithClient streams rows into reconciliation_audit_log.
func InsertAuditEventsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, rows []*AuditEventRow) error {
	if len(rows) == 0 {
		return nil
	}
	inserter := client.DatasetInProject(ds.ProjectID, ds.DatasetID).Table(auditTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertAuditEvents: inserting rows: %w", err)
	}
	return nil
}

// AuditSink writes audit events to BigQuery.
type AuditSink struct {
	client *bigquery.Client
	ds     Dataset
}

var _ audit.Sink = (*AuditSink)(nil)

// Name implements audit.Sink.
func (s *AuditSink) Name() string { return "bigquery" }

// Write implements audit.Sink.
func (s *AuditSink) Write(ctx context.Context, e audit.Event) error {
	row, err := NewAuditEventRow(e)
	if err != nil {
		return err
	}
	return InsertAuditEventsWithClient(ctx, s.client, s.ds, []*AuditEventRow{row})
}
