package notionsync

import (
	"context"
	"fmt"

	"github.com/dvloznov/bank-reconciliation/internal/audit"
)

// AuditSink appends audit events as pages of a Notion database.
type AuditSink struct {
	client     NotionService
	databaseID string
}

// NewAuditSink creates a sink writing to databaseID.
func NewAuditSink(client NotionService, databaseID string) *AuditSink {
	return &AuditSink{client: client, databaseID: databaseID}
}

// Name implements audit.Sink.
func (s *AuditSink) Name() string { return "notion" }

// Write implements audit.Sink.
func (s *AuditSink) Write(ctx context.Context, e audit.Event) error {
	if _, err := s.client.CreatePage(ctx, s.databaseID, AuditEventToNotionProperties(e)); err != nil {
		return fmt.Errorf("AuditSink.Write: event %s: %w", e.ID, err)
	}
	return nil
}

var _ audit.Sink = (*AuditSink)(nil)
