package notionsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/bank-reconciliation/internal/audit"
	"github.com/dvloznov/bank-reconciliation/internal/domain"
	"github.com/dvloznov/bank-reconciliation/internal/store"
	"github.com/google/go-cmp/cmp"
	"github.com/jomei/notionapi"
	"github.com/shopspring/decimal"
)

// MockNotionService is a mock implementation of NotionService for testing.
type MockNotionService struct {
	CreatePageFunc    func(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
	UpdatePageFunc    func(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)
	QueryDatabaseFunc func(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	ArchivePageFunc   func(ctx context.Context, pageID string) error
}

func (m *MockNotionService) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	return m.CreatePageFunc(ctx, databaseID, properties)
}

func (m *MockNotionService) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	return m.UpdatePageFunc(ctx, pageID, properties)
}

func (m *MockNotionService) QueryDatabase(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	return m.QueryDatabaseFunc(ctx, databaseID, filter)
}

func (m *MockNotionService) ArchivePage(ctx context.Context, pageID string) error {
	return m.ArchivePageFunc(ctx, pageID)
}

// MockReader is a mock implementation of store.ReconciliationReader for testing.
type MockReader struct {
	ListReconciliationsFunc func(ctx context.Context, scope domain.Scope, filter store.ReconciliationFilter) ([]domain.Reconciliation, error)
}

func (m *MockReader) GetReconciliation(ctx context.Context, scope domain.Scope, id string) (*domain.Reconciliation, error) {
	return nil, store.ErrNotFound
}

func (m *MockReader) ListReconciliations(ctx context.Context, scope domain.Scope, filter store.ReconciliationFilter) ([]domain.Reconciliation, error) {
	return m.ListReconciliationsFunc(ctx, scope, filter)
}

var created = time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

func rec(id string, reversed bool) domain.Reconciliation {
	score := 92.0
	r := domain.Reconciliation{
		Record: domain.ReconciliationRecord{
			ID:                id,
			CompanyID:         "acme",
			BankTransactionID: "tx-" + id,
			TotalAmount:       decimal.RequireFromString("1800.00"),
			Method:            domain.MethodAIHigh,
			MatchType:         domain.MatchTypeAggregation,
			ConfidenceScore:   &score,
			Difference:        decimal.Zero,
			CreatedAt:         created,
			CreatedBy:         "auto-reconcile",
		},
		Items: []domain.ReconciliationItem{
			{Entry: domain.EntryRef{Kind: domain.EntryKindPayable, ID: "p1"}, AmountUsed: decimal.NewFromInt(600)},
			{Entry: domain.EntryRef{Kind: domain.EntryKindPayable, ID: "p2"}, AmountUsed: decimal.NewFromInt(1200)},
		},
	}
	if reversed {
		at := created.Add(time.Hour)
		r.Record.IsReversed = true
		r.Record.ReversedAt = &at
		r.Record.ReversedBy = "ana"
	}
	return r
}

func page(id, recID, status string) notionapi.Page {
	props := notionapi.Properties{}
	if recID != "" {
		props[propReconciliationID] = &notionapi.TitleProperty{Title: []notionapi.RichText{{PlainText: recID}}}
	}
	if status != "" {
		props[propStatus] = &notionapi.SelectProperty{Select: notionapi.Option{Name: status}}
	}
	return notionapi.Page{ID: notionapi.ObjectID(id), Properties: props}
}

func TestSyncReconciliations(t *testing.T) {
	reader := &MockReader{ListReconciliationsFunc: func(ctx context.Context, scope domain.Scope, filter store.ReconciliationFilter) ([]domain.Reconciliation, error) {
		if scope.CompanyID != "acme" || !filter.IncludeReversed {
			t.Errorf("unexpected scope %v or filter %+v", scope, filter)
		}
		// rec-1 unchanged, rec-2 newly reversed, rec-3 new.
		return []domain.Reconciliation{rec("rec-1", false), rec("rec-2", true), rec("rec-3", false)}, nil
	}}

	var queries int
	var createdIDs, updatedPages, archived []string
	svc := &MockNotionService{
		QueryDatabaseFunc: func(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			queries++
			if req.StartCursor == "" {
				return &notionapi.DatabaseQueryResponse{
					Results:    []notionapi.Page{page("page-1", "rec-1", StatusActive), page("page-x", "", "")},
					HasMore:    true,
					NextCursor: "next",
				}, nil
			}
			return &notionapi.DatabaseQueryResponse{Results: []notionapi.Page{page("page-2", "rec-2", StatusActive)}}, nil
		},
		CreatePageFunc: func(ctx context.Context, databaseID string, props notionapi.Properties) (*notionapi.Page, error) {
			id := props[propReconciliationID].(notionapi.TitleProperty).Title[0].Text.Content
			createdIDs = append(createdIDs, id)
			return &notionapi.Page{ID: "new-" + notionapi.ObjectID(id)}, nil
		},
		UpdatePageFunc: func(ctx context.Context, pageID string, props notionapi.Properties) (*notionapi.Page, error) {
			if got := props[propStatus].(notionapi.SelectProperty).Select.Name; got != StatusReversed {
				t.Errorf("updated status = %q", got)
			}
			updatedPages = append(updatedPages, pageID)
			return &notionapi.Page{ID: notionapi.ObjectID(pageID)}, nil
		},
		ArchivePageFunc: func(ctx context.Context, pageID string) error {
			archived = append(archived, pageID)
			return nil
		},
	}

	stats, err := SyncReconciliations(context.Background(), reader, svc, "db", domain.Scope{CompanyID: "acme"}, store.ReconciliationFilter{}, false)
	if err != nil {
		t.Fatal(err)
	}

	want := &SyncStats{Total: 3, Created: 1, Updated: 1, Skipped: 1, Archived: 1}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
	if queries != 2 {
		t.Errorf("queries = %d, want 2", queries)
	}
	if diff := cmp.Diff([]string{"rec-3"}, createdIDs); diff != "" {
		t.Errorf("created mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"page-2"}, updatedPages); diff != "" {
		t.Errorf("updated mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"page-x"}, archived); diff != "" {
		t.Errorf("archived mismatch (-want +got):\n%s", diff)
	}
}

func TestSyncReconciliations_DryRunAndFailures(t *testing.T) {
	reader := &MockReader{ListReconciliationsFunc: func(ctx context.Context, scope domain.Scope, filter store.ReconciliationFilter) ([]domain.Reconciliation, error) {
		return []domain.Reconciliation{rec("rec-1", false), rec("rec-2", false)}, nil
	}}
	empty := func(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
		return &notionapi.DatabaseQueryResponse{}, nil
	}

	tests := []struct {
		name   string
		dryRun bool
		create func(ctx context.Context, databaseID string, props notionapi.Properties) (*notionapi.Page, error)
		want   *SyncStats
	}{
		{
			name:   "dry run writes nothing",
			dryRun: true,
			create: func(ctx context.Context, databaseID string, props notionapi.Properties) (*notionapi.Page, error) {
				t.Error("CreatePage called in dry run")
				return nil, nil
			},
			want: &SyncStats{Total: 2, Created: 2},
		},
		{
			name: "create failures are counted",
			create: func(ctx context.Context, databaseID string, props notionapi.Properties) (*notionapi.Page, error) {
				return nil, errors.New("rate limited")
			},
			want: &SyncStats{Total: 2, Failed: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockNotionService{QueryDatabaseFunc: empty, CreatePageFunc: tt.create}
			stats, err := SyncReconciliations(context.Background(), reader, svc, "db", domain.Scope{CompanyID: "acme"}, store.ReconciliationFilter{}, tt.dryRun)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, stats); diff != "" {
				t.Errorf("stats mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSyncReconciliations_QueryError(t *testing.T) {
	reader := &MockReader{ListReconciliationsFunc: func(ctx context.Context, scope domain.Scope, filter store.ReconciliationFilter) ([]domain.Reconciliation, error) {
		return nil, nil
	}}
	svc := &MockNotionService{QueryDatabaseFunc: func(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
		return nil, errors.New("unauthorized")
	}}
	if _, err := SyncReconciliations(context.Background(), reader, svc, "db", domain.Scope{CompanyID: "acme"}, store.ReconciliationFilter{}, false); err == nil {
		t.Fatal("expected error")
	}
}

func TestReconciliationToNotionProperties(t *testing.T) {
	props := ReconciliationToNotionProperties(rec("rec-9", true))

	if got := props[propStatus].(notionapi.SelectProperty).Select.Name; got != StatusReversed {
		t.Errorf("status = %q", got)
	}
	if got := props["Total Amount"].(notionapi.NumberProperty).Number; got != 1800 {
		t.Errorf("total = %v", got)
	}
	if got := props["Entries"].(notionapi.RichTextProperty).RichText[0].Text.Content; got != "payable:p1 600.00, payable:p2 1200.00" {
		t.Errorf("entries = %q", got)
	}
	if _, ok := props["Reversed"]; !ok {
		t.Error("missing Reversed date")
	}
	if _, ok := props["Notes"]; ok {
		t.Error("empty notes should be omitted")
	}
}

func TestAuditSink_Write(t *testing.T) {
	var gotDB string
	var gotProps notionapi.Properties
	svc := &MockNotionService{CreatePageFunc: func(ctx context.Context, databaseID string, props notionapi.Properties) (*notionapi.Page, error) {
		gotDB, gotProps = databaseID, props
		return &notionapi.Page{ID: "p"}, nil
	}}

	sink := NewAuditSink(svc, "audit-db")
	err := sink.Write(context.Background(), audit.Event{
		ID:                "ev-1",
		CompanyID:         "acme",
		Type:              audit.EventReversed,
		ReconciliationID:  "rec-1",
		BankTransactionID: "tx-1",
		Actor:             "ana",
		Data:              map[string]interface{}{"notes": "duplicate"},
		OccurredAt:        created,
	})
	if err != nil {
		t.Fatal(err)
	}
	if gotDB != "audit-db" || sink.Name() != "notion" {
		t.Errorf("db = %q, name = %q", gotDB, sink.Name())
	}
	if got := gotProps["Type"].(notionapi.SelectProperty).Select.Name; got != string(audit.EventReversed) {
		t.Errorf("type = %q", got)
	}
	if got := gotProps["Data"].(notionapi.RichTextProperty).RichText[0].Text.Content; got != `{"notes":"duplicate"}` {
		t.Errorf("data = %q", got)
	}

	failing := NewAuditSink(&MockNotionService{CreatePageFunc: func(ctx context.Context, databaseID string, props notionapi.Properties) (*notionapi.Page, error) {
		return nil, errors.New("timeout")
	}}, "audit-db")
	if err := failing.Write(context.Background(), audit.Event{ID: "ev-2"}); err == nil {
		t.Error("expected write error")
	}
}
