package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dvloznov/bank-reconciliation/internal/api"
	"github.com/dvloznov/bank-reconciliation/internal/api/handlers"
	"github.com/dvloznov/bank-reconciliation/internal/api/middleware"
	"github.com/dvloznov/bank-reconciliation/internal/domain"
	"github.com/dvloznov/bank-reconciliation/internal/jobs"
	jobsmem "github.com/dvloznov/bank-reconciliation/internal/jobs/inmemory"
	"github.com/dvloznov/bank-reconciliation/internal/logger"
	"github.com/dvloznov/bank-reconciliation/internal/reconcile"
	"github.com/dvloznov/bank-reconciliation/internal/store/inmemory"
	"github.com/dvloznov/bank-reconciliation/internal/suggest"
	"github.com/shopspring/decimal"
)

// MockPublisher is a mock implementation of jobs.Publisher for testing.
type MockPublisher struct {
	PublishReconcileRunFunc func(ctx context.Context, job *jobs.ReconcileRunJob) error
}

func (m *MockPublisher) PublishReconcileRun(ctx context.Context, job *jobs.ReconcileRunJob) error {
	return m.PublishReconcileRunFunc(ctx, job)
}

func (m *MockPublisher) Close() error { return nil }

var day0 = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

type fixture struct {
	server    *httptest.Server
	store     *inmemory.Store
	jobStore  *jobsmem.Store
	published []*jobs.ReconcileRunJob
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: inmemory.NewStore(), jobStore: jobsmem.NewStore()}

	for _, tx := range []domain.BankTransaction{
		{ID: "tA", CompanyID: "acme", Date: day0, Description: "ACME COMERCIO", Amount: decimal.RequireFromString("1500.00")},
		{ID: "tB", CompanyID: "acme", Date: day0, Description: "PIX ENVIADO FORNECEDOR BETA", Amount: decimal.RequireFromString("-1800.00")},
		{ID: "tZ", CompanyID: "zeta", Date: day0, Description: "ZETA", Amount: decimal.RequireFromString("10.00")},
	} {
		if err := f.store.PutTransaction(tx); err != nil {
			t.Fatal(err)
		}
	}
	for _, e := range []domain.FinancialEntry{
		{ID: "r1", Kind: domain.EntryKindReceivable, Amount: decimal.NewFromInt(1500), DueDate: day0, CounterpartyName: "ACME COMERCIO"},
		{ID: "p1", Kind: domain.EntryKindPayable, Amount: decimal.NewFromInt(600), DueDate: day0, CounterpartyName: "Fornecedor Beta"},
		{ID: "p2", Kind: domain.EntryKindPayable, Amount: decimal.NewFromInt(1200), DueDate: day0, CounterpartyName: "Fornecedor Beta"},
	} {
		e.CompanyID = "acme"
		if err := f.store.PutEntry(e); err != nil {
			t.Fatal(err)
		}
	}

	log := logger.NewWithWriter(io.Discard)
	engine := suggest.NewEngine(f.store, f.store, f.store, suggest.Config{})
	publisher := &MockPublisher{PublishReconcileRunFunc: func(ctx context.Context, job *jobs.ReconcileRunJob) error {
		job.JobID = "job-1"
		job.Status = jobs.JobStatusPending
		job.CreatedAt = day0
		f.published = append(f.published, job)
		return f.jobStore.SaveJob(ctx, job)
	}}

	router := api.NewRouter(api.Handlers{
		Suggestions:     handlers.NewSuggestionsHandler(engine, nil),
		Reconciliations: handlers.NewReconciliationsHandler(reconcile.NewCommitter(f.store), reconcile.NewReverser(f.store), f.store),
		Jobs:            handlers.NewJobsHandler(f.jobStore, publisher),
	}, log)
	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, company string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if company != "" {
		req.Header.Set(middleware.CompanyHeader, company)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("%s %s: decoding body: %v", method, path, err)
	}
	return resp.StatusCode, out
}

func commitBody(txID string, items ...reconcile.CommitItem) reconcile.CommitRequest {
	return reconcile.CommitRequest{TransactionID: txID, Items: items, Actor: "ana"}
}

func item(kind domain.EntryKind, id, amount string) reconcile.CommitItem {
	return reconcile.CommitItem{Entry: domain.EntryRef{Kind: kind, ID: id}, AmountUsed: decimal.RequireFromString(amount)}
}

func TestRouter_ScopeAndHealth(t *testing.T) {
	f := newFixture(t)

	if status, _ := f.do(t, http.MethodGet, "/health", "", nil); status != http.StatusOK {
		t.Errorf("health status = %d", status)
	}
	status, body := f.do(t, http.MethodGet, "/api/suggestions", "", nil)
	if status != http.StatusBadRequest || body["code"] != "missing_scope" {
		t.Errorf("missing scope: status %d, body %v", status, body)
	}
}

func TestRouter_Suggestions(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodGet, "/api/suggestions?start_date=2024-06-01&end_date=2024-06-30", "acme", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %v", status, body)
	}
	if got := len(body["suggestions"].([]interface{})); got < 2 {
		t.Errorf("suggestions = %d, want at least 2", got)
	}

	status, _ = f.do(t, http.MethodGet, "/api/suggestions?start_date=06/01/2024", "acme", nil)
	if status != http.StatusBadRequest {
		t.Errorf("bad date status = %d", status)
	}

	status, body = f.do(t, http.MethodPost, "/api/suggestions/explain", "acme", handlers.ExplainRequest{TransactionID: "tA"})
	if status != http.StatusServiceUnavailable {
		t.Errorf("explain without model: status %d, body %v", status, body)
	}
}

func TestRouter_ReconciliationLifecycle(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name       string
		method     string
		path       string
		company    string
		body       interface{}
		wantStatus int
		wantCode   string
	}{
		{
			name: "preview reports difference", method: http.MethodPost, path: "/api/reconciliations/preview", company: "acme",
			body:       handlers.PreviewRequest{TransactionID: "tB", Entries: []domain.EntryRef{{Kind: domain.EntryKindPayable, ID: "p1"}}},
			wantStatus: http.StatusOK,
		},
		{
			name: "amount mismatch", method: http.MethodPost, path: "/api/reconciliations", company: "acme",
			body:       commitBody("tB", item(domain.EntryKindPayable, "p1", "600")),
			wantStatus: http.StatusUnprocessableEntity, wantCode: reconcile.CodeAmountMismatch,
		},
		{
			name: "wrong ledger", method: http.MethodPost, path: "/api/reconciliations", company: "acme",
			body:       commitBody("tA", item(domain.EntryKindPayable, "p1", "600")),
			wantStatus: http.StatusUnprocessableEntity, wantCode: reconcile.CodeInvalidSelection,
		},
		{
			name: "other company cannot see transaction", method: http.MethodPost, path: "/api/reconciliations", company: "zeta",
			body:       commitBody("tA", item(domain.EntryKindReceivable, "r1", "1500")),
			wantStatus: http.StatusNotFound, wantCode: reconcile.CodeTransactionNotFound,
		},
		{
			name: "commit aggregation", method: http.MethodPost, path: "/api/reconciliations", company: "acme",
			body:       commitBody("tB", item(domain.EntryKindPayable, "p1", "600"), item(domain.EntryKindPayable, "p2", "1200")),
			wantStatus: http.StatusCreated,
		},
		{
			name: "commit again", method: http.MethodPost, path: "/api/reconciliations", company: "acme",
			body:       commitBody("tB", item(domain.EntryKindPayable, "p1", "600"), item(domain.EntryKindPayable, "p2", "1200")),
			wantStatus: http.StatusConflict, wantCode: reconcile.CodeAlreadyReconciled,
		},
		{
			name: "unknown reconciliation", method: http.MethodGet, path: "/api/reconciliations/nope", company: "acme",
			wantStatus: http.StatusNotFound,
		},
		{
			name: "reverse unknown", method: http.MethodPost, path: "/api/reconciliations/nope/reverse", company: "acme",
			wantStatus: http.StatusNotFound, wantCode: reconcile.CodeReconciliationNotFound,
		},
	}

	var recID string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := f.do(t, tt.method, tt.path, tt.company, tt.body)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %v)", status, tt.wantStatus, body)
			}
			if tt.wantCode != "" && body["code"] != tt.wantCode {
				t.Errorf("code = %v, want %s", body["code"], tt.wantCode)
			}
			if status == http.StatusCreated {
				recID, _ = body["reconciliation_id"].(string)
			}
		})
	}
	if recID == "" {
		t.Fatal("no reconciliation committed")
	}

	status, body := f.do(t, http.MethodGet, "/api/reconciliations/"+recID, "acme", nil)
	if status != http.StatusOK {
		t.Fatalf("get status = %d", status)
	}
	if items := body["items"].([]interface{}); len(items) != 2 {
		t.Errorf("items = %d, want 2", len(items))
	}
	if status, _ := f.do(t, http.MethodGet, "/api/reconciliations/"+recID, "zeta", nil); status != http.StatusNotFound {
		t.Errorf("cross-company get status = %d", status)
	}

	reason := "wrong supplier"
	if status, body := f.do(t, http.MethodPost, "/api/reconciliations/"+recID+"/reverse", "acme", handlers.ReverseRequest{Reason: &reason}); status != http.StatusOK {
		t.Fatalf("reverse status = %d, body %v", status, body)
	}
	status, body = f.do(t, http.MethodPost, "/api/reconciliations/"+recID+"/reverse", "acme", nil)
	if status != http.StatusConflict || body["code"] != reconcile.CodeAlreadyReversed {
		t.Errorf("second reverse: status %d, body %v", status, body)
	}

	if tx, _ := f.store.Transaction("tB"); tx.IsReconciled {
		t.Error("tB should be unreconciled after reversal")
	}

	status, body = f.do(t, http.MethodGet, "/api/reconciliations?include_reversed=true", "acme", nil)
	if status != http.StatusOK || body["count"].(float64) != 1 {
		t.Errorf("list: status %d, body %v", status, body)
	}
	status, body = f.do(t, http.MethodGet, "/api/reconciliations", "acme", nil)
	if status != http.StatusOK || body["count"].(float64) != 0 {
		t.Errorf("list active: status %d, body %v", status, body)
	}
}

func TestRouter_BatchConfirm(t *testing.T) {
	f := newFixture(t)

	_, body := f.do(t, http.MethodGet, "/api/suggestions", "acme", nil)
	raw, err := json.Marshal(map[string]interface{}{"suggestions": body["suggestions"], "actor": "ana"})
	if err != nil {
		t.Fatal(err)
	}
	var batch handlers.BatchRequest
	if err := json.Unmarshal(raw, &batch); err != nil {
		t.Fatal(err)
	}

	status, res := f.do(t, http.MethodPost, "/api/reconciliations/batch", "acme", batch)
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %v", status, res)
	}
	if res["success_count"].(float64) < 1 {
		t.Errorf("expected at least one confirmation, got %v", res)
	}
	if tx, _ := f.store.Transaction("tA"); !tx.IsReconciled {
		t.Error("tA should be reconciled")
	}

	if status, _ := f.do(t, http.MethodPost, "/api/reconciliations/batch", "acme", handlers.BatchRequest{}); status != http.StatusBadRequest {
		t.Errorf("empty batch status = %d", status)
	}
}

func TestRouter_RunsAndJobs(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodPost, "/api/runs", "acme", handlers.RunRequest{StartDate: "2024-06-01", AutoConfirm: true})
	if status != http.StatusAccepted || body["job_id"] != "job-1" {
		t.Fatalf("enqueue: status %d, body %v", status, body)
	}
	if len(f.published) != 1 || f.published[0].CompanyID != "acme" || !f.published[0].StartDate.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected published job %+v", f.published)
	}

	if status, _ := f.do(t, http.MethodPost, "/api/runs", "acme", handlers.RunRequest{StartDate: "2024-06-10", EndDate: "2024-06-01"}); status != http.StatusBadRequest {
		t.Errorf("inverted range status = %d", status)
	}

	if status, _ := f.do(t, http.MethodGet, "/api/jobs/job-1", "acme", nil); status != http.StatusOK {
		t.Errorf("get job status = %d", status)
	}
	if status, _ := f.do(t, http.MethodGet, "/api/jobs/job-1", "zeta", nil); status != http.StatusNotFound {
		t.Errorf("cross-company job status = %d", status)
	}

	_, body = f.do(t, http.MethodGet, "/api/jobs", "acme", nil)
	if body["count"].(float64) != 1 {
		t.Errorf("acme jobs = %v", body["count"])
	}
	_, body = f.do(t, http.MethodGet, "/api/jobs", "zeta", nil)
	if body["count"].(float64) != 0 {
		t.Errorf("zeta jobs = %v", body["count"])
	}
}
