package reports

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/bank-reconciliation/internal/reconcile"
	"github.com/dvloznov/bank-reconciliation/internal/suggest"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

// MockObjectStore is a mock implementation of ObjectStore for testing.
type MockObjectStore struct {
	PutFunc func(ctx context.Context, bucket, object, contentType string, data []byte) error
	GetFunc func(ctx context.Context, bucket, object string) ([]byte, error)
}

func (m *MockObjectStore) Put(ctx context.Context, bucket, object, contentType string, data []byte) error {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, bucket, object, contentType, data)
	}
	return nil
}

func (m *MockObjectStore) Get(ctx context.Context, bucket, object string) ([]byte, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, bucket, object)
	}
	return nil, ErrObjectNotFound
}

func newMemoryStore() *MockObjectStore {
	objects := map[string][]byte{}
	return &MockObjectStore{
		PutFunc: func(ctx context.Context, bucket, object, contentType string, data []byte) error {
			objects[bucket+"/"+object] = data
			return nil
		},
		GetFunc: func(ctx context.Context, bucket, object string) ([]byte, error) {
			data, ok := objects[bucket+"/"+object]
			if !ok {
				return nil, ErrObjectNotFound
			}
			return data, nil
		},
	}
}

func TestPublisher_UploadAndFetch(t *testing.T) {
	generated := time.Date(2024, 3, 10, 15, 4, 5, 0, time.UTC)
	batch := &suggest.Batch{
		Suggestions: []suggest.Suggestion{{
			TransactionID:   "t1",
			ConfidenceScore: 100,
			Difference:      decimal.Zero,
			Reasons:         []string{"exact amount"},
		}},
		Unmatched: []suggest.UnmatchedTransaction{{TransactionID: "t2", Amount: decimal.NewFromInt(500)}},
		Summary:   suggest.Summary{Total: 1, High: 1, Unmatched: 1, Analyzed: 2},
	}
	report := NewReport("run-1", "acme", generated, batch)
	report.Confirmation = &reconcile.BatchResult{
		SuccessCount: 1,
		Results:      []reconcile.ConfirmResult{{TransactionID: "t1", ReconciliationID: "rec-1"}},
	}

	store := newMemoryStore()
	var gotContentType string
	put := store.PutFunc
	store.PutFunc = func(ctx context.Context, bucket, object, contentType string, data []byte) error {
		gotContentType = contentType
		return put(ctx, bucket, object, contentType, data)
	}

	p := NewPublisher(store, "recon-reports")
	uri, err := p.Upload(context.Background(), report)
	if err != nil {
		t.Fatal(err)
	}
	if uri != "gs://recon-reports/reports/acme/2024-03-10/run-1.json" {
		t.Errorf("uri = %q", uri)
	}
	if gotContentType != "application/json" {
		t.Errorf("content type = %q", gotContentType)
	}

	fetched, err := p.Fetch(context.Background(), uri)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(report, fetched); diff != "" {
		t.Errorf("report mismatch after round trip (-want +got):\n%s", diff)
	}
}

func TestPublisher_UploadError(t *testing.T) {
	store := &MockObjectStore{
		PutFunc: func(ctx context.Context, bucket, object, contentType string, data []byte) error {
			return errors.New("permission denied")
		},
	}
	_, err := NewPublisher(store, "b").Upload(context.Background(), NewReport("r", "acme", time.Now(), nil))
	if err == nil {
		t.Fatal("expected upload error")
	}
}

func TestPublisher_FetchMissing(t *testing.T) {
	p := NewPublisher(newMemoryStore(), "b")
	if _, err := p.Fetch(context.Background(), "gs://b/reports/none.json"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestParseGCSURI(t *testing.T) {
	tests := []struct {
		name       string
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{"valid", "gs://bucket/path/to/file.json", "bucket", "path/to/file.json", false},
		{"missing scheme", "bucket/file.json", "", "", true},
		{"no object", "gs://bucket", "", "", true},
		{"empty object", "gs://bucket/", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, object, err := ParseGCSURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseGCSURI(%q) error = %v, wantErr %v", tt.uri, err, tt.wantErr)
			}
			if bucket != tt.wantBucket || object != tt.wantObject {
				t.Errorf("ParseGCSURI(%q) = %q, %q", tt.uri, bucket, object)
			}
		})
	}
}
