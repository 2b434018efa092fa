package reports

import (
	"context"
	"time"

	"github.com/dvloznov/bank-reconciliation/internal/reconcile"
	"github.com/dvloznov/bank-reconciliation/internal/suggest"
)

// ObjectStore provides an interface for cloud storage operations.
// This interface enables mocking and testing of storage functionality.
type ObjectStore interface {
	// Put writes data to bucket/object, replacing any existing object.
	Put(ctx context.Context, bucket, object, contentType string, data []byte) error

	// Get reads the bytes of bucket/object.
	Get(ctx context.Context, bucket, object string) ([]byte, error)
}

// Report is the JSON document written for every reconcile run.
type Report struct {
	ID          string    `json:"id"`
	CompanyID   string    `json:"company_id"`
	GeneratedAt time.Time `json:"generated_at"`
	StartDate   time.Time `json:"start_date,omitempty"`
	EndDate     time.Time `json:"end_date,omitempty"`

	Summary     suggest.Summary                `json:"summary"`
	Suggestions []suggest.Suggestion           `json:"suggestions"`
	Unmatched   []suggest.UnmatchedTransaction `json:"unmatched"`

	// Confirmation is set when the run auto-confirmed suggestions.
	Confirmation *reconcile.BatchResult `json:"confirmation,omitempty"`
}

// NewReport builds a report from a suggestion batch.
func NewReport(id, companyID string, generatedAt time.Time, batch *suggest.Batch) *Report {
	r := &Report{
		ID:          id,
		CompanyID:   companyID,
		GeneratedAt: generatedAt.UTC(),
	}
	if batch != nil {
		r.Summary = batch.Summary
		r.Suggestions = batch.Suggestions
		r.Unmatched = batch.Unmatched
	}
	return r
}
