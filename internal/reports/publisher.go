package reports

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dvloznov/bank-reconciliation/internal/logger"
)

const contentTypeJSON = "application/json"

// Publisher writes reports to a bucket and reads them back.
type Publisher struct {
	store  ObjectStore
	bucket string
}

// NewPublisher creates a Publisher writing into bucket.
func NewPublisher(store ObjectStore, bucket string) *Publisher {
	return &Publisher{store: store, bucket: bucket}
}

// ObjectName is where a report lives inside the bucket:
// reports/<company>/<yyyy-mm-dd>/<report id>.json.
func ObjectName(r *Report) string {
	return fmt.Sprintf("reports/%s/%s/%s.json", r.CompanyID, r.GeneratedAt.Format("2006-01-02"), r.ID)
}

// Upload stores the report and returns its gs:// URI.
func (p *Publisher) Upload(ctx context.Context, r *Report) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("Upload: marshaling report: %w", err)
	}

	object := ObjectName(r)
	if err := p.store.Put(ctx, p.bucket, object, contentTypeJSON, data); err != nil {
		return "", fmt.Errorf("Upload: %w", err)
	}

	uri := "gs://" + p.bucket + "/" + object
	log := logger.FromContext(ctx)
	log.Info().
		Str("company_id", r.CompanyID).
		Str("report_uri", uri).
		Int("suggestions", len(r.Suggestions)).
		Msg("Uploaded reconciliation report")
	return uri, nil
}

// Fetch downloads and decodes the report at a gs:// URI.
func (p *Publisher) Fetch(ctx context.Context, uri string) (*Report, error) {
	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}
	data, err := p.store.Get(ctx, bucket, object)
	if err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}

	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("Fetch: decoding %s: %w", uri, err)
	}
	return &r, nil
}
