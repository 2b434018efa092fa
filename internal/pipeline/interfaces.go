package pipeline

import (
	"context"

	"github.com/dvloznov/bank-reconciliation/internal/domain"
	"github.com/dvloznov/bank-reconciliation/internal/reconcile"
	"github.com/dvloznov/bank-reconciliation/internal/reports"
	"github.com/dvloznov/bank-reconciliation/internal/store"
	"github.com/dvloznov/bank-reconciliation/internal/suggest"
)

// SuggestionGenerator produces a suggestion batch. *suggest.Engine
// implements it.
type SuggestionGenerator interface {
	Generate(ctx context.Context, scope domain.Scope, filter store.TransactionFilter) (*suggest.Batch, error)
}

// BatchConfirmer commits suggestions independently. *reconcile.Committer
// implements it.
type BatchConfirmer interface {
	ConfirmBatch(ctx context.Context, scope domain.Scope, suggestions []suggest.Suggestion, actor string) reconcile.BatchResult
}

// ReportUploader stores a run report and returns where it went.
// *reports.Publisher implements it.
type ReportUploader interface {
	Upload(ctx context.Context, r *reports.Report) (string, error)
}
