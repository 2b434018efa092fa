package reconcile

import (
	"context"
	"fmt"

	"github.com/dvloznov/bank-reconciliation/internal/domain"
	"github.com/dvloznov/bank-reconciliation/internal/matching"
	"github.com/dvloznov/bank-reconciliation/internal/normalize"
	"github.com/shopspring/decimal"
)

// Preview describes a manual selection before it is committed.
type Preview struct {
	Transaction     domain.BankTransaction   `json:"transaction"`
	Entries         []domain.FinancialEntry  `json:"entries"`
	Selected        decimal.Decimal          `json:"selected"`
	Difference      decimal.Decimal          `json:"difference"`
	MatchType       domain.MatchType         `json:"match_type"`
	ConfidenceScore float64                  `json:"confidence_score"`
	ConfidenceLevel matching.ConfidenceLevel `json:"confidence_level"`
	Reasons         []string                 `json:"reasons"`
	// CanConfirm is true when the selection settles the full amount.
	CanConfirm bool `json:"can_confirm"`
}

// Preview scores a manual selection without writing anything. It reads
// outside any store transaction. Unlike Commit it accepts selections that do
// not add up; the difference is reported.
func (c *Committer) Preview(ctx context.Context, scope domain.Scope, transactionID string, refs []domain.EntryRef) (*Preview, error) {
	if !scope.Valid() {
		return nil, fmt.Errorf("Preview: %w", invalid("company scope is required"))
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("Preview: %w", invalid("no entries selected"))
	}

	bankTx, err := c.store.GetTransaction(ctx, scope, transactionID)
	if err != nil {
		return nil, fmt.Errorf("Preview: %w", notFound(err, ErrTransactionNotFound))
	}
	if bankTx.IsReconciled {
		return nil, fmt.Errorf("Preview: %w: %s", ErrAlreadyReconciled, transactionID)
	}

	entries := make([]domain.FinancialEntry, 0, len(refs))
	seen := make(map[domain.EntryRef]bool, len(refs))
	for _, ref := range refs {
		if seen[ref] {
			return nil, fmt.Errorf("Preview: %w", invalid("%s selected twice", ref))
		}
		seen[ref] = true
		if ref.Kind != bankTx.EntryKind() {
			return nil, fmt.Errorf("Preview: %w", invalid("%s cannot settle a %s transaction", ref, directionOf(bankTx)))
		}
		e, err := c.store.GetEntry(ctx, scope, ref)
		if err != nil {
			return nil, fmt.Errorf("Preview: %w", notFound(err, ErrEntryNotFound))
		}
		if !e.IsOpen() {
			return nil, fmt.Errorf("Preview: %w: %s", ErrEntryAlreadySettled, ref)
		}
		entries = append(entries, *e)
	}

	var names []string
	if name, ok := normalize.ExtractCounterparty(bankTx.Payload(), bankTx.Description); ok {
		names = append(names, name)
	}
	sel := matching.NewScorer().ScoreSelection(*bankTx, entries, names)

	return &Preview{
		Transaction:     *bankTx,
		Entries:         entries,
		Selected:        sel.Candidate.Total(),
		Difference:      sel.Difference,
		MatchType:       sel.Candidate.MatchType,
		ConfidenceScore: sel.Score.Value,
		ConfidenceLevel: sel.Score.Level,
		Reasons:         sel.Score.Reasons,
		CanConfirm:      sel.Candidate.MatchType != domain.MatchTypePartial,
	}, nil
}
