package reconcile

import (
	"context"
	"fmt"

	"github.com/dvloznov/bank-reconciliation/internal/audit"
	"github.com/dvloznov/bank-reconciliation/internal/domain"
	"github.com/dvloznov/bank-reconciliation/internal/logger"
	"github.com/dvloznov/bank-reconciliation/internal/store"
)

// Reverser undoes reconciliations. Records are flagged, never deleted.
type Reverser struct {
	store store.Store
	opts  options
}

// NewReverser creates a Reverser over s.
func NewReverser(s store.Store, opts ...Option) *Reverser {
	return &Reverser{store: s, opts: buildOptions(opts)}
}

// Reverse marks the reconciliation reversed, unlinks its bank transaction and
// reopens every entry it settled, all in one store transaction.
func (r *Reverser) Reverse(ctx context.Context, scope domain.Scope, reconciliationID string, reason *string, actor string) error {
	if !scope.Valid() {
		return fmt.Errorf("Reverse: %w", invalid("company scope is required"))
	}
	if reconciliationID == "" {
		return fmt.Errorf("Reverse: %w", invalid("reconciliation ID is required"))
	}

	log := logger.WithCompany(logger.FromContext(ctx), scope.CompanyID)

	var rec *domain.Reconciliation
	err := r.store.RunInTx(ctx, scope, func(ctx context.Context, tx store.Tx) error {
		var err error
		rec, err = tx.GetReconciliation(ctx, reconciliationID)
		if err != nil {
			return notFound(err, ErrReconciliationNotFound)
		}
		if rec.Record.IsReversed {
			return fmt.Errorf("%w: %s", ErrAlreadyReversed, reconciliationID)
		}

		now := r.opts.now()
		if err := tx.MarkReversed(ctx, reconciliationID, now, actor, reason); err != nil {
			return fmt.Errorf("failed to mark reversed: %w", err)
		}
		if err := tx.UnlinkTransaction(ctx, rec.Record.BankTransactionID, reconciliationID); err != nil {
			return fmt.Errorf("failed to unlink transaction %s: %w", rec.Record.BankTransactionID, err)
		}
		for _, item := range rec.Items {
			if err := tx.ReopenEntry(ctx, item.Entry, reconciliationID); err != nil {
				return fmt.Errorf("failed to reopen %s: %w", item.Entry, err)
			}
		}
		return nil
	})
	if err != nil {
		log.Warn().
			Err(err).
			Str("reconciliation_id", reconciliationID).
			Str("code", Code(err)).
			Msg("Reconciliation reversal rejected")
		return fmt.Errorf("Reverse: %w", conflict(err))
	}

	log.Info().
		Str("reconciliation_id", reconciliationID).
		Str("transaction_id", rec.Record.BankTransactionID).
		Int("items", len(rec.Items)).
		Msg("Reconciliation reversed")

	data := map[string]interface{}{"entries": entryIDs(rec.Items)}
	if reason != nil {
		data["reason"] = *reason
	}
	r.opts.audit.Record(ctx, audit.Event{
		CompanyID:         scope.CompanyID,
		Type:              audit.EventReversed,
		ReconciliationID:  reconciliationID,
		BankTransactionID: rec.Record.BankTransactionID,
		Actor:             actor,
		Data:              data,
	})
	return nil
}
