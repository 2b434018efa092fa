package reconcile

import (
	"errors"
	"fmt"

	"github.com/dvloznov/bank-reconciliation/internal/store"
	"github.com/shopspring/decimal"
)

var (
	ErrAlreadyReconciled      = errors.New("bank transaction already reconciled")
	ErrAlreadyReversed        = errors.New("reconciliation already reversed")
	ErrEntryAlreadySettled    = errors.New("entry already settled")
	ErrTransactionNotFound    = errors.New("bank transaction not found")
	ErrEntryNotFound          = errors.New("entry not found")
	ErrReconciliationNotFound = errors.New("reconciliation not found")
	ErrInvalidSelection       = errors.New("invalid selection")
	// ErrConflict means a concurrent writer changed the rows first. Re-read
	// and retry.
	ErrConflict = fmt.Errorf("reconciliation conflict: %w", store.ErrConflict)
)

// AmountMismatchError reports a selection that does not settle the
// transaction amount.
type AmountMismatchError struct {
	Expected   decimal.Decimal
	Selected   decimal.Decimal
	Difference decimal.Decimal
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("selected amount %s does not match transaction amount %s (difference %s)",
		e.Selected.StringFixed(2), e.Expected.StringFixed(2), e.Difference.StringFixed(2))
}

// Stable error codes for API and CLI output.
const (
	CodeAlreadyReconciled      = "already_reconciled"
	CodeAlreadyReversed        = "already_reversed"
	CodeEntryAlreadySettled    = "entry_already_settled"
	CodeAmountMismatch         = "amount_mismatch"
	CodeTransactionNotFound    = "transaction_not_found"
	CodeEntryNotFound          = "entry_not_found"
	CodeReconciliationNotFound = "reconciliation_not_found"
	CodeInvalidSelection       = "invalid_selection"
	CodeConflict               = "conflict"
	CodeInternal               = "internal"
)

// Code maps err to one of the stable codes. A nil error has no code.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var mismatch *AmountMismatchError
	switch {
	case errors.As(err, &mismatch):
		return CodeAmountMismatch
	case errors.Is(err, ErrAlreadyReconciled):
		return CodeAlreadyReconciled
	case errors.Is(err, ErrAlreadyReversed):
		return CodeAlreadyReversed
	case errors.Is(err, ErrEntryAlreadySettled):
		return CodeEntryAlreadySettled
	case errors.Is(err, ErrTransactionNotFound):
		return CodeTransactionNotFound
	case errors.Is(err, ErrEntryNotFound):
		return CodeEntryNotFound
	case errors.Is(err, ErrReconciliationNotFound):
		return CodeReconciliationNotFound
	case errors.Is(err, ErrInvalidSelection):
		return CodeInvalidSelection
	case errors.Is(err, store.ErrConflict):
		return CodeConflict
	default:
		return CodeInternal
	}
}

// conflict translates a storage check-and-set miss into ErrConflict and
// leaves other errors as they are.
func conflict(err error) error {
	if err != nil && errors.Is(err, store.ErrConflict) && !errors.Is(err, ErrConflict) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidSelection, fmt.Sprintf(format, args...))
}
