// Package store defines the persistence contracts the reconciliation engine
// runs against. Implementations live in store/inmemory and infra/bigquery.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/bank-reconciliation/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a row does not exist in the given scope.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional write matched no row because
	// another writer changed it first, or the backend aborted the transaction
	// on a concurrent update.
	ErrConflict = errors.New("concurrent modification")
)

// TransactionFilter selects unreconciled bank transactions. Zero dates are
// unbounded.
type TransactionFilter struct {
	StartDate time.Time
	EndDate   time.Time
	IDs       []string
	Limit     int
}

// ReconciliationFilter selects reconciliation records by creation date.
type ReconciliationFilter struct {
	StartDate       time.Time
	EndDate         time.Time
	IncludeReversed bool
	Limit           int
}

// TransactionSource returns bank transactions awaiting reconciliation.
type TransactionSource interface {
	ListUnreconciledTransactions(ctx context.Context, scope domain.Scope, filter TransactionFilter) ([]domain.BankTransaction, error)
}

// EntrySource returns open (unpaid, unlinked) entries of one kind, optionally
// narrowed to a counterparty name.
type EntrySource interface {
	ListOpenEntries(ctx context.Context, scope domain.Scope, kind domain.EntryKind, counterparty string) ([]domain.FinancialEntry, error)
}

// RuleSource returns the active alias rules of a company.
type RuleSource interface {
	ListActiveRules(ctx context.Context, scope domain.Scope) ([]domain.MatchingRule, error)
}

// ReconciliationReader reads committed reconciliations.
type ReconciliationReader interface {
	GetReconciliation(ctx context.Context, scope domain.Scope, id string) (*domain.Reconciliation, error)
	ListReconciliations(ctx context.Context, scope domain.Scope, filter ReconciliationFilter) ([]domain.Reconciliation, error)
}

// RowReader reads single rows of a company outside any transaction. Missing
// rows and rows of another company return ErrNotFound.
type RowReader interface {
	GetTransaction(ctx context.Context, scope domain.Scope, id string) (*domain.BankTransaction, error)
	GetEntry(ctx context.Context, scope domain.Scope, ref domain.EntryRef) (*domain.FinancialEntry, error)
}

// Settlement carries what is written onto an entry when it is settled.
type Settlement struct {
	ReconciliationID string
	PaidAt           time.Time
	PaidAmount       decimal.Decimal
}

// Tx is the unit of work handed to RunInTx. Reads observe the transaction's
// own writes. Every mutating method is a check-and-set: when the row is not
// in the expected state it returns ErrConflict and writes nothing.
type Tx interface {
	GetTransaction(ctx context.Context, id string) (*domain.BankTransaction, error)
	GetEntry(ctx context.Context, ref domain.EntryRef) (*domain.FinancialEntry, error)
	GetReconciliation(ctx context.Context, id string) (*domain.Reconciliation, error)

	// InsertReconciliation stores a new record with its items.
	InsertReconciliation(ctx context.Context, rec domain.ReconciliationRecord, items []domain.ReconciliationItem) error
	// MarkTransactionReconciled requires the transaction to be unreconciled.
	MarkTransactionReconciled(ctx context.Context, id, reconciliationID string, at time.Time) error
	// SettleEntry requires the entry to be open.
	SettleEntry(ctx context.Context, ref domain.EntryRef, s Settlement) error
	// MarkReversed requires the record to be active.
	MarkReversed(ctx context.Context, id string, at time.Time, by string, notes *string) error
	// UnlinkTransaction requires the transaction to point at reconciliationID.
	UnlinkTransaction(ctx context.Context, id, reconciliationID string) error
	// ReopenEntry requires the entry to be linked to reconciliationID.
	ReopenEntry(ctx context.Context, ref domain.EntryRef, reconciliationID string) error
}

// Store is the full persistence surface of the engine.
type Store interface {
	TransactionSource
	EntrySource
	RuleSource
	RowReader
	ReconciliationReader

	// RunInTx runs fn atomically: either every write fn made is applied or
	// none is. A non-nil error from fn rolls back and is returned as is.
	RunInTx(ctx context.Context, scope domain.Scope, fn func(ctx context.Context, tx Tx) error) error
}
