package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/bank-reconciliation/internal/domain"
	"github.com/dvloznov/bank-reconciliation/internal/store"
)

// Store is the BigQuery implementation of store.Store. It holds a shared
// client so that every operation reuses one connection.
type Store struct {
	client *bigquery.Client
	ds     Dataset
}

var _ store.Store = (*Store)(nil)

// NewStore creates a Store for the given dataset.
func NewStore(ctx context.Context, projectID, datasetID string) (*Store, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewStore: creating client: %w", err)
	}
	return &Store{
		client: client,
		ds:     Dataset{ProjectID: projectID, DatasetID: datasetID},
	}, nil
}

// Close closes the BigQuery client connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// AuditSink returns a sink writing to this store's audit log table.
func (s *Store) AuditSink() *AuditSink {
	return &AuditSink{client: s.client, ds: s.ds}
}

// ListUnreconciledTransactions implements store.TransactionSource.
func (s *Store) ListUnreconciledTransactions(ctx context.Context, scope domain.Scope, filter store.TransactionFilter) ([]domain.BankTransaction, error) {
	rows, err := ListUnreconciledTransactionsWithClient(ctx, s.client, s.ds, scope.CompanyID, filter)
	if err != nil {
		return nil, err
	}
	result := make([]domain.BankTransaction, len(rows))
	for i, r := range rows {
		result[i] = r.ToDomain()
	}
	return result, nil
}

// ListOpenEntries implements store.EntrySource.
func (s *Store) ListOpenEntries(ctx context.Context, scope domain.Scope, kind domain.EntryKind, counterparty string) ([]domain.FinancialEntry, error) {
	rows, err := ListOpenEntriesWithClient(ctx, s.client, s.ds, scope.CompanyID, kind, counterparty)
	if err != nil {
		return nil, err
	}
	result := make([]domain.FinancialEntry, len(rows))
	for i, r := range rows {
		result[i] = r.ToDomain(kind)
	}
	return result, nil
}

// ListActiveRules implements store.RuleSource.
func (s *Store) ListActiveRules(ctx context.Context, scope domain.Scope) ([]domain.MatchingRule, error) {
	rows, err := ListActiveRulesWithClient(ctx, s.client, s.ds, scope.CompanyID)
	if err != nil {
		return nil, err
	}
	result := make([]domain.MatchingRule, len(rows))
	for i, r := range rows {
		result[i] = r.ToDomain()
	}
	return result, nil
}

// GetTransaction implements store.RowReader.
func (s *Store) GetTransaction(ctx context.Context, scope domain.Scope, id string) (*domain.BankTransaction, error) {
	row, err := getTransaction(ctx, runner{client: s.client, ds: s.ds}, scope.CompanyID, id)
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: %w", err)
	}
	tx := row.ToDomain()
	return &tx, nil
}

// GetEntry implements store.RowReader.
func (s *Store) GetEntry(ctx context.Context, scope domain.Scope, ref domain.EntryRef) (*domain.FinancialEntry, error) {
	row, err := getEntry(ctx, runner{client: s.client, ds: s.ds}, scope.CompanyID, ref)
	if err != nil {
		return nil, fmt.Errorf("GetEntry: %w", err)
	}
	e := row.ToDomain(ref.Kind)
	return &e, nil
}

// GetReconciliation implements store.ReconciliationReader.
func (s *Store) GetReconciliation(ctx context.Context, scope domain.Scope, id string) (*domain.Reconciliation, error) {
	return GetReconciliationWithClient(ctx, s.client, s.ds, scope.CompanyID, id)
}

// ListReconciliations implements store.ReconciliationReader.
func (s *Store) ListReconciliations(ctx context.Context, scope domain.Scope, filter store.ReconciliationFilter) ([]domain.Reconciliation, error) {
	return ListReconciliationsWithClient(ctx, s.client, s.ds, scope.CompanyID, filter)
}

// RunInTx implements store.Store.
func (s *Store) RunInTx(ctx context.Context, scope domain.Scope, fn func(ctx context.Context, tx store.Tx) error) error {
	return RunInTxWithClient(ctx, s.client, s.ds, scope, fn)
}
