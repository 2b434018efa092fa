package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/bank-reconciliation/internal/domain"
	"github.com/dvloznov/bank-reconciliation/internal/normalize"
	"github.com/dvloznov/bank-reconciliation/internal/store"
)

// Store is an in-memory implementation of store.Store.
// It is safe for concurrent use. RunInTx calls are serialized and stage their
// writes on copies, so a failed unit of work leaves no trace.
// Data is lost on restart - use the BigQuery store for persistence.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	transactions map[string]*domain.BankTransaction
	entries      map[domain.EntryRef]*domain.FinancialEntry
	records      map[string]*domain.ReconciliationRecord
	items        map[string][]domain.ReconciliationItem
	rules        map[string]*domain.MatchingRule
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		transactions: make(map[string]*domain.BankTransaction),
		entries:      make(map[domain.EntryRef]*domain.FinancialEntry),
		records:      make(map[string]*domain.ReconciliationRecord),
		items:        make(map[string][]domain.ReconciliationItem),
		rules:        make(map[string]*domain.MatchingRule),
	}
}

// PutTransaction inserts or replaces a bank transaction.
func (s *Store) PutTransaction(tx domain.BankTransaction) error {
	if tx.ID == "" || tx.CompanyID == "" {
		return fmt.Errorf("transaction ID and company ID are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[tx.ID] = &tx
	return nil
}

// PutEntry inserts or replaces a receivable or payable.
func (s *Store) PutEntry(e domain.FinancialEntry) error {
	if e.ID == "" || e.CompanyID == "" || !e.Kind.Valid() {
		return fmt.Errorf("entry ID, company ID and a valid kind are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.Ref()] = &e
	return nil
}

// PutRule inserts or replaces an alias rule.
func (s *Store) PutRule(r domain.MatchingRule) error {
	if r.ID == "" || r.CompanyID == "" {
		return fmt.Errorf("rule ID and company ID are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.ID] = &r
	return nil
}

// Transaction returns a copy of a stored transaction regardless of scope.
func (s *Store) Transaction(id string) (domain.BankTransaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.transactions[id]
	if !ok {
		return domain.BankTransaction{}, false
	}
	return *tx, true
}

// Entry returns a copy of a stored entry regardless of scope.
func (s *Store) Entry(ref domain.EntryRef) (domain.FinancialEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[ref]
	if !ok {
		return domain.FinancialEntry{}, false
	}
	return *e, true
}

// ListUnreconciledTransactions implements store.TransactionSource.
func (s *Store) ListUnreconciledTransactions(ctx context.Context, scope domain.Scope, filter store.TransactionFilter) ([]domain.BankTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids map[string]bool
	if len(filter.IDs) > 0 {
		ids = make(map[string]bool, len(filter.IDs))
		for _, id := range filter.IDs {
			ids[id] = true
		}
	}

	var result []domain.BankTransaction
	for _, tx := range s.transactions {
		if tx.CompanyID != scope.CompanyID || tx.IsReconciled {
			continue
		}
		if ids != nil && !ids[tx.ID] {
			continue
		}
		if !filter.StartDate.IsZero() && tx.Date.Before(domain.DateOnly(filter.StartDate)) {
			continue
		}
		if !filter.EndDate.IsZero() && domain.DateOnly(tx.Date).After(domain.DateOnly(filter.EndDate)) {
			continue
		}
		result = append(result, *tx)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].ID < result[j].ID
	})

	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

// ListOpenEntries implements store.EntrySource.
func (s *Store) ListOpenEntries(ctx context.Context, scope domain.Scope, kind domain.EntryKind, counterparty string) ([]domain.FinancialEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wantName := normalize.Text(counterparty)

	var result []domain.FinancialEntry
	for _, e := range s.entries {
		if e.CompanyID != scope.CompanyID || e.Kind != kind || !e.IsOpen() {
			continue
		}
		if wantName != "" && normalize.Text(e.CounterpartyName) != wantName {
			continue
		}
		result = append(result, *e)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ListActiveRules implements store.RuleSource.
func (s *Store) ListActiveRules(ctx context.Context, scope domain.Scope) ([]domain.MatchingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.MatchingRule
	for _, r := range s.rules {
		if r.CompanyID == scope.CompanyID && r.Active {
			result = append(result, *r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// GetTransaction implements store.RowReader.
func (s *Store) GetTransaction(ctx context.Context, scope domain.Scope, id string) (*domain.BankTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok || tx.CompanyID != scope.CompanyID {
		return nil, fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
	}
	c := *tx
	return &c, nil
}

// GetEntry implements store.RowReader.
func (s *Store) GetEntry(ctx context.Context, scope domain.Scope, ref domain.EntryRef) (*domain.FinancialEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[ref]
	if !ok || e.CompanyID != scope.CompanyID {
		return nil, fmt.Errorf("entry %s: %w", ref, store.ErrNotFound)
	}
	c := *e
	return &c, nil
}

// GetReconciliation implements store.ReconciliationReader.
func (s *Store) GetReconciliation(ctx context.Context, scope domain.Scope, id string) (*domain.Reconciliation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok || rec.CompanyID != scope.CompanyID {
		return nil, fmt.Errorf("reconciliation %s: %w", id, store.ErrNotFound)
	}
	return &domain.Reconciliation{Record: *rec, Items: copyItems(s.items[id])}, nil
}

// ListReconciliations implements store.ReconciliationReader.
func (s *Store) ListReconciliations(ctx context.Context, scope domain.Scope, filter store.ReconciliationFilter) ([]domain.Reconciliation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Reconciliation
	for id, rec := range s.records {
		if rec.CompanyID != scope.CompanyID {
			continue
		}
		if rec.IsReversed && !filter.IncludeReversed {
			continue
		}
		if !filter.StartDate.IsZero() && rec.CreatedAt.Before(filter.StartDate) {
			continue
		}
		if !filter.EndDate.IsZero() && rec.CreatedAt.After(filter.EndDate) {
			continue
		}
		result = append(result, domain.Reconciliation{Record: *rec, Items: copyItems(s.items[id])})
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i].Record, result[j].Record
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

// RunInTx implements store.Store.
func (s *Store) RunInTx(ctx context.Context, scope domain.Scope, fn func(ctx context.Context, tx store.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := newMemTx(s, scope)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tx.apply()
	return nil
}

func copyItems(items []domain.ReconciliationItem) []domain.ReconciliationItem {
	if items == nil {
		return nil
	}
	out := make([]domain.ReconciliationItem, len(items))
	copy(out, items)
	return out
}

// Ensure Store implements store.Store.
var _ store.Store = (*Store)(nil)

// memTx stages writes until RunInTx applies them.
type memTx struct {
	s     *Store
	scope domain.Scope

	transactions map[string]*domain.BankTransaction
	entries      map[domain.EntryRef]*domain.FinancialEntry
	records      map[string]*domain.ReconciliationRecord
	items        map[string][]domain.ReconciliationItem
}

func newMemTx(s *Store, scope domain.Scope) *memTx {
	return &memTx{
		s:            s,
		scope:        scope,
		transactions: make(map[string]*domain.BankTransaction),
		entries:      make(map[domain.EntryRef]*domain.FinancialEntry),
		records:      make(map[string]*domain.ReconciliationRecord),
		items:        make(map[string][]domain.ReconciliationItem),
	}
}

func (t *memTx) apply() {
	for id, tx := range t.transactions {
		t.s.transactions[id] = tx
	}
	for ref, e := range t.entries {
		t.s.entries[ref] = e
	}
	for id, rec := range t.records {
		t.s.records[id] = rec
	}
	for id, items := range t.items {
		t.s.items[id] = items
	}
}

func (t *memTx) transaction(id string) (*domain.BankTransaction, bool) {
	if tx, ok := t.transactions[id]; ok {
		return tx, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	tx, ok := t.s.transactions[id]
	if !ok || tx.CompanyID != t.scope.CompanyID {
		return nil, false
	}
	c := *tx
	return &c, true
}

func (t *memTx) entry(ref domain.EntryRef) (*domain.FinancialEntry, bool) {
	if e, ok := t.entries[ref]; ok {
		return e, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	e, ok := t.s.entries[ref]
	if !ok || e.CompanyID != t.scope.CompanyID {
		return nil, false
	}
	c := *e
	return &c, true
}

func (t *memTx) record(id string) (*domain.ReconciliationRecord, []domain.ReconciliationItem, bool) {
	if rec, ok := t.records[id]; ok {
		return rec, t.items[id], true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	rec, ok := t.s.records[id]
	if !ok || rec.CompanyID != t.scope.CompanyID {
		return nil, nil, false
	}
	c := *rec
	return &c, copyItems(t.s.items[id]), true
}

func (t *memTx) GetTransaction(ctx context.Context, id string) (*domain.BankTransaction, error) {
	tx, ok := t.transaction(id)
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
	}
	c := *tx
	return &c, nil
}

func (t *memTx) GetEntry(ctx context.Context, ref domain.EntryRef) (*domain.FinancialEntry, error) {
	e, ok := t.entry(ref)
	if !ok {
		return nil, fmt.Errorf("entry %s: %w", ref, store.ErrNotFound)
	}
	c := *e
	return &c, nil
}

func (t *memTx) GetReconciliation(ctx context.Context, id string) (*domain.Reconciliation, error) {
	rec, items, ok := t.record(id)
	if !ok {
		return nil, fmt.Errorf("reconciliation %s: %w", id, store.ErrNotFound)
	}
	return &domain.Reconciliation{Record: *rec, Items: copyItems(items)}, nil
}

func (t *memTx) InsertReconciliation(ctx context.Context, rec domain.ReconciliationRecord, items []domain.ReconciliationItem) error {
	if _, _, exists := t.record(rec.ID); exists {
		return fmt.Errorf("reconciliation %s already exists: %w", rec.ID, store.ErrConflict)
	}
	rec.CompanyID = t.scope.CompanyID
	t.records[rec.ID] = &rec
	t.items[rec.ID] = copyItems(items)
	return nil
}

func (t *memTx) MarkTransactionReconciled(ctx context.Context, id, reconciliationID string, at time.Time) error {
	tx, ok := t.transaction(id)
	if !ok {
		return fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
	}
	if tx.IsReconciled {
		return fmt.Errorf("transaction %s already reconciled: %w", id, store.ErrConflict)
	}
	tx.IsReconciled = true
	tx.ReconciledWith = reconciliationID
	tx.ReconciledAt = &at
	t.transactions[id] = tx
	return nil
}

func (t *memTx) SettleEntry(ctx context.Context, ref domain.EntryRef, s store.Settlement) error {
	e, ok := t.entry(ref)
	if !ok {
		return fmt.Errorf("entry %s: %w", ref, store.ErrNotFound)
	}
	if !e.IsOpen() {
		return fmt.Errorf("entry %s not open: %w", ref, store.ErrConflict)
	}
	e.Settle(s.ReconciliationID, s.PaidAt, s.PaidAmount)
	t.entries[ref] = e
	return nil
}

func (t *memTx) MarkReversed(ctx context.Context, id string, at time.Time, by string, notes *string) error {
	rec, items, ok := t.record(id)
	if !ok {
		return fmt.Errorf("reconciliation %s: %w", id, store.ErrNotFound)
	}
	if rec.IsReversed {
		return fmt.Errorf("reconciliation %s already reversed: %w", id, store.ErrConflict)
	}
	rec.IsReversed = true
	rec.ReversedAt = &at
	rec.ReversedBy = by
	rec.ReversalNotes = notes
	t.records[id] = rec
	t.items[id] = items
	return nil
}

func (t *memTx) UnlinkTransaction(ctx context.Context, id, reconciliationID string) error {
	tx, ok := t.transaction(id)
	if !ok {
		return fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
	}
	if !tx.IsReconciled || tx.ReconciledWith != reconciliationID {
		return fmt.Errorf("transaction %s not linked to %s: %w", id, reconciliationID, store.ErrConflict)
	}
	tx.IsReconciled = false
	tx.ReconciledWith = ""
	tx.ReconciledAt = nil
	t.transactions[id] = tx
	return nil
}

func (t *memTx) ReopenEntry(ctx context.Context, ref domain.EntryRef, reconciliationID string) error {
	e, ok := t.entry(ref)
	if !ok {
		return fmt.Errorf("entry %s: %w", ref, store.ErrNotFound)
	}
	if e.ReconciliationID != reconciliationID {
		return fmt.Errorf("entry %s not linked to %s: %w", ref, reconciliationID, store.ErrConflict)
	}
	e.Reopen()
	t.entries[ref] = e
	return nil
}

var _ store.Tx = (*memTx)(nil)
