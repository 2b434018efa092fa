// Package reconcile applies and undoes reconciliations atomically.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/bank-reconciliation/internal/audit"
	"github.com/dvloznov/bank-reconciliation/internal/domain"
	"github.com/dvloznov/bank-reconciliation/internal/logger"
	"github.com/dvloznov/bank-reconciliation/internal/store"
	"github.com/dvloznov/bank-reconciliation/internal/suggest"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CommitItem is one entry selected to settle the transaction.
type CommitItem struct {
	Entry      domain.EntryRef `json:"entry"`
	AmountUsed decimal.Decimal `json:"amount_used"`
}

// CommitRequest links a bank transaction to entries.
type CommitRequest struct {
	TransactionID string        `json:"transaction_id"`
	Items         []CommitItem  `json:"items"`
	Method        domain.Method `json:"method"`
	Notes         string        `json:"notes,omitempty"`

	// Optional metadata. MatchType is derived from the item count when empty.
	MatchType       domain.MatchType `json:"match_type,omitempty"`
	ConfidenceScore *float64         `json:"confidence_score,omitempty"`
	Actor           string           `json:"actor,omitempty"`
}

// Option configures a Committer or Reverser.
type Option func(*options)

type options struct {
	now   func() time.Time
	newID func() string
	audit audit.Logger
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator overrides how record and item IDs are generated.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

// WithAudit sets the audit log. The default discards events.
func WithAudit(l audit.Logger) Option {
	return func(o *options) { o.audit = l }
}

func buildOptions(opts []Option) options {
	o := options{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
		audit: audit.Nop{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Committer writes reconciliations.
type Committer struct {
	store store.Store
	opts  options
}

// NewCommitter creates a Committer over s.
func NewCommitter(s store.Store, opts ...Option) *Committer {
	return &Committer{store: s, opts: buildOptions(opts)}
}

// Commit validates req against the current state and, inside one store
// transaction, records the reconciliation, marks the bank transaction and
// settles every entry. It returns the new reconciliation ID.
func (c *Committer) Commit(ctx context.Context, scope domain.Scope, req CommitRequest) (string, error) {
	if !scope.Valid() {
		return "", invalid("company scope is required")
	}
	if err := validateRequest(req); err != nil {
		return "", err
	}

	log := logger.WithCompany(logger.FromContext(ctx), scope.CompanyID)

	var (
		rec   domain.ReconciliationRecord
		items []domain.ReconciliationItem
	)
	err := c.store.RunInTx(ctx, scope, func(ctx context.Context, tx store.Tx) error {
		var err error
		rec, items, err = c.commitInTx(ctx, tx, req)
		return err
	})
	if err != nil {
		log.Warn().
			Err(err).
			Str("transaction_id", req.TransactionID).
			Str("code", Code(err)).
			Msg("Reconciliation commit rejected")
		return "", fmt.Errorf("Commit: %w", conflict(err))
	}

	log.Info().
		Str("reconciliation_id", rec.ID).
		Str("transaction_id", rec.BankTransactionID).
		Str("method", string(rec.Method)).
		Int("items", len(items)).
		Msg("Reconciliation committed")

	c.opts.audit.Record(ctx, audit.Event{
		CompanyID:         scope.CompanyID,
		Type:              audit.EventCommitted,
		ReconciliationID:  rec.ID,
		BankTransactionID: rec.BankTransactionID,
		Actor:             rec.CreatedBy,
		Data: map[string]interface{}{
			"method":       string(rec.Method),
			"match_type":   string(rec.MatchType),
			"total_amount": rec.TotalAmount.StringFixed(2),
			"entries":      entryIDs(items),
		},
	})

	return rec.ID, nil
}

func (c *Committer) commitInTx(ctx context.Context, tx store.Tx, req CommitRequest) (domain.ReconciliationRecord, []domain.ReconciliationItem, error) {
	bankTx, err := tx.GetTransaction(ctx, req.TransactionID)
	if err != nil {
		return domain.ReconciliationRecord{}, nil, notFound(err, ErrTransactionNotFound)
	}
	if bankTx.IsReconciled {
		return domain.ReconciliationRecord{}, nil, fmt.Errorf("%w: %s", ErrAlreadyReconciled, bankTx.ID)
	}

	kind := bankTx.EntryKind()
	entries := make([]domain.FinancialEntry, len(req.Items))
	selected := decimal.Zero
	for i, item := range req.Items {
		if item.Entry.Kind != kind {
			return domain.ReconciliationRecord{}, nil, invalid("%s cannot settle a %s transaction", item.Entry, directionOf(bankTx))
		}
		e, err := tx.GetEntry(ctx, item.Entry)
		if err != nil {
			return domain.ReconciliationRecord{}, nil, notFound(err, ErrEntryNotFound)
		}
		if !e.IsOpen() {
			return domain.ReconciliationRecord{}, nil, fmt.Errorf("%w: %s", ErrEntryAlreadySettled, item.Entry)
		}
		if item.AmountUsed.GreaterThan(e.Amount) {
			return domain.ReconciliationRecord{}, nil, invalid("amount used %s exceeds %s amount %s",
				item.AmountUsed.StringFixed(2), item.Entry, e.Amount.StringFixed(2))
		}
		entries[i] = *e
		selected = selected.Add(item.AmountUsed)
	}

	expected := bankTx.AbsAmount()
	if !domain.AmountsEqual(selected, expected) {
		return domain.ReconciliationRecord{}, nil, &AmountMismatchError{
			Expected:   expected,
			Selected:   selected,
			Difference: expected.Sub(selected),
		}
	}

	now := c.opts.now()
	matchType := req.MatchType
	if matchType == "" {
		matchType = domain.MatchTypeExact
		if len(req.Items) > 1 {
			matchType = domain.MatchTypeAggregation
		}
	}

	rec := domain.ReconciliationRecord{
		ID:                c.opts.newID(),
		CompanyID:         bankTx.CompanyID,
		BankTransactionID: bankTx.ID,
		TotalAmount:       expected,
		Method:            req.Method,
		Notes:             req.Notes,
		MatchType:         matchType,
		ConfidenceScore:   req.ConfidenceScore,
		Difference:        expected.Sub(selected),
		CreatedAt:         now,
		CreatedBy:         req.Actor,
	}

	items := make([]domain.ReconciliationItem, len(req.Items))
	for i, item := range req.Items {
		due := entries[i].DueDate
		items[i] = domain.ReconciliationItem{
			ID:               c.opts.newID(),
			ReconciliationID: rec.ID,
			Entry:            item.Entry,
			AmountUsed:       item.AmountUsed,
			OriginalAmount:   entries[i].Amount,
			CounterpartyName: entries[i].CounterpartyName,
			DueDate:          &due,
		}
	}

	if err := tx.InsertReconciliation(ctx, rec, items); err != nil {
		return domain.ReconciliationRecord{}, nil, fmt.Errorf("failed to insert reconciliation: %w", err)
	}
	if err := tx.MarkTransactionReconciled(ctx, bankTx.ID, rec.ID, now); err != nil {
		return domain.ReconciliationRecord{}, nil, fmt.Errorf("failed to mark transaction: %w", err)
	}
	for _, item := range items {
		settlement := store.Settlement{
			ReconciliationID: rec.ID,
			PaidAt:           bankTx.Date,
			PaidAmount:       item.AmountUsed,
		}
		if err := tx.SettleEntry(ctx, item.Entry, settlement); err != nil {
			return domain.ReconciliationRecord{}, nil, fmt.Errorf("failed to settle %s: %w", item.Entry, err)
		}
	}

	return rec, items, nil
}

// ConfirmSuggestion commits s with the method derived from its confidence.
func (c *Committer) ConfirmSuggestion(ctx context.Context, scope domain.Scope, s suggest.Suggestion, actor string) (string, error) {
	return c.Commit(ctx, scope, RequestFromSuggestion(s, actor))
}

// RequestFromSuggestion builds the commit request confirming s.
func RequestFromSuggestion(s suggest.Suggestion, actor string) CommitRequest {
	items := make([]CommitItem, len(s.Entries))
	for i, e := range s.Entries {
		items[i] = CommitItem{Entry: e.Ref, AmountUsed: e.AmountUsed}
	}
	score := s.ConfidenceScore
	return CommitRequest{
		TransactionID:   s.TransactionID,
		Items:           items,
		Method:          s.ConfidenceLevel.Method(),
		Notes:           strings.Join(s.Reasons, "; "),
		MatchType:       s.MatchType,
		ConfidenceScore: &score,
		Actor:           actor,
	}
}

// ConfirmResult is the outcome of one suggestion in a batch.
type ConfirmResult struct {
	TransactionID    string `json:"transaction_id"`
	ReconciliationID string `json:"reconciliation_id,omitempty"`
	Code             string `json:"code,omitempty"`
	Message          string `json:"message,omitempty"`
	Err              error  `json:"-"`
}

// BatchResult summarizes ConfirmBatch.
type BatchResult struct {
	SuccessCount int             `json:"success_count"`
	ErrorCount   int             `json:"error_count"`
	Results      []ConfirmResult `json:"results"`
}

// ConfirmBatch commits each suggestion independently. A failure is recorded
// against its transaction and does not stop the rest.
func (c *Committer) ConfirmBatch(ctx context.Context, scope domain.Scope, suggestions []suggest.Suggestion, actor string) BatchResult {
	res := BatchResult{Results: make([]ConfirmResult, 0, len(suggestions))}
	for _, s := range suggestions {
		r := ConfirmResult{TransactionID: s.TransactionID}
		var err error
		if err = ctx.Err(); err == nil {
			r.ReconciliationID, err = c.ConfirmSuggestion(ctx, scope, s, actor)
		}
		if err != nil {
			r.Err = err
			r.Code = Code(err)
			r.Message = err.Error()
			res.ErrorCount++
		} else {
			res.SuccessCount++
		}
		res.Results = append(res.Results, r)
	}
	return res
}

func validateRequest(req CommitRequest) error {
	if strings.TrimSpace(req.TransactionID) == "" {
		return invalid("transaction ID is required")
	}
	if len(req.Items) == 0 {
		return invalid("no entries selected")
	}
	if !req.Method.Valid() {
		return invalid("unknown method %q", req.Method)
	}
	seen := make(map[domain.EntryRef]bool, len(req.Items))
	for _, item := range req.Items {
		if !item.Entry.Kind.Valid() || item.Entry.ID == "" {
			return invalid("malformed entry reference %q", item.Entry)
		}
		if seen[item.Entry] {
			return invalid("%s selected twice", item.Entry)
		}
		seen[item.Entry] = true
		if !item.AmountUsed.IsPositive() {
			return invalid("amount used for %s must be positive", item.Entry)
		}
	}
	return nil
}

func notFound(err error, sentinel error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %v", sentinel, err)
	}
	return err
}

func directionOf(tx *domain.BankTransaction) string {
	if tx.IsCredit() {
		return "credit"
	}
	return "debit"
}

func entryIDs(items []domain.ReconciliationItem) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.Entry.String()
	}
	return ids
}
