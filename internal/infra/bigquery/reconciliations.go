package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/bank-reconciliation/internal/domain"
)

const (
	reconciliationsTable = "bank_reconciliations"
	itemsTable           = "bank_reconciliation_items"
)

// ReconciliationRow mirrors a row of bank_reconciliations.
type ReconciliationRow struct {
	ID                string   `bigquery:"id"`
	CompanyID         string   `bigquery:"company_id"`
	BankTransactionID string   `bigquery:"bank_transaction_id"`
	TotalAmount       *big.Rat `bigquery:"total_amount"`
	Method            string   `bigquery:"method"`

	Notes           bigquery.NullString  `bigquery:"notes"`
	MatchType       bigquery.NullString  `bigquery:"match_type"`
	ConfidenceScore bigquery.NullFloat64 `bigquery:"confidence_score"`
	Difference      *big.Rat             `bigquery:"difference"`

	CreatedAt time.Time           `bigquery:"created_at"`
	CreatedBy bigquery.NullString `bigquery:"created_by"`

	IsReversed    bigquery.NullBool      `bigquery:"is_reversed"`
	ReversedAt    bigquery.NullTimestamp `bigquery:"reversed_at"`
	ReversedBy    bigquery.NullString    `bigquery:"reversed_by"`
	ReversalNotes bigquery.NullString    `bigquery:"reversal_notes"`
}

const reconciliationColumns = `
	id, company_id, bank_transaction_id, total_amount, method,
	notes, match_type, confidence_score, difference,
	created_at, created_by,
	is_reversed, reversed_at, reversed_by, reversal_notes`

// ToDomain converts the row.
func (r *ReconciliationRow) ToDomain() domain.ReconciliationRecord {
	rec := domain.ReconciliationRecord{
		ID:                r.ID,
		CompanyID:         r.CompanyID,
		BankTransactionID: r.BankTransactionID,
		TotalAmount:       ratToDecimal(r.TotalAmount),
		Method:            domain.Method(r.Method),
		Notes:             r.Notes.StringVal,
		MatchType:         domain.MatchType(r.MatchType.StringVal),
		Difference:        ratToDecimal(r.Difference),
		CreatedAt:         r.CreatedAt,
		CreatedBy:         r.CreatedBy.StringVal,
		IsReversed:        r.IsReversed.Valid && r.IsReversed.Bool,
		ReversedBy:        r.ReversedBy.StringVal,
	}
	if r.ConfidenceScore.Valid {
		score := r.ConfidenceScore.Float64
		rec.ConfidenceScore = &score
	}
	if r.ReversedAt.Valid {
		at := r.ReversedAt.Timestamp
		rec.ReversedAt = &at
	}
	if r.ReversalNotes.Valid {
		notes := r.ReversalNotes.StringVal
		rec.ReversalNotes = &notes
	}
	return rec
}

// ReconciliationItemRow mirrors a row of bank_reconciliation_items.
type ReconciliationItemRow struct {
	ID               string              `bigquery:"id"`
	ReconciliationID string              `bigquery:"reconciliation_id"`
	CompanyID        string              `bigquery:"company_id"`
	LineNo           int64               `bigquery:"line_no"`
	EntryKind        string              `bigquery:"entry_kind"`
	EntryID          string              `bigquery:"entry_id"`
	AmountUsed       *big.Rat            `bigquery:"amount_used"`
	OriginalAmount   *big.Rat            `bigquery:"original_amount"`
	CounterpartyName bigquery.NullString `bigquery:"counterparty_name"`
	DueDate          bigquery.NullDate   `bigquery:"due_date"`
}

const itemColumns = `
	id, reconciliation_id, company_id, line_no, entry_kind, entry_id,
	amount_used, original_amount, counterparty_name, due_date`

// ToDomain converts the row.
func (r *ReconciliationItemRow) ToDomain() domain.ReconciliationItem {
	item := domain.ReconciliationItem{
		ID:               r.ID,
		ReconciliationID: r.ReconciliationID,
		Entry:            domain.EntryRef{Kind: domain.EntryKind(r.EntryKind), ID: r.EntryID},
		AmountUsed:       ratToDecimal(r.AmountUsed),
		OriginalAmount:   ratToDecimal(r.OriginalAmount),
		CounterpartyName: r.CounterpartyName.StringVal,
	}
	if r.DueDate.Valid {
		due := r.DueDate.Date.In(utc)
		item.DueDate = &due
	}
	return item
}

func nullDate(t *time.Time) bigquery.NullDate {
	if t == nil {
		return bigquery.NullDate{}
	}
	return bigquery.NullDate{Date: civil.DateOf(*t), Valid: true}
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

func nullStringPtr(s *string) bigquery.NullString {
	if s == nil {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: *s, Valid: true}
}

func nullFloat(f *float64) bigquery.NullFloat64 {
	if f == nil {
		return bigquery.NullFloat64{}
	}
	return bigquery.NullFloat64{Float64: *f, Valid: true}
}
