package bigquery

import (
	"fmt"
	"math/big"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/bank-reconciliation/internal/domain"
)

const (
	receivablesTable = "accounts_receivable"
	payablesTable    = "payables"
)

// EntryRow mirrors a row of accounts_receivable or payables. Both tables share
// this layout.
type EntryRow struct {
	ID        string `bigquery:"id"`         // REQUIRED
	CompanyID string `bigquery:"company_id"` // REQUIRED

	DocumentNumber bigquery.NullString `bigquery:"document_number"`
	Reference      bigquery.NullString `bigquery:"reference"` // bank slip number
	Description    bigquery.NullString `bigquery:"description"`

	Amount           *big.Rat            `bigquery:"amount"`   // REQUIRED NUMERIC
	DueDate          civil.Date          `bigquery:"due_date"` // REQUIRED
	CounterpartyName bigquery.NullString `bigquery:"counterparty_name"`

	IsPaid           bigquery.NullBool      `bigquery:"is_paid"`
	PaidAt           bigquery.NullTimestamp `bigquery:"paid_at"`
	PaidAmount       *big.Rat               `bigquery:"paid_amount"` // NULLABLE NUMERIC
	ReconciliationID bigquery.NullString    `bigquery:"reconciliation_id"`
}

const entryColumns = `
	id, company_id, document_number, reference, description,
	amount, due_date, counterparty_name,
	is_paid, paid_at, paid_amount, reconciliation_id`

// ToDomain converts the row, tagging it with kind.
func (r *EntryRow) ToDomain(kind domain.EntryKind) domain.FinancialEntry {
	e := domain.FinancialEntry{
		ID:               r.ID,
		CompanyID:        r.CompanyID,
		Kind:             kind,
		DocumentNumber:   r.DocumentNumber.StringVal,
		Reference:        r.Reference.StringVal,
		Description:      r.Description.StringVal,
		Amount:           ratToDecimal(r.Amount),
		DueDate:          r.DueDate.In(utc),
		CounterpartyName: r.CounterpartyName.StringVal,
		IsPaid:           r.IsPaid.Valid && r.IsPaid.Bool,
		PaidAmount:       ratToDecimal(r.PaidAmount),
		ReconciliationID: r.ReconciliationID.StringVal,
	}
	if r.PaidAt.Valid {
		at := r.PaidAt.Timestamp
		e.PaidAt = &at
	}
	return e
}

// entryTable returns the table holding entries of kind.
func entryTable(kind domain.EntryKind) (string, error) {
	switch kind {
	case domain.EntryKindReceivable:
		return receivablesTable, nil
	case domain.EntryKindPayable:
		return payablesTable, nil
	default:
		return "", fmt.Errorf("unknown entry kind %q", kind)
	}
}
