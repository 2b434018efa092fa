package bigquery

import (
	"encoding/json"
	"math/big"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/bank-reconciliation/internal/domain"
	"github.com/shopspring/decimal"
)

// BankTransactionRow mirrors a row of bank_transactions.
type BankTransactionRow struct {
	ID        string `bigquery:"id"`         // REQUIRED
	CompanyID string `bigquery:"company_id"` // REQUIRED

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED
	Description     string     `bigquery:"description"`      // REQUIRED
	Amount          *big.Rat   `bigquery:"amount"`           // REQUIRED NUMERIC, signed

	Type        bigquery.NullString `bigquery:"type"`         // NULLABLE (CREDIT/DEBIT)
	ExternalRef bigquery.NullString `bigquery:"external_ref"` // NULLABLE
	RawData     bigquery.NullJSON   `bigquery:"raw_data"`     // NULLABLE JSON

	IsReconciled   bigquery.NullBool      `bigquery:"is_reconciled"`
	ReconciledWith bigquery.NullString    `bigquery:"reconciled_with"`
	ReconciledAt   bigquery.NullTimestamp `bigquery:"reconciled_at"`
}

const bankTransactionColumns = `
	id, company_id, transaction_date, description, amount,
	type, external_ref, raw_data,
	is_reconciled, reconciled_with, reconciled_at`

// ToDomain converts the row.
func (r *BankTransactionRow) ToDomain() domain.BankTransaction {
	tx := domain.BankTransaction{
		ID:             r.ID,
		CompanyID:      r.CompanyID,
		Date:           r.TransactionDate.In(utc),
		Description:    r.Description,
		Amount:         ratToDecimal(r.Amount),
		Type:           r.Type.StringVal,
		ExternalRef:    r.ExternalRef.StringVal,
		IsReconciled:   r.IsReconciled.Valid && r.IsReconciled.Bool,
		ReconciledWith: r.ReconciledWith.StringVal,
	}
	if r.RawData.Valid && r.RawData.JSONVal != "" {
		tx.RawData = json.RawMessage(r.RawData.JSONVal)
	}
	if r.ReconciledAt.Valid {
		at := r.ReconciledAt.Timestamp
		tx.ReconciledAt = &at
	}
	return tx
}

func ratToDecimal(r *big.Rat) decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigRat(r, numericScale)
}

func decimalToRat(d decimal.Decimal) *big.Rat {
	return d.Rat()
}
