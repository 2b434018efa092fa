package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Scope identifies the tenant a read or write is performed for. Every store
// call takes one explicitly; nothing is inferred from session state.
type Scope struct {
	CompanyID string
}

// Valid reports whether the scope names a company.
func (s Scope) Valid() bool {
	return s.CompanyID != ""
}

// Transaction types as reported by the bank statement.
const (
	TransactionTypeCredit = "CREDIT"
	TransactionTypeDebit  = "DEBIT"
)

// BankTransaction is one imported bank-ledger line. Everything except the
// reconciliation status fields is immutable once imported.
type BankTransaction struct {
	ID          string          `json:"id"`
	CompanyID   string          `json:"company_id"`
	Date        time.Time       `json:"transaction_date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"` // signed: credits positive, debits negative
	Type        string          `json:"type,omitempty"`
	ExternalRef string          `json:"external_ref,omitempty"` // NSU or bank transaction code

	// RawData is the statement payload as delivered by the bank integration.
	RawData json.RawMessage `json:"raw_data,omitempty"`

	IsReconciled   bool       `json:"is_reconciled"`
	ReconciledWith string     `json:"reconciled_with,omitempty"`
	ReconciledAt   *time.Time `json:"reconciled_at,omitempty"`
}

// AbsAmount is the amount that the linked entries must add up to.
func (t BankTransaction) AbsAmount() decimal.Decimal {
	return t.Amount.Abs()
}

// IsCredit reports whether money came into the account. A typed DEBIT wins
// over the sign when the bank reports unsigned amounts.
func (t BankTransaction) IsCredit() bool {
	switch t.Type {
	case TransactionTypeDebit:
		return false
	case TransactionTypeCredit:
		return true
	}
	return t.Amount.IsPositive()
}

// EntryKind returns which ledger the transaction settles: credits settle
// receivables, debits settle payables.
func (t BankTransaction) EntryKind() EntryKind {
	if t.IsCredit() {
		return EntryKindReceivable
	}
	return EntryKindPayable
}

// Payload decodes RawData into a generic map. A missing or malformed payload
// yields nil.
func (t BankTransaction) Payload() map[string]interface{} {
	if len(t.RawData) == 0 {
		return nil
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(t.RawData, &payload); err != nil {
		return nil
	}
	return payload
}
