package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind tells receivables and payables apart.
type EntryKind string

const (
	// EntryKindReceivable is money owed to the company.
	EntryKindReceivable EntryKind = "receivable"
	// EntryKindPayable is money the company owes.
	EntryKindPayable EntryKind = "payable"
)

// Valid reports whether k is one of the known kinds.
func (k EntryKind) Valid() bool {
	return k == EntryKindReceivable || k == EntryKindPayable
}

// ParseEntryKind accepts the canonical names plus the short forms used on
// the command line.
func ParseEntryKind(s string) (EntryKind, error) {
	switch s {
	case "receivable", "ar", "r":
		return EntryKindReceivable, nil
	case "payable", "ap", "p":
		return EntryKindPayable, nil
	}
	return "", fmt.Errorf("unknown entry kind %q", s)
}

// EntryRef points at a single receivable or payable.
type EntryRef struct {
	Kind EntryKind `json:"kind"`
	ID   string    `json:"id"`
}

func (r EntryRef) String() string {
	return string(r.Kind) + ":" + r.ID
}

// FinancialEntry is an open item in the receivables or payables ledger.
type FinancialEntry struct {
	ID               string          `json:"id"`
	CompanyID        string          `json:"company_id"`
	Kind             EntryKind       `json:"kind"`
	DocumentNumber   string          `json:"document_number,omitempty"`
	Reference        string          `json:"reference,omitempty"` // bank slip number when issued
	Description      string          `json:"description,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	DueDate          time.Time       `json:"due_date"`
	CounterpartyName string          `json:"counterparty_name,omitempty"`

	IsPaid           bool            `json:"is_paid"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	PaidAmount       decimal.Decimal `json:"paid_amount"`
	ReconciliationID string          `json:"reconciliation_id,omitempty"`
}

// Ref returns the polymorphic reference to e.
func (e FinancialEntry) Ref() EntryRef {
	return EntryRef{Kind: e.Kind, ID: e.ID}
}

// IsOpen reports whether e can still be settled.
func (e FinancialEntry) IsOpen() bool {
	return !e.IsPaid && e.ReconciliationID == ""
}

// Settle marks e paid by the given reconciliation.
func (e *FinancialEntry) Settle(reconciliationID string, paidAt time.Time, amount decimal.Decimal) {
	e.IsPaid = true
	e.PaidAt = &paidAt
	e.PaidAmount = amount
	e.ReconciliationID = reconciliationID
}

// Reopen clears every settlement field.
func (e *FinancialEntry) Reopen() {
	e.IsPaid = false
	e.PaidAt = nil
	e.PaidAmount = decimal.Zero
	e.ReconciliationID = ""
}
