package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Method records how a reconciliation was decided.
type Method string

const (
	MethodManual   Method = "manual"
	MethodAIHigh   Method = "ai_high"
	MethodAIMedium Method = "ai_medium"
	MethodAILow    Method = "ai_low"
)

// Valid reports whether m is one of the known methods.
func (m Method) Valid() bool {
	switch m {
	case MethodManual, MethodAIHigh, MethodAIMedium, MethodAILow:
		return true
	}
	return false
}

// ParseMethod converts a user supplied method name.
func ParseMethod(s string) (Method, error) {
	m := Method(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown reconciliation method %q", s)
	}
	return m, nil
}

// MatchType classifies how a set of entries relates to a transaction amount.
type MatchType string

const (
	// MatchTypeExact is a single entry for the full amount.
	MatchTypeExact MatchType = "exact"
	// MatchTypeAggregation is several entries summing to the full amount.
	MatchTypeAggregation MatchType = "aggregation"
	// MatchTypePartial is a selection that does not sum to the amount.
	MatchTypePartial MatchType = "partial"
)

// ReconciliationRecord is the settlement event linking one bank transaction
// to one or more entries. Records are reversed, never deleted.
type ReconciliationRecord struct {
	ID                string          `json:"id"`
	CompanyID         string          `json:"company_id"`
	BankTransactionID string          `json:"bank_transaction_id"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	Method            Method          `json:"method"`
	Notes             string          `json:"notes,omitempty"`

	MatchType       MatchType       `json:"match_type,omitempty"`
	ConfidenceScore *float64        `json:"confidence_score,omitempty"`
	Difference      decimal.Decimal `json:"difference"`

	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by,omitempty"`

	IsReversed    bool       `json:"is_reversed"`
	ReversedAt    *time.Time `json:"reversed_at,omitempty"`
	ReversedBy    string     `json:"reversed_by,omitempty"`
	ReversalNotes *string    `json:"reversal_notes,omitempty"`
}

// Active reports whether the record still settles its entries.
func (r ReconciliationRecord) Active() bool {
	return !r.IsReversed
}

// ReconciliationItem is one entry line of a record.
type ReconciliationItem struct {
	ID               string          `json:"id"`
	ReconciliationID string          `json:"reconciliation_id"`
	Entry            EntryRef        `json:"entry"`
	AmountUsed       decimal.Decimal `json:"amount_used"`
	OriginalAmount   decimal.Decimal `json:"original_amount"`
	CounterpartyName string          `json:"counterparty_name,omitempty"`
	DueDate          *time.Time      `json:"due_date,omitempty"`
}

// Reconciliation bundles a record with its items.
type Reconciliation struct {
	Record ReconciliationRecord `json:"record"`
	Items  []ReconciliationItem `json:"items"`
}

// MatchingRule maps a recurring statement text to a known counterparty, so
// that descriptions like "DEB AUTOM 7781" still score against the supplier.
type MatchingRule struct {
	ID               string    `json:"id"`
	CompanyID        string    `json:"company_id"`
	SearchText       string    `json:"search_text"`
	CounterpartyName string    `json:"counterparty_name"`
	Kind             EntryKind `json:"kind,omitempty"` // empty applies to both ledgers
	Active           bool      `json:"active"`
}

// Applies reports whether the rule is relevant for transactions settling kind.
func (r MatchingRule) Applies(kind EntryKind) bool {
	return r.Active && (r.Kind == "" || r.Kind == kind)
}
