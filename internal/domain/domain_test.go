package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestAmountsEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"identical", "1500.00", "1500", true},
		{"sub-cent difference", "100.004", "100", true},
		{"one cent apart", "1500.00", "1499.99", false},
		{"far apart", "500", "499", false},
		{"negative equal", "-20.5", "-20.50", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AmountsEqual(decimal.RequireFromString(tt.a), decimal.RequireFromString(tt.b))
			if got != tt.want {
				t.Errorf("AmountsEqual(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestBankTransaction_EntryKind(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		txType string
		want   EntryKind
	}{
		{"positive credit", "100", "", EntryKindReceivable},
		{"negative debit", "-100", "", EntryKindPayable},
		{"typed debit with unsigned amount", "100", TransactionTypeDebit, EntryKindPayable},
		{"typed credit", "100", TransactionTypeCredit, EntryKindReceivable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := BankTransaction{Amount: decimal.RequireFromString(tt.amount), Type: tt.txType}
			if got := tx.EntryKind(); got != tt.want {
				t.Errorf("EntryKind() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBankTransaction_Payload(t *testing.T) {
	tx := BankTransaction{RawData: json.RawMessage(`{"pagador":{"nome":"ACME"}}`)}
	payload := tx.Payload()
	if payload == nil {
		t.Fatal("expected payload to decode")
	}
	if _, ok := payload["pagador"]; !ok {
		t.Errorf("expected pagador key, got %v", payload)
	}

	broken := BankTransaction{RawData: json.RawMessage(`not json`)}
	if broken.Payload() != nil {
		t.Error("expected nil payload for malformed raw data")
	}
}

func TestFinancialEntry_SettleAndReopen(t *testing.T) {
	e := FinancialEntry{ID: "e1", Kind: EntryKindPayable, Amount: decimal.NewFromInt(600)}
	if !e.IsOpen() {
		t.Fatal("new entry should be open")
	}

	paidAt := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	e.Settle("rec-1", paidAt, decimal.NewFromInt(600))
	if e.IsOpen() || !e.IsPaid || e.ReconciliationID != "rec-1" {
		t.Errorf("entry not settled: %+v", e)
	}

	e.Reopen()
	if !e.IsOpen() || e.PaidAt != nil || !e.PaidAmount.IsZero() {
		t.Errorf("entry not reopened: %+v", e)
	}
}

func TestParseEntryKind(t *testing.T) {
	for _, in := range []string{"receivable", "ar", "payable", "ap"} {
		if _, err := ParseEntryKind(in); err != nil {
			t.Errorf("ParseEntryKind(%q) unexpected error: %v", in, err)
		}
	}
	if _, err := ParseEntryKind("loan"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestMatchingRule_Applies(t *testing.T) {
	rule := MatchingRule{Active: true}
	if !rule.Applies(EntryKindPayable) || !rule.Applies(EntryKindReceivable) {
		t.Error("rule without kind should apply to both ledgers")
	}
	rule.Kind = EntryKindPayable
	if rule.Applies(EntryKindReceivable) {
		t.Error("payable rule applied to receivable")
	}
	rule.Active = false
	if rule.Applies(EntryKindPayable) {
		t.Error("inactive rule applied")
	}
}
