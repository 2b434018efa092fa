package explain

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/bank-reconciliation/internal/domain"
	"github.com/dvloznov/bank-reconciliation/internal/matching"
	"github.com/dvloznov/bank-reconciliation/internal/suggest"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

// MockModel is a mock implementation of Model for testing.
type MockModel struct {
	GenerateTextFunc func(ctx context.Context, prompt string) (string, error)
}

func (m *MockModel) GenerateText(ctx context.Context, prompt string) (string, error) {
	return m.GenerateTextFunc(ctx, prompt)
}

func (m *MockModel) Name() string { return "mock-model" }

func sampleSuggestion() suggest.Suggestion {
	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	return suggest.Suggestion{
		TransactionID: "t1",
		Transaction: domain.BankTransaction{
			ID:          "t1",
			Date:        day,
			Description: "PIX ENVIADO FORNECEDOR BETA",
			Amount:      decimal.RequireFromString("-1800"),
		},
		Entries: []suggest.SuggestedEntry{
			{Ref: domain.EntryRef{Kind: domain.EntryKindPayable, ID: "p1"}, Amount: decimal.NewFromInt(600), DueDate: day, CounterpartyName: "Fornecedor Beta", DocumentNumber: "NF-1"},
			{Ref: domain.EntryRef{Kind: domain.EntryKindPayable, ID: "p2"}, Amount: decimal.NewFromInt(1200), DueDate: day, CounterpartyName: "Fornecedor Beta", DocumentNumber: "NF-2"},
		},
		ConfidenceScore: 92,
		ConfidenceLevel: matching.ConfidenceHigh,
		MatchType:       domain.MatchTypeAggregation,
		Difference:      decimal.Zero,
		Reasons:         []string{"aggregation of 2 entries", "name match"},
		ExtractedName:   "Fornecedor Beta",
	}
}

func TestExplain_ParsesFencedJSON(t *testing.T) {
	var prompt string
	model := &MockModel{GenerateTextFunc: func(ctx context.Context, p string) (string, error) {
		prompt = p
		return "```json\n{\"summary\":\"Two invoices from Beta add up to the payment.\",\"risks\":[],\"recommendation\":\"confirm\"}\n```", nil
	}}

	got, err := NewExplainer(model).Explain(context.Background(), sampleSuggestion())
	if err != nil {
		t.Fatal(err)
	}

	want := &Explanation{
		TransactionID:  "t1",
		Summary:        "Two invoices from Beta add up to the payment.",
		Risks:          []string{},
		Recommendation: "confirm",
		Model:          "mock-model",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("explanation mismatch (-want +got):\n%s", diff)
	}

	for _, s := range []string{"PIX ENVIADO FORNECEDOR BETA", "-1800.00", "payable p2: amount 1200.00", "Match type: aggregation", "Confidence: 92 (high)", "name match"} {
		if !strings.Contains(prompt, s) {
			t.Errorf("prompt missing %q", s)
		}
	}
}

func TestExplain_FallsBackToRawText(t *testing.T) {
	model := &MockModel{GenerateTextFunc: func(ctx context.Context, p string) (string, error) {
		return "  These entries look right.  ", nil
	}}

	got, err := NewExplainer(model).Explain(context.Background(), sampleSuggestion())
	if err != nil {
		t.Fatal(err)
	}
	if got.Summary != "These entries look right." || got.Recommendation != "" {
		t.Errorf("unexpected fallback: %+v", got)
	}
}

func TestExplain_Errors(t *testing.T) {
	failing := &MockModel{GenerateTextFunc: func(ctx context.Context, p string) (string, error) {
		return "", errors.New("quota exceeded")
	}}
	if _, err := NewExplainer(failing).Explain(context.Background(), sampleSuggestion()); err == nil {
		t.Error("expected model error to propagate")
	}

	if _, err := NewExplainer(failing).Explain(context.Background(), suggest.Suggestion{}); err == nil {
		t.Error("expected error for empty suggestion")
	}
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"chatter around", "Sure! {\"a\":1} Hope this helps.", `{"a":1}`},
		{"no object", "nothing here", "nothing here"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanModelJSON(tt.raw); got != tt.want {
				t.Errorf("cleanModelJSON(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
