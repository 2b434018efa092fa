package matching

import (
	"strings"
	"testing"

	"github.com/dvloznov/bank-reconciliation/internal/domain"
)

func hasReason(reasons []string, prefix string) bool {
	for _, r := range reasons {
		if strings.HasPrefix(r, prefix) {
			return true
		}
	}
	return false
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		score float64
		want  ConfidenceLevel
	}{
		{100, ConfidenceHigh},
		{90, ConfidenceHigh},
		{89.99, ConfidenceMedium},
		{70, ConfidenceMedium},
		{69.9, ConfidenceLow},
		{0, ConfidenceLow},
	}
	for _, tt := range tests {
		if got := LevelFor(tt.score); got != tt.want {
			t.Errorf("LevelFor(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestConfidenceLevel_Method(t *testing.T) {
	if ConfidenceHigh.Method() != domain.MethodAIHigh ||
		ConfidenceMedium.Method() != domain.MethodAIMedium ||
		ConfidenceLow.Method() != domain.MethodAILow {
		t.Error("unexpected level to method mapping")
	}
}

func TestScorer_ExactSameDaySameName(t *testing.T) {
	tx := mkTx("t1", "1500.00", "ACME COMERCIO")
	e := mkEntry("r1", domain.EntryKindReceivable, "1500.00", 0, "ACME COMERCIO")

	got := NewScorer().Score(tx, Candidate{Entries: []domain.FinancialEntry{e}, MatchType: domain.MatchTypeExact}, nil)

	if got.Value != 100 {
		t.Errorf("Value = %v, want 100", got.Value)
	}
	if got.Raw != 130 {
		t.Errorf("Raw = %v, want 130", got.Raw)
	}
	if got.Level != ConfidenceHigh {
		t.Errorf("Level = %s, want high", got.Level)
	}
	for _, want := range []string{"Exact amount", "Same date", "Name similarity 100%"} {
		if !hasReason(got.Reasons, want) {
			t.Errorf("missing reason %q in %v", want, got.Reasons)
		}
	}
}

func TestScorer_AggregationWithinThreeDays(t *testing.T) {
	tx := mkTx("t1", "-1800.00", "Fornecedor Beta")
	c := Candidate{
		MatchType: domain.MatchTypeAggregation,
		GroupName: "Fornecedor Beta",
		Entries: []domain.FinancialEntry{
			mkEntry("p1", domain.EntryKindPayable, "600", 1, "Fornecedor Beta"),
			mkEntry("p2", domain.EntryKindPayable, "600", 2, "Fornecedor Beta"),
			mkEntry("p3", domain.EntryKindPayable, "600", 3, "Fornecedor Beta"),
		},
	}

	got := NewScorer().Score(tx, c, nil)

	// 90 + avg(0.9, 0.7, 0.7)*20 + 1*15
	want := 90 + (0.9+0.7+0.7)/3*20 + 15
	if diff := got.Raw - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Raw = %v, want %v", got.Raw, want)
	}
	if got.Value != 100 || got.Level != ConfidenceHigh {
		t.Errorf("Value/Level = %v/%s, want 100/high", got.Value, got.Level)
	}
	if !hasReason(got.Reasons, "Aggregation: 3 entries for Fornecedor Beta") {
		t.Errorf("missing aggregation reason: %v", got.Reasons)
	}
	if !hasReason(got.Reasons, "Due dates within 3 days") {
		t.Errorf("missing date reason: %v", got.Reasons)
	}
}

func TestScorer_ExtractedNameImprovesText(t *testing.T) {
	tx := mkTx("t1", "250", "PIX RECEBIDO 99812")
	c := Candidate{
		MatchType: domain.MatchTypeExact,
		Entries:   []domain.FinancialEntry{mkEntry("r1", domain.EntryKindReceivable, "250", 20, "Gama Servicos")},
	}

	s := NewScorer()
	without := s.Score(tx, c, nil)
	with := s.Score(tx, c, []string{"GAMA SERVICOS"})

	if with.Raw <= without.Raw {
		t.Errorf("expected extracted name to raise raw score: %v <= %v", with.Raw, without.Raw)
	}
	if !hasReason(with.Reasons, "Counterparty: GAMA SERVICOS") {
		t.Errorf("missing counterparty reason: %v", with.Reasons)
	}
}

func TestScorer_ReferenceBonus(t *testing.T) {
	e := mkEntry("r1", domain.EntryKindReceivable, "80", 30, "Delta")
	e.Reference = "00012345"
	c := Candidate{MatchType: domain.MatchTypeExact, Entries: []domain.FinancialEntry{e}}

	plain := NewScorer().Score(mkTx("t1", "80", "BOLETO LIQUIDADO"), c, nil)
	tx := mkTx("t2", "80", "BOLETO LIQUIDADO")
	tx.ExternalRef = "00012345"
	ref := NewScorer().Score(tx, c, nil)

	if ref.Raw-plain.Raw != referenceRankingBonus {
		t.Errorf("reference bonus = %v, want %v", ref.Raw-plain.Raw, referenceRankingBonus)
	}
	if !hasReason(ref.Reasons, "Document reference match") {
		t.Errorf("missing reference reason: %v", ref.Reasons)
	}
}

func TestScorer_ScoreSelection(t *testing.T) {
	tx := mkTx("t1", "-1000", "Beta")
	a := mkEntry("p1", domain.EntryKindPayable, "400", 0, "Beta")
	b := mkEntry("p2", domain.EntryKindPayable, "600", 0, "Beta")
	c := mkEntry("p3", domain.EntryKindPayable, "1000", 0, "Beta")

	tests := []struct {
		name     string
		entries  []domain.FinancialEntry
		wantType domain.MatchType
		wantDiff string
		wantLvl  ConfidenceLevel
	}{
		{"single exact", []domain.FinancialEntry{c}, domain.MatchTypeExact, "0", ConfidenceHigh},
		{"aggregation", []domain.FinancialEntry{a, b}, domain.MatchTypeAggregation, "0", ConfidenceHigh},
		{"partial", []domain.FinancialEntry{a}, domain.MatchTypePartial, "600", ConfidenceHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := NewScorer().ScoreSelection(tx, tt.entries, nil)
			if sel.Candidate.MatchType != tt.wantType {
				t.Errorf("type = %s, want %s", sel.Candidate.MatchType, tt.wantType)
			}
			if sel.Difference.String() != tt.wantDiff {
				t.Errorf("difference = %s, want %s", sel.Difference, tt.wantDiff)
			}
			if sel.Score.Level != tt.wantLvl {
				t.Errorf("level = %s, want %s", sel.Score.Level, tt.wantLvl)
			}
		})
	}
}

func TestScorer_PartialFarDateIsMedium(t *testing.T) {
	tx := mkTx("t1", "-1000", "unrelated text")
	e := mkEntry("p1", domain.EntryKindPayable, "400", 40, "Beta")
	sel := NewScorer().ScoreSelection(tx, []domain.FinancialEntry{e}, nil)

	// 70 + 0.1*20 + 0
	if sel.Score.Value != 72 {
		t.Errorf("Value = %v, want 72", sel.Score.Value)
	}
	if sel.Score.Level != ConfidenceMedium {
		t.Errorf("Level = %s, want medium", sel.Score.Level)
	}
	if !hasReason(sel.Score.Reasons, "Partial: difference 600.00") {
		t.Errorf("missing partial reason: %v", sel.Score.Reasons)
	}
}
