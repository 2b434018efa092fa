package suggest

import (
	"time"

	"github.com/dvloznov/bank-reconciliation/internal/domain"
	"github.com/dvloznov/bank-reconciliation/internal/matching"
	"github.com/shopspring/decimal"
)

// SuggestedEntry is one entry line of a suggestion.
type SuggestedEntry struct {
	Ref              domain.EntryRef `json:"ref"`
	DocumentNumber   string          `json:"document_number,omitempty"`
	CounterpartyName string          `json:"counterparty_name,omitempty"`
	DueDate          time.Time       `json:"due_date"`
	Amount           decimal.Decimal `json:"amount"`
	AmountUsed       decimal.Decimal `json:"amount_used"`
}

// Suggestion proposes settling one bank transaction with a set of entries.
type Suggestion struct {
	TransactionID   string                   `json:"transaction_id"`
	Transaction     domain.BankTransaction   `json:"transaction"`
	Entries         []SuggestedEntry         `json:"entries"`
	ConfidenceScore float64                  `json:"confidence_score"`
	ConfidenceLevel matching.ConfidenceLevel `json:"confidence_level"`
	MatchType       domain.MatchType         `json:"match_type"`
	Difference      decimal.Decimal          `json:"difference"`
	Reasons         []string                 `json:"reasons"`
	ExtractedName   string                   `json:"extracted_name,omitempty"`
	RequiresReview  bool                     `json:"requires_review"`

	// RawScore is the unclamped score used for ranking.
	RawScore float64 `json:"raw_score"`
}

// EntryIDs returns the suggested entry IDs in order.
func (s Suggestion) EntryIDs() []string {
	ids := make([]string, len(s.Entries))
	for i, e := range s.Entries {
		ids[i] = e.Ref.ID
	}
	return ids
}

// Refs returns the suggested entry references in order.
func (s Suggestion) Refs() []domain.EntryRef {
	refs := make([]domain.EntryRef, len(s.Entries))
	for i, e := range s.Entries {
		refs[i] = e.Ref
	}
	return refs
}

// UnmatchedTransaction is a transaction for which no candidate was found.
type UnmatchedTransaction struct {
	TransactionID string          `json:"transaction_id"`
	Date          time.Time       `json:"date"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	ExtractedName string          `json:"extracted_name,omitempty"`
}

// Summary counts the outcome of a batch. Total counts suggestions, not
// transactions. Every analyzed transaction ends up in exactly one of three
// places: it has a suggestion in the batch, it is Unmatched, or it is
// Deferred. Deferred transactions had candidates but lost them all to the
// exclusive pass or the MaxSuggestions cap; a later run picks them up.
type Summary struct {
	Total        int `json:"total"`
	High         int `json:"high"`
	Medium       int `json:"medium"`
	Low          int `json:"low"`
	Unmatched    int `json:"unmatched"`
	Deferred     int `json:"deferred"`
	Analyzed     int `json:"analyzed"`
	Aggregations int `json:"aggregations"`
	RulesActive  int `json:"rules_active"`
}

// Batch is the result of one suggestion pass.
type Batch struct {
	Suggestions []Suggestion           `json:"suggestions"`
	Unmatched   []UnmatchedTransaction `json:"unmatched"`
	Summary     Summary                `json:"summary"`
}

// ByLevel returns the suggestions at the given confidence level, in batch order.
func (b *Batch) ByLevel(level matching.ConfidenceLevel) []Suggestion {
	var out []Suggestion
	for _, s := range b.Suggestions {
		if s.ConfidenceLevel == level {
			out = append(out, s)
		}
	}
	return out
}

func newSuggestion(tx domain.BankTransaction, c matching.Candidate, score matching.Score, extracted string) Suggestion {
	entries := make([]SuggestedEntry, len(c.Entries))
	for i, e := range c.Entries {
		entries[i] = SuggestedEntry{
			Ref:              e.Ref(),
			DocumentNumber:   e.DocumentNumber,
			CounterpartyName: e.CounterpartyName,
			DueDate:          e.DueDate,
			Amount:           e.Amount,
			AmountUsed:       e.Amount,
		}
	}
	return Suggestion{
		TransactionID:   tx.ID,
		Transaction:     tx,
		Entries:         entries,
		ConfidenceScore: score.Value,
		ConfidenceLevel: score.Level,
		MatchType:       c.MatchType,
		Difference:      tx.AbsAmount().Sub(c.Total()),
		Reasons:         score.Reasons,
		ExtractedName:   extracted,
		RequiresReview:  score.Level != matching.ConfidenceHigh,
		RawScore:        score.Raw,
	}
}

func newUnmatched(tx domain.BankTransaction, extracted string) UnmatchedTransaction {
	return UnmatchedTransaction{
		TransactionID: tx.ID,
		Date:          tx.Date,
		Description:   tx.Description,
		Amount:        tx.Amount,
		ExtractedName: extracted,
	}
}
