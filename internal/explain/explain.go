// Package explain asks an LLM to describe a reconciliation suggestion in
// plain language. The text is returned as the model wrote it.
package explain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/bank-reconciliation/internal/logger"
	"github.com/dvloznov/bank-reconciliation/internal/suggest"
)

// Explanation is the model's view of one suggestion.
type Explanation struct {
	TransactionID  string   `json:"transaction_id"`
	Summary        string   `json:"summary"`
	Risks          []string `json:"risks,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"` // confirm, review or reject
	Model          string   `json:"model"`
}

// Explainer builds prompts and parses model answers.
type Explainer struct {
	model Model
}

// NewExplainer creates an Explainer on top of model.
func NewExplainer(model Model) *Explainer {
	return &Explainer{model: model}
}

// Explain describes why the suggestion's entries settle its transaction.
// When the model ignores the JSON format, its raw text becomes the summary.
func (e *Explainer) Explain(ctx context.Context, s suggest.Suggestion) (*Explanation, error) {
	if s.TransactionID == "" || len(s.Entries) == 0 {
		return nil, fmt.Errorf("Explain: suggestion has no transaction or entries")
	}

	raw, err := e.model.GenerateText(ctx, buildPrompt(s))
	if err != nil {
		return nil, fmt.Errorf("Explain: %w", err)
	}

	out := &Explanation{}
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), out); err != nil || out.Summary == "" {
		log := logger.FromContext(ctx)
		log.Warn().Str("transaction_id", s.TransactionID).Msg("Model answer was not the requested JSON, returning raw text")
		out = &Explanation{Summary: strings.TrimSpace(raw)}
	}
	out.TransactionID = s.TransactionID
	out.Model = e.model.Name()
	return out, nil
}

func buildPrompt(s suggest.Suggestion) string {
	var b strings.Builder
	b.WriteString("You review bank reconciliation suggestions for an accounts team.\n\n")
	b.WriteString("Bank transaction:\n")
	fmt.Fprintf(&b, "- date: %s\n", s.Transaction.Date.Format("2006-01-02"))
	fmt.Fprintf(&b, "- description: %s\n", s.Transaction.Description)
	fmt.Fprintf(&b, "- amount: %s\n", s.Transaction.Amount.StringFixed(2))
	if s.ExtractedName != "" {
		fmt.Fprintf(&b, "- counterparty found in statement: %s\n", s.ExtractedName)
	}

	b.WriteString("\nSuggested entries:\n")
	for _, en := range s.Entries {
		fmt.Fprintf(&b, "- %s %s: amount %s, due %s, counterparty %q, document %q\n",
			en.Ref.Kind, en.Ref.ID, en.Amount.StringFixed(2), en.DueDate.Format("2006-01-02"),
			en.CounterpartyName, en.DocumentNumber)
	}

	fmt.Fprintf(&b, "\nMatch type: %s\n", s.MatchType)
	fmt.Fprintf(&b, "Confidence: %.0f (%s)\n", s.ConfidenceScore, s.ConfidenceLevel)
	fmt.Fprintf(&b, "Difference: %s\n", s.Difference.StringFixed(2))
	if len(s.Reasons) > 0 {
		fmt.Fprintf(&b, "Scoring reasons: %s\n", strings.Join(s.Reasons, "; "))
	}

	b.WriteString("\nExplain in two or three sentences whether these entries settle the transaction.\n")
	b.WriteString("Return ONLY a raw JSON object with these fields:\n")
	b.WriteString("- \"summary\": string\n")
	b.WriteString("- \"risks\": array of strings (may be empty)\n")
	b.WriteString("- \"recommendation\": one of \"confirm\", \"review\", \"reject\"\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	return b.String()
}

// cleanModelJSON strips Markdown fences and any text around the outermost
// JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return s
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
