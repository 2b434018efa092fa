package handlers

import (
	"net/http"

	"github.com/dvloznov/bank-reconciliation/internal/api/middleware"
	"github.com/dvloznov/bank-reconciliation/internal/domain"
	"github.com/dvloznov/bank-reconciliation/internal/logger"
	"github.com/dvloznov/bank-reconciliation/internal/store"
	"github.com/dvloznov/bank-reconciliation/internal/suggest"
)

// SuggestionsHandler handles suggestion endpoints.
type SuggestionsHandler struct {
	generator SuggestionGenerator
	explainer Explainer
}

// NewSuggestionsHandler creates a new suggestions handler. explainer may be
// nil, in which case explain requests get 503.
func NewSuggestionsHandler(generator SuggestionGenerator, explainer Explainer) *SuggestionsHandler {
	return &SuggestionsHandler{generator: generator, explainer: explainer}
}

// ListSuggestions handles GET /api/suggestions
func (h *SuggestionsHandler) ListSuggestions(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseDateRange(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	limit, err := parseInt(r, "limit")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	batch, err := h.generator.Generate(r.Context(), scopeOf(r), store.TransactionFilter{
		StartDate: start,
		EndDate:   end,
		Limit:     limit,
	})
	if err != nil {
		writeDomainError(w, r, "Failed to generate suggestions", err)
		return
	}
	if batch.Suggestions == nil {
		batch.Suggestions = []suggest.Suggestion{}
	}
	if batch.Unmatched == nil {
		batch.Unmatched = []suggest.UnmatchedTransaction{}
	}
	middleware.WriteJSON(w, http.StatusOK, batch)
}

// ExplainRequest selects the suggestion to explain. With no entries, the
// top-ranked suggestion for the transaction is used.
type ExplainRequest struct {
	TransactionID string            `json:"transaction_id"`
	Entries       []domain.EntryRef `json:"entries,omitempty"`
}

// ExplainSuggestion handles POST /api/suggestions/explain
func (h *SuggestionsHandler) ExplainSuggestion(w http.ResponseWriter, r *http.Request) {
	if h.explainer == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, codeUnavailable, "Explanations are not configured")
		return
	}

	var req ExplainRequest
	if err := decodeBody(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.TransactionID == "" {
		badRequest(w, "transaction_id is required")
		return
	}

	batch, err := h.generator.Generate(r.Context(), scopeOf(r), store.TransactionFilter{IDs: []string{req.TransactionID}})
	if err != nil {
		writeDomainError(w, r, "Failed to generate suggestions", err)
		return
	}

	s, ok := pickSuggestion(batch, req)
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, codeNotFound, "No suggestion for transaction "+req.TransactionID)
		return
	}

	exp, err := h.explainer.Explain(r.Context(), s)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("transaction_id", req.TransactionID).Msg("Failed to explain suggestion")
		middleware.WriteError(w, http.StatusBadGateway, codeUnavailable, "Failed to explain suggestion")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"suggestion":  s,
		"explanation": exp,
	})
}

// pickSuggestion finds the requested suggestion in batch order.
func pickSuggestion(batch *suggest.Batch, req ExplainRequest) (suggest.Suggestion, bool) {
	for _, s := range batch.Suggestions {
		if s.TransactionID != req.TransactionID {
			continue
		}
		if len(req.Entries) == 0 || sameRefs(s.Refs(), req.Entries) {
			return s, true
		}
	}
	return suggest.Suggestion{}, false
}

// sameRefs compares two selections ignoring order.
func sameRefs(a, b []domain.EntryRef) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[domain.EntryRef]int, len(a))
	for _, ref := range a {
		seen[ref]++
	}
	for _, ref := range b {
		if seen[ref] == 0 {
			return false
		}
		seen[ref]--
	}
	return true
}
