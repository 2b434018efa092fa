package handlers

import (
	"net/http"

	"github.com/dvloznov/bank-reconciliation/internal/api/middleware"
	"github.com/dvloznov/bank-reconciliation/internal/domain"
	"github.com/dvloznov/bank-reconciliation/internal/logger"
	"github.com/dvloznov/bank-reconciliation/internal/reconcile"
	"github.com/dvloznov/bank-reconciliation/internal/store"
	"github.com/dvloznov/bank-reconciliation/internal/suggest"
)

// ReconciliationsHandler handles reconciliation endpoints.
type ReconciliationsHandler struct {
	committer Committer
	reverser  Reverser
	reader    store.ReconciliationReader
}

// NewReconciliationsHandler creates a new reconciliations handler.
func NewReconciliationsHandler(committer Committer, reverser Reverser, reader store.ReconciliationReader) *ReconciliationsHandler {
	return &ReconciliationsHandler{committer: committer, reverser: reverser, reader: reader}
}

// CreateReconciliation handles POST /api/reconciliations
func (h *ReconciliationsHandler) CreateReconciliation(w http.ResponseWriter, r *http.Request) {
	var req reconcile.CommitRequest
	if err := decodeBody(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.Method == "" {
		req.Method = domain.MethodManual
	}
	req.Actor = actorOf(r, req.Actor)

	id, err := h.committer.Commit(r.Context(), scopeOf(r), req)
	if err != nil {
		writeDomainError(w, r, "Failed to commit reconciliation", err)
		return
	}

	log := logger.FromContext(r.Context())
	log.Info().
		Str("reconciliation_id", id).
		Str("transaction_id", req.TransactionID).
		Int("items", len(req.Items)).
		Msg("Reconciliation committed")

	middleware.WriteJSON(w, http.StatusCreated, map[string]string{
		"reconciliation_id": id,
		"transaction_id":    req.TransactionID,
	})
}

// PreviewRequest is a manual selection to evaluate.
type PreviewRequest struct {
	TransactionID string            `json:"transaction_id"`
	Entries       []domain.EntryRef `json:"entries"`
}

// PreviewReconciliation handles POST /api/reconciliations/preview
func (h *ReconciliationsHandler) PreviewReconciliation(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := decodeBody(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.TransactionID == "" {
		badRequest(w, "transaction_id is required")
		return
	}

	preview, err := h.committer.Preview(r.Context(), scopeOf(r), req.TransactionID, req.Entries)
	if err != nil {
		writeDomainError(w, r, "Failed to preview selection", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, preview)
}

// BatchRequest confirms suggestions in one call.
type BatchRequest struct {
	Suggestions []suggest.Suggestion `json:"suggestions"`
	Actor       string               `json:"actor,omitempty"`
}

// ConfirmBatch handles POST /api/reconciliations/batch. Each suggestion is
// committed on its own; per-item failures are reported in the body with 200.
func (h *ReconciliationsHandler) ConfirmBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := decodeBody(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if len(req.Suggestions) == 0 {
		badRequest(w, "suggestions are required")
		return
	}

	res := h.committer.ConfirmBatch(r.Context(), scopeOf(r), req.Suggestions, actorOf(r, req.Actor))

	log := logger.FromContext(r.Context())
	log.Info().
		Int("confirmed", res.SuccessCount).
		Int("failed", res.ErrorCount).
		Msg("Batch confirmation finished")

	middleware.WriteJSON(w, http.StatusOK, res)
}

// ListReconciliations handles GET /api/reconciliations
func (h *ReconciliationsHandler) ListReconciliations(w http.ResponseWriter, r *http.Request) {
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

	recs, err := h.reader.ListReconciliations(r.Context(), scopeOf(r), store.ReconciliationFilter{
		StartDate:       start,
		EndDate:         endOfDay(end),
		IncludeReversed: r.URL.Query().Get("include_reversed") == "true",
		Limit:           limit,
	})
	if err != nil {
		writeDomainError(w, r, "Failed to list reconciliations", err)
		return
	}
	if recs == nil {
		recs = []domain.Reconciliation{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"reconciliations": recs,
		"count":           len(recs),
	})
}

// GetReconciliation handles GET /api/reconciliations/{id}
func (h *ReconciliationsHandler) GetReconciliation(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := h.reader.GetReconciliation(r.Context(), scopeOf(r), id)
	if err != nil {
		writeDomainError(w, r, "Failed to get reconciliation", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, rec)
}

// ReverseRequest is the optional body of a reversal.
type ReverseRequest struct {
	Reason *string `json:"reason,omitempty"`
	Actor  string  `json:"actor,omitempty"`
}

// ReverseReconciliation handles POST /api/reconciliations/{id}/reverse
func (h *ReconciliationsHandler) ReverseReconciliation(w http.ResponseWriter, r *http.Request, id string) {
	var req ReverseRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			badRequest(w, err.Error())
			return
		}
	}

	if err := h.reverser.Reverse(r.Context(), scopeOf(r), id, req.Reason, actorOf(r, req.Actor)); err != nil {
		writeDomainError(w, r, "Failed to reverse reconciliation", err)
		return
	}

	log := logger.FromContext(r.Context())
	log.Info().Str("reconciliation_id", id).Msg("Reconciliation reversed")

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"reconciliation_id": id,
		"status":            "reversed",
	})
}
