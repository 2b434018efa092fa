// Package api assembles the reconciliation HTTP server.
package api

import (
	"net/http"
	"time"

	"github.com/dvloznov/bank-reconciliation/internal/api/handlers"
	"github.com/dvloznov/bank-reconciliation/internal/api/middleware"
	"github.com/rs/zerolog"
)

// Handlers groups the endpoint handlers served by the router.
type Handlers struct {
	Suggestions     *handlers.SuggestionsHandler
	Reconciliations *handlers.ReconciliationsHandler
	Jobs            *handlers.JobsHandler
}

// NewRouter registers every route and wraps the mux in the middleware chain.
func NewRouter(h Handlers, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Suggestions endpoints
	mux.HandleFunc("GET /api/suggestions", h.Suggestions.ListSuggestions)
	mux.HandleFunc("POST /api/suggestions/explain", h.Suggestions.ExplainSuggestion)

	// Reconciliations endpoints
	mux.HandleFunc("POST /api/reconciliations", h.Reconciliations.CreateReconciliation)
	mux.HandleFunc("POST /api/reconciliations/preview", h.Reconciliations.PreviewReconciliation)
	mux.HandleFunc("POST /api/reconciliations/batch", h.Reconciliations.ConfirmBatch)
	mux.HandleFunc("GET /api/reconciliations", h.Reconciliations.ListReconciliations)
	mux.HandleFunc("GET /api/reconciliations/{id}", func(w http.ResponseWriter, r *http.Request) {
		h.Reconciliations.GetReconciliation(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("POST /api/reconciliations/{id}/reverse", func(w http.ResponseWriter, r *http.Request) {
		h.Reconciliations.ReverseReconciliation(w, r, r.PathValue("id"))
	})

	// Runs and jobs endpoints
	mux.HandleFunc("POST /api/runs", h.Jobs.EnqueueRun)
	mux.HandleFunc("GET /api/jobs", h.Jobs.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		h.Jobs.GetJob(w, r, r.PathValue("id"))
	})

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})

	return middleware.Chain(mux, log)
}
