package handlers

import (
	"net/http"

	"github.com/dvloznov/bank-reconciliation/internal/api/middleware"
	"github.com/dvloznov/bank-reconciliation/internal/jobs"
	"github.com/dvloznov/bank-reconciliation/internal/logger"
)

// JobsHandler handles reconcile run and job endpoints.
type JobsHandler struct {
	store     jobs.JobStore
	publisher jobs.Publisher
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, publisher jobs.Publisher) *JobsHandler {
	return &JobsHandler{store: store, publisher: publisher}
}

// RunRequest starts an auto-reconcile run. Dates are YYYY-MM-DD.
type RunRequest struct {
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
	AutoConfirm bool   `json:"auto_confirm"`
	Actor       string `json:"actor,omitempty"`
}

// EnqueueRun handles POST /api/runs
func (h *JobsHandler) EnqueueRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := decodeBody(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	start, err := parseDate(req.StartDate, "start_date")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	end, err := parseDate(req.EndDate, "end_date")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		badRequest(w, "end_date is before start_date")
		return
	}

	job := &jobs.ReconcileRunJob{
		CompanyID:   scopeOf(r).CompanyID,
		StartDate:   start,
		EndDate:     end,
		AutoConfirm: req.AutoConfirm,
		Actor:       actorOf(r, req.Actor),
	}

	log := logger.FromContext(r.Context())
	if err := h.publisher.PublishReconcileRun(r.Context(), job); err != nil {
		log.Error().Err(err).Msg("Failed to enqueue reconcile run")
		middleware.WriteError(w, http.StatusServiceUnavailable, codeUnavailable, "Failed to enqueue reconcile run")
		return
	}

	log.Info().Str("job_id", job.JobID).Bool("auto_confirm", job.AutoConfirm).Msg("Reconcile run enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// GetJob handles GET /api/jobs/{id}. Jobs of other companies are reported
// as missing.
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if err == nil && job.CompanyID != scopeOf(r).CompanyID {
		err = jobs.ErrJobNotFound
	}
	if err != nil {
		writeDomainError(w, r, "Failed to get job", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	filter := jobs.JobFilter{
		CompanyID: scopeOf(r).CompanyID,
		Status:    jobs.JobStatus(r.URL.Query().Get("status")),
	}

	var err error
	if filter.Limit, err = parseInt(r, "limit"); err != nil {
		badRequest(w, err.Error())
		return
	}
	if filter.Offset, err = parseInt(r, "offset"); err != nil {
		badRequest(w, err.Error())
		return
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, "Failed to list jobs", err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
