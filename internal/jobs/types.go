package jobs

import (
	"context"
	"errors"
	"time"
)

// ErrJobNotFound is returned by a JobStore for an unknown job ID.
var ErrJobNotFound = errors.New("job not found")

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeReconcileRun represents an automatic reconciliation run.
	JobTypeReconcileRun JobType = "reconcile_run"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// RunResult holds the counts a reconcile run produced.
type RunResult struct {
	Analyzed      int    `json:"analyzed"`
	Suggestions   int    `json:"suggestions"`
	High          int    `json:"high"`
	Medium        int    `json:"medium"`
	Low           int    `json:"low"`
	Unmatched     int    `json:"unmatched"`
	Deferred      int    `json:"deferred"`
	Confirmed     int    `json:"confirmed"`
	ConfirmFailed int    `json:"confirm_failed"`
	ReportURI     string `json:"report_uri,omitempty"`
}

// ReconcileRunJob asks for suggestions over a company's unreconciled
// transactions and, with AutoConfirm, commits the high-confidence ones.
type ReconcileRunJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// CompanyID is the tenant the run is scoped to.
	CompanyID string `json:"company_id"`

	// StartDate and EndDate bound the transaction dates. Zero is unbounded.
	StartDate time.Time `json:"start_date,omitempty"`
	EndDate   time.Time `json:"end_date,omitempty"`

	// AutoConfirm commits high-confidence suggestions in exclusive mode.
	AutoConfirm bool `json:"auto_confirm"`

	// Actor is recorded as the creator of auto-confirmed reconciliations.
	Actor string `json:"actor,omitempty"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`

	// Result is filled by the handler on success.
	Result *RunResult `json:"result,omitempty"`
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *ReconcileRunJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *ReconcileRunJob) GetType() JobType {
	return JobTypeReconcileRun
}

// GetStatus implements the Job interface.
func (j *ReconcileRunJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishReconcileRun publishes a reconcile run job.
	PublishReconcileRun(ctx context.Context, job *ReconcileRunJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed and should be retried.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *ReconcileRunJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*ReconcileRunJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ReconcileRunJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// CompanyID filters jobs by tenant.
	CompanyID string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
