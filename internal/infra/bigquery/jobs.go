package bigquery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/bank-reconciliation/internal/jobs"
)

const jobsTable = "reconcile_jobs"

// JobRow mirrors a row of reconcile_jobs.
type JobRow struct {
	JobID       string                 `bigquery:"job_id"`
	CompanyID   string                 `bigquery:"company_id"`
	StartDate   bigquery.NullDate      `bigquery:"start_date"`
	EndDate     bigquery.NullDate      `bigquery:"end_date"`
	AutoConfirm bool                   `bigquery:"auto_confirm"`
	Actor       bigquery.NullString    `bigquery:"actor"`
	Status      string                 `bigquery:"status"`
	CreatedAt   time.Time              `bigquery:"created_at"`
	StartedAt   bigquery.NullTimestamp `bigquery:"started_at"`
	CompletedAt bigquery.NullTimestamp `bigquery:"completed_at"`
	Error       bigquery.NullString    `bigquery:"error"`
	RetryCount  int64                  `bigquery:"retry_count"`
	MaxRetries  int64                  `bigquery:"max_retries"`
	Result      bigquery.NullJSON      `bigquery:"result"`
}

const jobColumns = `
	job_id, company_id, start_date, end_date, auto_confirm, actor, status,
	created_at, started_at, completed_at, error, retry_count, max_retries, result`

// ToDomain converts the row.
func (r *JobRow) ToDomain() (*jobs.ReconcileRunJob, error) {
	job := &jobs.ReconcileRunJob{
		JobID:       r.JobID,
		CompanyID:   r.CompanyID,
		AutoConfirm: r.AutoConfirm,
		Actor:       r.Actor.StringVal,
		Status:      jobs.JobStatus(r.Status),
		CreatedAt:   r.CreatedAt,
		Error:       r.Error.StringVal,
		RetryCount:  int(r.RetryCount),
		MaxRetries:  int(r.MaxRetries),
	}
	if r.StartDate.Valid {
		job.StartDate = r.StartDate.Date.In(utc)
	}
	if r.EndDate.Valid {
		job.EndDate = r.EndDate.Date.In(utc)
	}
	if r.StartedAt.Valid {
		t := r.StartedAt.Timestamp
		job.StartedAt = &t
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Timestamp
		job.CompletedAt = &t
	}
	if r.Result.Valid && r.Result.JSONVal != "" {
		var res jobs.RunResult
		if err := json.Unmarshal([]byte(r.Result.JSONVal), &res); err != nil {
			return nil, fmt.Errorf("decoding result of job %s: %w", r.JobID, err)
		}
		job.Result = &res
	}
	return job, nil
}

func optionalDate(t time.Time) bigquery.NullDate {
	if t.IsZero() {
		return bigquery.NullDate{}
	}
	return bigquery.NullDate{Date: civil.DateOf(t), Valid: true}
}

func nullTimestamp(t *time.Time) bigquery.NullTimestamp {
	if t == nil {
		return bigquery.NullTimestamp{}
	}
	return bigquery.NullTimestamp{Timestamp: *t, Valid: true}
}

// JobStore persists reconcile runs in BigQuery.
type JobStore struct {
	client *bigquery.Client
	ds     Dataset
}

var _ jobs.JobStore = (*JobStore)(nil)

// JobStore returns a job store sharing this store's client.
func (s *Store) JobStore() *JobStore {
	return &JobStore{client: s.client, ds: s.ds}
}

// SaveJob upserts the job with a MERGE on job_id.
func (s *JobStore) SaveJob(ctx context.Context, job *jobs.ReconcileRunJob) error {
	if job.JobID == "" {
		return fmt.Errorf("SaveJob: job ID is required")
	}
	result := bigquery.NullString{}
	if job.Result != nil {
		b, err := json.Marshal(job.Result)
		if err != nil {
			return fmt.Errorf("SaveJob: marshaling result: %w", err)
		}
		result = bigquery.NullString{StringVal: string(b), Valid: true}
	}

	r := runner{client: s.client, ds: s.ds}
	_, err := r.exec(ctx, `
		MERGE `+s.ds.table(jobsTable)+` T
		USING (SELECT @job_id AS job_id) S
		ON T.job_id = S.job_id
		WHEN MATCHED THEN UPDATE SET
			status = @status,
			started_at = @started_at,
			completed_at = @completed_at,
			error = @error,
			retry_count = @retry_count,
			result = PARSE_JSON(@result)
		WHEN NOT MATCHED THEN INSERT (`+jobColumns+`)
		VALUES (
			@job_id, @company_id, @start_date, @end_date, @auto_confirm, @actor, @status,
			@created_at, @started_at, @completed_at, @error, @retry_count, @max_retries,
			PARSE_JSON(@result)
		)
	`,
		bigquery.QueryParameter{Name: "job_id", Value: job.JobID},
		bigquery.QueryParameter{Name: "company_id", Value: job.CompanyID},
		bigquery.QueryParameter{Name: "start_date", Value: optionalDate(job.StartDate)},
		bigquery.QueryParameter{Name: "end_date", Value: optionalDate(job.EndDate)},
		bigquery.QueryParameter{Name: "auto_confirm", Value: job.AutoConfirm},
		bigquery.QueryParameter{Name: "actor", Value: nullString(job.Actor)},
		bigquery.QueryParameter{Name: "status", Value: string(job.Status)},
		bigquery.QueryParameter{Name: "created_at", Value: job.CreatedAt},
		bigquery.QueryParameter{Name: "started_at", Value: nullTimestamp(job.StartedAt)},
		bigquery.QueryParameter{Name: "completed_at", Value: nullTimestamp(job.CompletedAt)},
		bigquery.QueryParameter{Name: "error", Value: nullString(job.Error)},
		bigquery.QueryParameter{Name: "retry_count", Value: job.RetryCount},
		bigquery.QueryParameter{Name: "max_retries", Value: job.MaxRetries},
		bigquery.QueryParameter{Name: "result", Value: result},
	)
	if err != nil {
		return fmt.Errorf("SaveJob: %w", err)
	}
	return nil
}

// GetJob implements jobs.JobStore.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (*jobs.ReconcileRunJob, error) {
	q := runner{client: s.client, ds: s.ds}.query(
		"SELECT"+jobColumns+"\n\tFROM "+s.ds.table(jobsTable)+"\n\tWHERE job_id = @job_id\n\tLIMIT 1",
		bigquery.QueryParameter{Name: "job_id", Value: jobID},
	)
	rows, err := readRows[JobRow](ctx, q)
	if err != nil {
		return nil, fmt.Errorf("GetJob: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("GetJob: %s: %w", jobID, jobs.ErrJobNotFound)
	}
	return rows[0].ToDomain()
}

// ListJobs implements jobs.JobStore.
func (s *JobStore) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.ReconcileRunJob, error) {
	where := []string{"TRUE"}
	var params []bigquery.QueryParameter
	if filter.CompanyID != "" {
		where = append(where, "company_id = @company_id")
		params = append(params, bigquery.QueryParameter{Name: "company_id", Value: filter.CompanyID})
	}
	if filter.Status != "" {
		where = append(where, "status = @status")
		params = append(params, bigquery.QueryParameter{Name: "status", Value: string(filter.Status)})
	}

	sql := "SELECT" + jobColumns + "\n\tFROM " + s.ds.table(jobsTable) +
		"\n\tWHERE " + strings.Join(where, " AND ") +
		"\n\tORDER BY created_at DESC, job_id"
	if filter.Limit > 0 {
		sql += "\n\tLIMIT @limit"
		params = append(params, bigquery.QueryParameter{Name: "limit", Value: filter.Limit})
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			sql += "\n\tLIMIT 9223372036854775807"
		}
		sql += "\n\tOFFSET @offset"
		params = append(params, bigquery.QueryParameter{Name: "offset", Value: filter.Offset})
	}

	rows, err := readRows[JobRow](ctx, runner{client: s.client, ds: s.ds}.query(sql, params...))
	if err != nil {
		return nil, fmt.Errorf("ListJobs: %w", err)
	}
	result := make([]*jobs.ReconcileRunJob, 0, len(rows))
	for _, row := range rows {
		job, err := row.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("ListJobs: %w", err)
		}
		result = append(result, job)
	}
	return result, nil
}

// UpdateJobStatus implements jobs.JobStore.
func (s *JobStore) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	n, err := runner{client: s.client, ds: s.ds}.exec(ctx, `
		UPDATE `+s.ds.table(jobsTable)+`
		SET status = @status,
		    error = COALESCE(@error, error)
		WHERE job_id = @job_id
	`,
		bigquery.QueryParameter{Name: "job_id", Value: jobID},
		bigquery.QueryParameter{Name: "status", Value: string(status)},
		bigquery.QueryParameter{Name: "error", Value: nullString(errorMsg)},
	)
	if err != nil {
		return fmt.Errorf("UpdateJobStatus: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("UpdateJobStatus: %s: %w", jobID, jobs.ErrJobNotFound)
	}
	return nil
}
