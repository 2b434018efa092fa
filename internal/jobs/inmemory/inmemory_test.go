package inmemory

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/bank-reconciliation/internal/jobs"
	"github.com/rs/zerolog"
)

func waitForStatus(t *testing.T, s *Store, id string, want jobs.JobStatus) *jobs.ReconcileRunJob {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := s.GetJob(context.Background(), id)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := s.GetJob(context.Background(), id)
	t.Fatalf("job %s never reached %s, last state %+v", id, want, job)
	return nil
}

func TestQueue_ProcessesJob(t *testing.T) {
	store := NewStore()
	q := NewQueue(4, 1, store, zerolog.New(&bytes.Buffer{}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		run := job.(*jobs.ReconcileRunJob)
		run.Result = &jobs.RunResult{Analyzed: 3, Confirmed: 2}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	job := &jobs.ReconcileRunJob{CompanyID: "acme", AutoConfirm: true}
	if err := q.PublishReconcileRun(ctx, job); err != nil {
		t.Fatal(err)
	}
	if job.JobID == "" || job.MaxRetries != DefaultMaxRetries {
		t.Errorf("defaults not applied: %+v", job)
	}

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if done.Result == nil || done.Result.Confirmed != 2 || done.CompletedAt == nil {
		t.Errorf("unexpected completed job: %+v", done)
	}

	if err := q.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestQueue_RetriesThenFails(t *testing.T) {
	store := NewStore()
	q := NewQueue(4, 1, store, zerolog.New(&bytes.Buffer{}))
	q.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	_ = q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("bigquery unavailable")
	})

	job := &jobs.ReconcileRunJob{CompanyID: "acme", MaxRetries: 2}
	if err := q.PublishReconcileRun(ctx, job); err != nil {
		t.Fatal(err)
	}

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("handler called %d times, want 3", got)
	}
	if failed.RetryCount != 2 || failed.Error != "bigquery unavailable" {
		t.Errorf("unexpected failed job: %+v", failed)
	}
	_ = q.Stop(context.Background())
}

func TestQueue_PublishAfterStop(t *testing.T) {
	q := NewQueue(1, 1, nil, zerolog.Nop())
	if err := q.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := q.PublishReconcileRun(context.Background(), &jobs.ReconcileRunJob{}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}
	if err := q.Start(context.Background(), nil); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed from Start, got %v", err)
	}
}

func TestStore_ListJobs(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, j := range []jobs.ReconcileRunJob{
		{JobID: "j1", CompanyID: "acme", Status: jobs.JobStatusCompleted, CreatedAt: base},
		{JobID: "j2", CompanyID: "acme", Status: jobs.JobStatusFailed, CreatedAt: base.Add(time.Hour)},
		{JobID: "j3", CompanyID: "beta", Status: jobs.JobStatusCompleted, CreatedAt: base.Add(2 * time.Hour)},
	} {
		j := j
		if err := s.SaveJob(ctx, &j); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{"all newest first", jobs.JobFilter{}, []string{"j3", "j2", "j1"}},
		{"by company", jobs.JobFilter{CompanyID: "acme"}, []string{"j2", "j1"}},
		{"by status", jobs.JobFilter{Status: jobs.JobStatusCompleted}, []string{"j3", "j1"}},
		{"limit and offset", jobs.JobFilter{Limit: 1, Offset: 1}, []string{"j2"}},
		{"offset past end", jobs.JobFilter{Offset: 5}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			ids := []string{}
			for _, j := range got {
				ids = append(ids, j.JobID)
			}
			if len(ids) != len(tt.want) {
				t.Fatalf("got %v, want %v", ids, tt.want)
			}
			for i := range ids {
				if ids[i] != tt.want[i] {
					t.Errorf("got %v, want %v", ids, tt.want)
					break
				}
			}
		})
	}
}

func TestStore_CopiesOnSaveAndGet(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	job := &jobs.ReconcileRunJob{JobID: "j1", Result: &jobs.RunResult{Confirmed: 1}}
	_ = s.SaveJob(ctx, job)
	job.Result.Confirmed = 99

	got, _ := s.GetJob(ctx, "j1")
	if got.Result.Confirmed != 1 {
		t.Errorf("store shares result with caller: %+v", got.Result)
	}

	if _, err := s.GetJob(ctx, "missing"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
	if err := s.UpdateJobStatus(ctx, "missing", jobs.JobStatusFailed, ""); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
	if err := s.SaveJob(ctx, &jobs.ReconcileRunJob{}); err == nil {
		t.Error("expected error for empty job ID")
	}
}
