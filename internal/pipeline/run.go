package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/bank-reconciliation/internal/jobs"
)

// NewRunHandler adapts a pipeline to the job queue. The run's counts are
// written onto the job so the queue persists them with its final status.
func NewRunHandler(p *Pipeline, now func() time.Time) jobs.JobHandler {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return func(ctx context.Context, job jobs.Job) error {
		run, ok := job.(*jobs.ReconcileRunJob)
		if !ok {
			return fmt.Errorf("RunHandler: unsupported job type %s", job.GetType())
		}

		state := StateFromJob(run, now())
		err := p.Execute(ctx, state)
		run.Result = state.Result()
		if err != nil {
			return fmt.Errorf("RunHandler: %w", err)
		}
		return nil
	}
}
