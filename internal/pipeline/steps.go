package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/bank-reconciliation/internal/domain"
	"github.com/dvloznov/bank-reconciliation/internal/jobs"
	"github.com/dvloznov/bank-reconciliation/internal/logger"
	"github.com/dvloznov/bank-reconciliation/internal/matching"
	"github.com/dvloznov/bank-reconciliation/internal/reconcile"
	"github.com/dvloznov/bank-reconciliation/internal/reports"
	"github.com/dvloznov/bank-reconciliation/internal/store"
	"github.com/dvloznov/bank-reconciliation/internal/suggest"
)

// DefaultActor is recorded on reconciliations confirmed by a run.
const DefaultActor = "auto-reconcile"

// PipelineStep represents a single step in the reconcile run pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	RunID       string
	Scope       domain.Scope
	Filter      store.TransactionFilter
	AutoConfirm bool
	Actor       string
	StartedAt   time.Time

	Batch        *suggest.Batch
	Confirmation *reconcile.BatchResult
	ReportURI    string
}

// StateFromJob prepares the pipeline state for a queued run.
func StateFromJob(job *jobs.ReconcileRunJob, now time.Time) *PipelineState {
	actor := job.Actor
	if actor == "" {
		actor = DefaultActor
	}
	return &PipelineState{
		RunID:       job.JobID,
		Scope:       domain.Scope{CompanyID: job.CompanyID},
		Filter:      store.TransactionFilter{StartDate: job.StartDate, EndDate: job.EndDate},
		AutoConfirm: job.AutoConfirm,
		Actor:       actor,
		StartedAt:   now,
	}
}

// Result summarizes the state as job counts.
func (s *PipelineState) Result() *jobs.RunResult {
	r := &jobs.RunResult{ReportURI: s.ReportURI}
	if s.Batch != nil {
		r.Analyzed = s.Batch.Summary.Analyzed
		r.Suggestions = s.Batch.Summary.Total
		r.High = s.Batch.Summary.High
		r.Medium = s.Batch.Summary.Medium
		r.Low = s.Batch.Summary.Low
		r.Unmatched = s.Batch.Summary.Unmatched
		r.Deferred = s.Batch.Summary.Deferred
	}
	if s.Confirmation != nil {
		r.Confirmed = s.Confirmation.SuccessCount
		r.ConfirmFailed = s.Confirmation.ErrorCount
	}
	return r
}

// Step 1: GenerateSuggestionsStep runs the suggestion engine. Auto-confirm
// runs use the exclusive generator so no entry appears in two suggestions.
type GenerateSuggestionsStep struct {
	Generator SuggestionGenerator
	Exclusive SuggestionGenerator
}

func (s *GenerateSuggestionsStep) Execute(ctx context.Context, state *PipelineState) error {
	gen := s.Generator
	if state.AutoConfirm && s.Exclusive != nil {
		gen = s.Exclusive
	}
	batch, err := gen.Generate(ctx, state.Scope, state.Filter)
	if err != nil {
		return fmt.Errorf("GenerateSuggestionsStep: %w", err)
	}
	state.Batch = batch
	return nil
}

// Step 2: ConfirmHighConfidenceStep commits every high-confidence suggestion
// when the run asks for it. Individual failures are kept in the result.
type ConfirmHighConfidenceStep struct {
	Confirmer BatchConfirmer
}

func (s *ConfirmHighConfidenceStep) Execute(ctx context.Context, state *PipelineState) error {
	if !state.AutoConfirm || state.Batch == nil {
		return nil
	}
	high := state.Batch.ByLevel(matching.ConfidenceHigh)
	res := s.Confirmer.ConfirmBatch(ctx, state.Scope, high, state.Actor)
	state.Confirmation = &res

	log := logger.FromContext(ctx)
	log.Info().
		Str("company_id", state.Scope.CompanyID).
		Int("confirmed", res.SuccessCount).
		Int("failed", res.ErrorCount).
		Msg("Auto-confirmed high confidence suggestions")

	// Cancellation skips the remaining commits.
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("ConfirmHighConfidenceStep: %w", err)
	}
	return nil
}

// Step 3: ExportReportStep uploads the run report. It is a no-op without an
// uploader.
type ExportReportStep struct {
	Uploader ReportUploader
}

func (s *ExportReportStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Uploader == nil || state.Batch == nil {
		return nil
	}
	report := reports.NewReport(state.RunID, state.Scope.CompanyID, state.StartedAt, state.Batch)
	report.StartDate = state.Filter.StartDate
	report.EndDate = state.Filter.EndDate
	report.Confirmation = state.Confirmation

	uri, err := s.Uploader.Upload(ctx, report)
	if err != nil {
		return fmt.Errorf("ExportReportStep: %w", err)
	}
	state.ReportURI = uri
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// NewReconcileRunPipeline creates the standard three-step run pipeline.
// uploader may be nil when no report bucket is configured.
func NewReconcileRunPipeline(engine *suggest.Engine, confirmer BatchConfirmer, uploader ReportUploader) *Pipeline {
	return NewPipeline(
		&GenerateSuggestionsStep{Generator: engine, Exclusive: engine.WithExclusive(true)},
		&ConfirmHighConfidenceStep{Confirmer: confirmer},
		&ExportReportStep{Uploader: uploader},
	)
}
