// Package app wires the reconciliation services from a Config. The cmd
// binaries share it so every entry point runs the same stack.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/bank-reconciliation/internal/audit"
	"github.com/dvloznov/bank-reconciliation/internal/config"
	"github.com/dvloznov/bank-reconciliation/internal/explain"
	infraBQ "github.com/dvloznov/bank-reconciliation/internal/infra/bigquery"
	"github.com/dvloznov/bank-reconciliation/internal/jobs"
	jobsmem "github.com/dvloznov/bank-reconciliation/internal/jobs/inmemory"
	"github.com/dvloznov/bank-reconciliation/internal/notionsync"
	"github.com/dvloznov/bank-reconciliation/internal/pipeline"
	"github.com/dvloznov/bank-reconciliation/internal/reconcile"
	"github.com/dvloznov/bank-reconciliation/internal/reports"
	"github.com/dvloznov/bank-reconciliation/internal/store"
	"github.com/dvloznov/bank-reconciliation/internal/store/inmemory"
	"github.com/dvloznov/bank-reconciliation/internal/suggest"
	"github.com/rs/zerolog"
)

// App holds the wired services. Close releases them.
type App struct {
	Config config.Config
	Log    zerolog.Logger

	Store     store.Store
	JobStore  jobs.JobStore
	Audit     *audit.Dispatcher
	Engine    *suggest.Engine
	Committer *reconcile.Committer
	Reverser  *reconcile.Reverser
	// Reports is nil when no bucket is configured.
	Reports *reports.Publisher

	closers []func() error
}

// New builds the stack for cfg and starts the audit dispatcher.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}
	a := &App{Config: cfg, Log: log}

	sinks := []audit.Sink{audit.NewLogSink(log)}

	switch cfg.StoreBackend {
	case config.StoreBigQuery:
		bq, err := infraBQ.NewStore(ctx, cfg.ProjectID, cfg.DatasetID)
		if err != nil {
			return nil, fmt.Errorf("New: %w", err)
		}
		a.closers = append(a.closers, bq.Close)
		a.Store = bq
		a.JobStore = bq.JobStore()
		sinks = append(sinks, bq.AuditSink())
	default:
		mem := inmemory.NewStore()
		if cfg.SeedFile != "" {
			if err := mem.LoadSeedFile(cfg.SeedFile); err != nil {
				return nil, fmt.Errorf("New: %w", err)
			}
			log.Info().Str("seed_file", cfg.SeedFile).Msg("Loaded seed data into memory store")
		}
		a.Store = mem
		a.JobStore = jobsmem.NewStore()
	}

	if cfg.NotionToken != "" && cfg.NotionAuditDBID != "" {
		sinks = append(sinks, notionsync.NewAuditSink(notionsync.NewNotionClient(cfg.NotionToken), cfg.NotionAuditDBID))
	}

	a.Audit = audit.NewDispatcher(cfg.AuditBuffer, log, sinks...)
	if err := a.Audit.Start(context.WithoutCancel(ctx)); err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("New: %w", err)
	}

	if cfg.ReportBucket != "" {
		gcs, err := reports.NewGCSStore(ctx)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("New: %w", err)
		}
		a.closers = append(a.closers, gcs.Close)
		a.Reports = reports.NewPublisher(gcs, cfg.ReportBucket)
	}

	a.Engine = suggest.NewEngine(a.Store, a.Store, a.Store, cfg.EngineConfig())
	a.Committer = reconcile.NewCommitter(a.Store, reconcile.WithAudit(a.Audit))
	a.Reverser = reconcile.NewReverser(a.Store, reconcile.WithAudit(a.Audit))

	names := make([]string, len(sinks))
	for i, s := range sinks {
		names[i] = s.Name()
	}
	log.Info().
		Str("store", cfg.StoreBackend).
		Strs("audit_sinks", names).
		Bool("reports", a.Reports != nil).
		Msg("Reconciliation services ready")

	return a, nil
}

// RunHandler returns the job handler executing reconcile runs.
func (a *App) RunHandler() jobs.JobHandler {
	var uploader pipeline.ReportUploader
	if a.Reports != nil {
		uploader = a.Reports
	}
	p := pipeline.NewReconcileRunPipeline(a.Engine, a.Committer, uploader)
	return pipeline.NewRunHandler(p, time.Now)
}

// Explainer connects to Gemini with the configured model.
func (a *App) Explainer(ctx context.Context) (*explain.Explainer, error) {
	model, err := explain.NewGeminiModel(ctx, a.Config.GeminiModel)
	if err != nil {
		return nil, fmt.Errorf("Explainer: %w", err)
	}
	return explain.NewExplainer(model), nil
}

// Close flushes pending audit events and releases clients.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Audit != nil {
		if err := a.Audit.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping audit dispatcher: %w", err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
