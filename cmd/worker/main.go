package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/bank-reconciliation/internal/app"
	"github.com/dvloznov/bank-reconciliation/internal/config"
	"github.com/dvloznov/bank-reconciliation/internal/jobs"
	"github.com/dvloznov/bank-reconciliation/internal/jobs/inmemory"
	"github.com/dvloznov/bank-reconciliation/internal/logger"
	"github.com/rs/zerolog"
)

func main() {
	cfg := config.FromEnv()
	cfg.RegisterFlags(flag.CommandLine)
	interval := flag.Duration("interval", 0, "Enqueue a run for every configured company at this interval (0 disables)")
	lookback := flag.Int("lookback-days", 30, "Days of transactions each scheduled run covers")
	autoConfirm := flag.Bool("auto-confirm", false, "Commit high-confidence suggestions in scheduled runs")
	workers := flag.Int("run-workers", inmemory.DefaultWorkers, "Runs processed concurrently")
	flag.Parse()

	// Initialize logger
	log := logger.NewWithOptions(cfg.LoggerOptions())

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	services, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}

	// In production, this would be replaced with Cloud Tasks or Pub/Sub
	jobQueue := inmemory.NewQueue(100, *workers, services.JobStore, log)

	log.Info().Msg("Starting worker service")

	if err := jobQueue.Start(ctx, services.RunHandler()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	if *interval > 0 {
		if len(cfg.Companies) == 0 {
			log.Warn().Msg("No companies configured (RECON_COMPANIES) - scheduler disabled")
		} else {
			go schedule(ctx, log, jobQueue, *interval, runTemplate{
				companies:   cfg.Companies,
				lookback:    *lookback,
				autoConfirm: *autoConfirm,
			})
		}
	}

	log.Info().Dur("interval", *interval).Msg("Worker service started, waiting for jobs...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}
	cancel()

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}
	if err := services.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to release services")
	}

	log.Info().Msg("Worker service exited")
}

// runTemplate describes the runs enqueued on every tick.
type runTemplate struct {
	companies   []string
	lookback    int
	autoConfirm bool
}

// jobsFor builds one run per company covering the lookback window ending on
// now's date.
func (t runTemplate) jobsFor(now time.Time) []*jobs.ReconcileRunJob {
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	var start time.Time
	if t.lookback > 0 {
		start = end.AddDate(0, 0, -t.lookback)
	}

	out := make([]*jobs.ReconcileRunJob, 0, len(t.companies))
	for _, company := range t.companies {
		out = append(out, &jobs.ReconcileRunJob{
			CompanyID:   company,
			StartDate:   start,
			EndDate:     end,
			AutoConfirm: t.autoConfirm,
			Actor:       "scheduler",
		})
	}
	return out
}

// enqueue publishes one tick of runs. A failed publish is logged and the
// remaining companies are still scheduled.
func enqueue(ctx context.Context, log zerolog.Logger, pub jobs.Publisher, t runTemplate, now time.Time) int {
	n := 0
	for _, job := range t.jobsFor(now) {
		if err := pub.PublishReconcileRun(ctx, job); err != nil {
			log.Error().Err(err).Str("company_id", job.CompanyID).Msg("Failed to enqueue scheduled run")
			continue
		}
		log.Info().Str("company_id", job.CompanyID).Str("job_id", job.JobID).Msg("Scheduled run enqueued")
		n++
	}
	return n
}

func schedule(ctx context.Context, log zerolog.Logger, pub jobs.Publisher, interval time.Duration, t runTemplate) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	enqueue(ctx, log, pub, t, time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			enqueue(ctx, log, pub, t, now)
		}
	}
}
