package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/bank-reconciliation/internal/api"
	"github.com/dvloznov/bank-reconciliation/internal/api/handlers"
	"github.com/dvloznov/bank-reconciliation/internal/app"
	"github.com/dvloznov/bank-reconciliation/internal/config"
	"github.com/dvloznov/bank-reconciliation/internal/jobs/inmemory"
	"github.com/dvloznov/bank-reconciliation/internal/logger"
)

func main() {
	// Parse command-line flags
	cfg := config.FromEnv()
	cfg.RegisterFlags(flag.CommandLine)
	port := flag.String("port", "8080", "HTTP server port")
	explainEnabled := flag.Bool("explain", true, "Enable Gemini explanations")
	flag.Parse()

	// Initialize logger
	log := logger.NewWithOptions(cfg.LoggerOptions())

	ctx := context.Background()
	ctx = logger.WithContext(ctx, log)

	services, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}

	var explainer handlers.Explainer
	if *explainEnabled {
		exp, err := services.Explainer(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Gemini unavailable - explanations disabled")
		} else {
			explainer = exp
		}
	}

	// Initialize job infrastructure
	jobQueue := inmemory.NewQueue(100, inmemory.DefaultWorkers, services.JobStore, log)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := jobQueue.Start(workerCtx, services.RunHandler()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job worker")
	}

	// Initialize handlers
	handler := api.NewRouter(api.Handlers{
		Suggestions:     handlers.NewSuggestionsHandler(services.Engine, explainer),
		Reconciliations: handlers.NewReconciliationsHandler(services.Committer, services.Reverser, services.Store),
		Jobs:            handlers.NewJobsHandler(services.JobStore, jobQueue),
	}, log)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", *port).Str("store", cfg.StoreBackend).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight runs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	if err := services.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to release services")
	}

	log.Info().Msg("Server exited")
}
