package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/dvloznov/bank-reconciliation/internal/app"
	"github.com/dvloznov/bank-reconciliation/internal/config"
	"github.com/dvloznov/bank-reconciliation/internal/domain"
	"github.com/dvloznov/bank-reconciliation/internal/logger"
	"github.com/dvloznov/bank-reconciliation/internal/notionsync"
	"github.com/dvloznov/bank-reconciliation/internal/store"
)

func main() {
	cfg := config.FromEnv()
	cfg.RegisterFlags(flag.CommandLine)

	// Parse CLI flags
	company := flag.String("company", "", "Company ID to sync (required)")
	startDateStr := flag.String("start-date", "", "Only reconciliations created on or after this date (YYYY-MM-DD)")
	endDateStr := flag.String("end-date", "", "Only reconciliations created on or before this date (YYYY-MM-DD)")
	notionToken := flag.String("notion-token", cfg.NotionToken, "Notion API token (or set NOTION_TOKEN env)")
	notionDBID := flag.String("notion-db-id", cfg.NotionRecDBID, "Notion reconciliations database ID (or set NOTION_RECONCILIATIONS_DB_ID env)")
	dryRun := flag.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	flag.Parse()

	// Initialize structured logger
	log := logger.NewWithOptions(cfg.LoggerOptions())

	// Validate required flags
	if *company == "" {
		log.Fatal().Msg("Error: --company is required")
	}
	if *notionToken == "" {
		log.Fatal().Msg("Error: --notion-token is required")
	}
	if *notionDBID == "" {
		log.Fatal().Msg("Error: --notion-db-id is required")
	}

	var filter store.ReconciliationFilter
	var err error
	if *startDateStr != "" {
		if filter.StartDate, err = time.Parse("2006-01-02", *startDateStr); err != nil {
			log.Fatal().Err(err).Str("start_date", *startDateStr).Msg("Error: invalid start-date format, expected YYYY-MM-DD")
		}
	}
	if *endDateStr != "" {
		if filter.EndDate, err = time.Parse("2006-01-02", *endDateStr); err != nil {
			log.Fatal().Err(err).Str("end_date", *endDateStr).Msg("Error: invalid end-date format, expected YYYY-MM-DD")
		}
		filter.EndDate = filter.EndDate.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	if !filter.StartDate.IsZero() && !filter.EndDate.IsZero() && filter.EndDate.Before(filter.StartDate) {
		log.Fatal().
			Time("start_date", filter.StartDate).
			Time("end_date", filter.EndDate).
			Msg("Error: end-date must be after start-date")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	// The mirror only reads, so audit events never go to Notion from here.
	cfg.NotionAuditDBID = ""
	services, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Close(ctx)

	notionClient := notionsync.NewNotionClient(*notionToken)

	stats, err := notionsync.SyncReconciliations(ctx, services.Store, notionClient, *notionDBID, domain.Scope{CompanyID: *company}, filter, *dryRun)
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Printf("Sync completed: %d created, %d updated, %d unchanged, %d archived, %d failed (of %d).\n",
		stats.Created, stats.Updated, stats.Skipped, stats.Archived, stats.Failed, stats.Total)
}
