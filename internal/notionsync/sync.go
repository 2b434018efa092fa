// Package notionsync mirrors committed reconciliations and audit events into
// Notion databases.
package notionsync

import (
	"context"
	"fmt"

	"github.com/dvloznov/bank-reconciliation/internal/domain"
	"github.com/dvloznov/bank-reconciliation/internal/logger"
	"github.com/dvloznov/bank-reconciliation/internal/store"
	"github.com/jomei/notionapi"
)

// pageSize is the Notion query page size.
const pageSize = 100

// SyncStats counts what a sync did. In dry-run mode the counts are what
// would have been done.
type SyncStats struct {
	Total    int
	Created  int
	Updated  int
	Skipped  int
	Archived int
	Failed   int
}

// SyncReconciliations mirrors the scope's reconciliations, reversed ones
// included, into the Notion database notionDBID. Pages are keyed by the
// Reconciliation ID title: missing records are created and pages whose
// status changed are updated. Untitled pages are archived. A failure on one
// page is logged and does not stop the sync.
func SyncReconciliations(ctx context.Context, reader store.ReconciliationReader, notionClient NotionService, notionDBID string, scope domain.Scope, filter store.ReconciliationFilter, dryRun bool) (*SyncStats, error) {
	log := logger.FromContext(ctx)

	log.Info().
		Str("company_id", scope.CompanyID).
		Time("start_date", filter.StartDate).
		Time("end_date", filter.EndDate).
		Bool("dry_run", dryRun).
		Msg("Starting reconciliation sync to Notion")

	filter.IncludeReversed = true
	recs, err := reader.ListReconciliations(ctx, scope, filter)
	if err != nil {
		return nil, fmt.Errorf("SyncReconciliations: listing reconciliations: %w", err)
	}

	notionPages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return nil, fmt.Errorf("SyncReconciliations: %w", err)
	}

	log.Info().
		Int("reconciliation_count", len(recs)).
		Int("notion_page_count", len(notionPages)).
		Msg("Retrieved reconciliations and existing Notion pages")

	stats := &SyncStats{Total: len(recs)}
	existing := make(map[string]notionapi.Page, len(notionPages))
	for _, page := range notionPages {
		id := extractReconciliationID(page)
		if id != "" {
			existing[id] = page
			continue
		}

		if dryRun {
			log.Info().Str("page_id", string(page.ID)).Msg("[DRY RUN] Would archive untitled Notion page")
			stats.Archived++
			continue
		}
		if err := notionClient.ArchivePage(ctx, string(page.ID)); err != nil {
			log.Warn().Err(err).Str("page_id", string(page.ID)).Msg("Failed to archive untitled Notion page")
			stats.Failed++
			continue
		}
		stats.Archived++
	}

	for _, r := range recs {
		id := r.Record.ID
		page, found := existing[id]

		wantStatus := StatusActive
		if r.Record.IsReversed {
			wantStatus = StatusReversed
		}
		if found && extractStatus(page) == wantStatus {
			stats.Skipped++
			continue
		}

		if dryRun {
			if found {
				log.Info().Str("reconciliation_id", id).Str("page_id", string(page.ID)).Msg("[DRY RUN] Would update Notion page")
				stats.Updated++
			} else {
				log.Info().Str("reconciliation_id", id).Msg("[DRY RUN] Would create Notion page")
				stats.Created++
			}
			continue
		}

		props := ReconciliationToNotionProperties(r)
		if found {
			if _, err := notionClient.UpdatePage(ctx, string(page.ID), props); err != nil {
				log.Warn().Err(err).Str("reconciliation_id", id).Str("page_id", string(page.ID)).Msg("Failed to update Notion page")
				stats.Failed++
				continue
			}
			log.Info().Str("reconciliation_id", id).Str("page_id", string(page.ID)).Msg("Updated Notion page")
			stats.Updated++
			continue
		}

		created, err := notionClient.CreatePage(ctx, notionDBID, props)
		if err != nil {
			log.Warn().Err(err).Str("reconciliation_id", id).Msg("Failed to create Notion page")
			stats.Failed++
			continue
		}
		log.Info().Str("reconciliation_id", id).Str("page_id", string(created.ID)).Msg("Created Notion page")
		stats.Created++
	}

	log.Info().
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Int("skipped", stats.Skipped).
		Int("archived", stats.Archived).
		Int("failed", stats.Failed).
		Int("total", stats.Total).
		Msg("Reconciliation sync completed")

	return stats, nil
}

// queryAllNotionPages queries all pages from a Notion database.
// Handles pagination automatically.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{PageSize: pageSize}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}
		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}
	return allPages, nil
}
