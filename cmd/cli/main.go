package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dvloznov/bank-reconciliation/internal/app"
	"github.com/dvloznov/bank-reconciliation/internal/config"
	"github.com/dvloznov/bank-reconciliation/internal/domain"
	"github.com/dvloznov/bank-reconciliation/internal/logger"
	"github.com/dvloznov/bank-reconciliation/internal/matching"
	"github.com/dvloznov/bank-reconciliation/internal/reconcile"
	"github.com/dvloznov/bank-reconciliation/internal/reports"
	"github.com/dvloznov/bank-reconciliation/internal/store"
	"github.com/dvloznov/bank-reconciliation/internal/suggest"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const defaultActor = "cli"

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "suggest":
		runSuggest(log)
	case "commit":
		runCommit(log)
	case "reverse":
		runReverse(log)
	case "confirm-high":
		runConfirmHigh(log)
	case "show":
		runShow(log)
	case "explain":
		runExplain(log)
	case "report":
		runReport(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Bank Reconciliation CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  suggest       List ranked match suggestions for unreconciled transactions")
	fmt.Println("  commit        Reconcile a transaction with selected entries")
	fmt.Println("  reverse       Reverse a reconciliation")
	fmt.Println("  confirm-high  Commit every high-confidence suggestion")
	fmt.Println("  show          Show a reconciliation and its items")
	fmt.Println("  explain       Ask Gemini to explain the top suggestion for a transaction")
	fmt.Println("  report        Print a run report stored in GCS")
	fmt.Println("  help          Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// command is the shared setup of every subcommand that touches the store.
type command struct {
	fs      *flag.FlagSet
	cfg     config.Config
	company *string
}

func newCommand(name string) *command {
	c := &command{fs: flag.NewFlagSet(name, flag.ExitOnError), cfg: config.FromEnv()}
	c.cfg.RegisterFlags(c.fs)
	c.company = c.fs.String("company", os.Getenv("RECON_COMPANY"), "Company ID (or set RECON_COMPANY env)")
	return c
}

// start parses flags and wires the services.
func (c *command) start(log zerolog.Logger, timeout time.Duration) (context.Context, context.CancelFunc, *app.App, domain.Scope) {
	c.fs.Parse(os.Args[2:])

	if *c.company == "" {
		log.Fatal().Msg("Error: --company is required")
	}
	log = logger.NewWithOptions(c.cfg.LoggerOptions())

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = logger.WithContext(ctx, log)

	services, err := app.New(ctx, c.cfg, log)
	if err != nil {
		cancel()
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	stop := func() {
		if err := services.Close(context.WithoutCancel(ctx)); err != nil {
			log.Error().Err(err).Msg("Failed to release services")
		}
		cancel()
	}
	return ctx, stop, services, domain.Scope{CompanyID: *c.company}
}

func runSuggest(log zerolog.Logger) {
	c := newCommand("suggest")
	startDate := c.fs.String("start-date", "", "Earliest transaction date (YYYY-MM-DD)")
	endDate := c.fs.String("end-date", "", "Latest transaction date (YYYY-MM-DD)")
	limit := c.fs.Int("limit", 0, "Maximum transactions to analyze (0 for all)")
	asJSON := c.fs.Bool("json", false, "Print the batch as JSON")
	ctx, stop, services, scope := c.start(log, 5*time.Minute)
	defer stop()

	filter := store.TransactionFilter{Limit: *limit}
	filter.StartDate, filter.EndDate = mustDateRange(log, *startDate, *endDate)

	batch, err := services.Engine.Generate(ctx, scope, filter)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to generate suggestions")
	}

	if *asJSON {
		printJSON(batch)
		return
	}
	printBatch(batch)
}

func runCommit(log zerolog.Logger) {
	c := newCommand("commit")
	txID := c.fs.String("transaction", "", "Bank transaction ID")
	entries := c.fs.String("entries", "", "Comma-separated kind:id=amount selections, e.g. ap:p1=600,ap:p2=1200")
	notes := c.fs.String("notes", "", "Free-form notes")
	actor := c.fs.String("actor", defaultActor, "Who is committing")
	ctx, stop, services, scope := c.start(log, time.Minute)
	defer stop()

	if *txID == "" || *entries == "" {
		log.Fatal().Msg("Usage: cli commit -company ID -transaction ID -entries kind:id=amount[,...]")
	}
	items, err := parseItems(*entries)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid --entries")
	}

	id, err := services.Committer.Commit(ctx, scope, reconcile.CommitRequest{
		TransactionID: *txID,
		Items:         items,
		Method:        domain.MethodManual,
		Notes:         *notes,
		Actor:         *actor,
	})
	if err != nil {
		log.Fatal().Err(err).Str("code", reconcile.Code(err)).Msg("Commit failed")
	}

	fmt.Printf("Committed reconciliation %s for transaction %s.\n", id, *txID)
}

func runReverse(log zerolog.Logger) {
	c := newCommand("reverse")
	id := c.fs.String("id", "", "Reconciliation ID")
	reason := c.fs.String("reason", "", "Reason for the reversal")
	actor := c.fs.String("actor", defaultActor, "Who is reversing")
	ctx, stop, services, scope := c.start(log, time.Minute)
	defer stop()

	if *id == "" {
		log.Fatal().Msg("Error: --id is required")
	}
	var notes *string
	if *reason != "" {
		notes = reason
	}

	if err := services.Reverser.Reverse(ctx, scope, *id, notes, *actor); err != nil {
		log.Fatal().Err(err).Str("code", reconcile.Code(err)).Msg("Reverse failed")
	}

	fmt.Printf("Reversed reconciliation %s.\n", *id)
}

func runConfirmHigh(log zerolog.Logger) {
	c := newCommand("confirm-high")
	startDate := c.fs.String("start-date", "", "Earliest transaction date (YYYY-MM-DD)")
	endDate := c.fs.String("end-date", "", "Latest transaction date (YYYY-MM-DD)")
	actor := c.fs.String("actor", defaultActor, "Who is confirming")
	dryRun := c.fs.Bool("dry-run", false, "List what would be confirmed without committing")
	ctx, stop, services, scope := c.start(log, 10*time.Minute)
	defer stop()

	var filter store.TransactionFilter
	filter.StartDate, filter.EndDate = mustDateRange(log, *startDate, *endDate)

	batch, err := services.Engine.WithExclusive(true).Generate(ctx, scope, filter)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to generate suggestions")
	}
	high := batch.ByLevel(matching.ConfidenceHigh)

	if *dryRun {
		fmt.Printf("[DRY RUN] %d high-confidence suggestions would be confirmed.\n", len(high))
		for _, s := range high {
			printSuggestion(s)
		}
		return
	}

	res := services.Committer.ConfirmBatch(ctx, scope, high, *actor)
	for _, r := range res.Results {
		if r.Err != nil {
			fmt.Printf("  FAILED  %s  %s: %s\n", r.TransactionID, r.Code, r.Message)
			continue
		}
		fmt.Printf("  OK      %s  -> %s\n", r.TransactionID, r.ReconciliationID)
	}
	fmt.Printf("Confirmed %d, failed %d.\n", res.SuccessCount, res.ErrorCount)
}

func runShow(log zerolog.Logger) {
	c := newCommand("show")
	id := c.fs.String("id", "", "Reconciliation ID")
	ctx, stop, services, scope := c.start(log, time.Minute)
	defer stop()

	if *id == "" {
		log.Fatal().Msg("Error: --id is required")
	}

	r, err := services.Store.GetReconciliation(ctx, scope, *id)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get reconciliation")
	}

	rec := r.Record
	fmt.Println("\n=== Reconciliation ===")
	fmt.Printf("ID:          %s\n", rec.ID)
	fmt.Printf("Transaction: %s\n", rec.BankTransactionID)
	fmt.Printf("Amount:      %s\n", rec.TotalAmount.StringFixed(2))
	fmt.Printf("Method:      %s\n", rec.Method)
	if rec.MatchType != "" {
		fmt.Printf("Match type:  %s\n", rec.MatchType)
	}
	if rec.ConfidenceScore != nil {
		fmt.Printf("Confidence:  %.0f\n", *rec.ConfidenceScore)
	}
	fmt.Printf("Created:     %s by %s\n", rec.CreatedAt.Format(time.RFC3339), rec.CreatedBy)
	if rec.IsReversed {
		fmt.Printf("Reversed:    by %s\n", rec.ReversedBy)
		if rec.ReversedAt != nil {
			fmt.Printf("Reversed at: %s\n", rec.ReversedAt.Format(time.RFC3339))
		}
		if rec.ReversalNotes != nil {
			fmt.Printf("Reason:      %s\n", *rec.ReversalNotes)
		}
	}

	fmt.Printf("\n=== Items (%d) ===\n", len(r.Items))
	for i, it := range r.Items {
		fmt.Printf("%d. %s  used %s of %s", i+1, it.Entry, it.AmountUsed.StringFixed(2), it.OriginalAmount.StringFixed(2))
		if it.CounterpartyName != "" {
			fmt.Printf("  (%s)", it.CounterpartyName)
		}
		fmt.Println()
	}
	fmt.Println()
}

func runExplain(log zerolog.Logger) {
	c := newCommand("explain")
	txID := c.fs.String("transaction", "", "Bank transaction ID")
	ctx, stop, services, scope := c.start(log, 2*time.Minute)
	defer stop()

	if *txID == "" {
		log.Fatal().Msg("Error: --transaction is required")
	}

	batch, err := services.Engine.Generate(ctx, scope, store.TransactionFilter{IDs: []string{*txID}})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to generate suggestions")
	}
	if len(batch.Suggestions) == 0 {
		log.Fatal().Str("transaction_id", *txID).Msg("No suggestion for transaction")
	}
	s := batch.Suggestions[0]

	explainer, err := services.Explainer(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Gemini")
	}
	exp, err := explainer.Explain(ctx, s)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to explain suggestion")
	}

	printSuggestion(s)
	fmt.Printf("\n%s\n", exp.Summary)
	for _, risk := range exp.Risks {
		fmt.Printf("  - %s\n", risk)
	}
	if exp.Recommendation != "" {
		fmt.Printf("\nRecommendation: %s\n", exp.Recommendation)
	}
}

func runReport(log zerolog.Logger) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	uri := fs.String("uri", "", "gs:// URI of the report")
	asJSON := fs.Bool("json", false, "Print the raw report")
	fs.Parse(os.Args[2:])

	if *uri == "" {
		log.Fatal().Msg("Error: --uri is required")
	}
	bucket, _, err := reports.ParseGCSURI(*uri)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid --uri")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	gcs, err := reports.NewGCSStore(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer gcs.Close()

	report, err := reports.NewPublisher(gcs, bucket).Fetch(ctx, *uri)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to fetch report")
	}

	if *asJSON {
		printJSON(report)
		return
	}

	fmt.Printf("\n=== Report %s ===\n", report.ID)
	fmt.Printf("Company:   %s\n", report.CompanyID)
	fmt.Printf("Generated: %s\n", report.GeneratedAt.Format(time.RFC3339))
	sum := report.Summary
	fmt.Printf("Analyzed %d, suggestions %d (high %d, medium %d, low %d), unmatched %d, deferred %d\n",
		sum.Analyzed, sum.Total, sum.High, sum.Medium, sum.Low, sum.Unmatched, sum.Deferred)
	if report.Confirmation != nil {
		fmt.Printf("Confirmed %d, failed %d\n", report.Confirmation.SuccessCount, report.Confirmation.ErrorCount)
	}
	for _, s := range report.Suggestions {
		printSuggestion(s)
	}
}

// parseItems parses "kind:id=amount" selections separated by commas.
func parseItems(spec string) ([]reconcile.CommitItem, error) {
	var items []reconcile.CommitItem
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ref, amount, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("%q: missing =amount", part)
		}
		kind, id, ok := strings.Cut(ref, ":")
		if !ok || id == "" {
			return nil, fmt.Errorf("%q: want kind:id", ref)
		}
		k, err := domain.ParseEntryKind(kind)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", part, err)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("%q: invalid amount: %w", part, err)
		}
		items = append(items, reconcile.CommitItem{Entry: domain.EntryRef{Kind: k, ID: id}, AmountUsed: d})
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no entries given")
	}
	return items, nil
}

func mustDateRange(log zerolog.Logger, start, end string) (time.Time, time.Time) {
	var s, e time.Time
	var err error
	if start != "" {
		if s, err = time.Parse("2006-01-02", start); err != nil {
			log.Fatal().Err(err).Str("start_date", start).Msg("Error: invalid start-date format, expected YYYY-MM-DD")
		}
	}
	if end != "" {
		if e, err = time.Parse("2006-01-02", end); err != nil {
			log.Fatal().Err(err).Str("end_date", end).Msg("Error: invalid end-date format, expected YYYY-MM-DD")
		}
	}
	if !s.IsZero() && !e.IsZero() && e.Before(s) {
		log.Fatal().Msg("Error: end-date must be after start-date")
	}
	return s, e
}

func printBatch(batch *suggest.Batch) {
	sum := batch.Summary
	fmt.Printf("\nAnalyzed %d transactions: %d suggestions (high %d, medium %d, low %d), %d unmatched, %d deferred, %d aggregations, %d rules active\n",
		sum.Analyzed, sum.Total, sum.High, sum.Medium, sum.Low, sum.Unmatched, sum.Deferred, sum.Aggregations, sum.RulesActive)

	for _, s := range batch.Suggestions {
		printSuggestion(s)
	}
	if len(batch.Unmatched) > 0 {
		fmt.Printf("\n=== Unmatched (%d) ===\n", len(batch.Unmatched))
		for _, u := range batch.Unmatched {
			fmt.Printf("  %s  %s  %12s  %s\n", u.TransactionID, u.Date.Format("2006-01-02"), u.Amount.StringFixed(2), u.Description)
		}
	}
	fmt.Println()
}

func printSuggestion(s suggest.Suggestion) {
	fmt.Printf("\n%s  %s  %s  %s\n", s.TransactionID, s.Transaction.Date.Format("2006-01-02"), s.Transaction.Amount.StringFixed(2), s.Transaction.Description)
	fmt.Printf("   %s match, confidence %.0f (%s), difference %s\n", s.MatchType, s.ConfidenceScore, s.ConfidenceLevel, s.Difference.StringFixed(2))
	for _, e := range s.Entries {
		fmt.Printf("   - %s  %s  due %s  %s\n", e.Ref, e.AmountUsed.StringFixed(2), e.DueDate.Format("2006-01-02"), e.CounterpartyName)
	}
	if len(s.Reasons) > 0 {
		fmt.Printf("   reasons: %s\n", strings.Join(s.Reasons, "; "))
	}
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "encoding output: %v\n", err)
	}
}
