// Package suggest runs the candidate finder and scorer over a batch of
// unreconciled transactions and ranks the results.
package suggest

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dvloznov/bank-reconciliation/internal/domain"
	"github.com/dvloznov/bank-reconciliation/internal/logger"
	"github.com/dvloznov/bank-reconciliation/internal/matching"
	"github.com/dvloznov/bank-reconciliation/internal/normalize"
	"github.com/dvloznov/bank-reconciliation/internal/store"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMaxSuggestions caps a batch.
	DefaultMaxSuggestions = 10
	// DefaultWorkers is the number of transactions scored concurrently.
	DefaultWorkers = 4
)

// Config tunes the engine. Zero values take the defaults.
type Config struct {
	MaxSuggestions int
	Workers        int
	// Exclusive keeps at most one suggestion per transaction and never
	// proposes the same entry twice in a batch.
	Exclusive bool
	Finder    matching.FinderConfig
}

// Engine produces ranked suggestions. It never writes.
type Engine struct {
	transactions store.TransactionSource
	entries      store.EntrySource
	rules        store.RuleSource
	finder       *matching.Finder
	scorer       *matching.Scorer
	cfg          Config
}

// NewEngine creates an Engine. rules may be nil.
func NewEngine(transactions store.TransactionSource, entries store.EntrySource, rules store.RuleSource, cfg Config) *Engine {
	if cfg.MaxSuggestions <= 0 {
		cfg.MaxSuggestions = DefaultMaxSuggestions
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Engine{
		transactions: transactions,
		entries:      entries,
		rules:        rules,
		finder:       matching.NewFinder(cfg.Finder),
		scorer:       matching.NewScorer(),
		cfg:          cfg,
	}
}

// WithExclusive returns a copy of the engine with exclusive mode set.
func (e *Engine) WithExclusive(exclusive bool) *Engine {
	c := *e
	c.cfg.Exclusive = exclusive
	return &c
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Generate loads the open state for scope and returns ranked suggestions.
// Any source error aborts the batch.
func (e *Engine) Generate(ctx context.Context, scope domain.Scope, filter store.TransactionFilter) (*Batch, error) {
	if !scope.Valid() {
		return nil, fmt.Errorf("Generate: company scope is required")
	}
	log := logger.WithCompany(logger.FromContext(ctx), scope.CompanyID)

	txs, err := e.transactions.ListUnreconciledTransactions(ctx, scope, filter)
	if err != nil {
		return nil, fmt.Errorf("Generate: failed to list transactions: %w", err)
	}

	pools, err := e.loadPools(ctx, scope, txs)
	if err != nil {
		return nil, fmt.Errorf("Generate: %w", err)
	}

	var rules []domain.MatchingRule
	if e.rules != nil {
		rules, err = e.rules.ListActiveRules(ctx, scope)
		if err != nil {
			return nil, fmt.Errorf("Generate: failed to list rules: %w", err)
		}
	}

	results := make([]txResult, len(txs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i := range txs {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.suggestFor(txs[i], pools[txs[i].EntryKind()], rules)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("Generate: %w", err)
	}

	batch := e.assemble(results)
	batch.Summary.Analyzed = len(txs)
	batch.Summary.RulesActive = len(rules)

	log.Info().
		Int("analyzed", batch.Summary.Analyzed).
		Int("suggestions", batch.Summary.Total).
		Int("high", batch.Summary.High).
		Int("unmatched", batch.Summary.Unmatched).
		Int("deferred", batch.Summary.Deferred).
		Msg("Generated reconciliation suggestions")

	return batch, nil
}

// loadPools reads the open entries once per kind needed by txs.
func (e *Engine) loadPools(ctx context.Context, scope domain.Scope, txs []domain.BankTransaction) (map[domain.EntryKind][]domain.FinancialEntry, error) {
	needed := make(map[domain.EntryKind]bool)
	for _, tx := range txs {
		needed[tx.EntryKind()] = true
	}

	var receivables, payables []domain.FinancialEntry
	g, gctx := errgroup.WithContext(ctx)
	if needed[domain.EntryKindReceivable] {
		g.Go(func() error {
			var err error
			receivables, err = e.entries.ListOpenEntries(gctx, scope, domain.EntryKindReceivable, "")
			if err != nil {
				return fmt.Errorf("failed to list receivables: %w", err)
			}
			return nil
		})
	}
	if needed[domain.EntryKindPayable] {
		g.Go(func() error {
			var err error
			payables, err = e.entries.ListOpenEntries(gctx, scope, domain.EntryKindPayable, "")
			if err != nil {
				return fmt.Errorf("failed to list payables: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return map[domain.EntryKind][]domain.FinancialEntry{
		domain.EntryKindReceivable: receivables,
		domain.EntryKindPayable:    payables,
	}, nil
}

type txResult struct {
	tx          domain.BankTransaction
	extracted   string
	suggestions []Suggestion
}

// suggestFor scores every candidate of tx and keeps a non-overlapping set.
func (e *Engine) suggestFor(tx domain.BankTransaction, pool []domain.FinancialEntry, rules []domain.MatchingRule) txResult {
	res := txResult{tx: tx}

	var names []string
	if name, ok := normalize.ExtractCounterparty(tx.Payload(), tx.Description); ok {
		res.extracted = name
		names = append(names, name)
	}
	for _, r := range rules {
		if r.Applies(tx.EntryKind()) && normalize.Contains(tx.Description, r.SearchText) {
			names = append(names, r.CounterpartyName)
		}
	}

	candidates := e.finder.Find(tx, pool)
	if len(candidates) == 0 {
		return res
	}

	scored := make([]Suggestion, len(candidates))
	for i, c := range candidates {
		scored[i] = newSuggestion(tx, c, e.scorer.Score(tx, c, names), res.extracted)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].RawScore != scored[j].RawScore {
			return scored[i].RawScore > scored[j].RawScore
		}
		return compareIDs(scored[i].EntryIDs(), scored[j].EntryIDs()) < 0
	})

	used := make(map[domain.EntryRef]bool)
	for _, s := range scored {
		if overlaps(s, used) {
			continue
		}
		for _, ref := range s.Refs() {
			used[ref] = true
		}
		res.suggestions = append(res.suggestions, s)
	}
	return res
}

// assemble orders, filters and caps the per-transaction results.
func (e *Engine) assemble(results []txResult) *Batch {
	batch := &Batch{
		Suggestions: []Suggestion{},
		Unmatched:   []UnmatchedTransaction{},
	}

	var all []Suggestion
	withCandidates := 0
	for _, r := range results {
		if len(r.suggestions) == 0 {
			batch.Unmatched = append(batch.Unmatched, newUnmatched(r.tx, r.extracted))
			continue
		}
		withCandidates++
		all = append(all, r.suggestions...)
	}

	sort.SliceStable(all, func(i, j int) bool { return less(all[i], all[j]) })

	if e.cfg.Exclusive {
		all = exclusive(all)
	}
	if len(all) > e.cfg.MaxSuggestions {
		all = all[:e.cfg.MaxSuggestions]
	}
	batch.Suggestions = append(batch.Suggestions, all...)

	kept := make(map[string]bool)
	for _, s := range batch.Suggestions {
		kept[s.TransactionID] = true
		switch s.ConfidenceLevel {
		case matching.ConfidenceHigh:
			batch.Summary.High++
		case matching.ConfidenceMedium:
			batch.Summary.Medium++
		default:
			batch.Summary.Low++
		}
		if s.MatchType == domain.MatchTypeAggregation {
			batch.Summary.Aggregations++
		}
	}
	batch.Summary.Total = len(batch.Suggestions)
	batch.Summary.Unmatched = len(batch.Unmatched)
	batch.Summary.Deferred = withCandidates - len(kept)
	return batch
}

// less is the global batch order: raw score desc, transaction date, transaction
// ID, then entry IDs.
func less(a, b Suggestion) bool {
	if a.RawScore != b.RawScore {
		return a.RawScore > b.RawScore
	}
	if !a.Transaction.Date.Equal(b.Transaction.Date) {
		return a.Transaction.Date.Before(b.Transaction.Date)
	}
	if a.TransactionID != b.TransactionID {
		return a.TransactionID < b.TransactionID
	}
	return compareIDs(a.EntryIDs(), b.EntryIDs()) < 0
}

// exclusive walks sorted suggestions and keeps the first per transaction whose
// entries are all still unclaimed.
func exclusive(sorted []Suggestion) []Suggestion {
	var out []Suggestion
	seenTx := make(map[string]bool)
	used := make(map[domain.EntryRef]bool)
	for _, s := range sorted {
		if seenTx[s.TransactionID] || overlaps(s, used) {
			continue
		}
		seenTx[s.TransactionID] = true
		for _, ref := range s.Refs() {
			used[ref] = true
		}
		out = append(out, s)
	}
	return out
}

func overlaps(s Suggestion, used map[domain.EntryRef]bool) bool {
	for _, e := range s.Entries {
		if used[e.Ref] {
			return true
		}
	}
	return false
}

func compareIDs(a, b []string) int {
	return strings.Compare(strings.Join(a, "\x00"), strings.Join(b, "\x00"))
}
