// Package matching turns one bank transaction and a pool of open entries into
// scored match candidates.
package matching

import (
	"sort"

	"github.com/dvloznov/bank-reconciliation/internal/domain"
	"github.com/dvloznov/bank-reconciliation/internal/normalize"
	"github.com/shopspring/decimal"
)

const (
	// DefaultMaxAggregationSize bounds how many entries one aggregation may hold.
	DefaultMaxAggregationSize = 10
	// DefaultMaxCandidates bounds candidates emitted for a single transaction.
	DefaultMaxCandidates = 50
	// DefaultMaxSearchSteps bounds subset-sum nodes visited per counterparty group.
	DefaultMaxSearchSteps = 100_000
)

// Candidate is a set of entries proposed to settle one transaction.
type Candidate struct {
	Entries   []domain.FinancialEntry
	MatchType domain.MatchType
	// GroupName is the counterparty shared by an aggregation's entries.
	GroupName string
}

// Total is the sum of the candidate's entry amounts.
func (c Candidate) Total() decimal.Decimal {
	return domain.SumAmounts(c.Entries)
}

// IDs returns the entry IDs in candidate order.
func (c Candidate) IDs() []string {
	ids := make([]string, len(c.Entries))
	for i, e := range c.Entries {
		ids[i] = e.ID
	}
	return ids
}

// FinderConfig holds the search bounds. Zero values take the defaults.
type FinderConfig struct {
	MaxAggregationSize int
	MaxCandidates      int
	MaxSearchSteps     int
}

// Finder produces exact and aggregation candidates.
type Finder struct {
	cfg FinderConfig
}

// NewFinder creates a Finder, filling unset bounds with defaults.
func NewFinder(cfg FinderConfig) *Finder {
	if cfg.MaxAggregationSize <= 1 {
		cfg.MaxAggregationSize = DefaultMaxAggregationSize
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultMaxCandidates
	}
	if cfg.MaxSearchSteps <= 0 {
		cfg.MaxSearchSteps = DefaultMaxSearchSteps
	}
	return &Finder{cfg: cfg}
}

// Config returns the effective bounds.
func (f *Finder) Config() FinderConfig {
	return f.cfg
}

// Find returns candidates for tx drawn from pool. Entries of the wrong kind,
// already settled or with a non-positive amount are ignored. A zero-amount
// transaction or an empty pool yields nil. The search never fails: hitting a
// bound just stops emitting.
func (f *Finder) Find(tx domain.BankTransaction, pool []domain.FinancialEntry) []Candidate {
	target := tx.AbsAmount()
	if target.IsZero() {
		return nil
	}

	kind := tx.EntryKind()
	eligible := make([]domain.FinancialEntry, 0, len(pool))
	for _, e := range pool {
		if e.Kind != kind || !e.IsOpen() || !e.Amount.IsPositive() {
			continue
		}
		eligible = append(eligible, e)
	}
	if len(eligible) == 0 {
		return nil
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].ID < eligible[j].ID })

	var out []Candidate
	emit := func(c Candidate) bool {
		out = append(out, c)
		return len(out) < f.cfg.MaxCandidates
	}

	for _, e := range eligible {
		if !domain.AmountsEqual(e.Amount, target) {
			continue
		}
		if !emit(Candidate{Entries: []domain.FinancialEntry{e}, MatchType: domain.MatchTypeExact}) {
			return out
		}
	}

	for _, g := range groupByCounterparty(eligible) {
		if len(g.entries) < 2 {
			continue
		}
		s := &subsetSearch{
			entries: g.entries,
			maxSize: f.cfg.MaxAggregationSize,
			budget:  f.cfg.MaxSearchSteps,
			emit: func(subset []domain.FinancialEntry) bool {
				return emit(Candidate{
					Entries:   subset,
					MatchType: domain.MatchTypeAggregation,
					GroupName: g.display,
				})
			},
		}
		s.run(0, target)
		if s.halted {
			break
		}
	}

	return out
}

type counterpartyGroup struct {
	key     string
	display string
	entries []domain.FinancialEntry
}

// groupByCounterparty buckets entries by normalized counterparty name, drops
// the unnamed bucket and sorts each bucket by amount then ID. Groups come back
// in key order.
func groupByCounterparty(entries []domain.FinancialEntry) []counterpartyGroup {
	byKey := make(map[string]*counterpartyGroup)
	for _, e := range entries {
		key := normalize.Text(e.CounterpartyName)
		if key == "" {
			continue
		}
		g, ok := byKey[key]
		if !ok {
			g = &counterpartyGroup{key: key, display: e.CounterpartyName}
			byKey[key] = g
		}
		g.entries = append(g.entries, e)
	}

	groups := make([]counterpartyGroup, 0, len(byKey))
	for _, g := range byKey {
		sort.Slice(g.entries, func(i, j int) bool {
			if c := g.entries[i].Amount.Cmp(g.entries[j].Amount); c != 0 {
				return c < 0
			}
			return g.entries[i].ID < g.entries[j].ID
		})
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].key < groups[j].key })
	return groups
}

// subsetSearch is a depth-first subset-sum over entries sorted by ascending
// amount. Subsets of two to maxSize entries whose total matches the target
// are handed to emit.
type subsetSearch struct {
	entries []domain.FinancialEntry
	maxSize int
	budget  int
	emit    func([]domain.FinancialEntry) bool
	stack   []int

	// halted is set when emit refused more candidates; exhausted when the
	// step budget ran out for this group only.
	halted    bool
	exhausted bool
}

func (s *subsetSearch) run(start int, remaining decimal.Decimal) {
	for i := start; i < len(s.entries); i++ {
		if s.halted || s.exhausted {
			return
		}
		if s.budget <= 0 {
			s.exhausted = true
			return
		}
		s.budget--

		next := remaining.Sub(s.entries[i].Amount)
		matched := domain.AmountsEqual(next, decimal.Zero)
		if next.IsNegative() && !matched {
			// every later entry is at least as large
			return
		}

		s.stack = append(s.stack, i)
		switch {
		case matched:
			if len(s.stack) > 1 && !s.emit(s.subset()) {
				s.halted = true
			}
		case len(s.stack) < s.maxSize:
			s.run(i+1, next)
		}
		s.stack = s.stack[:len(s.stack)-1]
	}
}

func (s *subsetSearch) subset() []domain.FinancialEntry {
	out := make([]domain.FinancialEntry, len(s.stack))
	for i, idx := range s.stack {
		out[i] = s.entries[idx]
	}
	return out
}
