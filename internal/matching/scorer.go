package matching

import (
	"fmt"
	"math"
	"strings"

	"github.com/dvloznov/bank-reconciliation/internal/domain"
	"github.com/dvloznov/bank-reconciliation/internal/normalize"
	"github.com/shopspring/decimal"
)

// ConfidenceLevel buckets a 0..100 score.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// Level thresholds.
const (
	HighThreshold   = 90.0
	MediumThreshold = 70.0
)

// LevelFor maps a score to its confidence bucket.
func LevelFor(score float64) ConfidenceLevel {
	switch {
	case score >= HighThreshold:
		return ConfidenceHigh
	case score >= MediumThreshold:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Method returns the reconciliation method recorded when a suggestion of
// this level is confirmed.
func (l ConfidenceLevel) Method() domain.Method {
	switch l {
	case ConfidenceHigh:
		return domain.MethodAIHigh
	case ConfidenceMedium:
		return domain.MethodAIMedium
	default:
		return domain.MethodAILow
	}
}

const (
	baseExact       = 100.0
	baseAggregation = 90.0
	basePartial     = 70.0

	dateWeight            = 20.0
	textWeightSingle      = 10.0
	textWeightAggregation = 15.0
	referenceRankingBonus = 25.0
	scoreMin, scoreMax    = 0.0, 100.0
)

// Score is the scorer's verdict on one candidate.
type Score struct {
	// Value is clamped to [0,100] and rounded to two decimals.
	Value float64
	// Raw is the unclamped sum used to rank candidates against each other.
	Raw     float64
	Level   ConfidenceLevel
	Reasons []string
}

// Scorer rates candidates against their transaction.
type Scorer struct{}

// NewScorer creates a Scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score rates c for tx. names are extra counterparty names known for tx
// (extracted from the bank payload or supplied by alias rules); the best
// similarity among the description and those names is used.
func (s *Scorer) Score(tx domain.BankTransaction, c Candidate, names []string) Score {
	var (
		base       float64
		textWeight float64
		reasons    []string
	)

	switch c.MatchType {
	case domain.MatchTypeExact:
		base, textWeight = baseExact, textWeightSingle
		reasons = append(reasons, "Exact amount")
	case domain.MatchTypeAggregation:
		base, textWeight = baseAggregation, textWeightAggregation
		reasons = append(reasons, fmt.Sprintf("Aggregation: %d entries for %s", len(c.Entries), representativeName(c)))
	default:
		base, textWeight = basePartial, textWeightSingle
		diff := tx.AbsAmount().Sub(c.Total())
		reasons = append(reasons, "Partial: difference "+diff.StringFixed(2))
	}

	dateScore, maxDays := dateProximity(tx, c.Entries)
	reasons = append(reasons, dateReason(maxDays, len(c.Entries)))

	rep := representativeText(c)
	textScore := normalize.TextSimilarity(tx.Description, rep)
	bestName := ""
	for _, name := range names {
		if sim := normalize.TextSimilarity(name, rep); sim > textScore {
			textScore = sim
			bestName = name
		}
	}
	if textScore > 0 {
		reasons = append(reasons, fmt.Sprintf("Name similarity %d%%", int(math.Round(textScore*100))))
	}
	if bestName != "" {
		reasons = append(reasons, "Counterparty: "+bestName)
	}

	raw := base + dateScore*dateWeight + textScore*textWeight
	if c.MatchType == domain.MatchTypeExact && referenceMatches(tx, c.Entries[0]) {
		raw += referenceRankingBonus
		reasons = append(reasons, "Document reference match")
	}

	value := math.Round(clamp(raw, scoreMin, scoreMax)*100) / 100
	return Score{
		Value:   value,
		Raw:     raw,
		Level:   LevelFor(value),
		Reasons: reasons,
	}
}

// Selection is a manually assembled set of entries with its classification.
type Selection struct {
	Candidate  Candidate
	Difference decimal.Decimal
	Score      Score
}

// ScoreSelection classifies and scores entries picked by a user. A selection
// that sums to the transaction amount is exact (one entry) or an aggregation
// (several); anything else is partial.
func (s *Scorer) ScoreSelection(tx domain.BankTransaction, entries []domain.FinancialEntry, names []string) Selection {
	c := Candidate{Entries: entries, MatchType: domain.MatchTypePartial}
	diff := tx.AbsAmount().Sub(c.Total())
	if len(entries) > 0 && domain.AmountsEqual(diff, decimal.Zero) {
		if len(entries) == 1 {
			c.MatchType = domain.MatchTypeExact
		} else {
			c.MatchType = domain.MatchTypeAggregation
		}
	}
	c.GroupName = sharedCounterparty(entries)

	return Selection{
		Candidate:  c,
		Difference: diff,
		Score:      s.Score(tx, c, names),
	}
}

func dateProximity(tx domain.BankTransaction, entries []domain.FinancialEntry) (avg float64, maxDays int) {
	if len(entries) == 0 {
		return 0, 0
	}
	var sum float64
	for _, e := range entries {
		sum += normalize.DateProximity(tx.Date, e.DueDate)
		if d := normalize.DaysBetween(tx.Date, e.DueDate); d > maxDays {
			maxDays = d
		}
	}
	return sum / float64(len(entries)), maxDays
}

func dateReason(maxDays, n int) string {
	prefix := "Date"
	if n > 1 {
		prefix = "Due dates"
	}
	switch maxDays {
	case 0:
		if n > 1 {
			return "Due dates on transaction date"
		}
		return "Same date"
	case 1:
		return prefix + " within 1 day"
	default:
		return fmt.Sprintf("%s within %d days", prefix, maxDays)
	}
}

// representativeText is what the transaction description is compared with:
// the shared counterparty for aggregations, or counterparty plus description
// for a single entry.
func representativeText(c Candidate) string {
	if len(c.Entries) == 1 {
		e := c.Entries[0]
		return strings.TrimSpace(e.CounterpartyName + " " + e.Description)
	}
	return representativeName(c)
}

func representativeName(c Candidate) string {
	if c.GroupName != "" {
		return c.GroupName
	}
	seen := make(map[string]bool)
	var names []string
	for _, e := range c.Entries {
		key := normalize.Text(e.CounterpartyName)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, e.CounterpartyName)
	}
	return strings.Join(names, " ")
}

func sharedCounterparty(entries []domain.FinancialEntry) string {
	if len(entries) == 0 {
		return ""
	}
	first := normalize.Text(entries[0].CounterpartyName)
	if first == "" {
		return ""
	}
	for _, e := range entries[1:] {
		if normalize.Text(e.CounterpartyName) != first {
			return ""
		}
	}
	return entries[0].CounterpartyName
}

func referenceMatches(tx domain.BankTransaction, e domain.FinancialEntry) bool {
	if e.Reference == "" {
		return false
	}
	return normalize.Contains(tx.Description, e.Reference) || normalize.Contains(tx.ExternalRef, e.Reference)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
