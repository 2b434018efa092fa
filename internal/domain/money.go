package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Epsilon is the tolerance for treating two amounts as equal. It is one
// minor unit regardless of currency.
var Epsilon = decimal.New(1, -2)

// AmountsEqual reports whether a and b differ by strictly less than Epsilon.
func AmountsEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(Epsilon)
}

// SumAmounts adds up the amounts of entries.
func SumAmounts(entries []FinancialEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return total
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
