package core

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// MonthTotal is the aggregate spent in one calendar month.
type MonthTotal struct {
	Month string          `json:"month"` // e.g. "Mar 2024"
	Total decimal.Decimal `json:"total"`
}

const monthLabelLayout = "Jan 2006"

// MonthlySummary aggregates expenses into per-month totals, ordered
// chronologically. Rows with unparseable dates are skipped.
func MonthlySummary(expenses []Expense) []MonthTotal {
	type bucket struct {
		key   time.Time
		total decimal.Decimal
	}
	buckets := make(map[time.Time]*bucket)
	for _, e := range expenses {
		day, err := time.Parse(DateLayout, e.Date)
		if err != nil {
			continue
		}
		month := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
		b, ok := buckets[month]
		if !ok {
			b = &bucket{key: month}
			buckets[month] = b
		}
		b.total = b.total.Add(e.Amount)
	}

	ordered := make([]*bucket, 0, len(buckets))
	for _, b := range buckets {
		ordered = append(ordered, b)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].key.Before(ordered[j].key) })

	out := make([]MonthTotal, len(ordered))
	for i, b := range ordered {
		out[i] = MonthTotal{Month: b.key.Format(monthLabelLayout), Total: b.total}
	}
	return out
}
