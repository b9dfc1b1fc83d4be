package core

import "sort"

// CategoryAmount is an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// SpendSummary is a compact overview of a set of expenses.
type SpendSummary struct {
	Total        Money
	Transactions int
	// AverageDaily is total spend divided by the number of distinct days
	// on which anything was spent.
	AverageDaily Money
	TopCategory  string
	ByCategory   []CategoryAmount
}

// Summarize aggregates expenses into a SpendSummary. Categories are sorted
// by descending amount, ties broken by name so the output is stable.
func Summarize(records []Expense) SpendSummary {
	s := SpendSummary{Transactions: len(records)}
	if len(records) == 0 {
		return s
	}

	byCat := make(map[string]int64)
	days := make(map[string]struct{})
	for _, r := range records {
		s.Total.Cents += r.Amount.Cents
		byCat[r.Category] += r.Amount.Cents
		days[r.Date.Format("2006-01-02")] = struct{}{}
	}

	for name, cents := range byCat {
		s.ByCategory = append(s.ByCategory, CategoryAmount{Name: name, Amount: Money{Cents: cents}})
	}
	sort.Slice(s.ByCategory, func(i, j int) bool {
		if s.ByCategory[i].Amount.Cents != s.ByCategory[j].Amount.Cents {
			return s.ByCategory[i].Amount.Cents > s.ByCategory[j].Amount.Cents
		}
		return s.ByCategory[i].Name < s.ByCategory[j].Name
	})
	s.TopCategory = s.ByCategory[0].Name

	n := int64(len(days))
	// Half-up rounding of the daily average
	s.AverageDaily = Money{Cents: (s.Total.Cents + n/2) / n}

	return s
}
