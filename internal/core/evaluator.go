package core

import (
	"fmt"
	"time"
)

// Evaluate checks every budget limit against the expenses recorded inside
// the period window containing asOf and returns one AlertEvent per limit
// whose actual spend strictly exceeds it.
//
// The evaluation is a pure pass over in-memory data: no I/O, deterministic,
// and idempotent. A tie (spend == limit) produces no alert, and a limit
// whose category has no matching records counts as zero spend. Any
// non-positive limit or negative record amount fails the whole call with
// ErrInvalidInput before any event is produced.
func Evaluate(records []Expense, limits []BudgetLimit, asOf time.Time) ([]AlertEvent, error) {
	for i, l := range limits {
		if err := l.Period.Validate(); err != nil {
			return nil, fmt.Errorf("limit %d (%s): %w", i, l.Category, err)
		}
		if l.Limit.Cents <= 0 {
			return nil, fmt.Errorf("limit %d (%s): %w", i, l.Category, ErrInvalidLimit)
		}
	}
	for i, r := range records {
		if r.Amount.Cents < 0 {
			return nil, fmt.Errorf("record %d (%s): %w", i, r.Description, ErrNegativeAmount)
		}
	}

	var events []AlertEvent
	for _, l := range limits {
		start, end := l.Period.Window(asOf)

		var spend int64
		for _, r := range records {
			if l.Matches(r.Category) && Contains(r.Date.Time, start, end) {
				spend += r.Amount.Cents
			}
		}

		if spend > l.Limit.Cents {
			events = append(events, AlertEvent{
				PeriodStart: start,
				PeriodEnd:   end,
				Category:    l.Category,
				ActualSpend: Money{Cents: spend},
				Limit:       l.Limit,
				Overage:     Money{Cents: spend - l.Limit.Cents},
			})
		}
	}

	return events, nil
}
