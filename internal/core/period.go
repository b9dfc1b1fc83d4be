package core

import "time"

// Period is the recurring aggregation interval for a budget limit.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

func (p Period) Validate() error {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return nil
	default:
		return ErrInvalidPeriod
	}
}

// Window returns the half-open interval [start, end) of the period
// containing asOf. Windows are computed in UTC: daily is the calendar day,
// weekly is the Monday-based week, monthly is the calendar month.
func (p Period) Window(asOf time.Time) (start, end time.Time) {
	asOf = asOf.UTC()
	day := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)

	switch p {
	case PeriodWeekly:
		// Offset back to Monday. time.Weekday puts Sunday at 0.
		offset := int(day.Weekday()) - int(time.Monday)
		if offset < 0 {
			offset += 7
		}
		start = day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7)
	case PeriodMonthly:
		start = time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	default: // PeriodDaily
		return day, day.AddDate(0, 0, 1)
	}
}

// Contains reports whether t falls inside [start, end).
func Contains(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}
