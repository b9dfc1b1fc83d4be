package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// CategoryOverall is the wildcard category: a budget limit with this
// category matches every expense regardless of its category.
const CategoryOverall = "overall"

type (
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Expense is a single recorded spend. Immutable once recorded.
	Expense struct {
		Date        Date
		Description string
		Amount      Money
		Category    string
	}

	// BudgetLimit caps spend for one category (or all categories, with
	// CategoryOverall) over a recurring period.
	BudgetLimit struct {
		Category string
		Period   Period
		Limit    Money
	}

	// AlertEvent is emitted when actual spend in a period window exceeds a
	// budget limit. Overage is always ActualSpend - Limit.
	AlertEvent struct {
		PeriodStart time.Time
		PeriodEnd   time.Time
		Category    string
		ActualSpend Money
		Limit       Money
		Overage     Money
	}
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidAmount   = fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	ErrNegativeAmount  = fmt.Errorf("%w: amount cannot be negative", ErrInvalidInput)
	ErrInvalidLimit    = fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	ErrEmptyCategory   = fmt.Errorf("%w: empty category", ErrInvalidInput)
	ErrInvalidPeriod   = fmt.Errorf("%w: invalid period", ErrInvalidInput)
	ErrDescriptionLong = fmt.Errorf("%w: description too long (max 200 characters)", ErrInvalidInput)
)

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidInput)
	}
	return nil
}

// NewDate creates a new Date at midnight UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Day returns the day of the month.
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month as 1-12.
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year.
func (d Date) Year() int {
	return d.Time.Year()
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (e Expense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if len(e.Description) > 200 {
		return ErrDescriptionLong
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

func (b BudgetLimit) Validate() error {
	if strings.TrimSpace(b.Category) == "" {
		return ErrEmptyCategory
	}
	if err := b.Period.Validate(); err != nil {
		return err
	}
	if b.Limit.Cents <= 0 {
		return ErrInvalidLimit
	}
	return nil
}

// Matches reports whether the limit applies to an expense in the given
// category.
func (b BudgetLimit) Matches(category string) bool {
	return b.Category == CategoryOverall || b.Category == category
}
