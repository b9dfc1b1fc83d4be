package forecast

import (
	"errors"
	"testing"
	"time"

	"budgetwatch/internal/core"
)

func expense(y, m, d int, cents int64) core.Expense {
	return core.Expense{
		Date:        core.NewDate(y, m, d),
		Description: "spend",
		Amount:      core.Money{Cents: cents},
		Category:    "food",
	}
}

// two weeks of constant 10.00/day spend starting on a Monday
func constantFortnight() []core.Expense {
	var records []core.Expense
	start := core.NewDate(2024, 1, 1) // Monday
	for i := 0; i < 14; i++ {
		d := start.AddDate(0, 0, i)
		records = append(records, expense(d.Year(), int(d.Month()), d.Day(), 1000))
	}
	return records
}

func TestPredictFutureInsufficientData(t *testing.T) {
	records := []core.Expense{expense(2024, 1, 1, 1000)}
	_, err := New().PredictFuture(records, 30)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestPredictFutureInvalidDays(t *testing.T) {
	_, err := New().PredictFuture(constantFortnight(), 0)
	if !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestPredictFutureConstantSeries(t *testing.T) {
	points, err := New().PredictFuture(constantFortnight(), 7)
	if err != nil {
		t.Fatalf("PredictFuture() error = %v", err)
	}
	if len(points) != 7 {
		t.Fatalf("expected 7 points, got %d", len(points))
	}

	// Forecast starts the day after the last observed date (2024-01-14).
	wantFirst := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	if !points[0].Date.Equal(wantFirst) {
		t.Errorf("first forecast day = %v, want %v", points[0].Date, wantFirst)
	}

	for i, p := range points {
		if p.Predicted.Cents != 1000 {
			t.Errorf("point %d predicted = %d, want 1000", i, p.Predicted.Cents)
		}
		// Constant series has zero variance, so the band collapses.
		if p.Lower.Cents != 1000 || p.Upper.Cents != 1000 {
			t.Errorf("point %d band = [%d, %d], want [1000, 1000]", i, p.Lower.Cents, p.Upper.Cents)
		}
	}
}

func TestPredictFutureWeekdaySeasonality(t *testing.T) {
	// Four weeks: 50.00 on Saturdays, 10.00 every other day.
	var records []core.Expense
	start := core.NewDate(2024, 1, 1) // Monday
	for i := 0; i < 28; i++ {
		d := start.AddDate(0, 0, i)
		cents := int64(1000)
		if d.Weekday() == time.Saturday {
			cents = 5000
		}
		records = append(records, expense(d.Year(), int(d.Month()), d.Day(), cents))
	}

	points, err := New().PredictFuture(records, 7)
	if err != nil {
		t.Fatalf("PredictFuture() error = %v", err)
	}
	for _, p := range points {
		want := int64(1000)
		if p.Date.Weekday() == time.Saturday {
			want = 5000
		}
		if p.Predicted.Cents != want {
			t.Errorf("%v (%v) predicted = %d, want %d", p.Date, p.Date.Weekday(), p.Predicted.Cents, want)
		}
	}
}

func TestPredictFutureBoundsClippedAtZero(t *testing.T) {
	// Highly variable series: a single huge day drives sigma above the mean.
	var records []core.Expense
	start := core.NewDate(2024, 1, 1)
	for i := 0; i < 13; i++ {
		d := start.AddDate(0, 0, i)
		records = append(records, expense(d.Year(), int(d.Month()), d.Day(), 100))
	}
	records = append(records, expense(2024, 1, 14, 100000))

	points, err := New().PredictFuture(records, 7)
	if err != nil {
		t.Fatalf("PredictFuture() error = %v", err)
	}
	for i, p := range points {
		if p.Lower.Cents < 0 || p.Predicted.Cents < 0 || p.Upper.Cents < 0 {
			t.Errorf("point %d has negative values: %+v", i, p)
		}
		if p.Upper.Cents < p.Predicted.Cents {
			t.Errorf("point %d upper %d below predicted %d", i, p.Upper.Cents, p.Predicted.Cents)
		}
	}
}

func TestPredictFutureFillsMissingDays(t *testing.T) {
	// 10 records on only 10 of 20 days; the gaps count as zero-spend days
	// and must pull the forecast down.
	var records []core.Expense
	start := core.NewDate(2024, 1, 1)
	for i := 0; i < 20; i += 2 {
		d := start.AddDate(0, 0, i)
		records = append(records, expense(d.Year(), int(d.Month()), d.Day(), 2000))
	}

	points, err := New().PredictFuture(records, 14)
	if err != nil {
		t.Fatalf("PredictFuture() error = %v", err)
	}
	var total int64
	for _, p := range points {
		total += p.Predicted.Cents
	}
	// Every other day at 20.00 averages out near 10.00/day, far below 20.00.
	if avg := total / 14; avg > 1600 {
		t.Fatalf("average predicted %d should reflect zero-spend gaps", avg)
	}
}

func TestMonthlyPrediction(t *testing.T) {
	total, err := New().MonthlyPrediction(constantFortnight())
	if err != nil {
		t.Fatalf("MonthlyPrediction() error = %v", err)
	}
	// 30 days at 10.00/day
	if total.Cents != 30000 {
		t.Fatalf("monthly prediction = %d, want 30000", total.Cents)
	}
}
