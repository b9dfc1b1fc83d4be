// Package forecast projects future daily spend from the recorded ledger.
//
// The model is deliberately small: a day-of-week seasonal mean over the
// observed daily totals, with a symmetric confidence band. It exists to
// serve the forecast API surface, not to compete with a real time-series
// library.
package forecast

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"budgetwatch/internal/core"
)

// MinRecords is the smallest ledger that produces a forecast.
const MinRecords = 10

// ErrInsufficientData is returned when the ledger is too small to forecast.
var ErrInsufficientData = errors.New("insufficient data")

// Point is one forecast day with its confidence band. All three values are
// clipped at zero: a spend forecast is never negative.
type Point struct {
	Date      time.Time
	Predicted core.Money
	Lower     core.Money
	Upper     core.Money
}

// Forecaster predicts daily spend totals.
type Forecaster struct {
	// zScore scales the confidence band width. 1.96 approximates a 95%
	// interval under the usual assumptions.
	zScore float64
}

func New() *Forecaster {
	return &Forecaster{zScore: 1.96}
}

// PredictFuture forecasts the next days of daily spend, starting the day
// after the most recent expense. It requires at least MinRecords expenses.
func (f *Forecaster) PredictFuture(records []core.Expense, days int) ([]Point, error) {
	if days <= 0 {
		return nil, fmt.Errorf("%w: days must be positive", core.ErrInvalidInput)
	}
	if len(records) < MinRecords {
		return nil, fmt.Errorf("%w: need at least %d expense records, have %d",
			ErrInsufficientData, MinRecords, len(records))
	}

	daily := dailyTotals(records)
	weekdayMean := seasonalMeans(daily)
	sigma := stddev(daily)

	last := daily[len(daily)-1].day
	points := make([]Point, days)
	for i := range points {
		d := last.AddDate(0, 0, i+1)
		mean := weekdayMean[d.Weekday()]
		points[i] = Point{
			Date:      d,
			Predicted: toCents(mean),
			Lower:     toCents(mean - f.zScore*sigma),
			Upper:     toCents(mean + f.zScore*sigma),
		}
	}
	return points, nil
}

// MonthlyPrediction returns the predicted total spend over the next 30 days.
func (f *Forecaster) MonthlyPrediction(records []core.Expense) (core.Money, error) {
	points, err := f.PredictFuture(records, 30)
	if err != nil {
		return core.Money{}, err
	}
	var total int64
	for _, p := range points {
		total += p.Predicted.Cents
	}
	return core.Money{Cents: total}, nil
}

type dayTotal struct {
	day   time.Time
	cents int64
}

// dailyTotals aggregates expenses into one total per calendar day covering
// the whole observed range, with zero-spend days filled in. The zeros
// matter: a quiet Tuesday is information, not missing data.
func dailyTotals(records []core.Expense) []dayTotal {
	byDay := make(map[time.Time]int64)
	for _, r := range records {
		d := time.Date(r.Date.Year(), r.Date.Time.Month(), r.Date.Day(), 0, 0, 0, 0, time.UTC)
		byDay[d] += r.Amount.Cents
	}

	days := make([]time.Time, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	first, last := days[0], days[len(days)-1]
	var totals []dayTotal
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		totals = append(totals, dayTotal{day: d, cents: byDay[d]})
	}
	return totals
}

// seasonalMeans computes the mean daily total per weekday. Weekdays never
// observed fall back to the overall mean.
func seasonalMeans(daily []dayTotal) map[time.Weekday]float64 {
	sums := make(map[time.Weekday]float64)
	counts := make(map[time.Weekday]int)
	var overall float64
	for _, dt := range daily {
		wd := dt.day.Weekday()
		sums[wd] += float64(dt.cents)
		counts[wd]++
		overall += float64(dt.cents)
	}
	overall /= float64(len(daily))

	means := make(map[time.Weekday]float64, 7)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if counts[wd] > 0 {
			means[wd] = sums[wd] / float64(counts[wd])
		} else {
			means[wd] = overall
		}
	}
	return means
}

// stddev is the sample standard deviation of the daily totals.
func stddev(daily []dayTotal) float64 {
	if len(daily) < 2 {
		return 0
	}
	var mean float64
	for _, dt := range daily {
		mean += float64(dt.cents)
	}
	mean /= float64(len(daily))

	var ss float64
	for _, dt := range daily {
		diff := float64(dt.cents) - mean
		ss += diff * diff
	}
	return math.Sqrt(ss / float64(len(daily)-1))
}

// toCents rounds a float cent value into Money, clipping negatives to zero.
func toCents(v float64) core.Money {
	if v < 0 {
		return core.Money{}
	}
	return core.Money{Cents: int64(math.Round(v))}
}
