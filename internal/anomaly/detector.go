// Package anomaly flags expenses whose amounts are far outside the typical
// spending pattern.
//
// Scoring uses the modified z-score (median and MAD) so one huge outlier
// cannot mask another. The contamination parameter caps how much of the
// ledger may be flagged in a single pass.
package anomaly

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"budgetwatch/internal/core"
)

const (
	// MinRecords is the smallest ledger the detector will score.
	MinRecords = 10

	// DefaultContamination is the expected share of outliers (5%).
	DefaultContamination = 0.05

	// scoreThreshold is the conventional modified z-score cutoff.
	scoreThreshold = 3.5

	// madScale converts MAD to a consistent estimate of the standard
	// deviation for normal data.
	madScale = 0.6745
)

// ErrInsufficientData is returned when the ledger is too small to score.
var ErrInsufficientData = errors.New("insufficient data")

// Anomaly is a flagged expense with its score. Higher scores are further
// from typical spending.
type Anomaly struct {
	Expense core.Expense
	Score   float64
}

// Detector scores expense amounts against the ledger's typical spend.
type Detector struct {
	contamination float64
}

// NewDetector creates a detector with the given contamination (the maximum
// share of records flagged). Values outside (0, 1] fall back to the default.
func NewDetector(contamination float64) *Detector {
	if contamination <= 0 || contamination > 1 {
		contamination = DefaultContamination
	}
	return &Detector{contamination: contamination}
}

// Detect returns the anomalous expenses sorted most-anomalous first. At
// most ceil(contamination * n) records are flagged, and only those whose
// score clears the threshold.
func (d *Detector) Detect(records []core.Expense) ([]Anomaly, error) {
	center, spread, err := fit(records)
	if err != nil {
		return nil, err
	}
	if spread == 0 {
		// All amounts equal: nothing can be anomalous.
		return nil, nil
	}

	var flagged []Anomaly
	for _, r := range records {
		s := score(float64(r.Amount.Cents), center, spread)
		if s > scoreThreshold {
			flagged = append(flagged, Anomaly{Expense: r, Score: s})
		}
	}
	sort.Slice(flagged, func(i, j int) bool { return flagged[i].Score > flagged[j].Score })

	maxFlagged := int(math.Ceil(d.contamination * float64(len(records))))
	if len(flagged) > maxFlagged {
		flagged = flagged[:maxFlagged]
	}
	return flagged, nil
}

// IsAmountAnomalous checks a single amount against the ledger, for use when
// a new expense is being recorded.
func (d *Detector) IsAmountAnomalous(records []core.Expense, amount core.Money) (bool, error) {
	center, spread, err := fit(records)
	if err != nil {
		return false, err
	}
	if spread == 0 {
		return false, nil
	}
	return score(float64(amount.Cents), center, spread) > scoreThreshold, nil
}

// fit estimates the center (median) and spread (scaled MAD, with a mean
// absolute deviation fallback when the MAD degenerates to zero) of the
// recorded amounts.
func fit(records []core.Expense) (center, spread float64, err error) {
	if len(records) < MinRecords {
		return 0, 0, fmt.Errorf("%w: need at least %d expense records, have %d",
			ErrInsufficientData, MinRecords, len(records))
	}

	amounts := make([]float64, len(records))
	for i, r := range records {
		amounts[i] = float64(r.Amount.Cents)
	}
	center = median(amounts)

	devs := make([]float64, len(amounts))
	var sum float64
	for i, a := range amounts {
		devs[i] = math.Abs(a - center)
		sum += devs[i]
	}
	spread = median(devs) / madScale
	if spread == 0 {
		// More than half the amounts sit exactly on the median; fall back
		// to the mean absolute deviation so rare outliers still score.
		spread = sum / float64(len(devs))
	}
	return center, spread, nil
}

func score(amount, center, spread float64) float64 {
	return math.Abs(amount-center) / spread
}

func median(values []float64) float64 {
	s := make([]float64, len(values))
	copy(s, values)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}
