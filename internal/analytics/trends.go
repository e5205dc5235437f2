package analytics

import (
	"fmt"
	"math"
	"slices"

	"github.com/jun/stravastats/internal/model"
)

// DatedValue is one point of a daily series.
type DatedValue struct {
	Date  model.Date
	Value float64
}

// Series is a daily series in ascending date order. It encodes as a JSON
// object keyed by "YYYY-MM-DD".
type Series []DatedValue

// Values returns the series values in date order.
func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Value
	}
	return out
}

func (s Series) MarshalJSON() ([]byte, error) {
	return marshalOrdered(len(s), func(i int) (string, float64) { return s[i].Date.String(), s[i].Value })
}

type dayTotals struct {
	meters  float64
	seconds int
}

func sumByDate(acts []model.Activity) (map[model.Date]*dayTotals, []model.Date) {
	sums := make(map[model.Date]*dayTotals)
	var dates []model.Date
	for _, a := range acts {
		t, ok := sums[a.StartDate]
		if !ok {
			t = &dayTotals{}
			sums[a.StartDate] = t
			dates = append(dates, a.StartDate)
		}
		t.meters += a.DistanceMeters
		t.seconds += a.MovingTimeSeconds
	}
	slices.SortFunc(dates, model.Date.Compare)
	return sums, dates
}

// DistanceByDate sums miles per active date.
func DistanceByDate(acts []model.Activity) Series {
	sums, dates := sumByDate(acts)
	out := make(Series, 0, len(dates))
	for _, d := range dates {
		out = append(out, DatedValue{Date: d, Value: model.MetersToMiles(sums[d].meters)})
	}
	return out
}

// AveragePaceByDate gives min/mile per date as that day's total time over
// total distance. Days with no distance or no time are left out.
func AveragePaceByDate(runs []model.Activity) Series {
	sums, dates := sumByDate(runs)
	out := make(Series, 0, len(dates))
	for _, d := range dates {
		t := sums[d]
		miles := model.MetersToMiles(t.meters)
		if miles <= 0 || t.seconds <= 0 {
			continue
		}
		out = append(out, DatedValue{Date: d, Value: float64(t.seconds) / 60 / miles})
	}
	return out
}

// Trend directions.
const (
	DirectionInsufficient = "insufficient-data"
	DirectionSteady       = "steady"
	DirectionIncreasing   = "increasing"
	DirectionDecreasing   = "decreasing"
	DirectionConsistent   = "consistent"
	DirectionImproving    = "improving"
	DirectionSlowing      = "slowing"
)

const (
	distanceThresholdPct = 5.0
	paceThresholdPct     = 3.0
)

// Trend compares the later half of a series with the earlier half.
type Trend struct {
	Direction     string  `json:"direction"`
	PercentChange float64 `json:"percent_change"`
	Text          string  `json:"text"`
}

// PercentChange splits values into the first floor(n/2) and the rest and
// returns the change of means in percent. ok is false with fewer than two
// values; a zero first mean yields 0.
func PercentChange(values []float64) (pct float64, ok bool) {
	if len(values) < 2 {
		return 0, false
	}
	half := len(values) / 2
	first, second := mean(values[:half]), mean(values[half:])
	if first == 0 {
		return 0, true
	}
	return (second - first) / first * 100, true
}

func mean(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func trendText(direction string, pct float64) string {
	return fmt.Sprintf("%s by %.0f%%", direction, math.Abs(pct))
}

// DistanceTrend: under 5% either way is steady.
func DistanceTrend(values []float64) Trend {
	pct, ok := PercentChange(values)
	switch {
	case !ok:
		return Trend{Direction: DirectionInsufficient}
	case math.Abs(pct) < distanceThresholdPct:
		return Trend{Direction: DirectionSteady, PercentChange: pct, Text: DirectionSteady}
	case pct > 0:
		return Trend{Direction: DirectionIncreasing, PercentChange: pct, Text: trendText(DirectionIncreasing, pct)}
	default:
		return Trend{Direction: DirectionDecreasing, PercentChange: pct, Text: trendText(DirectionDecreasing, pct)}
	}
}

// PaceTrend: under 3% either way is consistent; a lower pace is faster.
func PaceTrend(values []float64) Trend {
	pct, ok := PercentChange(values)
	switch {
	case !ok:
		return Trend{Direction: DirectionInsufficient}
	case math.Abs(pct) < paceThresholdPct:
		return Trend{Direction: DirectionConsistent, PercentChange: pct, Text: DirectionConsistent}
	case pct < 0:
		return Trend{Direction: DirectionImproving, PercentChange: pct, Text: trendText(DirectionImproving, pct)}
	default:
		return Trend{Direction: DirectionSlowing, PercentChange: pct, Text: trendText(DirectionSlowing, pct)}
	}
}
