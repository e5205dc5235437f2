package analytics

import (
	"math"
	"slices"

	"github.com/jun/stravastats/internal/model"
)

const tenK = 10000.0

// RunningStats are personal-record style figures over running activities.
// Paces are minutes per mile.
type RunningStats struct {
	TotalRuns            int         `json:"total_runs"`
	TotalDistanceMeters  float64     `json:"total_distance_meters"`
	AveragePace          float64     `json:"average_pace"`
	AveragePaceFormatted string      `json:"average_pace_formatted"`
	FastestPace          float64     `json:"fastest_pace"`
	FastestPaceDate      *model.Date `json:"fastest_pace_date,omitempty"`
	LongestRunDistance   float64     `json:"longest_run_distance"` // meters
	LongestRunDate       *model.Date `json:"longest_run_date,omitempty"`
	RunsOver10K          int         `json:"runs_over_10k"`
}

// ComputeRunning summarises runs. Average pace is total time over total
// distance, not a mean of per-run paces; it is 0 when distance is 0.
func ComputeRunning(runs []model.Activity) RunningStats {
	s := RunningStats{TotalRuns: len(runs)}

	var totalSeconds int
	for _, r := range runs {
		s.TotalDistanceMeters += r.DistanceMeters
		totalSeconds += r.MovingTimeSeconds

		if r.DistanceMeters >= tenK {
			s.RunsOver10K++
		}
		if r.DistanceMeters > s.LongestRunDistance {
			s.LongestRunDistance = r.DistanceMeters
			d := r.StartDate
			s.LongestRunDate = &d
		}
		if pace, ok := r.PacePerMile(); ok && (s.FastestPaceDate == nil || pace < s.FastestPace) {
			s.FastestPace = pace
			d := r.StartDate
			s.FastestPaceDate = &d
		}
	}

	if miles := model.MetersToMiles(s.TotalDistanceMeters); miles > 0 {
		s.AveragePace = float64(totalSeconds) / 60 / miles
	}
	s.AveragePaceFormatted = FormatPace(s.AveragePace)
	return s
}

// DistanceHistogram bins runs by floor(miles).
func DistanceHistogram(runs []model.Activity) map[int]int {
	bins := make(map[int]int)
	for _, r := range runs {
		bins[int(math.Floor(r.DistanceMiles()))]++
	}
	return bins
}

// FillBins turns sparse bins into a dense slice from 0 to the highest bin.
func FillBins(bins map[int]int) []int {
	if len(bins) == 0 {
		return []int{}
	}
	keys := make([]int, 0, len(bins))
	for k := range bins {
		keys = append(keys, k)
	}
	top := slices.Max(keys)
	out := make([]int, top+1)
	for k, v := range bins {
		if k >= 0 {
			out[k] = v
		}
	}
	return out
}
