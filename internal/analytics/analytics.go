// Package analytics computes dashboard statistics over a set of activities
// and an inclusive date window. Everything here is pure: no I/O, no clock
// reads beyond Options.Today defaulting, and no errors. Empty input yields
// zeros, empty collections and nil optional fields.
package analytics

import (
	"github.com/jun/stravastats/internal/model"
)

// Options tune a computation.
type Options struct {
	// Today anchors the current streak and days-since-last-activity.
	// Zero means the wall-clock date.
	Today model.Date

	// IsRun selects running activities for the calendar and running stats.
	// Nil means model.IsRunType.
	IsRun func(activityType string) bool
}

// Result is the full analytics bundle for one window.
type Result struct {
	Start model.Date `json:"start"`
	End   model.Date `json:"end"`

	TotalActivities  int    `json:"total_activities"`
	CountsByType     Totals `json:"counts_by_type"`
	MovingTimeByType Totals `json:"moving_time_by_type"` // seconds
	DistanceByType   Totals `json:"distance_by_type"`    // meters

	Calendar []DayEntry   `json:"calendar"`
	Streaks  Streaks      `json:"streaks"`
	Running  RunningStats `json:"running"`

	// DistanceBins counts runs per whole mile: bin i holds [i, i+1) miles.
	DistanceBins map[int]int `json:"distance_bins"`

	DistanceByDate    Series `json:"distance_by_date"`     // miles, all activity types
	AveragePaceByDate Series `json:"average_pace_by_date"` // min/mile, runs only

	DistanceTrend Trend `json:"distance_trend"`
	PaceTrend     Trend `json:"pace_trend"`
}

// Compute runs every metric over the activities falling in [start, end].
func Compute(acts []model.Activity, start, end model.Date, opts Options) Result {
	if opts.Today.IsZero() {
		opts.Today = model.Today()
	}
	if opts.IsRun == nil {
		opts.IsRun = model.IsRunType
	}

	inWindow := model.FilterWindow(acts, start, end)
	runs := make([]model.Activity, 0, len(inWindow))
	for _, a := range inWindow {
		if opts.IsRun(a.Type) {
			runs = append(runs, a)
		}
	}

	distanceByDate := DistanceByDate(inWindow)
	paceByDate := AveragePaceByDate(runs)

	return Result{
		Start:             start,
		End:               end,
		TotalActivities:   len(inWindow),
		CountsByType:      CountsByType(inWindow),
		MovingTimeByType:  MovingTimeByType(inWindow),
		DistanceByType:    DistanceByType(inWindow),
		Calendar:          Calendar(runs, start, end),
		Streaks:           ComputeStreaks(inWindow, start, end, opts.Today),
		Running:           ComputeRunning(runs),
		DistanceBins:      DistanceHistogram(runs),
		DistanceByDate:    distanceByDate,
		AveragePaceByDate: paceByDate,
		DistanceTrend:     DistanceTrend(distanceByDate.Values()),
		PaceTrend:         PaceTrend(paceByDate.Values()),
	}
}

// FilledBins returns DistanceBins as a dense slice from bin 0 to the highest
// observed bin, with empty bins as 0.
func (r Result) FilledBins() []int {
	return FillBins(r.DistanceBins)
}
