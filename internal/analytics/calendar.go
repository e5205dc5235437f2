package analytics

import (
	"slices"

	"github.com/jun/stravastats/internal/model"
)

// Intensity buckets a day's total moving time.
type Intensity string

const (
	IntensityNone   Intensity = "none"
	IntensityLight  Intensity = "light"
	IntensityMedium Intensity = "medium"
	IntensityHeavy  Intensity = "heavy"
)

// IntensityFor maps seconds to a bucket: 0 none, <1h light, <2h medium, else heavy.
func IntensityFor(seconds int) Intensity {
	switch {
	case seconds <= 0:
		return IntensityNone
	case seconds < 3600:
		return IntensityLight
	case seconds < 7200:
		return IntensityMedium
	default:
		return IntensityHeavy
	}
}

// DayEntry is one cell of the activity calendar.
type DayEntry struct {
	Date             model.Date       `json:"date"`
	HasActivity      bool             `json:"has_activity"`
	ActivityCount    int              `json:"activity_count"`
	TimeSpentSeconds int              `json:"time_spent_seconds"`
	Intensity        Intensity        `json:"intensity"`
	Activities       []model.Activity `json:"activities"`
}

// Calendar returns one entry per day of [start, end], in date order.
// Pass only the activities that should appear (runs, for the heatmap).
func Calendar(acts []model.Activity, start, end model.Date) []DayEntry {
	if end.Before(start) {
		return []DayEntry{}
	}
	byDate := make(map[model.Date][]model.Activity)
	for _, a := range acts {
		byDate[a.StartDate] = append(byDate[a.StartDate], a)
	}

	days := start.DaysUntil(end) + 1
	out := make([]DayEntry, 0, days)
	for d := start; !d.After(end); d = d.AddDays(1) {
		dayActs := byDate[d]
		secs := 0
		for _, a := range dayActs {
			secs += a.MovingTimeSeconds
		}
		if dayActs == nil {
			dayActs = []model.Activity{}
		}
		out = append(out, DayEntry{
			Date:             d,
			HasActivity:      len(dayActs) > 0,
			ActivityCount:    len(dayActs),
			TimeSpentSeconds: secs,
			Intensity:        IntensityFor(secs),
			Activities:       dayActs,
		})
	}
	return out
}

// Streaks summarises active and inactive days.
type Streaks struct {
	CurrentStreak   int `json:"current_streak"`
	LongestStreak   int `json:"longest_streak"`
	LongestGap      int `json:"longest_gap"`
	TotalGapDays    int `json:"total_gap_days"`
	TotalActiveDays int `json:"total_active_days"`
	RestDays        int `json:"rest_days"`

	// DaysSinceLastActivity is nil when no day in the window is active.
	DaysSinceLastActivity *int `json:"days_since_last_activity"`
}

// ActiveDates returns the distinct dates in [start, end] with at least one
// activity, ascending.
func ActiveDates(acts []model.Activity, start, end model.Date) []model.Date {
	seen := make(map[model.Date]bool)
	var out []model.Date
	for _, a := range acts {
		d := a.StartDate
		if d.Before(start) || d.After(end) || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	slices.SortFunc(out, model.Date.Compare)
	return out
}

// ComputeStreaks derives streak and gap figures. The current streak is
// anchored on today, not on the window end, and only counts if today or
// yesterday was active.
func ComputeStreaks(acts []model.Activity, start, end, today model.Date) Streaks {
	active := ActiveDates(acts, start, end)

	s := Streaks{TotalActiveDays: len(active)}
	if !end.Before(start) {
		s.RestDays = start.DaysUntil(end) + 1 - len(active)
	}
	if len(active) == 0 {
		return s
	}

	set := make(map[model.Date]bool, len(active))
	for _, d := range active {
		set[d] = true
	}
	cursor := today
	if !set[cursor] {
		cursor = today.AddDays(-1)
	}
	for set[cursor] {
		s.CurrentStreak++
		cursor = cursor.AddDays(-1)
	}

	run := 1
	s.LongestStreak = 1
	for i := 1; i < len(active); i++ {
		diff := active[i-1].DaysUntil(active[i])
		if diff == 1 {
			run++
			s.LongestStreak = max(s.LongestStreak, run)
			continue
		}
		gap := diff - 1
		s.LongestGap = max(s.LongestGap, gap)
		s.TotalGapDays += gap
		run = 1
	}

	since := active[len(active)-1].DaysUntil(today)
	s.DaysSinceLastActivity = &since
	return s
}
