// Package activity pages through the provider and turns raw records into
// model.Activity values.
package activity

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/jun/stravastats/internal/adapter"
	"github.com/jun/stravastats/internal/model"
)

// ParseRecord converts one provider record. The start date comes from the
// local-date prefix; if that is missing the UTC date is used, then today.
func ParseRecord(raw adapter.RawActivity, today model.Date) model.Activity {
	a := model.Activity{
		ID:               raw.ID,
		Type:             model.DefaultActivityType,
		Name:             model.DefaultActivityName,
		StartDate:        startDate(raw, today),
		AverageSpeed:     raw.AverageSpeed,
		MaxSpeed:         raw.MaxSpeed,
		ElevationGain:    raw.TotalElevationGain,
		AverageHeartrate: raw.AverageHeartrate,
		MaxHeartrate:     raw.MaxHeartrate,
	}
	if raw.Type != nil && *raw.Type != "" {
		a.Type = *raw.Type
	}
	if raw.Name != nil && *raw.Name != "" {
		a.Name = *raw.Name
	}
	if raw.Distance != nil && *raw.Distance > 0 {
		a.DistanceMeters = *raw.Distance
	}
	if raw.MovingTime != nil && *raw.MovingTime > 0 {
		a.MovingTimeSeconds = int(*raw.MovingTime)
	}
	return a
}

func startDate(raw adapter.RawActivity, today model.Date) model.Date {
	for _, s := range []string{raw.StartDateLocal, raw.StartDate} {
		if d, err := model.ParseDate(s); err == nil {
			return d
		}
	}
	return today
}

// Parse decodes a JSON array of provider records.
func Parse(data []byte) ([]model.Activity, error) {
	var raws []adapter.RawActivity
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("failed to decode activities: %w", err)
	}
	return ParseAll(raws, model.DateOf(time.Now())), nil
}

// ParseAll converts records in order.
func ParseAll(raws []adapter.RawActivity, today model.Date) []model.Activity {
	out := make([]model.Activity, len(raws))
	for i, r := range raws {
		out[i] = ParseRecord(r, today)
	}
	return out
}
