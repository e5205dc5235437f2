package model

import "time"

const (
	metersPerMile = 1609.34
	metersPerKm   = 1000.0

	DefaultActivityType = "Unknown"
	DefaultActivityName = "Untitled Activity"
)

var (
	runTypes  = map[string]bool{"Run": true, "VirtualRun": true, "TrailRun": true}
	rideTypes = map[string]bool{"Ride": true, "VirtualRide": true, "MountainBikeRide": true, "GravelRide": true, "EBikeRide": true}
)

// Activity is a single recorded workout. Values are never mutated after parsing.
type Activity struct {
	ID                int64    `json:"id"`
	Type              string   `json:"type"`
	Name              string   `json:"name"`
	StartDate         Date     `json:"start_date"`
	DistanceMeters    float64  `json:"distance"`
	MovingTimeSeconds int      `json:"moving_time"`
	AverageSpeed      *float64 `json:"average_speed,omitempty"`
	MaxSpeed          *float64 `json:"max_speed,omitempty"`
	ElevationGain     *float64 `json:"elevation_gain,omitempty"`
	AverageHeartrate  *float64 `json:"average_heartrate,omitempty"`
	MaxHeartrate      *float64 `json:"max_heartrate,omitempty"`
}

func (a Activity) DistanceKm() float64 {
	return a.DistanceMeters / metersPerKm
}

func (a Activity) DistanceMiles() float64 {
	return a.DistanceMeters / metersPerMile
}

func (a Activity) MovingTimeHours() float64 {
	return float64(a.MovingTimeSeconds) / 3600
}

// PacePerKm returns minutes per kilometer. ok is false when distance or time is zero.
func (a Activity) PacePerKm() (pace float64, ok bool) {
	if a.DistanceMeters <= 0 || a.MovingTimeSeconds <= 0 {
		return 0, false
	}
	return float64(a.MovingTimeSeconds) / 60 / a.DistanceKm(), true
}

// PacePerMile returns minutes per mile. ok is false when distance or time is zero.
func (a Activity) PacePerMile() (pace float64, ok bool) {
	if a.DistanceMeters <= 0 || a.MovingTimeSeconds <= 0 {
		return 0, false
	}
	return float64(a.MovingTimeSeconds) / 60 / a.DistanceMiles(), true
}

// IsRun reports whether the activity counts as running everywhere in analytics.
func (a Activity) IsRun() bool {
	return IsRunType(a.Type)
}

func (a Activity) IsRide() bool {
	return rideTypes[a.Type]
}

// IsRunType is the single running predicate: Run, VirtualRun and TrailRun.
func IsRunType(t string) bool {
	return runTypes[t]
}

// MetersToMiles converts a distance for display and binning.
func MetersToMiles(m float64) float64 {
	return m / metersPerMile
}

// FilterWindow keeps activities whose start date lies in [start, end], inclusive.
func FilterWindow(acts []Activity, start, end Date) []Activity {
	out := make([]Activity, 0, len(acts))
	for _, a := range acts {
		if a.StartDate.Before(start) || a.StartDate.After(end) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Athlete is the profile summary returned with the token at login.
type Athlete struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"firstname,omitempty"`
	LastName  string `json:"lastname,omitempty"`
	City      string `json:"city,omitempty"`
	Country   string `json:"country,omitempty"`
	Profile   string `json:"profile,omitempty"`
}

// TokenState is the OAuth token held for a session.
type TokenState struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	ExpiresAt    int64   `json:"expires_at"` // epoch seconds
	Athlete      Athlete `json:"athlete"`
}

// Expired reports whether the token is within buffer of its expiry.
// now == ExpiresAt-buffer counts as expired. A zero ExpiresAt never expires.
func (t TokenState) Expired(now time.Time, buffer time.Duration) bool {
	if t.ExpiresAt == 0 {
		return false
	}
	return now.Unix() >= t.ExpiresAt-int64(buffer/time.Second)
}

// CacheEntry is the most recently fetched activity window for a session.
// CachedStart is the first date the activities fully cover. Truncated marks
// an entry whose fetch hit the activity cap before the date it asked for.
type CacheEntry struct {
	Activities  []Activity `json:"activities"`
	CachedStart Date       `json:"cached_start_date"`
	CachedAt    time.Time  `json:"cached_at"`
	Truncated   bool       `json:"truncated,omitempty"`
}

// Sufficient reports whether the entry covers a window starting at start.
func (e CacheEntry) Sufficient(start Date) bool {
	return !e.CachedStart.After(start)
}
