package model

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

func TestParseDate_IgnoresTimeAndZone(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Date
	}{
		{"plain date", "2024-03-09", NewDate(2024, time.March, 9)},
		{"local timestamp", "2024-03-09T23:59:59Z", NewDate(2024, time.March, 9)},
		{"offset timestamp", "2024-03-09T00:30:00-08:00", NewDate(2024, time.March, 9)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			if err != nil {
				t.Fatalf("ParseDate(%q) failed: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseDate_Invalid(t *testing.T) {
	for _, in := range []string{"", "2024-3-9", "yesterday!!"} {
		if _, err := ParseDate(in); err == nil {
			t.Errorf("Expected error for %q", in)
		}
	}
}

func TestDate_Arithmetic(t *testing.T) {
	d := NewDate(2024, time.February, 28)
	if got := d.AddDays(1); got != NewDate(2024, time.February, 29) {
		t.Errorf("Expected leap day, got %v", got)
	}
	if got := d.AddDays(2); got != NewDate(2024, time.March, 1) {
		t.Errorf("Expected March 1, got %v", got)
	}
	if n := d.DaysUntil(d.AddDays(-10)); n != -10 {
		t.Errorf("Expected -10 days, got %d", n)
	}
	if !d.Before(d.AddDays(1)) || !d.After(d.AddDays(-1)) {
		t.Error("Expected ordering to follow calendar")
	}
}

func TestDate_JSONRoundTrip(t *testing.T) {
	d := NewDate(2023, time.December, 31)
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(b) != `"2023-12-31"` {
		t.Errorf("Expected \"2023-12-31\", got %s", b)
	}
	var back Date
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if back != d {
		t.Errorf("Expected %v, got %v", d, back)
	}
}

func TestDate_ZeroRoundTrip(t *testing.T) {
	b, err := json.Marshal(struct {
		D Date `json:"d"`
	}{})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(b) != `{"d":""}` {
		t.Errorf("Expected empty string for zero date, got %s", b)
	}
	back := NewDate(2020, time.January, 1)
	if err := json.Unmarshal([]byte(`""`), &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !back.IsZero() {
		t.Errorf("Expected zero date, got %v", back)
	}
}

func TestActivity_Pace(t *testing.T) {
	a := Activity{DistanceMeters: 5000, MovingTimeSeconds: 1500}
	pace, ok := a.PacePerKm()
	if !ok {
		t.Fatal("Expected pace to be defined")
	}
	if math.Abs(pace-5.0) > 1e-6 {
		t.Errorf("Expected 5.0 min/km, got %f", pace)
	}

	mile, _ := a.PacePerMile()
	if math.Abs(mile-8.04670) > 1e-4 {
		t.Errorf("Expected ~8.0467 min/mile, got %f", mile)
	}
}

func TestActivity_PaceUndefined(t *testing.T) {
	if _, ok := (Activity{DistanceMeters: 0, MovingTimeSeconds: 100}).PacePerKm(); ok {
		t.Error("Expected undefined pace for zero distance")
	}
	if _, ok := (Activity{DistanceMeters: 100, MovingTimeSeconds: 0}).PacePerMile(); ok {
		t.Error("Expected undefined pace for zero time")
	}
}

func TestIsRunType(t *testing.T) {
	for _, typ := range []string{"Run", "VirtualRun", "TrailRun"} {
		if !IsRunType(typ) {
			t.Errorf("Expected %s to be a run", typ)
		}
	}
	for _, typ := range []string{"Ride", "Walk", "Hike", "run", ""} {
		if IsRunType(typ) {
			t.Errorf("Expected %s not to be a run", typ)
		}
	}
	if !(Activity{Type: "GravelRide"}).IsRide() {
		t.Error("Expected GravelRide to be a ride")
	}
}

func TestFilterWindow_Inclusive(t *testing.T) {
	start := NewDate(2024, time.May, 10)
	end := NewDate(2024, time.May, 12)
	acts := []Activity{
		{ID: 1, StartDate: start.AddDays(-1)},
		{ID: 2, StartDate: start},
		{ID: 3, StartDate: start.AddDays(1)},
		{ID: 4, StartDate: end},
		{ID: 5, StartDate: end.AddDays(1)},
	}
	got := FilterWindow(acts, start, end)
	if len(got) != 3 {
		t.Fatalf("Expected 3 activities, got %d", len(got))
	}
	for i, id := range []int64{2, 3, 4} {
		if got[i].ID != id {
			t.Errorf("Expected ID %d at %d, got %d", id, i, got[i].ID)
		}
	}
}

func TestTokenState_ExpiredBoundary(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	buffer := 300 * time.Second

	tests := []struct {
		name      string
		expiresAt int64
		want      bool
	}{
		{"exactly at buffer edge", now.Unix() + 300, true},
		{"one second before edge", now.Unix() + 301, false},
		{"already past", now.Unix() - 1, true},
		{"well in future", now.Unix() + 3600, false},
		{"unset", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := TokenState{ExpiresAt: tt.expiresAt}
			if got := ts.Expired(now, buffer); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCacheEntry_Sufficient(t *testing.T) {
	d := NewDate(2024, time.January, 15)
	e := CacheEntry{CachedStart: d}
	if !e.Sufficient(d) {
		t.Error("Expected entry to cover its own start")
	}
	if !e.Sufficient(d.AddDays(3)) {
		t.Error("Expected entry to cover a later start")
	}
	if e.Sufficient(d.AddDays(-1)) {
		t.Error("Expected entry not to cover an earlier start")
	}
}
