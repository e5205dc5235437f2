// Package memory serves a synthetic activity history for demo sessions.
// It honours the same contract as the real provider: pages are 1-based and
// reverse-chronological, and a short page marks the end of data.
package memory

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/jun/stravastats/internal/adapter"
	"github.com/jun/stravastats/internal/model"
)

const (
	DemoHistoryDays = 365
	maxDemoPerPage  = 200
	demoIDBase      = 9_000_000_000
)

// MemoryProvider implements adapter.ActivityProvider from an in-memory list.
type MemoryProvider struct {
	athlete model.Athlete

	mu         sync.RWMutex
	activities []adapter.RawActivity // newest first
	pageCalls  int
}

var _ adapter.ActivityProvider = (*MemoryProvider)(nil)

// NewMemoryProvider returns a provider holding acts, which must already be newest first.
func NewMemoryProvider(athlete model.Athlete, acts []adapter.RawActivity) *MemoryProvider {
	return &MemoryProvider{athlete: athlete, activities: acts}
}

// NewDemoProvider generates days of history ending at today. The same seed
// always yields the same history.
func NewDemoProvider(seed uint64, today model.Date, days int) *MemoryProvider {
	if days <= 0 {
		days = DemoHistoryDays
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x5eed))

	var acts []adapter.RawActivity
	id := int64(demoIDBase)
	for offset := 0; offset < days; offset++ {
		day := today.AddDays(-offset)
		// Roughly four sessions a week, occasionally two in a day.
		n := 0
		if rng.Float64() < 0.6 {
			n = 1
			if rng.Float64() < 0.1 {
				n = 2
			}
		}
		for i := 0; i < n; i++ {
			acts = append(acts, demoActivity(rng, id, day, 18-i*10))
			id++
		}
	}

	return NewMemoryProvider(model.Athlete{
		ID:        demoIDBase,
		Username:  "demo",
		FirstName: "Demo",
		LastName:  "Athlete",
		City:      "Boulder",
		Country:   "United States",
	}, acts)
}

type demoKind struct {
	typ         string
	minKm       float64
	maxKm       float64
	minPace     float64 // minutes per km
	maxPace     float64
	hasHeart    bool
	nameSuffix  string
	weightRange float64
}

var demoKinds = []demoKind{
	{"Run", 3, 16, 4.4, 6.4, true, "Run", 0.50},
	{"TrailRun", 5, 21, 5.5, 8.0, true, "Trail Run", 0.60},
	{"VirtualRun", 3, 10, 4.8, 6.0, true, "Treadmill Run", 0.65},
	{"Ride", 15, 80, 1.8, 3.0, true, "Ride", 0.85},
	{"Walk", 2, 7, 10, 13, false, "Walk", 1.00},
}

func demoActivity(rng *rand.Rand, id int64, day model.Date, hour int) adapter.RawActivity {
	r := rng.Float64()
	k := demoKinds[len(demoKinds)-1]
	for _, candidate := range demoKinds {
		if r < candidate.weightRange {
			k = candidate
			break
		}
	}

	km := k.minKm + rng.Float64()*(k.maxKm-k.minKm)
	pace := k.minPace + rng.Float64()*(k.maxPace-k.minPace)
	meters := float64(int(km*1000*10)) / 10
	seconds := float64(int(km * pace * 60))
	speed := meters / seconds
	maxSpeed := speed * (1.2 + rng.Float64()*0.3)
	elev := float64(int(rng.Float64() * km * 15))

	name := fmt.Sprintf("%s %s", partOfDay(hour), k.nameSuffix)
	a := adapter.RawActivity{
		ID:                 id,
		Type:               &k.typ,
		Name:               &name,
		StartDate:          fmt.Sprintf("%sT%02d:15:00Z", day, hour),
		StartDateLocal:     fmt.Sprintf("%sT%02d:15:00Z", day, hour),
		Distance:           &meters,
		MovingTime:         &seconds,
		AverageSpeed:       &speed,
		MaxSpeed:           &maxSpeed,
		TotalElevationGain: &elev,
	}
	if k.hasHeart {
		avg := float64(135 + rng.IntN(30))
		peak := avg + float64(10+rng.IntN(20))
		a.AverageHeartrate = &avg
		a.MaxHeartrate = &peak
	}
	return a
}

func partOfDay(hour int) string {
	switch {
	case hour < 12:
		return "Morning"
	case hour < 17:
		return "Afternoon"
	default:
		return "Evening"
	}
}

// GetAthlete returns the demo athlete.
func (m *MemoryProvider) GetAthlete(ctx context.Context, creds adapter.Credentials) (*model.Athlete, error) {
	if err := ctx.Err(); err != nil {
		return nil, &adapter.Error{Op: "athlete", Kind: adapter.KindCanceled, Attempts: 1, Err: err}
	}
	a := m.athlete
	return &a, nil
}

// GetActivities returns page (1-based) of perPage activities.
func (m *MemoryProvider) GetActivities(ctx context.Context, creds adapter.Credentials, page, perPage int) ([]adapter.RawActivity, error) {
	if err := ctx.Err(); err != nil {
		return nil, &adapter.Error{Op: "activities", Kind: adapter.KindCanceled, Attempts: 1, Err: err}
	}
	if page < 1 || perPage < 1 || perPage > maxDemoPerPage {
		return nil, &adapter.Error{
			Op:         "activities",
			Kind:       adapter.KindClientError,
			StatusCode: 400,
			Attempts:   1,
			Err:        fmt.Errorf("invalid paging page=%d per_page=%d", page, perPage),
		}
	}

	m.mu.Lock()
	m.pageCalls++
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()

	from := (page - 1) * perPage
	if from >= len(m.activities) {
		return []adapter.RawActivity{}, nil
	}
	to := min(from+perPage, len(m.activities))
	out := make([]adapter.RawActivity, to-from)
	copy(out, m.activities[from:to])
	return out, nil
}

// PageCalls reports how many activity pages have been served.
func (m *MemoryProvider) PageCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pageCalls
}

// Len returns the number of stored activities.
func (m *MemoryProvider) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.activities)
}
