package adapter

import (
	"context"

	"github.com/jun/stravastats/internal/model"
)

// Credentials supplies the bearer token for one session.
// Refresh replaces the token after the provider has rejected it and returns the new one.
type Credentials interface {
	AccessToken(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// ActivityProvider defines the two calls made against the fitness provider.
// Every returned error is an *Error so callers can branch on Kind.
type ActivityProvider interface {
	// GetAthlete returns the authenticated athlete's profile.
	GetAthlete(ctx context.Context, creds Credentials) (*model.Athlete, error)

	// GetActivities returns one page of activities, newest first.
	GetActivities(ctx context.Context, creds Credentials, page, perPage int) ([]RawActivity, error)
}

// ProviderResolver picks the ActivityProvider serving a session.
type ProviderResolver interface {
	Resolve(ctx context.Context, sessionID string) (ActivityProvider, error)
}

// RawActivity is one activity record as the provider sends it.
// Pointer fields distinguish "absent" from zero.
type RawActivity struct {
	ID                 int64    `json:"id"`
	Type               *string  `json:"type"`
	Name               *string  `json:"name"`
	StartDate          string   `json:"start_date"`
	StartDateLocal     string   `json:"start_date_local"`
	Distance           *float64 `json:"distance"`
	MovingTime         *float64 `json:"moving_time"`
	AverageSpeed       *float64 `json:"average_speed"`
	MaxSpeed           *float64 `json:"max_speed"`
	TotalElevationGain *float64 `json:"total_elevation_gain"`
	AverageHeartrate   *float64 `json:"average_heartrate"`
	MaxHeartrate       *float64 `json:"max_heartrate"`
}

// ResolverFunc adapts a function to ProviderResolver.
type ResolverFunc func(ctx context.Context, sessionID string) (ActivityProvider, error)

func (f ResolverFunc) Resolve(ctx context.Context, sessionID string) (ActivityProvider, error) {
	return f(ctx, sessionID)
}
