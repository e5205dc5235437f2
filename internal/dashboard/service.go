// Package dashboard assembles the analytics view for a session: it makes
// sure the token is fresh, reads activities through the range cache and
// hands the window to the analytics engine.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jun/stravastats/internal/activity"
	"github.com/jun/stravastats/internal/adapter"
	"github.com/jun/stravastats/internal/analytics"
	"github.com/jun/stravastats/internal/cache"
	"github.com/jun/stravastats/internal/logging"
	"github.com/jun/stravastats/internal/metrics"
	"github.com/jun/stravastats/internal/model"
)

// DefaultWindowDays is the window length used when the request names none.
const DefaultWindowDays = 30

// ErrInvalidWindow is returned for windows that end before they start or
// start in the future.
var ErrInvalidWindow = errors.New("invalid date window")

// Tokens is the slice of the token lifecycle the dashboard needs.
type Tokens interface {
	RefreshIfNeeded(ctx context.Context, sessionID string) error
	TokenSource(sessionID string) adapter.Credentials
}

// Window is an inclusive date range. Zero fields take defaults.
type Window struct {
	Start model.Date
	End   model.Date
}

type Options struct {
	// ForceRefresh refetches even when the cached activities cover the window.
	ForceRefresh bool
}

// Config tunes fetching.
type Config struct {
	MaxActivities int
	PerPage       int
}

// Dashboard is analytics.Result plus cache provenance.
type Dashboard struct {
	analytics.Result
	CachedStart model.Date `json:"cached_start_date"`
	CacheHit    bool       `json:"cache_hit"`
	Stale       bool       `json:"stale"`

	// Truncated is set when the activity cap was reached before the window
	// start; days before CachedStart may be missing activities.
	Truncated bool `json:"truncated"`

	// Warning carries the cause of a failed refetch when stale data is served.
	Warning adapter.Cause `json:"warning,omitempty"`
}

// Service builds dashboards.
type Service struct {
	tokens    Tokens
	providers adapter.ProviderResolver
	cache     *cache.RangeCache
	cfg       Config
	now       func() time.Time
	log       zerolog.Logger
}

func NewService(tokens Tokens, providers adapter.ProviderResolver, rc *cache.RangeCache, cfg Config, logger zerolog.Logger) *Service {
	if cfg.MaxActivities <= 0 {
		cfg.MaxActivities = activity.DefaultMaxActivities
	}
	return &Service{
		tokens:    tokens,
		providers: providers,
		cache:     rc,
		cfg:       cfg,
		now:       time.Now,
		log:       logger.With().Str("component", "dashboard").Logger(),
	}
}

// ResolveWindow fills defaults and validates w against today. A zero End
// means today; a zero Start means DefaultWindowDays ending at End.
func ResolveWindow(w Window, today model.Date) (Window, error) {
	if w.End.IsZero() {
		w.End = today
	}
	if w.Start.IsZero() {
		w.Start = w.End.AddDays(-(DefaultWindowDays - 1))
	}
	if w.End.Before(w.Start) {
		return w, fmt.Errorf("%w: start %s is after end %s", ErrInvalidWindow, w.Start, w.End)
	}
	if w.Start.After(today) {
		return w, fmt.Errorf("%w: start %s is in the future", ErrInvalidWindow, w.Start)
	}
	return w, nil
}

// Build returns the dashboard for the session and window. Provider and
// token failures come back unchanged so callers can use adapter.CauseOf.
func (s *Service) Build(ctx context.Context, sessionID string, w Window, opts Options) (*Dashboard, error) {
	started := s.now()
	defer func() { metrics.DashboardBuildDuration.Observe(time.Since(started).Seconds()) }()

	log := logging.FromContext(ctx, s.log)
	today := model.DateOf(started)

	w, err := ResolveWindow(w, today)
	if err != nil {
		return nil, err
	}

	if err := s.tokens.RefreshIfNeeded(ctx, sessionID); err != nil {
		return nil, err
	}

	read := s.cache.GetOrFetch
	if opts.ForceRefresh {
		read = s.cache.Refetch
	}
	res, err := read(ctx, sessionID, w.Start, s.fetchFunc(sessionID))
	var stale *cache.StaleError
	switch {
	case errors.As(err, &stale):
		log.Warn().Err(stale.Err).Msg("Serving stale dashboard")
	case err != nil:
		log.Error().Err(err).Str("cause", string(adapter.CauseOf(err))).Msg("Dashboard fetch failed")
		return nil, err
	}

	d := &Dashboard{
		Result:      analytics.Compute(res.Activities, w.Start, w.End, analytics.Options{Today: today}),
		CachedStart: res.CachedStart,
		CacheHit:    res.Hit,
		Stale:       res.Stale,
		Truncated:   res.Truncated && w.Start.Before(res.CachedStart),
	}
	if d.Truncated {
		log.Warn().Str("start", w.Start.String()).Str("covered_from", res.CachedStart.String()).Msg("Dashboard window exceeds fetched history")
	}
	if stale != nil {
		d.Warning = adapter.CauseOf(stale.Err)
	}
	return d, nil
}

func (s *Service) fetchFunc(sessionID string) cache.FetchFunc {
	return func(ctx context.Context, after model.Date) (*cache.Fetched, error) {
		provider, err := s.providers.Resolve(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve provider: %w", err)
		}
		res, err := activity.NewFetcher(provider, s.log).Fetch(ctx, s.tokens.TokenSource(sessionID), activity.Options{
			After:         &after,
			MaxActivities: s.cfg.MaxActivities,
			PerPage:       s.cfg.PerPage,
		})
		if err != nil {
			return nil, err
		}
		return &cache.Fetched{
			Activities: res.Activities,
			Truncated:  res.StoppedBy == activity.StoppedMaxActivities,
		}, nil
	}
}
