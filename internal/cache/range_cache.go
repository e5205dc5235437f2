// Package cache keeps each session's most recently fetched activity window.
//
// An entry covering every activity from date D serves any request whose
// start is on or after D. A request starting earlier replaces the entry with
// a wider fetch; the two are never merged. A fetch cut short by the activity
// cap only covers the days after its oldest activity, and the entry records
// that narrower start.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jun/stravastats/internal/logging"
	"github.com/jun/stravastats/internal/metrics"
	"github.com/jun/stravastats/internal/model"
	"github.com/jun/stravastats/internal/session"
)

// Policy decides what a failed refetch returns when an older entry exists.
type Policy string

const (
	// PolicyFailFast returns the error and no data.
	PolicyFailFast Policy = "fail-fast"
	// PolicyServeStale returns the older entry's activities flagged stale,
	// together with a *StaleError.
	PolicyServeStale Policy = "serve-stale"
)

// ParsePolicy maps a config value to a Policy. Empty means PolicyFailFast.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyFailFast:
		return PolicyFailFast, nil
	case PolicyServeStale:
		return PolicyServeStale, nil
	}
	return "", fmt.Errorf("unknown cache stale policy %q", s)
}

// Fetched is what a FetchFunc returns. Truncated means the fetch stopped at
// its activity cap before reaching the requested start.
type Fetched struct {
	Activities []model.Activity
	Truncated  bool
}

// FetchFunc loads activities on or after after, newest first.
type FetchFunc func(ctx context.Context, after model.Date) (*Fetched, error)

// Result is what GetOrFetch hands back. Activities may extend before the
// requested start; callers filter to their window. CachedStart is the first
// date the activities fully cover, which is later than the requested start
// when the fetch was truncated.
type Result struct {
	Activities  []model.Activity
	CachedStart model.Date
	Hit         bool
	Stale       bool
	Truncated   bool
}

func resultFrom(e *model.CacheEntry) *Result {
	return &Result{Activities: e.Activities, CachedStart: e.CachedStart, Truncated: e.Truncated}
}

// coveredFrom is the first date fetched fully covers. When the cap cut the
// fetch short, the oldest day may be missing activities, so coverage starts
// the day after it.
func coveredFrom(requested model.Date, fetched *Fetched) model.Date {
	if !fetched.Truncated || len(fetched.Activities) == 0 {
		return requested
	}
	oldest := fetched.Activities[0].StartDate
	for _, a := range fetched.Activities[1:] {
		if a.StartDate.Before(oldest) {
			oldest = a.StartDate
		}
	}
	if next := oldest.AddDays(1); next.After(requested) {
		return next
	}
	return requested
}

// StaleError accompanies stale data served after a failed refetch.
type StaleError struct {
	CachedStart model.Date
	Err         error
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("serving activities cached from %s: refetch failed: %v", e.CachedStart, e.Err)
}

func (e *StaleError) Unwrap() error { return e.Err }

// RangeCache stores one model.CacheEntry per session in a session.Store.
type RangeCache struct {
	store  session.Store
	locker session.Locker
	policy Policy
	now    func() time.Time
	log    zerolog.Logger
}

func New(store session.Store, locker session.Locker, policy Policy, logger zerolog.Logger) *RangeCache {
	if policy == "" {
		policy = PolicyFailFast
	}
	return &RangeCache{
		store:  store,
		locker: locker,
		policy: policy,
		now:    time.Now,
		log:    logger.With().Str("component", "range_cache").Logger(),
	}
}

func (c *RangeCache) load(ctx context.Context, sessionID string) (*model.CacheEntry, bool) {
	var e model.CacheEntry
	ok, err := c.store.Get(ctx, sessionID, session.KeyActivities, &e)
	if err != nil {
		logging.FromContext(ctx, c.log).Warn().Err(err).Msg("Unreadable activity cache, treating as miss")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return &e, true
}

// GetOrFetch returns activities covering requestedStart onward, reusing
// the session's entry when it is sufficient and otherwise calling fetch.
// Refetches are serialized per session; a request that waited on the lock
// re-reads the entry and reuses what the other request stored.
func (c *RangeCache) GetOrFetch(ctx context.Context, sessionID string, requestedStart model.Date, fetch FetchFunc) (*Result, error) {
	if e, ok := c.load(ctx, sessionID); ok && e.Sufficient(requestedStart) {
		metrics.ActivityCacheLookups.WithLabelValues("hit").Inc()
		res := resultFrom(e)
		res.Hit = true
		return res, nil
	}
	return c.fetchLocked(ctx, sessionID, requestedStart, fetch, false)
}

// Refetch always calls fetch. The existing entry stays in place until the
// fetch succeeds, so it remains available to the stale policy.
func (c *RangeCache) Refetch(ctx context.Context, sessionID string, requestedStart model.Date, fetch FetchFunc) (*Result, error) {
	return c.fetchLocked(ctx, sessionID, requestedStart, fetch, true)
}

func (c *RangeCache) fetchLocked(ctx context.Context, sessionID string, requestedStart model.Date, fetch FetchFunc, force bool) (*Result, error) {
	log := logging.FromContext(ctx, c.log)

	release, err := c.locker.Acquire(ctx, session.LockKey(sessionID, "cache"))
	if err != nil {
		return nil, err
	}
	defer release()

	prior, havePrior := c.load(ctx, sessionID)
	if !force && havePrior && prior.Sufficient(requestedStart) {
		metrics.ActivityCacheLookups.WithLabelValues("hit").Inc()
		res := resultFrom(prior)
		res.Hit = true
		return res, nil
	}

	metrics.ActivityCacheLookups.WithLabelValues("miss").Inc()
	fetched, err := fetch(ctx, requestedStart)
	if err != nil {
		if c.policy == PolicyServeStale && havePrior {
			metrics.ActivityCacheLookups.WithLabelValues("stale").Inc()
			log.Warn().Err(err).Str("cached_start", prior.CachedStart.String()).Msg("Refetch failed, serving stale activities")
			res := resultFrom(prior)
			res.Stale = true
			return res, &StaleError{CachedStart: prior.CachedStart, Err: err}
		}
		return nil, err
	}

	entry := model.CacheEntry{
		Activities:  fetched.Activities,
		CachedStart: coveredFrom(requestedStart, fetched),
		CachedAt:    c.now().UTC(),
		Truncated:   fetched.Truncated,
	}
	if entry.Truncated {
		log.Warn().
			Int("activities", len(entry.Activities)).
			Str("requested_start", requestedStart.String()).
			Str("cached_start", entry.CachedStart.String()).
			Msg("Activity cap reached before requested start")
	}
	if err := c.store.Set(ctx, sessionID, session.KeyActivities, entry); err != nil {
		// The caller still gets fresh data; the next request refetches.
		log.Warn().Err(err).Msg("Failed to store activity cache")
	}

	log.Debug().Int("activities", len(entry.Activities)).Str("cached_start", entry.CachedStart.String()).Msg("Activity cache replaced")
	return resultFrom(&entry), nil
}
