package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jun/stravastats/internal/adapter"
	"github.com/jun/stravastats/internal/logging"
	"github.com/jun/stravastats/internal/metrics"
	"github.com/jun/stravastats/internal/model"
)

const (
	DefaultMaxActivities = 200
	DefaultPerPage       = 30
	MaxPerPage           = 200
)

// StopReason records why pagination ended.
type StopReason string

const (
	StoppedAfterBound    StopReason = "after-bound"
	StoppedMaxActivities StopReason = "max-activities"
	StoppedEndOfData     StopReason = "end-of-data"
)

// Options bounds a fetch. After and Before are inclusive calendar dates.
type Options struct {
	After         *model.Date
	Before        *model.Date
	MaxActivities int
	PerPage       int
}

// Result is the outcome of a successful fetch.
type Result struct {
	Activities []model.Activity
	Pages      int
	StoppedBy  StopReason
}

// Fetcher pages through an ActivityProvider.
type Fetcher struct {
	provider adapter.ActivityProvider
	now      func() time.Time
	log      zerolog.Logger
}

func NewFetcher(provider adapter.ActivityProvider, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		provider: provider,
		now:      time.Now,
		log:      logger.With().Str("component", "activity_fetcher").Logger(),
	}
}

// Fetch reads pages from 1 upward. Pages arrive newest first, so the first
// record dated before opts.After ends pagination: every later record is older.
// Before only filters records. A short page means the provider has no more data.
func (f *Fetcher) Fetch(ctx context.Context, creds adapter.Credentials, opts Options) (*Result, error) {
	if opts.MaxActivities <= 0 {
		opts.MaxActivities = DefaultMaxActivities
	}
	if opts.PerPage <= 0 {
		opts.PerPage = DefaultPerPage
	}
	opts.PerPage = min(opts.PerPage, MaxPerPage)

	log := logging.FromContext(ctx, f.log)
	today := model.DateOf(f.now())
	res := &Result{Activities: make([]model.Activity, 0, min(opts.MaxActivities, 64))}

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, &adapter.Error{Op: "activities", Kind: adapter.KindCanceled, Err: err}
		}

		raws, err := f.provider.GetActivities(ctx, creds, page, opts.PerPage)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}
		res.Pages = page

		for _, raw := range raws {
			a := ParseRecord(raw, today)
			if opts.After != nil && a.StartDate.Before(*opts.After) {
				res.StoppedBy = StoppedAfterBound
				return f.done(log, res), nil
			}
			if opts.Before != nil && a.StartDate.After(*opts.Before) {
				continue
			}
			res.Activities = append(res.Activities, a)
			if len(res.Activities) >= opts.MaxActivities {
				res.StoppedBy = StoppedMaxActivities
				return f.done(log, res), nil
			}
		}

		if len(raws) < opts.PerPage {
			res.StoppedBy = StoppedEndOfData
			return f.done(log, res), nil
		}
	}
}

func (f *Fetcher) done(log *zerolog.Logger, res *Result) *Result {
	metrics.ActivitiesFetched.Add(float64(len(res.Activities)))
	log.Debug().
		Int("activities", len(res.Activities)).
		Int("pages", res.Pages).
		Str("stopped_by", string(res.StoppedBy)).
		Msg("Activity fetch complete")
	return res
}
