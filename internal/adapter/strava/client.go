package strava

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/jun/stravastats/internal/adapter"
	"github.com/jun/stravastats/internal/logging"
	"github.com/jun/stravastats/internal/metrics"
	"github.com/jun/stravastats/internal/model"
)

const (
	DefaultBaseURL = "https://www.strava.com/api/v3"
	DefaultTimeout = 10 * time.Second

	// Retry budget per logical call.
	maxRateLimitAttempts = 3
	maxServerRetries     = 3
	baseBackoff          = time.Second
	defaultRetryAfter    = 5 * time.Second

	maxErrorBody = 64 << 10

	endpointAthlete    = "athlete"
	endpointActivities = "activities"
)

// Sleeper blocks for d or until ctx is done, whichever comes first.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleepFunc adapts a function to Sleeper.
type SleepFunc func(ctx context.Context, d time.Duration) error

func (f SleepFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Config configures a Client. Zero values take defaults.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Sleeper    Sleeper
}

// Client implements adapter.ActivityProvider against the Strava REST API.
type Client struct {
	baseURL string
	http    *http.Client
	sleeper Sleeper
	breaker *gobreaker.CircuitBreaker[*response]
	log     zerolog.Logger
}

var _ adapter.ActivityProvider = (*Client)(nil)

// NewClient creates a new Strava client.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Sleeper == nil {
		cfg.Sleeper = realSleeper{}
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    cfg.HTTPClient,
		sleeper: cfg.Sleeper,
		log:     logger.With().Str("component", "strava_client").Logger(),
	}
	c.breaker = gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        "strava-api",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state change")
		},
	})
	return c
}

// GetAthlete returns the authenticated athlete's profile.
func (c *Client) GetAthlete(ctx context.Context, creds adapter.Credentials) (*model.Athlete, error) {
	var athlete model.Athlete
	if err := c.call(ctx, creds, endpointAthlete, c.baseURL+"/athlete", &athlete); err != nil {
		return nil, err
	}
	return &athlete, nil
}

// GetActivities returns one page of the athlete's activities, newest first.
func (c *Client) GetActivities(ctx context.Context, creds adapter.Credentials, page, perPage int) ([]adapter.RawActivity, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))

	var acts []adapter.RawActivity
	if err := c.call(ctx, creds, endpointActivities, c.baseURL+"/athlete/activities?"+q.Encode(), &acts); err != nil {
		return nil, err
	}
	return acts, nil
}

type response struct {
	status     int
	body       []byte
	retryAfter string
}

var errServerStatus = errors.New("server error status")

// call runs one logical request through the retry policy:
// 401 refreshes once and retries once, 429 waits Retry-After for up to
// three attempts, 5xx and network errors back off 1s, 2s, 4s.
func (c *Client) call(ctx context.Context, creds adapter.Credentials, endpoint, rawURL string, out any) error {
	log := logging.FromContext(ctx, c.log)

	token, err := creds.AccessToken(ctx)
	if err != nil {
		return c.fail(endpoint, &adapter.Error{Op: endpoint, Kind: adapter.KindAuthFailed, Err: err})
	}

	var (
		attempts    int
		refreshed   bool
		rateLimited int
		retries     int
	)
	for {
		attempts++
		resp, err := c.attempt(ctx, endpoint, rawURL, token)

		var kind adapter.Kind
		var status int
		switch {
		case err != nil && ctx.Err() != nil:
			return c.fail(endpoint, &adapter.Error{Op: endpoint, Kind: adapter.KindCanceled, Attempts: attempts, Err: ctx.Err()})
		case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
			return c.fail(endpoint, &adapter.Error{Op: endpoint, Kind: adapter.KindServerError, Attempts: attempts, Err: err})
		case err != nil && resp == nil:
			kind = adapter.KindNetworkError
		default:
			status = resp.status
			if status >= 200 && status < 300 {
				if err := json.Unmarshal(resp.body, out); err != nil {
					return c.fail(endpoint, &adapter.Error{Op: endpoint, Kind: adapter.KindServerError, StatusCode: status, Attempts: attempts, Err: fmt.Errorf("decode response: %w", err)})
				}
				metrics.ProviderRequests.WithLabelValues(endpoint, "ok").Inc()
				return nil
			}
			kind = adapter.KindForStatus(status)
			err = fmt.Errorf("provider responded %d: %s", status, summarize(resp.body))
		}

		var wait time.Duration
		switch kind {
		case adapter.KindAuthFailed:
			if refreshed {
				return c.fail(endpoint, &adapter.Error{Op: endpoint, Kind: kind, StatusCode: status, Attempts: attempts, Err: err})
			}
			refreshed = true
			metrics.ProviderRetries.WithLabelValues(endpoint, "auth_refresh").Inc()
			log.Info().Str("endpoint", endpoint).Msg("Access token rejected, refreshing once")
			token, err = creds.Refresh(ctx)
			if err != nil {
				return c.fail(endpoint, &adapter.Error{Op: endpoint, Kind: adapter.KindAuthFailed, StatusCode: status, Attempts: attempts, Err: err})
			}
			continue
		case adapter.KindRateLimited:
			rateLimited++
			if rateLimited >= maxRateLimitAttempts {
				return c.fail(endpoint, &adapter.Error{Op: endpoint, Kind: kind, StatusCode: status, Attempts: attempts, Err: err})
			}
			wait = parseRetryAfter(resp.retryAfter)
		case adapter.KindServerError, adapter.KindNetworkError:
			if retries >= maxServerRetries {
				return c.fail(endpoint, &adapter.Error{Op: endpoint, Kind: kind, StatusCode: status, Attempts: attempts, Err: err})
			}
			wait = baseBackoff << retries
			retries++
		default:
			return c.fail(endpoint, &adapter.Error{Op: endpoint, Kind: kind, StatusCode: status, Attempts: attempts, Err: err})
		}

		metrics.ProviderRetries.WithLabelValues(endpoint, kind.String()).Inc()
		log.Warn().
			Str("endpoint", endpoint).
			Str("kind", kind.String()).
			Int("attempt", attempts).
			Dur("wait", wait).
			Err(err).
			Msg("Provider call failed, retrying")

		if serr := c.sleeper.Sleep(ctx, wait); serr != nil {
			return c.fail(endpoint, &adapter.Error{Op: endpoint, Kind: adapter.KindCanceled, StatusCode: status, Attempts: attempts, Err: serr})
		}
	}
}

// attempt performs a single HTTP round trip through the circuit breaker.
// A nil response with a non-nil error means nothing was received.
func (c *Client) attempt(ctx context.Context, endpoint, rawURL, token string) (*response, error) {
	start := time.Now()
	defer func() { metrics.ObserveProviderAttempt(endpoint, time.Since(start)) }()

	var got *response
	_, err := c.breaker.Execute(func() (*response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		var body io.Reader = resp.Body
		if resp.StatusCode >= 300 {
			body = io.LimitReader(resp.Body, maxErrorBody)
		}
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		got = &response{status: resp.StatusCode, body: data, retryAfter: resp.Header.Get("Retry-After")}
		if resp.StatusCode >= 500 {
			return got, errServerStatus
		}
		return got, nil
	})
	if got != nil {
		return got, nil
	}
	return nil, err
}

func (c *Client) fail(endpoint string, e *adapter.Error) error {
	metrics.ProviderRequests.WithLabelValues(endpoint, e.Kind.String()).Inc()
	return e
}

// parseRetryAfter reads a delay in whole seconds, defaulting to 5s.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return defaultRetryAfter
	}
	return time.Duration(secs) * time.Second
}

// summarize extracts the provider's "message" field when present.
func summarize(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
		return payload.Message
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
