package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/jun/stravastats/internal/adapter"
	"github.com/jun/stravastats/internal/logging"
	"github.com/jun/stravastats/internal/metrics"
	"github.com/jun/stravastats/internal/model"
	"github.com/jun/stravastats/internal/session"
)

const (
	DefaultRefreshBuffer = 300 * time.Second
	DefaultHTTPTimeout   = 10 * time.Second

	// refreshTimeout bounds a shared refresh, which outlives any one caller's context.
	refreshTimeout = 30 * time.Second
)

// DefaultScopes are requested at login, comma-joined as the provider expects.
var DefaultScopes = []string{"read", "activity:read_all"}

// Config configures a Manager. Zero values take defaults.
type Config struct {
	OAuth         *oauth2.Config
	Exchanger     Exchanger // defaults to an OAuth2Exchanger over OAuth
	Scopes        []string
	RefreshBuffer time.Duration
	HTTPTimeout   time.Duration
}

// CallbackParams are the query parameters the provider redirects back with.
type CallbackParams struct {
	Code  string
	State string
	Error string
}

// Manager owns the OAuth2/PKCE login flow and the per-session token state.
type Manager struct {
	oauth     *oauth2.Config
	exchanger Exchanger
	scopes    []string
	buffer    time.Duration

	store  session.Store
	locker session.Locker
	group  singleflight.Group
	now    func() time.Time
	log    zerolog.Logger
}

// NewManager creates a new Manager.
func NewManager(cfg Config, store session.Store, locker session.Locker, logger zerolog.Logger) *Manager {
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = DefaultHTTPTimeout
	}
	if cfg.RefreshBuffer <= 0 {
		cfg.RefreshBuffer = DefaultRefreshBuffer
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	if cfg.Exchanger == nil {
		cfg.Exchanger = NewOAuth2Exchanger(cfg.OAuth, cfg.HTTPTimeout)
	}
	return &Manager{
		oauth:     cfg.OAuth,
		exchanger: cfg.Exchanger,
		scopes:    cfg.Scopes,
		buffer:    cfg.RefreshBuffer,
		store:     store,
		locker:    locker,
		now:       time.Now,
		log:       logger.With().Str("component", "auth").Logger(),
	}
}

// Authorize starts a login: it stores a fresh CSRF state and PKCE verifier
// in the session and returns the provider URL to redirect to.
func (m *Manager) Authorize(ctx context.Context, sessionID string) (string, error) {
	state, err := NewState()
	if err != nil {
		return "", err
	}
	verifier := GenerateVerifier()

	if err := m.store.Set(ctx, sessionID, session.KeyOAuthState, state); err != nil {
		return "", fmt.Errorf("failed to save state: %w", err)
	}
	if err := m.store.Set(ctx, sessionID, session.KeyCodeVerifier, verifier); err != nil {
		return "", fmt.Errorf("failed to save verifier: %w", err)
	}

	return m.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("approval_prompt", "auto"),
		oauth2.SetAuthURLParam("scope", strings.Join(m.scopes, ",")),
		oauth2.S256ChallengeOption(verifier),
	), nil
}

// Callback completes a login. Checks run in a fixed order and the token
// endpoint is only contacted once state and verifier are both valid.
func (m *Manager) Callback(ctx context.Context, sessionID string, p CallbackParams) (*model.Athlete, error) {
	log := logging.FromContext(ctx, m.log)

	if p.Error != "" {
		m.clearPending(ctx, sessionID)
		if p.Error == "access_denied" {
			return nil, ErrAccessDenied
		}
		return nil, fmt.Errorf("%w: %s", ErrProviderError, p.Error)
	}
	if p.Code == "" || p.State == "" {
		return nil, ErrMissingParameter
	}

	var want string
	ok, err := m.store.Get(ctx, sessionID, session.KeyOAuthState, &want)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	if !ok || want == "" || subtle.ConstantTimeCompare([]byte(want), []byte(p.State)) != 1 {
		m.clearPending(ctx, sessionID)
		log.Warn().Bool("state_present", ok).Msg("OAuth state mismatch")
		return nil, ErrInvalidState
	}

	var verifier string
	ok, err = m.store.Get(ctx, sessionID, session.KeyCodeVerifier, &verifier)
	if err != nil {
		return nil, fmt.Errorf("failed to load verifier: %w", err)
	}
	if !ok || verifier == "" {
		m.clearPending(ctx, sessionID)
		return nil, ErrMissingVerifier
	}

	tok, err := m.exchanger.Exchange(ctx, p.Code, verifier)
	if err != nil {
		log.Error().Err(err).Msg("Token exchange failed")
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	if err := m.store.Set(ctx, sessionID, session.KeyToken, tok); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}
	// A cache left by an earlier login may belong to another athlete.
	if err := m.store.Delete(ctx, sessionID, session.KeyOAuthState, session.KeyCodeVerifier, session.KeyActivities); err != nil {
		return nil, fmt.Errorf("failed to clear pending login: %w", err)
	}

	log.Info().Int64("athlete_id", tok.Athlete.ID).Int64("expires_at", tok.ExpiresAt).Msg("Login complete")
	athlete := tok.Athlete
	return &athlete, nil
}

func (m *Manager) clearPending(ctx context.Context, sessionID string) {
	if err := m.store.Delete(ctx, sessionID, session.KeyOAuthState, session.KeyCodeVerifier); err != nil {
		logging.FromContext(ctx, m.log).Warn().Err(err).Msg("Failed to clear pending login")
	}
}

// StartDemo stores a non-expiring token state for a demo session.
func (m *Manager) StartDemo(ctx context.Context, sessionID string, athlete model.Athlete) error {
	st := model.TokenState{AccessToken: "demo", Athlete: athlete}
	if err := m.store.Set(ctx, sessionID, session.KeyToken, st); err != nil {
		return fmt.Errorf("failed to save demo token: %w", err)
	}
	return nil
}

func (m *Manager) load(ctx context.Context, sessionID string) (*model.TokenState, error) {
	var st model.TokenState
	ok, err := m.store.Get(ctx, sessionID, session.KeyToken, &st)
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	if !ok || st.AccessToken == "" {
		return nil, adapter.ErrNoSession
	}
	return &st, nil
}

// RefreshIfNeeded refreshes the session's token when it is within the
// expiry buffer. A token without a refresh token is left alone. It returns
// adapter.ErrNoSession when nobody is logged in and adapter.ErrSessionExpired
// when the refresh fails.
func (m *Manager) RefreshIfNeeded(ctx context.Context, sessionID string) error {
	st, err := m.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if st.RefreshToken == "" || !st.Expired(m.now(), m.buffer) {
		return nil
	}
	_, err = m.refresh(ctx, sessionID, false, "")
	return err
}

// Refresh forces a refresh regardless of the clock.
func (m *Manager) Refresh(ctx context.Context, sessionID string) (*model.TokenState, error) {
	return m.refresh(ctx, sessionID, true, "")
}

// refresh runs at most once at a time per session, in-process via
// singleflight and across processes via the session lock. State is re-read
// under the lock; if another request already refreshed, its result is reused.
// rejected names the access token the provider refused, if any.
//
// Forced and expiry-driven refreshes share flights only with their own kind.
// The shared work runs on a detached context so one caller going away does
// not fail the others; each caller still stops waiting when its ctx ends.
func (m *Manager) refresh(ctx context.Context, sessionID string, force bool, rejected string) (*model.TokenState, error) {
	key := sessionID + "|expiry"
	if force {
		key = sessionID + "|forced"
	}
	ch := m.group.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		log := logging.FromContext(ctx, m.log)

		release, err := m.locker.Acquire(ctx, session.LockKey(sessionID, "token"))
		if err != nil {
			return nil, err
		}
		defer release()

		st, err := m.load(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		switch {
		case !force && !st.Expired(m.now(), m.buffer):
			metrics.TokenRefreshes.WithLabelValues("reused").Inc()
			return st, nil
		case force && rejected != "" && st.AccessToken != rejected:
			metrics.TokenRefreshes.WithLabelValues("reused").Inc()
			return st, nil
		case st.RefreshToken == "":
			return nil, adapter.ErrSessionExpired
		}

		next, err := m.exchanger.Refresh(ctx, st.RefreshToken)
		if err != nil {
			metrics.TokenRefreshes.WithLabelValues("failed").Inc()
			log.Warn().Err(err).Msg("Token refresh failed")
			return nil, fmt.Errorf("%w: %v", adapter.ErrSessionExpired, err)
		}
		if next.RefreshToken == "" {
			next.RefreshToken = st.RefreshToken
		}
		if next.Athlete.ID == 0 {
			next.Athlete = st.Athlete
		}
		if err := m.store.Set(ctx, sessionID, session.KeyToken, next); err != nil {
			return nil, fmt.Errorf("failed to save refreshed token: %w", err)
		}

		metrics.TokenRefreshes.WithLabelValues("ok").Inc()
		log.Info().Int64("expires_at", next.ExpiresAt).Int("access_token_len", len(next.AccessToken)).Msg("Token refreshed")
		return next, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*model.TokenState), nil
	}
}

// SignOut discards the token, any pending login values and the activity cache.
func (m *Manager) SignOut(ctx context.Context, sessionID string) error {
	err := m.store.Delete(ctx, sessionID,
		session.KeyToken, session.KeyOAuthState, session.KeyCodeVerifier, session.KeyActivities)
	if err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	return nil
}

// Athlete returns the athlete summary stored at login.
func (m *Manager) Athlete(ctx context.Context, sessionID string) (*model.Athlete, error) {
	st, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	a := st.Athlete
	return &a, nil
}

// TokenSource returns Credentials bound to one session for the provider client.
func (m *Manager) TokenSource(sessionID string) adapter.Credentials {
	return &sessionCredentials{m: m, sessionID: sessionID}
}

type sessionCredentials struct {
	m         *Manager
	sessionID string
	last      string
}

func (c *sessionCredentials) AccessToken(ctx context.Context) (string, error) {
	st, err := c.m.load(ctx, c.sessionID)
	if err != nil {
		return "", err
	}
	c.last = st.AccessToken
	return st.AccessToken, nil
}

func (c *sessionCredentials) Refresh(ctx context.Context) (string, error) {
	st, err := c.m.refresh(ctx, c.sessionID, true, c.last)
	if err != nil {
		return "", err
	}
	c.last = st.AccessToken
	return st.AccessToken, nil
}
