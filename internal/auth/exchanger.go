package auth

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"github.com/jun/stravastats/internal/model"
)

// Endpoint is the provider's OAuth2 endpoint. Client credentials travel in
// the form body, which is what the token endpoint expects.
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://www.strava.com/oauth/authorize",
	TokenURL:  "https://www.strava.com/oauth/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// Exchanger talks to the provider's token endpoint.
type Exchanger interface {
	// Exchange trades an authorization code and its PKCE verifier for tokens.
	Exchange(ctx context.Context, code, verifier string) (*model.TokenState, error)

	// Refresh trades a refresh token for a new access token.
	Refresh(ctx context.Context, refreshToken string) (*model.TokenState, error)
}

// OAuth2Exchanger implements Exchanger with golang.org/x/oauth2.
type OAuth2Exchanger struct {
	config *oauth2.Config
	client *http.Client
}

// NewOAuth2Exchanger returns an exchanger whose token requests time out after timeout.
func NewOAuth2Exchanger(config *oauth2.Config, timeout time.Duration) *OAuth2Exchanger {
	return &OAuth2Exchanger{
		config: config,
		client: &http.Client{Timeout: timeout},
	}
}

func (e *OAuth2Exchanger) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, e.client)
}

func (e *OAuth2Exchanger) Exchange(ctx context.Context, code, verifier string) (*model.TokenState, error) {
	tok, err := e.config.Exchange(e.withClient(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, err
	}
	return tokenStateFrom(tok)
}

func (e *OAuth2Exchanger) Refresh(ctx context.Context, refreshToken string) (*model.TokenState, error) {
	// An already-expired token makes the source go straight to the refresh grant.
	src := e.config.TokenSource(e.withClient(ctx), &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(-time.Hour),
	})
	tok, err := src.Token()
	if err != nil {
		return nil, err
	}
	return tokenStateFrom(tok)
}

// tokenStateFrom reads expires_at and athlete from the token response.
// expires_at falls back to the library's computed Expiry.
func tokenStateFrom(tok *oauth2.Token) (*model.TokenState, error) {
	st := &model.TokenState{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}

	if v, ok := epochSeconds(tok.Extra("expires_at")); ok {
		st.ExpiresAt = v
	} else if !tok.Expiry.IsZero() {
		st.ExpiresAt = tok.Expiry.Unix()
	}

	if raw := tok.Extra("athlete"); raw != nil {
		b, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to encode athlete: %w", err)
		}
		if err := json.Unmarshal(b, &st.Athlete); err != nil {
			return nil, fmt.Errorf("failed to decode athlete: %w", err)
		}
	}
	return st, nil
}

func epochSeconds(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}
