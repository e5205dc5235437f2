package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jun/stravastats/internal/adapter"
	"github.com/jun/stravastats/internal/auth"
	"github.com/jun/stravastats/internal/logging"
)

// DemoSessionPrefix marks sessions served by the in-memory demo provider.
const DemoSessionPrefix = "demo-"

// AuthHandler handles login, logout and the athlete profile.
type AuthHandler struct {
	auth      *auth.Manager
	providers adapter.ProviderResolver
	settings  Settings
	log       zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(m *auth.Manager, providers adapter.ProviderResolver, settings Settings, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:      m,
		providers: providers,
		settings:  settings,
		log:       logger.With().Str("component", "auth_handler").Logger(),
	}
}

// Login starts the OAuth flow in a fresh session and redirects to the provider.
func (h *AuthHandler) Login(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sessionID := uuid.NewString()
	log := logging.FromContext(ctx, h.log)

	authURL, err := h.auth.Authorize(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to start login")
		return errorResponse(http.StatusInternalServerError, "Failed to start login", adapter.CauseGeneric), nil
	}

	token, err := NewSessionToken(sessionID, h.settings.ttl(), h.settings.JWTSecret)
	if err != nil {
		return errorResponse(http.StatusInternalServerError, "Failed to sign token", adapter.CauseGeneric), nil
	}

	return redirect(authURL, sessionCookie(h.settings, token, h.settings.ttl())), nil
}

// Callback completes the OAuth flow and redirects to the frontend, either
// to the app or to its error page with a short error code.
func (h *AuthHandler) Callback(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	log := logging.FromContext(ctx, h.log)

	sessionID, err := GetSessionID(req, h.settings.JWTSecret)
	if err != nil {
		// Without the session there is no stored state to match.
		log.Warn().Err(err).Msg("Callback without a valid session")
		return h.loginError(auth.ErrInvalidState), nil
	}

	q := req.QueryStringParameters
	athlete, err := h.auth.Callback(ctx, sessionID, auth.CallbackParams{
		Code:  q["code"],
		State: q["state"],
		Error: q["error"],
	})
	if err != nil {
		log.Warn().Err(err).Str("code", auth.ErrorCode(err)).Msg("Login failed")
		return h.loginError(err), nil
	}

	log.Info().Int64("athlete_id", athlete.ID).Msg("Athlete signed in")
	return redirect(h.settings.frontend() + "/?success=true"), nil
}

func (h *AuthHandler) loginError(err error) events.APIGatewayProxyResponse {
	return redirect(fmt.Sprintf("%s/error?error=%s", h.settings.frontend(), url.QueryEscape(auth.ErrorCode(err))))
}

// DemoLogin starts a session backed by synthetic activities, no provider login needed.
func (h *AuthHandler) DemoLogin(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sessionID := DemoSessionPrefix + uuid.NewString()
	log := logging.FromContext(ctx, h.log)

	provider, err := h.providers.Resolve(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to resolve demo provider")
		return errorResponse(http.StatusInternalServerError, "Failed to start demo", adapter.CauseGeneric), nil
	}
	athlete, err := provider.GetAthlete(ctx, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load demo athlete")
		return errorResponse(http.StatusInternalServerError, "Failed to start demo", adapter.CauseOf(err)), nil
	}
	if err := h.auth.StartDemo(ctx, sessionID, *athlete); err != nil {
		log.Error().Err(err).Msg("Failed to save demo session")
		return errorResponse(http.StatusInternalServerError, "Failed to start demo", adapter.CauseGeneric), nil
	}

	token, err := NewSessionToken(sessionID, h.settings.ttl(), h.settings.JWTSecret)
	if err != nil {
		return errorResponse(http.StatusInternalServerError, "Failed to sign token", adapter.CauseGeneric), nil
	}

	return redirect(h.settings.frontend()+"/?demo=true", sessionCookie(h.settings, token, h.settings.ttl())), nil
}

// Logout drops the session's server-side state and clears the cookie.
func (h *AuthHandler) Logout(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if sessionID, err := GetSessionID(req, h.settings.JWTSecret); err == nil {
		if err := h.auth.SignOut(ctx, sessionID); err != nil {
			logging.FromContext(ctx, h.log).Warn().Err(err).Msg("Sign out failed")
		}
	}

	resp := jsonResponse(http.StatusOK, map[string]bool{"success": true})
	resp.MultiValueHeaders = map[string][]string{"Set-Cookie": {sessionCookie(h.settings, "", 0)}}
	return resp, nil
}

// Athlete returns the signed-in athlete's profile summary.
func (h *AuthHandler) Athlete(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sessionID, err := GetSessionID(req, h.settings.JWTSecret)
	if err != nil {
		return unauthorized(), nil
	}

	athlete, err := h.auth.Athlete(ctx, sessionID)
	if errors.Is(err, adapter.ErrNoSession) {
		return unauthorized(), nil
	}
	if err != nil {
		logging.FromContext(ctx, h.log).Error().Err(err).Msg("Failed to load athlete")
		return errorResponse(http.StatusInternalServerError, "Failed to load athlete", adapter.CauseGeneric), nil
	}
	return jsonResponse(http.StatusOK, athlete), nil
}
