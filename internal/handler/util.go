package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	json "github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"

	"github.com/jun/stravastats/internal/adapter"
)

// SessionCookieName carries the signed session token.
const SessionCookieName = "session_token"

// DefaultSessionTTL bounds the session cookie and its JWT.
const DefaultSessionTTL = 24 * time.Hour

// Settings are shared by every handler.
type Settings struct {
	JWTSecret   string
	FrontendURL string
	DevMode     bool
	SessionTTL  time.Duration
}

func (s Settings) ttl() time.Duration {
	if s.SessionTTL <= 0 {
		return DefaultSessionTTL
	}
	return s.SessionTTL
}

func (s Settings) frontend() string {
	if s.FrontendURL == "" {
		return "http://localhost:3000"
	}
	return strings.TrimRight(s.FrontendURL, "/")
}

// sameSite is None behind CloudFront, Lax for local development.
func (s Settings) sameSite() string {
	if s.DevMode {
		return "Lax"
	}
	return "None"
}

func getHeader(req events.APIGatewayProxyRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// GetSessionID extracts the session id from the Authorization header or the
// session cookie and verifies its signature.
func GetSessionID(req events.APIGatewayProxyRequest, jwtSecret string) (string, error) {
	tokenString := ""
	if authHeader := getHeader(req, "Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		tokenString = strings.TrimPrefix(authHeader, "Bearer ")
	}

	if tokenString == "" {
		for _, part := range strings.Split(getHeader(req, "Cookie"), ";") {
			part = strings.TrimSpace(part)
			if strings.HasPrefix(part, SessionCookieName+"=") {
				tokenString = strings.TrimPrefix(part, SessionCookieName+"=")
				break
			}
		}
	}

	if tokenString == "" {
		return "", fmt.Errorf("no session token found")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		if sub, ok := claims["sub"].(string); ok && sub != "" {
			return sub, nil
		}
	}
	return "", fmt.Errorf("invalid token claims")
}

// NewSessionToken signs a JWT whose subject is the session id.
func NewSessionToken(sessionID string, ttl time.Duration, jwtSecret string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": sessionID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
}

func sessionCookie(s Settings, token string, maxAge time.Duration) string {
	return fmt.Sprintf("%s=%s; HttpOnly; Path=/; Max-Age=%d; SameSite=%s; Secure",
		SessionCookieName, token, int(maxAge.Seconds()), s.sameSite())
}

func redirect(location string, cookies ...string) events.APIGatewayProxyResponse {
	resp := events.APIGatewayProxyResponse{
		StatusCode: http.StatusFound,
		Headers:    map[string]string{"Location": location},
	}
	if len(cookies) > 0 {
		resp.MultiValueHeaders = map[string][]string{"Set-Cookie": cookies}
	}
	return resp
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status, body = http.StatusInternalServerError, []byte(`{"error":"encoding failed","cause":"generic"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string        `json:"error"`
	Cause adapter.Cause `json:"cause"`
}

func errorResponse(status int, msg string, cause adapter.Cause) events.APIGatewayProxyResponse {
	if cause == adapter.CauseNone {
		cause = adapter.CauseGeneric
	}
	return jsonResponse(status, ErrorBody{Error: msg, Cause: cause})
}

func unauthorized() events.APIGatewayProxyResponse {
	return errorResponse(http.StatusUnauthorized, "Unauthorized", adapter.CauseExpiredSession)
}

// StatusForCause maps a failure cause to the HTTP status returned to clients.
func StatusForCause(c adapter.Cause) int {
	switch c {
	case adapter.CauseExpiredSession:
		return http.StatusUnauthorized
	case adapter.CauseRateLimited:
		return http.StatusTooManyRequests
	case adapter.CauseTimeout:
		return http.StatusGatewayTimeout
	case adapter.CauseConnectivity:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// causeMessage is the user-facing text for each cause.
func causeMessage(c adapter.Cause) string {
	switch c {
	case adapter.CauseExpiredSession:
		return "Your session has expired. Please sign in again."
	case adapter.CauseRateLimited:
		return "Too many requests to the activity provider. Please try again shortly."
	case adapter.CauseTimeout:
		return "The activity provider took too long to respond."
	case adapter.CauseConnectivity:
		return "Could not reach the activity provider."
	}
	return "Something went wrong while loading your activities."
}
