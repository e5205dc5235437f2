package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/jun/stravastats/internal/adapter"
	"github.com/jun/stravastats/internal/adapter/memory"
	"github.com/jun/stravastats/internal/auth"
	"github.com/jun/stravastats/internal/model"
	"github.com/jun/stravastats/internal/session"
)

const secret = "test-secret"

type fakeExchanger struct {
	err error
}

func (f *fakeExchanger) Exchange(ctx context.Context, code, verifier string) (*model.TokenState, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.TokenState{
		AccessToken:  "access-" + code,
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(6 * time.Hour).Unix(),
		Athlete:      model.Athlete{ID: 42, FirstName: "Grace"},
	}, nil
}

func (f *fakeExchanger) Refresh(ctx context.Context, refreshToken string) (*model.TokenState, error) {
	return nil, errors.New("not used")
}

func newAuthHandler(ex *fakeExchanger) *AuthHandler {
	m := auth.NewManager(auth.Config{
		OAuth: &oauth2.Config{
			ClientID:    "12345",
			RedirectURL: "http://localhost:8080/auth/callback",
			Endpoint:    auth.Endpoint,
		},
		Exchanger: ex,
	}, session.NewMemoryStore(), session.NewMemoryLocker(), zerolog.Nop())

	demo := memory.NewDemoProvider(1, model.Today(), 30)
	resolver := adapter.ResolverFunc(func(ctx context.Context, sessionID string) (adapter.ActivityProvider, error) {
		if strings.HasPrefix(sessionID, DemoSessionPrefix) {
			return demo, nil
		}
		return nil, errors.New("no real provider in tests")
	})

	return NewAuthHandler(m, resolver, Settings{JWTSecret: secret, FrontendURL: "http://app.test", DevMode: true}, zerolog.Nop())
}

// cookieHeader turns a Set-Cookie response into a request Cookie header.
func cookieHeader(t *testing.T, resp events.APIGatewayProxyResponse) map[string]string {
	t.Helper()
	cookies := resp.MultiValueHeaders["Set-Cookie"]
	if len(cookies) == 0 {
		t.Fatal("Expected a Set-Cookie header")
	}
	pair, _, _ := strings.Cut(cookies[0], ";")
	return map[string]string{"Cookie": pair}
}

func login(t *testing.T, h *AuthHandler) (map[string]string, string) {
	t.Helper()
	resp, err := h.Login(context.Background(), events.APIGatewayProxyRequest{})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("Expected status 302, got %d. Body: %s", resp.StatusCode, resp.Body)
	}
	u, err := url.Parse(resp.Headers["Location"])
	if err != nil {
		t.Fatalf("Bad Location: %v", err)
	}
	return cookieHeader(t, resp), u.Query().Get("state")
}

func TestLogin_RedirectsWithPKCE(t *testing.T) {
	h := newAuthHandler(&fakeExchanger{})
	resp, err := h.Login(context.Background(), events.APIGatewayProxyRequest{})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	u, err := url.Parse(resp.Headers["Location"])
	if err != nil {
		t.Fatalf("Bad Location: %v", err)
	}
	q := u.Query()
	if u.Host != "www.strava.com" {
		t.Errorf("Expected provider host, got %s", u.Host)
	}
	if q.Get("code_challenge_method") != "S256" || q.Get("code_challenge") == "" {
		t.Errorf("Expected S256 challenge, got %v", q)
	}
	if q.Get("state") == "" {
		t.Error("Expected state parameter")
	}
	if !strings.Contains(resp.MultiValueHeaders["Set-Cookie"][0], "HttpOnly") {
		t.Error("Expected HttpOnly session cookie")
	}
}

func TestCallback_Success(t *testing.T) {
	h := newAuthHandler(&fakeExchanger{})
	headers, state := login(t, h)
	ctx := context.Background()

	resp, err := h.Callback(ctx, events.APIGatewayProxyRequest{
		Headers:               headers,
		QueryStringParameters: map[string]string{"code": "abc", "state": state},
	})
	if err != nil {
		t.Fatalf("Callback failed: %v", err)
	}
	if resp.StatusCode != http.StatusFound || resp.Headers["Location"] != "http://app.test/?success=true" {
		t.Fatalf("Expected redirect to app, got %d %s", resp.StatusCode, resp.Headers["Location"])
	}

	resp, _ = h.Athlete(ctx, events.APIGatewayProxyRequest{Headers: headers})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, resp.Body)
	}
	var athlete model.Athlete
	if err := json.Unmarshal([]byte(resp.Body), &athlete); err != nil {
		t.Fatalf("Bad athlete body: %v", err)
	}
	if athlete.ID != 42 {
		t.Errorf("Expected athlete 42, got %d", athlete.ID)
	}
}

func TestCallback_Errors(t *testing.T) {
	tests := []struct {
		name     string
		exchange error
		query    func(state string) map[string]string
		noCookie bool
		wantCode string
	}{
		{
			name:     "user denied",
			query:    func(string) map[string]string { return map[string]string{"error": "access_denied"} },
			wantCode: "access_denied",
		},
		{
			name:     "missing code",
			query:    func(state string) map[string]string { return map[string]string{"state": state} },
			wantCode: "missing_parameters",
		},
		{
			name:     "wrong state",
			query:    func(string) map[string]string { return map[string]string{"code": "abc", "state": "forged"} },
			wantCode: "invalid_state",
		},
		{
			name:     "no session cookie",
			query:    func(state string) map[string]string { return map[string]string{"code": "abc", "state": state} },
			noCookie: true,
			wantCode: "invalid_state",
		},
		{
			name:     "exchange failure",
			exchange: errors.New("boom"),
			query:    func(state string) map[string]string { return map[string]string{"code": "abc", "state": state} },
			wantCode: "token_exchange_failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newAuthHandler(&fakeExchanger{err: tt.exchange})
			headers, state := login(t, h)
			if tt.noCookie {
				headers = nil
			}

			resp, err := h.Callback(context.Background(), events.APIGatewayProxyRequest{
				Headers:               headers,
				QueryStringParameters: tt.query(state),
			})
			if err != nil {
				t.Fatalf("Callback returned error: %v", err)
			}
			want := "http://app.test/error?error=" + tt.wantCode
			if resp.Headers["Location"] != want {
				t.Errorf("Expected redirect to %s, got %s", want, resp.Headers["Location"])
			}
		})
	}
}

func TestDemoLogin(t *testing.T) {
	h := newAuthHandler(&fakeExchanger{})
	ctx := context.Background()

	resp, err := h.DemoLogin(ctx, events.APIGatewayProxyRequest{})
	if err != nil {
		t.Fatalf("DemoLogin failed: %v", err)
	}
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("Expected status 302, got %d. Body: %s", resp.StatusCode, resp.Body)
	}
	headers := cookieHeader(t, resp)

	sessionID, err := GetSessionID(events.APIGatewayProxyRequest{Headers: headers}, secret)
	if err != nil {
		t.Fatalf("GetSessionID failed: %v", err)
	}
	if !strings.HasPrefix(sessionID, DemoSessionPrefix) {
		t.Errorf("Expected demo session id, got %s", sessionID)
	}

	resp, _ = h.Athlete(ctx, events.APIGatewayProxyRequest{Headers: headers})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected demo athlete, got %d: %s", resp.StatusCode, resp.Body)
	}
}

func TestLogout_ClearsSession(t *testing.T) {
	h := newAuthHandler(&fakeExchanger{})
	ctx := context.Background()

	resp, _ := h.DemoLogin(ctx, events.APIGatewayProxyRequest{})
	headers := cookieHeader(t, resp)

	resp, err := h.Logout(ctx, events.APIGatewayProxyRequest{Headers: headers})
	if err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if !strings.Contains(resp.MultiValueHeaders["Set-Cookie"][0], "Max-Age=0") {
		t.Errorf("Expected cookie to be cleared, got %v", resp.MultiValueHeaders["Set-Cookie"])
	}

	resp, _ = h.Athlete(ctx, events.APIGatewayProxyRequest{Headers: headers})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 after logout, got %d", resp.StatusCode)
	}
}

func TestAthlete_Unauthorized(t *testing.T) {
	h := newAuthHandler(&fakeExchanger{})
	resp, _ := h.Athlete(context.Background(), events.APIGatewayProxyRequest{})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", resp.StatusCode)
	}
	var body ErrorBody
	if err := json.Unmarshal([]byte(resp.Body), &body); err != nil {
		t.Fatalf("Bad error body: %v", err)
	}
	if body.Cause != adapter.CauseExpiredSession {
		t.Errorf("Expected expired-session cause, got %s", body.Cause)
	}
}
