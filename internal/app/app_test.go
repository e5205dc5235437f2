package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/jun/stravastats/internal/config"
	"github.com/jun/stravastats/internal/dashboard"
	"github.com/jun/stravastats/internal/session"
)

type mapResolver map[string]string

func (m mapResolver) GetSecret(ctx context.Context, name string) (string, error) {
	if v, ok := m[name]; ok {
		return v, nil
	}
	return "", errors.New("not found: " + name)
}

func testConfig(devMode bool) *config.Config {
	return &config.Config{
		DevMode: devMode,
		Strava: config.StravaConfig{
			ClientID:          "12345",
			ClientSecretParam: "/test/client-secret",
			APIBaseURL:        "http://127.0.0.1:1",
		},
		Auth: config.AuthConfig{
			JWTSecretParam:        "/test/jwt",
			APIGatewaySecretParam: "/test/gateway",
			FrontendURL:           "http://app.test",
		},
		Storage: config.StorageConfig{Backend: config.BackendMemory},
		Cache:   config.CacheConfig{StalePolicy: "fail-fast"},
	}
}

func newTestApp(t *testing.T, devMode bool) *App {
	t.Helper()
	a, err := New(context.Background(), testConfig(devMode), Deps{
		Store:  session.NewMemoryStore(),
		Locker: session.NewMemoryLocker(),
		Resolver: mapResolver{
			"/test/client-secret": "shh",
			"/test/jwt":           "jwt-secret",
			"/test/gateway":       "gateway-secret",
		},
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return a
}

func TestHandleRequest_Routing(t *testing.T) {
	a := newTestApp(t, true)
	ctx := context.Background()

	tests := []struct {
		method, path string
		status       int
	}{
		{"GET", "/healthz", http.StatusOK},
		{"GET", "/api/healthz", http.StatusOK},
		{"OPTIONS", "/dashboard", http.StatusNoContent},
		{"GET", "/dashboard", http.StatusUnauthorized},
		{"GET", "/auth/login", http.StatusFound},
		{"GET", "/auth/logout", http.StatusNotFound},
		{"GET", "/notes", http.StatusNotFound},
	}
	for _, tt := range tests {
		resp, err := a.HandleRequest(ctx, events.APIGatewayProxyRequest{HTTPMethod: tt.method, Path: tt.path})
		if err != nil {
			t.Fatalf("%s %s returned error: %v", tt.method, tt.path, err)
		}
		if resp.StatusCode != tt.status {
			t.Errorf("%s %s: expected %d, got %d", tt.method, tt.path, tt.status, resp.StatusCode)
		}
		if resp.Headers["Access-Control-Allow-Origin"] != "http://app.test" {
			t.Errorf("%s %s: missing CORS header", tt.method, tt.path)
		}
	}
}

func TestHandleRequest_OriginVerify(t *testing.T) {
	a := newTestApp(t, false)
	ctx := context.Background()

	resp, _ := a.HandleRequest(ctx, events.APIGatewayProxyRequest{HTTPMethod: "GET", Path: "/auth/login"})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 without origin header, got %d", resp.StatusCode)
	}

	resp, _ = a.HandleRequest(ctx, events.APIGatewayProxyRequest{
		HTTPMethod: "GET",
		Path:       "/auth/login",
		Headers:    map[string]string{"X-Origin-Verify": "gateway-secret"},
	})
	if resp.StatusCode != http.StatusFound {
		t.Errorf("Expected 302 with origin header, got %d", resp.StatusCode)
	}

	resp, _ = a.HandleRequest(ctx, events.APIGatewayProxyRequest{HTTPMethod: "GET", Path: "/healthz"})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected health check to bypass origin check, got %d", resp.StatusCode)
	}
}

func TestDemoSession_Dashboard(t *testing.T) {
	a := newTestApp(t, true)
	ctx := context.Background()

	resp, err := a.HandleRequest(ctx, events.APIGatewayProxyRequest{HTTPMethod: "GET", Path: "/auth/demo-login"})
	if err != nil || resp.StatusCode != http.StatusFound {
		t.Fatalf("Demo login failed: %d %v", resp.StatusCode, err)
	}
	cookie, _, _ := strings.Cut(resp.MultiValueHeaders["Set-Cookie"][0], ";")

	resp, err = a.HandleRequest(ctx, events.APIGatewayProxyRequest{
		HTTPMethod: "GET",
		Path:       "/dashboard",
		Headers:    map[string]string{"Cookie": cookie},
	})
	if err != nil {
		t.Fatalf("Dashboard failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, resp.Body)
	}

	var body struct {
		Start    string            `json:"start"`
		End      string            `json:"end"`
		Calendar []json.RawMessage `json:"calendar"`
		CacheHit bool              `json:"cache_hit"`
	}
	if err := json.Unmarshal([]byte(resp.Body), &body); err != nil {
		t.Fatalf("Bad dashboard body: %v", err)
	}
	if len(body.Calendar) != dashboard.DefaultWindowDays {
		t.Errorf("Expected %d calendar days, got %d", dashboard.DefaultWindowDays, len(body.Calendar))
	}
	if body.CacheHit {
		t.Error("Expected first dashboard to miss the cache")
	}
}

func TestRouter_ServesMetricsAndProxies(t *testing.T) {
	srv := httptest.NewServer(newTestApp(t, true).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected metrics 200, got %d", resp.StatusCode)
	}

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err = client.Get(srv.URL + "/auth/demo-login")
	if err != nil {
		t.Fatalf("GET /auth/demo-login failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Errorf("Expected 302, got %d", resp.StatusCode)
	}
	if len(resp.Cookies()) == 0 || resp.Cookies()[0].Name != "session_token" {
		t.Errorf("Expected session cookie, got %v", resp.Cookies())
	}
}

func TestNew_RequiresGatewaySecretOutsideDevMode(t *testing.T) {
	resolvers := map[string]mapResolver{
		"missing": {"/test/client-secret": "shh", "/test/jwt": "jwt-secret"},
		"empty":   {"/test/client-secret": "shh", "/test/jwt": "jwt-secret", "/test/gateway": ""},
	}
	for name, r := range resolvers {
		t.Run(name, func(t *testing.T) {
			_, err := New(context.Background(), testConfig(false), Deps{
				Store:    session.NewMemoryStore(),
				Locker:   session.NewMemoryLocker(),
				Resolver: r,
			}, zerolog.Nop())
			if err == nil {
				t.Error("Expected New to fail without a gateway secret")
			}
		})
	}
}

func TestOriginVerified_EmptySecretNeverMatches(t *testing.T) {
	a := newTestApp(t, false)
	a.apiGatewaySecret = ""

	resp, _ := a.HandleRequest(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: "GET", Path: "/auth/login"})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 when no secret is configured, got %d", resp.StatusCode)
	}

	resp, _ = a.HandleRequest(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: "GET",
		Path:       "/auth/login",
		Headers:    map[string]string{"x-origin-verify": "gateway-secret"},
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 for a secret the app does not hold, got %d", resp.StatusCode)
	}
}
