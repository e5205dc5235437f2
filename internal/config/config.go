// Package config loads service configuration from defaults, an optional
// YAML file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jun/stravastats/internal/cache"
)

// Config is the full service configuration.
type Config struct {
	DevMode bool `koanf:"dev_mode"`

	Strava  StravaConfig  `koanf:"strava"`
	Auth    AuthConfig    `koanf:"auth"`
	Storage StorageConfig `koanf:"storage"`
	Cache   CacheConfig   `koanf:"cache"`
	Logging LoggingConfig `koanf:"logging"`
	Server  ServerConfig  `koanf:"server"`
}

// StravaConfig describes the OAuth client and the API endpoint.
type StravaConfig struct {
	ClientID          string        `koanf:"client_id"`
	RedirectURI       string        `koanf:"redirect_uri"`
	ClientSecretParam string        `koanf:"client_secret_param"`
	APIBaseURL        string        `koanf:"api_base_url"`
	RequestTimeout    time.Duration `koanf:"request_timeout"`
	MaxActivities     int           `koanf:"max_activities"`
}

type AuthConfig struct {
	JWTSecretParam        string        `koanf:"jwt_secret_param"`
	APIGatewaySecretParam string        `koanf:"api_gateway_secret_param"`
	RefreshBuffer         time.Duration `koanf:"refresh_buffer"`
	FrontendURL           string        `koanf:"frontend_url"`
}

// StorageConfig names the DynamoDB tables and the KMS key sealing session values.
// Backend "memory" keeps sessions in process and is only allowed in DEV_MODE.
type StorageConfig struct {
	Backend           string `koanf:"backend"`
	SessionsTable     string `koanf:"sessions_table"`
	SessionLocksTable string `koanf:"session_locks_table"`
	KMSKeyID          string `koanf:"kms_key_id"`
}

type CacheConfig struct {
	StalePolicy string `koanf:"stale_policy"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ServerConfig is used by the local development server only.
type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// Storage backends.
const (
	BackendDynamo = "dynamo"
	BackendMemory = "memory"
)

func defaultConfig() *Config {
	return &Config{
		Strava: StravaConfig{
			ClientSecretParam: "/stravastats/strava-client-secret",
			APIBaseURL:        "https://www.strava.com/api/v3",
			RequestTimeout:    10 * time.Second,
			MaxActivities:     200,
		},
		Auth: AuthConfig{
			JWTSecretParam:        "/stravastats/jwt-secret",
			APIGatewaySecretParam: "/stravastats/api-gateway-secret",
			RefreshBuffer:         300 * time.Second,
			FrontendURL:           "http://localhost:3000",
		},
		Storage: StorageConfig{
			Backend:           BackendDynamo,
			SessionsTable:     "Sessions",
			SessionLocksTable: "SessionLocks",
			KMSKeyID:          "alias/stravastats-token-key",
		},
		Cache: CacheConfig{
			StalePolicy: string(cache.PolicyFailFast),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// RedirectURL returns the OAuth callback URL, derived from the mode when unset.
func (c *Config) RedirectURL() string {
	if c.Strava.RedirectURI != "" {
		return c.Strava.RedirectURI
	}
	if c.DevMode {
		return "http://localhost" + c.Server.Addr + "/auth/callback"
	}
	return strings.TrimRight(c.Auth.FrontendURL, "/") + "/api/auth/callback"
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	if c.Strava.ClientID == "" {
		errs = append(errs, errors.New("STRAVA_CLIENT_ID is required"))
	}
	if _, err := cache.ParsePolicy(c.Cache.StalePolicy); err != nil {
		errs = append(errs, fmt.Errorf("CACHE_STALE_POLICY: %w", err))
	}
	if u, err := url.Parse(c.Strava.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("STRAVA_API_BASE_URL %q is not an absolute URL", c.Strava.APIBaseURL))
	}
	if c.Strava.RequestTimeout <= 0 {
		errs = append(errs, errors.New("STRAVA_REQUEST_TIMEOUT must be positive"))
	}
	if c.Auth.RefreshBuffer < 0 {
		errs = append(errs, errors.New("TOKEN_REFRESH_BUFFER must not be negative"))
	}
	if c.Strava.MaxActivities <= 0 {
		errs = append(errs, errors.New("FETCH_MAX_ACTIVITIES must be positive"))
	}
	switch c.Storage.Backend {
	case BackendDynamo:
	case BackendMemory:
		if !c.DevMode {
			errs = append(errs, errors.New("STORAGE_BACKEND=memory requires DEV_MODE"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND %q must be dynamo or memory", c.Storage.Backend))
	}
	if c.Storage.Backend == BackendDynamo && (c.Storage.SessionsTable == "" || c.Storage.SessionLocksTable == "") {
		errs = append(errs, errors.New("SESSIONS_TABLE and SESSION_LOCKS_TABLE are required for the dynamo backend"))
	}

	return errors.Join(errs...)
}
