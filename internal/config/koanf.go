package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar names an optional YAML file layered between defaults and env.
const ConfigPathEnvVar = "CONFIG_PATH"

// envMappings maps environment variable names (lower-cased) to koanf paths.
// Variables not listed here are ignored.
var envMappings = map[string]string{
	"dev_mode":                   "dev_mode",
	"strava_client_id":           "strava.client_id",
	"strava_redirect_uri":        "strava.redirect_uri",
	"strava_client_secret_param": "strava.client_secret_param",
	"strava_api_base_url":        "strava.api_base_url",
	"strava_request_timeout":     "strava.request_timeout",
	"fetch_max_activities":       "strava.max_activities",
	"jwt_secret_param":           "auth.jwt_secret_param",
	"api_gateway_secret_param":   "auth.api_gateway_secret_param",
	"token_refresh_buffer":       "auth.refresh_buffer",
	"frontend_url":               "auth.frontend_url",
	"storage_backend":            "storage.backend",
	"sessions_table":             "storage.sessions_table",
	"session_locks_table":        "storage.session_locks_table",
	"kms_key_id":                 "storage.kms_key_id",
	"cache_stale_policy":         "cache.stale_policy",
	"log_level":                  "logging.level",
	"log_format":                 "logging.format",
	"server_addr":                "server.addr",
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// Load builds the configuration and validates it.
//
// Precedence: environment > CONFIG_PATH file > defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// An empty key from the transform drops the variable.
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}
