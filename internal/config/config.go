// Package config reads runtime configuration from environment variables.
package config

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the server and the worker.
type Config struct {
	AppEnv          string        `envconfig:"APP_ENV" default:"development"`
	AppAddr         string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout  time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"120s"`

	LogFormat string `envconfig:"LOG_FORMAT"`

	DBPath string `envconfig:"DB_PATH" default:"data/dormlife.db"`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`

	// Token verification for inbound requests.
	JWKSURL  string `envconfig:"AUTH_JWKS_URL" required:"true"`
	Issuer   string `envconfig:"AUTH_ISSUER" required:"true"`
	Audience string `envconfig:"AUTH_AUDIENCE" required:"true"`

	// Logto management API for user and organization lookups.
	LogtoAPIBase      string `envconfig:"LOGTO_API_BASE" required:"true"`
	LogtoTokenURL     string `envconfig:"LOGTO_TOKEN_URL" required:"true"`
	LogtoClientID     string `envconfig:"LOGTO_CLIENT_ID" required:"true"`
	LogtoClientSecret string `envconfig:"LOGTO_CLIENT_SECRET" required:"true"`

	// Campus electricity portal.
	PortalLoginURL  string `envconfig:"PORTAL_LOGIN_URL" default:""`
	PortalSearchURL string `envconfig:"PORTAL_SEARCH_URL" default:""`
}

// Load reads configuration from the environment. When LOG_FORMAT is unset,
// production gets JSON logs and everything else the pretty handler.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.DBPath == "" {
		return nil, errors.New("database path must be provided")
	}
	if cfg.LogFormat == "" {
		if cfg.IsProduction() {
			cfg.LogFormat = "json"
		} else {
			cfg.LogFormat = "pretty"
		}
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
