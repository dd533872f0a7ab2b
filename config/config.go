// Package config loads the service configuration from the environment.
// Every tunable of the orchestration layer lives here so the retry,
// breaker and refresh parameters stay consistent across the process.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Config is the full service configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `env:"ADDR" envDefault:":8080"`

	// DatabaseDSN is the PostgreSQL connection string.
	DatabaseDSN string `env:"DATABASE_DSN" validate:"required"`

	// EncryptionKey is the 32-byte AES key protecting credentials at rest.
	EncryptionKey string `env:"ENCRYPTION_KEY" validate:"required,len=32"`

	// RedirectAfterConnect is where the OAuth callback sends the browser.
	RedirectAfterConnect string `env:"REDIRECT_AFTER_CONNECT" envDefault:"/integrations"`

	Cache     CacheConfig     `envPrefix:"CACHE_"`
	Scheduler SchedulerConfig `envPrefix:"SCHEDULER_"`
	Breaker   BreakerConfig   `envPrefix:"BREAKER_"`
	Refresh   RefreshConfig   `envPrefix:"REFRESH_"`
	OAuth     OAuthConfig
}

type CacheConfig struct {
	Capacity int           `env:"CAPACITY" envDefault:"1000" validate:"gt=0"`
	MaxAge   time.Duration `env:"MAX_AGE" envDefault:"5m" validate:"gt=0"`
}

type SchedulerConfig struct {
	Concurrency int     `env:"CONCURRENCY" envDefault:"3" validate:"gt=0"`
	RateLimit   float64 `env:"RATE_LIMIT" envDefault:"0" validate:"gte=0"` // requests/sec, 0 disables
}

type BreakerConfig struct {
	FailureThreshold int           `env:"FAILURE_THRESHOLD" envDefault:"5" validate:"gt=0"`
	RecoveryTimeout  time.Duration `env:"RECOVERY_TIMEOUT" envDefault:"1m" validate:"gt=0"`
	MaxAttempts      int           `env:"MAX_ATTEMPTS" envDefault:"3" validate:"gt=0"`
	BaseDelay        time.Duration `env:"BASE_DELAY" envDefault:"1s" validate:"gt=0"`
	MaxDelay         time.Duration `env:"MAX_DELAY" envDefault:"30s" validate:"gt=0"`
}

type RefreshConfig struct {
	Interval  time.Duration `env:"INTERVAL" envDefault:"30m" validate:"gt=0"`
	Threshold time.Duration `env:"THRESHOLD" envDefault:"10m" validate:"gt=0"`
}

// OAuthConfig carries the per-platform OAuth application settings. A
// platform with an empty client id simply has no OAuth flow configured.
type OAuthConfig struct {
	Facebook    OAuthApp `envPrefix:"FACEBOOK_"`
	GoogleAds   OAuthApp `envPrefix:"GOOGLE_ADS_"`
	GoHighLevel OAuthApp `envPrefix:"GOHIGHLEVEL_"`
	Sheets      OAuthApp `envPrefix:"SHEETS_"`

	// GoogleDeveloperToken is the Google Ads API developer token, sent
	// alongside the OAuth token on every request.
	GoogleDeveloperToken string `env:"GOOGLE_ADS_DEVELOPER_TOKEN"`
}

type OAuthApp struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"`
}

// Configured reports whether the app registration is usable.
func (a OAuthApp) Configured() bool {
	return a.ClientID != "" && a.ClientSecret != ""
}

// Load reads and validates the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
