// Package config holds the Redis connection settings for the background
// task queue. Values come from the environment; REDIS_URL, when present,
// overrides the individual host settings.
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// RedisConfig holds Redis connection and queue parameters.
type RedisConfig struct {
	URL           string        `env:"REDIS_URL"`
	Host          string        `env:"REDIS_HOST" envDefault:"localhost"`
	Port          int           `env:"REDIS_PORT" envDefault:"6379"`
	Password      string        `env:"REDIS_PASSWORD"`
	DB            int           `env:"REDIS_DB" envDefault:"0"`
	Workers       int           `env:"REDIS_WORKERS" envDefault:"10"`
	RetryInterval time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
	MaxRetries    int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`

	QueuePriorities map[string]int `env:"-"`
}

// DefaultQueuePriorities weights the task queues; critical work (token
// refreshes) is served ahead of routine invalidations.
var DefaultQueuePriorities = map[string]int{
	"critical": 6,
	"default":  3,
	"low":      1,
}

// NewRedisConfig reads the Redis configuration from the environment.
func NewRedisConfig() (*RedisConfig, error) {
	cfg := &RedisConfig{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse redis config: %w", err)
	}

	cfg.QueuePriorities = make(map[string]int, len(DefaultQueuePriorities))
	for queue, priority := range DefaultQueuePriorities {
		cfg.QueuePriorities[queue] = priority
	}

	if cfg.URL != "" {
		if err := cfg.applyURL(); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *RedisConfig) applyURL() error {
	parsed, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid redis url: %w", err)
	}

	if host := parsed.Hostname(); host != "" {
		c.Host = host
	}

	if port := parsed.Port(); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid port in redis url: %w", err)
		}

		c.Port = p
	}

	if password, ok := parsed.User.Password(); ok {
		c.Password = password
	}

	if path := strings.TrimPrefix(parsed.Path, "/"); path != "" {
		db, err := strconv.Atoi(path)
		if err != nil {
			return fmt.Errorf("invalid database number in redis url: %w", err)
		}

		c.DB = db
	}

	return nil
}

func (c *RedisConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	if c.DB < 0 || c.DB > 15 {
		return fmt.Errorf("db must be between 0 and 15, got %d", c.DB)
	}

	if c.Workers < 1 || c.Workers > 100 {
		return fmt.Errorf("workers must be between 1 and 100, got %d", c.Workers)
	}

	if c.RetryInterval < time.Second || c.RetryInterval > time.Hour {
		return fmt.Errorf("retry interval must be between 1s and 1h, got %v", c.RetryInterval)
	}

	if c.MaxRetries < 1 || c.MaxRetries > 10 {
		return fmt.Errorf("max retries must be between 1 and 10, got %d", c.MaxRetries)
	}

	return nil
}

// GetRedisAddr returns the host:port address, bracketing IPv6 hosts.
func (c *RedisConfig) GetRedisAddr() string {
	host := c.Host
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}

	return fmt.Sprintf("%s:%d", host, c.Port)
}
