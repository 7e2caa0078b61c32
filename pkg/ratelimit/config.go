package ratelimit

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config controls submission throttling.
type Config struct {
	Enabled  bool          // Default true
	Limit    int           // Attempts per window per user. Default 10.
	Window   time.Duration // Default 1m
	RedisURL string        // Empty keeps counters in process.
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Limit:   10,
		Window:  time.Minute,
	}
}

// ConfigFromEnv loads config from environment variables.
// GATING_RATE_LIMIT_ENABLED, GATING_RATE_LIMIT_PER_WINDOW,
// GATING_RATE_LIMIT_WINDOW_SECONDS, GATING_REDIS_URL
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("GATING_RATE_LIMIT_ENABLED"); v != "" {
		cfg.Enabled, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("GATING_RATE_LIMIT_PER_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Limit = n
		}
	}
	if v := os.Getenv("GATING_RATE_LIMIT_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Window = time.Duration(n) * time.Second
		}
	}
	cfg.RedisURL = os.Getenv("GATING_REDIS_URL")

	return cfg
}

// New builds the limiter cfg describes. The returned close function
// releases the Redis client, if any.
func New(cfg *Config, logger *slog.Logger) (Limiter, func() error, error) {
	noop := func() error { return nil }
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if !cfg.Enabled {
		return Unlimited{}, noop, nil
	}
	if cfg.RedisURL == "" {
		return NewInMemory(cfg.Limit, cfg.Window), noop, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, noop, err
	}
	client := redis.NewClient(opts)
	return NewRedis(client, cfg.Limit, cfg.Window, logger), client.Close, nil
}
