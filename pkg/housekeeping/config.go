package housekeeping

import (
	"os"
	"strconv"
	"time"
)

// Config controls the housekeeping sweeper.
type Config struct {
	Enabled        bool          // Whether sweeping runs at all. Default true.
	Interval       time.Duration // Time between sweeps. Default 10m.
	PendingTimeout time.Duration // Age after which a pending verification is considered abandoned. Default 5m.
	RetentionHours int           // How long expired verifications are kept. Default 168.
}

// DefaultConfig returns the default housekeeping configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:        true,
		Interval:       10 * time.Minute,
		PendingTimeout: 5 * time.Minute,
		RetentionHours: 168,
	}
}

// ConfigFromEnv loads config from environment variables.
// GATING_HOUSEKEEPING_ENABLED, GATING_HOUSEKEEPING_INTERVAL_SECONDS,
// GATING_PENDING_TIMEOUT_MINUTES, GATING_PREVERIFICATION_RETENTION_HOURS
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("GATING_HOUSEKEEPING_ENABLED"); v != "" {
		cfg.Enabled, _ = strconv.ParseBool(v)
	}

	if v := os.Getenv("GATING_HOUSEKEEPING_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Interval = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("GATING_PENDING_TIMEOUT_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PendingTimeout = time.Duration(n) * time.Minute
		}
	}

	if v := os.Getenv("GATING_PREVERIFICATION_RETENTION_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RetentionHours = n
		}
	}

	return cfg
}
