package gating

import (
	"os"
	"strconv"
	"time"
)

// Config controls the gating service.
type Config struct {
	// EvaluationTimeout bounds one verifier evaluation. Default 10s.
	EvaluationTimeout time.Duration
	// ChallengeDomain names the deployment in challenge messages.
	ChallengeDomain string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		EvaluationTimeout: 10 * time.Second,
		ChallengeDomain:   "lockgate",
	}
}

// ConfigFromEnv loads config from environment variables.
// GATING_EVALUATION_TIMEOUT (Go duration or whole seconds),
// GATING_CHALLENGE_DOMAIN
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("GATING_EVALUATION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.EvaluationTimeout = d
		} else if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.EvaluationTimeout = time.Duration(secs) * time.Second
		}
	}

	if v := os.Getenv("GATING_CHALLENGE_DOMAIN"); v != "" {
		cfg.ChallengeDomain = v
	}

	return cfg
}
