// Package ha lets several gating server replicas share one database: schema
// migrations are serialized behind a migration lock, and periodic
// housekeeping runs only on the replica holding a Kubernetes Lease.
package ha

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds configuration for high-availability features.
type Config struct {
	// LeaderElectionEnabled turns on Lease-based election. When false the
	// replica acts as the only leader, which suits single-replica setups.
	LeaderElectionEnabled bool

	LeaseName      string
	LeaseNamespace string

	// LeaseDuration is how long followers wait before taking over a lease
	// that stopped being renewed.
	LeaseDuration time.Duration
	// RenewDeadline is how long the leader keeps retrying a renewal before
	// giving up leadership. Must be shorter than LeaseDuration.
	RenewDeadline time.Duration
	RetryPeriod   time.Duration

	// MigrationLockEnabled serializes AutoMigrate across replicas.
	MigrationLockEnabled bool

	// Identity names this replica in the lease and in migration lock rows.
	Identity string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	ns := os.Getenv("POD_NAMESPACE")
	if ns == "" {
		ns = "lockgate"
	}
	return &Config{
		LeaseName:            "gating-server-leader",
		LeaseNamespace:       ns,
		LeaseDuration:        15 * time.Second,
		RenewDeadline:        10 * time.Second,
		RetryPeriod:          2 * time.Second,
		MigrationLockEnabled: true,
		Identity:             defaultIdentity(),
	}
}

// ConfigFromEnv reads HA configuration from environment variables, falling
// back to defaults for any unset or invalid variable.
//
//   - GATING_LEADER_ELECTION_ENABLED (default false)
//   - GATING_LEADER_LEASE_NAME, GATING_LEADER_LEASE_NAMESPACE
//   - GATING_LEADER_LEASE_DURATION, GATING_LEADER_RENEW_DEADLINE,
//     GATING_LEADER_RETRY_PERIOD: seconds
//   - GATING_MIGRATION_LOCK_ENABLED (default true)
//   - POD_NAME: replica identity
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()

	envBool("GATING_LEADER_ELECTION_ENABLED", &cfg.LeaderElectionEnabled)
	envBool("GATING_MIGRATION_LOCK_ENABLED", &cfg.MigrationLockEnabled)
	if v := os.Getenv("GATING_LEADER_LEASE_NAME"); v != "" {
		cfg.LeaseName = v
	}
	if v := os.Getenv("GATING_LEADER_LEASE_NAMESPACE"); v != "" {
		cfg.LeaseNamespace = v
	}
	envSeconds("GATING_LEADER_LEASE_DURATION", &cfg.LeaseDuration)
	envSeconds("GATING_LEADER_RENEW_DEADLINE", &cfg.RenewDeadline)
	envSeconds("GATING_LEADER_RETRY_PERIOD", &cfg.RetryPeriod)

	return cfg
}

// Validate checks the timing relationships leader election relies on.
func (c *Config) Validate() error {
	if !c.LeaderElectionEnabled {
		return nil
	}
	if c.LeaseName == "" || c.LeaseNamespace == "" {
		return fmt.Errorf("leader election needs a lease name and namespace")
	}
	if c.Identity == "" {
		return fmt.Errorf("leader election needs an identity")
	}
	if c.RenewDeadline >= c.LeaseDuration {
		return fmt.Errorf("renew deadline %s must be shorter than lease duration %s", c.RenewDeadline, c.LeaseDuration)
	}
	if c.RetryPeriod <= 0 || c.RetryPeriod >= c.RenewDeadline {
		return fmt.Errorf("retry period %s must be positive and shorter than renew deadline %s", c.RetryPeriod, c.RenewDeadline)
	}
	return nil
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}

func envSeconds(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			*dst = time.Duration(secs) * time.Second
		}
	}
}

func defaultIdentity() string {
	if v := os.Getenv("POD_NAME"); v != "" {
		return v
	}
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
