package cache

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// CacheConfig holds configuration for the caching layer.
type CacheConfig struct {
	// Enabled controls whether caching is active. When false, no middleware
	// is applied and all requests pass through uncached.
	Enabled bool

	// CategoriesTTL is the TTL for the /categories listing.
	CategoriesTTL time.Duration

	// ApplicationsTTL is the TTL for /resources/{type}/{id}/lock lookups.
	ApplicationsTTL time.Duration

	// MaxSize is the maximum number of entries per cache instance.
	MaxSize int
}

// DefaultCacheConfig returns a CacheConfig with sensible defaults.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Enabled:         true,
		CategoriesTTL:   5 * time.Minute,
		ApplicationsTTL: 30 * time.Second,
		MaxSize:         1000,
	}
}

// CacheConfigFromEnv reads cache configuration from environment variables,
// falling back to defaults for any unset variable.
//
// Environment variables:
//   - GATING_CACHE_ENABLED: "true" or "false" (default: "true")
//   - GATING_CACHE_CATEGORIES_TTL: duration in seconds (default: 300)
//   - GATING_CACHE_APPLICATIONS_TTL: duration in seconds (default: 30)
//   - GATING_CACHE_MAX_SIZE: max entries per cache (default: 1000)
func CacheConfigFromEnv() *CacheConfig {
	cfg := DefaultCacheConfig()

	if v := os.Getenv("GATING_CACHE_ENABLED"); v != "" {
		cfg.Enabled = strings.EqualFold(v, "true") || v == "1"
	}

	if v := os.Getenv("GATING_CACHE_CATEGORIES_TTL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.CategoriesTTL = time.Duration(secs) * time.Second
		}
	}

	if v := os.Getenv("GATING_CACHE_APPLICATIONS_TTL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.ApplicationsTTL = time.Duration(secs) * time.Second
		}
	}

	if v := os.Getenv("GATING_CACHE_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxSize = n
		}
	}

	return cfg
}
