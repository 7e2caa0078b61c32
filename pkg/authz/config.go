package authz

import (
	"errors"
	"os"
	"time"
)

// Mode selects the authorization backend.
type Mode string

const (
	// ModeNone treats every identified caller as an administrator (dev only).
	ModeNone Mode = "none"
	// ModeGroups derives administrators from identity groups.
	ModeGroups Mode = "groups"
	// ModeSAR uses Kubernetes SubjectAccessReview.
	ModeSAR Mode = "sar"
)

// Config holds identity and authorization settings.
type Config struct {
	Mode       Mode
	AdminGroup string        // Group granting admin on every community. Default "gating-admins".
	JWTSecret  string        // HMAC secret; when set, identity comes from bearer tokens only.
	JWTIssuer  string        // Expected "iss" claim; empty accepts any.
	CacheTTL   time.Duration // Authorization decision cache TTL. Default 10s.
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Mode:       ModeGroups,
		AdminGroup: "gating-admins",
		CacheTTL:   DefaultCacheTTL,
	}
}

// ConfigFromEnv loads configuration from environment variables.
// GATING_AUTHZ_MODE, GATING_ADMIN_GROUP, GATING_JWT_SECRET, GATING_JWT_ISSUER,
// GATING_AUTHZ_CACHE_TTL
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()
	switch Mode(os.Getenv("GATING_AUTHZ_MODE")) {
	case ModeNone:
		cfg.Mode = ModeNone
	case ModeSAR:
		cfg.Mode = ModeSAR
	}
	if v := os.Getenv("GATING_ADMIN_GROUP"); v != "" {
		cfg.AdminGroup = v
	}
	cfg.JWTSecret = os.Getenv("GATING_JWT_SECRET")
	cfg.JWTIssuer = os.Getenv("GATING_JWT_ISSUER")
	if v := os.Getenv("GATING_AUTHZ_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.CacheTTL = d
		}
	}
	return cfg
}

// New builds the authorizer selected by cfg. sar is only used in SAR mode.
func New(cfg *Config, sar Authorizer) (Authorizer, error) {
	var inner Authorizer
	switch cfg.Mode {
	case ModeNone:
		return &NoopAuthorizer{}, nil
	case ModeSAR:
		if sar == nil {
			return nil, errors.New("SAR authorization mode requires a Kubernetes client")
		}
		inner = sar
	default:
		inner = &GroupAuthorizer{AdminGroup: cfg.AdminGroup}
	}
	if cfg.CacheTTL > 0 {
		return NewCachedAuthorizer(inner, cfg.CacheTTL), nil
	}
	return inner, nil
}
