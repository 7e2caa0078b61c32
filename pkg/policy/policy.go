// Package policy decides how long a successful verification stays valid,
// depending on where it was performed.
package policy

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/lockgate/lockgate/pkg/scope"
)

// Config holds verification lifetimes.
type Config struct {
	Post     time.Duration // Lifetime of a post-scoped verification. Default 30m.
	Board    time.Duration // Default lifetime of a board-scoped verification. Default 4h.
	MinBoard time.Duration // Lower bound for per-board overrides. Default 5m.
	MaxBoard time.Duration // Upper bound for per-board overrides. Default 7d.
}

// DefaultConfig returns the default lifetimes.
func DefaultConfig() *Config {
	return &Config{
		Post:     30 * time.Minute,
		Board:    4 * time.Hour,
		MinBoard: 5 * time.Minute,
		MaxBoard: 7 * 24 * time.Hour,
	}
}

// ConfigFromEnv loads lifetimes from environment variables.
// GATING_POST_VERIFICATION_MINUTES, GATING_BOARD_VERIFICATION_MINUTES,
// GATING_BOARD_VERIFICATION_MIN_MINUTES, GATING_BOARD_VERIFICATION_MAX_MINUTES
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()
	setMinutes(&cfg.Post, "GATING_POST_VERIFICATION_MINUTES")
	setMinutes(&cfg.Board, "GATING_BOARD_VERIFICATION_MINUTES")
	setMinutes(&cfg.MinBoard, "GATING_BOARD_VERIFICATION_MIN_MINUTES")
	setMinutes(&cfg.MaxBoard, "GATING_BOARD_VERIFICATION_MAX_MINUTES")
	return cfg
}

func setMinutes(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = time.Duration(n) * time.Minute
		}
	}
}

// Validate checks that every lifetime is positive and the board bounds
// are ordered.
func (c *Config) Validate() error {
	if c.Post <= 0 || c.Board <= 0 || c.MinBoard <= 0 || c.MaxBoard <= 0 {
		return fmt.Errorf("verification durations must be positive")
	}
	if c.MinBoard > c.MaxBoard {
		return fmt.Errorf("board minimum %s exceeds maximum %s", c.MinBoard, c.MaxBoard)
	}
	return nil
}

// Context is what the policy needs to know about where a verification
// happened.
type Context struct {
	Type scope.Type
	// BoardOverride is the board's configured lifetime; zero means none.
	BoardOverride time.Duration
}

// DurationPolicy maps contexts to verification lifetimes. Safe for
// concurrent use; Update swaps the configuration atomically.
type DurationPolicy struct {
	mu  sync.RWMutex
	cfg Config
}

// New returns a policy for cfg. A nil cfg uses DefaultConfig.
func New(cfg *Config) *DurationPolicy {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &DurationPolicy{cfg: *cfg}
}

// DurationFor returns how long a verification performed in c stays valid.
// Board overrides are clamped to [MinBoard, MaxBoard]; posts ignore them.
func (p *DurationPolicy) DurationFor(c Context) time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if c.Type != scope.Board {
		return p.cfg.Post
	}
	if c.BoardOverride <= 0 {
		return p.cfg.Board
	}
	d := c.BoardOverride
	if d < p.cfg.MinBoard {
		d = p.cfg.MinBoard
	}
	if d > p.cfg.MaxBoard {
		d = p.cfg.MaxBoard
	}
	return d
}

// Update replaces the configuration after validating it.
func (p *DurationPolicy) Update(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
	return nil
}

// Config returns a copy of the current configuration.
func (p *DurationPolicy) Config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}
