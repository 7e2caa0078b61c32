package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockgate/lockgate/pkg/scope"
)

func TestDefaultDurations(t *testing.T) {
	p := New(nil)
	assert.Equal(t, 30*time.Minute, p.DurationFor(Context{Type: scope.Post}))
	assert.Equal(t, 4*time.Hour, p.DurationFor(Context{Type: scope.Board}))
}

func TestBoardOverride(t *testing.T) {
	p := New(nil)
	assert.Equal(t, 2*time.Hour, p.DurationFor(Context{Type: scope.Board, BoardOverride: 2 * time.Hour}))
	assert.Equal(t, 5*time.Minute, p.DurationFor(Context{Type: scope.Board, BoardOverride: time.Minute}))
	assert.Equal(t, 7*24*time.Hour, p.DurationFor(Context{Type: scope.Board, BoardOverride: 30 * 24 * time.Hour}))

	// Posts ignore board overrides.
	assert.Equal(t, 30*time.Minute, p.DurationFor(Context{Type: scope.Post, BoardOverride: 2 * time.Hour}))
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("GATING_POST_VERIFICATION_MINUTES", "10")
	t.Setenv("GATING_BOARD_VERIFICATION_MINUTES", "60")
	t.Setenv("GATING_BOARD_VERIFICATION_MIN_MINUTES", "bogus")
	t.Setenv("GATING_BOARD_VERIFICATION_MAX_MINUTES", "-5")

	cfg := ConfigFromEnv()
	assert.Equal(t, 10*time.Minute, cfg.Post)
	assert.Equal(t, time.Hour, cfg.Board)
	assert.Equal(t, 5*time.Minute, cfg.MinBoard)
	assert.Equal(t, 7*24*time.Hour, cfg.MaxBoard)
}

func TestUpdate(t *testing.T) {
	p := New(nil)
	cfg := p.Config()
	cfg.Post = time.Hour
	require.NoError(t, p.Update(cfg))
	assert.Equal(t, time.Hour, p.DurationFor(Context{Type: scope.Post}))

	bad := cfg
	bad.MinBoard = 8 * 24 * time.Hour
	assert.Error(t, p.Update(bad))
	bad = cfg
	bad.Board = 0
	assert.Error(t, p.Update(bad))
	assert.Equal(t, time.Hour, p.DurationFor(Context{Type: scope.Post}))
}
