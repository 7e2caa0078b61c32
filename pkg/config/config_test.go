package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockgate/lockgate/pkg/policy"
	"github.com/lockgate/lockgate/pkg/scope"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func load(t *testing.T, args ...string) (*Server, error) {
	t.Helper()
	v, err := New(newFlags(t, args...))
	require.NoError(t, err)
	return Load(v)
}

func TestDefaults(t *testing.T) {
	s, err := load(t, "--db-type=sqlite")
	require.NoError(t, err)

	assert.Equal(t, ":8080", s.Listen)
	assert.Equal(t, slog.LevelInfo, s.LogLevel)
	assert.Equal(t, DatabaseSQLite, s.DatabaseType)
	assert.Equal(t, 5*time.Second, s.RPCCallTimeout)
	assert.Equal(t, 30*time.Second, s.ChainCacheTTL)
	assert.Empty(t, s.ConfigFile)
	assert.Equal(t, *policy.DefaultConfig(), s.Policy)
}

func TestEnvironment(t *testing.T) {
	t.Setenv("GATING_DATABASE_URL", "postgres://gating@db/gating")
	t.Setenv("GATING_LOG_LEVEL", "debug")
	t.Setenv("GATING_CHAIN_LUKSO_RPC_URL", "https://rpc.lukso.example")
	t.Setenv("GATING_CHAIN_CALL_TIMEOUT", "2s")
	t.Setenv("GATING_POST_VERIFICATION_MINUTES", "10")

	s, err := load(t)
	require.NoError(t, err)
	assert.Equal(t, DatabasePostgres, s.DatabaseType)
	assert.Equal(t, "postgres://gating@db/gating", s.DatabaseURL)
	assert.Equal(t, slog.LevelDebug, s.LogLevel)
	assert.Equal(t, "https://rpc.lukso.example", s.LuksoRPCURL)
	assert.Equal(t, 2*time.Second, s.RPCCallTimeout)
	assert.Equal(t, 10*time.Minute, s.Policy.Post)
}

func TestPrecedence(t *testing.T) {
	file := filepath.Join(t.TempDir(), "gating.yaml")
	writeFile(t, file, `
listen: ":7000"
database:
  type: sqlite
chain:
  ethereum_rpc_url: https://file.example
cors:
  allowed_origins: [https://app.example, https://admin.example]
board_verification_minutes: 120
`)
	t.Setenv("GATING_LISTEN", ":7500")

	s, err := load(t, "--config", file, "--ethereum-rpc-url", "https://flag.example")
	require.NoError(t, err)

	assert.Equal(t, file, s.ConfigFile)
	assert.Equal(t, ":7500", s.Listen, "environment beats file")
	assert.Equal(t, "https://flag.example", s.EthereumRPCURL, "flag beats file")
	assert.Equal(t, DatabaseSQLite, s.DatabaseType)
	assert.Equal(t, []string{"https://app.example", "https://admin.example"}, s.CORSOrigins)
	assert.Equal(t, 2*time.Hour, s.Policy.Board)
	assert.Equal(t, 30*time.Minute, s.Policy.Post)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{name: "postgres without url"},
		{name: "unknown database", args: []string{"--db-type=oracle"}},
		{name: "bad log level", args: []string{"--db-type=sqlite", "--log-level=loud"}},
		{name: "missing file", args: []string{"--db-type=sqlite", "--config=/nonexistent/gating.yaml"}},
		{
			name: "inverted board bounds",
			args: []string{"--db-type=sqlite"},
			env: map[string]string{
				"GATING_BOARD_VERIFICATION_MIN_MINUTES": "600",
				"GATING_BOARD_VERIFICATION_MAX_MINUTES": "60",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := load(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestReloadPolicy(t *testing.T) {
	file := filepath.Join(t.TempDir(), "gating.yaml")
	writeFile(t, file, "database:\n  type: sqlite\npost_verification_minutes: 15\n")

	v, err := New(newFlags(t, "--config", file))
	require.NoError(t, err)
	s, err := Load(v)
	require.NoError(t, err)
	p := policy.New(&s.Policy)
	require.Equal(t, 15*time.Minute, p.DurationFor(policy.Context{Type: scope.Post}))

	writeFile(t, file, "database:\n  type: sqlite\npost_verification_minutes: 45\n")
	require.NoError(t, v.ReadInConfig())
	require.NoError(t, ReloadPolicy(v, p))
	assert.Equal(t, 45*time.Minute, p.DurationFor(policy.Context{Type: scope.Post}))

	writeFile(t, file, "database:\n  type: sqlite\npost_verification_minutes: 0\n")
	require.NoError(t, v.ReadInConfig())
	assert.Error(t, ReloadPolicy(v, p))
	assert.Equal(t, 45*time.Minute, p.DurationFor(policy.Context{Type: scope.Post}), "invalid reload keeps previous lifetimes")
}

func TestWatchPolicy(t *testing.T) {
	file := filepath.Join(t.TempDir(), "gating.yaml")
	writeFile(t, file, "database:\n  type: sqlite\nboard_verification_minutes: 60\n")

	v, err := New(newFlags(t, "--config", file))
	require.NoError(t, err)
	s, err := Load(v)
	require.NoError(t, err)
	p := policy.New(&s.Policy)

	WatchPolicy(v, p, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	writeFile(t, file, "database:\n  type: sqlite\nboard_verification_minutes: 90\n")

	assert.Eventually(t, func() bool {
		return p.DurationFor(policy.Context{Type: scope.Board}) == 90*time.Minute
	}, 5*time.Second, 50*time.Millisecond)
}

func TestWatchPolicyWithoutFile(t *testing.T) {
	v, err := New(nil)
	require.NoError(t, err)
	p := policy.New(nil)
	WatchPolicy(v, p, nil)
	assert.Equal(t, 4*time.Hour, p.DurationFor(policy.Context{Type: scope.Board}))
}
