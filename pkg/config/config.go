// Package config loads gating-server settings from flags, GATING_*
// environment variables and an optional YAML file, in that order of
// precedence, and hot-reloads verification lifetimes when the file changes.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lockgate/lockgate/pkg/policy"
)

// Keys. Nested keys map to environment variables with dots replaced by
// underscores, so database.url is GATING_DATABASE_URL.
const (
	KeyConfigFile      = "config"
	KeyListen          = "listen"
	KeyLogLevel        = "log.level"
	KeyDatabaseType    = "database.type"
	KeyDatabaseURL     = "database.url"
	KeyEthereumRPC     = "chain.ethereum_rpc_url"
	KeyLuksoRPC        = "chain.lukso_rpc_url"
	KeyRPCTimeout      = "chain.call_timeout"
	KeyChainCacheTTL   = "chain.cache_ttl"
	KeyEFPBaseURL      = "efp.base_url"
	KeyCORSOrigins     = "cors.allowed_origins"
	KeyPostMinutes     = "post_verification_minutes"
	KeyBoardMinutes    = "board_verification_minutes"
	KeyBoardMinMinutes = "board_verification_min_minutes"
	KeyBoardMaxMinutes = "board_verification_max_minutes"
)

// flagKeys maps command-line flag names to their keys.
var flagKeys = map[string]string{
	"config":           KeyConfigFile,
	"listen":           KeyListen,
	"log-level":        KeyLogLevel,
	"db-type":          KeyDatabaseType,
	"db-url":           KeyDatabaseURL,
	"ethereum-rpc-url": KeyEthereumRPC,
	"lukso-rpc-url":    KeyLuksoRPC,
}

// Database types.
const (
	DatabasePostgres = "postgres"
	DatabaseSQLite   = "sqlite"
)

// Server is the process-level configuration of gating-server. Component
// settings not listed here are read by each package's ConfigFromEnv.
type Server struct {
	ConfigFile     string
	Listen         string
	LogLevel       slog.Level
	DatabaseType   string
	DatabaseURL    string
	EthereumRPCURL string
	LuksoRPCURL    string
	RPCCallTimeout time.Duration
	ChainCacheTTL  time.Duration
	EFPBaseURL     string
	CORSOrigins    []string
	Policy         policy.Config
}

// RegisterFlags adds the server flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a YAML config file (watched for verification lifetime changes)")
	fs.String("listen", ":8080", "Address to listen on")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.String("db-type", DatabasePostgres, "Database type (postgres or sqlite)")
	fs.String("db-url", "", "Database connection string")
	fs.String("ethereum-rpc-url", "", "Ethereum JSON-RPC endpoint")
	fs.String("lukso-rpc-url", "", "LUKSO JSON-RPC endpoint")
}

// New returns a viper instance reading GATING_* variables and the flags in
// fs, if any. Flags take precedence only when set explicitly.
func New(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("GATING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigType("yaml")

	defaults := policy.DefaultConfig()
	v.SetDefault(KeyListen, ":8080")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyDatabaseType, DatabasePostgres)
	v.SetDefault(KeyRPCTimeout, 5*time.Second)
	v.SetDefault(KeyChainCacheTTL, 30*time.Second)
	v.SetDefault(KeyCORSOrigins, []string{})
	v.SetDefault(KeyPostMinutes, int(defaults.Post/time.Minute))
	v.SetDefault(KeyBoardMinutes, int(defaults.Board/time.Minute))
	v.SetDefault(KeyBoardMinMinutes, int(defaults.MinBoard/time.Minute))
	v.SetDefault(KeyBoardMaxMinutes, int(defaults.MaxBoard/time.Minute))

	if fs != nil {
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}
	return v, nil
}

// Load reads the config file named by the config key, if any, and returns
// the resulting settings.
func Load(v *viper.Viper) (*Server, error) {
	if file := v.GetString(KeyConfigFile); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString(KeyLogLevel))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", v.GetString(KeyLogLevel), err)
	}

	s := &Server{
		ConfigFile:     v.ConfigFileUsed(),
		Listen:         v.GetString(KeyListen),
		LogLevel:       level,
		DatabaseType:   strings.ToLower(v.GetString(KeyDatabaseType)),
		DatabaseURL:    v.GetString(KeyDatabaseURL),
		EthereumRPCURL: v.GetString(KeyEthereumRPC),
		LuksoRPCURL:    v.GetString(KeyLuksoRPC),
		RPCCallTimeout: v.GetDuration(KeyRPCTimeout),
		ChainCacheTTL:  v.GetDuration(KeyChainCacheTTL),
		EFPBaseURL:     v.GetString(KeyEFPBaseURL),
		CORSOrigins:    v.GetStringSlice(KeyCORSOrigins),
		Policy:         PolicyConfig(v),
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the settings that have no usable fallback.
func (s *Server) Validate() error {
	switch s.DatabaseType {
	case DatabasePostgres:
		if s.DatabaseURL == "" {
			return fmt.Errorf("database url is required for postgres (--db-url or GATING_DATABASE_URL)")
		}
	case DatabaseSQLite:
	default:
		return fmt.Errorf("unknown database type %q (expected %s or %s)", s.DatabaseType, DatabasePostgres, DatabaseSQLite)
	}
	if err := s.Policy.Validate(); err != nil {
		return fmt.Errorf("verification lifetimes: %w", err)
	}
	return nil
}

// PolicyConfig returns the verification lifetimes currently held by v.
func PolicyConfig(v *viper.Viper) policy.Config {
	return policy.Config{
		Post:     time.Duration(v.GetInt(KeyPostMinutes)) * time.Minute,
		Board:    time.Duration(v.GetInt(KeyBoardMinutes)) * time.Minute,
		MinBoard: time.Duration(v.GetInt(KeyBoardMinMinutes)) * time.Minute,
		MaxBoard: time.Duration(v.GetInt(KeyBoardMaxMinutes)) * time.Minute,
	}
}

// ReloadPolicy applies the lifetimes in v to p. An invalid configuration
// is rejected and p keeps its previous lifetimes.
func ReloadPolicy(v *viper.Viper, p *policy.DurationPolicy) error {
	cfg := PolicyConfig(v)
	if err := p.Update(cfg); err != nil {
		return fmt.Errorf("reject verification lifetimes: %w", err)
	}
	return nil
}

// WatchPolicy reloads p whenever the config file changes. It does nothing
// when no config file was read.
func WatchPolicy(v *viper.Viper, p *policy.DurationPolicy, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if err := ReloadPolicy(v, p); err != nil {
			logger.Warn("config reload failed", "file", e.Name, "error", err)
			return
		}
		cfg := p.Config()
		logger.Info("verification lifetimes reloaded", "file", e.Name,
			"post", cfg.Post, "board", cfg.Board, "minBoard", cfg.MinBoard, "maxBoard", cfg.MaxBoard)
	})
	v.WatchConfig()
}
