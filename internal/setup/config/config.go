// Package config loads the application configuration from TOML files.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound   = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing = errors.New("config file is missing version field")
	ErrMissingCredentials   = errors.New("config file is missing API credentials")
)

// CurrentVersion of the config file format.
const CurrentVersion = 1

// Config represents the entire application configuration.
type Config struct {
	// Version of the config file.
	Version    int        `koanf:"version"`
	Debug      Debug      `koanf:"debug"`
	PostgreSQL PostgreSQL `koanf:"postgresql"`
	API        API        `koanf:"api"`
	Crawler    Crawler    `koanf:"crawler"`
	Hasher     Hasher     `koanf:"hasher"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// Log database queries at debug level.
	QueryLogging bool `koanf:"query_logging"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	// Database hostname.
	Host string `koanf:"host"`
	// Database port.
	Port int `koanf:"port"`
	// Database username.
	User string `koanf:"user"`
	// Database password.
	Password string `koanf:"password"`
	// Database name.
	DBName string `koanf:"db_name"`
	// Maximum open connections.
	MaxOpenConns int `koanf:"max_open_conns"`
	// Maximum idle connections.
	MaxIdleConns int `koanf:"max_idle_conns"`
	// Connection lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
	// Idle timeout in minutes.
	MaxIdleTime int `koanf:"max_idle_time"`
}

// API contains remote platform credentials and client settings.
type API struct {
	// OAuth application client ID.
	ClientID string `koanf:"client_id"`
	// OAuth application client secret.
	ClientSecret string `koanf:"client_secret"`
	// Per-application API key injected into non-auth calls.
	APIKey string `koanf:"api_key"`
	// Minimum spacing between outbound requests in seconds.
	RequestInterval int `koanf:"request_interval"`
}

// Crawler contains the background loop cadences and deferral policy. All
// values are in seconds unless noted.
type Crawler struct {
	// Startup grace before background loops tick.
	InitDelay int `koanf:"init_delay"`
	// Period of the newest-page discovery loop.
	NewUserFetchInterval int `koanf:"new_user_fetch_interval"`
	// Period of the inbox inspection loop.
	NewCheckInterval int `koanf:"new_check_interval"`
	// Period of the deferred inspection loop.
	DeferredCheckInterval int `koanf:"deferred_check_interval"`
	// Base unit for deferral backoff.
	DeferDelay int `koanf:"defer_delay"`
	// Accounts younger than this are deferred when their score is weak.
	DeferMinAge int `koanf:"defer_min_age"`
	// Accounts older than this are never deferred.
	DeferMaxAge int `koanf:"defer_max_age"`
	// Give up deferring after this many inspections.
	DeferMaxCount int `koanf:"defer_max_count"`
	// Cadence of historical discovery.
	OldUserFetchInterval int `koanf:"old_user_fetch_interval"`
	// Historical cadence once the last page has been reached.
	OldUserFetchIntervalLastPage int `koanf:"old_user_fetch_interval_lastpage"`
	// Admin group refresh cadence.
	AdminUserFetchInterval int `koanf:"admin_user_fetch_interval"`
	// Replaces the loop cadence while the API is forbidden.
	APIBlockedDelay int `koanf:"api_blocked_delay"`
	// Public suffix list source.
	TLDSuffixURI string `koanf:"tld_suffix_uri"`
	// Public suffix list cache duration.
	TLDSuffixCacheDuration int `koanf:"tld_suffix_cache_duration"`
	// Project whose team forms the admin group.
	ProjectID uint64 `koanf:"project_id"`
	// Explicit admin user IDs, never removed by the refresh.
	AdminUserIDs []uint64 `koanf:"admin_user_ids"`
}

// Hasher contains the avatar hash worker pool settings.
type Hasher struct {
	// Concurrent hash computations; 0 selects the CPU count.
	Workers int `koanf:"workers"`
}

// defaults returns a config populated with the documented defaults.
func defaults() *Config {
	return &Config{
		Debug: Debug{LogLevel: "info"},
		PostgreSQL: PostgreSQL{
			Host:         "localhost",
			Port:         5432,
			MaxOpenConns: 8,
			MaxIdleConns: 4,
			MaxLifetime:  10,
			MaxIdleTime:  5,
		},
		API: API{RequestInterval: 30},
		Crawler: Crawler{
			InitDelay:                    5,
			NewUserFetchInterval:         900,
			NewCheckInterval:             5,
			DeferredCheckInterval:        900,
			DeferDelay:                   900,
			DeferMinAge:                  3600,
			DeferMaxAge:                  2419200,
			DeferMaxCount:                5,
			OldUserFetchInterval:         300,
			OldUserFetchIntervalLastPage: 604800,
			AdminUserFetchInterval:       86400,
			APIBlockedDelay:              86400,
			TLDSuffixCacheDuration:       604800,
		},
	}
}

// LoadConfig reads the configuration from the first spamhunter.toml found
// in the search paths, applying defaults for anything unset. An explicit
// path overrides the search.
func LoadConfig(explicitPath string) (*Config, error) {
	k := koanf.New(".")

	paths := configPaths(explicitPath)

	var loaded string

	for _, path := range paths {
		if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
			loaded = path
			break
		}
	}

	if loaded == "" {
		return nil, fmt.Errorf("%w: tried %v", ErrConfigFileNotFound, paths)
	}

	cfg := defaults()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", loaded, err)
	}

	if cfg.Version == 0 {
		return nil, fmt.Errorf("%w: %s", ErrConfigVersionMissing, loaded)
	}

	if cfg.API.APIKey == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingCredentials, loaded)
	}

	return cfg, nil
}

func configPaths(explicitPath string) []string {
	if explicitPath != "" {
		return []string{explicitPath}
	}

	paths := []string{
		".spamhunter/spamhunter.toml",
		"/etc/spamhunter/spamhunter.toml",
		"config/spamhunter.toml",
		"spamhunter.toml",
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append([]string{homeDir + "/.spamhunter/spamhunter.toml"}, paths...)
	}

	return paths
}
