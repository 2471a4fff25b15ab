// file: internal/config/config.go
// version: 2.0.0
// guid: 7b8c9d0e-1f2a-3b4c-5d6e-7f8a9b0c1d2e

package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	DatabasePath string
	DatabaseType string // "pebble" (default) or "sqlite"
	EnableSQLite bool   // Must be true to use SQLite (safety flag)
	WatchDir     string // drop directory for catalog documents, empty disables
	ListenAddr   string

	// Engine tunables
	ChunkSize           int
	ViewportSize        int
	QueryTTLSeconds     int
	AggregateTTLSeconds int
	CacheMaxEntries     int
	FreshnessMinutes    int
	SearchLimit         int

	// Server limits
	APIRateLimitPerMinute int
	JSONBodyLimitMB       int

	// Logging
	LogLevel          string
	EnableJsonLogging bool
}

var AppConfig Config

// InitConfig initializes the application configuration
func InitConfig() {
	// Set defaults
	viper.SetDefault("database_type", "pebble")
	viper.SetDefault("enable_sqlite3_i_know_the_risks", false)
	viper.SetDefault("listen_addr", ":8069")
	viper.SetDefault("chunk_size", 50)
	viper.SetDefault("viewport_size", 25)
	viper.SetDefault("query_ttl_seconds", 300)
	viper.SetDefault("aggregate_ttl_seconds", 120)
	viper.SetDefault("cache_max_entries", 256)
	viper.SetDefault("freshness_minutes", 10)
	viper.SetDefault("search_limit", 100)
	viper.SetDefault("api_rate_limit_per_minute", 120)
	viper.SetDefault("json_body_limit_mb", 10)
	viper.SetDefault("log_level", "info")

	AppConfig = Config{
		DatabasePath:          viper.GetString("database_path"),
		DatabaseType:          viper.GetString("database_type"),
		EnableSQLite:          viper.GetBool("enable_sqlite3_i_know_the_risks"),
		WatchDir:              viper.GetString("watch_dir"),
		ListenAddr:            viper.GetString("listen_addr"),
		ChunkSize:             viper.GetInt("chunk_size"),
		ViewportSize:          viper.GetInt("viewport_size"),
		QueryTTLSeconds:       viper.GetInt("query_ttl_seconds"),
		AggregateTTLSeconds:   viper.GetInt("aggregate_ttl_seconds"),
		CacheMaxEntries:       viper.GetInt("cache_max_entries"),
		FreshnessMinutes:      viper.GetInt("freshness_minutes"),
		SearchLimit:           viper.GetInt("search_limit"),
		APIRateLimitPerMinute: viper.GetInt("api_rate_limit_per_minute"),
		JSONBodyLimitMB:       viper.GetInt("json_body_limit_mb"),
		LogLevel:              viper.GetString("log_level"),
		EnableJsonLogging:     viper.GetBool("enable_json_logging"),
	}

	// Normalize database type
	if AppConfig.DatabaseType == "sqlite3" {
		AppConfig.DatabaseType = "sqlite"
	}
	if AppConfig.DatabaseType == "" {
		AppConfig.DatabaseType = "pebble"
	}
}

// QueryTTL returns the result cache TTL for plain queries.
func (c *Config) QueryTTL() time.Duration {
	return time.Duration(c.QueryTTLSeconds) * time.Second
}

// AggregateTTL returns the result cache TTL for grouped queries.
func (c *Config) AggregateTTL() time.Duration {
	return time.Duration(c.AggregateTTLSeconds) * time.Second
}

// Freshness returns the window within which a stored catalog is reused
// without refetching.
func (c *Config) Freshness() time.Duration {
	return time.Duration(c.FreshnessMinutes) * time.Minute
}
