// file: internal/config/persistence.go
// version: 2.0.0
// guid: 9c8d7e6f-5a4b-3c2d-1e0f-9a8b7c6d5e4f

package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opencatalog/streamvault/internal/catalog"
	"github.com/opencatalog/streamvault/internal/database"
)

// settingPrefix namespaces persisted settings inside the meta collection,
// away from catalog summaries.
const settingPrefix = "setting:"

// ConfigFilePath returns the path to the YAML config file next to the database.
func ConfigFilePath() string {
	if AppConfig.DatabasePath != "" {
		return filepath.Join(filepath.Dir(AppConfig.DatabasePath), "config.yaml")
	}
	return ""
}

// LoadConfigFromFile loads settings from the YAML config file as a fallback.
// Called after LoadConfigFromDatabase so file values only fill in gaps.
func LoadConfigFromFile() error {
	path := ConfigFilePath()
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fileConfig map[string]any
	if err := yaml.Unmarshal(data, &fileConfig); err != nil {
		log.Printf("Warning: Failed to parse config file %s: %v", path, err)
		return nil
	}

	applied := 0

	// Only fill in values that are currently empty/default.
	stringFallbacks := map[string]*string{
		"watch_dir":   &AppConfig.WatchDir,
		"listen_addr": &AppConfig.ListenAddr,
		"log_level":   &AppConfig.LogLevel,
	}
	for key, ptr := range stringFallbacks {
		if *ptr == "" {
			if val, ok := fileConfig[key].(string); ok && val != "" {
				*ptr = val
				applied++
			}
		}
	}

	if applied > 0 {
		log.Printf("Applied %d settings from config file %s", applied, path)
	}
	return nil
}

// SaveConfigToFile writes key settings to a YAML config file next to the database.
func SaveConfigToFile() error {
	path := ConfigFilePath()
	if path == "" {
		return fmt.Errorf("cannot determine config file path")
	}

	fileConfig := map[string]any{
		"database_path":             AppConfig.DatabasePath,
		"database_type":             AppConfig.DatabaseType,
		"watch_dir":                 AppConfig.WatchDir,
		"listen_addr":               AppConfig.ListenAddr,
		"chunk_size":                AppConfig.ChunkSize,
		"viewport_size":             AppConfig.ViewportSize,
		"query_ttl_seconds":         AppConfig.QueryTTLSeconds,
		"aggregate_ttl_seconds":     AppConfig.AggregateTTLSeconds,
		"cache_max_entries":         AppConfig.CacheMaxEntries,
		"freshness_minutes":         AppConfig.FreshnessMinutes,
		"search_limit":              AppConfig.SearchLimit,
		"api_rate_limit_per_minute": AppConfig.APIRateLimitPerMinute,
		"json_body_limit_mb":        AppConfig.JSONBodyLimitMB,
		"log_level":                 AppConfig.LogLevel,
		"enable_json_logging":       AppConfig.EnableJsonLogging,
	}

	data, err := yaml.Marshal(fileConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Printf("Configuration saved to file: %s", path)
	return nil
}

// LoadConfigFromDatabase loads settings from the store's meta collection and
// applies them to AppConfig. Called after store initialization so persisted
// values override viper defaults.
func LoadConfigFromDatabase(store database.Store) error {
	if store == nil {
		return fmt.Errorf("store is nil")
	}

	keys, err := store.Keys(catalog.CollectionMeta, settingPrefix)
	if err != nil {
		// An empty or fresh store is fine.
		log.Printf("Note: Could not load settings from database: %v", err)
		return nil
	}

	applied := 0
	for _, k := range keys {
		raw, ok, err := store.Get(catalog.CollectionMeta, k)
		if err != nil || !ok {
			continue
		}
		name := strings.TrimPrefix(k, settingPrefix)
		if err := applySetting(name, string(raw)); err != nil {
			log.Printf("Warning: Failed to apply setting %s: %v", name, err)
			continue
		}
		applied++
	}

	if applied > 0 {
		log.Printf("Applied %d settings from database", applied)
	}

	// Fall back to the config file for anything the store didn't provide.
	if err := LoadConfigFromFile(); err != nil {
		log.Printf("Warning: Config file fallback failed: %v", err)
	}
	return nil
}

// applySetting applies a single persisted setting to AppConfig
func applySetting(key, value string) error {
	switch key {
	case "watch_dir":
		AppConfig.WatchDir = value
	case "listen_addr":
		AppConfig.ListenAddr = value

	case "chunk_size":
		if i, err := strconv.Atoi(value); err == nil {
			AppConfig.ChunkSize = i
		}
	case "viewport_size":
		if i, err := strconv.Atoi(value); err == nil {
			AppConfig.ViewportSize = i
		}
	case "query_ttl_seconds":
		if i, err := strconv.Atoi(value); err == nil {
			AppConfig.QueryTTLSeconds = i
		}
	case "aggregate_ttl_seconds":
		if i, err := strconv.Atoi(value); err == nil {
			AppConfig.AggregateTTLSeconds = i
		}
	case "cache_max_entries":
		if i, err := strconv.Atoi(value); err == nil {
			AppConfig.CacheMaxEntries = i
		}
	case "freshness_minutes":
		if i, err := strconv.Atoi(value); err == nil {
			AppConfig.FreshnessMinutes = i
		}
	case "search_limit":
		if i, err := strconv.Atoi(value); err == nil {
			AppConfig.SearchLimit = i
		}

	case "api_rate_limit_per_minute":
		if i, err := strconv.Atoi(value); err == nil {
			AppConfig.APIRateLimitPerMinute = i
		}
	case "json_body_limit_mb":
		if i, err := strconv.Atoi(value); err == nil {
			AppConfig.JSONBodyLimitMB = i
		}

	case "log_level":
		AppConfig.LogLevel = value
	case "enable_json_logging":
		if b, err := strconv.ParseBool(value); err == nil {
			AppConfig.EnableJsonLogging = b
		}

	default:
		return fmt.Errorf("unknown setting key: %s", key)
	}

	return nil
}

// CurrentSettings returns the persistable runtime settings as a string map,
// the shape both the settings API and the store records use.
func CurrentSettings() map[string]string {
	return map[string]string{
		"watch_dir":                 AppConfig.WatchDir,
		"listen_addr":               AppConfig.ListenAddr,
		"chunk_size":                strconv.Itoa(AppConfig.ChunkSize),
		"viewport_size":             strconv.Itoa(AppConfig.ViewportSize),
		"query_ttl_seconds":         strconv.Itoa(AppConfig.QueryTTLSeconds),
		"aggregate_ttl_seconds":     strconv.Itoa(AppConfig.AggregateTTLSeconds),
		"cache_max_entries":         strconv.Itoa(AppConfig.CacheMaxEntries),
		"freshness_minutes":         strconv.Itoa(AppConfig.FreshnessMinutes),
		"search_limit":              strconv.Itoa(AppConfig.SearchLimit),
		"api_rate_limit_per_minute": strconv.Itoa(AppConfig.APIRateLimitPerMinute),
		"json_body_limit_mb":        strconv.Itoa(AppConfig.JSONBodyLimitMB),
		"log_level":                 AppConfig.LogLevel,
		"enable_json_logging":       strconv.FormatBool(AppConfig.EnableJsonLogging),
	}
}

// UpdateSettings applies the given settings to AppConfig and persists the
// result to the store and config file. Unknown keys reject the whole update
// before anything is applied. The settings API calls this.
func UpdateSettings(store database.Store, settings map[string]string) error {
	known := CurrentSettings()
	for key := range settings {
		if _, ok := known[key]; !ok {
			return fmt.Errorf("unknown setting key: %s", key)
		}
	}
	for key, value := range settings {
		if err := applySetting(key, value); err != nil {
			return err
		}
	}
	return SaveConfigToDatabase(store)
}

// SaveConfigToDatabase persists current AppConfig to the store AND config file.
func SaveConfigToDatabase(store database.Store) error {
	if store == nil {
		return fmt.Errorf("store is nil")
	}

	saved := 0
	for key, value := range CurrentSettings() {
		if err := store.Put(catalog.CollectionMeta, settingPrefix+key, []byte(value)); err != nil {
			log.Printf("Warning: Failed to save setting %s: %v", key, err)
			continue
		}
		saved++
	}

	log.Printf("Saved %d settings to database", saved)

	// Also save to config file as a reliable fallback
	if err := SaveConfigToFile(); err != nil {
		log.Printf("Warning: Failed to save config file: %v", err)
	}

	return nil
}
