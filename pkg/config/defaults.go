package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default Strategy:
//   - Zero values (0, "", nil) are replaced with defaults
//   - Explicit values are preserved
//   - Store-specific defaults are handled by the factories
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyFrameworkDefaults(&cfg.Framework)
	applyCatalogDefaults(&cfg.Catalog)
	applyStoresDefaults(cfg.Stores)
	applyStorageDefaults(&cfg.Storage)
	applyFederationDefaults(&cfg.Federation)
	applyPollerDefaults(&cfg.Poller)
	applyDownloadDefaults(cfg)
	applyReadersDefaults(&cfg.Readers)
	applyGCDefaults(cfg)
	applyMetricsDefaults(&cfg.Metrics)
}

// dataDir is the parent of the default on-disk locations.
func dataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "dittocat")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "dittocat")
	}
	return filepath.Join(home, ".local", "share", "dittocat")
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyFrameworkDefaults(cfg *FrameworkConfig) {
	if cfg.ID == "" {
		cfg.ID = "dittocat"
	}
	if cfg.Title == "" {
		cfg.Title = "DittoCat"
	}
	if cfg.Version == "" {
		cfg.Version = "1.0"
	}
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = 2 * time.Minute
	}
}

func applyCatalogDefaults(cfg *CatalogConfig) {
	if cfg.Type == "" {
		cfg.Type = "badger"
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if _, ok := cfg.Badger["db_path"]; !ok {
		cfg.Badger["db_path"] = filepath.Join(dataDir(), "catalog")
	}
}

func applyStoresDefaults(stores []StoreConfig) {
	for i := range stores {
		store := &stores[i]
		if store.Type == "" {
			store.Type = "memory"
		}
		if store.Type == "badger" {
			if store.Badger == nil {
				store.Badger = make(map[string]any)
			}
			if _, ok := store.Badger["db_path"]; !ok {
				store.Badger["db_path"] = filepath.Join(dataDir(), "stores", store.ID)
			}
		}
	}
}

// applyStorageDefaults sets content store defaults.
func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}
	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if _, ok := cfg.Filesystem["path"]; !ok {
		cfg.Filesystem["path"] = filepath.Join(dataDir(), "content")
	}
}

func applyFederationDefaults(cfg *FederationConfig) {
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = 8
	}
	if cfg.SourceTimeout == 0 {
		cfg.SourceTimeout = 30 * time.Second
	}
	if cfg.RateLimit > 0 && cfg.Burst == 0 {
		cfg.Burst = cfg.RateLimit
	}
}

func applyPollerDefaults(cfg *PollerConfig) {
	if cfg.Interval == 0 {
		cfg.Interval = time.Minute
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
}

func applyDownloadDefaults(cfg *Config) {
	if cfg.Download.Attempts == 0 {
		cfg.Download.Attempts = 3
	}
	if cfg.Download.RetryDelay == 0 {
		cfg.Download.RetryDelay = time.Second
	}
}

func applyReadersDefaults(cfg *ReadersConfig) {
	if cfg.HTTP.Timeout == 0 {
		cfg.HTTP.Timeout = 30 * time.Second
	}
}

func applyGCDefaults(cfg *Config) {
	if cfg.GC.Interval == 0 {
		cfg.GC.Interval = 24 * time.Hour
	}
	if cfg.GC.BatchSize == 0 {
		cfg.GC.BatchSize = 100
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Storage: StorageConfig{Enabled: true},
	}
	ApplyDefaults(cfg)
	return cfg
}
