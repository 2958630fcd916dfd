package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestApplyDefaults_Empty(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")

	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" || cfg.Logging.Format != "text" || cfg.Logging.Output != "stdout" {
		t.Errorf("Unexpected logging defaults: %+v", cfg.Logging)
	}
	if cfg.Framework.ID != "dittocat" {
		t.Errorf("Expected default framework id, got %q", cfg.Framework.ID)
	}
	if cfg.Framework.QueryTimeout != 2*time.Minute {
		t.Errorf("Expected default query timeout 2m, got %v", cfg.Framework.QueryTimeout)
	}
	if cfg.Catalog.Type != "badger" {
		t.Errorf("Expected default catalog type badger, got %q", cfg.Catalog.Type)
	}
	if cfg.Catalog.Badger["db_path"] != filepath.Join("/data", "dittocat", "catalog") {
		t.Errorf("Unexpected default db_path: %v", cfg.Catalog.Badger["db_path"])
	}
	if cfg.Storage.Filesystem["path"] != filepath.Join("/data", "dittocat", "content") {
		t.Errorf("Unexpected default content path: %v", cfg.Storage.Filesystem["path"])
	}
	if cfg.Poller.Interval != time.Minute || cfg.Poller.ProbeTimeout != 10*time.Second {
		t.Errorf("Unexpected poller defaults: %+v", cfg.Poller)
	}
	if cfg.Download.Attempts != 3 {
		t.Errorf("Expected 3 download attempts, got %d", cfg.Download.Attempts)
	}
	if cfg.Metrics.Port != 9090 {
		t.Errorf("Expected metrics port 9090, got %d", cfg.Metrics.Port)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging:    LoggingConfig{Level: "warn", Format: "json", Output: "stderr"},
		Catalog:    CatalogConfig{Type: "memory", Badger: map[string]any{"db_path": "/custom"}},
		Federation: FederationConfig{MaxConcurrency: 2, RateLimit: 10, Burst: 3},
		Metrics:    MetricsConfig{Port: 9100},
	}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level normalized to WARN, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Output != "stderr" {
		t.Errorf("Explicit logging values overwritten: %+v", cfg.Logging)
	}
	if cfg.Catalog.Badger["db_path"] != "/custom" {
		t.Errorf("Explicit db_path overwritten: %v", cfg.Catalog.Badger["db_path"])
	}
	if cfg.Federation.MaxConcurrency != 2 || cfg.Federation.Burst != 3 {
		t.Errorf("Explicit federation values overwritten: %+v", cfg.Federation)
	}
	if cfg.Metrics.Port != 9100 {
		t.Errorf("Explicit metrics port overwritten: %d", cfg.Metrics.Port)
	}
}

func TestApplyDefaults_Stores(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")

	cfg := &Config{Stores: []StoreConfig{
		{ID: "a"},
		{ID: "b", Type: "badger"},
	}}
	ApplyDefaults(cfg)

	if cfg.Stores[0].Type != "memory" {
		t.Errorf("Expected store type to default to memory, got %q", cfg.Stores[0].Type)
	}
	if cfg.Stores[1].Badger["db_path"] != filepath.Join("/data", "dittocat", "stores", "b") {
		t.Errorf("Unexpected store db_path: %v", cfg.Stores[1].Badger["db_path"])
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if !cfg.Storage.Enabled {
		t.Error("Expected storage enabled in the default config")
	}
	if cfg.Storage.Type != "filesystem" {
		t.Errorf("Expected filesystem storage, got %q", cfg.Storage.Type)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}
