package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/marmos91/dittocat/pkg/adapter/monitor"
	"github.com/marmos91/dittocat/pkg/framework"
	"github.com/marmos91/dittocat/pkg/gc"
	"github.com/marmos91/dittocat/pkg/plugin/attrpolicy"
	"github.com/marmos91/dittocat/pkg/resource"
)

// Config represents the complete DittoCat configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DITTOCAT_*)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
//
// Store Configuration Pattern:
// Catalog and content stores are selected by a Type field. Each type has
// its own options map, decoded by the matching factory, and only the map
// of the selected type is used.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains lifecycle settings of the long-running process
	Server ServerConfig `mapstructure:"server"`

	// Framework is the identity and behaviour of the catalog framework
	Framework FrameworkConfig `mapstructure:"framework"`

	// Catalog selects the local catalog provider
	Catalog CatalogConfig `mapstructure:"catalog"`

	// Stores are additional in-process catalogs registered as catalog
	// stores
	Stores []StoreConfig `mapstructure:"stores" validate:"dive"`

	// Storage selects the content store behind the storage provider
	Storage StorageConfig `mapstructure:"storage"`

	// Federation tunes the sorted federation strategy
	Federation FederationConfig `mapstructure:"federation"`

	// Poller tunes source availability polling
	Poller PollerConfig `mapstructure:"poller"`

	// Download configures resource download retries
	Download resource.DownloadConfig `mapstructure:"download"`

	// Readers enables resource readers beyond the content reader
	Readers ReadersConfig `mapstructure:"readers"`

	// Plugins enables the bundled plugins
	Plugins PluginsConfig `mapstructure:"plugins"`

	// Monitor lists directories ingested by the directory monitor
	Monitor []monitor.Config `mapstructure:"monitor" validate:"dive"`

	// GC configures the orphaned content collector
	GC gc.Config `mapstructure:"gc"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains process-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
}

// FrameworkConfig extends the framework settings with the collaborators
// built from configuration.
type FrameworkConfig struct {
	framework.Config `mapstructure:",squash"`

	// DownloadBaseURL enables resource-download-url on query results.
	// Empty disables it.
	DownloadBaseURL string `mapstructure:"download_base_url" validate:"omitempty,url"`

	// MimeMappings maps file extensions to MIME types ahead of sniffing
	MimeMappings map[string]string `mapstructure:"mime_mappings"`

	// DefaultAttributes are applied to ingested metacards missing them
	DefaultAttributes map[string][]string `mapstructure:"default_attributes"`
}

// CatalogConfig selects the local catalog provider.
type CatalogConfig struct {
	// Type specifies which provider implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" validate:"required,oneof=memory badger"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger"`
}

// StoreConfig defines one additional catalog store.
type StoreConfig struct {
	// ID is the store's source id. Must differ from the framework id.
	ID string `mapstructure:"id" validate:"required"`

	// Type specifies the catalog implementation: memory or badger
	Type string `mapstructure:"type" validate:"required,oneof=memory badger"`

	Title       string `mapstructure:"title"`
	Description string `mapstructure:"description"`

	// Badger contains BadgerDB-specific configuration
	Badger map[string]any `mapstructure:"badger"`

	// Security lists the subject attributes required to query the store
	Security map[string][]string `mapstructure:"security"`
}

// StorageConfig specifies the content store behind the storage provider.
//
// The Type field determines which store implementation is used.
// Only the corresponding type-specific configuration section is used.
type StorageConfig struct {
	// Enabled turns content ingest and the content reader on
	Enabled bool `mapstructure:"enabled"`

	// Type specifies which content store implementation to use
	// Valid values: filesystem, memory, s3
	Type string `mapstructure:"type" validate:"required,oneof=filesystem memory s3"`

	// Filesystem contains filesystem-specific configuration
	// Only used when Type = "filesystem"
	Filesystem map[string]any `mapstructure:"filesystem"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3"`
}

// FederationConfig tunes the sorted strategy.
type FederationConfig struct {
	// MaxConcurrency bounds the sources queried at once
	MaxConcurrency int `mapstructure:"max_concurrency" validate:"gte=1"`

	// SourceTimeout bounds a single source query
	SourceTimeout time.Duration `mapstructure:"source_timeout" validate:"gt=0"`

	// RateLimit is the per-source query rate in requests per second.
	// 0 disables rate limiting.
	RateLimit uint `mapstructure:"rate_limit"`

	// Burst is the per-source burst size
	Burst uint `mapstructure:"burst"`
}

// PollerConfig tunes availability polling.
type PollerConfig struct {
	Interval     time.Duration `mapstructure:"interval" validate:"gt=0"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" validate:"gt=0"`
}

// ReadersConfig enables resource readers.
type ReadersConfig struct {
	File FileReaderConfig `mapstructure:"file"`
	HTTP HTTPReaderConfig `mapstructure:"http"`
}

// FileReaderConfig serves file: resource URIs below Roots.
type FileReaderConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Roots   []string `mapstructure:"roots"`
}

// HTTPReaderConfig serves http and https resource URIs.
type HTTPReaderConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PluginsConfig enables the bundled plugins.
type PluginsConfig struct {
	Checksum        ChecksumPluginConfig        `mapstructure:"checksum"`
	AttributePolicy AttributePolicyPluginConfig `mapstructure:"attribute_policy"`
}

type ChecksumPluginConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// AttributePolicyPluginConfig enables the attribute policy and access
// plugins.
type AttributePolicyPluginConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	attrpolicy.Config `mapstructure:",squash"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Port of the /metrics HTTP server
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTOCAT_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	// Attribute names and extensions contain dots, so keys are split on
	// "::" instead
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: DITTOCAT_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DITTOCAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
	v.AutomaticEnv()

	// Booleans whose default is true must be known to viper
	v.SetDefault("storage"+keyDelimiter+"enabled", true)

	// AutomaticEnv only applies to keys viper knows about.
	for _, key := range envKeys {
		_ = v.BindEnv(strings.ReplaceAll(key, ".", keyDelimiter))
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

const keyDelimiter = "::"

// envKeys are the scalar keys overridable from the environment without a
// config file.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"server.shutdown_timeout",
	"framework.id",
	"framework.title",
	"framework.fanout",
	"framework.staging_dir",
	"framework.download_base_url",
	"framework.query_timeout",
	"catalog.type",
	"storage.enabled",
	"storage.type",
	"federation.max_concurrency",
	"federation.source_timeout",
	"gc.enabled",
	"gc.dry_run",
	"metrics.enabled",
	"metrics.port",
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		// Config file not found is acceptable - use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittocat")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittocat")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
