package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"gopkg.in/yaml.v3"
)

// InitConfig writes a commented default configuration to the default
// location and returns its path.
//
// Parameters:
//   - force: Overwrite an existing file
//
// Returns:
//   - string: Path of the written file
//   - error: If the file exists and force is false, or on write failure
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a commented default configuration to path,
// creating parent directories.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateYAMLWithComments renders cfg through the commented template and
// checks the result parses as YAML.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var buf bytes.Buffer
	if err := configTemplate.Execute(&buf, cfg); err != nil {
		return "", fmt.Errorf("failed to render config template: %w", err)
	}

	var check map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &check); err != nil {
		return "", fmt.Errorf("rendered config is not valid YAML: %w", err)
	}

	return buf.String(), nil
}

var configTemplate = template.Must(template.New("config").Parse(`# DittoCat Configuration File
#
# Every value can be overridden with a DITTOCAT_ environment variable,
# e.g. DITTOCAT_LOGGING_LEVEL=DEBUG.

logging:
  # DEBUG, INFO, WARN or ERROR
  level: {{ .Logging.Level }}
  # text or json
  format: {{ .Logging.Format }}
  # stdout, stderr or a file path
  output: {{ .Logging.Output }}

server:
  shutdown_timeout: {{ .Server.ShutdownTimeout }}

framework:
  id: {{ printf "%q" .Framework.ID }}
  title: {{ printf "%q" .Framework.Title }}
  version: {{ printf "%q" .Framework.Version }}
  organization: ""
  description: ""
  # A fanout framework hides its sources behind its own id and refuses
  # writes
  fanout: {{ .Framework.Fanout }}
  query_timeout: {{ .Framework.QueryTimeout }}
  # Base URL for resource-download-url on query results; empty disables
  download_base_url: ""
  # Extension to MIME type overrides, e.g. ".geojson": application/geo+json
  mime_mappings: {}
  # Attribute values applied to ingested metacards missing them
  default_attributes: {}

catalog:
  # memory or badger
  type: {{ .Catalog.Type }}
  badger:
    db_path: {{ printf "%q" (index .Catalog.Badger "db_path") }}

# Extra in-process catalogs taking part in federation and writes:
# stores:
#   - id: archive
#     type: badger
#     badger:
#       db_path: /var/lib/dittocat/archive
#     security:
#       clearance: [secret]
stores: []

storage:
  enabled: {{ .Storage.Enabled }}
  # filesystem, memory or s3
  type: {{ .Storage.Type }}
  filesystem:
    path: {{ printf "%q" (index .Storage.Filesystem "path") }}
  # s3:
  #   region: us-east-1
  #   bucket: dittocat
  #   key_prefix: content/
  #   endpoint: http://localhost:9000
  #   access_key_id: ""
  #   secret_access_key: ""

federation:
  max_concurrency: {{ .Federation.MaxConcurrency }}
  source_timeout: {{ .Federation.SourceTimeout }}
  # Per-source requests per second; 0 disables
  rate_limit: {{ .Federation.RateLimit }}
  burst: {{ .Federation.Burst }}

poller:
  interval: {{ .Poller.Interval }}
  probe_timeout: {{ .Poller.ProbeTimeout }}

download:
  attempts: {{ .Download.Attempts }}
  retry_delay: {{ .Download.RetryDelay }}

readers:
  file:
    enabled: {{ .Readers.File.Enabled }}
    roots: []
  http:
    enabled: {{ .Readers.HTTP.Enabled }}
    timeout: {{ .Readers.HTTP.Timeout }}

plugins:
  checksum:
    enabled: {{ .Plugins.Checksum.Enabled }}
  attribute_policy:
    enabled: {{ .Plugins.AttributePolicy.Enabled }}
    # metacard attribute: policy key
    attributes: {}
    # request property: policy key
    properties: {}

# Directories whose files are ingested:
# monitor:
#   - directory: /srv/drop
#     # move, delete or in_place
#     strategy: move
#     settle: 500ms
monitor: []

gc:
  enabled: {{ .GC.Enabled }}
  interval: {{ .GC.Interval }}
  batch_size: {{ .GC.BatchSize }}
  dry_run: {{ .GC.DryRun }}

metrics:
  enabled: {{ .Metrics.Enabled }}
  port: {{ .Metrics.Port }}
`))
