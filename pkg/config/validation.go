package config

import (
	"fmt"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing the first validation failure.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// Store ids are source ids and must not collide with each other or
	// with the framework
	ids := map[string]bool{cfg.Framework.ID: true}
	for i, store := range cfg.Stores {
		if ids[store.ID] {
			return fmt.Errorf("stores[%d]: duplicate source id %q", i, store.ID)
		}
		ids[store.ID] = true
	}

	if cfg.Framework.Fanout && len(cfg.Monitor) > 0 {
		return fmt.Errorf("monitor: a fanout framework does not accept ingest")
	}
	if len(cfg.Monitor) > 0 && !cfg.Storage.Enabled {
		return fmt.Errorf("monitor: storage must be enabled to ingest files")
	}
	if cfg.GC.Enabled && !cfg.Storage.Enabled {
		return fmt.Errorf("gc: storage must be enabled to collect content")
	}

	dirs := make(map[string]bool)
	for i, m := range cfg.Monitor {
		dir := filepath.Clean(m.Directory)
		if dirs[dir] {
			return fmt.Errorf("monitor[%d]: directory %q is monitored twice", i, m.Directory)
		}
		dirs[dir] = true
	}

	if cfg.Readers.File.Enabled && len(cfg.Readers.File.Roots) == 0 {
		return fmt.Errorf("readers.file: enabled but no roots configured")
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
