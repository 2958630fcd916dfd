package config

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/mime"
	"github.com/marmos91/dittocat/pkg/registry"
	"github.com/marmos91/dittocat/pkg/resource"
	"github.com/marmos91/dittocat/pkg/source"
	"github.com/marmos91/dittocat/pkg/storage"
)

// Components are the registry and the local providers built from
// configuration.
type Components struct {
	Registry *registry.Registry

	// Catalog is the local catalog provider
	Catalog catalog.CatalogProvider

	// Storage is the local storage provider. Nil when storage is disabled.
	Storage *storage.Provider

	// Stores are the configured in-process catalog stores
	Stores []*source.LocalStore

	// Mime is shared by the file reader and the framework
	Mime *mime.Resolver
}

// Close releases the catalogs holding resources.
func (c *Components) Close() error {
	var errs []error
	if closer, ok := c.Catalog.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("catalog: %w", err))
		}
	}
	closeStores(c.Stores)
	return errors.Join(errs...)
}

// InitializeRegistry creates a fully configured Registry from the provided
// configuration.
//
// This function orchestrates the complete initialization process:
//  1. Creates the local catalog provider and binds it
//  2. Creates the content store and binds the storage provider
//  3. Registers the resource readers
//  4. Creates and registers the catalog stores
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - cfg: Complete configuration loaded from config file
//   - m: Metrics collectors; may be nil
//
// Returns:
//   - *Components: Registry and providers, ready for the framework
//   - error: If any component fails to initialize
//
// Example:
//
//	cfg, _ := config.Load("config.yaml")
//	comps, err := config.InitializeRegistry(ctx, cfg, nil)
//	if err != nil {
//	    log.Fatalf("Failed to initialize registry: %v", err)
//	}
//	defer comps.Close()
func InitializeRegistry(ctx context.Context, cfg *Config, m *MetricsResult) (*Components, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is nil")
	}
	if m == nil {
		m = &MetricsResult{}
	}

	logger.Debug("Initializing registry from configuration")

	comps := &Components{
		Registry: registry.NewRegistry(),
		Mime:     mime.NewResolver(cfg.Framework.MimeMappings),
	}

	// ========================================================================
	// Step 1: Local catalog
	// ========================================================================

	provider, err := CreateCatalogProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog: %w", err)
	}
	comps.Catalog = provider
	comps.Registry.SetCatalogProviders(provider)
	logger.Debug("Catalog provider %q bound (type: %s)", cfg.Framework.ID, cfg.Catalog.Type)

	// ========================================================================
	// Step 2: Storage
	// ========================================================================

	if cfg.Storage.Enabled {
		store, err := CreateContentStore(ctx, &cfg.Storage, m.S3)
		if err != nil {
			_ = comps.Close()
			return nil, fmt.Errorf("failed to create content store: %w", err)
		}
		comps.Storage = storage.New(store, storage.WithMetrics(m.Catalog))
		comps.Registry.SetStorageProviders(comps.Storage)
		logger.Debug("Storage provider bound (type: %s)", cfg.Storage.Type)
	}

	// ========================================================================
	// Step 3: Resource readers
	// ========================================================================

	if err := registerReaders(comps, cfg); err != nil {
		_ = comps.Close()
		return nil, err
	}

	// ========================================================================
	// Step 4: Catalog stores
	// ========================================================================

	stores, err := CreateCatalogStores(ctx, cfg)
	if err != nil {
		_ = comps.Close()
		return nil, err
	}
	comps.Stores = stores
	for _, store := range stores {
		if err := comps.Registry.RegisterCatalogStore(store); err != nil {
			_ = comps.Close()
			return nil, fmt.Errorf("failed to register catalog store %q: %w", store.ID(), err)
		}
		logger.Debug("Catalog store %q registered", store.ID())
	}

	return comps, nil
}

// registerReaders adds the enabled resource readers in lookup order.
func registerReaders(comps *Components, cfg *Config) error {
	var readers []resource.Reader
	if cfg.Storage.Enabled {
		readers = append(readers, resource.NewContentReader(comps.Registry.StorageProvider))
	}
	if cfg.Readers.File.Enabled {
		readers = append(readers, resource.NewFileReader(cfg.Readers.File.Roots, comps.Mime))
	}
	if cfg.Readers.HTTP.Enabled {
		readers = append(readers, resource.NewHTTPReader(cfg.Readers.HTTP.Timeout))
	}

	for _, r := range readers {
		if err := comps.Registry.RegisterReader(r); err != nil {
			return fmt.Errorf("failed to register resource reader: %w", err)
		}
	}
	logger.Debug("Registered %d resource reader(s)", len(readers))
	return nil
}
