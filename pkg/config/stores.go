package config

import (
	"context"
	"fmt"
	"io"

	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/pkg/source"
)

// CreateCatalogStores creates one catalog store per entry of cfg.Stores.
//
// On failure the stores already opened are closed before returning.
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Complete configuration
//
// Returns:
//   - []*source.LocalStore: Stores in configuration order
//   - error: First store that failed to open
func CreateCatalogStores(ctx context.Context, cfg *Config) ([]*source.LocalStore, error) {
	stores := make([]*source.LocalStore, 0, len(cfg.Stores))

	for i, storeCfg := range cfg.Stores {
		logger.Debug("Creating catalog store %q (type: %s)", storeCfg.ID, storeCfg.Type)

		info := catalogInfo{
			ID:          storeCfg.ID,
			Title:       storeCfg.Title,
			Version:     cfg.Framework.Version,
			Description: storeCfg.Description,
		}
		provider, err := createCatalog(ctx, info, storeCfg.Type, storeCfg.Badger)
		if err != nil {
			closeStores(stores)
			return nil, fmt.Errorf("stores[%d] %q: %w", i, storeCfg.ID, err)
		}

		stores = append(stores, source.NewLocalStore(provider, storeCfg.Security))
	}

	return stores, nil
}

// closeStores releases every store holding resources.
func closeStores(stores []*source.LocalStore) {
	for _, s := range stores {
		if c, ok := s.LocalCatalog.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logger.Warn("Failed to close catalog store %q: %v", s.ID(), err)
			}
		}
	}
}
