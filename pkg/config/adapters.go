package config

import (
	"fmt"

	"github.com/marmos91/dittocat/pkg/adapter"
	"github.com/marmos91/dittocat/pkg/adapter/monitor"
)

// CreateAdapters creates the ingest adapters from configuration and binds
// them to ingester.
//
// Parameters:
//   - cfg: Complete configuration
//   - ingester: Receiver of ingested content, usually the framework
//
// Returns:
//   - []adapter.Adapter: Adapters ready to Serve
//   - error: Invalid adapter configuration
func CreateAdapters(cfg *Config, ingester adapter.Ingester) ([]adapter.Adapter, error) {
	adapters := make([]adapter.Adapter, 0, len(cfg.Monitor))

	for i, monitorCfg := range cfg.Monitor {
		m, err := monitor.New(monitorCfg)
		if err != nil {
			return nil, fmt.Errorf("monitor[%d]: %w", i, err)
		}
		m.SetIngester(ingester)
		adapters = append(adapters, m)
	}

	return adapters, nil
}
