package config

import (
	"context"
	"fmt"

	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/internal/ratelimiter"
	"github.com/marmos91/dittocat/pkg/adapter"
	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/federation"
	"github.com/marmos91/dittocat/pkg/framework"
	"github.com/marmos91/dittocat/pkg/gc"
	"github.com/marmos91/dittocat/pkg/plugin"
	"github.com/marmos91/dittocat/pkg/plugin/attrpolicy"
	"github.com/marmos91/dittocat/pkg/plugin/checksum"
	"github.com/marmos91/dittocat/pkg/resource"
	"github.com/marmos91/dittocat/pkg/source"
	"github.com/marmos91/dittocat/pkg/transform"
)

// Runtime is everything a configured process needs: the framework, its
// components and the background services around it.
type Runtime struct {
	*Components

	Framework *framework.CatalogFramework

	// Collector is nil unless gc is enabled
	Collector *gc.Collector

	// Adapters are the configured ingest adapters, not yet serving
	Adapters []adapter.Adapter

	Metrics *MetricsResult
}

// NewRuntime builds a Runtime from cfg. Nothing is started.
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Loaded and validated configuration
//
// Returns:
//   - *Runtime: Ready-to-serve runtime; Close it when done
//   - error: If any component fails to initialize
func NewRuntime(ctx context.Context, cfg *Config) (*Runtime, error) {
	m := InitializeMetrics(cfg)

	comps, err := InitializeRegistry(ctx, cfg, m)
	if err != nil {
		return nil, err
	}

	fw, err := CreateFramework(cfg, comps, m)
	if err != nil {
		_ = comps.Close()
		return nil, err
	}

	rt := &Runtime{
		Components: comps,
		Framework:  fw,
		Metrics:    m,
	}

	if m.Server != nil {
		m.Server.SetSourceStatus(func(ctx context.Context) ([]catalog.SourceDescriptor, error) {
			resp, err := fw.GetSourceInfo(ctx, &catalog.SourceInfoRequest{Enterprise: true})
			if err != nil {
				return nil, err
			}
			return resp.Sources, nil
		})
	}

	if cfg.GC.Enabled {
		rt.Collector, err = gc.NewCollector(comps.Catalog, comps.Storage, cfg.GC, m.Catalog)
		if err != nil {
			_ = comps.Close()
			return nil, fmt.Errorf("failed to create collector: %w", err)
		}
	}

	rt.Adapters, err = CreateAdapters(cfg, fw)
	if err != nil {
		_ = comps.Close()
		return nil, err
	}

	return rt, nil
}

// CreateFramework creates the catalog framework over comps.
//
// Plugins run in this order: checksum, attribute policy, attribute access.
func CreateFramework(cfg *Config, comps *Components, m *MetricsResult) (*framework.CatalogFramework, error) {
	if m == nil {
		m = &MetricsResult{}
	}

	plugins := createPlugins(cfg)

	var limiter *ratelimiter.Group
	if cfg.Federation.RateLimit > 0 {
		limiter = ratelimiter.NewGroup(cfg.Federation.RateLimit, cfg.Federation.Burst)
	}

	strategy := federation.NewSortedStrategy(
		federation.Config{
			MaxConcurrency: cfg.Federation.MaxConcurrency,
			SourceTimeout:  cfg.Federation.SourceTimeout,
		},
		federation.WithRateLimiter(limiter),
		federation.WithPlugins(plugins.PreFederatedQuery, plugins.PostFederatedQuery),
		federation.WithMetrics(m.Catalog),
	)

	poller := source.NewPoller(comps.Registry.Sources, source.Config{
		Interval:     cfg.Poller.Interval,
		ProbeTimeout: cfg.Poller.ProbeTimeout,
	})

	defaults := framework.NewDefaultAttributeRegistry()
	for attr, values := range cfg.Framework.DefaultAttributes {
		anyValues := make([]any, len(values))
		for i, v := range values {
			anyValues[i] = v
		}
		defaults.SetDefault(attr, anyValues...)
	}

	opts := []framework.Option{
		framework.WithPoller(poller),
		framework.WithStrategy(strategy),
		framework.WithPlugins(plugins),
		framework.WithTransformers(transform.NewDefaultRegistry()),
		framework.WithMimeResolver(comps.Mime),
		framework.WithDownloader(resource.NewDirectDownloader(cfg.Download)),
		framework.WithDefaultAttributes(defaults),
		framework.WithMetrics(m.Catalog),
	}
	if cfg.Framework.DownloadBaseURL != "" {
		opts = append(opts, framework.WithPostProcessor(
			framework.NewDownloadURLPostProcessor(cfg.Framework.DownloadBaseURL)))
	}

	fw, err := framework.New(cfg.Framework.Config, comps.Registry, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create framework: %w", err)
	}

	logger.Info("Catalog framework %q ready (fanout=%v, sources=%d)",
		fw.ID(), fw.FanoutEnabled(), len(comps.Registry.Sources()))
	return fw, nil
}

// createPlugins registers the enabled bundled plugins.
func createPlugins(cfg *Config) plugin.Set {
	var set plugin.Set
	if cfg.Plugins.Checksum.Enabled {
		set.Register(checksum.New())
	}
	if cfg.Plugins.AttributePolicy.Enabled {
		set.Register(attrpolicy.NewPolicy(cfg.Plugins.AttributePolicy.Config))
		set.Register(attrpolicy.NewAccess())
	}
	return set
}
