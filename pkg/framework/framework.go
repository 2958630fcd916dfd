// Package framework implements the catalog framework: the orchestration
// layer every ingest, query and resource request passes through.
//
// The framework owns no persistent state. It routes requests to the local
// catalog provider, to remote catalog stores and to federated sources held
// by a registry.Registry, and runs the plugin chains around each operation:
//
//	policy -> access -> pre -> provider/federation -> post
//
// Every entry point returns either a response or a *catalog.Error. Failures
// confined to one source or store are reported inside the response as
// catalog.ProcessingDetails instead.
package framework

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/federation"
	"github.com/marmos91/dittocat/pkg/mime"
	"github.com/marmos91/dittocat/pkg/plugin"
	"github.com/marmos91/dittocat/pkg/registry"
	"github.com/marmos91/dittocat/pkg/resource"
	"github.com/marmos91/dittocat/pkg/source"
	"github.com/marmos91/dittocat/pkg/transform"
)

// Config contains the identity and behaviour settings of a framework.
type Config struct {
	// ID is the framework's source id. Local results carry it.
	ID string `mapstructure:"id" validate:"required"`

	Title        string `mapstructure:"title"`
	Version      string `mapstructure:"version"`
	Organization string `mapstructure:"organization"`
	Description  string `mapstructure:"description"`

	// Fanout turns the framework into a read-only proxy hiding every
	// federated source behind its own id.
	Fanout bool `mapstructure:"fanout"`

	// StagingDir is where ingested content is staged. Empty means the
	// system temp directory.
	StagingDir string `mapstructure:"staging_dir"`

	// QueryTimeout bounds a whole federated query when the query does not
	// carry its own timeout. Zero means none.
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

// CatalogFramework is the entry point of the catalog.
//
// Thread Safety: All methods are safe for concurrent use. A single request
// value must not be shared between concurrent calls.
type CatalogFramework struct {
	config   Config
	registry *registry.Registry

	poller       *source.Poller
	strategy     federation.Strategy
	plugins      plugin.Set
	transformers *transform.Registry
	mime         *mime.Resolver
	downloader   resource.Downloader
	injectors    []AttributeInjector
	defaults     *DefaultAttributeRegistry
	post         QueryResponsePostProcessor
	metrics      Metrics
}

// Option configures optional collaborators of a framework.
type Option func(*CatalogFramework)

// WithPoller sets the availability cache. By default a poller over the
// registry's sources is created but not started.
func WithPoller(p *source.Poller) Option {
	return func(f *CatalogFramework) { f.poller = p }
}

// WithStrategy sets the default federation strategy.
func WithStrategy(s federation.Strategy) Option {
	return func(f *CatalogFramework) { f.strategy = s }
}

// WithPlugins sets the plugin chains.
func WithPlugins(set plugin.Set) Option {
	return func(f *CatalogFramework) { f.plugins = set }
}

func WithTransformers(r *transform.Registry) Option {
	return func(f *CatalogFramework) { f.transformers = r }
}

func WithMimeResolver(r *mime.Resolver) Option {
	return func(f *CatalogFramework) { f.mime = r }
}

func WithDownloader(d resource.Downloader) Option {
	return func(f *CatalogFramework) { f.downloader = d }
}

// WithAttributeInjectors adds injectors run on every ingested metacard.
func WithAttributeInjectors(injectors ...AttributeInjector) Option {
	return func(f *CatalogFramework) { f.injectors = append(f.injectors, injectors...) }
}

func WithDefaultAttributes(r *DefaultAttributeRegistry) Option {
	return func(f *CatalogFramework) { f.defaults = r }
}

// WithPostProcessor sets the processor run on every public query response.
func WithPostProcessor(p QueryResponsePostProcessor) Option {
	return func(f *CatalogFramework) { f.post = p }
}

// WithMetrics records operation metrics. Nil keeps the no-op.
func WithMetrics(m Metrics) Option {
	return func(f *CatalogFramework) {
		if m != nil {
			f.metrics = m
		}
	}
}

// New creates a framework over reg.
//
// Parameters:
//   - config: identity and behaviour settings; ID is required
//   - reg: the sources, stores, readers and providers to route to
//   - opts: optional collaborators; every one has a default
//
// Returns:
//   - *CatalogFramework: ready to serve requests
//   - error: if the configuration is invalid
func New(config Config, reg *registry.Registry, opts ...Option) (*CatalogFramework, error) {
	if config.ID == "" {
		return nil, fmt.Errorf("framework id is required")
	}
	if reg == nil {
		return nil, fmt.Errorf("framework needs a registry")
	}
	if config.Title == "" {
		config.Title = config.ID
	}

	f := &CatalogFramework{
		config:   config,
		registry: reg,
		metrics:  noopMetrics{},
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.poller == nil {
		f.poller = source.NewPoller(reg.Sources, source.Config{})
	}
	if f.strategy == nil {
		f.strategy = federation.NewSortedStrategy(federation.Config{},
			federation.WithPlugins(f.plugins.PreFederatedQuery, f.plugins.PostFederatedQuery))
	}
	if f.transformers == nil {
		f.transformers = transform.NewDefaultRegistry()
	}
	if f.mime == nil {
		f.mime = mime.NewResolver(nil)
	}
	if f.downloader == nil {
		f.downloader = resource.NewDirectDownloader(resource.DownloadConfig{})
	}
	if f.defaults == nil {
		f.defaults = NewDefaultAttributeRegistry()
	}

	if p := reg.CatalogProvider(); p != nil {
		p.MaskID(config.ID)
	}

	return f, nil
}

// ID returns the framework's source id.
func (f *CatalogFramework) ID() string {
	return f.config.ID
}

// FanoutEnabled reports whether the framework runs as a fanout proxy.
func (f *CatalogFramework) FanoutEnabled() bool {
	return f.config.Fanout
}

// SourceIDs returns the ids a client may address: the framework's own id
// followed by the federated source ids. A fanout proxy exposes only its
// own id.
func (f *CatalogFramework) SourceIDs() []string {
	ids := []string{f.config.ID}
	if f.config.Fanout {
		return ids
	}
	return append(ids, f.registry.FederatedSourceIDs()...)
}

// BindCatalogProviders replaces the ranked list of local catalog providers.
// Each provider is masked with the framework id before it becomes visible.
func (f *CatalogFramework) BindCatalogProviders(providers ...catalog.CatalogProvider) {
	for _, p := range providers {
		if p != nil {
			p.MaskID(f.config.ID)
		}
	}
	f.registry.SetCatalogProviders(providers...)
}

// Registry returns the registry the framework routes through.
func (f *CatalogFramework) Registry() *registry.Registry {
	return f.registry
}

// Poller returns the availability cache.
func (f *CatalogFramework) Poller() *source.Poller {
	return f.poller
}

// Transformers returns the transformer registry.
func (f *CatalogFramework) Transformers() *transform.Registry {
	return f.transformers
}

// ============================================================================
// Helpers shared by every operation
// ============================================================================

func (f *CatalogFramework) isLocalID(id string) bool {
	return id == "" || id == f.config.ID
}

// observe is deferred by every entry point. It turns a panic or an error
// that is not a *catalog.Error into a KindInternal error of the entry
// point's class, and records the outcome.
func (f *CatalogFramework) observe(op string, class catalog.ErrorClass, start time.Time, errp *error) {
	if r := recover(); r != nil {
		logger.Error("Panic during %s: %v\n%s", op, r, debug.Stack())
		*errp = catalog.NewError(class, catalog.KindInternal, "internal error during "+op, fmt.Errorf("panic: %v", r))
	}

	if err := *errp; err != nil {
		var cerr *catalog.Error
		if !errors.As(err, &cerr) {
			logger.Error("Unexpected %s failure: %v", op, err)
			*errp = catalog.NewError(class, catalog.KindInternal, "internal error during "+op, err)
		}
	}

	f.metrics.ObserveOperation(op, outcomeOf(*errp), time.Since(start))
}

// chainError tags a failed policy or access chain (or a stop-processing
// error from a soft chain) as a veto of class.
func chainError(class catalog.ErrorClass, chain string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return catalog.NewError(class, catalog.KindInternal, chain+" interrupted", err)
	}
	return catalog.NewError(class, catalog.KindPolicyVeto, chain+" stopped the operation", err)
}

// cleanupContext keeps cleanup running after the caller gave up.
func cleanupContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
