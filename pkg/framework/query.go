package framework

import (
	"context"
	"time"

	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/federation"
	"github.com/marmos91/dittocat/pkg/filter"
	"github.com/marmos91/dittocat/pkg/plugin"
	"github.com/marmos91/dittocat/pkg/registry"
)

// queryOptions selects the parts of the query pipeline an internal caller
// needs. The zero value is the bare federation path used for existing
// metacard lookups.
type queryOptions struct {
	// plugins runs the policy, access and pre/post query chains and the
	// response post-processor.
	plugins bool

	// rename hides federated source ids behind the framework id when the
	// framework runs as a fanout proxy.
	rename bool
}

// Query runs req against the sources its scope resolves to using the
// default federation strategy.
//
// Failures of single sources are reported in the response's Details. The
// call fails only when the request is malformed, a plugin vetoes it, or no
// source is left to query.
func (f *CatalogFramework) Query(ctx context.Context, req *catalog.QueryRequest) (resp *catalog.QueryResponse, err error) {
	defer f.observe(opQuery, catalog.ClassQuery, time.Now(), &err)
	return f.query(ctx, req, nil, queryOptions{plugins: true, rename: true})
}

// QueryWithStrategy is Query with a caller-supplied federation strategy.
// A nil strategy selects the default one.
func (f *CatalogFramework) QueryWithStrategy(ctx context.Context, req *catalog.QueryRequest, strategy federation.Strategy) (resp *catalog.QueryResponse, err error) {
	defer f.observe(opQuery, catalog.ClassQuery, time.Now(), &err)
	return f.query(ctx, req, strategy, queryOptions{plugins: true, rename: true})
}

func (f *CatalogFramework) query(ctx context.Context, req *catalog.QueryRequest, strategy federation.Strategy, opts queryOptions) (*catalog.QueryResponse, error) {
	// ========================================================================
	// Step 1: Validate and scope
	// ========================================================================

	if err := validateQueryRequest(req); err != nil {
		return nil, err
	}
	if f.config.Fanout {
		if err := f.fanoutScope(req); err != nil {
			return nil, err
		}
	}

	// ========================================================================
	// Step 2: Policy, access and pre-query plugins
	// ========================================================================

	if opts.plugins {
		policy, err := f.runPolicy(ctx, catalog.ClassQuery, "query", func(ctx context.Context, p plugin.PolicyPlugin) (plugin.PolicyResponse, error) {
			return p.QueryPolicy(ctx, req.Query, req.Properties.Snapshot())
		})
		if err != nil {
			return nil, err
		}
		applyOperationPolicy(&req.Properties, policy.OperationPolicy)

		req, err = plugin.RunHardChain(ctx, "access", f.plugins.Access, req, func(ctx context.Context, p plugin.AccessPlugin, r *catalog.QueryRequest) (*catalog.QueryRequest, error) {
			return p.PreQuery(ctx, r)
		})
		if err != nil {
			return nil, chainError(catalog.ClassQuery, "access plugin", err)
		}

		req, err = plugin.RunSoftChain(ctx, "pre-query", f.plugins.PreQuery, req, func(ctx context.Context, p plugin.PreQueryPlugin, r *catalog.QueryRequest) (*catalog.QueryRequest, error) {
			return p.ProcessQuery(ctx, r)
		})
		if err != nil {
			return nil, chainError(catalog.ClassQuery, "pre-query plugin", err)
		}
		if err := validateQueryRequest(req); err != nil {
			return nil, err
		}
	}

	if !filter.References(req.Query.Filter, catalog.AttrTags) {
		scoped := *req
		scoped.Query.Filter = filter.AllOf(req.Query.Filter, defaultTagFilter())
		req = &scoped
	}

	// ========================================================================
	// Step 3: Federate
	// ========================================================================

	resp, err := f.federate(ctx, req, strategy)
	if err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 4: Post-query plugins
	// ========================================================================

	if opts.plugins {
		for _, r := range resp.Results {
			if r == nil || r.Metacard == nil {
				continue
			}
			policy, err := f.runPolicy(ctx, catalog.ClassQuery, "result", func(ctx context.Context, p plugin.PolicyPlugin) (plugin.PolicyResponse, error) {
				return p.ResultPolicy(ctx, r, resp.Properties.Snapshot())
			})
			if err != nil {
				return nil, err
			}
			applyItemPolicy(r.Metacard, policy.ItemPolicy)
			applyOperationPolicy(&resp.Properties, policy.OperationPolicy)
		}

		resp, err = plugin.RunHardChain(ctx, "access", f.plugins.Access, resp, func(ctx context.Context, p plugin.AccessPlugin, r *catalog.QueryResponse) (*catalog.QueryResponse, error) {
			return p.PostQuery(ctx, r)
		})
		if err != nil {
			return nil, chainError(catalog.ClassQuery, "access plugin", err)
		}

		resp, err = plugin.RunSoftChain(ctx, "post-query", f.plugins.PostQuery, resp, func(ctx context.Context, p plugin.PostQueryPlugin, r *catalog.QueryResponse) (*catalog.QueryResponse, error) {
			return p.ProcessQueryResponse(ctx, r)
		})
		if err != nil {
			return nil, chainError(catalog.ClassQuery, "post-query plugin", err)
		}
	}

	// ========================================================================
	// Step 5: Rename, post-process and normalize
	// ========================================================================

	if f.config.Fanout && opts.rename {
		resp = f.renameSources(resp)
	}
	if opts.plugins && f.post != nil {
		f.post.Process(resp)
	}

	resp, err = validateFixQueryResponse(resp, req)
	if err != nil {
		return nil, err
	}
	if opts.plugins {
		f.metrics.ObserveProcessingDetails(opQuery, len(resp.Details))
	}
	return resp, nil
}

// federate resolves the request's sources and hands them to the strategy.
// Sources excluded on the way are merged into the response's details.
func (f *CatalogFramework) federate(ctx context.Context, req *catalog.QueryRequest, strategy federation.Strategy) (*catalog.QueryResponse, error) {
	sources, details := f.resolveSources(req)
	if len(sources) == 0 {
		logger.Debug("Query resolved no sources: %v", details)
		return nil, catalog.FederationError(catalog.KindUnavailable, "no sites could be resolved", nil)
	}

	if strategy == nil {
		strategy = f.strategy
	}

	timeout := req.Query.Timeout
	if timeout <= 0 {
		timeout = f.config.QueryTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := strategy.Federate(ctx, sources, req)
	if err != nil {
		return nil, catalog.FederationError(catalog.KindRemoteDispatch, "federated query failed", err)
	}
	if resp == nil {
		return nil, catalog.FederationError(catalog.KindInternal, "federation strategy returned no response", nil)
	}

	resp.Details = catalog.MergeDetails(resp.Details, details)
	return resp, nil
}

// remoteSources lists the enterprise scope beyond the local provider:
// federated sources, connected sources and catalog stores.
func (f *CatalogFramework) remoteSources() []catalog.Source {
	var out []catalog.Source
	for _, src := range f.registry.FederatedSources() {
		out = append(out, src)
	}
	for _, conn := range f.registry.ConnectedSources() {
		out = append(out, conn)
	}
	for _, store := range f.registry.CatalogStores() {
		out = append(out, store)
	}
	return out
}

// remoteSource finds a non-local source by id.
func (f *CatalogFramework) remoteSource(id string) (catalog.Source, bool) {
	if src, ok := f.registry.FederatedSource(id); ok {
		return src, true
	}
	if store, ok := f.registry.CatalogStore(id); ok {
		return store, true
	}
	if conn, ok := f.registry.ConnectedSource(id); ok {
		return conn, true
	}
	return nil, false
}

// candidate is a source considered for a query. Local marks the active
// catalog provider, which skips the permission check.
type candidate struct {
	src   catalog.Source
	local bool
}

// resolveSources turns the request scope into the list of sources to
// query, in three modes:
//
//   - enterprise: the local provider and every remote source; explicit ids
//     are ignored
//   - explicit ids: the named sources, unknown ids are reported
//   - default: the local provider and the connected sources
//
// Unavailable sources and federated sources the subject may not query are
// dropped and reported as unavailable.
func (f *CatalogFramework) resolveSources(req *catalog.QueryRequest) ([]catalog.Source, []catalog.ProcessingDetails) {
	var (
		candidates []candidate
		details    []catalog.ProcessingDetails
	)

	provider := f.registry.CatalogProvider()
	addLocal := func() {
		if provider == nil {
			details = append(details, catalog.UnavailableDetails(f.config.ID))
			return
		}
		candidates = append(candidates, candidate{src: provider, local: true})
	}

	switch {
	case req.Enterprise:
		if len(req.SourceIDs) > 0 {
			logger.Warn("Enterprise query ignores explicit source ids %v", req.SourceIDs)
		}
		addLocal()
		for _, src := range f.remoteSources() {
			candidates = append(candidates, candidate{src: src})
		}

	case len(req.SourceIDs) > 0:
		for _, id := range uniqueStrings(req.SourceIDs) {
			if f.isLocalID(id) {
				addLocal()
				continue
			}
			if src, ok := f.remoteSource(id); ok {
				candidates = append(candidates, candidate{src: src})
			} else {
				details = append(details, catalog.NotFoundDetails(id))
			}
		}

	default:
		if provider != nil {
			candidates = append(candidates, candidate{src: provider, local: true})
		}
		for _, conn := range f.registry.ConnectedSources() {
			candidates = append(candidates, candidate{src: conn})
		}
	}

	sources := make([]catalog.Source, 0, len(candidates))
	for _, c := range candidates {
		id := c.src.ID()
		if c.local {
			id = f.config.ID
		}
		if !f.poller.IsAvailable(c.src) {
			details = append(details, catalog.UnavailableDetails(id))
			continue
		}
		if fed, ok := c.src.(catalog.FederatedSource); ok && !c.local && !registry.Permits(req.Properties.Subject, fed) {
			logger.Debug("Subject may not query source %s", id)
			details = append(details, catalog.UnavailableDetails(id))
			continue
		}
		sources = append(sources, c.src)
	}
	return sources, details
}
