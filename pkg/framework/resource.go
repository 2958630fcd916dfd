package framework

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/filter"
	"github.com/marmos91/dittocat/pkg/plugin"
	"github.com/marmos91/dittocat/pkg/resource"
)

// GetLocalResource retrieves a resource owned by the local catalog.
func (f *CatalogFramework) GetLocalResource(ctx context.Context, req *catalog.ResourceRequest) (resp *catalog.ResourceResponse, err error) {
	defer f.observe(opResource, catalog.ClassResource, time.Now(), &err)
	return f.getResource(ctx, req, false, f.config.ID)
}

// GetEnterpriseResource retrieves a resource from whichever source holds
// the matching metacard.
func (f *CatalogFramework) GetEnterpriseResource(ctx context.Context, req *catalog.ResourceRequest) (resp *catalog.ResourceResponse, err error) {
	defer f.observe(opResource, catalog.ClassResource, time.Now(), &err)
	return f.getResource(ctx, req, true, "")
}

// GetResource retrieves a resource from the source sourceID.
//
// Parameters:
//   - ctx: cancellation for the lookup and the download
//   - req: the resource, by metacard id (catalog.ResourceByID) or by
//     resource URI (catalog.ResourceByURI); Properties.SourceID and
//     Properties.Enterprise override sourceID when set
//   - sourceID: the owning source; empty is not found
//
// Returns:
//   - *catalog.ResourceResponse: the resource; the caller must close its Body.
//     Properties.Metacard holds the resolved metacard.
//   - error: a *catalog.Error of class ClassResource
func (f *CatalogFramework) GetResource(ctx context.Context, req *catalog.ResourceRequest, sourceID string) (resp *catalog.ResourceResponse, err error) {
	defer f.observe(opResource, catalog.ClassResource, time.Now(), &err)
	return f.getResource(ctx, req, false, sourceID)
}

func (f *CatalogFramework) getResource(ctx context.Context, req *catalog.ResourceRequest, enterprise bool, sourceID string) (resp *catalog.ResourceResponse, err error) {
	if req == nil {
		return nil, catalog.ResourceError(catalog.KindStructural, "resource request is nil", nil)
	}

	// Close the body of a resource we fail to hand out.
	defer func() {
		if err != nil && resp != nil && resp.Resource != nil && resp.Resource.Body != nil {
			resp.Resource.Body.Close()
			resp = nil
		}
	}()

	// ========================================================================
	// Step 1: Policy, access and pre-resource plugins
	// ========================================================================

	policy, err := f.runPolicy(ctx, catalog.ClassResource, "resource", func(ctx context.Context, p plugin.PolicyPlugin) (plugin.PolicyResponse, error) {
		return p.ResourcePolicy(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	applyOperationPolicy(&req.Properties, policy.OperationPolicy)

	req, err = plugin.RunHardChain(ctx, "access", f.plugins.Access, req, func(ctx context.Context, p plugin.AccessPlugin, r *catalog.ResourceRequest) (*catalog.ResourceRequest, error) {
		return p.PreResource(ctx, r)
	})
	if err != nil {
		return nil, chainError(catalog.ClassResource, "access plugin", err)
	}

	req, err = plugin.RunSoftChain(ctx, "pre-resource", f.plugins.PreResource, req, func(ctx context.Context, p plugin.PreResourcePlugin, r *catalog.ResourceRequest) (*catalog.ResourceRequest, error) {
		return p.ProcessResourceRequest(ctx, r)
	})
	if err != nil {
		return nil, chainError(catalog.ClassResource, "pre-resource plugin", err)
	}

	// ========================================================================
	// Step 2: Scope
	// ========================================================================

	if req.Properties.SourceID != "" {
		sourceID = req.Properties.SourceID
	}
	if req.Properties.Enterprise {
		enterprise = true
	}
	if f.config.Fanout {
		enterprise = true
	}
	if !enterprise && sourceID == "" {
		return nil, catalog.ResourceError(catalog.KindNotFound, "resource request names no source", nil)
	}

	// ========================================================================
	// Step 3: Resolve the metacard and resource URI
	// ========================================================================

	m, uri, err := f.resolveResource(ctx, req, enterprise, sourceID)
	if err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 4: Retrieve
	// ========================================================================

	retriever := f.retrieverFor(m, uri, req.Properties)

	resp, err = f.downloader.Download(ctx, req, m, retriever)
	if err != nil {
		logger.Warn("Unable to retrieve resource of metacard %s: %v", m.ID(), err)
		switch {
		case ctx.Err() != nil:
			return nil, catalog.ResourceError(catalog.KindInternal, "resource retrieval interrupted", ctx.Err())
		case errors.Is(err, resource.ErrUnsupportedScheme):
			return nil, catalog.ResourceError(catalog.KindUnsupported, fmt.Sprintf("resource scheme %q is not supported", uri.Scheme), err)
		}
		return nil, catalog.ResourceError(catalog.KindNotFound, fmt.Sprintf("resource of metacard %s not found", m.ID()), err)
	}
	if resp == nil || resp.Resource == nil {
		return nil, catalog.ResourceError(catalog.KindNotFound, fmt.Sprintf("resource of metacard %s not found", m.ID()), nil)
	}

	// ========================================================================
	// Step 5: Policy, access and post-resource plugins
	// ========================================================================

	postPolicy, err := f.runPolicy(ctx, catalog.ClassResource, "resource response", func(ctx context.Context, p plugin.PolicyPlugin) (plugin.PolicyResponse, error) {
		return p.ResourceResponsePolicy(ctx, resp, m)
	})
	if err != nil {
		return resp, err
	}
	applyItemPolicy(m, postPolicy.ItemPolicy)
	applyOperationPolicy(&resp.Properties, postPolicy.OperationPolicy)

	checked, err := plugin.RunHardChain(ctx, "access", f.plugins.Access, resp, func(ctx context.Context, p plugin.AccessPlugin, r *catalog.ResourceResponse) (*catalog.ResourceResponse, error) {
		return p.PostResource(ctx, r, m)
	})
	if err != nil {
		return resp, chainError(catalog.ClassResource, "access plugin", err)
	}
	resp = checked

	processed, err := plugin.RunSoftChain(ctx, "post-resource", f.plugins.PostResource, resp, func(ctx context.Context, p plugin.PostResourcePlugin, r *catalog.ResourceResponse) (*catalog.ResourceResponse, error) {
		return p.ProcessResourceResponse(ctx, r)
	})
	if err != nil {
		return resp, chainError(catalog.ClassResource, "post-resource plugin", err)
	}
	resp = processed

	// ========================================================================
	// Step 6: Normalize
	// ========================================================================

	resp.Properties.Metacard = m
	return validateFixResourceResponse(resp, req), nil
}

// resolveResource finds the metacard a resource request points at and the
// URI its bytes live behind. The lookup runs through the query pipeline
// with plugins but keeps real source ids.
func (f *CatalogFramework) resolveResource(ctx context.Context, req *catalog.ResourceRequest, enterprise bool, sourceID string) (*catalog.Metacard, *url.URL, error) {
	var (
		match filter.Filter
		uri   *url.URL
	)

	switch req.AttributeName {
	case catalog.ResourceByID:
		id, ok := req.Value.(string)
		if !ok || id == "" {
			return nil, nil, catalog.ResourceError(catalog.KindStructural, "resource request by id needs a string id", nil)
		}
		req.Properties.MetacardID = id
		match = filter.Equal(catalog.AttrID, id)

	case catalog.ResourceByURI:
		u, err := requestURI(req.Value)
		if err != nil {
			return nil, nil, catalog.ResourceError(catalog.KindStructural, "resource request by uri needs a URI", err)
		}
		if u.Fragment != "" {
			req.Properties.Qualifier = u.Fragment
			stripped := *u
			stripped.Fragment = ""
			stripped.RawFragment = ""
			u = &stripped
		}
		uri = u
		req.Properties.ResourceURI = u.String()
		match = filter.Equal(catalog.AttrResourceURI, u.String())

	default:
		return nil, nil, catalog.ResourceError(catalog.KindUnsupported,
			fmt.Sprintf("resource requests by %q are not supported", req.AttributeName), nil)
	}

	lookup := &catalog.QueryRequest{
		Properties: catalog.Properties{Subject: req.Properties.Subject},
		Query: catalog.Query{
			Filter:     filter.AllOf(match, anyTagFilter()),
			StartIndex: 1,
			PageSize:   1,
		},
		Enterprise: enterprise,
	}
	if !enterprise {
		lookup.SourceIDs = []string{sourceID}
	}

	resp, err := f.query(ctx, lookup, nil, queryOptions{plugins: true})
	if err != nil {
		return nil, nil, catalog.ResourceError(catalog.KindNotFound, "unable to resolve resource", err)
	}
	if len(resp.Results) == 0 {
		return nil, nil, catalog.ResourceError(catalog.KindNotFound, "no metacard matches the resource request", nil)
	}

	m := resp.Results[0].Metacard
	if uri == nil {
		uri = m.ResourceURI()
		if uri == nil {
			return nil, nil, catalog.ResourceError(catalog.KindNotFound, fmt.Sprintf("metacard %s has no resource", m.ID()), nil)
		}
	}
	return m, uri, nil
}

func requestURI(v any) (*url.URL, error) {
	switch u := v.(type) {
	case *url.URL:
		if u == nil {
			return nil, fmt.Errorf("nil URI")
		}
		return u, nil
	case string:
		return url.Parse(u)
	}
	return nil, fmt.Errorf("unexpected value type %T", v)
}

// retrieverFor binds the resource to the local readers or to the remote
// source owning m. A source no longer registered yields nil, which the
// downloader reports as not found.
func (f *CatalogFramework) retrieverFor(m *catalog.Metacard, uri *url.URL, props catalog.Properties) resource.Retriever {
	if f.isLocalID(m.SourceID()) {
		return resource.NewLocalRetriever(f.registry.Readers(), uri, props)
	}
	src := f.remoteResourceSource(m.SourceID())
	if src == nil {
		logger.Warn("Source %s of metacard %s is no longer registered", m.SourceID(), m.ID())
		return nil
	}
	return resource.NewRemoteRetriever(src, uri, props)
}

func (f *CatalogFramework) remoteResourceSource(id string) catalog.RemoteSource {
	if src, ok := f.registry.FederatedSource(id); ok {
		return src
	}
	if store, ok := f.registry.CatalogStore(id); ok {
		return store
	}
	if conn, ok := f.registry.ConnectedSource(id); ok {
		return conn
	}
	return nil
}

// ============================================================================
// Resource options
// ============================================================================

// GetLocalResourceOptions lists the retrieval options of the local
// metacard id.
func (f *CatalogFramework) GetLocalResourceOptions(ctx context.Context, id string) ([]string, error) {
	return f.resourceOptions(ctx, id, false, f.config.ID)
}

// GetEnterpriseResourceOptions lists the retrieval options of metacard id
// wherever it is held.
func (f *CatalogFramework) GetEnterpriseResourceOptions(ctx context.Context, id string) ([]string, error) {
	return f.resourceOptions(ctx, id, true, "")
}

// GetResourceOptions lists the retrieval options of metacard id held by
// sourceID.
func (f *CatalogFramework) GetResourceOptions(ctx context.Context, id, sourceID string) ([]string, error) {
	if sourceID == "" {
		return nil, catalog.ResourceError(catalog.KindNotFound, "resource options request names no source", nil)
	}
	return f.resourceOptions(ctx, id, false, sourceID)
}

// resourceOptions returns the sorted union of the options the readers (or
// the owning remote source) offer for the metacard.
func (f *CatalogFramework) resourceOptions(ctx context.Context, id string, enterprise bool, sourceID string) (options []string, err error) {
	defer f.observe(opResource, catalog.ClassResource, time.Now(), &err)

	if f.config.Fanout {
		enterprise = true
	}
	req := catalog.NewResourceRequestByID(id)
	m, _, err := f.resolveResource(ctx, req, enterprise, sourceID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	add := func(opts []string) {
		for _, o := range opts {
			seen[o] = struct{}{}
		}
	}

	if f.isLocalID(m.SourceID()) {
		uri := m.ResourceURI()
		for _, reader := range f.registry.Readers() {
			if resource.Supports(reader, uri) {
				add(reader.Options(m))
			}
		}
	} else if src := f.remoteResourceSource(m.SourceID()); src != nil {
		add(src.Options(m))
	} else {
		return nil, catalog.ResourceError(catalog.KindNotFound, fmt.Sprintf("source %s is not registered", m.SourceID()), nil)
	}

	options = make([]string, 0, len(seen))
	for o := range seen {
		options = append(options, o)
	}
	sort.Strings(options)
	return options, nil
}
