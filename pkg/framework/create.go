package framework

import (
	"context"
	"time"

	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/plugin"
)

// Create ingests metacards into the local catalog and/or the catalog
// stores named by req.StoreIDs.
//
// Parameters:
//   - ctx: cancellation for every blocking call of the operation
//   - req: the metacards to create; StoreIDs selects the destinations
//
// Returns:
//   - *catalog.CreateResponse: created metacards, store results in
//     Properties.StoreResults and per-store failures in ProcessingErrors
//   - error: a *catalog.Error of class ClassIngest
func (f *CatalogFramework) Create(ctx context.Context, req *catalog.CreateRequest) (resp *catalog.CreateResponse, err error) {
	defer f.observe(opCreate, catalog.ClassIngest, time.Now(), &err)
	return f.create(ctx, req)
}

func (f *CatalogFramework) create(ctx context.Context, req *catalog.CreateRequest) (*catalog.CreateResponse, error) {
	// ========================================================================
	// Step 1: Validate and route
	// ========================================================================

	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}
	if f.config.Fanout {
		return nil, errFanoutWrite()
	}

	f.resolveDestinations(&req.Properties, req.StoreIDs)
	if err := f.checkLocal(ctx, &req.Properties, false); err != nil {
		return nil, err
	}

	for _, m := range req.Metacards {
		f.prepareMetacard(m)
	}

	// ========================================================================
	// Step 2: Policy and access
	// ========================================================================

	for _, m := range req.Metacards {
		policy, err := f.runPolicy(ctx, catalog.ClassIngest, "create", func(ctx context.Context, p plugin.PolicyPlugin) (plugin.PolicyResponse, error) {
			return p.CreatePolicy(ctx, m, req.Properties.Snapshot())
		})
		if err != nil {
			return nil, err
		}
		applyItemPolicy(m, policy.ItemPolicy)
		applyOperationPolicy(&req.Properties, policy.OperationPolicy)
	}

	req, err := plugin.RunHardChain(ctx, "access", f.plugins.Access, req, func(ctx context.Context, p plugin.AccessPlugin, r *catalog.CreateRequest) (*catalog.CreateRequest, error) {
		return p.PreCreate(ctx, r)
	})
	if err != nil {
		return nil, chainError(catalog.ClassIngest, "access plugin", err)
	}

	// ========================================================================
	// Step 3: Transaction snapshot and pre-ingest plugins
	// ========================================================================

	req.Properties.Transaction = catalog.NewOperationTransaction(catalog.OperationCreate, nil)

	req, err = plugin.RunSoftChain(ctx, "pre-ingest", f.plugins.PreIngest, req, func(ctx context.Context, p plugin.PreIngestPlugin, r *catalog.CreateRequest) (*catalog.CreateRequest, error) {
		return p.ProcessCreate(ctx, r)
	})
	if err != nil {
		return nil, chainError(catalog.ClassIngest, "pre-ingest plugin", err)
	}
	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 4: Dispatch
	// ========================================================================

	var resp *catalog.CreateResponse
	if req.Properties.LocalDestination {
		resp, err = f.registry.CatalogProvider().Create(ctx, req)
		if err != nil {
			return nil, catalog.IngestError(catalog.KindStorage, "local catalog provider create failed", err)
		}
	}

	var details []catalog.ProcessingDetails
	var storeResults map[string][]*catalog.Metacard
	if req.Properties.RemoteDestination {
		stores, missing := f.storesFor(req.StoreIDs)
		storeResults, details = dispatchStores(ctx, opCreate, stores, req,
			func(ctx context.Context, s catalog.CatalogStore, r *catalog.CreateRequest) (*catalog.CreateResponse, error) {
				return s.Create(ctx, r)
			},
			func(r *catalog.CreateResponse) []*catalog.Metacard {
				if r == nil {
					return nil
				}
				return r.Created
			})
		details = append(missing, details...)
	}

	// ========================================================================
	// Step 5: Merge, normalize and post-ingest
	// ========================================================================

	if resp == nil {
		resp = &catalog.CreateResponse{Request: req, Created: remoteAffected(req.StoreIDs, storeResults), Properties: req.Properties}
	}
	resp = validateFixCreateResponse(resp, req)
	mergeStoreResults(&resp.Properties, storeResults)
	resp.ProcessingErrors = catalog.MergeDetails(resp.ProcessingErrors, details)
	f.metrics.ObserveProcessingDetails(opCreate, len(resp.ProcessingErrors))

	resp, err = plugin.RunSoftChain(ctx, "post-ingest", f.plugins.PostIngest, resp, func(ctx context.Context, p plugin.PostIngestPlugin, r *catalog.CreateResponse) (*catalog.CreateResponse, error) {
		return p.ProcessCreated(ctx, r)
	})
	if err != nil {
		logger.Warn("Post-ingest plugin stopped after create: %v", err)
	}

	return resp, nil
}

// remoteAffected flattens store results in store id order.
func remoteAffected(storeIDs []string, results map[string][]*catalog.Metacard) []*catalog.Metacard {
	out := []*catalog.Metacard{}
	seen := make(map[string]struct{}, len(results))
	for _, id := range storeIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, results[id]...)
	}
	return out
}
