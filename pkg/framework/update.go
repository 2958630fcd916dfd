package framework

import (
	"context"
	"time"

	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/plugin"
)

// Update replaces the metacards matched by each update key on
// req.AttributeName. Keys matching nothing are skipped by the providers.
//
// With policy plugins registered, the stored metacards are looked up first
// and both the new and the old value of every update get a policy pass.
func (f *CatalogFramework) Update(ctx context.Context, req *catalog.UpdateRequest) (resp *catalog.UpdateResponse, err error) {
	defer f.observe(opUpdate, catalog.ClassIngest, time.Now(), &err)
	return f.update(ctx, req)
}

func (f *CatalogFramework) update(ctx context.Context, req *catalog.UpdateRequest) (*catalog.UpdateResponse, error) {
	// ========================================================================
	// Step 1: Validate and route
	// ========================================================================

	if err := validateUpdateRequest(req); err != nil {
		return nil, err
	}
	if f.config.Fanout {
		return nil, errFanoutWrite()
	}

	f.resolveDestinations(&req.Properties, req.StoreIDs)
	if err := f.checkLocal(ctx, &req.Properties, false); err != nil {
		return nil, err
	}

	for _, u := range req.Updates {
		f.prepareMetacard(u.Metacard)
	}

	// ========================================================================
	// Step 2: Existing metacards and policy
	// ========================================================================

	keys := updateKeys(req)
	existing := req.Properties.ExistingMetacards
	if len(f.plugins.Policy) > 0 {
		found, err := f.lookupExisting(ctx, req.AttributeName, keys, req.StoreIDs, req.Properties.Subject)
		if err != nil {
			return nil, err
		}
		existing = found
		req.Properties.ExistingMetacards = existing

		for _, u := range req.Updates {
			next := u.Metacard
			policy, err := f.runPolicy(ctx, catalog.ClassIngest, "update", func(ctx context.Context, p plugin.PolicyPlugin) (plugin.PolicyResponse, error) {
				return p.UpdatePolicy(ctx, next, req.Properties.Snapshot())
			})
			if err != nil {
				return nil, err
			}
			applyItemPolicy(next, policy.ItemPolicy)
			applyOperationPolicy(&req.Properties, policy.OperationPolicy)

			old, ok := existing[u.Key]
			if !ok {
				continue
			}
			oldPolicy, err := f.runPolicy(ctx, catalog.ClassIngest, "update", func(ctx context.Context, p plugin.PolicyPlugin) (plugin.PolicyResponse, error) {
				return p.UpdatePolicy(ctx, old, req.Properties.Snapshot())
			})
			if err != nil {
				return nil, err
			}
			applyItemPolicy(old, oldPolicy.ItemPolicy)
			applyOperationPolicy(&req.Properties, oldPolicy.OperationPolicy)
		}
	}

	req, err := plugin.RunHardChain(ctx, "access", f.plugins.Access, req, func(ctx context.Context, p plugin.AccessPlugin, r *catalog.UpdateRequest) (*catalog.UpdateRequest, error) {
		return p.PreUpdate(ctx, r, existing)
	})
	if err != nil {
		return nil, chainError(catalog.ClassIngest, "access plugin", err)
	}

	// ========================================================================
	// Step 3: Transaction snapshot and pre-ingest plugins
	// ========================================================================

	req.Properties.Transaction = catalog.NewOperationTransaction(catalog.OperationUpdate, orderedExisting(existing, keys))

	req, err = plugin.RunSoftChain(ctx, "pre-ingest", f.plugins.PreIngest, req, func(ctx context.Context, p plugin.PreIngestPlugin, r *catalog.UpdateRequest) (*catalog.UpdateRequest, error) {
		return p.ProcessUpdate(ctx, r)
	})
	if err != nil {
		return nil, chainError(catalog.ClassIngest, "pre-ingest plugin", err)
	}
	if err := validateUpdateRequest(req); err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 4: Dispatch
	// ========================================================================

	var resp *catalog.UpdateResponse
	if req.Properties.LocalDestination {
		resp, err = f.registry.CatalogProvider().Update(ctx, req)
		if err != nil {
			return nil, catalog.IngestError(catalog.KindStorage, "local catalog provider update failed", err)
		}
	}

	var details []catalog.ProcessingDetails
	var storeResults map[string][]*catalog.Metacard
	if req.Properties.RemoteDestination {
		stores, missing := f.storesFor(req.StoreIDs)
		storeResults, details = dispatchStores(ctx, opUpdate, stores, req,
			func(ctx context.Context, s catalog.CatalogStore, r *catalog.UpdateRequest) (*catalog.UpdateResponse, error) {
				return s.Update(ctx, r)
			},
			func(r *catalog.UpdateResponse) []*catalog.Metacard {
				if r == nil {
					return nil
				}
				out := make([]*catalog.Metacard, 0, len(r.Updated))
				for _, pair := range r.Updated {
					out = append(out, pair.New)
				}
				return out
			})
		details = append(missing, details...)
	}

	// ========================================================================
	// Step 5: Merge, normalize and post-ingest
	// ========================================================================

	if resp == nil {
		resp = &catalog.UpdateResponse{Request: req, Updated: remoteUpdates(req, storeResults), Properties: req.Properties}
	}
	resp = validateFixUpdateResponse(resp, req)
	mergeStoreResults(&resp.Properties, storeResults)
	resp.ProcessingErrors = catalog.MergeDetails(resp.ProcessingErrors, details)
	f.metrics.ObserveProcessingDetails(opUpdate, len(resp.ProcessingErrors))

	resp, err = plugin.RunSoftChain(ctx, "post-ingest", f.plugins.PostIngest, resp, func(ctx context.Context, p plugin.PostIngestPlugin, r *catalog.UpdateResponse) (*catalog.UpdateResponse, error) {
		return p.ProcessUpdated(ctx, r)
	})
	if err != nil {
		logger.Warn("Post-ingest plugin stopped after update: %v", err)
	}

	return resp, nil
}

func updateKeys(req *catalog.UpdateRequest) []string {
	keys := make([]string, 0, len(req.Updates))
	for _, u := range req.Updates {
		keys = append(keys, u.Key)
	}
	return keys
}

// remoteUpdates pairs store results with the looked-up old values when the
// update went to stores only.
func remoteUpdates(req *catalog.UpdateRequest, results map[string][]*catalog.Metacard) []catalog.UpdatePair {
	pairs := []catalog.UpdatePair{}
	for _, m := range remoteAffected(req.StoreIDs, results) {
		var old *catalog.Metacard
		for key, existing := range req.Properties.ExistingMetacards {
			if matchesKey(m, req.AttributeName, key) || existing.ID() == m.ID() {
				old = existing
				break
			}
		}
		pairs = append(pairs, catalog.UpdatePair{Old: old, New: m})
	}
	return pairs
}
