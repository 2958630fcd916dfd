package framework

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/plugin"
)

// Delete removes the metacards matching req.Values on req.AttributeName.
//
// With policy plugins registered, every value must resolve to a stored
// metacard first: if any is missing the operation fails with "could not
// remove all metacards" and nothing is deleted. Content stored for the
// deleted local metacards is removed from the storage provider.
func (f *CatalogFramework) Delete(ctx context.Context, req *catalog.DeleteRequest) (resp *catalog.DeleteResponse, err error) {
	defer f.observe(opDelete, catalog.ClassIngest, time.Now(), &err)

	// ========================================================================
	// Step 1: Validate and route
	// ========================================================================

	if err := validateDeleteRequest(req); err != nil {
		return nil, err
	}
	if f.config.Fanout {
		return nil, errFanoutWrite()
	}

	f.resolveDestinations(&req.Properties, req.StoreIDs)
	if err := f.checkLocal(ctx, &req.Properties, false); err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 2: Existing metacards and policy
	// ========================================================================

	var existing []*catalog.Metacard
	if len(f.plugins.Policy) > 0 {
		found, err := f.lookupExisting(ctx, req.AttributeName, req.Values, req.StoreIDs, req.Properties.Subject)
		if err != nil {
			return nil, err
		}
		if len(found) < len(uniqueStrings(req.Values)) {
			return nil, catalog.IngestError(catalog.KindNotFound, "could not remove all metacards",
				fmt.Errorf("%d of %d values matched a stored metacard", len(found), len(uniqueStrings(req.Values))))
		}
		existing = orderedExisting(found, req.Values)

		policy, err := f.runPolicy(ctx, catalog.ClassIngest, "delete", func(ctx context.Context, p plugin.PolicyPlugin) (plugin.PolicyResponse, error) {
			return p.DeletePolicy(ctx, existing, req.Properties.Snapshot())
		})
		if err != nil {
			return nil, err
		}
		applyOperationPolicy(&req.Properties, policy.OperationPolicy)
	}

	req, err = plugin.RunHardChain(ctx, "access", f.plugins.Access, req, func(ctx context.Context, p plugin.AccessPlugin, r *catalog.DeleteRequest) (*catalog.DeleteRequest, error) {
		return p.PreDelete(ctx, r)
	})
	if err != nil {
		return nil, chainError(catalog.ClassIngest, "access plugin", err)
	}

	// ========================================================================
	// Step 3: Transaction snapshot and pre-ingest plugins
	// ========================================================================

	req.Properties.Transaction = catalog.NewOperationTransaction(catalog.OperationDelete, existing)

	req, err = plugin.RunSoftChain(ctx, "pre-ingest", f.plugins.PreIngest, req, func(ctx context.Context, p plugin.PreIngestPlugin, r *catalog.DeleteRequest) (*catalog.DeleteRequest, error) {
		return p.ProcessDelete(ctx, r)
	})
	if err != nil {
		return nil, chainError(catalog.ClassIngest, "pre-ingest plugin", err)
	}
	if err := validateDeleteRequest(req); err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 4: Dispatch
	// ========================================================================

	if req.Properties.LocalDestination {
		resp, err = f.registry.CatalogProvider().Delete(ctx, req)
		if err != nil {
			return nil, catalog.IngestError(catalog.KindStorage, "local catalog provider delete failed", err)
		}
		if resp != nil {
			f.deleteStoredContent(ctx, resp.Deleted)
		}
	}

	var details []catalog.ProcessingDetails
	var storeResults map[string][]*catalog.Metacard
	if req.Properties.RemoteDestination {
		stores, missing := f.storesFor(req.StoreIDs)
		storeResults, details = dispatchStores(ctx, opDelete, stores, req,
			func(ctx context.Context, s catalog.CatalogStore, r *catalog.DeleteRequest) (*catalog.DeleteResponse, error) {
				return s.Delete(ctx, r)
			},
			func(r *catalog.DeleteResponse) []*catalog.Metacard {
				if r == nil {
					return nil
				}
				return r.Deleted
			})
		details = append(missing, details...)
	}

	// ========================================================================
	// Step 5: Merge, normalize and post-delete plugins
	// ========================================================================

	if resp == nil {
		resp = &catalog.DeleteResponse{Request: req, Deleted: remoteAffected(req.StoreIDs, storeResults), Properties: req.Properties}
	}
	resp = validateFixDeleteResponse(resp, req)
	mergeStoreResults(&resp.Properties, storeResults)
	resp.ProcessingErrors = catalog.MergeDetails(resp.ProcessingErrors, details)
	f.metrics.ObserveProcessingDetails(opDelete, len(resp.ProcessingErrors))

	for _, m := range resp.Deleted {
		policy, err := f.runPolicy(ctx, catalog.ClassIngest, "deleted", func(ctx context.Context, p plugin.PolicyPlugin) (plugin.PolicyResponse, error) {
			return p.DeletedPolicy(ctx, m, resp.Properties.Snapshot())
		})
		if err != nil {
			return nil, err
		}
		applyItemPolicy(m, policy.ItemPolicy)
	}

	resp, err = plugin.RunHardChain(ctx, "access", f.plugins.Access, resp, func(ctx context.Context, p plugin.AccessPlugin, r *catalog.DeleteResponse) (*catalog.DeleteResponse, error) {
		return p.PostDelete(ctx, r)
	})
	if err != nil {
		return nil, chainError(catalog.ClassIngest, "access plugin", err)
	}

	resp, err = plugin.RunSoftChain(ctx, "post-ingest", f.plugins.PostIngest, resp, func(ctx context.Context, p plugin.PostIngestPlugin, r *catalog.DeleteResponse) (*catalog.DeleteResponse, error) {
		return p.ProcessDeleted(ctx, r)
	})
	if err != nil {
		logger.Warn("Post-ingest plugin stopped after delete: %v", err)
	}

	return resp, nil
}

// deleteStoredContent removes the content behind deleted metacards whose
// resource URI uses the content scheme. Failures are logged only: the
// metacards are already gone and the collector reclaims leftovers.
func (f *CatalogFramework) deleteStoredContent(ctx context.Context, deleted []*catalog.Metacard) {
	sp := f.registry.StorageProvider()
	if sp == nil {
		return
	}

	var stored []*catalog.Metacard
	for _, m := range deleted {
		if u := m.ResourceURI(); u != nil && u.Scheme == catalog.ContentScheme {
			stored = append(stored, m)
		}
	}
	if len(stored) == 0 {
		return
	}

	req := catalog.NewDeleteStorageRequest(stored...)
	guard := newTransactionGuard(sp, req)
	if _, err := sp.Delete(ctx, req); err != nil {
		logger.Warn("Unable to delete content of %d metacards: %v", len(stored), err)
		guard.rollback(ctx)
		return
	}
	if err := guard.commit(ctx); err != nil {
		logger.Warn("Unable to commit content delete %s: %v", req.ID, err)
	}
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
