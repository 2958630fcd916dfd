package framework

import (
	"context"
	"fmt"

	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/filter"
)

// errFanoutWrite is the fixed rejection of writes by a fanout proxy.
const fanoutWriteMessage = "fanout proxy does not support create, update, and delete operations"

func errFanoutWrite() error {
	return catalog.IngestError(catalog.KindUnsupported, fanoutWriteMessage, nil)
}

// resolveDestinations sets the routing flags from the store ids. No ids,
// or the local id among them, targets the local provider; any other id
// targets remote stores.
func (f *CatalogFramework) resolveDestinations(props *catalog.Properties, storeIDs []string) {
	props.LocalDestination = len(storeIDs) == 0
	props.RemoteDestination = false
	for _, id := range storeIDs {
		if f.isLocalID(id) {
			props.LocalDestination = true
		} else {
			props.RemoteDestination = true
		}
	}
}

// checkLocal fails when a local write cannot proceed: the catalog provider
// when the request targets it, and the storage provider for storage
// requests.
func (f *CatalogFramework) checkLocal(ctx context.Context, props *catalog.Properties, storage bool) error {
	if props.LocalDestination {
		p := f.registry.CatalogProvider()
		if p == nil || !f.poller.IsAvailable(p) {
			return catalog.IngestError(catalog.KindUnavailable, "local catalog provider is unavailable", nil)
		}
	}
	if storage {
		sp := f.registry.StorageProvider()
		if sp == nil || !sp.IsAvailable(ctx) {
			return catalog.IngestError(catalog.KindUnavailable, "local storage provider is unavailable", nil)
		}
	}
	return nil
}

// ============================================================================
// Remote stores
// ============================================================================

// storesFor resolves the remote stores named by storeIDs. Unknown and
// unavailable stores are reported as details and skipped.
func (f *CatalogFramework) storesFor(storeIDs []string) ([]catalog.CatalogStore, []catalog.ProcessingDetails) {
	var (
		stores  []catalog.CatalogStore
		details []catalog.ProcessingDetails
		seen    = make(map[string]struct{}, len(storeIDs))
	)
	for _, id := range storeIDs {
		if f.isLocalID(id) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		store, ok := f.registry.CatalogStore(id)
		if !ok {
			details = append(details, catalog.ProcessingDetails{
				SourceID: id,
				Err:      catalog.ErrStoreNotFound,
				Message:  "catalog store does not exist",
			})
			continue
		}
		if !f.poller.IsAvailable(store) {
			details = append(details, catalog.UnavailableDetails(id))
			continue
		}
		stores = append(stores, store)
	}
	return stores, details
}

// dispatchStores sends req to every store. A failing store is logged and
// recorded; it never stops the others.
func dispatchStores[Req any, Resp any](
	ctx context.Context,
	op string,
	stores []catalog.CatalogStore,
	req Req,
	call func(context.Context, catalog.CatalogStore, Req) (Resp, error),
	affected func(Resp) []*catalog.Metacard,
) (map[string][]*catalog.Metacard, []catalog.ProcessingDetails) {
	results := make(map[string][]*catalog.Metacard, len(stores))
	var details []catalog.ProcessingDetails

	for _, store := range stores {
		resp, err := call(ctx, store, req)
		if err != nil {
			logger.Warn("Remote %s on store %s failed: %v", op, store.ID(), err)
			details = append(details, catalog.ProcessingDetails{
				SourceID: store.ID(),
				Err:      err,
				Message:  fmt.Sprintf("remote %s failed", op),
			})
			continue
		}
		results[store.ID()] = affected(resp)
	}
	return results, details
}

func mergeStoreResults(props *catalog.Properties, results map[string][]*catalog.Metacard) {
	if len(results) == 0 {
		return
	}
	if props.StoreResults == nil {
		props.StoreResults = make(map[string][]*catalog.Metacard, len(results))
	}
	for id, metacards := range results {
		props.StoreResults[id] = metacards
	}
}

// ============================================================================
// Existing metacard lookup
// ============================================================================

// defaultTagFilter matches resource metacards and metacards without tags.
func defaultTagFilter() filter.Filter {
	return filter.AnyOf(filter.Equal(catalog.AttrTags, catalog.DefaultTag), filter.IsNull(catalog.AttrTags))
}

// anyTagFilter matches every metacard whatever its tags. Adding it to a
// query stops the default tag filter from being applied.
func anyTagFilter() filter.Filter {
	return filter.AnyOf(filter.Like(catalog.AttrTags, "*"), filter.IsNull(catalog.AttrTags))
}

// validityFilter matches valid and invalid metacards alike, so writes can
// reach records that failed validation.
func validityFilter() filter.Filter {
	return filter.AnyOf(filter.IsNull(catalog.AttrValidationErrors), filter.Not(filter.IsNull(catalog.AttrValidationErrors)))
}

// lookupExisting finds the stored metacards matching keys on attr, in the
// local catalog and the request's stores. It goes through the internal
// query path: no query plugins, no post-processing, real source ids. The
// result maps each key to the first metacard matching it.
func (f *CatalogFramework) lookupExisting(ctx context.Context, attr string, keys []string, storeIDs []string, subject *catalog.Subject) (map[string]*catalog.Metacard, error) {
	matches := make([]filter.Filter, 0, len(keys))
	for _, key := range keys {
		matches = append(matches, filter.Equal(attr, key))
	}

	sourceIDs := storeIDs
	if len(sourceIDs) == 0 {
		sourceIDs = []string{f.config.ID}
	}

	req := &catalog.QueryRequest{
		Properties: catalog.Properties{Subject: subject},
		Query: catalog.Query{
			Filter:     filter.AllOf(filter.AnyOf(matches...), anyTagFilter(), validityFilter()),
			StartIndex: 1,
			PageSize:   len(keys),
		},
		SourceIDs: sourceIDs,
	}

	resp, err := f.query(ctx, req, nil, queryOptions{})
	if err != nil {
		return nil, catalog.IngestError(catalog.KindNotFound, "unable to look up existing metacards", err)
	}

	existing := make(map[string]*catalog.Metacard, len(keys))
	for _, key := range keys {
		for _, r := range resp.Results {
			if matchesKey(r.Metacard, attr, key) {
				existing[key] = r.Metacard
				break
			}
		}
	}
	return existing, nil
}

func matchesKey(m *catalog.Metacard, attr, key string) bool {
	if attr == catalog.AttrID {
		return m.ID() == key
	}
	for _, v := range m.Values(attr) {
		if s, ok := v.(string); ok && s == key {
			return true
		}
	}
	return m.String(attr) == key
}

// orderedExisting returns the values of existing in key order, skipping
// keys nothing matched.
func orderedExisting(existing map[string]*catalog.Metacard, keys []string) []*catalog.Metacard {
	out := make([]*catalog.Metacard, 0, len(existing))
	seen := make(map[*catalog.Metacard]struct{}, len(existing))
	for _, key := range keys {
		m, ok := existing[key]
		if !ok {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
