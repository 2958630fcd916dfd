package framework

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/mime"
	"github.com/marmos91/dittocat/pkg/plugin"
	"github.com/marmos91/dittocat/pkg/transform"
)

// CreateStorage ingests raw content. Each primary content item is staged,
// typed, transformed into a metacard (unless it carries one) and stored;
// the metacards then go through Create. Derived items (with a qualifier)
// attach to the metacard of the primary item sharing their id.
//
// The storage transaction is committed only when the catalog create
// succeeds and is rolled back otherwise. Staged files are always removed.
//
// Parameters:
//   - ctx: cancellation for every blocking call of the operation
//   - req: content items; Properties.AttributeOverrides is applied to every
//     generated metacard
//
// Returns:
//   - *catalog.CreateResponse: the created metacards
//   - error: a *catalog.Error of class ClassIngest
func (f *CatalogFramework) CreateStorage(ctx context.Context, req *catalog.CreateStorageRequest) (resp *catalog.CreateResponse, err error) {
	defer f.observe(opCreateStorage, catalog.ClassIngest, time.Now(), &err)

	// ========================================================================
	// Step 1: Validate and route
	// ========================================================================

	if req == nil {
		return nil, structural(catalog.ClassIngest, "create storage request is nil")
	}
	if err := validateContentItems(req.ContentItems, false); err != nil {
		return nil, err
	}
	if f.config.Fanout {
		return nil, errFanoutWrite()
	}

	f.resolveDestinations(&req.Properties, req.StoreIDs)
	if err := f.checkLocal(ctx, &req.Properties, true); err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 2: Stage and transform content
	// ========================================================================

	staging, err := newStagingArea(f.config.StagingDir)
	if err != nil {
		return nil, catalog.IngestError(catalog.KindStorage, "unable to stage content", err)
	}
	defer staging.remove()

	if err := f.prepareContent(ctx, staging, req.ContentItems, &req.Properties); err != nil {
		return nil, err
	}

	req, err = plugin.RunSoftChain(ctx, "pre-create-storage", f.plugins.PreCreateStorage, req, func(ctx context.Context, p plugin.PreCreateStoragePlugin, r *catalog.CreateStorageRequest) (*catalog.CreateStorageRequest, error) {
		return p.ProcessCreateStorage(ctx, r)
	})
	if err != nil {
		return nil, chainError(catalog.ClassIngest, "pre-create-storage plugin", err)
	}

	// ========================================================================
	// Step 3: Store content, then create metacards
	// ========================================================================

	sp := f.registry.StorageProvider()
	guard := newTransactionGuard(sp, req)
	defer guard.rollback(ctx)

	storageResp, err := sp.Create(ctx, req)
	if err != nil {
		return nil, catalog.IngestError(catalog.KindStorage, "unable to store content", err)
	}
	if storageResp != nil {
		if _, err := plugin.RunSoftChain(ctx, "post-create-storage", f.plugins.PostCreateStorage, storageResp, func(ctx context.Context, p plugin.PostCreateStoragePlugin, r *catalog.CreateStorageResponse) (*catalog.CreateStorageResponse, error) {
			return p.ProcessCreateStorageResponse(ctx, r)
		}); err != nil {
			return nil, chainError(catalog.ClassIngest, "post-create-storage plugin", err)
		}
	}

	createReq := &catalog.CreateRequest{
		Properties: req.Properties,
		Metacards:  primaryMetacards(req.ContentItems),
		StoreIDs:   req.StoreIDs,
	}
	resp, err = f.create(ctx, createReq)
	if err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 4: Commit
	// ========================================================================

	if err := guard.commit(ctx); err != nil {
		resp.ProcessingErrors = append(resp.ProcessingErrors, catalog.ProcessingDetails{
			SourceID: f.config.ID,
			Err:      err,
			Message:  "content commit failed",
		})
	}
	return resp, nil
}

// UpdateStorage replaces the content of existing metacards. Every primary
// item must name a stored metacard; its content is re-typed and
// re-transformed and the result replaces the metacard through Update.
func (f *CatalogFramework) UpdateStorage(ctx context.Context, req *catalog.UpdateStorageRequest) (resp *catalog.UpdateResponse, err error) {
	defer f.observe(opUpdateStorage, catalog.ClassIngest, time.Now(), &err)

	// ========================================================================
	// Step 1: Validate and route
	// ========================================================================

	if req == nil {
		return nil, structural(catalog.ClassIngest, "update storage request is nil")
	}
	if err := validateContentItems(req.ContentItems, true); err != nil {
		return nil, err
	}
	if f.config.Fanout {
		return nil, errFanoutWrite()
	}

	f.resolveDestinations(&req.Properties, req.StoreIDs)
	if err := f.checkLocal(ctx, &req.Properties, true); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(req.ContentItems))
	for _, item := range req.ContentItems {
		if item.Qualifier == "" {
			ids = append(ids, item.ID)
		}
	}
	ids = uniqueStrings(ids)
	existing, err := f.lookupExisting(ctx, catalog.AttrID, ids, req.StoreIDs, req.Properties.Subject)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := existing[id]; !ok {
			return nil, catalog.IngestError(catalog.KindNotFound, fmt.Sprintf("metacard %s does not exist", id), nil)
		}
	}

	// ========================================================================
	// Step 2: Stage and transform content
	// ========================================================================

	staging, err := newStagingArea(f.config.StagingDir)
	if err != nil {
		return nil, catalog.IngestError(catalog.KindStorage, "unable to stage content", err)
	}
	defer staging.remove()

	if err := f.prepareContent(ctx, staging, req.ContentItems, &req.Properties); err != nil {
		return nil, err
	}

	req, err = plugin.RunSoftChain(ctx, "pre-update-storage", f.plugins.PreUpdateStorage, req, func(ctx context.Context, p plugin.PreUpdateStoragePlugin, r *catalog.UpdateStorageRequest) (*catalog.UpdateStorageRequest, error) {
		return p.ProcessUpdateStorage(ctx, r)
	})
	if err != nil {
		return nil, chainError(catalog.ClassIngest, "pre-update-storage plugin", err)
	}

	// ========================================================================
	// Step 3: Store content, then update metacards
	// ========================================================================

	sp := f.registry.StorageProvider()
	guard := newTransactionGuard(sp, req)
	defer guard.rollback(ctx)

	storageResp, err := sp.Update(ctx, req)
	if err != nil {
		return nil, catalog.IngestError(catalog.KindStorage, "unable to store content", err)
	}
	if storageResp != nil {
		if _, err := plugin.RunSoftChain(ctx, "post-update-storage", f.plugins.PostUpdateStorage, storageResp, func(ctx context.Context, p plugin.PostUpdateStoragePlugin, r *catalog.UpdateStorageResponse) (*catalog.UpdateStorageResponse, error) {
			return p.ProcessUpdateStorageResponse(ctx, r)
		}); err != nil {
			return nil, chainError(catalog.ClassIngest, "post-update-storage plugin", err)
		}
	}

	updateReq := catalog.NewUpdateRequestByID(primaryMetacards(req.ContentItems)...)
	updateReq.Properties = req.Properties
	updateReq.StoreIDs = req.StoreIDs
	resp, err = f.update(ctx, updateReq)
	if err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 4: Commit
	// ========================================================================

	if err := guard.commit(ctx); err != nil {
		resp.ProcessingErrors = append(resp.ProcessingErrors, catalog.ProcessingDetails{
			SourceID: f.config.ID,
			Err:      err,
			Message:  "content commit failed",
		})
	}
	return resp, nil
}

// ============================================================================
// Content preparation
// ============================================================================

// prepareContent stages every item and gives it a metacard. Primary items
// are handled first so derived items can find their parent.
func (f *CatalogFramework) prepareContent(ctx context.Context, staging *stagingArea, items []*catalog.ContentItem, props *catalog.Properties) error {
	if props.ContentPaths == nil {
		props.ContentPaths = make(map[string]map[string]string, len(items))
	}

	ordered := make([]*catalog.ContentItem, 0, len(items))
	for _, item := range items {
		if item.Qualifier == "" {
			ordered = append(ordered, item)
		}
	}
	for _, item := range items {
		if item.Qualifier != "" {
			ordered = append(ordered, item)
		}
	}

	byID := make(map[string]*catalog.Metacard, len(items))
	for _, item := range ordered {
		if err := ctx.Err(); err != nil {
			return catalog.IngestError(catalog.KindInternal, "ingest interrupted", err)
		}

		path, head, size, err := staging.stage(item)
		if err != nil {
			return catalog.IngestError(catalog.KindStorage, "unable to stage content", err)
		}
		f.metrics.ObserveStaged(size)

		item.Source = catalog.FileSource(path)
		item.Size = size
		item.Filename = mime.SanitizeFilename(item.Filename)
		item.MimeType = f.mime.Resolve(item.MimeType, item.Filename, head)
		if mime.IsUnsafe(item.MimeType) {
			return catalog.IngestError(catalog.KindUnsupported, fmt.Sprintf("content type %s is not accepted", item.MimeType), nil)
		}
		item.Filename = f.mime.FixExtension(item.Filename, item.MimeType)

		if item.Qualifier == "" {
			m := item.Metacard
			if m == nil {
				m, err = f.transformContent(ctx, item)
				if err != nil {
					return err
				}
			}
			switch {
			case item.ID != "":
			case m.ID() != "":
				item.ID = m.ID()
			default:
				item.ID = catalog.NewID()
			}
			m.SetID(item.ID)
			describeContent(m, item)
			item.Metacard = m
			byID[item.ID] = m
		} else {
			parent := byID[item.ID]
			if parent == nil {
				parent = item.Metacard
			}
			if parent == nil {
				return structural(catalog.ClassIngest, "derived content %s has no metacard", item.URI())
			}
			item.Metacard = parent
			parent.SetAttribute(catalog.AttrDerivedResourceURI, append(parent.Values(catalog.AttrDerivedResourceURI), item.URI())...)
		}

		if props.ContentPaths[item.ID] == nil {
			props.ContentPaths[item.ID] = make(map[string]string)
		}
		props.ContentPaths[item.ID][item.Qualifier] = path
	}

	if len(props.AttributeOverrides) > 0 {
		for _, item := range items {
			if item.Qualifier == "" {
				applyOverrides(item.Metacard, props.AttributeOverrides)
			}
		}
	}
	return nil
}

// transformContent runs the input transformers matching the item's MIME
// type in order. The first metacard produced wins.
func (f *CatalogFramework) transformContent(ctx context.Context, item *catalog.ContentItem) (*catalog.Metacard, error) {
	candidates := f.transformers.FindMatches(item.MimeType)

	var errs []error
	for _, t := range candidates {
		m, err := runInputTransformer(ctx, t, item)
		if err != nil {
			logger.Debug("Input transformer %s failed on %s: %v", t.ID(), item.Filename, err)
			errs = append(errs, fmt.Errorf("%s: %w", t.ID(), err))
			continue
		}
		if m != nil {
			return m, nil
		}
	}

	return nil, catalog.IngestError(catalog.KindStructural,
		fmt.Sprintf("no input transformer could process %s (%s)", item.Filename, item.MimeType),
		errors.Join(errs...))
}

func runInputTransformer(ctx context.Context, t transform.InputTransformer, item *catalog.ContentItem) (*catalog.Metacard, error) {
	r, err := item.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return t.Transform(ctx, r, transform.Input{ID: item.ID, Filename: item.Filename, MimeType: item.MimeType})
}

// describeContent records where the metacard's content lives.
func describeContent(m *catalog.Metacard, item *catalog.ContentItem) {
	if m.Title() == "" {
		m.SetAttribute(catalog.AttrTitle, item.Filename)
	}
	m.SetAttribute(catalog.AttrResourceURI, item.URI())
	m.SetAttribute(catalog.AttrResourceSize, strconv.FormatInt(item.Size, 10))
}

// primaryMetacards returns the metacards of the primary items in order.
func primaryMetacards(items []*catalog.ContentItem) []*catalog.Metacard {
	out := make([]*catalog.Metacard, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.Qualifier != "" || item.Metacard == nil {
			continue
		}
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		out = append(out, item.Metacard)
	}
	return out
}
