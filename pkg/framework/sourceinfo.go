package framework

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/dittocat/pkg/catalog"
)

// GetSourceInfo describes the framework and, on request, the remote sources
// a query can reach. A nil request describes the local catalog only.
//
// A fanout proxy always answers with a single descriptor carrying its own
// id and the union of the content types of its available federated
// sources.
func (f *CatalogFramework) GetSourceInfo(ctx context.Context, req *catalog.SourceInfoRequest) (resp *catalog.SourceInfoResponse, err error) {
	defer f.observe(opSourceInfo, catalog.ClassSourceInfo, time.Now(), &err)

	if req == nil {
		req = &catalog.SourceInfoRequest{}
	}

	if f.config.Fanout {
		return &catalog.SourceInfoResponse{
			Request: req,
			Sources: []catalog.SourceDescriptor{f.fanoutDescriptor(ctx)},
		}, nil
	}

	var descriptors []catalog.SourceDescriptor
	switch {
	case req.Enterprise:
		descriptors = append(descriptors, f.localDescriptor(ctx))
		for _, src := range f.remoteSources() {
			descriptors = append(descriptors, f.describe(ctx, src))
		}

	case len(req.SourceIDs) > 0:
		for _, id := range uniqueStrings(req.SourceIDs) {
			if f.isLocalID(id) {
				descriptors = append(descriptors, f.localDescriptor(ctx))
				continue
			}
			src, ok := f.remoteSource(id)
			if !ok {
				return nil, catalog.SourceInfoError(catalog.KindNotFound, fmt.Sprintf("unknown source: %s", id), nil)
			}
			descriptors = append(descriptors, f.describe(ctx, src))
		}

	default:
		descriptors = append(descriptors, f.localDescriptor(ctx))
	}

	return &catalog.SourceInfoResponse{Request: req, Sources: descriptors}, nil
}

func (f *CatalogFramework) localDescriptor(ctx context.Context) catalog.SourceDescriptor {
	d := catalog.SourceDescriptor{
		ID:          f.config.ID,
		Title:       f.config.Title,
		Version:     f.config.Version,
		Description: f.config.Description,
	}
	if p := f.registry.CatalogProvider(); p != nil {
		d.Available = f.poller.IsAvailable(p)
		d.ContentTypes = f.contentTypes(ctx, p)
		d.LastAvailable = f.lastAvailable(p)
	}
	if d.ContentTypes == nil {
		d.ContentTypes = []catalog.ContentType{}
	}
	return d
}

func (f *CatalogFramework) describe(ctx context.Context, src catalog.Source) catalog.SourceDescriptor {
	return catalog.SourceDescriptor{
		ID:            src.ID(),
		Title:         src.Title(),
		Version:       src.Version(),
		Description:   src.Description(),
		ContentTypes:  catalog.UnionContentTypes(f.contentTypes(ctx, src)),
		Available:     f.poller.IsAvailable(src),
		LastAvailable: f.lastAvailable(src),
	}
}

func (f *CatalogFramework) fanoutDescriptor(ctx context.Context) catalog.SourceDescriptor {
	var (
		sets          [][]catalog.ContentType
		lastAvailable time.Time
	)
	for _, src := range f.registry.FederatedSources() {
		if !f.poller.IsAvailable(src) {
			continue
		}
		sets = append(sets, f.contentTypes(ctx, src))
		if t := f.lastAvailable(src); t.After(lastAvailable) {
			lastAvailable = t
		}
	}

	return catalog.SourceDescriptor{
		ID:            f.config.ID,
		Title:         f.config.Title,
		Version:       f.config.Version,
		Description:   f.config.Description,
		ContentTypes:  catalog.UnionContentTypes(sets...),
		Available:     true,
		LastAvailable: lastAvailable,
	}
}

// contentTypes prefers the poller's cached answer and asks the source only
// when nothing is cached.
func (f *CatalogFramework) contentTypes(ctx context.Context, src catalog.Source) []catalog.ContentType {
	if cached := f.poller.ContentTypes(src); cached != nil {
		return cached
	}
	return src.ContentTypes(ctx)
}

func (f *CatalogFramework) lastAvailable(src catalog.Source) time.Time {
	if st, ok := f.poller.Status(src.ID()); ok {
		return st.LastAvailable
	}
	return time.Time{}
}
