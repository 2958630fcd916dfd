// Package memory implements an in-memory catalog provider.
//
// Metacards live in a map guarded by a RWMutex and are lost on restart. The
// provider keeps its own copies: callers never share a metacard with the
// stored state, in either direction.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/store/catalog/internal/record"
)

// MemoryCatalogProviderConfig contains the descriptive fields of the provider.
type MemoryCatalogProviderConfig struct {
	ID          string `mapstructure:"id"`
	Title       string `mapstructure:"title"`
	Version     string `mapstructure:"version"`
	Description string `mapstructure:"description"`
}

// MemoryCatalogProvider is a catalog.CatalogProvider backed by a map.
//
// Thread Safety: All operations are safe for concurrent use.
type MemoryCatalogProvider struct {
	*record.Info

	mu        sync.RWMutex
	metacards map[string]*catalog.Metacard
	order     []string

	now func() time.Time
}

// NewMemoryCatalogProvider creates an empty provider.
func NewMemoryCatalogProvider(ctx context.Context, config MemoryCatalogProviderConfig) (*MemoryCatalogProvider, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if config.ID == "" {
		return nil, fmt.Errorf("memory catalog provider: id is required")
	}
	return &MemoryCatalogProvider{
		Info:      record.NewInfo(config.ID, config.Title, config.Version, config.Description),
		metacards: make(map[string]*catalog.Metacard),
		now:       time.Now,
	}, nil
}

// MaskID makes the provider, and every metacard it returns, report id.
func (p *MemoryCatalogProvider) MaskID(id string) {
	p.SetID(id)
}

// IsAvailable only fails when ctx is done.
func (p *MemoryCatalogProvider) IsAvailable(ctx context.Context) bool {
	return ctx.Err() == nil
}

func (p *MemoryCatalogProvider) ContentTypes(ctx context.Context) []catalog.ContentType {
	p.mu.RLock()
	defer p.mu.RUnlock()
	all := make([]*catalog.Metacard, 0, len(p.order))
	for _, id := range p.order {
		all = append(all, p.metacards[id])
	}
	return record.ContentTypes(all)
}

// Query evaluates the request's filter over copies of every stored
// metacard.
func (p *MemoryCatalogProvider) Query(ctx context.Context, req *catalog.QueryRequest) (*catalog.QueryResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("nil query request")
	}

	sourceID := p.ID()
	p.mu.RLock()
	candidates := make([]*catalog.Metacard, 0, len(p.order))
	for _, id := range p.order {
		c := p.metacards[id].Copy()
		c.SetSourceID(sourceID)
		candidates = append(candidates, c)
	}
	p.mu.RUnlock()

	results, hits := catalog.Evaluate(req.Query, candidates)
	return &catalog.QueryResponse{
		Request:    req,
		Results:    results,
		Hits:       hits,
		Properties: req.Properties,
	}, nil
}

// Create stores copies of the request's metacards. Missing ids are
// generated; an existing id is overwritten.
func (p *MemoryCatalogProvider) Create(ctx context.Context, req *catalog.CreateRequest) (*catalog.CreateResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("nil create request")
	}

	now := p.now().UTC()
	sourceID := p.ID()

	p.mu.Lock()
	defer p.mu.Unlock()

	created := make([]*catalog.Metacard, 0, len(req.Metacards))
	for _, m := range req.Metacards {
		if m == nil {
			continue
		}
		stored := m.Copy()
		record.StampCreated(stored, now)
		p.putLocked(stored)

		out := stored.Copy()
		out.SetSourceID(sourceID)
		created = append(created, out)
	}

	return &catalog.CreateResponse{
		Request:    req,
		Created:    created,
		Properties: req.Properties,
	}, nil
}

// Update replaces every metacard matched by an update key. Keys matching
// nothing are skipped.
func (p *MemoryCatalogProvider) Update(ctx context.Context, req *catalog.UpdateRequest) (*catalog.UpdateResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("nil update request")
	}

	now := p.now().UTC()
	sourceID := p.ID()

	p.mu.Lock()
	defer p.mu.Unlock()

	updated := make([]catalog.UpdatePair, 0, len(req.Updates))
	for _, u := range req.Updates {
		if u.Metacard == nil {
			continue
		}
		old := p.findLocked(req.AttributeName, u.Key)
		if old == nil {
			continue
		}

		next := u.Metacard.Copy()
		record.StampUpdated(next, old, now)
		p.putLocked(next)

		oldOut, newOut := old.Copy(), next.Copy()
		oldOut.SetSourceID(sourceID)
		newOut.SetSourceID(sourceID)
		updated = append(updated, catalog.UpdatePair{Old: oldOut, New: newOut})
	}

	return &catalog.UpdateResponse{
		Request:    req,
		Updated:    updated,
		Properties: req.Properties,
	}, nil
}

// Delete removes every metacard matched by the request's values.
func (p *MemoryCatalogProvider) Delete(ctx context.Context, req *catalog.DeleteRequest) (*catalog.DeleteResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("nil delete request")
	}

	sourceID := p.ID()

	p.mu.Lock()
	defer p.mu.Unlock()

	deleted := make([]*catalog.Metacard, 0, len(req.Values))
	for _, v := range req.Values {
		m := p.findLocked(req.AttributeName, v)
		if m == nil {
			continue
		}
		p.removeLocked(m.ID())
		m.SetSourceID(sourceID)
		deleted = append(deleted, m)
	}

	return &catalog.DeleteResponse{
		Request:    req,
		Deleted:    deleted,
		Properties: req.Properties,
	}, nil
}

// Len returns the number of stored metacards.
func (p *MemoryCatalogProvider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.metacards)
}

func (p *MemoryCatalogProvider) putLocked(m *catalog.Metacard) {
	if _, exists := p.metacards[m.ID()]; !exists {
		p.order = append(p.order, m.ID())
	}
	p.metacards[m.ID()] = m
}

func (p *MemoryCatalogProvider) removeLocked(id string) {
	delete(p.metacards, id)
	for i, existing := range p.order {
		if existing == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			return
		}
	}
}

func (p *MemoryCatalogProvider) findLocked(attr, key string) *catalog.Metacard {
	if attr == "" || attr == catalog.AttrID {
		return p.metacards[key]
	}
	for _, id := range p.order {
		if m := p.metacards[id]; record.Matches(m, attr, key) {
			return m
		}
	}
	return nil
}

var _ catalog.CatalogProvider = (*MemoryCatalogProvider)(nil)
