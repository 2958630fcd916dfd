package registry

import (
	"sync"

	"github.com/marmos91/dittocat/pkg/catalog"
)

// ranked holds a ranked list of interchangeable providers. The first entry
// is the active one. Rebinding swaps the whole list under the lock so a
// reader never sees a partial update.
type ranked[T any] struct {
	mu    sync.RWMutex
	items []T
}

func (h *ranked[T]) set(items []T) {
	kept := make([]T, 0, len(items))
	for _, it := range items {
		if !isNil(it) {
			kept = append(kept, it)
		}
	}

	h.mu.Lock()
	h.items = kept
	h.mu.Unlock()
}

func (h *ranked[T]) active() (T, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var zero T
	if len(h.items) == 0 {
		return zero, false
	}
	return h.items[0], true
}

func (h *ranked[T]) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.items)
}

// SetCatalogProviders rebinds the local catalog providers, best ranked
// first. Nil entries are dropped; an empty list unbinds the catalog.
func (r *Registry) SetCatalogProviders(providers ...catalog.CatalogProvider) {
	r.catalogProviders.set(providers)
}

// CatalogProvider returns the active local catalog provider, or nil.
func (r *Registry) CatalogProvider() catalog.CatalogProvider {
	p, ok := r.catalogProviders.active()
	if !ok {
		return nil
	}
	return p
}

// CountCatalogProviders returns the number of bound catalog providers.
func (r *Registry) CountCatalogProviders() int {
	return r.catalogProviders.len()
}

// SetStorageProviders rebinds the local storage providers, best ranked
// first.
func (r *Registry) SetStorageProviders(providers ...catalog.StorageProvider) {
	r.storageProviders.set(providers)
}

// StorageProvider returns the active storage provider, or nil.
func (r *Registry) StorageProvider() catalog.StorageProvider {
	p, ok := r.storageProviders.active()
	if !ok {
		return nil
	}
	return p
}
