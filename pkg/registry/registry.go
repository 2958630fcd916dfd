package registry

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/resource"
)

var (
	ErrNilSource   = errors.New("cannot register nil source")
	ErrEmptyID     = errors.New("cannot register source with empty id")
	ErrDuplicateID = errors.New("source id already registered")
	ErrNotFound    = errors.New("source not found")
)

// Registry manages the sources a framework can route to: federated
// sources, connected sources, catalog stores, resource readers, and the
// ranked lists of local catalog and storage providers.
//
// Remote source ids are unique across the three remote kinds, so an id
// names at most one remote source.
//
// Example usage:
//
//	reg := NewRegistry()
//	reg.SetCatalogProviders(badgerProvider)
//	reg.RegisterFederatedSource(remote)
//	reg.RegisterReader(resource.NewFileReader(roots))
//
//	src, ok := reg.FederatedSource("remote-1")
//
// Thread Safety: All methods are safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	federated map[string]catalog.FederatedSource
	connected map[string]catalog.ConnectedSource
	stores    map[string]catalog.CatalogStore
	readers   []resource.Reader

	catalogProviders *ranked[catalog.CatalogProvider]
	storageProviders *ranked[catalog.StorageProvider]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		federated:        make(map[string]catalog.FederatedSource),
		connected:        make(map[string]catalog.ConnectedSource),
		stores:           make(map[string]catalog.CatalogStore),
		catalogProviders: &ranked[catalog.CatalogProvider]{},
		storageProviders: &ranked[catalog.StorageProvider]{},
	}
}

// ============================================================================
// Remote sources
// ============================================================================

// RegisterFederatedSource adds a federated source under its id.
func (r *Registry) RegisterFederatedSource(src catalog.FederatedSource) error {
	return register(r, r.federated, src)
}

// RegisterConnectedSource adds a connected source under its id.
func (r *Registry) RegisterConnectedSource(src catalog.ConnectedSource) error {
	return register(r, r.connected, src)
}

// RegisterCatalogStore adds a catalog store under its id.
func (r *Registry) RegisterCatalogStore(store catalog.CatalogStore) error {
	return register(r, r.stores, store)
}

func register[S catalog.Source](r *Registry, into map[string]S, src S) error {
	if isNil(src) {
		return ErrNilSource
	}
	id := src.ID()
	if id == "" {
		return ErrEmptyID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.remoteExistsLocked(id) {
		return fmt.Errorf("%w: %q", ErrDuplicateID, id)
	}
	into[id] = src
	return nil
}

func (r *Registry) remoteExistsLocked(id string) bool {
	if _, ok := r.federated[id]; ok {
		return true
	}
	if _, ok := r.connected[id]; ok {
		return true
	}
	_, ok := r.stores[id]
	return ok
}

// Unregister removes the remote source with the given id, whatever its
// kind.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.remoteExistsLocked(id) {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	delete(r.federated, id)
	delete(r.connected, id)
	delete(r.stores, id)
	return nil
}

func (r *Registry) FederatedSource(id string) (catalog.FederatedSource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.federated[id]
	return src, ok
}

func (r *Registry) CatalogStore(id string) (catalog.CatalogStore, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	store, ok := r.stores[id]
	return store, ok
}

func (r *Registry) ConnectedSource(id string) (catalog.ConnectedSource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.connected[id]
	return src, ok
}

// FederatedSources returns every federated source ordered by id.
func (r *Registry) FederatedSources() []catalog.FederatedSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedValues(r.federated)
}

// ConnectedSources returns every connected source ordered by id.
func (r *Registry) ConnectedSources() []catalog.ConnectedSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedValues(r.connected)
}

// CatalogStores returns every catalog store ordered by id.
func (r *Registry) CatalogStores() []catalog.CatalogStore {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedValues(r.stores)
}

// FederatedSourceIDs returns the ids of all federated sources, sorted.
func (r *Registry) FederatedSourceIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.federated)
}

// CatalogStoreIDs returns the ids of all catalog stores, sorted.
func (r *Registry) CatalogStoreIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.stores)
}

// Sources returns the active catalog provider followed by every remote
// source. This is the set the availability poller probes.
func (r *Registry) Sources() []catalog.Source {
	var out []catalog.Source
	if p := r.CatalogProvider(); p != nil {
		out = append(out, p)
	}
	for _, s := range r.FederatedSources() {
		out = append(out, s)
	}
	for _, s := range r.ConnectedSources() {
		out = append(out, s)
	}
	for _, s := range r.CatalogStores() {
		out = append(out, s)
	}
	return out
}

// ============================================================================
// Readers
// ============================================================================

// RegisterReader appends a resource reader. Readers are consulted in
// registration order.
func (r *Registry) RegisterReader(reader resource.Reader) error {
	if isNil(reader) {
		return fmt.Errorf("cannot register nil resource reader")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.readers {
		if existing.ID() == reader.ID() {
			return fmt.Errorf("resource reader %q already registered", reader.ID())
		}
	}
	r.readers = append(r.readers, reader)
	return nil
}

// Readers returns the registered readers in order. The slice is a copy.
func (r *Registry) Readers() []resource.Reader {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]resource.Reader(nil), r.readers...)
}

// ============================================================================
// Helpers
// ============================================================================

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedValues[V any](m map[string]V) []V {
	out := make([]V, 0, len(m))
	for _, k := range sortedKeys(m) {
		out = append(out, m[k])
	}
	return out
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
