// Package badger implements a persistent catalog provider on BadgerDB.
//
// Key Namespace:
//
//	Data Type   Prefix   Key Format     Value Type
//	===============================================================
//	Metacard    "m:"     m:<id>         catalog.Document (CBOR)
//
// Metacards are stored in their portable Document form, encoded with the
// deterministic CBOR codec. Values of attributes declared by the metacard
// type are coerced back to their Go types on read; undeclared attributes
// come back as decoded.
//
// Queries scan every record and evaluate the filter in memory. That keeps
// filter semantics identical to the memory provider at the cost of a full
// scan per query.
package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/dittocat/internal/codec"
	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/store/catalog/internal/record"
)

const metacardPrefix = "m:"

func metacardKey(id string) []byte {
	return []byte(metacardPrefix + id)
}

// BadgerCatalogProviderConfig contains configuration for the badger provider.
type BadgerCatalogProviderConfig struct {
	ID          string `mapstructure:"id"`
	Title       string `mapstructure:"title"`
	Version     string `mapstructure:"version"`
	Description string `mapstructure:"description"`

	// DBPath is the directory BadgerDB keeps its files in.
	DBPath string `mapstructure:"db_path"`

	// InMemory runs badger without touching disk. DBPath is ignored.
	InMemory bool `mapstructure:"in_memory"`

	// BlockCacheSizeMB is BadgerDB's block cache size in MB (default: 64)
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb"`

	// IndexCacheSizeMB is BadgerDB's index cache size in MB (default: 32)
	IndexCacheSizeMB int64 `mapstructure:"index_cache_size_mb"`

	// Types resolves metacard type names when decoding. Nil means the
	// default type only.
	Types catalog.TypeLookup `mapstructure:"-"`

	// BadgerOptions overrides every option above except the path.
	BadgerOptions *badgerdb.Options `mapstructure:"-"`
}

// BadgerCatalogProvider is a catalog.CatalogProvider persisted in BadgerDB.
//
// Thread Safety: All operations are safe for concurrent use; write
// operations run in a single badger transaction each.
type BadgerCatalogProvider struct {
	*record.Info

	db    *badgerdb.DB
	types catalog.TypeLookup
	now   func() time.Time
}

// NewBadgerCatalogProvider opens (or creates) the database at
// config.DBPath.
//
// Parameters:
//   - ctx: Context for cancellation during initialization
//   - config: Provider identity and database options
//
// Returns:
//   - *BadgerCatalogProvider: A provider ready for use; Close it when done
//   - error: If the configuration is invalid or the database cannot be opened
func NewBadgerCatalogProvider(ctx context.Context, config BadgerCatalogProviderConfig) (*BadgerCatalogProvider, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if config.ID == "" {
		return nil, fmt.Errorf("badger catalog provider: id is required")
	}
	if config.DBPath == "" && !config.InMemory {
		return nil, fmt.Errorf("badger catalog provider: db_path is required")
	}

	var opts badgerdb.Options
	if config.BadgerOptions != nil {
		opts = *config.BadgerOptions
	} else {
		if config.InMemory {
			opts = badgerdb.DefaultOptions("").WithInMemory(true)
		} else {
			opts = badgerdb.DefaultOptions(config.DBPath)
		}
		opts = opts.WithLoggingLevel(badgerdb.WARNING)
		opts = opts.WithCompression(options.None)

		blockCacheMB := config.BlockCacheSizeMB
		if blockCacheMB == 0 {
			blockCacheMB = 64
		}
		indexCacheMB := config.IndexCacheSizeMB
		if indexCacheMB == 0 {
			indexCacheMB = 32
		}
		opts = opts.WithBlockCacheSize(blockCacheMB << 20)
		opts = opts.WithIndexCacheSize(indexCacheMB << 20)
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger.Debug("Opened badger catalog provider %s at %q", config.ID, config.DBPath)

	return &BadgerCatalogProvider{
		Info:  record.NewInfo(config.ID, config.Title, config.Version, config.Description),
		db:    db,
		types: config.Types,
		now:   time.Now,
	}, nil
}

// Close releases the database.
func (p *BadgerCatalogProvider) Close() error {
	return p.db.Close()
}

func (p *BadgerCatalogProvider) MaskID(id string) {
	p.SetID(id)
}

// IsAvailable reports whether the database is open and readable.
func (p *BadgerCatalogProvider) IsAvailable(ctx context.Context) bool {
	if ctx.Err() != nil || p.db.IsClosed() {
		return false
	}
	err := p.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(metacardKey(""))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	return err == nil
}

func (p *BadgerCatalogProvider) ContentTypes(ctx context.Context) []catalog.ContentType {
	all, err := p.loadAll(ctx)
	if err != nil {
		logger.Warn("Catalog provider %s: content types unavailable: %v", p.ID(), err)
		return []catalog.ContentType{}
	}
	return record.ContentTypes(all)
}

func (p *BadgerCatalogProvider) Query(ctx context.Context, req *catalog.QueryRequest) (*catalog.QueryResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil query request")
	}
	all, err := p.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	sourceID := p.ID()
	for _, m := range all {
		m.SetSourceID(sourceID)
	}

	results, hits := catalog.Evaluate(req.Query, all)
	return &catalog.QueryResponse{
		Request:    req,
		Results:    results,
		Hits:       hits,
		Properties: req.Properties,
	}, nil
}

// Create stores the request's metacards in one transaction. Missing ids
// are generated; an existing id is overwritten.
func (p *BadgerCatalogProvider) Create(ctx context.Context, req *catalog.CreateRequest) (*catalog.CreateResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("nil create request")
	}

	now := p.now().UTC()
	created := make([]*catalog.Metacard, 0, len(req.Metacards))

	err := p.db.Update(func(txn *badgerdb.Txn) error {
		for _, m := range req.Metacards {
			if m == nil {
				continue
			}
			stored := m.Copy()
			record.StampCreated(stored, now)
			if err := p.put(txn, stored); err != nil {
				return err
			}
			created = append(created, stored)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}

	p.stampSource(created...)
	return &catalog.CreateResponse{
		Request:    req,
		Created:    created,
		Properties: req.Properties,
	}, nil
}

// Update replaces every metacard matched by an update key in one
// transaction. Keys matching nothing are skipped.
func (p *BadgerCatalogProvider) Update(ctx context.Context, req *catalog.UpdateRequest) (*catalog.UpdateResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("nil update request")
	}

	now := p.now().UTC()
	updated := make([]catalog.UpdatePair, 0, len(req.Updates))

	err := p.db.Update(func(txn *badgerdb.Txn) error {
		for _, u := range req.Updates {
			if u.Metacard == nil {
				continue
			}
			old, err := p.find(txn, req.AttributeName, u.Key)
			if err != nil {
				return err
			}
			if old == nil {
				continue
			}

			next := u.Metacard.Copy()
			record.StampUpdated(next, old, now)
			if err := p.put(txn, next); err != nil {
				return err
			}
			updated = append(updated, catalog.UpdatePair{Old: old, New: next.Copy()})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}

	for _, pair := range updated {
		p.stampSource(pair.Old, pair.New)
	}
	return &catalog.UpdateResponse{
		Request:    req,
		Updated:    updated,
		Properties: req.Properties,
	}, nil
}

func (p *BadgerCatalogProvider) Delete(ctx context.Context, req *catalog.DeleteRequest) (*catalog.DeleteResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("nil delete request")
	}

	deleted := make([]*catalog.Metacard, 0, len(req.Values))

	err := p.db.Update(func(txn *badgerdb.Txn) error {
		for _, v := range req.Values {
			m, err := p.find(txn, req.AttributeName, v)
			if err != nil {
				return err
			}
			if m == nil {
				continue
			}
			if err := txn.Delete(metacardKey(m.ID())); err != nil {
				return err
			}
			deleted = append(deleted, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("delete: %w", err)
	}

	p.stampSource(deleted...)
	return &catalog.DeleteResponse{
		Request:    req,
		Deleted:    deleted,
		Properties: req.Properties,
	}, nil
}

// ============================================================================
// Records
// ============================================================================

func (p *BadgerCatalogProvider) put(txn *badgerdb.Txn, m *catalog.Metacard) error {
	data, err := codec.Marshal(catalog.ToDocument(m, false))
	if err != nil {
		return fmt.Errorf("encode metacard %s: %w", m.ID(), err)
	}
	return txn.Set(metacardKey(m.ID()), data)
}

func (p *BadgerCatalogProvider) decode(data []byte) (*catalog.Metacard, error) {
	var doc catalog.Document
	if err := codec.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return catalog.FromDocument(doc, p.types)
}

func (p *BadgerCatalogProvider) get(txn *badgerdb.Txn, id string) (*catalog.Metacard, error) {
	item, err := txn.Get(metacardKey(id))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var m *catalog.Metacard
	err = item.Value(func(val []byte) error {
		m, err = p.decode(val)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("decode metacard %s: %w", id, err)
	}
	return m, nil
}

// find returns the first metacard identified by key under attr, or nil.
func (p *BadgerCatalogProvider) find(txn *badgerdb.Txn, attr, key string) (*catalog.Metacard, error) {
	if attr == "" || attr == catalog.AttrID {
		return p.get(txn, key)
	}

	var found *catalog.Metacard
	err := p.scan(txn, func(m *catalog.Metacard) bool {
		if record.Matches(m, attr, key) {
			found = m
			return false
		}
		return true
	})
	return found, err
}

// scan decodes every metacard in key order until fn returns false.
func (p *BadgerCatalogProvider) scan(txn *badgerdb.Txn, fn func(*catalog.Metacard) bool) error {
	opts := badgerdb.DefaultIteratorOptions
	opts.Prefix = []byte(metacardPrefix)

	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		var m *catalog.Metacard
		err := item.Value(func(val []byte) error {
			var err error
			m, err = p.decode(val)
			return err
		})
		if err != nil {
			return fmt.Errorf("decode %s: %w", item.Key(), err)
		}
		if !fn(m) {
			return nil
		}
	}
	return nil
}

func (p *BadgerCatalogProvider) loadAll(ctx context.Context) ([]*catalog.Metacard, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all := make([]*catalog.Metacard, 0)
	err := p.db.View(func(txn *badgerdb.Txn) error {
		return p.scan(txn, func(m *catalog.Metacard) bool {
			all = append(all, m)
			return ctx.Err() == nil
		})
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return all, nil
}

func (p *BadgerCatalogProvider) stampSource(metacards ...*catalog.Metacard) {
	id := p.ID()
	for _, m := range metacards {
		m.SetSourceID(id)
	}
}

var _ catalog.CatalogProvider = (*BadgerCatalogProvider)(nil)
