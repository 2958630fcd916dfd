// Package storage implements the transactional StorageProvider on top of a
// ContentStore.
//
// Content for a metacard lives under "<id>/<qualifier>/": the bytes in
// "data" and a CBOR descriptor (filename, MIME type, size) in
// "descriptor". The primary product uses "_" as its qualifier segment.
//
// Create and Update stage under ".pending/<txid>/" and Delete only records
// what to remove. Commit publishes the staged changes; Rollback discards
// them. A transaction id is consumed by its first Commit or Rollback.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/dittocat/internal/codec"
	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/store/content"
)

const (
	// PendingPrefix is the key prefix of staged transactions.
	PendingPrefix = ".pending/"

	primaryQualifier = "_"
	dataName         = "data"
	descriptorName   = "descriptor"

	// probeKey is checked by IsAvailable. It never needs to exist.
	probeKey = ".probe/_/data"
)

var (
	ErrUnknownTransaction = errors.New("unknown storage transaction")
	ErrInvalidItem        = errors.New("invalid content item")
	ErrContentExists      = errors.New("content already exists")
)

// Metrics observes storage activity. The zero value of Provider uses a
// no-op implementation.
type Metrics interface {
	// ObserveStaged records bytes written to staging.
	ObserveStaged(bytes int64)

	// ObserveTransaction records a finished transaction. outcome is
	// "commit", "rollback" or "commit_failed".
	ObserveTransaction(operation catalog.OperationType, outcome string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveStaged(int64)                              {}
func (noopMetrics) ObserveTransaction(catalog.OperationType, string) {}

// descriptor is persisted next to the data of every content item.
type descriptor struct {
	ID        string    `cbor:"id"`
	Qualifier string    `cbor:"qualifier,omitempty"`
	Filename  string    `cbor:"filename"`
	MimeType  string    `cbor:"mime_type"`
	Size      int64     `cbor:"size"`
	Stored    time.Time `cbor:"stored"`
}

// transaction is the staged state of one storage request.
type transaction struct {
	op catalog.OperationType
	// staged maps final item directory -> staged item directory.
	staged map[string]string
	// deletes lists final item directories to remove on commit.
	deletes []string
}

// Provider implements catalog.StorageProvider.
type Provider struct {
	store   content.ContentStore
	metrics Metrics

	mu      sync.Mutex
	pending map[string]*transaction
}

// Option configures a Provider.
type Option func(*Provider)

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(p *Provider) {
		if m != nil {
			p.metrics = m
		}
	}
}

// New creates a storage provider over store.
func New(store content.ContentStore, opts ...Option) *Provider {
	p := &Provider{
		store:   store,
		metrics: noopMetrics{},
		pending: make(map[string]*transaction),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Store returns the underlying content store.
func (p *Provider) Store() content.ContentStore {
	return p.store
}

// ============================================================================
// Key layout
// ============================================================================

func itemDir(id, qualifier string) string {
	if qualifier == "" {
		qualifier = primaryQualifier
	}
	return id + "/" + qualifier
}

func pendingDir(txID string) string {
	return PendingPrefix + txID + "/"
}

func dataKey(dir string) string       { return dir + "/" + dataName }
func descriptorKey(dir string) string { return dir + "/" + descriptorName }

// ============================================================================
// StorageProvider
// ============================================================================

func (p *Provider) Create(ctx context.Context, req *catalog.CreateStorageRequest) (*catalog.CreateStorageResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil create request", ErrInvalidItem)
	}

	for _, item := range req.ContentItems {
		if err := validateItem(item); err != nil {
			return nil, err
		}
		exists, err := p.store.ContentExists(ctx, dataKey(itemDir(item.ID, item.Qualifier)))
		if err != nil {
			return nil, fmt.Errorf("check content %s: %w", item.URI(), err)
		}
		if exists {
			return nil, fmt.Errorf("%s: %w", item.URI(), ErrContentExists)
		}
	}

	created, err := p.stage(ctx, req.ID, catalog.OperationCreate, req.ContentItems)
	if err != nil {
		return nil, err
	}

	return &catalog.CreateStorageResponse{
		Request:          req,
		Created:          created,
		Properties:       req.Properties,
		ProcessingErrors: []catalog.ProcessingDetails{},
	}, nil
}

func (p *Provider) Update(ctx context.Context, req *catalog.UpdateStorageRequest) (*catalog.UpdateStorageResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil update request", ErrInvalidItem)
	}

	for _, item := range req.ContentItems {
		if err := validateItem(item); err != nil {
			return nil, err
		}
	}

	updated, err := p.stage(ctx, req.ID, catalog.OperationUpdate, req.ContentItems)
	if err != nil {
		return nil, err
	}

	return &catalog.UpdateStorageResponse{
		Request:          req,
		Updated:          updated,
		Properties:       req.Properties,
		ProcessingErrors: []catalog.ProcessingDetails{},
	}, nil
}

// Delete records every stored item of the metacards whose resource URI
// points at this provider. Metacards without stored content are ignored.
func (p *Provider) Delete(ctx context.Context, req *catalog.DeleteStorageRequest) (*catalog.DeleteStorageResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil delete request", ErrInvalidItem)
	}

	resp := &catalog.DeleteStorageResponse{
		Request:    req,
		Deleted:    []*catalog.ContentItem{},
		Properties: req.Properties,
	}

	var dirs []string
	for _, m := range req.Metacards {
		uri := m.ResourceURI()
		if uri == nil || uri.Scheme != catalog.ContentScheme {
			continue
		}
		id, _, err := catalog.ParseContentURI(uri)
		if err != nil {
			logger.Warn("Skipping content delete for metacard %s: %v", m.ID(), err)
			continue
		}

		keys, err := p.store.ListContent(ctx, id+"/")
		if err != nil {
			return nil, fmt.Errorf("list content %s: %w", id, err)
		}
		for _, key := range keys {
			dir, ok := strings.CutSuffix(key, "/"+dataName)
			if !ok {
				continue
			}
			item, err := p.loadItem(ctx, dir, m)
			if err != nil {
				logger.Warn("Content %s has no readable descriptor: %v", dir, err)
				item = &catalog.ContentItem{ID: id, Metacard: m}
			}
			dirs = append(dirs, dir)
			resp.Deleted = append(resp.Deleted, item)
		}
	}

	p.mu.Lock()
	tx := p.open(req.ID, catalog.OperationDelete)
	tx.deletes = append(tx.deletes, dirs...)
	p.mu.Unlock()

	return resp, nil
}

// Read serves a content URI. The URI fragment selects a derived item; when
// it is empty the request's Qualifier property is used instead.
func (p *Provider) Read(ctx context.Context, req *catalog.ReadStorageRequest) (*catalog.ReadStorageResponse, error) {
	if req == nil || req.ResourceURI == nil {
		return nil, fmt.Errorf("%w: read request without a resource URI", ErrInvalidItem)
	}

	id, qualifier, err := catalog.ParseContentURI(req.ResourceURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidItem, err)
	}
	if qualifier == "" {
		qualifier = req.Properties.Qualifier
	}

	dir := itemDir(id, qualifier)
	exists, err := p.store.ContentExists(ctx, dataKey(dir))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%s: %w", catalog.ContentURI(id, qualifier), content.ErrContentNotFound)
	}

	item, err := p.loadItem(ctx, dir, nil)
	if err != nil {
		return nil, err
	}

	return &catalog.ReadStorageResponse{
		Request:    req,
		Item:       item,
		Properties: req.Properties,
	}, nil
}

// Commit publishes a transaction. Staged items replace the stored ones and
// recorded deletes are applied. When publishing fails the transaction stays
// open so Rollback can discard its staging area.
func (p *Provider) Commit(ctx context.Context, req catalog.StorageRequest) error {
	tx, err := p.take(req)
	if err != nil {
		return err
	}

	if err := p.publish(ctx, tx); err != nil {
		p.restore(req.TransactionID(), tx)
		p.metrics.ObserveTransaction(tx.op, "commit_failed")
		return fmt.Errorf("commit %s: %w", req.TransactionID(), err)
	}

	p.discardStaging(ctx, req.TransactionID())
	p.metrics.ObserveTransaction(tx.op, "commit")
	logger.Debug("Storage transaction %s committed (%s)", req.TransactionID(), tx.op)
	return nil
}

// Rollback discards a transaction's staged content.
func (p *Provider) Rollback(ctx context.Context, req catalog.StorageRequest) error {
	tx, err := p.take(req)
	if err != nil {
		return err
	}

	p.discardStaging(ctx, req.TransactionID())
	p.metrics.ObserveTransaction(tx.op, "rollback")
	logger.Debug("Storage transaction %s rolled back (%s)", req.TransactionID(), tx.op)
	return nil
}

func (p *Provider) IsAvailable(ctx context.Context) bool {
	_, err := p.store.ContentExists(ctx, probeKey)
	if err != nil {
		logger.Debug("Storage provider unavailable: %v", err)
		return false
	}
	return true
}

// ============================================================================
// Collector support
// ============================================================================

// PendingTransactions returns the ids of open transactions, sorted.
func (p *Provider) PendingTransactions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.pending))
	for id := range p.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StoredIDs returns the metacard ids that have committed content, sorted.
func (p *Provider) StoredIDs(ctx context.Context) ([]string, error) {
	keys, err := p.store.ListContent(ctx, "")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, key := range keys {
		if strings.HasPrefix(key, ".") {
			continue
		}
		id, _, _ := strings.Cut(key, "/")
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// AbandonedTransactions returns staging directories with no open
// transaction, left behind by a crash or a failed commit.
func (p *Provider) AbandonedTransactions(ctx context.Context) ([]string, error) {
	keys, err := p.store.ListContent(ctx, PendingPrefix)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, key := range keys {
		txID, _, _ := strings.Cut(strings.TrimPrefix(key, PendingPrefix), "/")
		if _, open := p.pending[txID]; open {
			continue
		}
		if _, dup := seen[txID]; dup {
			continue
		}
		seen[txID] = struct{}{}
		out = append(out, txID)
	}
	return out, nil
}

// PurgeContent removes all committed content of a metacard id.
func (p *Provider) PurgeContent(ctx context.Context, id string) error {
	keys, err := p.store.ListContent(ctx, id+"/")
	if err != nil {
		return err
	}
	return p.deleteKeys(ctx, keys)
}

// PurgeTransaction removes the staging area of an abandoned transaction.
func (p *Provider) PurgeTransaction(ctx context.Context, txID string) error {
	keys, err := p.store.ListContent(ctx, pendingDir(txID))
	if err != nil {
		return err
	}
	return p.deleteKeys(ctx, keys)
}

// ============================================================================
// Internals
// ============================================================================

func validateItem(item *catalog.ContentItem) error {
	if item == nil {
		return fmt.Errorf("%w: nil item", ErrInvalidItem)
	}
	if item.ID == "" {
		return fmt.Errorf("%w: item without id", ErrInvalidItem)
	}
	if err := content.ValidateKey(itemDir(item.ID, item.Qualifier)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidItem, err)
	}
	return nil
}

// open returns the transaction for txID, creating it. Callers hold mu.
func (p *Provider) open(txID string, op catalog.OperationType) *transaction {
	tx, ok := p.pending[txID]
	if !ok {
		tx = &transaction{op: op, staged: make(map[string]string)}
		p.pending[txID] = tx
	}
	return tx
}

func (p *Provider) take(req catalog.StorageRequest) (*transaction, error) {
	if req == nil {
		return nil, ErrUnknownTransaction
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	tx, ok := p.pending[req.TransactionID()]
	if !ok {
		return nil, fmt.Errorf("%s: %w", req.TransactionID(), ErrUnknownTransaction)
	}
	delete(p.pending, req.TransactionID())
	return tx, nil
}

// restore reopens a transaction whose commit failed.
func (p *Provider) restore(txID string, tx *transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.pending[txID]; !ok {
		p.pending[txID] = tx
	}
}

// stage writes every item below the transaction's pending directory and
// returns items backed by the stored bytes.
func (p *Provider) stage(ctx context.Context, txID string, op catalog.OperationType, items []*catalog.ContentItem) ([]*catalog.ContentItem, error) {
	p.mu.Lock()
	p.open(txID, op)
	p.mu.Unlock()

	out := make([]*catalog.ContentItem, 0, len(items))
	for _, item := range items {
		final := itemDir(item.ID, item.Qualifier)
		staged := pendingDir(txID) + final

		rc, err := item.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", item.URI(), err)
		}
		n, err := p.store.WriteContent(ctx, dataKey(staged), rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", item.URI(), err)
		}
		p.metrics.ObserveStaged(n)

		desc := descriptor{
			ID:        item.ID,
			Qualifier: item.Qualifier,
			Filename:  item.Filename,
			MimeType:  item.MimeType,
			Size:      n,
			Stored:    time.Now().UTC(),
		}
		if err := p.writeDescriptor(ctx, descriptorKey(staged), desc); err != nil {
			return nil, err
		}

		p.mu.Lock()
		if tx, ok := p.pending[txID]; ok {
			tx.staged[final] = staged
		}
		p.mu.Unlock()

		out = append(out, &catalog.ContentItem{
			ID:        item.ID,
			Qualifier: item.Qualifier,
			Filename:  item.Filename,
			MimeType:  item.MimeType,
			Size:      n,
			Metacard:  item.Metacard,
			Source:    &storeSource{store: p.store, keys: []string{dataKey(staged), dataKey(final)}},
		})
	}
	return out, nil
}

func (p *Provider) publish(ctx context.Context, tx *transaction) error {
	finals := make([]string, 0, len(tx.staged))
	for final := range tx.staged {
		finals = append(finals, final)
	}
	sort.Strings(finals)

	for _, final := range finals {
		staged := tx.staged[final]
		if err := content.Move(ctx, p.store, dataKey(staged), dataKey(final)); err != nil {
			return fmt.Errorf("publish %s: %w", final, err)
		}
		if err := content.Move(ctx, p.store, descriptorKey(staged), descriptorKey(final)); err != nil {
			return fmt.Errorf("publish descriptor %s: %w", final, err)
		}
	}

	var keys []string
	for _, dir := range tx.deletes {
		keys = append(keys, dataKey(dir), descriptorKey(dir))
	}
	return p.deleteKeys(ctx, keys)
}

func (p *Provider) discardStaging(ctx context.Context, txID string) {
	if err := p.PurgeTransaction(ctx, txID); err != nil {
		logger.Warn("Failed to clean staging area of transaction %s: %v", txID, err)
	}
}

func (p *Provider) deleteKeys(ctx context.Context, keys []string) error {
	failures, err := content.DeleteAll(ctx, p.store, keys)
	if err != nil {
		return err
	}
	if len(failures) > 0 {
		var errs []error
		for key, ferr := range failures {
			errs = append(errs, fmt.Errorf("%s: %w", key, ferr))
		}
		return errors.Join(errs...)
	}
	return nil
}

func (p *Provider) writeDescriptor(ctx context.Context, key string, d descriptor) error {
	data, err := codec.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode descriptor: %w", err)
	}
	if _, err := p.store.WriteContent(ctx, key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write descriptor %s: %w", key, err)
	}
	return nil
}

// loadItem rebuilds a content item from a committed item directory.
func (p *Provider) loadItem(ctx context.Context, dir string, m *catalog.Metacard) (*catalog.ContentItem, error) {
	raw, err := content.ReadAll(ctx, p.store, descriptorKey(dir))
	if err != nil {
		return nil, fmt.Errorf("read descriptor %s: %w", dir, err)
	}
	var d descriptor
	if err := codec.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode descriptor %s: %w", dir, err)
	}

	return &catalog.ContentItem{
		ID:        d.ID,
		Qualifier: d.Qualifier,
		Filename:  d.Filename,
		MimeType:  d.MimeType,
		Size:      d.Size,
		Metacard:  m,
		Source:    &storeSource{store: p.store, keys: []string{dataKey(dir)}},
	}, nil
}
