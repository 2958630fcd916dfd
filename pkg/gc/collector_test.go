package gc

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/storage"
	"github.com/marmos91/dittocat/pkg/store/catalog/memory"
	contentmemory "github.com/marmos91/dittocat/pkg/store/content/memory"
)

type fixture struct {
	provider *memory.MemoryCatalogProvider
	storage  *storage.Provider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	provider, err := memory.NewMemoryCatalogProvider(ctx, memory.MemoryCatalogProviderConfig{ID: "local"})
	require.NoError(t, err)
	store, err := contentmemory.NewMemoryContentStore(ctx)
	require.NoError(t, err)

	// Abandoned staging area, as left by a crash.
	_, err = store.WriteContent(ctx, storage.PendingPrefix+"crashed/x/_/data", strings.NewReader("partial"))
	require.NoError(t, err)

	return &fixture{provider: provider, storage: storage.New(store)}
}

// store commits content for id, optionally with a metacard in the catalog.
func (f *fixture) store(t *testing.T, id string, withMetacard bool) {
	t.Helper()
	ctx := context.Background()

	m := catalog.NewMetacard(nil)
	m.SetID(id)
	req := catalog.NewCreateStorageRequest(&catalog.ContentItem{
		ID:       id,
		Filename: id + ".txt",
		MimeType: "text/plain",
		Metacard: m,
		Source:   catalog.BytesSource("content of " + id),
	})
	_, err := f.storage.Create(ctx, req)
	require.NoError(t, err)
	require.NoError(t, f.storage.Commit(ctx, req))

	if withMetacard {
		_, err := f.provider.Create(ctx, &catalog.CreateRequest{Metacards: []*catalog.Metacard{m}})
		require.NoError(t, err)
	}
}

type recordingMetrics struct {
	mu   sync.Mutex
	runs []*Stats
	errs []error
}

func (r *recordingMetrics) ObserveCollection(stats *Stats, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, stats)
	r.errs = append(r.errs, err)
}

func TestCollectPurgesOrphans(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store(t, "kept", true)
	f.store(t, "orphan-1", false)
	f.store(t, "orphan-2", false)

	metrics := &recordingMetrics{}
	c, err := NewCollector(f.provider, f.storage, Config{BatchSize: 2}, metrics)
	require.NoError(t, err)

	stats, err := c.RunNow(ctx)
	require.NoError(t, err)

	assert.Equal(t, uint64(3), stats.StoredCount)
	assert.Equal(t, uint64(1), stats.ReferencedCount)
	assert.Equal(t, uint64(2), stats.OrphanedCount)
	assert.Equal(t, uint64(2), stats.DeletedCount)
	assert.Equal(t, uint64(1), stats.AbandonedCount)
	assert.Equal(t, uint64(1), stats.PurgedTransactions)
	assert.Zero(t, stats.FailedCount)
	assert.False(t, stats.EndTime.IsZero())

	ids, err := f.storage.StoredIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, ids)

	abandoned, err := f.storage.AbandonedTransactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, abandoned)

	require.Len(t, metrics.runs, 1)
	assert.NoError(t, metrics.errs[0])
	assert.Contains(t, stats.Summary(), "orphaned=2")
}

func TestDryRunKeepsContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store(t, "orphan", false)

	c, err := NewCollector(f.provider, f.storage, Config{DryRun: true}, nil)
	require.NoError(t, err)

	stats, err := c.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.OrphanedCount)
	assert.Zero(t, stats.DeletedCount)
	assert.Zero(t, stats.PurgedTransactions)

	ids, err := f.storage.StoredIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"orphan"}, ids)
}

type failingIndex struct {
	ContentIndex
}

func (failingIndex) StoredIDs(context.Context) ([]string, error) {
	return nil, errors.New("store offline")
}

func TestCollectReportsListFailure(t *testing.T) {
	f := newFixture(t)
	metrics := &recordingMetrics{}
	c, err := NewCollector(f.provider, failingIndex{}, Config{}, metrics)
	require.NoError(t, err)

	_, err = c.RunNow(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store offline")
	require.Len(t, metrics.errs, 1)
	assert.Error(t, metrics.errs[0])
}

func TestNewCollectorValidates(t *testing.T) {
	f := newFixture(t)

	_, err := NewCollector(nil, f.storage, Config{}, nil)
	assert.Error(t, err)
	_, err = NewCollector(f.provider, nil, Config{}, nil)
	assert.Error(t, err)

	c, err := NewCollector(f.provider, f.storage, Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, c.config.Interval)
	assert.Equal(t, 100, c.config.BatchSize)
}

func TestBackgroundWorker(t *testing.T) {
	f := newFixture(t)
	f.store(t, "orphan", false)

	c, err := NewCollector(f.provider, f.storage, Config{Enabled: true, Interval: 10 * time.Millisecond}, nil)
	require.NoError(t, err)
	c.Start()
	c.Start()

	require.Eventually(t, func() bool {
		ids, err := f.storage.StoredIDs(context.Background())
		return err == nil && len(ids) == 0
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.Stop(ctx))
}

func TestStopWithoutStart(t *testing.T) {
	f := newFixture(t)
	c, err := NewCollector(f.provider, f.storage, Config{}, nil)
	require.NoError(t, err)
	c.Start()
	assert.NoError(t, c.Stop(context.Background()))
}
