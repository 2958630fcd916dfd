package framework

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/registry"
	"github.com/marmos91/dittocat/pkg/resource"
	"github.com/marmos91/dittocat/pkg/source/sourcetest"
	"github.com/marmos91/dittocat/pkg/storage"
	"github.com/marmos91/dittocat/pkg/store/catalog/memory"
	contentmemory "github.com/marmos91/dittocat/pkg/store/content/memory"
)

const testID = "ddf"

type fixture struct {
	fw      *CatalogFramework
	reg     *registry.Registry
	storage *storage.Provider
	staging string
}

// newFixture builds a framework over a memory content store and local, or
// a fresh memory catalog provider when local is nil.
func newFixture(t *testing.T, config Config, local catalog.CatalogProvider, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()

	if local == nil {
		p, err := memory.NewMemoryCatalogProvider(ctx, memory.MemoryCatalogProviderConfig{ID: "provider"})
		require.NoError(t, err)
		local = p
	}

	store, err := contentmemory.NewMemoryContentStore(ctx)
	require.NoError(t, err)
	sp := storage.New(store)

	reg := registry.NewRegistry()
	reg.SetCatalogProviders(local)
	reg.SetStorageProviders(sp)
	require.NoError(t, reg.RegisterReader(resource.NewContentReader(reg.StorageProvider)))

	if config.ID == "" {
		config.ID = testID
	}
	if config.StagingDir == "" {
		config.StagingDir = t.TempDir()
	}

	fw, err := New(config, reg, opts...)
	require.NoError(t, err)

	return &fixture{fw: fw, reg: reg, storage: sp, staging: config.StagingDir}
}

func newMetacard(id, title string) *catalog.Metacard {
	m := catalog.NewMetacard(nil)
	m.SetID(id)
	m.SetAttribute(catalog.AttrTitle, title)
	return m
}

func requireKind(t *testing.T, err error, class catalog.ErrorClass, kind catalog.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, class, catalog.ClassOf(err), "class of %v", err)
	assert.Equal(t, kind, catalog.KindOf(err), "kind of %v", err)
}

// countingStorage counts transaction endings of the wrapped provider.
type countingStorage struct {
	catalog.StorageProvider
	creates   atomic.Int32
	commits   atomic.Int32
	rollbacks atomic.Int32
}

func (c *countingStorage) Create(ctx context.Context, req *catalog.CreateStorageRequest) (*catalog.CreateStorageResponse, error) {
	c.creates.Add(1)
	return c.StorageProvider.Create(ctx, req)
}

func (c *countingStorage) Commit(ctx context.Context, req catalog.StorageRequest) error {
	c.commits.Add(1)
	return c.StorageProvider.Commit(ctx, req)
}

func (c *countingStorage) Rollback(ctx context.Context, req catalog.StorageRequest) error {
	c.rollbacks.Add(1)
	return c.StorageProvider.Rollback(ctx, req)
}

// recordingMetrics keeps the last outcome per operation.
type recordingMetrics struct {
	noopMetrics
	outcomes map[string]string
}

func (r *recordingMetrics) ObserveOperation(op, outcome string, _ time.Duration) {
	r.outcomes[op] = outcome
}

// ============================================================================
// Construction and identity
// ============================================================================

func TestNewRequiresID(t *testing.T) {
	_, err := New(Config{}, registry.NewRegistry())
	assert.Error(t, err)

	_, err = New(Config{ID: testID}, nil)
	assert.Error(t, err)
}

func TestNewMasksLocalProvider(t *testing.T) {
	local := sourcetest.New("provider")
	fx := newFixture(t, Config{}, local)

	assert.Equal(t, testID, local.ID())
	assert.Equal(t, testID, fx.fw.ID())
}

func TestSourceIDs(t *testing.T) {
	fx := newFixture(t, Config{}, nil)
	require.NoError(t, fx.reg.RegisterFederatedSource(sourcetest.New("beta")))
	require.NoError(t, fx.reg.RegisterFederatedSource(sourcetest.New("alpha")))

	assert.Equal(t, []string{testID, "alpha", "beta"}, fx.fw.SourceIDs())

	fanout := newFixture(t, Config{Fanout: true}, nil)
	require.NoError(t, fanout.reg.RegisterFederatedSource(sourcetest.New("alpha")))
	assert.Equal(t, []string{testID}, fanout.fw.SourceIDs())
	assert.True(t, fanout.fw.FanoutEnabled())
}

func TestBindCatalogProvidersMasks(t *testing.T) {
	fx := newFixture(t, Config{}, nil)
	next := sourcetest.New("replacement")

	fx.fw.BindCatalogProviders(next)

	assert.Equal(t, testID, next.ID())
	assert.Same(t, next, fx.reg.CatalogProvider())
}

// ============================================================================
// Fanout writes
// ============================================================================

func TestFanoutRejectsWrites(t *testing.T) {
	local := sourcetest.New("provider")
	fx := newFixture(t, Config{Fanout: true}, local)
	ctx := context.Background()

	_, err := fx.fw.Create(ctx, &catalog.CreateRequest{Metacards: []*catalog.Metacard{newMetacard("a", "A")}})
	requireKind(t, err, catalog.ClassIngest, catalog.KindUnsupported)
	assert.Contains(t, err.Error(), fanoutWriteMessage)

	_, err = fx.fw.Update(ctx, catalog.NewUpdateRequestByID(newMetacard("a", "A")))
	requireKind(t, err, catalog.ClassIngest, catalog.KindUnsupported)

	_, err = fx.fw.Delete(ctx, catalog.NewDeleteRequestByID("a"))
	requireKind(t, err, catalog.ClassIngest, catalog.KindUnsupported)

	_, err = fx.fw.CreateStorage(ctx, catalog.NewCreateStorageRequest(&catalog.ContentItem{
		Filename: "a.txt",
		Source:   catalog.BytesSource("a"),
	}))
	requireKind(t, err, catalog.ClassIngest, catalog.KindUnsupported)

	assert.Zero(t, local.Creates())
	assert.Zero(t, local.Updates())
	assert.Zero(t, local.Deletes())
}

// ============================================================================
// Response normalization
// ============================================================================

func TestValidateFixQueryResponseIsIdempotent(t *testing.T) {
	req := &catalog.QueryRequest{Query: catalog.NewQuery(nil)}
	raw := &catalog.QueryResponse{
		Results: []*catalog.Result{
			{Metacard: newMetacard("a", "A")},
			nil,
			{Metacard: nil},
		},
	}

	once, err := validateFixQueryResponse(raw, req)
	require.NoError(t, err)
	twice, err := validateFixQueryResponse(once, req)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Len(t, twice.Results, 1)
	assert.Same(t, req, twice.Request)
	assert.NotNil(t, twice.Details)
}

func TestValidateFixQueryResponseRejectsNil(t *testing.T) {
	_, err := validateFixQueryResponse(nil, &catalog.QueryRequest{})
	requireKind(t, err, catalog.ClassFederation, catalog.KindInternal)
}

func TestValidateFixIngestResponsesWrapRequest(t *testing.T) {
	req := &catalog.CreateRequest{Metacards: []*catalog.Metacard{newMetacard("a", "A")}}
	req.Properties.LocalDestination = true

	resp := validateFixCreateResponse(&catalog.CreateResponse{}, req)
	assert.Same(t, req, resp.Request)
	assert.NotNil(t, resp.Created)
	assert.True(t, resp.Properties.LocalDestination)

	again := validateFixCreateResponse(resp, req)
	assert.Equal(t, resp, again)

	del := validateFixDeleteResponse(nil, &catalog.DeleteRequest{})
	assert.NotNil(t, del.Request)
	assert.NotNil(t, del.Deleted)

	upd := validateFixUpdateResponse(nil, &catalog.UpdateRequest{})
	assert.NotNil(t, upd.Request)
	assert.NotNil(t, upd.Updated)
}

// ============================================================================
// Metrics and panics
// ============================================================================

type panickingProvider struct {
	*sourcetest.Source
}

func (p panickingProvider) Create(context.Context, *catalog.CreateRequest) (*catalog.CreateResponse, error) {
	panic("provider exploded")
}

func TestPanicBecomesInternalError(t *testing.T) {
	rec := &recordingMetrics{outcomes: map[string]string{}}
	fx := newFixture(t, Config{}, panickingProvider{sourcetest.New("provider")}, WithMetrics(rec))

	_, err := fx.fw.Create(context.Background(), &catalog.CreateRequest{Metacards: []*catalog.Metacard{newMetacard("a", "A")}})

	requireKind(t, err, catalog.ClassIngest, catalog.KindInternal)
	assert.Equal(t, catalog.KindInternal.String(), rec.outcomes[opCreate])
}
