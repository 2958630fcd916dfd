package registry

import (
	"context"
	"net/url"
	"sync"
	"testing"

	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/source/sourcetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RemoteSources(t *testing.T) {
	reg := NewRegistry()

	require.NoError(t, reg.RegisterFederatedSource(sourcetest.New("fed-b")))
	require.NoError(t, reg.RegisterFederatedSource(sourcetest.New("fed-a")))
	require.NoError(t, reg.RegisterConnectedSource(sourcetest.New("conn")))
	require.NoError(t, reg.RegisterCatalogStore(sourcetest.New("store")))

	t.Run("Lookup", func(t *testing.T) {
		src, ok := reg.FederatedSource("fed-a")
		require.True(t, ok)
		assert.Equal(t, "fed-a", src.ID())

		_, ok = reg.FederatedSource("store")
		assert.False(t, ok)

		store, ok := reg.CatalogStore("store")
		require.True(t, ok)
		assert.Equal(t, "store", store.ID())
	})

	t.Run("SortedListing", func(t *testing.T) {
		assert.Equal(t, []string{"fed-a", "fed-b"}, reg.FederatedSourceIDs())
		assert.Len(t, reg.ConnectedSources(), 1)
		assert.Equal(t, []string{"store"}, reg.CatalogStoreIDs())
	})

	t.Run("RejectsInvalid", func(t *testing.T) {
		assert.ErrorIs(t, reg.RegisterFederatedSource(nil), ErrNilSource)
		var typed *sourcetest.Source
		assert.ErrorIs(t, reg.RegisterCatalogStore(typed), ErrNilSource)
		assert.ErrorIs(t, reg.RegisterFederatedSource(sourcetest.New("")), ErrEmptyID)
		assert.ErrorIs(t, reg.RegisterConnectedSource(sourcetest.New("fed-a")), ErrDuplicateID)
	})

	t.Run("Unregister", func(t *testing.T) {
		require.NoError(t, reg.Unregister("fed-b"))
		assert.Equal(t, []string{"fed-a"}, reg.FederatedSourceIDs())
		assert.ErrorIs(t, reg.Unregister("fed-b"), ErrNotFound)
	})

	t.Run("SourcesIncludesProvider", func(t *testing.T) {
		assert.Len(t, reg.Sources(), 3)
		reg.SetCatalogProviders(sourcetest.New("local"))
		sources := reg.Sources()
		require.Len(t, sources, 4)
		assert.Equal(t, "local", sources[0].ID())
	})
}

func TestRegistry_RankedProviders(t *testing.T) {
	reg := NewRegistry()
	assert.Nil(t, reg.CatalogProvider())
	assert.Nil(t, reg.StorageProvider())

	first, second := sourcetest.New("first"), sourcetest.New("second")
	reg.SetCatalogProviders(nil, first, second)
	assert.Equal(t, 2, reg.CountCatalogProviders())
	assert.Same(t, first, reg.CatalogProvider())

	reg.SetCatalogProviders(second)
	assert.Same(t, second, reg.CatalogProvider())

	reg.SetCatalogProviders()
	assert.Nil(t, reg.CatalogProvider())
}

func TestRegistry_ConcurrentRebind(t *testing.T) {
	reg := NewRegistry()
	a, b := sourcetest.New("a"), sourcetest.New("b")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				reg.SetCatalogProviders(a, b)
			} else {
				reg.SetCatalogProviders(b, a)
			}
		}(i)
		go func() {
			defer wg.Done()
			if p := reg.CatalogProvider(); p != nil {
				assert.Contains(t, []string{"a", "b"}, p.ID())
			}
		}()
	}
	wg.Wait()
}

type stubReader struct{ id string }

func (s stubReader) ID() string        { return s.id }
func (s stubReader) Schemes() []string { return []string{"file"} }
func (s stubReader) Retrieve(context.Context, *url.URL, catalog.Properties) (*catalog.ResourceResponse, error) {
	return nil, nil
}
func (s stubReader) Options(*catalog.Metacard) []string { return nil }

func TestRegistry_Readers(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterReader(stubReader{"one"}))
	require.NoError(t, reg.RegisterReader(stubReader{"two"}))
	assert.Error(t, reg.RegisterReader(stubReader{"one"}))
	assert.Error(t, reg.RegisterReader(nil))

	readers := reg.Readers()
	require.Len(t, readers, 2)
	assert.Equal(t, "one", readers[0].ID())
}

func TestPermittedFederatedSources(t *testing.T) {
	reg := NewRegistry()
	open := sourcetest.New("open")
	secret := sourcetest.New("secret")
	secret.SetSecurity(map[string][]string{"clearance": {"ts"}})
	require.NoError(t, reg.RegisterFederatedSource(open))
	require.NoError(t, reg.RegisterFederatedSource(secret))

	permitted, denied := reg.PermittedFederatedSources(nil)
	require.Len(t, permitted, 1)
	assert.Equal(t, "open", permitted[0].ID())
	require.Len(t, denied, 1)

	cleared := &catalog.Subject{Name: "alice", Attributes: map[string][]string{"clearance": {"ts"}}}
	permitted, denied = reg.PermittedFederatedSources(cleared)
	assert.Len(t, permitted, 2)
	assert.Empty(t, denied)
}
