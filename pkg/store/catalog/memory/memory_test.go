package memory

import (
	"context"
	"testing"

	"github.com/marmos91/dittocat/pkg/catalog"
	catalogtesting "github.com/marmos91/dittocat/pkg/store/catalog/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMemoryCatalogProvider runs the complete CatalogProvider test suite
// against the MemoryCatalogProvider implementation.
func TestMemoryCatalogProvider(t *testing.T) {
	suite := &catalogtesting.StoreTestSuite{
		NewStore: func() catalog.CatalogProvider {
			p, err := NewMemoryCatalogProvider(context.Background(), MemoryCatalogProviderConfig{ID: "local"})
			if err != nil {
				t.Fatalf("Failed to create MemoryCatalogProvider: %v", err)
			}
			return p
		},
	}

	suite.Run(t)
}

func TestNewMemoryCatalogProvider_RequiresID(t *testing.T) {
	_, err := NewMemoryCatalogProvider(context.Background(), MemoryCatalogProviderConfig{})
	require.Error(t, err)
}

func TestMemoryCatalogProvider_TitleDefaultsToID(t *testing.T) {
	p, err := NewMemoryCatalogProvider(context.Background(), MemoryCatalogProviderConfig{ID: "local", Version: "1.0"})
	require.NoError(t, err)
	assert.Equal(t, "local", p.Title())
	assert.Equal(t, "1.0", p.Version())
	assert.Zero(t, p.Len())
}
