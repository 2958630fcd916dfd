package testing

import (
	"context"
	"testing"

	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite is a test suite for CatalogProvider implementations. It
// checks the provider contract the framework relies on, so the memory and
// badger providers run the same assertions.
//
// Usage:
//
//	func TestMyProvider(t *testing.T) {
//	    suite := &testing.StoreTestSuite{
//	        NewStore: func() catalog.CatalogProvider {
//	            return myprovider.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh, empty provider for each test.
	NewStore func() catalog.CatalogProvider
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("WriteOperations", suite.RunWriteTests)
	t.Run("QueryOperations", suite.RunQueryTests)
	t.Run("SourceOperations", suite.RunSourceTests)
}

func testContext() context.Context {
	return context.Background()
}

// ============================================================================
// Helpers
// ============================================================================

func newMetacard(id, title string) *catalog.Metacard {
	m := catalog.NewMetacard(nil)
	if id != "" {
		m.SetID(id)
	}
	m.SetAttribute(catalog.AttrTitle, title)
	return m
}

func mustCreate(t *testing.T, p catalog.CatalogProvider, metacards ...*catalog.Metacard) []*catalog.Metacard {
	t.Helper()
	resp, err := p.Create(testContext(), &catalog.CreateRequest{Metacards: metacards})
	require.NoError(t, err)
	require.Len(t, resp.Created, len(metacards))
	return resp.Created
}

func queryAll(t *testing.T, p catalog.CatalogProvider, q catalog.Query) *catalog.QueryResponse {
	t.Helper()
	req := &catalog.QueryRequest{Query: q}
	resp, err := p.Query(testContext(), req)
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.NotNil(t, resp.Results)
	require.Same(t, req, resp.Request)
	return resp
}

func ids(results []*catalog.Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Metacard.ID())
	}
	return out
}
