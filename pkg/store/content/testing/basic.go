package testing

import (
	"context"
	"testing"

	"github.com/marmos91/dittocat/pkg/store/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBasicTests executes read-side tests.
func (suite *StoreTestSuite) RunBasicTests(t *testing.T) {
	t.Run("ReadContent_NotFound", suite.testReadContentNotFound)
	t.Run("GetContentSize_NotFound", suite.testGetContentSizeNotFound)
	t.Run("ContentExists", suite.testContentExists)
	t.Run("ReadContent_Independent", suite.testReadContentIndependent)
	t.Run("CancelledContext", suite.testCancelledContext)
}

func (suite *StoreTestSuite) testReadContentNotFound(t *testing.T) {
	store := suite.NewStore()

	_, err := store.ReadContent(testContext(), generateTestKey("missing"))
	AssertErrorIs(t, content.ErrContentNotFound, err)
}

func (suite *StoreTestSuite) testGetContentSizeNotFound(t *testing.T) {
	store := suite.NewStore()

	_, err := store.GetContentSize(testContext(), generateTestKey("missing"))
	AssertErrorIs(t, content.ErrContentNotFound, err)
}

func (suite *StoreTestSuite) testContentExists(t *testing.T) {
	store := suite.NewStore()
	key := generateTestKey("exists")

	assertContentExists(t, store, key, false)
	mustWriteContent(t, store, key, []byte("x"))
	assertContentExists(t, store, key, true)
}

func (suite *StoreTestSuite) testReadContentIndependent(t *testing.T) {
	store := suite.NewStore()
	key := generateTestKey("independent")

	mustWriteContent(t, store, key, []byte("first"))
	first := mustReadContent(t, store, key)

	mustWriteContent(t, store, key, []byte("second"))
	assert.Equal(t, []byte("first"), first)
	assertContentEquals(t, store, key, []byte("second"))
}

func (suite *StoreTestSuite) testCancelledContext(t *testing.T) {
	store := suite.NewStore()
	ctx, cancel := context.WithCancel(testContext())
	cancel()

	_, err := store.ReadContent(ctx, generateTestKey("cancelled"))
	require.Error(t, err)
	_, err = store.ListContent(ctx, "")
	require.Error(t, err)
}
