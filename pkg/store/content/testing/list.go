package testing

import (
	"testing"

	"github.com/marmos91/dittocat/pkg/store/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunListTests executes listing and batch deletion tests, which the
// storage provider and the orphan collector rely on.
func (suite *StoreTestSuite) RunListTests(t *testing.T) {
	t.Run("ListContent_Empty", suite.testListEmpty)
	t.Run("ListContent_Prefix", suite.testListPrefix)
	t.Run("DeleteAll", suite.testDeleteAll)
}

func (suite *StoreTestSuite) testListEmpty(t *testing.T) {
	store := suite.NewStore()

	keys, err := store.ListContent(testContext(), "")
	require.NoError(t, err)
	assert.NotNil(t, keys)
	assert.Empty(t, keys)
}

func (suite *StoreTestSuite) testListPrefix(t *testing.T) {
	store := suite.NewStore()

	for _, key := range []string{"b/_/data", "a/_/data", "a/thumb/data", ".pending/tx/a/_/data"} {
		mustWriteContent(t, store, key, []byte(key))
	}

	all, err := store.ListContent(testContext(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{".pending/tx/a/_/data", "a/_/data", "a/thumb/data", "b/_/data"}, all)

	onlyA, err := store.ListContent(testContext(), "a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/_/data", "a/thumb/data"}, onlyA)

	pending, err := store.ListContent(testContext(), ".pending/")
	require.NoError(t, err)
	assert.Equal(t, []string{".pending/tx/a/_/data"}, pending)
}

func (suite *StoreTestSuite) testDeleteAll(t *testing.T) {
	store := suite.NewStore()
	keys := []string{"x/_/data", "y/_/data", "z/_/data"}
	for _, key := range keys {
		mustWriteContent(t, store, key, []byte(key))
	}

	failures, err := content.DeleteAll(testContext(), store, append(keys[:2:2], "missing/_/data"))
	require.NoError(t, err)
	assert.Empty(t, failures)

	remaining, err := store.ListContent(testContext(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"z/_/data"}, remaining)
}
