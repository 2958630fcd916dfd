package testing

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/marmos91/dittocat/pkg/store/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunWriteTests executes write, delete and move tests.
func (suite *StoreTestSuite) RunWriteTests(t *testing.T) {
	t.Run("WriteContent_Basic", suite.testWriteContentBasic)
	t.Run("WriteContent_Overwrite", suite.testWriteContentOverwrite)
	t.Run("WriteContent_Empty", suite.testWriteContentEmpty)
	t.Run("WriteContent_Large", suite.testWriteContentLarge)
	t.Run("WriteContent_InvalidKey", suite.testWriteContentInvalidKey)
	t.Run("WriteContent_ReaderFailure", suite.testWriteContentReaderFailure)
	t.Run("Delete_Success", suite.testDeleteSuccess)
	t.Run("Delete_Idempotent", suite.testDeleteIdempotent)
	t.Run("Move", suite.testMove)
	t.Run("Move_NotFound", suite.testMoveNotFound)
}

func (suite *StoreTestSuite) testWriteContentBasic(t *testing.T) {
	store := suite.NewStore()
	key := generateTestKey("write-basic")
	testData := []byte("Hello, World!")

	mustWriteContent(t, store, key, testData)

	assertContentEquals(t, store, key, testData)
	assertContentSize(t, store, key, uint64(len(testData)))
}

func (suite *StoreTestSuite) testWriteContentOverwrite(t *testing.T) {
	store := suite.NewStore()
	key := generateTestKey("write-overwrite")

	mustWriteContent(t, store, key, []byte("Old data that is longer"))
	mustWriteContent(t, store, key, []byte("New data"))

	assertContentEquals(t, store, key, []byte("New data"))
	assertContentSize(t, store, key, 8)
}

func (suite *StoreTestSuite) testWriteContentEmpty(t *testing.T) {
	store := suite.NewStore()
	key := generateTestKey("write-empty")

	mustWriteContent(t, store, key, []byte{})

	assertContentExists(t, store, key, true)
	assertContentSize(t, store, key, 0)
}

func (suite *StoreTestSuite) testWriteContentLarge(t *testing.T) {
	store := suite.NewStore()
	key := generateTestKey("write-large")
	data := generateTestData(6*1024*1024 + 17)

	mustWriteContent(t, store, key, data)

	assertContentSize(t, store, key, uint64(len(data)))
	assert.True(t, bytes.Equal(data, mustReadContent(t, store, key)), "large content mismatch")
}

func (suite *StoreTestSuite) testWriteContentInvalidKey(t *testing.T) {
	store := suite.NewStore()

	for _, key := range []string{"", "/abs", "a/../b", "a//b"} {
		_, err := store.WriteContent(testContext(), key, strings.NewReader("x"))
		AssertErrorIs(t, content.ErrInvalidKey, err)
	}
}

func (suite *StoreTestSuite) testWriteContentReaderFailure(t *testing.T) {
	store := suite.NewStore()
	key := generateTestKey("write-failure")

	mustWriteContent(t, store, key, []byte("original"))

	_, err := store.WriteContent(testContext(), key, &brokenReader{})
	require.Error(t, err)

	assertContentEquals(t, store, key, []byte("original"))
}

func (suite *StoreTestSuite) testDeleteSuccess(t *testing.T) {
	store := suite.NewStore()
	key := generateTestKey("delete")

	mustWriteContent(t, store, key, []byte("data"))
	mustDelete(t, store, key)

	assertContentExists(t, store, key, false)
}

func (suite *StoreTestSuite) testDeleteIdempotent(t *testing.T) {
	store := suite.NewStore()
	key := generateTestKey("delete-twice")

	mustDelete(t, store, key)
	mustDelete(t, store, key)
}

func (suite *StoreTestSuite) testMove(t *testing.T) {
	store := suite.NewStore()
	from := ".pending/tx1/abc/_/data"
	to := "abc/_/data"

	mustWriteContent(t, store, from, []byte("staged"))
	require.NoError(t, content.Move(testContext(), store, from, to))

	assertContentExists(t, store, from, false)
	assertContentEquals(t, store, to, []byte("staged"))
}

func (suite *StoreTestSuite) testMoveNotFound(t *testing.T) {
	store := suite.NewStore()

	err := content.Move(testContext(), store, generateTestKey("nothing"), generateTestKey("target"))
	AssertErrorIs(t, content.ErrContentNotFound, err)
}

// brokenReader yields a few bytes then fails.
type brokenReader struct{ done bool }

func (b *brokenReader) Read(p []byte) (int, error) {
	if b.done {
		return 0, errors.New("reader broke")
	}
	b.done = true
	return copy(p, "partial"), nil
}
