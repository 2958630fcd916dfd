package testing

import (
	"bytes"
	"errors"
	"testing"

	"github.com/marmos91/dittocat/pkg/store/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorIs checks if the error matches the expected error using errors.Is.
func AssertErrorIs(t *testing.T, expected error, actual error) {
	t.Helper()
	if !errors.Is(actual, expected) {
		t.Errorf("Expected error %v, got %v", expected, actual)
	}
}

// mustWriteContent writes content and fails the test if it errors.
func mustWriteContent(t *testing.T, store content.ContentStore, key string, data []byte) {
	t.Helper()
	n, err := store.WriteContent(testContext(), key, bytes.NewReader(data))
	require.NoError(t, err, "WriteContent should succeed")
	require.Equal(t, int64(len(data)), n, "WriteContent should report bytes written")
}

// mustReadContent reads content and fails the test if it errors.
func mustReadContent(t *testing.T, store content.ContentStore, key string) []byte {
	t.Helper()
	data, err := content.ReadAll(testContext(), store, key)
	require.NoError(t, err, "ReadContent should succeed")
	return data
}

// mustDelete deletes content and fails the test if it errors.
func mustDelete(t *testing.T, store content.ContentStore, key string) {
	t.Helper()
	require.NoError(t, store.Delete(testContext(), key), "Delete should succeed")
}

// assertContentExists checks if content exists.
func assertContentExists(t *testing.T, store content.ContentStore, key string, expected bool) {
	t.Helper()
	exists, err := store.ContentExists(testContext(), key)
	require.NoError(t, err, "ContentExists should not error")
	assert.Equal(t, expected, exists, "Content existence mismatch")
}

// assertContentEquals checks if content matches expected data.
func assertContentEquals(t *testing.T, store content.ContentStore, key string, expected []byte) {
	t.Helper()
	assert.Equal(t, expected, mustReadContent(t, store, key), "Content data mismatch")
}

// assertContentSize checks if content size matches expected.
func assertContentSize(t *testing.T, store content.ContentStore, key string, expected uint64) {
	t.Helper()
	size, err := store.GetContentSize(testContext(), key)
	require.NoError(t, err, "GetContentSize should succeed")
	assert.Equal(t, expected, size, "Content size mismatch")
}

// generateTestData creates test data of specified size.
func generateTestData(size int) []byte {
	data := make([]byte, size)
	for i := 0; i < size; i++ {
		data[i] = byte(i % 256)
	}
	return data
}

// generateTestKey builds a storage-style key for a test.
func generateTestKey(name string) string {
	return "test-" + name + "/_/data"
}
