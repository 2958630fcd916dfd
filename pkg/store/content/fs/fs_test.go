package fs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marmos91/dittocat/pkg/store/content"
	contenttesting "github.com/marmos91/dittocat/pkg/store/content/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSContentStore(t *testing.T) {
	suite := &contenttesting.StoreTestSuite{
		NewStore: func() content.ContentStore {
			store, err := NewFSContentStore(context.Background(), t.TempDir())
			if err != nil {
				t.Fatalf("Failed to create FSContentStore: %v", err)
			}
			return store
		},
	}

	suite.Run(t)
}

func TestFSContentStore_Layout(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	store, err := NewFSContentStore(ctx, base)
	require.NoError(t, err)

	_, err = store.WriteContent(ctx, "abc/_/data", strings.NewReader("payload"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(base, "abc", "_", "data"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	require.NoError(t, store.Delete(ctx, "abc/_/data"))
	_, err = os.Stat(filepath.Join(base, "abc"))
	assert.True(t, os.IsNotExist(err), "empty directories should be pruned")

	_, err = os.Stat(base)
	assert.NoError(t, err, "base directory must survive pruning")
}

func TestFSContentStore_FailedWriteLeavesNothing(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSContentStore(ctx, t.TempDir())
	require.NoError(t, err)

	_, err = store.WriteContent(ctx, "abc/_/data", &failingReader{})
	require.Error(t, err)

	keys, err := store.ListContent(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys, "temp files must not be listed or left behind")
}

type failingReader struct{ calls int }

func (f *failingReader) Read(p []byte) (int, error) {
	f.calls++
	if f.calls == 1 {
		return copy(p, "partial"), nil
	}
	return 0, os.ErrClosed
}
