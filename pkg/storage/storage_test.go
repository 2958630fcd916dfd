package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/store/content"
	"github.com/marmos91/dittocat/pkg/store/content/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProvider(t *testing.T, opts ...Option) (*Provider, content.ContentStore) {
	t.Helper()
	store, err := memory.NewMemoryContentStore(context.Background())
	require.NoError(t, err)
	return New(store, opts...), store
}

func item(id, qualifier, body string) *catalog.ContentItem {
	return &catalog.ContentItem{
		ID:        id,
		Qualifier: qualifier,
		Filename:  id + ".txt",
		MimeType:  "text/plain",
		Size:      int64(len(body)),
		Metacard:  catalog.NewMetacard(nil),
		Source:    catalog.BytesSource(body),
	}
}

func readItem(t *testing.T, it *catalog.ContentItem) string {
	t.Helper()
	rc, err := it.Open()
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func contentURI(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestCreateIsInvisibleUntilCommit(t *testing.T) {
	ctx := context.Background()
	p, _ := newProvider(t)

	req := catalog.NewCreateStorageRequest(item("abc", "", "hello"))
	resp, err := p.Create(ctx, req)
	require.NoError(t, err)
	require.Len(t, resp.Created, 1)
	assert.Equal(t, int64(5), resp.Created[0].Size)
	assert.Same(t, req.ContentItems[0].Metacard, resp.Created[0].Metacard)
	assert.Equal(t, "hello", readItem(t, resp.Created[0]), "staged bytes are readable")

	_, err = p.Read(ctx, &catalog.ReadStorageRequest{ResourceURI: contentURI(t, "content:abc")})
	assert.ErrorIs(t, err, content.ErrContentNotFound)

	require.NoError(t, p.Commit(ctx, req))

	read, err := p.Read(ctx, &catalog.ReadStorageRequest{ResourceURI: contentURI(t, "content:abc")})
	require.NoError(t, err)
	assert.Equal(t, "abc.txt", read.Item.Filename)
	assert.Equal(t, "text/plain", read.Item.MimeType)
	assert.Equal(t, "hello", readItem(t, read.Item))
	assert.Equal(t, "hello", readItem(t, resp.Created[0]), "item survives the commit")
	assert.Empty(t, p.PendingTransactions())
}

func TestRollbackDiscardsStagedContent(t *testing.T) {
	ctx := context.Background()
	p, store := newProvider(t)

	req := catalog.NewCreateStorageRequest(item("abc", "", "hello"))
	_, err := p.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []string{req.ID}, p.PendingTransactions())

	require.NoError(t, p.Rollback(ctx, req))

	keys, err := store.ListContent(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)

	assert.ErrorIs(t, p.Commit(ctx, req), ErrUnknownTransaction)
	assert.ErrorIs(t, p.Rollback(ctx, req), ErrUnknownTransaction)
}

func TestCreateRejectsExistingAndInvalidItems(t *testing.T) {
	ctx := context.Background()
	p, _ := newProvider(t)

	first := catalog.NewCreateStorageRequest(item("abc", "", "one"))
	_, err := p.Create(ctx, first)
	require.NoError(t, err)
	require.NoError(t, p.Commit(ctx, first))

	_, err = p.Create(ctx, catalog.NewCreateStorageRequest(item("abc", "", "two")))
	assert.ErrorIs(t, err, ErrContentExists)

	_, err = p.Create(ctx, catalog.NewCreateStorageRequest(item("", "", "x")))
	assert.ErrorIs(t, err, ErrInvalidItem)

	_, err = p.Create(ctx, catalog.NewCreateStorageRequest(item("../escape", "", "x")))
	assert.ErrorIs(t, err, ErrInvalidItem)

	_, err = p.Create(ctx, catalog.NewCreateStorageRequest(nil))
	assert.ErrorIs(t, err, ErrInvalidItem)
}

func TestUpdateReplacesOnCommit(t *testing.T) {
	ctx := context.Background()
	p, _ := newProvider(t)

	create := catalog.NewCreateStorageRequest(item("abc", "", "old"))
	_, err := p.Create(ctx, create)
	require.NoError(t, err)
	require.NoError(t, p.Commit(ctx, create))

	update := catalog.NewUpdateStorageRequest(item("abc", "", "new body"))
	resp, err := p.Update(ctx, update)
	require.NoError(t, err)
	require.Len(t, resp.Updated, 1)

	read, err := p.Read(ctx, &catalog.ReadStorageRequest{ResourceURI: contentURI(t, "content:abc")})
	require.NoError(t, err)
	assert.Equal(t, "old", readItem(t, read.Item))

	require.NoError(t, p.Commit(ctx, update))

	read, err = p.Read(ctx, &catalog.ReadStorageRequest{ResourceURI: contentURI(t, "content:abc")})
	require.NoError(t, err)
	assert.Equal(t, "new body", readItem(t, read.Item))
	assert.Equal(t, int64(8), read.Item.Size)
}

func TestReadQualifier(t *testing.T) {
	ctx := context.Background()
	p, _ := newProvider(t)

	req := catalog.NewCreateStorageRequest(item("abc", "", "product"), item("abc", "thumb", "small"))
	_, err := p.Create(ctx, req)
	require.NoError(t, err)
	require.NoError(t, p.Commit(ctx, req))

	read, err := p.Read(ctx, &catalog.ReadStorageRequest{ResourceURI: contentURI(t, "content:abc#thumb")})
	require.NoError(t, err)
	assert.Equal(t, "small", readItem(t, read.Item))
	assert.Equal(t, "thumb", read.Item.Qualifier)

	read, err = p.Read(ctx, &catalog.ReadStorageRequest{
		ResourceURI: contentURI(t, "content:abc"),
		Properties:  catalog.Properties{Qualifier: "thumb"},
	})
	require.NoError(t, err)
	assert.Equal(t, "small", readItem(t, read.Item))

	_, err = p.Read(ctx, &catalog.ReadStorageRequest{ResourceURI: contentURI(t, "http://example.com/x")})
	assert.ErrorIs(t, err, ErrInvalidItem)
}

func TestDeleteRemovesEveryQualifierOnCommit(t *testing.T) {
	ctx := context.Background()
	p, store := newProvider(t)

	create := catalog.NewCreateStorageRequest(item("abc", "", "product"), item("abc", "thumb", "small"), item("other", "", "keep"))
	_, err := p.Create(ctx, create)
	require.NoError(t, err)
	require.NoError(t, p.Commit(ctx, create))

	stored := catalog.NewMetacard(nil)
	stored.SetID("abc")
	stored.SetResourceURI(contentURI(t, "content:abc"))
	remote := catalog.NewMetacard(nil)
	remote.SetID("remote")
	remote.SetResourceURI(contentURI(t, "http://example.com/remote"))

	del := catalog.NewDeleteStorageRequest(stored, remote)
	resp, err := p.Delete(ctx, del)
	require.NoError(t, err)
	assert.Len(t, resp.Deleted, 2)

	exists, err := store.ContentExists(ctx, "abc/_/data")
	require.NoError(t, err)
	assert.True(t, exists, "delete is deferred to commit")

	require.NoError(t, p.Commit(ctx, del))

	ids, err := p.StoredIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"other"}, ids)
}

func TestAbandonedTransactions(t *testing.T) {
	ctx := context.Background()
	p, store := newProvider(t)

	_, err := store.WriteContent(ctx, PendingPrefix+"crashed/abc/_/data", strings.NewReader("x"))
	require.NoError(t, err)

	open := catalog.NewCreateStorageRequest(item("live", "", "y"))
	_, err = p.Create(ctx, open)
	require.NoError(t, err)

	abandoned, err := p.AbandonedTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"crashed"}, abandoned)

	require.NoError(t, p.PurgeTransaction(ctx, "crashed"))
	abandoned, err = p.AbandonedTransactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, abandoned)

	ids, err := p.StoredIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids, "staged content is not stored content")
}

func TestIsAvailable(t *testing.T) {
	p, _ := newProvider(t)
	assert.True(t, p.IsAvailable(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, p.IsAvailable(ctx))
}

type recordingMetrics struct {
	mu       sync.Mutex
	staged   int64
	outcomes []string
}

func (m *recordingMetrics) ObserveStaged(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staged += n
}

func (m *recordingMetrics) ObserveTransaction(op catalog.OperationType, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, string(op)+":"+outcome)
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	metrics := &recordingMetrics{}
	p, _ := newProvider(t, WithMetrics(metrics))

	committed := catalog.NewCreateStorageRequest(item("a", "", "12345"))
	_, err := p.Create(ctx, committed)
	require.NoError(t, err)
	require.NoError(t, p.Commit(ctx, committed))

	rolled := catalog.NewUpdateStorageRequest(item("a", "", "123"))
	_, err = p.Update(ctx, rolled)
	require.NoError(t, err)
	require.NoError(t, p.Rollback(ctx, rolled))

	assert.Equal(t, int64(8), metrics.staged)
	assert.Equal(t, []string{"create:commit", "update:rollback"}, metrics.outcomes)
}

// finalWriteFailure accepts staged writes and fails every write outside the
// pending area.
type finalWriteFailure struct {
	content.ContentStore
}

func (s finalWriteFailure) WriteContent(ctx context.Context, key string, r io.Reader) (int64, error) {
	if !strings.HasPrefix(key, PendingPrefix) {
		return 0, errors.New("disk full")
	}
	return s.ContentStore.WriteContent(ctx, key, r)
}

func TestRollbackAfterFailedCommit(t *testing.T) {
	ctx := context.Background()
	store, err := memory.NewMemoryContentStore(ctx)
	require.NoError(t, err)
	p := New(finalWriteFailure{store})

	req := catalog.NewCreateStorageRequest(item("abc", "", "hello"))
	_, err = p.Create(ctx, req)
	require.NoError(t, err)

	err = p.Commit(ctx, req)
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, []string{req.TransactionID()}, p.PendingTransactions())

	require.NoError(t, p.Rollback(ctx, req))
	assert.Empty(t, p.PendingTransactions())

	keys, err := store.ListContent(ctx, PendingPrefix)
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = p.Read(ctx, &catalog.ReadStorageRequest{ResourceURI: contentURI(t, "content:abc")})
	assert.ErrorIs(t, err, content.ErrContentNotFound)
}
