package monitor

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittocat/pkg/catalog"
)

type ingested struct {
	id       string
	filename string
	body     string
	update   bool
	stores   []string
	attrs    map[string][]string
}

// fakeIngester records every call and reads the content synchronously,
// before the monitor moves or deletes the file.
type fakeIngester struct {
	mu    sync.Mutex
	calls []ingested
	fail  bool
	next  int
}

func (f *fakeIngester) CreateStorage(_ context.Context, req *catalog.CreateStorageRequest) (*catalog.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("ingest refused")
	}
	item := req.ContentItems[0]
	f.next++
	id := "card-" + string(rune('0'+f.next))
	f.calls = append(f.calls, ingested{
		id:       id,
		filename: item.Filename,
		body:     read(item),
		stores:   req.StoreIDs,
		attrs:    req.Properties.AttributeOverrides,
	})
	m := catalog.NewMetacard(nil)
	m.SetID(id)
	return &catalog.CreateResponse{Created: []*catalog.Metacard{m}}, nil
}

func (f *fakeIngester) UpdateStorage(_ context.Context, req *catalog.UpdateStorageRequest) (*catalog.UpdateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := req.ContentItems[0]
	f.calls = append(f.calls, ingested{id: item.ID, filename: item.Filename, body: read(item), update: true})
	return &catalog.UpdateResponse{}, nil
}

func (f *fakeIngester) snapshot() []ingested {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ingested(nil), f.calls...)
}

func read(item *catalog.ContentItem) string {
	r, err := item.Open()
	if err != nil {
		return ""
	}
	defer r.Close()
	b, _ := io.ReadAll(r)
	return string(b)
}

func start(t *testing.T, config Config, ing *fakeIngester) *Monitor {
	t.Helper()
	if config.Settle == 0 {
		config.Settle = 20 * time.Millisecond
	}
	m, err := New(config)
	require.NoError(t, err)
	m.SetIngester(ing)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Serve(ctx) }()

	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer stopCancel()
		assert.NoError(t, m.Stop(stopCtx))
		cancel()
		assert.NoError(t, <-errCh)
	})
	return m
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{Directory: t.TempDir(), Strategy: "shred"})
	assert.Error(t, err)

	m, err := New(Config{Directory: "/data/in"})
	require.NoError(t, err)
	assert.Equal(t, StrategyMove, m.config.Strategy)
	assert.Equal(t, filepath.Join("/data/in", ".processed"), m.config.ProcessedDir)
	assert.Equal(t, DefaultSettle, m.config.Settle)
	assert.Equal(t, "monitor:/data/in", m.Name())
}

func TestServeRequiresIngester(t *testing.T) {
	m, err := New(Config{Directory: t.TempDir()})
	require.NoError(t, err)
	assert.Error(t, m.Serve(context.Background()))
}

func TestExistingFilesAreMovedAfterIngest(t *testing.T) {
	dir := t.TempDir()
	processed := filepath.Join(t.TempDir(), "done")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".partial"), []byte("skip"), 0o644))

	ing := &fakeIngester{}
	start(t, Config{
		Directory:    dir,
		ProcessedDir: processed,
		StoreIDs:     []string{"archive"},
		Attributes:   map[string][]string{"source": {"scanner"}},
	}, ing)

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(processed, "a.txt"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	calls := ing.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "a.txt", calls[0].filename)
	assert.Equal(t, "alpha", calls[0].body)
	assert.Equal(t, []string{"archive"}, calls[0].stores)
	assert.Equal(t, map[string][]string{"source": {"scanner"}}, calls[0].attrs)

	assert.NoFileExists(t, filepath.Join(dir, "a.txt"))
	assert.FileExists(t, filepath.Join(dir, ".partial"))
}

func TestNewFilesAreDeletedAfterIngest(t *testing.T) {
	dir := t.TempDir()
	ing := &fakeIngester{}
	start(t, Config{Directory: dir, Strategy: StrategyDelete}, ing)

	path := filepath.Join(dir, "b.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"title":"b"}`), 0o644))

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)

	calls := ing.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, `{"title":"b"}`, calls[0].body)
}

func TestInPlaceUpdatesSameMetacard(t *testing.T) {
	dir := t.TempDir()
	ing := &fakeIngester{}
	m := start(t, Config{Directory: dir, Strategy: StrategyInPlace}, ing)

	path := filepath.Join(dir, "c.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	require.Eventually(t, func() bool {
		_, ok := m.Known(path)
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	id, _ := m.Known(path)

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))

	require.Eventually(t, func() bool {
		for _, c := range ing.snapshot() {
			if c.update && c.body == "v2" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	var updates []ingested
	for _, c := range ing.snapshot() {
		if c.update {
			updates = append(updates, c)
		}
	}
	assert.Equal(t, id, updates[len(updates)-1].id)
	assert.FileExists(t, path)
}

func TestFailedIngestLeavesFile(t *testing.T) {
	dir := t.TempDir()
	ing := &fakeIngester{fail: true}
	start(t, Config{Directory: dir, Settle: 10 * time.Millisecond}, ing)

	path := filepath.Join(dir, "d.txt")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	time.Sleep(200 * time.Millisecond)
	assert.FileExists(t, path)
	assert.Empty(t, ing.snapshot())
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()

	p, err := uniquePath(dir, "x.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "x.txt"), p)

	require.NoError(t, os.WriteFile(p, nil, 0o644))
	p, err = uniquePath(dir, "x.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "x-1.txt"), p)
}

func TestStopIsIdempotent(t *testing.T) {
	m, err := New(Config{Directory: t.TempDir(), Settle: 10 * time.Millisecond})
	require.NoError(t, err)
	m.SetIngester(&fakeIngester{})

	errCh := make(chan error, 1)
	go func() { errCh <- m.Serve(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Stop(ctx))
	require.NoError(t, m.Stop(ctx))
	assert.NoError(t, <-errCh)
}
