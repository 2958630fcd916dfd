package resource

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/source/sourcetest"
	"github.com/marmos91/dittocat/pkg/storage"
	"github.com/marmos91/dittocat/pkg/store/content/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func body(t *testing.T, resp *catalog.ResourceResponse) string {
	t.Helper()
	require.NotNil(t, resp)
	require.NotNil(t, resp.Resource)
	defer resp.Resource.Body.Close()
	data, err := io.ReadAll(resp.Resource.Body)
	require.NoError(t, err)
	return string(data)
}

// ============================================================================
// Readers
// ============================================================================

func TestContentReader(t *testing.T) {
	ctx := context.Background()
	store, err := memory.NewMemoryContentStore(ctx)
	require.NoError(t, err)
	provider := storage.New(store)

	req := catalog.NewCreateStorageRequest(&catalog.ContentItem{
		ID: "abc", Filename: "report.pdf", MimeType: "application/pdf",
		Source: catalog.BytesSource("%PDF"),
	})
	_, err = provider.Create(ctx, req)
	require.NoError(t, err)
	require.NoError(t, provider.Commit(ctx, req))

	var bound catalog.StorageProvider = provider
	reader := NewContentReader(func() catalog.StorageProvider { return bound })

	resp, err := reader.Retrieve(ctx, mustURL(t, "content:abc"), catalog.Properties{})
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", resp.Resource.Name)
	assert.Equal(t, "application/pdf", resp.Resource.MimeType)
	assert.Equal(t, int64(4), resp.Resource.Size)
	assert.Equal(t, "%PDF", body(t, resp))

	_, err = reader.Retrieve(ctx, mustURL(t, "content:missing"), catalog.Properties{})
	assert.ErrorIs(t, err, ErrNotFound)

	bound = nil
	_, err = reader.Retrieve(ctx, mustURL(t, "content:abc"), catalog.Properties{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestContentReaderOptions(t *testing.T) {
	reader := NewContentReader(func() catalog.StorageProvider { return nil })

	m := catalog.NewMetacard(nil)
	m.SetAttribute(catalog.AttrDerivedResourceURI, "content:abc#thumbnail", "content:abc#overview", "http://example.com/x", "content:abc")

	assert.Equal(t, []string{"thumbnail", "overview"}, reader.Options(m))
	assert.Nil(t, reader.Options(nil))
}

func TestFileReader(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	outside := t.TempDir()

	inside := filepath.Join(root, "data", "notes.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(inside), 0755))
	require.NoError(t, os.WriteFile(inside, []byte(`{"a":1}`), 0644))
	secret := filepath.Join(outside, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("no"), 0644))

	reader := NewFileReader([]string{root}, nil)

	resp, err := reader.Retrieve(ctx, &url.URL{Scheme: "file", Path: inside}, catalog.Properties{})
	require.NoError(t, err)
	assert.Equal(t, "notes.json", resp.Resource.Name)
	assert.Equal(t, "application/json", resp.Resource.MimeType)
	assert.Equal(t, int64(7), resp.Resource.Size)
	assert.Equal(t, `{"a":1}`, body(t, resp))

	tests := []struct {
		name string
		path string
	}{
		{"outside root", secret},
		{"traversal", filepath.Join(root, "..", filepath.Base(outside), "secret.txt")},
		{"missing", filepath.Join(root, "nope.txt")},
		{"directory", filepath.Join(root, "data")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reader.Retrieve(ctx, &url.URL{Scheme: "file", Path: tt.path}, catalog.Properties{})
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}

	noRoots := NewFileReader(nil, nil)
	_, err = noRoots.Retrieve(ctx, &url.URL{Scheme: "file", Path: inside}, catalog.Properties{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHTTPReader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files/report":
			w.Header().Set("Content-Type", "text/csv")
			w.Header().Set("Content-Disposition", `attachment; filename="q3 report.csv"`)
			_, _ = w.Write([]byte("a,b\n1,2\n"))
		case "/plain/data.bin":
			_, _ = w.Write([]byte{0x00, 0x01})
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	reader := NewHTTPReader(5 * time.Second)

	resp, err := reader.Retrieve(ctx, mustURL(t, srv.URL+"/files/report"), catalog.Properties{})
	require.NoError(t, err)
	assert.Equal(t, "q3 report.csv", resp.Resource.Name)
	assert.Equal(t, "text/csv", resp.Resource.MimeType)
	assert.Equal(t, "a,b\n1,2\n", body(t, resp))

	resp, err = reader.Retrieve(ctx, mustURL(t, srv.URL+"/plain/data.bin"), catalog.Properties{})
	require.NoError(t, err)
	assert.Equal(t, "data.bin", resp.Resource.Name)
	body(t, resp)

	_, err = reader.Retrieve(ctx, mustURL(t, srv.URL+"/missing"), catalog.Properties{})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = reader.Retrieve(ctx, mustURL(t, srv.URL+"/broken"), catalog.Properties{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

// ============================================================================
// Retrievers
// ============================================================================

type stubReader struct {
	id      string
	schemes []string
	resp    *catalog.ResourceResponse
	err     error
	calls   atomic.Int32
}

func (s *stubReader) ID() string                         { return s.id }
func (s *stubReader) Schemes() []string                  { return s.schemes }
func (s *stubReader) Options(*catalog.Metacard) []string { return nil }

func (s *stubReader) Retrieve(context.Context, *url.URL, catalog.Properties) (*catalog.ResourceResponse, error) {
	s.calls.Add(1)
	return s.resp, s.err
}

func resourceResponse(name string) *catalog.ResourceResponse {
	return &catalog.ResourceResponse{Resource: &catalog.Resource{Name: name, Body: io.NopCloser(nil)}}
}

func TestLocalRetriever(t *testing.T) {
	ctx := context.Background()

	failing := &stubReader{id: "failing", schemes: []string{"http"}, err: errors.New("boom")}
	empty := &stubReader{id: "empty", schemes: []string{"http"}}
	other := &stubReader{id: "other", schemes: []string{"ftp"}, resp: resourceResponse("ftp")}
	good := &stubReader{id: "good", schemes: []string{"http"}, resp: resourceResponse("good")}
	late := &stubReader{id: "late", schemes: []string{"http"}, resp: resourceResponse("late")}

	r := NewLocalRetriever([]Reader{failing, empty, other, good, late}, mustURL(t, "http://example.com/x"), catalog.Properties{})
	resp, err := r.Retrieve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "good", resp.Resource.Name)
	assert.Equal(t, int32(1), failing.calls.Load())
	assert.Equal(t, int32(1), empty.calls.Load())
	assert.Zero(t, other.calls.Load())
	assert.Zero(t, late.calls.Load())

	_, err = NewLocalRetriever([]Reader{failing, empty}, mustURL(t, "http://example.com/x"), catalog.Properties{}).Retrieve(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = NewLocalRetriever([]Reader{good}, mustURL(t, "s3://bucket/x"), catalog.Properties{}).Retrieve(ctx)
	assert.ErrorIs(t, err, ErrUnsupportedScheme)

	_, err = NewLocalRetriever([]Reader{good}, nil, catalog.Properties{}).Retrieve(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoteRetriever(t *testing.T) {
	ctx := context.Background()
	src := sourcetest.New("remote")
	src.AddResource("http://remote/a", []byte("remote bytes"))

	resp, err := NewRemoteRetriever(src, mustURL(t, "http://remote/a"), catalog.Properties{}).Retrieve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "remote bytes", body(t, resp))

	_, err = NewRemoteRetriever(src, mustURL(t, "http://remote/missing"), catalog.Properties{}).Retrieve(ctx)
	assert.ErrorIs(t, err, sourcetest.ErrNoResource)

	_, err = NewRemoteRetriever(nil, mustURL(t, "http://remote/a"), catalog.Properties{}).Retrieve(ctx)
	assert.ErrorIs(t, err, ErrNoRetriever)
}

// ============================================================================
// Downloader
// ============================================================================

type flakyRetriever struct {
	failures int
	err      error
	calls    int
}

func (f *flakyRetriever) Retrieve(context.Context) (*catalog.ResourceResponse, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return resourceResponse("ok"), nil
}

func TestDirectDownloader(t *testing.T) {
	ctx := context.Background()
	req := catalog.NewResourceRequestByID("abc")
	m := catalog.NewMetacard(nil)
	m.SetID("abc")

	t.Run("retries transient failures", func(t *testing.T) {
		r := &flakyRetriever{failures: 2, err: errors.New("connection reset")}
		d := NewDirectDownloader(DownloadConfig{Attempts: 3, RetryDelay: time.Millisecond})

		resp, err := d.Download(ctx, req, m, r)
		require.NoError(t, err)
		assert.Equal(t, 3, r.calls)
		assert.Same(t, req, resp.Request)
	})

	t.Run("gives up after attempts", func(t *testing.T) {
		r := &flakyRetriever{failures: 5, err: errors.New("connection reset")}
		d := NewDirectDownloader(DownloadConfig{Attempts: 2})

		_, err := d.Download(ctx, req, m, r)
		require.Error(t, err)
		assert.Equal(t, 2, r.calls)
	})

	t.Run("not found is final", func(t *testing.T) {
		r := &flakyRetriever{failures: 5, err: ErrNotFound}
		d := NewDirectDownloader(DownloadConfig{Attempts: 4})

		_, err := d.Download(ctx, req, m, r)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, 1, r.calls)
	})

	t.Run("defaults to one attempt", func(t *testing.T) {
		r := &flakyRetriever{failures: 1, err: errors.New("x")}
		_, err := NewDirectDownloader(DownloadConfig{}).Download(ctx, req, m, r)
		require.Error(t, err)
		assert.Equal(t, 1, r.calls)
	})

	t.Run("nil retriever", func(t *testing.T) {
		_, err := NewDirectDownloader(DownloadConfig{}).Download(ctx, req, nil, nil)
		assert.ErrorIs(t, err, ErrNoRetriever)
	})
}
