package resource

import (
	"context"
	"errors"
	"fmt"
	stdmime "mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/mime"
	"github.com/marmos91/dittocat/pkg/store/content"
)

// ============================================================================
// Content reader
// ============================================================================

// ContentReader serves content: URIs from the active storage provider.
type ContentReader struct {
	provider func() catalog.StorageProvider
}

// NewContentReader reads through whatever storage provider provider
// returns at call time, so rebinding the provider needs no re-registration.
func NewContentReader(provider func() catalog.StorageProvider) *ContentReader {
	return &ContentReader{provider: provider}
}

func (r *ContentReader) ID() string        { return "content" }
func (r *ContentReader) Schemes() []string { return []string{catalog.ContentScheme} }

func (r *ContentReader) Retrieve(ctx context.Context, uri *url.URL, props catalog.Properties) (*catalog.ResourceResponse, error) {
	sp := r.provider()
	if sp == nil {
		return nil, fmt.Errorf("%w: no storage provider bound", ErrNotFound)
	}

	resp, err := sp.Read(ctx, &catalog.ReadStorageRequest{Properties: props, ResourceURI: uri})
	if err != nil {
		if errors.Is(err, content.ErrContentNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return nil, err
	}
	if resp == nil || resp.Item == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
	}

	body, err := resp.Item.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", uri, err)
	}

	return &catalog.ResourceResponse{
		Resource: &catalog.Resource{
			Name:      resp.Item.Filename,
			MimeType:  resp.Item.MimeType,
			Size:      resp.Item.Size,
			Qualifier: resp.Item.Qualifier,
			Body:      body,
		},
		Properties: props,
	}, nil
}

// Options lists the qualifiers of the metacard's derived content.
func (r *ContentReader) Options(m *catalog.Metacard) []string {
	if m == nil {
		return nil
	}
	var out []string
	for _, v := range m.Values(catalog.AttrDerivedResourceURI) {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		if _, q, err := catalog.ParseContentURI(u); err == nil && q != "" {
			out = append(out, q)
		}
	}
	return out
}

// ============================================================================
// File reader
// ============================================================================

// FileReader serves file: URIs below a set of allowed root directories.
// With no roots it serves nothing.
type FileReader struct {
	roots []string
	mime  *mime.Resolver
}

func NewFileReader(roots []string, resolver *mime.Resolver) *FileReader {
	clean := make([]string, 0, len(roots))
	for _, root := range roots {
		if abs, err := filepath.Abs(root); err == nil {
			clean = append(clean, filepath.Clean(abs))
		}
	}
	if resolver == nil {
		resolver = mime.NewResolver(nil)
	}
	return &FileReader{roots: clean, mime: resolver}
}

func (r *FileReader) ID() string        { return "file" }
func (r *FileReader) Schemes() []string { return []string{"file"} }

func (r *FileReader) Retrieve(ctx context.Context, uri *url.URL, props catalog.Properties) (*catalog.ResourceResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := filepath.Clean(filepath.FromSlash(uri.Path))
	if !r.allowed(p) {
		return nil, fmt.Errorf("%w: %s is outside the allowed directories", ErrNotFound, p)
	}

	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, fmt.Errorf("open %s: %w", p, err)
	}
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %s is not a file", ErrNotFound, p)
	}

	name := filepath.Base(p)
	return &catalog.ResourceResponse{
		Resource: &catalog.Resource{
			Name:     name,
			MimeType: r.mime.Resolve("", name, nil),
			Size:     info.Size(),
			Body:     f,
		},
		Properties: props,
	}, nil
}

func (r *FileReader) Options(*catalog.Metacard) []string { return nil }

func (r *FileReader) allowed(p string) bool {
	if !filepath.IsAbs(p) {
		return false
	}
	for _, root := range r.roots {
		rel, err := filepath.Rel(root, p)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// ============================================================================
// HTTP reader
// ============================================================================

// HTTPReader serves http and https URIs with a plain GET.
type HTTPReader struct {
	client *http.Client
}

// NewHTTPReader creates a reader with the given request timeout. A zero
// timeout means none.
func NewHTTPReader(timeout time.Duration) *HTTPReader {
	return &HTTPReader{client: &http.Client{Timeout: timeout}}
}

func (r *HTTPReader) ID() string        { return "http" }
func (r *HTTPReader) Schemes() []string { return []string{"http", "https"} }

func (r *HTTPReader) Retrieve(ctx context.Context, uri *url.URL, props catalog.Properties) (*catalog.ResourceResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", uri, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", uri, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s returned %s", ErrNotFound, uri, resp.Status)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %s", uri, resp.Status)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = catalog.DefaultMimeType
	}

	return &catalog.ResourceResponse{
		Resource: &catalog.Resource{
			Name:     responseFilename(resp, uri),
			MimeType: mimeType,
			Size:     resp.ContentLength,
			Body:     resp.Body,
		},
		Properties: props,
	}, nil
}

func (r *HTTPReader) Options(*catalog.Metacard) []string { return nil }

// responseFilename prefers the Content-Disposition filename over the last
// path segment.
func responseFilename(resp *http.Response, uri *url.URL) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := stdmime.ParseMediaType(cd); err == nil && params["filename"] != "" {
			return mime.SanitizeFilename(params["filename"])
		}
	}
	if base := path.Base(uri.Path); base != "." && base != "/" {
		return mime.SanitizeFilename(base)
	}
	return mime.DefaultFilename
}
