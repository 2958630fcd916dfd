// Package resource retrieves the bytes behind a metacard's resource URI.
//
// Readers serve URIs of the schemes they advertise from local places (the
// storage provider, the filesystem, plain HTTP). Retrievers bind a URI to
// either the local readers or a remote source, and a Downloader drives a
// retriever to produce the final response.
package resource

import (
	"context"
	"errors"
	"net/url"

	"github.com/marmos91/dittocat/pkg/catalog"
)

// Reader serves resources for a set of URI schemes.
type Reader interface {
	ID() string

	// Schemes lists the URI schemes the reader accepts.
	Schemes() []string

	// Retrieve returns the resource at uri. It returns ErrNotFound when the
	// URI is well formed but nothing lives there.
	Retrieve(ctx context.Context, uri *url.URL, props catalog.Properties) (*catalog.ResourceResponse, error)

	// Options lists the retrieval options the reader offers for m.
	Options(m *catalog.Metacard) []string
}

var (
	ErrNotFound          = errors.New("resource not found")
	ErrUnsupportedScheme = errors.New("unsupported resource scheme")
	ErrNoRetriever       = errors.New("no retriever")
)

// Supports reports whether r accepts the scheme of uri.
func Supports(r Reader, uri *url.URL) bool {
	if r == nil || uri == nil {
		return false
	}
	for _, s := range r.Schemes() {
		if s == uri.Scheme {
			return true
		}
	}
	return false
}
