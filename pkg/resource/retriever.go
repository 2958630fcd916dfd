package resource

import (
	"context"
	"fmt"
	"net/url"

	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/pkg/catalog"
)

// Retriever fetches one resolved resource. It is handed to a Downloader,
// which may call Retrieve more than once.
type Retriever interface {
	Retrieve(ctx context.Context) (*catalog.ResourceResponse, error)
}

// LocalRetriever serves a URI from the registered readers.
type LocalRetriever struct {
	readers []Reader
	uri     *url.URL
	props   catalog.Properties
}

func NewLocalRetriever(readers []Reader, uri *url.URL, props catalog.Properties) *LocalRetriever {
	return &LocalRetriever{readers: readers, uri: uri, props: props}
}

// Retrieve tries every reader supporting the URI scheme in order. The first
// non-nil resource wins; reader failures are logged and the next reader is
// tried.
func (r *LocalRetriever) Retrieve(ctx context.Context) (*catalog.ResourceResponse, error) {
	if r.uri == nil {
		return nil, fmt.Errorf("%w: no resource URI", ErrNotFound)
	}

	supported := false
	for _, reader := range r.readers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !Supports(reader, r.uri) {
			continue
		}
		supported = true

		resp, err := reader.Retrieve(ctx, r.uri, r.props)
		if err != nil {
			logger.Warn("Resource reader %s failed for %s: %v", reader.ID(), r.uri, err)
			continue
		}
		if resp != nil && resp.Resource != nil {
			return resp, nil
		}
	}

	if !supported {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, r.uri.Scheme)
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, r.uri)
}

// RemoteRetriever delegates to the source owning the metacard.
type RemoteRetriever struct {
	source catalog.RemoteSource
	uri    *url.URL
	props  catalog.Properties
}

func NewRemoteRetriever(source catalog.RemoteSource, uri *url.URL, props catalog.Properties) *RemoteRetriever {
	return &RemoteRetriever{source: source, uri: uri, props: props}
}

func (r *RemoteRetriever) Retrieve(ctx context.Context) (*catalog.ResourceResponse, error) {
	if r.source == nil {
		return nil, ErrNoRetriever
	}
	if r.uri == nil {
		return nil, fmt.Errorf("%w: no resource URI", ErrNotFound)
	}

	resp, err := r.source.Retrieve(ctx, r.uri, r.props)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", r.source.ID(), err)
	}
	if resp == nil || resp.Resource == nil {
		return nil, fmt.Errorf("%w: source %s returned nothing for %s", ErrNotFound, r.source.ID(), r.uri)
	}
	return resp, nil
}
