// Package transform converts between raw content and metacards.
//
// Input transformers build a metacard from ingested bytes and are selected
// by MIME type through the Registry. Metacard and response transformers
// render catalog data for clients and are selected by id.
package transform

import (
	"context"
	"errors"
	"io"

	"github.com/marmos91/dittocat/pkg/catalog"
)

// Input describes the content handed to an input transformer.
type Input struct {
	// ID is the metacard id to assign, if already known.
	ID       string
	Filename string
	MimeType string
}

// InputTransformer builds a metacard from raw content. Returning a nil
// metacard without error means the transformer declines the content.
type InputTransformer interface {
	ID() string
	MimeTypes() []string
	Transform(ctx context.Context, r io.Reader, in Input) (*catalog.Metacard, error)
}

// MetacardTransformer renders a single metacard.
type MetacardTransformer interface {
	ID() string
	Transform(ctx context.Context, m *catalog.Metacard, args map[string]any) (*catalog.BinaryContent, error)
}

// ResponseTransformer renders a query response.
type ResponseTransformer interface {
	ID() string
	Transform(ctx context.Context, resp *catalog.QueryResponse, args map[string]any) (*catalog.BinaryContent, error)
}

var (
	ErrUnknownTransformer = errors.New("unknown transformer")
	ErrNoInput            = errors.New("nothing to transform")
)
