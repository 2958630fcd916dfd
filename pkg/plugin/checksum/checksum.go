// Package checksum provides a storage plugin that records a BLAKE3 digest of
// every ingested primary content item on its metacard.
package checksum

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/zeebo/blake3"

	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/plugin"
)

// Algorithm is the value stored in checksum-algorithm.
const Algorithm = "BLAKE3"

// Plugin computes content checksums before content reaches the storage
// provider. It joins the pre-create-storage and pre-update-storage chains.
type Plugin struct{}

func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) Name() string { return "checksum" }

func (p *Plugin) ProcessCreateStorage(ctx context.Context, req *catalog.CreateStorageRequest) (*catalog.CreateStorageRequest, error) {
	if err := p.stamp(ctx, req.ContentItems); err != nil {
		return nil, err
	}
	return req, nil
}

func (p *Plugin) ProcessUpdateStorage(ctx context.Context, req *catalog.UpdateStorageRequest) (*catalog.UpdateStorageRequest, error) {
	if err := p.stamp(ctx, req.ContentItems); err != nil {
		return nil, err
	}
	return req, nil
}

// stamp sets checksum attributes on the metacard of every primary item.
// Derived items describe the same product and are skipped.
func (p *Plugin) stamp(ctx context.Context, items []*catalog.ContentItem) error {
	for _, item := range items {
		if item == nil || item.Qualifier != "" || item.Metacard == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		sum, err := Sum(item)
		if err != nil {
			return plugin.ExecutionFailure(fmt.Sprintf("checksum of %s", item.Filename), err)
		}
		item.Metacard.SetAttribute(catalog.AttrChecksum, sum)
		item.Metacard.SetAttribute(catalog.AttrChecksumAlgorithm, Algorithm)
		logger.Debug("Checksum of %s: %s", item.URI(), sum)
	}
	return nil
}

// Sum returns the hex encoded BLAKE3 digest of the item's bytes.
func Sum(item *catalog.ContentItem) (string, error) {
	r, err := item.Open()
	if err != nil {
		return "", err
	}
	defer r.Close()

	h := blake3.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

var (
	_ plugin.PreCreateStoragePlugin = (*Plugin)(nil)
	_ plugin.PreUpdateStoragePlugin = (*Plugin)(nil)
	_ plugin.Named                  = (*Plugin)(nil)
)
