package resource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/pkg/catalog"
)

// Downloader drives a retriever to produce the response for a resolved
// resource request.
type Downloader interface {
	Download(ctx context.Context, req *catalog.ResourceRequest, m *catalog.Metacard, r Retriever) (*catalog.ResourceResponse, error)
}

// DownloadConfig controls DirectDownloader retries.
type DownloadConfig struct {
	// Attempts is the total number of tries (default 1).
	Attempts int `mapstructure:"attempts" validate:"omitempty,min=1"`

	// RetryDelay is the pause between tries.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// DirectDownloader calls the retriever directly, retrying transient
// failures. Not-found and unsupported-scheme failures are final.
type DirectDownloader struct {
	config DownloadConfig
}

func NewDirectDownloader(config DownloadConfig) *DirectDownloader {
	if config.Attempts < 1 {
		config.Attempts = 1
	}
	return &DirectDownloader{config: config}
}

func (d *DirectDownloader) Download(ctx context.Context, req *catalog.ResourceRequest, m *catalog.Metacard, r Retriever) (*catalog.ResourceResponse, error) {
	if r == nil {
		return nil, ErrNoRetriever
	}

	id := "<unknown>"
	if m != nil {
		id = m.ID()
	}

	var lastErr error
	for attempt := 1; attempt <= d.config.Attempts; attempt++ {
		resp, err := r.Retrieve(ctx)
		if err == nil && resp == nil {
			err = ErrNotFound
		}
		if err == nil {
			resp.Request = req
			return resp, nil
		}
		lastErr = err

		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnsupportedScheme) || ctx.Err() != nil {
			break
		}
		if attempt == d.config.Attempts {
			break
		}

		logger.Debug("Download of %s failed (attempt %d/%d): %v", id, attempt, d.config.Attempts, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.config.RetryDelay):
		}
	}

	return nil, fmt.Errorf("download %s: %w", id, lastErr)
}
