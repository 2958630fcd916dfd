package storage

import (
	"context"
	"errors"
	"io"

	"github.com/marmos91/dittocat/pkg/store/content"
)

// storeSource is a catalog.ByteSource over a content store. It opens the
// first key that exists, so an item handed out while staged keeps working
// after its transaction commits.
type storeSource struct {
	store content.ContentStore
	keys  []string
}

func (s *storeSource) Open() (io.ReadCloser, error) {
	var lastErr error = content.ErrContentNotFound
	for _, key := range s.keys {
		rc, err := s.store.ReadContent(context.Background(), key)
		if err == nil {
			return rc, nil
		}
		if !errors.Is(err, content.ErrContentNotFound) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}
