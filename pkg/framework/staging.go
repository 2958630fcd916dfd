package framework

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/mime"
)

// ============================================================================
// Staging area
// ============================================================================

// stagingArea is a per-operation directory holding ingested content while
// it is transformed and stored. remove must run on every exit path.
type stagingArea struct {
	dir string
}

func newStagingArea(parent string) (*stagingArea, error) {
	if parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return nil, fmt.Errorf("create staging directory: %w", err)
		}
	}
	dir, err := os.MkdirTemp(parent, "dittocat-staging-")
	if err != nil {
		return nil, fmt.Errorf("create staging area: %w", err)
	}
	return &stagingArea{dir: dir}, nil
}

// stage copies the item's bytes to a temp file and returns its path, the
// leading bytes used for MIME sniffing and the size.
func (s *stagingArea) stage(item *catalog.ContentItem) (path string, head []byte, size int64, err error) {
	src, err := item.Open()
	if err != nil {
		return "", nil, 0, fmt.Errorf("open content %s: %w", item.Filename, err)
	}
	defer src.Close()

	file, err := os.CreateTemp(s.dir, "content-*")
	if err != nil {
		return "", nil, 0, fmt.Errorf("create staged file: %w", err)
	}
	defer file.Close()

	sniff := &headBuffer{max: mime.SniffLen}
	size, err = io.Copy(io.MultiWriter(file, sniff), src)
	if err != nil {
		return "", nil, 0, fmt.Errorf("stage content %s: %w", item.Filename, err)
	}
	if err := file.Sync(); err != nil {
		return "", nil, 0, fmt.Errorf("sync staged content: %w", err)
	}
	return file.Name(), sniff.buf, size, nil
}

// remove deletes the staging directory. Failures are logged only.
func (s *stagingArea) remove() {
	if err := os.RemoveAll(s.dir); err != nil {
		logger.Warn("Unable to remove staging area %s: %v", s.dir, err)
	}
}

// headBuffer keeps the first max bytes written to it.
type headBuffer struct {
	buf []byte
	max int
}

func (h *headBuffer) Write(p []byte) (int, error) {
	if room := h.max - len(h.buf); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		h.buf = append(h.buf, p[:room]...)
	}
	return len(p), nil
}

// ============================================================================
// Transaction guard
// ============================================================================

// transactionGuard ends a storage transaction exactly once: the first of
// commit or rollback wins and later calls do nothing.
type transactionGuard struct {
	sp   catalog.StorageProvider
	req  catalog.StorageRequest
	done bool
}

func newTransactionGuard(sp catalog.StorageProvider, req catalog.StorageRequest) *transactionGuard {
	return &transactionGuard{sp: sp, req: req}
}

// commit publishes the transaction. A failed commit is followed by a
// rollback attempt; only the commit error is returned.
func (g *transactionGuard) commit(ctx context.Context) error {
	if g.done {
		return nil
	}
	g.done = true

	ctx = cleanupContext(ctx)
	if err := g.sp.Commit(ctx, g.req); err != nil {
		logger.Error("Unable to commit content transaction %s: %v", g.req.TransactionID(), err)
		if rbErr := g.sp.Rollback(ctx, g.req); rbErr != nil {
			logger.Error("Rollback after failed commit of %s also failed: %v", g.req.TransactionID(), rbErr)
		}
		return err
	}
	return nil
}

// rollback discards the transaction unless it already ended.
func (g *transactionGuard) rollback(ctx context.Context) {
	if g.done {
		return
	}
	g.done = true

	if err := g.sp.Rollback(cleanupContext(ctx), g.req); err != nil {
		logger.Error("Unable to roll back content transaction %s: %v", g.req.TransactionID(), err)
	}
}
