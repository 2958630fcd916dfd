package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/pkg/store/content"
)

// tempPrefix marks in-flight writes. ListContent never reports them.
const tempPrefix = ".tmp-"

// FSContentStore implements ContentStore on a local directory. Keys map to
// relative file paths below basePath.
//
// Writes go to a temp file in the target directory and are renamed into
// place, so readers never see partial content.
type FSContentStore struct {
	basePath string
}

// NewFSContentStore creates a filesystem content store rooted at basePath,
// creating the directory when needed.
//
// Parameters:
//   - ctx: Context for cancellation
//   - basePath: Root directory for content
//
// Returns:
//   - *FSContentStore: Initialized store
//   - error: Context cancellation or directory creation failure
func NewFSContentStore(ctx context.Context, basePath string) (*FSContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FSContentStore{basePath: basePath}, nil
}

// BasePath returns the root directory.
func (r *FSContentStore) BasePath() string {
	return r.basePath
}

func (r *FSContentStore) getFilePath(key string) (string, error) {
	if err := content.ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(r.basePath, filepath.FromSlash(key)), nil
}

// ============================================================================
// ContentStore Interface Implementation
// ============================================================================

func (r *FSContentStore) ReadContent(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filePath, err := r.getFilePath(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("content %s: %w", key, content.ErrContentNotFound)
		}
		return nil, fmt.Errorf("failed to open content: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat content: %w", err)
	}
	if info.IsDir() {
		file.Close()
		return nil, fmt.Errorf("content %s: %w", key, content.ErrContentNotFound)
	}

	return file, nil
}

func (r *FSContentStore) GetContentSize(ctx context.Context, key string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	filePath, err := r.getFilePath(key)
	if err != nil {
		return 0, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("content %s: %w", key, content.ErrContentNotFound)
		}
		return 0, fmt.Errorf("failed to stat content: %w", err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("content %s: %w", key, content.ErrContentNotFound)
	}

	return uint64(info.Size()), nil
}

func (r *FSContentStore) ContentExists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	filePath, err := r.getFilePath(key)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check content existence: %w", err)
	}

	return !info.IsDir(), nil
}

// WriteContent streams r into a temp file next to the target and renames it
// into place once complete.
func (r *FSContentStore) WriteContent(ctx context.Context, key string, src io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	filePath, err := r.getFilePath(key)
	if err != nil {
		return 0, err
	}

	// ========================================================================
	// Step 1: Stage into a temp file in the same directory
	// ========================================================================

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create content directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: src})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to write content %s: %w", key, err)
	}

	// ========================================================================
	// Step 2: Publish
	// ========================================================================

	if err := os.Rename(tmpPath, filePath); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to publish content %s: %w", key, err)
	}

	return n, nil
}

// Delete removes the file and prunes directories left empty.
func (r *FSContentStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	filePath, err := r.getFilePath(key)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete content: %w", err)
	}

	r.pruneEmptyDirs(filepath.Dir(filePath))
	return nil
}

func (r *FSContentStore) ListContent(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keys := make([]string, 0)
	err := filepath.WalkDir(r.basePath, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}

		rel, err := filepath.Rel(r.basePath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list content: %w", err)
	}

	sort.Strings(keys)
	return keys, nil
}

func (r *FSContentStore) GetStorageStats(ctx context.Context) (*content.StorageStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var used, count uint64
	err := filepath.WalkDir(r.basePath, func(_ string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		used += uint64(info.Size())
		count++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan content: %w", err)
	}

	return content.NewStorageStats(used, count), nil
}

// ============================================================================
// Optional Interfaces
// ============================================================================

// Move renames the file, which is atomic within one filesystem.
func (r *FSContentStore) Move(ctx context.Context, from, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fromPath, err := r.getFilePath(from)
	if err != nil {
		return err
	}
	toPath, err := r.getFilePath(to)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(toPath), 0755); err != nil {
		return fmt.Errorf("failed to create content directory: %w", err)
	}
	if err := os.Rename(fromPath, toPath); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return fmt.Errorf("content %s: %w", from, content.ErrContentNotFound)
		}
		return fmt.Errorf("failed to move content %s to %s: %w", from, to, err)
	}

	r.pruneEmptyDirs(filepath.Dir(fromPath))
	return nil
}

// pruneEmptyDirs removes dir and its parents up to basePath while they are
// empty. Failures only mean the directory is still in use.
func (r *FSContentStore) pruneEmptyDirs(dir string) {
	base := filepath.Clean(r.basePath)
	for dir = filepath.Clean(dir); dir != base && strings.HasPrefix(dir, base); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			if !os.IsNotExist(err) {
				logger.Debug("Content directory %s kept: %v", dir, err)
			}
			return
		}
	}
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
