package content

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// ============================================================================
// ContentStore Interface
// ============================================================================

// ContentStore holds the raw bytes of catalog content under opaque string
// keys. It knows nothing about metacards: the storage provider decides the
// key layout and keeps descriptors next to the data.
//
// Keys are slash-separated relative paths ("<id>/<qualifier>/data"). Stores
// may map them onto directories (filesystem), object keys (S3) or map keys
// (memory), but ListContent must always report them in this form.
//
// Implementations must be safe for concurrent use. Concurrent writes to the
// same key are last-writer-wins.
type ContentStore interface {
	// ReadContent returns a reader over the content stored at key. The
	// caller must close it.
	//
	// Returns ErrContentNotFound when nothing is stored at key.
	ReadContent(ctx context.Context, key string) (io.ReadCloser, error)

	// GetContentSize returns the stored size in bytes.
	//
	// Returns ErrContentNotFound when nothing is stored at key.
	GetContentSize(ctx context.Context, key string) (uint64, error)

	// ContentExists reports whether key holds content. A missing key is not
	// an error.
	ContentExists(ctx context.Context, key string) (bool, error)

	// WriteContent stores everything read from r at key, replacing any
	// previous content, and returns the number of bytes written. A failed
	// write leaves no partial content visible at key.
	WriteContent(ctx context.Context, key string, r io.Reader) (int64, error)

	// Delete removes the content at key. Deleting a missing key succeeds.
	Delete(ctx context.Context, key string) error

	// ListContent returns every key starting with prefix, sorted. An empty
	// prefix lists the whole store.
	ListContent(ctx context.Context, prefix string) ([]string, error)

	// GetStorageStats returns usage statistics.
	GetStorageStats(ctx context.Context) (*StorageStats, error)
}

// MovableContentStore can rename content without copying it.
type MovableContentStore interface {
	ContentStore

	// Move renames from to to, replacing any content at to.
	//
	// Returns ErrContentNotFound when from does not exist.
	Move(ctx context.Context, from, to string) error
}

// BatchDeleter removes many keys in one round trip.
type BatchDeleter interface {
	ContentStore

	// DeleteBatch deletes keys and returns the per-key failures. The error
	// is only set when the whole batch could not be attempted.
	DeleteBatch(ctx context.Context, keys []string) (map[string]error, error)
}

// StorageStats summarises a content store.
type StorageStats struct {
	// UsedSize is the total number of stored bytes.
	UsedSize uint64

	// ContentCount is the number of stored keys.
	ContentCount uint64

	// AverageSize is UsedSize / ContentCount, or 0 when empty.
	AverageSize uint64
}

// NewStorageStats computes the derived fields from a size and count.
func NewStorageStats(used, count uint64) *StorageStats {
	stats := &StorageStats{UsedSize: used, ContentCount: count}
	if count > 0 {
		stats.AverageSize = used / count
	}
	return stats
}

// ============================================================================
// Helpers
// ============================================================================

// ValidateKey rejects keys that could escape the store's namespace.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty key: %w", ErrInvalidKey)
	}
	if strings.HasPrefix(key, "/") || strings.ContainsAny(key, "\\\x00") {
		return fmt.Errorf("key %q: %w", key, ErrInvalidKey)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("key %q: %w", key, ErrInvalidKey)
		}
	}
	return nil
}

// Move renames content, using the store's native rename when it has one and
// falling back to copy plus delete.
func Move(ctx context.Context, store ContentStore, from, to string) error {
	if m, ok := store.(MovableContentStore); ok {
		return m.Move(ctx, from, to)
	}

	r, err := store.ReadContent(ctx, from)
	if err != nil {
		return err
	}
	_, err = store.WriteContent(ctx, to, r)
	_ = r.Close()
	if err != nil {
		return fmt.Errorf("copy %s to %s: %w", from, to, err)
	}
	return store.Delete(ctx, from)
}

// DeleteAll deletes keys, batching when the store supports it.
func DeleteAll(ctx context.Context, store ContentStore, keys []string) (map[string]error, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	if b, ok := store.(BatchDeleter); ok {
		return b.DeleteBatch(ctx, keys)
	}

	failures := make(map[string]error)
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return failures, err
		}
		if err := store.Delete(ctx, key); err != nil {
			failures[key] = err
		}
	}
	return failures, nil
}

// ReadAll reads the whole content at key.
func ReadAll(ctx context.Context, store ContentStore, key string) ([]byte, error) {
	r, err := store.ReadContent(ctx, key)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
