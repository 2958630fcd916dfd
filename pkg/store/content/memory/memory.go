package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/marmos91/dittocat/pkg/store/content"
)

// MemoryContentStore implements ContentStore using in-memory storage.
//
// This implementation is designed for:
//   - Testing and development
//   - Catalogs whose content is small and ephemeral
//
// Characteristics:
//   - Volatile: data is lost on restart
//   - Memory-bound: limited by available RAM
//   - Thread-safe: protected by RWMutex
//
// Implemented Interfaces:
//   - ContentStore
//   - MovableContentStore
//   - BatchDeleter
//
// Reads and writes copy the byte slices so callers never share buffers with
// the store.
type MemoryContentStore struct {
	// data maps key to content
	data map[string][]byte

	mu sync.RWMutex
}

// NewMemoryContentStore creates an empty in-memory content store.
//
// Parameters:
//   - ctx: Context for cancellation (checked before initialization)
//
// Returns:
//   - *MemoryContentStore: Initialized store
//   - error: Only returns error if context is cancelled
func NewMemoryContentStore(ctx context.Context) (*MemoryContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &MemoryContentStore{
		data: make(map[string][]byte),
	}, nil
}

// ============================================================================
// ContentStore Interface Implementation
// ============================================================================

// ReadContent returns a reader over a copy of the content, so later writes
// do not affect it.
func (s *MemoryContentStore) ReadContent(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.data[key]
	if !exists {
		return nil, fmt.Errorf("content %s: %w", key, content.ErrContentNotFound)
	}

	return io.NopCloser(bytes.NewReader(bytes.Clone(data))), nil
}

func (s *MemoryContentStore) GetContentSize(ctx context.Context, key string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.data[key]
	if !exists {
		return 0, fmt.Errorf("content %s: %w", key, content.ErrContentNotFound)
	}

	return uint64(len(data)), nil
}

func (s *MemoryContentStore) ContentExists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.data[key]
	return exists, nil
}

// WriteContent buffers r fully before publishing it, so a failing reader
// leaves the previous content in place.
func (s *MemoryContentStore) WriteContent(ctx context.Context, key string, r io.Reader) (int64, error) {
	// ========================================================================
	// Step 1: Validate and buffer outside the lock
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := content.ValidateKey(key); err != nil {
		return 0, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("failed to read content for %s: %w", key, err)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	// ========================================================================
	// Step 2: Publish
	// ========================================================================

	s.mu.Lock()
	s.data[key] = data
	s.mu.Unlock()

	return int64(len(data)), nil
}

func (s *MemoryContentStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()

	return nil
}

func (s *MemoryContentStore) ListContent(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryContentStore) GetStorageStats(ctx context.Context) (*content.StorageStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var used uint64
	for _, data := range s.data {
		used += uint64(len(data))
	}

	return content.NewStorageStats(used, uint64(len(s.data))), nil
}

// ============================================================================
// Optional Interfaces
// ============================================================================

// Move renames a key in place.
func (s *MemoryContentStore) Move(ctx context.Context, from, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := content.ValidateKey(to); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, exists := s.data[from]
	if !exists {
		return fmt.Errorf("content %s: %w", from, content.ErrContentNotFound)
	}
	delete(s.data, from)
	s.data[to] = data

	return nil
}

// DeleteBatch deletes every key under a single lock. It never fails per key.
func (s *MemoryContentStore) DeleteBatch(ctx context.Context, keys []string) (map[string]error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	for _, key := range keys {
		delete(s.data, key)
	}
	s.mu.Unlock()

	return map[string]error{}, nil
}
