// Package s3 implements S3-based content storage.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/dittocat/pkg/store/content"
)

const (
	defaultPartSize = 10 * 1024 * 1024
	minPartSize     = 5 * 1024 * 1024
	maxPartSize     = 5 * 1024 * 1024 * 1024
)

// S3ContentStore implements ContentStore on an S3 bucket.
//
// Keys are stored as object keys below an optional prefix. Content up to
// PartSize bytes is uploaded with a single PutObject; larger content is
// streamed as a multipart upload so memory use stays bounded by PartSize.
//
// Implemented Interfaces:
//   - ContentStore
//   - MovableContentStore (server-side copy + delete)
//   - BatchDeleter (DeleteObjects, 1000 keys per call)
type S3ContentStore struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	partSize  int64
	metrics   S3Metrics
}

// S3ContentStoreConfig contains configuration for the S3 content store.
type S3ContentStoreConfig struct {
	// Client is the configured S3 client.
	Client *s3.Client

	// Bucket is the S3 bucket name.
	Bucket string

	// KeyPrefix is prepended to every key (e.g. "dittocat/").
	KeyPrefix string

	// PartSize is the multipart upload part size (default 10MB, min 5MB).
	PartSize int64

	// Metrics receives per-operation observations. Optional.
	Metrics S3Metrics
}

// NewS3ContentStore creates a new S3-based content store.
//
// Parameters:
//   - ctx: Context for the bucket access check
//   - cfg: Store configuration
//
// Returns:
//   - *S3ContentStore: Initialized store
//   - error: Invalid configuration or an inaccessible bucket
func NewS3ContentStore(ctx context.Context, cfg S3ContentStoreConfig) (*S3ContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 1: Validate configuration
	// ========================================================================

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	partSize := cfg.PartSize
	if partSize == 0 {
		partSize = defaultPartSize
	}
	if partSize < minPartSize {
		return nil, fmt.Errorf("part size must be at least 5MB, got %d bytes", partSize)
	}
	if partSize > maxPartSize {
		return nil, fmt.Errorf("part size must be at most 5GB, got %d bytes", partSize)
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	// ========================================================================
	// Step 2: Verify bucket access
	// ========================================================================

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	return &S3ContentStore{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		partSize:  partSize,
		metrics:   metrics,
	}, nil
}

func (s *S3ContentStore) getObjectKey(key string) string {
	return s.keyPrefix + key
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

// ============================================================================
// ContentStore Interface Implementation
// ============================================================================

func (s *S3ContentStore) ReadContent(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getObjectKey(key)),
	})
	s.metrics.ObserveOperation("GetObject", time.Since(start), err)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("content %s: %w", key, content.ErrContentNotFound)
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}

	return &metricsReadCloser{
		ReadCloser: result.Body,
		metrics:    s.metrics,
		operation:  "read",
	}, nil
}

func (s *S3ContentStore) GetContentSize(ctx context.Context, key string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	start := time.Now()
	result, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getObjectKey(key)),
	})
	s.metrics.ObserveOperation("HeadObject", time.Since(start), err)
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("content %s: %w", key, content.ErrContentNotFound)
		}
		return 0, fmt.Errorf("failed to head object: %w", err)
	}

	if result.ContentLength == nil {
		return 0, fmt.Errorf("content length not available for %s", key)
	}

	return uint64(*result.ContentLength), nil
}

func (s *S3ContentStore) ContentExists(ctx context.Context, key string) (bool, error) {
	if _, err := s.GetContentSize(ctx, key); err != nil {
		if errors.Is(err, content.ErrContentNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
	return true, nil
}

func (s *S3ContentStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getObjectKey(key)),
	})
	s.metrics.ObserveOperation("DeleteObject", time.Since(start), err)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}

	return nil
}

func (s *S3ContentStore) GetStorageStats(ctx context.Context) (*content.StorageStats, error) {
	var used, count uint64
	err := s.walk(ctx, "", func(_ string, size int64) {
		used += uint64(size)
		count++
	})
	if err != nil {
		return nil, err
	}
	return content.NewStorageStats(used, count), nil
}
