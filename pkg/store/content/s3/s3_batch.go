package s3

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/dittocat/pkg/store/content"
)

// maxBatchSize is the DeleteObjects limit.
const maxBatchSize = 1000

// walk pages through every object below keyPrefix+prefix.
func (s *S3ContentStore) walk(ctx context.Context, prefix string, fn func(key string, size int64)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.getObjectKey(prefix)),
	})

	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		page, err := paginator.NextPage(ctx)
		s.metrics.ObserveOperation("ListObjectsV2", time.Since(start), err)
		if err != nil {
			return fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			fn(strings.TrimPrefix(*obj.Key, s.keyPrefix), aws.ToInt64(obj.Size))
		}
	}
	return nil
}

func (s *S3ContentStore) ListContent(ctx context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0)
	if err := s.walk(ctx, prefix, func(key string, _ int64) {
		keys = append(keys, key)
	}); err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// Move copies the object server side and deletes the source.
func (s *S3ContentStore) Move(ctx context.Context, from, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := content.ValidateKey(to); err != nil {
		return err
	}

	start := time.Now()
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(s.getObjectKey(to)),
		CopySource: aws.String(s.bucket + "/" + url.PathEscape(s.getObjectKey(from))),
	})
	s.metrics.ObserveOperation("CopyObject", time.Since(start), err)
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("content %s: %w", from, content.ErrContentNotFound)
		}
		return fmt.Errorf("failed to copy object %s to %s: %w", from, to, err)
	}

	return s.Delete(ctx, from)
}

// DeleteBatch deletes keys with DeleteObjects, maxBatchSize keys per call.
func (s *S3ContentStore) DeleteBatch(ctx context.Context, keys []string) (map[string]error, error) {
	failures := make(map[string]error)

	for i := 0; i < len(keys); i += maxBatchSize {
		if err := ctx.Err(); err != nil {
			for _, key := range keys[i:] {
				failures[key] = err
			}
			return failures, err
		}

		batch := keys[i:min(i+maxBatchSize, len(keys))]
		objects := make([]types.ObjectIdentifier, len(batch))
		for j, key := range batch {
			objects[j] = types.ObjectIdentifier{Key: aws.String(s.getObjectKey(key))}
		}

		start := time.Now()
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		s.metrics.ObserveOperation("DeleteObjects", time.Since(start), err)
		if err != nil {
			for _, key := range batch {
				failures[key] = err
			}
			continue
		}

		for _, e := range out.Errors {
			key := strings.TrimPrefix(aws.ToString(e.Key), s.keyPrefix)
			failures[key] = fmt.Errorf("%s: %s", aws.ToString(e.Code), aws.ToString(e.Message))
		}
	}

	return failures, nil
}
