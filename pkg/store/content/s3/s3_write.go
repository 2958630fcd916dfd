package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/pkg/store/content"
)

// WriteContent uploads everything read from r. The first part is buffered
// to decide between a single PutObject and a multipart upload.
func (s *S3ContentStore) WriteContent(ctx context.Context, key string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := content.ValidateKey(key); err != nil {
		return 0, err
	}

	first, eof, err := s.readPart(r)
	if err != nil {
		return 0, fmt.Errorf("failed to read content for %s: %w", key, err)
	}

	if eof {
		if err := s.putObject(ctx, key, first); err != nil {
			return 0, err
		}
		s.metrics.RecordBytes("write", int64(len(first)))
		return int64(len(first)), nil
	}

	n, err := s.multipartUpload(ctx, key, first, r)
	if err != nil {
		return 0, err
	}
	s.metrics.RecordBytes("write", n)
	return n, nil
}

// readPart reads up to partSize bytes. eof reports that r is exhausted.
func (s *S3ContentStore) readPart(r io.Reader) (part []byte, eof bool, err error) {
	buf := make([]byte, s.partSize)
	n, err := io.ReadFull(r, buf)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return buf[:n], true, nil
	case err != nil:
		return nil, false, err
	}
	return buf[:n], false, nil
}

func (s *S3ContentStore) putObject(ctx context.Context, key string, data []byte) error {
	start := time.Now()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getObjectKey(key)),
		Body:   bytes.NewReader(data),
	})
	s.metrics.ObserveOperation("PutObject", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to write object to S3: %w", err)
	}
	return nil
}

// multipartUpload streams r in partSize chunks after first. Any failure
// aborts the upload so no partial object becomes visible.
func (s *S3ContentStore) multipartUpload(ctx context.Context, key string, first []byte, r io.Reader) (int64, error) {
	// ========================================================================
	// Step 1: Start the upload
	// ========================================================================

	objectKey := s.getObjectKey(key)
	start := time.Now()
	created, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	s.metrics.ObserveOperation("CreateMultipartUpload", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to start multipart upload: %w", err)
	}
	uploadID := created.UploadId

	abort := func(cause error) (int64, error) {
		abortCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := s.client.AbortMultipartUpload(abortCtx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(s.bucket),
			Key:      aws.String(objectKey),
			UploadId: uploadID,
		}); err != nil {
			logger.Warn("S3 abort multipart upload failed: key=%s upload=%s error=%v", key, aws.ToString(uploadID), err)
		}
		return 0, cause
	}

	// ========================================================================
	// Step 2: Upload parts
	// ========================================================================

	var (
		parts []types.CompletedPart
		total int64
		part  = first
		eof   bool
	)
	for partNumber := int32(1); ; partNumber++ {
		if err := ctx.Err(); err != nil {
			return abort(err)
		}

		if len(part) > 0 {
			start := time.Now()
			out, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
				Bucket:     aws.String(s.bucket),
				Key:        aws.String(objectKey),
				UploadId:   uploadID,
				PartNumber: aws.Int32(partNumber),
				Body:       bytes.NewReader(part),
			})
			s.metrics.ObserveOperation("UploadPart", time.Since(start), err)
			if err != nil {
				return abort(fmt.Errorf("failed to upload part %d: %w", partNumber, err))
			}
			parts = append(parts, types.CompletedPart{ETag: out.ETag, PartNumber: aws.Int32(partNumber)})
			total += int64(len(part))
		}

		if eof {
			break
		}
		part, eof, err = s.readPart(r)
		if err != nil {
			return abort(fmt.Errorf("failed to read content for %s: %w", key, err))
		}
	}

	// ========================================================================
	// Step 3: Complete
	// ========================================================================

	start = time.Now()
	_, err = s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(objectKey),
		UploadId:        uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	s.metrics.ObserveOperation("CompleteMultipartUpload", time.Since(start), err)
	if err != nil {
		return abort(fmt.Errorf("failed to complete multipart upload: %w", err))
	}

	return total, nil
}
