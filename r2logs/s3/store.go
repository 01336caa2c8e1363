// Package s3 provides an S3-compatible storage adapter for r2logs.
//
// This adapter targets Cloudflare R2 and also works against AWS S3, MinIO,
// LocalStack and other S3-compatible object stores.
//
// # Contract Compliance
//
// This adapter implements the r2logs.Store obligations:
//   - List: Full pagination support, returns every key under the prefix in
//     lexicographic order with its size and modification time
//   - Open: Streams the body from a byte offset via the HTTP Range header;
//     an offset at or past the end yields an empty body
//   - Missing objects and buckets map to r2logs.ErrNotFound
//   - Client faults that cannot succeed on retry (authentication,
//     authorization, malformed requests) are wrapped with r2logs.Permanent
//
// The store is read-only. Logpush writes the bucket; r2logs never does.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/justapithecus/r2logs/r2logs"
)

// API defines the subset of the S3 client interface used by the store.
// This enables testing with mock implementations.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Config holds configuration for the S3 store.
type Config struct {
	// Bucket is the bucket name. Required.
	Bucket string

	// PageSize caps the keys returned per ListObjectsV2 request.
	// Zero uses the service default (1000).
	PageSize int32
}

// Store implements r2logs.Store using an S3-compatible backend.
type Store struct {
	client   API
	bucket   string
	pageSize int32
}

// New creates a new S3 store with the given client and configuration.
//
// The client must be pre-configured with credentials, region, and endpoint.
// For R2, see internal/s3.NewR2Client.
//
// Example:
//
//	client, err := s3client.NewR2Client(ctx, s3client.R2Options{
//	    AccountID:       accountID,
//	    AccessKeyID:     accessKeyID,
//	    SecretAccessKey: secretAccessKey,
//	})
//	store, err := s3store.New(client, s3store.Config{Bucket: "logs"})
func New(client API, cfg Config) (*Store, error) {
	if client == nil {
		return nil, errors.New("s3: client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	if cfg.PageSize < 0 {
		return nil, errors.New("s3: page size must not be negative")
	}

	return &Store{
		client:   client,
		bucket:   cfg.Bucket,
		pageSize: cfg.PageSize,
	}, nil
}

// List returns every object whose key starts with prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]r2logs.ObjectInfo, error) {
	if strings.HasPrefix(prefix, "/") {
		return nil, r2logs.ErrInvalidKey
	}

	var infos []r2logs.ObjectInfo
	var continuationToken *string

	for {
		input := &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuationToken,
		}
		if s.pageSize > 0 {
			input.MaxKeys = aws.Int32(s.pageSize)
		}

		out, err := s.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, classify("list objects", err)
		}

		for _, obj := range out.Contents {
			if obj.Key == nil {
				continue
			}
			infos = append(infos, r2logs.ObjectInfo{
				Key:          *obj.Key,
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		continuationToken = out.NextContinuationToken
	}

	return infos, nil
}

// Open streams the object body starting at offset.
func (s *Store) Open(ctx context.Context, key string, offset int64) (io.ReadCloser, error) {
	if key == "" || strings.HasPrefix(key, "/") || offset < 0 {
		return nil, r2logs.ErrInvalidKey
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if offset > 0 {
		// S3 Range header format: "bytes=start-" reads to the end.
		input.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
	}

	out, err := s.client.GetObject(ctx, input)
	if err != nil {
		// Offset at or beyond EOF.
		var apiErr smithy.APIError
		if offset > 0 && errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange" {
			return io.NopCloser(strings.NewReader("")), nil
		}
		return nil, classify("get object", err)
	}

	return out.Body, nil
}

// Ensure Store implements r2logs.Store
var _ r2logs.Store = (*Store)(nil)

// classify maps an SDK error to the r2logs error vocabulary.
func classify(op string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("s3: %s: %w", op, r2logs.ErrNotFound)
	}
	wrapped := fmt.Errorf("s3: %s: %w", op, err)
	if isPermanent(err) {
		return r2logs.Permanent(wrapped)
	}
	return wrapped
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey" || code == "NoSuchBucket" || code == "404"
	}
	return false
}

// permanentCodes are error codes S3-compatible services return for requests
// that will fail the same way on every attempt.
var permanentCodes = map[string]bool{
	"AccessDenied":          true,
	"InvalidAccessKeyId":    true,
	"SignatureDoesNotMatch": true,
	"InvalidBucketName":     true,
	"InvalidArgument":       true,
	"Unauthorized":          true,
}

// isPermanent reports whether err is a client fault that retrying cannot fix.
// Timeouts and throttling are client faults too, but transient.
func isPermanent(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && permanentCodes[apiErr.ErrorCode()] {
		return true
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		return status >= 400 && status < 500 &&
			status != http.StatusRequestTimeout &&
			status != http.StatusTooManyRequests
	}
	return false
}
