// Package minio provides an r2logs.Store backed by the MinIO Go client.
//
// It is an alternative to the s3 adapter for R2 and other S3-compatible
// services, selected with --backend minio. Both adapters implement the same
// contract; see package s3 for details.
package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/justapithecus/r2logs/r2logs"
)

// Options configures NewClient.
type Options struct {
	// Endpoint is the service URL, e.g. "https://<account>.r2.cloudflarestorage.com".
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string

	// Region is sent in request signatures. R2 expects "auto".
	Region string

	// Transport overrides the HTTP transport. Nil uses the client default.
	Transport http.RoundTripper
}

// NewClient creates a MinIO client for an S3-compatible endpoint URL.
// The URL scheme selects TLS.
func NewClient(o Options) (*minio.Client, error) {
	u, err := url.Parse(o.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("minio: parse endpoint: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("minio: endpoint %q has no host", o.Endpoint)
	}

	mc, err := minio.New(u.Host, &minio.Options{
		Creds:        credentials.NewStaticV4(o.AccessKeyID, o.SecretAccessKey, ""),
		Secure:       u.Scheme == "https",
		Region:       o.Region,
		BucketLookup: minio.BucketLookupPath,
		Transport:    o.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return mc, nil
}

// Store implements r2logs.Store using a MinIO client.
type Store struct {
	client *minio.Client
	bucket string
}

// New creates a store reading bucket through client.
func New(client *minio.Client, bucket string) (*Store, error) {
	if client == nil {
		return nil, errors.New("minio: client is required")
	}
	if bucket == "" {
		return nil, errors.New("minio: bucket is required")
	}
	return &Store{client: client, bucket: bucket}, nil
}

// List returns every object whose key starts with prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]r2logs.ObjectInfo, error) {
	if strings.HasPrefix(prefix, "/") {
		return nil, r2logs.ErrInvalidKey
	}

	ch := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
	var out []r2logs.ObjectInfo
	for obj := range ch {
		if obj.Err != nil {
			return nil, classify("list objects", obj.Err)
		}
		out = append(out, r2logs.ObjectInfo{Key: obj.Key, Size: obj.Size, LastModified: obj.LastModified})
	}
	return out, nil
}

// Open streams the object body starting at offset.
func (s *Store) Open(ctx context.Context, key string, offset int64) (io.ReadCloser, error) {
	if key == "" || strings.HasPrefix(key, "/") || offset < 0 {
		return nil, r2logs.ErrInvalidKey
	}

	opts := minio.GetObjectOptions{}
	if offset > 0 {
		// An end of 0 leaves the range open: "bytes=offset-".
		if err := opts.SetRange(offset, 0); err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, opts)
	if err != nil {
		return nil, classify("get object", err)
	}

	// Stat issues the GET, so request errors surface here rather than on
	// the first Read.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if offset > 0 && minio.ToErrorResponse(err).Code == "InvalidRange" {
			return io.NopCloser(strings.NewReader("")), nil
		}
		return nil, classify("get object", err)
	}

	return &objectBody{obj: obj}, nil
}

// Ensure Store implements r2logs.Store
var _ r2logs.Store = (*Store)(nil)

// objectBody classifies errors raised mid-body.
type objectBody struct {
	obj *minio.Object
}

func (b *objectBody) Read(p []byte) (int, error) {
	n, err := b.obj.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		err = classify("read object", err)
	}
	return n, err
}

func (b *objectBody) Close() error {
	return b.obj.Close()
}

// classify maps a MinIO error to the r2logs error vocabulary.
func classify(op string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("minio: %s: %w", op, r2logs.ErrNotFound)
	case isPermanent(resp):
		return r2logs.Permanent(fmt.Errorf("minio: %s: %w", op, err))
	default:
		return fmt.Errorf("minio: %s: %w", op, err)
	}
}

// isPermanent reports whether a response is a client fault that retrying
// cannot fix.
func isPermanent(resp minio.ErrorResponse) bool {
	switch resp.Code {
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "InvalidBucketName", "InvalidArgument":
		return true
	}
	return resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != http.StatusRequestTimeout &&
		resp.StatusCode != http.StatusTooManyRequests
}
