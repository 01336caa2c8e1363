package main

import (
	"context"
	"fmt"

	"github.com/justapithecus/r2logs/internal/config"
	s3client "github.com/justapithecus/r2logs/internal/s3"
	"github.com/justapithecus/r2logs/r2logs"
	fsstore "github.com/justapithecus/r2logs/r2logs/fs"
	miniostore "github.com/justapithecus/r2logs/r2logs/minio"
	s3store "github.com/justapithecus/r2logs/r2logs/s3"
)

// Storage clients selectable with --backend.
const (
	backendS3    = "s3"
	backendMinIO = "minio"
	backendFS    = "fs"
)

// storeParams is everything openStore needs to reach the bucket.
type storeParams struct {
	Backend     string
	R2          config.R2Config
	Concurrency int

	// Root is the local bucket mirror read by the fs backend.
	Root string
}

// endpoint returns the endpoint override, or the account's R2 endpoint.
func (p storeParams) endpoint() string {
	if p.R2.Endpoint != "" {
		return p.R2.Endpoint
	}
	return s3client.R2Endpoint(p.R2.AccountID)
}

// openStore builds the Store for the selected backend.
func openStore(ctx context.Context, p storeParams) (r2logs.Store, error) {
	switch p.Backend {
	case backendS3, "":
		client, err := s3client.NewR2Client(ctx, s3client.R2Options{
			AccountID:       p.R2.AccountID,
			AccessKeyID:     p.R2.AccessKeyID,
			SecretAccessKey: p.R2.SecretAccessKey,
			Endpoint:        p.endpoint(),
			MaxConnsPerHost: p.Concurrency,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 client: %w", err)
		}
		store, err := s3store.New(client, s3store.Config{Bucket: p.R2.Bucket})
		if err != nil {
			return nil, err
		}
		return store, nil

	case backendMinIO:
		client, err := miniostore.NewClient(miniostore.Options{
			Endpoint:        p.endpoint(),
			AccessKeyID:     p.R2.AccessKeyID,
			SecretAccessKey: p.R2.SecretAccessKey,
			Region:          s3client.R2Region,
		})
		if err != nil {
			return nil, err
		}
		store, err := miniostore.New(client, p.R2.Bucket)
		if err != nil {
			return nil, err
		}
		return store, nil

	case backendFS:
		if p.Root == "" {
			return nil, &r2logs.ConfigError{Field: "root", Message: "the fs backend needs --root"}
		}
		store, err := fsstore.New(p.Root)
		if err != nil {
			return nil, err
		}
		return store, nil

	default:
		return nil, &r2logs.ConfigError{Field: "backend", Message: fmt.Sprintf("unknown backend %q (want s3, minio or fs)", p.Backend)}
	}
}
