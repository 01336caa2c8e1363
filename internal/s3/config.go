// Package s3 builds S3 API clients for Cloudflare R2 and other
// S3-compatible services.
package s3

import (
	"context"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// R2Region is the region R2 expects in request signatures.
const R2Region = "auto"

// ClientConfig holds configuration for creating an S3 client.
// This is internal configuration for S3-compatible backends.
type ClientConfig struct {
	// Region is the AWS region (required). Use R2Region for R2.
	Region string

	// Endpoint is an optional custom endpoint URL.
	// Used for S3-compatible services (R2, MinIO, LocalStack).
	// Example: "http://localhost:4566" for LocalStack.
	Endpoint string

	// UsePathStyle enables path-style addressing instead of virtual-hosted style.
	// Required for some S3-compatible services (e.g., LocalStack, MinIO with default config).
	UsePathStyle bool

	// Credentials are the credentials to use.
	// If nil, uses the default credential chain.
	Credentials aws.CredentialsProvider

	// MaxConnsPerHost bounds open connections to the endpoint. Match it to
	// the retrieval concurrency so in-flight requests never queue on the
	// pool. Zero leaves the SDK default.
	MaxConnsPerHost int
}

// NewClient creates a new S3 client with the given configuration.
//
// For R2:
//
//	client, err := s3client.NewClient(ctx, s3client.ClientConfig{
//	    Region:      s3client.R2Region,
//	    Endpoint:    s3client.R2Endpoint(accountID),
//	    Credentials: credentials.NewStaticCredentialsProvider(id, secret, ""),
//	})
//
// For MinIO:
//
//	client, err := s3client.NewClient(ctx, s3client.ClientConfig{
//	    Region:       "us-east-1",
//	    Endpoint:     "http://localhost:9000",
//	    UsePathStyle: true,
//	    Credentials:  credentials.NewStaticCredentialsProvider("minioadmin", "minioadmin", ""),
//	})
func NewClient(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}

	if cfg.Credentials != nil {
		opts = append(opts, config.WithCredentialsProvider(cfg.Credentials))
	}

	if cfg.MaxConnsPerHost > 0 {
		httpClient := awshttp.NewBuildableClient().WithTransportOptions(func(tr *http.Transport) {
			tr.MaxConnsPerHost = cfg.MaxConnsPerHost
			tr.MaxIdleConnsPerHost = cfg.MaxConnsPerHost
		})
		opts = append(opts, config.WithHTTPClient(httpClient))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	s3Opts := []func(*s3.Options){}

	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

// R2Endpoint returns the S3 API endpoint of a Cloudflare account's R2.
func R2Endpoint(accountID string) string {
	return "https://" + strings.TrimSpace(accountID) + ".r2.cloudflarestorage.com"
}

// R2Options configures NewR2Client.
type R2Options struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string

	// Endpoint overrides R2Endpoint(AccountID) when set.
	Endpoint string

	// MaxConnsPerHost, see ClientConfig.
	MaxConnsPerHost int
}

// NewR2Client creates an S3 client configured for Cloudflare R2.
// Credentials should be R2 API tokens.
func NewR2Client(ctx context.Context, o R2Options) (*s3.Client, error) {
	endpoint := o.Endpoint
	if endpoint == "" {
		endpoint = R2Endpoint(o.AccountID)
	}
	return NewClient(ctx, ClientConfig{
		Region:          R2Region,
		Endpoint:        endpoint,
		UsePathStyle:    false, // R2 supports virtual-hosted style
		Credentials:     credentials.NewStaticCredentialsProvider(o.AccessKeyID, o.SecretAccessKey, ""),
		MaxConnsPerHost: o.MaxConnsPerHost,
	})
}

// NewLocalStackClient creates an S3 client configured for LocalStack.
// Defaults: endpoint=http://localhost:4566, region=us-east-1, credentials=test/test.
func NewLocalStackClient(ctx context.Context) (*s3.Client, error) {
	return NewClient(ctx, ClientConfig{
		Region:       "us-east-1",
		Endpoint:     "http://localhost:4566",
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("test", "test", ""),
	})
}

// NewMinIOClient creates an S3 client configured for MinIO.
// Defaults: endpoint=http://localhost:9000, region=us-east-1, credentials=minioadmin/minioadmin.
func NewMinIOClient(ctx context.Context) (*s3.Client, error) {
	return NewClient(ctx, ClientConfig{
		Region:       "us-east-1",
		Endpoint:     "http://localhost:9000",
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("minioadmin", "minioadmin", ""),
	})
}
