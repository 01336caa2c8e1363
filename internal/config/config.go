// Package config loads r2logs settings from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/justapithecus/r2logs/r2logs"
)

// Environment variable names.
const (
	EnvAPIKey          = "CF_API_KEY"
	EnvAccessKeyID     = "R2_ACCESS_KEY_ID"
	EnvSecretAccessKey = "R2_SECRET_ACCESS_KEY"
	EnvAccountID       = "CF_ACCOUNT_ID"
	EnvBucket          = "BUCKET_NAME"
	EnvEndpoint        = "R2_ENDPOINT"
	EnvPrefix          = "R2LOGS_PREFIX"
	EnvLayout          = "R2LOGS_LAYOUT"
	EnvConcurrency     = "R2LOGS_CONCURRENCY"
	EnvLogLevel        = "R2LOGS_LOG_LEVEL"
)

// required lists the credentials a bucket backend needs, in report order.
var required = []string{EnvAPIKey, EnvAccessKeyID, EnvSecretAccessKey, EnvAccountID, EnvBucket}

// Config holds resolved settings. Flags override these in the CLI.
type Config struct {
	R2     R2Config
	Layout string
	Prefix string

	Concurrency int
	LogLevel    string
}

// R2Config holds bucket credentials.
type R2Config struct {
	// APIKey is the Cloudflare API token. R2 object access signs with the
	// access key pair; the token is required so one .env serves both.
	APIKey          string
	AccessKeyID     string
	SecretAccessKey string
	AccountID       string
	Bucket          string

	// Endpoint overrides the account's R2 endpoint when set.
	Endpoint string
}

// Load reads settings from the environment after loading files into it.
// With no files, .env in the working directory is loaded if present.
// Variables already set in the environment win over file values.
// Credentials are not checked here; see RequireCredentials.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil {
		if len(files) > 0 || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: loading env file: %w", err)
		}
	}

	v := viper.New()
	v.SetDefault(EnvLayout, r2logs.LayoutHourly)
	v.SetDefault(EnvConcurrency, r2logs.DefaultConcurrency)
	v.SetDefault(EnvLogLevel, "info")
	v.AutomaticEnv()

	cfg := &Config{
		R2: R2Config{
			APIKey:          v.GetString(EnvAPIKey),
			AccessKeyID:     v.GetString(EnvAccessKeyID),
			SecretAccessKey: v.GetString(EnvSecretAccessKey),
			AccountID:       v.GetString(EnvAccountID),
			Bucket:          v.GetString(EnvBucket),
			Endpoint:        v.GetString(EnvEndpoint),
		},
		Layout:      v.GetString(EnvLayout),
		Prefix:      v.GetString(EnvPrefix),
		Concurrency: v.GetInt(EnvConcurrency),
		LogLevel:    v.GetString(EnvLogLevel),
	}

	if cfg.Concurrency < 1 {
		return nil, &r2logs.ConfigError{
			Field:   "environment",
			Message: fmt.Sprintf("%s must be a positive integer, got %q", EnvConcurrency, v.GetString(EnvConcurrency)),
		}
	}

	return cfg, nil
}

// RequireCredentials reports every missing bucket credential in one
// *r2logs.ConfigError, one "<VAR> is not set" line each.
func (c *Config) RequireCredentials() error {
	values := map[string]string{
		EnvAPIKey:          c.R2.APIKey,
		EnvAccessKeyID:     c.R2.AccessKeyID,
		EnvSecretAccessKey: c.R2.SecretAccessKey,
		EnvAccountID:       c.R2.AccountID,
		EnvBucket:          c.R2.Bucket,
	}
	var missing []string
	for _, name := range required {
		if strings.TrimSpace(values[name]) == "" {
			missing = append(missing, name+" is not set")
		}
	}
	if len(missing) > 0 {
		return &r2logs.ConfigError{Field: "environment", Message: strings.Join(missing, "\n")}
	}
	return nil
}
