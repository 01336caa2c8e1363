package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justapithecus/r2logs/internal/config"
	"github.com/justapithecus/r2logs/internal/testutil"
	"github.com/justapithecus/r2logs/r2logs"
)

const (
	keyA = "date=2024-01-11/hour=15/20240111T150000Z_20240111T150100Z_a.log.gz"
	keyB = "date=2024-01-11/hour=15/20240111T150100Z_20240111T150200Z_b.log.gz"
	keyC = "date=2024-01-11/hour=16/20240111T160000Z_20240111T160100Z_c.log.gz"
)

var testNow = time.Date(2024, 1, 11, 15, 3, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		R2: config.R2Config{
			APIKey:          "token",
			AccessKeyID:     "id",
			SecretAccessKey: "secret",
			AccountID:       "acct",
			Bucket:          "logs",
		},
		Layout:      r2logs.LayoutHourly,
		Concurrency: 4,
		LogLevel:    "info",
	}
}

type harness struct {
	store  *r2logs.MemoryStore
	cfg    *config.Config
	cfgErr error
	params storeParams
	opened int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := r2logs.NewMemory()
	require.NoError(t, store.Put(keyA, testutil.GzipLines(t, `{"n":1}`, `{"n":2}`)))
	require.NoError(t, store.Put(keyB, testutil.GzipLines(t, `{"n":3}`)))
	require.NoError(t, store.Put(keyC, testutil.GzipLines(t, `{"n":4}`)))
	return &harness{store: store, cfg: testConfig()}
}

func (h *harness) deps() deps {
	return deps{
		now:        func() time.Time { return testNow },
		loadConfig: func() (*config.Config, error) { return h.cfg, h.cfgErr },
		openStore: func(_ context.Context, p storeParams) (r2logs.Store, error) {
			h.opened++
			h.params = p
			return h.store, nil
		},
	}
}

func (h *harness) run(args ...string) (string, string, int) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append([]string{"r2logs"}, args...), &stdout, &stderr, h.deps())
	return stdout.String(), stderr.String(), code
}

func TestRun_RetrieveDefaultRange(t *testing.T) {
	h := newHarness(t)

	stdout, stderr, code := h.run()

	require.Equal(t, 0, code, stderr)
	// now-5m..now covers objects a and b but not c.
	assert.Equal(t, "{\"n\":1}\n{\"n\":2}\n{\"n\":3}\n", stdout)
	assert.Equal(t, 1, h.opened)
	assert.Equal(t, backendS3, h.params.Backend)
	assert.Equal(t, 4, h.params.Concurrency)
}

func TestRun_RetrieveExplicitRange(t *testing.T) {
	h := newHarness(t)

	stdout, stderr, code := h.run("2024-01-11T15:01:00Z", "2024-01-11T16:00:30Z", "retrieve")

	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "{\"n\":3}\n{\"n\":4}\n", stdout)
}

func TestRun_List(t *testing.T) {
	h := newHarness(t)

	stdout, stderr, code := h.run("2024-01-11T15:00:00Z", "2024-01-11T17:00:00Z", "list")

	require.Equal(t, 0, code, stderr)
	assert.Equal(t, keyA+"\n"+keyB+"\n"+keyC+"\n", stdout)
}

func TestRun_ListDefaultRange(t *testing.T) {
	h := newHarness(t)

	stdout, _, code := h.run("list")

	require.Equal(t, 0, code)
	assert.Equal(t, keyA+"\n"+keyB+"\n", stdout)
}

func TestRun_Pretty(t *testing.T) {
	h := newHarness(t)

	stdout, stderr, code := h.run("-p", "2024-01-11T15:01:00Z", "2024-01-11T15:02:00Z")

	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "{\n  \"n\": 3\n}\n", stdout)
}

func TestRun_Verbose(t *testing.T) {
	h := newHarness(t)

	_, stderr, code := h.run("-v", "2024-01-11T15:00:00Z", "2024-01-11T15:02:00Z")

	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stderr, "Retrieving logs")
	assert.Contains(t, stderr, "start=2024-01-11T15:00:00Z")
	assert.Contains(t, stderr, "end=2024-01-11T15:02:00Z")
	assert.Contains(t, stderr, "endpoint=https://acct.r2.cloudflarestorage.com")
	assert.Contains(t, stderr, "objects=2")
	assert.Contains(t, stderr, "records=3")
}

func TestRun_NoLogsFound(t *testing.T) {
	h := newHarness(t)

	stdout, stderr, code := h.run("2024-01-12T00:00:00Z", "2024-01-12T00:05:00Z")

	assert.Equal(t, 0, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "No logs found")
	assert.Contains(t, stderr, "Please check time range")
}

func TestRun_FlagsOverrideConfig(t *testing.T) {
	h := newHarness(t)
	h.cfg.R2.Endpoint = "http://from-env:9000"

	_, stderr, code := h.run(
		"--concurrency", "2",
		"--backend", backendMinIO,
		"--endpoint", "http://localhost:9000",
		"2024-01-11T15:00:00Z", "2024-01-11T15:01:00Z",
	)

	require.Equal(t, 0, code, stderr)
	assert.Equal(t, 2, h.params.Concurrency)
	assert.Equal(t, backendMinIO, h.params.Backend)
	assert.Equal(t, "http://localhost:9000", h.params.endpoint())
}

func TestRun_DailyLayoutWithPrefix(t *testing.T) {
	h := newHarness(t)
	h.store = r2logs.NewMemory()
	key := "http_requests/20240111/20240111T150000Z_20240111T150100Z_a.log.gz"
	require.NoError(t, h.store.Put(key, testutil.GzipLines(t, `{"daily":true}`)))

	stdout, stderr, code := h.run("--layout", "daily", "--prefix", "http_requests", "2024-01-11T15:00:00Z", "2024-01-11T15:01:00Z")

	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "{\"daily\":true}\n", stdout)
}

func TestRun_Parquet(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "out.parquet")

	stdout, stderr, code := h.run("--parquet", path, "2024-01-11T15:00:00Z", "2024-01-11T15:02:00Z")

	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "{\"n\":1}\n{\"n\":2}\n{\"n\":3}\n", stdout)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestRun_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"start after end", []string{"2024-01-11T16:00:00Z", "2024-01-11T15:00:00Z"}, "is after end"},
		{"bad start", []string{"yesterday"}, "not an RFC3339 timestamp"},
		{"bad end", []string{"2024-01-11T15:00:00Z", "later"}, "not an RFC3339 timestamp"},
		{"too many arguments", []string{"2024-01-11T15:00:00Z", "2024-01-11T15:01:00Z", "extra", "list"}, "unexpected argument"},
		{"unknown layout", []string{"--layout", "weekly"}, "weekly"},
		{"bad concurrency", []string{"--concurrency", "0"}, "concurrency"},
		{"unknown parquet codec", []string{"--parquet", "x.parquet", "--parquet-compression", "lz4"}, "lz4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			t.Chdir(t.TempDir())

			stdout, stderr, code := h.run(tt.args...)

			assert.Equal(t, 1, code)
			assert.Empty(t, stdout)
			assert.Contains(t, stderr, tt.want)
		})
	}
}

func TestRun_ConfigErrorBeforeBackend(t *testing.T) {
	h := newHarness(t)

	_, _, code := h.run("2024-01-11T16:00:00Z", "2024-01-11T15:00:00Z")

	assert.Equal(t, 1, code)
	assert.Zero(t, h.opened, "store must not be opened for an invalid range")
}

func TestRun_MissingEnvironment(t *testing.T) {
	h := newHarness(t)
	h.cfg.R2.APIKey = ""
	h.cfg.R2.Bucket = ""

	_, stderr, code := h.run()

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "CF_API_KEY is not set")
	assert.Contains(t, stderr, "Please set environment variables")
	assert.Zero(t, h.opened)
}

func TestRun_BackendFailure(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("connection refused")
	d := h.deps()
	d.openStore = func(context.Context, storeParams) (r2logs.Store, error) { return nil, boom }

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"r2logs"}, &stdout, &stderr, d)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "connection refused")
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantStart string
		wantEnd   string
		wantMode  string
	}{
		{"defaults", nil, "2024-01-11T14:58:00Z", "2024-01-11T15:03:00Z", modeRetrieve},
		{"list only", []string{"list"}, "2024-01-11T14:58:00Z", "2024-01-11T15:03:00Z", modeList},
		{"start only", []string{"2024-01-11T14:00:00Z"}, "2024-01-11T14:00:00Z", "2024-01-11T15:03:00Z", modeRetrieve},
		{"both", []string{"2024-01-11T14:00:00Z", "2024-01-11T14:30:00Z", "retrieve"}, "2024-01-11T14:00:00Z", "2024-01-11T14:30:00Z", modeRetrieve},
		{"offset zone", []string{"2024-01-11T16:00:00+01:00", "2024-01-11T15:00:00.9Z"}, "2024-01-11T15:00:00Z", "2024-01-11T15:00:00Z", modeRetrieve},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, mode, err := parseArgs(tt.args, testNow)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, r.Start.Format(time.RFC3339))
			assert.Equal(t, tt.wantEnd, r.End.Format(time.RFC3339))
			assert.Equal(t, tt.wantMode, mode)
		})
	}
}

func TestRun_FSBackend(t *testing.T) {
	h := newHarness(t)
	root := t.TempDir()
	full := filepath.Join(root, filepath.FromSlash(keyA))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, testutil.GzipLines(t, `{"local":true}`), 0o644))

	d := h.deps()
	d.openStore = openStore

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"r2logs", "--backend", "fs", "--root", root, "2024-01-11T15:00:00Z", "2024-01-11T15:01:00Z"}, &stdout, &stderr, d)

	require.Equal(t, 0, code, stderr.String())
	assert.Equal(t, "{\"local\":true}\n", stdout.String())
}

func TestRun_FSBackendWithoutCredentials(t *testing.T) {
	h := newHarness(t)
	h.cfg.R2 = config.R2Config{}
	root := t.TempDir()
	full := filepath.Join(root, filepath.FromSlash(keyB))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, testutil.GzipLines(t, `{"offline":true}`), 0o644))

	d := h.deps()
	d.openStore = openStore

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"r2logs", "--backend", "fs", "--root", root, "2024-01-11T15:01:00Z", "2024-01-11T15:02:00Z"}, &stdout, &stderr, d)

	require.Equal(t, 0, code, stderr.String())
	assert.Equal(t, "{\"offline\":true}\n", stdout.String())
	assert.NotContains(t, stderr.String(), "is not set")
}

func TestRun_LoadConfigError(t *testing.T) {
	h := newHarness(t)
	h.cfg = nil
	h.cfgErr = &r2logs.ConfigError{Field: "environment", Message: "R2LOGS_CONCURRENCY must be a positive integer"}

	_, stderr, code := h.run("--backend", "fs", "--root", t.TempDir())

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "R2LOGS_CONCURRENCY")
	assert.Zero(t, h.opened)
}

func TestOpenStore_FSNeedsRoot(t *testing.T) {
	_, err := openStore(context.Background(), storeParams{Backend: backendFS})

	var cfgErr *r2logs.ConfigError
	require.True(t, errors.As(err, &cfgErr), "expected *ConfigError, got %v", err)
}

func TestOpenStore_UnknownBackend(t *testing.T) {
	_, err := openStore(context.Background(), storeParams{Backend: "gcs", R2: testConfig().R2})

	var cfgErr *r2logs.ConfigError
	require.True(t, errors.As(err, &cfgErr), "expected *ConfigError, got %v", err)
}

func TestOpenStore_Backends(t *testing.T) {
	for _, backend := range []string{backendS3, backendMinIO} {
		t.Run(backend, func(t *testing.T) {
			store, err := openStore(context.Background(), storeParams{Backend: backend, R2: testConfig().R2, Concurrency: 2})
			require.NoError(t, err)
			assert.NotNil(t, store)
		})
	}
}
