package r2logs

import (
	"bytes"
	"io"
	"testing"

	"github.com/justapithecus/r2logs/internal/testutil"
)

func TestDecompressorFor(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"date=2024-01-11/hour=15/a.log.gz", "gzip"},
		{"20240111/a.log.zst", "zstd"},
		{"20240111/a.log", "noop"},
		{"a.gz.txt", "noop"},
	}

	for _, tt := range tests {
		if got := DecompressorFor(tt.key).Name(); got != tt.want {
			t.Errorf("DecompressorFor(%q) = %s, want %s", tt.key, got, tt.want)
		}
	}
}

func TestDecompressors_RoundTrip(t *testing.T) {
	plain := testutil.Lines(`{"a":1}`, `{"a":2}`)

	tests := []struct {
		name string
		d    Decompressor
		data []byte
	}{
		{"gzip", NewGzipDecompressor(), testutil.Gzip(t, plain)},
		{"gzip members", NewGzipDecompressor(), append(testutil.Gzip(t, plain[:8]), testutil.Gzip(t, plain[8:])...)},
		{"zstd", NewZstdDecompressor(), testutil.Zstd(t, plain)},
		{"noop", NewNoOpDecompressor(), plain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc, err := tt.d.Decompress(bytes.NewReader(tt.data))
			if err != nil {
				t.Fatalf("Decompress failed: %v", err)
			}
			defer func() { _ = rc.Close() }()

			got, err := io.ReadAll(rc)
			if err != nil {
				t.Fatalf("read failed: %v", err)
			}
			if !bytes.Equal(got, plain) {
				t.Errorf("got %q, want %q", got, plain)
			}
		})
	}
}

func TestGzipDecompressor_Corrupt(t *testing.T) {
	if _, err := NewGzipDecompressor().Decompress(bytes.NewReader([]byte("not gzip"))); err == nil {
		t.Error("expected error for corrupt gzip header")
	}
}
