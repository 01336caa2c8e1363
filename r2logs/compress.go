package r2logs

import (
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Decompressor unwraps a compressed object body.
//
// Decompressors stream: they never buffer a whole object before the first
// byte of output is available.
type Decompressor interface {
	// Name returns the decompressor identifier (for example, "gzip", "zstd", "noop").
	Name() string

	// Extension returns the file extension it handles (for example, ".gz").
	Extension() string

	// Decompress wraps a reader with decompression.
	Decompress(r io.Reader) (io.ReadCloser, error)
}

// decompressors is consulted in order by DecompressorFor.
var decompressors = []Decompressor{
	NewGzipDecompressor(),
	NewZstdDecompressor(),
}

// DecompressorFor selects a decompressor from the key's extension.
// Keys without a known compression extension are read as-is.
func DecompressorFor(key string) Decompressor {
	for _, d := range decompressors {
		if strings.HasSuffix(key, d.Extension()) {
			return d
		}
	}
	return NewNoOpDecompressor()
}

// -----------------------------------------------------------------------------
// Gzip
// -----------------------------------------------------------------------------

type gzipDecompressor struct{}

// NewGzipDecompressor creates a gzip decompressor. Logpush writes gzip
// objects with a .gz extension. Concatenated gzip members are read as one
// stream.
func NewGzipDecompressor() Decompressor {
	return &gzipDecompressor{}
}

func (g *gzipDecompressor) Name() string {
	return "gzip"
}

func (g *gzipDecompressor) Extension() string {
	return ".gz"
}

func (g *gzipDecompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

// -----------------------------------------------------------------------------
// Zstd
// -----------------------------------------------------------------------------

type zstdDecompressor struct{}

// NewZstdDecompressor creates a zstd decompressor for .zst objects.
func NewZstdDecompressor() Decompressor {
	return &zstdDecompressor{}
}

func (z *zstdDecompressor) Name() string {
	return "zstd"
}

func (z *zstdDecompressor) Extension() string {
	return ".zst"
}

func (z *zstdDecompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	decoder, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return decoder.IOReadCloser(), nil
}

// -----------------------------------------------------------------------------
// NoOp
// -----------------------------------------------------------------------------

type noopDecompressor struct{}

// NewNoOpDecompressor creates a decompressor that passes data through.
func NewNoOpDecompressor() Decompressor {
	return &noopDecompressor{}
}

func (n *noopDecompressor) Name() string {
	return "noop"
}

func (n *noopDecompressor) Extension() string {
	return ""
}

func (n *noopDecompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}
