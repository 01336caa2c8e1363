// Package export writes retrieved records to columnar files.
package export

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/justapithecus/r2logs/r2logs"
)

// Column names of the exported file.
const (
	ColumnKey  = "key"
	ColumnLine = "line"
	ColumnData = "data"
)

// defaultBatch is the number of rows buffered before they are handed to the
// parquet writer.
const defaultBatch = 1024

// Compression selects the page compression of the exported file.
type Compression int

// Compression codecs.
const (
	CompressionSnappy Compression = iota
	CompressionGzip
	CompressionZstd
	CompressionNone
)

// ParseCompression maps a codec name to a Compression. The empty name
// selects snappy.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "snappy":
		return CompressionSnappy, nil
	case "gzip":
		return CompressionGzip, nil
	case "zstd":
		return CompressionZstd, nil
	case "none":
		return CompressionNone, nil
	default:
		return 0, &r2logs.ConfigError{Field: "parquet compression", Message: fmt.Sprintf("unknown codec %q", name)}
	}
}

func (c Compression) writerOption() parquet.WriterOption {
	switch c {
	case CompressionGzip:
		return parquet.Compression(&parquet.Gzip)
	case CompressionZstd:
		return parquet.Compression(&parquet.Zstd)
	case CompressionNone:
		return parquet.Compression(&parquet.Uncompressed)
	default:
		return parquet.Compression(&parquet.Snappy)
	}
}

// Schema returns the schema of exported files: one row per record with the
// object key, the line number and the raw line.
func Schema() *parquet.Schema {
	return parquet.NewSchema("record", parquet.Group{
		ColumnKey:  parquet.String(),
		ColumnLine: parquet.Int(64),
		ColumnData: parquet.String(),
	})
}

// ParquetSink is an r2logs.Sink that writes records as Parquet rows.
//
// Flush hands buffered rows to the writer; the file footer is only written
// by Close, so a ParquetSink must always be closed.
type ParquetSink struct {
	w      *parquet.Writer
	closer io.Closer

	// index maps column name to its position in the schema.
	index map[string]int

	pending []parquet.Row
	batch   int
	rows    int64
	closed  bool
}

// NewParquetSink creates a sink writing a Parquet file to w.
func NewParquetSink(w io.Writer, compression Compression) *ParquetSink {
	schema := Schema()
	index := make(map[string]int, len(schema.Fields()))
	for i, f := range schema.Fields() {
		index[f.Name()] = i
	}
	return &ParquetSink{
		w:     parquet.NewWriter(w, schema, compression.writerOption()),
		index: index,
		batch: defaultBatch,
	}
}

// CreateParquetFile creates (or truncates) path and returns a sink writing
// to it. Close closes the file.
func CreateParquetFile(path string, compression Compression) (*ParquetSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("export: create %s: %w", path, err)
	}
	s := NewParquetSink(f, compression)
	s.closer = f
	return s, nil
}

// Write implements r2logs.Sink.
func (s *ParquetSink) Write(rec r2logs.Record) error {
	if s.closed {
		return errors.New("export: write to closed parquet sink")
	}

	row := make(parquet.Row, len(s.index))
	row[s.index[ColumnKey]] = parquet.ByteArrayValue([]byte(rec.Key)).Level(0, 0, s.index[ColumnKey])
	row[s.index[ColumnLine]] = parquet.Int64Value(int64(rec.Line)).Level(0, 0, s.index[ColumnLine])
	row[s.index[ColumnData]] = parquet.ByteArrayValue(rec.Data).Level(0, 0, s.index[ColumnData])
	s.pending = append(s.pending, row)

	if len(s.pending) >= s.batch {
		return s.writePending()
	}
	return nil
}

// Flush implements r2logs.Sink.
func (s *ParquetSink) Flush() error {
	if s.closed {
		return nil
	}
	return s.writePending()
}

// Rows returns the number of rows handed to the writer so far.
func (s *ParquetSink) Rows() int64 {
	return s.rows
}

// Close writes pending rows and the file footer, then closes the
// underlying file if the sink owns one.
func (s *ParquetSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if err := s.writePending(); err != nil {
		errs = append(errs, err)
	}
	if err := s.w.Close(); err != nil {
		errs = append(errs, fmt.Errorf("export: close writer: %w", err))
	}
	if s.closer != nil {
		if err := s.closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("export: close file: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *ParquetSink) writePending() error {
	if len(s.pending) == 0 {
		return nil
	}
	n, err := s.w.WriteRows(s.pending)
	s.rows += int64(n)
	s.pending = s.pending[:0]
	if err != nil {
		return fmt.Errorf("export: write rows: %w", err)
	}
	return nil
}

// Ensure ParquetSink implements r2logs.Sink
var _ r2logs.Sink = (*ParquetSink)(nil)
