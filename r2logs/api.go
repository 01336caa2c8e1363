// Package r2logs retrieves Cloudflare Logpush objects from R2 (or any
// S3-compatible object store) for a time range and streams their log lines.
//
// A retrieval resolves the requested TimeRange to partition prefixes, lists
// the objects stored under them, then fetches, decompresses and reassembles
// their lines in partition order. It does not filter or interpret records.
package r2logs

import (
	"context"
	"fmt"
	"io"
	"time"
)

// -----------------------------------------------------------------------------
// Core types
// -----------------------------------------------------------------------------

// DefaultWindow is the length of the range used when no start time is given.
const DefaultWindow = 5 * time.Minute

// TimeRange is a half-open UTC interval [Start, End) at second resolution.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// NewTimeRange normalizes start and end to UTC seconds and validates them.
// Returns a *ConfigError if start is after end.
func NewTimeRange(start, end time.Time) (TimeRange, error) {
	r := TimeRange{
		Start: start.UTC().Truncate(time.Second),
		End:   end.UTC().Truncate(time.Second),
	}
	if r.Start.After(r.End) {
		return TimeRange{}, &ConfigError{
			Field:   "time range",
			Message: fmt.Sprintf("start %s is after end %s", r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339)),
		}
	}
	return r, nil
}

// DefaultRange returns [now-DefaultWindow, now).
func DefaultRange(now time.Time) TimeRange {
	end := now.UTC().Truncate(time.Second)
	return TimeRange{Start: end.Add(-DefaultWindow), End: end}
}

// Empty reports whether the range contains no instant.
func (r TimeRange) Empty() bool {
	return !r.Start.Before(r.End)
}

// Overlaps reports whether the two ranges share at least one instant.
func (r TimeRange) Overlaps(o TimeRange) bool {
	if r.Empty() || o.Empty() {
		return false
	}
	return r.Start.Before(o.End) && o.Start.Before(r.End)
}

func (r TimeRange) String() string {
	return r.Start.Format(time.RFC3339) + ".." + r.End.Format(time.RFC3339)
}

// CandidateKey is a key prefix covering one partition of the bucket layout.
type CandidateKey struct {
	// Prefix is the storage key prefix for the partition (e.g. "date=2024-01-11/hour=15/").
	Prefix string

	// Partition is the UTC start of the partition.
	Partition time.Time
}

// ObjectInfo describes an object as reported by a Store listing.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// StoredObject is a listed object whose name encodes a time range
// overlapping the request.
type StoredObject struct {
	Key          string
	Size         int64
	LastModified time.Time

	// Range is parsed from the object name.
	Range TimeRange
}

// Record is one line of a log object, without its line terminator.
type Record struct {
	// Key is the object the line was read from.
	Key string

	// Line is the 1-based line number within the decompressed object.
	Line int

	// Data is owned by the receiver.
	Data []byte
}

// Stats summarizes a retrieval.
type Stats struct {
	Objects int
	Records int64
	Bytes   int64
}

// -----------------------------------------------------------------------------
// Store interface
// -----------------------------------------------------------------------------

// Store abstracts the object storage backend.
//
// Implementations must be safe for concurrent use. The interface is
// read-only: retrieval never writes to the bucket.
type Store interface {
	// List returns the objects whose key starts with prefix, in backend order
	// (lexicographic for S3-compatible stores).
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Open returns the raw object body starting at byte offset.
	// An offset at or beyond the end of the object yields an empty body.
	Open(ctx context.Context, key string, offset int64) (io.ReadCloser, error)
}

// -----------------------------------------------------------------------------
// Sink interface
// -----------------------------------------------------------------------------

// Sink receives assembled records in output order.
type Sink interface {
	// Write consumes one record.
	Write(rec Record) error

	// Flush pushes buffered records to the underlying output.
	Flush() error
}
