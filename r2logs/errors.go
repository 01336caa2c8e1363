package r2logs

import (
	"errors"
	"fmt"
)

// Error sentinel values for common conditions.
var (
	// ErrNotFound indicates a requested object does not exist.
	ErrNotFound = errNotFound{}

	// ErrUnparsableKey indicates an object name that does not encode a time range.
	ErrUnparsableKey = errors.New("object key does not encode a time range")

	// ErrTruncatedLine indicates an object whose last line has no terminator.
	ErrTruncatedLine = errors.New("truncated line at end of object")

	// ErrLineTooLong indicates a line larger than the fetcher accepts.
	ErrLineTooLong = errors.New("line exceeds maximum size")

	// ErrInvalidKey indicates an empty key or one that escapes the bucket root.
	ErrInvalidKey = errors.New("invalid key")
)

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

// ConfigError reports invalid input detected before any backend call:
// missing credentials, an unknown layout, or a malformed time range.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "invalid configuration: " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// BackendError reports a list or get request that failed after retries.
type BackendError struct {
	// Op is "list" or "get".
	Op string

	// Key is the prefix (list) or object key (get), when known.
	Key string

	Err error
}

func (e *BackendError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("backend %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// DecodeError reports an object whose body could not be decompressed or
// split into complete lines.
type DecodeError struct {
	Key string

	// Line is the 1-based line being read when decoding failed, or 0 when
	// the failure happened before the first line.
	Line int

	Err error
}

func (e *DecodeError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("decode %s: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("decode %s line %d: %v", e.Key, e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// PermanentError marks a backend failure that retrying cannot fix, such as
// an authentication or authorization failure. Store adapters wrap such
// errors with Permanent.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so the retry policy gives up immediately.
// Returns nil if err is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}
