package r2logs

import (
	"bufio"
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"
)

const (
	// maxLineSize bounds a single decompressed log line.
	maxLineSize = 10 * 1024 * 1024 // 10MB

	readBufferSize = 64 * 1024
)

// Fetcher streams the lines of one object.
type Fetcher struct {
	store Store
	retry RetryPolicy
	log   zerolog.Logger
}

// NewFetcher creates a fetcher reading from store.
func NewFetcher(store Store, retry RetryPolicy, log zerolog.Logger) *Fetcher {
	return &Fetcher{store: store, retry: retry, log: log}
}

// Fetch decompresses obj incrementally and calls yield once per line, in
// file order. Iteration stops at the first error returned by yield.
//
// Transport failures are retried per the fetcher's RetryPolicy; a failure
// mid-body resumes at the compressed byte offset already consumed, so no
// line is yielded twice. Exhausted retries return a *BackendError.
// Corrupt compression or a final line without a terminator returns a
// *DecodeError and is never retried.
func (f *Fetcher) Fetch(ctx context.Context, obj StoredObject, yield func(Record) error) error {
	body := &resumableBody{
		ctx:    ctx,
		store:  f.store,
		key:    obj.Key,
		size:   obj.Size,
		policy: f.retry,
		log:    f.log,
	}
	defer body.Close()

	rc, err := DecompressorFor(obj.Key).Decompress(body)
	if err != nil {
		if errors.Is(err, io.EOF) && body.err == nil {
			// Zero-length object.
			return nil
		}
		return f.failure(ctx, body, obj.Key, 0, err)
	}
	defer func() { _ = rc.Close() }()

	br := bufio.NewReaderSize(rc, readBufferSize)
	line := 0
	for {
		data, err := readLine(br)
		if err == nil {
			line++
			rec := Record{Key: obj.Key, Line: line, Data: data[:len(data)-1]}
			if err := yield(rec); err != nil {
				return err
			}
			continue
		}

		if errors.Is(err, io.EOF) && body.err == nil {
			if len(data) > 0 {
				return &DecodeError{Key: obj.Key, Line: line + 1, Err: ErrTruncatedLine}
			}
			return nil
		}
		return f.failure(ctx, body, obj.Key, line+1, err)
	}
}

// failure attributes a read error to the transport, the caller's context,
// or the object's encoding.
func (f *Fetcher) failure(ctx context.Context, body *resumableBody, key string, line int, err error) error {
	if body.err != nil {
		return body.err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &DecodeError{Key: key, Line: line, Err: err}
}

// readLine returns the next line including its '\n'. At end of stream the
// returned slice holds any unterminated remainder and err is io.EOF.
// The slice is freshly allocated.
func readLine(br *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		chunk, err := br.ReadSlice('\n')
		if len(line)+len(chunk) > maxLineSize {
			return nil, ErrLineTooLong
		}
		line = append(line, chunk...)
		if !errors.Is(err, bufio.ErrBufferFull) {
			return line, err
		}
	}
}

// -----------------------------------------------------------------------------
// Resumable body
// -----------------------------------------------------------------------------

// resumableBody reads an object's raw bytes, reopening it at the current
// offset after a transient failure.
type resumableBody struct {
	ctx    context.Context
	store  Store
	key    string
	size   int64
	policy RetryPolicy
	log    zerolog.Logger

	rc     io.ReadCloser
	offset int64

	// err is the terminal transport error, once retries are exhausted.
	err error
}

func (b *resumableBody) Read(p []byte) (int, error) {
	if b.err != nil {
		return 0, b.err
	}

	var n int
	var eof error
	err := b.policy.do(b.ctx, b.log, "get", b.key, func() error {
		var rerr error
		n, rerr = b.read(p)
		switch {
		case rerr == nil:
			return nil
		case errors.Is(rerr, io.EOF) && (b.size <= 0 || b.offset >= b.size):
			eof = io.EOF
			return nil
		case errors.Is(rerr, io.EOF):
			// The connection ended before the listed size was read.
			b.closeBody()
			if n > 0 {
				return nil
			}
			return io.ErrUnexpectedEOF
		case n > 0:
			// Keep the bytes; the next Read reopens at the new offset.
			b.closeBody()
			return nil
		default:
			b.closeBody()
			return rerr
		}
	})
	if err != nil {
		if ctxErr := b.ctx.Err(); ctxErr != nil {
			b.err = ctxErr
		} else {
			b.err = &BackendError{Op: "get", Key: b.key, Err: err}
		}
		return 0, b.err
	}
	return n, eof
}

func (b *resumableBody) read(p []byte) (int, error) {
	if b.rc == nil {
		rc, err := b.store.Open(b.ctx, b.key, b.offset)
		if err != nil {
			return 0, err
		}
		b.rc = rc
	}

	n, err := b.rc.Read(p)
	b.offset += int64(n)
	return n, err
}

func (b *resumableBody) closeBody() {
	if b.rc != nil {
		_ = b.rc.Close()
		b.rc = nil
	}
}

// Close releases the current connection, if any.
func (b *resumableBody) Close() error {
	b.closeBody()
	return nil
}
