package r2logs

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// -----------------------------------------------------------------------------
// Fault-Injection Store Wrapper (test-only)
// -----------------------------------------------------------------------------
//
// faultStore wraps a Store and enables deterministic fault injection for
// retrieval failure paths. It provides:
//   - Error injection on List and Open, optionally for a limited count
//   - Mid-body read failures after a byte budget
//   - Blocking points to force out-of-order completion
//   - Call observation

var (
	errInjectedList = errors.New("injected list error")
	errInjectedOpen = errors.New("injected open error")
	errInjectedRead = errors.New("injected read error")
)

// openCall records one Open request.
type openCall struct {
	key    string
	offset int64
}

type faultStore struct {
	inner Store

	mu sync.Mutex

	// listErr is returned for prefixes containing listErrMatch, listErrCount
	// times (forever when negative).
	listErr      error
	listErrMatch string
	listErrCount int

	// openErr is returned for keys containing openErrMatch, openErrCount
	// times (forever when negative).
	openErr      error
	openErrMatch string
	openErrCount int

	// readFailAfter fails the body of a matching key with errInjectedRead
	// once readFailAfter bytes have been read, readFailCount times.
	readFailAfter int64
	readFailMatch string
	readFailCount int

	// openBlock holds Open for a key until the channel is closed.
	openBlock map[string]chan struct{}

	// afterClose is called when a body is closed.
	afterClose func(key string)

	listCalls []string
	openCalls []openCall
}

func newFaultStore(inner Store) *faultStore {
	return &faultStore{inner: inner, openBlock: make(map[string]chan struct{})}
}

// --- Fault injection setters ---

// SetListError fails List for prefixes containing match, count times.
func (f *faultStore) SetListError(err error, match string, count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr, f.listErrMatch, f.listErrCount = err, match, count
}

// SetOpenError fails Open for keys containing match, count times.
func (f *faultStore) SetOpenError(err error, match string, count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openErr, f.openErrMatch, f.openErrCount = err, match, count
}

// SetReadFailure breaks the body of keys containing match after n bytes,
// count times.
func (f *faultStore) SetReadFailure(n int64, match string, count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readFailAfter, f.readFailMatch, f.readFailCount = n, match, count
}

// SetOpenBlock holds Open for key until ch is closed.
func (f *faultStore) SetOpenBlock(key string, ch chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openBlock[key] = ch
}

// SetAfterClose sets a hook called after each body is closed.
func (f *faultStore) SetAfterClose(hook func(key string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.afterClose = hook
}

// --- Call observation ---

func (f *faultStore) ListCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.listCalls...)
}

func (f *faultStore) OpenCalls() []openCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]openCall(nil), f.openCalls...)
}

// --- Store implementation ---

func (f *faultStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	f.mu.Lock()
	f.listCalls = append(f.listCalls, prefix)
	err := take(&f.listErrCount, f.listErr, f.listErrMatch, prefix)
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return f.inner.List(ctx, prefix)
}

func (f *faultStore) Open(ctx context.Context, key string, offset int64) (io.ReadCloser, error) {
	f.mu.Lock()
	f.openCalls = append(f.openCalls, openCall{key: key, offset: offset})
	err := take(&f.openErrCount, f.openErr, f.openErrMatch, key)
	block := f.openBlock[key]
	failAfter := int64(-1)
	if f.readFailCount != 0 && strings.Contains(key, f.readFailMatch) {
		failAfter = f.readFailAfter
		if f.readFailCount > 0 {
			f.readFailCount--
		}
	}
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	rc, err := f.inner.Open(ctx, key, offset)
	if err != nil {
		return nil, err
	}
	return &faultBody{store: f, key: key, rc: rc, remaining: failAfter}, nil
}

// take returns err if it applies to name, consuming one use of count.
// Callers hold f.mu.
func take(count *int, err error, match, name string) error {
	if err == nil || *count == 0 || !strings.Contains(name, match) {
		return nil
	}
	if *count > 0 {
		*count--
	}
	return err
}

// faultBody fails with errInjectedRead after remaining bytes, unless
// remaining is negative.
type faultBody struct {
	store     *faultStore
	key       string
	rc        io.ReadCloser
	remaining int64
}

func (b *faultBody) Read(p []byte) (int, error) {
	if b.remaining < 0 {
		return b.rc.Read(p)
	}
	if b.remaining == 0 {
		return 0, errInjectedRead
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.rc.Read(p)
	b.remaining -= int64(n)
	return n, err
}

func (b *faultBody) Close() error {
	err := b.rc.Close()

	b.store.mu.Lock()
	hook := b.store.afterClose
	b.store.mu.Unlock()
	if hook != nil {
		hook(b.key)
	}
	return err
}

var _ Store = (*faultStore)(nil)
