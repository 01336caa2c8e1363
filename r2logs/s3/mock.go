package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// -----------------------------------------------------------------------------
// Mock S3 Client for Testing
// -----------------------------------------------------------------------------

type mockObject struct {
	data     []byte
	modified time.Time
}

// MockS3Client is a test double for API.
//
// It honors ListObjectsV2 pagination (MaxKeys and continuation tokens) and
// open-ended "bytes=N-" range requests, the two request shapes Store sends.
type MockS3Client struct {
	mu      sync.RWMutex
	objects map[string]mockObject

	// Call counters for test assertions
	GetObjectCalls     int
	ListObjectsV2Calls int

	// Ranges records the Range header of every GetObject call ("" for none).
	Ranges []string

	// GetObjectErr, when set, is returned by the next GetObjectErrCount
	// GetObject calls (every call when negative).
	GetObjectErr      error
	GetObjectErrCount int

	// ListObjectsV2Err, when set, is returned by every ListObjectsV2 call.
	ListObjectsV2Err error

	// BodyFailAfter, when positive, makes the next body returned by
	// GetObject fail with BodyErr after that many bytes.
	BodyFailAfter int64
	BodyErr       error
}

// NewMockS3Client creates a new mock S3 client for testing.
func NewMockS3Client() *MockS3Client {
	return &MockS3Client{
		objects: make(map[string]mockObject),
	}
}

// PutObject stores data under key. Test setup only; Store never writes.
func (m *MockS3Client) PutObject(key string, data []byte, modified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = mockObject{data: append([]byte(nil), data...), modified: modified}
}

// ResetCounts resets call counters for test isolation.
func (m *MockS3Client) ResetCounts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetObjectCalls = 0
	m.ListObjectsV2Calls = 0
	m.Ranges = nil
}

// GetObject implements API.GetObject for testing.
func (m *MockS3Client) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(params.Key)
	rangeStr := aws.ToString(params.Range)

	m.mu.Lock()
	m.GetObjectCalls++
	m.Ranges = append(m.Ranges, rangeStr)
	if m.GetObjectErr != nil && m.GetObjectErrCount != 0 {
		if m.GetObjectErrCount > 0 {
			m.GetObjectErrCount--
		}
		err := m.GetObjectErr
		m.mu.Unlock()
		return nil, err
	}
	obj, exists := m.objects[key]
	failAfter, bodyErr := m.BodyFailAfter, m.BodyErr
	m.BodyFailAfter = 0
	m.mu.Unlock()

	if !exists {
		return nil, &types.NoSuchKey{}
	}

	data := obj.data
	if rangeStr != "" {
		var start int64
		if _, err := fmt.Sscanf(rangeStr, "bytes=%d-", &start); err != nil {
			return nil, &smithyAPIError{code: "InvalidArgument", message: "bad range " + rangeStr}
		}
		if start >= int64(len(data)) {
			return nil, &smithyAPIError{code: "InvalidRange", message: "range not satisfiable"}
		}
		data = data[start:]
	}

	var body io.Reader = bytes.NewReader(data)
	if failAfter > 0 {
		body = io.MultiReader(io.LimitReader(body, failAfter), errReader{err: bodyErr})
	}

	return &s3.GetObjectOutput{
		Body:          io.NopCloser(body),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

// ListObjectsV2 implements API.ListObjectsV2 for testing.
func (m *MockS3Client) ListObjectsV2(_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(params.Prefix)
	after := aws.ToString(params.ContinuationToken)
	maxKeys := int(aws.ToInt32(params.MaxKeys))
	if maxKeys <= 0 {
		maxKeys = 1000
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.ListObjectsV2Calls++
	if m.ListObjectsV2Err != nil {
		return nil, m.ListObjectsV2Err
	}

	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) && key > after {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	truncated := len(keys) > maxKeys
	if truncated {
		keys = keys[:maxKeys]
	}

	contents := make([]types.Object, 0, len(keys))
	for _, key := range keys {
		obj := m.objects[key]
		contents = append(contents, types.Object{
			Key:          aws.String(key),
			Size:         aws.Int64(int64(len(obj.data))),
			LastModified: aws.Time(obj.modified),
		})
	}

	out := &s3.ListObjectsV2Output{
		Contents:    contents,
		IsTruncated: aws.Bool(truncated),
	}
	if truncated {
		out.NextContinuationToken = aws.String(keys[len(keys)-1])
	}
	return out, nil
}

type errReader struct {
	err error
}

func (r errReader) Read([]byte) (int, error) {
	return 0, r.err
}

// smithyAPIError implements smithy.APIError for testing.
type smithyAPIError struct {
	code    string
	message string
}

func (e *smithyAPIError) Error() string {
	return e.message
}

func (e *smithyAPIError) ErrorCode() string {
	return e.code
}

func (e *smithyAPIError) ErrorMessage() string {
	return e.message
}

func (e *smithyAPIError) ErrorFault() smithy.ErrorFault {
	return smithy.FaultUnknown
}

// NewAPIError returns a smithy.APIError with the given code, for tests that
// need to inject service errors through MockS3Client.
func NewAPIError(code, message string) error {
	return &smithyAPIError{code: code, message: message}
}
