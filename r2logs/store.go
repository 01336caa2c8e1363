package r2logs

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// -----------------------------------------------------------------------------
// Memory Store
// -----------------------------------------------------------------------------

// MemoryStore implements Store using an in-memory map.
//
// Listing is lexicographic, matching S3 semantics.
// MemoryStore is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data     []byte
	modified time.Time
}

// NewMemory creates an empty in-memory Store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]memoryObject),
	}
}

// Put stores data under key, replacing any existing object.
// Returns ErrInvalidKey for empty or escaping keys.
func (m *MemoryStore) Put(key string, data []byte) error {
	normalized, valid := normalizeKey(key)
	if !valid {
		return ErrInvalidKey
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[normalized] = memoryObject{data: dataCopy, modified: time.Now().UTC()}
	return nil
}

// List implements Store.
func (m *MemoryStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var infos []ObjectInfo
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, ObjectInfo{
				Key:          key,
				Size:         int64(len(obj.data)),
				LastModified: obj.modified,
			})
		}
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// Open implements Store.
func (m *MemoryStore) Open(ctx context.Context, key string, offset int64) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, ErrInvalidKey
	}

	m.mu.RLock()
	obj, exists := m.objects[key]
	m.mu.RUnlock()

	if !exists {
		return nil, ErrNotFound
	}

	if offset >= int64(len(obj.data)) {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	return io.NopCloser(bytes.NewReader(obj.data[offset:])), nil
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

func normalizeKey(key string) (string, bool) {
	if key == "" {
		return "", false
	}

	cleaned := strings.TrimPrefix(path.Clean(key), "/")
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}
	return cleaned, true
}
