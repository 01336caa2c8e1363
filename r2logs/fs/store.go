// Package fs provides an r2logs.Store over a local directory that mirrors a
// bucket, e.g. one synced with `rclone sync r2:logs ./logs`.
//
// Keys are paths relative to the root, with forward slashes.
package fs

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/justapithecus/r2logs/r2logs"
)

// Store implements r2logs.Store using the local filesystem.
//
// Note: This does not prevent symlink escapes. A symlink inside the root
// pointing outside can still be read.
type Store struct {
	root string
}

// New creates a store rooted at dir. The directory must exist.
func New(dir string) (*Store, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("fs: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("fs: %s is not a directory", dir)
	}
	return &Store{root: dir}, nil
}

// List returns the files whose key starts with prefix, sorted by key.
func (s *Store) List(ctx context.Context, prefix string) ([]r2logs.ObjectInfo, error) {
	dir, err := s.dirForPrefix(prefix)
	if err != nil {
		return nil, err
	}

	var out []r2logs.ObjectInfo
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil // partition doesn't exist, return empty list
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, r2logs.ObjectInfo{Key: key, Size: info.Size(), LastModified: info.ModTime().UTC()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fs: list %s: %w", prefix, err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Open returns the file contents starting at offset.
func (s *Store) Open(_ context.Context, key string, offset int64) (io.ReadCloser, error) {
	if offset < 0 {
		return nil, r2logs.ErrInvalidKey
	}
	full, err := s.pathForKey(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("fs: open %s: %w", key, r2logs.ErrNotFound)
		}
		return nil, r2logs.Permanent(fmt.Errorf("fs: %w", err))
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("fs: seek %s: %w", key, err)
		}
	}
	return f, nil
}

// pathForKey resolves a key to a file path strictly under the root.
func (s *Store) pathForKey(key string) (string, error) {
	cleaned := path.Clean(key)
	if key == "" || cleaned == "." || !validRelative(cleaned) {
		return "", r2logs.ErrInvalidKey
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

// dirForPrefix returns the deepest directory that can hold keys starting
// with prefix: the prefix itself when it ends in "/", else its parent.
func (s *Store) dirForPrefix(prefix string) (string, error) {
	dir := prefix
	if !strings.HasSuffix(prefix, "/") {
		dir = path.Dir(prefix)
	}
	cleaned := path.Clean(dir)
	if cleaned == "." || prefix == "" {
		return s.root, nil
	}
	if !validRelative(cleaned) {
		return "", r2logs.ErrInvalidKey
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

// validRelative rejects absolute paths and paths escaping via "..".
func validRelative(cleaned string) bool {
	return !strings.HasPrefix(cleaned, "/") && cleaned != ".." && !strings.HasPrefix(cleaned, "../")
}

// Ensure Store implements r2logs.Store
var _ r2logs.Store = (*Store)(nil)
