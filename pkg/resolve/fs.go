// Package resolve locates Slang modules on a filesystem by directory-climbing search.
package resolve

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// FileSystem is the read-only file access the resolver needs.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	Exists(path string) bool
}

// LocalFS reads from the local disk.
type LocalFS struct{}

// NewLocalFS creates a disk-backed FileSystem.
func NewLocalFS() LocalFS {
	return LocalFS{}
}

// ReadFile reads the named file.
func (LocalFS) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return data, nil
}

// Exists reports whether path names a regular file or symlink to one.
func (LocalFS) Exists(path string) bool {
	info, err := os.Stat(path)

	return err == nil && !info.IsDir()
}

// MemoryFS is an in-memory FileSystem keyed by cleaned absolute paths.
type MemoryFS struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemoryFS creates an empty in-memory filesystem.
func NewMemoryFS() *MemoryFS {
	return &MemoryFS{
		files: make(map[string][]byte),
	}
}

// WriteFile stores a copy of data at path.
func (m *MemoryFS) WriteFile(path string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.files[filepath.Clean(path)] = append([]byte(nil), data...)
}

// Remove deletes path if present.
func (m *MemoryFS) Remove(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.files, filepath.Clean(path))
}

// ReadFile returns a copy of the stored content.
func (m *MemoryFS) ReadFile(path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.files[filepath.Clean(path)]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", path, fs.ErrNotExist)
	}

	return append([]byte(nil), data...), nil
}

// Exists reports whether path was written.
func (m *MemoryFS) Exists(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.files[filepath.Clean(path)]

	return ok
}

// StatCache memoizes Exists answers for the lifetime of one request, so
// sibling imports climbing through the same ancestors stat each candidate once.
// It is not safe for concurrent use.
type StatCache struct {
	inner  FileSystem
	exists map[string]bool
}

// NewStatCache wraps inner with an existence memo.
func NewStatCache(inner FileSystem) *StatCache {
	return &StatCache{
		inner:  inner,
		exists: make(map[string]bool),
	}
}

// ReadFile delegates to the wrapped filesystem.
func (c *StatCache) ReadFile(path string) ([]byte, error) {
	data, err := c.inner.ReadFile(path)
	if err != nil {
		return nil, err //nolint:wrapcheck // inner already names the path.
	}

	return data, nil
}

// Exists answers from the memo, consulting the wrapped filesystem once per path.
func (c *StatCache) Exists(path string) bool {
	if ok, cached := c.exists[path]; cached {
		return ok
	}

	ok := c.inner.Exists(path)
	c.exists[path] = ok

	return ok
}

// Missing returns the paths Exists reported absent, sorted. A file created
// at one of them can change how an import resolves.
func (c *StatCache) Missing() []string {
	var out []string

	for path, ok := range c.exists {
		if !ok {
			out = append(out, path)
		}
	}

	slices.Sort(out)

	return out
}
