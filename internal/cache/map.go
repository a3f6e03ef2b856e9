package cache

import (
	"context"
	"io/fs"
	"slices"
	"sync"
)

// Map holds one Cache per source path, created on first use. All entries
// share the seed, recomputation function and options. Entries are locked
// independently, so unrelated sources never contend.
type Map[T any] struct {
	fsys fs.FS
	seed T
	fn   Func[T]
	opts options

	mu      sync.RWMutex
	entries map[string]*Cache[T]
}

// NewMap returns an empty Map over fsys.
func NewMap[T any](fsys fs.FS, seed T, fn Func[T], opts ...Option) *Map[T] {
	return &Map[T]{
		fsys:    fsys,
		seed:    seed,
		fn:      fn,
		opts:    newOptions(opts),
		entries: make(map[string]*Cache[T]),
	}
}

// Get returns the Cache for path, creating it if needed.
func (m *Map[T]) Get(path string) *Cache[T] {
	m.mu.RLock()
	c, ok := m.entries[path]
	m.mu.RUnlock()
	if ok {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.entries[path]; ok {
		return c
	}
	c = newCache(m.fsys, path, m.seed, m.fn, m.opts)
	m.entries[path] = c
	return c
}

// Lookup returns the Cache for path without creating one.
func (m *Map[T]) Lookup(path string) (*Cache[T], bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.entries[path]
	return c, ok
}

// Load is shorthand for m.Get(path).Load(ctx).
func (m *Map[T]) Load(ctx context.Context, path string) (T, error) {
	return m.Get(path).Load(ctx)
}

// Expire expires the entry for path if one exists and reports whether it did.
func (m *Map[T]) Expire(path string) bool {
	c, ok := m.Lookup(path)
	if ok {
		c.Expire()
	}
	return ok
}

// ExpireAll expires every entry.
func (m *Map[T]) ExpireAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.entries {
		c.Expire()
	}
}

// Paths returns the sorted source paths with an entry.
func (m *Map[T]) Paths() []string {
	m.mu.RLock()
	paths := make([]string, 0, len(m.entries))
	for p := range m.entries {
		paths = append(paths, p)
	}
	m.mu.RUnlock()
	slices.Sort(paths)
	return paths
}

// Len returns the number of entries.
func (m *Map[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
