// Package testutil provides shared test helpers for building sites and
// observing filesystem access.
package testutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/leaf/internal/storage"
)

// TestSite creates a temporary site root with a storage.FS over it.
func TestSite(t *testing.T) (string, *storage.FS) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, store
}

// WriteFile writes content to rel under root, creating parent directories,
// and stamps it with mtime when mtime is non-zero.
func WriteFile(t *testing.T, root, rel, content string, mtime time.Time) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if !mtime.IsZero() {
		if err := os.Chtimes(p, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}
}

// RemoveFile deletes rel under root.
func RemoveFile(t *testing.T, root, rel string) {
	t.Helper()
	if err := os.Remove(filepath.Join(root, filepath.FromSlash(rel))); err != nil {
		t.Fatal(err)
	}
}

// CountingFS wraps an fs.FS and counts opens and content reads.
type CountingFS struct {
	FS fs.FS

	opens atomic.Int64
	reads atomic.Int64

	mu   sync.Mutex
	fail map[string]error
}

// NewCountingFS wraps fsys.
func NewCountingFS(fsys fs.FS) *CountingFS {
	return &CountingFS{FS: fsys}
}

// Open implements fs.FS.
func (c *CountingFS) Open(name string) (fs.File, error) {
	c.opens.Add(1)
	c.mu.Lock()
	err := c.fail[name]
	c.mu.Unlock()
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	f, err := c.FS.Open(name)
	if err != nil {
		return nil, err
	}
	return &countingFile{File: f, reads: &c.reads}, nil
}

// FailOpen makes subsequent opens of name fail with err. A nil err clears it.
func (c *CountingFS) FailOpen(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail == nil {
		c.fail = make(map[string]error)
	}
	if err == nil {
		delete(c.fail, name)
		return
	}
	c.fail[name] = err
}

// Opens returns the number of Open calls so far.
func (c *CountingFS) Opens() int64 { return c.opens.Load() }

// Reads returns the number of files whose content was read at least once.
func (c *CountingFS) Reads() int64 { return c.reads.Load() }

type countingFile struct {
	fs.File
	reads   *atomic.Int64
	counted bool
}

func (f *countingFile) Read(p []byte) (int, error) {
	if !f.counted {
		f.counted = true
		f.reads.Add(1)
	}
	return f.File.Read(p)
}
