package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// PageFile is the file name holding a directory's page source.
const PageFile = "page.md"

var _ Provider = (*FS)(nil)

// PageInfo describes one page source.
type PageInfo struct {
	Name      string    `json:"name"` // fs.FS name of the page.md file
	URL       string    `json:"url"`  // URL path the page is served at
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to site directory
}

// NewFS creates a new FS rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute site directory.
func (f *FS) Root() string {
	return f.root
}

// safePath resolves an fs.FS name against the root and rejects any result
// that escapes it.
func (f *FS) safePath(op, name string) (string, error) {
	if !fs.ValidPath(name) {
		return "", &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	if name == "." {
		return f.root, nil
	}
	abs := filepath.Join(f.root, filepath.FromSlash(name))
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", &fs.PathError{Op: op, Path: name, Err: fs.ErrPermission}
	}
	return abs, nil
}

// Open implements fs.FS.
func (f *FS) Open(name string) (fs.File, error) {
	abs, err := f.safePath("open", name)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(abs)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: unwrapPathError(err)}
	}
	return file, nil
}

// Stat implements fs.StatFS.
func (f *FS) Stat(name string) (fs.FileInfo, error) {
	abs, err := f.safePath("stat", name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: unwrapPathError(err)}
	}
	return info, nil
}

// Rel converts an absolute OS path under the root into an fs.FS name.
func (f *FS) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(f.root, abs)
	if err != nil {
		return "", fmt.Errorf("storage: rel %s: %w", abs, err)
	}
	rel = filepath.ToSlash(rel)
	if !fs.ValidPath(rel) {
		return "", fmt.Errorf("storage: path outside root: %s", abs)
	}
	return rel, nil
}

// Pages walks dir and returns every page.md below it, skipping hidden and
// underscore-prefixed directories since those are never served.
func (f *FS) Pages(dir string) ([]PageInfo, error) {
	if dir == "" {
		dir = "."
	}
	if _, err := f.safePath("walk", dir); err != nil {
		return nil, err
	}
	var out []PageInfo
	err := fs.WalkDir(f, dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if p != dir && !Servable(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if d.Name() != PageFile {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, PageInfo{
			Name:      p,
			URL:       PageURL(p),
			Size:      info.Size(),
			UpdatedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: pages: %w", err)
	}
	return out, nil
}

// Servable reports whether a single path component may appear in a URL.
func Servable(component string) bool {
	return component != "" && !strings.HasPrefix(component, ".") && !strings.HasPrefix(component, "_")
}

// PageURL returns the URL path for the fs.FS name of a page.md file.
func PageURL(name string) string {
	dir := path.Dir(name)
	if dir == "." {
		return "/"
	}
	return "/" + dir + "/"
}

// PageName returns the page.md name for a URL directory path such as
// "/" or "/notes/go/".
func PageName(urlDir string) string {
	dir := strings.Trim(urlDir, "/")
	if dir == "" {
		return PageFile
	}
	return dir + "/" + PageFile
}

func unwrapPathError(err error) error {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return pe.Err
	}
	return err
}
