// Package digest fingerprints files so callers can tell cheaply whether a
// file's content changed since it was last read.
package digest

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
)

var (
	// ErrNotText is returned when a file's content is not valid UTF-8.
	ErrNotText = errors.New("not valid UTF-8 text")
	// ErrIsDir is returned when the path names a directory.
	ErrIsDir = errors.New("is a directory")
)

// Digest is a comparable fingerprint of a file's on-disk state.
//
// MTime and Size are compared first as a "definitely unchanged" signal;
// Hash decides whether content is identical despite metadata churn.
type Digest struct {
	MTime int64  // modification time, unix seconds
	Size  uint64 // byte count
	Hash  uint64 // xxhash64 of the content
}

func (d Digest) String() string {
	return fmt.Sprintf("mtime=%d size=%d hash=%016x", d.MTime, d.Size, d.Hash)
}

// sameMetadata reports whether d and o agree on mtime and size.
func (d Digest) sameMetadata(o Digest) bool {
	return d.MTime == o.MTime && d.Size == o.Size
}

// Result is the outcome of Compute.
type Result struct {
	// Digest is the digest to remember for the next check. When Changed is
	// false it may still carry refreshed metadata.
	Digest Digest
	// Content holds the full file content when Changed is true.
	Content string
	// Changed reports whether the content differs from the previous digest.
	Changed bool
}

// Sum returns the xxhash64 of data.
func Sum(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// Compute stats name in fsys and, unless the metadata matches prev, reads and
// hashes the full content. A nil prev always reads the file and reports it as
// changed.
//
// Compute touches no shared state and is safe to call concurrently.
func Compute(fsys fs.FS, name string, prev *Digest) (Result, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return Result{}, fmt.Errorf("digest: open %s: %w", name, err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	info, err := f.Stat()
	if err != nil {
		return Result{}, fmt.Errorf("digest: stat %s: %w", name, err)
	}
	if info.IsDir() {
		return Result{}, fmt.Errorf("digest: %s: %w", name, ErrIsDir)
	}

	meta := Digest{
		MTime: info.ModTime().Unix(),
		Size:  uint64(max(info.Size(), 0)),
	}
	if prev != nil && prev.sameMetadata(meta) {
		return Result{Digest: *prev}, nil
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return Result{}, fmt.Errorf("digest: read %s: %w", name, err)
	}
	if !utf8.Valid(data) {
		return Result{}, fmt.Errorf("digest: %s: %w", name, ErrNotText)
	}

	next := meta
	next.Hash = Sum(data)
	if prev != nil && prev.Hash == next.Hash {
		return Result{Digest: next}, nil
	}

	return Result{Digest: next, Content: string(data), Changed: true}, nil
}
