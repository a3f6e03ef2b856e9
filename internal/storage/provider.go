// Package storage exposes the site directory as a read-only filesystem.
package storage

import "io/fs"

// Provider is the read-only view of the site used by caches and handlers.
// Names are slash-separated and relative to the site root, as for fs.FS.
type Provider interface {
	fs.StatFS
	// Pages returns every page source (a file named PageFile) under dir.
	Pages(dir string) ([]PageInfo, error)
	// Rel converts an absolute OS path under the root into an fs.FS name.
	Rel(abs string) (string, error)
}
