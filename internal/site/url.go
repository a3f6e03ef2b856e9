package site

import (
	"strings"

	"github.com/starford/leaf/internal/storage"
)

// ValidURL reports whether p may be served. It must be absolute and every
// component must be servable; only the final component may be empty, which
// marks a page directory.
func ValidURL(p string) bool {
	if !strings.HasPrefix(p, "/") {
		return false
	}
	parts := strings.Split(p[1:], "/")
	for i, part := range parts {
		if part == "" {
			if i == len(parts)-1 {
				continue
			}
			return false
		}
		if !storage.Servable(part) {
			return false
		}
	}
	return true
}
