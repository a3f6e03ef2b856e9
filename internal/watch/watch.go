// Package watch expires cached sources as soon as the filesystem reports a
// change, instead of waiting for the next debounced check.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Change kinds passed to EventCallback.
const (
	Created = "created"
	Updated = "updated"
	Deleted = "deleted"
)

// Expirer marks the cache for a source name stale.
type Expirer interface {
	Expire(name string) bool
}

// Tree is the watched directory: its OS root and the mapping from OS paths
// to fs.FS names.
type Tree interface {
	Root() string
	Rel(abs string) (string, error)
}

// EventCallback is called for every changed file under the root, with the
// slash-separated name relative to the root.
type EventCallback func(kind, name string)

// Watch starts an fsnotify watcher on the tree root and expires the matching cache
// in target for every file event until ctx is cancelled. Directories created
// at runtime are added to the watch list. Hidden files and directories are
// ignored.
func Watch(ctx context.Context, tree Tree, target Expirer, logger *slog.Logger, cb EventCallback) error {
	root := tree.Root()
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	notify := func(kind, rel string) {
		expired := target.Expire(rel)
		logger.Debug("watcher: change",
			slog.String("path", rel),
			slog.String("op", kind),
			slog.Bool("expired", expired))
		if cb != nil {
			cb(kind, rel)
		}
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			rel, ok := relName(tree, ev.Name)
			if !ok {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", rel),
							slog.String("error", addErr.Error()))
						continue
					}
					logger.Debug("watcher: watching new dir", slog.String("path", rel))
					walkNewDir(tree, ev.Name, notify)
					continue
				}
			}

			switch {
			case ev.Op&fsnotify.Create != 0:
				notify(Created, rel)
			case ev.Op&fsnotify.Write != 0:
				notify(Updated, rel)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// Rename fires on the old name; the new name arrives as Create.
				notify(Deleted, rel)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// relName returns the fs.FS name of abs, or false if abs lies outside the
// tree, is the root itself or is inside a hidden path.
func relName(tree Tree, abs string) (string, bool) {
	rel, err := tree.Rel(abs)
	if err != nil || rel == "." {
		return "", false
	}
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return "", false
		}
	}
	return rel, true
}

// walkNewDir reports the files already present in a newly created directory.
func walkNewDir(tree Tree, dir string, notify func(kind, rel string)) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if rel, ok := relName(tree, p); ok {
			notify(Created, rel)
		}
		return nil
	})
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}
