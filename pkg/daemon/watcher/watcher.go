// Package watcher watches scanned roots and invalidates stored results
// whose files disappear.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/jamesainslie/flashback/pkg/daemon/store"
	"github.com/jamesainslie/flashback/pkg/flashback/filter"
	"github.com/jamesainslie/flashback/pkg/flashback/logging"
)

// InvalidateFunc is told how many of a project's results went stale
// because path was removed or renamed.
type InvalidateFunc func(projectID, path string, count int)

// Watcher watches directories for filesystem changes and updates the store.
type Watcher struct {
	store   *store.Store
	watcher *fsnotify.Watcher
	ignore  *filter.Ignore
	log     *logging.Logger

	mu     sync.RWMutex
	paths  map[string]bool
	roots  map[string]map[string]bool // root -> project ids
	closed bool
}

// New creates a new Watcher. Directories matching ignore are not watched.
func New(s *store.Store, ignore *filter.Ignore) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		store:   s,
		watcher: fsw,
		ignore:  ignore,
		log:     logging.Get("watcher"),
		paths:   make(map[string]bool),
		roots:   make(map[string]map[string]bool),
	}, nil
}

// Watch starts watching root recursively on behalf of projectID.
// Symlinks are not followed to avoid loops.
func (w *Watcher) Watch(projectID, root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	info, err := os.Lstat(absRoot)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return nil // Only watch directories
	}

	w.mu.Lock()
	if w.roots[absRoot] == nil {
		w.roots[absRoot] = make(map[string]bool)
	}
	w.roots[absRoot][projectID] = true
	w.mu.Unlock()

	return w.addTree(absRoot)
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil //nolint:nilerr // Skip entries with errors
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.ignore.Match(path) {
			return filepath.SkipDir
		}
		return w.addWatch(path)
	})
}

// addWatch adds a single directory to the watch list.
func (w *Watcher) addWatch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.paths[path] {
		return nil
	}

	if err := w.watcher.Add(path); err != nil {
		w.log.Warn("failed to add watch", "path", path, "error", err)
		return err
	}

	w.paths[path] = true
	return nil
}

// Unwatch stops watching root for projectID. Directories stay watched
// while another project still covers them.
func (w *Watcher) Unwatch(projectID, root string) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	if projects := w.roots[absRoot]; projects != nil {
		delete(projects, projectID)
		if len(projects) > 0 {
			return
		}
		delete(w.roots, absRoot)
	}

	for path := range w.paths {
		if path == absRoot || isSubPath(path, absRoot) {
			_ = w.watcher.Remove(path)
			delete(w.paths, path)
		}
	}
}

// UnwatchProject drops every root watched for projectID.
func (w *Watcher) UnwatchProject(projectID string) {
	w.mu.RLock()
	var roots []string
	for root, projects := range w.roots {
		if projects[projectID] {
			roots = append(roots, root)
		}
	}
	w.mu.RUnlock()

	for _, root := range roots {
		w.Unwatch(projectID, root)
	}
}

// Roots returns the number of watched roots.
func (w *Watcher) Roots() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.roots)
}

// Run starts the event loop. It blocks until the context is cancelled.
func (w *Watcher) Run(ctx context.Context, onInvalidate InvalidateFunc) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event, onInvalidate)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("watcher error", "error", err)
		}
	}
}

// handleEvent processes a single filesystem event.
func (w *Watcher) handleEvent(event fsnotify.Event, onInvalidate InvalidateFunc) {
	switch {
	case event.Op&fsnotify.Create != 0:
		w.handleCreate(event.Name)
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// the new name of a rename arrives as a create
		w.handleRemove(event.Name, onInvalidate)
	}
}

// handleCreate watches directories created under a watched root.
func (w *Watcher) handleCreate(path string) {
	info, err := os.Lstat(path)
	if err != nil {
		return // File might have been deleted already
	}
	if info.Mode()&fs.ModeSymlink != 0 || !info.IsDir() || w.ignore.Match(path) {
		return
	}
	_ = w.addTree(path)
}

// handleRemove invalidates results at or under path for every project
// whose roots cover it.
func (w *Watcher) handleRemove(path string, onInvalidate InvalidateFunc) {
	w.mu.Lock()
	if w.paths[path] {
		_ = w.watcher.Remove(path)
		delete(w.paths, path)
	}
	for childPath := range w.paths {
		if isSubPath(childPath, path) {
			_ = w.watcher.Remove(childPath)
			delete(w.paths, childPath)
		}
	}
	projects := make(map[string]bool)
	for root, ids := range w.roots {
		if path == root || isSubPath(path, root) {
			for id := range ids {
				projects[id] = true
			}
		}
	}
	w.mu.Unlock()

	for projectID := range projects {
		n, err := w.store.MarkInvalid(projectID, path)
		if err != nil {
			w.log.Warn("failed to invalidate results", "project", projectID, "path", path, "error", err)
			continue
		}
		if n > 0 {
			w.log.Debug("results invalidated", "project", projectID, "path", path, "count", n)
			if onInvalidate != nil {
				onInvalidate(projectID, path, n)
			}
		}
	}
}

// Close closes the watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	w.paths = make(map[string]bool)
	w.roots = make(map[string]map[string]bool)
	return w.watcher.Close()
}

// isSubPath checks if path is under parent directory.
func isSubPath(path, parent string) bool {
	return len(path) > len(parent) && path[:len(parent)+1] == parent+string(filepath.Separator)
}
