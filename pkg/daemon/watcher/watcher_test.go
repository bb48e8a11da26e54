package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jamesainslie/flashback/pkg/daemon/store"
	"github.com/jamesainslie/flashback/pkg/flashback/filter"
	"github.com/jamesainslie/flashback/pkg/flashback/types"
)

// setupTestStore creates a temporary store for testing.
func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "testdb"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newWatcher(t *testing.T, s *store.Store, ignore ...string) *Watcher {
	t.Helper()
	ig, _ := filter.NewIgnore(ignore...)
	w, err := New(s, ig)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func tracked(w *Watcher, path string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.paths[path]
}

func TestWatchTracksSubdirectories(t *testing.T) {
	w := newWatcher(t, setupTestStore(t), "node_modules")

	root := t.TempDir()
	sub := filepath.Join(root, "subdir")
	ignored := filepath.Join(root, "node_modules", "pkg")
	for _, dir := range []string{sub, ignored} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	if err := w.Watch("p1", root); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	if !tracked(w, root) || !tracked(w, sub) {
		t.Error("Watch() did not track root and subdirectory")
	}
	if tracked(w, filepath.Dir(ignored)) || tracked(w, ignored) {
		t.Error("Watch() tracked an ignored directory")
	}
	if w.Roots() != 1 {
		t.Errorf("Roots() = %d, want 1", w.Roots())
	}
}

func TestWatchNonExistent(t *testing.T) {
	w := newWatcher(t, setupTestStore(t))
	if err := w.Watch("p1", "/nonexistent/path/that/does/not/exist"); err == nil {
		t.Error("Watch() should return error for non-existent path")
	}
}

func TestUnwatchKeepsSharedRoots(t *testing.T) {
	w := newWatcher(t, setupTestStore(t))
	root := t.TempDir()

	if err := w.Watch("p1", root); err != nil {
		t.Fatal(err)
	}
	if err := w.Watch("p2", root); err != nil {
		t.Fatal(err)
	}

	w.Unwatch("p1", root)
	if !tracked(w, root) {
		t.Error("root should stay watched while p2 uses it")
	}

	w.UnwatchProject("p2")
	if tracked(w, root) {
		t.Error("root should be released once no project uses it")
	}
	if w.Roots() != 0 {
		t.Errorf("Roots() = %d, want 0", w.Roots())
	}
}

func TestRunInvalidatesRemovedFiles(t *testing.T) {
	s := setupTestStore(t)
	w := newWatcher(t, s)

	root := t.TempDir()
	keep := filepath.Join(root, "keep.md")
	gone := filepath.Join(root, "gone.md")
	for _, f := range []string{keep, gone} {
		if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.PutResults("p1", []types.ResultItem{
		{FilePath: keep, FileType: "md", IsValid: true},
		{FilePath: gone, FileType: "md", IsValid: true},
	}); err != nil {
		t.Fatal(err)
	}
	if err := w.Watch("p1", root); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var (
		mu    sync.Mutex
		calls []string
	)
	go w.Run(ctx, func(projectID, path string, count int) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, projectID+":"+filepath.Base(path))
	})
	time.Sleep(100 * time.Millisecond)

	if err := os.Remove(gone); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(calls)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 1 || calls[0] != "p1:gone.md" {
		t.Fatalf("invalidations = %v, want [p1:gone.md]", calls)
	}

	items, err := s.Results("p1")
	if err != nil {
		t.Fatal(err)
	}
	for _, item := range items {
		if want := item.FilePath == keep; item.IsValid != want {
			t.Errorf("%s IsValid = %v, want %v", item.FilePath, item.IsValid, want)
		}
	}
}

func TestRunWatchesNewDirectories(t *testing.T) {
	w := newWatcher(t, setupTestStore(t))
	root := t.TempDir()
	if err := w.Watch("p1", root); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, nil)
	time.Sleep(100 * time.Millisecond)

	created := filepath.Join(root, "new")
	if err := os.Mkdir(created, 0o755); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !tracked(w, created) {
		time.Sleep(20 * time.Millisecond)
	}
	if !tracked(w, created) {
		t.Error("new directory was not watched")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	w := newWatcher(t, setupTestStore(t))
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestIsSubPath(t *testing.T) {
	tests := []struct {
		path, parent string
		want         bool
	}{
		{"/a/b", "/a", true},
		{"/a", "/a", false},
		{"/ab", "/a", false},
	}
	for _, tt := range tests {
		if got := isSubPath(tt.path, tt.parent); got != tt.want {
			t.Errorf("isSubPath(%q, %q) = %v, want %v", tt.path, tt.parent, got, tt.want)
		}
	}
}
