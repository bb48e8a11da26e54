package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jamesainslie/flashback/pkg/flashback/types"
)

// LocalStore persists the last selected project on this machine.
type LocalStore interface {
	// Load returns nil, nil when nothing has been saved.
	Load() (*types.ProjectRef, error)
	Save(ref *types.ProjectRef) error
}

// FileStore keeps the selection as JSON in a single file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load() (*types.ProjectRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading selection: %w", err)
	}
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var ref types.ProjectRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return nil, fmt.Errorf("parsing selection %s: %w", s.path, err)
	}
	if ref.ID == "" && ref.Name == "" {
		return nil, nil
	}
	return &ref, nil
}

// Save replaces the file atomically. A nil ref clears the selection.
func (s *FileStore) Save(ref *types.ProjectRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ref == nil {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("clearing selection: %w", err)
		}
		return nil
	}

	data, err := json.MarshalIndent(ref, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding selection: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".selected-*")
	if err != nil {
		return fmt.Errorf("writing selection: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing selection: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing selection: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("writing selection: %w", err)
	}
	return nil
}

// MemoryStore is an in-process LocalStore.
type MemoryStore struct {
	mu  sync.Mutex
	ref *types.ProjectRef
	err error
}

// NewMemoryStore returns a store seeded with ref, which may be nil.
func NewMemoryStore(ref *types.ProjectRef) *MemoryStore {
	s := &MemoryStore{}
	if ref != nil {
		cp := *ref
		s.ref = &cp
	}
	return s
}

// FailWith makes subsequent Load and Save calls return err.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *MemoryStore) Load() (*types.ProjectRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if s.ref == nil {
		return nil, nil
	}
	cp := *s.ref
	return &cp, nil
}

func (s *MemoryStore) Save(ref *types.ProjectRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if ref == nil {
		s.ref = nil
		return nil
	}
	cp := *ref
	s.ref = &cp
	return nil
}

// Navigation holds the project carried by the most recent screen
// transition. It may carry only a name.
type Navigation struct {
	mu  sync.RWMutex
	ref *types.ProjectRef
}

// Set records the project passed along with a transition.
func (n *Navigation) Set(ref *types.ProjectRef) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ref == nil {
		n.ref = nil
		return
	}
	cp := *ref
	n.ref = &cp
}

// Get returns the carried project or nil.
func (n *Navigation) Get() *types.ProjectRef {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.ref == nil {
		return nil
	}
	cp := *n.ref
	return &cp
}

// Clear drops the carried project.
func (n *Navigation) Clear() { n.Set(nil) }
