// Package output renders result pages and project lists for the CLI in
// several formats (pretty, plain, json, yaml and more).
//
// Formatters are looked up by name from a registry:
//
//	formatter, err := output.Get("pretty")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, result); err != nil {
//	    return err
//	}
package output

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jamesainslie/flashback/pkg/flashback/types"
)

// Item is one result prepared for display.
type Item struct {
	ID         string    `json:"id" yaml:"id"`
	Path       string    `json:"path" yaml:"path"`
	Type       string    `json:"type" yaml:"type"`
	Source     string    `json:"source,omitempty" yaml:"source,omitempty"`
	ModifiedAt time.Time `json:"modified_at" yaml:"modified_at"`
	Size       int64     `json:"size" yaml:"size"`
	SizeHuman  string    `json:"size_human" yaml:"size_human"`
	Valid      bool      `json:"valid" yaml:"valid"`
}

// Result is one page of a project's results plus the context needed to
// describe it.
type Result struct {
	Project  types.ProjectRef
	Page     types.ResultPage
	Query    string
	Types    []string
	Summary  *types.ScanSummary
	DaemonUp bool
}

// Items converts the page's results for display.
func (r *Result) Items() []Item {
	items := make([]Item, len(r.Page.Items))
	for i, it := range r.Page.Items {
		items[i] = Item{
			ID:         it.ID,
			Path:       it.FilePath,
			Type:       it.FileType,
			Source:     it.Source,
			ModifiedAt: it.ModifiedAt,
			Size:       it.SizeBytes,
			SizeHuman:  it.HumanSize(),
			Valid:      it.IsValid,
		}
	}
	return items
}

// Formatter renders a Result.
type Formatter interface {
	Format(w *bytes.Buffer, r *Result) error
}

// FormatterFactory creates a Formatter.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]FormatterFactory)}
}

// Register adds a formatter factory, replacing any with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns the registered names, sorted.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a formatter from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}
