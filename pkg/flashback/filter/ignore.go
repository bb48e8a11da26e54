package filter

import (
	"path/filepath"

	"github.com/gobwas/glob"
)

// Ignore matches paths against glob patterns. A pattern without a path
// separator is matched against the base name, others against the full
// path.
type Ignore struct {
	names []glob.Glob
	paths []glob.Glob
}

// NewIgnore compiles patterns. Invalid patterns are skipped and returned
// so the caller can report them.
func NewIgnore(patterns ...string) (*Ignore, []string) {
	ig := &Ignore{}
	var invalid []string
	for _, p := range patterns {
		if p == "" {
			continue
		}
		g, err := glob.Compile(p, '/')
		if err != nil {
			invalid = append(invalid, p)
			continue
		}
		if filepath.Base(p) == p {
			ig.names = append(ig.names, g)
		} else {
			ig.paths = append(ig.paths, g)
		}
	}
	return ig, invalid
}

// Match reports whether path is ignored.
func (ig *Ignore) Match(path string) bool {
	if ig == nil {
		return false
	}
	name := filepath.Base(path)
	for _, g := range ig.names {
		if g.Match(name) {
			return true
		}
	}
	for _, g := range ig.paths {
		if g.Match(path) {
			return true
		}
	}
	return false
}
