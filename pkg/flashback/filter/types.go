// Package filter narrows, orders and pages scan result items. The daemon
// uses it to answer result queries and the scanner uses its ignore
// patterns to prune the walk.
package filter

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// SortField specifies the field to sort results by.
type SortField int

const (
	// SortModified sorts by modification time.
	SortModified SortField = iota
	// SortPath sorts by path alphabetically.
	SortPath
	// SortSize sorts by size in bytes.
	SortSize
)

const (
	sortFieldModified = "modified"
	sortFieldPath     = "path"
	sortFieldSize     = "size"
)

func (s SortField) String() string {
	switch s {
	case SortPath:
		return sortFieldPath
	case SortSize:
		return sortFieldSize
	default:
		return sortFieldModified
	}
}

// ErrInvalidSortField indicates that the sort field string could not be parsed.
var ErrInvalidSortField = errors.New("invalid sort field")

// ParseSortField accepts "modified", "path" and "size" (case-insensitive).
func ParseSortField(s string) (SortField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case sortFieldModified, "":
		return SortModified, nil
	case sortFieldPath:
		return SortPath, nil
	case sortFieldSize:
		return SortSize, nil
	default:
		return SortModified, fmt.Errorf("%w: %q", ErrInvalidSortField, s)
	}
}

// TypeGroups maps group names to the file types they stand for. A result
// type filter may name a group instead of listing its members.
var TypeGroups = map[string][]string{
	"document": {"md", "docx", "pptx", "pdf", "txt"},
	"office":   {"docx", "pptx", "xlsx"},
	"notes":    {"md", "txt"},
	"repo":     {"git"},
	"chat":     {"chat"},
}

// DocumentTypes are the file types the scanner records as documents.
var DocumentTypes = TypeGroups["document"]

// ExpandTypes lowercases types, strips leading dots, replaces group names
// with their members and removes duplicates. The result is sorted.
func ExpandTypes(types ...string) []string {
	var out []string
	add := func(t string) {
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	for _, t := range types {
		t = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "."))
		if members, ok := TypeGroups[t]; ok {
			for _, m := range members {
				add(m)
			}
			continue
		}
		add(t)
	}
	slices.Sort(out)
	return out
}

// TypeOf returns the result file type for a path: its lowercased extension
// without the dot, or "" when it has none.
func TypeOf(path string) string {
	base := path
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	i := strings.LastIndexByte(base, '.')
	if i <= 0 || i == len(base)-1 {
		return ""
	}
	return strings.ToLower(base[i+1:])
}
