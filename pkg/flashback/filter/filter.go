package filter

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/jamesainslie/flashback/pkg/flashback/types"
)

// Filter defines criteria for narrowing and ordering result items.
type Filter struct {
	// Query is matched case-insensitively against the item path.
	Query string

	// Types restricts items to these file types. Empty admits all.
	Types []string

	// Exclude contains glob patterns; matching paths are dropped.
	Exclude *Ignore

	// Since drops items modified before it. Zero admits all.
	Since time.Time

	// ValidOnly drops items whose files have disappeared.
	ValidOnly bool

	SortBy         SortField
	SortDescending bool
}

// Option is a functional option for configuring a Filter.
type Option func(*Filter)

// New returns a filter ordering newest first.
func New(opts ...Option) *Filter {
	f := &Filter{SortBy: SortModified, SortDescending: true}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithQuery sets the free-text path query.
func WithQuery(q string) Option {
	return func(f *Filter) {
		f.Query = strings.ToLower(strings.TrimSpace(q))
	}
}

// WithTypes sets the admitted file types. Group names are expanded.
func WithTypes(fileTypes ...string) Option {
	return func(f *Filter) {
		f.Types = ExpandTypes(fileTypes...)
	}
}

// WithExclude drops paths matched by ig. Compile it with NewIgnore so
// invalid patterns reach the caller.
func WithExclude(ig *Ignore) Option {
	return func(f *Filter) {
		f.Exclude = ig
	}
}

// WithSince drops items modified before t.
func WithSince(t time.Time) Option {
	return func(f *Filter) {
		f.Since = t
	}
}

// WithValidOnly drops invalidated items.
func WithValidOnly(v bool) Option {
	return func(f *Filter) {
		f.ValidOnly = v
	}
}

// WithSortBy sets the field to sort results by.
func WithSortBy(field SortField) Option {
	return func(f *Filter) {
		f.SortBy = field
	}
}

// WithSortDescending sets whether to sort in descending order.
func WithSortDescending(desc bool) Option {
	return func(f *Filter) {
		f.SortDescending = desc
	}
}

// Match reports whether item passes every criterion.
func (f *Filter) Match(item types.ResultItem) bool {
	if f.ValidOnly && !item.IsValid {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, strings.ToLower(item.FileType)) {
		return false
	}
	if f.Query != "" && !strings.Contains(strings.ToLower(item.FilePath), f.Query) {
		return false
	}
	if !f.Since.IsZero() && !item.ModifiedAt.IsZero() && item.ModifiedAt.Before(f.Since) {
		return false
	}
	if f.Exclude.Match(item.FilePath) {
		return false
	}
	return true
}

// Sort returns a sorted copy of items. Ties are broken by path, then id,
// so pages are stable across calls.
func (f *Filter) Sort(items []types.ResultItem) []types.ResultItem {
	sorted := slices.Clone(items)
	if sorted == nil {
		sorted = []types.ResultItem{}
	}
	slices.SortStableFunc(sorted, func(a, b types.ResultItem) int {
		var result int
		switch f.SortBy {
		case SortPath:
			result = cmp.Compare(a.FilePath, b.FilePath)
		case SortSize:
			result = cmp.Compare(a.SizeBytes, b.SizeBytes)
		default:
			result = a.ModifiedAt.Compare(b.ModifiedAt)
		}
		if f.SortDescending {
			result = -result
		}
		if result != 0 {
			return result
		}
		return cmp.Or(cmp.Compare(a.FilePath, b.FilePath), cmp.Compare(a.ID, b.ID))
	})
	return sorted
}

// Apply runs Match then Sort.
func (f *Filter) Apply(items []types.ResultItem) []types.ResultItem {
	matched := make([]types.ResultItem, 0, len(items))
	for _, item := range items {
		if f.Match(item) {
			matched = append(matched, item)
		}
	}
	return f.Sort(matched)
}

// Paginate cuts page (1-based) of size out of items. A page past the end
// is empty but still reports the totals.
func Paginate(items []types.ResultItem, page, size int) types.ResultPage {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = len(items)
	}
	out := types.ResultPage{
		Items:      []types.ResultItem{},
		Total:      len(items),
		Page:       page,
		TotalPages: types.TotalPages(len(items), size),
	}
	start := (page - 1) * size
	if start >= len(items) {
		return out
	}
	end := min(start+size, len(items))
	out.Items = slices.Clone(items[start:end])
	return out
}
