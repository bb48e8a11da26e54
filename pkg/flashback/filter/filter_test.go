package filter

import (
	"testing"
	"time"

	"github.com/jamesainslie/flashback/pkg/flashback/types"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func items() []types.ResultItem {
	return []types.ResultItem{
		{ID: "1", FilePath: "/home/a/Documents/Invoice.pdf", FileType: "pdf", ModifiedAt: now.Add(-2 * Day), SizeBytes: 300, IsValid: true},
		{ID: "2", FilePath: "/home/a/Work/notes.md", FileType: "md", ModifiedAt: now.Add(-1 * Day), SizeBytes: 20, IsValid: true},
		{ID: "3", FilePath: "/home/a/Work/plan.docx", FileType: "docx", ModifiedAt: now.Add(-40 * Day), SizeBytes: 900, IsValid: false},
		{ID: "4", FilePath: "/home/a/Projects/app", FileType: "git", ModifiedAt: now.Add(-3 * Day), IsValid: true},
	}
}

func ids(in []types.ResultItem) []string {
	out := make([]string, len(in))
	for i, it := range in {
		out[i] = it.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func mustIgnore(patterns ...string) *Ignore {
	ig, invalid := NewIgnore(patterns...)
	if len(invalid) > 0 {
		panic("invalid test pattern")
	}
	return ig
}

func TestApply(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want []string
	}{
		{name: "newest first by default", want: []string{"2", "1", "4", "3"}},
		{name: "query matches path case-insensitively", opts: []Option{WithQuery("INVOICE")}, want: []string{"1"}},
		{name: "explicit types", opts: []Option{WithTypes("md", ".PDF")}, want: []string{"2", "1"}},
		{name: "type group", opts: []Option{WithTypes("office")}, want: []string{"3"}},
		{name: "since cutoff", opts: []Option{WithSince(now.Add(-7 * Day))}, want: []string{"2", "1", "4"}},
		{name: "valid only", opts: []Option{WithValidOnly(true)}, want: []string{"2", "1", "4"}},
		{name: "exclude by name", opts: []Option{WithExclude(mustIgnore("*.md"))}, want: []string{"1", "4", "3"}},
		{name: "exclude by path", opts: []Option{WithExclude(mustIgnore("/home/a/Work/**"))}, want: []string{"1", "4"}},
		{name: "size ascending", opts: []Option{WithSortBy(SortSize), WithSortDescending(false)}, want: []string{"4", "2", "1", "3"}},
		{name: "path ascending", opts: []Option{WithSortBy(SortPath), WithSortDescending(false)}, want: []string{"1", "4", "2", "3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(New(tt.opts...).Apply(items()))
			if !equal(got, tt.want) {
				t.Errorf("Apply() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPaginate(t *testing.T) {
	all := make([]types.ResultItem, 45)
	for i := range all {
		all[i] = types.ResultItem{ID: string(rune('a' + i%26))}
	}

	tests := []struct {
		name      string
		page      int
		size      int
		wantLen   int
		wantPage  int
		wantPages int
	}{
		{name: "first page", page: 1, size: 20, wantLen: 20, wantPage: 1, wantPages: 3},
		{name: "last partial page", page: 3, size: 20, wantLen: 5, wantPage: 3, wantPages: 3},
		{name: "past the end", page: 9, size: 20, wantLen: 0, wantPage: 9, wantPages: 3},
		{name: "page below one", page: 0, size: 20, wantLen: 20, wantPage: 1, wantPages: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Paginate(all, tt.page, tt.size)
			if len(got.Items) != tt.wantLen || got.Page != tt.wantPage || got.TotalPages != tt.wantPages || got.Total != 45 {
				t.Errorf("Paginate(%d, %d) = len %d page %d pages %d total %d",
					tt.page, tt.size, len(got.Items), got.Page, got.TotalPages, got.Total)
			}
			if got.Items == nil {
				t.Error("Items should never be nil")
			}
		})
	}
}

func TestExpandTypes(t *testing.T) {
	got := ExpandTypes("notes", ".PDF", "md", "")
	want := []string{"md", "pdf", "txt"}
	if !equal(got, want) {
		t.Errorf("ExpandTypes() = %v, want %v", got, want)
	}
}

func TestTypeOf(t *testing.T) {
	tests := map[string]string{
		"/a/b/Report.PDF": "pdf",
		"/a/b/.bashrc":    "",
		"/a/b/noext":      "",
		"/a/b.dir/file":   "",
		"notes.md":        "md",
	}
	for in, want := range tests {
		if got := TypeOf(in); got != want {
			t.Errorf("TypeOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIgnore(t *testing.T) {
	ig, invalid := NewIgnore("node_modules", ".git", "*.tmp", "/srv/cache/**", "[")
	if len(invalid) != 1 || invalid[0] != "[" {
		t.Errorf("invalid = %v, want [\"[\"]", invalid)
	}

	tests := map[string]bool{
		"/home/a/Projects/app/node_modules": true,
		"/home/a/Projects/app/.git":         true,
		"/home/a/scratch.tmp":               true,
		"/srv/cache/x/y":                    true,
		"/home/a/Projects/app/src":          false,
	}
	for path, want := range tests {
		if got := ig.Match(path); got != want {
			t.Errorf("Match(%q) = %v, want %v", path, got, want)
		}
	}

	var nilIgnore *Ignore
	if nilIgnore.Match("/anything") {
		t.Error("nil Ignore should match nothing")
	}
}
