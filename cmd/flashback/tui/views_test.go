package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jamesainslie/flashback/pkg/flashback/types"
)

func TestTruncatePath(t *testing.T) {
	tests := []struct {
		path     string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"/very/long/path/to/file.txt", 20, ".../path/to/file.txt"},
		{"abcd", 3, "abc"},
		{"abcdef", 4, "...f"},
	}

	for _, tt := range tests {
		result := truncatePath(tt.path, tt.maxLen)
		if result != tt.expected {
			t.Errorf("truncatePath(%q, %d) = %q, want %q", tt.path, tt.maxLen, result, tt.expected)
		}
	}
}

func TestPadding(t *testing.T) {
	assert.Equal(t, "  abc", padLeft("abc", 5))
	assert.Equal(t, "abc  ", padRight("abc", 5))
	assert.Equal(t, "abc", padRight("abc", 2))
	assert.Equal(t, " abc  ", center("abc", 6))
	assert.Equal(t, "", repeatChar('a', -1))
	assert.True(t, strings.Contains(renderDivider(10), "─"))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0:00", formatDuration(0))
	assert.Equal(t, "1:05", formatDuration(65*time.Second))
	assert.Equal(t, "12:00", formatDuration(12*time.Minute+200*time.Millisecond))
}

func TestRenderLogEntry(t *testing.T) {
	line := renderLogEntry(types.LogEntry{Icon: types.IconFolder, Text: "scanning directory: /home/u/Docs"}, 80)
	assert.Contains(t, line, "›")
	assert.Contains(t, line, "/home/u/Docs")

	unknown := renderLogEntry(types.LogEntry{Icon: "sparkle", Text: "hi"}, 80)
	assert.Contains(t, unknown, "·")
}

func TestScanModelView(t *testing.T) {
	start := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	m := NewScanModel("Alpha")
	m.now = func() time.Time { return start.Add(75 * time.Second) }
	m.SetSize(100, 30)

	assert.Contains(t, m.View(), "Waiting for scan to start")

	m.SetSession(types.ScanSession{
		ProjectID:  "p1",
		Status:     types.StatusRunning,
		Progress:   46,
		LastFolder: "/home/u/Work",
		StartedAt:  start,
		LogTail: []types.LogEntry{
			{Icon: types.IconInfo, Text: "chat folders checked"},
			{Icon: types.IconFolder, Text: "scanning directory: /home/u/Work"},
		},
	})
	view := m.View()
	assert.Contains(t, view, "Scanning: /home/u/Work")
	assert.Contains(t, view, "46%")
	assert.Contains(t, view, "1:15")
	assert.Contains(t, view, "chat folders checked")
	assert.NotContains(t, view, "Rescan")

	m.SetSession(types.ScanSession{
		ProjectID: "p1",
		Status:    types.StatusFailed,
		LogTail:   []types.LogEntry{{Icon: types.IconError, Text: "walk failed: permission denied"}},
	})
	view = m.View()
	assert.Contains(t, view, "Scan failed: walk failed: permission denied")
	assert.Contains(t, view, "Rescan")
}

func TestScanModelSummary(t *testing.T) {
	m := NewScanModel("Alpha")
	m.SetSize(120, 30)
	m.SetSession(types.ScanSession{
		Status:   types.StatusComplete,
		Progress: 100,
		Summary: &types.ScanSummary{
			RepoCount:     2,
			DocumentCount: 7,
			ChatLocations: []types.ChatLocation{{App: "WeChat", Path: "/x"}},
		},
	})
	view := m.View()
	assert.Contains(t, view, "Scan complete")
	assert.Contains(t, view, "2 repositories")
	assert.Contains(t, view, "7 documents")
	assert.Contains(t, view, "1 chat folders")
}

func TestScanModelErrorClearedByRunningSession(t *testing.T) {
	m := NewScanModel("Alpha")
	m.SetError(errors.New("daemon unavailable"))
	assert.Contains(t, m.View(), "daemon unavailable")

	m.SetSession(types.ScanSession{Status: types.StatusRunning})
	assert.NotContains(t, m.View(), "daemon unavailable")
}

func testPage(n int) types.ResultPage {
	items := make([]types.ResultItem, n)
	for i := range items {
		items[i] = types.ResultItem{
			ID:        string(rune('a' + i)),
			FilePath:  "/home/u/Documents/file" + string(rune('a'+i)) + ".md",
			FileType:  "md",
			SizeBytes: 1024,
			IsValid:   i != 1,
		}
	}
	return types.ResultPage{Items: items, Total: 45, Page: 2, TotalPages: 3}
}

func TestResultModelCursor(t *testing.T) {
	m := NewResultModel("Alpha")
	m.SetSize(100, 14) // four visible rows
	m.SetPage(testPage(10))

	m.HandleKey("down")
	m.HandleKey("j")
	item, ok := m.Selected()
	assert.True(t, ok)
	assert.Equal(t, "c", item.ID)

	m.HandleKey("G")
	assert.Equal(t, 9, m.cursor)
	assert.Equal(t, 6, m.offset)

	m.HandleKey("g")
	assert.Equal(t, 0, m.cursor)
	assert.Equal(t, 0, m.offset)

	m.HandleKey("up")
	assert.Equal(t, 0, m.cursor)

	m.HandleKey("pgdown")
	assert.Equal(t, 4, m.cursor)
}

func TestResultModelNewPageClampsCursor(t *testing.T) {
	m := NewResultModel("Alpha")
	m.SetPage(testPage(10))
	m.HandleKey("G")
	m.SetPage(testPage(3))
	assert.Equal(t, 2, m.cursor)

	m.SetPage(types.ResultPage{})
	_, ok := m.Selected()
	assert.False(t, ok)
}

func TestResultModelView(t *testing.T) {
	m := NewResultModel("Alpha")
	m.SetSize(120, 30)
	assert.Contains(t, m.View(), "Loading results")

	m.SetPage(testPage(3))
	view := m.View()
	assert.Contains(t, view, "filea.md")
	assert.Contains(t, view, "fileb.md (missing)")
	assert.Contains(t, view, "1.0 KiB")
	assert.Contains(t, view, "Page 2/3")
	assert.Contains(t, view, "45 results")
	assert.Contains(t, view, "type: all")
}

func TestResultModelEmptyMessages(t *testing.T) {
	m := NewResultModel("Alpha")
	m.SetSize(120, 30)
	m.SetPage(types.ResultPage{})

	m.SetStatus(types.StatusRunning)
	assert.Contains(t, m.View(), "still running")

	m.CycleType()
	assert.Contains(t, m.View(), "No results match the current filter")
}

func TestCycleType(t *testing.T) {
	m := NewResultModel("Alpha")
	assert.Nil(t, m.Types())
	assert.Equal(t, []string{"document"}, m.CycleType())
	for range len(typeCycle) - 1 {
		m.CycleType()
	}
	assert.Nil(t, m.Types())
}
