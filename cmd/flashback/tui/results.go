package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/flashback/pkg/flashback/types"
)

// typeCycle is the order the type filter steps through. The empty entry
// means no type filter.
var typeCycle = []string{"", "document", "md", "pdf", "docx", "pptx", "txt", "repo", "chat"}

// ResultModel renders one page of results with a search box.
type ResultModel struct {
	project  string
	status   types.SessionStatus
	page     types.ResultPage
	loaded   bool
	cursor   int
	offset   int
	filter   textinput.Model
	typeIdx  int
	width    int
	height   int
	errorMsg string
}

// NewResultModel creates the results view for project.
func NewResultModel(project string) ResultModel {
	ti := textinput.New()
	ti.Placeholder = "search paths"
	ti.Prompt = "/ "
	ti.CharLimit = 128

	return ResultModel{
		project: project,
		filter:  ti,
		width:   80,
		height:  24,
	}
}

// SetPage replaces the displayed page. Pages are never merged.
func (m *ResultModel) SetPage(page types.ResultPage) {
	m.page = page
	m.loaded = true
	m.errorMsg = ""
	if m.cursor >= len(page.Items) {
		m.cursor = max(len(page.Items)-1, 0)
	}
	m.ensureVisible()
}

// SetStatus records the session status shown in the header.
func (m *ResultModel) SetStatus(status types.SessionStatus) {
	m.status = status
}

// SetError shows msg in the footer until the next page arrives.
func (m *ResultModel) SetError(msg string) {
	m.errorMsg = msg
}

// SetSize updates the view dimensions.
func (m *ResultModel) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.ensureVisible()
}

// Page returns the displayed page.
func (m ResultModel) Page() types.ResultPage {
	return m.page
}

// Types returns the active type filter, nil for none.
func (m ResultModel) Types() []string {
	if t := typeCycle[m.typeIdx]; t != "" {
		return []string{t}
	}
	return nil
}

// CycleType advances the type filter and returns the new one.
func (m *ResultModel) CycleType() []string {
	m.typeIdx = (m.typeIdx + 1) % len(typeCycle)
	return m.Types()
}

// Selected returns the item under the cursor.
func (m ResultModel) Selected() (types.ResultItem, bool) {
	if m.cursor < 0 || m.cursor >= len(m.page.Items) {
		return types.ResultItem{}, false
	}
	return m.page.Items[m.cursor], true
}

// HandleKey moves the cursor within the page.
func (m *ResultModel) HandleKey(key string) {
	n := len(m.page.Items)
	switch key {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < n-1 {
			m.cursor++
		}
	case "home", "g":
		m.cursor = 0
	case "end", "G":
		m.cursor = max(n-1, 0)
	case "pgup":
		m.cursor = max(m.cursor-m.visibleRows(), 0)
	case "pgdown":
		m.cursor = max(min(m.cursor+m.visibleRows(), n-1), 0)
	}
	m.ensureVisible()
}

func (m ResultModel) visibleRows() int {
	// header, filter, dividers, column header, footer, help, border
	return max(m.height-10, 3)
}

func (m *ResultModel) ensureVisible() {
	rows := m.visibleRows()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+rows {
		m.offset = m.cursor - rows + 1
	}
	if m.offset < 0 {
		m.offset = 0
	}
}

// View renders the results view.
func (m ResultModel) View() string {
	contentWidth := max(m.width-4, 60)

	var b strings.Builder
	b.WriteString(renderAppHeader(m.project, m.status, m.page.Total, contentWidth))
	b.WriteString("\n")
	b.WriteString(m.renderFilterBar())
	b.WriteString("\n")
	b.WriteString(renderDivider(contentWidth))
	b.WriteString("\n")

	if len(m.page.Items) == 0 {
		b.WriteString(m.renderEmpty(contentWidth))
	} else {
		b.WriteString(m.renderList(contentWidth))
	}

	b.WriteString(renderDivider(contentWidth))
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	b.WriteString("\n")
	b.WriteString(renderHints([][2]string{
		{"/", "Search"}, {"t", "Type"}, {"←/→", "Page"}, {"Tab", "Scan"}, {"r", "Rescan"}, {"q", "Quit"},
	}))

	return outerBoxStyle.Width(m.width - 2).Render(b.String())
}

func (m ResultModel) renderFilterBar() string {
	typeLabel := "all"
	if t := typeCycle[m.typeIdx]; t != "" {
		typeLabel = t
	}
	return "  " + m.filter.View() + "   " + mutedTextStyle.Render("type: ") + typeStyle.Render(typeLabel)
}

func (m ResultModel) renderEmpty(width int) string {
	msg := "No results yet."
	switch {
	case !m.loaded:
		msg = "Loading results..."
	case m.filter.Value() != "" || m.Types() != nil:
		msg = "No results match the current filter."
	case m.status == types.StatusRunning:
		msg = "No results yet. The scan is still running."
	}
	return "\n" + center(mutedTextStyle.Render(msg), width) + "\n\n"
}

func (m ResultModel) renderList(width int) string {
	var b strings.Builder
	pathWidth := max(width-36, 20)

	header := fmt.Sprintf("  %s %s %s  %s", padRight("TYPE", 6), padRight("MODIFIED", 14), padLeft("SIZE", 9), "PATH")
	b.WriteString(mutedTextStyle.Render(header))
	b.WriteString("\n")

	rows := m.visibleRows()
	for i := m.offset; i < m.offset+rows && i < len(m.page.Items); i++ {
		item := m.page.Items[i]

		modified := "-"
		if !item.ModifiedAt.IsZero() {
			modified = humanize.Time(item.ModifiedAt)
		}
		path := truncatePath(item.FilePath, pathWidth)
		line := fmt.Sprintf("%s %s %s  %s",
			typeStyle.Render(padRight(item.FileType, 6)),
			padRight(truncatePath(modified, 14), 14),
			padLeft(item.HumanSize(), 9),
			path)

		style := normalItemStyle
		if !item.IsValid {
			style = missingItemStyle
			line += " (missing)"
		}

		if i == m.cursor {
			b.WriteString(cursorStyle.Render("> "))
			b.WriteString(selectedItemStyle.Render(line))
		} else {
			b.WriteString("  ")
			b.WriteString(style.Render(line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m ResultModel) renderFooter() string {
	if m.errorMsg != "" {
		return errorTextStyle.Render("  " + m.errorMsg)
	}
	pages := max(m.page.TotalPages, 1)
	current := max(m.page.Page, 1)
	return mutedTextStyle.Render(fmt.Sprintf("  Page %d/%d  •  %d results", current, pages, m.page.Total))
}
