package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jamesainslie/flashback/pkg/flashback/types"
)

// ScanModel renders a project's scan session.
type ScanModel struct {
	project string
	session types.ScanSession
	err     error
	spinner spinner.Model
	bar     progress.Model
	width   int
	height  int
	now     func() time.Time
}

// NewScanModel creates the scanning view for project.
func NewScanModel(project string) ScanModel {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = lipgloss.NewStyle().Foreground(primaryColor)

	return ScanModel{
		project: project,
		session: types.ScanSession{Status: types.StatusIdle},
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient()),
		width:   80,
		height:  24,
		now:     time.Now,
	}
}

// Init starts the spinner.
func (m ScanModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// SetSession replaces the displayed session.
func (m *ScanModel) SetSession(s types.ScanSession) {
	m.session = s
	if s.Status == types.StatusRunning {
		m.err = nil
	}
}

// SetError shows err until the next running session arrives.
func (m *ScanModel) SetError(err error) {
	m.err = err
}

// SetSize updates the view dimensions.
func (m *ScanModel) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// Session returns the displayed session.
func (m ScanModel) Session() types.ScanSession {
	return m.session
}

// View renders the scanning view.
func (m ScanModel) View() string {
	contentWidth := max(m.width-4, 40)

	var b strings.Builder
	b.WriteString(renderAppHeader(m.project, m.session.Status, 0, contentWidth))
	b.WriteString("\n")
	b.WriteString(renderDivider(contentWidth))
	b.WriteString("\n\n")

	b.WriteString(m.renderStatus(contentWidth))
	b.WriteString("\n\n")

	m.bar.Width = contentWidth - 4
	b.WriteString("  ")
	b.WriteString(m.bar.ViewAs(float64(m.session.Progress) / 100))
	b.WriteString("\n\n")

	b.WriteString(m.renderStats(contentWidth))
	b.WriteString("\n")

	if line := renderSummary(m.session.Summary, m.session.Elapsed(m.now())); line != "" {
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString(renderDivider(contentWidth))
	b.WriteString("\n")
	b.WriteString(m.renderLog(contentWidth, m.logRows(b.String())))
	b.WriteString(renderDivider(contentWidth))
	b.WriteString("\n")
	b.WriteString(m.renderHelp())

	return outerBoxStyle.Width(m.width - 2).Render(b.String())
}

func (m ScanModel) renderStatus(width int) string {
	if m.err != nil {
		return errorTextStyle.Render(fmt.Sprintf("  Error: %v", m.err))
	}
	switch m.session.Status {
	case types.StatusRunning:
		folder := m.session.LastFolder
		if folder == "" {
			folder = "starting..."
		}
		return fmt.Sprintf("  %s Scanning: %s", m.spinner.View(), truncatePath(folder, width-20))
	case types.StatusComplete:
		return successTextStyle.Render("  Scan complete")
	case types.StatusFailed:
		return errorTextStyle.Render("  Scan failed: " + m.failure())
	default:
		return mutedTextStyle.Render("  Waiting for scan to start...")
	}
}

// failure is the text of the latest error log entry.
func (m ScanModel) failure() string {
	for i := len(m.session.LogTail) - 1; i >= 0; i-- {
		if m.session.LogTail[i].Icon == types.IconError {
			return m.session.LogTail[i].Text
		}
	}
	return "see log"
}

func (m ScanModel) renderStats(totalWidth int) string {
	boxWidth := max((totalWidth-10)/4, 10)

	repos, docs, chats := "-", "-", "-"
	if s := m.session.Summary; s != nil {
		repos = fmt.Sprint(s.RepoCount)
		docs = fmt.Sprint(s.DocumentCount)
		chats = fmt.Sprint(len(s.ChatLocations))
	}
	_ = chats // computed but not rendered; no Chats stat box exists

	return lipgloss.JoinHorizontal(lipgloss.Top,
		"  ", renderStatBox("Progress", fmt.Sprintf("%d%%", m.session.Progress), boxWidth),
		" ", renderStatBox("Repos", repos, boxWidth),
		" ", renderStatBox("Docs", docs, boxWidth),
		" ", renderStatBox("Time", formatDuration(m.session.Elapsed(m.now())), boxWidth))
}

func renderStatBox(label, value string, width int) string {
	content := lipgloss.JoinVertical(lipgloss.Center,
		center(statsLabelStyle.Render(label), width-4),
		center(statsValueStyle.Render(value), width-4))
	return statsBoxStyle.Width(width).Render(content)
}

// logRows is how many log lines fit below what is already rendered.
func (m ScanModel) logRows(rendered string) int {
	used := strings.Count(rendered, "\n") + 4 // border, divider, help
	return max(m.height-used, 3)
}

func (m ScanModel) renderLog(width, rows int) string {
	tail := m.session.LogTail
	if len(tail) > rows {
		tail = tail[len(tail)-rows:]
	}
	var b strings.Builder
	for _, entry := range tail {
		b.WriteString(renderLogEntry(entry, width))
		b.WriteString("\n")
	}
	for range rows - len(tail) {
		b.WriteString("\n")
	}
	return b.String()
}

func (m ScanModel) renderHelp() string {
	hints := [][2]string{{"Tab", "Results"}, {"q", "Quit"}}
	if m.session.Status.Terminal() || m.err != nil {
		hints = [][2]string{{"Tab", "Results"}, {"r", "Rescan"}, {"q", "Quit"}}
	}
	return renderHints(hints)
}

func renderHints(hints [][2]string) string {
	parts := make([]string, 0, len(hints))
	for _, h := range hints {
		parts = append(parts, keyStyle.Render("["+h[0]+"]")+" "+keyDescStyle.Render(h[1]))
	}
	return "  " + strings.Join(parts, "  ")
}
