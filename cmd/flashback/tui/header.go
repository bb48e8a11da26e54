package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jamesainslie/flashback/pkg/flashback/types"
)

// renderAppHeader renders the title line shared by both views: project,
// session status and, once known, the result total.
func renderAppHeader(project string, status types.SessionStatus, total int, width int) string {
	appName := titleStyle.Render("FLASHBACK")
	name := lipgloss.NewStyle().Bold(true).Render(project)
	badge := statusStyle(status).Render("● " + status.String())

	left := fmt.Sprintf(" %s  %s  %s", appName, name, badge)
	if total > 0 {
		left += mutedTextStyle.Render(fmt.Sprintf("  •  %d results", total))
	}

	hint := mutedTextStyle.Render("[Ctrl+C to quit]")
	spacing := width - lipgloss.Width(left) - lipgloss.Width(hint)
	if spacing < 1 {
		return left
	}
	return left + strings.Repeat(" ", spacing) + hint
}

// renderSummary renders the scan summary line, or "" before one exists.
func renderSummary(summary *types.ScanSummary, elapsed time.Duration) string {
	if summary == nil {
		return ""
	}
	parts := []string{
		fmt.Sprintf("%d repositories", summary.RepoCount),
		fmt.Sprintf("%d documents", summary.DocumentCount),
		fmt.Sprintf("%d chat folders", len(summary.ChatLocations)),
	}
	if elapsed > 0 {
		parts = append(parts, "in "+formatDuration(elapsed))
	}
	return mutedTextStyle.Render("  " + strings.Join(parts, "  |  "))
}

// formatDuration formats a duration as M:SS.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := d / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%d:%02d", m, s)
}
