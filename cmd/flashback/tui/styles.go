// Package tui is the interactive terminal view of flashback. It renders a
// project's scan session while it runs and then pages through its results,
// driving everything through the coordinator.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/jamesainslie/flashback/pkg/flashback/types"
)

// Color palette for the TUI.
var (
	primaryColor = lipgloss.Color("#7D56F4")
	accentColor  = lipgloss.Color("#00D9FF")

	successColor = lipgloss.Color("#28A745")
	warningColor = lipgloss.Color("#FFC107")
	dangerColor  = lipgloss.Color("#DC3545")

	mutedColor     = lipgloss.Color("#666666")
	borderColor    = lipgloss.Color("#333333")
	highlightColor = lipgloss.Color("#1A1A2E")
)

// Box styles for containers.
var (
	outerBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	dividerStyle = lipgloss.NewStyle().
			Foreground(borderColor)
)

// Text styles.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	mutedTextStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	errorTextStyle = lipgloss.NewStyle().
			Foreground(dangerColor)

	successTextStyle = lipgloss.NewStyle().
				Foreground(successColor)

	warningTextStyle = lipgloss.NewStyle().
				Foreground(warningColor)

	folderTextStyle = lipgloss.NewStyle().
			Foreground(accentColor)
)

// Result list styles.
var (
	selectedItemStyle = lipgloss.NewStyle().
				Background(highlightColor).
				Foreground(lipgloss.Color("#FFFFFF")).
				Bold(true)

	normalItemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CCCCCC"))

	missingItemStyle = lipgloss.NewStyle().
				Foreground(mutedColor).
				Strikethrough(true)

	typeStyle = lipgloss.NewStyle().
			Foreground(accentColor)

	cursorStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true)
)

// Stats box styles.
var (
	statsBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(borderColor).
			Padding(0, 2)

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	statsValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF"))
)

// Key hint styles.
var (
	keyStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true)

	keyDescStyle = lipgloss.NewStyle().
			Foreground(mutedColor)
)

// logIcons maps scan log icons to the glyph shown before the line.
var logIcons = map[string]string{
	types.IconInfo:    "·",
	types.IconFolder:  "›",
	types.IconSuccess: "✓",
	types.IconWarning: "!",
	types.IconError:   "✗",
}

// renderLogEntry renders one scan log line.
func renderLogEntry(entry types.LogEntry, width int) string {
	glyph, ok := logIcons[entry.Icon]
	if !ok {
		glyph = logIcons[types.IconInfo]
	}
	text := truncatePath(entry.Text, max(width-4, 4))
	style := mutedTextStyle
	switch entry.Icon {
	case types.IconFolder:
		style = folderTextStyle
	case types.IconSuccess:
		style = successTextStyle
	case types.IconWarning:
		style = warningTextStyle
	case types.IconError:
		style = errorTextStyle
	}
	return "  " + style.Render(glyph+" "+text)
}

// statusStyle colors a session status badge.
func statusStyle(status types.SessionStatus) lipgloss.Style {
	switch status {
	case types.StatusRunning:
		return folderTextStyle
	case types.StatusComplete:
		return successTextStyle
	case types.StatusFailed:
		return errorTextStyle
	default:
		return mutedTextStyle
	}
}

// renderDivider creates a horizontal divider line.
func renderDivider(width int) string {
	return dividerStyle.Render(repeatChar('─', width))
}

// repeatChar repeats a character n times.
func repeatChar(char rune, n int) string {
	if n <= 0 {
		return ""
	}
	result := make([]rune, n)
	for i := range result {
		result[i] = char
	}
	return string(result)
}

// truncatePath truncates a path to fit within maxLen, preserving the end.
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	if maxLen <= 3 {
		return path[:maxLen]
	}
	return "..." + path[len(path)-(maxLen-3):]
}

// padRight pads s with spaces to width.
func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + repeatChar(' ', width-len(s))
}

// padLeft pads a string to the left to reach the target width.
func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return repeatChar(' ', width-len(s)) + s
}

// center centers a string within the given width.
func center(s string, width int) string {
	if len(s) >= width {
		return s
	}
	leftPad := (width - len(s)) / 2
	rightPad := width - len(s) - leftPad
	return repeatChar(' ', leftPad) + s + repeatChar(' ', rightPad)
}
