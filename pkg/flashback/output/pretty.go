package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// PrettyFormatter renders a styled page for the terminal.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Result) error {
	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")
	w.WriteString(f.formatTable(r))
	w.WriteString(f.formatFooter(r))
	w.WriteString("\n")
	return nil
}

func (f *PrettyFormatter) formatHeader(r *Result) string {
	lines := []string{
		fmt.Sprintf("%s %s", LabelStyle.Render("Project:"), TitleStyle.Render(r.Project.Label())),
	}

	var filters []string
	if r.Query != "" {
		filters = append(filters, fmt.Sprintf("%s %q", LabelStyle.Render("query:"), r.Query))
	}
	if len(r.Types) > 0 {
		filters = append(filters, fmt.Sprintf("%s %s", LabelStyle.Render("types:"), strings.Join(r.Types, ",")))
	}
	if len(filters) > 0 {
		lines = append(lines, strings.Join(filters, "  "))
	}

	if s := r.Summary; s != nil {
		lines = append(lines, fmt.Sprintf("%s %s  %s %s  %s %s",
			LabelStyle.Render("Repositories:"), ValueStyle.Render(fmt.Sprint(s.RepoCount)),
			LabelStyle.Render("Documents:"), ValueStyle.Render(fmt.Sprint(s.DocumentCount)),
			LabelStyle.Render("Chat locations:"), ValueStyle.Render(fmt.Sprint(len(s.ChatLocations)))))
	}

	return HeaderBox.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) formatTable(r *Result) string {
	items := r.Items()
	if len(items) == 0 {
		return MutedStyle.Render("  No results on this page") + "\n"
	}

	typeWidth, sizeWidth := 4, 8
	for _, item := range items {
		typeWidth = max(typeWidth, len(item.Type))
		sizeWidth = max(sizeWidth, len(item.SizeHuman))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "  %s  %s  %s  %s\n",
		TableHeaderStyle.Render(padRight("TYPE", typeWidth)),
		TableHeaderStyle.Render(padRight("MODIFIED", 16)),
		TableHeaderStyle.Render(padLeft("SIZE", sizeWidth)),
		TableHeaderStyle.Render("PATH"))

	for _, item := range items {
		path := PathStyle.Render(item.Path)
		if !item.Valid {
			path = MutedStyle.Strikethrough(true).Render(item.Path) + " " + WarningStyle.Render("missing")
		}
		modified := "-"
		if !item.ModifiedAt.IsZero() {
			modified = humanize.Time(item.ModifiedAt)
		}
		fmt.Fprintf(&sb, "  %s  %s  %s  %s\n",
			TypeStyle.Render(padRight(item.Type, typeWidth)),
			MutedStyle.Render(padRight(modified, 16)),
			ValueStyle.Render(padLeft(item.SizeHuman, sizeWidth)),
			path)
	}
	return sb.String()
}

func (f *PrettyFormatter) formatFooter(r *Result) string {
	pageOf := fmt.Sprintf("%d/%d", r.Page.Page, max(r.Page.TotalPages, 1))
	parts := []string{
		fmt.Sprintf("%s %s", LabelStyle.Render("Page:"), ValueStyle.Render(pageOf)),
		fmt.Sprintf("%s %s", LabelStyle.Render("Results:"), ValueStyle.Render(fmt.Sprint(r.Page.Total))),
	}
	if r.Page.Page < r.Page.TotalPages {
		parts = append(parts, MutedStyle.Render(fmt.Sprintf("Use --page %d for more", r.Page.Page+1)))
	}
	return FooterBox.Render(strings.Join(parts, "  "))
}

func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

var _ Formatter = (*PrettyFormatter)(nil)
