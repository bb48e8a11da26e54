package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/flashback/pkg/flashback/types"
)

// ProjectFormats are the formats FormatProjects accepts.
var ProjectFormats = []string{"pretty", "plain", "json", "yaml"}

// FormatProjects renders a page of projects. currentID marks the current
// project in the table formats.
func FormatProjects(w *bytes.Buffer, format string, page types.ProjectPage, currentID string) error {
	if page.Items == nil {
		page.Items = []types.ProjectRef{}
	}
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(page)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(projectsYAML(page)); err != nil {
			return err
		}
		return encoder.Close()
	case "plain", "pretty":
		return formatProjectTable(w, page, currentID, format == "pretty")
	default:
		return fmt.Errorf("unknown project format: %s (want one of %s)", format, strings.Join(ProjectFormats, ", "))
	}
}

type projectYAML struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	TimeRange   string   `yaml:"time_range"`
	ScanScope   string   `yaml:"scan_scope"`
	ScanFolders []string `yaml:"scan_folders,omitempty"`
}

type projectPageYAML struct {
	Items      []projectYAML `yaml:"items"`
	Total      int           `yaml:"total"`
	Page       int           `yaml:"page"`
	TotalPages int           `yaml:"total_pages"`
}

func projectsYAML(page types.ProjectPage) projectPageYAML {
	out := projectPageYAML{
		Items:      make([]projectYAML, len(page.Items)),
		Total:      page.Total,
		Page:       page.Page,
		TotalPages: page.TotalPages,
	}
	for i, p := range page.Items {
		out.Items[i] = projectYAML{
			ID:          p.ID,
			Name:        p.Name,
			TimeRange:   p.TimeRange,
			ScanScope:   string(p.ScanScope),
			ScanFolders: p.ScanFolders,
		}
	}
	return out
}

func formatProjectTable(w *bytes.Buffer, page types.ProjectPage, currentID string, styled bool) error {
	if len(page.Items) == 0 {
		msg := "No projects. Create one with: flashback project create <name>"
		if styled {
			msg = MutedStyle.Render(msg)
		}
		w.WriteString(msg + "\n")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, " \tNAME\tRANGE\tSCOPE\tID")
	for _, p := range page.Items {
		marker := " "
		if p.ID != "" && p.ID == currentID {
			marker = "*"
		}
		scope := string(p.ScanScope)
		if p.ScanScope == types.ScopeCustom {
			scope = fmt.Sprintf("%s (%d folders)", scope, len(p.ScanFolders))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", marker, p.Name, p.TimeRange, scope, p.ID)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	footer := fmt.Sprintf("Page %d/%d, %d projects", page.Page, max(page.TotalPages, 1), page.Total)
	if styled {
		footer = MutedStyle.Render(footer)
	}
	w.WriteString(footer + "\n")
	return nil
}
