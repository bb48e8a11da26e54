package output_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/flashback/pkg/flashback/output"
	"github.com/jamesainslie/flashback/pkg/flashback/types"
)

func sampleResult() *output.Result {
	mod := time.Date(2026, 9, 30, 10, 0, 0, 0, time.UTC)
	return &output.Result{
		Project: types.ProjectRef{ID: "p1", Name: "Alpha"},
		Page: types.ResultPage{
			Items: []types.ResultItem{
				{ID: "a", FilePath: "/home/u/Documents/plan.md", FileType: "md", Source: "Documents", ModifiedAt: mod, SizeBytes: 2048, IsValid: true},
				{ID: "b", FilePath: "/home/u/Work/a|b.pdf", FileType: "pdf", ModifiedAt: mod, SizeBytes: 10, IsValid: false},
			},
			Total:      3,
			Page:       1,
			TotalPages: 2,
		},
		Query:   "plan",
		Types:   []string{"md", "pdf"},
		Summary: &types.ScanSummary{RepoCount: 1, DocumentCount: 3, ChatLocations: []types.ChatLocation{}},
	}
}

func format(t *testing.T, name string, r *output.Result) string {
	t.Helper()
	f, err := output.Get(name)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, f.Format(&buf, r))
	return buf.String()
}

func TestRegistry(t *testing.T) {
	assert.Equal(t,
		[]string{"csv", "json", "jsonl", "markdown", "plain", "pretty", "template", "tsv", "yaml"},
		output.Available())

	_, err := output.Get("xml")
	assert.EqualError(t, err, "unknown formatter: xml")

	reg := output.NewRegistry()
	reg.Register("one", func() output.Formatter { return &output.PlainFormatter{} })
	assert.Equal(t, []string{"one"}, reg.Available())
}

func TestJSON(t *testing.T) {
	var doc struct {
		Project struct{ ID, Name string }
		Page    struct {
			Number     int `json:"number"`
			TotalPages int `json:"total_pages"`
			Total      int `json:"total"`
		}
		Filter struct {
			Query string   `json:"query"`
			Types []string `json:"types"`
		}
		Items   []output.Item
		Summary *types.ScanSummary
	}
	require.NoError(t, json.Unmarshal([]byte(format(t, "json", sampleResult())), &doc))

	assert.Equal(t, "Alpha", doc.Project.Name)
	assert.Equal(t, 2, doc.Page.TotalPages)
	assert.Equal(t, "plan", doc.Filter.Query)
	require.Len(t, doc.Items, 2)
	assert.Equal(t, "2.0 KiB", doc.Items[0].SizeHuman)
	assert.False(t, doc.Items[1].Valid)
	require.NotNil(t, doc.Summary)
	assert.Equal(t, 3, doc.Summary.DocumentCount)
}

func TestJSONEmptyPageHasItemsArray(t *testing.T) {
	out := format(t, "json", &output.Result{Project: types.ProjectRef{ID: "p1"}})
	assert.Contains(t, out, `"items": []`)
}

func TestJSONL(t *testing.T) {
	lines := strings.Split(strings.TrimSpace(format(t, "jsonl", sampleResult())), "\n")
	require.Len(t, lines, 2)
	var item output.Item
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &item))
	assert.Equal(t, "/home/u/Documents/plan.md", item.Path)
}

func TestYAML(t *testing.T) {
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(format(t, "yaml", sampleResult())), &doc))
	assert.Contains(t, doc, "items")
	assert.Equal(t, map[string]any{"id": "p1", "name": "Alpha"}, doc["project"])
}

func TestTables(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		out := format(t, "plain", sampleResult())
		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 3)
		assert.True(t, strings.HasPrefix(lines[0], "TYPE"))
		assert.Contains(t, lines[2], "(missing)")
	})

	t.Run("tsv", func(t *testing.T) {
		out := format(t, "tsv", sampleResult())
		assert.True(t, strings.HasPrefix(out, "TYPE\tMODIFIED\tSIZE\tPATH\n"))
	})

	t.Run("csv", func(t *testing.T) {
		records, err := csv.NewReader(strings.NewReader(format(t, "csv", sampleResult()))).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "/home/u/Documents/plan.md", records[1][3])
	})

	t.Run("markdown escapes pipes", func(t *testing.T) {
		out := format(t, "markdown", sampleResult())
		assert.Contains(t, out, `a\|b.pdf`)
	})
}

func TestPretty(t *testing.T) {
	out := format(t, "pretty", sampleResult())
	assert.Contains(t, out, "Alpha")
	assert.Contains(t, out, "plan.md")
	assert.Contains(t, out, "missing")
	assert.Contains(t, out, "--page 2")

	empty := format(t, "pretty", &output.Result{Project: types.ProjectRef{Name: "Empty"}})
	assert.Contains(t, empty, "No results on this page")
}

func TestTemplate(t *testing.T) {
	f := output.NewTemplateFormatter(`{{range .Items}}{{.Type}}:{{bytes .Size}}:{{date .ModifiedAt "2006-01-02"}}
{{end}}{{.Project.Name}}`)
	var buf bytes.Buffer
	require.NoError(t, f.Format(&buf, sampleResult()))
	assert.Equal(t, "md:2.0 KiB:2026-09-30\npdf:10 B:2026-09-30\nAlpha", buf.String())

	f.SetTemplate("{{.Nope")
	assert.Error(t, f.Format(&buf, sampleResult()))
}

func TestFormatProjects(t *testing.T) {
	page := types.ProjectPage{
		Items: []types.ProjectRef{
			{ID: "p1", Name: "Alpha", TimeRange: "30d", ScanScope: types.ScopeAll},
			{ID: "p2", Name: "Beta", TimeRange: "all", ScanScope: types.ScopeCustom, ScanFolders: []string{"/a", "/b"}},
		},
		Total: 2, Page: 1, TotalPages: 1,
	}

	var buf bytes.Buffer
	require.NoError(t, output.FormatProjects(&buf, "plain", page, "p2"))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[2], "*"))
	assert.Contains(t, lines[2], "CUSTOM (2 folders)")
	assert.Equal(t, "Page 1/1, 2 projects", lines[3])

	buf.Reset()
	require.NoError(t, output.FormatProjects(&buf, "json", page, ""))
	var decoded types.ProjectPage
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, page, decoded)

	buf.Reset()
	require.NoError(t, output.FormatProjects(&buf, "yaml", page, ""))
	assert.Contains(t, buf.String(), "scan_scope: CUSTOM")

	buf.Reset()
	require.NoError(t, output.FormatProjects(&buf, "plain", types.ProjectPage{}, ""))
	assert.Contains(t, buf.String(), "No projects")

	assert.Error(t, output.FormatProjects(&buf, "xml", page, ""))
}
