package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/flashback/pkg/daemon"
	"github.com/jamesainslie/flashback/pkg/flashback/rpc"
	"github.com/jamesainslie/flashback/pkg/flashback/types"
)

// isolate points every path the CLI touches at temporary locations.
func isolate(t *testing.T) string {
	t.Helper()

	// unix socket paths are length limited, so stay out of the long TempDir
	dir, err := os.MkdirTemp("", "fbc")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	state := t.TempDir()
	socketPath := filepath.Join(dir, "d.sock")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("FLASHBACK_DAEMON_SOCKET_PATH", socketPath)
	t.Setenv("FLASHBACK_DAEMON_PID_PATH", filepath.Join(dir, "d.pid"))
	t.Setenv("FLASHBACK_DAEMON_AUTO_START", "false")
	t.Setenv("FLASHBACK_SELECTION_FILE", filepath.Join(state, "selected-project.json"))
	t.Setenv("FLASHBACK_LOGGING_PATH", filepath.Join(state, "flashback.log"))
	t.Setenv("FLASHBACK_DEBOUNCE", "10ms")
	return socketPath
}

// serve runs an in-memory daemon that only accepts snake_case arguments,
// so every command the CLI sends goes through the casing retry.
func serve(t *testing.T, socketPath string) {
	t.Helper()
	srv, err := daemon.NewServer(daemon.Config{
		SocketPath: socketPath,
		Convention: rpc.SnakeCase,
		Home:       t.TempDir(),
		Roots:      []string{},
	})
	require.NoError(t, err)
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() { _ = srv.Close() })
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func docsRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, name := range []string{"plan.md", "budget.pdf", "image.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "svc", ".git"), 0o755))
	return root
}

func TestProjectLifecycle(t *testing.T) {
	serve(t, isolate(t))

	_, err := run(t, "project", "current")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project create")

	out, err := run(t, "project", "create", "Work", "--time-range", "all")
	require.NoError(t, err)
	assert.Equal(t, "Current project: Work\n", out)

	out, err = run(t, "project", "create", "Other", "--time-range", "7d")
	require.NoError(t, err)
	assert.Equal(t, "Current project: Other\n", out)

	out, err = run(t, "project", "list", "-o", "json")
	require.NoError(t, err)
	var page types.ProjectPage
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 2)

	out, err = run(t, "project", "current")
	require.NoError(t, err)
	assert.Equal(t, "Other\n", out)

	_, err = run(t, "project", "select", "Work")
	require.NoError(t, err)
	out, err = run(t, "project", "current")
	require.NoError(t, err)
	assert.Equal(t, "Work\n", out)

	_, err = run(t, "project", "select", "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"ghost" not found`)

	out, err = run(t, "project", "delete", "Other")
	require.NoError(t, err)
	assert.Equal(t, "Deleted project: Other\n", out)

	out, err = run(t, "project", "list", "-o", "plain")
	require.NoError(t, err)
	assert.Contains(t, out, "Work")
	assert.NotContains(t, out, "Other")
}

func TestScanAndResults(t *testing.T) {
	serve(t, isolate(t))
	root := docsRoot(t)

	_, err := run(t, "project", "create", "Docs", "--scope", "custom", "--folder", root, "--time-range", "all")
	require.NoError(t, err)

	out, err := run(t, "scan", "--no-interactive")
	require.NoError(t, err)
	assert.Contains(t, out, "Scanning Docs...")
	assert.Contains(t, out, "Found 1 repositories, 2 documents and 0 chat folders")
	assert.Contains(t, out, "flashback results")

	out, err = run(t, "results", "-o", "json", "--type", "md")
	require.NoError(t, err)
	var doc struct {
		Project struct {
			Name string `json:"name"`
		} `json:"project"`
		Page struct {
			Total int `json:"total"`
		} `json:"page"`
		Filter struct {
			Types []string `json:"types"`
		} `json:"filter"`
		Items []struct {
			Path string `json:"path"`
			Type string `json:"type"`
		} `json:"items"`
		Summary *types.ScanSummary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "Docs", doc.Project.Name)
	assert.Equal(t, []string{"md"}, doc.Filter.Types)
	assert.Equal(t, 1, doc.Page.Total)
	require.Len(t, doc.Items, 1)
	assert.Equal(t, filepath.Join(root, "plan.md"), doc.Items[0].Path)
	require.NotNil(t, doc.Summary)
	assert.Equal(t, 2, doc.Summary.DocumentCount)

	out, err = run(t, "results", "Docs", "-o", "template", "--template", `{{range .Items}}{{.Type}} {{end}}`)
	require.NoError(t, err)
	assert.Contains(t, out, "pdf")
	assert.Contains(t, out, "md")

	out, err = run(t, "results", "--sort", "path", "--asc", "--since", "all", "--valid-only", "--exclude", "*.pdf",
		"-o", "template", "--template", `{{range .Items}}{{.Path}}{{"\n"}}{{end}}`)
	require.NoError(t, err)
	assert.NotContains(t, out, "budget.pdf")
	paths := strings.Fields(out)
	require.NotEmpty(t, paths)
	assert.Contains(t, paths, filepath.Join(root, "plan.md"))
	assert.IsIncreasing(t, paths)

	_, err = run(t, "results", "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"ghost" not found`)
}

func TestDaemonNotRunning(t *testing.T) {
	isolate(t)

	_, err := run(t, "project", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flashback daemon start")

	out, err := run(t, "daemon", "status")
	require.NoError(t, err)
	assert.Equal(t, "Daemon status: not running\n", out)

	_, err = run(t, "daemon", "stop")
	assert.EqualError(t, err, "daemon is not running")
}

func TestDaemonStatusReportsFailedStart(t *testing.T) {
	socketPath := isolate(t)
	require.NoError(t, daemon.WriteStatusError(daemon.StatusPath(socketPath), errors.New("store locked")))

	out, err := run(t, "daemon", "status")
	require.NoError(t, err)
	assert.Equal(t, "Daemon status: not running\n  Last start failed: store locked\n", out)
}

func TestFlagValidation(t *testing.T) {
	isolate(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"custom scope needs folders", []string{"project", "create", "x", "--scope", "custom"}, "needs at least one --folder"},
		{"folders need custom scope", []string{"project", "create", "x", "--folder", "/tmp"}, "only applies to --scope custom"},
		{"bad scope", []string{"project", "create", "x", "--scope", "some"}, "unknown scan scope"},
		{"bad time range", []string{"project", "create", "x", "--time-range", "soon"}, "invalid --time-range"},
		{"bad project format", []string{"project", "list", "-o", "csv"}, "unknown format"},
		{"bad result format", []string{"results", "-o", "xml"}, "unknown output format"},
		{"template without text", []string{"results", "-o", "template"}, "--template is required"},
		{"bad page", []string{"results", "--page", "0"}, "--page must be at least 1"},
		{"bad sort", []string{"results", "--sort", "colour"}, "--sort"},
		{"bad since", []string{"results", "--since", "soon"}, "--since"},
		{"bad exclude", []string{"results", "--exclude", "["}, "--exclude: invalid patterns: ["},
		{"too many args", []string{"scan", "a", "b"}, "accepts at most 1 arg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigCommands(t *testing.T) {
	isolate(t)

	out, err := run(t, "config", "path")
	require.NoError(t, err)
	path := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "flashback", "config.yaml")
	assert.Equal(t, path+"\n", out)

	out, err = run(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Created default config file")
	assert.FileExists(t, path)

	out, err = run(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	out, err = run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Config file: "+path)
	assert.Contains(t, out, "page_size:")
	assert.Contains(t, out, "FLASHBACK_DAEMON_AUTO_START=false")
}

func TestConfigFlagsOverrideEnvironment(t *testing.T) {
	socketPath := isolate(t)

	out, err := run(t, "config", "show", "--convention", "snake", "--no-autostart")
	require.NoError(t, err)
	assert.Contains(t, out, "rpc.convention:        snake")
	assert.Contains(t, out, "daemon.socket_path:    "+socketPath)
	assert.Contains(t, out, "daemon.auto_start:     false")

	out, err = run(t, "config", "show", "--socket", "/tmp/other.sock")
	require.NoError(t, err)
	assert.Contains(t, out, "daemon.socket_path:    /tmp/other.sock")
}

func TestVersion(t *testing.T) {
	isolate(t)
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "flashback dev")
}
