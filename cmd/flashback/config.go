package main

import (
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/flashback/pkg/flashback/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage flashback configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/flashback/config.yaml (if set)
  2. ~/.config/flashback/config.yaml

Environment variables override config file settings using the FLASHBACK_
prefix, with dots and dashes as underscores:
  FLASHBACK_PAGE_SIZE=50
  FLASHBACK_RPC_CONVENTION=snake
  FLASHBACK_DAEMON_AUTO_START=false`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show current configuration",
			Long:  `Display the current configuration settings from all sources.`,
			Args:  cobra.NoArgs,
			RunE:  func(*cobra.Command, []string) error { return a.runConfigShow() },
		},
		&cobra.Command{
			Use:   "edit",
			Short: "Edit configuration file",
			Long: `Open the configuration file in your default editor.

The editor is determined by:
  1. $VISUAL environment variable
  2. $EDITOR environment variable
  3. Falls back to 'vi'

If the config file doesn't exist, a default one will be created first.`,
			Args: cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error { return a.runConfigEdit() },
		},
		&cobra.Command{
			Use:   "init",
			Short: "Create default configuration file",
			Args:  cobra.NoArgs,
			RunE:  func(*cobra.Command, []string) error { return a.runConfigInit() },
		},
		&cobra.Command{
			Use:   "path",
			Short: "Show configuration file path",
			Args:  cobra.NoArgs,
			RunE:  func(*cobra.Command, []string) error { return a.runConfigPath() },
		},
	)
	return cmd
}

func (a *app) runConfigShow() error {
	if used := a.v.ConfigFileUsed(); used != "" {
		if _, err := os.Stat(used); err == nil {
			fmt.Fprintf(a.out, "Config file: %s\n\n", used)
		} else {
			fmt.Fprintf(a.out, "Config file: (using defaults, no file found)\n\n")
		}
	} else {
		fmt.Fprintf(a.out, "Config file: (using defaults, no file found)\n\n")
	}

	c := a.cfg
	fmt.Fprintln(a.out, "Current Configuration:")
	fmt.Fprintln(a.out, "----------------------")
	rows := [][2]string{
		{"page_size", fmt.Sprint(c.PageSize)},
		{"debounce", c.Debounce.String()},
		{"refresh_threshold", fmt.Sprint(c.RefreshThreshold)},
		{"selection_file", c.SelectionFile},
		{"rpc.timeout", c.RPC.Timeout.String()},
		{"rpc.convention", c.RPC.Convention},
		{"rpc.alternate", c.RPC.Alternate},
		{"project.time_range", c.Project.TimeRange},
		{"project.scan_scope", c.Project.ScanScope},
		{"logging.level", c.Logging.Level},
		{"logging.path", c.Logging.Path},
		{"daemon.auto_start", fmt.Sprint(c.Daemon.AutoStart)},
		{"daemon.binary_path", c.Daemon.BinaryPath},
		{"daemon.socket_path", c.Daemon.SocketPath},
		{"daemon.pid_path", c.Daemon.PIDPath},
		{"daemon.data_dir", c.Daemon.DataDir},
		{"daemon.arg_convention", c.Daemon.ArgConvention},
		{"daemon.roots", fmt.Sprint(c.Daemon.Roots)},
		{"daemon.ignore", fmt.Sprint(c.Daemon.Ignore)},
		{"daemon.watch", fmt.Sprint(c.Daemon.Watch)},
		{"daemon.walk_workers", fmt.Sprint(c.Daemon.WalkWorkers)},
	}
	for _, r := range rows {
		fmt.Fprintf(a.out, "%-22s %s\n", r[0]+":", r[1])
	}

	fmt.Fprintln(a.out, "\nEnvironment Overrides:")
	fmt.Fprintln(a.out, "----------------------")
	var overrides []string
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "FLASHBACK_") {
			overrides = append(overrides, kv)
		}
	}
	sort.Strings(overrides)
	if len(overrides) == 0 {
		fmt.Fprintln(a.out, "(none)")
	}
	for _, kv := range overrides {
		fmt.Fprintln(a.out, kv)
	}
	return nil
}

// configPath is --config when given, otherwise the default location.
func (a *app) configPath() (string, error) {
	if a.cfgFile != "" {
		return a.cfgFile, nil
	}
	return config.ConfigPath()
}

func (a *app) runConfigEdit() error {
	path, err := a.configPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	if a.cfgFile == "" {
		if _, _, err := config.WriteDefault(); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
	}

	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	a.printVerbose("Opening %s with %s", path, editor)

	editorCmd := exec.Command(editor, path) //nolint:gosec // the user's own editor
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr
	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor command failed: %w", err)
	}
	return nil
}

func (a *app) runConfigInit() error {
	path, written, err := config.WriteDefault()
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if !written {
		a.printInfo("Config file already exists: %s", path)
		a.printInfo("Use 'flashback config edit' to modify it.")
		return nil
	}
	a.printInfo("Created default config file: %s", path)
	return nil
}

func (a *app) runConfigPath() error {
	path, err := a.configPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	fmt.Fprintln(a.out, path)

	if _, err := os.Stat(path); err == nil {
		a.printVerbose("File exists")
	} else if os.IsNotExist(err) {
		a.printVerbose("File does not exist (will use defaults)")
	}
	return nil
}
