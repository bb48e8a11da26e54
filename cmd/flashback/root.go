package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/flashback/pkg/flashback/config"
	"github.com/jamesainslie/flashback/pkg/flashback/logging"
)

// app is the state shared by every command of one invocation.
type app struct {
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config

	out    io.Writer
	errOut io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "flashback",
		Short: "Pick up where you left off",
		Long: `Flashback scans your folders for recent work (git repositories,
documents and chat app data) and lets you page through what it found.

Scans run in the flashbackd daemon, which is started on demand.

Examples:
  flashback project create work --time-range 30d
  flashback scan                     # scan the current project with the TUI
  flashback scan -n                  # stream progress instead
  flashback results --type md -o json
  flashback daemon status`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return a.init(cmd) },
		PersistentPostRun: func(*cobra.Command, []string) { _ = logging.Close() },
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default: ~/.config/flashback/config.yaml)")
	pf.BoolP("verbose", "v", false, "debug output")
	pf.BoolP("quiet", "q", false, "minimal output")
	pf.String("socket", "", "flashbackd socket (default: $XDG_DATA_HOME/flashback/flashback.sock)")
	pf.String("convention", "", "argument casing tried first: camel or snake")
	pf.Bool("no-autostart", false, "do not start flashbackd when it is not running")

	_ = a.v.BindPFlag("verbose", pf.Lookup("verbose"))
	_ = a.v.BindPFlag("quiet", pf.Lookup("quiet"))
	_ = a.v.BindPFlag("daemon.socket_path", pf.Lookup("socket"))
	_ = a.v.BindPFlag("rpc.convention", pf.Lookup("convention"))
	_ = a.v.BindPFlag("no_autostart", pf.Lookup("no-autostart"))

	rootCmd.AddCommand(
		newProjectCmd(a),
		newScanCmd(a),
		newResultsCmd(a),
		newConfigCmd(a),
		newDaemonCmd(a),
		newVersionCmd(a),
	)
	return rootCmd
}

// init loads configuration and starts file logging.
func (a *app) init(cmd *cobra.Command) error {
	a.out = cmd.OutOrStdout()
	a.errOut = cmd.ErrOrStderr()

	cfg, err := config.LoadViper(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	if a.v.GetBool("no_autostart") {
		cfg.Daemon.AutoStart = false
	}
	a.cfg = cfg

	return a.initLogging(false)
}

// initLogging (re)starts logging. In TUI mode nothing reaches the console.
func (a *app) initLogging(tuiMode bool) error {
	logCfg, err := a.cfg.LoggingOptions()
	if err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	if a.verbose() && !tuiMode {
		logCfg.ConsoleLevel = "debug"
	}
	logCfg.TUIMode = tuiMode
	if err := logging.Init(logCfg); err != nil {
		// a read-only state dir should not stop the CLI
		a.printVerbose("logging disabled: %v", err)
	}
	return nil
}

func (a *app) verbose() bool {
	return a.v.GetBool("verbose")
}

func (a *app) quiet() bool {
	return a.v.GetBool("quiet")
}

// printVerbose prints a message if verbose mode is enabled.
func (a *app) printVerbose(format string, args ...any) {
	if a.verbose() && !a.quiet() {
		fmt.Fprintf(a.errOut, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func (a *app) printInfo(format string, args ...any) {
	if !a.quiet() {
		fmt.Fprintf(a.out, format+"\n", args...)
	}
}
