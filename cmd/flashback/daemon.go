package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/flashback/pkg/client"
)

func newDaemonCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the flashbackd daemon",
		Long: `Manage the flashbackd daemon, which owns the project store and runs
scans in the background. Other commands start it on demand unless
daemon.auto_start is off.`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "start",
			Short: "Start the flashbackd daemon",
			Args:  cobra.NoArgs,
			RunE:  func(*cobra.Command, []string) error { return a.runDaemonStart() },
		},
		&cobra.Command{
			Use:   "stop",
			Short: "Stop the flashbackd daemon",
			Args:  cobra.NoArgs,
			RunE:  func(*cobra.Command, []string) error { return a.runDaemonStop() },
		},
		&cobra.Command{
			Use:   "restart",
			Short: "Restart the flashbackd daemon",
			Args:  cobra.NoArgs,
			RunE:  func(*cobra.Command, []string) error { return a.runDaemonRestart() },
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show daemon status",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, _ []string) error { return a.runDaemonStatus(cmd.Context()) },
		},
	)
	return cmd
}

func (a *app) runDaemonStart() error {
	paths := a.daemonPaths()
	if client.IsDaemonRunning(paths.PID) {
		a.printInfo("Daemon already running")
		return nil
	}
	a.printVerbose("starting daemon...")
	if err := client.StartDaemon(paths); err != nil {
		a.printVerbose("start failed: %v", err)
		return err
	}
	a.printInfo("Daemon started")
	return nil
}

func (a *app) runDaemonStop() error {
	paths := a.daemonPaths()
	a.printVerbose("checking PID file: %s", paths.PID)
	if !client.IsDaemonRunning(paths.PID) {
		return errors.New("daemon is not running")
	}
	if err := client.StopDaemon(paths); err != nil {
		return err
	}
	a.printInfo("Daemon stopped")
	return nil
}

func (a *app) runDaemonRestart() error {
	if client.IsDaemonRunning(a.daemonPaths().PID) {
		if err := a.runDaemonStop(); err != nil {
			return fmt.Errorf("failed to stop daemon: %w", err)
		}
	}
	if err := a.runDaemonStart(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	return nil
}

func (a *app) runDaemonStatus(ctx context.Context) error {
	paths := a.daemonPaths()
	if !client.IsDaemonRunning(paths.PID) {
		a.printInfo("Daemon status: not running")
		a.printStartupFailure(paths.Socket)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	c, err := client.ConnectWithContext(ctx, paths.Socket)
	if err != nil {
		a.printInfo("Daemon status: running (but not responding)")
		a.printStartupFailure(paths.Socket)
		return nil
	}
	defer c.Close()

	st, err := c.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get daemon status: %w", err)
	}

	a.printInfo("Daemon status: running")
	a.printInfo("  PID: %d", st.PID)
	a.printInfo("  Uptime: %s", formatDuration(time.Duration(st.UptimeSeconds)*time.Second))
	a.printInfo("  Projects: %d", st.Projects)
	a.printInfo("  Watched roots: %d", st.WatchedRoots)
	a.printInfo("  Argument casing: %s", st.ArgConvention)
	a.printInfo("  Store size: %s", humanize.IBytes(uint64(max(st.StoreSizeBytes, 0))))
	if len(st.ActiveScans) > 0 {
		a.printInfo("  Active scans:")
		for _, id := range st.ActiveScans {
			a.printInfo("    - %s", id)
		}
	}
	return nil
}

// printStartupFailure reports why the last daemon start failed, if it did.
func (a *app) printStartupFailure(socketPath string) {
	st, err := client.ReadStartupStatus(socketPath)
	if err != nil || st.Status != "error" {
		return
	}
	a.printInfo("  Last start failed: %s", st.Error)
}
