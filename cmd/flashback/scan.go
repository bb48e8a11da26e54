package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/flashback/cmd/flashback/tui"
	"github.com/jamesainslie/flashback/pkg/flashback/coordinator"
	"github.com/jamesainslie/flashback/pkg/flashback/types"
)

type scanOptions struct {
	noInteractive bool
	rescan        bool
}

func newScanCmd(a *app) *cobra.Command {
	var opts scanOptions
	cmd := &cobra.Command{
		Use:   "scan [project]",
		Short: "Scan a project for recent work",
		Long: `Scan a project (the current one when none is named) and show its
progress. A scan already running in flashbackd is joined rather than
restarted; use --rescan to discard it and start over.

The interactive view switches to the results once the scan completes.
With --no-interactive progress is streamed as plain lines instead.`,
		Example: `  flashback scan
  flashback scan thesis --rescan
  flashback scan -n | tee scan.log`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) == 1 {
				name = args[0]
			}
			return a.withCoordinator(cmd.Context(), func(coord *coordinator.Coordinator) error {
				ref, err := a.enter(cmd.Context(), coord, name)
				if err != nil {
					return err
				}
				if opts.noInteractive {
					return a.streamScan(cmd.Context(), coord, ref, opts.rescan)
				}
				if err := a.initLogging(true); err != nil {
					return err
				}
				return tui.Run(cmd.Context(), coord, tui.Options{Project: ref, Rescan: opts.rescan})
			})
		},
	}
	cmd.Flags().BoolVarP(&opts.noInteractive, "no-interactive", "n", false, "stream progress lines instead of the interactive view")
	cmd.Flags().BoolVar(&opts.rescan, "rescan", false, "discard an existing scan and start over")
	return cmd
}

// streamScan starts (or joins) the active project's scan and prints log
// lines until it finishes.
func (a *app) streamScan(ctx context.Context, coord *coordinator.Coordinator, ref types.ProjectRef, rescan bool) error {
	start := coord.StartScan
	if rescan {
		start = coord.Rescan
	}
	sess, err := start(ctx)
	if err != nil {
		return fmt.Errorf("start scan: %w", err)
	}
	a.printInfo("Scanning %s...", ref.Name)

	var printed []types.LogEntry
	emit := func(s types.ScanSession) {
		if !a.quiet() {
			printLogEntries(a.out, s.Progress, newEntries(printed, s.LogTail))
		}
		printed = s.LogTail
	}
	emit(sess)

	for !sess.Status.Terminal() {
		select {
		case <-ctx.Done():
			a.printInfo("\nInterrupted; the scan keeps running in flashbackd.")
			return ctx.Err()
		case u, ok := <-coord.Updates():
			if !ok {
				return errors.New("scan updates closed")
			}
			// a stale snapshot from the session this one replaced
			if u.Session.ProjectID != ref.ID || (sess.ID != "" && u.Session.ID != "" && u.Session.ID != sess.ID) {
				continue
			}
			sess = u.Session
			emit(sess)
		}
	}

	if sess.Status == types.StatusFailed {
		return fmt.Errorf("scan failed: %s", failureText(sess))
	}

	summary := sess.Summary
	if summary == nil {
		summary, _ = coord.Summary(ctx)
	}
	if summary != nil {
		a.printInfo("Found %d repositories, %d documents and %d chat folders in %s.",
			summary.RepoCount, summary.DocumentCount, len(summary.ChatLocations),
			formatDuration(sess.Elapsed(time.Now())))
	} else {
		a.printInfo("Scan complete.")
	}
	a.printInfo("Run 'flashback results' to browse them.")
	return nil
}

// newEntries returns the part of next not already shown from prev. A
// session's log tail only grows, so prev is a prefix of next; a shorter
// tail means it was reset and is shown whole.
func newEntries(prev, next []types.LogEntry) []types.LogEntry {
	if len(next) < len(prev) {
		return next
	}
	return next[len(prev):]
}

var entryIcons = map[string]string{
	types.IconInfo:    "·",
	types.IconFolder:  "›",
	types.IconSuccess: "✓",
	types.IconWarning: "!",
	types.IconError:   "✗",
}

func printLogEntries(w io.Writer, progress int, entries []types.LogEntry) {
	for _, e := range entries {
		icon, ok := entryIcons[e.Icon]
		if !ok {
			icon = entryIcons[types.IconInfo]
		}
		fmt.Fprintf(w, "[%3d%%] %s %s\n", progress, icon, e.Text)
	}
}

// failureText is the last error logged by a failed session.
func failureText(s types.ScanSession) string {
	for _, e := range slices.Backward(s.LogTail) {
		if e.Icon == types.IconError {
			return e.Text
		}
	}
	return "unknown error"
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}
