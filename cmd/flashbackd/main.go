// Package main is flashbackd, the backend that owns projects, runs scans
// and serves paginated results to the flashback CLI over a unix socket.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/flashback/pkg/daemon"
	"github.com/jamesainslie/flashback/pkg/flashback/config"
	"github.com/jamesainslie/flashback/pkg/flashback/logging"
	"github.com/jamesainslie/flashback/pkg/flashback/rpc"
)

type options struct {
	configPath string
	socketPath string
	pidPath    string
	dataDir    string
	memory     bool
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "flashbackd",
		Short:         "Backend daemon for flashback",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := run(cmd.Context(), opts)
			if err != nil {
				fmt.Fprintf(os.Stderr, "flashbackd: %v\n", err)
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default: ~/.config/flashback/config.yaml)")
	flags.StringVar(&opts.socketPath, "socket", "", "unix socket to listen on")
	flags.StringVar(&opts.pidPath, "pid", "", "pid file")
	flags.StringVar(&opts.dataDir, "data-dir", "", "directory holding the store")
	flags.BoolVar(&opts.memory, "in-memory", false, "keep the store in memory")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "mirror debug logs to stderr")
	return cmd
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.LoadFile(opts.configPath)
	if err != nil {
		return err
	}
	if opts.socketPath != "" {
		cfg.Daemon.SocketPath = opts.socketPath
	}
	if opts.pidPath != "" {
		cfg.Daemon.PIDPath = opts.pidPath
	}
	if opts.dataDir != "" {
		cfg.Daemon.DataDir = opts.dataDir
	}

	logCfg, err := cfg.LoggingOptions()
	if err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	if opts.verbose {
		logCfg.ConsoleLevel = "debug"
	}
	if err := logging.Init(logCfg); err != nil {
		return err
	}
	defer func() { _ = logging.Close() }()
	log := logging.Get("daemon")

	socketPath := cfg.Daemon.SocketPath
	pidPath := cfg.Daemon.PIDPath
	statusPath := daemon.StatusPath(socketPath)
	if err := os.MkdirAll(filepath.Dir(socketPath), 0755); err != nil {
		return err
	}

	fail := func(err error) error {
		log.Error("startup failed", "error", err)
		_ = daemon.WriteStatusError(statusPath, err)
		return err
	}

	conv, err := rpc.ParseConvention(cfg.Daemon.ArgConvention)
	if err != nil {
		return fail(err)
	}

	dbPath := ""
	if !opts.memory {
		dbPath = config.DefaultDBPath(cfg.Daemon.DataDir)
	}
	if err := daemon.RecoverFromStaleDaemon(pidPath, socketPath, dbPath); err != nil {
		return fail(err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fail(err)
	}

	srv, err := daemon.NewServer(daemon.Config{
		SocketPath: socketPath,
		DBPath:     dbPath,
		Convention: conv,
		Home:       home,
		Roots:      cfg.Daemon.Roots,
		Ignore:     cfg.Daemon.Ignore,
		Watch:      cfg.Daemon.Watch,
		Workers:    cfg.Daemon.WalkWorkers,
	})
	if err != nil {
		return fail(fmt.Errorf("create server: %w", err))
	}

	if err := daemon.WritePIDFile(pidPath); err != nil {
		_ = srv.Close()
		return fail(fmt.Errorf("write pid file: %w", err))
	}
	defer func() {
		if err := daemon.RemovePIDFile(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("failed to remove pid file", "error", err)
		}
		_ = daemon.RemoveStatus(statusPath)
	}()

	if err := daemon.WriteStatusReady(statusPath); err != nil {
		log.Warn("failed to write status file", "error", err)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		if err := srv.Close(); err != nil {
			log.Warn("error during shutdown", "error", err)
		}
	}()

	log.Info("flashbackd starting", "socket", socketPath, "pid", os.Getpid(), "convention", conv, "store", storeLabel(dbPath))
	if err := srv.Serve(); err != nil {
		_ = srv.Close()
		return fmt.Errorf("serve: %w", err)
	}
	return srv.Close()
}

func storeLabel(dbPath string) string {
	if dbPath == "" {
		return "memory"
	}
	return dbPath
}
