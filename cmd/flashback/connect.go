package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jamesainslie/flashback/pkg/client"
	"github.com/jamesainslie/flashback/pkg/flashback/coordinator"
	"github.com/jamesainslie/flashback/pkg/flashback/types"
)

func (a *app) daemonPaths() client.DaemonPaths {
	return client.DaemonPaths{
		Binary: a.cfg.Daemon.BinaryPath,
		Socket: a.cfg.Daemon.SocketPath,
		PID:    a.cfg.Daemon.PIDPath,
	}
}

// connect reaches flashbackd, starting it first when auto start is on.
func (a *app) connect(ctx context.Context) (*client.Client, error) {
	a.printVerbose("socket path: %s", a.cfg.Daemon.SocketPath)
	c, err := client.EnsureConnected(ctx, a.daemonPaths(), a.cfg.Daemon.AutoStart)
	if err != nil {
		if !a.cfg.Daemon.AutoStart {
			return nil, fmt.Errorf("%w (start it with: flashback daemon start)", err)
		}
		return nil, err
	}
	return c, nil
}

// withCoordinator runs fn against a coordinator connected to flashbackd
// and tears both down afterwards.
func (a *app) withCoordinator(ctx context.Context, fn func(*coordinator.Coordinator) error) error {
	c, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	opts, err := coordinator.OptionsFromConfig(a.cfg)
	if err != nil {
		return err
	}
	coord := coordinator.New(c, opts)
	defer coord.Close()

	return fn(coord)
}

// enter makes name (or, when empty, the current project) active.
func (a *app) enter(ctx context.Context, coord *coordinator.Coordinator, name string) (types.ProjectRef, error) {
	ref, err := coord.Navigate(ctx, types.ProjectRef{Name: name})
	if errors.Is(err, coordinator.ErrNoProject) {
		if name != "" {
			return types.ProjectRef{}, fmt.Errorf("project %q not found (list them with: flashback project list)", name)
		}
		return types.ProjectRef{}, fmt.Errorf("%w (create one with: flashback project create <name>)", err)
	}
	if err == nil {
		a.printVerbose("project: %s (%s)", ref.Name, ref.ID)
	}
	return ref, err
}
