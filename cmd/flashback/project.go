package main

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/flashback/pkg/flashback/config"
	"github.com/jamesainslie/flashback/pkg/flashback/coordinator"
	"github.com/jamesainslie/flashback/pkg/flashback/filter"
	"github.com/jamesainslie/flashback/pkg/flashback/output"
	"github.com/jamesainslie/flashback/pkg/flashback/types"
)

func newProjectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "project",
		Aliases: []string{"projects"},
		Short:   "Manage projects",
		Long: `A project is a named scan configuration: how far back to look and
which folders to walk. One project is current at a time; scan and
results act on it unless another is named.`,
	}
	cmd.AddCommand(
		newProjectCreateCmd(a),
		newProjectListCmd(a),
		newProjectDeleteCmd(a),
		newProjectSelectCmd(a),
		newProjectCurrentCmd(a),
	)
	return cmd
}

type createOptions struct {
	timeRange string
	scope     string
	folders   []string
}

func newProjectCreateCmd(a *app) *cobra.Command {
	var opts createOptions
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project and make it current",
		Long: `Create a project and make it current. If a project with the same
name exists it is selected instead.

Time ranges look like 7d, 2w, 3mo or 1y, or "all" for no limit.`,
		Example: `  flashback project create work --time-range 30d
  flashback project create thesis --scope custom --folder ~/Documents/thesis`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := a.projectInput(cmd, args[0], opts)
			if err != nil {
				return err
			}
			return a.withCoordinator(cmd.Context(), func(coord *coordinator.Coordinator) error {
				ref, err := coord.CreateProject(cmd.Context(), input)
				if err != nil {
					return fmt.Errorf("create project: %w", err)
				}
				a.printInfo("Current project: %s", ref.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.timeRange, "time-range", "", "how far back to look (default from config)")
	cmd.Flags().StringVar(&opts.scope, "scope", "", "ALL or CUSTOM (default from config)")
	cmd.Flags().StringSliceVar(&opts.folders, "folder", nil, "folder to scan, repeatable; relative to your home directory unless absolute (requires --scope custom)")
	return cmd
}

// projectInput validates create flags, filling unset ones from config.
func (a *app) projectInput(cmd *cobra.Command, name string, opts createOptions) (types.ProjectInput, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.ProjectInput{}, errors.New("project name is required")
	}

	timeRange := a.cfg.Project.TimeRange
	if cmd.Flags().Changed("time-range") {
		timeRange = opts.timeRange
	}
	if _, err := filter.Cutoff(timeRange, time.Now()); err != nil {
		return types.ProjectInput{}, fmt.Errorf("invalid --time-range %q: %w", timeRange, err)
	}

	rawScope := a.cfg.Project.ScanScope
	if cmd.Flags().Changed("scope") {
		rawScope = opts.scope
	}
	scope, err := types.ParseScanScope(rawScope)
	if err != nil {
		return types.ProjectInput{}, err
	}

	folders := make([]string, 0, len(opts.folders))
	for _, f := range opts.folders {
		expanded, err := config.ExpandPath(f)
		if err != nil {
			return types.ProjectInput{}, fmt.Errorf("invalid --folder %q: %w", f, err)
		}
		folders = append(folders, expanded)
	}
	switch {
	case scope == types.ScopeCustom && len(folders) == 0:
		return types.ProjectInput{}, errors.New("--scope custom needs at least one --folder")
	case scope == types.ScopeAll && len(folders) > 0:
		return types.ProjectInput{}, errors.New("--folder only applies to --scope custom")
	}

	return types.ProjectInput{
		Name:        name,
		TimeRange:   timeRange,
		ScanScope:   scope,
		ScanFolders: folders,
	}, nil
}

func newProjectListCmd(a *app) *cobra.Command {
	var (
		page   int
		size   int
		format string
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List projects",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !slices.Contains(output.ProjectFormats, format) {
				return fmt.Errorf("unknown format %q (want one of %s)", format, strings.Join(output.ProjectFormats, ", "))
			}
			if size <= 0 {
				size = a.cfg.PageSize
			}
			return a.withCoordinator(cmd.Context(), func(coord *coordinator.Coordinator) error {
				projects, err := coord.ListProjects(cmd.Context(), page, size)
				if err != nil {
					return fmt.Errorf("list projects: %w", err)
				}
				var currentID string
				if current, err := coord.CurrentProject(cmd.Context()); err == nil {
					currentID = current.ID
				}

				var buf bytes.Buffer
				if err := output.FormatProjects(&buf, format, *projects, currentID); err != nil {
					return err
				}
				_, err = a.out.Write(buf.Bytes())
				return err
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&size, "size", 0, "projects per page (default from config)")
	cmd.Flags().StringVarP(&format, "format", "o", "pretty", "output format: "+strings.Join(output.ProjectFormats, ", "))
	return cmd
}

func newProjectDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "Delete a project and its results",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCoordinator(cmd.Context(), func(coord *coordinator.Coordinator) error {
				if err := coord.DeleteProject(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("delete project: %w", err)
				}
				a.printInfo("Deleted project: %s", args[0])
				return nil
			})
		},
	}
}

func newProjectSelectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "select <name>",
		Aliases: []string{"use"},
		Short:   "Make a project current",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCoordinator(cmd.Context(), func(coord *coordinator.Coordinator) error {
				ref, err := coord.SelectProject(cmd.Context(), types.ProjectRef{Name: args[0]})
				if errors.Is(err, coordinator.ErrNoProject) {
					return fmt.Errorf("project %q not found", args[0])
				}
				if err != nil {
					return err
				}
				a.printInfo("Current project: %s", ref.Name)
				return nil
			})
		},
	}
}

func newProjectCurrentCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "current",
		Short: "Show the current project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !slices.Contains(output.ProjectFormats, format) {
				return fmt.Errorf("unknown format %q (want one of %s)", format, strings.Join(output.ProjectFormats, ", "))
			}
			return a.withCoordinator(cmd.Context(), func(coord *coordinator.Coordinator) error {
				ref, err := coord.CurrentProject(cmd.Context())
				if errors.Is(err, coordinator.ErrNoProject) {
					return fmt.Errorf("%w (create one with: flashback project create <name>)", err)
				}
				if err != nil {
					return err
				}
				if format == "plain" {
					_, err := fmt.Fprintln(a.out, ref.Name)
					return err
				}
				page := types.ProjectPage{Items: []types.ProjectRef{ref}, Total: 1, Page: 1, TotalPages: 1}
				var buf bytes.Buffer
				if err := output.FormatProjects(&buf, format, page, ref.ID); err != nil {
					return err
				}
				_, err = a.out.Write(buf.Bytes())
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "o", "plain", "output format: "+strings.Join(output.ProjectFormats, ", "))
	return cmd
}
