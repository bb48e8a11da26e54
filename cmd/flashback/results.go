package main

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/flashback/pkg/flashback/coordinator"
	"github.com/jamesainslie/flashback/pkg/flashback/filter"
	"github.com/jamesainslie/flashback/pkg/flashback/output"
	"github.com/jamesainslie/flashback/pkg/flashback/results"
)

type resultsOptions struct {
	page     int
	size     int
	query    string
	types    []string
	format   string
	template string

	sortBy    string
	ascending bool
	validOnly bool
	since     string
	exclude   []string
}

// view checks the ordering and narrowing flags before anything reaches
// the daemon.
func (o resultsOptions) view() (results.View, error) {
	v := results.View{
		SortBy:    o.sortBy,
		Ascending: o.ascending,
		ValidOnly: o.validOnly,
		Since:     o.since,
		Exclude:   o.exclude,
	}
	if v.SortBy != "" {
		if _, err := filter.ParseSortField(v.SortBy); err != nil {
			return v, fmt.Errorf("--sort: %w", err)
		}
	}
	if v.Since != "" {
		if _, err := filter.Cutoff(v.Since, time.Now()); err != nil {
			return v, fmt.Errorf("--since: %w", err)
		}
	}
	if _, invalid := filter.NewIgnore(v.Exclude...); len(invalid) > 0 {
		return v, fmt.Errorf("--exclude: invalid patterns: %s", strings.Join(invalid, ", "))
	}
	return v, nil
}

func newResultsCmd(a *app) *cobra.Command {
	var opts resultsOptions
	cmd := &cobra.Command{
		Use:   "results [project]",
		Short: "Show a page of scan results",
		Long: `Show one page of the results of a project's scans (the current project
when none is named).

Type filters accept file extensions or the groups document, office,
notes, repo and chat. Results are newest first unless --sort or --asc
say otherwise.

Output formats: pretty, plain, json, jsonl, yaml, tsv, csv, markdown and
template. Templates see .Project, .Page, .Summary and .Items, with the
helpers date, ago and bytes.`,
		Example: `  flashback results
  flashback results --type document --query report
  flashback results work --page 2 -o json
  flashback results --sort size --since 7d --exclude 'node_modules/**'
  flashback results -o template --template '{{range .Items}}{{.Path}}{{"\n"}}{{end}}'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := resultFormatter(opts)
			if err != nil {
				return err
			}
			if opts.page < 1 {
				return errors.New("--page must be at least 1")
			}
			view, err := opts.view()
			if err != nil {
				return err
			}
			if opts.size > 0 {
				a.cfg.PageSize = opts.size
			}

			var name string
			if len(args) == 1 {
				name = args[0]
			}
			return a.withCoordinator(cmd.Context(), func(coord *coordinator.Coordinator) error {
				ctx := cmd.Context()
				ref, err := a.enter(ctx, coord, name)
				if err != nil {
					return err
				}

				fileTypes := filter.ExpandTypes(opts.types...)
				if err := coord.SetFilter(ctx, opts.query, fileTypes); err != nil {
					return fmt.Errorf("set filter: %w", err)
				}
				if err := coord.SetView(ctx, view); err != nil {
					return fmt.Errorf("set view: %w", err)
				}
				page, err := coord.GoToPage(ctx, opts.page)
				if err != nil {
					return fmt.Errorf("load results: %w", err)
				}
				a.printVerbose("page %d/%d, %d results", page.Page, page.TotalPages, page.Total)

				summary, err := coord.Summary(ctx)
				if err != nil {
					a.printVerbose("summary unavailable: %v", err)
				}

				result := &output.Result{
					Project:  ref,
					Page:     page,
					Query:    opts.query,
					Types:    fileTypes,
					Summary:  summary,
					DaemonUp: true,
				}
				var buf bytes.Buffer
				if err := formatter.Format(&buf, result); err != nil {
					return fmt.Errorf("format results: %w", err)
				}
				_, err = a.out.Write(buf.Bytes())
				return err
			})
		},
	}
	cmd.Flags().IntVar(&opts.page, "page", 1, "page number")
	cmd.Flags().IntVar(&opts.size, "size", 0, "results per page (default from config)")
	cmd.Flags().StringVar(&opts.query, "query", "", "only paths containing this text")
	cmd.Flags().StringSliceVarP(&opts.types, "type", "t", nil, "file types or groups to show (repeatable)")
	cmd.Flags().StringVar(&opts.sortBy, "sort", "", "order by modified, path or size")
	cmd.Flags().BoolVar(&opts.ascending, "asc", false, "sort ascending")
	cmd.Flags().BoolVar(&opts.validOnly, "valid-only", false, "hide files removed since the scan")
	cmd.Flags().StringVar(&opts.since, "since", "", "only files modified within this range, e.g. 7d")
	cmd.Flags().StringSliceVar(&opts.exclude, "exclude", nil, "glob patterns to hide (repeatable)")
	cmd.Flags().StringVarP(&opts.format, "format", "o", "pretty", "output format")
	cmd.Flags().StringVar(&opts.template, "template", "", "template for -o template")
	return cmd
}

func resultFormatter(opts resultsOptions) (output.Formatter, error) {
	if opts.format == "template" {
		if opts.template == "" {
			return nil, errors.New("--template is required when using -o template")
		}
		return output.NewTemplateFormatter(opts.template), nil
	}
	formatter, err := output.Get(opts.format)
	if err != nil {
		return nil, fmt.Errorf("unknown output format %q: available formats are %v", opts.format, output.Available())
	}
	return formatter, nil
}
