// Package project resolves and selects the current project and wraps the
// backend's project commands.
package project

import (
	"context"
	"errors"
	"fmt"
	"strings"

	flashbackv1 "github.com/jamesainslie/flashback/pkg/api/flashback/v1"
	"github.com/jamesainslie/flashback/pkg/flashback/logging"
	"github.com/jamesainslie/flashback/pkg/flashback/rpc"
	"github.com/jamesainslie/flashback/pkg/flashback/types"
)

var (
	// ErrNoProject means no source yielded a current project.
	ErrNoProject = errors.New("no project selected")

	// ErrProjectNotFound means the backend has no project by that name.
	ErrProjectNotFound = errors.New("project not found")
)

// Catalog is the backend's project collection.
type Catalog struct {
	shim *rpc.Shim
	log  *logging.Logger
}

// NewCatalog returns a catalog issuing commands through shim.
func NewCatalog(shim *rpc.Shim) *Catalog {
	return &Catalog{shim: shim, log: logging.Get("project")}
}

// ByName looks a project up by its unique name.
func (c *Catalog) ByName(ctx context.Context, name string) (*types.ProjectRef, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNoProject
	}
	v, err := c.shim.Do(ctx, flashbackv1.CmdGetProjectByName, rpc.Args{"name": name})
	if err != nil {
		if rpc.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, name)
		}
		return nil, err
	}
	ref, err := rpc.DecodeOptional[types.ProjectRef](v)
	if err != nil {
		return nil, err
	}
	if ref == nil || !ref.HasID() {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, name)
	}
	return ref, nil
}

// Create creates a project. When the name is already taken the existing
// project is returned instead of an error.
func (c *Catalog) Create(ctx context.Context, input types.ProjectInput) (*types.ProjectRef, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return nil, errors.New("project name is required")
	}
	if input.ScanScope == "" {
		input.ScanScope = types.ScopeAll
	}

	v, err := c.shim.Do(ctx, flashbackv1.CmdCreateProject, rpc.Args{"projectInput": input})
	if err != nil {
		if !rpc.IsConflict(err) {
			return nil, err
		}
		c.log.Info("project exists, reusing it", "name", input.Name)
		return c.ByName(ctx, input.Name)
	}

	ref, err := rpc.Decode[types.ProjectRef](v)
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// Delete removes a project by name.
func (c *Catalog) Delete(ctx context.Context, name string) error {
	_, err := c.shim.Do(ctx, flashbackv1.CmdDeleteProject, rpc.Args{"name": name})
	if rpc.IsNotFound(err) {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, name)
	}
	return err
}

// List returns one page of projects.
func (c *Catalog) List(ctx context.Context, page, pageSize int) (*types.ProjectPage, error) {
	out, err := rpc.Invoke[types.ProjectPage](ctx, c.shim, flashbackv1.CmdListProjectsPaged,
		rpc.Args{"page": max(page, 1), "pageSize": pageSize})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Current reads the backend's current-project record. A nil ref with a nil
// error means the record is empty.
func (c *Catalog) Current(ctx context.Context) (*types.ProjectRef, error) {
	v, err := c.shim.Do(ctx, flashbackv1.CmdGetCurrentProject, nil)
	if err != nil {
		return nil, err
	}
	return rpc.DecodeOptional[types.ProjectRef](v)
}

// SetCurrent writes the backend's current-project record.
func (c *Catalog) SetCurrent(ctx context.Context, projectID string) error {
	_, err := c.shim.Do(ctx, flashbackv1.CmdSetCurrentProject, rpc.Args{"projectId": projectID})
	return err
}

// Summary returns the stored summary of a project's last completed scan,
// or nil if it has never completed one.
func (c *Catalog) Summary(ctx context.Context, projectID string) (*types.ScanSummary, error) {
	v, err := c.shim.Do(ctx, flashbackv1.CmdGetScanSummary, rpc.Args{"projectId": projectID})
	if err != nil {
		return nil, err
	}
	return rpc.DecodeOptional[types.ScanSummary](v)
}
