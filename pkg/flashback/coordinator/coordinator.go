// Package coordinator wires project resolution, scan sessions and the
// result cache into the single surface the view talks to.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jamesainslie/flashback/pkg/flashback/config"
	"github.com/jamesainslie/flashback/pkg/flashback/logging"
	"github.com/jamesainslie/flashback/pkg/flashback/project"
	"github.com/jamesainslie/flashback/pkg/flashback/results"
	"github.com/jamesainslie/flashback/pkg/flashback/rpc"
	"github.com/jamesainslie/flashback/pkg/flashback/session"
	"github.com/jamesainslie/flashback/pkg/flashback/types"
)

// ErrNoProject means no current project could be resolved. The view should
// ask the user to select or create one.
var ErrNoProject = errors.New("no current project; select or create one")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("coordinator closed")

// Backend is everything the coordinator needs from the daemon connection.
// *client.Client implements it.
type Backend interface {
	rpc.Invoker
	session.EventSource
}

// Update is pushed whenever the active project's session or page changes.
type Update struct {
	Project    types.ProjectRef
	Session    types.ScanSession
	Page       types.ResultPage
	PageLoaded bool
}

// Options configure a Coordinator. Zero values use defaults.
type Options struct {
	Policy     rpc.Policy
	Local      project.LocalStore
	Navigation *project.Navigation
	PageSize   int
	Debounce   time.Duration
	Threshold  int
	Linger     time.Duration
	RPCTimeout time.Duration
}

// OptionsFromConfig maps the loaded configuration onto Options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	policy, err := rpc.ParsePolicy(cfg.RPC.Convention, cfg.RPC.Alternate)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Policy:     policy,
		Local:      project.NewFileStore(cfg.SelectionFile),
		PageSize:   cfg.PageSize,
		Debounce:   cfg.Debounce,
		Threshold:  cfg.RefreshThreshold,
		RPCTimeout: cfg.RPC.Timeout,
	}, nil
}

// Coordinator is safe for concurrent use.
type Coordinator struct {
	shim     *rpc.Shim
	catalog  *project.Catalog
	resolver *project.Resolver
	sessions *session.Manager
	results  *results.Cache
	log      *logging.Logger

	mu      sync.Mutex
	active  *types.ProjectRef
	closed  bool
	updates chan Update

	// publishMu keeps updates in the order their snapshots were taken.
	publishMu sync.Mutex

	stopObserve func()
	stopUpdates func()
}

// New builds a coordinator over backend.
func New(backend Backend, opts Options) *Coordinator {
	if opts.Policy == (rpc.Policy{}) {
		opts.Policy = rpc.DefaultPolicy()
	}
	if opts.Local == nil {
		opts.Local = project.NewMemoryStore(nil)
	}

	shim := rpc.New(backend, opts.Policy)
	catalog := project.NewCatalog(shim)

	var resolverOpts []project.Option
	if opts.RPCTimeout > 0 {
		resolverOpts = append(resolverOpts, project.WithRemoteTimeout(opts.RPCTimeout))
	}
	var sessionOpts []session.Option
	if opts.Linger > 0 {
		sessionOpts = append(sessionOpts, session.WithLinger(opts.Linger))
	}
	cacheOpts := []results.Option{
		results.WithPageSize(opts.PageSize),
		results.WithThreshold(opts.Threshold),
	}
	if opts.Debounce > 0 {
		cacheOpts = append(cacheOpts, results.WithDebounce(opts.Debounce))
	}

	c := &Coordinator{
		shim:     shim,
		catalog:  catalog,
		resolver: project.NewResolver(catalog, opts.Local, opts.Navigation, resolverOpts...),
		sessions: session.NewManager(shim, backend, sessionOpts...),
		results:  results.NewCache(shim, cacheOpts...),
		log:      logging.Get("coordinator"),
		updates:  make(chan Update, 1),
	}
	c.stopObserve = c.sessions.Observe(c.onSession)
	c.stopUpdates = c.results.OnUpdate(c.onPage)
	return c
}

// Updates delivers the latest state. The channel holds one update; a slow
// reader sees only the most recent one.
func (c *Coordinator) Updates() <-chan Update {
	return c.updates
}

// Catalog exposes backend project commands that need no selection state.
func (c *Coordinator) Catalog() *project.Catalog { return c.catalog }

// Active returns the project the view is on, if any.
func (c *Coordinator) Active() (types.ProjectRef, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return types.ProjectRef{}, false
	}
	return *c.active, true
}

// CurrentProject resolves the current project across the remote record,
// navigation state and the local selection.
func (c *Coordinator) CurrentProject(ctx context.Context) (types.ProjectRef, error) {
	ref, source, ok := c.resolver.ResolveWithSource(ctx)
	if !ok {
		return types.ProjectRef{}, ErrNoProject
	}
	c.log.Debug("current project resolved", "id", ref.ID, "name", ref.Name, "source", source)
	return *ref, nil
}

// SelectProject makes ref current everywhere and enters it.
func (c *Coordinator) SelectProject(ctx context.Context, ref types.ProjectRef) (types.ProjectRef, error) {
	resolved, err := c.resolver.EnsureID(ctx, &ref)
	if err != nil {
		return types.ProjectRef{}, c.missOr(err)
	}
	if err := c.resolver.SelectCurrent(ctx, *resolved); err != nil {
		return types.ProjectRef{}, err
	}
	return c.enter(ctx, *resolved)
}

// Navigate enters ref as a screen transition would, recording it as
// navigation state without touching the persisted selection. A zero ref
// enters whatever project currently resolves.
func (c *Coordinator) Navigate(ctx context.Context, ref types.ProjectRef) (types.ProjectRef, error) {
	if ref.ID == "" && ref.Name == "" {
		current, err := c.CurrentProject(ctx)
		if err != nil {
			return types.ProjectRef{}, err
		}
		return c.enter(ctx, current)
	}

	c.resolver.Navigation().Set(&ref)
	resolved, err := c.resolver.EnsureID(ctx, &ref)
	if err != nil {
		return types.ProjectRef{}, c.missOr(err)
	}
	return c.enter(ctx, *resolved)
}

// CreateProject creates a project, or finds the existing one with the same
// name, and selects it.
func (c *Coordinator) CreateProject(ctx context.Context, input types.ProjectInput) (types.ProjectRef, error) {
	ref, err := c.catalog.Create(ctx, input)
	if err != nil {
		return types.ProjectRef{}, err
	}
	return c.SelectProject(ctx, *ref)
}

// DeleteProject deletes a project by name. Deleting the active project
// leaves it first.
func (c *Coordinator) DeleteProject(ctx context.Context, name string) error {
	ref, err := c.catalog.ByName(ctx, name)
	if err != nil {
		return err
	}
	if active, ok := c.Active(); ok && active.ID == ref.ID {
		c.Leave()
	}
	c.sessions.Detach(ref.ID)
	if err := c.catalog.Delete(ctx, ref.Name); err != nil {
		return err
	}
	return c.resolver.Forget(*ref)
}

// ListProjects returns one page of projects.
func (c *Coordinator) ListProjects(ctx context.Context, page, pageSize int) (*types.ProjectPage, error) {
	return c.catalog.List(ctx, page, pageSize)
}

// StartScan starts a scan of the active project, entering the current
// project first if the view is on none.
func (c *Coordinator) StartScan(ctx context.Context) (types.ScanSession, error) {
	ref, err := c.activeOrCurrent(ctx)
	if err != nil {
		return types.ScanSession{}, err
	}
	sess, err := c.sessions.Start(ctx, ref.ID)
	return snapshotOf(sess, ref.ID), err
}

// Rescan discards the active project's session and starts a new scan.
func (c *Coordinator) Rescan(ctx context.Context) (types.ScanSession, error) {
	ref, err := c.activeOrCurrent(ctx)
	if err != nil {
		return types.ScanSession{}, err
	}
	sess, err := c.sessions.Rescan(ctx, ref.ID)
	return snapshotOf(sess, ref.ID), err
}

// Leave navigates away from the active project. Its session stops
// receiving events; the backend scan itself keeps running.
func (c *Coordinator) Leave() {
	c.mu.Lock()
	active := c.active
	c.active = nil
	c.mu.Unlock()

	if active == nil {
		return
	}
	c.sessions.Detach(active.ID)
	c.results.Track("")
	c.log.Debug("left project", "id", active.ID)
}

// SetFilter changes the result filters and returns to page one.
func (c *Coordinator) SetFilter(ctx context.Context, text string, fileTypes []string) error {
	if _, ok := c.Active(); !ok {
		return ErrNoProject
	}
	return c.results.SetFilter(ctx, text, fileTypes)
}

// SetView changes the ordering and narrowing of results and returns to
// page one.
func (c *Coordinator) SetView(ctx context.Context, v results.View) error {
	if _, ok := c.Active(); !ok {
		return ErrNoProject
	}
	return c.results.SetView(ctx, v)
}

// GoToPage shows page n of the active project's results.
func (c *Coordinator) GoToPage(ctx context.Context, n int) (types.ResultPage, error) {
	if _, ok := c.Active(); !ok {
		return types.ResultPage{}, ErrNoProject
	}
	return c.results.GoToPage(ctx, n)
}

// Reload refetches the current page.
func (c *Coordinator) Reload(ctx context.Context) (types.ResultPage, error) {
	if _, ok := c.Active(); !ok {
		return types.ResultPage{}, ErrNoProject
	}
	return c.results.Reload(ctx)
}

// Session returns the active project's session state.
func (c *Coordinator) Session() types.ScanSession {
	active, ok := c.Active()
	if !ok {
		return types.ScanSession{Status: types.StatusIdle}
	}
	return c.sessions.Snapshot(active.ID)
}

// Page returns the cached result page.
func (c *Coordinator) Page() (types.ResultPage, bool) {
	return c.results.Page()
}

// Query returns the active result query.
func (c *Coordinator) Query() results.Query {
	return c.results.Query()
}

// Summary fetches the stored summary of the active project's last scan.
func (c *Coordinator) Summary(ctx context.Context) (*types.ScanSummary, error) {
	ref, err := c.activeOrCurrent(ctx)
	if err != nil {
		return nil, err
	}
	return c.catalog.Summary(ctx, ref.ID)
}

// Close detaches all sessions, stops the result cache and waits for
// pending selection writes.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.active = nil
	c.mu.Unlock()

	c.stopObserve()
	c.stopUpdates()
	c.sessions.Close()
	c.results.Close()
	c.resolver.Wait()

	c.publishMu.Lock()
	close(c.updates)
	c.publishMu.Unlock()
}

func (c *Coordinator) enter(ctx context.Context, ref types.ProjectRef) (types.ProjectRef, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return types.ProjectRef{}, ErrClosed
	}
	previous := c.active
	c.active = &ref
	c.mu.Unlock()

	if previous != nil && previous.ID != ref.ID {
		c.sessions.Detach(previous.ID)
	}
	c.results.Track(ref.ID)

	q := c.results.Query()
	if _, err := c.results.Refresh(ctx, q); err != nil {
		c.log.Warn("initial result page unavailable", "project", ref.ID, "error", err)
	}
	c.publish(c.sessions.Snapshot(ref.ID))
	return ref, nil
}

func (c *Coordinator) activeOrCurrent(ctx context.Context) (types.ProjectRef, error) {
	if active, ok := c.Active(); ok {
		return active, nil
	}
	return c.Navigate(ctx, types.ProjectRef{})
}

func (c *Coordinator) missOr(err error) error {
	if project.IsResolutionMiss(err) {
		return fmt.Errorf("%w: %w", ErrNoProject, err)
	}
	return err
}

// onSession runs on a session event loop and must not call into the
// session manager.
func (c *Coordinator) onSession(snap types.ScanSession) {
	active, ok := c.Active()
	if !ok || active.ID != snap.ProjectID {
		return
	}
	c.results.ObserveSession(snap)
	c.publish(snap)
}

func (c *Coordinator) onPage(types.ResultPage) {
	active, ok := c.Active()
	if !ok {
		return
	}
	c.publish(c.sessions.Snapshot(active.ID))
}

func (c *Coordinator) publish(snap types.ScanSession) {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	c.mu.Lock()
	closed := c.closed
	var ref types.ProjectRef
	if c.active != nil {
		ref = *c.active
	}
	c.mu.Unlock()
	if closed || ref.ID != snap.ProjectID {
		return
	}

	page, loaded := c.results.Page()
	u := Update{Project: ref, Session: snap, Page: page, PageLoaded: loaded}

	select {
	case <-c.updates:
	default:
	}
	c.updates <- u
}

func snapshotOf(sess *session.Session, projectID string) types.ScanSession {
	if sess == nil {
		return types.ScanSession{ProjectID: projectID, Status: types.StatusIdle}
	}
	return sess.Snapshot()
}
