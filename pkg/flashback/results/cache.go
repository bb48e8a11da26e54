// Package results keeps the current page of a project's scan results.
// Pages are fetched whole and replace the cached page; they are never
// merged, since the backend may reorder while a scan is inserting rows.
package results

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	flashbackv1 "github.com/jamesainslie/flashback/pkg/api/flashback/v1"
	"github.com/jamesainslie/flashback/pkg/flashback/logging"
	"github.com/jamesainslie/flashback/pkg/flashback/rpc"
	"github.com/jamesainslie/flashback/pkg/flashback/types"
)

// ErrNoProject is returned instead of querying without a project id.
var ErrNoProject = errors.New("result query needs a project id")

// Defaults for a Cache.
const (
	DefaultPageSize  = 20
	DefaultDebounce  = 300 * time.Millisecond
	DefaultThreshold = 10
)

// View narrows and orders results beyond the text and type filters. The
// zero View shows every item, newest first.
type View struct {
	// SortBy is "modified", "path" or "size".
	SortBy    string
	Ascending bool
	// ValidOnly hides items whose files were removed after the scan.
	ValidOnly bool
	// Since is a time range such as "7d"; older items are hidden.
	Since   string
	Exclude []string
}

func (v View) clone() View {
	v.Exclude = slices.Clone(v.Exclude)
	return v
}

func (v View) equal(o View) bool {
	return v.SortBy == o.SortBy && v.Ascending == o.Ascending && v.ValidOnly == o.ValidOnly &&
		v.Since == o.Since && slices.Equal(v.Exclude, o.Exclude)
}

// Query identifies one page of results.
type Query struct {
	ProjectID string
	Page      int
	PageSize  int
	Text      string
	Types     []string
	View
}

func (q Query) clone() Query {
	q.Types = slices.Clone(q.Types)
	q.View = q.View.clone()
	return q
}

// Args renders the query as get_results_page arguments. Unset view fields
// are left out so older backends see only the arguments they know.
func (q Query) Args() rpc.Args {
	args := rpc.Args{
		"projectId": q.ProjectID,
		"page":      q.Page,
		"pageSize":  q.PageSize,
	}
	if q.Text != "" {
		args["query"] = q.Text
	}
	if len(q.Types) > 0 {
		args["typeFilters"] = q.Types
	}
	if q.SortBy != "" {
		args["sortBy"] = q.SortBy
	}
	if q.Ascending {
		args["ascending"] = true
	}
	if q.ValidOnly {
		args["validOnly"] = true
	}
	if q.Since != "" {
		args["since"] = q.Since
	}
	if len(q.Exclude) > 0 {
		args["exclude"] = q.Exclude
	}
	return args
}

// Listener receives every page that replaces the cached one.
type Listener func(types.ResultPage)

// Cache holds one page and decides when to refetch it.
type Cache struct {
	shim      *rpc.Shim
	log       *logging.Logger
	debounce  time.Duration
	threshold int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	query    Query
	page     types.ResultPage
	loaded   bool
	issued   uint64
	applied  uint64
	timer    *time.Timer
	session  string
	lastMark int
	finalFor string
	closed   bool

	listeners map[int]Listener
	nextID    int
}

// Option configures a Cache.
type Option func(*Cache)

// WithPageSize sets the page size used by new queries.
func WithPageSize(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.query.PageSize = n
		}
	}
}

// WithDebounce sets the quiet period for free-text query changes.
func WithDebounce(d time.Duration) Option {
	return func(c *Cache) {
		if d >= 0 {
			c.debounce = d
		}
	}
}

// WithThreshold sets the progress advance that triggers a refresh while a
// scan is running.
func WithThreshold(points int) Option {
	return func(c *Cache) {
		if points > 0 {
			c.threshold = points
		}
	}
}

// NewCache returns an empty cache issuing queries through shim.
func NewCache(shim *rpc.Shim, opts ...Option) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		shim:      shim,
		log:       logging.Get("results"),
		debounce:  DefaultDebounce,
		threshold: DefaultThreshold,
		ctx:       ctx,
		cancel:    cancel,
		query:     Query{Page: 1, PageSize: DefaultPageSize},
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnUpdate registers fn and returns a function that removes it.
func (c *Cache) OnUpdate(fn Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// Page returns the cached page and whether one has been loaded.
func (c *Cache) Page() (types.ResultPage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page.Clone(), c.loaded
}

// Query returns the current query.
func (c *Cache) Query() Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query.clone()
}

// Track switches the cache to projectID, dropping the cached page, the
// page number and the scan threshold accounting. Filters are kept.
func (c *Cache) Track(projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.query.ProjectID == projectID {
		return
	}
	c.query.ProjectID = projectID
	c.query.Page = 1
	c.page = types.ResultPage{}
	c.loaded = false
	c.session = ""
	c.lastMark = 0
	c.finalFor = ""
	c.stopTimerLocked()
	c.invalidateLocked()
}

// Refresh replaces the query with q and fetches its page. On failure the
// previous page is kept and returned alongside the error.
func (c *Cache) Refresh(ctx context.Context, q Query) (types.ResultPage, error) {
	c.mu.Lock()
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = c.query.PageSize
	}
	if q.ProjectID != c.query.ProjectID {
		c.session = ""
		c.lastMark = 0
		c.finalFor = ""
	}
	c.query = q.clone()
	c.mu.Unlock()

	return c.fetch(ctx)
}

// Reload fetches the current query again.
func (c *Cache) Reload(ctx context.Context) (types.ResultPage, error) {
	return c.fetch(ctx)
}

// GoToPage moves to page n (1-based) and fetches it.
func (c *Cache) GoToPage(ctx context.Context, n int) (types.ResultPage, error) {
	c.mu.Lock()
	c.query.Page = max(n, 1)
	c.invalidateLocked()
	c.mu.Unlock()
	return c.fetch(ctx)
}

// SetFilter changes the search text and type filters and returns to page
// one. A type change fetches at once; a text-only change is debounced so
// that a burst of keystrokes sends only the last value.
func (c *Cache) SetFilter(ctx context.Context, text string, fileTypes []string) error {
	text = strings.TrimSpace(text)
	fileTypes = normalizeTypes(fileTypes)

	c.mu.Lock()
	typesChanged := !slices.Equal(fileTypes, c.query.Types)
	textChanged := text != c.query.Text
	if !typesChanged && !textChanged {
		c.mu.Unlock()
		return nil
	}
	c.query.Text = text
	c.query.Types = fileTypes
	c.query.Page = 1
	c.invalidateLocked()

	if !typesChanged && c.debounce > 0 {
		c.scheduleLocked()
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	_, err := c.fetch(ctx)
	return err
}

// SetView changes how results are narrowed and ordered, returns to page
// one and fetches at once.
func (c *Cache) SetView(ctx context.Context, v View) error {
	c.mu.Lock()
	if v.equal(c.query.View) {
		c.mu.Unlock()
		return nil
	}
	c.query.View = v.clone()
	c.query.Page = 1
	c.invalidateLocked()
	c.mu.Unlock()

	_, err := c.fetch(ctx)
	return err
}

// ObserveSession is a session observer. While the tracked project's scan
// runs it refetches each time progress has advanced by the threshold since
// the last refetch, and it refetches once more when the scan completes.
func (c *Cache) ObserveSession(snap types.ScanSession) {
	c.mu.Lock()
	if c.closed || snap.ProjectID == "" || snap.ProjectID != c.query.ProjectID {
		c.mu.Unlock()
		return
	}
	if snap.ID != c.session {
		c.session = snap.ID
		c.lastMark = 0
	}

	refresh := false
	switch snap.Status {
	case types.StatusRunning:
		if snap.Progress-c.lastMark >= c.threshold {
			c.lastMark = snap.Progress
			refresh = true
		}
	case types.StatusComplete:
		if c.finalFor != snap.ID {
			c.finalFor = snap.ID
			c.lastMark = snap.Progress
			refresh = true
		}
	}
	if refresh {
		c.startBackgroundLocked("progress")
	}
	c.mu.Unlock()
}

// Close stops pending and background refreshes.
func (c *Cache) Close() {
	c.mu.Lock()
	c.closed = true
	c.stopTimerLocked()
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

func (c *Cache) fetch(ctx context.Context) (types.ResultPage, error) {
	c.mu.Lock()
	c.stopTimerLocked()
	q := c.query.clone()
	if q.ProjectID == "" {
		page := c.page.Clone()
		c.mu.Unlock()
		return page, ErrNoProject
	}
	c.issued++
	seq := c.issued
	c.mu.Unlock()

	page, err := rpc.Invoke[types.ResultPage](ctx, c.shim, flashbackv1.CmdGetResultsPage, q.Args())
	if err != nil {
		c.log.Warn("refresh failed, keeping previous page",
			"project", q.ProjectID, "page", q.Page, "error", rpc.Message(err))
		current, _ := c.Page()
		return current, err
	}
	if page.Items == nil {
		page.Items = []types.ResultItem{}
	}

	c.mu.Lock()
	if seq < c.applied {
		current := c.page.Clone()
		c.mu.Unlock()
		return current, nil
	}
	c.page = page
	c.loaded = true
	c.applied = seq
	listeners := c.listenersLocked()
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(page.Clone())
	}
	return page.Clone(), nil
}

// invalidateLocked makes fetches issued so far unable to replace the page.
func (c *Cache) invalidateLocked() {
	c.issued++
	c.applied = c.issued
}

func (c *Cache) scheduleLocked() {
	c.stopTimerLocked()
	c.timer = time.AfterFunc(c.debounce, func() {
		c.mu.Lock()
		c.timer = nil
		if !c.closed {
			c.startBackgroundLocked("query")
		}
		c.mu.Unlock()
	})
}

func (c *Cache) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// startBackgroundLocked fetches on a goroutine. Failures are logged only.
func (c *Cache) startBackgroundLocked(reason string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if _, err := c.fetch(c.ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Debug("background refresh failed", "reason", reason, "error", err)
		}
	}()
}

func (c *Cache) listenersLocked() []Listener {
	out := make([]Listener, 0, len(c.listeners))
	for i := 0; i < c.nextID; i++ {
		if fn, ok := c.listeners[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func normalizeTypes(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "."))
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
