// Package session drives scan runs. A Manager starts scans through the RPC
// shim, listens to the log, progress and done channels of each run and
// folds them into a per-project state machine:
//
//	Idle -> Running -> Complete | Failed
//
// Complete and Failed return to Running only through Rescan.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	flashbackv1 "github.com/jamesainslie/flashback/pkg/api/flashback/v1"
	"github.com/jamesainslie/flashback/pkg/flashback/logging"
	"github.com/jamesainslie/flashback/pkg/flashback/rpc"
	"github.com/jamesainslie/flashback/pkg/flashback/types"
)

var (
	// ErrNoProject is returned when Start is given an empty project id.
	ErrNoProject = errors.New("scan requires a resolved project id")

	// ErrAlreadyRunning is returned when the project already has a running scan.
	ErrAlreadyRunning = errors.New("scan already running for project")

	// ErrStartFailed wraps the failure of the start_scan call itself.
	ErrStartFailed = errors.New("scan failed to start")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session manager closed")
)

const defaultLinger = 2 * time.Second

// EventSource opens event subscriptions. Subscribe must not return before
// the subscription is live, and the channel must close when ctx ends.
// *client.Client implements it.
type EventSource interface {
	Subscribe(ctx context.Context, event, projectID string) (<-chan *structpb.Struct, error)
}

// Observer receives a snapshot after every state change. Observers are
// called one at a time and must not call back into the Manager.
type Observer func(types.ScanSession)

// Manager owns at most one session per project.
type Manager struct {
	shim   *rpc.Shim
	events EventSource
	log    *logging.Logger
	now    func() time.Time
	linger time.Duration

	mu        sync.Mutex
	sessions  map[string]*Session
	observers map[int]Observer
	nextObs   int
	closed    bool

	notifyMu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLinger sets how long subscriptions stay open after done so that
// late events on the other channels still apply. Zero releases at once.
func WithLinger(d time.Duration) Option {
	return func(m *Manager) { m.linger = d }
}

// NewManager returns a manager issuing start_scan through shim and
// subscribing through events.
func NewManager(shim *rpc.Shim, events EventSource, opts ...Option) *Manager {
	m := &Manager{
		shim:      shim,
		events:    events,
		log:       logging.Get("session"),
		now:       time.Now,
		linger:    defaultLinger,
		sessions:  make(map[string]*Session),
		observers: make(map[int]Observer),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Observe registers fn and returns a function that removes it.
func (m *Manager) Observe(fn Observer) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.observers, id)
	}
}

// publish runs next and hands the snapshot it returns to the observers
// when it reports a change. Both steps happen under notifyMu, so observers
// see changes in the order they were made, whichever goroutine made them.
func (m *Manager) publish(next func() (types.ScanSession, bool)) bool {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	snap, changed := next()
	if !changed {
		return false
	}

	m.mu.Lock()
	observers := make([]Observer, 0, len(m.observers))
	for i := 0; i < m.nextObs; i++ {
		if fn, ok := m.observers[i]; ok {
			observers = append(observers, fn)
		}
	}
	m.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
	return true
}

// Start begins a scan for projectID. The three event channels are
// subscribed before start_scan is issued so no early event is lost. When
// start_scan itself fails the session is returned in the Failed state
// together with an error wrapping ErrStartFailed.
func (m *Manager) Start(ctx context.Context, projectID string) (*Session, error) {
	if projectID == "" {
		return nil, ErrNoProject
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if prev, ok := m.sessions[projectID]; ok {
		if prev.Snapshot().Status == types.StatusRunning {
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, projectID)
		}
		prev.detach()
	}
	sess := newSession(m, uuid.NewString(), projectID, m.now())
	m.sessions[projectID] = sess
	m.mu.Unlock()

	log := m.log.With("project", projectID, "session", sess.state.ID)
	m.publish(func() (types.ScanSession, bool) { return sess.Snapshot(), true })

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess.mu.Lock()
	sess.cancel = cancel
	sess.mu.Unlock()

	chans, err := m.subscribe(ctx, subCtx, projectID)
	if err != nil {
		cancel()
		close(sess.done)
		sess.fail(fmt.Sprintf("could not listen for scan events: %s", rpc.Message(err)))
		log.Error("subscribe failed", "error", err)
		return sess, fmt.Errorf("%w: %w", ErrStartFailed, err)
	}
	go sess.run(chans[0], chans[1], chans[2])

	if _, err := m.shim.Do(ctx, flashbackv1.CmdStartScan, rpc.Args{"projectId": projectID}); err != nil {
		sess.fail(fmt.Sprintf("scan failed to start: %s", rpc.Message(err)))
		log.Error("start_scan failed", "error", err)
		return sess, fmt.Errorf("%w: %w", ErrStartFailed, err)
	}

	log.Info("scan started")
	return sess, nil
}

// subscribe opens log, progress and done, in that order, all bound to
// subCtx. setup bounds only the time spent establishing them.
func (m *Manager) subscribe(setup, subCtx context.Context, projectID string) ([3]<-chan *structpb.Struct, error) {
	var chans [3]<-chan *structpb.Struct
	for i, event := range []string{flashbackv1.EventScanLog, flashbackv1.EventScanProgress, flashbackv1.EventScanDone} {
		if err := setup.Err(); err != nil {
			return chans, err
		}
		ch, err := m.events.Subscribe(subCtx, event, projectID)
		if err != nil {
			return chans, fmt.Errorf("subscribe %s: %w", event, err)
		}
		chans[i] = ch
	}
	return chans, nil
}

// Rescan discards any existing session for projectID, running or not,
// and starts a fresh one.
func (m *Manager) Rescan(ctx context.Context, projectID string) (*Session, error) {
	m.Detach(projectID)
	return m.Start(ctx, projectID)
}

// Detach stops observing the project's session, as when the view
// navigates away. The remote scan is not cancelled.
func (m *Manager) Detach(projectID string) {
	m.mu.Lock()
	sess, ok := m.sessions[projectID]
	delete(m.sessions, projectID)
	m.mu.Unlock()

	if ok {
		sess.detach()
		m.log.Debug("session detached", "project", projectID)
	}
}

// Get returns the project's session, if any.
func (m *Manager) Get(projectID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[projectID]
	return sess, ok
}

// Snapshot returns the state of the project's session, or an Idle state
// when there is none.
func (m *Manager) Snapshot(projectID string) types.ScanSession {
	if sess, ok := m.Get(projectID); ok {
		return sess.Snapshot()
	}
	return types.ScanSession{ProjectID: projectID, Status: types.StatusIdle}
}

// Close detaches every session and waits for their event loops to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for id, sess := range m.sessions {
		sessions = append(sessions, sess)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.detach()
		<-sess.Done()
	}
}
