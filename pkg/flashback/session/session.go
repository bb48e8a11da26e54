package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	flashbackv1 "github.com/jamesainslie/flashback/pkg/api/flashback/v1"
	"github.com/jamesainslie/flashback/pkg/flashback/types"
)

// FolderPrefix marks log lines naming the folder being scanned. Such lines
// update LastFolder instead of the log tail.
const FolderPrefix = "scanning directory:"

// Session is one scan run for one project. All event handling happens on
// the session's own goroutine.
type Session struct {
	mgr *Manager

	mu       sync.Mutex
	state    types.ScanSession
	detached bool

	cancel context.CancelFunc
	linger *time.Timer
	done   chan struct{}
}

func newSession(mgr *Manager, id, projectID string, now time.Time) *Session {
	return &Session{
		mgr: mgr,
		state: types.ScanSession{
			ID:        id,
			ProjectID: projectID,
			Status:    types.StatusRunning,
			StartedAt: now,
		},
		done: make(chan struct{}),
	}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() types.ScanSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Detached reports whether the view stopped observing this session.
func (s *Session) Detached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detached
}

// Done is closed once the session has stopped consuming events.
func (s *Session) Done() <-chan struct{} { return s.done }

// run fans in the three event channels. Events within a channel keep their
// order; across channels they interleave as they arrive.
func (s *Session) run(logs, progress, done <-chan *structpb.Struct) {
	defer close(s.done)
	for logs != nil || progress != nil || done != nil {
		select {
		case msg, ok := <-logs:
			if !ok {
				logs = nil
				continue
			}
			s.apply(func(st *types.ScanSession) bool { return applyLog(st, msg) })
		case msg, ok := <-progress:
			if !ok {
				progress = nil
				continue
			}
			s.apply(func(st *types.ScanSession) bool { return applyProgress(st, msg) })
		case msg, ok := <-done:
			if !ok {
				done = nil
				continue
			}
			if s.apply(func(st *types.ScanSession) bool { return s.applyDone(st, msg) }) {
				s.releaseAfter(s.mgr.linger)
			}
		}
	}
}

// apply mutates state under the lock and notifies observers when mutate
// reports a change. Events for detached or failed sessions are dropped.
func (s *Session) apply(mutate func(*types.ScanSession) bool) bool {
	return s.mgr.publish(func() (types.ScanSession, bool) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.detached || s.state.Status == types.StatusFailed {
			return types.ScanSession{}, false
		}
		if !mutate(&s.state) {
			return types.ScanSession{}, false
		}
		return s.state.Clone(), true
	})
}

func applyLog(st *types.ScanSession, msg *structpb.Struct) bool {
	fields := msg.GetFields()
	text := fields["text"].GetStringValue()
	if rest, ok := strings.CutPrefix(text, FolderPrefix); ok {
		st.LastFolder = strings.TrimSpace(rest)
		return true
	}
	st.LogTail = append(st.LogTail, types.LogEntry{
		Icon: fields["icon"].GetStringValue(),
		Text: text,
	})
	return true
}

func applyProgress(st *types.ScanSession, msg *structpb.Struct) bool {
	v, ok := msg.GetFields()["progress"]
	if !ok {
		return false
	}
	incoming := clamp(int(v.GetNumberValue()))
	if incoming <= st.Progress {
		return false
	}
	st.Progress = incoming
	return true
}

func (s *Session) applyDone(st *types.ScanSession, msg *structpb.Struct) bool {
	if st.Status != types.StatusRunning {
		return false
	}
	var summary types.ScanSummary
	if err := flashbackv1.Decode(msg, &summary); err != nil {
		s.mgr.log.Warn("malformed scan summary", "project", st.ProjectID, "error", err)
	}
	st.Status = types.StatusComplete
	st.Summary = &summary
	st.FinishedAt = s.mgr.now()
	return true
}

// fail moves a running session to Failed, keeping progress, and records
// the reason in the log tail.
func (s *Session) fail(text string) {
	s.apply(func(st *types.ScanSession) bool {
		if st.Status != types.StatusRunning {
			return false
		}
		st.Status = types.StatusFailed
		st.FinishedAt = s.mgr.now()
		st.LogTail = append(st.LogTail, types.LogEntry{Icon: types.IconError, Text: text})
		return true
	})
	s.release()
}

// releaseAfter keeps subscriptions open for d so late events from other
// channels, such as a final progress value, still land.
func (s *Session) releaseAfter(d time.Duration) {
	if d <= 0 {
		s.release()
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.linger == nil {
		s.linger = time.AfterFunc(d, s.release)
	}
}

// release cancels the event subscriptions. The session stays readable.
func (s *Session) release() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// detach stops observing: subscriptions are cancelled and any event still
// in flight is dropped.
func (s *Session) detach() {
	s.mu.Lock()
	s.detached = true
	if s.linger != nil {
		s.linger.Stop()
	}
	s.mu.Unlock()
	s.release()
}

func clamp(p int) int {
	return min(max(p, 0), 100)
}
