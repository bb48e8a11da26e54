package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	flashbackv1 "github.com/jamesainslie/flashback/pkg/api/flashback/v1"
	"github.com/jamesainslie/flashback/pkg/daemon/broadcaster"
	"github.com/jamesainslie/flashback/pkg/daemon/scanner"
	"github.com/jamesainslie/flashback/pkg/daemon/store"
	"github.com/jamesainslie/flashback/pkg/daemon/watcher"
	"github.com/jamesainslie/flashback/pkg/flashback/filter"
	"github.com/jamesainslie/flashback/pkg/flashback/logging"
	"github.com/jamesainslie/flashback/pkg/flashback/rpc"
	"github.com/jamesainslie/flashback/pkg/flashback/types"
)

// Status is the daemon_status reply.
type Status struct {
	Running        bool     `json:"running"`
	PID            int      `json:"pid"`
	UptimeSeconds  int64    `json:"uptime_seconds"`
	Projects       int      `json:"projects"`
	ActiveScans    []string `json:"active_scans"`
	WatchedRoots   int      `json:"watched_roots"`
	ArgConvention  string   `json:"arg_convention"`
	StoreSizeBytes int64    `json:"store_size_bytes"`
}

// Service implements the flashback Backend gRPC service.
type Service struct {
	flashbackv1.UnimplementedBackendServer

	store       *store.Store
	scanner     *scanner.Scanner
	broadcaster *broadcaster.Broadcaster
	watcher     *watcher.Watcher
	convention  rpc.Convention
	startTime   time.Time
	log         *logging.Logger

	// onShutdown runs when a client asks the daemon to stop.
	onShutdown func()

	scanCtx   context.Context
	stopScans context.CancelFunc
	scanMu    sync.Mutex
	scans     map[string]context.CancelFunc
	scanGroup sync.WaitGroup
}

// NewService creates a service over s. Events are published on b.
func NewService(s *store.Store, sc *scanner.Scanner, b *broadcaster.Broadcaster, conv rpc.Convention) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:       s,
		scanner:     sc,
		broadcaster: b,
		convention:  conv,
		startTime:   time.Now(),
		log:         logging.Get("daemon"),
		scanCtx:     ctx,
		stopScans:   cancel,
		scans:       make(map[string]context.CancelFunc),
	}
}

// SetWatcher sets the filesystem watcher that follows scanned roots.
func (s *Service) SetWatcher(w *watcher.Watcher) {
	s.watcher = w
}

// SetShutdownHook sets the function run by the shutdown command.
func (s *Service) SetShutdownHook(fn func()) {
	s.onShutdown = fn
}

// Invoke dispatches one command.
func (s *Service) Invoke(ctx context.Context, req *structpb.Struct) (*structpb.Value, error) {
	command, values, err := flashbackv1.ParseInvokeRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	a := args{command: command, values: values, conv: s.convention}

	out, err := s.dispatch(ctx, a)
	if err != nil {
		if _, ok := status.FromError(err); !ok {
			err = toStatus(err)
		}
		s.log.Debug("command failed", "command", command, "error", err)
		return nil, err
	}
	v, err := flashbackv1.ToValue(out)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding %s reply: %v", command, err)
	}
	return v, nil
}

func (s *Service) dispatch(ctx context.Context, a args) (any, error) {
	switch a.command {
	case flashbackv1.CmdStartScan:
		return s.startScan(ctx, a)
	case flashbackv1.CmdGetResultsPage:
		return s.resultsPage(a)
	case flashbackv1.CmdGetCurrentProject:
		return s.store.CurrentProject()
	case flashbackv1.CmdSetCurrentProject:
		return s.setCurrentProject(a)
	case flashbackv1.CmdGetProjectByName:
		return s.projectByName(a)
	case flashbackv1.CmdCreateProject:
		return s.createProject(a)
	case flashbackv1.CmdDeleteProject:
		return s.deleteProject(a)
	case flashbackv1.CmdListProjectsPaged:
		return s.listProjects(a)
	case flashbackv1.CmdGetScanSummary:
		id, err := a.requireString("projectId")
		if err != nil {
			return nil, err
		}
		return s.store.Summary(id)
	case flashbackv1.CmdDaemonStatus:
		return s.status(), nil
	case flashbackv1.CmdShutdown:
		if s.onShutdown != nil {
			go s.onShutdown()
		}
		return nil, nil
	default:
		return nil, status.Errorf(codes.Unimplemented, "unknown command %s", a.command)
	}
}

// toStatus maps store errors onto gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, store.ErrConflict):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, store.ErrInvalidName):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func (s *Service) createProject(a args) (any, error) {
	var in types.ProjectInput
	if err := a.decode("projectInput", &in); err != nil {
		return nil, err
	}
	ref, err := s.store.CreateProject(in)
	if err != nil {
		return nil, err
	}
	s.log.Info("project created", "name", ref.Name, "id", ref.ID)
	return ref, nil
}

func (s *Service) projectByName(a args) (any, error) {
	name, err := a.requireString("name")
	if err != nil {
		return nil, err
	}
	ref, err := s.store.ProjectByName(name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ref, nil
}

func (s *Service) deleteProject(a args) (any, error) {
	name, err := a.requireString("name")
	if err != nil {
		return nil, err
	}
	ref, err := s.store.ProjectByName(name)
	if err != nil {
		return nil, err
	}
	s.cancelScan(ref.ID)
	if s.watcher != nil {
		s.watcher.UnwatchProject(ref.ID)
	}
	if _, err := s.store.DeleteProject(name); err != nil {
		return nil, err
	}
	s.log.Info("project deleted", "name", ref.Name, "id", ref.ID)
	return nil, nil
}

func (s *Service) listProjects(a args) (any, error) {
	page, err := a.requireInt("page")
	if err != nil {
		return nil, err
	}
	size, err := a.requireInt("pageSize")
	if err != nil {
		return nil, err
	}
	return s.store.ListProjects(page, size)
}

func (s *Service) setCurrentProject(a args) (any, error) {
	id, err := a.requireString("projectId")
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Project(id); err != nil {
		return nil, err
	}
	return nil, s.store.SetCurrentProject(id)
}

func (s *Service) resultsPage(a args) (any, error) {
	id, err := a.requireString("projectId")
	if err != nil {
		return nil, err
	}
	page, err := a.requireInt("page")
	if err != nil {
		return nil, err
	}
	size, err := a.requireInt("pageSize")
	if err != nil {
		return nil, err
	}
	query, err := a.optionalString("query")
	if err != nil {
		return nil, err
	}
	typeFilters, err := a.optionalStrings("typeFilters")
	if err != nil {
		return nil, err
	}
	q := store.ResultQuery{Page: page, PageSize: size, Query: query, Types: typeFilters}
	if err := readResultView(a, &q); err != nil {
		return nil, err
	}
	return s.store.ResultsPage(id, q)
}

// readResultView reads the optional narrowing and ordering arguments of
// get_results_page.
func readResultView(a args, q *store.ResultQuery) error {
	var err error
	if q.ValidOnly, err = a.optionalBool("validOnly"); err != nil {
		return err
	}
	if q.Ascending, err = a.optionalBool("ascending"); err != nil {
		return err
	}

	sortBy, err := a.optionalString("sortBy")
	if err != nil {
		return err
	}
	if q.SortBy, err = filter.ParseSortField(sortBy); err != nil {
		return a.invalid(a.conv.Key("sortBy"), "one of modified, path or size")
	}

	since, err := a.optionalString("since")
	if err != nil {
		return err
	}
	if q.Since, err = filter.Cutoff(since, time.Now()); err != nil {
		return a.invalid(a.conv.Key("since"), "a time range such as 7d or all")
	}

	patterns, err := a.optionalStrings("exclude")
	if err != nil {
		return err
	}
	if len(patterns) > 0 {
		ig, invalid := filter.NewIgnore(patterns...)
		if len(invalid) > 0 {
			return a.invalid(a.conv.Key("exclude"), fmt.Sprintf("glob patterns, bad: %s", strings.Join(invalid, ", ")))
		}
		q.Exclude = ig
	}
	return nil
}

// startScan launches a scan in the background. Events flow to subscribers
// of the project; the reply only says the scan was accepted.
func (s *Service) startScan(_ context.Context, a args) (any, error) {
	id, err := a.requireString("projectId")
	if err != nil {
		return nil, err
	}
	ref, err := s.store.Project(id)
	if err != nil {
		return nil, err
	}

	s.scanMu.Lock()
	if _, running := s.scans[id]; running {
		s.scanMu.Unlock()
		return nil, status.Errorf(codes.FailedPrecondition, "scan already running for project %s", id)
	}
	if err := s.scanCtx.Err(); err != nil {
		s.scanMu.Unlock()
		return nil, status.Error(codes.Unavailable, "daemon is shutting down")
	}
	ctx, cancel := context.WithCancel(s.scanCtx)
	s.scans[id] = cancel
	s.scanGroup.Add(1)
	s.scanMu.Unlock()

	s.log.Info("starting scan", "project", id, "name", ref.Name)

	// the scan outlives the start_scan call
	go s.runScan(ctx, cancel, ref)

	return nil, nil
}

func (s *Service) runScan(ctx context.Context, cancel context.CancelFunc, ref types.ProjectRef) {
	defer s.scanGroup.Done()
	defer func() {
		cancel()
		s.scanMu.Lock()
		delete(s.scans, ref.ID)
		s.scanMu.Unlock()
	}()

	if _, err := s.scanner.Run(ctx, ref, &eventSink{b: s.broadcaster, projectID: ref.ID, log: s.log}); err != nil {
		return
	}
	if s.watcher == nil {
		return
	}
	for _, root := range s.scanner.Roots(ref) {
		if _, err := os.Stat(root); err != nil {
			continue
		}
		if err := s.watcher.Watch(ref.ID, root); err != nil {
			s.log.Warn("failed to start watching scanned root", "root", root, "error", err)
		}
	}
}

func (s *Service) cancelScan(projectID string) {
	s.scanMu.Lock()
	cancel, ok := s.scans[projectID]
	s.scanMu.Unlock()
	if ok {
		cancel()
	}
}

// ActiveScans returns the ids of projects being scanned.
func (s *Service) ActiveScans() []string {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()
	ids := make([]string, 0, len(s.scans))
	for id := range s.scans {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Service) status() Status {
	st := Status{
		Running:        true,
		PID:            os.Getpid(),
		UptimeSeconds:  int64(time.Since(s.startTime).Seconds()),
		Projects:       s.store.CountProjects(),
		ActiveScans:    s.ActiveScans(),
		ArgConvention:  s.convention.String(),
		StoreSizeBytes: s.store.Size(),
	}
	if s.watcher != nil {
		st.WatchedRoots = s.watcher.Roots()
	}
	return st
}

// Subscribe streams one event channel. The header is sent only after the
// subscription is registered so the client knows no later event is missed.
func (s *Service) Subscribe(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	event, projectID := flashbackv1.ParseSubscribeRequest(req)
	switch event {
	case flashbackv1.EventScanLog, flashbackv1.EventScanProgress, flashbackv1.EventScanDone:
	default:
		return status.Errorf(codes.InvalidArgument, "unknown event %q", event)
	}

	sub := s.broadcaster.Subscribe(event, projectID)
	if sub == nil {
		return status.Error(codes.Unavailable, "daemon is shutting down")
	}
	defer s.broadcaster.Unsubscribe(sub.ID)

	if err := stream.SendHeader(metadata.Pairs(flashbackv1.HeaderSubscribed, event)); err != nil {
		return err
	}

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.Events:
			if !ok {
				return nil
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

// Close cancels running scans and waits for them to finish.
func (s *Service) Close() {
	s.scanMu.Lock()
	s.stopScans()
	s.scanMu.Unlock()
	s.scanGroup.Wait()
}

// eventSink publishes one scan's events to the project's subscribers.
type eventSink struct {
	b         *broadcaster.Broadcaster
	projectID string
	log       *logging.Logger
}

func (e *eventSink) Log(entry types.LogEntry) {
	e.publish(flashbackv1.EventScanLog, entry)
}

func (e *eventSink) Progress(progress int) {
	e.publish(flashbackv1.EventScanProgress, map[string]int{"progress": progress})
}

func (e *eventSink) Done(summary types.ScanSummary) {
	e.publish(flashbackv1.EventScanDone, summary)
}

func (e *eventSink) publish(event string, payload any) {
	msg, err := flashbackv1.ToStruct(payload)
	if err != nil {
		e.log.Error("encoding event", "event", event, "error", err)
		return
	}
	e.b.Publish(event, e.projectID, msg)
}
