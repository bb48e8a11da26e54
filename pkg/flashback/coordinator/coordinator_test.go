package coordinator_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	flashbackv1 "github.com/jamesainslie/flashback/pkg/api/flashback/v1"
	"github.com/jamesainslie/flashback/pkg/flashback/coordinator"
	"github.com/jamesainslie/flashback/pkg/flashback/project"
	"github.com/jamesainslie/flashback/pkg/flashback/results"
	"github.com/jamesainslie/flashback/pkg/flashback/session"
	"github.com/jamesainslie/flashback/pkg/flashback/types"
)

// fakeBackend is an in-memory daemon speaking camelCase arguments.
type fakeBackend struct {
	mu        sync.Mutex
	projects  map[string]types.ProjectRef
	current   string
	calls     map[string]int
	startErr  error
	subs      map[string]chan *structpb.Struct
	lastQuery map[string]any
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		projects: map[string]types.ProjectRef{},
		calls:    map[string]int{},
		subs:     map[string]chan *structpb.Struct{},
	}
}

func (b *fakeBackend) Invoke(_ context.Context, command string, args map[string]any) (*structpb.Value, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[command]++

	switch command {
	case flashbackv1.CmdCreateProject:
		var in types.ProjectInput
		v, _ := flashbackv1.ToValue(args["projectInput"])
		if err := flashbackv1.Decode(v, &in); err != nil {
			return nil, err
		}
		if _, ok := b.projects[in.Name]; ok {
			return nil, status.Errorf(codes.AlreadyExists, "project %q already exists", in.Name)
		}
		ref := types.ProjectRef{ID: uuid.NewString(), Name: in.Name, TimeRange: in.TimeRange, ScanScope: in.ScanScope}
		b.projects[in.Name] = ref
		return flashbackv1.ToValue(ref)
	case flashbackv1.CmdGetProjectByName:
		ref, ok := b.projects[fmt.Sprint(args["name"])]
		if !ok {
			return structpb.NewNullValue(), nil
		}
		return flashbackv1.ToValue(ref)
	case flashbackv1.CmdDeleteProject:
		delete(b.projects, fmt.Sprint(args["name"]))
		return structpb.NewNullValue(), nil
	case flashbackv1.CmdSetCurrentProject:
		b.current = fmt.Sprint(args["projectId"])
		return structpb.NewNullValue(), nil
	case flashbackv1.CmdGetCurrentProject:
		for _, ref := range b.projects {
			if ref.ID == b.current {
				return flashbackv1.ToValue(ref)
			}
		}
		return structpb.NewNullValue(), nil
	case flashbackv1.CmdStartScan:
		if b.startErr != nil {
			return nil, b.startErr
		}
		return structpb.NewNullValue(), nil
	case flashbackv1.CmdGetResultsPage:
		b.lastQuery = args
		page, _ := args["page"].(int)
		return flashbackv1.ToValue(types.ResultPage{
			Items:      []types.ResultItem{{ID: fmt.Sprintf("r-%d", b.calls[command]), FileType: "md", IsValid: true}},
			Total:      1,
			Page:       page,
			TotalPages: 1,
		})
	case flashbackv1.CmdGetScanSummary:
		return flashbackv1.ToValue(types.ScanSummary{RepoCount: 2, DocumentCount: 7})
	case flashbackv1.CmdListProjectsPaged:
		items := make([]types.ProjectRef, 0, len(b.projects))
		for _, ref := range b.projects {
			items = append(items, ref)
		}
		return flashbackv1.ToValue(types.ProjectPage{Items: items, Total: len(items), Page: 1, TotalPages: 1})
	}
	return nil, status.Errorf(codes.Unimplemented, "unknown command %s", command)
}

func (b *fakeBackend) Subscribe(ctx context.Context, event, _ string) (<-chan *structpb.Struct, error) {
	ch := make(chan *structpb.Struct, 64)
	b.mu.Lock()
	b.subs[event] = ch
	b.mu.Unlock()
	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.subs[event] == ch {
			delete(b.subs, event)
		}
		close(ch)
	}()
	return ch, nil
}

func (b *fakeBackend) emit(t *testing.T, event string, payload map[string]any) {
	t.Helper()
	msg, err := flashbackv1.ToStruct(payload)
	require.NoError(t, err)
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[event]; ok {
		ch <- msg
	}
}

func (b *fakeBackend) count(command string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[command]
}

func newCoordinator(t *testing.T, b *fakeBackend, local project.LocalStore, nav *project.Navigation) *coordinator.Coordinator {
	t.Helper()
	c := coordinator.New(b, coordinator.Options{
		Local:      local,
		Navigation: nav,
		Debounce:   10 * time.Millisecond,
		Linger:     time.Millisecond,
	})
	t.Cleanup(c.Close)
	return c
}

func waitSession(t *testing.T, c *coordinator.Coordinator, cond func(types.ScanSession) bool) types.ScanSession {
	t.Helper()
	var snap types.ScanSession
	require.Eventually(t, func() bool {
		snap = c.Session()
		return cond(snap)
	}, 2*time.Second, 5*time.Millisecond)
	return snap
}

func TestCurrentProjectMiss(t *testing.T) {
	c := newCoordinator(t, newFakeBackend(), nil, nil)

	_, err := c.CurrentProject(context.Background())
	require.ErrorIs(t, err, coordinator.ErrNoProject)

	_, err = c.StartScan(context.Background())
	require.ErrorIs(t, err, coordinator.ErrNoProject)

	require.ErrorIs(t, c.SetFilter(context.Background(), "x", nil), coordinator.ErrNoProject)
}

func TestCreateProjectTwiceSelectsSameProject(t *testing.T) {
	b := newFakeBackend()
	local := project.NewMemoryStore(nil)
	c := newCoordinator(t, b, local, nil)

	first, err := c.CreateProject(context.Background(), types.ProjectInput{Name: "Alpha"})
	require.NoError(t, err)
	second, err := c.CreateProject(context.Background(), types.ProjectInput{Name: "Alpha"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	active, ok := c.Active()
	require.True(t, ok)
	assert.Equal(t, first.ID, active.ID)

	saved, err := local.Load()
	require.NoError(t, err)
	assert.Equal(t, first.ID, saved.ID)
}

func TestCurrentProjectPrefersNavigationWhenRemoteEmpty(t *testing.T) {
	b := newFakeBackend()
	nav := &project.Navigation{}
	nav.Set(&types.ProjectRef{ID: "nav-id", Name: "Nav"})
	local := project.NewMemoryStore(&types.ProjectRef{ID: "local-id", Name: "Local"})
	c := newCoordinator(t, b, local, nav)

	ref, err := c.CurrentProject(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "nav-id", ref.ID)
}

func TestNavigateByNameHealsSelection(t *testing.T) {
	b := newFakeBackend()
	local := project.NewMemoryStore(nil)
	c := newCoordinator(t, b, local, nil)

	created, err := c.Catalog().Create(context.Background(), types.ProjectInput{Name: "Beta"})
	require.NoError(t, err)

	ref, err := c.Navigate(context.Background(), types.ProjectRef{Name: "Beta"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, ref.ID)

	saved, err := local.Load()
	require.NoError(t, err)
	assert.Equal(t, created.ID, saved.ID)
}

func TestNavigateUnknownName(t *testing.T) {
	c := newCoordinator(t, newFakeBackend(), nil, nil)
	_, err := c.Navigate(context.Background(), types.ProjectRef{Name: "Ghost"})
	require.ErrorIs(t, err, coordinator.ErrNoProject)
}

func TestScanDrivesResults(t *testing.T) {
	b := newFakeBackend()
	c := newCoordinator(t, b, nil, nil)

	_, err := c.CreateProject(context.Background(), types.ProjectInput{Name: "Alpha"})
	require.NoError(t, err)
	assert.Equal(t, 1, b.count(flashbackv1.CmdGetResultsPage))

	snap, err := c.StartScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StatusRunning, snap.Status)

	b.emit(t, flashbackv1.EventScanLog, map[string]any{"icon": types.IconFolder, "text": "scanning directory: /home/a/Work"})
	for _, p := range []int{5, 12, 9, 18, 25, 31, 60} {
		b.emit(t, flashbackv1.EventScanProgress, map[string]any{"progress": p})
	}
	waitSession(t, c, func(s types.ScanSession) bool { return s.Progress == 60 })

	b.emit(t, flashbackv1.EventScanDone, map[string]any{"git_repos": 3, "documents": 12})
	final := waitSession(t, c, func(s types.ScanSession) bool { return s.Status == types.StatusComplete })
	assert.Equal(t, "/home/a/Work", final.LastFolder)
	require.NotNil(t, final.Summary)
	assert.Equal(t, 12, final.Summary.DocumentCount)

	// the initial page, refreshes at 12, 25 and 60, and one on completion
	requireFetches(t, b, 5)

	select {
	case u := <-c.Updates():
		assert.NotEmpty(t, u.Project.ID)
	case <-time.After(time.Second):
		t.Fatal("no update published")
	}
}

// requireFetches waits for exactly n result page requests and checks no
// more follow.
func requireFetches(t *testing.T, b *fakeBackend, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return b.count(flashbackv1.CmdGetResultsPage) == n
	}, 2*time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool {
		return b.count(flashbackv1.CmdGetResultsPage) > n
	}, 100*time.Millisecond, 10*time.Millisecond)
}

func TestProgressRefreshesEveryTenPoints(t *testing.T) {
	b := newFakeBackend()
	c := newCoordinator(t, b, nil, nil)

	_, err := c.CreateProject(context.Background(), types.ProjectInput{Name: "Alpha"})
	require.NoError(t, err)
	requireFetches(t, b, 1)

	_, err = c.StartScan(context.Background())
	require.NoError(t, err)
	for p := 1; p <= 35; p++ {
		b.emit(t, flashbackv1.EventScanProgress, map[string]any{"progress": p})
	}
	waitSession(t, c, func(s types.ScanSession) bool { return s.Progress == 35 })
	requireFetches(t, b, 4)

	b.emit(t, flashbackv1.EventScanDone, map[string]any{"git_repos": 1, "documents": 2})
	waitSession(t, c, func(s types.ScanSession) bool { return s.Status == types.StatusComplete })
	requireFetches(t, b, 5)
}

func TestStartFailureIsReported(t *testing.T) {
	b := newFakeBackend()
	b.startErr = status.Error(codes.Internal, "walker crashed")
	c := newCoordinator(t, b, nil, nil)

	_, err := c.CreateProject(context.Background(), types.ProjectInput{Name: "Alpha"})
	require.NoError(t, err)

	snap, err := c.StartScan(context.Background())
	require.ErrorIs(t, err, session.ErrStartFailed)
	assert.Equal(t, types.StatusFailed, snap.Status)
	require.NotEmpty(t, snap.LogTail)
	assert.Equal(t, types.IconError, snap.LogTail[len(snap.LogTail)-1].Icon)

	b.mu.Lock()
	b.startErr = nil
	b.mu.Unlock()

	snap, err = c.Rescan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StatusRunning, snap.Status)
	assert.Empty(t, snap.LogTail)
}

func TestLeaveDetachesSession(t *testing.T) {
	b := newFakeBackend()
	c := newCoordinator(t, b, nil, nil)

	_, err := c.CreateProject(context.Background(), types.ProjectInput{Name: "Alpha"})
	require.NoError(t, err)
	_, err = c.StartScan(context.Background())
	require.NoError(t, err)

	c.Leave()
	_, ok := c.Active()
	assert.False(t, ok)
	assert.Equal(t, types.StatusIdle, c.Session().Status)

	_, err = c.GoToPage(context.Background(), 2)
	require.ErrorIs(t, err, coordinator.ErrNoProject)
}

func TestFilterResetsPage(t *testing.T) {
	b := newFakeBackend()
	c := newCoordinator(t, b, nil, nil)

	_, err := c.CreateProject(context.Background(), types.ProjectInput{Name: "Alpha"})
	require.NoError(t, err)
	_, err = c.GoToPage(context.Background(), 3)
	require.NoError(t, err)

	require.NoError(t, c.SetFilter(context.Background(), "", []string{"pdf"}))
	b.mu.Lock()
	q := b.lastQuery
	b.mu.Unlock()
	assert.Equal(t, 1, q["page"])
	assert.Equal(t, []string{"pdf"}, q["typeFilters"])
	assert.Equal(t, 1, c.Query().Page)
}

func TestSetViewSendsOrdering(t *testing.T) {
	b := newFakeBackend()
	c := newCoordinator(t, b, nil, nil)

	require.ErrorIs(t, c.SetView(context.Background(), results.View{SortBy: "size"}), coordinator.ErrNoProject)

	_, err := c.CreateProject(context.Background(), types.ProjectInput{Name: "Alpha"})
	require.NoError(t, err)
	_, err = c.GoToPage(context.Background(), 2)
	require.NoError(t, err)

	view := results.View{SortBy: "size", ValidOnly: true, Since: "7d", Exclude: []string{"*.tmp"}}
	require.NoError(t, c.SetView(context.Background(), view))
	b.mu.Lock()
	q := b.lastQuery
	b.mu.Unlock()
	assert.Equal(t, 1, q["page"])
	assert.Equal(t, "size", q["sortBy"])
	assert.Equal(t, true, q["validOnly"])
	assert.Equal(t, "7d", q["since"])
	assert.Equal(t, []string{"*.tmp"}, q["exclude"])
	assert.NotContains(t, q, "ascending")
	assert.Equal(t, view, c.Query().View)
}

func TestDeleteActiveProject(t *testing.T) {
	b := newFakeBackend()
	local := project.NewMemoryStore(nil)
	c := newCoordinator(t, b, local, nil)

	_, err := c.CreateProject(context.Background(), types.ProjectInput{Name: "Alpha"})
	require.NoError(t, err)

	require.NoError(t, c.DeleteProject(context.Background(), "Alpha"))
	_, ok := c.Active()
	assert.False(t, ok)

	saved, err := local.Load()
	require.NoError(t, err)
	assert.Nil(t, saved)
}

func TestSummary(t *testing.T) {
	b := newFakeBackend()
	c := newCoordinator(t, b, nil, nil)

	_, err := c.CreateProject(context.Background(), types.ProjectInput{Name: "Alpha"})
	require.NoError(t, err)

	summary, err := c.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.RepoCount)
}
