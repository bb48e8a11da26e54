package project_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	flashbackv1 "github.com/jamesainslie/flashback/pkg/api/flashback/v1"
	"github.com/jamesainslie/flashback/pkg/flashback/project"
	"github.com/jamesainslie/flashback/pkg/flashback/rpc"
	"github.com/jamesainslie/flashback/pkg/flashback/rpc/mocks"
	"github.com/jamesainslie/flashback/pkg/flashback/types"
)

// projectBackend is an in-memory backend that only accepts snake_case
// argument names, so every call goes through the shim's retry.
type projectBackend struct {
	mu      sync.Mutex
	byName  map[string]types.ProjectRef
	current string
	calls   map[string]int
}

func newProjectBackend() *projectBackend {
	return &projectBackend{byName: map[string]types.ProjectRef{}, calls: map[string]int{}}
}

func (b *projectBackend) Invoke(_ context.Context, command string, args map[string]any) (*structpb.Value, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[command]++

	need := func(key string) (any, error) {
		v, ok := args[key]
		if !ok {
			return nil, status.Errorf(codes.InvalidArgument,
				"invalid args `%s` for command `%s`: command %s missing required key %s", key, command, command, key)
		}
		return v, nil
	}

	switch command {
	case flashbackv1.CmdCreateProject:
		raw, err := need("project_input")
		if err != nil {
			return nil, err
		}
		var in types.ProjectInput
		v, _ := flashbackv1.ToValue(raw)
		if err := flashbackv1.Decode(v, &in); err != nil {
			return nil, err
		}
		if _, taken := b.byName[in.Name]; taken {
			return nil, status.Errorf(codes.AlreadyExists, "project %q already exists", in.Name)
		}
		ref := types.ProjectRef{ID: uuid.NewString(), Name: in.Name, TimeRange: in.TimeRange, ScanScope: in.ScanScope}
		b.byName[in.Name] = ref
		return flashbackv1.ToValue(ref)
	case flashbackv1.CmdGetProjectByName:
		name, err := need("name")
		if err != nil {
			return nil, err
		}
		ref, ok := b.byName[fmt.Sprint(name)]
		if !ok {
			return structpb.NewNullValue(), nil
		}
		return flashbackv1.ToValue(ref)
	case flashbackv1.CmdDeleteProject:
		name, err := need("name")
		if err != nil {
			return nil, err
		}
		if _, ok := b.byName[fmt.Sprint(name)]; !ok {
			return nil, status.Errorf(codes.NotFound, "project %v not found", name)
		}
		delete(b.byName, fmt.Sprint(name))
		return structpb.NewNullValue(), nil
	case flashbackv1.CmdSetCurrentProject:
		id, err := need("project_id")
		if err != nil {
			return nil, err
		}
		b.current = fmt.Sprint(id)
		return structpb.NewNullValue(), nil
	case flashbackv1.CmdGetCurrentProject:
		for _, ref := range b.byName {
			if ref.ID == b.current {
				return flashbackv1.ToValue(ref)
			}
		}
		return structpb.NewNullValue(), nil
	case flashbackv1.CmdListProjectsPaged:
		if _, err := need("page_size"); err != nil {
			return nil, err
		}
		items := make([]types.ProjectRef, 0, len(b.byName))
		for _, ref := range b.byName {
			items = append(items, ref)
		}
		return flashbackv1.ToValue(types.ProjectPage{Items: items, Total: len(items), Page: 1, TotalPages: 1})
	}
	return nil, status.Errorf(codes.Unimplemented, "unknown command %s", command)
}

func newCatalog(b *projectBackend) *project.Catalog {
	return project.NewCatalog(rpc.New(b, rpc.DefaultPolicy()))
}

func TestCreateTwiceReturnsSameProject(t *testing.T) {
	backend := newProjectBackend()
	catalog := newCatalog(backend)
	ctx := context.Background()

	first, err := catalog.Create(ctx, types.ProjectInput{Name: "Alpha", TimeRange: "30d"})
	require.NoError(t, err)
	require.True(t, first.HasID())
	assert.Equal(t, types.ScopeAll, first.ScanScope)

	second, err := catalog.Create(ctx, types.ProjectInput{Name: "Alpha", TimeRange: "7d"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "30d", second.TimeRange)
}

func TestCreateRequiresName(t *testing.T) {
	_, err := newCatalog(newProjectBackend()).Create(context.Background(), types.ProjectInput{Name: "  "})
	assert.Error(t, err)
}

func TestByNameMiss(t *testing.T) {
	_, err := newCatalog(newProjectBackend()).ByName(context.Background(), "ghost")
	assert.ErrorIs(t, err, project.ErrProjectNotFound)
}

func TestDelete(t *testing.T) {
	backend := newProjectBackend()
	catalog := newCatalog(backend)
	ctx := context.Background()

	_, err := catalog.Create(ctx, types.ProjectInput{Name: "Beta"})
	require.NoError(t, err)
	require.NoError(t, catalog.Delete(ctx, "Beta"))
	assert.ErrorIs(t, catalog.Delete(ctx, "Beta"), project.ErrProjectNotFound)
}

func TestListAndCurrent(t *testing.T) {
	backend := newProjectBackend()
	catalog := newCatalog(backend)
	ctx := context.Background()

	ref, err := catalog.Create(ctx, types.ProjectInput{Name: "Gamma"})
	require.NoError(t, err)

	page, err := catalog.List(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	cur, err := catalog.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, cur)

	require.NoError(t, catalog.SetCurrent(ctx, ref.ID))
	cur, err = catalog.Current(ctx)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, ref.ID, cur.ID)
}

func TestCreateSurfacesOtherErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	inv := mocks.NewMockInvoker(ctrl)
	inv.EXPECT().
		Invoke(gomock.Any(), flashbackv1.CmdCreateProject, gomock.Any()).
		Return(nil, status.Error(codes.Internal, "store closed")).
		Times(1)

	_, err := project.NewCatalog(rpc.New(inv, rpc.DefaultPolicy())).
		Create(context.Background(), types.ProjectInput{Name: "Delta"})
	require.Error(t, err)
	assert.Equal(t, "store closed", rpc.Message(err))
}
