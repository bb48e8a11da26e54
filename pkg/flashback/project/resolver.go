package project

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jamesainslie/flashback/pkg/flashback/logging"
	"github.com/jamesainslie/flashback/pkg/flashback/types"
)

const defaultRemoteTimeout = 10 * time.Second

// Source names where a resolved project came from.
type Source string

// Sources in lookup order.
const (
	SourceRemote     Source = "remote"
	SourceNavigation Source = "navigation"
	SourceLocal      Source = "local"
)

// Remote is the backend side of the resolver: the current-project record
// and name lookup. *Catalog implements it.
type Remote interface {
	Current(ctx context.Context) (*types.ProjectRef, error)
	SetCurrent(ctx context.Context, projectID string) error
	ByName(ctx context.Context, name string) (*types.ProjectRef, error)
}

// Resolver owns the notion of "current project". Reads go through
// ResolveCurrent and writes through SelectCurrent; nothing else touches the
// underlying sources.
type Resolver struct {
	remote Remote
	local  LocalStore
	nav    *Navigation
	log    *logging.Logger

	remoteTimeout time.Duration

	// writes orders asynchronous remote writes; gen discards stale ones.
	writes   sync.Mutex
	genMu    sync.Mutex
	gen      uint64
	inflight sync.WaitGroup
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRemoteTimeout bounds each asynchronous remote write.
func WithRemoteTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.remoteTimeout = d
		}
	}
}

// NewResolver returns a resolver over the three sources. A nil nav gets a
// fresh Navigation.
func NewResolver(remote Remote, local LocalStore, nav *Navigation, opts ...Option) *Resolver {
	if nav == nil {
		nav = &Navigation{}
	}
	r := &Resolver{
		remote:        remote,
		local:         local,
		nav:           nav,
		log:           logging.Get("project"),
		remoteTimeout: defaultRemoteTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Navigation returns the navigation source so the view can record the
// project carried by a screen transition.
func (r *Resolver) Navigation() *Navigation { return r.nav }

// ResolveCurrent checks the remote record, then navigation state, then the
// local selection, and returns the first hit. A failing source counts as a
// miss. A hit carrying only a name is resolved by name and promoted into
// every source; if that fails the lookup moves on.
func (r *Resolver) ResolveCurrent(ctx context.Context) (*types.ProjectRef, bool) {
	ref, _, ok := r.resolve(ctx)
	return ref, ok
}

// ResolveWithSource is ResolveCurrent that also reports which source hit.
func (r *Resolver) ResolveWithSource(ctx context.Context) (*types.ProjectRef, Source, bool) {
	return r.resolve(ctx)
}

func (r *Resolver) resolve(ctx context.Context) (*types.ProjectRef, Source, bool) {
	lookups := []struct {
		source Source
		load   func() (*types.ProjectRef, error)
	}{
		{SourceRemote, func() (*types.ProjectRef, error) { return r.remote.Current(ctx) }},
		{SourceNavigation, func() (*types.ProjectRef, error) { return r.nav.Get(), nil }},
		{SourceLocal, r.local.Load},
	}

	for _, src := range lookups {
		ref, err := src.load()
		if err != nil {
			r.log.Debug("project source unavailable", "source", src.source, "error", err)
			continue
		}
		if ref == nil || (ref.ID == "" && ref.Name == "") {
			continue
		}
		if ref.HasID() {
			return ref, src.source, true
		}

		healed, err := r.EnsureID(ctx, ref)
		if err != nil {
			r.log.Warn("could not resolve project by name", "source", src.source, "name", ref.Name, "error", err)
			continue
		}
		return healed, src.source, true
	}
	return nil, "", false
}

// EnsureID returns ref unchanged if it has an id. Otherwise it looks the
// project up by name and promotes the found project through SelectCurrent,
// repairing sources that only knew the name.
func (r *Resolver) EnsureID(ctx context.Context, ref *types.ProjectRef) (*types.ProjectRef, error) {
	if ref == nil {
		return nil, ErrNoProject
	}
	if ref.HasID() {
		return ref, nil
	}
	if ref.Name == "" {
		return nil, ErrNoProject
	}

	found, err := r.remote.ByName(ctx, ref.Name)
	if err != nil {
		return nil, err
	}
	if !found.HasID() {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, ref.Name)
	}
	r.log.Info("promoting project found by name", "name", found.Name, "id", found.ID)
	if err := r.SelectCurrent(ctx, *found); err != nil {
		return nil, err
	}
	return found, nil
}

// SelectCurrent makes ref the current project. The local selection is
// written synchronously and navigation state updated; the remote record is
// written in the background, and a failure there is logged without undoing
// the local change. A ref without an id is resolved by name first.
func (r *Resolver) SelectCurrent(ctx context.Context, ref types.ProjectRef) error {
	if !ref.HasID() {
		_, err := r.EnsureID(ctx, &ref)
		return err
	}

	if err := r.local.Save(&ref); err != nil {
		return fmt.Errorf("saving selection: %w", err)
	}
	r.nav.Set(&ref)

	r.genMu.Lock()
	r.gen++
	gen := r.gen
	r.genMu.Unlock()

	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		r.writeRemote(context.WithoutCancel(ctx), gen, ref)
	}()
	return nil
}

func (r *Resolver) writeRemote(ctx context.Context, gen uint64, ref types.ProjectRef) {
	r.writes.Lock()
	defer r.writes.Unlock()

	r.genMu.Lock()
	stale := gen != r.gen
	r.genMu.Unlock()
	if stale {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.remoteTimeout)
	defer cancel()

	if err := r.remote.SetCurrent(ctx, ref.ID); err != nil {
		r.log.Warn("remote current project not updated", "id", ref.ID, "error", err)
		return
	}
	r.log.Debug("remote current project updated", "id", ref.ID)
}

// Forget clears the local selection and navigation state, used after the
// current project is deleted.
func (r *Resolver) Forget(ref types.ProjectRef) error {
	if local, err := r.local.Load(); err == nil && local != nil && sameProject(*local, ref) {
		if err := r.local.Save(nil); err != nil {
			return fmt.Errorf("clearing selection: %w", err)
		}
	}
	if nav := r.nav.Get(); nav != nil && sameProject(*nav, ref) {
		r.nav.Clear()
	}
	return nil
}

// Wait blocks until background remote writes have finished.
func (r *Resolver) Wait() {
	r.inflight.Wait()
}

func sameProject(a, b types.ProjectRef) bool {
	if a.ID != "" && b.ID != "" {
		return a.ID == b.ID
	}
	return a.Name != "" && a.Name == b.Name
}

// IsResolutionMiss reports whether err means no usable project was found.
func IsResolutionMiss(err error) bool {
	return errors.Is(err, ErrNoProject) || errors.Is(err, ErrProjectNotFound)
}
