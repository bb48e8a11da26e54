// Package scanner is the daemon's scan job. It walks a project's roots
// with fastwalk, records git repositories, documents and chat data
// locations as results, and reports its work as log, progress and done
// events.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"

	"github.com/jamesainslie/flashback/pkg/flashback/filter"
	"github.com/jamesainslie/flashback/pkg/flashback/logging"
	"github.com/jamesainslie/flashback/pkg/flashback/types"
)

// Progress milestones.
const (
	ProgressChats     = 18
	ProgressWalked    = 60
	ProgressDocuments = 84
	ProgressDone      = 100
)

// FolderPrefix starts the log line announcing each walked root.
const FolderPrefix = "scanning directory: "

// DefaultBatchSize is how many results are buffered before being written.
const DefaultBatchSize = 200

// Sink receives the events of one scan. Log may be called from several
// goroutines at once.
type Sink interface {
	Log(entry types.LogEntry)
	Progress(progress int)
	Done(summary types.ScanSummary)
}

// ResultWriter persists what a scan finds.
type ResultWriter interface {
	ClearResults(projectID string) error
	PutResults(projectID string, items []types.ResultItem) error
	PutSummary(projectID string, summary types.ScanSummary) error
}

// ChatCandidate is a place a chat application may keep its data.
type ChatCandidate struct {
	App  string
	Path string
}

// Options configure a Scanner.
type Options struct {
	// Home resolves relative roots. Defaults to the user's home directory.
	Home string

	// Roots are walked for projects with the ALL scope.
	Roots []string

	// Ignore prunes directories and files from the walk.
	Ignore *filter.Ignore

	// Chats overrides the platform's chat data candidates.
	Chats []ChatCandidate

	// Workers is the number of concurrent walk workers. Zero sizes the
	// pool from the CPU count.
	Workers int

	BatchSize int
	Now       func() time.Time
}

// Scanner runs scans. It is safe for concurrent use on different projects.
type Scanner struct {
	store ResultWriter
	opts  Options
	log   *logging.Logger
}

// New creates a scanner writing to store.
func New(store ResultWriter, opts Options) *Scanner {
	if opts.Home == "" {
		opts.Home, _ = os.UserHomeDir()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers()
	} else {
		opts.Workers = Workers(0, opts.Workers)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Chats == nil {
		opts.Chats = chatCandidates(opts.Home)
	}
	return &Scanner{store: store, opts: opts, log: logging.Get("scanner")}
}

// Roots returns the absolute directories a scan of project walks.
func (s *Scanner) Roots(project types.ProjectRef) []string {
	src := s.opts.Roots
	if project.ScanScope == types.ScopeCustom {
		src = project.ScanFolders
	}
	roots := make([]string, 0, len(src))
	seen := make(map[string]bool, len(src))
	for _, r := range src {
		if r == "" {
			continue
		}
		if !filepath.IsAbs(r) {
			r = filepath.Join(s.opts.Home, r)
		}
		r = filepath.Clean(r)
		if !seen[r] {
			seen[r] = true
			roots = append(roots, r)
		}
	}
	return roots
}

// walkState is shared by fastwalk's callbacks, which run concurrently.
type walkState struct {
	mu      sync.Mutex
	repos   int
	docs    int
	pending []types.ResultItem
}

// Run scans project, replacing its stored results. Events go to sink; done
// is always sent, carrying what was found before any failure.
func (s *Scanner) Run(ctx context.Context, project types.ProjectRef, sink Sink) (types.ScanSummary, error) {
	log := s.log.With("project", project.ID)
	started := s.opts.Now()
	summary := types.ScanSummary{ChatLocations: []types.ChatLocation{}}

	err := s.run(ctx, project, sink, &summary)
	if err != nil {
		sink.Log(types.LogEntry{Icon: types.IconError, Text: fmt.Sprintf("scan stopped: %v", err)})
		log.Error("scan failed", "error", err)
	} else {
		log.Info("scan complete", "repos", summary.RepoCount, "documents", summary.DocumentCount,
			"elapsed", s.opts.Now().Sub(started))
	}
	if perr := s.store.PutSummary(project.ID, summary); perr != nil {
		log.Warn("summary not saved", "error", perr)
		err = errors.Join(err, perr)
	}
	if err == nil {
		sink.Progress(ProgressDone)
	}
	sink.Done(summary)
	return summary, err
}

func (s *Scanner) run(ctx context.Context, project types.ProjectRef, sink Sink, summary *types.ScanSummary) error {
	cutoff, err := filter.Cutoff(project.TimeRange, s.opts.Now())
	if err != nil {
		return fmt.Errorf("time range: %w", err)
	}
	if err := s.store.ClearResults(project.ID); err != nil {
		return fmt.Errorf("clearing previous results: %w", err)
	}

	sink.Log(types.LogEntry{Icon: types.IconInfo, Text: fmt.Sprintf("scan started for %s", project.Label())})

	var chatItems []types.ResultItem
	for _, c := range s.opts.Chats {
		if _, err := os.Stat(c.Path); err != nil {
			continue
		}
		summary.ChatLocations = append(summary.ChatLocations, types.ChatLocation{App: c.App, Path: c.Path})
		chatItems = append(chatItems, s.item(c.Path, "chat", c.App, time.Time{}, 0))
		sink.Log(types.LogEntry{Icon: types.IconInfo, Text: fmt.Sprintf("found chat data: %s (%s)", c.Path, c.App)})
	}
	if err := s.store.PutResults(project.ID, chatItems); err != nil {
		return err
	}
	sink.Progress(ProgressChats)

	roots := s.Roots(project)
	state := &walkState{}
	for i, root := range roots {
		if err := ctx.Err(); err != nil {
			return err
		}
		if info, err := os.Stat(root); err == nil && info.IsDir() {
			sink.Log(types.LogEntry{Icon: types.IconFolder, Text: FolderPrefix + root})
			if err := s.walk(ctx, project.ID, root, cutoff, state, sink); err != nil {
				return err
			}
		}
		pct := ProgressChats + (i+1)*(ProgressWalked-ProgressChats)/max(len(roots), 1)
		sink.Progress(min(pct, ProgressWalked))
	}
	if err := s.flush(project.ID, state, 0); err != nil {
		return err
	}

	summary.RepoCount = state.repos
	summary.DocumentCount = state.docs
	sink.Log(types.LogEntry{Icon: types.IconInfo, Text: fmt.Sprintf("document count complete: %d candidate files", state.docs)})
	sink.Progress(ProgressDocuments)
	sink.Log(types.LogEntry{Icon: types.IconSuccess, Text: fmt.Sprintf("found %d repositories and %d documents", state.repos, state.docs)})
	return nil
}

// walk records repositories and documents under root.
func (s *Scanner) walk(ctx context.Context, projectID, root string, cutoff time.Time, state *walkState, sink Sink) error {
	conf := fastwalk.Config{Follow: false, NumWorkers: s.opts.Workers}
	source := filepath.Base(root)

	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, walkErr error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if walkErr != nil {
			return nil //nolint:nilerr // Intentionally skip errors and continue walking
		}

		if d.IsDir() {
			if d.Name() == ".git" {
				repo := filepath.Dir(path)
				sink.Log(types.LogEntry{Icon: types.IconInfo, Text: "found git repository: " + repo})
				state.mu.Lock()
				state.repos++
				state.pending = append(state.pending, s.item(repo, "git", source, dirModTime(d), 0))
				state.mu.Unlock()
				return filepath.SkipDir
			}
			if path != root && s.opts.Ignore.Match(path) {
				return filepath.SkipDir
			}
			return nil
		}

		if s.opts.Ignore.Match(path) {
			return nil
		}
		fileType := filter.TypeOf(path)
		if !isDocument(fileType) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil //nolint:nilerr // Intentionally skip entries we can't stat
		}
		if !cutoff.IsZero() && info.ModTime().Before(cutoff) {
			return nil
		}

		state.mu.Lock()
		state.docs++
		state.pending = append(state.pending, s.item(path, fileType, source, info.ModTime(), info.Size()))
		state.mu.Unlock()
		return s.flush(projectID, state, s.opts.BatchSize)
	})
	if err != nil && !errors.Is(err, filepath.SkipDir) {
		return err
	}
	return nil
}

// flush writes pending results once at least threshold are buffered.
func (s *Scanner) flush(projectID string, state *walkState, threshold int) error {
	state.mu.Lock()
	if len(state.pending) == 0 || len(state.pending) < threshold {
		state.mu.Unlock()
		return nil
	}
	batch := state.pending
	state.pending = nil
	state.mu.Unlock()
	return s.store.PutResults(projectID, batch)
}

func (s *Scanner) item(path, fileType, source string, modified time.Time, size int64) types.ResultItem {
	return types.ResultItem{
		FilePath:   path,
		FileType:   fileType,
		Source:     source,
		CreatedAt:  s.opts.Now(),
		ModifiedAt: modified,
		SizeBytes:  size,
		IsValid:    true,
	}
}

func dirModTime(d fs.DirEntry) time.Time {
	info, err := d.Info()
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

func isDocument(fileType string) bool {
	for _, t := range filter.DocumentTypes {
		if t == fileType {
			return true
		}
	}
	return false
}
