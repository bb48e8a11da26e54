// Package store provides Badger DB-backed storage for the daemon:
// projects, the current-project record, scan results and scan summaries.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/jamesainslie/flashback/pkg/flashback/filter"
	"github.com/jamesainslie/flashback/pkg/flashback/types"
)

// Key prefixes for different data types
const (
	prefixProject = "p:" // p:<id> -> Project
	prefixName    = "n:" // n:<folded name> -> id
	prefixResult  = "r:" // r:<project>:<item id> -> ResultItem
	prefixSummary = "s:" // s:<project> -> ScanSummary
	prefixMeta    = "m:" // metadata
	keyCurrent    = prefixMeta + "current_project"
)

var (
	// ErrNotFound is returned when a project does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a project name is already taken.
	ErrConflict = errors.New("already exists")

	// ErrInvalidName is returned for an empty project name.
	ErrInvalidName = errors.New("project name is required")
)

var itemNamespace = uuid.MustParse("7c1e3a52-4a8e-4f0e-9d43-5b1f0f6a2c11")

// Project is a stored project.
type Project struct {
	types.ProjectRef
	CreatedAt time.Time `json:"created_at"`
}

// ResultQuery selects one page of a project's results.
type ResultQuery struct {
	Page     int
	PageSize int
	Query    string
	Types    []string

	// ValidOnly hides items whose files have disappeared since the scan.
	ValidOnly bool
	// Since hides items modified before it. Zero shows all.
	Since   time.Time
	Exclude *filter.Ignore

	// Results are newest first unless SortBy or Ascending say otherwise.
	SortBy    filter.SortField
	Ascending bool
}

// Store is the daemon storage backed by Badger DB.
type Store struct {
	db *badger.DB
}

// Open opens or creates a store at the given path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable logging
	return open(opts)
}

// OpenInMemory opens a store that lives only as long as the process.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts)
}

func open(opts badger.Options) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Size returns the on-disk size of the LSM tree and value log.
func (s *Store) Size() int64 {
	lsm, vlog := s.db.Size()
	return lsm + vlog
}

// ItemID derives the stable id of a project's result for path, so a file
// found again by a later scan keeps its id.
func ItemID(projectID, path string) string {
	return uuid.NewSHA1(itemNamespace, []byte(projectID+"\x00"+filepath.Clean(path))).String()
}

func foldName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func projectKey(id string) []byte   { return []byte(prefixProject + id) }
func nameKey(name string) []byte    { return []byte(prefixName + foldName(name)) }
func summaryKey(id string) []byte   { return []byte(prefixSummary + id) }
func resultPrefix(id string) []byte { return []byte(prefixResult + id + ":") }
func resultKey(projectID, itemID string) []byte {
	return []byte(prefixResult + projectID + ":" + itemID)
}

func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// CreateProject stores a new project. Names are unique ignoring case and
// surrounding space; a taken name yields ErrConflict.
func (s *Store) CreateProject(in types.ProjectInput) (types.ProjectRef, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return types.ProjectRef{}, ErrInvalidName
	}

	p := Project{
		ProjectRef: types.ProjectRef{
			ID:          uuid.NewString(),
			Name:        name,
			TimeRange:   in.TimeRange,
			ScanScope:   in.ScanScope,
			ScanFolders: slices.Clone(in.ScanFolders),
		},
		CreatedAt: time.Now(),
	}
	if p.ScanScope == "" {
		p.ScanScope = types.ScopeAll
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(nameKey(name)); err == nil {
			return fmt.Errorf("project %q %w", name, ErrConflict)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(nameKey(name), []byte(p.ID)); err != nil {
			return err
		}
		return setJSON(txn, projectKey(p.ID), p)
	})
	if errors.Is(err, badger.ErrConflict) {
		return types.ProjectRef{}, fmt.Errorf("project %q %w", name, ErrConflict)
	}
	if err != nil {
		return types.ProjectRef{}, err
	}
	return p.ProjectRef, nil
}

// Project returns the project with id.
func (s *Store) Project(id string) (types.ProjectRef, error) {
	var p Project
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, projectKey(id), &p)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return types.ProjectRef{}, fmt.Errorf("project %s %w", id, ErrNotFound)
	}
	return p.ProjectRef, err
}

// ProjectByName returns the project named name.
func (s *Store) ProjectByName(name string) (types.ProjectRef, error) {
	var p Project
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nameKey(name))
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getJSON(txn, projectKey(string(id)), &p)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return types.ProjectRef{}, fmt.Errorf("project %q %w", name, ErrNotFound)
	}
	return p.ProjectRef, err
}

// DeleteProject removes a project by name along with its results, its
// summary and the current-project record if it pointed at it.
func (s *Store) DeleteProject(name string) (types.ProjectRef, error) {
	ref, err := s.ProjectByName(name)
	if err != nil {
		return types.ProjectRef{}, err
	}

	if err := s.deletePrefix(resultPrefix(ref.ID)); err != nil {
		return types.ProjectRef{}, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		for _, key := range [][]byte{projectKey(ref.ID), nameKey(ref.Name), summaryKey(ref.ID)} {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		item, err := txn.Get([]byte(keyCurrent))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		current, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if string(current) == ref.ID {
			return txn.Delete([]byte(keyCurrent))
		}
		return nil
	})
	return ref, err
}

// ListProjects returns one page of projects ordered by name.
func (s *Store) ListProjects(page, pageSize int) (types.ProjectPage, error) {
	var all []types.ProjectRef
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixProject)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var p Project
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				return err
			}
			all = append(all, p.ProjectRef)
		}
		return nil
	})
	if err != nil {
		return types.ProjectPage{}, err
	}

	slices.SortFunc(all, func(a, b types.ProjectRef) int {
		return strings.Compare(foldName(a.Name), foldName(b.Name))
	})

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = max(len(all), 1)
	}
	out := types.ProjectPage{
		Items:      []types.ProjectRef{},
		Total:      len(all),
		Page:       page,
		TotalPages: types.TotalPages(len(all), pageSize),
	}
	if start := (page - 1) * pageSize; start < len(all) {
		out.Items = all[start:min(start+pageSize, len(all))]
	}
	return out, nil
}

// CountProjects returns the number of stored projects.
func (s *Store) CountProjects() int {
	var n int
	_ = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixProject)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n
}

// CurrentProject returns the project the current-project record points
// at, or nil when there is none or it has been deleted.
func (s *Store) CurrentProject() (*types.ProjectRef, error) {
	var id string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyCurrent))
		if err != nil {
			return err
		}
		v, err := item.ValueCopy(nil)
		id = string(v)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ref, err := s.Project(id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// SetCurrentProject points the current-project record at id.
func (s *Store) SetCurrentProject(id string) error {
	if _, err := s.Project(id); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyCurrent), []byte(id))
	})
}

// PutResults stores items for a project. Items without an id get the
// stable id of their path.
func (s *Store) PutResults(projectID string, items []types.ResultItem) error {
	if len(items) == 0 {
		return nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, item := range items {
		if item.ID == "" {
			item.ID = ItemID(projectID, item.FilePath)
		}
		data, err := json.Marshal(item)
		if err != nil {
			return err
		}
		if err := wb.Set(resultKey(projectID, item.ID), data); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// ClearResults removes every result of a project.
func (s *Store) ClearResults(projectID string) error {
	return s.deletePrefix(resultPrefix(projectID))
}

// Results returns every stored result of a project, unordered.
func (s *Store) Results(projectID string) ([]types.ResultItem, error) {
	var out []types.ResultItem
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := resultPrefix(projectID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var item types.ResultItem
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &item)
			}); err != nil {
				return err
			}
			out = append(out, item)
		}
		return nil
	})
	return out, err
}

// ResultsPage filters, orders and pages a project's results.
func (s *Store) ResultsPage(projectID string, q ResultQuery) (types.ResultPage, error) {
	all, err := s.Results(projectID)
	if err != nil {
		return types.ResultPage{}, err
	}
	f := filter.New(
		filter.WithQuery(q.Query),
		filter.WithTypes(q.Types...),
		filter.WithValidOnly(q.ValidOnly),
		filter.WithSince(q.Since),
		filter.WithExclude(q.Exclude),
		filter.WithSortBy(q.SortBy),
		filter.WithSortDescending(!q.Ascending),
	)
	return filter.Paginate(f.Apply(all), q.Page, q.PageSize), nil
}

// MarkInvalid flags every result of a project at or under path as no
// longer present on disk. It returns the number of items changed.
func (s *Store) MarkInvalid(projectID, path string) (int, error) {
	var changed int
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		var updates []types.ResultItem
		prefix := resultPrefix(projectID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var item types.ResultItem
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &item)
			}); err != nil {
				return err
			}
			if item.IsValid && IsPathUnderRoot(item.FilePath, path) {
				item.IsValid = false
				updates = append(updates, item)
			}
		}
		for _, item := range updates {
			if err := setJSON(txn, resultKey(projectID, item.ID), item); err != nil {
				return err
			}
		}
		changed = len(updates)
		return nil
	})
	return changed, err
}

// PutSummary stores the summary of a project's last scan.
func (s *Store) PutSummary(projectID string, summary types.ScanSummary) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, summaryKey(projectID), summary)
	})
}

// Summary returns the summary of a project's last scan, or nil.
func (s *Store) Summary(projectID string) (*types.ScanSummary, error) {
	var summary types.ScanSummary
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, summaryKey(projectID), &summary)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// deletePrefix removes all entries with the given key prefix.
func (s *Store) deletePrefix(prefix []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var keysToDelete [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keysToDelete = append(keysToDelete, it.Item().KeyCopy(nil))
		}

		for _, key := range keysToDelete {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// IsPathUnderRoot checks if path is under root.
func IsPathUnderRoot(path, root string) bool {
	cleanRoot := filepath.Clean(root)
	cleanPath := filepath.Clean(path)
	return strings.HasPrefix(cleanPath, cleanRoot+string(filepath.Separator)) || cleanPath == cleanRoot
}
