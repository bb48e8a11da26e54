// Package types holds the data model shared by the coordinator, the CLI
// and the daemon. JSON tags follow the backend wire format.
package types

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// ScanScope selects which folders a project scan walks.
type ScanScope string

// Scan scopes understood by the backend.
const (
	ScopeAll    ScanScope = "ALL"
	ScopeCustom ScanScope = "CUSTOM"
)

// ParseScanScope accepts ALL or CUSTOM in any case. Empty means ALL.
func ParseScanScope(s string) (ScanScope, error) {
	switch ScanScope(strings.ToUpper(strings.TrimSpace(s))) {
	case ScopeAll, "":
		return ScopeAll, nil
	case ScopeCustom:
		return ScopeCustom, nil
	default:
		return "", fmt.Errorf("unknown scan scope %q (want ALL or CUSTOM)", s)
	}
}

// ProjectRef identifies a project. Identity is ID; a ref that carries only
// a name must be resolved before any scan operation.
type ProjectRef struct {
	ID          string    `json:"id,omitempty"`
	Name        string    `json:"name"`
	TimeRange   string    `json:"time_range,omitempty"`
	ScanScope   ScanScope `json:"scan_scope,omitempty"`
	ScanFolders []string  `json:"scan_folders,omitempty"`
}

// HasID reports whether the ref carries a backend identity.
func (p *ProjectRef) HasID() bool {
	return p != nil && p.ID != ""
}

// Label is the name when known, otherwise the id.
func (p *ProjectRef) Label() string {
	if p == nil {
		return ""
	}
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

// ProjectInput is the payload of create_project.
type ProjectInput struct {
	Name        string    `json:"name"`
	TimeRange   string    `json:"time_range"`
	ScanScope   ScanScope `json:"scan_scope"`
	ScanFolders []string  `json:"scan_folders,omitempty"`
}

// ProjectPage is one page of list_projects_paged.
type ProjectPage struct {
	Items      []ProjectRef `json:"items"`
	Total      int          `json:"total"`
	Page       int          `json:"page"`
	TotalPages int          `json:"total_pages"`
}

// SessionStatus is the state of a scan session.
type SessionStatus int

// Session states. Idle is the zero value.
const (
	StatusIdle SessionStatus = iota
	StatusRunning
	StatusComplete
	StatusFailed
)

func (s SessionStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusComplete:
		return "complete"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the session has stopped changing on its own.
func (s SessionStatus) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Log icons used by the backend and by the coordinator itself.
const (
	IconInfo    = "info"
	IconFolder  = "folder"
	IconSuccess = "success"
	IconWarning = "warning"
	IconError   = "error"
)

// LogEntry is one line of the scan log.
type LogEntry struct {
	Icon string `json:"icon"`
	Text string `json:"text"`
}

// ChatLocation is a chat client data directory found by a scan.
type ChatLocation struct {
	App  string `json:"app"`
	Path string `json:"path"`
}

// ScanSummary is the terminal payload of a scan.
type ScanSummary struct {
	RepoCount     int            `json:"git_repos"`
	DocumentCount int            `json:"documents"`
	ChatLocations []ChatLocation `json:"chat_locations"`
}

// ScanSession is the observable state of one scan run.
type ScanSession struct {
	ID         string        `json:"id"`
	ProjectID  string        `json:"project_id"`
	Status     SessionStatus `json:"status"`
	Progress   int           `json:"progress"`
	LogTail    []LogEntry    `json:"log_tail"`
	LastFolder string        `json:"last_folder,omitempty"`
	Summary    *ScanSummary  `json:"summary,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitzero"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s ScanSession) Clone() ScanSession {
	out := s
	out.LogTail = slices.Clone(s.LogTail)
	if s.Summary != nil {
		sum := *s.Summary
		sum.ChatLocations = slices.Clone(s.Summary.ChatLocations)
		out.Summary = &sum
	}
	return out
}

// Elapsed is the run time so far, or the total once finished.
func (s ScanSession) Elapsed(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if !s.FinishedAt.IsZero() {
		return s.FinishedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}

// ResultItem is one scanned file. Items are immutable once produced.
type ResultItem struct {
	ID         string    `json:"id"`
	FilePath   string    `json:"file_path"`
	FileType   string    `json:"file_type"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
	SizeBytes  int64     `json:"size_bytes"`
	IsValid    bool      `json:"is_valid"`
}

// HumanSize formats SizeBytes with IEC units.
func (r ResultItem) HumanSize() string {
	if r.SizeBytes < 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(r.SizeBytes))
}

// ResultPage is one page of get_results_page. Pages are replaced whole.
type ResultPage struct {
	Items      []ResultItem `json:"items"`
	Total      int          `json:"total"`
	Page       int          `json:"page"`
	TotalPages int          `json:"total_pages"`
}

// Clone returns a copy whose Items slice is not shared.
func (p ResultPage) Clone() ResultPage {
	p.Items = slices.Clone(p.Items)
	return p
}

// TotalPages computes the page count for total items at size per page.
func TotalPages(total, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return (total + size - 1) / size
}
