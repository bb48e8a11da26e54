// Package config loads flashback settings from YAML, environment and flags.
package config

import "time"

// Defaults shared by the CLI and the daemon.
const (
	DefaultPageSize         = 20
	DefaultDebounce         = 300 * time.Millisecond
	DefaultRefreshThreshold = 10
	DefaultRPCTimeout       = 10 * time.Second
	DefaultConvention       = "camel"
	DefaultAlternate        = "snake"
	DefaultTimeRange        = "30d"
	DefaultScanScope        = "ALL"
)

// DefaultRoots are the home-relative directories walked for scope ALL.
var DefaultRoots = []string{
	"Documents",
	"Desktop",
	"Downloads",
	"Projects",
	"Work",
}

// DefaultIgnore lists directory names the scanner never descends into.
var DefaultIgnore = []string{
	".git",
	"node_modules",
	"target",
	"dist",
	"build",
	".cache",
	"__pycache__",
	".venv",
	"Library",
}
