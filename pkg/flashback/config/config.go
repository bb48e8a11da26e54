package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/jamesainslie/flashback/pkg/flashback/logging"
)

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Daily      bool   `mapstructure:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// RPCConfig configures calls to the backend.
type RPCConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	Convention string        `mapstructure:"convention"`
	Alternate  string        `mapstructure:"alternate"`
}

// DaemonConfig configures flashbackd and how the CLI reaches it.
type DaemonConfig struct {
	AutoStart  bool   `mapstructure:"auto_start"`
	BinaryPath string `mapstructure:"binary_path"` // auto-discovered if empty
	SocketPath string `mapstructure:"socket_path"`
	PIDPath    string `mapstructure:"pid_path"`
	DataDir    string `mapstructure:"data_dir"`

	// ArgConvention is the parameter casing the daemon accepts.
	ArgConvention string   `mapstructure:"arg_convention"`
	Roots         []string `mapstructure:"roots"`
	Ignore        []string `mapstructure:"ignore"`
	Watch         bool     `mapstructure:"watch"`

	// WalkWorkers sizes the scan walk pool; 0 sizes it from the CPU count.
	WalkWorkers int `mapstructure:"walk_workers"`
}

// ProjectDefaults seed `flashback project create`.
type ProjectDefaults struct {
	TimeRange string `mapstructure:"time_range"`
	ScanScope string `mapstructure:"scan_scope"`
}

// Config is the full application configuration.
type Config struct {
	PageSize         int             `mapstructure:"page_size"`
	Debounce         time.Duration   `mapstructure:"debounce"`
	RefreshThreshold int             `mapstructure:"refresh_threshold"`
	RPC              RPCConfig       `mapstructure:"rpc"`
	Project          ProjectDefaults `mapstructure:"project"`
	Logging          LoggingConfig   `mapstructure:"logging"`
	Daemon           DaemonConfig    `mapstructure:"daemon"`

	// SelectionFile persists the locally selected project.
	SelectionFile string `mapstructure:"selection_file"`
}

// Load reads configuration from the default locations:
//   - $XDG_CONFIG_HOME/flashback/config.yaml
//   - $HOME/.config/flashback/config.yaml
//
// Environment variables use the FLASHBACK_ prefix (FLASHBACK_PAGE_SIZE).
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches
// the default locations.
func LoadFile(path string) (*Config, error) {
	return LoadViper(viper.New(), path)
}

// LoadViper loads through v, so flags bound to v before the call take
// precedence over the file and environment.
func LoadViper(v *viper.Viper, path string) (*Config, error) {
	if err := Prepare(v, path); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

// Prepare registers search paths, env binding and defaults on v.
func Prepare(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		dir, err := ConfigDir()
		if err != nil {
			return err
		}
		v.AddConfigPath(dir)
	}

	v.SetEnvPrefix("FLASHBACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("page_size", DefaultPageSize)
	v.SetDefault("debounce", DefaultDebounce)
	v.SetDefault("refresh_threshold", DefaultRefreshThreshold)

	v.SetDefault("rpc.timeout", DefaultRPCTimeout)
	v.SetDefault("rpc.convention", DefaultConvention)
	v.SetDefault("rpc.alternate", DefaultAlternate)

	v.SetDefault("project.time_range", DefaultTimeRange)
	v.SetDefault("project.scan_scope", DefaultScanScope)
	v.SetDefault("selection_file", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{
		"rpc":     "info",
		"session": "info",
		"results": "info",
		"daemon":  "info",
		"scanner": "info",
		"watcher": "warn",
	})

	v.SetDefault("daemon.auto_start", true)
	v.SetDefault("daemon.socket_path", "")
	v.SetDefault("daemon.pid_path", "")
	v.SetDefault("daemon.data_dir", "")
	v.SetDefault("daemon.arg_convention", DefaultConvention)
	v.SetDefault("daemon.roots", DefaultRoots)
	v.SetDefault("daemon.ignore", DefaultIgnore)
	v.SetDefault("daemon.watch", true)
	v.SetDefault("daemon.walk_workers", 0)
	return nil
}

func (c *Config) normalize() {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.Debounce < 0 {
		c.Debounce = 0
	}
	if c.RefreshThreshold <= 0 {
		c.RefreshThreshold = DefaultRefreshThreshold
	}
	if c.RPC.Timeout <= 0 {
		c.RPC.Timeout = DefaultRPCTimeout
	}
	if c.SelectionFile == "" {
		c.SelectionFile = SelectionPath()
	}
	if c.Daemon.SocketPath == "" {
		c.Daemon.SocketPath = DefaultSocketPath()
	}
	if c.Daemon.PIDPath == "" {
		c.Daemon.PIDPath = DefaultPIDPath()
	}
	if c.Daemon.DataDir == "" {
		c.Daemon.DataDir = DataDir()
	}
	roots := make([]string, 0, len(c.Daemon.Roots))
	for _, root := range c.Daemon.Roots {
		if expanded, err := ExpandPath(root); err == nil {
			roots = append(roots, expanded)
		}
	}
	c.Daemon.Roots = roots
}

// LoggingOptions converts the logging section into logging.Config.
func (c *Config) LoggingOptions() (logging.Config, error) {
	size, err := logging.ParseSize(c.Logging.Rotation.MaxSize)
	if err != nil {
		return logging.Config{}, err
	}
	return logging.Config{
		Level: c.Logging.Level,
		Path:  c.Logging.Path,
		Rotation: logging.RotationConfig{
			MaxSize:    size,
			MaxAge:     c.Logging.Rotation.MaxAge,
			MaxBackups: c.Logging.Rotation.MaxBackups,
			Daily:      c.Logging.Rotation.Daily,
		},
		Components: c.Logging.Components,
	}, nil
}

// ConfigDir returns the configuration directory.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "flashback"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "flashback"), nil
}

// ConfigPath returns the default config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// WriteDefault writes a commented default config file unless one exists.
// It reports whether a file was written.
func WriteDefault() (string, bool, error) {
	path, err := ConfigPath()
	if err != nil {
		return "", false, err
	}
	if _, err := os.Stat(path); err == nil {
		return path, false, nil
	} else if !os.IsNotExist(err) {
		return "", false, fmt.Errorf("failed to check config file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(`# flashback configuration

# Results shown per page
page_size: %d
# Quiet period before a search query is sent
debounce: %s
# Progress points between opportunistic result refreshes during a scan
refresh_threshold: %d

rpc:
  timeout: %s
  # Parameter casing tried first, and the one retried on a mismatch
  convention: %s
  alternate: %s

project:
  time_range: %s   # 7d, 30d, 3mo, 1y or all
  scan_scope: %s   # ALL or CUSTOM

logging:
  level: info
  # empty means $XDG_STATE_HOME/flashback/flashback.log
  path: ""
  rotation:
    max_size: 10MB
    max_age: 30
    max_backups: 5
    daily: true
  components:
    rpc: info
    session: info
    results: info
    daemon: info
    scanner: info
    watcher: warn

daemon:
  auto_start: true
  # empty means $XDG_DATA_HOME/flashback/flashback.sock
  socket_path: ""
  pid_path: ""
  data_dir: ""
  arg_convention: %s
  roots: [%s]
  watch: true
  # scan walk workers; 0 means one per CPU (at least 8)
  walk_workers: 0
`, DefaultPageSize, DefaultDebounce, DefaultRefreshThreshold, DefaultRPCTimeout,
		DefaultConvention, DefaultAlternate, DefaultTimeRange, DefaultScanScope,
		DefaultConvention, strings.Join(quoted(DefaultRoots), ", "))

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", false, fmt.Errorf("failed to write default config: %w", err)
	}
	return path, true, nil
}

func quoted(items []string) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = fmt.Sprintf("%q", "~/"+s)
	}
	return out
}

// ExpandPath expands a leading ~ to the home directory. Relative paths
// without ~ are taken relative to the home directory too, so roots such
// as "Documents" resolve the same way the desktop app resolves them.
func ExpandPath(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/")), nil
}

// DataDir returns $XDG_DATA_HOME/flashback for the store, socket and pid.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "flashback")
}

// StateDir returns $XDG_STATE_HOME/flashback for logs and the local
// project selection.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "flashback")
}

// DefaultSocketPath returns the daemon's unix socket path.
func DefaultSocketPath() string {
	return filepath.Join(DataDir(), "flashback.sock")
}

// DefaultPIDPath returns the daemon's pid file path.
func DefaultPIDPath() string {
	return filepath.Join(DataDir(), "flashback.pid")
}

// DefaultDBPath returns the badger directory inside dataDir.
func DefaultDBPath(dataDir string) string {
	return filepath.Join(dataDir, "store")
}

// SelectionPath returns the file holding the locally persisted project.
func SelectionPath() string {
	return filepath.Join(StateDir(), "selected-project.json")
}
