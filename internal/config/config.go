// Package config handles the application configuration: the workspace
// registry, sync tuning and logging. Configuration is loaded from XDG-compliant
// paths (typically ~/.config/taskfold/config.yaml) and lives outside every
// workspace folder.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"taskfold/internal/errs"
	"taskfold/internal/fsutil"
	"taskfold/internal/notify"
)

// EnvPath overrides the config file location.
const EnvPath = "TASKFOLD_CONFIG"

// Config represents the application configuration.
type Config struct {
	// CurrentWorkspace names the workspace commands operate on.
	CurrentWorkspace string `yaml:"current_workspace,omitempty"`

	// Workspaces maps a workspace name to its definition.
	Workspaces map[string]*Workspace `yaml:"workspaces,omitempty"`

	// Sync tunes the sync engine
	Sync SyncConfig `yaml:"sync,omitempty"`

	// Log configures diagnostic output
	Log LogConfig `yaml:"log,omitempty"`

	// Theme colors for CLI output
	Theme ThemeConfig `yaml:"theme,omitempty"`

	// Notify controls desktop alerts from background sync
	Notify notify.Config `yaml:"notify,omitempty"`

	path string
}

// Workspace is one registry entry.
type Workspace struct {
	// Path is the workspace root folder.
	Path string `yaml:"path"`

	// Remote is the optional WebDAV remote.
	Remote *RemoteConfig `yaml:"remote,omitempty"`

	// LastSync is the completion time of the last successful sync.
	LastSync *time.Time `yaml:"last_sync,omitempty"`
}

// RemoteConfig points a workspace at a WebDAV collection. The password is not
// stored here; CredentialKey names it in the credential store.
type RemoteConfig struct {
	URL           string `yaml:"url"`
	Username      string `yaml:"username,omitempty"`
	CredentialKey string `yaml:"credential_key,omitempty"`
}

// SyncConfig defines sync engine settings.
type SyncConfig struct {
	// RequestTimeout bounds every remote call
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"` // default: 30s

	// InitialBackoff is the first retry delay; it doubles per attempt
	InitialBackoff time.Duration `yaml:"initial_backoff,omitempty"` // default: 1s

	// MaxBackoff caps the retry delay
	MaxBackoff time.Duration `yaml:"max_backoff,omitempty"` // default: 30s

	// MaxAttempts is the number of tries before an operation is queued
	MaxAttempts int `yaml:"max_attempts,omitempty"` // default: 5

	// Interval between background syncs; 0 disables periodic sync
	Interval time.Duration `yaml:"interval"` // default: 5m

	// Debounce delays the push that follows local changes
	Debounce time.Duration `yaml:"debounce"` // default: 2s

	// PushOnChange pushes local changes in the background
	PushOnChange bool `yaml:"push_on_change"` // default: true
}

// LogConfig defines logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level,omitempty"` // default: "warn"
}

// ThemeConfig defines output colors as hex strings. Empty values use the
// built-in palette.
type ThemeConfig struct {
	Primary string `yaml:"primary,omitempty"`
	Accent  string `yaml:"accent,omitempty"`
	Muted   string `yaml:"muted,omitempty"`
	Text    string `yaml:"text,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Workspaces: map[string]*Workspace{},
		Sync: SyncConfig{
			RequestTimeout: 30 * time.Second,
			InitialBackoff: 1 * time.Second,
			MaxBackoff:     30 * time.Second,
			MaxAttempts:    5,
			Interval:       5 * time.Minute,
			Debounce:       2 * time.Second,
			PushOnChange:   true,
		},
		Log: LogConfig{
			Level: "warn",
		},
		Notify: notify.DefaultConfig(),
	}
}

// configDir returns the configuration directory path (XDG compliant).
func configDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "taskfold")
	}

	// Fall back to ~/.config/taskfold
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "taskfold")
}

// Path returns the path to the config file.
func Path() string {
	if p := os.Getenv(EnvPath); p != "" {
		return ExpandPath(p)
	}
	dir := configDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads configuration from Path, merging with defaults.
// If no config file exists, returns default configuration.
func Load() (*Config, error) {
	return LoadFile(Path())
}

// LoadFile reads configuration from path, merging with defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	cfg.path = path
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file, use defaults
			return cfg, nil
		}
		return nil, errs.Wrap(errs.IO, "read config", err)
	}

	var userCfg Config
	if err := yaml.Unmarshal(data, &userCfg); err != nil {
		return nil, errs.Wrap(errs.Config, "parse "+path, err)
	}

	var doc yaml.Node
	_ = yaml.Unmarshal(data, &doc) // best-effort; fall back to conservative merge if this fails

	cfg.mergeFromYAML(&userCfg, &doc)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports registry corruption.
func (c *Config) Validate() error {
	for name, ws := range c.Workspaces {
		if strings.TrimSpace(name) == "" {
			return errs.New(errs.Config, "workspace with empty name")
		}
		if ws == nil || ws.Path == "" {
			return errs.Errorf(errs.Config, "workspace %q has no path", name)
		}
		if ws.Remote != nil && ws.Remote.URL == "" {
			return errs.Errorf(errs.Config, "workspace %q has a remote without url", name)
		}
	}
	if c.CurrentWorkspace != "" {
		if _, ok := c.Workspaces[c.CurrentWorkspace]; !ok {
			return errs.Errorf(errs.Config, "current workspace %q is not defined", c.CurrentWorkspace)
		}
	}
	if c.Sync.MaxAttempts < 1 {
		return errs.Errorf(errs.Config, "sync.max_attempts must be at least 1, got %d", c.Sync.MaxAttempts)
	}
	if c.Sync.RequestTimeout <= 0 {
		return errs.Errorf(errs.Config, "sync.request_timeout must be positive")
	}
	return nil
}

// mergeNonEmpty applies non-empty values from other to c.
// It intentionally does not touch booleans or zero-able durations (those
// require presence-aware merging).
func (c *Config) mergeNonEmpty(other *Config) {
	if other.CurrentWorkspace != "" {
		c.CurrentWorkspace = other.CurrentWorkspace
	}
	for name, ws := range other.Workspaces {
		c.Workspaces[name] = ws
	}

	if other.Sync.RequestTimeout > 0 {
		c.Sync.RequestTimeout = other.Sync.RequestTimeout
	}
	if other.Sync.InitialBackoff > 0 {
		c.Sync.InitialBackoff = other.Sync.InitialBackoff
	}
	if other.Sync.MaxBackoff > 0 {
		c.Sync.MaxBackoff = other.Sync.MaxBackoff
	}
	if other.Sync.MaxAttempts > 0 {
		c.Sync.MaxAttempts = other.Sync.MaxAttempts
	}
	if other.Sync.Interval > 0 {
		c.Sync.Interval = other.Sync.Interval
	}
	if other.Sync.Debounce > 0 {
		c.Sync.Debounce = other.Sync.Debounce
	}

	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}

	if other.Theme.Primary != "" {
		c.Theme.Primary = other.Theme.Primary
	}
	if other.Theme.Accent != "" {
		c.Theme.Accent = other.Theme.Accent
	}
	if other.Theme.Muted != "" {
		c.Theme.Muted = other.Theme.Muted
	}
	if other.Theme.Text != "" {
		c.Theme.Text = other.Theme.Text
	}
}

func (c *Config) mergeFromYAML(other *Config, doc *yaml.Node) {
	c.mergeNonEmpty(other)

	// Fall back to conservative behavior if we can't inspect presence.
	if doc == nil || len(doc.Content) == 0 {
		return
	}

	// Re-apply values whose zero is meaningful only when present in YAML.
	if yamlHasPath(doc, "sync", "interval") {
		c.Sync.Interval = other.Sync.Interval
	}
	if yamlHasPath(doc, "sync", "debounce") {
		c.Sync.Debounce = other.Sync.Debounce
	}
	if yamlHasPath(doc, "sync", "push_on_change") {
		c.Sync.PushOnChange = other.Sync.PushOnChange
	}
	if yamlHasPath(doc, "notify", "enabled") {
		c.Notify.Enabled = other.Notify.Enabled
	}
	if yamlHasPath(doc, "notify", "sound") {
		c.Notify.Sound = other.Notify.Sound
	}
}

func yamlHasPath(doc *yaml.Node, path ...string) bool {
	if doc == nil || len(path) == 0 {
		return false
	}

	// Document -> root mapping.
	n := doc
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		n = n.Content[0]
	}
	for _, key := range path {
		if n == nil || n.Kind != yaml.MappingNode {
			return false
		}
		var next *yaml.Node
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			v := n.Content[i+1]
			if k.Kind == yaml.ScalarNode && k.Value == key {
				next = v
				break
			}
		}
		if next == nil {
			return false
		}
		n = next
	}
	return true
}

// File returns the path Save writes to.
func (c *Config) File() string {
	if c.path != "" {
		return c.path
	}
	return Path()
}

// Save writes the configuration to disk.
func (c *Config) Save() error {
	path := c.File()
	if path == "" {
		return errs.New(errs.Config, "cannot resolve config path")
	}

	// Create config directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errs.Wrap(errs.IO, "create config dir", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("serialize config: %w", err)
	}

	if err := fsutil.WriteFileAtomic(path, data, 0600); err != nil {
		return errs.Wrap(errs.IO, "save config", err)
	}
	return nil
}

// WorkspaceNames returns the registered names in sorted order.
func (c *Config) WorkspaceNames() []string {
	names := make([]string, 0, len(c.Workspaces))
	for name := range c.Workspaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExpandPath resolves a leading ~ to the home directory and cleans the path.
func ExpandPath(p string) string {
	if p == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return p
	}

	if strings.HasPrefix(p, "~/") || strings.HasPrefix(p, `~\`) {
		if home, err := os.UserHomeDir(); err == nil {
			trimmed := strings.TrimPrefix(p, "~/")
			trimmed = strings.TrimPrefix(trimmed, `~\`)
			return filepath.Join(home, trimmed)
		}
	}
	if p == "" {
		return p
	}
	return filepath.Clean(p)
}
