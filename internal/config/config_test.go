package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"taskfold/internal/errs"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Sync.InitialBackoff != time.Second {
		t.Errorf("Sync.InitialBackoff = %v, want 1s", cfg.Sync.InitialBackoff)
	}
	if cfg.Sync.MaxBackoff != 30*time.Second {
		t.Errorf("Sync.MaxBackoff = %v, want 30s", cfg.Sync.MaxBackoff)
	}
	if cfg.Sync.MaxAttempts != 5 {
		t.Errorf("Sync.MaxAttempts = %d, want 5", cfg.Sync.MaxAttempts)
	}
	if !cfg.Sync.PushOnChange {
		t.Error("Sync.PushOnChange should default to true")
	}
	if cfg.Workspaces == nil {
		t.Error("Workspaces should be initialized")
	}
	if cfg.Notify.Enabled {
		t.Error("Notify.Enabled should default to false")
	}
}

func TestPath(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tempDir)
	t.Setenv(EnvPath, "")

	if got, want := Path(), filepath.Join(tempDir, "taskfold", "config.yaml"); got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}

	override := filepath.Join(tempDir, "other.yaml")
	t.Setenv(EnvPath, override)
	if got := Path(); got != override {
		t.Errorf("Path() = %q, want %q", got, override)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// Set a temp XDG_CONFIG_HOME to avoid loading real config
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(EnvPath, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Should return defaults
	if cfg.Sync.RequestTimeout != 30*time.Second {
		t.Errorf("Sync.RequestTimeout = %v, want 30s", cfg.Sync.RequestTimeout)
	}
	if len(cfg.Workspaces) != 0 {
		t.Errorf("Workspaces = %v, want empty", cfg.Workspaces)
	}
}

func TestLoad_WithConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	configContent := `
current_workspace: personal
workspaces:
  personal:
    path: /data/personal
    remote:
      url: https://dav.example.com/tasks
      username: alex
      credential_key: alex@dav.example.com
    last_sync: 2026-02-01T10:00:00Z
  work:
    path: /data/work
sync:
  request_timeout: 10s
  interval: 0s
log:
  level: debug
theme:
  primary: "#FF0000"
notify:
  enabled: true
`
	if err := os.WriteFile(path, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.CurrentWorkspace != "personal" {
		t.Errorf("CurrentWorkspace = %q, want personal", cfg.CurrentWorkspace)
	}
	ws := cfg.Workspaces["personal"]
	if ws == nil || ws.Path != "/data/personal" {
		t.Fatalf("Workspaces[personal] = %+v", ws)
	}
	if ws.Remote == nil || ws.Remote.CredentialKey != "alex@dav.example.com" {
		t.Errorf("Remote = %+v", ws.Remote)
	}
	if ws.LastSync == nil || !ws.LastSync.Equal(time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("LastSync = %v", ws.LastSync)
	}
	if cfg.Sync.RequestTimeout != 10*time.Second {
		t.Errorf("Sync.RequestTimeout = %v, want 10s", cfg.Sync.RequestTimeout)
	}
	// Explicit zero disables periodic sync instead of falling back to the default.
	if cfg.Sync.Interval != 0 {
		t.Errorf("Sync.Interval = %v, want 0", cfg.Sync.Interval)
	}
	// Unset values keep their defaults.
	if cfg.Sync.MaxAttempts != 5 || !cfg.Sync.PushOnChange {
		t.Errorf("Sync defaults lost: %+v", cfg.Sync)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Theme.Primary != "#FF0000" || cfg.Theme.Accent != "" {
		t.Errorf("Theme = %+v", cfg.Theme)
	}
	if !cfg.Notify.Enabled || cfg.Notify.Sound {
		t.Errorf("Notify = %+v, want enabled without sound", cfg.Notify)
	}
	if got := cfg.WorkspaceNames(); len(got) != 2 || got[0] != "personal" || got[1] != "work" {
		t.Errorf("WorkspaceNames() = %v", got)
	}
}

func TestLoad_PushOnChangeFalse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("sync:\n  push_on_change: false\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Sync.PushOnChange {
		t.Error("PushOnChange = true, want false")
	}
}

func TestLoad_Corrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid yaml", "workspaces: [unclosed\n"},
		{"workspace without path", "workspaces:\n  home: {}\n"},
		{"dangling current", "current_workspace: ghost\n"},
		{"remote without url", "workspaces:\n  home:\n    path: /x\n    remote:\n      username: a\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			_, err := LoadFile(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if errs.KindOf(err) != errs.Config {
				t.Errorf("KindOf(%v) = %v, want config", err, errs.KindOf(err))
			}
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Workspaces["home"] = &Workspace{Path: "/data/home"}
	cfg.CurrentWorkspace = "home"
	cfg.Sync.Interval = 0

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("perm = %v, want 0600", info.Mode().Perm())
	}

	again, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if again.CurrentWorkspace != "home" || again.Workspaces["home"].Path != "/data/home" {
		t.Errorf("reloaded config = %+v", again)
	}
	if again.Sync.Interval != 0 {
		t.Errorf("Sync.Interval = %v, want 0 after round trip", again.Sync.Interval)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	tests := []struct {
		in, want string
	}{
		{"~", home},
		{"~/Tasks", filepath.Join(home, "Tasks")},
		{"/abs/./path/", "/abs/path"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExpandPath(tt.in); got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
