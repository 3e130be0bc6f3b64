package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"taskfold/internal/config"
	"taskfold/internal/errs"
	"taskfold/internal/fsutil"
)

var (
	ErrDuplicateWorkspace = errs.New(errs.Validation, "workspace already exists")
	ErrInvalidPath        = errs.New(errs.Validation, "invalid workspace path")
	ErrUnknownWorkspace   = errs.New(errs.NotFound, "unknown workspace")
	ErrCurrentWorkspace   = errs.New(errs.Validation, "cannot remove the current workspace")
	ErrNoCurrentWorkspace = errs.New(errs.NotFound, "no current workspace; run init or workspace switch")
)

const probeName = ".taskfold-probe"

// Registry edits the workspace map of a loaded config and persists every
// change before returning.
type Registry struct {
	cfg  *config.Config
	save func() error
}

// NewRegistry wraps cfg. Changes are saved with cfg.Save.
func NewRegistry(cfg *config.Config) *Registry {
	if cfg.Workspaces == nil {
		cfg.Workspaces = map[string]*config.Workspace{}
	}
	return &Registry{cfg: cfg, save: cfg.Save}
}

// Entry is a registry listing row.
type Entry struct {
	Workspace
	Current bool
}

// List returns all workspaces sorted by name.
func (r *Registry) List() []Entry {
	out := make([]Entry, 0, len(r.cfg.Workspaces))
	for _, name := range r.cfg.WorkspaceNames() {
		ws, _ := r.Get(name)
		out = append(out, Entry{Workspace: ws, Current: name == r.cfg.CurrentWorkspace})
	}
	return out
}

// Get resolves a workspace by name.
func (r *Registry) Get(name string) (Workspace, error) {
	ws, ok := r.cfg.Workspaces[name]
	if !ok {
		return Workspace{}, fmt.Errorf("%w: %q", ErrUnknownWorkspace, name)
	}
	return Workspace{Name: name, Root: ws.Path, Remote: ws.Remote, LastSync: ws.LastSync}, nil
}

// Current resolves the workspace marked current.
func (r *Registry) Current() (Workspace, error) {
	if r.cfg.CurrentWorkspace == "" {
		return Workspace{}, ErrNoCurrentWorkspace
	}
	return r.Get(r.cfg.CurrentWorkspace)
}

// Add registers a workspace rooted at path, creating the folder when needed.
// The first workspace added becomes current.
func (r *Registry) Add(name, path string) (Workspace, error) {
	if err := validateName(name); err != nil {
		return Workspace{}, err
	}
	if _, exists := r.cfg.Workspaces[name]; exists {
		return Workspace{}, fmt.Errorf("%w: %q", ErrDuplicateWorkspace, name)
	}
	root, err := r.preparePath(path, name)
	if err != nil {
		return Workspace{}, err
	}

	r.cfg.Workspaces[name] = &config.Workspace{Path: root}
	if r.cfg.CurrentWorkspace == "" {
		r.cfg.CurrentWorkspace = name
	}
	if err := r.save(); err != nil {
		delete(r.cfg.Workspaces, name)
		if r.cfg.CurrentWorkspace == name {
			r.cfg.CurrentWorkspace = ""
		}
		return Workspace{}, err
	}
	return r.Get(name)
}

// Switch marks name as the current workspace.
func (r *Registry) Switch(name string) error {
	if _, ok := r.cfg.Workspaces[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownWorkspace, name)
	}
	if r.cfg.CurrentWorkspace == name {
		return nil
	}
	prev := r.cfg.CurrentWorkspace
	r.cfg.CurrentWorkspace = name
	if err := r.save(); err != nil {
		r.cfg.CurrentWorkspace = prev
		return err
	}
	return nil
}

// Retarget rewrites the stored root of name. No files are moved; the caller
// asserts the workspace already lives at newPath.
func (r *Registry) Retarget(name, newPath string) error {
	ws, ok := r.cfg.Workspaces[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownWorkspace, name)
	}
	root, err := absPath(newPath)
	if err != nil {
		return err
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidPath, root)
	}
	return r.setPath(ws, root)
}

// MigrateResult describes a completed migration.
type MigrateResult struct {
	OldPath string
	NewPath string
	Files   int
}

// Migrate copies the workspace tree to newPath, verifies every file, and only
// then points the registry at the copy. On any failure the registry and the
// original tree are untouched and a partial copy is removed. The old tree is
// left in place for the caller to delete.
func (r *Registry) Migrate(name, newPath string) (MigrateResult, error) {
	ws, ok := r.cfg.Workspaces[name]
	if !ok {
		return MigrateResult{}, fmt.Errorf("%w: %q", ErrUnknownWorkspace, name)
	}
	dst, err := absPath(newPath)
	if err != nil {
		return MigrateResult{}, err
	}
	src := ws.Path
	if dst == src || strings.HasPrefix(dst, src+string(filepath.Separator)) {
		return MigrateResult{}, fmt.Errorf("%w: %s is inside the workspace", ErrInvalidPath, dst)
	}

	entries, statErr := os.ReadDir(dst)
	created := os.IsNotExist(statErr)
	if statErr != nil && !created {
		return MigrateResult{}, fmt.Errorf("%w: %v", ErrInvalidPath, statErr)
	}
	if len(entries) > 0 {
		return MigrateResult{}, fmt.Errorf("%w: %s is not empty", ErrInvalidPath, dst)
	}
	discard := func() {
		if created {
			_ = os.RemoveAll(dst)
			return
		}
		entries, _ := os.ReadDir(dst)
		for _, e := range entries {
			_ = os.RemoveAll(filepath.Join(dst, e.Name()))
		}
	}

	manifest, err := fsutil.CopyTree(src, dst)
	if err != nil {
		discard()
		return MigrateResult{}, errs.Wrap(errs.IO, "migrate "+name, err)
	}
	if err := manifest.Verify(dst); err != nil {
		discard()
		return MigrateResult{}, errs.Wrap(errs.IO, "migrate "+name, err)
	}
	if err := r.setPath(ws, dst); err != nil {
		discard()
		return MigrateResult{}, err
	}
	return MigrateResult{OldPath: src, NewPath: dst, Files: len(manifest.Files)}, nil
}

// Remove deletes the registry entry only; files stay on disk. The current
// workspace can be removed only when it is the last one.
func (r *Registry) Remove(name string) error {
	if _, err := r.removable(name); err != nil {
		return err
	}
	return r.dropEntry(name)
}

// Destroy deletes the registry entry and then the workspace's whole tree.
func (r *Registry) Destroy(name string) error {
	ws, err := r.removable(name)
	if err != nil {
		return err
	}
	root := ws.Path
	if err := guardDestroy(root); err != nil {
		return err
	}
	if err := r.dropEntry(name); err != nil {
		return err
	}
	if err := os.RemoveAll(root); err != nil {
		return errs.Wrap(errs.IO, "destroy "+name, err)
	}
	return nil
}

// SetRemote attaches (or with nil, detaches) a remote.
func (r *Registry) SetRemote(name string, remote *config.RemoteConfig) error {
	ws, ok := r.cfg.Workspaces[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownWorkspace, name)
	}
	if remote != nil && remote.URL == "" {
		return errs.New(errs.Validation, "remote url is required")
	}
	prev := ws.Remote
	ws.Remote = remote
	if err := r.save(); err != nil {
		ws.Remote = prev
		return err
	}
	return nil
}

// RecordSync stores the completion time of a successful sync.
func (r *Registry) RecordSync(name string, at time.Time) error {
	ws, ok := r.cfg.Workspaces[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownWorkspace, name)
	}
	at = at.UTC()
	ws.LastSync = &at
	return r.save()
}

func (r *Registry) removable(name string) (*config.Workspace, error) {
	ws, ok := r.cfg.Workspaces[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWorkspace, name)
	}
	if name == r.cfg.CurrentWorkspace && len(r.cfg.Workspaces) > 1 {
		return nil, fmt.Errorf("%w: %q; switch to another workspace first", ErrCurrentWorkspace, name)
	}
	return ws, nil
}

func (r *Registry) dropEntry(name string) error {
	ws := r.cfg.Workspaces[name]
	wasCurrent := r.cfg.CurrentWorkspace == name
	delete(r.cfg.Workspaces, name)
	if wasCurrent {
		r.cfg.CurrentWorkspace = ""
	}
	if err := r.save(); err != nil {
		r.cfg.Workspaces[name] = ws
		if wasCurrent {
			r.cfg.CurrentWorkspace = name
		}
		return err
	}
	return nil
}

func (r *Registry) setPath(ws *config.Workspace, root string) error {
	prev := ws.Path
	ws.Path = root
	if err := r.save(); err != nil {
		ws.Path = prev
		return err
	}
	return nil
}

// preparePath creates path if needed and checks that it is writable.
func (r *Registry) preparePath(path, name string) (string, error) {
	root, err := absPath(path)
	if err != nil {
		return "", err
	}
	for other, ws := range r.cfg.Workspaces {
		if ws.Path == root {
			return "", fmt.Errorf("%w: %s is already used by workspace %q", ErrInvalidPath, root, other)
		}
	}
	if info, err := os.Stat(root); err == nil && !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrInvalidPath, root)
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	probe := filepath.Join(root, probeName)
	if err := fsutil.WriteFileAtomic(probe, nil, 0o600); err != nil {
		return "", fmt.Errorf("%w: %s is not writable: %v", ErrInvalidPath, root, err)
	}
	_ = os.Remove(probe)
	return root, nil
}

func absPath(path string) (string, error) {
	p := config.ExpandPath(strings.TrimSpace(path))
	if p == "" {
		return "", fmt.Errorf("%w: path is empty", ErrInvalidPath)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	return abs, nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errs.New(errs.Validation, "workspace name is required")
	}
	if strings.TrimSpace(name) != name {
		return errs.Errorf(errs.Validation, "workspace name %q has leading or trailing whitespace", name)
	}
	return nil
}

// guardDestroy refuses to delete obviously wrong roots.
func guardDestroy(root string) error {
	clean := filepath.Clean(root)
	if clean == filepath.Dir(clean) {
		return fmt.Errorf("%w: refusing to delete %s", ErrInvalidPath, clean)
	}
	if home, err := os.UserHomeDir(); err == nil && clean == filepath.Clean(home) {
		return fmt.Errorf("%w: refusing to delete the home directory", ErrInvalidPath)
	}
	return nil
}
