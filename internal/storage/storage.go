// Package storage implements the task repository: CRUD over task files and
// list folders inside one workspace, with ordering kept consistent through the
// list metadata store.
//
// A Repository assumes a single writer per workspace. Reads are safe to run
// concurrently because every file replacement is atomic.
package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"taskfold/internal/errs"
	"taskfold/internal/fsutil"
	"taskfold/internal/listmeta"
	"taskfold/internal/task"
	"taskfold/internal/workspace"
)

const (
	dataDirPerm  os.FileMode = 0700
	dataFilePerm os.FileMode = 0600

	// DefaultListTitle is the list Init creates in an empty workspace.
	DefaultListTitle = "My Tasks"
)

// Repository handles all file I/O for one workspace.
type Repository struct {
	ws       workspace.Workspace
	meta     *listmeta.Store
	now      func() time.Time // injectable clock for deterministic tests
	onChange func(Change)
	logger   *slog.Logger
}

// Open returns a repository for an existing workspace root.
func Open(ws workspace.Workspace) (*Repository, error) {
	info, err := os.Stat(ws.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Errorf(errs.NotFound, "workspace %q root %s does not exist", ws.Name, ws.Root)
		}
		return nil, errs.Wrap(errs.IO, "open workspace", err)
	}
	if !info.IsDir() {
		return nil, errs.Errorf(errs.Validation, "workspace root %s is not a directory", ws.Root)
	}
	return &Repository{
		ws:     ws,
		meta:   listmeta.NewStore(),
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}, nil
}

// Init creates the workspace root and its metadata, and a default list when
// the workspace has none.
func Init(ws workspace.Workspace) (*Repository, error) {
	if err := os.MkdirAll(ws.Root, dataDirPerm); err != nil {
		return nil, errs.Wrap(errs.IO, "create workspace root", err)
	}
	r, err := Open(ws)
	if err != nil {
		return nil, err
	}
	refs, _, err := r.scanLists()
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		if _, err := r.CreateList(DefaultListTitle); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Workspace returns the workspace this repository operates on.
func (r *Repository) Workspace() workspace.Workspace {
	return r.ws
}

// SetNowFunc overrides the clock used for timestamps.
// Passing nil resets it to time.Now.
func (r *Repository) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	r.now = now
	r.meta.SetNowFunc(now)
}

// Now returns the current time according to the repository clock.
func (r *Repository) Now() time.Time {
	return r.now().UTC()
}

// SetOnChange registers a callback invoked after every committed mutation
// made through the task and list operations. Changes applied by the sync
// engine are not reported.
func (r *Repository) SetOnChange(fn func(Change)) {
	r.onChange = fn
}

// SetLogger sets the logger used for skipped files and self-healing.
func (r *Repository) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	r.logger = l
}

func (r *Repository) notify(c Change) {
	if r.onChange != nil {
		r.onChange(c)
	}
}

// ============================================================================
// List resolution
// ============================================================================

// listRef is a list folder resolved to its id.
type listRef struct {
	ID        string
	Dir       string
	Title     string
	CreatedAt time.Time
}

// scanLists resolves every list folder under the root, in display order, and
// reconciles the workspace list order. Folders without metadata are adopted
// as lists.
func (r *Repository) scanLists() ([]listRef, *listmeta.Global, error) {
	entries, err := os.ReadDir(r.ws.Root)
	if err != nil {
		return nil, nil, errs.Wrap(errs.IO, "read workspace", err)
	}

	var refs []listRef
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), task.ReservedPrefix) {
			continue
		}
		dir := filepath.Join(r.ws.Root, e.Name())
		m, found, err := listmeta.Peek(dir)
		if err != nil {
			return nil, nil, err
		}
		if !found {
			l, err := r.meta.Load(dir)
			if err != nil {
				return nil, nil, err
			}
			r.logger.Debug("adopted list folder", "list", e.Name(), "id", l.Meta.ID)
			m = l.Meta
		}
		refs = append(refs, listRef{ID: m.ID, Dir: dir, Title: e.Name(), CreatedAt: m.CreatedAt})
	}

	// Two folders claiming one id (e.g. a copied folder): keep the older title.
	seen := make(map[string]bool, len(refs))
	uniq := refs[:0]
	for _, ref := range refs {
		if seen[ref.ID] {
			r.logger.Warn("duplicate list id; ignoring folder", "list", ref.Title, "id", ref.ID)
			continue
		}
		seen[ref.ID] = true
		uniq = append(uniq, ref)
	}
	refs = uniq

	mrefs := make([]listmeta.ListRef, len(refs))
	for i, ref := range refs {
		mrefs[i] = listmeta.ListRef{ID: ref.ID, CreatedAt: ref.CreatedAt, Title: ref.Title}
	}
	g, err := r.meta.LoadGlobal(r.ws.Root, mrefs)
	if err != nil {
		return nil, nil, err
	}

	sort.SliceStable(refs, func(i, j int) bool {
		return g.Position(refs[i].ID) < g.Position(refs[j].ID)
	})
	return refs, g, nil
}

func (r *Repository) resolveList(listID string) (listRef, *listmeta.Global, error) {
	refs, g, err := r.scanLists()
	if err != nil {
		return listRef{}, nil, err
	}
	for _, ref := range refs {
		if ref.ID == listID {
			return ref, g, nil
		}
	}
	return listRef{}, nil, errs.Errorf(errs.NotFound, "list %s not found", listID)
}

func (r *Repository) loadList(listID string) (*listmeta.List, *listmeta.Global, error) {
	ref, g, err := r.resolveList(listID)
	if err != nil {
		return nil, nil, err
	}
	l, err := r.load(ref.Dir)
	if err != nil {
		return nil, nil, err
	}
	return l, g, nil
}

func (r *Repository) load(dir string) (*listmeta.List, error) {
	l, err := r.meta.Load(dir)
	if err != nil {
		return nil, err
	}
	for _, p := range l.Problems {
		r.logger.Warn("skipped task file", "list", l.Title, "err", p)
	}
	return l, nil
}

func toTaskList(l *listmeta.List, g *listmeta.Global) *TaskList {
	return &TaskList{
		ID:        l.Meta.ID,
		Title:     l.Title,
		SortOrder: l.Meta.SortOrder,
		TaskOrder: append([]string(nil), l.Meta.TaskOrder...),
		Archived:  l.Meta.Archived,
		Position:  g.Position(l.Meta.ID),
		CreatedAt: l.Meta.CreatedAt,
		UpdatedAt: l.Meta.UpdatedAt,
		Tasks:     l.Effective(),
		Problems:  l.Problems,
	}
}

// ============================================================================
// Files
// ============================================================================

func (r *Repository) writeTask(path string, t *task.Task) error {
	data, err := task.Encode(t)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(path, data, dataFilePerm); err != nil {
		return errs.Wrap(errs.IO, fmt.Sprintf("write task %q", t.Title), err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil || !os.IsNotExist(err)
}

// relPath returns the slash-separated path of a file relative to the root.
func (r *Repository) relPath(path string) string {
	rel, err := filepath.Rel(r.ws.Root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
