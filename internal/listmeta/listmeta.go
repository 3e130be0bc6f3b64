// Package listmeta persists per-list ordering metadata (.listdata.json) and the
// workspace-level list order (.metadata.json). Stored orders are reconciled
// against the files actually on disk every time they are loaded, and the
// repaired order is written back.
package listmeta

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskfold/internal/errs"
	"taskfold/internal/fsutil"
	"taskfold/internal/task"
)

const (
	// FileName is the per-list ordering file.
	FileName = ".listdata.json"

	dataFilePerm os.FileMode = 0600
)

// SortOrder selects how a list's effective task sequence is computed.
type SortOrder string

const (
	Manual    SortOrder = "manual"
	ByDueDate SortOrder = "by_due_date"
)

// ParseSortOrder accepts the persisted names plus a few spellings used on the
// command line.
func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "manual":
		return Manual, nil
	case "by_due_date", "by-due-date", "due", "due_date":
		return ByDueDate, nil
	}
	return "", errs.Errorf(errs.Validation, "unknown sort order %q (want manual or by_due_date)", s)
}

// Metadata is the contents of a list's ordering file.
type Metadata struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	SortOrder SortOrder `json:"sort_order"`
	TaskOrder []string  `json:"task_order"`
	Archived  bool      `json:"archived,omitempty"`
}

// List is a reconciled list folder: its metadata plus every readable task.
type List struct {
	Dir   string
	Title string
	Meta  Metadata

	// Tasks is keyed by task id; Meta.TaskOrder is a permutation of its keys.
	Tasks map[string]*task.Task
	// Paths maps task id to the file the task was read from.
	Paths map[string]string
	// Problems holds per-file errors for task files that were skipped.
	Problems []error
}

// Ordered returns the tasks in manual order.
func (l *List) Ordered() []task.Task {
	out := make([]task.Task, 0, len(l.Meta.TaskOrder))
	for _, id := range l.Meta.TaskOrder {
		if t, ok := l.Tasks[id]; ok {
			out = append(out, *t)
		}
	}
	return out
}

// Effective returns the tasks in display order: task_order for Manual, or a
// due-date sort of a snapshot for ByDueDate. Tasks without a due date go last;
// ties fall back to created_at, then manual order.
func (l *List) Effective() []task.Task {
	tasks := l.Ordered()
	if l.Meta.SortOrder != ByDueDate {
		return tasks
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.DueDate != nil && b.DueDate == nil {
			return true
		}
		if a.DueDate == nil && b.DueDate != nil {
			return false
		}
		if a.DueDate != nil && b.DueDate != nil && !a.DueDate.Equal(*b.DueDate) {
			return a.DueDate.Before(*b.DueDate)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return tasks
}

// Index returns the position of id in task_order, or -1.
func (l *List) Index(id string) int {
	for i, v := range l.Meta.TaskOrder {
		if v == id {
			return i
		}
	}
	return -1
}

// Append adds id to the end of task_order unless it is already present.
func (l *List) Append(id string) bool {
	if l.Index(id) >= 0 {
		return false
	}
	l.Meta.TaskOrder = append(l.Meta.TaskOrder, id)
	return true
}

// Remove drops id from task_order.
func (l *List) Remove(id string) bool {
	i := l.Index(id)
	if i < 0 {
		return false
	}
	l.Meta.TaskOrder = append(l.Meta.TaskOrder[:i:i], l.Meta.TaskOrder[i+1:]...)
	return true
}

// Move relocates id to newIndex, clamped into range. It reports whether the
// order changed.
func (l *List) Move(id string, newIndex int) (bool, error) {
	cur := l.Index(id)
	if cur < 0 {
		return false, errs.Errorf(errs.NotFound, "task %s is not in list %q", id, l.Title)
	}
	last := len(l.Meta.TaskOrder) - 1
	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex > last {
		newIndex = last
	}
	if newIndex == cur {
		return false, nil
	}

	order := append(l.Meta.TaskOrder[:cur:cur], l.Meta.TaskOrder[cur+1:]...)
	order = append(order[:newIndex], append([]string{id}, order[newIndex:]...)...)
	l.Meta.TaskOrder = order
	return true, nil
}

// TitleTaken reports whether a task title is in use, ignoring case so lists
// stay portable to case-insensitive file systems. exceptID is skipped.
func (l *List) TitleTaken(title, exceptID string) bool {
	for id, t := range l.Tasks {
		if id != exceptID && strings.EqualFold(t.Title, title) {
			return true
		}
	}
	return false
}

// Store reads and writes ordering files.
type Store struct {
	now   func() time.Time
	write func(path string, v any) error
}

// NewStore returns a Store that writes through the atomic JSON writer.
func NewStore() *Store {
	return &Store{
		now: time.Now,
		write: func(path string, v any) error {
			return fsutil.WriteJSON(path, v, dataFilePerm)
		},
	}
}

// SetNowFunc overrides the clock. Passing nil resets it to time.Now.
func (s *Store) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.now = now
}

// Create writes fresh metadata for a new list folder.
func (s *Store) Create(dir string) (*List, error) {
	now := s.now().UTC()
	l := &List{
		Dir:   dir,
		Title: filepath.Base(dir),
		Meta: Metadata{
			ID:        uuid.NewString(),
			CreatedAt: now,
			UpdatedAt: now,
			SortOrder: Manual,
			TaskOrder: []string{},
		},
		Tasks: map[string]*task.Task{},
		Paths: map[string]string{},
	}
	if err := s.write(filepath.Join(dir, FileName), &l.Meta); err != nil {
		return nil, errs.Wrap(errs.IO, "create list metadata", err)
	}
	return l, nil
}

// Peek reads a list's metadata without reconciling it against the task
// files. found is false when the folder has no usable ordering file yet.
func Peek(dir string) (m Metadata, found bool, err error) {
	found, err = fsutil.LoadJSON(filepath.Join(dir, FileName), &m, dataFilePerm)
	var rec *fsutil.RecoveredError
	if errors.As(err, &rec) {
		if rec.Reset {
			return Metadata{}, false, nil
		}
		err = nil
	}
	if err != nil {
		return Metadata{}, false, errs.Wrap(errs.IO, "read list metadata", err)
	}
	if !found || m.ID == "" {
		return Metadata{}, false, nil
	}
	return m, true, nil
}

// Load reads the folder's task files and ordering file and reconciles them:
// ids without a file are dropped, files missing from task_order are appended
// oldest first. A corrected order is written back, except when some task file
// could not be read, so that a temporarily unreadable task keeps its place.
func (s *Store) Load(dir string) (*List, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Errorf(errs.NotFound, "list folder %s does not exist", dir)
		}
		return nil, errs.Wrap(errs.IO, "read list folder", err)
	}

	l := &List{
		Dir:   dir,
		Title: filepath.Base(dir),
		Tasks: map[string]*task.Task{},
		Paths: map[string]string{},
	}
	unreadable := false
	for _, e := range entries {
		if e.IsDir() || !task.IsTaskFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			unreadable = true
			l.Problems = append(l.Problems, errs.Wrap(errs.IO, "read "+e.Name(), err))
			continue
		}
		t, err := task.Decode(data, e.Name())
		if err != nil {
			unreadable = true
			l.Problems = append(l.Problems, err)
			continue
		}
		if prev, ok := l.Paths[t.ID]; ok {
			l.Problems = append(l.Problems, errs.Errorf(errs.Validation,
				"task id %s appears in both %s and %s; ignoring the latter", t.ID, filepath.Base(prev), e.Name()))
			continue
		}
		if l.TitleTaken(t.Title, "") {
			l.Problems = append(l.Problems, errs.Errorf(errs.Validation,
				"task title %q collides with another task in %q; ignoring %s", t.Title, l.Title, e.Name()))
			continue
		}
		l.Tasks[t.ID] = t
		l.Paths[t.ID] = path
	}

	changed, fresh, err := s.loadMeta(l)
	if err != nil {
		return nil, err
	}
	if reconcileOrder(l) {
		changed = true
	}

	if changed && (fresh || !unreadable) {
		if err := s.Save(l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (s *Store) loadMeta(l *List) (changed, fresh bool, err error) {
	path := filepath.Join(l.Dir, FileName)
	found, err := fsutil.LoadJSON(path, &l.Meta, dataFilePerm)
	var rec *fsutil.RecoveredError
	switch {
	case errors.As(err, &rec):
		l.Problems = append(l.Problems, errs.Wrap(errs.Config, "list metadata", err))
		if rec.Reset {
			l.Meta = Metadata{}
			found = false
		}
	case err != nil:
		return false, false, errs.Wrap(errs.IO, "load list metadata", err)
	}

	if !found {
		now := s.now().UTC()
		l.Meta = Metadata{CreatedAt: now, UpdatedAt: now}
		changed, fresh = true, true
	}
	if l.Meta.ID == "" {
		l.Meta.ID = uuid.NewString()
		changed = true
	}
	if l.Meta.SortOrder != Manual && l.Meta.SortOrder != ByDueDate {
		l.Meta.SortOrder = Manual
		changed = true
	}
	if l.Meta.TaskOrder == nil {
		l.Meta.TaskOrder = []string{}
	}
	return changed, fresh, nil
}

func reconcileOrder(l *List) bool {
	seen := make(map[string]bool, len(l.Meta.TaskOrder))
	order := make([]string, 0, len(l.Tasks))
	for _, id := range l.Meta.TaskOrder {
		if _, ok := l.Tasks[id]; ok && !seen[id] {
			seen[id] = true
			order = append(order, id)
		}
	}

	var missing []*task.Task
	for id, t := range l.Tasks {
		if !seen[id] {
			missing = append(missing, t)
		}
	}
	sort.Slice(missing, func(i, j int) bool {
		a, b := missing[i], missing[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.ID < b.ID
	})
	for _, t := range missing {
		order = append(order, t.ID)
	}

	if equalOrder(order, l.Meta.TaskOrder) {
		return false
	}
	l.Meta.TaskOrder = order
	return true
}

func equalOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Save persists the list's metadata, refreshing updated_at.
func (s *Store) Save(l *List) error {
	now := s.now().UTC()
	if now.After(l.Meta.UpdatedAt) {
		l.Meta.UpdatedAt = now
	}
	if err := s.write(filepath.Join(l.Dir, FileName), &l.Meta); err != nil {
		return errs.Wrap(errs.IO, fmt.Sprintf("save list %q", l.Title), err)
	}
	return nil
}

// Reorder moves a task to newIndex (clamped) and persists the order. It
// performs no write when the task is already at that index.
func (s *Store) Reorder(dir, taskID string, newIndex int) (*List, error) {
	l, err := s.Load(dir)
	if err != nil {
		return nil, err
	}
	moved, err := l.Move(taskID, newIndex)
	if err != nil {
		return nil, err
	}
	if !moved {
		return l, nil
	}
	if err := s.Save(l); err != nil {
		return nil, err
	}
	return l, nil
}

// SetSortOrder persists the list's sort preference. task_order is kept as is
// so switching back to Manual restores the previous arrangement.
func (s *Store) SetSortOrder(dir string, order SortOrder) (*List, error) {
	if order != Manual && order != ByDueDate {
		return nil, errs.Errorf(errs.Validation, "unknown sort order %q", order)
	}
	l, err := s.Load(dir)
	if err != nil {
		return nil, err
	}
	if l.Meta.SortOrder == order {
		return l, nil
	}
	l.Meta.SortOrder = order
	if err := s.Save(l); err != nil {
		return nil, err
	}
	return l, nil
}

// SetArchived persists the archived flag.
func (s *Store) SetArchived(dir string, archived bool) (*List, error) {
	l, err := s.Load(dir)
	if err != nil {
		return nil, err
	}
	if l.Meta.Archived == archived {
		return l, nil
	}
	l.Meta.Archived = archived
	if err := s.Save(l); err != nil {
		return nil, err
	}
	return l, nil
}
