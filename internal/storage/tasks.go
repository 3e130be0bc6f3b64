package storage

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"taskfold/internal/errs"
	"taskfold/internal/listmeta"
	"taskfold/internal/task"
)

// TaskInput holds the fields of a new task.
type TaskInput struct {
	Title    string
	Notes    string
	DueDate  *time.Time
	ParentID string
}

// TaskUpdate lists the fields to change; nil pointers are left alone.
type TaskUpdate struct {
	Title    *string
	Notes    *string
	Status   *task.Status
	DueDate  *time.Time
	ClearDue bool
	ParentID *string
}

// CreateTask writes a new task file into the list and appends it to the
// list's task order.
func (r *Repository) CreateTask(listID string, in TaskInput) (*task.Task, error) {
	if err := task.ValidateTitle(in.Title); err != nil {
		return nil, err
	}
	l, _, err := r.loadList(listID)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(l.Dir, task.FileName(in.Title))
	if l.TitleTaken(in.Title, "") || fileExists(path) {
		return nil, errs.Errorf(errs.Validation, "task %q already exists in list %q", in.Title, l.Title)
	}

	t := task.New(in.Title, r.now())
	t.Notes = in.Notes
	if in.DueDate != nil {
		due := in.DueDate.UTC()
		t.DueDate = &due
	}
	if in.ParentID != "" {
		if err := r.checkParent(t.ID, in.ParentID); err != nil {
			return nil, err
		}
		t.ParentID = in.ParentID
	}

	// File first: a crash before the order update is repaired on next load.
	if err := r.writeTask(path, &t); err != nil {
		return nil, err
	}
	l.Tasks[t.ID] = &t
	l.Paths[t.ID] = path
	l.Append(t.ID)
	if err := r.meta.Save(l); err != nil {
		return nil, err
	}

	r.notify(Change{Kind: ChangeCreate, ListID: l.Meta.ID, TaskID: t.ID, Title: t.Title})
	return &t, nil
}

// GetTask returns one task of a list.
func (r *Repository) GetTask(listID, taskID string) (*task.Task, error) {
	l, _, err := r.loadList(listID)
	if err != nil {
		return nil, err
	}
	t, ok := l.Tasks[taskID]
	if !ok {
		return nil, errs.Errorf(errs.NotFound, "task %s not found in list %q", taskID, l.Title)
	}
	return t, nil
}

// FindTask looks a task up by id across every list and returns it with the
// id of the list holding it.
func (r *Repository) FindTask(taskID string) (*task.Task, string, error) {
	l, err := r.locate(taskID)
	if err != nil {
		return nil, "", err
	}
	return l.Tasks[taskID], l.Meta.ID, nil
}

// ListTasks returns the tasks of a list in effective order.
func (r *Repository) ListTasks(listID string) ([]task.Task, error) {
	l, _, err := r.loadList(listID)
	if err != nil {
		return nil, err
	}
	return l.Effective(), nil
}

// UpdateTask applies u to the task and refreshes updated_at. A title change
// renames the file.
func (r *Repository) UpdateTask(taskID string, u TaskUpdate) (*task.Task, error) {
	l, err := r.locate(taskID)
	if err != nil {
		return nil, err
	}
	t := *l.Tasks[taskID]
	oldPath := l.Paths[taskID]
	newPath := oldPath

	if u.Title != nil && *u.Title != t.Title {
		title := *u.Title
		if err := task.ValidateTitle(title); err != nil {
			return nil, err
		}
		newPath = filepath.Join(l.Dir, task.FileName(title))
		if l.TitleTaken(title, taskID) || (!strings.EqualFold(title, t.Title) && fileExists(newPath)) {
			return nil, errs.Errorf(errs.Validation, "task %q already exists in list %q", title, l.Title)
		}
		t.Title = title
	}
	if u.Notes != nil {
		t.Notes = *u.Notes
	}
	if u.Status != nil {
		st, err := task.ParseStatus(string(*u.Status))
		if err != nil {
			return nil, err
		}
		t.Status = st
	}
	switch {
	case u.ClearDue:
		t.DueDate = nil
	case u.DueDate != nil:
		due := u.DueDate.UTC()
		t.DueDate = &due
	}
	if u.ParentID != nil && *u.ParentID != t.ParentID {
		if *u.ParentID != "" {
			if err := r.checkParent(taskID, *u.ParentID); err != nil {
				return nil, err
			}
		}
		t.ParentID = *u.ParentID
	}
	t.Touch(r.now())

	if err := r.relocate(oldPath, newPath, &t); err != nil {
		return nil, err
	}
	r.notify(Change{Kind: ChangeUpdate, ListID: l.Meta.ID, TaskID: taskID, Title: t.Title})
	return &t, nil
}

// CompleteTask marks a task as completed.
func (r *Repository) CompleteTask(taskID string) (*task.Task, error) {
	s := task.Completed
	return r.UpdateTask(taskID, TaskUpdate{Status: &s})
}

// UncompleteTask moves a task back to the backlog.
func (r *Repository) UncompleteTask(taskID string) (*task.Task, error) {
	s := task.Backlog
	return r.UpdateTask(taskID, TaskUpdate{Status: &s})
}

// DeleteTask removes the task file and drops the id from its list's order.
func (r *Repository) DeleteTask(taskID string) error {
	l, title, err := r.deleteTask(taskID)
	if err != nil {
		return err
	}
	r.notify(Change{Kind: ChangeDelete, ListID: l.Meta.ID, TaskID: taskID, Title: title})
	return nil
}

func (r *Repository) deleteTask(taskID string) (*listmeta.List, string, error) {
	l, err := r.locate(taskID)
	if err != nil {
		return nil, "", err
	}
	title := l.Tasks[taskID].Title
	if err := os.Remove(l.Paths[taskID]); err != nil && !os.IsNotExist(err) {
		return nil, "", errs.Wrap(errs.IO, "delete task", err)
	}
	delete(l.Tasks, taskID)
	delete(l.Paths, taskID)
	l.Remove(taskID)
	if err := r.meta.Save(l); err != nil {
		return nil, "", err
	}
	return l, title, nil
}

// ReorderTask moves a task to index (clamped) within its list's manual
// order. Nothing is written when the task is already there.
func (r *Repository) ReorderTask(taskID string, index int) error {
	l, err := r.locate(taskID)
	if err != nil {
		return err
	}
	before := l.Index(taskID)
	nl, err := r.meta.Reorder(l.Dir, taskID, index)
	if err != nil {
		return err
	}
	if nl.Index(taskID) != before {
		r.notify(Change{Kind: ChangeMove, ListID: l.Meta.ID, TaskID: taskID, Title: l.Tasks[taskID].Title})
	}
	return nil
}

// MoveTask moves a task into another list, keeping its id and content. The
// task is appended to the destination's order and removed from the source's.
// When the file cannot be placed in the destination the source list is left
// untouched.
func (r *Repository) MoveTask(taskID, dstListID string) (*task.Task, error) {
	src, err := r.locate(taskID)
	if err != nil {
		return nil, err
	}
	if src.Meta.ID == dstListID {
		return src.Tasks[taskID], nil
	}
	dst, _, err := r.loadList(dstListID)
	if err != nil {
		return nil, err
	}
	t := src.Tasks[taskID]
	if dst.TitleTaken(t.Title, "") || fileExists(filepath.Join(dst.Dir, task.FileName(t.Title))) {
		return nil, errs.Errorf(errs.Validation, "task %q already exists in list %q", t.Title, dst.Title)
	}
	moved, err := r.moveLoaded(src, dst, taskID)
	if err != nil {
		return nil, err
	}
	r.notify(Change{Kind: ChangeMove, ListID: dst.Meta.ID, TaskID: taskID, Title: moved.Title})
	return moved, nil
}

// moveLoaded relocates one task between two loaded lists. The file is renamed
// first, so the id exists in exactly one folder at every point; the order
// files are then updated, destination before source. Load repairs both if
// the process stops in between.
func (r *Repository) moveLoaded(src, dst *listmeta.List, taskID string) (*task.Task, error) {
	t := *src.Tasks[taskID]
	from := src.Paths[taskID]
	to := filepath.Join(dst.Dir, task.FileName(t.Title))
	t.Touch(r.now())

	if err := r.relocate(from, to, &t); err != nil {
		return nil, err
	}

	dst.Tasks[taskID] = &t
	dst.Paths[taskID] = to
	dst.Append(taskID)
	if err := r.meta.Save(dst); err != nil {
		return nil, err
	}
	delete(src.Tasks, taskID)
	delete(src.Paths, taskID)
	src.Remove(taskID)
	if err := r.meta.Save(src); err != nil {
		return nil, err
	}
	return &t, nil
}

// relocate writes t to newPath, renaming oldPath first when they differ. If
// the write fails the rename is undone.
func (r *Repository) relocate(oldPath, newPath string, t *task.Task) error {
	if oldPath == newPath {
		return r.writeTask(newPath, t)
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return errs.Wrap(errs.IO, "move task file", err)
	}
	if err := r.writeTask(newPath, t); err != nil {
		if rerr := os.Rename(newPath, oldPath); rerr != nil {
			r.logger.Error("could not restore task file", "from", newPath, "to", oldPath, "err", rerr)
		}
		return err
	}
	return nil
}

// locate finds the list holding taskID.
func (r *Repository) locate(taskID string) (*listmeta.List, error) {
	if taskID == "" {
		return nil, errs.New(errs.Validation, "task id is required")
	}
	refs, _, err := r.scanLists()
	if err != nil {
		return nil, err
	}
	for _, ref := range refs {
		l, err := r.meta.Load(ref.Dir)
		if err != nil {
			return nil, err
		}
		if _, ok := l.Tasks[taskID]; ok {
			return l, nil
		}
	}
	return nil, errs.Errorf(errs.NotFound, "task %s not found", taskID)
}

func (r *Repository) checkParent(taskID, parentID string) error {
	if parentID == taskID {
		return errs.New(errs.Validation, "a task cannot be its own parent")
	}
	parent, err := r.locate(parentID)
	if err != nil {
		if errs.Is(err, errs.NotFound) {
			return errs.Errorf(errs.Validation, "parent task %s does not exist", parentID)
		}
		return err
	}
	if parent.Tasks[parentID].ParentID == taskID {
		return errs.Errorf(errs.Validation, "task %s is already a subtask of %s", parentID, taskID)
	}
	return nil
}
