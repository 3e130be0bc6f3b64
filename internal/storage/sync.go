package storage

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"taskfold/internal/errs"
	"taskfold/internal/fsutil"
	"taskfold/internal/listmeta"
	"taskfold/internal/task"
)

// Snapshot returns every readable task in the workspace with its path
// relative to the root. Lists are visited in display order.
func (r *Repository) Snapshot() ([]Entry, error) {
	refs, _, err := r.scanLists()
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, ref := range refs {
		l, err := r.load(ref.Dir)
		if err != nil {
			return nil, err
		}
		for _, t := range l.Ordered() {
			out = append(out, Entry{
				ListID:    l.Meta.ID,
				ListTitle: l.Title,
				Path:      r.relPath(l.Paths[t.ID]),
				Task:      t,
			})
		}
	}
	return out, nil
}

// SplitPath validates a slash-separated task path of the form
// "<list>/<title>.md" and returns its parts.
func SplitPath(rel string) (list, title string, err error) {
	list, file, ok := strings.Cut(rel, "/")
	if !ok || strings.Contains(file, "/") || !task.IsTaskFile(file) {
		return "", "", errs.Errorf(errs.Validation, "%q is not a task path", rel)
	}
	title = task.TitleFromFile(file)
	if err := task.ValidateTitle(list); err != nil {
		return "", "", err
	}
	if err := task.ValidateTitle(title); err != nil {
		return "", "", err
	}
	return list, title, nil
}

// TaskPath joins a list and task title into a slash-separated task path.
func TaskPath(list, title string) string {
	return path.Join(list, task.FileName(title))
}

// ApplyRemote stores a task received from the remote at rel, writing data
// verbatim. A missing list folder is created. A task already present under
// another path is moved there first. Changes applied here are not reported
// through the change hook.
func (r *Repository) ApplyRemote(rel string, data []byte) (*task.Task, error) {
	listTitle, title, err := SplitPath(rel)
	if err != nil {
		return nil, err
	}
	t, err := task.Decode(data, task.FileName(title))
	if err != nil {
		return nil, err
	}

	dst, err := r.listByFolder(listTitle)
	if err != nil {
		return nil, err
	}
	to := filepath.Join(dst.Dir, task.FileName(title))
	if dst.TitleTaken(title, t.ID) {
		return nil, errs.Errorf(errs.Conflict, "remote task %s collides with another task titled %q", t.ID, title)
	}

	src, err := r.locate(t.ID)
	switch {
	case errs.Is(err, errs.NotFound):
		src = nil
	case err != nil:
		return nil, err
	}

	if (src == nil || src.Paths[t.ID] != to) && fileExists(to) {
		return nil, errs.Errorf(errs.Conflict, "remote task %s would replace an unreadable local file %s", t.ID, rel)
	}
	if src != nil && src.Paths[t.ID] != to {
		if err := os.Rename(src.Paths[t.ID], to); err != nil {
			return nil, errs.Wrap(errs.IO, "move task file", err)
		}
	}
	if err := fsutil.WriteFileAtomic(to, data, dataFilePerm); err != nil {
		return nil, errs.Wrap(errs.IO, "write remote task "+rel, err)
	}

	if src != nil && src.Meta.ID == dst.Meta.ID {
		return t, nil
	}
	dst.Tasks[t.ID] = t
	dst.Paths[t.ID] = to
	dst.Append(t.ID)
	if err := r.meta.Save(dst); err != nil {
		return nil, err
	}
	if src != nil {
		delete(src.Tasks, t.ID)
		delete(src.Paths, t.ID)
		src.Remove(t.ID)
		if err := r.meta.Save(src); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// RemoveTaskByID deletes a task without reporting it through the change
// hook. It is used for deletions that arrive from the remote.
func (r *Repository) RemoveTaskByID(taskID string) error {
	_, _, err := r.deleteTask(taskID)
	return err
}

// listByFolder loads the list stored in folder name, creating it if needed.
func (r *Repository) listByFolder(name string) (*listmeta.List, error) {
	refs, _, err := r.scanLists()
	if err != nil {
		return nil, err
	}
	for _, ref := range refs {
		if ref.Title == name {
			return r.load(ref.Dir)
		}
	}
	tl, err := r.createList(name)
	if err != nil {
		return nil, err
	}
	return r.load(filepath.Join(r.ws.Root, tl.Title))
}
