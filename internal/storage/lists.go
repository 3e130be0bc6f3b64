package storage

import (
	"os"
	"path/filepath"
	"strings"

	"taskfold/internal/errs"
	"taskfold/internal/listmeta"
	"taskfold/internal/task"
)

// Lists returns every list in display order.
func (r *Repository) Lists() ([]TaskList, error) {
	refs, g, err := r.scanLists()
	if err != nil {
		return nil, err
	}
	out := make([]TaskList, 0, len(refs))
	for _, ref := range refs {
		l, err := r.load(ref.Dir)
		if err != nil {
			return nil, err
		}
		out = append(out, *toTaskList(l, g))
	}
	return out, nil
}

// GetList returns a list with its tasks in effective order.
func (r *Repository) GetList(listID string) (*TaskList, error) {
	l, g, err := r.loadList(listID)
	if err != nil {
		return nil, err
	}
	return toTaskList(l, g), nil
}

// FindListByTitle looks a list up by folder name, ignoring case.
func (r *Repository) FindListByTitle(title string) (*TaskList, error) {
	refs, _, err := r.scanLists()
	if err != nil {
		return nil, err
	}
	for _, ref := range refs {
		if strings.EqualFold(ref.Title, title) {
			return r.GetList(ref.ID)
		}
	}
	return nil, errs.Errorf(errs.NotFound, "list %q not found", title)
}

// LastOpenedList returns the id of the list opened last, if any.
func (r *Repository) LastOpenedList() (string, error) {
	_, g, err := r.scanLists()
	if err != nil {
		return "", err
	}
	return g.LastOpenedList, nil
}

// MarkOpened records listID as the last opened list.
func (r *Repository) MarkOpened(listID string) error {
	_, g, err := r.resolveList(listID)
	if err != nil {
		return err
	}
	if g.LastOpenedList == listID {
		return nil
	}
	g.LastOpenedList = listID
	return r.meta.SaveGlobal(r.ws.Root, g)
}

// CreateList makes a new list folder, appends it to the workspace list order
// and marks it as last opened.
func (r *Repository) CreateList(title string) (*TaskList, error) {
	tl, err := r.createList(title)
	if err != nil {
		return nil, err
	}
	r.notify(Change{Kind: ChangeCreate, ListID: tl.ID, Title: title})
	return tl, nil
}

func (r *Repository) createList(title string) (*TaskList, error) {
	if err := task.ValidateTitle(title); err != nil {
		return nil, err
	}
	refs, g, err := r.scanLists()
	if err != nil {
		return nil, err
	}
	if err := r.checkListTitle(refs, title, ""); err != nil {
		return nil, err
	}

	dir := filepath.Join(r.ws.Root, title)
	if err := os.Mkdir(dir, dataDirPerm); err != nil {
		return nil, errs.Wrap(errs.IO, "create list folder", err)
	}
	l, err := r.meta.Create(dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	g.ListOrder = append(g.ListOrder, l.Meta.ID)
	g.LastOpenedList = l.Meta.ID
	if err := r.meta.SaveGlobal(r.ws.Root, g); err != nil {
		return nil, err
	}
	return toTaskList(l, g), nil
}

// RenameList renames the list folder. The list id and task order are kept.
func (r *Repository) RenameList(listID, title string) (*TaskList, error) {
	if err := task.ValidateTitle(title); err != nil {
		return nil, err
	}
	refs, _, err := r.scanLists()
	if err != nil {
		return nil, err
	}
	var ref *listRef
	for i := range refs {
		if refs[i].ID == listID {
			ref = &refs[i]
		}
	}
	if ref == nil {
		return nil, errs.Errorf(errs.NotFound, "list %s not found", listID)
	}
	if ref.Title == title {
		return r.GetList(listID)
	}
	if err := r.checkListTitle(refs, title, listID); err != nil {
		return nil, err
	}

	if err := os.Rename(ref.Dir, filepath.Join(r.ws.Root, title)); err != nil {
		return nil, errs.Wrap(errs.IO, "rename list", err)
	}
	r.notify(Change{Kind: ChangeUpdate, ListID: listID, Title: title})
	return r.GetList(listID)
}

// ArchiveList sets or clears the archived flag.
func (r *Repository) ArchiveList(listID string, archived bool) (*TaskList, error) {
	ref, g, err := r.resolveList(listID)
	if err != nil {
		return nil, err
	}
	l, err := r.meta.SetArchived(ref.Dir, archived)
	if err != nil {
		return nil, err
	}
	r.notify(Change{Kind: ChangeUpdate, ListID: listID, Title: l.Title})
	return toTaskList(l, g), nil
}

// SetSortOrder changes how the list's effective order is computed.
func (r *Repository) SetSortOrder(listID string, order listmeta.SortOrder) (*TaskList, error) {
	ref, g, err := r.resolveList(listID)
	if err != nil {
		return nil, err
	}
	l, err := r.meta.SetSortOrder(ref.Dir, order)
	if err != nil {
		return nil, err
	}
	return toTaskList(l, g), nil
}

// ReorderList moves a list to index (clamped) in the workspace list order.
func (r *Repository) ReorderList(listID string, index int) error {
	_, g, err := r.resolveList(listID)
	if err != nil {
		return err
	}
	cur := g.Position(listID)
	last := len(g.ListOrder) - 1
	if index < 0 {
		index = 0
	}
	if index > last {
		index = last
	}
	if index == cur {
		return nil
	}
	order := append(g.ListOrder[:cur:cur], g.ListOrder[cur+1:]...)
	order = append(order[:index], append([]string{listID}, order[index:]...)...)
	g.ListOrder = order
	return r.meta.SaveGlobal(r.ws.Root, g)
}

// DeleteList removes the list folder and every task in it.
func (r *Repository) DeleteList(listID string) error {
	ref, g, err := r.resolveList(listID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(ref.Dir); err != nil {
		return errs.Wrap(errs.IO, "delete list", err)
	}
	if err := r.dropFromGlobal(g, listID); err != nil {
		return err
	}
	r.notify(Change{Kind: ChangeDelete, ListID: listID, Title: ref.Title})
	return nil
}

// MergeList moves every task of src into dst, keeping src's manual order and
// appending it after dst's tasks. All title collisions are checked before the
// first task moves. With deleteSource the emptied src folder is removed.
func (r *Repository) MergeList(srcID, dstID string, deleteSource bool) (*TaskList, error) {
	if srcID == dstID {
		return nil, errs.New(errs.Validation, "cannot merge a list into itself")
	}
	refs, g, err := r.scanLists()
	if err != nil {
		return nil, err
	}
	srcRef, dstRef, err := pickLists(refs, srcID, dstID)
	if err != nil {
		return nil, err
	}
	src, err := r.load(srcRef.Dir)
	if err != nil {
		return nil, err
	}
	dst, err := r.load(dstRef.Dir)
	if err != nil {
		return nil, err
	}

	for _, id := range src.Meta.TaskOrder {
		t := src.Tasks[id]
		if dst.TitleTaken(t.Title, "") || fileExists(filepath.Join(dst.Dir, task.FileName(t.Title))) {
			return nil, errs.Errorf(errs.Validation, "task %q already exists in list %q", t.Title, dst.Title)
		}
	}

	ids := append([]string(nil), src.Meta.TaskOrder...)
	for _, id := range ids {
		if _, err := r.moveLoaded(src, dst, id); err != nil {
			return nil, err
		}
	}
	if len(ids) > 0 {
		r.notify(Change{Kind: ChangeMove, ListID: dstID, Title: dst.Title})
	}

	if deleteSource {
		if len(src.Problems) > 0 {
			return nil, errs.Errorf(errs.Validation,
				"list %q still holds %d unreadable task file(s); not deleted", src.Title, len(src.Problems))
		}
		if err := os.RemoveAll(src.Dir); err != nil {
			return nil, errs.Wrap(errs.IO, "delete merged list", err)
		}
		if err := r.dropFromGlobal(g, srcID); err != nil {
			return nil, err
		}
		r.notify(Change{Kind: ChangeDelete, ListID: srcID, Title: src.Title})
	}
	return r.GetList(dstID)
}

func (r *Repository) dropFromGlobal(g *listmeta.Global, listID string) error {
	if i := g.Position(listID); i >= 0 {
		g.ListOrder = append(g.ListOrder[:i:i], g.ListOrder[i+1:]...)
	}
	if g.LastOpenedList == listID {
		g.LastOpenedList = ""
	}
	return r.meta.SaveGlobal(r.ws.Root, g)
}

func (r *Repository) checkListTitle(refs []listRef, title, exceptID string) error {
	for _, ref := range refs {
		if ref.ID != exceptID && strings.EqualFold(ref.Title, title) {
			return errs.Errorf(errs.Validation, "list %q already exists", title)
		}
	}
	if fileExists(filepath.Join(r.ws.Root, title)) && !r.isListDir(refs, title, exceptID) {
		return errs.Errorf(errs.Validation, "%q already exists in the workspace folder", title)
	}
	return nil
}

func (r *Repository) isListDir(refs []listRef, title, id string) bool {
	for _, ref := range refs {
		if ref.ID == id && ref.Title == title {
			return true
		}
	}
	return false
}

func pickLists(refs []listRef, srcID, dstID string) (src, dst listRef, err error) {
	var haveSrc, haveDst bool
	for _, ref := range refs {
		switch ref.ID {
		case srcID:
			src, haveSrc = ref, true
		case dstID:
			dst, haveDst = ref, true
		}
	}
	if !haveSrc {
		return src, dst, errs.Errorf(errs.NotFound, "list %s not found", srcID)
	}
	if !haveDst {
		return src, dst, errs.Errorf(errs.NotFound, "list %s not found", dstID)
	}
	return src, dst, nil
}
