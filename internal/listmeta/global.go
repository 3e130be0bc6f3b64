package listmeta

import (
	"errors"
	"path/filepath"
	"sort"
	"time"

	"taskfold/internal/errs"
	"taskfold/internal/fsutil"
)

const (
	// GlobalFileName is the workspace-level metadata file at the root.
	GlobalFileName = ".metadata.json"
	// GlobalVersion is the current format version of the global file.
	GlobalVersion = 1
)

// Global is the workspace-level metadata: display order of lists and the last
// list opened.
type Global struct {
	Version        int      `json:"version"`
	ListOrder      []string `json:"list_order"`
	LastOpenedList string   `json:"last_opened_list,omitempty"`
}

// ListRef identifies a list folder during global reconciliation.
type ListRef struct {
	ID        string
	CreatedAt time.Time
	Title     string
}

// Position returns the display position of a list, or -1.
func (g *Global) Position(listID string) int {
	for i, id := range g.ListOrder {
		if id == listID {
			return i
		}
	}
	return -1
}

// LoadGlobal reads root/.metadata.json and reconciles list_order against the
// lists present, the same way Load reconciles task_order.
func (s *Store) LoadGlobal(root string, lists []ListRef) (*Global, error) {
	g := &Global{}
	found, err := fsutil.LoadJSON(filepath.Join(root, GlobalFileName), g, dataFilePerm)
	var rec *fsutil.RecoveredError
	if err != nil && !errors.As(err, &rec) {
		return nil, errs.Wrap(errs.IO, "load workspace metadata", err)
	}
	changed := !found || (rec != nil && rec.Reset)
	if g.Version == 0 {
		g.Version = GlobalVersion
		changed = true
	}

	present := make(map[string]ListRef, len(lists))
	for _, l := range lists {
		present[l.ID] = l
	}
	seen := make(map[string]bool, len(g.ListOrder))
	order := make([]string, 0, len(lists))
	for _, id := range g.ListOrder {
		if _, ok := present[id]; ok && !seen[id] {
			seen[id] = true
			order = append(order, id)
		}
	}
	var missing []ListRef
	for _, l := range lists {
		if !seen[l.ID] {
			missing = append(missing, l)
		}
	}
	sort.Slice(missing, func(i, j int) bool {
		if !missing[i].CreatedAt.Equal(missing[j].CreatedAt) {
			return missing[i].CreatedAt.Before(missing[j].CreatedAt)
		}
		return missing[i].Title < missing[j].Title
	})
	for _, l := range missing {
		order = append(order, l.ID)
	}
	if !equalOrder(order, g.ListOrder) {
		g.ListOrder = order
		changed = true
	}
	if _, ok := present[g.LastOpenedList]; g.LastOpenedList != "" && !ok {
		g.LastOpenedList = ""
		changed = true
	}

	if changed {
		if err := s.SaveGlobal(root, g); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// SaveGlobal persists root/.metadata.json.
func (s *Store) SaveGlobal(root string, g *Global) error {
	if g.ListOrder == nil {
		g.ListOrder = []string{}
	}
	if err := s.write(filepath.Join(root, GlobalFileName), g); err != nil {
		return errs.Wrap(errs.IO, "save workspace metadata", err)
	}
	return nil
}
