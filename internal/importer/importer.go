// Package importer provides import functionality for migrating tasks from
// other productivity tools like Todoist and Taskwarrior.
//
// A project in the source becomes a list of the same name; tasks without a
// project go to a default list.
package importer

import (
	"fmt"
	"io"
	"strings"
	"time"

	"taskfold/internal/storage"
	"taskfold/internal/task"
)

// ImportResult contains statistics about an import operation.
type ImportResult struct {
	Imported int      // Number of successfully imported tasks
	Skipped  int      // Number of tasks whose title already exists in the list
	Lists    []string // Lists created by the import
	Errors   []string // Error messages for failed imports
}

// PreviewTask represents a task preview before import.
type PreviewTask struct {
	Text    string
	Notes   string
	Project string
	DueDate *time.Time
	Done    bool

	// Parent is the index of the parent task in the parsed slice, or -1.
	Parent int
}

// Options controls where imported tasks land.
type Options struct {
	// DefaultList receives tasks without a project. Empty means the last
	// opened list, or the first list.
	DefaultList string

	// IgnoreProjects puts every task into the default list.
	IgnoreProjects bool
}

// Importer defines the interface for import implementations.
type Importer interface {
	// Import reads tasks from the reader and adds them to the repository.
	Import(reader io.Reader, repo *storage.Repository, opts Options) (*ImportResult, error)

	// Preview reads tasks from the reader without importing.
	Preview(reader io.Reader) ([]PreviewTask, error)

	// Name returns the importer name (e.g., "todoist", "taskwarrior").
	Name() string
}

// GetImporter returns the appropriate importer for the given format.
func GetImporter(format string) Importer {
	switch strings.ToLower(format) {
	case "todoist":
		return &TodoistImporter{}
	case "taskwarrior":
		return &TaskwarriorImporter{}
	default:
		return nil
	}
}

// SupportedFormats returns the list of supported import formats.
func SupportedFormats() []string {
	return []string{"todoist", "taskwarrior"}
}

// listIndex resolves list titles to ids, creating lists on first use, and
// tracks the titles taken in each list.
type listIndex struct {
	repo    *storage.Repository
	byTitle map[string]string          // lower-case title -> id
	taken   map[string]map[string]bool // list id -> lower-case task titles
	created []string
}

func newListIndex(repo *storage.Repository) (*listIndex, error) {
	lists, err := repo.Lists()
	if err != nil {
		return nil, err
	}
	idx := &listIndex{
		repo:    repo,
		byTitle: make(map[string]string, len(lists)),
		taken:   make(map[string]map[string]bool, len(lists)),
	}
	for _, l := range lists {
		idx.add(l)
	}
	return idx, nil
}

func (x *listIndex) add(l storage.TaskList) {
	x.byTitle[strings.ToLower(l.Title)] = l.ID
	titles := make(map[string]bool, len(l.Tasks))
	for _, t := range l.Tasks {
		titles[strings.ToLower(t.Title)] = true
	}
	x.taken[l.ID] = titles
}

func (x *listIndex) resolve(title string) (string, error) {
	if id, ok := x.byTitle[strings.ToLower(title)]; ok {
		return id, nil
	}
	l, err := x.repo.CreateList(title)
	if err != nil {
		return "", err
	}
	x.add(*l)
	x.created = append(x.created, l.Title)
	return l.ID, nil
}

// defaultList picks the list for tasks without a project.
func (x *listIndex) defaultList(title string) (string, error) {
	if title != "" {
		return x.resolve(title)
	}
	id, err := x.repo.LastOpenedList()
	if err != nil {
		return "", err
	}
	if id != "" {
		if _, ok := x.taken[id]; ok {
			return id, nil
		}
	}
	lists, err := x.repo.Lists()
	if err != nil {
		return "", err
	}
	if len(lists) == 0 {
		return x.resolve(storage.DefaultListTitle)
	}
	return lists[0].ID, nil
}

// apply writes parsed tasks into the repository in order. A subtask whose
// parent was not imported becomes a top-level task.
func apply(tasks []PreviewTask, repo *storage.Repository, opts Options) (*ImportResult, error) {
	idx, err := newListIndex(repo)
	if err != nil {
		return nil, err
	}
	fallback, err := idx.defaultList(opts.DefaultList)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	ids := make([]string, len(tasks))
	listOf := make([]string, len(tasks))

	for i, pt := range tasks {
		title := cleanTitle(pt.Text)
		if err := task.ValidateTitle(title); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", pt.Text, err))
			continue
		}

		listID := fallback
		if pt.Project != "" && !opts.IgnoreProjects {
			if listID, err = idx.resolve(cleanTitle(pt.Project)); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: project %q: %v", title, pt.Project, err))
				continue
			}
		}
		if idx.taken[listID][strings.ToLower(title)] {
			result.Skipped++
			continue
		}

		in := storage.TaskInput{Title: title, Notes: pt.Notes, DueDate: pt.DueDate}
		if p := pt.Parent; p >= 0 && p < i && ids[p] != "" && listOf[p] == listID {
			in.ParentID = ids[p]
		}
		added, err := repo.CreateTask(listID, in)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", title, err))
			continue
		}
		idx.taken[listID][strings.ToLower(title)] = true
		ids[i], listOf[i] = added.ID, listID

		// Mark as complete if it was completed in the source
		if pt.Done {
			if _, err := repo.CompleteTask(added.ID); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("failed to mark %s as complete: %v", title, err))
			}
		}
		result.Imported++
	}

	result.Lists = idx.created
	return result, nil
}

// cleanTitle turns free text into a usable file title.
func cleanTitle(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.NewReplacer("/", "-", `\`, "-").Replace(s)
	s = strings.TrimLeft(s, task.ReservedPrefix+" ")
	if len(s) > 200 {
		s = strings.TrimSpace(strings.ToValidUTF8(s[:200], ""))
	}
	return s
}
