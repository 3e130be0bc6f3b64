package storage

import (
	"time"

	"taskfold/internal/listmeta"
	"taskfold/internal/task"
)

// ChangeKind names the kind of a committed mutation.
type ChangeKind string

const (
	ChangeCreate ChangeKind = "create"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
	ChangeMove   ChangeKind = "move"
)

// Change describes a mutation after it reached disk. List-level changes leave
// TaskID empty.
type Change struct {
	Kind   ChangeKind
	ListID string
	TaskID string
	Title  string // task or list title, for log lines
}

// TaskList is a list with its tasks in effective display order.
type TaskList struct {
	ID        string
	Title     string
	SortOrder listmeta.SortOrder
	TaskOrder []string
	Archived  bool
	Position  int
	CreatedAt time.Time
	UpdatedAt time.Time

	Tasks []task.Task
	// Problems holds per-file errors for task files that were skipped.
	Problems []error
}

// Entry is a task together with its location, as seen by the sync engine.
type Entry struct {
	ListID    string
	ListTitle string
	// Path is the slash-separated path relative to the workspace root,
	// e.g. "Work/Call vendor.md".
	Path string
	Task task.Task
}
