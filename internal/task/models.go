// Package task holds the Task model and the codec for task files: a YAML
// frontmatter block followed by a free-text markdown body. The task title is
// the file name without its extension.
package task

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"taskfold/internal/errs"
)

// SchemaVersion is the frontmatter version written by Encode.
const SchemaVersion = 1

const (
	// Ext is the task file extension.
	Ext = ".md"
	// ReservedPrefix marks configuration and temp files that are never tasks.
	ReservedPrefix = "."

	maxTitleLen = 200
)

// Status is the completion state of a task.
type Status string

const (
	Backlog   Status = "backlog"
	Completed Status = "completed"
)

// ParseStatus accepts the persisted spellings, case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case Backlog:
		return Backlog, nil
	case Completed:
		return Completed, nil
	}
	return "", errs.Errorf(errs.Validation, "unknown status %q", s)
}

// Field is a frontmatter entry the current schema does not know about. It is
// kept as a raw YAML node and written back unchanged.
type Field struct {
	Key   string
	Value *yaml.Node
}

// Task is a single task file.
type Task struct {
	ID        string
	Title     string
	Notes     string
	Status    Status
	DueDate   *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	ParentID  string

	// Version is the schema version the task was read with.
	Version int
	// Extra holds unrecognized frontmatter keys in file order.
	Extra []Field
}

// New returns a backlog task with a fresh id.
func New(title string, now time.Time) Task {
	now = now.UTC()
	return Task{
		ID:        uuid.NewString(),
		Title:     title,
		Status:    Backlog,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   SchemaVersion,
	}
}

// Touch refreshes UpdatedAt. The timestamp never moves backwards: when the
// clock is behind the stored value, the stored value is advanced slightly so
// the change still registers as newer.
func (t *Task) Touch(now time.Time) {
	now = now.UTC()
	if now.After(t.UpdatedAt) {
		t.UpdatedAt = now
		return
	}
	t.UpdatedAt = t.UpdatedAt.Add(time.Millisecond)
}

// IsCompleted reports whether the task is done.
func (t *Task) IsCompleted() bool {
	return t.Status == Completed
}

// FileName returns the file name for a title.
func FileName(title string) string {
	return title + Ext
}

// IsTaskFile reports whether a directory entry name is a task file.
func IsTaskFile(name string) bool {
	return !strings.HasPrefix(name, ReservedPrefix) &&
		strings.HasSuffix(name, Ext) &&
		len(name) > len(Ext)
}

// TitleFromFile strips the task extension from a file name.
func TitleFromFile(name string) string {
	return strings.TrimSuffix(name, Ext)
}

// ValidateTitle checks that a title can be used as a file or folder name.
func ValidateTitle(title string) error {
	switch {
	case strings.TrimSpace(title) == "":
		return errs.New(errs.Validation, "title is required")
	case strings.TrimSpace(title) != title:
		return errs.Errorf(errs.Validation, "title %q has leading or trailing whitespace", title)
	case len(title) > maxTitleLen:
		return errs.Errorf(errs.Validation, "title too long (max %d)", maxTitleLen)
	case strings.HasPrefix(title, ReservedPrefix):
		return errs.Errorf(errs.Validation, "title %q must not start with %q", title, ReservedPrefix)
	case strings.ContainsAny(title, `/\`):
		return errs.Errorf(errs.Validation, "title %q must not contain path separators", title)
	}
	for _, r := range title {
		if unicode.IsControl(r) {
			return errs.Errorf(errs.Validation, "title %q contains control characters", title)
		}
	}
	return nil
}

func (t Task) String() string {
	return fmt.Sprintf("%s (%s)", t.Title, t.ID)
}
