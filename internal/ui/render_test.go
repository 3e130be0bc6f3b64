package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"taskfold/internal/listmeta"
	"taskfold/internal/storage"
	"taskfold/internal/task"
)

func TestShortID(t *testing.T) {
	if got := ShortID("0123456789abcdef"); got != "01234567" {
		t.Errorf("ShortID() = %q", got)
	}
	if got := ShortID("abc"); got != "abc" {
		t.Errorf("ShortID(short) = %q", got)
	}
}

func TestFormatDue(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)
	day := func(d int) time.Time { return time.Date(2026, 3, 10+d, 9, 0, 0, 0, time.Local) }

	tests := []struct {
		name string
		due  time.Time
		want string
	}{
		{"earlier today", day(0), "due today"},
		{"tomorrow", day(1), "due tomorrow"},
		{"yesterday", day(-1), "overdue Mar 9"},
		{"this week", day(3), "due Fri"},
		{"this year", day(30), "due Apr 9"},
		{"next year", day(400), "due Apr 14, 2027"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatDue(tt.due, now); got != tt.want {
				t.Errorf("FormatDue() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTask(t *testing.T) {
	s := createTestStyles(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)

	tk := task.New("Buy milk", now)
	tk.ID = "abcdef0123456789"
	due := now
	tk.DueDate = &due

	if got, want := s.Task(tk, now), "[ ] Buy milk  due today  abcdef01"; got != want {
		t.Errorf("Task() = %q, want %q", got, want)
	}

	tk.Status = task.Completed
	if got := s.Task(tk, now); !strings.HasPrefix(got, "[✓] Buy milk") {
		t.Errorf("Task(completed) = %q", got)
	}
}

func TestList(t *testing.T) {
	s := createTestStyles(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	parent := task.New("Plan trip", now)
	child := task.New("Book hotel", now)
	child.ParentID = parent.ID
	orphan := task.New("Pack", now)
	orphan.ParentID = "elsewhere"

	l := &storage.TaskList{
		Title:     "Travel",
		SortOrder: listmeta.ByDueDate,
		Archived:  true,
		Tasks:     []task.Task{parent, child, orphan},
		Problems:  []error{errors.New("parse Broken.md: missing frontmatter")},
	}
	out := s.List(l, now)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("List() lines = %d, want 5:\n%s", len(lines), out)
	}
	if lines[0] != "Travel (archived) · by due date" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "   1. [ ] Plan trip") {
		t.Errorf("parent line = %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "       2. [ ] Book hotel") {
		t.Errorf("subtask line = %q, want indented", lines[2])
	}
	if !strings.HasPrefix(lines[3], "   3. [ ] Pack") {
		t.Errorf("orphan line = %q, want not indented", lines[3])
	}
	if !strings.Contains(lines[4], "skipped: parse Broken.md") {
		t.Errorf("problem line = %q", lines[4])
	}

	empty := s.List(&storage.TaskList{Title: "Empty"}, now)
	if !strings.Contains(empty, "no tasks") {
		t.Errorf("List(empty) = %q", empty)
	}
}

func TestFormatTimeAgo(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{time.Minute, "1 minute ago"},
		{5 * time.Minute, "5 minutes ago"},
		{3 * time.Hour, "3 hours ago"},
		{30 * time.Hour, "yesterday"},
		{72 * time.Hour, "3 days ago"},
		{30 * 24 * time.Hour, "Feb 8, 2026"},
	}
	for _, tt := range tests {
		if got := FormatTimeAgo(now.Add(-tt.ago), now); got != tt.want {
			t.Errorf("FormatTimeAgo(-%v) = %q, want %q", tt.ago, got, tt.want)
		}
	}
}
