package ui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"taskfold/internal/listmeta"
	"taskfold/internal/storage"
	"taskfold/internal/task"
)

// shortIDLen is how many id characters listings show. Commands accept any
// unique prefix of at least this length.
const shortIDLen = 8

// ShortID abbreviates an id for display.
func ShortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}

// Task renders one task line: checkbox, title, due indicator and short id.
func (s *Styles) Task(t task.Task, now time.Time) string {
	var b strings.Builder
	if t.IsCompleted() {
		b.WriteString(s.TaskCheckboxDone)
		b.WriteString(" ")
		b.WriteString(s.TaskDoneStyle.Render(t.Title))
	} else {
		b.WriteString(s.TaskCheckboxPending)
		b.WriteString(" ")
		b.WriteString(s.TaskPendingStyle.Render(t.Title))
	}
	if t.DueDate != nil {
		b.WriteString("  ")
		b.WriteString(s.Due(*t.DueDate, now, t.IsCompleted()))
	}
	b.WriteString("  ")
	b.WriteString(s.TaskIDStyle.Render(ShortID(t.ID)))
	return b.String()
}

// Due renders a due date relative to now.
func (s *Styles) Due(due, now time.Time, done bool) string {
	label := FormatDue(due, now)
	switch {
	case done:
		return s.DueDateFutureStyle.Render(label)
	case strings.HasPrefix(label, "overdue"):
		return s.DueDateOverdueStyle.Render(label)
	case label == "due today":
		return s.DueDateTodayStyle.Render(label)
	default:
		return s.DueDateFutureStyle.Render(label)
	}
}

// FormatDue describes a due date relative to now in the local calendar.
func FormatDue(due, now time.Time) string {
	y, m, d := now.Local().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.Local)
	dy, dm, dd := due.Local().Date()
	day := time.Date(dy, dm, dd, 0, 0, 0, 0, time.Local)

	switch days := int(math.Round(day.Sub(today).Hours() / 24)); {
	case days < 0:
		return "overdue " + day.Format("Jan 2")
	case days == 0:
		return "due today"
	case days == 1:
		return "due tomorrow"
	case days < 7:
		return "due " + day.Format("Mon")
	case day.Year() == today.Year():
		return "due " + day.Format("Jan 2")
	default:
		return "due " + day.Format("Jan 2, 2006")
	}
}

// List renders a list header followed by its tasks in effective order.
// Subtasks whose parent is in the same list are indented under it.
func (s *Styles) List(l *storage.TaskList, now time.Time) string {
	var b strings.Builder
	title := s.ListTitleStyle.Render(l.Title)
	if l.Archived {
		title += " " + s.ArchivedStyle.Render("(archived)")
	}
	if l.SortOrder == listmeta.ByDueDate {
		title += " " + s.LabelStyle.Render("· by due date")
	}
	b.WriteString(title)
	b.WriteString("\n")

	if len(l.Tasks) == 0 {
		b.WriteString(s.HelpStyle.Render("  no tasks"))
		b.WriteString("\n")
	}

	inList := make(map[string]bool, len(l.Tasks))
	for _, t := range l.Tasks {
		inList[t.ID] = true
	}
	for i, t := range l.Tasks {
		indent := "  "
		if t.ParentID != "" && inList[t.ParentID] {
			indent = "      "
		}
		fmt.Fprintf(&b, "%s%s %s\n", indent, s.LabelStyle.Render(fmt.Sprintf("%2d.", i+1)), s.Task(t, now))
	}
	for _, p := range l.Problems {
		b.WriteString("  ")
		b.WriteString(s.WarnStyle.Render("skipped: " + p.Error()))
		b.WriteString("\n")
	}
	return b.String()
}

// Lists renders an overview of lists with their task counts.
func (s *Styles) Lists(lists []storage.TaskList) string {
	var b strings.Builder
	for _, l := range lists {
		open := 0
		for _, t := range l.Tasks {
			if !t.IsCompleted() {
				open++
			}
		}
		line := fmt.Sprintf("%s  %s", s.ListTitleStyle.Render(l.Title), s.LabelStyle.Render(fmt.Sprintf("%d open / %d", open, len(l.Tasks))))
		if l.Archived {
			line += " " + s.ArchivedStyle.Render("(archived)")
		}
		fmt.Fprintf(&b, "%s  %s\n", line, s.TaskIDStyle.Render(ShortID(l.ID)))
	}
	return b.String()
}

// Field renders an aligned "label: value" line.
func (s *Styles) Field(label, value string) string {
	return s.LabelStyle.Render(fmt.Sprintf("%-12s", label+":")) + " " + s.ValueStyle.Render(value)
}

// SyncState renders the name of a sync engine state.
func (s *Styles) SyncState(state string) string {
	switch state {
	case "idle":
		return s.SyncIdleStyle.Render("✓ " + state)
	case "pulling", "pushing":
		return s.SyncBusyStyle.Render("↻ " + state)
	case "conflicted":
		return s.SyncConflictedStyle.Render("! " + state)
	case "offline":
		return s.SyncOfflineStyle.Render("○ " + state)
	default:
		return s.SyncDisabledStyle.Render(state)
	}
}

// FormatTimeAgo formats a time as a human-readable "time ago" string.
func FormatTimeAgo(t, now time.Time) string {
	d := now.Sub(t)

	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case d < 24*time.Hour:
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case d < 7*24*time.Hour:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "yesterday"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("Jan 2, 2006")
	}
}
