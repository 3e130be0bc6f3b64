package reports

import (
	"fmt"
	"strings"

	"taskfold/internal/task"
)

// FormatDailyMarkdown formats a daily report as Markdown.
func FormatDailyMarkdown(report *DailyReport) string {
	var b strings.Builder
	s := report.Tasks

	fmt.Fprintf(&b, "# Daily report: %s\n\n", report.Date.Format("Monday, January 2, 2006"))
	fmt.Fprintf(&b, "Workspace **%s**: %d completed, %d added, %d open.\n",
		report.Workspace, s.CompletedCount, s.AddedCount, s.PendingCount)

	writeRefs(&b, "Completed", s.Completed, false)
	writeRefs(&b, "Overdue", s.Overdue, true)
	writeRefs(&b, "Due today", s.DueToday, false)
	writeCounts(&b, s.ByList)
	return b.String()
}

// FormatWeeklyMarkdown formats a weekly report as Markdown.
func FormatWeeklyMarkdown(report *WeeklyReport) string {
	var b strings.Builder
	w := report.Tasks

	fmt.Fprintf(&b, "# Weekly report: %s to %s\n\n",
		report.StartDate.Format("Jan 2"), report.EndDate.Format("Jan 2, 2006"))
	fmt.Fprintf(&b, "Workspace **%s**: %d completed, %d added.\n",
		report.Workspace, w.TotalCompleted, w.TotalAdded)

	b.WriteString("\n## By day\n\n")
	b.WriteString("| Day | Date | Completed | Added |\n")
	b.WriteString("|-----|------|-----------|-------|\n")
	for _, d := range w.ByDay {
		fmt.Fprintf(&b, "| %s | %s | %d | %d |\n", d.DayOfWeek, d.Date, d.Completed, d.Added)
	}

	writeCounts(&b, w.ByList)
	writeRefs(&b, "Open and due this week", w.Overdue, true)
	return b.String()
}

func writeRefs(b *strings.Builder, heading string, refs []TaskRef, withDue bool) {
	if len(refs) == 0 {
		return
	}
	fmt.Fprintf(b, "\n## %s\n\n", heading)
	for _, r := range refs {
		check := " "
		if r.Status == task.Completed {
			check = "x"
		}
		fmt.Fprintf(b, "- [%s] %s _(%s)_", check, r.Title, r.List)
		if withDue && r.DueDate != nil {
			fmt.Fprintf(b, " due %s", r.DueDate.Local().Format("Jan 2"))
		}
		b.WriteString("\n")
	}
}

func writeCounts(b *strings.Builder, counts []ListCount) {
	if len(counts) == 0 {
		return
	}
	b.WriteString("\n## Completed by list\n\n")
	for _, c := range counts {
		fmt.Fprintf(b, "- %s: %d\n", c.List, c.Count)
	}
}
