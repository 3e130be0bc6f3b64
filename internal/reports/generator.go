package reports

import (
	"sort"
	"time"

	"taskfold/internal/storage"
	"taskfold/internal/task"
)

// Generator creates reports from the lists of a repository. Archived lists
// are left out.
//
// Task files carry no completion timestamp; a completed task counts as
// completed at its UpdatedAt.
type Generator struct {
	repo *storage.Repository
	now  func() time.Time
}

// NewGenerator creates a new report generator.
func NewGenerator(repo *storage.Repository) *Generator {
	return &Generator{repo: repo, now: repo.Now}
}

// entry is a task together with the title of its list.
type entry struct {
	task.Task
	list string
}

func (e entry) ref() TaskRef {
	return TaskRef{ID: e.ID, Title: e.Title, List: e.list, Status: e.Status, DueDate: e.DueDate}
}

func (e entry) completedIn(start, end time.Time) bool {
	return e.IsCompleted() && inRange(e.UpdatedAt, start, end)
}

func (g *Generator) entries() ([]entry, error) {
	lists, err := g.repo.Lists()
	if err != nil {
		return nil, err
	}
	var out []entry
	for _, l := range lists {
		if l.Archived {
			continue
		}
		for _, t := range l.Tasks {
			out = append(out, entry{Task: t, list: l.Title})
		}
	}
	return out, nil
}

// GenerateDaily generates a report for a specific date.
func (g *Generator) GenerateDaily(date time.Time) (*DailyReport, error) {
	date = startOfDay(date)
	end := date.AddDate(0, 0, 1)

	entries, err := g.entries()
	if err != nil {
		return nil, err
	}

	return &DailyReport{
		Workspace:   g.repo.Workspace().Name,
		Date:        date,
		Tasks:       taskSummary(entries, date, end),
		GeneratedAt: g.now(),
	}, nil
}

// GenerateWeekly generates a report for the week containing the given date.
func (g *Generator) GenerateWeekly(date time.Time) (*WeeklyReport, error) {
	// Align to start of week (Sunday)
	start := startOfWeekSunday(date)
	end := start.AddDate(0, 0, 7)

	entries, err := g.entries()
	if err != nil {
		return nil, err
	}

	return &WeeklyReport{
		Workspace:      g.repo.Workspace().Name,
		StartDate:      start,
		EndDate:        end.Add(-time.Nanosecond), // End of last day
		Tasks:          weeklyTasks(entries, start, end),
		DailyBreakdown: dailyBreakdown(entries, start, end),
		GeneratedAt:    g.now(),
	}, nil
}

// taskSummary returns task statistics for a date range. Pending tasks are
// those not completed by the end of the range.
func taskSummary(entries []entry, start, end time.Time) TaskSummary {
	var s TaskSummary
	listCounts := make(map[string]int)

	for _, e := range entries {
		if inRange(e.CreatedAt, start, end) {
			s.AddedCount++
		}
		switch {
		case e.completedIn(start, end):
			s.Completed = append(s.Completed, e.ref())
			listCounts[e.list]++
		case !e.IsCompleted() && e.CreatedAt.Before(end):
			s.Pending = append(s.Pending, e.ref())
			if e.DueDate == nil {
				break
			}
			if e.DueDate.Before(start) {
				s.Overdue = append(s.Overdue, e.ref())
			} else if e.DueDate.Before(end) {
				s.DueToday = append(s.DueToday, e.ref())
			}
		}
	}

	sortByDue(s.Overdue)
	sortByDue(s.DueToday)
	s.CompletedCount = len(s.Completed)
	s.PendingCount = len(s.Pending)
	s.ByList = sortedCounts(listCounts)
	return s
}

// weeklyTasks returns task statistics for a week.
func weeklyTasks(entries []entry, start, end time.Time) WeeklyTasks {
	var w WeeklyTasks
	listCounts := make(map[string]int)
	w.ByDay = make([]DayTaskCount, 7)

	// Initialize days
	for i := range w.ByDay {
		day := start.AddDate(0, 0, i)
		w.ByDay[i] = DayTaskCount{
			Date:      day.Format("2006-01-02"),
			DayOfWeek: day.Format("Mon"),
		}
	}

	for _, e := range entries {
		if inRange(e.CreatedAt, start, end) {
			w.TotalAdded++
			if i := dayIndexInRange(e.CreatedAt, start, 7); i >= 0 {
				w.ByDay[i].Added++
			}
		}
		if e.completedIn(start, end) {
			w.TotalCompleted++
			listCounts[e.list]++
			if i := dayIndexInRange(e.UpdatedAt, start, 7); i >= 0 {
				w.ByDay[i].Completed++
			}
		}
		if !e.IsCompleted() && e.DueDate != nil && e.DueDate.Before(end) {
			w.Overdue = append(w.Overdue, e.ref())
		}
	}

	sortByDue(w.Overdue)
	w.ByList = sortedCounts(listCounts)
	return w
}

// dailyBreakdown returns a summary for each day in the period.
func dailyBreakdown(entries []entry, start, end time.Time) []DailySummary {
	days := daysBetween(start, end)
	breakdown := make([]DailySummary, 0, days)

	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i)
		s := taskSummary(entries, day, day.AddDate(0, 0, 1))
		breakdown = append(breakdown, DailySummary{
			Date:           day.Format("2006-01-02"),
			DayOfWeek:      day.Format("Mon"),
			TasksCompleted: s.CompletedCount,
			TasksAdded:     s.AddedCount,
			PendingAtEnd:   s.PendingCount,
		})
	}
	return breakdown
}

func sortedCounts(counts map[string]int) []ListCount {
	out := make([]ListCount, 0, len(counts))
	for list, n := range counts {
		out = append(out, ListCount{List: list, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].List < out[j].List
	})
	return out
}

func sortByDue(refs []TaskRef) {
	sort.SliceStable(refs, func(i, j int) bool {
		return refs[i].DueDate.Before(*refs[j].DueDate)
	})
}

// Helper functions

func inRange(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

// startOfDay returns the start of the day (midnight).
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// startOfWeekSunday returns the start of the week (Sunday).
func startOfWeekSunday(t time.Time) time.Time {
	t = startOfDay(t)
	weekday := int(t.Weekday())
	return t.AddDate(0, 0, -weekday)
}

func daysBetween(start, end time.Time) int {
	if !end.After(start) {
		return 0
	}
	count := 0
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		count++
		if count > 3660 {
			break
		}
	}
	return count
}

func dayIndexInRange(t time.Time, start time.Time, days int) int {
	for i := 0; i < days; i++ {
		if inRange(t, start.AddDate(0, 0, i), start.AddDate(0, 0, i+1)) {
			return i
		}
	}
	return -1
}
