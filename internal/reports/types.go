// Package reports provides daily and weekly report generation over the task
// lists of a workspace.
package reports

import (
	"time"

	"taskfold/internal/task"
)

// DailyReport contains aggregated data for a single day.
type DailyReport struct {
	Workspace   string      `json:"workspace"`
	Date        time.Time   `json:"date"`
	Tasks       TaskSummary `json:"tasks"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// WeeklyReport contains aggregated data for a week.
type WeeklyReport struct {
	Workspace      string         `json:"workspace"`
	StartDate      time.Time      `json:"start_date"`
	EndDate        time.Time      `json:"end_date"`
	Tasks          WeeklyTasks    `json:"tasks"`
	DailyBreakdown []DailySummary `json:"daily_breakdown"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

// TaskRef identifies a task in a report.
type TaskRef struct {
	ID      string      `json:"id"`
	Title   string      `json:"title"`
	List    string      `json:"list"`
	Status  task.Status `json:"status"`
	DueDate *time.Time  `json:"due_date,omitempty"`
}

// TaskSummary contains task statistics for a period.
type TaskSummary struct {
	Completed      []TaskRef   `json:"completed"`
	Pending        []TaskRef   `json:"pending"`
	Overdue        []TaskRef   `json:"overdue"`
	DueToday       []TaskRef   `json:"due_today"`
	CompletedCount int         `json:"completed_count"`
	PendingCount   int         `json:"pending_count"`
	AddedCount     int         `json:"added_count"`
	ByList         []ListCount `json:"by_list"`
}

// ListCount represents a count of completed tasks grouped by list.
type ListCount struct {
	List  string `json:"list"`
	Count int    `json:"count"`
}

// WeeklyTasks contains task statistics for a week. Overdue holds open tasks
// due before the end of the week.
type WeeklyTasks struct {
	TotalCompleted int            `json:"total_completed"`
	TotalAdded     int            `json:"total_added"`
	Overdue        []TaskRef      `json:"overdue"`
	ByList         []ListCount    `json:"by_list"`
	ByDay          []DayTaskCount `json:"by_day"`
}

// DayTaskCount represents task counts for a specific day.
type DayTaskCount struct {
	Date      string `json:"date"`
	DayOfWeek string `json:"day_of_week"`
	Completed int    `json:"completed"`
	Added     int    `json:"added"`
}

// DailySummary provides a quick overview of a single day within a week.
type DailySummary struct {
	Date           string `json:"date"`
	DayOfWeek      string `json:"day_of_week"`
	TasksCompleted int    `json:"tasks_completed"`
	TasksAdded     int    `json:"tasks_added"`
	PendingAtEnd   int    `json:"pending_at_end"`
}
