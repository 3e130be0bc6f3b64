package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"taskfold/internal/storage"
)

// TodoistImporter handles importing from Todoist CSV exports. Rows with
// INDENT 2 or deeper become subtasks of the nearest shallower task; deeper
// levels collapse onto it since lists hold one level of nesting.
type TodoistImporter struct{}

// Name returns the importer name.
func (t *TodoistImporter) Name() string {
	return "todoist"
}

// Import reads tasks from Todoist CSV and adds them to the repository.
func (t *TodoistImporter) Import(reader io.Reader, repo *storage.Repository, opts Options) (*ImportResult, error) {
	tasks, err := t.parseTasks(reader)
	if err != nil {
		return nil, err
	}
	return apply(tasks, repo, opts)
}

// Preview returns a list of tasks that would be imported.
func (t *TodoistImporter) Preview(reader io.Reader) ([]PreviewTask, error) {
	return t.parseTasks(reader)
}

// parseTasks reads and parses the Todoist CSV format.
func (t *TodoistImporter) parseTasks(reader io.Reader) ([]PreviewTask, error) {
	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1
	csvReader.LazyQuotes = true
	csvReader.TrimLeadingSpace = true
	csvReader.ReuseRecord = true

	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		if i == 0 {
			col = strings.TrimPrefix(col, "\ufeff") // UTF-8 BOM (common in some exports)
		}
		colIndex[strings.ToUpper(strings.TrimSpace(col))] = i
	}
	for _, col := range []string{"TYPE", "CONTENT"} {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("missing required column: %s", col)
		}
	}
	field := func(record []string, col string) string {
		if idx, ok := colIndex[col]; ok && idx < len(record) {
			return strings.TrimSpace(record[idx])
		}
		return ""
	}

	var tasks []PreviewTask
	lastTop := -1

	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}
		if len(record) == 0 || strings.ToLower(field(record, "TYPE")) != "task" {
			continue
		}

		pt := PreviewTask{
			Text:    field(record, "CONTENT"),
			Notes:   field(record, "DESCRIPTION"),
			Project: field(record, "PROJECT"),
			DueDate: parseTodoistDate(field(record, "DATE")),
			Parent:  -1,
		}
		if pt.Text == "" {
			continue
		}

		if indent, _ := strconv.Atoi(field(record, "INDENT")); indent > 1 && lastTop >= 0 {
			pt.Parent = lastTop
		} else {
			lastTop = len(tasks)
		}
		tasks = append(tasks, pt)
	}

	return tasks, nil
}

// parseTodoistDate parses various Todoist date formats.
func parseTodoistDate(dateStr string) *time.Time {
	dateStr = strings.TrimSpace(dateStr)
	if dateStr == "" {
		return nil
	}

	formats := []string{
		"2006-01-02",
		"Jan 2 2006",
		"Jan 2, 2006",
		"2 Jan 2006",
		"January 2, 2006",
		"01/02/2006",
		"02/01/2006",
	}

	for _, format := range formats {
		if t, err := time.ParseInLocation(format, dateStr, time.Local); err == nil {
			return &t
		}
	}

	return nil
}
