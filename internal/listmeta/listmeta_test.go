package listmeta

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"taskfold/internal/fsutil"
	"taskfold/internal/task"
)

var baseTime = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

// countingStore returns a Store whose writes are counted.
func countingStore(t *testing.T) (*Store, *int) {
	t.Helper()
	s := NewStore()
	s.SetNowFunc(func() time.Time { return baseTime })
	writes := 0
	s.write = func(path string, v any) error {
		writes++
		return fsutil.WriteJSON(path, v, dataFilePerm)
	}
	return s, &writes
}

// writeTask puts a task file into dir and returns its id.
func writeTask(t *testing.T, dir, title string, created time.Time, due *time.Time) string {
	t.Helper()
	tk := task.New(title, created)
	tk.DueDate = due
	data, err := task.Encode(&tk)
	if err != nil {
		t.Fatalf("encode %s: %v", title, err)
	}
	if err := os.WriteFile(filepath.Join(dir, task.FileName(title)), data, 0o600); err != nil {
		t.Fatal(err)
	}
	return tk.ID
}

func titles(tasks []task.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Title
	}
	return out
}

func TestLoadCreatesMissingMetadata(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Work")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	a := writeTask(t, dir, "A", baseTime, nil)

	s, writes := countingStore(t)
	l, err := s.Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if l.Meta.ID == "" || l.Meta.SortOrder != Manual {
		t.Errorf("Meta = %+v, want fresh manual metadata", l.Meta)
	}
	if !reflect.DeepEqual(l.Meta.TaskOrder, []string{a}) {
		t.Errorf("TaskOrder = %v, want [%s]", l.Meta.TaskOrder, a)
	}
	if *writes != 1 {
		t.Errorf("writes = %d, want 1", *writes)
	}
	if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
		t.Errorf("metadata not written: %v", err)
	}
}

func TestLoadReconcilesOrder(t *testing.T) {
	dir := t.TempDir()
	s, writes := countingStore(t)
	l, err := s.Create(dir)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	a := writeTask(t, dir, "A", baseTime.Add(1*time.Hour), nil)
	b := writeTask(t, dir, "B", baseTime.Add(2*time.Hour), nil)
	c := writeTask(t, dir, "C", baseTime.Add(3*time.Hour), nil)
	d := writeTask(t, dir, "D", baseTime.Add(4*time.Hour), nil)

	// Stored order knows about C and A plus an id whose file is gone.
	l.Meta.TaskOrder = []string{c, "ghost", a}
	if err := s.Save(l); err != nil {
		t.Fatal(err)
	}
	*writes = 0

	l, err = s.Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := []string{c, a, b, d}
	if !reflect.DeepEqual(l.Meta.TaskOrder, want) {
		t.Errorf("TaskOrder = %v, want %v", l.Meta.TaskOrder, want)
	}
	if *writes != 1 {
		t.Errorf("writes = %d, want 1 (self-healing write-back)", *writes)
	}

	// A second load finds nothing to repair.
	*writes = 0
	if _, err := s.Load(dir); err != nil {
		t.Fatal(err)
	}
	if *writes != 0 {
		t.Errorf("writes on clean load = %d, want 0", *writes)
	}
}

func TestReorder(t *testing.T) {
	dir := t.TempDir()
	s, writes := countingStore(t)
	if _, err := s.Create(dir); err != nil {
		t.Fatal(err)
	}
	a := writeTask(t, dir, "A", baseTime.Add(1*time.Minute), nil)
	b := writeTask(t, dir, "B", baseTime.Add(2*time.Minute), nil)
	c := writeTask(t, dir, "C", baseTime.Add(3*time.Minute), nil)
	if _, err := s.Load(dir); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		id    string
		index int
		want  []string
	}{
		{"to front", b, 0, []string{b, a, c}},
		{"clamp high", b, 99, []string{a, c, b}},
		{"clamp low", b, -3, []string{b, a, c}},
		{"middle", c, 1, []string{b, c, a}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := s.Reorder(dir, tt.id, tt.index)
			if err != nil {
				t.Fatalf("Reorder failed: %v", err)
			}
			if !reflect.DeepEqual(l.Meta.TaskOrder, tt.want) {
				t.Errorf("TaskOrder = %v, want %v", l.Meta.TaskOrder, tt.want)
			}
		})
	}

	t.Run("no-op performs zero writes", func(t *testing.T) {
		*writes = 0
		l, err := s.Reorder(dir, c, 1)
		if err != nil {
			t.Fatalf("Reorder failed: %v", err)
		}
		if l.Index(c) != 1 {
			t.Fatalf("Index(c) = %d, want 1", l.Index(c))
		}
		if *writes != 0 {
			t.Errorf("writes = %d, want 0", *writes)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		if _, err := s.Reorder(dir, "nope", 0); err == nil {
			t.Error("expected error for unknown id")
		}
	})
}

func TestEffectiveOrderByDueDate(t *testing.T) {
	dir := t.TempDir()
	s, _ := countingStore(t)
	if _, err := s.Create(dir); err != nil {
		t.Fatal(err)
	}
	in3Days := baseTime.Add(72 * time.Hour)
	tomorrow := baseTime.Add(24 * time.Hour)
	writeTask(t, dir, "A", baseTime.Add(1*time.Minute), &in3Days)
	writeTask(t, dir, "B", baseTime.Add(2*time.Minute), &tomorrow)
	writeTask(t, dir, "C", baseTime.Add(3*time.Minute), nil)
	writeTask(t, dir, "D", baseTime.Add(4*time.Minute), &tomorrow)

	l, err := s.SetSortOrder(dir, ByDueDate)
	if err != nil {
		t.Fatalf("SetSortOrder failed: %v", err)
	}
	manual := append([]string(nil), l.Meta.TaskOrder...)

	if got, want := titles(l.Effective()), []string{"B", "D", "A", "C"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Effective() = %v, want %v", got, want)
	}
	if !reflect.DeepEqual(l.Meta.TaskOrder, manual) {
		t.Error("task_order changed by due-date sort")
	}

	l, err = s.SetSortOrder(dir, Manual)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := titles(l.Effective()), []string{"A", "B", "C", "D"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Effective() after switching back = %v, want %v", got, want)
	}
}

func TestLoadSkipsCorruptTaskWithoutForgettingOrder(t *testing.T) {
	dir := t.TempDir()
	s, writes := countingStore(t)
	if _, err := s.Create(dir); err != nil {
		t.Fatal(err)
	}
	a := writeTask(t, dir, "A", baseTime, nil)
	b := writeTask(t, dir, "B", baseTime.Add(time.Minute), nil)
	if _, err := s.Load(dir); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(dir, "A.md"), []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	*writes = 0
	l, err := s.Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(l.Problems) != 1 {
		t.Fatalf("Problems = %v, want 1 entry", l.Problems)
	}
	if got := titles(l.Effective()); !reflect.DeepEqual(got, []string{"B"}) {
		t.Errorf("Effective() = %v, want [B]", got)
	}
	if *writes != 0 {
		t.Errorf("writes = %d, want 0 while a task file is unreadable", *writes)
	}

	// Once repaired, the task is back in its old place.
	writeTaskWithID(t, dir, "A", a)
	l, err = s.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(l.Meta.TaskOrder, []string{a, b}) {
		t.Errorf("TaskOrder = %v, want [%s %s]", l.Meta.TaskOrder, a, b)
	}
}

func TestLoadReportsDuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	s, _ := countingStore(t)
	id := writeTask(t, dir, "A", baseTime, nil)
	writeTaskWithID(t, dir, "Copy of A", id)

	l, err := s.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(l.Tasks) != 1 || len(l.Meta.TaskOrder) != 1 {
		t.Errorf("Tasks = %d, TaskOrder = %v; want one task", len(l.Tasks), l.Meta.TaskOrder)
	}
	if len(l.Problems) != 1 {
		t.Errorf("Problems = %v, want one duplicate report", l.Problems)
	}
}

// TestInterruptedWritesAreRepaired simulates a crash after the task file was
// written but before the ordering file was updated, and the reverse for a
// delete.
func TestInterruptedWritesAreRepaired(t *testing.T) {
	dir := t.TempDir()
	s, _ := countingStore(t)
	if _, err := s.Create(dir); err != nil {
		t.Fatal(err)
	}
	a := writeTask(t, dir, "A", baseTime, nil)
	if _, err := s.Load(dir); err != nil {
		t.Fatal(err)
	}

	// Create: file written, order never updated.
	b := writeTask(t, dir, "B", baseTime.Add(time.Minute), nil)
	l, err := s.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(l.Meta.TaskOrder, []string{a, b}) {
		t.Errorf("after create crash TaskOrder = %v, want [%s %s]", l.Meta.TaskOrder, a, b)
	}

	// Delete: file removed, order never updated.
	if err := os.Remove(filepath.Join(dir, "A.md")); err != nil {
		t.Fatal(err)
	}
	l, err = s.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(l.Meta.TaskOrder, []string{b}) {
		t.Errorf("after delete crash TaskOrder = %v, want [%s]", l.Meta.TaskOrder, b)
	}
}

func TestListHelpers(t *testing.T) {
	l := &List{Meta: Metadata{TaskOrder: []string{"a", "b"}}, Tasks: map[string]*task.Task{
		"a": {ID: "a", Title: "Groceries"},
	}}
	if l.Append("a") {
		t.Error("Append of existing id should report false")
	}
	if !l.Append("c") || l.Index("c") != 2 {
		t.Errorf("Append(c) failed: %v", l.Meta.TaskOrder)
	}
	if !l.Remove("b") || !reflect.DeepEqual(l.Meta.TaskOrder, []string{"a", "c"}) {
		t.Errorf("Remove(b) failed: %v", l.Meta.TaskOrder)
	}
	if !l.TitleTaken("groceries", "") {
		t.Error("TitleTaken should ignore case")
	}
	if l.TitleTaken("Groceries", "a") {
		t.Error("TitleTaken should skip exceptID")
	}
}

func TestParseSortOrder(t *testing.T) {
	for in, want := range map[string]SortOrder{"manual": Manual, "BY_DUE_DATE": ByDueDate, "due": ByDueDate} {
		got, err := ParseSortOrder(in)
		if err != nil || got != want {
			t.Errorf("ParseSortOrder(%q) = (%q, %v), want %q", in, got, err, want)
		}
	}
	if _, err := ParseSortOrder("alpha"); err == nil {
		t.Error("expected error for unknown order")
	}
}

func TestLoadGlobalReconcilesListOrder(t *testing.T) {
	root := t.TempDir()
	s, writes := countingStore(t)

	g := &Global{Version: GlobalVersion, ListOrder: []string{"l2", "gone"}, LastOpenedList: "gone"}
	if err := s.SaveGlobal(root, g); err != nil {
		t.Fatal(err)
	}
	*writes = 0

	lists := []ListRef{
		{ID: "l1", CreatedAt: baseTime, Title: "Home"},
		{ID: "l2", CreatedAt: baseTime.Add(time.Hour), Title: "Work"},
		{ID: "l3", CreatedAt: baseTime.Add(-time.Hour), Title: "Inbox"},
	}
	got, err := s.LoadGlobal(root, lists)
	if err != nil {
		t.Fatalf("LoadGlobal failed: %v", err)
	}
	if want := []string{"l2", "l3", "l1"}; !reflect.DeepEqual(got.ListOrder, want) {
		t.Errorf("ListOrder = %v, want %v", got.ListOrder, want)
	}
	if got.LastOpenedList != "" {
		t.Errorf("LastOpenedList = %q, want cleared", got.LastOpenedList)
	}
	if got.Position("l1") != 2 {
		t.Errorf("Position(l1) = %d, want 2", got.Position("l1"))
	}
	if *writes != 1 {
		t.Errorf("writes = %d, want 1", *writes)
	}
}

func writeTaskWithID(t *testing.T, dir, title, id string) {
	t.Helper()
	tk := task.New(title, baseTime)
	tk.ID = id
	data, err := task.Encode(&tk)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, task.FileName(title)), data, 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestPeek(t *testing.T) {
	dir := t.TempDir()
	if _, found, err := Peek(dir); found || err != nil {
		t.Fatalf("Peek on bare folder = (%v, %v), want not found", found, err)
	}

	s, _ := countingStore(t)
	l, err := s.Create(dir)
	if err != nil {
		t.Fatal(err)
	}
	m, found, err := Peek(dir)
	if err != nil || !found {
		t.Fatalf("Peek = (%v, %v)", found, err)
	}
	if m.ID != l.Meta.ID || !m.CreatedAt.Equal(baseTime) {
		t.Errorf("Peek metadata = %+v, want id %s created %v", m, l.Meta.ID, baseTime)
	}
}
