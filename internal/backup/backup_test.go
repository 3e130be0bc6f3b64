package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"taskfold/internal/errs"
	"taskfold/internal/storage"
	"taskfold/internal/workspace"
)

// newWorkspace creates a workspace with one list holding the given tasks and
// a stand-in sync state file.
func newWorkspace(t *testing.T, titles ...string) (*storage.Repository, string) {
	t.Helper()
	root := t.TempDir()
	repo, err := storage.Init(workspace.Workspace{Name: "home", Root: root})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	l, err := repo.FindListByTitle(storage.DefaultListTitle)
	if err != nil {
		t.Fatal(err)
	}
	for _, title := range titles {
		if _, err := repo.CreateTask(l.ID, storage.TaskInput{Title: title}); err != nil {
			t.Fatalf("CreateTask(%q) failed: %v", title, err)
		}
	}
	if err := os.MkdirAll(filepath.Join(root, ".sync"), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, ".sync", "state.db"), []byte("db"), 0600); err != nil {
		t.Fatal(err)
	}
	return repo, root
}

// newManager returns a manager whose clock advances one second per backup.
func newManager(root string) *Manager {
	m := NewManager(root, "test")
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	m.SetNowFunc(func() time.Time {
		now = now.Add(time.Second)
		return now
	})
	return m
}

func taskTitles(t *testing.T, repo *storage.Repository) []string {
	t.Helper()
	lists, err := repo.Lists()
	if err != nil {
		t.Fatal(err)
	}
	var titles []string
	for _, l := range lists {
		for _, tk := range l.Tasks {
			titles = append(titles, l.Title+"/"+tk.Title)
		}
	}
	return titles
}

func TestCreateAndList(t *testing.T) {
	_, root := newWorkspace(t, "Call vendor", "Water plants")
	m := newManager(root)

	name, err := m.Create()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	backupPath := filepath.Join(root, BackupsDir, name)
	for _, rel := range []string{ManifestFile, ".metadata.json", "My Tasks/Call vendor.md", "My Tasks/.listdata.json"} {
		if _, err := os.Stat(filepath.Join(backupPath, filepath.FromSlash(rel))); err != nil {
			t.Errorf("backup is missing %s: %v", rel, err)
		}
	}
	if _, err := os.Stat(filepath.Join(backupPath, ".sync")); !os.IsNotExist(err) {
		t.Errorf("sync state should not be backed up: %v", err)
	}

	backups, err := m.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(backups) != 1 {
		t.Fatalf("List returned %d backups, want 1", len(backups))
	}
	if backups[0].Name != name {
		t.Errorf("Name = %q, want %q", backups[0].Name, name)
	}
	if backups[0].Stats["lists"] != 1 || backups[0].Stats["tasks"] != 2 {
		t.Errorf("Stats = %v, want 1 list and 2 tasks", backups[0].Stats)
	}
}

func TestBackupsAreNotLists(t *testing.T) {
	repo, root := newWorkspace(t, "Call vendor")
	if _, err := newManager(root).Create(); err != nil {
		t.Fatal(err)
	}
	lists, err := repo.Lists()
	if err != nil {
		t.Fatal(err)
	}
	if len(lists) != 1 {
		t.Errorf("workspace has %d lists after a backup, want 1", len(lists))
	}
}

func TestCreateNamesAreUnique(t *testing.T) {
	_, root := newWorkspace(t)
	m := NewManager(root, "test")
	fixed := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	m.SetNowFunc(func() time.Time { return fixed })

	first, err := m.Create()
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.Create()
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatalf("two backups share the name %q", first)
	}
	if _, err := parseBackupName(second); err != nil {
		t.Errorf("second name %q does not parse: %v", second, err)
	}
}

func TestRestore(t *testing.T) {
	repo, root := newWorkspace(t, "Call vendor")
	m := newManager(root)

	name, err := m.Create()
	if err != nil {
		t.Fatal(err)
	}

	// Diverge from the backup.
	if _, err := repo.CreateList("Extra"); err != nil {
		t.Fatal(err)
	}
	entries, err := repo.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.DeleteTask(entries[0].Task.ID); err != nil {
		t.Fatal(err)
	}

	safety, err := m.Restore(name)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if safety == "" || safety == name {
		t.Errorf("safety backup name = %q", safety)
	}

	got := taskTitles(t, repo)
	if len(got) != 1 || got[0] != "My Tasks/Call vendor" {
		t.Errorf("tasks after restore = %v", got)
	}
	lists, err := repo.Lists()
	if err != nil {
		t.Fatal(err)
	}
	if len(lists) != 1 {
		t.Errorf("lists after restore = %d, want 1", len(lists))
	}
	if _, err := os.Stat(filepath.Join(root, ".sync", "state.db")); err != nil {
		t.Errorf("sync state removed by restore: %v", err)
	}

	// The safety backup holds the diverged state.
	info, err := m.GetBackup(safety)
	if err != nil {
		t.Fatal(err)
	}
	if info.Stats["lists"] != 2 || info.Stats["tasks"] != 0 {
		t.Errorf("safety backup stats = %v", info.Stats)
	}
}

func TestRestoreRejectsDamagedBackup(t *testing.T) {
	repo, root := newWorkspace(t, "Call vendor")
	m := newManager(root)
	name, err := m.Create()
	if err != nil {
		t.Fatal(err)
	}

	target := filepath.Join(root, BackupsDir, name, "My Tasks", "Call vendor.md")
	if err := os.WriteFile(target, []byte("tampered"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.CreateList("Extra"); err != nil {
		t.Fatal(err)
	}

	_, err = m.Restore(name)
	if !errs.Is(err, errs.Validation) {
		t.Fatalf("Restore error = %v, want validation", err)
	}
	if _, err := os.Stat(filepath.Join(root, "Extra")); err != nil {
		t.Errorf("workspace changed by a rejected restore: %v", err)
	}
	backups, _ := m.List()
	if len(backups) != 1 {
		t.Errorf("rejected restore created a safety backup: %d backups", len(backups))
	}
}

func TestRestoreLatest(t *testing.T) {
	repo, root := newWorkspace(t, "One")
	m := newManager(root)

	if _, err := m.RestoreLatest(); !errs.Is(err, errs.NotFound) {
		t.Fatalf("RestoreLatest without backups: err = %v, want not found", err)
	}

	if _, err := m.Create(); err != nil {
		t.Fatal(err)
	}
	l, err := repo.FindListByTitle(storage.DefaultListTitle)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repo.CreateTask(l.ID, storage.TaskInput{Title: "Two"}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Create(); err != nil {
		t.Fatal(err)
	}

	if _, err := m.RestoreLatest(); err != nil {
		t.Fatalf("RestoreLatest failed: %v", err)
	}
	if got := taskTitles(t, repo); len(got) != 2 {
		t.Errorf("tasks after restoring the latest backup = %v", got)
	}
}

func TestPrune(t *testing.T) {
	_, root := newWorkspace(t)
	m := newManager(root)

	var names []string
	for i := 0; i < 3; i++ {
		name, err := m.Create()
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, name)
	}

	deleted, err := m.Prune(1)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Prune deleted %d, want 2", deleted)
	}
	backups, err := m.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 1 || backups[0].Name != names[2] {
		t.Errorf("remaining backups = %+v, want only %s", backups, names[2])
	}

	if _, err := m.Prune(-1); !errs.Is(err, errs.Validation) {
		t.Errorf("Prune(-1) error = %v, want validation", err)
	}
}

func TestDelete(t *testing.T) {
	_, root := newWorkspace(t)
	m := newManager(root)
	name, err := m.Create()
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Delete(name); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := m.GetBackup(name); !errs.Is(err, errs.NotFound) {
		t.Errorf("GetBackup after delete: err = %v, want not found", err)
	}
	if err := m.Delete(name); !errs.Is(err, errs.NotFound) {
		t.Errorf("second Delete: err = %v, want not found", err)
	}
}

func TestValidateBackupName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"2026-05-04_090001_000", true},
		{"2026-05-04_090001", true},
		{"", false},
		{"../2026-05-04_090001", false},
		{"notes", false},
		{"2026-05-04_090001_x12", false},
		{"2026-05-04_090001-123", false},
	}
	for _, tt := range tests {
		err := validateBackupName(tt.name)
		if (err == nil) != tt.valid {
			t.Errorf("validateBackupName(%q) = %v, want valid=%v", tt.name, err, tt.valid)
		}
	}
}

func TestParseBackupName(t *testing.T) {
	got, err := parseBackupName("2026-05-04_090001_250")
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2026, 5, 4, 9, 0, 1, 250*int(time.Millisecond), time.Local)
	if !got.Equal(want) {
		t.Errorf("parseBackupName = %v, want %v", got, want)
	}
}
