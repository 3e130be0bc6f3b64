package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFileAtomicReplacesContents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "task.md")

	if err := WriteFileAtomic(path, []byte("first"), 0o600); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("second"), 0o600); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(got) != "second" {
		t.Errorf("contents = %q, want %q", got, "second")
	}
	assertOnlyFiles(t, dir, "task.md")
}

func TestPendingFileCleanupLeavesDestinationUntouched(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "task.md")
	if err := os.WriteFile(path, []byte("original"), 0o600); err != nil {
		t.Fatal(err)
	}

	p, err := CreatePending(path, 0o600)
	if err != nil {
		t.Fatalf("CreatePending failed: %v", err)
	}
	if _, err := p.Write([]byte("half")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	// Abandon without committing, as a failed caller would.
	p.Cleanup()

	got, _ := os.ReadFile(path)
	if string(got) != "original" {
		t.Errorf("contents = %q, want %q", got, "original")
	}
	assertOnlyFiles(t, dir, "task.md")

	if err := p.Commit(); err == nil {
		t.Error("Commit after Cleanup should fail")
	}
}

func TestPendingFileTempNameIsHidden(t *testing.T) {
	dir := t.TempDir()
	p, err := CreatePending(filepath.Join(dir, "A.md"), 0o600)
	if err != nil {
		t.Fatalf("CreatePending failed: %v", err)
	}
	defer p.Cleanup()

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected one temp file, got %d", len(entries))
	}
	if !strings.HasPrefix(entries[0].Name(), ".") {
		t.Errorf("temp file %q should start with a dot", entries[0].Name())
	}
}

func TestLoadJSON(t *testing.T) {
	type doc struct {
		Name string `json:"name"`
	}

	t.Run("missing", func(t *testing.T) {
		var v doc
		found, err := LoadJSON(filepath.Join(t.TempDir(), "x.json"), &v, 0o600)
		if found || err != nil {
			t.Fatalf("LoadJSON = (%v, %v), want (false, nil)", found, err)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "x.json")
		if err := WriteJSON(path, doc{Name: "work"}, 0o600); err != nil {
			t.Fatalf("WriteJSON failed: %v", err)
		}
		var v doc
		found, err := LoadJSON(path, &v, 0o600)
		if !found || err != nil {
			t.Fatalf("LoadJSON = (%v, %v)", found, err)
		}
		if v.Name != "work" {
			t.Errorf("Name = %q, want %q", v.Name, "work")
		}
	})

	t.Run("corrupt with backup", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "x.json")
		if err := WriteJSON(path, doc{Name: "old"}, 0o600); err != nil {
			t.Fatal(err)
		}
		// Second write leaves the first contents in x.json.bak.
		if err := WriteJSON(path, doc{Name: "new"}, 0o600); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
			t.Fatal(err)
		}

		var v doc
		found, err := LoadJSON(path, &v, 0o600)
		var rec *RecoveredError
		if !found || !errors.As(err, &rec) {
			t.Fatalf("LoadJSON = (%v, %v), want RecoveredError", found, err)
		}
		if rec.Reset {
			t.Error("expected recovery from backup, got reset")
		}
		if v.Name != "old" {
			t.Errorf("Name = %q, want %q", v.Name, "old")
		}
	})

	t.Run("corrupt without backup", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "x.json")
		if err := os.WriteFile(path, []byte("   "), 0o600); err != nil {
			t.Fatal(err)
		}
		v := doc{Name: "default"}
		_, err := LoadJSON(path, &v, 0o600)
		var rec *RecoveredError
		if !errors.As(err, &rec) || !rec.Reset {
			t.Fatalf("expected reset RecoveredError, got %v", err)
		}
		if v.Name != "default" {
			t.Errorf("Name = %q, want defaults kept", v.Name)
		}
		if _, err := os.Stat(rec.Moved); err != nil {
			t.Errorf("broken file not preserved: %v", err)
		}
	})
}

func TestCopyTreeAndVerify(t *testing.T) {
	src := t.TempDir()
	mustWrite(t, filepath.Join(src, ".metadata.json"), "{}")
	mustWrite(t, filepath.Join(src, "Work", "A.md"), "a")
	mustWrite(t, filepath.Join(src, "Work", ".listdata.json"), "{}")
	if err := os.MkdirAll(filepath.Join(src, "Empty"), 0o700); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(t.TempDir(), "moved")
	m, err := CopyTree(src, dst)
	if err != nil {
		t.Fatalf("CopyTree failed: %v", err)
	}
	if len(m.Files) != 3 {
		t.Fatalf("manifest has %d files, want 3", len(m.Files))
	}
	if err := m.Verify(dst); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "Empty")); err != nil {
		t.Errorf("empty directory not copied: %v", err)
	}

	mustWrite(t, filepath.Join(dst, "Work", "A.md"), "tampered")
	if err := m.Verify(dst); err == nil {
		t.Error("Verify should detect modified file")
	}
}

func TestCopyTreeRefusesNonEmptyDestination(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	mustWrite(t, filepath.Join(dst, "keep.txt"), "x")

	if _, err := CopyTree(src, dst); err == nil {
		t.Fatal("expected error for non-empty destination")
	}
}

func TestCopyTreeWithSkipAndOverlay(t *testing.T) {
	src := t.TempDir()
	mustWrite(t, filepath.Join(src, "Work", "A.md"), "a")
	mustWrite(t, filepath.Join(src, ".sync", "state.db"), "db")
	mustWrite(t, filepath.Join(src, "Work", "A.md.bak"), "old")

	dst := t.TempDir()
	mustWrite(t, filepath.Join(dst, "Work", "A.md"), "stale")
	mustWrite(t, filepath.Join(dst, "other.txt"), "x")

	skip := func(rel string, d fs.DirEntry) bool {
		return rel == ".sync" || strings.HasSuffix(rel, ".bak")
	}
	m, err := CopyTreeWith(src, dst, CopyOptions{Skip: skip, Overlay: true})
	if err != nil {
		t.Fatalf("CopyTreeWith failed: %v", err)
	}
	if len(m.Files) != 1 || m.Files[0].Path != "Work/A.md" {
		t.Fatalf("manifest files = %+v", m.Files)
	}
	if err := m.Verify(dst); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, ".sync")); !os.IsNotExist(err) {
		t.Errorf("skipped directory was copied: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "other.txt")); err != nil {
		t.Errorf("overlay removed an existing file: %v", err)
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func assertOnlyFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != len(names) {
		var got []string
		for _, e := range entries {
			got = append(got, e.Name())
		}
		t.Fatalf("dir entries = %v, want %v", got, names)
	}
	for i, e := range entries {
		if e.Name() != names[i] {
			t.Errorf("entry %d = %q, want %q", i, e.Name(), names[i])
		}
	}
}
