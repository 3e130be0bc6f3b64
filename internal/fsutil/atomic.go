package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// PendingFile is a temp file in the destination's directory that replaces the
// destination only on Commit. Readers never observe a partially written file.
//
//	p, err := fsutil.CreatePending(path, 0o600)
//	if err != nil { ... }
//	defer p.Cleanup()
//	p.Write(data)
//	return p.Commit()
type PendingFile struct {
	f      *os.File
	path   string
	dir    string
	closed bool
	done   bool
}

// CreatePending acquires a temp file next to path. The temp name starts with
// "." so directory scans skip it.
func CreatePending(path string, perm os.FileMode) (*PendingFile, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	if err := tmp.Chmod(perm); err != nil && runtime.GOOS != "windows" {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	return &PendingFile{f: tmp, path: path, dir: dir}, nil
}

func (p *PendingFile) Write(b []byte) (int, error) {
	if p.done {
		return 0, fmt.Errorf("write %s: pending file already finished", p.path)
	}
	n, err := p.f.Write(b)
	if err != nil {
		return n, fmt.Errorf("write %s: %w", p.f.Name(), err)
	}
	return n, nil
}

// Commit flushes the temp file and renames it over the destination.
//
// On Unix, rename is atomic. On Windows, rename does not overwrite existing
// files; in that case we fall back to removing the destination first (not
// atomic, but best-effort).
func (p *PendingFile) Commit() error {
	if p.done {
		return fmt.Errorf("commit %s: pending file already finished", p.path)
	}
	p.done = true
	tmpPath := p.f.Name()

	if err := p.f.Sync(); err != nil {
		p.abort()
		return fmt.Errorf("fsync %s: %w", tmpPath, err)
	}
	p.closed = true
	if err := p.f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, p.path); err != nil {
		// Windows cannot rename over an existing destination.
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(p.path); statErr == nil {
				if rmErr := os.Remove(p.path); rmErr == nil {
					if renameErr := os.Rename(tmpPath, p.path); renameErr == nil {
						return syncDir(p.dir)
					}
				}
			}
		}
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename %s -> %s: %w", tmpPath, p.path, err)
	}
	return syncDir(p.dir)
}

// Cleanup discards the temp file unless Commit already ran. Safe to defer.
func (p *PendingFile) Cleanup() {
	if p.done {
		return
	}
	p.done = true
	p.abort()
}

func (p *PendingFile) abort() {
	if !p.closed {
		p.closed = true
		_ = p.f.Close()
	}
	_ = os.Remove(p.f.Name())
}

// WriteFileAtomic writes data to path through a PendingFile.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	p, err := CreatePending(path, perm)
	if err != nil {
		return err
	}
	defer p.Cleanup()

	if _, err := p.Write(data); err != nil {
		return err
	}
	return p.Commit()
}

// BestEffortBackup tries to write a `.bak` alongside path with the current
// contents, without failing the calling operation.
func BestEffortBackup(path string, perm os.FileMode) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	_ = WriteFileAtomic(path+".bak", data, perm)
}

// SyncDir flushes directory entries after a rename or remove. Errors are
// ignored; not every platform supports fsync on directories.
func SyncDir(dir string) {
	_ = syncDir(dir)
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return nil
	}
	defer f.Close()
	_ = f.Sync()
	return nil
}
