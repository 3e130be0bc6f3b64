package fsutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RecoveredError reports that a JSON file was unreadable and was either
// restored from its `.bak` sibling or reset. The loaded value is usable; the
// error is informational.
type RecoveredError struct {
	Path  string
	Reset bool   // no usable backup; caller's defaults were kept
	Moved string // where the broken file was preserved
	Cause error
}

func (e *RecoveredError) Error() string {
	if e.Reset {
		return fmt.Sprintf("%v (reset to defaults; original moved to %s)", e.Cause, e.Moved)
	}
	return fmt.Sprintf("%v (recovered from %s.bak)", e.Cause, filepath.Base(e.Path))
}

func (e *RecoveredError) Unwrap() error { return e.Cause }

// WriteJSON marshals v with indentation, keeps a best-effort backup of the
// previous contents, and replaces path atomically.
func WriteJSON(path string, v any, perm os.FileMode) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	BestEffortBackup(path, perm)

	if err := WriteFileAtomic(path, data, perm); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// LoadJSON decodes path into v. It reports found=false (and leaves v alone)
// when the file does not exist. A corrupt file yields found=true and a
// *RecoveredError; v then holds the backup contents or is left untouched.
func LoadJSON(path string, v any, perm os.FileMode) (found bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return true, recoverCorruptJSON(path, v, perm, fmt.Errorf("%s is empty", filepath.Base(path)))
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, recoverCorruptJSON(path, v, perm, fmt.Errorf("parse %s: %w", filepath.Base(path), err))
	}
	return true, nil
}

func recoverCorruptJSON(path string, v any, perm os.FileMode, cause error) error {
	corruptPath := fmt.Sprintf("%s.corrupt.%s", path, time.Now().Format("20060102-150405"))

	// Try backup first.
	bakData, bakErr := os.ReadFile(path + ".bak")
	if bakErr == nil && len(bytes.TrimSpace(bakData)) > 0 {
		if err := json.Unmarshal(bakData, v); err == nil {
			_ = os.Rename(path, corruptPath)
			if err := WriteFileAtomic(path, bakData, perm); err != nil {
				return fmt.Errorf("restore %s: %w", filepath.Base(path), err)
			}
			return &RecoveredError{Path: path, Moved: corruptPath, Cause: cause}
		}
	}

	// No usable backup: preserve the broken file (best effort).
	_ = os.Rename(path, corruptPath)
	return &RecoveredError{Path: path, Reset: true, Moved: corruptPath, Cause: cause}
}
