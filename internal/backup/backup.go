// Package backup keeps timestamped snapshots of a workspace folder: every list
// folder, its task files and the list metadata. Snapshots live under the
// reserved .backups folder of the workspace, so they are neither lists nor
// synced.
package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"taskfold/internal/errs"
	"taskfold/internal/fsutil"
	"taskfold/internal/listmeta"
	"taskfold/internal/task"
)

// Version constants for the backup format.
const (
	ManifestVersion = "2"
	ManifestFile    = "manifest.json"
	BackupsDir      = ".backups"
)

const nameLayout = "2006-01-02_150405"

// Manager handles backup and restore operations for one workspace.
type Manager struct {
	root       string // workspace root
	backupDir  string // <root>/.backups
	appVersion string
	now        func() time.Time
}

// Manifest contains metadata about a backup.
type Manifest struct {
	Version    string         `json:"version"`
	CreatedAt  time.Time      `json:"created_at"`
	AppVersion string         `json:"app_version"`
	Files      []FileEntry    `json:"files"`
	Dirs       []string       `json:"dirs"`
	Stats      map[string]int `json:"stats"`
}

// FileEntry is one file of a backup with its checksum.
type FileEntry struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// BackupInfo contains summary information about a backup.
type BackupInfo struct {
	Name      string         // Directory name (2026-05-04_143022_120)
	Path      string         // Full path to backup directory
	CreatedAt time.Time      // When the backup was created
	Stats     map[string]int // lists, tasks
}

// NewManager creates a backup manager for the workspace at root.
func NewManager(root, appVersion string) *Manager {
	return &Manager{
		root:       root,
		backupDir:  filepath.Join(root, BackupsDir),
		appVersion: appVersion,
		now:        time.Now,
	}
}

// SetNowFunc overrides the clock used for backup names.
func (m *Manager) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	m.now = now
}

// Create snapshots the workspace and returns the backup name.
func (m *Manager) Create() (string, error) {
	if err := os.MkdirAll(m.backupDir, 0700); err != nil {
		return "", errs.Wrap(errs.IO, "create backup directory", err)
	}

	now := m.now()
	name, backupPath := m.freeName(now)

	copied, err := fsutil.CopyTreeWith(m.root, backupPath, fsutil.CopyOptions{Skip: skipEntry})
	if err != nil {
		_ = os.RemoveAll(backupPath)
		return "", errs.Wrap(errs.IO, "copy workspace", err)
	}

	manifest := Manifest{
		Version:    ManifestVersion,
		CreatedAt:  now,
		AppVersion: m.appVersion,
		Dirs:       copied.Dirs,
		Stats:      countItems(copied),
	}
	for _, f := range copied.Files {
		manifest.Files = append(manifest.Files, FileEntry{Path: f.Path, Size: f.Size, SHA256: hex.EncodeToString(f.Sum[:])})
	}

	if err := fsutil.WriteJSON(filepath.Join(backupPath, ManifestFile), manifest, 0600); err != nil {
		_ = os.RemoveAll(backupPath)
		return "", errs.Wrap(errs.IO, "write manifest", err)
	}
	return name, nil
}

// freeName picks a backup name for t, moving forward a millisecond at a time
// past names already taken.
func (m *Manager) freeName(t time.Time) (string, string) {
	for {
		name := fmt.Sprintf("%s_%03d", t.Format(nameLayout), t.Nanosecond()/1e6)
		p := filepath.Join(m.backupDir, name)
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return name, p
		}
		t = t.Add(time.Millisecond)
	}
}

// List returns all available backups, sorted by creation time (newest first).
func (m *Manager) List() ([]BackupInfo, error) {
	entries, err := os.ReadDir(m.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []BackupInfo{}, nil
		}
		return nil, errs.Wrap(errs.IO, "read backup directory", err)
	}

	var backups []BackupInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := m.info(entry.Name())
		if err != nil {
			continue // not a backup
		}
		backups = append(backups, *info)
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// Restore replaces the lists of the workspace with the contents of a backup.
// The backup is verified first, and a safety backup of the current state is
// taken; its name is returned.
func (m *Manager) Restore(name string) (string, error) {
	backupPath, err := m.path(name)
	if err != nil {
		return "", err
	}

	var manifest Manifest
	if err := readJSON(filepath.Join(backupPath, ManifestFile), &manifest); err != nil {
		return "", errs.Errorf(errs.Validation, "backup %s has no readable manifest", name)
	}
	want, err := manifest.tree()
	if err != nil {
		return "", err
	}
	if err := want.Verify(backupPath); err != nil {
		return "", errs.Wrap(errs.Validation, "backup "+name+" is damaged", err)
	}

	safetyName, err := m.Create()
	if err != nil {
		return "", fmt.Errorf("create safety backup: %w", err)
	}

	if err := m.clearWorkspace(); err != nil {
		return safetyName, fmt.Errorf("clear workspace (safety backup: %s): %w", safetyName, err)
	}
	_, err = fsutil.CopyTreeWith(backupPath, m.root, fsutil.CopyOptions{
		Skip:    func(rel string, _ fs.DirEntry) bool { return rel == ManifestFile },
		Overlay: true,
	})
	if err != nil {
		return safetyName, errs.Wrap(errs.IO, "restore "+name+" (safety backup: "+safetyName+")", err)
	}
	if err := want.Verify(m.root); err != nil {
		return safetyName, errs.Wrap(errs.IO, "restored files do not match (safety backup: "+safetyName+")", err)
	}
	return safetyName, nil
}

// RestoreLatest restores from the most recent backup.
func (m *Manager) RestoreLatest() (string, error) {
	backups, err := m.List()
	if err != nil {
		return "", err
	}
	if len(backups) == 0 {
		return "", errs.New(errs.NotFound, "no backups available")
	}
	return m.Restore(backups[0].Name)
}

// Delete removes a specific backup.
func (m *Manager) Delete(name string) error {
	backupPath, err := m.path(name)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(backupPath); err != nil {
		return errs.Wrap(errs.IO, "delete backup "+name, err)
	}
	return nil
}

// Prune removes old backups, keeping only the N most recent.
func (m *Manager) Prune(keepCount int) (int, error) {
	if keepCount < 0 {
		return 0, errs.New(errs.Validation, "keep count must be non-negative")
	}

	backups, err := m.List()
	if err != nil {
		return 0, err
	}
	if len(backups) <= keepCount {
		return 0, nil
	}

	deleted := 0
	for _, b := range backups[keepCount:] {
		if err := m.Delete(b.Name); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// GetBackup returns information about a specific backup.
func (m *Manager) GetBackup(name string) (*BackupInfo, error) {
	if _, err := m.path(name); err != nil {
		return nil, err
	}
	return m.info(name)
}

func (m *Manager) info(name string) (*BackupInfo, error) {
	backupPath := filepath.Join(m.backupDir, name)
	var manifest Manifest
	if err := readJSON(filepath.Join(backupPath, ManifestFile), &manifest); err != nil {
		createdAt, parseErr := parseBackupName(name)
		if parseErr != nil {
			return nil, errs.Errorf(errs.Validation, "invalid backup: %s", name)
		}
		manifest.CreatedAt = createdAt
		manifest.Stats = make(map[string]int)
	}
	return &BackupInfo{
		Name:      name,
		Path:      backupPath,
		CreatedAt: manifest.CreatedAt,
		Stats:     manifest.Stats,
	}, nil
}

// path validates name and returns the directory of an existing backup.
func (m *Manager) path(name string) (string, error) {
	if err := validateBackupName(name); err != nil {
		return "", err
	}
	backupPath := filepath.Join(m.backupDir, name)
	if _, err := os.Stat(backupPath); os.IsNotExist(err) {
		return "", errs.Errorf(errs.NotFound, "backup not found: %s", name)
	}
	return backupPath, nil
}

// clearWorkspace removes everything a backup replaces; reserved folders such
// as the sync state and the backups themselves stay.
func (m *Manager) clearWorkspace() error {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), task.ReservedPrefix) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.root, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// tree converts the manifest back into a verifiable file list.
func (mf *Manifest) tree() (*fsutil.Manifest, error) {
	out := &fsutil.Manifest{Dirs: mf.Dirs}
	for _, f := range mf.Files {
		sum, err := hex.DecodeString(f.SHA256)
		if err != nil || len(sum) != sha256.Size {
			return nil, errs.Errorf(errs.Validation, "manifest entry %s has a bad checksum", f.Path)
		}
		e := fsutil.ManifestEntry{Path: f.Path, Size: f.Size}
		copy(e.Sum[:], sum)
		out.Files = append(out.Files, e)
	}
	return out, nil
}

// Helper functions

// skipEntry keeps list folders, task files and list metadata out of reserved
// folders, temp files and .bak copies.
func skipEntry(rel string, d fs.DirEntry) bool {
	base := path.Base(rel)
	switch {
	case d.IsDir():
		return strings.HasPrefix(base, task.ReservedPrefix)
	case base == listmeta.GlobalFileName, base == listmeta.FileName:
		return false
	default:
		return strings.HasPrefix(base, task.ReservedPrefix) || strings.HasSuffix(base, ".bak")
	}
}

// countItems counts the lists and task files of a copied tree.
func countItems(m *fsutil.Manifest) map[string]int {
	stats := map[string]int{"lists": 0, "tasks": 0}
	for _, d := range m.Dirs {
		if !strings.Contains(d, "/") {
			stats["lists"]++
		}
	}
	for _, f := range m.Files {
		if strings.Count(f.Path, "/") == 1 && task.IsTaskFile(path.Base(f.Path)) {
			stats["tasks"]++
		}
	}
	return stats
}

// readJSON reads JSON from a file into a value.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func validateBackupName(name string) error {
	if name == "" {
		return errs.New(errs.Validation, "backup name is required")
	}
	if name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		return errs.Errorf(errs.Validation, "invalid backup name: %q", name)
	}
	if _, err := parseBackupName(name); err != nil {
		return errs.Errorf(errs.Validation, "invalid backup name: %q", name)
	}
	return nil
}

// parseBackupName parses a backup directory name into a timestamp.
// Accepts 2006-01-02_150405 and 2006-01-02_150405_XXX (milliseconds).
func parseBackupName(name string) (time.Time, error) {
	if len(name) == len(nameLayout)+4 {
		base, err := time.ParseInLocation(nameLayout, name[:len(nameLayout)], time.Local)
		if err != nil {
			return time.Time{}, err
		}
		if name[len(nameLayout)] != '_' {
			return time.Time{}, fmt.Errorf("invalid backup format")
		}
		ms, err := strconv.Atoi(name[len(nameLayout)+1:])
		if err != nil || ms < 0 || ms > 999 {
			return time.Time{}, fmt.Errorf("invalid milliseconds")
		}
		return base.Add(time.Duration(ms) * time.Millisecond), nil
	}
	return time.ParseInLocation(nameLayout, name, time.Local)
}
