package fsutil

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// ManifestEntry records one regular file copied by CopyTree.
type ManifestEntry struct {
	Path string // slash-separated, relative to the tree root
	Size int64
	Sum  [sha256.Size]byte
}

// Manifest lists every regular file of a copied tree in path order.
type Manifest struct {
	Files []ManifestEntry
	Dirs  []string
}

// CopyOptions tunes CopyTreeWith.
type CopyOptions struct {
	// Skip, when set, excludes an entry (and a directory's whole subtree).
	// rel is slash-separated and relative to the source root.
	Skip func(rel string, d fs.DirEntry) bool

	// Overlay allows a non-empty destination; existing files are replaced.
	Overlay bool
}

// CopyTree copies every directory and regular file under src into dst, which
// must not exist or be empty. Files are written atomically. Symlinks and other
// special files are skipped. The returned manifest describes the source.
func CopyTree(src, dst string) (*Manifest, error) {
	return CopyTreeWith(src, dst, CopyOptions{})
}

// CopyTreeWith is CopyTree with an entry filter and optional overlay.
func CopyTreeWith(src, dst string, o CopyOptions) (*Manifest, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", src, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", src)
	}
	if o.Overlay {
		if err := os.MkdirAll(dst, 0o700); err != nil {
			return nil, fmt.Errorf("create %s: %w", dst, err)
		}
	} else if err := ensureEmptyDir(dst); err != nil {
		return nil, err
	}

	m := &Manifest{}
	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if o.Skip != nil && o.Skip(filepath.ToSlash(rel), d) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			fi, err := d.Info()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(target, fi.Mode().Perm()|0o700); err != nil {
				return fmt.Errorf("create %s: %w", target, err)
			}
			m.Dirs = append(m.Dirs, filepath.ToSlash(rel))
		case d.Type().IsRegular():
			entry, err := copyFile(path, target)
			if err != nil {
				return err
			}
			entry.Path = filepath.ToSlash(rel)
			m.Files = append(m.Files, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("copy %s -> %s: %w", src, dst, err)
	}

	sort.Slice(m.Files, func(i, j int) bool { return m.Files[i].Path < m.Files[j].Path })
	return m, nil
}

// Verify checks that every manifest file exists under root with the recorded
// size and checksum.
func (m *Manifest) Verify(root string) error {
	for _, d := range m.Dirs {
		info, err := os.Stat(filepath.Join(root, filepath.FromSlash(d)))
		if err != nil {
			return fmt.Errorf("verify %s: %w", d, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("verify %s: not a directory", d)
		}
	}
	for _, f := range m.Files {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(f.Path)))
		if err != nil {
			return fmt.Errorf("verify %s: %w", f.Path, err)
		}
		if int64(len(data)) != f.Size {
			return fmt.Errorf("verify %s: size %d, want %d", f.Path, len(data), f.Size)
		}
		if sum := sha256.Sum256(data); !bytes.Equal(sum[:], f.Sum[:]) {
			return fmt.Errorf("verify %s: checksum mismatch", f.Path)
		}
	}
	return nil
}

func copyFile(src, dst string) (ManifestEntry, error) {
	in, err := os.Open(src)
	if err != nil {
		return ManifestEntry{}, err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return ManifestEntry{}, err
	}

	p, err := CreatePending(dst, info.Mode().Perm())
	if err != nil {
		return ManifestEntry{}, err
	}
	defer p.Cleanup()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(p, h), in)
	if err != nil {
		return ManifestEntry{}, fmt.Errorf("copy %s: %w", src, err)
	}
	if err := p.Commit(); err != nil {
		return ManifestEntry{}, err
	}

	entry := ManifestEntry{Size: n}
	copy(entry.Sum[:], h.Sum(nil))
	return entry, nil
}

func ensureEmptyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(dir, 0o700)
		}
		return fmt.Errorf("read %s: %w", dir, err)
	}
	if len(entries) > 0 {
		return fmt.Errorf("%s is not empty", dir)
	}
	return nil
}
