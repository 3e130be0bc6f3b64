package transport

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	gosync "sync"
	"time"
)

// Memory is an in-process Transport. Failures can be injected per operation,
// which makes it the remote of choice in sync tests.
type Memory struct {
	mu      gosync.Mutex
	files   map[string]memFile
	dirs    map[string]bool
	now     func() time.Time
	failFn  func(op, path string) error
	calls   map[string]int
	etagSeq int
}

type memFile struct {
	data     []byte
	modified time.Time
	etag     string
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		files: map[string]memFile{},
		dirs:  map[string]bool{"": true},
		now:   time.Now,
		calls: map[string]int{},
	}
}

// SetNowFunc sets the clock used for modification times.
func (m *Memory) SetNowFunc(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// FailWith makes every call for which fn returns an error fail with it.
// Passing nil clears the hook.
func (m *Memory) FailWith(fn func(op, path string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFn = fn
}

// Offline makes every call fail with a ConnectionError.
func (m *Memory) Offline() {
	m.FailWith(func(op, p string) error {
		return newError(ConnectionError, op, p, fmt.Errorf("network unreachable"))
	})
}

// Online clears injected failures.
func (m *Memory) Online() {
	m.FailWith(nil)
}

// Calls returns how many times op was invoked.
func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// SetFile stores a file directly, with the given modification time.
func (m *Memory) SetFile(p string, data []byte, modified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(clean(p), data, modified)
}

// File returns a stored file.
func (m *Memory) File(p string) ([]byte, time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[clean(p)]
	return append([]byte(nil), f.data...), f.modified, ok
}

// Paths returns every stored file path, sorted.
func (m *Memory) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (m *Memory) List(ctx context.Context, dir string) ([]Entry, error) {
	dir = clean(dir)
	if err := m.enter(ctx, "list", dir); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	if !m.dirs[dir] {
		return nil, newError(NotFound, "list", dir, nil)
	}
	var out []Entry
	for p, f := range m.files {
		if path.Dir(p) == dirOf(dir) {
			out = append(out, Entry{Path: p, Modified: f.modified, ETag: f.etag, Size: int64(len(f.data))})
		}
	}
	for d := range m.dirs {
		if d != "" && d != dir && path.Dir(d) == dirOf(dir) {
			out = append(out, Entry{Path: d, IsDir: true})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *Memory) Get(ctx context.Context, p string) ([]byte, time.Time, error) {
	p = clean(p)
	if err := m.enter(ctx, "get", p); err != nil {
		return nil, time.Time{}, err
	}
	defer m.mu.Unlock()
	f, ok := m.files[p]
	if !ok {
		return nil, time.Time{}, newError(NotFound, "get", p, nil)
	}
	return append([]byte(nil), f.data...), f.modified, nil
}

func (m *Memory) Put(ctx context.Context, p string, data []byte) error {
	p = clean(p)
	if err := m.enter(ctx, "put", p); err != nil {
		return err
	}
	defer m.mu.Unlock()
	if !m.dirs[path.Dir(p)] && path.Dir(p) != "." {
		return newError(NotFound, "put", p, fmt.Errorf("parent collection missing"))
	}
	m.store(p, data, m.now().UTC())
	return nil
}

func (m *Memory) Delete(ctx context.Context, p string) error {
	p = clean(p)
	if err := m.enter(ctx, "delete", p); err != nil {
		return err
	}
	defer m.mu.Unlock()
	if _, ok := m.files[p]; !ok {
		return newError(NotFound, "delete", p, nil)
	}
	delete(m.files, p)
	return nil
}

func (m *Memory) MakeCollection(ctx context.Context, p string) error {
	p = clean(p)
	if err := m.enter(ctx, "mkcol", p); err != nil {
		return err
	}
	defer m.mu.Unlock()
	for d := p; d != "" && d != "."; d = path.Dir(d) {
		m.dirs[d] = true
	}
	return nil
}

// enter checks the context and injected failures, and returns with m.mu held
// on success.
func (m *Memory) enter(ctx context.Context, op, p string) error {
	if err := ctx.Err(); err != nil {
		return newError(ConnectionError, op, p, err)
	}
	m.mu.Lock()
	m.calls[op]++
	if m.failFn != nil {
		if err := m.failFn(op, p); err != nil {
			m.mu.Unlock()
			return err
		}
	}
	return nil
}

func (m *Memory) store(p string, data []byte, modified time.Time) {
	m.etagSeq++
	m.files[p] = memFile{
		data:     append([]byte(nil), data...),
		modified: modified,
		etag:     fmt.Sprintf(`"%d"`, m.etagSeq),
	}
	for d := path.Dir(p); d != "." && d != ""; d = path.Dir(d) {
		m.dirs[d] = true
	}
}

func clean(p string) string {
	p = strings.Trim(path.Clean("/"+p), "/")
	return p
}

// dirOf returns the path.Dir form of a cleaned collection path.
func dirOf(dir string) string {
	if dir == "" {
		return "."
	}
	return dir
}
