// Package syncstate persists what the sync engine knows between runs: one
// cursor per synced task, the FIFO queue of operations deferred while
// offline, and the dead-letter set of operations that failed for good.
//
// State lives in a SQLite database inside the workspace (.sync/state.db), so
// it moves with the workspace and is never uploaded.
package syncstate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"taskfold/internal/errs"
)

const (
	// Dir is the workspace-relative folder holding sync state.
	Dir = ".sync"
	// FileName is the database file inside Dir.
	FileName = "state.db"
)

// OpKind is the kind of a deferred operation.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
	OpMove   OpKind = "move"
)

// Cursor records the last state both sides agreed on for one task.
type Cursor struct {
	TaskID         string
	RemotePath     string
	LocalUpdated   time.Time
	RemoteModified time.Time
	RemoteETag     string
	SyncedAt       time.Time
}

// PendingOp is an operation deferred while the remote was unreachable.
type PendingOp struct {
	Seq        int64
	ListID     string
	TaskID     string
	Kind       OpKind
	Path       string // remote path the operation targets
	OldPath    string // previous remote path, for moves
	EnqueuedAt time.Time
	RetryCount int
	LastError  string
}

// DeadLetter is a queued operation that failed with a non-transient error.
type DeadLetter struct {
	PendingOp
	Reason   string
	FailedAt time.Time
	Reported bool
}

// Store is the sync state database of one workspace.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Path returns the state database location for a workspace root.
func Path(root string) string {
	return filepath.Join(root, Dir, FileName)
}

// Open opens (creating if needed) the state database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, errs.Wrap(errs.IO, "create sync state dir", err)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, errs.Wrap(errs.IO, "open sync state", err)
	}
	// One connection keeps the queue strictly serialized.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenWorkspace opens the state database of the workspace at root.
func OpenWorkspace(root string) (*Store, error) {
	return Open(Path(root))
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetNowFunc overrides the clock. Passing nil resets it to time.Now.
func (s *Store) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.now = now
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return errs.Wrap(errs.IO, "initialize sync state schema", err)
	}
	var v string
	err := s.db.QueryRow("SELECT value FROM sync_meta WHERE key = 'schema_version'").Scan(&v)
	switch {
	case err == sql.ErrNoRows:
		_, err = s.db.Exec("INSERT INTO sync_meta (key, value) VALUES ('schema_version', ?)", schemaVersion)
		return errs.Wrap(errs.IO, "record sync state schema", err)
	case err != nil:
		return errs.Wrap(errs.IO, "read sync state schema", err)
	case v != schemaVersion:
		return errs.Errorf(errs.Config, "sync state schema %s is not supported (want %s)", v, schemaVersion)
	}
	return nil
}

// ============================================================================
// Cursors
// ============================================================================

// Cursor returns the cursor for a task.
func (s *Store) Cursor(ctx context.Context, taskID string) (Cursor, bool, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT task_id, remote_path, local_updated_at, remote_modified_at, remote_etag, synced_at FROM sync_cursors WHERE task_id = ?",
		taskID,
	)
	c, err := scanCursor(row)
	if err == sql.ErrNoRows {
		return Cursor{}, false, nil
	}
	if err != nil {
		return Cursor{}, false, errs.Wrap(errs.IO, "get cursor", err)
	}
	return c, true, nil
}

// Cursors returns every cursor keyed by task id.
func (s *Store) Cursors(ctx context.Context) (map[string]Cursor, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT task_id, remote_path, local_updated_at, remote_modified_at, remote_etag, synced_at FROM sync_cursors")
	if err != nil {
		return nil, errs.Wrap(errs.IO, "list cursors", err)
	}
	defer rows.Close()

	out := map[string]Cursor{}
	for rows.Next() {
		c, err := scanCursor(rows)
		if err != nil {
			return nil, errs.Wrap(errs.IO, "scan cursor", err)
		}
		out[c.TaskID] = c
	}
	return out, errs.Wrap(errs.IO, "list cursors", rows.Err())
}

// PutCursor inserts or replaces a cursor.
func (s *Store) PutCursor(ctx context.Context, c Cursor) error {
	if c.SyncedAt.IsZero() {
		c.SyncedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_cursors (task_id, remote_path, local_updated_at, remote_modified_at, remote_etag, synced_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(task_id) DO UPDATE SET
		   remote_path = excluded.remote_path,
		   local_updated_at = excluded.local_updated_at,
		   remote_modified_at = excluded.remote_modified_at,
		   remote_etag = excluded.remote_etag,
		   synced_at = excluded.synced_at`,
		c.TaskID, c.RemotePath, toUnix(c.LocalUpdated), toUnix(c.RemoteModified), c.RemoteETag, toUnix(c.SyncedAt),
	)
	return errs.Wrap(errs.IO, "save cursor", err)
}

// DeleteCursor forgets a task.
func (s *Store) DeleteCursor(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sync_cursors WHERE task_id = ?", taskID)
	return errs.Wrap(errs.IO, "delete cursor", err)
}

// ResetCursors forgets every cursor, so the next sync compares everything.
func (s *Store) ResetCursors(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sync_cursors")
	return errs.Wrap(errs.IO, "reset cursors", err)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCursor(row scanner) (Cursor, error) {
	var (
		c                           Cursor
		localUpd, remoteMod, synced int64
	)
	if err := row.Scan(&c.TaskID, &c.RemotePath, &localUpd, &remoteMod, &c.RemoteETag, &synced); err != nil {
		return Cursor{}, err
	}
	c.LocalUpdated = fromUnix(localUpd)
	c.RemoteModified = fromUnix(remoteMod)
	c.SyncedAt = fromUnix(synced)
	return c, nil
}

// ============================================================================
// Offline queue
// ============================================================================

// Enqueue appends an operation to the queue and returns its sequence number.
func (s *Store) Enqueue(ctx context.Context, op PendingOp) (int64, error) {
	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO pending_ops (list_id, task_id, kind, path, old_path, enqueued_at, retry_count, last_error) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		op.ListID, op.TaskID, string(op.Kind), op.Path, op.OldPath, toUnix(op.EnqueuedAt), op.RetryCount, op.LastError,
	)
	if err != nil {
		return 0, errs.Wrap(errs.IO, "enqueue operation", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, errs.Wrap(errs.IO, "enqueue operation", err)
	}
	return seq, nil
}

// Pending returns queued operations in FIFO order.
func (s *Store) Pending(ctx context.Context) ([]PendingOp, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT seq, list_id, task_id, kind, path, old_path, enqueued_at, retry_count, last_error FROM pending_ops ORDER BY seq")
	if err != nil {
		return nil, errs.Wrap(errs.IO, "list pending operations", err)
	}
	defer rows.Close()

	var out []PendingOp
	for rows.Next() {
		var (
			op       PendingOp
			kind     string
			enqueued int64
		)
		if err := rows.Scan(&op.Seq, &op.ListID, &op.TaskID, &kind, &op.Path, &op.OldPath, &enqueued, &op.RetryCount, &op.LastError); err != nil {
			return nil, errs.Wrap(errs.IO, "scan pending operation", err)
		}
		op.Kind = OpKind(kind)
		op.EnqueuedAt = fromUnix(enqueued)
		out = append(out, op)
	}
	return out, errs.Wrap(errs.IO, "list pending operations", rows.Err())
}

// PendingCount returns the queue length.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pending_ops").Scan(&n)
	return n, errs.Wrap(errs.IO, "count pending operations", err)
}

// HasPending reports whether a task has a queued operation.
func (s *Store) HasPending(ctx context.Context, taskID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pending_ops WHERE task_id = ?", taskID).Scan(&n)
	return n > 0, errs.Wrap(errs.IO, "check pending operations", err)
}

// HasPendingDelete reports whether a delete of the task is queued.
func (s *Store) HasPendingDelete(ctx context.Context, taskID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pending_ops WHERE task_id = ? AND kind = ?", taskID, string(OpDelete)).Scan(&n)
	return n > 0, errs.Wrap(errs.IO, "check pending operations", err)
}

// Ack removes a replayed operation from the queue.
func (s *Store) Ack(ctx context.Context, seq int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM pending_ops WHERE seq = ?", seq)
	return errs.Wrap(errs.IO, "acknowledge operation", err)
}

// MarkRetry records a failed replay attempt that will be tried again.
func (s *Store) MarkRetry(ctx context.Context, seq int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE pending_ops SET retry_count = retry_count + 1, last_error = ? WHERE seq = ?", msg, seq)
	return errs.Wrap(errs.IO, "record retry", err)
}

// DeadLetter moves a queued operation to the dead-letter set.
func (s *Store) DeadLetter(ctx context.Context, op PendingOp, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.IO, "dead-letter operation", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO dead_letters (seq, list_id, task_id, kind, path, old_path, enqueued_at, retry_count, reason, failed_at, reported)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		op.Seq, op.ListID, op.TaskID, string(op.Kind), op.Path, op.OldPath, toUnix(op.EnqueuedAt), op.RetryCount, reason, toUnix(s.now()),
	); err != nil {
		return errs.Wrap(errs.IO, "dead-letter operation", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM pending_ops WHERE seq = ?", op.Seq); err != nil {
		return errs.Wrap(errs.IO, "dead-letter operation", err)
	}
	return errs.Wrap(errs.IO, "dead-letter operation", tx.Commit())
}

// DeadLetters returns the dead-letter set, oldest first.
func (s *Store) DeadLetters(ctx context.Context) ([]DeadLetter, error) {
	return s.deadLetters(ctx, "SELECT seq, list_id, task_id, kind, path, old_path, enqueued_at, retry_count, reason, failed_at, reported FROM dead_letters ORDER BY seq")
}

// TakeUnreported returns dead letters not yet reported and marks them
// reported, so each failure is surfaced exactly once.
func (s *Store) TakeUnreported(ctx context.Context) ([]DeadLetter, error) {
	out, err := s.deadLetters(ctx, "SELECT seq, list_id, task_id, kind, path, old_path, enqueued_at, retry_count, reason, failed_at, reported FROM dead_letters WHERE reported = 0 ORDER BY seq")
	if err != nil || len(out) == 0 {
		return out, err
	}
	if _, err := s.db.ExecContext(ctx, "UPDATE dead_letters SET reported = 1 WHERE reported = 0"); err != nil {
		return nil, errs.Wrap(errs.IO, "mark dead letters reported", err)
	}
	return out, nil
}

// ClearDeadLetters empties the dead-letter set.
func (s *Store) ClearDeadLetters(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM dead_letters")
	return errs.Wrap(errs.IO, "clear dead letters", err)
}

func (s *Store) deadLetters(ctx context.Context, query string) ([]DeadLetter, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errs.Wrap(errs.IO, "list dead letters", err)
	}
	defer rows.Close()

	var out []DeadLetter
	for rows.Next() {
		var (
			d                  DeadLetter
			kind               string
			enqueued, failedAt int64
		)
		if err := rows.Scan(&d.Seq, &d.ListID, &d.TaskID, &kind, &d.Path, &d.OldPath, &enqueued, &d.RetryCount, &d.Reason, &failedAt, &d.Reported); err != nil {
			return nil, errs.Wrap(errs.IO, "scan dead letter", err)
		}
		d.Kind = OpKind(kind)
		d.EnqueuedAt = fromUnix(enqueued)
		d.FailedAt = fromUnix(failedAt)
		out = append(out, d)
	}
	return out, errs.Wrap(errs.IO, "list dead letters", rows.Err())
}

// ============================================================================
// Meta
// ============================================================================

// Meta returns a stored value, or "" when absent.
func (s *Store) Meta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM sync_meta WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return v, errs.Wrap(errs.IO, fmt.Sprintf("read sync meta %q", key), err)
}

// SetMeta stores a value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sync_meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	return errs.Wrap(errs.IO, fmt.Sprintf("write sync meta %q", key), err)
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
