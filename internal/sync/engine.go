// Package sync keeps a workspace in step with its remote copy. The Engine
// pulls remote changes with last-write-wins, pushes local changes, defers
// operations to a durable queue while the remote is unreachable, and holds
// equal-timestamp divergences for the user to resolve. The Runner drives the
// engine in the background.
package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	gosync "sync"
	"time"

	"golang.org/x/sync/errgroup"

	"taskfold/internal/config"
	"taskfold/internal/errs"
	"taskfold/internal/storage"
	"taskfold/internal/syncstate"
	"taskfold/internal/task"
	"taskfold/internal/transport"
)

// State is the engine's position in its state machine.
type State int

const (
	Idle State = iota
	Pulling
	Pushing
	Conflicted
	Offline
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pulling:
		return "pulling"
	case Pushing:
		return "pushing"
	case Conflicted:
		return "conflicted"
	case Offline:
		return "offline"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrBusy is returned when another pull or push is running.
	ErrBusy = errs.New(errs.Conflict, "sync already in progress")
	// ErrConflicted is returned while conflicts wait for resolution.
	ErrConflicted = errs.New(errs.Conflict, "unresolved sync conflicts")
)

// Resolution picks the side that wins a conflict.
type Resolution int

const (
	KeepLocal Resolution = iota
	KeepRemote
)

// ParseResolution accepts "local" or "remote".
func ParseResolution(s string) (Resolution, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local", "keep-local", "mine":
		return KeepLocal, nil
	case "remote", "keep-remote", "theirs":
		return KeepRemote, nil
	}
	return 0, errs.Errorf(errs.Validation, "unknown resolution %q (want local or remote)", s)
}

// Conflict is a task whose local and remote copies carry the same timestamp
// but different content.
type Conflict struct {
	TaskID         string
	Path           string
	Local          task.Task
	Remote         task.Task
	RemoteData     []byte
	RemoteModified time.Time
	RemoteETag     string
}

// Report summarizes one pull, push or sync.
type Report struct {
	Pulled        int // remote tasks written locally
	LocalDeleted  int // local tasks removed because the remote removed them
	Pushed        int // local tasks uploaded
	RemoteDeleted int // remote files removed because the task is gone locally
	Replayed      int // queued operations replayed
	Queued        int // operations deferred to the offline queue
	Skipped       int // remote files that could not be decoded
	Conflicts     []Conflict
	DeadLetters   []syncstate.DeadLetter
	Errors        []error // per-file failures that did not stop the run
}

func (r *Report) merge(o Report) {
	r.Pulled += o.Pulled
	r.LocalDeleted += o.LocalDeleted
	r.Pushed += o.Pushed
	r.RemoteDeleted += o.RemoteDeleted
	r.Replayed += o.Replayed
	r.Queued += o.Queued
	r.Skipped += o.Skipped
	r.Conflicts = append(r.Conflicts, o.Conflicts...)
	r.DeadLetters = append(r.DeadLetters, o.DeadLetters...)
	r.Errors = append(r.Errors, o.Errors...)
}

// Options tunes remote calls.
type Options struct {
	RequestTimeout time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxAttempts    int
	Logger         *slog.Logger
}

// OptionsFromConfig builds Options from the sync section of the config.
func OptionsFromConfig(c config.SyncConfig) Options {
	return Options{
		RequestTimeout: c.RequestTimeout,
		InitialBackoff: c.InitialBackoff,
		MaxBackoff:     c.MaxBackoff,
		MaxAttempts:    c.MaxAttempts,
	}
}

func (o Options) withDefaults() Options {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// listConcurrency bounds parallel collection listings during pull.
const listConcurrency = 4

// Engine synchronizes one workspace with one remote.
type Engine struct {
	repo   *storage.Repository
	remote transport.Transport
	state  *syncstate.Store
	opts   Options
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error

	mu        gosync.Mutex
	status    State
	offline   bool
	conflicts map[string]Conflict

	// Serializes pull and push.
	opMu gosync.Mutex
}

// New returns an engine in the Idle state.
func New(repo *storage.Repository, remote transport.Transport, state *syncstate.Store, opts Options) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		repo:      repo,
		remote:    remote,
		state:     state,
		opts:      opts,
		logger:    opts.Logger,
		sleep:     sleepCtx,
		conflicts: map[string]Conflict{},
	}
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Conflicts returns the unresolved conflicts ordered by path.
func (e *Engine) Conflicts() []Conflict {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Conflict, 0, len(e.conflicts))
	for _, c := range e.conflicts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Pull applies remote changes to the workspace.
func (e *Engine) Pull(ctx context.Context) (Report, error) {
	var rep Report
	if err := e.begin(Pulling); err != nil {
		return rep, err
	}
	defer e.end()
	err := e.pull(ctx, &rep)
	return rep, e.finish(err)
}

// Push uploads local changes, replaying the offline queue first.
func (e *Engine) Push(ctx context.Context) (Report, error) {
	var rep Report
	if err := e.begin(Pushing); err != nil {
		return rep, err
	}
	defer e.end()
	err := e.push(ctx, &rep, false)
	return rep, e.finish(err)
}

// Sync runs a full pull followed by a full push. Push is skipped when the
// pull left conflicts behind. When the remote is unreachable during pull,
// local changes are queued without further network attempts.
func (e *Engine) Sync(ctx context.Context) (Report, error) {
	var rep Report
	if err := e.begin(Pulling); err != nil {
		return rep, err
	}
	defer e.end()

	pullErr := e.pull(ctx, &rep)
	if ctx.Err() != nil {
		return rep, e.finish(ctx.Err())
	}
	if len(e.Conflicts()) > 0 {
		return rep, e.finish(pullErr)
	}
	offline := pullErr != nil && transport.IsTransient(pullErr)
	if pullErr != nil && !offline {
		return rep, e.finish(pullErr)
	}

	e.setStatus(Pushing)
	pushErr := e.push(ctx, &rep, offline)
	if pullErr != nil {
		return rep, e.finish(pullErr)
	}
	return rep, e.finish(pushErr)
}

// begin takes the operation lock and enters s.
func (e *Engine) begin(s State) error {
	if !e.opMu.TryLock() {
		return ErrBusy
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.conflicts) > 0 {
		e.opMu.Unlock()
		return fmt.Errorf("%w: %d task(s) need resolution", ErrConflicted, len(e.conflicts))
	}
	e.status = s
	return nil
}

// end leaves the running state for Conflicted, Offline or Idle.
func (e *Engine) end() {
	e.mu.Lock()
	switch {
	case len(e.conflicts) > 0:
		e.status = Conflicted
	case e.offline:
		e.status = Offline
	default:
		e.status = Idle
	}
	e.mu.Unlock()
	e.opMu.Unlock()
}

// finish turns leftover conflicts into an error and records an unreachable
// remote.
func (e *Engine) finish(err error) error {
	if err != nil {
		if transport.IsTransient(err) {
			e.setOffline(true)
		}
		return err
	}
	if n := len(e.Conflicts()); n > 0 {
		return fmt.Errorf("%w: %d task(s) need resolution", ErrConflicted, n)
	}
	return nil
}

func (e *Engine) setStatus(s State) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

func (e *Engine) setOffline(off bool) {
	e.mu.Lock()
	changed := e.offline != off
	e.offline = off
	e.mu.Unlock()
	if changed && off {
		e.logger.Warn("remote unreachable; queuing changes")
	} else if changed {
		e.logger.Info("remote reachable again")
	}
}

// ============================================================================
// Pull
// ============================================================================

func (e *Engine) pull(ctx context.Context, rep *Report) error {
	remote, err := e.listRemote(ctx)
	if err != nil {
		return err
	}
	e.setOffline(false)

	local, err := e.repo.Snapshot()
	if err != nil {
		return err
	}
	byID := make(map[string]storage.Entry, len(local))
	for _, le := range local {
		byID[le.Task.ID] = le
	}
	cursors, err := e.state.Cursors(ctx)
	if err != nil {
		return err
	}
	byPath := make(map[string]syncstate.Cursor, len(cursors))
	for _, c := range cursors {
		byPath[c.RemotePath] = c
	}

	seen := map[string]bool{}
	onRemote := map[string]bool{}
	for _, re := range remote {
		onRemote[re.Path] = true
	}

	for _, re := range remote {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c, ok := byPath[re.Path]; ok && c.RemoteModified.Equal(re.Modified) && (re.ETag == "" || c.RemoteETag == "" || c.RemoteETag == re.ETag) {
			seen[c.TaskID] = true
			continue
		}
		id, err := e.pullFile(ctx, re, byID, cursors, rep)
		if err != nil {
			if transport.IsAuth(err) || transport.IsTransient(err) || ctx.Err() != nil {
				return err
			}
			e.logger.Warn("pull failed for file", "path", re.Path, "err", err)
			rep.Errors = append(rep.Errors, err)
		}
		if id != "" {
			seen[id] = true
		}
	}

	// Tasks that disappeared from the remote.
	for id, c := range cursors {
		if err := ctx.Err(); err != nil {
			return err
		}
		if seen[id] || onRemote[c.RemotePath] {
			continue
		}
		le, ok := byID[id]
		if ok && le.Task.UpdatedAt.Equal(c.LocalUpdated) && le.Path == c.RemotePath {
			if err := e.repo.RemoveTaskByID(id); err != nil {
				return err
			}
			rep.LocalDeleted++
			e.logger.Info("removed task deleted on remote", "path", c.RemotePath)
		}
		// Edited locally since: the next push re-creates it remotely.
		if err := e.state.DeleteCursor(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// pullFile fetches one changed remote file and applies last-write-wins. It
// returns the id of the task the file holds.
func (e *Engine) pullFile(ctx context.Context, re transport.Entry, byID map[string]storage.Entry, cursors map[string]syncstate.Cursor, rep *Report) (string, error) {
	var (
		data []byte
		mod  time.Time
	)
	err := e.do(ctx, "get", re.Path, func(ctx context.Context) (err error) {
		data, mod, err = e.remote.Get(ctx, re.Path)
		return err
	})
	if err != nil {
		return "", err
	}
	_, title, err := storage.SplitPath(re.Path)
	if err != nil {
		rep.Skipped++
		return "", err
	}
	remoteTask, err := task.Decode(data, task.FileName(title))
	if err != nil {
		rep.Skipped++
		return "", err
	}
	id := remoteTask.ID
	cursor := syncstate.Cursor{TaskID: id, RemotePath: re.Path, RemoteModified: mod, RemoteETag: re.ETag}

	le, exists := byID[id]
	switch {
	case exists && le.Path == re.Path && sameContent(&le.Task, remoteTask):
		cursor.LocalUpdated = le.Task.UpdatedAt
		return id, e.state.PutCursor(ctx, cursor)

	case !exists:
		if c, had := cursors[id]; had && !mod.After(c.RemoteModified) {
			// Deleted locally and untouched remotely: push removes it.
			return id, nil
		}

	case mod.Equal(le.Task.UpdatedAt):
		c := Conflict{
			TaskID:         id,
			Path:           re.Path,
			Local:          le.Task,
			Remote:         *remoteTask,
			RemoteData:     data,
			RemoteModified: mod,
			RemoteETag:     re.ETag,
		}
		e.mu.Lock()
		e.conflicts[id] = c
		e.mu.Unlock()
		rep.Conflicts = append(rep.Conflicts, c)
		e.logger.Warn("sync conflict", "path", re.Path, "task", id)
		return id, nil

	case !mod.After(le.Task.UpdatedAt):
		// Local copy is newer. Dropping the cursor makes push upload it even
		// when the local task has not changed since the last sync.
		return id, e.state.DeleteCursor(ctx, id)
	}

	applied, err := e.repo.ApplyRemote(re.Path, data)
	if err != nil {
		return id, err
	}
	cursor.LocalUpdated = applied.UpdatedAt
	if err := e.state.PutCursor(ctx, cursor); err != nil {
		return id, err
	}
	rep.Pulled++
	e.logger.Debug("pulled task", "path", re.Path)
	return id, nil
}

// listRemote returns every task file on the remote, sorted by path.
// Collections are listed concurrently.
func (e *Engine) listRemote(ctx context.Context) ([]transport.Entry, error) {
	var root []transport.Entry
	err := e.do(ctx, "list", "", func(ctx context.Context) (err error) {
		root, err = e.remote.List(ctx, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	var dirs []string
	for _, re := range root {
		if re.IsDir && !strings.HasPrefix(path.Base(re.Path), task.ReservedPrefix) {
			dirs = append(dirs, re.Path)
		}
	}

	results := make([][]transport.Entry, len(dirs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)
	for i, dir := range dirs {
		g.Go(func() error {
			return e.do(gctx, "list", dir, func(ctx context.Context) (err error) {
				results[i], err = e.remote.List(ctx, dir)
				return err
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var files []transport.Entry
	for _, entries := range results {
		for _, re := range entries {
			if !re.IsDir && task.IsTaskFile(path.Base(re.Path)) {
				files = append(files, re)
			}
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func sameContent(a, b *task.Task) bool {
	if a.Title != b.Title {
		return false
	}
	ea, err1 := task.Encode(a)
	eb, err2 := task.Encode(b)
	return err1 == nil && err2 == nil && bytes.Equal(ea, eb)
}

// ============================================================================
// Push
// ============================================================================

// push replays the queue, then uploads changed tasks and removes remote
// files of deleted tasks. With offline set, nothing is sent and every change
// is queued.
func (e *Engine) push(ctx context.Context, rep *Report, offline bool) error {
	if !offline {
		var err error
		if offline, err = e.replay(ctx, rep); err != nil {
			return err
		}
	}

	local, err := e.repo.Snapshot()
	if err != nil {
		return err
	}
	cursors, err := e.state.Cursors(ctx)
	if err != nil {
		return err
	}

	present := make(map[string]bool, len(local))
	for _, le := range local {
		if err := ctx.Err(); err != nil {
			return err
		}
		present[le.Task.ID] = true
		c, synced := cursors[le.Task.ID]
		if synced && !le.Task.UpdatedAt.After(c.LocalUpdated) && c.RemotePath == le.Path {
			continue
		}

		op := syncstate.PendingOp{ListID: le.ListID, TaskID: le.Task.ID, Kind: syncstate.OpUpdate, Path: le.Path}
		switch {
		case !synced:
			op.Kind = syncstate.OpCreate
		case c.RemotePath != le.Path:
			op.Kind, op.OldPath = syncstate.OpMove, c.RemotePath
		}

		if !offline {
			err := e.upload(ctx, le, op.OldPath)
			switch {
			case err == nil:
				rep.Pushed++
				continue
			case transport.IsAuth(err), ctx.Err() != nil:
				return err
			case !transport.IsTransient(err):
				e.logger.Warn("push failed for task", "path", le.Path, "err", err)
				rep.Errors = append(rep.Errors, err)
				continue
			}
			offline = true
			e.setOffline(true)
			op.LastError = err.Error()
		}
		if err := e.enqueue(ctx, op, rep); err != nil {
			return err
		}
	}

	for id, c := range cursors {
		if err := ctx.Err(); err != nil {
			return err
		}
		if present[id] {
			continue
		}
		queued, err := e.state.HasPendingDelete(ctx, id)
		if err != nil {
			return err
		}
		if queued {
			continue
		}
		op := syncstate.PendingOp{TaskID: id, Kind: syncstate.OpDelete, Path: c.RemotePath}
		if !offline {
			err := e.do(ctx, "delete", c.RemotePath, func(ctx context.Context) error {
				return e.remote.Delete(ctx, c.RemotePath)
			})
			switch {
			case err == nil || transport.IsNotFound(err):
				if err := e.state.DeleteCursor(ctx, id); err != nil {
					return err
				}
				rep.RemoteDeleted++
				continue
			case transport.IsAuth(err), ctx.Err() != nil:
				return err
			case !transport.IsTransient(err):
				rep.Errors = append(rep.Errors, err)
				continue
			}
			offline = true
			e.setOffline(true)
			op.LastError = err.Error()
		}
		// The cursor stays until the queued delete is replayed so pull
		// keeps treating the remote copy as deleted locally.
		if err := e.enqueue(ctx, op, rep); err != nil {
			return err
		}
	}

	return e.reportDeadLetters(ctx, rep)
}

// replay sends queued operations in FIFO order. It reports offline when a
// transient failure stopped the replay; the failed operation and everything
// after it stay queued. An operation that has failed MaxAttempts replays is
// dead-lettered and the replay moves on.
func (e *Engine) replay(ctx context.Context, rep *Report) (offline bool, err error) {
	ops, err := e.state.Pending(ctx)
	if err != nil {
		return false, err
	}
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		err := e.replayOne(ctx, op)
		switch {
		case err == nil:
			if err := e.state.Ack(ctx, op.Seq); err != nil {
				return false, err
			}
			rep.Replayed++
		case transport.IsAuth(err), ctx.Err() != nil:
			return false, err
		case transport.IsTransient(err) && op.RetryCount+1 < e.opts.MaxAttempts:
			if err := e.state.MarkRetry(ctx, op.Seq, err); err != nil {
				return false, err
			}
			e.setOffline(true)
			return true, nil
		case transport.IsTransient(err):
			op.RetryCount++
			if err := e.state.DeadLetter(ctx, op, err.Error()); err != nil {
				return false, err
			}
			e.logger.Error("queued operation exhausted its retries", "kind", op.Kind, "path", op.Path, "retries", op.RetryCount, "err", err)
		default:
			if err := e.state.DeadLetter(ctx, op, err.Error()); err != nil {
				return false, err
			}
			e.logger.Error("queued operation failed permanently", "kind", op.Kind, "path", op.Path, "err", err)
		}
	}
	return false, nil
}

func (e *Engine) replayOne(ctx context.Context, op syncstate.PendingOp) error {
	if op.Kind == syncstate.OpDelete {
		return e.replayDelete(ctx, op)
	}

	// Create, update and move upload the task as it is now.
	t, listID, err := e.repo.FindTask(op.TaskID)
	if errs.Is(err, errs.NotFound) {
		// Deleted locally after it was queued; the delete pass handles the
		// remote side.
		return nil
	}
	if err != nil {
		return err
	}
	list, err := e.repo.GetList(listID)
	if err != nil {
		return err
	}
	le := storage.Entry{ListID: listID, ListTitle: list.Title, Path: storage.TaskPath(list.Title, t.Title), Task: *t}
	oldPath := op.OldPath
	if c, ok, err := e.state.Cursor(ctx, op.TaskID); err != nil {
		return err
	} else if ok && c.RemotePath != le.Path {
		oldPath = c.RemotePath
	}
	if oldPath == le.Path {
		oldPath = ""
	}
	return e.upload(ctx, le, oldPath)
}

func (e *Engine) replayDelete(ctx context.Context, op syncstate.PendingOp) error {
	switch _, _, err := e.repo.FindTask(op.TaskID); {
	case err == nil:
		// A newer remote edit brought the task back since it was queued.
		return nil
	case !errs.Is(err, errs.NotFound):
		return err
	}
	err := e.do(ctx, "delete", op.Path, func(ctx context.Context) error {
		return e.remote.Delete(ctx, op.Path)
	})
	if err != nil && !transport.IsNotFound(err) {
		return err
	}
	e.setOffline(false)
	c, ok, err := e.state.Cursor(ctx, op.TaskID)
	if err != nil || !ok || c.RemotePath != op.Path {
		return err
	}
	return e.state.DeleteCursor(ctx, op.TaskID)
}

// upload writes one task to the remote, removes its previous remote path
// when it moved, and records the new cursor.
func (e *Engine) upload(ctx context.Context, le storage.Entry, oldPath string) error {
	data, err := task.Encode(&le.Task)
	if err != nil {
		return err
	}
	dir := path.Dir(le.Path)

	err = e.do(ctx, "put", le.Path, func(ctx context.Context) error {
		err := e.remote.Put(ctx, le.Path, data)
		if transport.IsNotFound(err) {
			if err := e.remote.MakeCollection(ctx, dir); err != nil {
				return err
			}
			err = e.remote.Put(ctx, le.Path, data)
		}
		return err
	})
	if err != nil {
		return err
	}

	if oldPath != "" {
		err := e.do(ctx, "delete", oldPath, func(ctx context.Context) error {
			return e.remote.Delete(ctx, oldPath)
		})
		if err != nil && !transport.IsNotFound(err) {
			return err
		}
	}

	var meta transport.Entry
	err = e.do(ctx, "list", dir, func(ctx context.Context) error {
		entries, err := e.remote.List(ctx, dir)
		for _, re := range entries {
			if re.Path == le.Path {
				meta = re
			}
		}
		return err
	})
	if err != nil {
		return err
	}

	e.setOffline(false)
	return e.state.PutCursor(ctx, syncstate.Cursor{
		TaskID:         le.Task.ID,
		RemotePath:     le.Path,
		LocalUpdated:   le.Task.UpdatedAt,
		RemoteModified: meta.Modified,
		RemoteETag:     meta.ETag,
	})
}

func (e *Engine) enqueue(ctx context.Context, op syncstate.PendingOp, rep *Report) error {
	if op.Kind != syncstate.OpDelete {
		queued, err := e.state.HasPending(ctx, op.TaskID)
		if err != nil {
			return err
		}
		if queued {
			return nil
		}
	}
	if _, err := e.state.Enqueue(ctx, op); err != nil {
		return err
	}
	rep.Queued++
	e.logger.Info("queued operation", "kind", op.Kind, "path", op.Path)
	return nil
}

func (e *Engine) reportDeadLetters(ctx context.Context, rep *Report) error {
	dead, err := e.state.TakeUnreported(ctx)
	if err != nil {
		return err
	}
	rep.DeadLetters = append(rep.DeadLetters, dead...)
	return nil
}

// ============================================================================
// Conflicts
// ============================================================================

// Resolve settles the conflict on taskID. KeepLocal uploads the local copy
// over the remote one; KeepRemote writes the remote copy locally. When the
// conflict is not known to this engine (e.g. a new process), both copies are
// fetched again first.
func (e *Engine) Resolve(ctx context.Context, taskID string, res Resolution) error {
	if !e.opMu.TryLock() {
		return ErrBusy
	}
	defer e.end()

	e.mu.Lock()
	c, ok := e.conflicts[taskID]
	e.mu.Unlock()
	if !ok {
		var err error
		if c, err = e.loadConflict(ctx, taskID); err != nil {
			return err
		}
	}

	var err error
	switch res {
	case KeepLocal:
		le, lerr := e.localEntry(taskID)
		if lerr != nil {
			return lerr
		}
		oldPath := ""
		if c.Path != le.Path {
			oldPath = c.Path
		}
		err = e.upload(ctx, le, oldPath)
	case KeepRemote:
		var applied *task.Task
		if applied, err = e.repo.ApplyRemote(c.Path, c.RemoteData); err == nil {
			err = e.state.PutCursor(ctx, syncstate.Cursor{
				TaskID:         taskID,
				RemotePath:     c.Path,
				LocalUpdated:   applied.UpdatedAt,
				RemoteModified: c.RemoteModified,
				RemoteETag:     c.RemoteETag,
			})
		}
	default:
		return errs.Errorf(errs.Validation, "unknown resolution %d", res)
	}
	if err != nil {
		return err
	}

	e.mu.Lock()
	delete(e.conflicts, taskID)
	e.mu.Unlock()
	e.logger.Info("conflict resolved", "task", taskID, "kept", map[Resolution]string{KeepLocal: "local", KeepRemote: "remote"}[res])
	return nil
}

func (e *Engine) loadConflict(ctx context.Context, taskID string) (Conflict, error) {
	le, err := e.localEntry(taskID)
	if err != nil {
		return Conflict{}, err
	}
	p := le.Path
	if c, ok, err := e.state.Cursor(ctx, taskID); err != nil {
		return Conflict{}, err
	} else if ok {
		p = c.RemotePath
	}

	var (
		data []byte
		mod  time.Time
	)
	err = e.do(ctx, "get", p, func(ctx context.Context) (err error) {
		data, mod, err = e.remote.Get(ctx, p)
		return err
	})
	if err != nil {
		return Conflict{}, err
	}
	_, title, err := storage.SplitPath(p)
	if err != nil {
		return Conflict{}, err
	}
	remoteTask, err := task.Decode(data, task.FileName(title))
	if err != nil {
		return Conflict{}, err
	}
	if remoteTask.ID != taskID {
		return Conflict{}, errs.Errorf(errs.NotFound, "no remote copy of task %s", taskID)
	}
	return Conflict{TaskID: taskID, Path: p, Local: le.Task, Remote: *remoteTask, RemoteData: data, RemoteModified: mod}, nil
}

func (e *Engine) localEntry(taskID string) (storage.Entry, error) {
	entries, err := e.repo.Snapshot()
	if err != nil {
		return storage.Entry{}, err
	}
	for _, le := range entries {
		if le.Task.ID == taskID {
			return le, nil
		}
	}
	return storage.Entry{}, errs.Errorf(errs.NotFound, "task %s not found", taskID)
}

// ============================================================================
// Status
// ============================================================================

// Status describes the engine and its durable queues.
type Status struct {
	State       State
	Pending     []syncstate.PendingOp
	DeadLetters []syncstate.DeadLetter
	Conflicts   []Conflict
}

// Status returns the current state with the offline queue and dead letters.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	pending, err := e.state.Pending(ctx)
	if err != nil {
		return Status{}, err
	}
	dead, err := e.state.DeadLetters(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{State: e.State(), Pending: pending, DeadLetters: dead, Conflicts: e.Conflicts()}, nil
}

// IsConflict reports whether err came from unresolved conflicts or a
// concurrent run.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflicted) || errors.Is(err, ErrBusy)
}
