package sync

import (
	"context"
	"errors"
	"log/slog"
	gosync "sync"
	"time"

	"taskfold/internal/storage"
)

// Runner drives an Engine off the interactive path: a debounced push after
// local changes and an optional periodic full sync.
type Runner struct {
	engine   *Engine
	debounce time.Duration
	interval time.Duration
	logger   *slog.Logger

	mu      gosync.Mutex
	pending []storage.Change
	timer   *time.Timer
	trigger chan struct{}

	// OnResult, when set, receives the outcome of every background run.
	OnResult func(Report, error)
}

// NewRunner returns a runner for e. A zero interval disables periodic sync;
// a zero debounce pushes on the next loop iteration.
func NewRunner(e *Engine, debounce, interval time.Duration) *Runner {
	return &Runner{
		engine:   e,
		debounce: debounce,
		interval: interval,
		logger:   e.logger,
		trigger:  make(chan struct{}, 1),
	}
}

// OnChange records a local change and (re)starts the debounce timer.
// It matches storage.Repository.SetOnChange.
func (r *Runner) OnChange(c storage.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, c)
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.debounce, r.fire)
}

func (r *Runner) fire() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Pending returns the number of changes not yet pushed.
func (r *Runner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// takePending clears the change buffer and its timer.
func (r *Runner) takePending() []storage.Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	out := r.pending
	r.pending = nil
	return out
}

// restore puts changes back when a push could not run.
func (r *Runner) restore(changes []storage.Change) {
	if len(changes) == 0 {
		return
	}
	r.mu.Lock()
	r.pending = append(changes, r.pending...)
	if r.timer == nil {
		r.timer = time.AfterFunc(r.debounce, r.fire)
	}
	r.mu.Unlock()
}

// Run loops until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if r.interval > 0 {
		t := time.NewTicker(r.interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.trigger:
			r.push(ctx)
		case <-tick:
			changes := r.takePending()
			rep, err := r.engine.Sync(ctx)
			if errors.Is(err, ErrBusy) {
				r.restore(changes)
			}
			r.report(rep, err)
		}
	}
}

// Flush pushes buffered changes right away. It is a no-op when nothing is
// pending.
func (r *Runner) Flush(ctx context.Context) error {
	if r.Pending() == 0 {
		return nil
	}
	_, err := r.push(ctx)
	return err
}

func (r *Runner) push(ctx context.Context) (Report, error) {
	changes := r.takePending()
	if len(changes) == 0 {
		return Report{}, nil
	}
	r.logger.Debug("pushing local changes", "changes", len(changes))
	rep, err := r.engine.Push(ctx)
	if errors.Is(err, ErrBusy) {
		r.restore(changes)
	}
	r.report(rep, err)
	return rep, err
}

func (r *Runner) report(rep Report, err error) {
	if err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Warn("background sync failed", "err", err)
	}
	if r.OnResult != nil {
		r.OnResult(rep, err)
	}
}
