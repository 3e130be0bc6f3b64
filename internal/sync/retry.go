package sync

import (
	"context"
	"errors"
	"time"

	"taskfold/internal/transport"
)

// do runs one remote call with a per-attempt timeout, retrying transient
// failures with exponential backoff. A timed-out attempt counts as a
// connection error. When the attempts are used up the last error is
// returned and the caller queues the operation.
func (e *Engine) do(ctx context.Context, op, p string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}

		actx, cancel := context.WithTimeout(ctx, e.opts.RequestTimeout)
		err = fn(actx)
		timedOut := actx.Err() == context.DeadlineExceeded
		cancel()

		if err == nil {
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if timedOut || errors.Is(err, context.DeadlineExceeded) {
			err = &transport.Error{Kind: transport.ConnectionError, Op: op, Path: p, Err: err}
		}
		if !transport.IsTransient(err) {
			return err
		}
		if attempt == e.opts.MaxAttempts {
			break
		}

		delay := backoff(attempt, e.opts.InitialBackoff, e.opts.MaxBackoff)
		e.logger.Debug("retrying remote call", "op", op, "path", p, "attempt", attempt, "delay", delay, "err", err)
		if serr := e.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
	return err
}

// backoff returns the delay before retry number attempt (1-based):
// initial doubled per attempt, capped at ceiling.
func backoff(attempt int, initial, ceiling time.Duration) time.Duration {
	d := initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	if d > ceiling {
		return ceiling
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
