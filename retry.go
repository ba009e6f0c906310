package lookbook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const maxBackoff = 8 * time.Second

// backoffDelay returns base * 2^(retry-1), capped at maxBackoff.
func backoffDelay(base time.Duration, retry int) time.Duration {
	d := base
	for i := 1; i < retry; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return min(d, maxBackoff)
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

// call runs fn up to MaxRetries+1 times. Each attempt waits on the shared
// limiter and gets its own timeout. Transient failures, per-attempt timeouts
// and malformed model output are retried; auth and malformed-input failures
// are returned at once. When ctx ends the last cause is wrapped in ErrTimeout.
func (o *Orchestrator) call(ctx context.Context, stage string, fn func(context.Context) error) error {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = DefaultAPITimeout
	}
	base := o.Backoff
	if base <= 0 {
		base = DefaultRetryBackoff
	}

	var last error
	for attempt := 1; attempt <= o.MaxRetries+1; attempt++ {
		if attempt > 1 {
			delay := backoffDelay(base, attempt-1)
			slog.Debug("lookbook: retrying call", "stage", stage, "attempt", attempt, "delay", delay, "error", last)
			if err := sleepCtx(ctx, delay); err != nil {
				return fmt.Errorf("%w: %w", ErrTimeout, last)
			}
		}
		if err := o.Limiter.Wait(ctx); err != nil {
			return err
		}

		actx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		err := fn(actx)
		timedOut := errors.Is(actx.Err(), context.DeadlineExceeded)
		cancel()
		if o.OnCall != nil {
			o.OnCall(CallEvent{Stage: stage, Attempt: attempt, Err: err, Duration: time.Since(start)})
		}
		if err == nil {
			return nil
		}

		switch {
		case ctx.Err() != nil:
			return fmt.Errorf("%w: %w", ErrTimeout, err)
		case timedOut:
			last = fmt.Errorf("%w: attempt exceeded %s: %w", ErrTimeout, timeout, err)
		case errors.Is(err, ErrMalformedModelOutput):
			last = err
		case IsTransient(err):
			last = err
		default:
			return err
		}
	}
	return last
}
