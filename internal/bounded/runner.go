package bounded

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/seantiz/vexing/internal/deadline"
)

// Operation is a unit of work that honours ctx cancellation on a best-effort basis.
type Operation[T any] func(ctx context.Context) (T, error)

// Runner holds the timer source and logger shared by bounded operations.
// It is safe for concurrent use.
type Runner struct {
	timers Timers
	logger *slog.Logger
}

// NewRunner creates a Runner. A nil timers uses SystemTimers.
func NewRunner(timers Timers, logger *slog.Logger) *Runner {
	if timers == nil {
		timers = SystemTimers()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{timers: timers, logger: logger}
}

type settled[T any] struct {
	value T
	err   error
}

// Run executes op so that it cannot outlive d.
//
// An already expired deadline fails with a *TimeoutError without invoking op
// or scheduling a timer. Otherwise a timer is armed for d.Remaining(): if it
// fires first, op's context is cancelled and a *TimeoutError describing op is
// returned. If op settles first, its value and error are returned unchanged.
// A panic inside op is returned as an error. If ctx ends first, ctx.Err() is
// returned. The timer is stopped exactly once on every path.
func Run[T any](ctx context.Context, r *Runner, d deadline.Deadline, op string, fn Operation[T]) (T, error) {
	var zero T

	remaining := d.Remaining()
	if remaining == 0 {
		r.timedOut(op, "deadline expired before start")
		return zero, &TimeoutError{Op: op}
	}

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	fired := make(chan struct{})
	timer := r.timers.AfterFunc(remaining, func() { close(fired) })
	defer timer.Stop()

	// Buffered so the operation goroutine never blocks after losing the race.
	done := make(chan settled[T], 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- settled[T]{err: fmt.Errorf("%s panicked: %v", op, p)}
			}
		}()
		v, err := fn(opCtx)
		done <- settled[T]{value: v, err: err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-fired:
		cancel()
		r.timedOut(op, "timer fired")
		return zero, &TimeoutError{Op: op}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (r *Runner) timedOut(op, reason string) {
	timeoutsTotal.WithLabelValues(op).Inc()
	r.logger.Debug("bounded operation timed out", "op", op, "reason", reason)
}
