// Package cancel races a unit of work against a user cancellation signal.
//
// Run starts two goroutines per invocation, a worker and a monitor, which
// report to one completion channel. The first report wins. The loser is
// stopped through a shared context and Run waits for it before returning,
// so no goroutine outlives the call.
package cancel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultPollInterval is how often the monitor checks for cancellation.
const DefaultPollInterval = 300 * time.Millisecond

// ErrCanceled is matched by every error Run returns because of cancellation.
var ErrCanceled = errors.New("execution canceled")

var cancellationsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "wsnodes_cancellations_total",
	Help: "Total number of units of work terminated by user cancellation",
})

// Checker reports user cancellation.
type Checker interface {
	// CheckCanceled returns a non-nil error once the user has canceled.
	CheckCanceled() error
}

// ExecutionContext is the workbench side of a running node.
type ExecutionContext interface {
	Checker

	// SetProgress reports completion as a fraction in [0, 1].
	SetProgress(fraction float64)
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func() error

// CheckCanceled calls f.
func (f CheckerFunc) CheckCanceled() error {
	return f()
}

type outcome[T any] struct {
	value    T
	err      error
	canceled bool
}

// Run executes work while polling checker every interval.
//
// If work finishes first its result and error are returned unchanged.
// If the checker reports cancellation first, or ctx is done, Run returns an
// error matching ErrCanceled and the cause. A panic in work is returned as an error.
func Run[T any](ctx context.Context, checker Checker, interval time.Duration, work func(ctx context.Context) (T, error)) (T, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan outcome[T], 2)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		done <- runWork(runCtx, work)
	}()

	go func() {
		defer wg.Done()
		if err := monitor(runCtx, ctx, checker, interval); err != nil {
			done <- outcome[T]{err: err, canceled: true}
		}
	}()

	first := <-done
	stop()
	wg.Wait()

	if first.canceled {
		cancellationsTotal.Inc()
		var zero T
		return zero, first.err
	}

	// Work that failed because the parent went away reports the cancellation.
	if first.err != nil && ctx.Err() != nil {
		cancellationsTotal.Inc()
		var zero T
		return zero, canceledError(context.Cause(ctx))
	}
	return first.value, first.err
}

func runWork[T any](ctx context.Context, work func(ctx context.Context) (T, error)) (out outcome[T]) {
	defer func() {
		if r := recover(); r != nil {
			out = outcome[T]{err: fmt.Errorf("work panicked: %v", r)}
		}
	}()

	v, err := work(ctx)
	return outcome[T]{value: v, err: err}
}

// monitor returns a cancellation error, or nil once runCtx ends for another reason.
func monitor(runCtx, parent context.Context, checker Checker, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if checker != nil {
			if err := checker.CheckCanceled(); err != nil {
				return canceledError(err)
			}
		}

		select {
		case <-runCtx.Done():
			if parent.Err() != nil {
				return canceledError(context.Cause(parent))
			}
			return nil
		case <-ticker.C:
		}
	}
}

func canceledError(cause error) error {
	if cause == nil || errors.Is(cause, ErrCanceled) {
		return ErrCanceled
	}
	return fmt.Errorf("%w: %w", ErrCanceled, cause)
}

// Check calls checker once and maps a cancellation to ErrCanceled.
func Check(checker Checker) error {
	if checker == nil {
		return nil
	}
	if err := checker.CheckCanceled(); err != nil {
		return canceledError(err)
	}
	return nil
}
