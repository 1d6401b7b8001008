package cancel

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Flag is an ExecutionContext driven by an explicit Cancel call.
// It is safe for concurrent use.
type Flag struct {
	canceled atomic.Bool

	mu       sync.Mutex
	progress []float64
}

// NewFlag returns a Flag that is not canceled.
func NewFlag() *Flag {
	return &Flag{}
}

// Cancel requests cancellation.
func (f *Flag) Cancel() {
	f.canceled.Store(true)
}

// Canceled reports whether Cancel was called.
func (f *Flag) Canceled() bool {
	return f.canceled.Load()
}

// CheckCanceled implements Checker.
func (f *Flag) CheckCanceled() error {
	if f.canceled.Load() {
		return ErrCanceled
	}
	return nil
}

// SetProgress records a progress report.
func (f *Flag) SetProgress(fraction float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, fraction)
}

// Progress returns all progress reports in order.
func (f *Flag) Progress() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]float64, len(f.progress))
	copy(out, f.progress)
	return out
}

// contextExecution is an ExecutionContext canceled with its context.
type contextExecution struct {
	ctx    context.Context
	logger zerolog.Logger
}

// FromContext returns an ExecutionContext that reports cancellation once ctx
// is done and logs progress at debug level.
func FromContext(ctx context.Context, logger zerolog.Logger) ExecutionContext {
	return &contextExecution{ctx: ctx, logger: logger}
}

func (c *contextExecution) CheckCanceled() error {
	if c.ctx.Err() != nil {
		return context.Cause(c.ctx)
	}
	return nil
}

func (c *contextExecution) SetProgress(fraction float64) {
	c.logger.Debug().Float64("progress", fraction).Msg("Execution progress")
}
