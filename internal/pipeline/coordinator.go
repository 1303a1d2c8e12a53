package pipeline

import (
	"context"
	"errors"
	"sync"
)

// ErrAborted marks a run stopped by cooperative cancellation, distinguishable
// from a run that failed on its own.
var ErrAborted = errors.New("run aborted")

// ErrBusy is returned when a second run of the same kind is triggered while
// one is still executing. The dedup and state maps have a single writer by
// design; racing two runs against them is never acceptable.
var ErrBusy = errors.New("another run is already in progress")

type runKind int

const (
	kindDaily runKind = iota
	kindBackfill
)

// Coordinator owns the busy flags and cancellation for pipeline runs. One
// live daily run and one backfill may execute at a time; a second trigger of
// the same kind is rejected with ErrBusy. Triggers (scheduler, CLI) hold a
// Coordinator instead of ambient global state.
type Coordinator struct {
	mu      sync.Mutex
	busy    [2]bool
	cancels [2]context.CancelFunc
}

// NewCoordinator creates an idle coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// begin claims the slot for kind and returns a cancellable context, or
// ErrBusy.
func (c *Coordinator) begin(ctx context.Context, kind runKind) (context.Context, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.busy[kind] {
		return nil, nil, ErrBusy
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.busy[kind] = true
	c.cancels[kind] = cancel

	release := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.busy[kind] = false
		c.cancels[kind] = nil
		cancel()
	}
	return runCtx, release, nil
}

// RunDaily executes one daily pipeline run under the coordinator's daily
// slot.
func (c *Coordinator) RunDaily(ctx context.Context, o *Orchestrator, opts RunOptions) (*Result, error) {
	runCtx, release, err := c.begin(ctx, kindDaily)
	if err != nil {
		return nil, err
	}
	defer release()
	return o.Run(runCtx, opts)
}

// RunBackfill executes a backfill under the coordinator's backfill slot.
func (c *Coordinator) RunBackfill(ctx context.Context, d *BackfillDriver, start, end string, progress ProgressFunc) (*BackfillResult, error) {
	runCtx, release, err := c.begin(ctx, kindBackfill)
	if err != nil {
		return nil, err
	}
	defer release()
	return d.Run(runCtx, start, end, progress)
}

// CancelAll signals every active run to stop at its next stage boundary.
func (c *Coordinator) CancelAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cancel := range c.cancels {
		if cancel != nil {
			cancel()
		}
	}
}

// Busy reports whether any run is currently executing.
func (c *Coordinator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy[kindDaily] || c.busy[kindBackfill]
}
