// Package runcontrol implements the Run Controller: the per-run lifecycle
// object that holds a cancellation token, pause/resume state, a cooperative
// stop flag, and the approval rendezvous between the Tool Executor and
// whatever is driving the run (a human, a chat surface, an automated
// policy). It is modelled as an explicit first-class object rather than
// ambient task-local state so every suspension point (engine stream reads,
// tool execution, workspace I/O) observes the same signal.
package runcontrol

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// ToolCancelled is returned by GuardToolExecution once the run has been
// cancelled, whether the cancellation happened before the call or while a
// tool was mid-flight.
type ToolCancelled struct {
	ToolName string
}

func (e *ToolCancelled) Error() string {
	if e.ToolName == "" {
		return "tool execution cancelled"
	}
	return "tool execution cancelled: " + e.ToolName
}

// pauseWaiter is one goroutine parked in WaitIfPaused, released FIFO by Resume.
type pauseWaiter struct {
	release chan struct{}
}

// Controller holds one run's lifecycle state. The zero value is not usable;
// construct with New.
type Controller struct {
	runID string

	ctx    context.Context
	cancel context.CancelCauseFunc

	mu           sync.Mutex
	paused       bool
	stopRequested bool
	pauseWaiters []*pauseWaiter

	approvals map[string]chan bool
}

// New creates a Controller for runID. The returned context is cancelled
// when Cancel is called; callers that need a context for downstream I/O
// should use Context().
func New(runID string) *Controller {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &Controller{
		runID:     runID,
		ctx:       ctx,
		cancel:    cancel,
		approvals: make(map[string]chan bool),
	}
}

// Context returns the run's cancellation context. Cancelled exactly when
// Cancel has been called.
func (c *Controller) Context() context.Context {
	return c.ctx
}

// Signal is an observable cancellation token: closed once Cancel has been
// called. Any long-running operation should select on it alongside its own
// work.
func (c *Controller) Signal() <-chan struct{} {
	return c.ctx.Done()
}

// Cancelled reports whether Cancel has already been called.
func (c *Controller) Cancelled() bool {
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

// Pause toggles the run into a paused state. New and in-flight calls to
// WaitIfPaused block until Resume or Cancel.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return
	}
	c.paused = true
	log.Debug().Str("run_id", c.runID).Msg("runcontrol: paused")
}

// Resume releases every goroutine parked in WaitIfPaused, in FIFO order, and
// clears the paused flag.
func (c *Controller) Resume() {
	c.mu.Lock()
	waiters := c.pauseWaiters
	c.pauseWaiters = nil
	c.paused = false
	c.mu.Unlock()

	for _, w := range waiters {
		close(w.release)
	}
	log.Debug().Str("run_id", c.runID).Msg("runcontrol: resumed")
}

// WaitIfPaused returns immediately unless the run is currently paused, in
// which case it blocks until Resume is called or the run is cancelled.
func (c *Controller) WaitIfPaused(ctx context.Context) error {
	c.mu.Lock()
	if !c.paused {
		c.mu.Unlock()
		return nil
	}
	w := &pauseWaiter{release: make(chan struct{})}
	c.pauseWaiters = append(c.pauseWaiters, w)
	c.mu.Unlock()

	select {
	case <-w.release:
		return nil
	case <-c.ctx.Done():
		return context.Cause(c.ctx)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop sets the advisory stopRequested flag. Stop is cooperative: engines
// consult StopRequested between steps and convert it into a graceful exit
// at the next step boundary, where Cancel takes effect immediately.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopRequested = true
	log.Debug().Str("run_id", c.runID).Msg("runcontrol: stop requested")
}

// StopRequested reports whether Stop has been called.
func (c *Controller) StopRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopRequested
}

// Cancel aborts the cancellation token, resolves every pending approval as
// denied, and wakes every pause-waiter. Cancel is terminal: once called,
// GuardToolExecution always fails and RequestApproval always returns false
// immediately. Cancel is idempotent; only the first call's reason sticks.
func (c *Controller) Cancel(reason error) {
	if reason == nil {
		reason = errCancelled
	}
	c.cancel(reason)

	c.mu.Lock()
	waiters := c.pauseWaiters
	c.pauseWaiters = nil
	pending := c.approvals
	c.approvals = make(map[string]chan bool)
	c.mu.Unlock()

	for _, w := range waiters {
		close(w.release)
	}
	for _, ch := range pending {
		select {
		case ch <- false:
		default:
		}
		close(ch)
	}
	log.Info().Str("run_id", c.runID).Err(reason).Msg("runcontrol: cancelled")
}

var errCancelled = cancelledSentinel{}

type cancelledSentinel struct{}

func (cancelledSentinel) Error() string { return "run cancelled" }

// RequestApproval returns a channel that receives the approval decision once
// ResolveApproval(callID, ...) is called, or false immediately if the run
// has already been cancelled.
func (c *Controller) RequestApproval(callID string) <-chan bool {
	c.mu.Lock()
	if c.Cancelled() {
		c.mu.Unlock()
		ch := make(chan bool, 1)
		ch <- false
		return ch
	}
	ch, exists := c.approvals[callID]
	if !exists {
		ch = make(chan bool, 1)
		c.approvals[callID] = ch
	}
	c.mu.Unlock()
	return ch
}

// ResolveApproval delivers the human/policy decision for callID. It is a
// no-op if no approval is pending for that id (already resolved, or the run
// was cancelled in the meantime).
func (c *Controller) ResolveApproval(callID string, allowed bool) {
	c.mu.Lock()
	ch, exists := c.approvals[callID]
	if exists {
		delete(c.approvals, callID)
	}
	c.mu.Unlock()
	if !exists {
		return
	}
	select {
	case ch <- allowed:
	default:
	}
	close(ch)
}

// GuardToolExecution is the single entry point tool dispatch calls before
// invoking a handler: fail immediately if cancelled, otherwise block while
// paused, then re-check cancellation (a cancel may have raced the pause
// release).
func (c *Controller) GuardToolExecution(ctx context.Context, toolName string) error {
	if c.Cancelled() {
		return &ToolCancelled{ToolName: toolName}
	}
	if err := c.WaitIfPaused(ctx); err != nil {
		return err
	}
	if c.Cancelled() {
		return &ToolCancelled{ToolName: toolName}
	}
	return nil
}
