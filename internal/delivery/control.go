package delivery

import "sync/atomic"

// Control steers one in-progress run. All methods are idempotent and safe
// for concurrent use; the run reads the flags at its checkpoints.
type Control struct {
	paused  atomic.Bool
	stopped atomic.Bool
}

// Pause blocks the run before its next send.
func (c *Control) Pause() { c.paused.Store(true) }

// Resume clears a pause.
func (c *Control) Resume() { c.paused.Store(false) }

// Stop ends the run at its next checkpoint.
func (c *Control) Stop() { c.stopped.Store(true) }

// Paused reports whether the run is paused.
func (c *Control) Paused() bool { return c.paused.Load() }

// Stopped reports whether Stop was called.
func (c *Control) Stopped() bool { return c.stopped.Load() }
