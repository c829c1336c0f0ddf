package pixelring

import "sync/atomic"

// Controller is the single entry point for changing the ring's state.
// The session loop, the status server and the engine's own ramp hand-over
// all go through the same lock.
type Controller struct {
	engine   *Engine
	requests [NumStates]atomic.Int64
}

// RequestState asks the engine to show s. It returns immediately; the worker
// picks the change up within one animation step. Unknown states are ignored.
func (c *Controller) RequestState(s State) {
	if !s.Valid() {
		c.engine.logger.Warn("ignoring request for unknown state", "state", int(s))
		return
	}
	c.requests[s].Add(1)
	c.engine.setState(s)
}

// State returns the current state.
func (c *Controller) State() State {
	return c.engine.State()
}

// Requests returns how many times s was requested.
func (c *Controller) Requests(s State) int64 {
	if !s.Valid() {
		return 0
	}
	return c.requests[s].Load()
}
