package session

import "sync"

// Controller drives automatic compaction from token-count updates. It is
// wired with three callbacks so it stays free of engine dependencies:
// enabled reads the per-session opt-in flag, applicable runs the
// threshold check, and run performs the compaction.
//
// Token updates arrive off the request path (the counting pool), so run
// executes synchronously in the caller's goroutine. A per-session in-flight
// guard drops updates that land while a compaction is already running.
type Controller struct {
	enabled    func(sessionID string) bool
	applicable func(sessionID string, tokens int) bool
	run        func(sessionID string)

	mu       sync.Mutex
	inflight map[string]bool
}

// NewController wires a controller. All three callbacks are required.
func NewController(enabled func(string) bool, applicable func(string, int) bool, run func(string)) *Controller {
	return &Controller{
		enabled:    enabled,
		applicable: applicable,
		run:        run,
		inflight:   make(map[string]bool),
	}
}

// OnTokenUpdate feeds one token-count observation. It reports whether a
// compaction ran. Toggling the flag takes effect on the next update, so a
// disable during a running compaction does not cancel it.
func (c *Controller) OnTokenUpdate(sessionID string, tokens int) bool {
	if !c.enabled(sessionID) {
		return false
	}
	if !c.applicable(sessionID, tokens) {
		return false
	}

	c.mu.Lock()
	if c.inflight[sessionID] {
		c.mu.Unlock()
		return false
	}
	c.inflight[sessionID] = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inflight, sessionID)
		c.mu.Unlock()
	}()

	c.run(sessionID)
	return true
}
