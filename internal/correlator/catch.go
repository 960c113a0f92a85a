package correlator

import (
	"strings"
	"sync"
)

// Catch is one reserved reply slot. Its channels are never written after Stop
// returns.
type Catch struct {
	owner  *Correlator
	domain string
	tag    string
	filter FilterFunc

	// guarded by owner.mu
	payload strings.Builder
	total   int
	discard bool

	progress chan Progress
	done     chan Feedback
	stopped  chan struct{}
	stopOnce sync.Once
}

func (c *Catch) Tag() string {
	return c.tag
}

func (c *Catch) Progress() <-chan Progress {
	return c.progress
}

// Done yields the final feedback once.
func (c *Catch) Done() <-chan Feedback {
	return c.done
}

// Stopped is closed once the catch has been abandoned.
func (c *Catch) Stopped() <-chan struct{} {
	return c.stopped
}

// Stop abandons the catch. The rest of its reply, terminator included, is
// swallowed. Safe to call repeatedly.
func (c *Catch) Stop() {
	if c == nil || c.owner == nil {
		return
	}
	c.owner.stop(c)
}

// Withdraw releases the slot of a command that was never written, so no
// terminator is expected for it.
func (c *Catch) Withdraw() {
	if c == nil || c.owner == nil {
		return
	}
	c.owner.withdraw(c)
}

// emitProgress never blocks. A full buffer loses its oldest update, the
// latest total always gets through.
func (c *Catch) emitProgress(p Progress) {
	for {
		select {
		case c.progress <- p:
			return
		default:
		}
		select {
		case <-c.progress:
		default:
		}
	}
}
