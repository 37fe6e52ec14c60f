package sequencer

import (
	"sync"
	"time"
)

// ManualClock holds timers until Fire is called. It drives the sequencer
// faster than real time for offline rendering and tests.
type ManualClock struct {
	mu      sync.Mutex
	pending []*manualTimer
	delays  []time.Duration
}

type manualTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func (c *ManualClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &manualTimer{d: d, f: f}
	c.mu.Lock()
	c.pending = append(c.pending, t)
	c.delays = append(c.delays, d)
	c.mu.Unlock()
	return t
}

// Delays lists every delay requested so far, in order.
func (c *ManualClock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

// Next returns the delay of the oldest live timer.
func (c *ManualClock) Next() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prune()
	if len(c.pending) == 0 {
		return 0, false
	}
	return c.pending[0].d, true
}

// Fire runs the oldest live timer. It reports false when none is pending.
func (c *ManualClock) Fire() bool {
	c.mu.Lock()
	c.prune()
	if len(c.pending) == 0 {
		c.mu.Unlock()
		return false
	}
	t := c.pending[0]
	c.pending = c.pending[1:]
	t.stopped = true
	c.mu.Unlock()
	t.f()
	return true
}

func (c *ManualClock) prune() {
	for len(c.pending) > 0 && c.pending[0].stopped {
		c.pending = c.pending[1:]
	}
}
