// Package gain provides a volume control that can be changed from any goroutine
// while the audio thread reads it.
package gain

import (
	"math"
	"sync/atomic"
)

// Control is a linear gain in [0, 1]. The value is stored as float64 bits so
// the mixer reads it without taking a lock. A nil *Control reads as unity.
type Control struct {
	bits atomic.Uint64
}

func New(v float64) *Control {
	c := &Control{}
	c.Set(v)
	return c
}

// Set stores v clamped to [0, 1]. NaN is treated as silence.
func (c *Control) Set(v float64) {
	if math.IsNaN(v) || v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	c.bits.Store(math.Float64bits(v))
}

func (c *Control) Value() float64 {
	if c == nil {
		return 1
	}
	return math.Float64frombits(c.bits.Load())
}
