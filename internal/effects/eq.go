// Package effects holds the master bus processing applied to the mixer
// output before it reaches the speakers.
package effects

import (
	"math"
	"sync/atomic"
)

// Bands of the master EQ.
const (
	Low = iota
	LowMid
	Mid
	HighMid
	High
	NumBands
)

// MaxGain is +6dB.
const MaxGain = 2

var crossovers = [NumBands - 1]float64{200, 800, 2500, 8000}

// EQ splits the signal with cascaded one-pole lowpass crossovers and sums
// the bands back with per-band gains. Gains are bit-cast float32 so the
// audio thread reads them without locking; Process reads them once per
// block.
type EQ struct {
	gains  [NumBands]atomic.Uint32
	alphas [NumBands - 1]float32
	left   crossover
	right  crossover
}

// crossover is the filter state of one channel.
type crossover [NumBands - 1]float32

// apply splits x into bands and returns their weighted sum.
func (c *crossover) apply(x float32, alphas *[NumBands - 1]float32, g *[NumBands]float32) float32 {
	var out float32
	for i := range c {
		c[i] += alphas[i] * (x - c[i])
		out += c[i] * g[i]
		x -= c[i]
	}
	return out + x*g[High]
}

func NewEQ(sampleRate int) *EQ {
	eq := &EQ{}
	dt := 1.0 / float64(sampleRate)
	for i, freq := range crossovers {
		rc := 1.0 / (2.0 * math.Pi * freq)
		eq.alphas[i] = float32(dt / (rc + dt))
	}
	for i := range eq.gains {
		eq.gains[i].Store(math.Float32bits(1))
	}
	return eq
}

// SetGain sets band's gain, clamped to [0, MaxGain]. 1 is unity.
func (eq *EQ) SetGain(band int, gain float32) {
	if band < 0 || band >= NumBands {
		return
	}
	if !(gain >= 0) {
		gain = 0
	}
	eq.gains[band].Store(math.Float32bits(min(gain, MaxGain)))
}

func (eq *EQ) Gain(band int) float32 {
	if band < 0 || band >= NumBands {
		return 1
	}
	return math.Float32frombits(eq.gains[band].Load())
}

func (eq *EQ) snapshot() (g [NumBands]float32, flat bool) {
	flat = true
	for i := range eq.gains {
		g[i] = math.Float32frombits(eq.gains[i].Load())
		flat = flat && g[i] == 1
	}
	return g, flat
}

// Flat reports whether every band is at unity.
func (eq *EQ) Flat() bool {
	_, flat := eq.snapshot()
	return flat
}

// Process filters interleaved stereo in place.
func (eq *EQ) Process(dst []float32) {
	g, _ := eq.snapshot()
	eq.process(dst, &g)
}

func (eq *EQ) process(dst []float32, g *[NumBands]float32) {
	for i := 0; i+1 < len(dst); i += 2 {
		dst[i] = eq.left.apply(dst[i], &eq.alphas, g)
		dst[i+1] = eq.right.apply(dst[i+1], &eq.alphas, g)
	}
}

// Reset clears the filter state.
func (eq *EQ) Reset() {
	eq.left = crossover{}
	eq.right = crossover{}
}
