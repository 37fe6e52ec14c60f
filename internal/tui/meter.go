package tui

import (
	"math"
	"sync"
)

// Meter tracks the output peak level from the audio thread.
type Meter struct {
	mu   sync.Mutex
	peak float32
}

func NewMeter() *Meter { return &Meter{} }

// Tap is called from the audio thread. Keep it minimal: just track the peak.
func (m *Meter) Tap(samples []float32) {
	var peak float32
	for i := 0; i+1 < len(samples); i += 2 {
		mono := (samples[i] + samples[i+1]) * 0.5
		if mono < 0 {
			mono = -mono
		}
		peak = max(peak, mono)
	}
	m.mu.Lock()
	m.peak = max(m.peak, peak)
	m.mu.Unlock()
}

func (m *Meter) Level() float32 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

// Decay returns the current peak and halves it. The model calls it once per
// refresh tick so the fall rate is tied to the tick, not to redraws.
func (m *Meter) Decay() float32 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.peak
	m.peak *= 0.5
	return l
}

// levelBar draws level in [0,1] as a bar of width cells.
func levelBar(level float32, width int) string {
	n := int(math.Round(float64(min(1, max(0, level))) * float64(width)))
	bar := make([]rune, width)
	for i := range bar {
		if i < n {
			bar[i] = '|'
		} else {
			bar[i] = ' '
		}
	}
	return string(bar)
}
