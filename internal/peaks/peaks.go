// Package peaks reduces a buffer to per-column min/max pairs for waveform
// drawing.
package peaks

import "github.com/cbegin/samplerbox/internal/pcm"

// Pair is the sample range seen in one output column. A column that received
// no samples reports Min=1, Max=-1.
type Pair struct {
	Min float32 `json:"min"`
	Max float32 `json:"max"`
}

// Empty reports whether no samples fell into the column.
func (p Pair) Empty() bool { return p.Min > p.Max }

// Summarize returns exactly width pairs. Columns cover floor(frames/width)
// frames each (at least one); frames past width*bin are not drawn and columns
// past the end of the buffer stay empty. Stereo buffers are mixed to mono by
// averaging the first two channels. The buffer is scanned once.
func Summarize(buf *pcm.Buffer, width int) []Pair {
	if width < 1 {
		width = 1
	}
	out := make([]Pair, width)
	for i := range out {
		out[i] = Pair{Min: 1, Max: -1}
	}
	total := buf.Frames()
	if total == 0 {
		return out
	}
	bin := max(1, total/width)
	limit := min(total, width*bin)

	ch0 := buf.Channel(0)
	var ch1 []float32
	if buf.NumChannels() > 1 {
		ch1 = buf.Channel(1)
	}

	col, next := 0, bin
	p := &out[0]
	for i := 0; i < limit; i++ {
		if i == next {
			col++
			next += bin
			p = &out[col]
		}
		m := ch0[i]
		if ch1 != nil {
			m = 0.5 * (ch0[i] + ch1[i])
		}
		if m < p.Min {
			p.Min = m
		}
		if m > p.Max {
			p.Max = m
		}
	}
	return out
}
