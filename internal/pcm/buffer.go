// Package pcm holds decoded, uncompressed audio ready for the mixer.
package pcm

// Buffer is planar float audio. Every channel slice has the same length.
// A Buffer is never mutated once it has been handed to the engine.
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

func New(sampleRate int, channels ...[]float32) *Buffer {
	return &Buffer{SampleRate: sampleRate, Channels: channels}
}

// FromInterleaved splits interleaved samples into planar channels.
// A trailing partial frame is dropped.
func FromInterleaved(sampleRate, channels int, data []float32) *Buffer {
	if channels <= 0 {
		channels = 1
	}
	frames := len(data) / channels
	b := &Buffer{SampleRate: sampleRate, Channels: make([][]float32, channels)}
	for ch := range b.Channels {
		b.Channels[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			b.Channels[ch][i] = data[i*channels+ch]
		}
	}
	return b
}

func (b *Buffer) NumChannels() int {
	if b == nil {
		return 0
	}
	return len(b.Channels)
}

// Frames returns the per-channel sample count.
func (b *Buffer) Frames() int {
	if b == nil || len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the buffer length in seconds.
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

func (b *Buffer) Channel(i int) []float32 {
	if b == nil || i < 0 || i >= len(b.Channels) {
		return nil
	}
	return b.Channels[i]
}

// Stereo returns frame i as a left/right pair. Mono buffers feed both sides;
// channels past the second are ignored.
func (b *Buffer) Stereo(i int) (float32, float32) {
	switch len(b.Channels) {
	case 0:
		return 0, 0
	case 1:
		v := b.Channels[0][i]
		return v, v
	default:
		return b.Channels[0][i], b.Channels[1][i]
	}
}
