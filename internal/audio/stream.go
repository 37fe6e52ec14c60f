// Package audio connects a pull-based sample source to the system output.
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// Source renders interleaved stereo float32 frames into dst.
// voice.Mixer satisfies it.
type Source interface {
	Process(dst []float32)
}

// Reader adapts a Source to the float32 little-endian byte stream expected
// by ebiten's NewPlayerF32.
type Reader struct {
	mu     sync.Mutex
	source Source
	buf    []float32
	closed bool
}

func NewReader(source Source) *Reader {
	return &Reader{source: source}
}

func (r *Reader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, io.EOF
	}
	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)
	for i, s := range r.buf {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s))
	}
	return frames * 8, nil
}

func (r *Reader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

var (
	audioContextOnce sync.Once
	audioContext     *ebitaudio.Context
	audioSampleRate  int
)

// sharedContext returns the process-wide ebiten audio context. ebiten allows
// only one, so every Output must use the same sample rate.
func sharedContext(sampleRate int) (*ebitaudio.Context, error) {
	audioContextOnce.Do(func() {
		audioSampleRate = sampleRate
		audioContext = ebitaudio.NewContext(sampleRate)
	})
	if audioSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", audioSampleRate, sampleRate)
	}
	return audioContext, nil
}

// Output streams a Source to the speakers. The source is pulled continuously,
// so its clock advances in real time while the Output is open.
type Output struct {
	player *ebitaudio.Player
	reader *Reader
}

// DefaultBufferSize keeps scheduling latency below the engine's lead times
// while leaving headroom on slow machines.
const DefaultBufferSize = 20 * time.Millisecond

func Open(sampleRate int, source Source) (*Output, error) {
	ctx, err := sharedContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewReader(source)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, err
	}
	pl.SetBufferSize(DefaultBufferSize)
	pl.Play()
	return &Output{player: pl, reader: reader}, nil
}

func (o *Output) Close() error {
	o.player.Pause()
	if err := o.player.Close(); err != nil {
		return err
	}
	return o.reader.Close()
}
