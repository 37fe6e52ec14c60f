package samplerbox

import (
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"

	"github.com/cbegin/samplerbox/internal/effects"
	"github.com/cbegin/samplerbox/internal/sequencer"
	"github.com/cbegin/samplerbox/internal/voice"
)

// PatternSeconds is the length of bars bars of the drum grid.
func PatternSeconds(bpm, swing float64, bars int) float64 {
	total := 0.0
	for i := 0; i < bars*sequencer.NumSteps; i++ {
		total += sequencer.StepSeconds(i%sequencer.NumSteps, bpm, swing)
	}
	return total
}

// RenderPattern plays p over sources faster than real time and returns bars
// bars of interleaved stereo. Sources pair with pattern rows by position.
func RenderPattern(sources []sequencer.Source, p sequencer.Pattern, sampleRate int, bpm, swing float64, bars int) []float32 {
	m := voice.NewMixer(sampleRate)
	clock := &sequencer.ManualClock{}
	q := sequencer.New(m, sequencer.WithClock(clock), sequencer.WithBPM(bpm), sequencer.WithSwing(swing))
	q.SetSources(sources)
	q.Load(p)

	sr := float64(sampleRate)
	frames := int(math.Round(PatternSeconds(bpm, swing, bars) * sr))
	out := make([]float32, 0, frames*2)
	rendered := 0
	elapsed := 0.0

	q.Start()
	defer q.Stop()
	for rendered < frames {
		due := frames
		d, ok := clock.Next()
		if ok {
			elapsed += d.Seconds()
			due = min(frames, int(math.Round(elapsed*sr)))
		}
		if due > rendered {
			out = append(out, m.Render(due-rendered)...)
			rendered = due
		}
		if !ok || rendered >= frames {
			break
		}
		clock.Fire()
	}
	return out
}

// RenderPattern renders the engine's current grid, tempo, master gain and
// EQ.
func (e *Engine) RenderPattern(bars int) []float32 {
	rows := e.seq.Rows()
	sources := make([]sequencer.Source, len(rows))
	for i, r := range rows {
		sources[i] = sequencer.Source{Name: r.Name, Buffer: r.Buffer}
	}
	out := RenderPattern(sources, e.seq.Snapshot(), e.sampleRate, e.seq.BPM(), e.seq.Swing(), bars)
	if g := float32(e.MasterGain()); g != 1 {
		for i := range out {
			out[i] *= g
		}
	}
	bus := effects.NewBus(e.sampleRate)
	bus.CopyGains(e.bus)
	bus.Process(out)
	return out
}

// EncodeWAV writes interleaved stereo samples as 16-bit PCM.
func EncodeWAV(w io.WriteSeeker, samples []float32, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, 16, 2, 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 2,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		buf.Data[i] = int(math.Round(float64(max(-1, min(1, s))) * 32767))
	}
	if err := enc.Write(buf); err != nil {
		return errors.Wrap(err, "write wav")
	}
	return errors.Wrap(enc.Close(), "finish wav")
}
