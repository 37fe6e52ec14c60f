package sequencer

import (
	"io"
	"math"

	"github.com/pkg/errors"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const (
	ticksPerQuarter = 96
	ticksPerStep    = ticksPerQuarter / 4
	drumChannel     = 9
)

// drumNotes maps rows to General MIDI percussion keys.
var drumNotes = [MaxRows]uint8{36, 38, 42, 46, 41, 43, 45, 49, 51, 39}

func velocity(vol float64) uint8 {
	v := math.Round(vol * 127)
	if v < 1 {
		return 1
	}
	if v > 127 {
		return 127
	}
	return uint8(v)
}

// WriteSMF writes one bar of p as a single-track Standard MIDI File on the
// GM drum channel. Muted rows and rows silenced by solo are left out.
func (p Pattern) WriteSMF(w io.Writer, bpm float64) error {
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(ticksPerQuarter)

	var tr smf.Track
	tr.Add(0, smf.MetaTrackSequenceName("samplerbox pattern"))
	tr.Add(0, smf.MetaTempo(bpm))

	var cursor uint32
	for step := 0; step < NumSteps; step++ {
		on := p.Triggered(step)
		if len(on) == 0 {
			continue
		}
		tick := uint32(step * ticksPerStep)
		for i, row := range on {
			delta := uint32(0)
			if i == 0 {
				delta = tick - cursor
			}
			tr.Add(delta, midi.NoteOn(drumChannel, drumNotes[row%MaxRows], velocity(p[row].Volume)))
		}
		for i, row := range on {
			delta := uint32(0)
			if i == 0 {
				delta = ticksPerStep / 2
			}
			tr.Add(delta, midi.NoteOff(drumChannel, drumNotes[row%MaxRows]))
		}
		cursor = tick + ticksPerStep/2
	}
	tr.Close(uint32(NumSteps*ticksPerStep) - cursor)

	if err := s.Add(tr); err != nil {
		return errors.Wrap(err, "add track")
	}
	if _, err := s.WriteTo(w); err != nil {
		return errors.Wrap(err, "write smf")
	}
	return nil
}
