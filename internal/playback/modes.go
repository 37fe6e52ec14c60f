// Package playback fans play requests out to the voice scheduler: one sound,
// every sound at once, or every sound on successive beats.
package playback

import (
	"github.com/cbegin/samplerbox/internal/pcm"
	"github.com/cbegin/samplerbox/internal/segment"
	"github.com/cbegin/samplerbox/internal/voice"
)

const (
	// SingleLead is added to the clock for a single trigger.
	SingleLead = 0.02
	// GroupLead is added to the clock for together and sequential triggers,
	// which schedule several voices in one call.
	GroupLead = 0.05

	MinBPM = 40
	MaxBPM = 240
)

// Scheduler is the part of voice.Mixer the modes need.
type Scheduler interface {
	Now() float64
	Play(buf *pcm.Buffer, seg segment.Segment, at float64, opts ...voice.Option) voice.Handle
}

// Cue is one sound ready to play: its buffer (nil when decoding failed) and
// its current trim window.
type Cue struct {
	Label   string
	Buffer  *pcm.Buffer
	Segment segment.Segment
	Options []voice.Option
}

func (c Cue) play(s Scheduler, at float64) voice.Handle {
	if c.Buffer == nil {
		return 0
	}
	opts := append([]voice.Option{voice.WithLabel(c.Label)}, c.Options...)
	return s.Play(c.Buffer, c.Segment, at, opts...)
}

// Single schedules c at now + SingleLead. It returns 0 when c has no buffer.
func Single(s Scheduler, c Cue) voice.Handle {
	return c.play(s, s.Now()+SingleLead)
}

// Together schedules every cue at the same start time. Cues without a buffer
// are skipped.
func Together(s Scheduler, cues []Cue) []voice.Handle {
	at := s.Now() + GroupLead
	var out []voice.Handle
	for _, c := range cues {
		if h := c.play(s, at); h != 0 {
			out = append(out, h)
		}
	}
	return out
}

// Sequential schedules cue i at now + GroupLead + i*60/bpm. A cue without a
// buffer keeps its slot, so later cues are not pulled earlier.
func Sequential(s Scheduler, cues []Cue, bpm float64) []voice.Handle {
	beat := BeatSeconds(bpm)
	at := s.Now() + GroupLead
	var out []voice.Handle
	for _, c := range cues {
		if h := c.play(s, at); h != 0 {
			out = append(out, h)
		}
		at += beat
	}
	return out
}

// ClampBPM limits bpm to [MinBPM, MaxBPM].
func ClampBPM(bpm float64) float64 {
	if !(bpm >= MinBPM) {
		return MinBPM
	}
	if bpm > MaxBPM {
		return MaxBPM
	}
	return bpm
}

// BeatSeconds is the length of one quarter note at bpm, after clamping.
func BeatSeconds(bpm float64) float64 {
	return 60 / ClampBPM(bpm)
}
