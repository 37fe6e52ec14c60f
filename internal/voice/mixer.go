// Package voice schedules one-shot playback of buffer segments against a
// sample clock and mixes the sounding voices into a stereo stream.
package voice

import (
	"math"
	"slices"
	"sync"

	"github.com/cbegin/samplerbox/internal/gain"
	"github.com/cbegin/samplerbox/internal/pcm"
	"github.com/cbegin/samplerbox/internal/segment"
)

// Handle identifies a scheduled voice. The zero Handle means nothing was
// scheduled.
type Handle uint64

type EventKind int

const (
	EventStarted EventKind = iota
	EventCompleted
	EventStopped
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventCompleted:
		return "completed"
	case EventStopped:
		return "stopped"
	}
	return "unknown"
}

// Event describes a voice lifecycle change. Start is the scheduled clock time,
// Offset the segment start inside the buffer, Duration the scheduled length.
type Event struct {
	Kind     EventKind
	Handle   Handle
	Label    string
	Start    float64
	Offset   float64
	Duration float64
}

type Option func(*voice)

// WithGain routes the voice through a shared gain control. Changes to the
// control apply to the voice while it sounds.
func WithGain(g *gain.Control) Option {
	return func(v *voice) { v.gain = g }
}

func WithLabel(label string) Option {
	return func(v *voice) { v.label = label }
}

type voice struct {
	handle Handle
	buf    *pcm.Buffer
	gain   *gain.Control
	label  string

	startFrame int64   // mixer frame where output begins
	remaining  int64   // output frames left to render
	pos        float64 // read position in source frames
	step       float64 // source frames per output frame
	started    bool

	at, offset, duration float64
}

func (v *voice) event(kind EventKind) Event {
	return Event{Kind: kind, Handle: v.handle, Label: v.label, Start: v.at, Offset: v.offset, Duration: v.duration}
}

func (v *voice) done() bool {
	return v.remaining <= 0 || int(v.pos) >= v.buf.Frames()
}

func (v *voice) frame() (float32, float32) {
	i := int(v.pos)
	frac := float32(v.pos - float64(i))
	l, r := v.buf.Stereo(i)
	if frac == 0 || i+1 >= v.buf.Frames() {
		return l, r
	}
	nl, nr := v.buf.Stereo(i + 1)
	return l + (nl-l)*frac, r + (nr-r)*frac
}

// Mixer is the audio clock and the set of active voices. Process is called
// from the output goroutine; everything else may be called concurrently.
// Lifecycle events are delivered after the internal lock is released, on the
// goroutine that caused them.
type Mixer struct {
	mu         sync.Mutex
	sampleRate int
	frame      int64
	voices     map[Handle]*voice
	nextID     Handle
	master     *gain.Control

	subsMu  sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

func NewMixer(sampleRate int) *Mixer {
	return &Mixer{
		sampleRate: sampleRate,
		voices:     make(map[Handle]*voice),
		master:     gain.New(1),
		subs:       make(map[int]func(Event)),
	}
}

func (m *Mixer) SampleRate() int { return m.sampleRate }

// Master is the output gain applied after every voice.
func (m *Mixer) Master() *gain.Control { return m.master }

// Now returns the clock time in seconds: frames rendered so far.
func (m *Mixer) Now() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(m.frame) / float64(m.sampleRate)
}

// Play schedules seg of buf to begin at clock time at. Times already in the
// past start on the next rendered frame. The scheduled length is
// max(segment.MinDuration, seg.End-seg.Start), rounded to whole output frames
// and never less than one; playback also stops at the end of the buffer.
// A nil or empty buffer schedules nothing and returns 0.
func (m *Mixer) Play(buf *pcm.Buffer, seg segment.Segment, at float64, opts ...Option) Handle {
	if buf.Frames() == 0 || buf.SampleRate <= 0 {
		return 0
	}
	dur := math.Max(segment.MinDuration, seg.End-seg.Start)
	offset := math.Min(math.Max(seg.Start, 0), buf.Duration())
	rate := float64(buf.SampleRate)

	v := &voice{
		buf:       buf,
		remaining: max(1, int64(math.Round(dur*float64(m.sampleRate)))),
		pos:       offset * rate,
		step:      rate / float64(m.sampleRate),
		at:        at,
		offset:    offset,
		duration:  dur,
	}
	for _, opt := range opts {
		opt(v)
	}

	m.mu.Lock()
	m.nextID++
	v.handle = m.nextID
	v.startFrame = max(int64(math.Round(at*float64(m.sampleRate))), m.frame)
	m.voices[v.handle] = v
	m.mu.Unlock()
	return v.handle
}

// Stop removes one voice. Unknown or finished handles are ignored.
func (m *Mixer) Stop(h Handle) bool {
	m.mu.Lock()
	v, ok := m.voices[h]
	if ok {
		delete(m.voices, h)
	}
	m.mu.Unlock()
	if ok {
		m.emit([]Event{v.event(EventStopped)})
	}
	return ok
}

// StopAll silences every active voice and empties the set. Voices stopped
// here never report EventCompleted.
func (m *Mixer) StopAll() {
	m.mu.Lock()
	events := make([]Event, 0, len(m.voices))
	for _, v := range m.voices {
		events = append(events, v.event(EventStopped))
	}
	clear(m.voices)
	m.mu.Unlock()
	sortEvents(events)
	m.emit(events)
}

// Active returns the handles of scheduled and sounding voices.
func (m *Mixer) Active() []Handle {
	m.mu.Lock()
	out := make([]Handle, 0, len(m.voices))
	for h := range m.voices {
		out = append(out, h)
	}
	m.mu.Unlock()
	slices.Sort(out)
	return out
}

func (m *Mixer) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// Process renders len(dst)/2 interleaved stereo frames and advances the clock.
func (m *Mixer) Process(dst []float32) {
	frames := len(dst) / 2
	clear(dst)
	var events []Event

	m.mu.Lock()
	master := m.master.Value()
	for h, v := range m.voices {
		i := 0
		if v.startFrame > m.frame {
			if v.startFrame-m.frame >= int64(frames) {
				continue
			}
			i = int(v.startFrame - m.frame)
		}
		if !v.started {
			v.started = true
			events = append(events, v.event(EventStarted))
		}
		g := float32(v.gain.Value() * master)
		for ; i < frames && !v.done(); i++ {
			l, r := v.frame()
			dst[2*i] += l * g
			dst[2*i+1] += r * g
			v.pos += v.step
			v.remaining--
		}
		if v.done() {
			delete(m.voices, h)
			events = append(events, v.event(EventCompleted))
		}
	}
	m.frame += int64(frames)
	m.mu.Unlock()

	for i, s := range dst {
		if s > 1 {
			dst[i] = 1
		} else if s < -1 {
			dst[i] = -1
		}
	}
	sortEvents(events)
	m.emit(events)
}

// Render is Process into a fresh buffer of the given frame count.
func (m *Mixer) Render(frames int) []float32 {
	dst := make([]float32, frames*2)
	m.Process(dst)
	return dst
}

// Subscribe registers fn for every lifecycle event. Observers do not replace
// each other; call the returned func to unsubscribe.
func (m *Mixer) Subscribe(fn func(Event)) func() {
	m.subsMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subsMu.Unlock()
	return func() {
		m.subsMu.Lock()
		delete(m.subs, id)
		m.subsMu.Unlock()
	}
}

func (m *Mixer) emit(events []Event) {
	if len(events) == 0 {
		return
	}
	m.subsMu.Lock()
	ids := make([]int, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.subs[id])
	}
	m.subsMu.Unlock()
	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
}

func sortEvents(events []Event) {
	slices.SortFunc(events, func(a, b Event) int {
		if a.Handle != b.Handle {
			if a.Handle < b.Handle {
				return -1
			}
			return 1
		}
		return int(a.Kind) - int(b.Kind)
	})
}
