// Package sequencer is a 16-step drum machine: one row per sound, per-row
// mute, solo and volume, swing, and a timer loop that re-arms itself every
// step while running.
package sequencer

import (
	"sync"
	"time"

	"github.com/cbegin/samplerbox/internal/gain"
	"github.com/cbegin/samplerbox/internal/pcm"
	"github.com/cbegin/samplerbox/internal/playback"
	"github.com/cbegin/samplerbox/internal/segment"
	"github.com/cbegin/samplerbox/internal/voice"
)

const (
	NumSteps = 16
	// MaxRows bounds the working set of sounds loaded into the grid.
	MaxRows = 10
	// Lead is added to the clock when a step fires.
	Lead = 0.02

	DefaultBPM    = 120
	DefaultVolume = 0.8
)

// Clock arms the step timer. The default uses time.AfterFunc.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Source is a sound offered to the grid.
type Source struct {
	Name   string
	Buffer *pcm.Buffer
}

// Row is a snapshot of one grid row.
type Row struct {
	Name   string
	Buffer *pcm.Buffer
	Volume float64
	Muted  bool
	Soloed bool
	Steps  [NumSteps]bool
}

type row struct {
	name   string
	buffer *pcm.Buffer
	gain   *gain.Control // one per row for its whole life
	muted  bool
	soloed bool
	steps  [NumSteps]bool
}

// StepSeconds is the wait after step before the next one fires. The base is
// a 16th note; odd steps are pushed later by swing*0.5 of it and even steps
// pulled earlier by swing*0.25 of it.
func StepSeconds(step int, bpm, swing float64) float64 {
	base := playback.BeatSeconds(bpm) / 4
	swing = ClampSwing(swing)
	if step%2 == 1 {
		return base * (1 + swing*0.5)
	}
	return base * (1 - swing*0.25)
}

func ClampSwing(s float64) float64 {
	if !(s >= 0) {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// fires applies the mute/solo gate: mute always silences, and while any row
// is soloed only soloed rows play.
func fires(on, muted, soloed, anySolo bool) bool {
	return on && !muted && (!anySolo || soloed)
}

type Option func(*Sequencer)

func WithClock(c Clock) Option {
	return func(q *Sequencer) { q.clock = c }
}

func WithBPM(bpm float64) Option {
	return func(q *Sequencer) { q.bpm = playback.ClampBPM(bpm) }
}

func WithSwing(s float64) Option {
	return func(q *Sequencer) { q.swing = ClampSwing(s) }
}

// Sequencer is Stopped until Start and Running until Stop.
type Sequencer struct {
	mu      sync.Mutex
	sched   playback.Scheduler
	clock   Clock
	rows    []*row
	bpm     float64
	swing   float64
	running bool
	step    int
	gen     uint64
	timer   Timer

	listenMu sync.Mutex
	onStep   map[int]func(int)
	nextID   int
}

func New(sched playback.Scheduler, opts ...Option) *Sequencer {
	q := &Sequencer{
		sched:  sched,
		clock:  systemClock{},
		bpm:    DefaultBPM,
		step:   -1,
		onStep: make(map[int]func(int)),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// SetSources rebuilds the grid from the first MaxRows sources with empty
// steps and default volume.
func (q *Sequencer) SetSources(sources []Source) {
	if len(sources) > MaxRows {
		sources = sources[:MaxRows]
	}
	rows := make([]*row, len(sources))
	for i, s := range sources {
		rows[i] = &row{name: s.Name, buffer: s.Buffer, gain: gain.New(DefaultVolume)}
	}
	q.mu.Lock()
	q.rows = rows
	q.mu.Unlock()
}

func (q *Sequencer) Rows() []Row {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Row, len(q.rows))
	for i, r := range q.rows {
		out[i] = Row{
			Name:   r.name,
			Buffer: r.buffer,
			Volume: r.gain.Value(),
			Muted:  r.muted,
			Soloed: r.soloed,
			Steps:  r.steps,
		}
	}
	return out
}

func (q *Sequencer) NumRows() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.rows)
}

// withRow runs fn under the lock when i names a row.
func (q *Sequencer) withRow(i int, fn func(r *row)) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i < 0 || i >= len(q.rows) {
		return false
	}
	fn(q.rows[i])
	return true
}

func validStep(step int) bool { return step >= 0 && step < NumSteps }

// Toggle flips one cell and returns its new state.
func (q *Sequencer) Toggle(rowIdx, step int) bool {
	var on bool
	if validStep(step) {
		q.withRow(rowIdx, func(r *row) {
			r.steps[step] = !r.steps[step]
			on = r.steps[step]
		})
	}
	return on
}

func (q *Sequencer) SetStep(rowIdx, step int, on bool) {
	if validStep(step) {
		q.withRow(rowIdx, func(r *row) { r.steps[step] = on })
	}
}

// ToggleColumn flips the given step on every row.
func (q *Sequencer) ToggleColumn(step int) {
	if !validStep(step) {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, r := range q.rows {
		r.steps[step] = !r.steps[step]
	}
}

// Clear empties every row's steps; mute, solo and volume are kept.
func (q *Sequencer) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, r := range q.rows {
		r.steps = [NumSteps]bool{}
	}
}

func (q *Sequencer) SetMute(rowIdx int, muted bool) {
	q.withRow(rowIdx, func(r *row) { r.muted = muted })
}

func (q *Sequencer) SetSolo(rowIdx int, soloed bool) {
	q.withRow(rowIdx, func(r *row) { r.soloed = soloed })
}

// SetVolume changes the row's gain; voices already scheduled on the row
// follow the change.
func (q *Sequencer) SetVolume(rowIdx int, v float64) {
	q.withRow(rowIdx, func(r *row) { r.gain.Set(v) })
}

// Gain exposes the row's gain control, or nil for an unknown row.
func (q *Sequencer) Gain(rowIdx int) *gain.Control {
	var g *gain.Control
	q.withRow(rowIdx, func(r *row) { g = r.gain })
	return g
}

func (q *Sequencer) SetBPM(bpm float64) {
	q.mu.Lock()
	q.bpm = playback.ClampBPM(bpm)
	q.mu.Unlock()
}

func (q *Sequencer) BPM() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.bpm
}

func (q *Sequencer) SetSwing(s float64) {
	q.mu.Lock()
	q.swing = ClampSwing(s)
	q.mu.Unlock()
}

func (q *Sequencer) Swing() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.swing
}

func (q *Sequencer) Running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// CurrentStep returns the last fired step, or -1 when stopped.
func (q *Sequencer) CurrentStep() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.step
}

// OnStep registers fn to be called after each step fires. Listeners run on
// the timer goroutine.
func (q *Sequencer) OnStep(fn func(step int)) func() {
	q.listenMu.Lock()
	id := q.nextID
	q.nextID++
	q.onStep[id] = fn
	q.listenMu.Unlock()
	return func() {
		q.listenMu.Lock()
		delete(q.onStep, id)
		q.listenMu.Unlock()
	}
}

// Start fires step 0 immediately and keeps running until Stop. Calling Start
// while running does nothing.
func (q *Sequencer) Start() {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.step = -1
	q.gen++
	gen := q.gen
	q.mu.Unlock()
	q.tick(gen)
}

// Stop cancels the pending step and resets the step pointer.
func (q *Sequencer) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.running = false
	q.gen++
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.step = -1
}

type trigger struct {
	name string
	buf  *pcm.Buffer
	gain *gain.Control
}

func (q *Sequencer) tick(gen uint64) {
	q.mu.Lock()
	if !q.running || gen != q.gen {
		q.mu.Unlock()
		return
	}
	q.step = (q.step + 1) % NumSteps
	step := q.step
	at := q.sched.Now() + Lead

	anySolo := false
	for _, r := range q.rows {
		anySolo = anySolo || r.soloed
	}
	var triggers []trigger
	for _, r := range q.rows {
		if r.buffer != nil && fires(r.steps[step], r.muted, r.soloed, anySolo) {
			triggers = append(triggers, trigger{name: r.name, buf: r.buffer, gain: r.gain})
		}
	}

	delay := time.Duration(StepSeconds(step, q.bpm, q.swing) * float64(time.Second))
	q.timer = q.clock.AfterFunc(delay, func() { q.tick(gen) })
	q.mu.Unlock()

	for _, t := range triggers {
		q.sched.Play(t.buf, segment.Full(t.buf.Duration()), at, voice.WithGain(t.gain), voice.WithLabel(t.name))
	}
	q.notify(step)
}

func (q *Sequencer) notify(step int) {
	q.listenMu.Lock()
	fns := make([]func(int), 0, len(q.onStep))
	for _, fn := range q.onStep {
		fns = append(fns, fn)
	}
	q.listenMu.Unlock()
	for _, fn := range fns {
		fn(step)
	}
}
