package sequencer

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/cbegin/samplerbox/internal/pcm"
	"github.com/cbegin/samplerbox/internal/segment"
	"github.com/cbegin/samplerbox/internal/voice"
)

type play struct {
	buf *pcm.Buffer
	at  float64
}

type countingScheduler struct {
	now   float64
	plays []play
}

func (s *countingScheduler) Now() float64 { return s.now }

func (s *countingScheduler) Play(buf *pcm.Buffer, seg segment.Segment, at float64, opts ...voice.Option) voice.Handle {
	s.plays = append(s.plays, play{buf, at})
	return voice.Handle(len(s.plays))
}

func (s *countingScheduler) count(buf *pcm.Buffer) int {
	n := 0
	for _, p := range s.plays {
		if p.buf == buf {
			n++
		}
	}
	return n
}

func buffers(n int) []*pcm.Buffer {
	out := make([]*pcm.Buffer, n)
	for i := range out {
		out[i] = pcm.New(1000, make([]float32, 50))
	}
	return out
}

func newTestSequencer(n int, opts ...Option) (*Sequencer, *countingScheduler, *ManualClock, []*pcm.Buffer) {
	sched := &countingScheduler{}
	clock := &ManualClock{}
	q := New(sched, append([]Option{WithClock(clock)}, opts...)...)
	bufs := buffers(n)
	sources := make([]Source, n)
	for i, b := range bufs {
		sources[i] = Source{Name: string(rune('a' + i)), Buffer: b}
	}
	q.SetSources(sources)
	return q, sched, clock, bufs
}

func runSteps(c *ManualClock, n int) {
	for i := 0; i < n; i++ {
		c.Fire()
	}
}

func TestStartFiresStepZeroImmediately(t *testing.T) {
	q, sched, _, bufs := newTestSequencer(2)
	q.SetStep(0, 0, true)
	sched.now = 2
	q.Start()
	if q.CurrentStep() != 0 || !q.Running() {
		t.Fatalf("step = %d running = %v", q.CurrentStep(), q.Running())
	}
	if sched.count(bufs[0]) != 1 || sched.plays[0].at != 2+Lead {
		t.Fatalf("plays = %+v", sched.plays)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	q, sched, clock, _ := newTestSequencer(1)
	q.SetStep(0, 0, true)
	q.Start()
	q.Start()
	if len(sched.plays) != 1 || len(clock.Delays()) != 1 {
		t.Fatalf("second Start re-triggered: plays=%d timers=%d", len(sched.plays), len(clock.Delays()))
	}
}

func TestStraightTimingAt120(t *testing.T) {
	q, _, clock, _ := newTestSequencer(1, WithBPM(120))
	q.Start()
	runSteps(clock, 31)
	for i, d := range clock.Delays() {
		if d != 125*time.Millisecond {
			t.Fatalf("delay %d = %v, want 125ms", i, d)
		}
	}
	if q.CurrentStep() != 31%NumSteps {
		t.Fatalf("step = %d", q.CurrentStep())
	}
}

func TestSwingTiming(t *testing.T) {
	q, _, clock, _ := newTestSequencer(1, WithBPM(120), WithSwing(1))
	q.Start()
	runSteps(clock, 3)
	want := []time.Duration{93750 * time.Microsecond, 187500 * time.Microsecond, 93750 * time.Microsecond, 187500 * time.Microsecond}
	got := clock.Delays()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delay %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestStepSecondsClamps(t *testing.T) {
	if got := StepSeconds(0, 1000, 0); got != 60.0/240/4 {
		t.Fatalf("bpm not clamped: %v", got)
	}
	if got := StepSeconds(1, 120, 5); math.Abs(got-0.1875) > 1e-12 {
		t.Fatalf("swing not clamped: %v", got)
	}
	if got := StepSeconds(2, 120, -1); got != 0.125 {
		t.Fatalf("negative swing not clamped: %v", got)
	}
}

func TestSoloSilencesOtherRows(t *testing.T) {
	q, sched, clock, bufs := newTestSequencer(3)
	for r := 0; r < 3; r++ {
		for s := 0; s < NumSteps; s++ {
			q.SetStep(r, s, true)
		}
	}
	q.SetSolo(1, true)
	q.Start()
	runSteps(clock, NumSteps-1)
	if sched.count(bufs[1]) != NumSteps {
		t.Fatalf("soloed row played %d times, want %d", sched.count(bufs[1]), NumSteps)
	}
	if sched.count(bufs[0]) != 0 || sched.count(bufs[2]) != 0 {
		t.Fatalf("non-soloed rows played")
	}

	q.SetSolo(1, false)
	runSteps(clock, 1)
	if sched.count(bufs[0]) != 1 || sched.count(bufs[2]) != 1 {
		t.Fatalf("rows did not resume after solo cleared")
	}
}

func TestMuteBeatsSolo(t *testing.T) {
	q, sched, _, _ := newTestSequencer(2)
	q.SetStep(0, 0, true)
	q.SetStep(1, 0, true)
	q.SetSolo(0, true)
	q.SetMute(0, true)
	q.Start()
	if len(sched.plays) != 0 {
		t.Fatalf("muted soloed row or non-soloed row played: %d plays", len(sched.plays))
	}
}

func TestRowWithoutBufferIsSkipped(t *testing.T) {
	sched := &countingScheduler{}
	clock := &ManualClock{}
	q := New(sched, WithClock(clock))
	b := buffers(1)[0]
	q.SetSources([]Source{{Name: "broken"}, {Name: "ok", Buffer: b}})
	q.SetStep(0, 0, true)
	q.SetStep(1, 0, true)
	q.Start()
	if len(sched.plays) != 1 || sched.plays[0].buf != b {
		t.Fatalf("plays = %+v", sched.plays)
	}
}

func TestStopCancelsPendingStep(t *testing.T) {
	q, sched, clock, _ := newTestSequencer(1)
	q.SetStep(0, 1, true)
	q.Start()
	q.Stop()
	if clock.Fire() {
		t.Fatalf("timer still pending after Stop")
	}
	if len(sched.plays) != 0 || q.CurrentStep() != -1 || q.Running() {
		t.Fatalf("stop left state: plays=%d step=%d running=%v", len(sched.plays), q.CurrentStep(), q.Running())
	}
	q.Start()
	if q.CurrentStep() != 0 {
		t.Fatalf("restart should begin at step 0, got %d", q.CurrentStep())
	}
}

func TestStaleTimerAfterRestartIsIgnored(t *testing.T) {
	sched := &countingScheduler{}
	stale := &ManualClock{}
	q := New(sched, WithClock(stale))
	q.SetSources([]Source{{Name: "a", Buffer: buffers(1)[0]}})
	q.Start()
	// Simulate a timer that already fired its callback concurrently with Stop.
	stale.mu.Lock()
	cb := stale.pending[0].f
	stale.mu.Unlock()
	q.Stop()
	q.Start()
	cb()
	if q.CurrentStep() != 0 {
		t.Fatalf("stale callback advanced the new run to %d", q.CurrentStep())
	}
}

func TestToggleAndColumn(t *testing.T) {
	q, _, _, _ := newTestSequencer(3)
	if !q.Toggle(1, 4) || q.Toggle(1, 4) {
		t.Fatalf("toggle did not flip")
	}
	q.Toggle(9, 0)
	q.Toggle(0, NumSteps)
	q.ToggleColumn(7)
	for i, r := range q.Rows() {
		if !r.Steps[7] {
			t.Fatalf("row %d step 7 not set by column toggle", i)
		}
	}
	q.ToggleColumn(7)
	for i, r := range q.Rows() {
		if r.Steps[7] {
			t.Fatalf("row %d step 7 not cleared by second column toggle", i)
		}
	}
}

func TestClearKeepsMixSettings(t *testing.T) {
	q, _, _, _ := newTestSequencer(2)
	q.SetStep(0, 3, true)
	q.SetMute(0, true)
	q.SetSolo(1, true)
	q.SetVolume(1, 0.3)
	q.Clear()
	rows := q.Rows()
	if rows[0].Steps != ([NumSteps]bool{}) {
		t.Fatalf("steps not cleared")
	}
	if !rows[0].Muted || !rows[1].Soloed || rows[1].Volume != 0.3 {
		t.Fatalf("mix settings changed by Clear: %+v", rows)
	}
}

func TestSourcesBoundedToMaxRows(t *testing.T) {
	q, _, _, _ := newTestSequencer(MaxRows + 4)
	if q.NumRows() != MaxRows {
		t.Fatalf("rows = %d, want %d", q.NumRows(), MaxRows)
	}
	if q.Rows()[0].Volume != DefaultVolume {
		t.Fatalf("default volume = %v", q.Rows()[0].Volume)
	}
}

func TestSnapshotLoadMatchesByPosition(t *testing.T) {
	src, _, _, _ := newTestSequencer(3)
	src.SetStep(0, 0, true)
	src.SetStep(2, 15, true)
	src.SetMute(1, true)
	src.SetVolume(2, 0.25)
	saved := src.Snapshot()

	data, err := saved.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	restored, err := UnmarshalPattern(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	shorter, _, _, _ := newTestSequencer(2)
	shorter.Load(restored)
	rows := shorter.Rows()
	if !rows[0].Steps[0] || !rows[1].Muted {
		t.Fatalf("rows not restored: %+v", rows)
	}

	longer, _, _, _ := newTestSequencer(5)
	longer.SetStep(4, 2, true)
	longer.Load(restored)
	rows = longer.Rows()
	if !rows[2].Steps[15] || rows[2].Volume != 0.25 {
		t.Fatalf("row 2 not restored: %+v", rows[2])
	}
	if !rows[4].Steps[2] || rows[4].Volume != DefaultVolume {
		t.Fatalf("row beyond pattern length was touched: %+v", rows[4])
	}
}

func TestLoadWithoutStepsKeepsGrid(t *testing.T) {
	q, _, _, _ := newTestSequencer(1)
	q.SetStep(0, 5, true)
	q.Load(Pattern{{Volume: 0.5, Mute: true}})
	r := q.Rows()[0]
	if !r.Steps[5] || !r.Muted || r.Volume != 0.5 {
		t.Fatalf("row = %+v", r)
	}
}

func TestVolumeChangeReachesScheduledVoice(t *testing.T) {
	m := voice.NewMixer(1000)
	clock := &ManualClock{}
	q := New(m, WithClock(clock))
	data := make([]float32, 200)
	for i := range data {
		data[i] = 1
	}
	q.SetSources([]Source{{Name: "tone", Buffer: pcm.New(1000, data)}})
	q.SetStep(0, 0, true)
	q.SetVolume(0, 1)
	q.Start()

	out := m.Render(30)
	if out[2*25] != 1 {
		t.Fatalf("frame 25 = %v, want 1 at full volume", out[2*25])
	}
	q.SetVolume(0, 0.5)
	out = m.Render(10)
	if out[0] != 0.5 {
		t.Fatalf("frame after volume change = %v, want 0.5", out[0])
	}
}

func TestOnStepListeners(t *testing.T) {
	q, _, clock, _ := newTestSequencer(1)
	var a, b []int
	q.OnStep(func(s int) { a = append(a, s) })
	unsub := q.OnStep(func(s int) { b = append(b, s) })
	q.Start()
	runSteps(clock, 2)
	unsub()
	runSteps(clock, 1)
	if len(a) != 4 || a[3] != 3 {
		t.Fatalf("listener a = %v", a)
	}
	if len(b) != 3 {
		t.Fatalf("listener b = %v, want 3 before unsubscribe", b)
	}
}

func TestPatternTriggered(t *testing.T) {
	p := Pattern{
		{Steps: []bool{true, true}},
		{Steps: []bool{true}, Mute: true},
		{Steps: []bool{false, true}, Solo: true},
	}
	if got := p.Triggered(0); len(got) != 0 {
		t.Fatalf("step 0 = %v, want none (solo on row 2, which is off)", got)
	}
	if got := p.Triggered(1); len(got) != 1 || got[0] != 2 {
		t.Fatalf("step 1 = %v, want [2]", got)
	}
	if got := p.Triggered(20); len(got) != 0 {
		t.Fatalf("out of range step = %v", got)
	}
}

func TestWriteSMF(t *testing.T) {
	empty := Pattern{{Volume: 1, Steps: make([]bool, NumSteps)}}
	busy := Pattern{{Volume: 1, Steps: make([]bool, NumSteps)}, {Volume: 0.5, Steps: make([]bool, NumSteps)}}
	for i := range busy[0].Steps {
		busy[0].Steps[i] = true
		busy[1].Steps[i] = i%4 == 0
	}

	var a, b bytes.Buffer
	if err := empty.WriteSMF(&a, 120); err != nil {
		t.Fatalf("write empty: %v", err)
	}
	if err := busy.WriteSMF(&b, 120); err != nil {
		t.Fatalf("write busy: %v", err)
	}
	for _, out := range [][]byte{a.Bytes(), b.Bytes()} {
		if !bytes.HasPrefix(out, []byte("MThd")) || !bytes.Contains(out, []byte("MTrk")) {
			t.Fatalf("not a standard midi file: % x", out[:min(len(out), 16)])
		}
	}
	if b.Len() <= a.Len() {
		t.Fatalf("pattern notes missing from file: busy=%d empty=%d", b.Len(), a.Len())
	}
}

func TestVelocityRange(t *testing.T) {
	if velocity(0) != 1 || velocity(1) != 127 || velocity(2) != 127 || velocity(0.5) != 64 {
		t.Fatalf("velocity mapping off: %d %d %d", velocity(0), velocity(1), velocity(0.5))
	}
}
