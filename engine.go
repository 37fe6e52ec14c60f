// Package samplerbox plays short trimmed sounds from a preset: one at a
// time, all together, one per beat, or from a 16-step drum grid.
package samplerbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	intaudio "github.com/cbegin/samplerbox/internal/audio"
	"github.com/cbegin/samplerbox/internal/decode"
	"github.com/cbegin/samplerbox/internal/effects"
	"github.com/cbegin/samplerbox/internal/pcm"
	"github.com/cbegin/samplerbox/internal/peaks"
	"github.com/cbegin/samplerbox/internal/playback"
	"github.com/cbegin/samplerbox/internal/presets"
	"github.com/cbegin/samplerbox/internal/segment"
	"github.com/cbegin/samplerbox/internal/sequencer"
	"github.com/cbegin/samplerbox/internal/voice"
)

var (
	ErrNoDirectory = errors.New("no preset directory configured")
	ErrNoPreset    = errors.New("preset has no sounds")
	ErrSoundIndex  = errors.New("sound index out of range")
	ErrNoBuffer    = errors.New("sound has no decoded audio")
	ErrNoPattern   = errors.New("no saved pattern")
	ErrNoStore     = errors.New("no pattern store configured")
	ErrEQBand      = errors.New("EQ band out of range")
)

// Sound is one entry of the loaded preset. Buffer is nil when decoding
// failed; such sounds stay listed but never play.
type Sound struct {
	ID     string
	Name   string
	URL    string
	Buffer *pcm.Buffer
	Err    error
}

func (s Sound) Duration() float64 { return s.Buffer.Duration() }

// Decoder turns a sound URL into audio.
type Decoder interface {
	Decode(ctx context.Context, ref string) (*pcm.Buffer, error)
}

// PatternStore keeps named drum patterns.
type PatternStore interface {
	SavePattern(name string, p sequencer.Pattern) error
	LoadPattern(name string) (sequencer.Pattern, bool)
}

type EngineOption func(*engineConfig)

type engineConfig struct {
	masterGain  float64
	dir         presets.Directory
	decoder     Decoder
	persister   segment.Persister
	patterns    PatternStore
	logger      *slog.Logger
	output      bool
	clock       sequencer.Clock
	bpm, swing  float64
	decodeLimit int
	sampleTap   func([]float32)
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		masterGain:  0.9,
		logger:      slog.New(slog.DiscardHandler),
		output:      true,
		bpm:         sequencer.DefaultBPM,
		decodeLimit: 4,
	}
}

func WithMasterGain(g float64) EngineOption {
	return func(cfg *engineConfig) { cfg.masterGain = g }
}

// WithDirectory sets where LoadPreset and ListPresets look for presets.
func WithDirectory(d presets.Directory) EngineOption {
	return func(cfg *engineConfig) { cfg.dir = d }
}

func WithDecoder(d Decoder) EngineOption {
	return func(cfg *engineConfig) { cfg.decoder = d }
}

// WithPersister saves trims as they change and restores them on first use.
func WithPersister(p segment.Persister) EngineOption {
	return func(cfg *engineConfig) { cfg.persister = p }
}

func WithPatternStore(s PatternStore) EngineOption {
	return func(cfg *engineConfig) { cfg.patterns = s }
}

func WithLogger(l *slog.Logger) EngineOption {
	return func(cfg *engineConfig) { cfg.logger = l }
}

// WithOutput controls whether the engine opens the system audio output.
// Without it the clock only moves when Mixer().Render is called.
func WithOutput(enabled bool) EngineOption {
	return func(cfg *engineConfig) { cfg.output = enabled }
}

// WithClock replaces the wall clock that paces the drum sequencer.
func WithClock(c sequencer.Clock) EngineOption {
	return func(cfg *engineConfig) { cfg.clock = c }
}

func WithTempo(bpm, swing float64) EngineOption {
	return func(cfg *engineConfig) { cfg.bpm, cfg.swing = bpm, swing }
}

// WithSampleTap installs a callback invoked with each stereo buffer sent to
// the audio output. The callback runs on the audio thread; keep work brief
// and non-blocking.
func WithSampleTap(tap func([]float32)) EngineOption {
	return func(cfg *engineConfig) { cfg.sampleTap = tap }
}

// busSource is the output chain: mixer, master bus, then the optional tap.
type busSource struct {
	mixer *voice.Mixer
	bus   *effects.Bus
	tap   func([]float32)
}

func (s busSource) Process(dst []float32) {
	s.mixer.Process(dst)
	s.bus.Process(dst)
	if s.tap != nil {
		s.tap(dst)
	}
}

// WithDecodeLimit bounds how many sounds LoadPreset decodes at once.
func WithDecodeLimit(n int) EngineOption {
	return func(cfg *engineConfig) { cfg.decodeLimit = n }
}

type Engine struct {
	mu         sync.Mutex
	sampleRate int
	mixer      *voice.Mixer
	bus        *effects.Bus
	seq        *sequencer.Sequencer
	trims      *segment.Store
	dir        presets.Directory
	decoder    Decoder
	patterns   PatternStore
	logger     *slog.Logger
	limit      int
	out        *intaudio.Output
	category   string
	sounds     []Sound
	eventCh    chan voice.Event
	eventChMu  sync.Mutex
	unwatch    func()
}

func NewEngine(sampleRate int, opts ...EngineOption) (*Engine, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	e := &Engine{
		sampleRate: sampleRate,
		mixer:      voice.NewMixer(sampleRate),
		bus:        effects.NewBus(sampleRate),
		dir:        cfg.dir,
		decoder:    cfg.decoder,
		patterns:   cfg.patterns,
		logger:     cfg.logger,
		limit:      cfg.decodeLimit,
	}
	e.mixer.Master().Set(cfg.masterGain)

	storeOpts := []segment.StoreOption{segment.WithErrorHandler(func(k segment.Key, err error) {
		e.logger.Warn("save trim", "key", k.String(), "err", err)
	})}
	if cfg.persister != nil {
		storeOpts = append(storeOpts, segment.WithPersister(cfg.persister))
	}
	e.trims = segment.NewStore(storeOpts...)

	seqOpts := []sequencer.Option{sequencer.WithBPM(cfg.bpm), sequencer.WithSwing(cfg.swing)}
	if cfg.clock != nil {
		seqOpts = append(seqOpts, sequencer.WithClock(cfg.clock))
	}
	e.seq = sequencer.New(e.mixer, seqOpts...)

	if e.decoder == nil {
		decOpts := []decode.Option{decode.WithLogger(e.logger)}
		if c, ok := e.dir.(*presets.Client); ok {
			decOpts = append(decOpts, decode.WithBaseURL(c.BaseURL()))
		}
		e.decoder = decode.New(sampleRate, decOpts...)
	}

	if cfg.output {
		src := busSource{mixer: e.mixer, bus: e.bus, tap: cfg.sampleTap}
		out, err := intaudio.Open(sampleRate, src)
		if err != nil {
			return nil, err
		}
		e.out = out
	}
	return e, nil
}

func (e *Engine) SampleRate() int { return e.sampleRate }

// Mixer exposes the voice scheduler, mainly so callers without an audio
// output can render it.
func (e *Engine) Mixer() *voice.Mixer { return e.mixer }

func (e *Engine) Sequencer() *sequencer.Sequencer { return e.seq }

// Now is the audio clock in seconds.
func (e *Engine) Now() float64 { return e.mixer.Now() }

func (e *Engine) ListPresets(ctx context.Context) ([]presets.Preset, error) {
	if e.dir == nil {
		return nil, ErrNoDirectory
	}
	return e.dir.ListPresets(ctx)
}

// LoadPreset lists category and decodes its sounds concurrently. A sound
// that fails to decode is kept with a nil buffer. The previous sounds are
// replaced only once every decode has finished.
func (e *Engine) LoadPreset(ctx context.Context, category string) error {
	if e.dir == nil {
		return ErrNoDirectory
	}
	listing, err := e.dir.ListSounds(ctx, category)
	if err != nil {
		return err
	}
	if len(listing.Sounds) == 0 {
		return fmt.Errorf("%w: %s", ErrNoPreset, category)
	}

	sounds := make([]Sound, len(listing.Sounds))
	g, gctx := errgroup.WithContext(ctx)
	if e.limit > 0 {
		g.SetLimit(e.limit)
	}
	for i, s := range listing.Sounds {
		sounds[i] = Sound{ID: s.ID, Name: s.Name, URL: s.URL}
		g.Go(func() error {
			buf, err := e.decoder.Decode(gctx, e.resolve(s.URL))
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				e.logger.Warn("decode failed", "category", category, "sound", s.Name, "err", err)
				sounds[i].Err = err
				return nil
			}
			sounds[i].Buffer = buf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	e.logger.Info("preset loaded", "category", category, "sounds", len(sounds))
	e.SetSounds(category, sounds)
	return nil
}

// resolve maps a preset URL to a local file when the directory is on disk.
func (e *Engine) resolve(ref string) string {
	if d, ok := e.dir.(*presets.Dir); ok {
		if p, ok := d.Resolve(ref); ok {
			return p
		}
	}
	return ref
}

// SetSounds replaces the loaded sounds and rebuilds the drum grid from the
// first sequencer.MaxRows of them.
func (e *Engine) SetSounds(category string, sounds []Sound) {
	sounds = append([]Sound(nil), sounds...)
	e.mu.Lock()
	e.category = category
	e.sounds = sounds
	e.mu.Unlock()

	sources := make([]sequencer.Source, len(sounds))
	for i, s := range sounds {
		sources[i] = sequencer.Source{Name: s.Name, Buffer: s.Buffer}
	}
	e.seq.SetSources(sources)
}

func (e *Engine) Category() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.category
}

func (e *Engine) Sounds() []Sound {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Sound(nil), e.sounds...)
}

func (e *Engine) sound(i int) (Sound, segment.Key, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i < 0 || i >= len(e.sounds) {
		return Sound{}, segment.Key{}, ErrSoundIndex
	}
	s := e.sounds[i]
	return s, soundKey(e.category, s), nil
}

func soundKey(category string, s Sound) segment.Key {
	id := s.ID
	if id == "" {
		id = s.Name
	}
	return segment.Key{Category: category, Sound: id}
}

// Trim returns the window sound i plays, creating the full-length default
// on first use.
func (e *Engine) Trim(i int) (segment.Segment, error) {
	s, k, err := e.sound(i)
	if err != nil {
		return segment.Segment{}, err
	}
	if s.Buffer == nil {
		return segment.Segment{}, ErrNoBuffer
	}
	return e.trims.GetOrCreate(k, s.Duration()), nil
}

// SetTrim stores a new window for sound i. Out of range or reversed bounds
// are repaired; the stored window is returned.
func (e *Engine) SetTrim(i int, start, end float64) (segment.Segment, error) {
	s, k, err := e.sound(i)
	if err != nil {
		return segment.Segment{}, err
	}
	if s.Buffer == nil {
		return segment.Segment{}, ErrNoBuffer
	}
	return e.trims.Set(k, start, end, s.Duration()), nil
}

// SetTrimRatio is SetTrim with bounds given as fractions of the sound's
// length.
func (e *Engine) SetTrimRatio(i int, l, r float64) (segment.Segment, error) {
	s, k, err := e.sound(i)
	if err != nil {
		return segment.Segment{}, err
	}
	if s.Buffer == nil {
		return segment.Segment{}, ErrNoBuffer
	}
	return e.trims.SetRatio(k, l, r, s.Duration()), nil
}

// Peaks summarizes sound i into width min/max columns for drawing.
func (e *Engine) Peaks(i, width int) ([]peaks.Pair, error) {
	s, _, err := e.sound(i)
	if err != nil {
		return nil, err
	}
	if s.Buffer == nil {
		return nil, ErrNoBuffer
	}
	return peaks.Summarize(s.Buffer, width), nil
}

func (e *Engine) cues() []playback.Cue {
	e.mu.Lock()
	category := e.category
	sounds := append([]Sound(nil), e.sounds...)
	e.mu.Unlock()

	cues := make([]playback.Cue, len(sounds))
	for i, s := range sounds {
		cues[i] = playback.Cue{Label: s.Name, Buffer: s.Buffer}
		if s.Buffer != nil {
			cues[i].Segment = e.trims.GetOrCreate(soundKey(category, s), s.Duration())
		}
	}
	return cues
}

// PlaySingle plays the trimmed window of sound i. A sound without audio is
// silently skipped and returns the zero handle.
func (e *Engine) PlaySingle(i int) (voice.Handle, error) {
	cues := e.cues()
	if i < 0 || i >= len(cues) {
		return 0, ErrSoundIndex
	}
	return playback.Single(e.mixer, cues[i]), nil
}

// PlayTogether starts every sound at the same instant.
func (e *Engine) PlayTogether() []voice.Handle {
	return playback.Together(e.mixer, e.cues())
}

// PlaySequential plays the sounds in order, one per beat at bpm.
func (e *Engine) PlaySequential(bpm float64) []voice.Handle {
	return playback.Sequential(e.mixer, e.cues(), bpm)
}

// StopAll silences every sounding or scheduled voice. The drum sequencer
// keeps running.
func (e *Engine) StopAll() { e.mixer.StopAll() }

func (e *Engine) Active() []voice.Handle { return e.mixer.Active() }

func (e *Engine) Subscribe(fn func(voice.Event)) func() { return e.mixer.Subscribe(fn) }

// Watch returns a channel that receives voice lifecycle events.
// The channel is buffered (cap 64) and events are dropped when it is full.
// Only the most recent Watch channel receives events.
func (e *Engine) Watch() <-chan voice.Event {
	ch := make(chan voice.Event, 64)
	e.eventChMu.Lock()
	if e.unwatch == nil {
		e.unwatch = e.mixer.Subscribe(e.sendEvent)
	}
	e.eventCh = ch
	e.eventChMu.Unlock()
	return ch
}

func (e *Engine) sendEvent(ev voice.Event) {
	e.eventChMu.Lock()
	ch := e.eventCh
	e.eventChMu.Unlock()
	if ch != nil {
		select {
		case ch <- ev:
		default:
		}
	}
}

// SetMasterGain sets the output gain, clamped to [0, 1].
func (e *Engine) SetMasterGain(g float64) { e.mixer.Master().Set(g) }

func (e *Engine) MasterGain() float64 { return e.mixer.Master().Value() }

// SetEQBand sets one band of the master EQ. Gains run from 0 to
// effects.MaxGain with 1 as unity.
func (e *Engine) SetEQBand(band int, gain float64) error {
	if band < 0 || band >= effects.NumBands {
		return ErrEQBand
	}
	e.bus.EQ().SetGain(band, float32(gain))
	return nil
}

func (e *Engine) EQBand(band int) float64 { return float64(e.bus.EQ().Gain(band)) }

// SavePattern stores the drum grid under name.
func (e *Engine) SavePattern(name string) error {
	if e.patterns == nil {
		return ErrNoStore
	}
	return e.patterns.SavePattern(name, e.seq.Snapshot())
}

// LoadPattern applies a saved drum grid to the current rows.
func (e *Engine) LoadPattern(name string) error {
	if e.patterns == nil {
		return ErrNoStore
	}
	p, ok := e.patterns.LoadPattern(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoPattern, name)
	}
	e.seq.Load(p)
	return nil
}

// Close stops the sequencer and every voice and releases the audio output.
func (e *Engine) Close() error {
	e.seq.Stop()
	e.mixer.StopAll()
	e.eventChMu.Lock()
	if e.unwatch != nil {
		e.unwatch()
		e.unwatch = nil
	}
	e.eventCh = nil
	e.eventChMu.Unlock()

	e.mu.Lock()
	out := e.out
	e.out = nil
	e.mu.Unlock()
	if out != nil {
		return out.Close()
	}
	return nil
}
