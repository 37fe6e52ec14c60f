package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/cbegin/samplerbox"
	"github.com/cbegin/samplerbox/internal/config"
	"github.com/cbegin/samplerbox/internal/effects"
	"github.com/cbegin/samplerbox/internal/presets"
	"github.com/cbegin/samplerbox/internal/store"
	"github.com/cbegin/samplerbox/internal/tui"
	"github.com/cbegin/samplerbox/internal/voice"
)

func main() {
	cfg := config.Load()
	var (
		sampleRate = flag.Int("sample-rate", cfg.SampleRate, "output sample rate")
		server     = flag.String("server", cfg.ServerURL, "preset server URL")
		localDir   = flag.String("dir", "", "read presets from this directory instead of the server")
		preset     = flag.String("preset", "", "preset category (default: first listed)")
		modeName   = flag.String("mode", "single", "playback mode: single|together|sequential|drum")
		sound      = flag.Int("sound", 0, "sound index for -mode single and -trim")
		bpm        = flag.Float64("bpm", cfg.BPM, "tempo for sequential and drum modes (40..240)")
		swing      = flag.Float64("swing", cfg.Swing, "drum swing amount (0..1)")
		volume     = flag.Float64("volume", cfg.MasterGain, "master gain (0..1)")
		trim       = flag.String("trim", "", "trim window for -sound as start:end seconds or 25%:75%")
		eq         = flag.String("eq", "", "master EQ gains low,lowmid,mid,highmid,high (0..2, 1 is flat)")
		render     = flag.String("render", "", "drum mode: render the saved pattern to this WAV file")
		bars       = flag.Int("bars", 2, "bars to render with -render")
		smfPath    = flag.String("smf", "", "drum mode: export the saved pattern as a MIDI file")
		pattern    = flag.String("pattern", store.DefaultPattern, "pattern name for save/load")
		statePath  = flag.String("state", "", "state file for trims and patterns")
		list       = flag.Bool("list", false, "list presets and exit")
		verbose    = flag.Bool("v", false, "log preset loading")
	)
	flag.Parse()

	mode, err := parseMode(*modeName)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var dir presets.Directory = presets.NewClient(*server, nil)
	if *localDir != "" {
		dir = presets.NewDir(*localDir)
	}

	st, err := openState(*statePath, cfg.StateDir)
	if err != nil {
		log.Fatal(err)
	}

	offline := *list || *render != "" || *smfPath != ""
	meter := tui.NewMeter()
	e, err := samplerbox.NewEngine(*sampleRate,
		samplerbox.WithDirectory(dir),
		samplerbox.WithPersister(st),
		samplerbox.WithPatternStore(st),
		samplerbox.WithTempo(*bpm, *swing),
		samplerbox.WithMasterGain(*volume),
		samplerbox.WithLogger(logger),
		samplerbox.WithOutput(!offline),
		samplerbox.WithSampleTap(meter.Tap),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer e.Close()

	if *eq != "" {
		gains, err := parseEQ(*eq)
		if err != nil {
			log.Fatal(err)
		}
		for band, g := range gains {
			if err := e.SetEQBand(band, g); err != nil {
				log.Fatal(err)
			}
		}
	}

	if *list {
		presetList, err := e.ListPresets(ctx)
		if err != nil {
			log.Fatal(err)
		}
		for _, p := range presetList {
			fmt.Printf("%-20s %d sounds\n", p.Category, p.Count)
		}
		return
	}

	category := *preset
	if category == "" {
		if category, err = firstPreset(ctx, e); err != nil {
			log.Fatal(err)
		}
	}
	if err := e.LoadPreset(ctx, category); err != nil {
		log.Fatal(err)
	}
	for i, s := range e.Sounds() {
		state := fmt.Sprintf("%.3fs", s.Duration())
		if s.Buffer == nil {
			state = "failed: " + s.Err.Error()
		}
		fmt.Printf("%2d  %-24s %s\n", i, s.Name, state)
	}

	if *trim != "" {
		tr, err := parseTrim(*trim)
		if err != nil {
			log.Fatal(err)
		}
		set := e.SetTrim
		if tr.ratio {
			set = e.SetTrimRatio
		}
		seg, err := set(*sound, tr.start, tr.end)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("trim %d: %.3fs..%.3fs\n", *sound, seg.Start, seg.End)
	}

	switch mode {
	case "single":
		playAndWait(ctx, e, func() []voice.Handle {
			h, err := e.PlaySingle(*sound)
			if err != nil {
				log.Fatal(err)
			}
			return []voice.Handle{h}
		})
	case "together":
		playAndWait(ctx, e, e.PlayTogether)
	case "sequential":
		playAndWait(ctx, e, func() []voice.Handle { return e.PlaySequential(*bpm) })
	case "drum":
		if err := e.LoadPattern(*pattern); err != nil && !errors.Is(err, samplerbox.ErrNoPattern) {
			log.Fatal(err)
		}
		if offline {
			if err := export(e, *render, *smfPath, *bars); err != nil {
				log.Fatal(err)
			}
			return
		}
		p := tea.NewProgram(tui.NewModel(e, meter, *pattern), tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			log.Fatal(err)
		}
	}
}

func parseMode(name string) (string, error) {
	switch m := strings.ToLower(strings.TrimSpace(name)); m {
	case "single", "together", "sequential", "drum":
		return m, nil
	default:
		return "", fmt.Errorf("invalid -mode %q (expected single|together|sequential|drum)", name)
	}
}

// trimArg is a parsed -trim value. With ratio set, start and end are
// fractions of the sound's length.
type trimArg struct {
	start, end float64
	ratio      bool
}

// parseTrim accepts start:end in seconds or 25%:75% as percentages.
func parseTrim(s string) (trimArg, error) {
	a, b, ok := strings.Cut(s, ":")
	if !ok {
		return trimArg{}, fmt.Errorf("invalid -trim %q (expected start:end or 25%%:75%%)", s)
	}
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	pa, pb := strings.HasSuffix(a, "%"), strings.HasSuffix(b, "%")
	if pa != pb {
		return trimArg{}, fmt.Errorf("invalid -trim %q (mixes seconds and percentages)", s)
	}
	tr := trimArg{ratio: pa}
	var err error
	if tr.start, err = strconv.ParseFloat(strings.TrimSuffix(a, "%"), 64); err != nil {
		return trimArg{}, fmt.Errorf("invalid -trim start: %w", err)
	}
	if tr.end, err = strconv.ParseFloat(strings.TrimSuffix(b, "%"), 64); err != nil {
		return trimArg{}, fmt.Errorf("invalid -trim end: %w", err)
	}
	if tr.ratio {
		tr.start /= 100
		tr.end /= 100
	}
	return tr, nil
}

func parseEQ(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != effects.NumBands {
		return nil, fmt.Errorf("invalid -eq %q (expected %d comma separated gains)", s, effects.NumBands)
	}
	gains := make([]float64, len(parts))
	for i, p := range parts {
		g, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid -eq band %d: %w", i, err)
		}
		gains[i] = g
	}
	return gains, nil
}

func openState(path, dir string) (*store.File, error) {
	switch {
	case path != "":
	case dir != "":
		path = filepath.Join(dir, "state.json")
	default:
		p, err := store.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return store.Open(path)
}

func firstPreset(ctx context.Context, e *samplerbox.Engine) (string, error) {
	list, err := e.ListPresets(ctx)
	if err != nil {
		return "", err
	}
	for _, p := range list {
		if p.Count > 0 {
			return p.Category, nil
		}
	}
	return "", errors.New("no presets with sounds")
}

// playAndWait starts playback and blocks until every voice it started has
// completed or been stopped.
func playAndWait(ctx context.Context, e *samplerbox.Engine, play func() []voice.Handle) {
	w := newWaiter()
	unsub := e.Subscribe(w.observe)
	defer unsub()
	w.track(play())
	for {
		select {
		case <-ctx.Done():
			e.StopAll()
			return
		case ev := <-w.started:
			fmt.Printf("%7.3fs  %s\n", ev.Start, ev.Label)
		case <-w.done:
			for {
				select {
				case ev := <-w.started:
					fmt.Printf("%7.3fs  %s\n", ev.Start, ev.Label)
				default:
					return
				}
			}
		}
	}
}

// waiter counts voices down to zero from mixer events. It runs on the audio
// thread, so it never blocks: the start log may drop lines but completion
// tracking does not. Voices that finish before track is called are
// remembered.
type waiter struct {
	mu       sync.Mutex
	tracking bool
	pending  map[voice.Handle]bool
	finished map[voice.Handle]bool
	closed   bool
	started  chan voice.Event
	done     chan struct{}
}

func newWaiter() *waiter {
	return &waiter{
		pending:  make(map[voice.Handle]bool),
		finished: make(map[voice.Handle]bool),
		started:  make(chan voice.Event, 64),
		done:     make(chan struct{}),
	}
}

func (w *waiter) observe(ev voice.Event) {
	switch ev.Kind {
	case voice.EventStarted:
		select {
		case w.started <- ev:
		default:
		}
	case voice.EventCompleted, voice.EventStopped:
		w.mu.Lock()
		if w.tracking {
			delete(w.pending, ev.Handle)
			w.finishIfDone()
		} else {
			w.finished[ev.Handle] = true
		}
		w.mu.Unlock()
	}
}

func (w *waiter) track(handles []voice.Handle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, h := range handles {
		if h != 0 && !w.finished[h] {
			w.pending[h] = true
		}
	}
	w.finished = nil
	w.tracking = true
	w.finishIfDone()
}

func (w *waiter) finishIfDone() {
	if len(w.pending) == 0 && !w.closed {
		w.closed = true
		close(w.done)
	}
}

func export(e *samplerbox.Engine, wavPath, smfPath string, bars int) error {
	if wavPath != "" {
		f, err := os.Create(wavPath)
		if err != nil {
			return err
		}
		if err := samplerbox.EncodeWAV(f, e.RenderPattern(bars), e.SampleRate()); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", wavPath)
	}
	if smfPath != "" {
		f, err := os.Create(smfPath)
		if err != nil {
			return err
		}
		if err := e.Sequencer().Snapshot().WriteSMF(f, e.Sequencer().BPM()); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", smfPath)
	}
	return nil
}
