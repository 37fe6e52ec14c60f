package effects

// Bus is the master chain: the EQ, then a hard clip back into [-1, 1] since
// band boosts can push the mix over full scale. Process must be called from
// a single goroutine; gains may change from any.
type Bus struct {
	eq     *EQ
	active bool
}

func NewBus(sampleRate int) *Bus {
	return &Bus{eq: NewEQ(sampleRate)}
}

func (b *Bus) EQ() *EQ { return b.eq }

// Process runs the chain over interleaved stereo in place. A flat EQ leaves
// the buffer untouched. Filters restart from silence when the EQ leaves
// bypass, so state from before the bypass is not replayed.
func (b *Bus) Process(dst []float32) {
	g, flat := b.eq.snapshot()
	if flat {
		b.active = false
		return
	}
	if !b.active {
		b.eq.Reset()
		b.active = true
	}
	b.eq.process(dst, &g)
	for i, s := range dst {
		dst[i] = max(-1, min(1, s))
	}
}

// CopyGains gives b the same EQ settings as from, for rendering offline
// with the live settings.
func (b *Bus) CopyGains(from *Bus) {
	for band := 0; band < NumBands; band++ {
		b.eq.SetGain(band, from.eq.Gain(band))
	}
}
