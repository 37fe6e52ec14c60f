// Package segment models the trim window played out of each sound's buffer.
//
// All repair of user supplied bounds happens in Normalize; the Store applies it
// on every write so callers never see an inverted or zero-length window.
package segment

import (
	"math"
	"sort"
	"sync"
)

// MinDuration is the shortest window the engine will schedule, in seconds.
// A zero-length window would make the output play the whole buffer.
const MinDuration = 0.001

// Segment is a [Start, End) window in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (s Segment) Duration() float64 { return s.End - s.Start }

// Ratio returns the window as fractions of duration, the form used by the
// single-sound trim editor.
func (s Segment) Ratio(duration float64) (float64, float64) {
	if duration <= 0 {
		return 0, 1
	}
	return s.Start / duration, s.End / duration
}

// Key identifies the trim of one sound inside one preset category.
type Key struct {
	Category string
	Sound    string
}

func (k Key) String() string { return k.Category + ":" + k.Sound }

// Full is the default window covering a whole buffer.
func Full(duration float64) Segment {
	return Normalize(0, duration, duration)
}

// Normalize swaps reversed bounds, clamps both into [0, duration] and widens
// the window to MinDuration. When the buffer itself is shorter than
// MinDuration the window is [0, MinDuration].
func Normalize(start, end, duration float64) Segment {
	if math.IsNaN(duration) || duration < 0 {
		duration = 0
	}
	if math.IsNaN(start) {
		start = 0
	}
	if math.IsNaN(end) {
		end = duration
	}
	if start > end {
		start, end = end, start
	}
	start = clamp(start, 0, duration)
	end = clamp(end, 0, duration)
	if duration <= MinDuration {
		return Segment{Start: 0, End: MinDuration}
	}
	if end-start < MinDuration {
		end = start + MinDuration
		for end-start < MinDuration {
			end = math.Nextafter(end, math.Inf(1))
		}
		if end > duration {
			end = duration
			start = duration - MinDuration
			for start > 0 && end-start < MinDuration {
				start = max(0, math.Nextafter(start, math.Inf(-1)))
			}
		}
	}
	return Segment{Start: start, End: end}
}

// FromRatio builds a window from fractions of duration.
func FromRatio(l, r, duration float64) Segment {
	return Normalize(l*duration, r*duration, duration)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Persister stores segments outside the process. The Store reads through it
// when a key is first seen and writes through on every Set.
type Persister interface {
	LoadSegment(Key) (Segment, bool)
	SaveSegment(Key, Segment) error
}

type StoreOption func(*Store)

func WithPersister(p Persister) StoreOption {
	return func(s *Store) { s.persist = p }
}

// WithErrorHandler installs a hook for persistence failures. Set itself never
// fails; the in-memory value is kept either way.
func WithErrorHandler(fn func(Key, error)) StoreOption {
	return func(s *Store) { s.onErr = fn }
}

// Store owns the trim windows of an engine instance.
type Store struct {
	mu      sync.RWMutex
	segs    map[Key]Segment
	persist Persister
	onErr   func(Key, error)
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{segs: make(map[Key]Segment)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Get(k Key) (Segment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seg, ok := s.segs[k]
	return seg, ok
}

// GetOrCreate returns the stored window for k. Unknown keys are loaded from
// the persister when one is set, otherwise they default to the full buffer.
func (s *Store) GetOrCreate(k Key, duration float64) Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seg, ok := s.segs[k]; ok {
		return seg
	}
	seg := Full(duration)
	if s.persist != nil {
		if saved, ok := s.persist.LoadSegment(k); ok {
			seg = Normalize(saved.Start, saved.End, duration)
		}
	}
	s.segs[k] = seg
	return seg
}

// Set repairs and stores the window, returning what was stored.
func (s *Store) Set(k Key, start, end, duration float64) Segment {
	seg := Normalize(start, end, duration)
	s.mu.Lock()
	s.segs[k] = seg
	p, onErr := s.persist, s.onErr
	s.mu.Unlock()
	if p != nil {
		if err := p.SaveSegment(k, seg); err != nil && onErr != nil {
			onErr(k, err)
		}
	}
	return seg
}

// SetRatio is Set with bounds given as fractions of duration.
func (s *Store) SetRatio(k Key, l, r, duration float64) Segment {
	return s.Set(k, l*duration, r*duration, duration)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.segs)
}

// Keys lists stored keys ordered by category then sound.
func (s *Store) Keys() []Key {
	s.mu.RLock()
	keys := make([]Key, 0, len(s.segs))
	for k := range s.segs {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Category != keys[j].Category {
			return keys[i].Category < keys[j].Category
		}
		return keys[i].Sound < keys[j].Sound
	})
	return keys
}
