package segment

import (
	"errors"
	"math"
	"testing"
)

func TestNormalizeKeepsInvariant(t *testing.T) {
	const dur = 2.0
	tests := []struct {
		name       string
		start, end float64
		want       Segment
	}{
		{"valid", 0.1, 0.4, Segment{0.1, 0.4}},
		{"reversed", 1.5, 0.5, Segment{0.5, 1.5}},
		{"out of range", -1, 9, Segment{0, 2}},
		{"collapsed", 0.7, 0.7, Segment{0.7, 0.7 + MinDuration}},
		{"collapsed at end", 2, 2, Segment{2 - MinDuration, 2}},
		{"both past end", 5, 6, Segment{2 - MinDuration, 2}},
		{"nan start", math.NaN(), 1, Segment{0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.start, tt.end, dur)
			if math.Abs(got.Start-tt.want.Start) > 1e-12 || math.Abs(got.End-tt.want.End) > 1e-12 {
				t.Fatalf("Normalize(%v,%v) = %+v, want %+v", tt.start, tt.end, got, tt.want)
			}
			if !(got.Start < got.End) || got.Duration() < MinDuration {
				t.Fatalf("invariant broken: %+v", got)
			}
		})
	}
}

func TestNormalizeGrid(t *testing.T) {
	for _, dur := range []float64{0, 0.0005, 0.5, 3} {
		for s := -1.0; s <= 4; s += 0.25 {
			for e := -1.0; e <= 4; e += 0.25 {
				got := Normalize(s, e, dur)
				if !(got.Start < got.End) || got.Duration() < MinDuration {
					t.Fatalf("Normalize(%v,%v,%v) = %+v breaks invariant", s, e, dur, got)
				}
				if got.Start < 0 {
					t.Fatalf("Normalize(%v,%v,%v) start below zero: %+v", s, e, dur, got)
				}
			}
		}
	}
}

func TestNormalizeCollapsedWindowIsNeverShort(t *testing.T) {
	const dur = 3.0
	for i := 0; i <= 100000; i++ {
		s := float64(i) * 1e-5
		if got := Normalize(s, s, dur); got.End-got.Start < MinDuration || got.End > dur {
			t.Fatalf("Normalize(%v,%v) = %+v, width %.20f", s, s, got, got.End-got.Start)
		}
		e := dur - float64(i)*1e-8
		if got := Normalize(e, e, dur); got.End-got.Start < MinDuration || got.Start < 0 || got.End > dur {
			t.Fatalf("Normalize(%v,%v) = %+v, width %.20f", e, e, got, got.End-got.Start)
		}
	}
}

func TestStoreGetOrCreateDefaultsToFullBuffer(t *testing.T) {
	s := NewStore()
	k := Key{"drums", "drums-0"}
	if _, ok := s.Get(k); ok {
		t.Fatalf("unexpected segment before first access")
	}
	seg := s.GetOrCreate(k, 1.25)
	if seg != (Segment{0, 1.25}) {
		t.Fatalf("default segment = %+v", seg)
	}
	s.Set(k, 0.2, 0.3, 1.25)
	if got := s.GetOrCreate(k, 1.25); got != (Segment{0.2, 0.3}) {
		t.Fatalf("GetOrCreate after Set = %+v", got)
	}
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
	s.GetOrCreate(Key{"bass", "bass-1"}, 2)
	s.GetOrCreate(Key{"drums", "drums-1"}, 2)
	keys := s.Keys()
	want := []Key{{"bass", "bass-1"}, {"drums", "drums-0"}, {"drums", "drums-1"}}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}
}

type mapPersister struct {
	saved map[Key]Segment
	err   error
}

func (p *mapPersister) LoadSegment(k Key) (Segment, bool) {
	seg, ok := p.saved[k]
	return seg, ok
}

func (p *mapPersister) SaveSegment(k Key, seg Segment) error {
	if p.err != nil {
		return p.err
	}
	p.saved[k] = seg
	return nil
}

func TestStoreReadsAndWritesThroughPersister(t *testing.T) {
	k := Key{"fx", "boom.wav"}
	p := &mapPersister{saved: map[Key]Segment{k: {Start: 0.5, End: 9}}}
	s := NewStore(WithPersister(p))

	if got := s.GetOrCreate(k, 1); got != (Segment{0.5, 1}) {
		t.Fatalf("loaded segment = %+v, want repaired {0.5 1}", got)
	}
	s.Set(k, 0.4, 0.1, 1)
	if p.saved[k] != (Segment{0.1, 0.4}) {
		t.Fatalf("persisted = %+v", p.saved[k])
	}
}

func TestStoreReportsPersistErrors(t *testing.T) {
	var reported error
	p := &mapPersister{saved: map[Key]Segment{}, err: errors.New("disk full")}
	s := NewStore(WithPersister(p), WithErrorHandler(func(_ Key, err error) { reported = err }))
	seg := s.Set(Key{"a", "b"}, 0, 0.5, 1)
	if reported == nil {
		t.Fatalf("expected persist error to be reported")
	}
	if got, _ := s.Get(Key{"a", "b"}); got != seg {
		t.Fatalf("in-memory value lost on persist error: %+v", got)
	}
}

func TestRatioRoundTrip(t *testing.T) {
	seg := FromRatio(0.25, 0.75, 2)
	if seg != (Segment{0.5, 1.5}) {
		t.Fatalf("FromRatio = %+v", seg)
	}
	l, r := seg.Ratio(2)
	if l != 0.25 || r != 0.75 {
		t.Fatalf("Ratio = %v,%v", l, r)
	}
}

func TestStoreSetRatio(t *testing.T) {
	s := NewStore()
	k := Key{"drums", "kick"}
	got := s.SetRatio(k, 0.75, 0.25, 2)
	if got != (Segment{0.5, 1.5}) {
		t.Fatalf("SetRatio = %+v", got)
	}
	if stored, ok := s.Get(k); !ok || stored != got {
		t.Fatalf("Get = %+v, %v", stored, ok)
	}
}
