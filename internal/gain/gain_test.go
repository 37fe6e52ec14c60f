package gain

import (
	"math"
	"testing"
)

func TestControlClamps(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0.8, 0.8},
		{-2, 0},
		{1.5, 1},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		c := New(0.5)
		c.Set(tt.in)
		if got := c.Value(); got != tt.want {
			t.Errorf("Set(%v) -> %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNilControlIsUnity(t *testing.T) {
	var c *Control
	if c.Value() != 1 {
		t.Fatalf("nil control = %v, want 1", c.Value())
	}
}
