package qkd

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestNewNoiseValidates(t *testing.T) {
	for _, p := range []float64{-0.01, 1.01, math.NaN(), math.Inf(1)} {
		if _, err := NewNoise(p); !errors.Is(err, ErrNoiseProbability) {
			t.Errorf("NewNoise(%v) error = %v, want ErrNoiseProbability", p, err)
		}
	}
	for _, p := range []float64{0, 0.25, 1} {
		n, err := NewNoise(p)
		if err != nil {
			t.Errorf("NewNoise(%v): %v", p, err)
		}
		if n.Probability() != p {
			t.Errorf("Probability() == %v, want %v", n.Probability(), p)
		}
	}
}

func TestApplyNoise(t *testing.T) {
	tcs := []struct {
		name   string
		p      float64
		lo     int
		hi     int
		trials int
	}{
		{"never", 0, 0, 0, 1000},
		{"always", 1, 1000, 1000, 1000},
		{"half", 0.5, 400, 600, 1000},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			r := rand.New(rand.NewSource(11))
			flips := 0
			for i := 0; i < tc.trials; i++ {
				bit := i%2 == 0
				if ApplyNoise(r, bit, tc.p) != bit {
					flips++
				}
			}
			if flips < tc.lo || flips > tc.hi {
				t.Errorf("%d flips out of %d, want within [%d, %d]", flips, tc.trials, tc.lo, tc.hi)
			}
		})
	}
}

func TestZeroNoiseNeverFlips(t *testing.T) {
	var n Noise
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		if n.Apply(r, true) != true {
			t.Fatalf("zero Noise flipped an outcome")
		}
	}
}
