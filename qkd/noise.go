package qkd

import (
	"fmt"
	"math/rand"
)

// A Noise flips measurement outcomes independently with a fixed probability.
// The zero Noise never flips anything.
type Noise struct {
	p float64
}

// NewNoise returns a Noise flipping outcomes with probability p, which must
// lie in [0, 1].
func NewNoise(p float64) (Noise, error) {
	if !(p >= 0 && p <= 1) {
		return Noise{}, fmt.Errorf("%w: %v", ErrNoiseProbability, p)
	}
	return Noise{p: p}, nil
}

// Probability returns the flip probability of n.
func (n Noise) Probability() float64 {
	return n.p
}

// Apply passes outcome through n, consuming one draw from r.
func (n Noise) Apply(r *rand.Rand, outcome bool) bool {
	return ApplyNoise(r, outcome, n.p)
}

// ApplyNoise flips outcome with probability p, consuming one draw from r. p
// is assumed valid; use NewNoise to validate it up front.
func ApplyNoise(r *rand.Rand, outcome bool, p float64) bool {
	if r.Float64() < p {
		return !outcome
	}
	return outcome
}
