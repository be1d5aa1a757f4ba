package channel

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
)

// A Simulated channel realizes single-qubit carriers whose states stay within
// the six eigenstates of the Pauli operators, which covers every preparation
// and measurement B92 and BB84 need. Entangling gates and arbitrary rotations
// are rejected with ErrUnsupported.
//
// Results are reported in Reversed order. A Simulated is safe for concurrent
// use.
type Simulated struct {
	mu   sync.Mutex
	rand *rand.Rand
}

// NewSimulated returns a Simulated channel drawing measurement randomness
// from r.
func NewSimulated(r *rand.Rand) *Simulated {
	return &Simulated{rand: r}
}

// pauli is a single-qubit stabilizer state: the axis of the Bloch sphere it
// points along and the sign of that direction.
type pauli struct {
	axis byte // 'z', 'x' or 'y'
	neg  bool
}

func (p *pauli) apply(t Transform) error {
	if t.Qubit != 0 {
		return fmt.Errorf("%w: %v on a multi-qubit carrier", ErrUnsupported, t)
	}
	switch t.Gate {
	case X:
		p.neg = p.neg != (p.axis != 'x')
	case Z:
		p.neg = p.neg != (p.axis != 'z')
	case H:
		switch p.axis {
		case 'z':
			p.axis = 'x'
		case 'x':
			p.axis = 'z'
		default:
			p.neg = !p.neg
		}
	case Sdg:
		switch p.axis {
		case 'x':
			p.axis, p.neg = 'y', !p.neg
		case 'y':
			p.axis = 'x'
		}
	default:
		return fmt.Errorf("%w: %v", ErrUnsupported, t)
	}
	return nil
}

// PrepareAndMeasure implements the Channel interface.
func (s *Simulated) PrepareAndMeasure(ctx context.Context, prep, meas []Transforms) (Result, error) {
	if _, err := checkRequest(prep, meas); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]byte, len(prep))
	for i := range prep {
		p := pauli{axis: 'z'}
		for _, ts := range []Transforms{prep[i], meas[i]} {
			for _, t := range ts {
				if err := p.apply(t); err != nil {
					return Result{}, fmt.Errorf("carrier %d: %w", i, err)
				}
			}
		}
		one := p.neg
		if p.axis != 'z' {
			one = s.rand.Intn(2) == 1
		}
		// Reversed: carrier i lands at the far end of the register.
		out[len(out)-1-i] = '0'
		if one {
			out[len(out)-1-i] = '1'
		}
	}
	return Result{Bits: string(out), Order: Reversed}, nil
}
