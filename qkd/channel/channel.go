// Package channel defines the quantum channel that protocol engines delegate
// state preparation and measurement to, together with a few implementations
// suitable for simulation and testing.
package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/alan-christopher/qkd/qkd/bitmap"
)

// ErrUnsupported is returned by channels asked to apply a transform they
// cannot realize.
var ErrUnsupported = errors.New("channel: unsupported transform")

// A Gate names a single quantum transform.
type Gate int

const (
	X   Gate = iota + 1 // bit flip
	Z                   // phase flip
	H                   // Hadamard
	Sdg                 // inverse phase gate
	RY                  // rotation about the Y axis by Transform.Angle
	CX                  // controlled-X from Transform.Control onto Transform.Qubit
)

func (g Gate) String() string {
	switch g {
	case X:
		return "x"
	case Z:
		return "z"
	case H:
		return "h"
	case Sdg:
		return "sdg"
	case RY:
		return "ry"
	case CX:
		return "cx"
	default:
		return fmt.Sprintf("gate(%d)", int(g))
	}
}

// A Transform is one gate applied to one qubit of a carrier. Qubits are
// numbered from 0 within their carrier.
type Transform struct {
	Gate    Gate
	Qubit   int
	Control int
	Angle   float64
}

func (t Transform) String() string {
	switch t.Gate {
	case CX:
		return fmt.Sprintf("cx(%d,%d)", t.Control, t.Qubit)
	case RY:
		return fmt.Sprintf("ry(%.4f,%d)", t.Angle, t.Qubit)
	default:
		return fmt.Sprintf("%s(%d)", t.Gate, t.Qubit)
	}
}

// Transforms is the ordered list of transforms applied to one carrier.
type Transforms []Transform

// Width returns the number of qubits a carrier spans, given the transforms
// that prepare and measure it. A carrier always holds at least one qubit.
func Width(prep, meas Transforms) int {
	w := 1
	for _, ts := range []Transforms{prep, meas} {
		for _, t := range ts {
			if t.Qubit+1 > w {
				w = t.Qubit + 1
			}
			if t.Gate == CX && t.Control+1 > w {
				w = t.Control + 1
			}
		}
	}
	return w
}

// An Order describes how a channel lays out outcome bits.
type Order int

const (
	// Positional results hold the outcome of qubit i at index i.
	Positional Order = iota
	// Reversed results hold the outcome of qubit i at index n-1-i, the
	// register order most circuit simulators report in.
	Reversed
)

// A Result is the outcome of one PrepareAndMeasure call: one character,
// '0' or '1', per measured qubit.
type Result struct {
	Bits  string
	Order Order
}

// Positional returns the outcomes of r indexed by qubit.
func (r Result) Positional() (bitmap.Dense, error) {
	d, err := bitmap.FromString(r.Bits)
	if err != nil {
		return bitmap.Empty(), fmt.Errorf("parsing channel result: %w", err)
	}
	if r.Order == Reversed {
		d = d.Reverse()
	}
	return d, nil
}

// A Channel prepares quantum carriers and measures them. It is the only
// place protocol engines touch quantum mechanics.
type Channel interface {
	// PrepareAndMeasure prepares one carrier per entry of prep, applies the
	// matching entry of meas to it, and measures every qubit exactly once.
	// prep and meas must have equal length. Qubits are numbered across the
	// whole request in carrier order, so the result holds the sum of the
	// carriers' widths. The call blocks until every outcome is available.
	PrepareAndMeasure(ctx context.Context, prep, meas []Transforms) (Result, error)
}

// A Sender prepares carriers for a Receiver on the far end of a channel.
type Sender interface {
	// Send hands a batch of carrier preparations to the channel.
	Send(ctx context.Context, prep []Transforms) error
}

// A Receiver measures carriers sent by a Sender.
type Receiver interface {
	// Receive waits for the next batch of carriers and measures them
	// according to meas, which must match the batch in length.
	Receive(ctx context.Context, meas []Transforms) (Result, error)
}

func checkRequest(prep, meas []Transforms) (qubits int, err error) {
	if len(prep) != len(meas) {
		return 0, fmt.Errorf("preparation and measurement counts must agree: %d != %d", len(prep), len(meas))
	}
	for i := range prep {
		qubits += Width(prep[i], meas[i])
	}
	return qubits, nil
}
