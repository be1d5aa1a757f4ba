package qkd

import (
	"fmt"
	"math"

	"github.com/alan-christopher/qkd/qkd/channel"
)

// Transform tables. Every preparation and measurement a protocol performs is
// a lookup here, keyed by basis (and bit, where the bit changes the state).

var (
	h   = channel.Transform{Gate: channel.H}
	x   = channel.Transform{Gate: channel.X}
	z   = channel.Transform{Gate: channel.Z}
	sdg = channel.Transform{Gate: channel.Sdg}
)

// b92Preparation is indexed by basis: |H> needs nothing, |+> a Hadamard.
var b92Preparation = [2]channel.Transforms{
	nil,
	{h},
}

// b92Measurement rotates the +/- basis onto the computational one.
var b92Measurement = [2]channel.Transforms{
	nil,
	{h},
}

// b92States labels the state sent in each basis.
var b92States = [2]byte{'H', '+'}

// bb84Preparation is indexed by [basis][bit].
var bb84Preparation = [2][2]channel.Transforms{
	{nil, {x}},
	{{h}, {h, z}},
}

var bb84Measurement = [2]channel.Transforms{
	nil,
	{h},
}

// e91Measurement is indexed by basis; transforms act on qubit 0 and are
// retargeted to the measuring party's qubit.
var e91Measurement = [3]channel.Transforms{
	nil,
	{{Gate: channel.RY, Angle: -math.Pi / 4}},
	{sdg, h},
}

// bellPreparation prepares each Bell state from |00>.
var bellPreparation = map[BellState]channel.Transforms{
	PhiPlus:  {h, cx},
	PhiMinus: {h, cx, {Gate: channel.Z, Qubit: 1}},
	PsiPlus:  {h, cx, {Gate: channel.X, Qubit: 1}},
	PsiMinus: {h, cx, z, {Gate: channel.X, Qubit: 1}},
}

var cx = channel.Transform{Gate: channel.CX, Control: 0, Qubit: 1}

// B92Preparation returns the transforms preparing the B92 state sent in
// basis b.
func B92Preparation(b Basis) (channel.Transforms, error) {
	if int(b) >= B92.Bases() {
		return nil, &InvalidBasisError{Protocol: B92, Index: -1, Symbol: fmt.Sprint(b)}
	}
	return clone(b92Preparation[b]), nil
}

// BB84Preparation returns the transforms preparing bit in basis b.
func BB84Preparation(bit bool, b Basis) (channel.Transforms, error) {
	if int(b) >= BB84.Bases() {
		return nil, &InvalidBasisError{Protocol: BB84, Index: -1, Symbol: fmt.Sprint(b)}
	}
	return clone(bb84Preparation[b][bitIndex(bit)]), nil
}

// Measurement returns the transforms applied to a qubit before measuring it
// in basis b of protocol p. For E91 qubit selects which qubit of the pair is
// measured; it is ignored otherwise.
func Measurement(p Protocol, b Basis, qubit int) (channel.Transforms, error) {
	if int(b) >= p.Bases() {
		return nil, &InvalidBasisError{Protocol: p, Index: -1, Symbol: fmt.Sprint(b)}
	}
	switch p {
	case B92:
		return clone(b92Measurement[b]), nil
	case BB84:
		return clone(bb84Measurement[b]), nil
	}
	ts := clone(e91Measurement[b])
	for i := range ts {
		ts[i].Qubit = qubit
	}
	return ts, nil
}

// BellPreparation returns the transforms preparing s on a pair of qubits.
func BellPreparation(s BellState) (channel.Transforms, error) {
	ts, ok := bellPreparation[s]
	if !ok {
		return nil, fmt.Errorf("unknown bell state %d", int(s))
	}
	return clone(ts), nil
}

func clone(ts channel.Transforms) channel.Transforms {
	if ts == nil {
		return nil
	}
	return append(channel.Transforms(nil), ts...)
}

func bitIndex(bit bool) int {
	if bit {
		return 1
	}
	return 0
}
