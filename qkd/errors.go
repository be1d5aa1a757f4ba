package qkd

import (
	"errors"
	"fmt"
)

var (
	// ErrEncodingInconsistency reports a B92 bit that cannot be sent in the
	// chosen basis.
	ErrEncodingInconsistency = errors.New("qkd: encoding inconsistency")
	// ErrInvalidBasis reports a basis outside the protocol's alphabet.
	ErrInvalidBasis = errors.New("qkd: invalid basis selector")
	// ErrLengthMismatch reports index-aligned sequences of different lengths.
	ErrLengthMismatch = errors.New("qkd: sequence length mismatch")
	// ErrNoiseProbability reports a flip probability outside [0, 1].
	ErrNoiseProbability = errors.New("qkd: noise probability outside [0, 1]")
)

// An EncodingInconsistencyError identifies the first position of a B92
// transmission whose bit and basis violate the encoding rule: bit 0 must be
// sent in basis 0, and bit 1 in basis 1.
type EncodingInconsistencyError struct {
	Index int
	Bit   bool
	Basis Basis
}

func (e *EncodingInconsistencyError) Error() string {
	bit := 0
	if e.Bit {
		bit = 1
	}
	return fmt.Sprintf("qkd: B92 cannot send bit %d in basis %d (position %d)", bit, e.Basis, e.Index)
}

func (e *EncodingInconsistencyError) Unwrap() error { return ErrEncodingInconsistency }

// An InvalidBasisError identifies a basis selector outside its protocol's
// alphabet.
type InvalidBasisError struct {
	Protocol Protocol
	Index    int
	Symbol   string
}

func (e *InvalidBasisError) Error() string {
	return fmt.Sprintf("qkd: invalid %s basis %q at position %d, want 0-%d",
		e.Protocol, e.Symbol, e.Index, e.Protocol.Bases()-1)
}

func (e *InvalidBasisError) Unwrap() error { return ErrInvalidBasis }

// A LengthMismatchError lists the lengths of sequences that should have been
// index-aligned.
type LengthMismatchError struct {
	What    string
	Lengths []int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("qkd: %s lengths must agree: %v", e.What, e.Lengths)
}

func (e *LengthMismatchError) Unwrap() error { return ErrLengthMismatch }

func checkLengths(what string, lengths ...int) error {
	for _, l := range lengths[1:] {
		if l != lengths[0] {
			return &LengthMismatchError{What: what, Lengths: lengths}
		}
	}
	return nil
}
