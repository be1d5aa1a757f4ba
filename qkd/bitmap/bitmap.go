// Package bitmap provides utilities for operating on densely-packed sequences
// of bits, e.g. a party's raw bits, measurement outcomes and sifted keys.
package bitmap

import (
	"fmt"
	"math/bits"
	"math/rand"
)

const byteSize = 8

// Select selects a subset of bits from data, according to which bits are set in
// mask.
func Select(data, mask Dense) Dense {
	var d Dense
	for i := 0; i < data.Size(); i++ {
		if !mask.Get(i) {
			continue
		}
		d.AppendBit(data.Get(i))
	}
	return d
}

// Empty returns an empty, dense bitmap.
func Empty() Dense {
	return Dense{}
}

// FromString converts a string of '1's and '0's to a Dense. Spaces are
// ignored, so that long literals can be grouped for readability.
func FromString(s string) (Dense, error) {
	d := Dense{}
	for _, c := range s {
		switch c {
		case '1':
			d.AppendBit(true)
		case '0':
			d.AppendBit(false)
		case ' ':
			continue
		default:
			return Dense{}, fmt.Errorf("invalid bitmap string rep: %s", s)
		}
	}
	return d, nil
}

// Random returns n uniformly random bits drawn from r.
func Random(r *rand.Rand, n int) Dense {
	buf := make([]byte, BytesFor(n))
	r.Read(buf)
	return NewDense(buf, n)
}

// XOr returns the bitwise XOR of two bitmaps. The shorter of the two is
// implicitly padded with zeros.
func XOr(a, b Dense) Dense {
	short, long := a, b
	if b.len < a.len {
		short, long = b, a
	}
	r := Dense{
		bits: make([]byte, long.SizeBytes()),
		len:  long.len,
	}
	copy(r.bits, long.bits)
	for i := 0; i < short.SizeBytes(); i++ {
		r.bits[i] ^= short.bits[i]
	}
	return r
}

// CountOnes returns the total number of bits set in d.
func CountOnes(d Dense) int {
	var sum int
	for _, b := range d.bits[:d.SizeBytes()] {
		sum += bits.OnesCount8(b)
	}
	return sum
}

// Equal returns true iff a and b have the same length and contain the same
// bits.
func Equal(a, b Dense) bool {
	return a.len == b.len && CountOnes(XOr(a, b)) == 0
}

// BytesFor returns the number of bytes necessary to hold the provided number of
// bits.
func BytesFor(bits int) int {
	return (bits + byteSize - 1) / byteSize
}
