package bitmap

import "strings"

// A Dense is a bitmap where every bit is explicitly represented. Bit i lives
// in byte i/8 at position i%8, so bit 0 is the least significant bit of the
// first byte.
type Dense struct {
	bits []byte
	len  int
}

// NewDense returns a new dense bitmap whose contents are a copy of data, and
// whose length is bitLen. If bitLen is longer than data, then trailing zeros
// are added. If bitLen is negative, then it is inferred from data.
func NewDense(data []byte, bitLen int) Dense {
	if bitLen < 0 {
		bitLen = len(data) * byteSize
	}
	r := Dense{
		bits: make([]byte, BytesFor(bitLen)),
		len:  bitLen,
	}
	copy(r.bits, data)
	r.clearTail()
	return r
}

// Get returns the i-th bit in this bitmap. Bits past the end read as false.
func (d Dense) Get(i int) bool {
	if i < 0 || i >= d.len {
		return false
	}
	return 0 < d.bits[i/byteSize]&(1<<(i%byteSize))
}

// Set assigns the i-th bit. It panics if i is out of range, like a slice
// index would.
func (d *Dense) Set(i int, bit bool) {
	if i < 0 || i >= d.len {
		panic("bitmap: index out of range")
	}
	if bit {
		d.bits[i/byteSize] |= 1 << (i % byteSize)
	} else {
		d.bits[i/byteSize] &^= 1 << (i % byteSize)
	}
}

// Flip inverts the i-th bit.
func (d *Dense) Flip(i int) {
	d.Set(i, !d.Get(i))
}

// Size returns the number of bits in this bitmap.
func (d Dense) Size() int {
	return d.len
}

// SizeBytes returns the number of bytes needed to hold this bitmap.
func (d Dense) SizeBytes() int {
	return BytesFor(d.len)
}

// Data returns a view of the bytes underlying this bitmap. Modifying the
// returned slice modifies this bitmap.
func (d Dense) Data() []byte {
	return d.bits[:d.SizeBytes()]
}

// AppendBit adds a single bit to the end of d.
func (d *Dense) AppendBit(bit bool) {
	i, pos := d.len/byteSize, d.len%byteSize
	d.len++
	if pos == 0 && i >= len(d.bits) {
		d.bits = append(d.bits, 0)
	}
	if bit {
		d.bits[i] |= 1 << pos
	} else {
		d.bits[i] &^= 1 << pos
	}
}

// Reverse returns a copy of d with its bit order reversed.
func (d Dense) Reverse() Dense {
	r := NewDense(nil, d.len)
	for i := 0; i < d.len; i++ {
		if d.Get(i) {
			r.Set(d.len-1-i, true)
		}
	}
	return r
}

// String renders d as '0's and '1's, bit 0 first.
func (d Dense) String() string {
	var sb strings.Builder
	sb.Grow(d.len)
	for i := 0; i < d.len; i++ {
		if d.Get(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

func (d *Dense) clearTail() {
	if off := d.len % byteSize; off != 0 {
		d.bits[len(d.bits)-1] &= 0xFF >> (byteSize - off)
	}
}
