package qkd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// maxFrame bounds the size of a single classical message.
const maxFrame = 1 << 24

// A message is a classical announcement exchanged during sifting. Messages
// use the protocol buffer wire format.
type message interface {
	marshal() []byte
	unmarshal(b []byte) error
}

// A basisAnnouncement publishes the bases one party used.
//
//	message BasisAnnouncement { bytes bases = 1; }
type basisAnnouncement struct {
	bases []Basis
}

func (m *basisAnnouncement) marshal() []byte {
	raw := make([]byte, len(m.bases))
	for i, b := range m.bases {
		raw[i] = byte(b)
	}
	b := protowire.AppendTag(nil, 1, protowire.BytesType)
	return protowire.AppendBytes(b, raw)
}

func (m *basisAnnouncement) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 || typ != protowire.BytesType {
			return -1, nil
		}
		raw, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, nil
		}
		m.bases = make([]Basis, len(raw))
		for i, r := range raw {
			m.bases[i] = Basis(r)
		}
		return n, nil
	})
}

// A keyConfirmation publishes the fingerprint of one party's sifted key and
// its length, so the parties learn whether their keys agree.
//
//	message KeyConfirmation { string fingerprint = 1; uint64 size = 2; }
type keyConfirmation struct {
	fingerprint string
	size        uint64
}

func (m *keyConfirmation) marshal() []byte {
	b := protowire.AppendTag(nil, 1, protowire.BytesType)
	b = protowire.AppendString(b, m.fingerprint)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	return protowire.AppendVarint(b, m.size)
}

func (m *keyConfirmation) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.fingerprint = v
			return n, nil
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.size = v
			return n, nil
		}
		return -1, nil
	})
}

// consumeFields walks the fields of a wire-format message, handing each to
// field. field returns the number of bytes it consumed, or -1 to skip a field
// it does not know.
func consumeFields(b []byte, field func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		n, err := field(num, typ, b)
		if err != nil {
			return err
		}
		if n == -1 {
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}

// A framer reads and writes framed messages to the wire. The structure of
// the frame is trivial: length | message.
//
// Frames are not authenticated.
type framer struct {
	rw io.ReadWriter
}

func (f *framer) Write(m message, s *Stats) error {
	marshalled := m.marshal()
	if err := binary.Write(f.rw, binary.LittleEndian, int32(len(marshalled))); err != nil {
		return err
	}
	if _, err := f.rw.Write(marshalled); err != nil {
		return err
	}
	s.MessagesSent++
	s.BytesSent += 4 + len(marshalled)
	return nil
}

func (f *framer) Read(m message, s *Stats) error {
	var mLen int32
	if err := binary.Read(f.rw, binary.LittleEndian, &mLen); err != nil {
		return err
	}
	if mLen < 0 || mLen > maxFrame {
		return fmt.Errorf("invalid frame length %d", mLen)
	}
	marshalled := make([]byte, mLen)
	if _, err := io.ReadFull(f.rw, marshalled); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	s.MessagesReceived++
	s.BytesRead += 4 + len(marshalled)
	return m.unmarshal(marshalled)
}
