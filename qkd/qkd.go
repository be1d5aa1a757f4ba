// Package qkd simulates the classical side of the B92, BB84 and E91 quantum
// key distribution protocols: basis choice, state-preparation intent,
// interpretation of measurement outcomes, noise, sifting, and the Bell test
// E91 uses to detect eavesdroppers. Preparing and measuring quantum states is
// delegated to a channel.Channel.
package qkd

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strings"

	"github.com/alan-christopher/qkd/qkd/bitmap"
	"golang.org/x/crypto/sha3"
)

var DefaultTransmissions = 64

// A Protocol identifies one of the supported key distribution protocols.
type Protocol string

const (
	B92  Protocol = "b92"
	BB84 Protocol = "bb84"
	E91  Protocol = "e91"
)

// ParseProtocol converts a protocol name, in any case, to a Protocol.
func ParseProtocol(s string) (Protocol, error) {
	switch p := Protocol(strings.ToLower(s)); p {
	case B92, BB84, E91:
		return p, nil
	}
	return "", fmt.Errorf("unknown protocol %q", s)
}

// Bases returns the size of p's basis alphabet.
func (p Protocol) Bases() int {
	if p == E91 {
		return 3
	}
	return 2
}

// A Basis selects a preparation or measurement setting. Its meaning depends
// on the protocol:
//   - B92: 0 prepares/measures in the H/V basis, 1 in the +/- basis.
//   - BB84: 0 is rectilinear, 1 is diagonal.
//   - E91: 0 is H/V, 1 is ±45°, 2 is circular.
type Basis uint8

// Stats packages together a collection of potentially interesting metrics
// pertaining to a single protocol run.
type Stats struct {
	Transmitted      int
	Sifted           int
	QBER             float64
	KeysMatch        bool
	MessagesSent     int
	MessagesReceived int
	BytesRead        int
	BytesSent        int
}

// ParseBases converts a string of basis digits into bases of protocol p.
func ParseBases(p Protocol, s string) ([]Basis, error) {
	bases := make([]Basis, 0, len(s))
	for i, c := range s {
		if c < '0' || int(c-'0') >= p.Bases() {
			return nil, &InvalidBasisError{Protocol: p, Index: i, Symbol: string(c)}
		}
		bases = append(bases, Basis(c-'0'))
	}
	return bases, nil
}

// FormatBases renders bases as a string of digits, the inverse of ParseBases.
func FormatBases(bases []Basis) string {
	var sb strings.Builder
	for _, b := range bases {
		sb.WriteByte('0' + byte(b))
	}
	return sb.String()
}

// ValidateBases checks that every basis belongs to p's alphabet.
func ValidateBases(p Protocol, bases []Basis) error {
	for i, b := range bases {
		if int(b) >= p.Bases() {
			return &InvalidBasisError{Protocol: p, Index: i, Symbol: fmt.Sprint(b)}
		}
	}
	return nil
}

// RandomBases draws n bases uniformly from p's alphabet.
func RandomBases(r *rand.Rand, p Protocol, n int) []Basis {
	bases := make([]Basis, n)
	for i := range bases {
		bases[i] = Basis(r.Intn(p.Bases()))
	}
	return bases
}

// Fingerprint returns a short SHA3-256 digest identifying key, suitable for
// logging and for comparing keys without revealing them.
func Fingerprint(key bitmap.Dense) string {
	h := sha3.New256()
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(key.Size()))
	h.Write(n[:])
	h.Write(key.Data())
	return hex.EncodeToString(h.Sum(nil)[:8])
}

func loggerOr(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return l
}
