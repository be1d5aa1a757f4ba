package qkd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"

	"github.com/alan-christopher/qkd/qkd/bitmap"
	"github.com/alan-christopher/qkd/qkd/channel"
	"go.opentelemetry.io/otel/attribute"
)

// A Peer represents one of the two legitimate participants in a BB84 key
// exchange.
type Peer interface {
	// NegotiateKey performs one round of BB84: quantum transmission, basis
	// announcement, sifting, and a confirmation of whether the two sifted
	// keys agree.
	NegotiateKey(ctx context.Context) (bitmap.Dense, Stats, error)
}

// A PeerOpts packages together the arguments necessary to construct a new
// Peer.
type PeerOpts struct {
	// Sender/Receiver is responsible for preparing/measuring qubits. Exactly
	// one must be non-nil.
	Sender   channel.Sender
	Receiver channel.Receiver

	// ClassicalChannel carries basis announcements between the peers. Must
	// be non-nil.
	ClassicalChannel io.ReadWriter

	// Rand provides a source of randomness for bits, bases and noise. Must be
	// non-nil.
	Rand *rand.Rand

	// Transmissions specifies the number of qubits exchanged per call to
	// NegotiateKey. Defaults to DefaultTransmissions, or to the length of
	// Bases when Bases is set.
	Transmissions int

	// Bits and Bases fix this peer's choices instead of drawing them from
	// Rand. Bits is only meaningful for the sender.
	Bits  bitmap.Dense
	Bases []Basis

	// Noise perturbs the receiver's outcomes. Ignored for the sender.
	Noise Noise

	// Logger receives a summary of each negotiation. Optional.
	Logger *slog.Logger
}

// NewPeer returns a new Peer, configured in accordance with opts, or an error
// if the options are nonsensical.
func NewPeer(opts PeerOpts) (Peer, error) {
	if (opts.Sender == nil) == (opts.Receiver == nil) {
		return nil, errors.New("exactly one of {Sender, Receiver} must be specified")
	}
	if opts.ClassicalChannel == nil {
		return nil, errors.New("must provide ClassicalChannel")
	}
	if opts.Rand == nil {
		return nil, errors.New("must provide Rand")
	}
	n := opts.Transmissions
	if n == 0 {
		n = DefaultTransmissions
		if opts.Bases != nil {
			n = len(opts.Bases)
		}
	}
	if n < 0 {
		return nil, fmt.Errorf("transmissions must be positive, got %d", n)
	}
	if opts.Bases != nil {
		if err := checkLengths("peer basis", len(opts.Bases), n); err != nil {
			return nil, err
		}
		if err := ValidateBases(BB84, opts.Bases); err != nil {
			return nil, err
		}
	}
	if opts.Sender != nil && opts.Bits.Size() > 0 {
		if err := checkLengths("peer bit", opts.Bits.Size(), n); err != nil {
			return nil, err
		}
	}

	c := common{
		sideChannel: &framer{rw: opts.ClassicalChannel},
		rand:        opts.Rand,
		n:           n,
		bases:       opts.Bases,
		logger:      loggerOr(opts.Logger),
	}
	if opts.Sender != nil {
		return &alice{common: c, sender: opts.Sender, bits: opts.Bits}, nil
	}
	return &bob{common: c, receiver: opts.Receiver, noise: opts.Noise}, nil
}

type common struct {
	sideChannel *framer
	rand        *rand.Rand
	n           int
	bases       []Basis
	logger      *slog.Logger
}

// An alice represents the first BB84 participant.
type alice struct {
	common
	sender channel.Sender
	bits   bitmap.Dense
}

// A bob represents the second BB84 participant.
type bob struct {
	common
	receiver channel.Receiver
	noise    Noise
}

func (c *common) chooseBases() []Basis {
	if c.bases != nil {
		return c.bases
	}
	return RandomBases(c.rand, BB84, c.n)
}

// NegotiateKey implements the Peer interface.
func (a *alice) NegotiateKey(ctx context.Context) (key bitmap.Dense, stats Stats, err error) {
	ctx, _, end := startSpan(ctx, "qkd.alice.NegotiateKey", attribute.Int("qkd.transmissions", a.n))
	defer func() { end(err) }()

	bits, bases, err := a.sendQBits(ctx)
	if err != nil {
		return
	}
	stats.Transmitted = bits.Size()
	key, err = a.sift(bits, bases, &stats)
	if err != nil {
		return
	}
	stats.KeysMatch, err = a.confirm(key, &stats)
	if err != nil {
		return
	}
	a.logger.Info("bb84 negotiation complete", "role", "alice",
		"sifted", stats.Sifted, "keys_match", stats.KeysMatch, "key", Fingerprint(key))
	return
}

// NegotiateKey implements the Peer interface.
func (b *bob) NegotiateKey(ctx context.Context) (key bitmap.Dense, stats Stats, err error) {
	ctx, _, end := startSpan(ctx, "qkd.bob.NegotiateKey", attribute.Int("qkd.transmissions", b.n))
	defer func() { end(err) }()

	bits, bases, err := b.receiveQBits(ctx)
	if err != nil {
		return
	}
	stats.Transmitted = bits.Size()
	key, err = b.sift(bits, bases, &stats)
	if err != nil {
		return
	}
	stats.KeysMatch, err = b.confirm(key, &stats)
	if err != nil {
		return
	}
	b.logger.Info("bb84 negotiation complete", "role", "bob",
		"sifted", stats.Sifted, "keys_match", stats.KeysMatch, "key", Fingerprint(key))
	return
}

func (a *alice) sendQBits(ctx context.Context) (bits bitmap.Dense, bases []Basis, err error) {
	bits = a.bits
	if bits.Size() == 0 {
		bits = bitmap.Random(a.rand, a.n)
	}
	bases = a.chooseBases()
	prep, err := EncodeBB84(bits, bases)
	if err != nil {
		return bitmap.Empty(), nil, err
	}
	if err := a.sender.Send(ctx, prep); err != nil {
		return bitmap.Empty(), nil, fmt.Errorf("sending qubits: %w", err)
	}
	return bits, bases, nil
}

func (b *bob) receiveQBits(ctx context.Context) (bits bitmap.Dense, bases []Basis, err error) {
	bases = b.chooseBases()
	meas, err := MeasureBB84(bases)
	if err != nil {
		return bitmap.Empty(), nil, err
	}
	res, err := b.receiver.Receive(ctx, meas)
	if err != nil {
		return bitmap.Empty(), nil, fmt.Errorf("receiving qubits: %w", err)
	}
	bits, err = res.Positional()
	if err != nil {
		return bitmap.Empty(), nil, fmt.Errorf("receiving qubits: %w", err)
	}
	if bits.Size() != len(bases) {
		return bitmap.Empty(), nil, fmt.Errorf("received %d outcomes for %d bases", bits.Size(), len(bases))
	}
	for i := 0; i < bits.Size(); i++ {
		bits.Set(i, b.noise.Apply(b.rand, bits.Get(i)))
	}
	return bits, bases, nil
}

func (a *alice) sift(bits bitmap.Dense, bases []Basis, s *Stats) (bitmap.Dense, error) {
	bba := new(basisAnnouncement)
	if err := a.sideChannel.Read(bba, s); err != nil {
		return bitmap.Empty(), fmt.Errorf("receiving basis announcement: %w", err)
	}
	if err := a.sideChannel.Write(&basisAnnouncement{bases: bases}, s); err != nil {
		return bitmap.Empty(), fmt.Errorf("announcing bases: %w", err)
	}
	if err := ValidateBases(BB84, bba.bases); err != nil {
		return bitmap.Empty(), fmt.Errorf("bob's announcement: %w", err)
	}
	sifted, _, err := Reconcile(bases, bba.bases, bits, bits)
	if err != nil {
		return bitmap.Empty(), err
	}
	s.Sifted = sifted.Size()
	return sifted, nil
}

func (b *bob) sift(bits bitmap.Dense, bases []Basis, s *Stats) (bitmap.Dense, error) {
	if err := b.sideChannel.Write(&basisAnnouncement{bases: bases}, s); err != nil {
		return bitmap.Empty(), fmt.Errorf("sending basis announcement: %w", err)
	}
	aba := new(basisAnnouncement)
	if err := b.sideChannel.Read(aba, s); err != nil {
		return bitmap.Empty(), fmt.Errorf("receiving bases: %w", err)
	}
	if err := ValidateBases(BB84, aba.bases); err != nil {
		return bitmap.Empty(), fmt.Errorf("alice's announcement: %w", err)
	}
	_, sifted, err := Reconcile(aba.bases, bases, bits, bits)
	if err != nil {
		return bitmap.Empty(), err
	}
	s.Sifted = sifted.Size()
	return sifted, nil
}

func (a *alice) confirm(key bitmap.Dense, s *Stats) (bool, error) {
	mine := &keyConfirmation{fingerprint: Fingerprint(key), size: uint64(key.Size())}
	if err := a.sideChannel.Write(mine, s); err != nil {
		return false, fmt.Errorf("sending key confirmation: %w", err)
	}
	theirs := new(keyConfirmation)
	if err := a.sideChannel.Read(theirs, s); err != nil {
		return false, fmt.Errorf("receiving key confirmation: %w", err)
	}
	return *mine == *theirs, nil
}

func (b *bob) confirm(key bitmap.Dense, s *Stats) (bool, error) {
	theirs := new(keyConfirmation)
	if err := b.sideChannel.Read(theirs, s); err != nil {
		return false, fmt.Errorf("receiving key confirmation: %w", err)
	}
	mine := &keyConfirmation{fingerprint: Fingerprint(key), size: uint64(key.Size())}
	if err := b.sideChannel.Write(mine, s); err != nil {
		return false, fmt.Errorf("sending key confirmation: %w", err)
	}
	return *mine == *theirs, nil
}
