package qkd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alan-christopher/qkd/qkd/bitmap"
	"github.com/alan-christopher/qkd/qkd/channel"
	"go.opentelemetry.io/otel/attribute"
)

// B92Opts packages together the inputs of a B92 run. All sequences are
// index-aligned and must have the same length.
type B92Opts struct {
	// Channel prepares and measures the transmitted states. Must be non-nil.
	Channel channel.Channel

	// Bits and SendBases are the sender's bits and bases. Each bit must agree
	// with its basis: 0 is sent as |H> in basis 0, 1 as |+> in basis 1.
	Bits      bitmap.Dense
	SendBases []Basis

	// RecvBases are the receiver's measurement bases.
	RecvBases []Basis

	// Logger receives a summary of the run. Optional.
	Logger *slog.Logger
}

// B92Result is the outcome of a B92 run. Alice and Bob are empty when no
// measurement was conclusive.
type B92Result struct {
	Alice, Bob bitmap.Dense

	// Conclusive lists the positions that produced key bits.
	Conclusive []int

	// SentStates labels the state sent at each position, 'H' or '+'.
	SentStates string

	// Outcomes holds the receiver's raw measurement outcomes.
	Outcomes bitmap.Dense

	Stats Stats
}

// EncodeB92 checks bits against the B92 encoding rule and returns the
// preparation of each position. It fails on the first position whose bit
// cannot be sent in its basis.
func EncodeB92(bits bitmap.Dense, bases []Basis) ([]channel.Transforms, error) {
	if err := checkLengths("B92 bit and basis", bits.Size(), len(bases)); err != nil {
		return nil, err
	}
	if err := ValidateBases(B92, bases); err != nil {
		return nil, err
	}
	prep := make([]channel.Transforms, len(bases))
	for i, b := range bases {
		if bits.Get(i) != (b == 1) {
			return nil, &EncodingInconsistencyError{Index: i, Bit: bits.Get(i), Basis: b}
		}
		prep[i] = clone(b92Preparation[b])
	}
	return prep, nil
}

// MeasureB92 returns the measurement transforms for each receiver basis.
func MeasureB92(bases []Basis) ([]channel.Transforms, error) {
	return measure(B92, bases)
}

// SiftB92 keeps the conclusive positions of a B92 transmission. A position is
// conclusive only when the receiver measured the state sent in basis 0 in
// basis 1 and saw a 1, yielding key bit 0, or measured the state sent in
// basis 1 in basis 0 and saw a 1, yielding key bit 1. Everything else is
// discarded.
func SiftB92(bits bitmap.Dense, sendBases, recvBases []Basis, outcomes bitmap.Dense) (B92Result, error) {
	n := len(sendBases)
	if err := checkLengths("B92 transmission record", bits.Size(), n, len(recvBases), outcomes.Size()); err != nil {
		return B92Result{}, err
	}
	if err := ValidateBases(B92, sendBases); err != nil {
		return B92Result{}, err
	}
	if err := ValidateBases(B92, recvBases); err != nil {
		return B92Result{}, err
	}

	res := B92Result{Outcomes: outcomes}
	states := make([]byte, n)
	for i := 0; i < n; i++ {
		states[i] = b92States[sendBases[i]]
		if !outcomes.Get(i) {
			continue
		}
		var key bool
		switch {
		case states[i] == 'H' && recvBases[i] == 1:
			key = false
		case states[i] == '+' && recvBases[i] == 0:
			key = true
		default:
			continue
		}
		res.Conclusive = append(res.Conclusive, i)
		res.Alice.AppendBit(bits.Get(i))
		res.Bob.AppendBit(key)
	}
	res.SentStates = string(states)
	res.Stats = Stats{
		Transmitted: n,
		Sifted:      len(res.Conclusive),
		QBER:        qber(res.Alice, res.Bob),
		KeysMatch:   bitmap.Equal(res.Alice, res.Bob),
	}
	return res, nil
}

// RunB92 performs one B92 transmission: it validates and encodes the
// sender's input, has the channel prepare and measure every position, and
// sifts the outcomes.
func RunB92(ctx context.Context, opts B92Opts) (res B92Result, err error) {
	if opts.Channel == nil {
		return B92Result{}, errors.New("must provide Channel")
	}
	n := len(opts.SendBases)
	ctx, span, end := startSpan(ctx, "qkd.RunB92", attribute.Int("qkd.transmissions", n))
	defer func() { end(err) }()

	if err := checkLengths("B92 input", opts.Bits.Size(), n, len(opts.RecvBases)); err != nil {
		return B92Result{}, err
	}
	if err := ValidateBases(B92, opts.RecvBases); err != nil {
		return B92Result{}, err
	}
	prep, err := EncodeB92(opts.Bits, opts.SendBases)
	if err != nil {
		return B92Result{}, fmt.Errorf("encoding: %w", err)
	}
	meas, err := MeasureB92(opts.RecvBases)
	if err != nil {
		return B92Result{}, err
	}
	outcomes, err := transmit(ctx, opts.Channel, prep, meas)
	if err != nil {
		return B92Result{}, err
	}
	res, err = SiftB92(opts.Bits, opts.SendBases, opts.RecvBases, outcomes)
	if err != nil {
		return B92Result{}, fmt.Errorf("sifting: %w", err)
	}

	span.SetAttributes(attribute.Int("qkd.sifted", res.Stats.Sifted))
	loggerOr(opts.Logger).Info("b92 run complete",
		"transmissions", n,
		"conclusive", res.Stats.Sifted,
		"keys_match", res.Stats.KeysMatch,
		"alice_key", Fingerprint(res.Alice),
		"bob_key", Fingerprint(res.Bob))
	return res, nil
}

func measure(p Protocol, bases []Basis) ([]channel.Transforms, error) {
	meas := make([]channel.Transforms, len(bases))
	for i, b := range bases {
		ts, err := Measurement(p, b, 0)
		if err != nil {
			var ibe *InvalidBasisError
			if errors.As(err, &ibe) {
				ibe.Index = i
			}
			return nil, err
		}
		meas[i] = ts
	}
	return meas, nil
}

// transmit sends one single-qubit carrier per position through ch and
// returns the outcomes indexed by position.
func transmit(ctx context.Context, ch channel.Channel, prep, meas []channel.Transforms) (bitmap.Dense, error) {
	res, err := ch.PrepareAndMeasure(ctx, prep, meas)
	if err != nil {
		return bitmap.Empty(), fmt.Errorf("quantum channel: %w", err)
	}
	outcomes, err := res.Positional()
	if err != nil {
		return bitmap.Empty(), fmt.Errorf("quantum channel: %w", err)
	}
	if outcomes.Size() != len(prep) {
		return bitmap.Empty(), fmt.Errorf("quantum channel returned %d outcomes for %d carriers", outcomes.Size(), len(prep))
	}
	return outcomes, nil
}
