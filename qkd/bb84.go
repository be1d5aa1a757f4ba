package qkd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/alan-christopher/qkd/qkd/bitmap"
	"github.com/alan-christopher/qkd/qkd/channel"
	"go.opentelemetry.io/otel/attribute"
	"gonum.org/v1/gonum/stat"
)

// BB84Opts packages together the inputs of a BB84 run. All sequences are
// index-aligned and must have the same length.
type BB84Opts struct {
	// Channel prepares and measures the transmitted states. Must be non-nil.
	Channel channel.Channel

	// Bits and SendBases are the sender's bits and bases.
	Bits      bitmap.Dense
	SendBases []Basis

	// RecvBases are the receiver's measurement bases.
	RecvBases []Basis

	// Noise perturbs each measurement outcome before sifting.
	Noise Noise

	// Rand drives the noise model. This may use pRNG for experimental and/or
	// testing purposes. Must be non-nil.
	Rand *rand.Rand

	// Logger receives a summary of the run. Optional.
	Logger *slog.Logger
}

// BB84Result is the outcome of a BB84 run.
type BB84Result struct {
	Alice, Bob bitmap.Dense

	// Outcomes holds the receiver's outcomes, indexed by position, after
	// noise was applied.
	Outcomes bitmap.Dense

	Stats Stats
}

// EncodeBB84 returns the preparation of each bit in its basis.
func EncodeBB84(bits bitmap.Dense, bases []Basis) ([]channel.Transforms, error) {
	if err := checkLengths("BB84 bit and basis", bits.Size(), len(bases)); err != nil {
		return nil, err
	}
	if err := ValidateBases(BB84, bases); err != nil {
		return nil, err
	}
	prep := make([]channel.Transforms, len(bases))
	for i, b := range bases {
		prep[i] = clone(bb84Preparation[b][bitIndex(bits.Get(i))])
	}
	return prep, nil
}

// MeasureBB84 returns the measurement transforms for each receiver basis.
func MeasureBB84(bases []Basis) ([]channel.Transforms, error) {
	return measure(BB84, bases)
}

// RunBB84 performs one BB84 transmission: it prepares the sender's bits,
// has the channel measure them in the receiver's bases, passes every outcome
// through the noise model and reconciles the two parties' bases.
//
// No error correction is attempted, so with noise the sifted keys may
// legitimately differ; Stats.QBER reports by how much.
func RunBB84(ctx context.Context, opts BB84Opts) (res BB84Result, err error) {
	if opts.Channel == nil {
		return BB84Result{}, errors.New("must provide Channel")
	}
	if opts.Rand == nil {
		return BB84Result{}, errors.New("must provide Rand")
	}
	n := len(opts.SendBases)
	ctx, span, end := startSpan(ctx, "qkd.RunBB84",
		attribute.Int("qkd.transmissions", n),
		attribute.Float64("qkd.noise", opts.Noise.Probability()))
	defer func() { end(err) }()

	if err := checkLengths("BB84 input", opts.Bits.Size(), n, len(opts.RecvBases)); err != nil {
		return BB84Result{}, err
	}
	prep, err := EncodeBB84(opts.Bits, opts.SendBases)
	if err != nil {
		return BB84Result{}, fmt.Errorf("encoding: %w", err)
	}
	meas, err := MeasureBB84(opts.RecvBases)
	if err != nil {
		return BB84Result{}, err
	}
	outcomes, err := transmit(ctx, opts.Channel, prep, meas)
	if err != nil {
		return BB84Result{}, err
	}
	for i := 0; i < outcomes.Size(); i++ {
		outcomes.Set(i, opts.Noise.Apply(opts.Rand, outcomes.Get(i)))
	}
	alice, bob, err := Reconcile(opts.SendBases, opts.RecvBases, opts.Bits, outcomes)
	if err != nil {
		return BB84Result{}, fmt.Errorf("reconciling: %w", err)
	}

	res = BB84Result{
		Alice:    alice,
		Bob:      bob,
		Outcomes: outcomes,
		Stats: Stats{
			Transmitted: n,
			Sifted:      alice.Size(),
			QBER:        qber(alice, bob),
			KeysMatch:   bitmap.Equal(alice, bob),
		},
	}
	span.SetAttributes(
		attribute.Int("qkd.sifted", res.Stats.Sifted),
		attribute.Float64("qkd.qber", res.Stats.QBER))
	loggerOr(opts.Logger).Info("bb84 run complete",
		"transmissions", n,
		"sifted", res.Stats.Sifted,
		"qber", res.Stats.QBER,
		"alice_key", Fingerprint(alice),
		"bob_key", Fingerprint(bob))
	return res, nil
}

// qber returns the fraction of positions at which a and b disagree, or 0 for
// empty keys.
func qber(a, b bitmap.Dense) float64 {
	if a.Size() == 0 {
		return 0
	}
	diffs := make([]float64, a.Size())
	for i := range diffs {
		if a.Get(i) != b.Get(i) {
			diffs[i] = 1
		}
	}
	return stat.Mean(diffs, nil)
}
