package qkd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"

	"github.com/alan-christopher/qkd/qkd/bitmap"
	"github.com/alan-christopher/qkd/qkd/channel"
	"go.opentelemetry.io/otel/attribute"
	"gonum.org/v1/gonum/stat"
)

// ClassicalBound is the largest Bell statistic classical correlations can
// produce.
const ClassicalBound = 2.0

// A BellState names one of the four maximally entangled two-qubit states.
type BellState int

const (
	PhiPlus BellState = iota + 1
	PhiMinus
	PsiPlus
	PsiMinus
)

// DefaultBellState is the state E91 pairs are prepared in unless configured
// otherwise.
const DefaultBellState = PsiMinus

var bellStateNames = map[BellState]string{
	PhiPlus:  "phi_plus",
	PhiMinus: "phi_minus",
	PsiPlus:  "psi_plus",
	PsiMinus: "psi_minus",
}

func (s BellState) String() string {
	if name, ok := bellStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("BellState(%d)", int(s))
}

// ParseBellState converts a name such as "psi_minus" to a BellState. The
// empty string selects DefaultBellState.
func ParseBellState(name string) (BellState, error) {
	if name == "" {
		return DefaultBellState, nil
	}
	for s, n := range bellStateNames {
		if strings.EqualFold(n, name) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown bell state %q, want one of phi_plus, phi_minus, psi_plus, psi_minus", name)
}

// A Setting is one party's half of a Bell test sample: the basis it measured
// in and the outcome it saw.
type Setting struct {
	Basis   Basis
	Outcome bool
}

// A Sample is the pair of measurements taken on one entangled pair.
type Sample struct {
	Alice, Bob Setting
}

// Correlated reports whether a pair of bases contributes to the Bell
// statistic: any two different E91 bases do.
func Correlated(a, b Basis) bool {
	return a != b && int(a) < E91.Bases() && int(b) < E91.Bases()
}

// CHSH estimates a Bell statistic from samples. Outcomes 0 and 1 map to +1
// and -1; the products of samples measured in correlated bases are averaged
// and scaled by √2. Without any correlated sample the statistic is 0.
//
// This is a rough stand-in for the four-setting CHSH combination: its
// magnitude never exceeds √2.
func CHSH(samples []Sample) float64 {
	var products []float64
	for _, s := range samples {
		if !Correlated(s.Alice.Basis, s.Bob.Basis) {
			continue
		}
		products = append(products, spin(s.Alice.Outcome)*spin(s.Bob.Outcome))
	}
	if len(products) == 0 {
		return 0
	}
	return stat.Mean(products, nil) * math.Sqrt2
}

func spin(outcome bool) float64 {
	if outcome {
		return -1
	}
	return 1
}

// E91Opts packages together the inputs of an E91 run.
type E91Opts struct {
	// Samples are the Bell test measurements of the run.
	Samples []Sample

	// Bound is the threshold the Bell statistic must exceed. Defaults to
	// ClassicalBound.
	Bound float64

	// Rand draws the key bits. Must be non-nil.
	Rand *rand.Rand

	// Logger receives a summary of the run. Optional.
	Logger *slog.Logger
}

// E91Result is the outcome of an E91 run. Alice and Bob are empty unless the
// Bell statistic exceeded the bound.
type E91Result struct {
	Alice, Bob bitmap.Dense

	// Statistic is the estimated Bell statistic.
	Statistic float64

	// Violated reports whether |Statistic| exceeded the bound, i.e. whether
	// the correlations are too strong for a classical eavesdropper.
	Violated bool

	// Hypothetical is set when the key was drawn from Rand rather than
	// derived from measurement outcomes, which is always the case for now.
	Hypothetical bool

	Stats Stats
}

// RunE91 evaluates the Bell test over opts.Samples. If the statistic exceeds
// the bound the parties keep a key of len(Samples)/2 bits; otherwise they
// assume an eavesdropper and keep nothing.
func RunE91(ctx context.Context, opts E91Opts) (res E91Result, err error) {
	if opts.Rand == nil {
		return E91Result{}, errors.New("must provide Rand")
	}
	bound := opts.Bound
	if bound == 0 {
		bound = ClassicalBound
	}
	_, span, end := startSpan(ctx, "qkd.RunE91", attribute.Int("qkd.samples", len(opts.Samples)))
	defer func() { end(err) }()

	for i, s := range opts.Samples {
		for _, b := range []Basis{s.Alice.Basis, s.Bob.Basis} {
			if int(b) >= E91.Bases() {
				return E91Result{}, &InvalidBasisError{Protocol: E91, Index: i, Symbol: fmt.Sprint(b)}
			}
		}
	}

	res.Statistic = CHSH(opts.Samples)
	res.Violated = math.Abs(res.Statistic) > bound
	if res.Violated {
		// TODO: derive the key from outcomes measured in matching bases
		// instead of drawing it.
		key := bitmap.Random(opts.Rand, len(opts.Samples)/2)
		res.Alice = key
		res.Bob = bitmap.NewDense(key.Data(), key.Size())
		res.Hypothetical = true
	}
	res.Stats = Stats{
		Transmitted: len(opts.Samples),
		Sifted:      res.Alice.Size(),
		KeysMatch:   bitmap.Equal(res.Alice, res.Bob),
	}

	span.SetAttributes(
		attribute.Float64("qkd.bell_statistic", res.Statistic),
		attribute.Bool("qkd.bell_violated", res.Violated))
	loggerOr(opts.Logger).Info("e91 run complete",
		"samples", len(opts.Samples),
		"statistic", res.Statistic,
		"bound", bound,
		"violated", res.Violated,
		"key", Fingerprint(res.Alice))
	return res, nil
}

// CollectSamples measures one entangled pair per position through ch: each
// pair is prepared in state, Alice measures qubit 0 in aliceBases[i] and Bob
// qubit 1 in bobBases[i].
func CollectSamples(ctx context.Context, ch channel.Channel, state BellState, aliceBases, bobBases []Basis) ([]Sample, error) {
	if err := checkLengths("E91 basis", len(aliceBases), len(bobBases)); err != nil {
		return nil, err
	}
	pair, err := BellPreparation(state)
	if err != nil {
		return nil, err
	}
	prep := make([]channel.Transforms, len(aliceBases))
	meas := make([]channel.Transforms, len(aliceBases))
	for i := range aliceBases {
		a, err := Measurement(E91, aliceBases[i], 0)
		if err != nil {
			return nil, fmt.Errorf("alice basis at position %d: %w", i, err)
		}
		b, err := Measurement(E91, bobBases[i], 1)
		if err != nil {
			return nil, fmt.Errorf("bob basis at position %d: %w", i, err)
		}
		prep[i] = clone(pair)
		meas[i] = append(a, b...)
	}
	res, err := ch.PrepareAndMeasure(ctx, prep, meas)
	if err != nil {
		return nil, fmt.Errorf("quantum channel: %w", err)
	}
	outcomes, err := res.Positional()
	if err != nil {
		return nil, fmt.Errorf("quantum channel: %w", err)
	}
	if outcomes.Size() != 2*len(aliceBases) {
		return nil, fmt.Errorf("quantum channel returned %d outcomes for %d pairs", outcomes.Size(), len(aliceBases))
	}
	samples := make([]Sample, len(aliceBases))
	for i := range samples {
		samples[i] = Sample{
			Alice: Setting{Basis: aliceBases[i], Outcome: outcomes.Get(2 * i)},
			Bob:   Setting{Basis: bobBases[i], Outcome: outcomes.Get(2*i + 1)},
		}
	}
	return samples, nil
}
