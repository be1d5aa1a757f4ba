package channel

import (
	"context"
	"errors"
	"math/rand"
	"testing"
)

func TestWidth(t *testing.T) {
	tcs := []struct {
		name       string
		prep, meas Transforms
		ewidth     int
	}{
		{"empty", nil, nil, 1},
		{"single", Transforms{{Gate: H}}, Transforms{{Gate: H}}, 1},
		{"pair", Transforms{{Gate: H}, {Gate: CX, Control: 0, Qubit: 1}}, nil, 2},
		{"control only", Transforms{{Gate: CX, Control: 2, Qubit: 0}}, nil, 3},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			if got := Width(tc.prep, tc.meas); got != tc.ewidth {
				t.Errorf("Width() == %d, want %d", got, tc.ewidth)
			}
		})
	}
}

func TestResultPositional(t *testing.T) {
	tcs := []struct {
		name string
		res  Result
		eout string
	}{
		{"positional", Result{Bits: "110", Order: Positional}, "110"},
		{"reversed", Result{Bits: "110", Order: Reversed}, "011"},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			d, err := tc.res.Positional()
			if err != nil {
				t.Fatalf("Positional(): %v", err)
			}
			if d.String() != tc.eout {
				t.Errorf("Positional() == %s, want %s", d, tc.eout)
			}
		})
	}
	if _, err := (Result{Bits: "1?"}).Positional(); err == nil {
		t.Errorf("Positional() accepted a malformed result")
	}
}

func TestSimulatedDeterministicStates(t *testing.T) {
	s := NewSimulated(rand.New(rand.NewSource(1)))
	prep := []Transforms{
		nil,                               // |0>, Z basis
		{{Gate: X}},                       // |1>, Z basis
		{{Gate: H}},                       // |+>, X basis
		{{Gate: H}, {Gate: Z}},            // |->, X basis
		{{Gate: X}, {Gate: H}, {Gate: Z}}, // Z|-> = |+>
	}
	meas := []Transforms{nil, nil, {{Gate: H}}, {{Gate: H}}, {{Gate: H}}}
	for i := 0; i < 20; i++ {
		res, err := s.PrepareAndMeasure(context.Background(), prep, meas)
		if err != nil {
			t.Fatalf("PrepareAndMeasure: %v", err)
		}
		if res.Order != Reversed {
			t.Fatalf("Simulated reported order %v, want Reversed", res.Order)
		}
		d, _ := res.Positional()
		if got, want := d.String(), "01010"; got != want {
			t.Fatalf("outcomes %s, want %s", got, want)
		}
	}
}

func TestSimulatedCircularStates(t *testing.T) {
	s := NewSimulated(rand.New(rand.NewSource(1)))
	// S† H |0> points along -Y; measuring with S† followed by H (the circular
	// basis) after an extra phase flip is deterministic.
	prep := []Transforms{{{Gate: H}, {Gate: Sdg}, {Gate: Sdg}}}
	meas := []Transforms{{{Gate: H}}}
	for i := 0; i < 10; i++ {
		res, err := s.PrepareAndMeasure(context.Background(), prep, meas)
		if err != nil {
			t.Fatalf("PrepareAndMeasure: %v", err)
		}
		if res.Bits != "1" {
			t.Fatalf("S†S†H|0> = |-> measured %s in X basis, want 1", res.Bits)
		}
	}
}

func TestSimulatedConjugateBasisIsRandom(t *testing.T) {
	s := NewSimulated(rand.New(rand.NewSource(3)))
	n := 400
	prep := make([]Transforms, n)
	meas := make([]Transforms, n)
	for i := range prep {
		prep[i] = Transforms{{Gate: H}}
	}
	res, err := s.PrepareAndMeasure(context.Background(), prep, meas)
	if err != nil {
		t.Fatalf("PrepareAndMeasure: %v", err)
	}
	ones := 0
	for _, c := range res.Bits {
		if c == '1' {
			ones++
		}
	}
	if ones < n/4 || ones > 3*n/4 {
		t.Errorf("measuring |+> in Z basis gave %d/%d ones", ones, n)
	}
}

func TestSimulatedUnsupported(t *testing.T) {
	s := NewSimulated(rand.New(rand.NewSource(1)))
	tcs := []struct {
		name string
		prep Transforms
	}{
		{"rotation", Transforms{{Gate: RY, Angle: 0.3}}},
		{"entangling", Transforms{{Gate: H}, {Gate: CX, Control: 0, Qubit: 1}}},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.PrepareAndMeasure(context.Background(), []Transforms{tc.prep}, []Transforms{nil})
			if !errors.Is(err, ErrUnsupported) {
				t.Errorf("got error %v, want ErrUnsupported", err)
			}
		})
	}
}

func TestCountMismatch(t *testing.T) {
	s := NewSimulated(rand.New(rand.NewSource(1)))
	if _, err := s.PrepareAndMeasure(context.Background(), make([]Transforms, 2), make([]Transforms, 3)); err == nil {
		t.Errorf("mismatched request accepted")
	}
}

func TestFixed(t *testing.T) {
	f := NewFixed("01", "1")
	ctx := context.Background()
	res, err := f.PrepareAndMeasure(ctx, make([]Transforms, 2), make([]Transforms, 2))
	if err != nil || res.Bits != "01" {
		t.Fatalf("first call == (%v, %v), want 01", res, err)
	}
	if _, err := f.PrepareAndMeasure(ctx, make([]Transforms, 2), make([]Transforms, 2)); err == nil {
		t.Errorf("outcome of the wrong width accepted")
	}
	if _, err := f.PrepareAndMeasure(ctx, make([]Transforms, 1), make([]Transforms, 1)); err == nil {
		t.Errorf("call past the script succeeded")
	}
	if got := len(f.Requests()); got != 3 {
		t.Errorf("recorded %d requests, want 3", got)
	}
}

func TestLink(t *testing.T) {
	sender, receiver := NewLink(NewSimulated(rand.New(rand.NewSource(1))), 0)
	ctx := context.Background()
	errc := make(chan error, 1)
	go func() { errc <- sender.Send(ctx, []Transforms{{{Gate: X}}, nil}) }()
	res, err := receiver.Receive(ctx, []Transforms{nil, nil})
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("Send: %v", err)
	}
	d, _ := res.Positional()
	if d.String() != "10" {
		t.Errorf("received %s, want 10", d)
	}
}

func TestLinkCancelled(t *testing.T) {
	_, receiver := NewLink(NewFixed(), 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := receiver.Receive(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Receive on a cancelled context returned %v", err)
	}
}
