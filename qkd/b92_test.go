package qkd

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"github.com/alan-christopher/qkd/qkd/bitmap"
	"github.com/alan-christopher/qkd/qkd/channel"
)

func TestEncodeB92(t *testing.T) {
	prep, err := EncodeB92(mustDense(t, "0110"), mustBases(t, B92, "0110"))
	if err != nil {
		t.Fatalf("EncodeB92: %v", err)
	}
	want := []channel.Transforms{nil, {h}, {h}, nil}
	if !reflect.DeepEqual(prep, want) {
		t.Errorf("EncodeB92 == %v, want %v", prep, want)
	}
}

func TestEncodeB92ValidInputsNeverFail(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	for trial := 0; trial < 50; trial++ {
		n := 1 + r.Intn(40)
		bases := RandomBases(r, B92, n)
		bits := bitmap.NewDense(nil, n)
		for i, b := range bases {
			bits.Set(i, b == 1)
		}
		prep, err := EncodeB92(bits, bases)
		if err != nil {
			t.Fatalf("EncodeB92(%s, %s): %v", bits, FormatBases(bases), err)
		}
		if len(prep) != n {
			t.Fatalf("EncodeB92 returned %d preparations for %d positions", len(prep), n)
		}
	}
}

func TestEncodeB92Inconsistent(t *testing.T) {
	tcs := []struct {
		name   string
		bits   string
		bases  string
		eindex int
	}{
		{"one in basis zero", "0010", "0000", 2},
		{"zero in basis one", "1101", "1111", 2},
		{"first violation wins", "10", "01", 0},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			_, err := EncodeB92(mustDense(t, tc.bits), mustBases(t, B92, tc.bases))
			var eie *EncodingInconsistencyError
			if !errors.As(err, &eie) {
				t.Fatalf("EncodeB92 error = %v, want EncodingInconsistencyError", err)
			}
			if eie.Index != tc.eindex {
				t.Errorf("violation reported at %d, want %d", eie.Index, tc.eindex)
			}
			if !errors.Is(err, ErrEncodingInconsistency) {
				t.Errorf("error does not match ErrEncodingInconsistency")
			}
		})
	}
}

func TestEncodeB92InvalidBasis(t *testing.T) {
	_, err := EncodeB92(mustDense(t, "00"), []Basis{0, 2})
	if !errors.Is(err, ErrInvalidBasis) {
		t.Errorf("EncodeB92 error = %v, want ErrInvalidBasis", err)
	}
}

func TestSiftB92(t *testing.T) {
	tcs := []struct {
		name                 string
		bits                 string
		sendBases, recvBases string
		outcomes             string
		ealice, ebob         string
		econclusive          []int
		estates              string
	}{
		{
			name: "both conclusive",
			bits: "01", sendBases: "01", recvBases: "10", outcomes: "11",
			ealice: "01", ebob: "01", econclusive: []int{0, 1}, estates: "H+",
		}, {
			name: "zero outcomes are inconclusive",
			bits: "01", sendBases: "01", recvBases: "10", outcomes: "00",
			estates: "H+",
		}, {
			name: "matching bases are inconclusive",
			bits: "0101", sendBases: "0101", recvBases: "0101", outcomes: "1111",
			estates: "H+H+",
		}, {
			name: "mixed",
			bits: "01100", sendBases: "01100", recvBases: "10011", outcomes: "10111",
			ealice: "0100", ebob: "0100", econclusive: []int{0, 2, 3, 4}, estates: "H++HH",
		},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			res, err := SiftB92(mustDense(t, tc.bits), mustBases(t, B92, tc.sendBases),
				mustBases(t, B92, tc.recvBases), mustDense(t, tc.outcomes))
			if err != nil {
				t.Fatalf("SiftB92: %v", err)
			}
			if res.Alice.String() != tc.ealice || res.Bob.String() != tc.ebob {
				t.Errorf("keys (%s, %s), want (%s, %s)", res.Alice, res.Bob, tc.ealice, tc.ebob)
			}
			if !reflect.DeepEqual(res.Conclusive, tc.econclusive) {
				t.Errorf("conclusive %v, want %v", res.Conclusive, tc.econclusive)
			}
			if res.SentStates != tc.estates {
				t.Errorf("sent states %q, want %q", res.SentStates, tc.estates)
			}
		})
	}
}

func TestRunB92Scenario(t *testing.T) {
	ch := channel.NewFixed("11")
	res, err := RunB92(context.Background(), B92Opts{
		Channel:   ch,
		Bits:      mustDense(t, "01"),
		SendBases: []Basis{0, 1},
		RecvBases: []Basis{1, 0},
	})
	if err != nil {
		t.Fatalf("RunB92: %v", err)
	}
	if res.SentStates != "H+" {
		t.Errorf("sent states %q, want H+", res.SentStates)
	}
	if res.Alice.String() != "01" || res.Bob.String() != "01" {
		t.Errorf("keys (%s, %s), want (01, 01)", res.Alice, res.Bob)
	}
	reqs := ch.Requests()
	if len(reqs) != 1 {
		t.Fatalf("channel saw %d requests, want 1", len(reqs))
	}
	wantPrep := []channel.Transforms{nil, {h}}
	wantMeas := []channel.Transforms{{h}, nil}
	if !reflect.DeepEqual(reqs[0].Prep, wantPrep) || !reflect.DeepEqual(reqs[0].Meas, wantMeas) {
		t.Errorf("channel request %+v, want prep %v meas %v", reqs[0], wantPrep, wantMeas)
	}
}

func TestRunB92NoConclusiveEvents(t *testing.T) {
	res, err := RunB92(context.Background(), B92Opts{
		Channel:   channel.NewFixed("000"),
		Bits:      mustDense(t, "011"),
		SendBases: []Basis{0, 1, 1},
		RecvBases: []Basis{1, 0, 0},
	})
	if err != nil {
		t.Fatalf("RunB92: %v", err)
	}
	if res.Alice.Size() != 0 || res.Bob.Size() != 0 || res.Conclusive != nil {
		t.Errorf("got keys (%s, %s), want empty", res.Alice, res.Bob)
	}
}

func TestRunB92InconsistentSkipsChannel(t *testing.T) {
	ch := channel.NewFixed("00")
	_, err := RunB92(context.Background(), B92Opts{
		Channel:   ch,
		Bits:      mustDense(t, "01"),
		SendBases: []Basis{0, 0},
		RecvBases: []Basis{1, 0},
	})
	if !errors.Is(err, ErrEncodingInconsistency) {
		t.Fatalf("RunB92 error = %v, want ErrEncodingInconsistency", err)
	}
	if n := len(ch.Requests()); n != 0 {
		t.Errorf("channel was called %d times after an encoding failure", n)
	}
}

func TestRunB92ChannelFailure(t *testing.T) {
	// An empty script makes the channel fail.
	_, err := RunB92(context.Background(), B92Opts{
		Channel:   channel.NewFixed(),
		Bits:      mustDense(t, "0"),
		SendBases: []Basis{0},
		RecvBases: []Basis{1},
	})
	if err == nil {
		t.Errorf("RunB92 swallowed a channel failure")
	}
}

func TestRunB92Simulated(t *testing.T) {
	r := rand.New(rand.NewSource(21))
	n := 256
	sendBases := RandomBases(r, B92, n)
	bits := bitmap.NewDense(nil, n)
	for i, b := range sendBases {
		bits.Set(i, b == 1)
	}
	res, err := RunB92(context.Background(), B92Opts{
		Channel:   channel.NewSimulated(r),
		Bits:      bits,
		SendBases: sendBases,
		RecvBases: RandomBases(r, B92, n),
	})
	if err != nil {
		t.Fatalf("RunB92: %v", err)
	}
	if res.Stats.Sifted == 0 {
		t.Fatalf("no conclusive events in %d transmissions", n)
	}
	if !res.Stats.KeysMatch || res.Stats.QBER != 0 {
		t.Errorf("conclusive keys disagree over a noiseless channel: %s vs %s", res.Alice, res.Bob)
	}
}
