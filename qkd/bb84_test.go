package qkd

import (
	"context"
	"math/rand"
	"reflect"
	"testing"

	"github.com/alan-christopher/qkd/qkd/bitmap"
	"github.com/alan-christopher/qkd/qkd/channel"
)

func TestEncodeBB84(t *testing.T) {
	prep, err := EncodeBB84(mustDense(t, "0101"), mustBases(t, BB84, "0011"))
	if err != nil {
		t.Fatalf("EncodeBB84: %v", err)
	}
	want := []channel.Transforms{nil, {x}, {h}, {h, z}}
	if !reflect.DeepEqual(prep, want) {
		t.Errorf("EncodeBB84 == %v, want %v", prep, want)
	}
}

func TestMeasureBB84(t *testing.T) {
	meas, err := MeasureBB84(mustBases(t, BB84, "10"))
	if err != nil {
		t.Fatalf("MeasureBB84: %v", err)
	}
	want := []channel.Transforms{{h}, nil}
	if !reflect.DeepEqual(meas, want) {
		t.Errorf("MeasureBB84 == %v, want %v", meas, want)
	}
}

func TestRunBB84NoiselessKeysAgree(t *testing.T) {
	for _, seed := range []int64{1, 2, 3, 42} {
		for _, n := range []int{1, 7, 64, 300} {
			r := rand.New(rand.NewSource(seed))
			res, err := RunBB84(context.Background(), BB84Opts{
				Channel:   channel.NewSimulated(r),
				Bits:      bitmap.Random(r, n),
				SendBases: RandomBases(r, BB84, n),
				RecvBases: RandomBases(r, BB84, n),
				Rand:      r,
			})
			if err != nil {
				t.Fatalf("seed %d, n %d: RunBB84: %v", seed, n, err)
			}
			if !bitmap.Equal(res.Alice, res.Bob) {
				t.Errorf("seed %d, n %d: keys differ: %s vs %s", seed, n, res.Alice, res.Bob)
			}
			if res.Stats.QBER != 0 || !res.Stats.KeysMatch {
				t.Errorf("seed %d, n %d: stats %+v, want perfect agreement", seed, n, res.Stats)
			}
			if res.Stats.Transmitted != n {
				t.Errorf("seed %d, n %d: transmitted %d", seed, n, res.Stats.Transmitted)
			}
		}
	}
}

func TestRunBB84FullNoiseComplements(t *testing.T) {
	r := rand.New(rand.NewSource(9))
	n := 128
	noise, err := NewNoise(1)
	if err != nil {
		t.Fatalf("NewNoise: %v", err)
	}
	res, err := RunBB84(context.Background(), BB84Opts{
		Channel:   channel.NewSimulated(r),
		Bits:      bitmap.Random(r, n),
		SendBases: RandomBases(r, BB84, n),
		RecvBases: RandomBases(r, BB84, n),
		Noise:     noise,
		Rand:      r,
	})
	if err != nil {
		t.Fatalf("RunBB84: %v", err)
	}
	if res.Alice.Size() == 0 {
		t.Fatalf("no matching bases in %d transmissions", n)
	}
	for i := 0; i < res.Alice.Size(); i++ {
		if res.Alice.Get(i) == res.Bob.Get(i) {
			t.Fatalf("sifted bit %d survived certain noise: %s vs %s", i, res.Alice, res.Bob)
		}
	}
	if res.Stats.QBER != 1 {
		t.Errorf("QBER = %v, want 1", res.Stats.QBER)
	}
}

func TestRunBB84ReversedChannel(t *testing.T) {
	ch := channel.NewFixed("011")
	ch.Order = channel.Reversed
	res, err := RunBB84(context.Background(), BB84Opts{
		Channel:   ch,
		Bits:      mustDense(t, "110"),
		SendBases: mustBases(t, BB84, "010"),
		RecvBases: mustBases(t, BB84, "010"),
		Rand:      rand.New(rand.NewSource(0)),
	})
	if err != nil {
		t.Fatalf("RunBB84: %v", err)
	}
	if got := res.Outcomes.String(); got != "110" {
		t.Errorf("outcomes %s, want 110", got)
	}
	if res.Bob.String() != "110" || !res.Stats.KeysMatch {
		t.Errorf("bob's key %s, want 110", res.Bob)
	}
}

func TestRunBB84RejectsBadOpts(t *testing.T) {
	r := rand.New(rand.NewSource(0))
	good := BB84Opts{
		Channel:   channel.NewSimulated(r),
		Bits:      mustDense(t, "01"),
		SendBases: mustBases(t, BB84, "01"),
		RecvBases: mustBases(t, BB84, "01"),
		Rand:      r,
	}
	tcs := []struct {
		name   string
		mutate func(o *BB84Opts)
	}{
		{"no channel", func(o *BB84Opts) { o.Channel = nil }},
		{"no rand", func(o *BB84Opts) { o.Rand = nil }},
		{"short bits", func(o *BB84Opts) { o.Bits = mustDense(t, "0") }},
		{"short receiver bases", func(o *BB84Opts) { o.RecvBases = mustBases(t, BB84, "0") }},
		{"bad basis", func(o *BB84Opts) { o.SendBases = []Basis{0, 2} }},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			opts := good
			tc.mutate(&opts)
			if _, err := RunBB84(context.Background(), opts); err == nil {
				t.Errorf("RunBB84 accepted %s", tc.name)
			}
		})
	}
}
