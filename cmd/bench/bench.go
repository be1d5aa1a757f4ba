// bench.go runs a round of two-party BB84 key negotiation for each entry in
// the cartesian product of a collection of tuning parameters, e.g. noise
// probability and qubits exchanged, and outputs a CSV of relevant statistics
// for each combination, e.g. messages exchanged and sifted key length.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net"
	"os"
	"strings"
	"text/template"

	"github.com/alan-christopher/qkd/qkd"
	"github.com/alan-christopher/qkd/qkd/bitmap"
	"github.com/alan-christopher/qkd/qkd/channel"
	flag "github.com/spf13/pflag"
)

var (
	n     = flag.IntSlice("n", []int{qkd.DefaultTransmissions}, "The qubits to exchange during a round of key negotiation.")
	noise = flag.Float64Slice("noise", []float64{0}, "The probability that Bob's measurement outcomes flip.")
	seed  = flag.IntSlice("seed", []int{42}, "Seeds for the peers' and channel's randomness.")
)

var (
	inputs  = []string{"n", "noise", "seed"}
	columns = []string{"N", "Noise", "Seed", "KeyBits", "EmpiricalQBER",
		"AliceMessages", "BobMessages", "AliceClassicalBytes", "BobClassicalBytes",
		"KeysMatch", "Succeeded"}
)

// An Experiment packages together the result of benchmarking a single
// parameterization for easy formatting.
type Experiment struct {
	// Fields corresponding to experiment parameters
	N     int
	Noise float64
	Seed  int64

	// Fields corresponding to experiment results
	KeyBits             int
	EmpiricalQBER       float64
	AliceMessages       int
	BobMessages         int
	AliceClassicalBytes int
	BobClassicalBytes   int
	KeysMatch           bool
	Succeeded           bool
}

func main() {
	flag.Parse()
	fmt.Println(header())
	tmpl := template.Must(template.New("line").Parse(lineTmpl()))
	var args [][]interface{}
	for _, inp := range inputs {
		args = append(args, lookupInput(inp))
	}
	applyCartesian(func(args []interface{}) {
		exp := &Experiment{
			N:     args[inpIndex("n")].(int),
			Noise: args[inpIndex("noise")].(float64),
			Seed:  int64(args[inpIndex("seed")].(int)),
		}
		if err := bench(context.Background(), exp); err != nil {
			log.Printf("Benching %v: %v", exp, err)
		}
		if err := tmpl.Execute(os.Stdout, exp); err != nil {
			log.Fatalf("BUG: could not fill in line template: %v", err)
		}
	}, args)
}

func inpIndex(v string) int {
	for i, inp := range inputs {
		if inp == v {
			return i
		}
	}
	return -1
}

type negotiationResult struct {
	key   bitmap.Dense
	stats qkd.Stats
	err   error
}

func bench(ctx context.Context, exp *Experiment) error {
	nm, err := qkd.NewNoise(exp.Noise)
	if err != nil {
		return err
	}
	l, r := net.Pipe()
	defer l.Close()
	defer r.Close()
	sender, receiver := channel.NewLink(channel.NewSimulated(rand.New(rand.NewSource(exp.Seed+2))), 1)
	a, err := qkd.NewPeer(qkd.PeerOpts{
		Sender:           sender,
		ClassicalChannel: l,
		Rand:             rand.New(rand.NewSource(exp.Seed)),
		Transmissions:    exp.N,
	})
	if err != nil {
		return err
	}
	b, err := qkd.NewPeer(qkd.PeerOpts{
		Receiver:         receiver,
		ClassicalChannel: r,
		Rand:             rand.New(rand.NewSource(exp.Seed + 1)),
		Transmissions:    exp.N,
		Noise:            nm,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	aResCh := make(chan negotiationResult, 1)
	bResCh := make(chan negotiationResult, 1)
	go func() {
		k, s, err := a.NegotiateKey(ctx)
		aResCh <- negotiationResult{k, s, err}
	}()
	go func() {
		k, s, err := b.NegotiateKey(ctx)
		bResCh <- negotiationResult{k, s, err}
	}()

	// A failed peer stops talking, so hang up on the other one.
	var aRes, bRes negotiationResult
	select {
	case aRes = <-aResCh:
		if aRes.err != nil {
			cancel()
			l.Close()
		}
		bRes = <-bResCh
	case bRes = <-bResCh:
		if bRes.err != nil {
			cancel()
			r.Close()
		}
		aRes = <-aResCh
	}
	k, stats, err := aRes.key, aRes.stats, aRes.err
	if err == nil {
		err = bRes.err
	}

	exp.KeyBits = k.Size()
	exp.AliceMessages = stats.MessagesSent
	exp.BobMessages = bRes.stats.MessagesSent
	exp.AliceClassicalBytes = stats.BytesSent
	exp.BobClassicalBytes = bRes.stats.BytesSent
	exp.KeysMatch = stats.KeysMatch
	if err == nil && k.Size() > 0 {
		diff := bitmap.XOr(k, bRes.key)
		exp.EmpiricalQBER = float64(bitmap.CountOnes(diff)) / float64(k.Size())
	}
	exp.Succeeded = err == nil
	return err
}

func header() string {
	return strings.Join(columns, ", ")
}

func lineTmpl() string {
	var els []string
	for _, c := range columns {
		els = append(els, "{{."+c+"}}")
	}
	return strings.Join(els, ", ") + "\n"
}

func lookupInput(name string) []interface{} {
	var r []interface{}
	if v, err := flag.CommandLine.GetIntSlice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	} else if v, err := flag.CommandLine.GetFloat64Slice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	} else {
		log.Fatalf("Unknown type for input %s", name)
	}
	return r
}

func applyCartesian(f func([]interface{}), args [][]interface{}) {
	for i := range args {
		if len(args[i]) == 1 {
			continue
		}
		l := make([][]interface{}, len(args))
		r := make([][]interface{}, len(args))
		copy(l, args)
		copy(r, args)
		l[i] = args[i][:1]
		r[i] = args[i][1:]
		applyCartesian(f, l)
		applyCartesian(f, r)
		return
	}
	x := make([]interface{}, 0, len(args))
	for _, a := range args {
		x = append(x, a[0])
	}
	f(x)
}
