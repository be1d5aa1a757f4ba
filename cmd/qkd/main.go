// qkd runs one round of the B92, BB84 or E91 key distribution protocol and
// prints the keys each party ends up with.
//
// Usage:
//
//	qkd b92|bb84|e91 [flags]
//
// Inputs not given as flags are prompted for on stdin, unless --random asks
// for them to be drawn instead.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/alan-christopher/qkd/internal/config"
	"github.com/alan-christopher/qkd/internal/console"
	"github.com/alan-christopher/qkd/internal/logging"
	"github.com/alan-christopher/qkd/qkd"
	"github.com/alan-christopher/qkd/qkd/bitmap"
	"github.com/alan-christopher/qkd/qkd/channel"
	flag "github.com/spf13/pflag"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		log.Fatalf("qkd: %v", err)
	}
}

// options holds everything a subcommand needs once flags, config file and
// environment have been merged.
type options struct {
	cfg    *config.Config
	random bool

	aliceBits, aliceBases string
	bobBases, bobOutcomes string
	samples               string

	rand   *rand.Rand
	logger *slog.Logger
	in     *console.Prompter
	out    io.Writer
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: qkd b92|bb84|e91 [flags]")
	}
	proto, err := qkd.ParseProtocol(args[0])
	if err != nil {
		return err
	}
	opts, err := parseOptions(proto, args[1:], stdin, stdout, stderr)
	if err != nil {
		return err
	}
	switch proto {
	case qkd.B92:
		return runB92(ctx, opts)
	case qkd.BB84:
		return runBB84(ctx, opts)
	default:
		return runE91(ctx, opts)
	}
}

func parseOptions(proto qkd.Protocol, args []string, stdin io.Reader, stdout, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet(string(proto), flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		cfgPath   = fs.String("config", "", "Path to a TOML, YAML or JSON config file.")
		n         = fs.Int("n", 0, "The number of transmissions, when inputs are drawn at random.")
		noise     = fs.Float64("noise", 0, "The probability that a BB84 measurement outcome flips.")
		bellState = fs.String("bell-state", "", "The Bell state E91 pairs are prepared in.")
		bellBound = fs.Float64("bell-bound", qkd.ClassicalBound, "The value the E91 Bell statistic must exceed.")
		seed      = fs.Int64("seed", 0, "Seed for every random choice; 0 seeds from the clock.")
		logLevel  = fs.String("log-level", "", "One of debug, info, warn, error.")
		logFormat = fs.String("log-format", "", "One of text, json.")
	)
	o := &options{out: stdout}
	fs.BoolVar(&o.random, "random", false, "Draw inputs not given as flags at random instead of prompting.")
	fs.StringVar(&o.aliceBits, "alice-bits", "", "Alice's bits, e.g. 0110.")
	fs.StringVar(&o.aliceBases, "alice-bases", "", "Alice's bases, e.g. 0110.")
	fs.StringVar(&o.bobBases, "bob-bases", "", "Bob's measurement bases, e.g. 1010.")
	fs.StringVar(&o.bobOutcomes, "bob-outcomes", "", "Bob's raw outcomes, replayed instead of simulating the channel.")
	fs.StringVar(&o.samples, "samples", "", "E91 Bell test samples, e.g. \"0:1,2:0;1:0,1:1\".")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.Protocol = string(proto)
	if fs.Changed("n") {
		cfg.Transmissions = *n
	}
	if fs.Changed("noise") {
		cfg.NoiseProbability = *noise
	}
	if fs.Changed("bell-state") {
		cfg.BellState = *bellState
	}
	if fs.Changed("bell-bound") {
		cfg.BellBound = *bellBound
	}
	if fs.Changed("seed") {
		cfg.Seed = *seed
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if fs.Changed("log-format") {
		cfg.LogFormat = *logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o.cfg = cfg

	if o.logger, err = logging.New(cfg.LogLevel, cfg.LogFormat, stderr); err != nil {
		return nil, err
	}
	s := cfg.Seed
	if s == 0 {
		s = time.Now().UnixNano()
	}
	o.logger.Debug("starting run", "protocol", proto, "seed", s)
	o.rand = rand.New(rand.NewSource(s))
	o.in = console.NewPrompter(stdin, stdout)
	return o, nil
}

// transmissions settles the number of transmissions: the length of any
// string given on the command line, else the configured count when drawing
// at random, else whatever the user enters.
func (o *options) transmissions(given ...string) (int, error) {
	for _, s := range given {
		if s = strings.TrimSpace(s); s != "" {
			return len(s), nil
		}
	}
	if o.random {
		return o.cfg.Transmissions, nil
	}
	return o.in.Positive("Enter the number of transmissions: ")
}

// symbols returns flagVal if set, a random string if --random was given, or
// asks the user.
func (o *options) symbols(flagVal, prompt string, n int, alphabet string) (string, error) {
	if flagVal != "" {
		s, err := console.ParseSymbols(flagVal, n, alphabet)
		if err != nil {
			return "", fmt.Errorf("%s: %w", strings.TrimSuffix(prompt, ": "), err)
		}
		return s, nil
	}
	if o.random {
		b := make([]byte, n)
		for i := range b {
			b[i] = alphabet[o.rand.Intn(len(alphabet))]
		}
		return string(b), nil
	}
	return o.in.Symbols(prompt, n, alphabet)
}

func (o *options) bases(flagVal, prompt string, p qkd.Protocol, n int) ([]qkd.Basis, error) {
	s, err := o.symbols(flagVal, prompt, n, console.Binary)
	if err != nil {
		return nil, err
	}
	return qkd.ParseBases(p, s)
}

func (o *options) bits(flagVal, prompt string, n int) (bitmap.Dense, error) {
	s, err := o.symbols(flagVal, prompt, n, console.Binary)
	if err != nil {
		return bitmap.Empty(), err
	}
	return bitmap.FromString(s)
}

// channel returns the quantum channel of the run: a replay of --bob-outcomes
// when given, otherwise a simulation.
func (o *options) channel(n int) (channel.Channel, error) {
	if o.bobOutcomes == "" {
		return channel.NewSimulated(o.rand), nil
	}
	s, err := console.ParseSymbols(o.bobOutcomes, n, console.Binary)
	if err != nil {
		return nil, fmt.Errorf("bob's outcomes: %w", err)
	}
	return channel.NewFixed(s), nil
}

func runB92(ctx context.Context, o *options) error {
	n, err := o.transmissions(o.aliceBases, o.aliceBits, o.bobBases, o.bobOutcomes)
	if err != nil {
		return err
	}
	sendBases, err := o.bases(o.aliceBases, fmt.Sprintf("Enter Alice's bases for %d bits (0 or 1): ", n), qkd.B92, n)
	if err != nil {
		return err
	}
	bitsFlag := o.aliceBits
	if bitsFlag == "" && o.random {
		// Random bits would almost never satisfy the encoding rule.
		bitsFlag = qkd.FormatBases(sendBases)
	}
	bits, err := o.bits(bitsFlag, fmt.Sprintf("Enter Alice's secret bits for %d transmissions (0 or 1): ", n), n)
	if err != nil {
		return err
	}
	recvBases, err := o.bases(o.bobBases, fmt.Sprintf("Enter Bob's measurement bases for %d bits (0 for Z, 1 for X): ", n), qkd.B92, n)
	if err != nil {
		return err
	}
	ch, err := o.channel(n)
	if err != nil {
		return err
	}

	res, err := qkd.RunB92(ctx, qkd.B92Opts{
		Channel:   ch,
		Bits:      bits,
		SendBases: sendBases,
		RecvBases: recvBases,
		Logger:    o.logger,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(o.out, "Alice's sent states: %s\n", res.SentStates)
	fmt.Fprintf(o.out, "Bob's outcomes: %s\n", res.Outcomes)
	fmt.Fprintf(o.out, "Conclusive positions: %v\n", res.Conclusive)
	report(o.out, res.Alice, res.Bob)
	return nil
}

func runBB84(ctx context.Context, o *options) error {
	n, err := o.transmissions(o.aliceBits, o.aliceBases, o.bobBases, o.bobOutcomes)
	if err != nil {
		return err
	}
	bits, err := o.bits(o.aliceBits, fmt.Sprintf("Enter %d binary bits for Alice: ", n), n)
	if err != nil {
		return err
	}
	sendBases, err := o.bases(o.aliceBases, fmt.Sprintf("Enter %d bases for Alice (0 for +, 1 for x): ", n), qkd.BB84, n)
	if err != nil {
		return err
	}
	recvBases, err := o.bases(o.bobBases, fmt.Sprintf("Enter %d bases for Bob (0 for +, 1 for x): ", n), qkd.BB84, n)
	if err != nil {
		return err
	}
	noise, err := qkd.NewNoise(o.cfg.NoiseProbability)
	if err != nil {
		return err
	}
	ch, err := o.channel(n)
	if err != nil {
		return err
	}

	res, err := qkd.RunBB84(ctx, qkd.BB84Opts{
		Channel:   ch,
		Bits:      bits,
		SendBases: sendBases,
		RecvBases: recvBases,
		Noise:     noise,
		Rand:      o.rand,
		Logger:    o.logger,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(o.out, "Bob's outcomes: %s\n", res.Outcomes)
	fmt.Fprintf(o.out, "QBER: %.3f\n", res.Stats.QBER)
	report(o.out, res.Alice, res.Bob)
	return nil
}

func runE91(ctx context.Context, o *options) error {
	var samples []qkd.Sample
	var err error
	switch {
	case o.samples != "":
		samples, err = console.ParseSamples(o.samples)
	case o.random:
		samples, err = o.collectSamples(ctx)
	default:
		var n int
		if n, err = o.in.Positive("Enter the number of Bell pairs for the test: "); err == nil {
			samples, err = o.in.Samples(n)
		}
	}
	if err != nil {
		return err
	}

	res, err := qkd.RunE91(ctx, qkd.E91Opts{
		Samples: samples,
		Bound:   o.cfg.BellBound,
		Rand:    o.rand,
		Logger:  o.logger,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(o.out, "Estimated Bell statistic |S|: %.2f\n", math.Abs(res.Statistic))
	if res.Violated {
		fmt.Fprintln(o.out, "Bell inequality violated: keeping a hypothetical key.")
	} else {
		fmt.Fprintln(o.out, "Bell inequality not violated: possible eavesdropping or noise, discarding key.")
	}
	report(o.out, res.Alice, res.Bob)
	return nil
}

// collectSamples measures random bases on pairs replayed from
// --bob-outcomes, which must then hold two outcomes per pair.
func (o *options) collectSamples(ctx context.Context) ([]qkd.Sample, error) {
	if o.bobOutcomes == "" {
		return nil, errors.New("--random for e91 needs --samples or --bob-outcomes: the simulated channel cannot entangle pairs")
	}
	pairs := len(strings.TrimSpace(o.bobOutcomes)) / 2
	state, err := qkd.ParseBellState(o.cfg.BellState)
	if err != nil {
		return nil, err
	}
	ch, err := o.channel(2 * pairs)
	if err != nil {
		return nil, err
	}
	return qkd.CollectSamples(ctx, ch, state,
		qkd.RandomBases(o.rand, qkd.E91, pairs), qkd.RandomBases(o.rand, qkd.E91, pairs))
}

func report(w io.Writer, alice, bob bitmap.Dense) {
	fmt.Fprintf(w, "Alice's key: %s\n", alice)
	fmt.Fprintf(w, "Bob's key: %s\n", bob)
	switch {
	case alice.Size() == 0:
		fmt.Fprintln(w, "Key distribution failed: no key bits were kept.")
	case bitmap.Equal(alice, bob):
		fmt.Fprintf(w, "Key distribution succeeded: %d shared bits.\n", alice.Size())
	default:
		fmt.Fprintf(w, "Key distribution failed: keys disagree (%d bits).\n", alice.Size())
	}
}
