// Package console reads protocol inputs typed by a user. Parsing is kept
// separate from prompting so each can be tested on its own.
package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/alan-christopher/qkd/qkd"
)

// Alphabets of the symbol strings the tools accept.
const (
	Binary  = "01"
	Ternary = "012"
)

// A SymbolError describes why a symbol string was rejected.
type SymbolError struct {
	Input    string
	Want     int    // expected length, or -1 for any
	Alphabet string // allowed symbols
	Index    int    // first offending position, or -1 for a length problem
}

func (e *SymbolError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("want exactly %d of %q, got %d symbols", e.Want, e.Alphabet, len(e.Input))
	}
	return fmt.Sprintf("symbol %q at position %d is not one of %q", e.Input[e.Index], e.Index, e.Alphabet)
}

// ParseSymbols checks that s, ignoring surrounding whitespace, holds exactly n
// symbols from alphabet and returns the trimmed string. n < 0 accepts any
// non-empty length.
func ParseSymbols(s string, n int, alphabet string) (string, error) {
	s = strings.TrimSpace(s)
	if (n >= 0 && len(s) != n) || (n < 0 && s == "") {
		return "", &SymbolError{Input: s, Want: n, Alphabet: alphabet, Index: -1}
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(alphabet, s[i]) < 0 {
			return "", &SymbolError{Input: s, Want: n, Alphabet: alphabet, Index: i}
		}
	}
	return s, nil
}

// ParsePositive parses a strictly positive integer.
func ParsePositive(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", strings.TrimSpace(s))
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}

// ParseSetting parses one party's half of a Bell test sample, written as
// basis:outcome, e.g. "2:1".
func ParseSetting(s string) (qkd.Setting, error) {
	basis, outcome, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return qkd.Setting{}, fmt.Errorf("want basis:outcome, got %q", s)
	}
	basis, err := ParseSymbols(basis, 1, Ternary)
	if err != nil {
		return qkd.Setting{}, fmt.Errorf("basis: %w", err)
	}
	outcome, err = ParseSymbols(outcome, 1, Binary)
	if err != nil {
		return qkd.Setting{}, fmt.Errorf("outcome: %w", err)
	}
	return qkd.Setting{
		Basis:   qkd.Basis(basis[0] - '0'),
		Outcome: outcome == "1",
	}, nil
}

// ParseSamples parses Bell test samples written as
// "alice_basis:alice_outcome,bob_basis:bob_outcome" and separated by ';'.
func ParseSamples(s string) ([]qkd.Sample, error) {
	var samples []qkd.Sample
	for i, pair := range strings.Split(s, ";") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		a, b, ok := strings.Cut(pair, ",")
		if !ok {
			return nil, fmt.Errorf("pair %d: want alice,bob settings, got %q", i+1, pair)
		}
		as, err := ParseSetting(a)
		if err != nil {
			return nil, fmt.Errorf("pair %d: alice's %w", i+1, err)
		}
		bs, err := ParseSetting(b)
		if err != nil {
			return nil, fmt.Errorf("pair %d: bob's %w", i+1, err)
		}
		samples = append(samples, qkd.Sample{Alice: as, Bob: bs})
	}
	if len(samples) == 0 {
		return nil, errors.New("no samples given")
	}
	return samples, nil
}

// A Prompter asks questions on an output stream and reads answers, one per
// line, until each answer is acceptable.
type Prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

// NewPrompter returns a Prompter reading answers from r and writing prompts
// and complaints to w.
func NewPrompter(r io.Reader, w io.Writer) *Prompter {
	return &Prompter{in: bufio.NewScanner(r), out: w}
}

// Ask writes prompt and hands each answer to accept until accept returns
// nil. The rejection is shown to the user before asking again. Ask fails
// only when input runs out.
func (p *Prompter) Ask(prompt string, accept func(answer string) error) error {
	for {
		fmt.Fprint(p.out, prompt)
		if !p.in.Scan() {
			if err := p.in.Err(); err != nil {
				return err
			}
			return io.ErrUnexpectedEOF
		}
		err := accept(p.in.Text())
		if err == nil {
			return nil
		}
		fmt.Fprintf(p.out, "Invalid input: %v\n", err)
	}
}

// Symbols asks for a string of exactly n symbols from alphabet.
func (p *Prompter) Symbols(prompt string, n int, alphabet string) (string, error) {
	var out string
	err := p.Ask(prompt, func(answer string) error {
		s, err := ParseSymbols(answer, n, alphabet)
		out = s
		return err
	})
	return out, err
}

// Positive asks for a strictly positive integer.
func (p *Prompter) Positive(prompt string) (int, error) {
	var out int
	err := p.Ask(prompt, func(answer string) error {
		n, err := ParsePositive(answer)
		out = n
		return err
	})
	return out, err
}

// Setting asks for one party's basis and then its outcome.
func (p *Prompter) Setting(party string) (qkd.Setting, error) {
	basis, err := p.Symbols(fmt.Sprintf("Enter %s's basis index (0 for HV, 1 for +/- 45, 2 for circular): ", party), 1, Ternary)
	if err != nil {
		return qkd.Setting{}, err
	}
	outcome, err := p.Symbols(fmt.Sprintf("Enter %s's measurement result (0 or 1): ", party), 1, Binary)
	if err != nil {
		return qkd.Setting{}, err
	}
	return qkd.Setting{Basis: qkd.Basis(basis[0] - '0'), Outcome: outcome == "1"}, nil
}

// Samples asks for n Bell test samples, one pair at a time.
func (p *Prompter) Samples(n int) ([]qkd.Sample, error) {
	samples := make([]qkd.Sample, 0, n)
	for i := 0; i < n; i++ {
		fmt.Fprintf(p.out, "--- Pair %d ---\n", i+1)
		a, err := p.Setting("Alice")
		if err != nil {
			return nil, err
		}
		b, err := p.Setting("Bob")
		if err != nil {
			return nil, err
		}
		samples = append(samples, qkd.Sample{Alice: a, Bob: b})
	}
	return samples, nil
}
