package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// A Fixed channel replays scripted outcomes, one per call, and records the
// requests it was given. It is useful for tests and for replaying outcomes
// produced elsewhere.
type Fixed struct {
	Outcomes []string
	Order    Order

	mu       sync.Mutex
	requests []Request
}

// A Request records the arguments of one PrepareAndMeasure call.
type Request struct {
	Prep, Meas []Transforms
}

// NewFixed returns a channel which answers its i-th call with outcomes[i],
// reported in Positional order.
func NewFixed(outcomes ...string) *Fixed {
	return &Fixed{Outcomes: outcomes}
}

// PrepareAndMeasure implements the Channel interface.
func (f *Fixed) PrepareAndMeasure(ctx context.Context, prep, meas []Transforms) (Result, error) {
	qubits, err := checkRequest(prep, meas)
	if err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	call := len(f.requests)
	f.requests = append(f.requests, Request{Prep: prep, Meas: meas})
	if call >= len(f.Outcomes) {
		return Result{}, errors.New("channel: no scripted outcome left")
	}
	out := f.Outcomes[call]
	if len(out) != qubits {
		return Result{}, fmt.Errorf("channel: scripted outcome %q does not cover %d qubits", out, qubits)
	}
	return Result{Bits: out, Order: f.Order}, nil
}

// Requests returns the requests received so far.
func (f *Fixed) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}
