package channel

import (
	"context"
	"fmt"
)

// NewLink splits ch into a sending and a receiving half, so that preparation
// and measurement can be driven by different parties. Each call to Send is
// expected to be mirrored by a call to Receive; Send blocks once more than
// bufSize preparations are waiting.
func NewLink(ch Channel, bufSize int) (*LinkSender, *LinkReceiver) {
	preps := make(chan []Transforms, bufSize)
	return &LinkSender{preps: preps}, &LinkReceiver{ch: ch, preps: preps}
}

// A LinkSender prepares carriers on one end of a link.
type LinkSender struct {
	preps chan<- []Transforms
}

// A LinkReceiver measures carriers on the other end of a link.
type LinkReceiver struct {
	ch    Channel
	preps <-chan []Transforms
}

// Send implements the Sender interface.
func (s *LinkSender) Send(ctx context.Context, prep []Transforms) error {
	select {
	case s.preps <- prep:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive implements the Receiver interface.
func (r *LinkReceiver) Receive(ctx context.Context, meas []Transforms) (Result, error) {
	var prep []Transforms
	select {
	case prep = <-r.preps:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	if len(prep) != len(meas) {
		return Result{}, fmt.Errorf("send carrier count must match receive basis count: %d != %d", len(prep), len(meas))
	}
	return r.ch.PrepareAndMeasure(ctx, prep, meas)
}
