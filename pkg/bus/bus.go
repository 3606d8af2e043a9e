package bus

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrBusClosed is returned when publishing to a closed MessageBus.
var ErrBusClosed = errors.New("message bus closed")

// MessageBus carries batches of inbound events from transports to the
// dispatcher. A batch is delivered as a unit so receipt order is preserved.
type MessageBus struct {
	inbound chan []InboundEvent
	done    chan struct{}
	closed  atomic.Bool
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound: make(chan []InboundEvent, 100),
		done:    make(chan struct{}),
	}
}

func (mb *MessageBus) PublishInbound(ctx context.Context, events ...InboundEvent) error {
	if mb.closed.Load() {
		return ErrBusClosed
	}
	if len(events) == 0 {
		return nil
	}
	batch := make([]InboundEvent, len(events))
	copy(batch, events)
	select {
	case mb.inbound <- batch:
		return nil
	case <-mb.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (mb *MessageBus) ConsumeInbound(ctx context.Context) ([]InboundEvent, bool) {
	select {
	case batch, ok := <-mb.inbound:
		return batch, ok
	case <-mb.done:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

func (mb *MessageBus) Close() {
	if mb.closed.CompareAndSwap(false, true) {
		close(mb.done)
	}
}
