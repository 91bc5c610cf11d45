package channel

import (
	"errors"
	"sync/atomic"
)

var ErrSinkSealed = errors.New("sink is sealed")

// Message is what the owner of a shared sink receives: the content together with
// the identity of the producer that has sent it.
type Message[SenderType comparable, MessageType any] struct {
	Sender  SenderType
	Content MessageType
}

// SinkWithSender binds a producer identity to a channel that is shared by many producers
// (one per negotiation session). The producer can't change the identity, so the consumer
// can always tell which session a message belongs to, even after the session is gone.
type SinkWithSender[SenderType comparable, MessageType any] struct {
	sender SenderType
	sink   chan<- Message[SenderType, MessageType]
	// Closed once the sink is sealed. The shared channel itself is never closed here since
	// other producers still write to it.
	sealed     chan struct{}
	sealedFlag atomic.Bool
}

// Creates a new sink for the given sender. The sink does not own the channel and never closes it.
func NewSink[S comparable, M any](sender S, sink chan<- Message[S, M]) *SinkWithSender[S, M] {
	return &SinkWithSender[S, M]{
		sender: sender,
		sink:   sink,
		sealed: make(chan struct{}),
	}
}

// Sends a message to the consumer. Blocks while the channel is full unless the sink gets sealed
// in the meantime, in which case `ErrSinkSealed` is returned and the message is dropped.
func (s *SinkWithSender[S, M]) Send(message M) error {
	if s.sealedFlag.Load() {
		return ErrSinkSealed
	}

	select {
	case <-s.sealed:
		return ErrSinkSealed
	case s.sink <- Message[S, M]{Sender: s.sender, Content: message}:
		return nil
	}
}

// Seals the sink. Any `Send` that starts after `Seal` returns fails. Senders that are blocked
// at the moment of sealing are released: they either deliver their message (if the consumer
// happens to be reading) or get `ErrSinkSealed`.
func (s *SinkWithSender[S, M]) Seal() {
	if s.sealedFlag.CompareAndSwap(false, true) {
		close(s.sealed)
	}
}

// Returns the identity attached to every message of this sink.
func (s *SinkWithSender[S, M]) Sender() S {
	return s.sender
}
