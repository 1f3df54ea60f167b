package asyncecs

import (
	"context"

	"github.com/argus-labs/asyncecs/pkg/channel"
)

// AsyncMessages is a handle to the messages of type T.
type AsyncMessages[T any] struct {
	world *AsyncWorld
}

// Messages returns a handle to the messages of type T.
func Messages[T any](aw *AsyncWorld) AsyncMessages[T] {
	return AsyncMessages[T]{world: aw}
}

// Send sends a message. T doesn't need to be registered.
func (m AsyncMessages[T]) Send(msg T) error {
	return m.world.Apply(SendMessageOf(msg))
}

// Subscribe starts receiving every message of type T. The stream must be closed once it is no
// longer read.
func (m AsyncMessages[T]) Subscribe() (*MessageStream[T], error) {
	tx, rx := channel.New[T](0)
	if err := m.world.Apply(WaitMessageOf(tx)); err != nil {
		rx.Close()
		return nil, err
	}
	return &MessageStream[T]{rx: rx}, nil
}

// Wait waits for the next message of type T.
func (m AsyncMessages[T]) Wait(ctx context.Context) (T, error) {
	stream, err := m.Subscribe()
	if err != nil {
		var zero T
		return zero, err
	}
	defer stream.Close()
	return stream.Next(ctx)
}

// MessageStream receives messages of type T in the order they were sent.
type MessageStream[T any] struct {
	rx *channel.Receiver[T]
}

// Next waits for the next message.
func (s *MessageStream[T]) Next(ctx context.Context) (T, error) {
	return s.rx.Recv(ctx)
}

// Close stops the stream. Messages not read yet are dropped.
func (s *MessageStream[T]) Close() {
	s.rx.Close()
}
