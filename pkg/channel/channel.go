// Package channel implements the hand-off between goroutines and the world goroutine: a
// multi-producer single-consumer queue whose senders are reference counted and whose receiver can be
// drained without ever blocking.
//
// The world goroutine only uses the non-blocking methods (DrainInto, TryRecv, Send on bounded
// channels). Goroutines outside the world wait for values with Recv, which parks on a notification
// channel instead of polling.
package channel

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"
)

var (
	// ErrClosed is returned when the other side of the channel is gone: sends after the receiver was
	// closed, and receives once the channel is empty and every sender was closed.
	ErrClosed = eris.New("channel closed")

	// ErrFull is returned by Send on a bounded channel at capacity.
	ErrFull = eris.New("channel full")

	// ErrEmpty is returned by TryRecv when nothing is queued.
	ErrEmpty = eris.New("channel empty")
)

// state is shared by every Sender clone and the Receiver.
type state[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int           // 0 means unbounded
	senders  int           // Number of live Sender handles
	rxClosed bool          // The receiver was closed
	notify   chan struct{} // Wakes a parked Recv, holds at most one token
}

// wake leaves a token for the receiver. Expects the caller to hold mu.
func (s *state[T]) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Sender is the producer side of a channel. Every Sender handle must be closed exactly once; the
// receiver reports ErrClosed after the last one is closed. Sender is safe for concurrent use.
type Sender[T any] struct {
	s      *state[T]
	closed atomic.Bool
}

// Receiver is the consumer side of a channel. Only one goroutine may receive at a time.
type Receiver[T any] struct {
	s *state[T]
}

// New creates an unbounded channel. capacityHint pre-sizes the internal buffer.
func New[T any](capacityHint int) (*Sender[T], *Receiver[T]) {
	return newChannel[T](0, capacityHint)
}

// NewBounded creates a channel that holds at most capacity values.
func NewBounded[T any](capacity int) (*Sender[T], *Receiver[T]) {
	if capacity < 1 {
		capacity = 1
	}
	return newChannel[T](capacity, capacity)
}

// NewOneShot creates a channel that holds a single value.
func NewOneShot[T any]() (*Sender[T], *Receiver[T]) {
	return NewBounded[T](1)
}

func newChannel[T any](capacity, hint int) (*Sender[T], *Receiver[T]) {
	s := &state[T]{
		items:    make([]T, 0, max(hint, 0)),
		capacity: capacity,
		senders:  1,
		notify:   make(chan struct{}, 1),
	}
	return &Sender[T]{s: s}, &Receiver[T]{s: s}
}

// -------------------------------------------------------------------------------------------------
// Sender
// -------------------------------------------------------------------------------------------------

// Send queues a value without blocking. It fails with ErrFull when a bounded channel is at capacity
// and with ErrClosed when the receiver or this handle was closed.
func (tx *Sender[T]) Send(value T) error {
	if tx.closed.Load() {
		return eris.Wrap(ErrClosed, "send on closed sender")
	}

	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rxClosed {
		return ErrClosed
	}
	if s.capacity > 0 && len(s.items) >= s.capacity {
		return ErrFull
	}
	s.items = append(s.items, value)
	s.wake()
	return nil
}

// Clone returns a new handle to the same channel. The clone must be closed on its own. Cloning a
// closed handle, or any handle once the last sender was released, returns a closed handle: the
// receiver may already have observed the closure.
func (tx *Sender[T]) Clone() *Sender[T] {
	clone := &Sender[T]{s: tx.s}
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.closed.Load() || s.senders == 0 {
		clone.closed.Store(true)
		return clone
	}
	s.senders++
	return clone
}

// Close releases this handle. Closing a handle twice is a no-op.
func (tx *Sender[T]) Close() {
	if !tx.closed.CompareAndSwap(false, true) {
		return
	}

	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()

	s.senders--
	if s.senders == 0 {
		// Let a parked receiver observe the closure.
		s.wake()
	}
}

// IsClosed reports whether sending can no longer succeed, either because this handle was closed or
// because the receiver is gone.
func (tx *Sender[T]) IsClosed() bool {
	if tx.closed.Load() {
		return true
	}
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	return tx.s.rxClosed
}

// Len returns the number of queued values.
func (tx *Sender[T]) Len() int {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	return len(tx.s.items)
}

// -------------------------------------------------------------------------------------------------
// Receiver
// -------------------------------------------------------------------------------------------------

// TryRecv returns the oldest queued value without blocking. It returns ErrEmpty when nothing is
// queued and ErrClosed when nothing is queued and every sender was closed.
func (rx *Receiver[T]) TryRecv() (T, error) {
	s := rx.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if len(s.items) == 0 {
		if s.senders == 0 || s.rxClosed {
			return zero, ErrClosed
		}
		return zero, ErrEmpty
	}

	value := s.items[0]
	s.items[0] = zero
	s.items = s.items[1:]
	if len(s.items) == 0 {
		// Reuse the backing array from the start.
		s.items = s.items[:0:cap(s.items)]
	}
	return value, nil
}

// DrainInto appends every queued value to target, oldest first, without blocking. It returns
// ErrClosed when every sender was closed, in which case target still receives whatever was left in
// the channel.
func (rx *Receiver[T]) DrainInto(target *[]T) error {
	s := rx.s
	s.mu.Lock()
	defer s.mu.Unlock()

	*target = append(*target, s.items...)
	clear(s.items)
	s.items = s.items[:0]

	if s.senders == 0 {
		return ErrClosed
	}
	return nil
}

// Recv waits for a value. It never spins: when the channel is empty it parks until a sender wakes
// it or ctx is done, then tries again. Returns ErrClosed when the channel is empty and every sender
// was closed, and the context error when ctx is done first.
func (rx *Receiver[T]) Recv(ctx context.Context) (T, error) {
	for {
		value, err := rx.TryRecv()
		if err == nil {
			return value, nil
		}
		if eris.Is(err, ErrClosed) {
			return value, err
		}

		select {
		case <-rx.s.notify:
		case <-ctx.Done():
			var zero T
			return zero, eris.Wrap(ctx.Err(), "receive cancelled")
		}
	}
}

// RecvAndClose waits for a single value with Recv and then closes the receiver. It is the receive
// side of a one-shot exchange: once it returns, later sends fail with ErrClosed.
func (rx *Receiver[T]) RecvAndClose(ctx context.Context) (T, error) {
	defer rx.Close()
	return rx.Recv(ctx)
}

// Close drops the receiver. Queued values are discarded and later sends fail with ErrClosed.
func (rx *Receiver[T]) Close() {
	s := rx.s
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rxClosed = true
	clear(s.items)
	s.items = s.items[:0]
}

// Len returns the number of queued values.
func (rx *Receiver[T]) Len() int {
	rx.s.mu.Lock()
	defer rx.s.mu.Unlock()
	return len(rx.s.items)
}
