package ecs

import (
	"github.com/argus-labs/asyncecs/pkg/assert"
	"github.com/rotisserie/eris"
)

// ErrMessageNotRegistered is returned by type-erased sends of message types that were never
// registered with the world.
var ErrMessageNotRegistered = eris.New("message is not registered")

// abstractMessages is the type-erased view of a message store.
type abstractMessages interface {
	pushAbstract(msg any)
	update()
	len() int
}

var _ abstractMessages = &messages[any]{}

// messages is a double-buffered log of messages of one type. Every message gets a sequence number.
// A message survives the tick it was sent in and the following one, so readers that run once per
// tick see every message regardless of the phase they run in.
type messages[T any] struct {
	msgs    []T    // Retained messages, msgs[0] has sequence number start
	start   uint64 // Sequence number of msgs[0]
	prevEnd uint64 // End sequence number at the previous update
}

// end returns the sequence number the next message will get.
func (m *messages[T]) end() uint64 {
	return m.start + uint64(len(m.msgs))
}

func (m *messages[T]) push(msg T) {
	m.msgs = append(m.msgs, msg)
}

func (m *messages[T]) pushAbstract(msg any) {
	concrete, ok := msg.(T)
	assert.That(ok, "tried to send the wrong message type")
	m.push(concrete)
}

// update drops the messages that were already retained at the previous update.
func (m *messages[T]) update() {
	if drop := m.prevEnd - m.start; drop > 0 {
		kept := make([]T, len(m.msgs)-int(drop), cap(m.msgs))
		copy(kept, m.msgs[drop:])
		m.msgs = kept
		m.start = m.prevEnd
	}
	m.prevEnd = m.end()
}

func (m *messages[T]) len() int {
	return len(m.msgs)
}

// messageManager owns one message store per registered message type.
type messageManager struct {
	stores map[TypeKey]abstractMessages
	order  []TypeKey
}

// newMessageManager creates a new message manager.
func newMessageManager() messageManager {
	return messageManager{
		stores: make(map[TypeKey]abstractMessages),
		order:  make([]TypeKey, 0),
	}
}

// update advances every store by one tick.
func (mm *messageManager) update() {
	for _, key := range mm.order {
		mm.stores[key].update()
	}
}

// RegisterMessage registers the message type T so it can be sent through SendMessageValue. Sending
// with SendMessage registers implicitly.
func RegisterMessage[T any](w *World) {
	messageStore[T](w)
}

// messageStore returns the store for T, creating it if needed.
func messageStore[T any](w *World) *messages[T] {
	key := TypeOf[T]()
	if store, ok := w.messages.stores[key]; ok {
		return store.(*messages[T]) //nolint:errcheck // the key guarantees the store type
	}
	const initialMessageCapacity = 16
	store := &messages[T]{msgs: make([]T, 0, initialMessageCapacity)}
	w.messages.stores[key] = store
	w.messages.order = append(w.messages.order, key)
	return store
}

// SendMessage appends a message of type T.
func SendMessage[T any](w *World, msg T) {
	messageStore[T](w).push(msg)
}

// SendMessageValue appends a message whose type is only known at runtime. The type must have been
// registered first.
func SendMessageValue(w *World, msg any) error {
	key := TypeOfValue(msg)
	store, ok := w.messages.stores[key]
	if !ok {
		return eris.Wrapf(ErrMessageNotRegistered, "message %s", key)
	}
	store.pushAbstract(msg)
	return nil
}

// MessageReader reads the messages of type T it hasn't seen yet. Each reader keeps its own cursor,
// so independent readers all observe every message.
type MessageReader[T any] struct {
	cursor uint64
}

// NewMessageReader creates a reader that will see every message still retained by the world.
func NewMessageReader[T any]() *MessageReader[T] {
	return &MessageReader[T]{}
}

// Read returns the messages sent since the previous Read, oldest first. Messages that were dropped
// before the reader caught up are skipped.
func (r *MessageReader[T]) Read(w *World) []T {
	store := messageStore[T](w)
	from := max(r.cursor, store.start)
	end := store.end()
	r.cursor = end
	if from >= end {
		return nil
	}
	out := make([]T, end-from)
	copy(out, store.msgs[from-store.start:])
	return out
}

// Pending returns the number of messages Read would return.
func (r *MessageReader[T]) Pending(w *World) int {
	store := messageStore[T](w)
	from := max(r.cursor, store.start)
	return int(store.end() - from) //nolint:gosec // bounded by len(msgs)
}
