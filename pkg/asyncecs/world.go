// Package asyncecs lets goroutines outside the world loop read and mutate an ecs.World.
//
// Goroutines hold an AsyncWorld and send it Operations. The world applies the operations it
// received at the end of every tick, in the order each AsyncWorld sent them. Reads are expressed as
// waits: a goroutine asks for a component, resource or message and parks in Recv until a poll
// system running inside the world delivers it.
//
// Install (or New, which installs on demand) must be called from the goroutine that ticks the
// world. Everything else in this package is safe to call from any goroutine.
package asyncecs

import (
	"context"

	"github.com/argus-labs/asyncecs/pkg/channel"
	"github.com/argus-labs/asyncecs/pkg/ecs"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

var (
	// ErrBridgeClosed is returned when sending through an AsyncWorld handle that was closed.
	ErrBridgeClosed = eris.New("async world is closed")

	// ErrEntityDespawned is returned by AsyncEntity methods after Despawn was called on the handle.
	ErrEntityDespawned = eris.New("entity handle was despawned")

	// ErrHandleClosed is returned by system handles after Close.
	ErrHandleClosed = eris.New("handle is closed")
)

// AsyncWorld is a handle to a world that can be used from any goroutine. Every clone shares the
// same operation channel; the channel is collected by the world once every clone is closed.
type AsyncWorld struct {
	id uuid.UUID
	tx *channel.Sender[Operation]
}

// New creates the receiving end of a new operation channel inside w and returns the sending end.
// The bridge is installed with default options if it wasn't installed yet. New must be called from
// the goroutine that ticks w.
func New(w *ecs.World) (*AsyncWorld, error) {
	if !ecs.HasResource[operationQueue](w) {
		if err := Install(w, Options{}); err != nil {
			return nil, err
		}
	}
	queue := mustQueue(w)

	id := uuid.New()
	tx, rx := channel.New[Operation](queue.channelCapacity)

	eid, err := w.Spawn(ecs.Name("OperationReceiver"))
	if err != nil {
		return nil, eris.Wrap(err, "failed to spawn operation receiver")
	}
	if err := ecs.Set(w, eid, operationReceiver{seq: queue.nextSeq, bridge: id, rx: rx}); err != nil {
		return nil, eris.Wrap(err, "failed to attach operation receiver")
	}
	queue.nextSeq++

	queue.logger.Debug().Str("bridge", id.String()).Uint32("entity", uint32(eid)).Msg("async world created")
	return &AsyncWorld{id: id, tx: tx}, nil
}

// ID returns the identity shared by every clone of this handle.
func (aw *AsyncWorld) ID() uuid.UUID {
	return aw.id
}

// Clone returns another handle to the same operation channel. Operations sent through different
// clones are applied in no particular order relative to each other, but the order within one clone
// is kept. A clone of a closed handle is closed too, and sending through it returns ErrBridgeClosed.
func (aw *AsyncWorld) Clone() *AsyncWorld {
	return &AsyncWorld{id: aw.id, tx: aw.tx.Clone()}
}

// Close releases the handle. Operations already sent are still applied.
func (aw *AsyncWorld) Close() {
	aw.tx.Close()
}

// Apply sends an operation without waiting for it to be applied.
func (aw *AsyncWorld) Apply(op Operation) error {
	if err := aw.tx.Send(op); err != nil {
		return eris.Wrap(ErrBridgeClosed, err.Error())
	}
	return nil
}

// ApplyCommand sends a function that runs with exclusive access to the world.
func (aw *AsyncWorld) ApplyCommand(fn func(w *ecs.World)) error {
	return aw.Apply(RawCommand(fn))
}

// Queue sends several operations that are applied back to back within the same tick.
func (aw *AsyncWorld) Queue(ops ...Operation) error {
	return aw.Apply(Queue(ops))
}

// SpawnEmpty spawns an entity without components.
func (aw *AsyncWorld) SpawnEmpty(ctx context.Context) (*AsyncEntity, error) {
	tx, rx := channel.NewOneShot[ecs.EntityID]()
	return aw.spawn(ctx, SpawnEmpty{Result: tx}, rx)
}

// SpawnNamed spawns an entity with an ecs.Name.
func (aw *AsyncWorld) SpawnNamed(ctx context.Context, name string) (*AsyncEntity, error) {
	tx, rx := channel.NewOneShot[ecs.EntityID]()
	return aw.spawn(ctx, SpawnNamed{Name: name, Result: tx}, rx)
}

// Spawn spawns an entity with components. Their types must be registered with the world.
func (aw *AsyncWorld) Spawn(ctx context.Context, components ...ecs.Component) (*AsyncEntity, error) {
	tx, rx := channel.NewOneShot[ecs.EntityID]()
	return aw.spawn(ctx, SpawnWithComponents{Components: components, Result: tx}, rx)
}

func (aw *AsyncWorld) spawn(ctx context.Context, op Operation, rx *channel.Receiver[ecs.EntityID]) (*AsyncEntity, error) {
	if err := aw.Apply(op); err != nil {
		rx.Close()
		return nil, err
	}
	eid, err := rx.RecvAndClose(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "failed to receive spawned entity")
	}
	return aw.Entity(eid), nil
}

// Entity returns a handle to an existing entity. The entity isn't checked for existence.
func (aw *AsyncWorld) Entity(eid ecs.EntityID) *AsyncEntity {
	return &AsyncEntity{id: eid, world: aw}
}

// Despawn recursively despawns an entity.
func (aw *AsyncWorld) Despawn(eid ecs.EntityID) error {
	return aw.Apply(Despawn{Entity: eid})
}

// RegisterSystem registers fn as a system that runs on demand and returns a handle to it.
func (aw *AsyncWorld) RegisterSystem(ctx context.Context, fn ecs.SystemFunc, opts ...ecs.SystemOption) (*AsyncSystem, error) {
	tx, rx := channel.NewOneShot[ecs.SystemID]()
	err := aw.ApplyCommand(func(w *ecs.World) {
		deliver(w, tx, w.RegisterSystem(fn, opts...), "registered system")
	})
	if err != nil {
		rx.Close()
		return nil, err
	}
	id, err := rx.RecvAndClose(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "failed to receive registered system")
	}
	return newAsyncSystem(aw, id), nil
}

// await sends op and waits for the single value it delivers through rx. The receiver is closed
// when await returns, which retires the wait inside the world if ctx was cancelled first.
func await[T any](ctx context.Context, aw *AsyncWorld, op Operation, rx *channel.Receiver[T]) (T, error) {
	if err := aw.Apply(op); err != nil {
		rx.Close()
		var zero T
		return zero, err
	}
	return rx.RecvAndClose(ctx)
}
