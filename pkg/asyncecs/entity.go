package asyncecs

import (
	"context"
	"sync/atomic"

	"github.com/argus-labs/asyncecs/pkg/channel"
	"github.com/argus-labs/asyncecs/pkg/ecs"
	"github.com/rotisserie/eris"
)

// AsyncEntity is a handle to an entity that can be used from any goroutine. Once Despawn is called
// on the handle every other method returns ErrEntityDespawned.
type AsyncEntity struct {
	id        ecs.EntityID
	world     *AsyncWorld
	despawned atomic.Bool
}

// ID returns the entity ID.
func (e *AsyncEntity) ID() ecs.EntityID {
	return e.id
}

// World returns the AsyncWorld the handle sends through.
func (e *AsyncEntity) World() *AsyncWorld {
	return e.world
}

// Despawn recursively despawns the entity.
func (e *AsyncEntity) Despawn() error {
	if !e.despawned.CompareAndSwap(false, true) {
		return eris.Wrapf(ErrEntityDespawned, "entity %d", e.id)
	}
	return e.world.Despawn(e.id)
}

// Insert inserts components whose types are registered with the world. Either all of them are
// inserted or none.
func (e *AsyncEntity) Insert(components ...ecs.Component) error {
	if err := e.check(); err != nil {
		return err
	}
	return e.world.Apply(InsertBundle{Entity: e.id, Components: components})
}

// RemoveByType removes the components with the given types.
func (e *AsyncEntity) RemoveByType(types ...ecs.TypeKey) error {
	if err := e.check(); err != nil {
		return err
	}
	return e.world.Apply(RemoveBundle{Entity: e.id, Types: types})
}

func (e *AsyncEntity) check() error {
	if e.despawned.Load() {
		return eris.Wrapf(ErrEntityDespawned, "entity %d", e.id)
	}
	return nil
}

// InsertComponentOn inserts a component. T doesn't need to be registered.
func InsertComponentOn[T ecs.Component](e *AsyncEntity, component T) error {
	if err := e.check(); err != nil {
		return err
	}
	return e.world.Apply(InsertComponentOf(e.id, component))
}

// RemoveComponentFrom removes the component T. Removing a missing component is a no-op.
func RemoveComponentFrom[T ecs.Component](e *AsyncEntity) error {
	if err := e.check(); err != nil {
		return err
	}
	return e.world.Apply(RemoveComponentOf[T](e.id))
}

// WaitForComponent waits until the entity has T and returns a copy of it.
func WaitForComponent[T ecs.Component](ctx context.Context, e *AsyncEntity) (T, error) {
	if err := e.check(); err != nil {
		var zero T
		return zero, err
	}
	tx, rx := channel.NewOneShot[T]()
	return await(ctx, e.world, WaitComponentOf(e.id, tx), rx)
}

// StartWaitingFor starts waiting for T without blocking. The result is collected later with
// AsyncValue.Wait.
func StartWaitingFor[T ecs.Component](e *AsyncEntity) (*AsyncComponent[T], error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	tx, rx := channel.NewOneShot[T]()
	if err := e.world.Apply(WaitComponentOf(e.id, tx)); err != nil {
		rx.Close()
		return nil, err
	}
	return &AsyncComponent[T]{rx: rx}, nil
}

// InsertWaitRemove inserts in, then waits until the entity has WR, removes it and returns it. The
// insertion and the start of the wait are applied in the same step, so a system that reacts to in
// can't produce WR before the wait exists.
func InsertWaitRemove[I ecs.Component, WR ecs.Component](ctx context.Context, e *AsyncEntity, in I) (WR, error) {
	if err := e.check(); err != nil {
		var zero WR
		return zero, err
	}
	tx, rx := channel.NewOneShot[WR]()
	op := Queue{
		InsertComponentOf(e.id, in),
		TakeComponentOf(e.id, tx),
	}
	return await(ctx, e.world, op, rx)
}

// -------------------------------------------------------------------------------------------------
// AsyncValue
// -------------------------------------------------------------------------------------------------

// AsyncValue is a wait that was started and whose value hasn't been collected yet.
type AsyncValue[T any] struct {
	rx *channel.Receiver[T]
}

// Wait waits for the value. The wait is over once Wait returns, even if ctx was cancelled.
func (v *AsyncValue[T]) Wait(ctx context.Context) (T, error) {
	return v.rx.RecvAndClose(ctx)
}

// Close gives up on the value.
func (v *AsyncValue[T]) Close() {
	v.rx.Close()
}

// AsyncComponent is a started wait for a component of an entity.
type AsyncComponent[T ecs.Component] = AsyncValue[T]
