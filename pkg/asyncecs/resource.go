package asyncecs

import (
	"context"

	"github.com/argus-labs/asyncecs/pkg/channel"
)

// AsyncResource is a handle to the resource T.
type AsyncResource[T any] struct {
	world *AsyncWorld
}

// Resource returns a handle to the resource T.
func Resource[T any](aw *AsyncWorld) AsyncResource[T] {
	return AsyncResource[T]{world: aw}
}

// Insert inserts or replaces the resource.
func (r AsyncResource[T]) Insert(value T) error {
	return r.world.Apply(InsertResourceOf(value))
}

// Remove removes the resource.
func (r AsyncResource[T]) Remove() error {
	return r.world.Apply(RemoveResourceOf[T]())
}

// Wait waits until the resource exists and returns a copy of it.
func (r AsyncResource[T]) Wait(ctx context.Context) (T, error) {
	tx, rx := channel.NewOneShot[T]()
	return await(ctx, r.world, WaitResourceOf(tx), rx)
}

// StartWaiting starts waiting for the resource without blocking.
func (r AsyncResource[T]) StartWaiting() (*AsyncValue[T], error) {
	tx, rx := channel.NewOneShot[T]()
	if err := r.world.Apply(WaitResourceOf(tx)); err != nil {
		rx.Close()
		return nil, err
	}
	return &AsyncValue[T]{rx: rx}, nil
}

// WaitForResource waits until the resource T exists and returns a copy of it.
func WaitForResource[T any](ctx context.Context, aw *AsyncWorld) (T, error) {
	return Resource[T](aw).Wait(ctx)
}
