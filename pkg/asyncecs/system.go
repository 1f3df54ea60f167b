package asyncecs

import (
	"context"
	"sync/atomic"

	"github.com/argus-labs/asyncecs/pkg/assert"
	"github.com/argus-labs/asyncecs/pkg/channel"
	"github.com/argus-labs/asyncecs/pkg/ecs"
	"github.com/rotisserie/eris"
)

// systemRefs counts the live handles of a registered system. The last Close runs release.
type systemRefs struct {
	count   atomic.Int32
	release func() error
}

func newSystemRefs(release func() error) *systemRefs {
	refs := &systemRefs{release: release}
	refs.count.Store(1)
	return refs
}

func (r *systemRefs) acquire() {
	r.count.Add(1)
}

func (r *systemRefs) drop() error {
	if r.count.Add(-1) == 0 {
		return r.release()
	}
	return nil
}

// -------------------------------------------------------------------------------------------------
// AsyncSystem
// -------------------------------------------------------------------------------------------------

// AsyncSystem is a handle to a system registered through AsyncWorld.RegisterSystem. The system is
// unregistered when the last clone of the handle is closed.
type AsyncSystem struct {
	id     ecs.SystemID
	world  *AsyncWorld
	refs   *systemRefs
	closed atomic.Bool
}

func newAsyncSystem(aw *AsyncWorld, id ecs.SystemID) *AsyncSystem {
	release := func() error {
		return aw.ApplyCommand(func(w *ecs.World) {
			if err := w.UnregisterSystem(id); err != nil {
				logger(w).Debug().Err(err).Msg("system was already unregistered")
			}
		})
	}
	return &AsyncSystem{id: id, world: aw, refs: newSystemRefs(release)}
}

// ID returns the system ID.
func (s *AsyncSystem) ID() ecs.SystemID {
	return s.id
}

// Run runs the system once at the end of the current tick.
func (s *AsyncSystem) Run() error {
	if s.closed.Load() {
		return eris.Wrapf(ErrHandleClosed, "system %d", s.id)
	}
	return s.world.Apply(RunSystem{System: s.id})
}

// Clone returns another handle to the same system.
func (s *AsyncSystem) Clone() *AsyncSystem {
	s.refs.acquire()
	return &AsyncSystem{id: s.id, world: s.world, refs: s.refs}
}

// Close releases the handle. Closing a handle twice is a no-op.
func (s *AsyncSystem) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.refs.drop()
}

// -------------------------------------------------------------------------------------------------
// AsyncIOSystem
// -------------------------------------------------------------------------------------------------

// IOSystemFunc is a system that takes an input and produces an output.
type IOSystemFunc[I, O any] func(w *ecs.World, in I) (O, error)

// ioBeacon carries the input and the output channel of one IO system run. It only exists on the
// beacon entity while the system runs.
type ioBeacon struct {
	input  any
	output *channel.Sender[any]
}

func (ioBeacon) Name() string { return "asyncecs.io_beacon" }

// ioFailure is delivered instead of an output when the IO system returns an error.
type ioFailure struct {
	err error
}

// ioRegistration is the result of registering an IO system.
type ioRegistration struct {
	system ecs.SystemID
	beacon ecs.EntityID
}

// AsyncIOSystem is a handle to a system that maps an input to an output. The system is unregistered
// and its beacon entity despawned when the last clone of the handle is closed.
type AsyncIOSystem[I, O any] struct {
	reg    ioRegistration
	world  *AsyncWorld
	refs   *systemRefs
	closed atomic.Bool
}

// RegisterIO registers fn as an IO system.
func RegisterIO[I, O any](ctx context.Context, aw *AsyncWorld, fn IOSystemFunc[I, O]) (*AsyncIOSystem[I, O], error) {
	tx, rx := channel.NewOneShot[ioRegistration]()
	err := aw.ApplyCommand(func(w *ecs.World) {
		beacon, err := w.Spawn(ecs.Name("IOSystemBeacon"))
		if err != nil {
			fatal(w, eris.Wrap(err, "failed to spawn io system beacon"))
		}
		system := w.RegisterSystem(ioSystem(beacon, fn), ecs.WithName(ecs.TypeOf[IOSystemFunc[I, O]]().String()))
		deliver(w, tx, ioRegistration{system: system, beacon: beacon}, "registered io system")
	})
	if err != nil {
		rx.Close()
		return nil, err
	}
	reg, err := rx.RecvAndClose(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "failed to receive registered io system")
	}

	release := func() error {
		return aw.ApplyCommand(func(w *ecs.World) {
			if err := w.UnregisterSystem(reg.system); err != nil {
				logger(w).Debug().Err(err).Msg("io system was already unregistered")
			}
			w.DespawnRecursive(reg.beacon)
		})
	}
	return &AsyncIOSystem[I, O]{reg: reg, world: aw, refs: newSystemRefs(release)}, nil
}

// ioSystem adapts fn to a system that reads its input from the beacon and delivers the output
// through the channel found next to it.
func ioSystem[I, O any](beacon ecs.EntityID, fn IOSystemFunc[I, O]) ecs.SystemFunc {
	return func(w *ecs.World) error {
		b, err := ecs.Get[ioBeacon](w, beacon)
		if err != nil {
			return eris.Wrap(err, "io system ran without input")
		}
		in, ok := b.input.(I)
		assert.That(ok, "io system got input of type %T", b.input)

		out, err := fn(w, in)
		if err != nil {
			deliver[any](w, b.output, ioFailure{err: err}, "io system output")
			return nil
		}
		deliver[any](w, b.output, out, "io system output")
		return nil
	}
}

// ID returns the system ID.
func (s *AsyncIOSystem[I, O]) ID() ecs.SystemID {
	return s.reg.system
}

// Run runs the system with in at the end of the current tick and returns its output. Errors
// returned by the system are returned as is.
func (s *AsyncIOSystem[I, O]) Run(ctx context.Context, in I) (O, error) {
	var zero O
	if s.closed.Load() {
		return zero, eris.Wrapf(ErrHandleClosed, "io system %d", s.reg.system)
	}

	tx, rx := channel.NewOneShot[any]()
	op := RunSystemWithInput{System: s.reg.system, Beacon: s.reg.beacon, Input: in, Output: tx}
	result, err := await(ctx, s.world, op, rx)
	if err != nil {
		return zero, eris.Wrap(err, "failed to receive io system output")
	}

	switch v := result.(type) {
	case nil:
		return zero, nil
	case ioFailure:
		return zero, v.err
	case O:
		return v, nil
	default:
		return zero, eris.Errorf("io system returned %T", result)
	}
}

// Clone returns another handle to the same system.
func (s *AsyncIOSystem[I, O]) Clone() *AsyncIOSystem[I, O] {
	s.refs.acquire()
	return &AsyncIOSystem[I, O]{reg: s.reg, world: s.world, refs: s.refs}
}

// Close releases the handle. Closing a handle twice is a no-op.
func (s *AsyncIOSystem[I, O]) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.refs.drop()
}
