package asyncecs

import (
	"github.com/argus-labs/asyncecs/pkg/assert"
	"github.com/argus-labs/asyncecs/pkg/channel"
	"github.com/argus-labs/asyncecs/pkg/ecs"
	"github.com/rotisserie/eris"
)

// Operation is a request to mutate or query the world. Operations are sent to the world through an
// AsyncWorld and applied exactly once, in send order, at the end of a tick.
//
// The set of operations is closed: every implementation lives in this package.
type Operation interface {
	apply(w *ecs.World)
}

var (
	_ Operation = RawCommand(nil)
	_ Operation = SpawnEmpty{}
	_ Operation = SpawnNamed{}
	_ Operation = SpawnWithComponents{}
	_ Operation = Despawn{}
	_ Operation = InsertComponent{}
	_ Operation = InsertBundle{}
	_ Operation = RemoveComponent{}
	_ Operation = RemoveBundle{}
	_ Operation = InsertResource{}
	_ Operation = RemoveResource{}
	_ Operation = SendMessage{}
	_ Operation = WaitFor{}
	_ Operation = RunSystem{}
	_ Operation = RunSystemWithInput{}
	_ Operation = Queue(nil)
)

// RawCommand runs an arbitrary function against the world.
type RawCommand func(w *ecs.World)

func (c RawCommand) apply(w *ecs.World) {
	c(w)
}

// -------------------------------------------------------------------------------------------------
// Spawn / despawn
// -------------------------------------------------------------------------------------------------

// SpawnEmpty spawns an entity without components and delivers its ID.
type SpawnEmpty struct {
	Result *channel.Sender[ecs.EntityID]
}

func (op SpawnEmpty) apply(w *ecs.World) {
	deliver(w, op.Result, spawn(w), "spawned entity")
}

// SpawnNamed spawns an entity with an ecs.Name and delivers its ID.
type SpawnNamed struct {
	Name   string
	Result *channel.Sender[ecs.EntityID]
}

func (op SpawnNamed) apply(w *ecs.World) {
	eid := spawn(w, ecs.Name(op.Name))
	deliver(w, op.Result, eid, "spawned entity")
}

// SpawnWithComponents spawns an entity with components and delivers its ID. The component types
// must be registered with the world; unregistered components are logged and skipped, the entity is
// spawned regardless.
type SpawnWithComponents struct {
	Components []ecs.Component
	Result     *channel.Sender[ecs.EntityID]
}

func (op SpawnWithComponents) apply(w *ecs.World) {
	eid := spawn(w, op.Components...)
	deliver(w, op.Result, eid, "spawned entity")
}

// spawn creates an entity and inserts components one at a time so a bad component doesn't drop
// the others.
func spawn(w *ecs.World, components ...ecs.Component) ecs.EntityID {
	eid, err := w.Spawn()
	if err != nil {
		fatal(w, eris.Wrap(err, "failed to spawn entity"))
	}
	for _, component := range components {
		if err := w.Insert(eid, component); err != nil {
			logger(w).Error().Err(err).Uint32("entity", uint32(eid)).Msg("failed to insert component")
		}
	}
	return eid
}

// Despawn recursively despawns an entity and its descendants.
type Despawn struct {
	Entity ecs.EntityID
}

func (op Despawn) apply(w *ecs.World) {
	if w.DespawnRecursive(op.Entity) == 0 {
		logger(w).Debug().Uint32("entity", uint32(op.Entity)).Msg("despawned entity does not exist")
	}
}

// -------------------------------------------------------------------------------------------------
// Components
// -------------------------------------------------------------------------------------------------

// InsertComponent inserts a component. When built with a literal the component's type must be
// registered with the world; InsertComponentOf doesn't have that requirement.
type InsertComponent struct {
	Entity    ecs.EntityID
	Component ecs.Component

	typed func(w *ecs.World) error
}

// InsertComponentOf builds an InsertComponent that registers T on demand.
func InsertComponentOf[T ecs.Component](eid ecs.EntityID, component T) InsertComponent {
	return InsertComponent{
		Entity:    eid,
		Component: component,
		typed:     func(w *ecs.World) error { return ecs.Set(w, eid, component) },
	}
}

func (op InsertComponent) apply(w *ecs.World) {
	var err error
	if op.typed != nil {
		err = op.typed(w)
	} else {
		err = w.Insert(op.Entity, op.Component)
	}
	if err != nil {
		logger(w).Error().Err(err).Uint32("entity", uint32(op.Entity)).Msg("failed to insert component")
	}
}

// InsertBundle inserts several components at once. Either all of them are inserted or none.
type InsertBundle struct {
	Entity     ecs.EntityID
	Components []ecs.Component
}

func (op InsertBundle) apply(w *ecs.World) {
	if err := w.Insert(op.Entity, op.Components...); err != nil {
		logger(w).Error().Err(err).Uint32("entity", uint32(op.Entity)).Msg("failed to insert bundle")
	}
}

// RemoveComponent removes the component with the given type. Removing a component the entity
// doesn't have is a no-op.
type RemoveComponent struct {
	Entity ecs.EntityID
	Type   ecs.TypeKey
}

// RemoveComponentOf builds a RemoveComponent for T.
func RemoveComponentOf[T ecs.Component](eid ecs.EntityID) RemoveComponent {
	return RemoveComponent{Entity: eid, Type: ecs.TypeOf[T]()}
}

func (op RemoveComponent) apply(w *ecs.World) {
	removeByType(w, op.Entity, op.Type)
}

// RemoveBundle removes several components at once.
type RemoveBundle struct {
	Entity ecs.EntityID
	Types  []ecs.TypeKey
}

func (op RemoveBundle) apply(w *ecs.World) {
	for _, key := range op.Types {
		removeByType(w, op.Entity, key)
	}
}

func removeByType(w *ecs.World, eid ecs.EntityID, key ecs.TypeKey) {
	err := w.RemoveByType(eid, key)
	switch {
	case err == nil:
	case eris.Is(err, ecs.ErrComponentNotFound), eris.Is(err, ecs.ErrComponentNotRegistered):
		logger(w).Debug().Err(err).Msg("removed component does not exist")
	default:
		logger(w).Error().Err(err).Uint32("entity", uint32(eid)).Msg("failed to remove component")
	}
}

// -------------------------------------------------------------------------------------------------
// Resources and messages
// -------------------------------------------------------------------------------------------------

// InsertResource inserts or replaces the resource with the dynamic type of Value.
type InsertResource struct {
	Value any
}

// InsertResourceOf builds an InsertResource for T.
func InsertResourceOf[T any](value T) InsertResource {
	return InsertResource{Value: value}
}

func (op InsertResource) apply(w *ecs.World) {
	if err := ecs.InsertResourceValue(w, op.Value); err != nil {
		logger(w).Error().Err(err).Msg("failed to insert resource")
	}
}

// RemoveResource removes the resource with the given type.
type RemoveResource struct {
	Type ecs.TypeKey
}

// RemoveResourceOf builds a RemoveResource for T.
func RemoveResourceOf[T any]() RemoveResource {
	return RemoveResource{Type: ecs.TypeOf[T]()}
}

func (op RemoveResource) apply(w *ecs.World) {
	if !ecs.RemoveResourceByType(w, op.Type) {
		logger(w).Debug().Stringer("resource", op.Type).Msg("removed resource does not exist")
	}
}

// SendMessage sends a message. When built with a literal the message type must be registered with
// the world; SendMessageOf doesn't have that requirement.
type SendMessage struct {
	Message any

	typed func(w *ecs.World)
}

// SendMessageOf builds a SendMessage for T.
func SendMessageOf[T any](msg T) SendMessage {
	return SendMessage{
		Message: msg,
		typed:   func(w *ecs.World) { ecs.SendMessage(w, msg) },
	}
}

func (op SendMessage) apply(w *ecs.World) {
	if op.typed != nil {
		op.typed(w)
		return
	}
	if err := ecs.SendMessageValue(w, op.Message); err != nil {
		logger(w).Error().Err(err).Msg("failed to send message")
	}
}

// -------------------------------------------------------------------------------------------------
// Waiting
// -------------------------------------------------------------------------------------------------

// WaitFor starts waiting for a component, resource or message. WaitFor values can only be built
// with WaitComponentOf, TakeComponentOf, WaitResourceOf and WaitMessageOf since the wait needs the
// concrete type.
type WaitFor struct {
	Kind   WaitKind
	Type   ecs.TypeKey
	Target ecs.EntityID // Only used by WaitComponent

	start func(w *ecs.World)
}

func (op WaitFor) apply(w *ecs.World) {
	assert.That(op.start != nil, "WaitFor %s(%s) was not built by a constructor", op.Kind, op.Type)
	op.start(w)
}

// -------------------------------------------------------------------------------------------------
// Systems
// -------------------------------------------------------------------------------------------------

// RunSystem runs a registered system once.
type RunSystem struct {
	System ecs.SystemID
}

func (op RunSystem) apply(w *ecs.World) {
	if err := w.RunSystem(op.System); err != nil {
		logger(w).Error().Err(err).Uint32("system", uint32(op.System)).Msg("failed to run system")
	}
}

// RunSystemWithInput runs a registered IO system. Input and Output are attached to the Beacon
// entity right before the system runs and detached right after, so they are only visible to that
// one run.
type RunSystemWithInput struct {
	System ecs.SystemID
	Beacon ecs.EntityID
	Input  any
	Output *channel.Sender[any]
}

func (op RunSystemWithInput) apply(w *ecs.World) {
	if err := ecs.Set(w, op.Beacon, ioBeacon{input: op.Input, output: op.Output}); err != nil {
		logger(w).Error().Err(err).Uint32("system", uint32(op.System)).Msg("io system beacon is gone")
		deliver[any](w, op.Output, ioFailure{err: err}, "io system output")
		return
	}
	// The system only fails before it delivers its output.
	if err := w.RunSystem(op.System); err != nil {
		logger(w).Error().Err(err).Uint32("system", uint32(op.System)).Msg("failed to run io system")
		deliver[any](w, op.Output, ioFailure{err: err}, "io system output")
	}
	_ = ecs.Remove[ioBeacon](w, op.Beacon)
}

// -------------------------------------------------------------------------------------------------
// Queue
// -------------------------------------------------------------------------------------------------

// Queue applies a list of operations in order as one unit. No other operation is applied between
// the first and the last one. Queues can be nested.
type Queue []Operation

func (q Queue) apply(w *ecs.World) {
	for _, op := range q {
		op.apply(w)
	}
}

// -------------------------------------------------------------------------------------------------
// Delivery
// -------------------------------------------------------------------------------------------------

// deliver sends a one-shot result. A result nobody can receive means the bridge was misused (the
// caller gave up on a result it must wait for) and aborts the world goroutine.
func deliver[T any](w *ecs.World, tx *channel.Sender[T], value T, what string) {
	assert.That(tx != nil, "missing result channel for %s", what)
	if err := tx.Send(value); err != nil {
		fatal(w, eris.Wrapf(err, "failed to deliver %s", what))
	}
}
