package ecs

import (
	"github.com/argus-labs/asyncecs/pkg/assert"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// World represents the root ECS state. It is not safe for concurrent use: every method must be
// called from the goroutine that ticks the world.
type World struct {
	entities   entityManager
	components componentManager
	resources  resourceManager
	messages   messageManager

	hooks    [hookCount]systemScheduler // Per-hook systems, run every tick
	systems  systemManager              // Systems run on demand
	deferred commandBuffer              // Commands deferred by the running system
	current  *systemMetadata            // The running system, if any

	tick   uint64
	logger zerolog.Logger
}

// WorldOption configures a World.
type WorldOption func(*World)

// WithLogger sets the logger of the world and of every system registered afterwards.
func WithLogger(logger zerolog.Logger) WorldOption {
	return func(w *World) { w.logger = logger }
}

// NewWorld creates a new World instance.
func NewWorld(opts ...WorldOption) *World {
	w := &World{
		entities:   newEntityManager(),
		components: newComponentManager(),
		resources:  newResourceManager(),
		messages:   newMessageManager(),
		hooks:      [hookCount]systemScheduler{},
		systems:    newSystemManager(),
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	_, err := register[Name](&w.components)
	assert.That(err == nil, "failed to register the name component")
	return w
}

// Tick runs every hook in order (PreUpdate, Update, PostUpdate, Last) and then advances the message
// buffers. If a system returns an error the tick stops and the error is returned.
func (w *World) Tick() error {
	for i := range w.hooks {
		if err := w.hooks[i].run(w); err != nil {
			return eris.Wrapf(err, "tick %d: %s", w.tick, SystemHook(i))
		}
	}
	w.messages.update()
	w.tick++
	return nil
}

// TickCount returns the number of completed ticks.
func (w *World) TickCount() uint64 {
	return w.tick
}

// Logger returns the logger of the running system, or the world logger outside of systems.
func (w *World) Logger() *zerolog.Logger {
	if w.current != nil {
		return &w.current.logger
	}
	return &w.logger
}

// -------------------------------------------------------------------------------------------------
// Entity operations
// -------------------------------------------------------------------------------------------------

// Spawn creates an entity with the given components. Component types are registered on first use.
func (w *World) Spawn(components ...Component) (EntityID, error) {
	eid, err := w.entities.new()
	if err != nil {
		return 0, err
	}
	if err := w.Insert(eid, components...); err != nil {
		_ = w.entities.remove(eid)
		return 0, eris.Wrap(err, "failed to spawn entity")
	}
	return eid, nil
}

// SpawnChild creates an entity with the given components under parent.
func (w *World) SpawnChild(parent EntityID, components ...Component) (EntityID, error) {
	if !w.Alive(parent) {
		return 0, eris.Wrapf(ErrEntityNotFound, "parent %d", parent)
	}
	eid, err := w.Spawn(components...)
	if err != nil {
		return 0, err
	}
	if err := w.entities.setParent(eid, parent); err != nil {
		return 0, err
	}
	return eid, nil
}

// Despawn deletes an entity and all its components. Its children are kept and become roots.
// Returns false if the entity doesn't exist.
func (w *World) Despawn(eid EntityID) bool {
	if !w.entities.isAlive(eid) {
		return false
	}
	w.components.removeAll(eid)
	err := w.entities.remove(eid)
	return err == nil
}

// DespawnRecursive deletes an entity together with all its descendants. Returns the number of
// entities deleted.
func (w *World) DespawnRecursive(eid EntityID) int {
	if !w.entities.isAlive(eid) {
		return 0
	}
	targets := w.entities.descendants(eid)
	count := 0
	// Children first so the hierarchy is never left pointing at a freed parent.
	for i := len(targets) - 1; i >= 0; i-- {
		if w.Despawn(targets[i]) {
			count++
		}
	}
	return count
}

// Alive checks if an entity exists in the world.
func (w *World) Alive(eid EntityID) bool {
	return w.entities.isAlive(eid)
}

// Generation tells apart entities that got the same recycled ID. It changes every time eid is
// despawned.
func (w *World) Generation(eid EntityID) uint32 {
	return w.entities.generation(eid)
}

// Len returns the number of live entities.
func (w *World) Len() int {
	return len(w.entities.entities)
}

// Entities returns a snapshot of every live entity in creation order, except that despawns swap
// the last entity into the freed slot.
func (w *World) Entities() []EntityID {
	out := make([]EntityID, len(w.entities.entities))
	copy(out, w.entities.entities)
	return out
}

// SetParent attaches child under parent, detaching it from its previous parent.
func (w *World) SetParent(child, parent EntityID) error {
	return w.entities.setParent(child, parent)
}

// Parent returns the parent of an entity.
func (w *World) Parent(eid EntityID) (EntityID, bool) {
	parent, ok := w.entities.parent[eid]
	return parent, ok
}

// Children returns a copy of the children of an entity.
func (w *World) Children(eid EntityID) []EntityID {
	children := w.entities.children[eid]
	out := make([]EntityID, len(children))
	copy(out, children)
	return out
}

// -------------------------------------------------------------------------------------------------
// Type-erased component operations
// -------------------------------------------------------------------------------------------------

// Insert sets components whose types are only known at runtime. Types that were never registered
// are rejected. Nothing is inserted if any component fails validation.
func (w *World) Insert(eid EntityID, components ...Component) error {
	if !w.entities.isAlive(eid) {
		return eris.Wrapf(ErrEntityNotFound, "entity %d", eid)
	}
	columns := make([]abstractColumn, len(components))
	for i, component := range components {
		if component == nil {
			return eris.New("cannot insert a nil component")
		}
		col, err := w.components.column(TypeOfValue(component))
		if err != nil {
			return err
		}
		columns[i] = col
	}
	for i, component := range components {
		columns[i].setAbstract(eid, component)
	}
	return nil
}

// RemoveByType removes the component with the given type key from an entity.
func (w *World) RemoveByType(eid EntityID, key TypeKey) error {
	if !w.entities.isAlive(eid) {
		return eris.Wrapf(ErrEntityNotFound, "entity %d", eid)
	}
	col, err := w.components.column(key)
	if err != nil {
		return err
	}
	if !col.remove(eid) {
		return eris.Wrapf(ErrComponentNotFound, "component %s on entity %d", col.name(), eid)
	}
	return nil
}

// ComponentTypes returns a map of registered component names to their type keys.
func (w *World) ComponentTypes() map[string]TypeKey {
	return w.components.types()
}
