// Package ecs is a small single-threaded entity component system. Entities are plain IDs,
// components live in one sparse-set column per type, resources are type-keyed singletons and
// messages are double-buffered per type. Systems run in four hooks every tick and can also be
// registered and run on demand by ID.
package ecs

import "github.com/rotisserie/eris"

// RegisterComponent registers the component type T so it can be used with the type-erased
// operations (Spawn, Insert, RemoveByType). The generic operations register implicitly.
func RegisterComponent[T Component](w *World) error {
	_, err := register[T](&w.components)
	return err
}

// Set sets a component on an entity. If the entity contains the component type, it will update the
// value. If it doesn't, it will add the component.
func Set[T Component](w *World, eid EntityID, component T) error {
	if !w.entities.isAlive(eid) {
		return eris.Wrapf(ErrEntityNotFound, "entity %d", eid)
	}
	col, err := register[T](&w.components)
	if err != nil {
		return err
	}
	col.set(eid, component)
	return nil
}

// Get gets a component from an entity.
// Returns an error if the entity doesn't exist or doesn't contain the component type.
func Get[T Component](w *World, eid EntityID) (T, error) {
	var zero T
	if !w.entities.isAlive(eid) {
		return zero, eris.Wrapf(ErrEntityNotFound, "entity %d", eid)
	}
	col := get[T](&w.components)
	if col == nil {
		return zero, eris.Wrapf(ErrComponentNotFound, "component %s on entity %d", zero.Name(), eid)
	}
	component, ok := col.get(eid)
	if !ok {
		return zero, eris.Wrapf(ErrComponentNotFound, "component %s on entity %d", zero.Name(), eid)
	}
	return component, nil
}

// Remove removes a component from an entity.
// Returns an error if the entity or the component to remove doesn't exist.
func Remove[T Component](w *World, eid EntityID) error {
	_, err := Take[T](w, eid)
	return err
}

// Take removes a component from an entity and returns its value.
func Take[T Component](w *World, eid EntityID) (T, error) {
	component, err := Get[T](w, eid)
	if err != nil {
		return component, err
	}
	get[T](&w.components).remove(eid)
	return component, nil
}

// Has checks if an entity has a specific component type.
// Returns false if either the entity doesn't exist or doesn't have the component.
func Has[T Component](w *World, eid EntityID) bool {
	col := get[T](&w.components)
	if col == nil {
		return false
	}
	return col.has(eid)
}

// With returns a snapshot of the entities that have the component T. The snapshot isn't affected
// by mutations made while iterating over it.
func With[T Component](w *World) []EntityID {
	col := get[T](&w.components)
	if col == nil {
		return nil
	}
	return col.snapshot()
}

// Count returns the number of entities that have the component T.
func Count[T Component](w *World) int {
	col := get[T](&w.components)
	if col == nil {
		return 0
	}
	return col.len()
}

// Each calls fn for every entity that has the component T, in storage order, until fn returns
// false. fn must not add or remove components of type T.
func Each[T Component](w *World, fn func(EntityID, T) bool) {
	col := get[T](&w.components)
	if col == nil {
		return
	}
	for i, eid := range col.entities {
		if !fn(eid, col.components[i]) {
			return
		}
	}
}
