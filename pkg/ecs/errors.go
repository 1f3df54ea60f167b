package ecs

import "github.com/rotisserie/eris"

var (
	// ErrEntityNotFound is returned when attempting to operate on a non-existent entity.
	ErrEntityNotFound = eris.New("entity does not exist")

	// ErrComponentNotFound is returned when an entity doesn't have the requested component.
	ErrComponentNotFound = eris.New("entity does not contain the component")

	// ErrComponentNotRegistered is returned by type-erased operations on component types that were
	// never registered with the world.
	ErrComponentNotRegistered = eris.New("component is not registered")

	// ErrResourceNotFound is returned when the requested resource doesn't exist.
	ErrResourceNotFound = eris.New("resource does not exist")

	// ErrSystemNotFound is returned when running or unregistering an unknown system.
	ErrSystemNotFound = eris.New("system does not exist")
)
