package ecs

import (
	"reflect"

	"github.com/rotisserie/eris"
)

// Component is the interface that all components must implement.
// Components are pure data containers that can be attached to entities.
type Component interface { //nolint:iface // We may add more methods in the future.
	// Name returns a unique string identifier for the component type.
	// This should be consistent across program executions.
	Name() string
}

// TypeKey identifies a Go type at runtime. It is comparable and can be used as a map key. The zero
// TypeKey doesn't identify any type.
type TypeKey struct {
	rt reflect.Type
}

// TypeOf returns the TypeKey of T.
func TypeOf[T any]() TypeKey {
	return TypeKey{rt: reflect.TypeFor[T]()}
}

// TypeOfValue returns the TypeKey of the dynamic type of v.
func TypeOfValue(v any) TypeKey {
	return TypeKey{rt: reflect.TypeOf(v)}
}

// IsZero reports whether k doesn't identify a type.
func (k TypeKey) IsZero() bool {
	return k.rt == nil
}

// String returns the Go type name, e.g. "main.Position".
func (k TypeKey) String() string {
	if k.rt == nil {
		return "<nil>"
	}
	return k.rt.String()
}

// componentManager manages component type registration and lookup. Each registered type owns one
// column.
type componentManager struct {
	catalog map[string]TypeKey         // Component name -> type key
	columns map[TypeKey]abstractColumn // Type key -> column
	order   []TypeKey                  // Registration order, used for deterministic iteration
}

// newComponentManager creates a new component manager.
func newComponentManager() componentManager {
	return componentManager{
		catalog: make(map[string]TypeKey),
		columns: make(map[TypeKey]abstractColumn),
		order:   make([]TypeKey, 0),
	}
}

// register registers T and returns its column. If T is already registered, no-op.
func register[T Component](cm *componentManager) (*column[T], error) {
	key := TypeOf[T]()
	if col, ok := cm.columns[key]; ok {
		return col.(*column[T]), nil //nolint:errcheck // the key guarantees the column type
	}

	var zero T
	name := zero.Name()
	if name == "" {
		return nil, eris.Errorf("component %s has an empty name", key)
	}
	if other, exists := cm.catalog[name]; exists {
		return nil, eris.Errorf("component name %q is used by both %s and %s", name, other, key)
	}

	col := newColumn[T]()
	cm.catalog[name] = key
	cm.columns[key] = col
	cm.order = append(cm.order, key)
	return col, nil
}

// get returns the registered column of T, or nil.
func get[T Component](cm *componentManager) *column[T] {
	col, ok := cm.columns[TypeOf[T]()]
	if !ok {
		return nil
	}
	return col.(*column[T]) //nolint:errcheck // the key guarantees the column type
}

// column returns the column for a type key.
func (cm *componentManager) column(key TypeKey) (abstractColumn, error) {
	col, ok := cm.columns[key]
	if !ok {
		return nil, eris.Wrapf(ErrComponentNotRegistered, "component %s", key)
	}
	return col, nil
}

// removeAll removes every component of an entity.
func (cm *componentManager) removeAll(eid EntityID) {
	for _, key := range cm.order {
		cm.columns[key].remove(eid)
	}
}

// types returns the component names mapped to their type keys.
func (cm *componentManager) types() map[string]TypeKey {
	out := make(map[string]TypeKey, len(cm.catalog))
	for name, key := range cm.catalog {
		out[name] = key
	}
	return out
}
