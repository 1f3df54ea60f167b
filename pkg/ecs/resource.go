package ecs

import (
	"reflect"

	"github.com/rotisserie/eris"
)

// resourceManager stores world-global singletons keyed by their type. Every value is stored as a
// pointer to its type so systems can mutate resources in place.
type resourceManager struct {
	values map[TypeKey]any // Type key -> *T
}

// newResourceManager creates a new resource manager.
func newResourceManager() resourceManager {
	return resourceManager{values: make(map[TypeKey]any)}
}

// InsertResource inserts or replaces the resource of type T.
func InsertResource[T any](w *World, value T) {
	ptr := new(T)
	*ptr = value
	w.resources.values[TypeOf[T]()] = ptr
}

// InsertResourceValue inserts or replaces a resource whose type is only known at runtime. The
// resource is keyed by the dynamic type of value, so GetResource[T] finds it when T is that type.
func InsertResourceValue(w *World, value any) error {
	if value == nil {
		return eris.New("cannot insert a nil resource")
	}
	rv := reflect.ValueOf(value)
	ptr := reflect.New(rv.Type())
	ptr.Elem().Set(rv)
	w.resources.values[TypeOfValue(value)] = ptr.Interface()
	return nil
}

// GetResource returns a copy of the resource of type T.
func GetResource[T any](w *World) (T, bool) {
	ptr, ok := ResourceMut[T](w)
	if !ok {
		var zero T
		return zero, false
	}
	return *ptr, true
}

// ResourceMut returns a pointer to the stored resource of type T. The pointer stays valid until the
// resource is replaced or removed.
func ResourceMut[T any](w *World) (*T, bool) {
	v, ok := w.resources.values[TypeOf[T]()]
	if !ok {
		return nil, false
	}
	return v.(*T), true //nolint:errcheck // the key guarantees the pointer type
}

// HasResource reports whether a resource of type T exists.
func HasResource[T any](w *World) bool {
	_, ok := w.resources.values[TypeOf[T]()]
	return ok
}

// RemoveResource removes the resource of type T and returns its last value.
func RemoveResource[T any](w *World) (T, bool) {
	value, ok := GetResource[T](w)
	if ok {
		delete(w.resources.values, TypeOf[T]())
	}
	return value, ok
}

// RemoveResourceByType removes the resource with the given type key. Returns false if it didn't
// exist.
func RemoveResourceByType(w *World, key TypeKey) bool {
	if _, ok := w.resources.values[key]; !ok {
		return false
	}
	delete(w.resources.values, key)
	return true
}
