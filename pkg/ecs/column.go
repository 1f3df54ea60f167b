package ecs

import (
	"github.com/argus-labs/asyncecs/pkg/assert"
	"github.com/kelindar/bitmap"
)

// abstractColumn is an internal interface for operations that don't know the component type.
type abstractColumn interface {
	len() int
	name() string
	has(eid EntityID) bool
	remove(eid EntityID) bool
	members() *bitmap.Bitmap
	setAbstract(eid EntityID, component Component)
	getAbstract(eid EntityID) (Component, bool)
}

var _ abstractColumn = &column[Component]{}

// column stores all components of one type. components[i] belongs to entities[i], and rows maps an
// entity ID back to its index.
type column[T Component] struct {
	compName   string        // The name of the component stored in this column
	entities   []EntityID    // Owner of each row
	components []T           // Component data, parallel to entities
	rows       sparseSet     // Entity ID -> row
	owners     bitmap.Bitmap // Set of entity IDs with a row, used to intersect columns
}

// newColumn creates a new column with the specified type.
func newColumn[T Component]() *column[T] {
	var zero T
	const initialCapacity = 16
	return &column[T]{
		compName:   zero.Name(),
		entities:   make([]EntityID, 0, initialCapacity),
		components: make([]T, 0, initialCapacity),
		rows:       newSparseSet(),
	}
}

// len returns the number of entities that have this component.
func (c *column[T]) len() int {
	return len(c.components)
}

// name returns the name of the component type.
func (c *column[T]) name() string {
	return c.compName
}

// has reports whether the entity has a component in this column.
func (c *column[T]) has(eid EntityID) bool {
	_, ok := c.rows.get(eid)
	return ok
}

// set inserts or overwrites the entity's component.
func (c *column[T]) set(eid EntityID, component T) {
	if row, ok := c.rows.get(eid); ok {
		c.components[row] = component
		return
	}
	c.entities = append(c.entities, eid)
	c.components = append(c.components, component)
	c.rows.set(eid, len(c.components)-1)
	c.owners.Set(uint32(eid))
	assert.That(len(c.entities) == len(c.components), "column components length doesn't match entities")
}

// setAbstract sets the component when the concrete type isn't known at compile time.
func (c *column[T]) setAbstract(eid EntityID, component Component) {
	concrete, ok := component.(T)
	assert.That(ok, "tried to set the wrong component type")
	c.set(eid, concrete)
}

// get returns the entity's component.
func (c *column[T]) get(eid EntityID) (T, bool) {
	row, ok := c.rows.get(eid)
	if !ok {
		var zero T
		return zero, false
	}
	return c.components[row], true
}

// getAbstract returns the entity's component boxed in the Component interface.
func (c *column[T]) getAbstract(eid EntityID) (Component, bool) {
	v, ok := c.get(eid)
	if !ok {
		return nil, false
	}
	return v, true
}

// remove removes the entity's component. A remove swaps the last row into the removed row.
func (c *column[T]) remove(eid EntityID) bool {
	row, ok := c.rows.get(eid)
	if !ok {
		return false
	}

	last := len(c.components) - 1
	c.components[row] = c.components[last]
	c.entities[row] = c.entities[last]

	var zero T
	c.components[last] = zero
	c.components = c.components[:last]
	c.entities = c.entities[:last]

	ok = c.rows.remove(eid)
	assert.That(ok, "entity isn't removed from sparse set")
	c.owners.Remove(uint32(eid))

	// If the entity was the last row nothing was swapped.
	if row != last {
		c.rows.set(c.entities[row], row)
	}
	return true
}

// members returns the bitmap of entities that own a component. Callers must not modify it.
func (c *column[T]) members() *bitmap.Bitmap {
	return &c.owners
}

// snapshot returns a copy of the entities that own a component, in row order.
func (c *column[T]) snapshot() []EntityID {
	out := make([]EntityID, len(c.entities))
	copy(out, c.entities)
	return out
}
