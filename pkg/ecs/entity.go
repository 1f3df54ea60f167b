package ecs

import (
	"math"

	"github.com/argus-labs/asyncecs/pkg/assert"
	"github.com/rotisserie/eris"
)

// EntityID is a unique identifier for an entity.
type EntityID uint32

// MaxEntityID is the maximum entity ID that can be created.
const MaxEntityID = math.MaxUint32 - 1

// entityManager allocates entity IDs and tracks the parent/child hierarchy. IDs of despawned
// entities are recycled in FIFO order so a freshly freed ID is the last one to be handed out again.
type entityManager struct {
	nextID   EntityID                // The next ID to allocate if no free IDs are available
	free     []EntityID              // A queue of free IDs
	gens     []uint32                // Entity ID -> number of times the ID was freed
	alive    sparseSet               // Entity ID -> position in the entities slice
	entities []EntityID              // Dense list of live entities, in creation order
	parent   map[EntityID]EntityID   // Child -> parent
	children map[EntityID][]EntityID // Parent -> children, in insertion order
}

// newEntityManager creates a new entity manager.
func newEntityManager() entityManager {
	return entityManager{
		nextID:   0,
		free:     make([]EntityID, 0),
		gens:     make([]uint32, 0),
		alive:    newSparseSet(),
		entities: make([]EntityID, 0),
		parent:   make(map[EntityID]EntityID),
		children: make(map[EntityID][]EntityID),
	}
}

// new returns a new entity ID.
func (em *entityManager) new() (EntityID, error) {
	var id EntityID
	if len(em.free) > 0 {
		// Pop from the front of the free list (FIFO).
		id = em.free[0]
		em.free = em.free[1:]
	} else {
		id = em.nextID
		if id > MaxEntityID {
			return 0, eris.New("max number of entities exceeded")
		}
		em.nextID++
		em.gens = append(em.gens, 0)
	}

	em.entities = append(em.entities, id)
	em.alive.set(id, len(em.entities)-1)
	return id, nil
}

// remove marks an entity ID as available for reuse and detaches it from the hierarchy. Children
// are not removed, they become roots.
func (em *entityManager) remove(id EntityID) error {
	row, ok := em.alive.get(id)
	if !ok {
		return ErrEntityNotFound
	}

	// Swap remove from the dense list, keeping the moved entity's row up to date.
	last := len(em.entities) - 1
	em.entities[row] = em.entities[last]
	em.entities = em.entities[:last]
	if row != last {
		em.alive.set(em.entities[row], row)
	}
	ok = em.alive.remove(id)
	assert.That(ok, "entity isn't removed from sparse set")

	em.detach(id)
	for _, child := range em.children[id] {
		delete(em.parent, child)
	}
	delete(em.children, id)

	em.gens[id]++
	em.free = append(em.free, id)
	return nil
}

// generation returns how many times id was freed. An entity that reuses a recycled ID has a
// different generation than the one that had it before.
func (em *entityManager) generation(id EntityID) uint32 {
	if int(id) >= len(em.gens) {
		return 0
	}
	return em.gens[id]
}

// isAlive checks if an entity ID is currently active.
func (em *entityManager) isAlive(id EntityID) bool {
	_, ok := em.alive.get(id)
	return ok
}

// setParent attaches child under parent, replacing any previous parent.
func (em *entityManager) setParent(child, parent EntityID) error {
	if !em.isAlive(child) || !em.isAlive(parent) {
		return ErrEntityNotFound
	}
	if child == parent {
		return eris.New("entity cannot be its own parent")
	}
	for p, ok := em.parent[parent]; ok; p, ok = em.parent[p] {
		if p == child {
			return eris.Errorf("setting parent of %d to %d would create a cycle", child, parent)
		}
	}

	em.detach(child)
	em.parent[child] = parent
	em.children[parent] = append(em.children[parent], child)
	return nil
}

// detach removes an entity from its parent's children list.
func (em *entityManager) detach(id EntityID) {
	parent, ok := em.parent[id]
	if !ok {
		return
	}
	siblings := em.children[parent]
	for i, sibling := range siblings {
		if sibling == id {
			em.children[parent] = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	if len(em.children[parent]) == 0 {
		delete(em.children, parent)
	}
	delete(em.parent, id)
}

// descendants returns the entity followed by all of its descendants, parents before children.
func (em *entityManager) descendants(id EntityID) []EntityID {
	out := []EntityID{id}
	for i := 0; i < len(out); i++ {
		out = append(out, em.children[out[i]]...)
	}
	return out
}
