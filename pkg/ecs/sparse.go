package ecs

import (
	"slices"

	"github.com/argus-labs/asyncecs/pkg/assert"
)

// sparseSet maps entity IDs to dense row indices. A slot holds row+1 so the zero value means the
// entity has no row and the slice can grow without being filled.
type sparseSet struct {
	slots []uint32
	count int
}

const sparseInitialSlots = 128

func newSparseSet() sparseSet {
	return sparseSet{slots: make([]uint32, sparseInitialSlots)}
}

func (s *sparseSet) get(eid EntityID) (int, bool) {
	if int(eid) >= len(s.slots) || s.slots[eid] == 0 {
		return 0, false
	}
	return int(s.slots[eid] - 1), true
}

// set points eid at row, growing the slots to at least twice their size when eid is out of range.
func (s *sparseSet) set(eid EntityID, row int) {
	assert.That(row >= 0, "row must be non-negative, got %d", row)

	if need := int(eid) + 1; need > len(s.slots) {
		size := max(2*len(s.slots), need)
		s.slots = slices.Grow(s.slots, size-len(s.slots))[:size]
	}
	if s.slots[eid] == 0 {
		s.count++
	}
	s.slots[eid] = uint32(row) + 1 //nolint:gosec // rows are bounded by the entity count
}

// remove clears eid and reports whether it had a row.
func (s *sparseSet) remove(eid EntityID) bool {
	if int(eid) >= len(s.slots) || s.slots[eid] == 0 {
		return false
	}
	s.slots[eid] = 0
	s.count--
	return true
}

// len returns the number of entities with a row.
func (s *sparseSet) len() int {
	return s.count
}
