package ecs

import (
	"testing"

	"github.com/argus-labs/asyncecs/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -------------------------------------------------------------------------------------------------
// Model-Based Fuzzing
//
// Drives a sparseSet and a map with the same random writes, reads and deletes. Keys range past the
// initial slot count so growth is exercised too.
// -------------------------------------------------------------------------------------------------

func TestSparseSet_ModelBasedFuzz(t *testing.T) {
	t.Parallel()
	prng := testutils.NewRand(t)

	const (
		opsMax = 1 << 15
		keyMax = 8 * sparseInitialSlots
	)

	set := newSparseSet()
	model := make(map[EntityID]int)

	for range opsMax {
		eid := EntityID(prng.IntN(keyMax))
		if len(model) > 0 && prng.IntN(4) != 0 {
			// Most operations target an entity that has a row.
			eid = testutils.RandMapKey(prng, model)
		}

		switch testutils.RandWeightedOp(prng, sparseSetOps) {
		case spSet:
			row := prng.IntN(1 << 16)
			set.set(eid, row)
			model[eid] = row

		case spGet:
			row, ok := set.get(eid)
			want, wantOK := model[eid]
			// Property: a read agrees with the model on presence and row.
			require.Equal(t, wantOK, ok, "get(%d)", eid)
			assert.Equal(t, want, row, "get(%d)", eid)

		case spRemove:
			_, wantOK := model[eid]
			delete(model, eid)
			// Property: remove reports whether the entity had a row.
			assert.Equal(t, wantOK, set.remove(eid), "remove(%d)", eid)
			_, ok := set.get(eid)
			assert.False(t, ok)

		default:
			panic("unreachable")
		}

		// Property: the count tracks the model size.
		require.Equal(t, len(model), set.len())
	}
}

type sparseSetOp uint8

const (
	spSet    sparseSetOp = 50
	spRemove sparseSetOp = 30
	spGet    sparseSetOp = 20
)

var sparseSetOps = []sparseSetOp{spSet, spRemove, spGet}

func TestSparseSet_RowZeroIsPresent(t *testing.T) {
	t.Parallel()

	set := newSparseSet()
	set.set(3, 0)
	row, ok := set.get(3)
	require.True(t, ok)
	assert.Equal(t, 0, row)

	// Growing keeps existing rows.
	set.set(10*sparseInitialSlots, 7)
	row, ok = set.get(3)
	require.True(t, ok)
	assert.Equal(t, 0, row)
	assert.Equal(t, 2, set.len())
}
