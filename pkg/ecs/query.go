package ecs

import (
	"github.com/kelindar/bitmap"
	"github.com/rotisserie/eris"
)

// Query matches entities by the component types they have and the ones they must not have.
type Query struct {
	with    []TypeKey
	without []TypeKey
}

// NewQuery matches entities that have every one of the given component types.
func NewQuery(with ...TypeKey) Query {
	return Query{with: with}
}

// Without excludes entities that have any of the given component types.
func (q Query) Without(types ...TypeKey) Query {
	q.without = append(append([]TypeKey{}, q.without...), types...)
	return q
}

// Query returns the matching entities in ascending ID order. Every type the query requires must be
// registered. Excluded types don't need to be.
func (w *World) Query(q Query) ([]EntityID, error) {
	return w.components.query(q.with, q.without)
}

// With2 returns the entities that have both A and B, in ascending ID order.
func With2[A, B Component](w *World) []EntityID {
	out, err := w.components.query([]TypeKey{TypeOf[A](), TypeOf[B]()}, nil)
	if err != nil {
		return nil
	}
	return out
}

// Excluding returns the entities that have T but not X, in ascending ID order.
func Excluding[T, X Component](w *World) []EntityID {
	out, err := w.components.query([]TypeKey{TypeOf[T]()}, []TypeKey{TypeOf[X]()})
	if err != nil {
		return nil
	}
	return out
}

// query intersects the owner bitmaps of the required columns and subtracts the excluded ones.
func (cm *componentManager) query(with, without []TypeKey) ([]EntityID, error) {
	if len(with) == 0 {
		return nil, eris.New("query needs at least one component type")
	}

	var matched bitmap.Bitmap
	for i, key := range with {
		col, err := cm.column(key)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			matched = col.members().Clone(nil)
			continue
		}
		matched.And(*col.members())
	}
	for _, key := range without {
		if col, ok := cm.columns[key]; ok {
			matched.AndNot(*col.members())
		}
	}

	out := make([]EntityID, 0, matched.Count())
	matched.Range(func(x uint32) {
		out = append(out, EntityID(x))
	})
	return out, nil
}
