package ecs

import (
	"slices"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
)

// EntitySnapshot is the JSON view of one entity.
type EntitySnapshot struct {
	ID         EntityID                   `json:"id"`
	Parent     *EntityID                  `json:"parent,omitempty"`
	Components map[string]json.RawMessage `json:"components"`
}

// Snapshot is the JSON view of a world. It is meant for debugging and tests, it can't be loaded
// back into a world.
type Snapshot struct {
	Tick     uint64           `json:"tick"`
	Entities []EntitySnapshot `json:"entities"`
}

// Snapshot captures every entity with its components, ordered by entity ID. Components are keyed by
// their Name.
func (w *World) Snapshot() (Snapshot, error) {
	ids := w.Entities()
	slices.Sort(ids)

	snapshot := Snapshot{Tick: w.tick, Entities: make([]EntitySnapshot, 0, len(ids))}
	for _, eid := range ids {
		entity := EntitySnapshot{ID: eid, Components: make(map[string]json.RawMessage)}
		if parent, ok := w.Parent(eid); ok {
			entity.Parent = &parent
		}
		for _, key := range w.components.order {
			col := w.components.columns[key]
			component, ok := col.getAbstract(eid)
			if !ok {
				continue
			}
			data, err := json.Marshal(component)
			if err != nil {
				return Snapshot{}, eris.Wrapf(err, "failed to serialize component %s of entity %d", col.name(), eid)
			}
			entity.Components[col.name()] = data
		}
		snapshot.Entities = append(snapshot.Entities, entity)
	}
	return snapshot, nil
}

// MarshalJSON implements json.Marshaler using Snapshot.
func (w *World) MarshalJSON() ([]byte, error) {
	snapshot, err := w.Snapshot()
	if err != nil {
		return nil, err
	}
	return json.Marshal(snapshot)
}
