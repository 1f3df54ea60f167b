package ecs

// Name is a human readable label for an entity. It doesn't have to be unique.
type Name string

// Name implements Component.
func (Name) Name() string { return "name" }

// String returns the label.
func (n Name) String() string { return string(n) }

// FindByName returns the first entity labelled name.
func FindByName(w *World, name string) (EntityID, bool) {
	var found EntityID
	ok := false
	Each(w, func(eid EntityID, n Name) bool {
		if string(n) == name {
			found, ok = eid, true
			return false
		}
		return true
	})
	return found, ok
}
