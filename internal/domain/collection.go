package domain

import "partner-workspace/internal/models"

// Collection is an immutable, ordered set of entities indexed by id. Every
// write returns a new Collection; readers holding the old one are unaffected.
type Collection[T models.Entity] struct {
	items []T
	byID  map[string]int
}

func newCollection[T models.Entity](items []T) Collection[T] {
	c := Collection[T]{
		items: items,
		byID:  make(map[string]int, len(items)),
	}
	for i, v := range items {
		c.byID[v.EntityID()] = i
	}
	return c
}

func (c Collection[T]) Len() int { return len(c.items) }

// Items returns a copy of the entities in store order.
func (c Collection[T]) Items() []T {
	return append([]T(nil), c.items...)
}

func (c Collection[T]) Get(id string) (T, bool) {
	i, ok := c.byID[id]
	if !ok {
		var zero T
		return zero, false
	}
	return c.items[i], true
}

// upsert replaces the entity with v's id when v is at least as new, or appends
// it. The second result reports whether anything changed.
func (c Collection[T]) upsert(v T) (Collection[T], bool) {
	if cur, ok := c.Get(v.EntityID()); ok && cur.EntityVersion() > v.EntityVersion() {
		return c, false
	}
	return c.put(v), true
}

// put writes v regardless of version.
func (c Collection[T]) put(v T) Collection[T] {
	items := append([]T(nil), c.items...)
	if i, ok := c.byID[v.EntityID()]; ok {
		items[i] = v
	} else {
		items = append(items, v)
	}
	return newCollection(items)
}

func (c Collection[T]) remove(id string) (Collection[T], bool) {
	i, ok := c.byID[id]
	if !ok {
		return c, false
	}
	items := make([]T, 0, len(c.items)-1)
	items = append(items, c.items[:i]...)
	items = append(items, c.items[i+1:]...)
	return newCollection(items), true
}

// GetByID finds one entity by id.
func GetByID[T models.Entity](c Collection[T], id string) (T, bool) {
	return c.Get(id)
}

// ListWhere returns the entities matching pred, in store order.
func ListWhere[T models.Entity](c Collection[T], pred func(T) bool) []T {
	var out []T
	for _, v := range c.items {
		if pred(v) {
			out = append(out, v)
		}
	}
	return out
}
