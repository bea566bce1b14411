package store

import (
	"slices"

	"github.com/chklst/deploysync/internal/model"
)

// Collection is an ordered list holding at most one entity per identity.
// Entities without an identity are never stored. It is not safe for
// concurrent use; Synchronizer guards it.
type Collection[T model.Entity] struct {
	items []T
}

// Replace swaps the contents for items, skipping unsaved entities and later
// duplicates of an identity already seen.
func (c *Collection[T]) Replace(items []T) {
	next := make([]T, 0, len(items))
	seen := make(map[int64]struct{}, len(items))
	for _, item := range items {
		id, ok := item.Identity()
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		next = append(next, item)
	}
	c.items = next
}

func (c *Collection[T]) Index(id int64) int {
	return slices.IndexFunc(c.items, func(item T) bool {
		itemID, ok := item.Identity()
		return ok && itemID == id
	})
}

func (c *Collection[T]) Contains(id int64) bool {
	return c.Index(id) >= 0
}

// Get returns the entity with the given identity.
func (c *Collection[T]) Get(id int64) (T, bool) {
	if i := c.Index(id); i >= 0 {
		return c.items[i], true
	}
	var zero T
	return zero, false
}

// Append adds item at the end unless it lacks an identity or is already present.
func (c *Collection[T]) Append(item T) bool {
	if !c.insertable(item) {
		return false
	}
	c.items = append(c.items, item)
	return true
}

// Prepend adds item at the front unless it lacks an identity or is already present.
func (c *Collection[T]) Prepend(item T) bool {
	if !c.insertable(item) {
		return false
	}
	c.items = slices.Insert(c.items, 0, item)
	return true
}

// Set replaces the entry with item's identity in place. Absent identities are
// not added.
func (c *Collection[T]) Set(item T) bool {
	id, ok := item.Identity()
	if !ok {
		return false
	}
	i := c.Index(id)
	if i < 0 {
		return false
	}
	c.items[i] = item
	return true
}

func (c *Collection[T]) Remove(id int64) bool {
	i := c.Index(id)
	if i < 0 {
		return false
	}
	c.items = slices.Delete(c.items, i, i+1)
	return true
}

// Items returns a copy of the entries in order.
func (c *Collection[T]) Items() []T {
	return append([]T{}, c.items...)
}

func (c *Collection[T]) Len() int {
	return len(c.items)
}

func (c *Collection[T]) insertable(item T) bool {
	id, ok := item.Identity()
	return ok && !c.Contains(id)
}
