// Package gamedata implements the hot-reloadable XML config engine: typed
// per-table containers, an XML stream-loader with pluggable field
// converters, and a reload manager that swaps tables in atomically with
// rollback on partial failure.
package gamedata

import "sync/atomic"

// Record is implemented by every config row type loaded by this package.
// ID must be stable and comparable so rows can be indexed by it.
type Record interface {
	ID() any
}

// AfterLoader is implemented by a Record that needs to derive fields from
// its raw XML attributes after the declared fields have been populated —
// the gamedata equivalent of a constructor's post-init hook.
type AfterLoader interface {
	AfterLoad(raw map[string]string) error
}

// Validator is implemented by a Record that wants to reject a malformed
// row once every field has been populated and AfterLoad has run.
type Validator interface {
	Validate() error
}

// snapshot is the immutable data behind one Container at a point in time.
type snapshot[T Record] struct {
	byID    map[any]T
	ordered []T
}

// Container holds one config table's rows, indexed by id for O(1) lookup
// and retained in file order for enumeration. SetAll atomically replaces
// the whole table so readers never observe a partially-updated set.
type Container[T Record] struct {
	data atomic.Pointer[snapshot[T]]
}

// NewContainer returns an empty container ready for SetAll.
func NewContainer[T Record]() *Container[T] {
	c := &Container[T]{}
	c.data.Store(&snapshot[T]{byID: map[any]T{}})
	return c
}

// SetAll atomically replaces the container's contents with items, in the
// order given. Existing readers in progress keep observing the old
// snapshot until they next call Get/All.
func (c *Container[T]) SetAll(items []T) {
	byID := make(map[any]T, len(items))
	ordered := make([]T, len(items))
	copy(ordered, items)
	for _, item := range items {
		byID[item.ID()] = item
	}
	c.data.Store(&snapshot[T]{byID: byID, ordered: ordered})
}

// Get returns the row for id, if present.
func (c *Container[T]) Get(id any) (T, bool) {
	snap := c.data.Load()
	rec, ok := snap.byID[id]
	return rec, ok
}

// MustGet returns the row for id, or the zero value if absent.
func (c *Container[T]) MustGet(id any) T {
	rec, _ := c.Get(id)
	return rec
}

// All returns every row in file order. The returned slice is owned by the
// caller and safe to keep; the container never mutates a published
// snapshot's slice in place.
func (c *Container[T]) All() []T {
	snap := c.data.Load()
	out := make([]T, len(snap.ordered))
	copy(out, snap.ordered)
	return out
}

// Len returns the number of rows currently held.
func (c *Container[T]) Len() int {
	return len(c.data.Load().ordered)
}
