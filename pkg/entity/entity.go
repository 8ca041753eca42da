// Package entity implements the base persistent-record model (component
// I): a state machine, per-field dirty tracking, and a version counter
// shared by every type the async land engine and SQL executor operate on.
package entity

import "sync"

// State is a record's position in its persistence lifecycle.
type State int

const (
	// Transient records have never been submitted for persistence.
	Transient State = iota
	// New records are queued for their first INSERT.
	New
	// Persistent records have been successfully written at least once.
	Persistent
	// Deleted records are queued for (or have completed) removal.
	Deleted
)

func (s State) String() string {
	switch s {
	case Transient:
		return "TRANSIENT"
	case New:
		return "NEW"
	case Persistent:
		return "PERSISTENT"
	case Deleted:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}

// Metadata describes how a type maps onto a SQL table: its table name,
// primary key column, and the full ordered column list. A type registers
// this once (typically in an init() or package-level var) instead of via
// reflection-read struct tags, so the land engine and SQL executor share
// one authoritative source without a reflection pass per record.
type Metadata struct {
	Table      string
	PKColumn   string
	Columns    []string
}

// Base is embedded by every persistent record type. It is safe for
// concurrent field-setter use within one goroutine's ownership of the
// entity; the land engine never lets two goroutines hold the same
// entity for writing at once (see pkg/land's at-most-one-task-in-flight
// invariant).
type Base struct {
	mu          sync.Mutex
	state       State
	version     int64
	dirty       map[string]struct{}
	inLandQueue bool
}

// NewBase returns a Base in the Transient state.
func NewBase() Base {
	return Base{state: Transient, dirty: make(map[string]struct{})}
}

// MarkChanged records field as dirty. Called from field setters.
func (b *Base) MarkChanged(field string) *Base {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dirty == nil {
		b.dirty = make(map[string]struct{})
	}
	b.dirty[field] = struct{}{}
	return b
}

// ClearChanges empties the dirty-field set.
func (b *Base) ClearChanges() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dirty = make(map[string]struct{})
}

// ClearFields removes only the named fields from the dirty set, leaving
// any field marked changed after fields was captured (e.g. by a concurrent
// setter call racing a flush in progress) still dirty for the next flush.
func (b *Base) ClearFields(fields []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, f := range fields {
		delete(b.dirty, f)
	}
}

// DirtyFields returns a snapshot of the currently dirty field names.
func (b *Base) DirtyFields() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	fields := make([]string, 0, len(b.dirty))
	for f := range b.dirty {
		fields = append(fields, f)
	}
	return fields
}

// IsDirty reports whether any field is currently marked changed.
func (b *Base) IsDirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.dirty) > 0
}

// SyncVersion increments the version counter, returning the new value.
func (b *Base) SyncVersion() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.version++
	return b.version
}

// Version returns the current version counter.
func (b *Base) Version() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.version
}

// State returns the entity's current lifecycle state.
func (b *Base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// SetState transitions the entity to s.
func (b *Base) SetState(s State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = s
}

// IsInLandQueue reports whether a land-engine task is currently queued
// or in flight for this entity.
func (b *Base) IsInLandQueue() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inLandQueue
}

// SetInLandQueue sets the in-land-queue flag.
func (b *Base) SetInLandQueue(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inLandQueue = v
}

// Record is the interface the land engine and SQL executor require of any
// persistent entity: lifecycle state, a stable primary key, and read
// access to every current field value for INSERT/UPDATE construction. A
// type satisfies it by embedding Base (for the lifecycle methods) and
// implementing PK/TypeName/Fields itself.
type Record interface {
	// PK returns the entity's primary key value.
	PK() any
	// TypeName identifies the entity's registered metadata and table.
	TypeName() string
	// Fields returns every column's current value, keyed by column name.
	Fields() map[string]any

	State() State
	SetState(State)
	Version() int64
	SyncVersion() int64
	DirtyFields() []string
	IsDirty() bool
	ClearChanges()
	ClearFields(fields []string)
	IsInLandQueue() bool
	SetInLandQueue(bool)
}
