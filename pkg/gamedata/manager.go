package gamedata

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"slgserver/pkg/logger"
	"slgserver/pkg/metrics"
)

// Table is the manager's type-erased view of one registered config table.
// The generic typed access callers actually want lives on Container[T];
// Table only exists so the Manager can hold a heterogeneous set of tables
// and drive their reload lifecycle uniformly.
type Table interface {
	Name() string
	loadTemp(ctx context.Context) error
	commit() int
	discard()
}

// tableAdapter implements Table for one Container[T] plus the XML file it
// is loaded from.
type tableAdapter[T Record] struct {
	name      string
	path      string
	container *Container[T]
	newRecord func() T

	temp []T
}

// NewXMLTable builds a Table backed by an XML file at path, together with
// the typed Container callers use for lookups. Register the Table with a
// Manager and keep the Container for direct reads.
func NewXMLTable[T Record](name, path string, newRecord func() T) (Table, *Container[T]) {
	c := NewContainer[T]()
	return &tableAdapter[T]{name: name, path: path, container: c, newRecord: newRecord}, c
}

func (t *tableAdapter[T]) Name() string { return t.name }

func (t *tableAdapter[T]) loadTemp(ctx context.Context) error {
	recs, err := LoadFile[T](t.path, t.newRecord)
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	t.temp = recs
	return nil
}

func (t *tableAdapter[T]) commit() int {
	t.container.SetAll(t.temp)
	n := len(t.temp)
	t.temp = nil
	return n
}

func (t *tableAdapter[T]) discard() {
	t.temp = nil
}

// Listener observes the reload lifecycle. A panic or error from one
// listener method never stops the others or the reload itself — each
// call is isolated.
type Listener interface {
	BeforeReload(types []string)
	OnConfigReloaded(table string, success bool)
	AfterReload(result ReloadResult)
}

// ReloadResult summarizes one ReloadMultiple/LoadAll call.
type ReloadResult struct {
	Version  int64
	Reloaded []string
	Failures map[string]error
}

// Manager owns the full set of registered config tables and drives
// load/reload. In atomic mode (the default), a reload that fails any of
// its requested tables discards every temporary snapshot from that call
// and leaves all live tables exactly as they were.
type Manager struct {
	mu         sync.RWMutex
	tables     map[string]Table
	listeners  []Listener
	version    atomic.Int64
	atomicMode bool
}

// NewManager returns a Manager. atomicMode governs whether a partial
// failure within one ReloadMultiple call rolls back every table in that
// call, or commits the tables that succeeded and reports the rest.
func NewManager(atomicMode bool) *Manager {
	return &Manager{tables: make(map[string]Table), atomicMode: atomicMode}
}

// Register adds a table under its name. Call before the first LoadAll.
func (m *Manager) Register(t Table) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[t.Name()] = t
}

// AddListener registers a reload listener.
func (m *Manager) AddListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Version returns the current global config version.
func (m *Manager) Version() int64 {
	return m.version.Load()
}

// LoadAll loads every registered table. Intended for process startup: a
// failure here is generally fatal, since the process has nothing to
// serve until its config is loaded.
func (m *Manager) LoadAll(ctx context.Context) ReloadResult {
	return m.ReloadMultiple(ctx, m.allNames())
}

func (m *Manager) allNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.tables))
	for name := range m.tables {
		names = append(names, name)
	}
	return names
}

func (m *Manager) tablesFor(names []string) []Table {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Table, 0, len(names))
	for _, n := range names {
		if t, ok := m.tables[n]; ok {
			out = append(out, t)
		}
	}
	return out
}

// ReloadMultiple reloads the named tables. Every table is loaded into a
// temporary snapshot first; the live containers are only touched after
// every load in this call has either succeeded or the failure set has
// been decided, so readers never observe a half-reloaded table set.
func (m *Manager) ReloadMultiple(ctx context.Context, names []string) ReloadResult {
	start := time.Now()
	m.fireBeforeReload(names)

	tables := m.tablesFor(names)
	failures := make(map[string]error, len(tables))
	for _, t := range tables {
		if err := t.loadTemp(ctx); err != nil {
			failures[t.Name()] = err
		}
	}

	var reloaded []string
	if len(failures) > 0 && m.atomicMode {
		for _, t := range tables {
			t.discard()
		}
	} else {
		m.mu.Lock()
		for _, t := range tables {
			if failures[t.Name()] != nil {
				t.discard()
				continue
			}
			t.commit()
			reloaded = append(reloaded, t.Name())
		}
		m.mu.Unlock()
	}

	version := m.version.Load()
	if len(reloaded) > 0 {
		version = m.version.Add(1)
	}

	for _, t := range tables {
		metrics.Get().RecordConfigReload(t.Name(), reloadStatus(t.Name(), failures, reloaded), time.Since(start), version)
	}

	for _, t := range tables {
		m.fireOnConfigReloaded(t.Name(), failures[t.Name()] == nil && (!m.atomicMode || len(failures) == 0))
	}

	result := ReloadResult{Version: version, Reloaded: reloaded, Failures: failures}
	m.fireAfterReload(result)
	return result
}

func reloadStatus(name string, failures map[string]error, reloaded []string) string {
	if failures[name] != nil {
		return "failed"
	}
	for _, r := range reloaded {
		if r == name {
			return "success"
		}
	}
	return "rolled_back"
}

func (m *Manager) fireBeforeReload(names []string) {
	for _, l := range m.snapshotListeners() {
		safeCall(func() { l.BeforeReload(names) })
	}
}

func (m *Manager) fireOnConfigReloaded(name string, success bool) {
	for _, l := range m.snapshotListeners() {
		safeCall(func() { l.OnConfigReloaded(name, success) })
	}
}

func (m *Manager) fireAfterReload(result ReloadResult) {
	for _, l := range m.snapshotListeners() {
		safeCall(func() { l.AfterReload(result) })
	}
}

func (m *Manager) snapshotListeners() []Listener {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Listener, len(m.listeners))
	copy(out, m.listeners)
	return out
}

func safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("gamedata listener panicked", "recover", r)
		}
	}()
	fn()
}

// Watch polls for file changes every interval and triggers ReloadMultiple
// for tables whose backing file's mtime has advanced, until ctx is
// cancelled. Watch is best-effort: a stat failure for one table is logged
// and skipped rather than treated as a reload failure.
func Watch(ctx context.Context, m *Manager, interval time.Duration, stat func(name string) (time.Time, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastMod := make(map[string]time.Time)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var changed []string
			for _, name := range m.allNames() {
				mtime, err := stat(name)
				if err != nil {
					logger.Log.Warn("gamedata watch: stat failed", "table", name, "error", err)
					continue
				}
				if prev, ok := lastMod[name]; !ok || mtime.After(prev) {
					lastMod[name] = mtime
					if ok {
						changed = append(changed, name)
					}
				}
			}
			if len(changed) > 0 {
				m.ReloadMultiple(ctx, changed)
			}
		}
	}
}
