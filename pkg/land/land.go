// Package land implements the async write-back engine: a fixed pool of
// workers batching submitted entity writes to the SQL executor, with a
// dirty-read cache, optional adaptive batching, and best-effort
// drain-on-shutdown.
package land

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"slgserver/pkg/apperror"
	"slgserver/pkg/entity"
	"slgserver/pkg/logger"
	"slgserver/pkg/metrics"
	"slgserver/pkg/sqlexec"
)

type op int

const (
	opInsert op = iota
	opUpdate
	opDelete
)

func (o op) String() string {
	switch o {
	case opInsert:
		return "insert"
	case opUpdate:
		return "update"
	case opDelete:
		return "delete"
	default:
		return "unknown"
	}
}

type task struct {
	rec            entity.Record
	typeName       string
	op             op
	enqueueVersion int64
	fieldsUsed     []string // dirty fields read for an update task, captured at flush time
	retries        int
}

// Options configures an Engine. Zero values are replaced with the
// documented defaults.
type Options struct {
	LandThreads    int           // worker pool size, default 4
	BatchSize      int           // max tasks per flush, default 200
	LandInterval   time.Duration // timeout backstop per batch, default 50ms
	MaxRetries     int           // per-task retry budget on DB failure, default 3
	QueueCapacity  int           // bounded MPMC queue size, default 10000
	ShutdownGrace  time.Duration // drain window on Shutdown, default 3s
	AdaptiveTuning bool
	Tuner          TunerOptions
}

func (o *Options) setDefaults() {
	if o.LandThreads <= 0 {
		o.LandThreads = 4
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 200
	}
	if o.LandInterval <= 0 {
		o.LandInterval = 50 * time.Millisecond
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = 10000
	}
	if o.ShutdownGrace <= 0 {
		o.ShutdownGrace = 3 * time.Second
	}
	o.Tuner.setDefaults()
}

type dirtyEntry struct {
	rec     entity.Record
	deleted bool
}

// Engine is the write-back engine for one process. It owns no database
// connection directly; all SQL goes through the supplied sqlexec.Executor.
type Engine struct {
	exec *sqlexec.Executor
	opts Options

	queue chan *task

	mu    sync.Mutex
	dirty map[string]map[any]*dirtyEntry // typeName -> pk -> entry

	batchSize    atomic.Int64
	landInterval atomic.Int64 // nanoseconds

	wg       sync.WaitGroup
	stopOnce sync.Once
	stop     chan struct{}

	closeMu sync.Mutex
	closed  bool

	tuner *tuner
}

// New returns a running Engine. Call Shutdown to stop it.
func New(exec *sqlexec.Executor, opts Options) *Engine {
	opts.setDefaults()
	e := &Engine{
		exec:  exec,
		opts:  opts,
		queue: make(chan *task, opts.QueueCapacity),
		dirty: make(map[string]map[any]*dirtyEntry),
		stop:  make(chan struct{}),
	}
	e.batchSize.Store(int64(opts.BatchSize))
	e.landInterval.Store(int64(opts.LandInterval))

	for i := 0; i < opts.LandThreads; i++ {
		e.wg.Add(1)
		go e.worker()
	}

	if opts.AdaptiveTuning {
		e.tuner = newTuner(e, opts.Tuner)
		e.tuner.start()
	}

	return e
}

func (e *Engine) currentBatchSize() int { return int(e.batchSize.Load()) }
func (e *Engine) currentInterval() time.Duration {
	return time.Duration(e.landInterval.Load())
}

// SubmitInsert enqueues rec for its first INSERT, or resurrects a DELETED
// entity back to NEW. No-op if already queued with a pending task.
func (e *Engine) SubmitInsert(rec entity.Record) {
	switch rec.State() {
	case entity.Transient:
		rec.SetState(entity.New)
		e.putDirty(rec, false)
		e.queueIfIdle(rec, opInsert)
	case entity.New:
		e.putDirty(rec, false)
		e.queueIfIdle(rec, opInsert)
	case entity.Deleted:
		rec.SetState(entity.New)
		e.putDirty(rec, false)
		if rec.IsInLandQueue() {
			rec.SyncVersion() // invalidates the in-flight DELETE task
		} else {
			e.queueIfIdle(rec, opInsert)
		}
	case entity.Persistent:
		// already landed; nothing to insert
	}
}

// SubmitUpdate enqueues rec for a partial UPDATE. Requires Persistent
// state; a no-op call on any other state is ignored.
func (e *Engine) SubmitUpdate(rec entity.Record) {
	if rec.State() != entity.Persistent {
		return
	}
	e.putDirty(rec, false)
	e.queueIfIdle(rec, opUpdate)
	// if already queued, the pending task observes rec's live fields when
	// it runs, per this engine reading dirty fields at flush time.
}

// SubmitDelete marks rec for removal. A NEW entity never persisted is
// flipped straight to DELETED without a DB round-trip; a PERSISTENT
// entity is queued for DELETE.
func (e *Engine) SubmitDelete(rec entity.Record) {
	switch rec.State() {
	case entity.New:
		rec.SetState(entity.Deleted)
		e.putDirty(rec, true)
		if rec.IsInLandQueue() {
			rec.SyncVersion() // invalidates the in-flight INSERT task
		}
	case entity.Persistent:
		rec.SetState(entity.Deleted)
		e.putDirty(rec, true)
		if rec.IsInLandQueue() {
			rec.SyncVersion() // invalidates whatever task is currently in flight
		} else {
			e.queueIfIdle(rec, opDelete)
		}
	case entity.Transient, entity.Deleted:
		// nothing to remove
	}
}

func (e *Engine) queueIfIdle(rec entity.Record, o op) {
	if rec.IsInLandQueue() {
		return
	}
	rec.SetInLandQueue(true)
	e.enqueue(&task{rec: rec, typeName: rec.TypeName(), op: o, enqueueVersion: rec.Version()})
}

func (e *Engine) enqueue(t *task) {
	e.closeMu.Lock()
	defer e.closeMu.Unlock()
	if e.closed {
		logger.Log.Error("land task dropped during shutdown", "type", t.typeName, "op", t.op.String(), "pk", t.rec.PK())
		return
	}
	// holding closeMu across a potentially-blocking send is safe here: the
	// queue is only ever closed with closeMu held, so a blocked sender is
	// guaranteed a live channel for the duration of this call.
	e.queue <- t
}

func (e *Engine) putDirty(rec entity.Record, deleted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	byPK, ok := e.dirty[rec.TypeName()]
	if !ok {
		byPK = make(map[any]*dirtyEntry)
		e.dirty[rec.TypeName()] = byPK
	}
	byPK[rec.PK()] = &dirtyEntry{rec: rec, deleted: deleted}
}

func (e *Engine) removeDirty(typeName string, pk any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if byPK, ok := e.dirty[typeName]; ok {
		delete(byPK, pk)
	}
}

// GetDirty returns the cached entity for (typeName, pk), or nil if it is
// absent or marked DELETED.
func (e *Engine) GetDirty(typeName string, pk any) entity.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	byPK, ok := e.dirty[typeName]
	if !ok {
		return nil
	}
	entry, ok := byPK[pk]
	if !ok || entry.deleted {
		return nil
	}
	return entry.rec
}

// IsDeleted reports whether (typeName, pk) is cached with the DELETED marker.
func (e *Engine) IsDeleted(typeName string, pk any) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	byPK, ok := e.dirty[typeName]
	if !ok {
		return false
	}
	entry, ok := byPK[pk]
	return ok && entry.deleted
}

// IsInDirtyCache reports whether (typeName, pk) has any cache entry,
// DELETED or not.
func (e *Engine) IsInDirtyCache(typeName string, pk any) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	byPK, ok := e.dirty[typeName]
	if !ok {
		return false
	}
	_, ok = byPK[pk]
	return ok
}

// GetAllDirty returns every non-DELETED cached entity for typeName.
func (e *Engine) GetAllDirty(typeName string) []entity.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	byPK, ok := e.dirty[typeName]
	if !ok {
		return nil
	}
	out := make([]entity.Record, 0, len(byPK))
	for _, entry := range byPK {
		if !entry.deleted {
			out = append(out, entry.rec)
		}
	}
	return out
}

func (e *Engine) pendingDepth() int {
	return len(e.queue)
}

func (e *Engine) worker() {
	defer e.wg.Done()

	batch := make([]*task, 0, e.currentBatchSize())
	timer := time.NewTimer(e.currentInterval())
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		e.flushBatch(batch)
		batch = batch[:0]
	}

	for {
		select {
		case t, ok := <-e.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, t)
			if len(batch) >= e.currentBatchSize() {
				flush()
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(e.currentInterval())
			}
		case <-timer.C:
			flush()
			timer.Reset(e.currentInterval())
		case <-e.stop:
			flush()
			return
		}
	}
}

type groupKey struct {
	typeName string
	op       op
}

func (e *Engine) flushBatch(batch []*task) {
	groups := make(map[groupKey][]*task)
	for _, t := range batch {
		// Version-mismatch skip: another submit landed on this entity
		// since this task was enqueued.
		if t.rec.Version() != t.enqueueVersion {
			e.handleStale(t)
			continue
		}
		k := groupKey{typeName: t.typeName, op: t.op}
		groups[k] = append(groups[k], t)
	}

	for k, tasks := range groups {
		e.flushGroup(k.typeName, k.op, tasks)
	}
}

// handleStale resolves a version-mismatched task without touching the
// database: either the entity was resurrected while a DELETE was in
// flight (deferred INSERT now runs), or it was deleted before an INSERT
// ever landed (it disappears with no DB round-trip), or some other
// submit has already queued the next task on its own.
func (e *Engine) handleStale(t *task) {
	rec := t.rec
	switch {
	case t.op == opDelete && rec.State() == entity.New:
		e.enqueue(&task{rec: rec, typeName: t.typeName, op: opInsert, enqueueVersion: rec.Version()})
	case t.op == opInsert && rec.State() == entity.Deleted:
		rec.SetInLandQueue(false)
		e.removeDirty(t.typeName, rec.PK())
	case (t.op == opInsert || t.op == opUpdate) && rec.State() == entity.Deleted:
		e.enqueue(&task{rec: rec, typeName: t.typeName, op: opDelete, enqueueVersion: rec.Version()})
	default:
		rec.SetInLandQueue(false)
		if !rec.IsDirty() {
			e.removeDirty(t.typeName, rec.PK())
		}
	}
}

func (e *Engine) flushGroup(typeName string, o op, tasks []*task) {
	start := time.Now()
	ctx := context.Background()

	recs := make([]entity.Record, len(tasks))
	for i, t := range tasks {
		recs[i] = t.rec
		if o == opUpdate {
			t.fieldsUsed = t.rec.DirtyFields()
		}
	}

	var results []sqlexec.RowResult
	var err error
	switch o {
	case opInsert:
		results, err = e.exec.BatchInsert(ctx, recs)
	case opUpdate:
		results, err = e.exec.BatchUpdate(ctx, recs)
	case opDelete:
		results, err = e.exec.BatchDelete(ctx, recs)
	}

	metrics.Get().RecordLandFlush(typeName, o.String(), len(tasks), time.Since(start))

	for i, t := range tasks {
		var rowErr error
		if err != nil {
			rowErr = err
		} else if i < len(results) {
			rowErr = results[i].Err
		}

		if rowErr == nil {
			e.finishTask(t)
			continue
		}
		e.retryOrFail(t, rowErr)
	}
}

func (e *Engine) finishTask(t *task) {
	rec := t.rec

	if t.op != opDelete && rec.State() != entity.Deleted {
		rec.SetState(entity.Persistent)
	}

	switch t.op {
	case opUpdate:
		rec.ClearFields(t.fieldsUsed)
	case opInsert:
		rec.ClearChanges()
	}
	rec.SyncVersion()

	if t.op != opDelete && rec.State() == entity.Deleted {
		// a delete raced in and was deferred while this task was in
		// flight; run it now instead of releasing the land-queue flag.
		e.enqueue(&task{rec: rec, typeName: t.typeName, op: opDelete, enqueueVersion: rec.Version()})
		return
	}

	rec.SetInLandQueue(false)
	if t.op == opDelete {
		e.removeDirty(t.typeName, rec.PK())
		return
	}
	if !rec.IsDirty() {
		e.removeDirty(t.typeName, rec.PK())
	}
}

func (e *Engine) retryOrFail(t *task, cause error) {
	if t.rec.Version() != t.enqueueVersion {
		// the entity moved on since this attempt started; cancel the retry.
		e.handleStale(t)
		return
	}

	if t.retries >= e.opts.MaxRetries {
		logger.Log.Error("land task failed permanently",
			"type", t.typeName, "op", t.op.String(), "pk", t.rec.PK(),
			"fields", t.rec.Fields(), "error", cause)
		metrics.Get().RecordLandRetry(t.typeName)
		// state is left untouched; a future submit may succeed.
		t.rec.SetInLandQueue(false)
		return
	}

	t.retries++
	metrics.Get().RecordLandRetry(t.typeName)
	backoff := time.Duration(t.retries) * 100 * time.Millisecond
	logger.Log.Warn("land task retrying", "type", t.typeName, "op", t.op.String(), "attempt", t.retries, "error", cause)
	go func() {
		time.Sleep(backoff)
		e.enqueue(t)
	}()
}

// Shutdown stops accepting further progress after grace, draining
// in-flight and already-queued tasks within the grace window. Anything
// still queued afterward is logged as lost.
func (e *Engine) Shutdown(ctx context.Context) error {
	var shutdownErr error
	e.stopOnce.Do(func() {
		if e.tuner != nil {
			e.tuner.stop()
		}

		grace := e.opts.ShutdownGrace
		deadline := time.After(grace)

		drained := make(chan struct{})
		go func() {
			e.closeMu.Lock()
			e.closed = true
			close(e.queue)
			e.closeMu.Unlock()

			e.wg.Wait()
			close(drained)
		}()

		select {
		case <-drained:
		case <-deadline:
			shutdownErr = apperror.New(apperror.CodeTimeout, "land engine shutdown grace window expired")
		case <-ctx.Done():
			shutdownErr = ctx.Err()
		}

		lost := e.drainRemaining()
		if len(lost) > 0 {
			for _, t := range lost {
				logger.Log.Error("lost write on shutdown", "type", t.typeName, "op", t.op.String(),
					"pk", t.rec.PK(), "fields", t.rec.Fields())
			}
		}
	})
	return shutdownErr
}

func (e *Engine) drainRemaining() []*task {
	var lost []*task
	for {
		select {
		case t, ok := <-e.queue:
			if !ok {
				return lost
			}
			lost = append(lost, t)
		default:
			return lost
		}
	}
}
