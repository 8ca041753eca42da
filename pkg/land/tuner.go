package land

import (
	"time"
)

// TunerOptions bounds the adaptive controller's adjustments to
// landInterval/batchSize. Hysteretic thresholds (separate backlog/idle
// marks) prevent oscillation around a single depth value.
type TunerOptions struct {
	ControlPeriod    time.Duration
	BacklogThreshold int
	IdleThreshold    int
	MinInterval      time.Duration
	MaxInterval      time.Duration
	MinBatchSize     int
	MaxBatchSize     int
	Step             time.Duration
	BatchStep        int
}

func (t *TunerOptions) setDefaults() {
	if t.ControlPeriod <= 0 {
		t.ControlPeriod = time.Second
	}
	if t.BacklogThreshold <= 0 {
		t.BacklogThreshold = 5000
	}
	if t.IdleThreshold <= 0 {
		t.IdleThreshold = 100
	}
	if t.MinInterval <= 0 {
		t.MinInterval = 10 * time.Millisecond
	}
	if t.MaxInterval <= 0 {
		t.MaxInterval = 500 * time.Millisecond
	}
	if t.MinBatchSize <= 0 {
		t.MinBatchSize = 50
	}
	if t.MaxBatchSize <= 0 {
		t.MaxBatchSize = 1000
	}
	if t.Step <= 0 {
		t.Step = 10 * time.Millisecond
	}
	if t.BatchStep <= 0 {
		t.BatchStep = 50
	}
}

// tuner observes queue depth and nudges the engine's landInterval/batchSize
// within bounds. It never overshoots past the configured floor/ceiling.
type tuner struct {
	engine *Engine
	opts   TunerOptions
	stopCh chan struct{}
	done   chan struct{}
}

func newTuner(e *Engine, opts TunerOptions) *tuner {
	opts.setDefaults()
	return &tuner{engine: e, opts: opts, stopCh: make(chan struct{}), done: make(chan struct{})}
}

func (t *tuner) start() {
	go t.run()
}

func (t *tuner) stop() {
	close(t.stopCh)
	<-t.done
}

func (t *tuner) run() {
	defer close(t.done)
	ticker := time.NewTicker(t.opts.ControlPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.adjust()
		case <-t.stopCh:
			return
		}
	}
}

func (t *tuner) adjust() {
	depth := t.engine.pendingDepth()

	switch {
	case depth >= t.opts.BacklogThreshold:
		t.shrinkInterval()
		t.growBatch()
	case depth <= t.opts.IdleThreshold:
		t.growInterval()
		t.shrinkBatch()
	}
}

func (t *tuner) shrinkInterval() {
	cur := time.Duration(t.engine.landInterval.Load())
	next := cur - t.opts.Step
	if next < t.opts.MinInterval {
		next = t.opts.MinInterval
	}
	t.engine.landInterval.Store(int64(next))
}

func (t *tuner) growInterval() {
	cur := time.Duration(t.engine.landInterval.Load())
	next := cur + t.opts.Step
	if next > t.opts.MaxInterval {
		next = t.opts.MaxInterval
	}
	t.engine.landInterval.Store(int64(next))
}

func (t *tuner) growBatch() {
	cur := int(t.engine.batchSize.Load())
	next := cur + t.opts.BatchStep
	if next > t.opts.MaxBatchSize {
		next = t.opts.MaxBatchSize
	}
	t.engine.batchSize.Store(int64(next))
}

func (t *tuner) shrinkBatch() {
	cur := int(t.engine.batchSize.Load())
	next := cur - t.opts.BatchStep
	if next < t.opts.MinBatchSize {
		next = t.opts.MinBatchSize
	}
	t.engine.batchSize.Store(int64(next))
}
