package motion

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Reader is the read side of the position record.
type Reader interface {
	Position() Position
}

// Tracker owns the position record. Producers Submit samples from any
// goroutine; Run is the only code path that writes the position.
type Tracker struct {
	estimator Estimator
	samples   chan Sample
	logger    *slog.Logger

	mu  sync.RWMutex
	pos Position

	dropped atomic.Int64
	applied atomic.Int64
}

// NewTracker creates a tracker starting at the configured origin.
func NewTracker(cfg Config, est Estimator, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultConfig().QueueSize
	}
	return &Tracker{
		estimator: est,
		samples:   make(chan Sample, size),
		logger:    logger.With("component", "motion.tracker", "estimator", est.Name()),
		pos:       Position{X: cfg.OriginX, Y: cfg.OriginY, Status: StatusSearching},
	}
}

// Submit enqueues a sample without blocking. It reports false when the queue
// is full and the sample was dropped.
func (t *Tracker) Submit(s Sample) bool {
	select {
	case t.samples <- s:
		return true
	default:
		t.dropped.Add(1)
		return false
	}
}

// Position returns the latest position snapshot.
func (t *Tracker) Position() Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pos
}

// Status returns a display string such as "Tracking (Step Counter)".
func (t *Tracker) Status() string {
	return t.Position().Status.String() + " (" + t.estimator.Name() + ")"
}

// Stats returns how many samples changed the position and how many were dropped.
func (t *Tracker) Stats() (applied, dropped int64) {
	return t.applied.Load(), t.dropped.Load()
}

// Run consumes samples until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	t.logger.Info("position tracker started")
	defer t.logger.Info("position tracker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case s := <-t.samples:
			t.apply(s)
		}
	}
}

// apply runs one sample through the estimator. Only Run calls it.
func (t *Tracker) apply(s Sample) {
	u := t.estimator.Estimate(s)
	if !u.Changed {
		return
	}

	t.mu.Lock()
	prev := t.pos.Status
	t.pos = u.Apply(t.pos)
	next := t.pos.Status
	t.mu.Unlock()

	t.applied.Add(1)
	if prev != next {
		t.logger.Info("tracking status changed", "from", prev.String(), "to", next.String())
	}
}
