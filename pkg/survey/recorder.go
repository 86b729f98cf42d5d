package survey

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/teslashibe/signal-splat/pkg/heatmap"
)

// RecorderConfig tunes the background writer.
type RecorderConfig struct {
	Buffer        int           // queued points before new ones are dropped
	BatchSize     int           // flush when this many points are pending
	FlushInterval time.Duration // flush at least this often
	Logger        *slog.Logger
}

// DefaultRecorderConfig returns a config sized for a 5 Hz sampler.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		Buffer:        1024,
		BatchSize:     64,
		FlushInterval: time.Second,
	}
}

// Recorder mirrors accumulator appends into a session without blocking the
// sampler. Points that arrive while the buffer is full are counted and lost.
type Recorder struct {
	store   *Store
	session string
	cfg     RecorderConfig
	points  chan heatmap.SignalPoint
	logger  *slog.Logger

	written atomic.Int64
	dropped atomic.Int64
}

// NewRecorder creates a recorder for sessionID.
func NewRecorder(store *Store, sessionID string, cfg RecorderConfig) *Recorder {
	def := DefaultRecorderConfig()
	if cfg.Buffer <= 0 {
		cfg.Buffer = def.Buffer
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:   store,
		session: sessionID,
		cfg:     cfg,
		points:  make(chan heatmap.SignalPoint, cfg.Buffer),
		logger:  logger.With("component", "survey.recorder", "session", sessionID),
	}
}

// Attach registers the recorder on acc.
func (r *Recorder) Attach(acc *heatmap.Accumulator) {
	acc.OnAppend(r.Enqueue)
}

// Enqueue queues p for writing without blocking.
func (r *Recorder) Enqueue(p heatmap.SignalPoint) {
	select {
	case r.points <- p:
	default:
		r.dropped.Add(1)
	}
}

// Stats returns written and dropped point counts.
func (r *Recorder) Stats() (written, dropped int64) {
	return r.written.Load(), r.dropped.Load()
}

// Run writes queued points until ctx is cancelled, then flushes what is left.
func (r *Recorder) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	pending := make([]heatmap.SignalPoint, 0, r.cfg.BatchSize)
	flush := func(ctx context.Context) {
		if len(pending) == 0 {
			return
		}
		if err := r.store.RecordBatch(ctx, r.session, pending); err != nil {
			r.logger.Warn("failed to write points", "error", err, "count", len(pending))
			r.dropped.Add(int64(len(pending)))
		} else {
			r.written.Add(int64(len(pending)))
		}
		pending = pending[:0]
	}

	for {
		select {
		case <-ctx.Done():
		drain:
			for {
				select {
				case p := <-r.points:
					pending = append(pending, p)
				default:
					break drain
				}
			}
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			flush(final)
			cancel()
			written, dropped := r.Stats()
			r.logger.Info("recorder stopped", "written", written, "dropped", dropped)
			return
		case p := <-r.points:
			pending = append(pending, p)
			if len(pending) >= r.cfg.BatchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		}
	}
}

// Replay loads a session into acc and returns how many points were stored.
// It stops early when acc is full.
func Replay(ctx context.Context, store *Store, sessionID string, acc *heatmap.Accumulator) (int, error) {
	points, err := store.Points(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range points {
		if !acc.Append(p.X, p.Y, p.SignalDBm) {
			break
		}
		n++
	}
	return n, nil
}
