package cleanup

import (
	"context"
	"log/slog"
	"time"

	"praman/internal/platform/metrics"
)

// Sweeper removes idle rate limit buckets older than their window.
type Sweeper interface {
	Sweep(now time.Time) int
}

type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// Worker periodically sweeps the in-memory bucket store. Redis expires its
// keys on its own and needs no worker.
type Worker struct {
	store    Sweeper
	logger   *slog.Logger
	interval time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time
}

func New(store Sweeper, opts ...Option) *Worker {
	w := &Worker{
		store:    store,
		logger:   slog.Default(),
		interval: 5 * time.Minute,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start sweeps every interval until ctx is done.
func (w *Worker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			removed := w.RunOnce()
			w.logger.Debug("rate_limit_sweep_completed",
				"buckets_removed", removed,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		case <-ctx.Done():
			w.logger.Info("rate limit cleanup worker stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// RunOnce executes a single sweep.
func (w *Worker) RunOnce() int {
	removed := w.store.Sweep(w.now())
	w.metrics.AddRateLimitSweeps(removed)
	return removed
}
