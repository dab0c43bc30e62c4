// Package publisher delivers audit events to a sink, inline or through a
// bounded queue.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	dErrors "praman/pkg/domain-errors"
	audit "praman/pkg/platform/audit"
	"praman/pkg/platform/audit/metrics"
)

var ErrClosed = errors.New("audit publisher closed")

// Publisher is append-only. Emit never blocks the request path: in async
// mode a full queue drops the event and reports it.
type Publisher struct {
	sink    audit.Sink
	logger  *slog.Logger
	metrics *metrics.Metrics

	queue    chan audit.Event
	attempts uint64
	minWait  time.Duration

	mu     sync.RWMutex
	closed bool
	done   sync.WaitGroup
}

type PublisherOption func(*Publisher)

// WithAsyncBuffer queues up to size events for a background writer.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.queue = make(chan audit.Event, size)
		}
	}
}

// WithRetry makes the background writer try a failing sink up to attempts
// times, backing off exponentially from initial. Inline emits never retry.
func WithRetry(attempts int, initial time.Duration) PublisherOption {
	return func(p *Publisher) {
		if attempts > 1 {
			p.attempts = uint64(attempts)
		}
		if initial > 0 {
			p.minWait = initial
		}
	}
}

func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) PublisherOption {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func NewPublisher(sink audit.Sink, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		sink:     sink,
		logger:   slog.New(slog.DiscardHandler),
		attempts: 1,
		minWait:  100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.queue != nil {
		p.done.Add(1)
		go p.drain()
	}
	return p
}

// Emit stamps the event and hands it to the sink or the queue.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if p.queue == nil {
		return p.write(ctx, event)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- event:
		p.observe(func(m *metrics.Metrics) { m.EventsEnqueued.Inc() })
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.observe(func(m *metrics.Metrics) { m.EventsDropped.Inc() })
		p.logger.Warn("audit buffer full, event dropped", "action", event.Action)
		return dErrors.New(dErrors.CodeInternal, "audit buffer full")
	}
}

func (p *Publisher) drain() {
	defer p.done.Done()
	for event := range p.queue {
		p.observe(func(m *metrics.Metrics) { m.QueueDepth.Set(float64(len(p.queue))) })
		if err := p.writeWithRetry(event); err != nil {
			p.logger.Error("failed to persist audit event",
				"error", err,
				"action", event.Action,
			)
		}
	}
}

func (p *Publisher) writeWithRetry(event audit.Event) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.minWait
	policy.MaxElapsedTime = 0

	attempt := uint64(0)
	return backoff.Retry(func() error {
		attempt++
		if attempt > 1 {
			p.observe(func(m *metrics.Metrics) { m.PersistRetries.Inc() })
		}
		return p.write(context.Background(), event)
	}, backoff.WithMaxRetries(policy, p.attempts-1))
}

func (p *Publisher) write(ctx context.Context, event audit.Event) error {
	start := time.Now()
	err := p.sink.Append(ctx, event)
	p.observe(func(m *metrics.Metrics) {
		m.PersistDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			m.PersistFailures.Inc()
		}
	})
	return err
}

func (p *Publisher) observe(fn func(*metrics.Metrics)) {
	if p.metrics != nil {
		fn(p.metrics)
	}
}

// Close stops accepting events and waits for the queue to drain. It is safe
// to call more than once.
func (p *Publisher) Close() {
	if p.queue == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.done.Wait()
}
