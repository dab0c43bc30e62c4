// Package circuit trips a dependency out of the request path after repeated
// failures and lets it back in once it answers again.
package circuit

import (
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
)

func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

// Transition reports whether a Failure or Success call moved the breaker.
type Transition int

const (
	NoTransition Transition = iota
	Opened
	Closed
)

const (
	defaultFailureThreshold = 5
	defaultSuccessThreshold = 3
	defaultCoolOff          = 30 * time.Second
)

// Breaker opens after failureThreshold consecutive failures. While open,
// Allow admits one probe per cool-off period and successThreshold
// consecutive successes close it again.
type Breaker struct {
	mu               sync.Mutex
	name             string
	state            State
	failures         int
	successes        int
	failureThreshold int
	successThreshold int
	coolOff          time.Duration
	openedAt         time.Time
	lastProbe        time.Time
	now              func() time.Time
}

type Option func(*Breaker)

func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.successThreshold = n
		}
	}
}

// WithCoolOff sets how long an open breaker waits between probes.
func WithCoolOff(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.coolOff = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		failureThreshold: defaultFailureThreshold,
		successThreshold: defaultSuccessThreshold,
		coolOff:          defaultCoolOff,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breaker) Name() string {
	return b.name
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether the protected call should be attempted.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateClosed {
		return true
	}
	now := b.now()
	last := b.lastProbe
	if last.Before(b.openedAt) {
		last = b.openedAt
	}
	if now.Sub(last) < b.coolOff {
		return false
	}
	b.lastProbe = now
	return true
}

func (b *Breaker) Failure() Transition {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successes = 0
	if b.state == StateOpen {
		return NoTransition
	}
	b.failures++
	if b.failures < b.failureThreshold {
		return NoTransition
	}
	b.state = StateOpen
	b.openedAt = b.now()
	return Opened
}

func (b *Breaker) Success() Transition {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateClosed {
		b.failures = 0
		return NoTransition
	}
	b.successes++
	if b.successes < b.successThreshold {
		return NoTransition
	}
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
	return Closed
}
