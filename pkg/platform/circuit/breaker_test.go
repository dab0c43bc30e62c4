package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := New("resolver_cache", WithFailureThreshold(3))

	assert.Equal(t, NoTransition, b.Failure())
	assert.Equal(t, NoTransition, b.Failure())
	assert.Equal(t, NoTransition, b.Success(), "a success resets the failure run")
	assert.Equal(t, NoTransition, b.Failure())
	assert.Equal(t, NoTransition, b.Failure())
	assert.Equal(t, Opened, b.Failure())
	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, NoTransition, b.Failure())
}

func TestBreaker_ProbesAfterCoolOff(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := New("resolver_cache",
		WithFailureThreshold(1),
		WithSuccessThreshold(2),
		WithCoolOff(10*time.Second),
		WithClock(clock.now),
	)

	assert.True(t, b.Allow())
	assert.Equal(t, Opened, b.Failure())
	assert.False(t, b.Allow())

	clock.advance(10 * time.Second)
	assert.True(t, b.Allow())
	assert.False(t, b.Allow(), "one probe per cool-off")

	assert.Equal(t, NoTransition, b.Success())
	clock.advance(10 * time.Second)
	assert.True(t, b.Allow())
	assert.Equal(t, Closed, b.Success())
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreaker_FailureWhileOpenResetsProbeRun(t *testing.T) {
	b := New("resolver_cache", WithFailureThreshold(1), WithSuccessThreshold(2))
	b.Failure()

	b.Success()
	b.Failure()
	assert.Equal(t, NoTransition, b.Success())
	assert.Equal(t, Closed, b.Success())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "closed", StateClosed.String())
}
