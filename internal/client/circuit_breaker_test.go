package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker(3, 100*time.Millisecond)
	cb.now = func() time.Time { return now }

	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())

	cb.Failure()
	cb.Failure()
	assert.Equal(t, StateClosed, cb.State(), "should remain closed after 2 failures")

	cb.Failure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())

	now = now.Add(150 * time.Millisecond)
	assert.True(t, cb.Allow(), "probe allowed after timeout")
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.False(t, cb.Allow(), "only one probe while half-open")

	// Probe fails: open again.
	cb.Failure()
	assert.Equal(t, StateOpen, cb.State())

	now = now.Add(150 * time.Millisecond)
	assert.True(t, cb.Allow())

	// Probe succeeds: closed.
	cb.Success()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.failures)
	assert.Equal(t, "closed", cb.State().String())
}
