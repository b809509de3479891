package resilience

import (
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(3, time.Minute)
	boom := eris.New("boom")

	for i := 0; i < 3; i++ {
		require.NoError(t, cb.Allow())
		cb.Record(boom)
	}

	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(3, time.Minute)
	boom := eris.New("boom")

	cb.Record(boom)
	cb.Record(boom)
	cb.Record(nil)
	cb.Record(boom)
	cb.Record(boom)

	// Counter reset mid-run, so the breaker is still closed.
	assert.Equal(t, CircuitClosed, cb.State())
	assert.NoError(t, cb.Allow())
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	t.Parallel()

	now := time.Now()
	cb := NewCircuitBreaker(1, 30*time.Second)
	cb.nowFunc = func() time.Time { return now }

	cb.Record(eris.New("boom"))
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	// Advance past the reset timeout: one probe is allowed.
	now = now.Add(31 * time.Second)
	assert.Equal(t, CircuitHalfOpen, cb.State())
	assert.NoError(t, cb.Allow())

	// Failed probe re-opens immediately.
	cb.Record(eris.New("still down"))
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	// Successful probe closes.
	now = now.Add(31 * time.Second)
	require.NoError(t, cb.Allow())
	cb.Record(nil)
	assert.Equal(t, CircuitClosed, cb.State())
	assert.NoError(t, cb.Allow())
}
