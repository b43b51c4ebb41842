package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(t *testing.T, config CircuitBreakerConfig) (*CircuitBreaker, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker("test", config)
	cb.now = c.now
	return cb, c
}

func fail(context.Context) error    { return errTransient }
func succeed(context.Context) error { return nil }

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(t, CircuitBreakerConfig{FailureThreshold: 2, Timeout: time.Minute})
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, fail), errTransient)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, fail), errTransient)
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(ctx, func(context.Context) error {
		t.Error("function should not be called when circuit is open")
		return nil
	})
	require.Error(t, err)
	assert.True(t, IsCircuitOpenError(err))
	assert.Contains(t, err.Error(), "circuit breaker 'test' is open")
}

func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(t, CircuitBreakerConfig{FailureThreshold: 2})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.NoError(t, cb.Execute(ctx, succeed))
	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 1, cb.Stats().FailureCount)
}

func TestCircuitBreakerHalfOpen(t *testing.T) {
	var transitions []string
	cb, clk := newTestBreaker(t, CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          time.Minute,
		OnStateChange: func(name string, from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateOpen, cb.State())

	clk.advance(time.Minute)
	assert.Equal(t, StateHalfOpen, cb.State())

	// a failed trial reopens the circuit
	assert.ErrorIs(t, cb.Execute(ctx, fail), errTransient)
	assert.Equal(t, StateOpen, cb.State())

	clk.advance(time.Minute)
	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.State())

	assert.Equal(t, []string{
		"CLOSED->OPEN",
		"OPEN->HALF_OPEN",
		"HALF_OPEN->OPEN",
		"OPEN->HALF_OPEN",
		"HALF_OPEN->CLOSED",
	}, transitions)
}

func TestCircuitBreakerSingleTrial(t *testing.T) {
	cb, clk := newTestBreaker(t, CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Second})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clk.advance(time.Second)

	err := cb.Execute(ctx, func(ctx context.Context) error {
		// a second request while the trial runs fails fast
		inner := cb.Execute(ctx, succeed)
		assert.True(t, IsCircuitOpenError(inner))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerShouldTrip(t *testing.T) {
	ignored := errors.New("not found")
	cb, _ := newTestBreaker(t, CircuitBreakerConfig{
		FailureThreshold: 1,
		ShouldTrip:       func(err error) bool { return !errors.Is(err, ignored) },
	})

	for range 3 {
		assert.ErrorIs(t, cb.Execute(context.Background(), func(context.Context) error { return ignored }), ignored)
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitStateString(t *testing.T) {
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "OPEN", StateOpen.String())
	assert.Equal(t, "HALF_OPEN", StateHalfOpen.String())
	assert.Equal(t, "UNKNOWN", CircuitState(9).String())
}
