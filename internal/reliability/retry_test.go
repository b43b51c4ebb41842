package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func fastRetrier(attempts int, shouldRetry func(error) bool) *Retrier {
	return NewRetrier(RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Microsecond,
		MaxDelay:     time.Millisecond,
		Jitter:       0,
		ShouldRetry:  shouldRetry,
	})
}

func TestRetrierSucceedsAfterFailures(t *testing.T) {
	var retries []int
	r := NewRetrier(RetryConfig{
		MaxAttempts:  4,
		InitialDelay: time.Microsecond,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			retries = append(retries, attempt)
			assert.ErrorIs(t, err, errTransient)
		},
	})

	calls := 0
	err := r.Execute(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestRetrierGivesUp(t *testing.T) {
	tests := []struct {
		name        string
		attempts    int
		shouldRetry func(error) bool
		wantCalls   int
	}{
		{"exhausts attempts", 3, nil, 3},
		{"single attempt", 1, nil, 1},
		{"permanent error", 5, func(err error) bool { return !errors.Is(err, errTransient) }, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := fastRetrier(tt.attempts, tt.shouldRetry).Execute(context.Background(), func(context.Context) error {
				calls++
				return errTransient
			})
			assert.ErrorIs(t, err, errTransient)
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestRetrierStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := NewRetrier(RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour})

	calls := 0
	start := time.Now()
	err := r.Execute(ctx, func(context.Context) error {
		calls++
		cancel()
		return errTransient
	})

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Minute)
}

func TestRetrierCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fastRetrier(3, nil).Execute(ctx, func(context.Context) error {
		t.Error("operation should not run")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNextDelay(t *testing.T) {
	r := NewRetrier(RetryConfig{
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2,
		Jitter:       0,
	})

	assert.Equal(t, time.Duration(0), r.NextDelay(-1))
	assert.Equal(t, 10*time.Millisecond, r.NextDelay(0))
	assert.Equal(t, 20*time.Millisecond, r.NextDelay(1))
	assert.Equal(t, 40*time.Millisecond, r.NextDelay(2))
	assert.Equal(t, 50*time.Millisecond, r.NextDelay(3))

	jittered := NewRetrier(RetryConfig{InitialDelay: 100 * time.Millisecond, Jitter: 0.5})
	for range 20 {
		d := jittered.NextDelay(0)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestNewRetrierDefaults(t *testing.T) {
	r := NewRetrier(RetryConfig{Jitter: 2})
	def := DefaultRetryConfig()
	assert.Equal(t, def.MaxAttempts, r.MaxAttempts())
	assert.Equal(t, def.InitialDelay, r.config.InitialDelay)
	assert.Equal(t, def.Jitter, r.config.Jitter)
	assert.NotNil(t, r.config.ShouldRetry)
}

type timeoutError struct{}

func (timeoutError) Error() string { return "i/o timeout" }
func (timeoutError) Timeout() bool { return true }

func TestErrorPredicates(t *testing.T) {
	assert.False(t, IsTemporaryError(nil))
	assert.False(t, IsTemporaryError(errTransient))
	assert.True(t, IsTemporaryError(timeoutError{}))

	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsRetryableStatusCode(code), code)
	}
	for _, code := range []int{200, 400, 403, 404} {
		assert.False(t, IsRetryableStatusCode(code), code)
	}
}
