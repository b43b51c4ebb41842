package reliability

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig holds configuration for retry operations
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial attempt)
	MaxAttempts int
	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration
	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration
	// Multiplier for exponential backoff
	Multiplier float64
	// Jitter is the fraction of the delay randomized in both directions
	Jitter float64
	// ShouldRetry decides whether an error is worth another attempt
	ShouldRetry func(err error) bool
	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
		ShouldRetry: func(err error) bool {
			return err != nil
		},
	}
}

// Retrier runs operations with exponential backoff.
type Retrier struct {
	config RetryConfig
}

// NewRetrier creates a Retrier. Unset fields take their default.
func NewRetrier(config RetryConfig) *Retrier {
	def := DefaultRetryConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = def.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = def.MaxDelay
	}
	if config.Multiplier <= 0 {
		config.Multiplier = def.Multiplier
	}
	if config.Jitter < 0 || config.Jitter > 1 {
		config.Jitter = def.Jitter
	}
	if config.ShouldRetry == nil {
		config.ShouldRetry = def.ShouldRetry
	}
	return &Retrier{config: config}
}

// MaxAttempts returns the maximum number of attempts
func (r *Retrier) MaxAttempts() int {
	return r.config.MaxAttempts
}

// NextDelay returns the delay after the given attempt (0-indexed)
func (r *Retrier) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		return 0
	}
	delay := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt))
	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}
	if r.config.Jitter > 0 {
		spread := delay * r.config.Jitter
		delay += (rand.Float64()*2 - 1) * spread
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Execute runs operation until it succeeds, returns an error ShouldRetry
// rejects, or runs out of attempts. The last error is returned.
func (r *Retrier) Execute(ctx context.Context, operation func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < r.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := operation(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == r.config.MaxAttempts-1 || !r.config.ShouldRetry(err) {
			break
		}

		delay := r.NextDelay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt+1, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	return lastErr
}

// IsTemporaryError checks if an error reports itself as temporary or as a
// timeout.
func IsTemporaryError(err error) bool {
	if err == nil {
		return false
	}
	if temp, ok := err.(interface{ Temporary() bool }); ok {
		return temp.Temporary()
	}
	if timeout, ok := err.(interface{ Timeout() bool }); ok {
		return timeout.Timeout()
	}
	return false
}

// IsRetryableStatusCode checks if an HTTP status code is retryable
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}
