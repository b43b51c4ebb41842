package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hengadev/classify"
	"github.com/hengadev/classify/internal/monitoring"
	"github.com/hengadev/classify/internal/reliability"
)

// ErrUnavailable is returned by a ReliableStore while its circuit is open.
var ErrUnavailable = errors.New("settings store unavailable")

// ReliabilityConfig configures a ReliableStore. Zero fields take their
// default.
type ReliabilityConfig struct {
	// MaxAttempts per operation, including the first one (default 3)
	MaxAttempts int
	// InitialDelay before the first retry, doubled after each one (default 100ms)
	InitialDelay time.Duration
	// MaxDelay caps the delay between retries (default 5s)
	MaxDelay time.Duration
	// FailureThreshold is the number of consecutive failed operations that
	// opens the circuit (default 5)
	FailureThreshold int
	// OpenTimeout is how long the circuit stays open (default 30s)
	OpenTimeout time.Duration
	// Logger receives retries and circuit changes
	Logger *slog.Logger
}

// ReliableStore retries the transient failures of a remote Store and stops
// calling it for a while after repeated failures.
type ReliableStore struct {
	store   Store
	retrier *reliability.Retrier
	breaker *reliability.CircuitBreaker
	logger  *slog.Logger
}

var _ Store = (*ReliableStore)(nil)

// NewReliableStore wraps store.
func NewReliableStore(store Store, cfg ReliabilityConfig) (*ReliableStore, error) {
	if store == nil {
		return nil, classify.NewInvalidConfigurationError("store cannot be nil")
	}
	if cfg.MaxAttempts < 0 || cfg.FailureThreshold < 0 || cfg.InitialDelay < 0 || cfg.MaxDelay < 0 || cfg.OpenTimeout < 0 {
		return nil, classify.NewInvalidConfigurationError("reliability settings cannot be negative")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = monitoring.NewDiscardLogger()
	}
	kind := storeKind(store)
	logger = logger.With("store", kind)

	retrier := reliability.NewRetrier(reliability.RetryConfig{
		MaxAttempts:  cfg.MaxAttempts,
		InitialDelay: cfg.InitialDelay,
		MaxDelay:     cfg.MaxDelay,
		ShouldRetry:  isTransient,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			logger.Warn("retrying settings operation", "attempt", attempt, "delay", delay, "error", err)
		},
	})
	breaker := reliability.NewCircuitBreaker(kind, reliability.CircuitBreakerConfig{
		FailureThreshold: cfg.FailureThreshold,
		Timeout:          cfg.OpenTimeout,
		ShouldTrip:       isTransient,
		OnStateChange: func(name string, from, to reliability.CircuitState) {
			logger.Warn("circuit state changed", "from", from.String(), "to", to.String())
		},
	})
	return &ReliableStore{store: store, retrier: retrier, breaker: breaker, logger: logger}, nil
}

// Kind reports the kind of the wrapped store.
func (s *ReliableStore) Kind() string { return storeKind(s.store) }

// Unwrap returns the wrapped store.
func (s *ReliableStore) Unwrap() Store { return s.store }

// CircuitState returns CLOSED, OPEN or HALF_OPEN.
func (s *ReliableStore) CircuitState() string { return s.breaker.State().String() }

func (s *ReliableStore) Load(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		data, err = s.store.Load(ctx, name)
		return err
	})
	return data, err
}

func (s *ReliableStore) Save(ctx context.Context, name string, data []byte) error {
	return s.do(ctx, func(ctx context.Context) error {
		return s.store.Save(ctx, name, data)
	})
}

func (s *ReliableStore) Delete(ctx context.Context, name string) error {
	return s.do(ctx, func(ctx context.Context) error {
		return s.store.Delete(ctx, name)
	})
}

// do runs one operation through the breaker; the breaker sees the outcome
// after all retries.
func (s *ReliableStore) do(ctx context.Context, op func(context.Context) error) error {
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.retrier.Execute(ctx, op)
	})
	if reliability.IsCircuitOpenError(err) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

// isTransient reports whether err may go away on its own. Missing
// documents, bad configuration and malformed data do not.
func isTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		classify.IsConfigurationError(err),
		errors.Is(err, classify.ErrInvalidFormat):
		return false
	}
	return true
}
