package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ObservabilityHook is notified around every load and save of a settings
// store.
type ObservabilityHook interface {
	// Called before the operation starts
	OnOperationStart(ctx context.Context, operation string, metadata map[string]any)

	// Called after the operation completes (success or failure)
	OnOperationComplete(ctx context.Context, operation string, duration time.Duration, err error, metadata map[string]any)
}

// NoOpObservabilityHook is a no-op implementation of ObservabilityHook
type NoOpObservabilityHook struct{}

func (n *NoOpObservabilityHook) OnOperationStart(ctx context.Context, operation string, metadata map[string]any) {
}
func (n *NoOpObservabilityHook) OnOperationComplete(ctx context.Context, operation string, duration time.Duration, err error, metadata map[string]any) {
}

// LoggingObservabilityHook logs all operations
type LoggingObservabilityHook struct {
	logger *slog.Logger
}

// NewLoggingObservabilityHook creates a new logging observability hook
func NewLoggingObservabilityHook(logger *slog.Logger) *LoggingObservabilityHook {
	if logger == nil {
		logger = NewDiscardLogger()
	}
	return &LoggingObservabilityHook{
		logger: logger,
	}
}

func (l *LoggingObservabilityHook) OnOperationStart(ctx context.Context, operation string, metadata map[string]any) {
	l.logger.DebugContext(ctx, "operation started", "operation", operation, "metadata", metadata)
}

func (l *LoggingObservabilityHook) OnOperationComplete(ctx context.Context, operation string, duration time.Duration, err error, metadata map[string]any) {
	if err != nil {
		l.logger.ErrorContext(ctx, "operation failed",
			"operation", operation,
			"duration", duration,
			"error", err,
			"metadata", metadata)
		return
	}
	l.logger.InfoContext(ctx, "operation completed",
		"operation", operation,
		"duration", duration,
		"metadata", metadata)
}

// MetricsObservabilityHook collects metrics for operations
type MetricsObservabilityHook struct {
	collector MetricsCollector
}

// NewMetricsObservabilityHook creates a new metrics observability hook
func NewMetricsObservabilityHook(collector MetricsCollector) *MetricsObservabilityHook {
	if collector == nil {
		collector = &NoOpMetricsCollector{}
	}
	return &MetricsObservabilityHook{
		collector: collector,
	}
}

func (m *MetricsObservabilityHook) OnOperationStart(ctx context.Context, operation string, metadata map[string]any) {
	m.collector.IncrementCounter("classify.operation.started", operationTags(operation, metadata))
}

func (m *MetricsObservabilityHook) OnOperationComplete(ctx context.Context, operation string, duration time.Duration, err error, metadata map[string]any) {
	tags := operationTags(operation, metadata)
	if err != nil {
		tags["status"] = "error"
		m.collector.IncrementCounter("classify.operation.failed", tags)
		m.collector.IncrementCounter("classify.errors", map[string]string{
			"operation": operation,
			"error":     fmt.Sprintf("%T", err),
		})
	} else {
		tags["status"] = "success"
		m.collector.IncrementCounter("classify.operation.succeeded", tags)
	}
	m.collector.RecordTiming("classify.operation.duration", duration, tags)
}

func operationTags(operation string, metadata map[string]any) map[string]string {
	tags := map[string]string{"operation": operation}
	if store, ok := metadata["store"].(string); ok {
		tags["store"] = store
	}
	return tags
}

// CompositeObservabilityHook combines multiple hooks
type CompositeObservabilityHook struct {
	hooks []ObservabilityHook
}

// NewCompositeObservabilityHook creates a new composite hook
func NewCompositeObservabilityHook(hooks ...ObservabilityHook) *CompositeObservabilityHook {
	return &CompositeObservabilityHook{
		hooks: hooks,
	}
}

func (c *CompositeObservabilityHook) OnOperationStart(ctx context.Context, operation string, metadata map[string]any) {
	for _, hook := range c.hooks {
		hook.OnOperationStart(ctx, operation, metadata)
	}
}

func (c *CompositeObservabilityHook) OnOperationComplete(ctx context.Context, operation string, duration time.Duration, err error, metadata map[string]any) {
	for _, hook := range c.hooks {
		hook.OnOperationComplete(ctx, operation, duration, err, metadata)
	}
}
