package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"reflect"
	"strings"
	"time"

	"github.com/hengadev/classify"
	"github.com/hengadev/classify/classifyjson"
	"github.com/hengadev/classify/internal/monitoring"
)

// Type aliases for interfaces from monitoring package
type (
	MetricsCollector  = monitoring.MetricsCollector
	ObservabilityHook = monitoring.ObservabilityHook
)

// NewInMemoryMetricsCollector returns a collector keeping every metric in
// memory.
func NewInMemoryMetricsCollector() *monitoring.InMemoryMetricsCollector {
	return monitoring.NewInMemoryMetricsCollector()
}

// Encoding is the text form a Manager stores documents in.
type Encoding int

const (
	// EncodingAuto picks YAML for names ending in .yaml or .yml and JSON
	// otherwise.
	EncodingAuto Encoding = iota
	EncodingJSON
	EncodingYAML
)

func (e Encoding) String() string {
	switch e {
	case EncodingJSON:
		return "json"
	case EncodingYAML:
		return "yaml"
	default:
		return "auto"
	}
}

// ParseEncoding accepts json, yaml, yml and auto.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto", "":
		return EncodingAuto, nil
	case "json":
		return EncodingJSON, nil
	case "yaml", "yml":
		return EncodingYAML, nil
	}
	return EncodingAuto, fmt.Errorf("%w: unknown encoding '%s'", classify.ErrInvalidConfiguration, s)
}

// EncodingFor resolves EncodingAuto from the extension of name.
func EncodingFor(name string) Encoding {
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml":
		return EncodingYAML
	}
	return EncodingJSON
}

// Encode renders a tree in the encoding e.
func Encode(e Encoding, tree *classifyjson.Value) ([]byte, error) {
	if e == EncodingYAML {
		return classifyjson.ToYAML(tree)
	}
	data, err := classifyjson.MarshalIndent(tree)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Decode parses a document in the encoding e.
func Decode(e Encoding, data []byte) (*classifyjson.Value, error) {
	if e == EncodingYAML {
		return classifyjson.FromYAML(data)
	}
	return classifyjson.Parse(data)
}

type managerConfig[T any] struct {
	encoding Encoding
	logger   *slog.Logger
	hook     ObservabilityHook
	metrics  MetricsCollector
	defaults func() T
	options  []classify.Option
}

// ManagerOption configures a Manager.
type ManagerOption[T any] func(*managerConfig[T]) error

// WithEncoding forces the encoding instead of deriving it from the name.
func WithEncoding[T any](e Encoding) ManagerOption[T] {
	return func(c *managerConfig[T]) error {
		if e < EncodingAuto || e > EncodingYAML {
			return fmt.Errorf("%w: invalid encoding %d", classify.ErrInvalidConfiguration, e)
		}
		c.encoding = e
		return nil
	}
}

// WithLogger sets the logger. The default is the production logger of the
// settings component.
func WithLogger[T any](logger *slog.Logger) ManagerOption[T] {
	return func(c *managerConfig[T]) error {
		if logger == nil {
			return classify.NewInvalidConfigurationError("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithObservabilityHook adds a hook notified around every operation.
func WithObservabilityHook[T any](hook ObservabilityHook) ManagerOption[T] {
	return func(c *managerConfig[T]) error {
		if hook == nil {
			return classify.NewInvalidConfigurationError("observability hook cannot be nil")
		}
		c.hook = hook
		return nil
	}
}

// WithMetricsCollector records operation counts, durations and document
// sizes.
func WithMetricsCollector[T any](collector MetricsCollector) ManagerOption[T] {
	return func(c *managerConfig[T]) error {
		if collector == nil {
			return classify.NewInvalidConfigurationError("metrics collector cannot be nil")
		}
		c.metrics = collector
		return nil
	}
}

// WithDefaults sets the value Load starts from. Fields missing from the
// stored document keep their default.
func WithDefaults[T any](defaults func() T) ManagerOption[T] {
	return func(c *managerConfig[T]) error {
		if defaults == nil {
			return classify.NewInvalidConfigurationError("defaults cannot be nil")
		}
		c.defaults = defaults
		return nil
	}
}

// WithClassifyOptions configures the classifier used to convert values.
func WithClassifyOptions[T any](opts ...classify.Option) ManagerOption[T] {
	return func(c *managerConfig[T]) error {
		c.options = append(c.options, opts...)
		return nil
	}
}

// Manager loads and saves one settings value of type T under a name in a
// Store.
type Manager[T any] struct {
	store      Store
	name       string
	encoding   Encoding
	classifier *classify.Classifier[*classifyjson.Value]
	logger     *slog.Logger
	hook       ObservabilityHook
	metrics    MetricsCollector
	defaults   func() T
}

// NewManager creates a Manager for the document called name in store.
func NewManager[T any](store Store, name string, opts ...ManagerOption[T]) (*Manager[T], error) {
	if store == nil {
		return nil, classify.NewInvalidConfigurationError("store cannot be nil")
	}
	if strings.TrimSpace(name) == "" {
		return nil, classify.NewInvalidConfigurationError("settings name cannot be empty")
	}
	cfg := managerConfig[T]{
		defaults: func() T { var zero T; return zero },
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if cfg.logger == nil {
		cfg.logger = monitoring.NewProductionLogger("settings")
	}
	if cfg.encoding == EncodingAuto {
		cfg.encoding = EncodingFor(name)
	}

	c, err := classifyjson.NewClassifier(cfg.options...)
	if err != nil {
		return nil, err
	}
	if err := classify.Check(c.Options(), reflect.TypeFor[T]()); err != nil {
		return nil, fmt.Errorf("settings type %s cannot be classified: %w", reflect.TypeFor[T](), err)
	}

	hooks := []ObservabilityHook{monitoring.NewLoggingObservabilityHook(cfg.logger)}
	if cfg.metrics != nil {
		hooks = append(hooks, monitoring.NewMetricsObservabilityHook(cfg.metrics))
	}
	if cfg.hook != nil {
		hooks = append(hooks, cfg.hook)
	}

	return &Manager[T]{
		store:      store,
		name:       name,
		encoding:   cfg.encoding,
		classifier: c,
		logger:     cfg.logger.With("settings", name, "store", storeKind(store)),
		hook:       monitoring.NewCompositeObservabilityHook(hooks...),
		metrics:    cfg.metrics,
		defaults:   cfg.defaults,
	}, nil
}

func (m *Manager[T]) Name() string { return m.name }

func (m *Manager[T]) Encoding() Encoding { return m.encoding }

// Load returns the stored value. When nothing is stored it returns the
// defaults and no error.
func (m *Manager[T]) Load(ctx context.Context) (T, error) {
	v := m.defaults()
	if err := m.LoadInto(ctx, &v); err != nil {
		if errors.Is(err, ErrNotFound) {
			m.logger.InfoContext(ctx, "no stored settings, using defaults")
			return m.defaults(), nil
		}
		var zero T
		return zero, err
	}
	return v, nil
}

// LoadInto populates the value target points to from the stored document.
// Fields absent from the document keep their current values. It returns
// ErrNotFound when nothing is stored.
func (m *Manager[T]) LoadInto(ctx context.Context, target *T) error {
	if target == nil {
		return classify.NewInvalidTargetError("target cannot be nil")
	}
	return m.run(ctx, "load", func() (int, error) {
		data, err := m.store.Load(ctx, m.name)
		if err != nil {
			return 0, err
		}
		tree, err := Decode(m.encoding, data)
		if err != nil {
			return len(data), fmt.Errorf("failed to decode settings '%s': %w", m.name, err)
		}
		if err := m.classifier.DeserializeIntoObject(tree, target, nil); err != nil {
			return len(data), fmt.Errorf("failed to restore settings '%s': %w", m.name, err)
		}
		return len(data), nil
	})
}

// Save stores v, replacing any previous document.
func (m *Manager[T]) Save(ctx context.Context, v T) error {
	return m.run(ctx, "save", func() (int, error) {
		data, err := m.Marshal(v)
		if err != nil {
			return 0, err
		}
		return len(data), m.store.Save(ctx, m.name, data)
	})
}

// Reset deletes the stored document so that the next Load returns the
// defaults.
func (m *Manager[T]) Reset(ctx context.Context) error {
	return m.run(ctx, "reset", func() (int, error) {
		return 0, m.store.Delete(ctx, m.name)
	})
}

// Marshal renders v the way Save stores it.
func (m *Manager[T]) Marshal(v T) ([]byte, error) {
	tree, err := m.classifier.Serialize(v, reflect.TypeFor[T]())
	if err != nil {
		return nil, fmt.Errorf("failed to serialize settings '%s': %w", m.name, err)
	}
	return Encode(m.encoding, tree)
}

func (m *Manager[T]) run(ctx context.Context, operation string, fn func() (int, error)) error {
	metadata := map[string]any{"store": storeKind(m.store), "name": m.name}
	m.hook.OnOperationStart(ctx, operation, metadata)
	start := time.Now()
	size, err := fn()
	m.hook.OnOperationComplete(ctx, operation, time.Since(start), err, metadata)
	if m.metrics != nil && err == nil && size > 0 {
		m.metrics.RecordValue("classify.settings.bytes", float64(size), map[string]string{"operation": operation})
	}
	return err
}
