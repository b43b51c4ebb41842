package settings

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hengadev/classify"
	"github.com/hengadev/classify/internal/monitoring"
)

type appConfig struct {
	Name   string
	Port   int
	Debug  bool `classify:",ignoreIfDefault"`
	Tags   []string
	Limits map[string]int
}

func defaultConfig() appConfig {
	return appConfig{Name: "app", Port: 8080, Limits: map[string]int{"cpu": 1}}
}

// memoryStore is a Store whose calls are recorded with testify mock.
type memoryStore struct {
	mock.Mock
}

func (s *memoryStore) Load(ctx context.Context, name string) ([]byte, error) {
	args := s.Called(name)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (s *memoryStore) Save(ctx context.Context, name string, data []byte) error {
	return s.Called(name, data).Error(0)
}

func (s *memoryStore) Delete(ctx context.Context, name string) error {
	return s.Called(name).Error(0)
}

func newFileManager(t *testing.T, name string, opts ...ManagerOption[appConfig]) (*Manager[appConfig], string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	opts = append([]ManagerOption[appConfig]{
		WithLogger[appConfig](monitoring.NewDiscardLogger()),
		WithDefaults(defaultConfig),
	}, opts...)
	m, err := NewManager(store, name, opts...)
	require.NoError(t, err)
	return m, dir
}

func TestManagerJSON(t *testing.T) {
	ctx := context.Background()
	m, dir := newFileManager(t, "app.json")
	assert.Equal(t, EncodingJSON, m.Encoding())

	cfg, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)

	cfg.Tags = []string{"a", "b"}
	cfg.Limits["mem"] = 512
	require.NoError(t, m.Save(ctx, cfg))

	data, err := os.ReadFile(filepath.Join(dir, "app.json"))
	require.NoError(t, err)
	assert.Equal(t, `{
  "Name": "app",
  "Port": 8080,
  "Tags": [
    "a",
    "b"
  ],
  "Limits": {
    "cpu": 1,
    "mem": 512
  }
}
`, string(data))

	back, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestManagerKeepsDefaultsForMissingFields(t *testing.T) {
	ctx := context.Background()
	m, dir := newFileManager(t, "partial.json")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "partial.json"), []byte(`{"Name":"svc","Debug":true}`), 0o644))

	cfg, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, appConfig{Name: "svc", Port: 8080, Debug: true, Limits: map[string]int{"cpu": 1}}, cfg)

	var empty appConfig
	require.NoError(t, m.LoadInto(ctx, &empty))
	assert.Equal(t, 0, empty.Port)
	assert.Nil(t, empty.Limits)
}

func TestManagerYAML(t *testing.T) {
	ctx := context.Background()
	m, dir := newFileManager(t, "conf/app.yaml")
	assert.Equal(t, EncodingYAML, m.Encoding())

	cfg := defaultConfig()
	cfg.Tags = []string{"x"}
	require.NoError(t, m.Save(ctx, cfg))

	data, err := os.ReadFile(filepath.Join(dir, "conf", "app.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Name: app\nPort: 8080\n")

	back, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestManagerReset(t *testing.T) {
	ctx := context.Background()
	m, _ := newFileManager(t, "app.json")

	cfg := defaultConfig()
	cfg.Port = 9000
	require.NoError(t, m.Save(ctx, cfg))
	require.NoError(t, m.Reset(ctx))

	var target appConfig
	assert.ErrorIs(t, m.LoadInto(ctx, &target), ErrNotFound)
	back, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8080, back.Port)
}

func TestManagerDecodeErrors(t *testing.T) {
	ctx := context.Background()
	m, dir := newFileManager(t, "app.json")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.json"), []byte(`{"Port":`), 0o644))
	_, err := m.Load(ctx)
	assert.ErrorIs(t, err, classify.ErrInvalidFormat)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.json"), []byte(`{"Port":"many"}`), 0o644))
	_, err = m.Load(ctx)
	assert.True(t, classify.IsTypeError(err), "got %v", err)

	assert.ErrorIs(t, m.LoadInto(ctx, nil), classify.ErrInvalidTarget)
}

func TestManagerStoreFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("backend down")
	store := new(memoryStore)
	store.On("Load", "app.json").Return(nil, boom).Once()
	store.On("Save", "app.json", mock.AnythingOfType("[]uint8")).Return(boom).Once()

	metrics := NewInMemoryMetricsCollector()
	m, err := NewManager(store, "app.json",
		WithLogger[appConfig](monitoring.NewDiscardLogger()),
		WithMetricsCollector[appConfig](metrics))
	require.NoError(t, err)

	_, err = m.Load(ctx)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, m.Save(ctx, defaultConfig()), boom)
	store.AssertExpectations(t)

	tags := map[string]string{"operation": "save", "store": "*settings.memoryStore", "status": "error"}
	assert.Equal(t, int64(1), metrics.GetCounter("classify.operation.failed", tags))
	assert.Empty(t, metrics.GetValues("classify.settings.bytes", map[string]string{"operation": "save"}))
}

type recordingHook struct {
	ops []string
}

func (h *recordingHook) OnOperationStart(ctx context.Context, operation string, metadata map[string]any) {
	h.ops = append(h.ops, "start "+operation)
}

func (h *recordingHook) OnOperationComplete(ctx context.Context, operation string, duration time.Duration, err error, metadata map[string]any) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	h.ops = append(h.ops, operation+" "+status+" "+metadata["store"].(string))
}

func TestManagerObservability(t *testing.T) {
	ctx := context.Background()
	hook := &recordingHook{}
	metrics := NewInMemoryMetricsCollector()
	m, _ := newFileManager(t, "app.json",
		WithObservabilityHook[appConfig](hook),
		WithMetricsCollector[appConfig](metrics))

	require.NoError(t, m.Save(ctx, defaultConfig()))
	_, err := m.Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"start save", "save ok file", "start load", "load ok file"}, hook.ops)
	sizes := metrics.GetValues("classify.settings.bytes", map[string]string{"operation": "save"})
	require.Len(t, sizes, 1)
	assert.Greater(t, sizes[0], 0.0)
}

func TestNewManagerValidation(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	tests := []struct {
		name  string
		store Store
		file  string
		opts  []ManagerOption[appConfig]
	}{
		{"nil store", nil, "a.json", nil},
		{"empty name", store, " ", nil},
		{"nil logger", store, "a.json", []ManagerOption[appConfig]{WithLogger[appConfig](nil)}},
		{"bad encoding", store, "a.json", []ManagerOption[appConfig]{WithEncoding[appConfig](Encoding(7))}},
		{"nil defaults", store, "a.json", []ManagerOption[appConfig]{WithDefaults[appConfig](nil)}},
		{"bad classify option", store, "a.json", []ManagerOption[appConfig]{WithClassifyOptions[appConfig](classify.WithBaseDir(""))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager(tt.store, tt.file, tt.opts...)
			assert.True(t, classify.IsConfigurationError(err), "got %v", err)
		})
	}

	type withChan struct{ C chan int }
	_, err = NewManager[withChan](store, "c.json", WithLogger[withChan](monitoring.NewDiscardLogger()))
	assert.ErrorContains(t, err, "cannot be classified")
}

func TestEncodings(t *testing.T) {
	tests := []struct {
		input string
		want  Encoding
	}{
		{"json", EncodingJSON},
		{"YML", EncodingYAML},
		{"", EncodingAuto},
	}
	for _, tt := range tests {
		got, err := ParseEncoding(tt.input)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
	_, err := ParseEncoding("toml")
	assert.Error(t, err)

	assert.Equal(t, EncodingYAML, EncodingFor("a/b.YML"))
	assert.Equal(t, EncodingJSON, EncodingFor("a/b"))
	assert.Equal(t, "yaml", EncodingYAML.String())
}
