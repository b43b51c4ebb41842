package monitoring

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoOpMetricsCollector(t *testing.T) {
	collector := &NoOpMetricsCollector{}
	tags := map[string]string{"test": "value"}

	collector.IncrementCounter("test_counter", tags)
	collector.RecordTiming("test_timing", time.Millisecond, tags)
	collector.RecordValue("test_value", 3.14, tags)
	assert.NoError(t, collector.Flush())
}

func TestInMemoryMetricsCollector_Counters(t *testing.T) {
	collector := NewInMemoryMetricsCollector()
	prod := map[string]string{"env": "prod"}

	collector.IncrementCounter("requests", prod)
	collector.IncrementCounter("requests", prod)
	collector.IncrementCounter("requests", map[string]string{"env": "dev"})

	assert.Equal(t, int64(2), collector.GetCounter("requests", prod))
	assert.Equal(t, int64(1), collector.GetCounter("requests", map[string]string{"env": "dev"}))
	assert.Equal(t, int64(0), collector.GetCounter("requests", nil))

	collector.Reset()
	assert.Equal(t, int64(0), collector.GetCounter("requests", prod))
}

func TestInMemoryMetricsCollector_Samples(t *testing.T) {
	collector := NewInMemoryMetricsCollector()
	tags := map[string]string{"operation": "load"}

	collector.RecordTiming("duration", 150*time.Millisecond, tags)
	collector.RecordTiming("duration", 200*time.Millisecond, tags)
	collector.RecordValue("bytes", 1024, tags)

	assert.Equal(t, []time.Duration{150 * time.Millisecond, 200 * time.Millisecond}, collector.GetTimings("duration", tags))
	assert.Equal(t, []float64{1024}, collector.GetValues("bytes", tags))
	assert.Empty(t, collector.GetTimings("duration", nil))

	timings := collector.GetTimings("duration", tags)
	timings[0] = 0
	assert.Equal(t, 150*time.Millisecond, collector.GetTimings("duration", tags)[0])
}

func TestKeyWithTags(t *testing.T) {
	tests := []struct {
		name       string
		metricName string
		tags       map[string]string
		expected   string
	}{
		{
			name:       "no tags",
			metricName: "test_metric",
			expected:   "test_metric",
		},
		{
			name:       "empty tags",
			metricName: "test_metric",
			tags:       map[string]string{},
			expected:   "test_metric",
		},
		{
			name:       "single tag",
			metricName: "requests",
			tags:       map[string]string{"env": "prod"},
			expected:   "requests,env=prod",
		},
		{
			name:       "multiple tags sorted",
			metricName: "latency",
			tags:       map[string]string{"env": "prod", "store": "file", "operation": "save"},
			expected:   "latency,env=prod,operation=save,store=file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, keyWithTags(tt.metricName, tt.tags))
		})
	}
}

func TestInMemoryMetricsCollector_ConcurrentAccess(t *testing.T) {
	collector := NewInMemoryMetricsCollector()
	tags := map[string]string{"worker": "test"}

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.IncrementCounter("concurrent_test", tags)
			collector.RecordValue("sizes", 1, tags)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), collector.GetCounter("concurrent_test", tags))
	assert.Len(t, collector.GetValues("sizes", tags), 10)
}
