package observability

import (
	"sync"
	"time"
)

// metricsClient is an in-memory metrics implementation. It keeps counters and
// gauges so the health endpoint can report them; histograms and latencies are
// folded into counters of observations.
type metricsClient struct {
	mu       sync.Mutex
	enabled  bool
	counters map[string]float64
	gauges   map[string]float64
}

// MetricsOptions contains configuration options for creating a metrics client
type MetricsOptions struct {
	Enabled bool
}

// NewMetricsClient creates a new metrics client with default options
func NewMetricsClient() MetricsClient {
	return NewMetricsClientWithOptions(MetricsOptions{Enabled: true})
}

// NewMetricsClientWithOptions creates a new metrics client with specific options
func NewMetricsClientWithOptions(options MetricsOptions) MetricsClient {
	return &metricsClient{
		enabled:  options.Enabled,
		counters: make(map[string]float64),
		gauges:   make(map[string]float64),
	}
}

// IncrementCounter increments a counter metric by a given value
func (m *metricsClient) IncrementCounter(name string, value float64) {
	if !m.enabled {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += value
}

// RecordGauge records a gauge metric
func (m *metricsClient) RecordGauge(name string, value float64) {
	if !m.enabled {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[name] = value
}

// RecordHistogram records a histogram observation
func (m *metricsClient) RecordHistogram(name string, value float64) {
	if !m.enabled {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name+"_count"]++
	m.counters[name+"_sum"] += value
}

// RecordLatency records the duration of an operation
func (m *metricsClient) RecordLatency(operation string, duration time.Duration) {
	m.RecordHistogram(operation+"_latency_seconds", duration.Seconds())
}

// Counters returns a copy of all counter values
func (m *metricsClient) Counters() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]float64, len(m.counters))
	for k, v := range m.counters {
		out[k] = v
	}
	return out
}

// Close releases resources held by the client
func (m *metricsClient) Close() error {
	return nil
}

// NoopMetricsClient discards all metrics
type NoopMetricsClient struct{}

// NewNoopMetricsClient creates a metrics client that does nothing
func NewNoopMetricsClient() MetricsClient {
	return &NoopMetricsClient{}
}

// IncrementCounter implements MetricsClient.IncrementCounter
func (m *NoopMetricsClient) IncrementCounter(name string, value float64) {}

// RecordGauge implements MetricsClient.RecordGauge
func (m *NoopMetricsClient) RecordGauge(name string, value float64) {}

// RecordHistogram implements MetricsClient.RecordHistogram
func (m *NoopMetricsClient) RecordHistogram(name string, value float64) {}

// RecordLatency implements MetricsClient.RecordLatency
func (m *NoopMetricsClient) RecordLatency(operation string, duration time.Duration) {}

// Counters implements MetricsClient.Counters
func (m *NoopMetricsClient) Counters() map[string]float64 { return nil }

// Close implements MetricsClient.Close
func (m *NoopMetricsClient) Close() error { return nil }
