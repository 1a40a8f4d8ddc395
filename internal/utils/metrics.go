// internal/utils/metrics.go
package utils

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector collects application metrics
type MetricsCollector struct {
	counters   map[string]*int64
	gauges     map[string]*int64
	histograms map[string]*Histogram

	mu sync.RWMutex
}

// Histogram tracks count, sum, min and max of observed values
type Histogram struct {
	count int64
	sum   int64
	min   int64
	max   int64
	mu    sync.Mutex
}

// NewMetricsCollector creates an empty collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]*int64),
		gauges:     make(map[string]*int64),
		histograms: make(map[string]*Histogram),
	}
}

// lookup returns the slot for name, creating it under the write lock on first use.
func (m *MetricsCollector) lookup(set map[string]*int64, name string) *int64 {
	m.mu.RLock()
	v, exists := set[name]
	m.mu.RUnlock()
	if exists {
		return v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if v, exists = set[name]; !exists {
		v = new(int64)
		set[name] = v
	}
	return v
}

// IncrementCounter increments a counter metric
func (m *MetricsCollector) IncrementCounter(name string) {
	atomic.AddInt64(m.lookup(m.counters, name), 1)
}

// AddCounter adds a value to a counter metric
func (m *MetricsCollector) AddCounter(name string, value int64) {
	atomic.AddInt64(m.lookup(m.counters, name), value)
}

// SetGauge sets a gauge metric
func (m *MetricsCollector) SetGauge(name string, value int64) {
	atomic.StoreInt64(m.lookup(m.gauges, name), value)
}

// IncGauge increments a gauge metric
func (m *MetricsCollector) IncGauge(name string) {
	atomic.AddInt64(m.lookup(m.gauges, name), 1)
}

// DecGauge decrements a gauge metric
func (m *MetricsCollector) DecGauge(name string) {
	atomic.AddInt64(m.lookup(m.gauges, name), -1)
}

// GetGauge gets the current value of a gauge
func (m *MetricsCollector) GetGauge(name string) int64 {
	m.mu.RLock()
	v, exists := m.gauges[name]
	m.mu.RUnlock()
	if !exists {
		return 0
	}
	return atomic.LoadInt64(v)
}

// GetCounterValue gets the current value of a counter
func (m *MetricsCollector) GetCounterValue(name string) int64 {
	m.mu.RLock()
	v, exists := m.counters[name]
	m.mu.RUnlock()
	if !exists {
		return 0
	}
	return atomic.LoadInt64(v)
}

// RecordHistogram records a value in a histogram
func (m *MetricsCollector) RecordHistogram(name string, value int64) {
	m.mu.RLock()
	histogram, exists := m.histograms[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		histogram, exists = m.histograms[name]
		if !exists {
			histogram = &Histogram{min: value, max: value}
			m.histograms[name] = histogram
		}
		m.mu.Unlock()
	}

	histogram.mu.Lock()
	defer histogram.mu.Unlock()

	histogram.count++
	histogram.sum += value
	if value < histogram.min {
		histogram.min = value
	}
	if value > histogram.max {
		histogram.max = value
	}
}

// GetMetrics returns a snapshot of all metrics
func (m *MetricsCollector) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counters := make(map[string]int64, len(m.counters))
	for name, v := range m.counters {
		counters[name] = atomic.LoadInt64(v)
	}

	gauges := make(map[string]int64, len(m.gauges))
	for name, v := range m.gauges {
		gauges[name] = atomic.LoadInt64(v)
	}

	histograms := make(map[string]map[string]int64, len(m.histograms))
	for name, histogram := range m.histograms {
		histogram.mu.Lock()
		histograms[name] = map[string]int64{
			"count": histogram.count,
			"sum":   histogram.sum,
			"min":   histogram.min,
			"max":   histogram.max,
		}
		histogram.mu.Unlock()
	}

	return map[string]interface{}{
		"counters":   counters,
		"gauges":     gauges,
		"histograms": histograms,
	}
}

// BookMetrics records book store activity on top of a MetricsCollector
type BookMetrics struct {
	metrics *MetricsCollector
	logger  *Logger
}

// NewBookMetrics creates a recorder; a nil logger falls back to the global one.
func NewBookMetrics(metrics *MetricsCollector, logger *Logger) *BookMetrics {
	if metrics == nil {
		metrics = NewMetricsCollector()
	}
	if logger == nil {
		logger = GetLogger()
	}
	return &BookMetrics{metrics: metrics, logger: logger}
}

// Collector exposes the underlying collector
func (bm *BookMetrics) Collector() *MetricsCollector {
	return bm.metrics
}

// UnmatchedEndpoint labels API requests that hit no registered route
const UnmatchedEndpoint = "unmatched"

// RecordAPIRequest records metrics for an API request. endpoint must be a
// route template; an empty endpoint is counted once under UnmatchedEndpoint
// regardless of method.
func (bm *BookMetrics) RecordAPIRequest(endpoint, method string, statusCode int, duration time.Duration) {
	bm.metrics.IncrementCounter("api_requests_total")
	if endpoint == "" {
		bm.metrics.IncrementCounter("api_requests_" + UnmatchedEndpoint)
	} else {
		bm.metrics.IncrementCounter("api_requests_" + method + "_" + endpoint)
	}
	bm.metrics.IncrementCounter("api_responses_" + strconv.Itoa(statusCode/100) + "xx")
	bm.metrics.RecordHistogram("api_response_time_ms", duration.Milliseconds())
}

// RecordWrite records a successful book list or book write
func (bm *BookMetrics) RecordWrite(kind string, bytes int) {
	bm.metrics.IncrementCounter(kind + "_writes_total")
	bm.metrics.RecordHistogram(kind+"_size_bytes", int64(bytes))
}

// RecordDelete records a delete and whether a file was actually removed
func (bm *BookMetrics) RecordDelete(existed bool) {
	bm.metrics.IncrementCounter("book_deletes_total")
	if !existed {
		bm.metrics.IncrementCounter("book_deletes_missing")
	}
}

// RecordError records a failed operation
func (bm *BookMetrics) RecordError(operation, errorType string) {
	bm.metrics.IncrementCounter("errors_total")
	bm.metrics.IncrementCounter("errors_" + operation)

	bm.logger.Warn("operation failed", map[string]interface{}{
		"operation": operation,
		"type":      errorType,
	})
}
