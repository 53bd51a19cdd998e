// Package metrics provides engine metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics contains Prometheus metrics for the analysis engine:
// buffer pool behavior, capture assembly, protocol traffic and detector
// performance.
type EngineMetrics struct {
	// Buffer pool metrics
	poolAcquiresTotal   *prometheus.CounterVec
	poolAcquireDuration prometheus.Histogram
	poolLostTotal       prometheus.Counter
	poolSlowAcquires    prometheus.Counter
	poolSizeGauge       prometheus.Gauge
	poolAvailableGauge  prometheus.Gauge

	// Capture assembly metrics
	assemblyOverflowsTotal prometheus.Counter
	assemblySamplesTotal   prometheus.Counter

	// Protocol metrics
	messagesTotal       *prometheus.CounterVec
	protocolDropsTotal  *prometheus.CounterVec
	batchesDroppedTotal prometheus.Counter

	// Detector metrics
	detectionsTotal   *prometheus.CounterVec
	analysisDuration  prometheus.Histogram
	detectedFrequency prometheus.Histogram
}

// NewEngineMetrics creates and registers new engine metrics
func NewEngineMetrics(registry *prometheus.Registry) (*EngineMetrics, error) {
	m := &EngineMetrics{}
	m.initMetrics()

	collectors := []prometheus.Collector{
		m.poolAcquiresTotal, m.poolAcquireDuration, m.poolLostTotal,
		m.poolSlowAcquires, m.poolSizeGauge, m.poolAvailableGauge,
		m.assemblyOverflowsTotal, m.assemblySamplesTotal,
		m.messagesTotal, m.protocolDropsTotal, m.batchesDroppedTotal,
		m.detectionsTotal, m.analysisDuration, m.detectedFrequency,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *EngineMetrics) initMetrics() {
	m.poolAcquiresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pitchtrack_pool_acquires_total",
			Help: "Total number of buffer pool acquisitions",
		},
		[]string{"result"}, // result: hit, fallback
	)

	m.poolAcquireDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pitchtrack_pool_acquire_duration_seconds",
			Help:    "Time taken to acquire a buffer from the pool",
			Buckets: prometheus.ExponentialBuckets(0.000001, 4, 10), // 1us to ~260ms
		},
	)

	m.poolLostTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pitchtrack_pool_lost_buffers_total",
			Help: "Total number of in-flight buffers reclaimed after timeout",
		},
	)

	m.poolSlowAcquires = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pitchtrack_pool_slow_acquires_total",
			Help: "Total number of acquisitions slower than the pause-detection threshold",
		},
	)

	m.poolSizeGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pitchtrack_pool_size",
			Help: "Configured number of pooled buffers",
		},
	)

	m.poolAvailableGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pitchtrack_pool_available",
			Help: "Number of free buffers in the pool",
		},
	)

	m.assemblyOverflowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pitchtrack_assembly_overflows_total",
			Help: "Total number of samples overwritten before analysis",
		},
	)

	m.assemblySamplesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pitchtrack_assembly_samples_total",
			Help: "Total number of samples appended to the capture assembly",
		},
	)

	m.messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pitchtrack_protocol_messages_total",
			Help: "Total number of protocol messages processed",
		},
		[]string{"direction", "kind"},
	)

	m.protocolDropsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pitchtrack_protocol_drops_total",
			Help: "Total number of malformed or unknown messages dropped",
		},
		[]string{"direction"},
	)

	m.batchesDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pitchtrack_batches_dropped_total",
			Help: "Total number of audio batches dropped due to host backpressure",
		},
	)

	m.detectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pitchtrack_detections_total",
			Help: "Total number of analysis windows by outcome",
		},
		[]string{"outcome"}, // outcome: detected, undetected, silent
	)

	m.analysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pitchtrack_analysis_duration_seconds",
			Help:    "Time taken to analyze one window",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 10), // 100us to ~51ms
		},
	)

	m.detectedFrequency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pitchtrack_detected_frequency_hz",
			Help:    "Distribution of detected fundamental frequencies",
			Buckets: prometheus.ExponentialBuckets(60, 1.5, 9), // 60 Hz to ~2300 Hz
		},
	)
}

// RecordPoolAcquire records one pool acquisition with its outcome and latency.
func (m *EngineMetrics) RecordPoolAcquire(result string, seconds float64) {
	m.poolAcquiresTotal.WithLabelValues(result).Inc()
	m.poolAcquireDuration.Observe(seconds)
}

// RecordPoolLost records reclaimed in-flight buffers.
func (m *EngineMetrics) RecordPoolLost(n int) {
	m.poolLostTotal.Add(float64(n))
}

// RecordPoolSlowAcquire records an acquisition above the pause threshold.
func (m *EngineMetrics) RecordPoolSlowAcquire() {
	m.poolSlowAcquires.Inc()
}

// UpdatePoolGauges updates the pool size and availability gauges.
func (m *EngineMetrics) UpdatePoolGauges(size, available int) {
	m.poolSizeGauge.Set(float64(size))
	m.poolAvailableGauge.Set(float64(available))
}

// RecordAssemblyWrite records appended samples and any overflow loss.
func (m *EngineMetrics) RecordAssemblyWrite(samples, overwritten int) {
	m.assemblySamplesTotal.Add(float64(samples))
	if overwritten > 0 {
		m.assemblyOverflowsTotal.Add(float64(overwritten))
	}
}

// RecordMessage records one processed protocol message.
func (m *EngineMetrics) RecordMessage(direction, kind string) {
	m.messagesTotal.WithLabelValues(direction, kind).Inc()
}

// RecordProtocolDrop records a dropped malformed or unknown message.
func (m *EngineMetrics) RecordProtocolDrop(direction string) {
	m.protocolDropsTotal.WithLabelValues(direction).Inc()
}

// RecordBatchDropped records an audio batch dropped on host backpressure.
func (m *EngineMetrics) RecordBatchDropped() {
	m.batchesDroppedTotal.Inc()
}

// RecordAnalysis records one completed window analysis.
func (m *EngineMetrics) RecordAnalysis(outcome string, seconds, frequency float64) {
	m.detectionsTotal.WithLabelValues(outcome).Inc()
	m.analysisDuration.Observe(seconds)
	if frequency > 0 {
		m.detectedFrequency.Observe(frequency)
	}
}
