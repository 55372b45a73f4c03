package hifi

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the index counters. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	walked          *prometheus.CounterVec
	filesHashed     prometheus.Counter
	bytesHashed     prometheus.Counter
	hashFailures    prometheus.Counter
	recordsRemoved  prometheus.Counter
	refreshDuration *prometheus.HistogramVec
	indexedRecords  prometheus.Gauge
}

// NewMetrics creates the metrics in a private registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		walked: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hifi_walk_entries_total",
				Help: "Paths visited by the change detector by classification",
			},
			[]string{"class"},
		),
		filesHashed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "hifi_files_hashed_total",
				Help: "Files whose digest was computed",
			},
		),
		bytesHashed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "hifi_bytes_hashed_total",
				Help: "Bytes read while computing digests",
			},
		),
		hashFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "hifi_hash_failures_total",
				Help: "Files that could not be read while hashing",
			},
		),
		recordsRemoved: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "hifi_records_removed_total",
				Help: "Records deleted by cleanup",
			},
		),
		refreshDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hifi_refresh_duration_seconds",
				Help:    "Duration of index refreshes",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
			},
			[]string{"result"},
		),
		indexedRecords: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "hifi_indexed_records",
				Help: "Records in the index after the last info or cleanup",
			},
		),
	}
}

// Registry returns the registry holding the metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordWalk counts one classified path
func (m *Metrics) RecordWalk(class Classification) {
	if m == nil {
		return
	}
	m.walked.WithLabelValues(class.String()).Inc()
}

// RecordHash records a digest computation
func (m *Metrics) RecordHash(bytes int64, success bool) {
	if m == nil {
		return
	}
	if !success {
		m.hashFailures.Inc()
		return
	}
	m.filesHashed.Inc()
	m.bytesHashed.Add(float64(bytes))
}

// RecordRemoved counts records deleted by cleanup
func (m *Metrics) RecordRemoved(n int) {
	if m == nil {
		return
	}
	m.recordsRemoved.Add(float64(n))
}

// RecordRefresh records the duration of a refresh
func (m *Metrics) RecordRefresh(duration time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.refreshDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// SetIndexedRecords sets the record count gauge
func (m *Metrics) SetIndexedRecords(n int) {
	if m == nil {
		return
	}
	m.indexedRecords.Set(float64(n))
}

// WriteTextfile writes the metrics in the node_exporter textfile format
func (m *Metrics) WriteTextfile(filename string) error {
	if m == nil || filename == "" {
		return nil
	}
	return prometheus.WriteToTextfile(filename, m.registry)
}
