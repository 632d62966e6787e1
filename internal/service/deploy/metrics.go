package deploy

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type ingestMetrics struct {
	entries  *prometheus.CounterVec
	bytes    prometheus.Counter
	failures *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metrics     *ingestMetrics
)

func ingestCounters() *ingestMetrics {
	metricsOnce.Do(func() {
		m := &ingestMetrics{
			entries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "backendless",
				Subsystem: "ingest",
				Name:      "entries_total",
				Help:      "Archive entries processed, by outcome",
			}, []string{"outcome"}),
			bytes: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "backendless",
				Subsystem: "ingest",
				Name:      "bytes_uploaded_total",
				Help:      "Decompressed bytes written to blob storage",
			}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "backendless",
				Subsystem: "ingest",
				Name:      "failures_total",
				Help:      "Failed archive uploads, by reason",
			}, []string{"reason"}),
		}
		m.entries = registerCounterVec(m.entries)
		m.failures = registerCounterVec(m.failures)
		if err := prometheus.Register(m.bytes); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
					m.bytes = existing
				}
			}
		}
		metrics = m
	})
	return metrics
}

func registerCounterVec(c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return c
}

func (m *ingestMetrics) uploaded(size int) {
	m.entries.WithLabelValues("uploaded").Inc()
	m.bytes.Add(float64(size))
}

func (m *ingestMetrics) rejected() {
	m.entries.WithLabelValues("rejected").Inc()
}

func (m *ingestMetrics) failed(reason string) {
	m.failures.WithLabelValues(reason).Inc()
}
