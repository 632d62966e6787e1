package httpx

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}

type routeMetrics struct {
	requestTotal   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	rateLimitHits  *prometheus.CounterVec
	eventClients   prometheus.Gauge
}

var (
	routeMetricsOnce sync.Once
	sharedMetrics    *routeMetrics
)

// newRouteMetrics registers the HTTP collectors once per process and returns
// the registered instances.
func newRouteMetrics() *routeMetrics {
	routeMetricsOnce.Do(func() {
		m := &routeMetrics{
			requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "backendless",
				Subsystem: "api",
				Name:      "http_requests_total",
				Help:      "Count of processed HTTP requests",
			}, []string{"method", "route", "status"}),
			requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "backendless",
				Subsystem: "api",
				Name:      "http_request_duration_seconds",
				Help:      "Latency distribution of HTTP handlers",
				Buckets:   histogramBuckets,
			}, []string{"method", "route", "status"}),
			rateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "backendless",
				Subsystem: "api",
				Name:      "rate_limit_hits_total",
				Help:      "Number of rate-limited responses",
			}, []string{"route", "key"}),
			eventClients: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "backendless",
				Subsystem: "api",
				Name:      "event_stream_clients",
				Help:      "Open lifecycle event websocket connections",
			}),
		}
		for _, c := range []prometheus.Collector{m.requestTotal, m.requestLatency, m.rateLimitHits, m.eventClients} {
			if err := prometheus.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					panic(err)
				}
			}
		}
		sharedMetrics = m
	})
	return sharedMetrics
}

func (m *routeMetrics) observe(method, route string, status int, duration time.Duration) {
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	m.requestTotal.With(labels).Inc()
	m.requestLatency.With(labels).Observe(duration.Seconds())
}

func (m *routeMetrics) rateLimited(route, key string) {
	m.rateLimitHits.With(prometheus.Labels{"route": route, "key": key}).Inc()
}
