// Package metrics holds Prometheus collectors for outbound collaborator calls.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	RemoteLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stag",
			Subsystem: "remote",
			Name:      "latency_seconds",
			Help:      "Latency of calls to execution and market data services",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	RemoteErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stag",
			Subsystem: "remote",
			Name:      "errors_total",
			Help:      "Failed calls by collaborator service",
		},
		[]string{"service"},
	)
)

// Register adds the collectors to the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(RemoteLatency, RemoteErrors)
	})
}

// Observe records one call to service.
func Observe(service string, d time.Duration, err error) {
	RemoteLatency.WithLabelValues(service).Observe(d.Seconds())
	if err != nil {
		RemoteErrors.WithLabelValues(service).Inc()
	}
}
