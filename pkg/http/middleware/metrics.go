package middleware

import (
	"strconv"
	"sync"
	"time"

	applogger "StagAlgo/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// StatusKey is the context key under which response helpers record the
// status carried in the JSON envelope.
const StatusKey = "envelope_status"

// Status reports the envelope status of a handled request, falling back to
// the wire status for replies written without an envelope.
func Status(c echo.Context) int {
	if s, ok := c.Get(StatusKey).(int); ok {
		return s
	}
	return c.Response().Status
}

var (
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stag",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "API request latency by route and envelope status.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"route", "method", "status"},
	)

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "stag",
		Subsystem: "http",
		Name:      "in_flight_requests",
		Help:      "API requests currently being served.",
	})

	httpResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stag",
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "API response body size.",
			Buckets:   prometheus.ExponentialBuckets(128, 4, 8),
		},
		[]string{"route"},
	)

	regOnce sync.Once
)

// Metrics records request latency and size labelled by the registered route
// template. Requests over slowThreshold and envelope statuses of 500 and
// above are logged.
func Metrics(l *applogger.Logger, slowThreshold time.Duration) echo.MiddlewareFunc {
	regOnce.Do(func() {
		prometheus.MustRegister(httpRequestDuration, httpInFlight, httpResponseSize)
	})
	if l == nil {
		l = applogger.Nop()
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			httpInFlight.Inc()
			defer httpInFlight.Dec()
			start := time.Now()

			if err := next(c); err != nil {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			code := Status(c)
			elapsed := time.Since(start)
			written := c.Response().Size

			httpRequestDuration.WithLabelValues(route, method, strconv.Itoa(code)).Observe(elapsed.Seconds())
			httpResponseSize.WithLabelValues(route).Observe(float64(written))

			fields := []applogger.Field{
				applogger.String("route", route),
				applogger.String("method", method),
				applogger.Int("status", code),
				applogger.Duration("elapsed", elapsed),
				applogger.Int64("bytes", written),
			}
			switch {
			case code >= 500:
				l.Error("api request failed", fields...)
			case slowThreshold > 0 && elapsed >= slowThreshold:
				l.Warn("api request slow", fields...)
			}
			return nil
		}
	}
}
