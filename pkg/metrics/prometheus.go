package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	messagesSent *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
	ingest       *prometheus.CounterVec
	validations  *prometheus.CounterVec
	violations   *prometheus.CounterVec
	decisions    *prometheus.CounterVec
	health       *prometheus.GaugeVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		messagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stag_messages_sent_total",
				Help: "Total number of messages sent to backend",
			},
			[]string{"backend", "kind"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stag_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stag_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stag_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		ingest: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stag_ingest_records_total",
				Help: "Ingestion records by event and result",
			},
			[]string{"event", "result"},
		),
		validations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stag_trade_validations_total",
				Help: "Trade validations by result",
			},
			[]string{"result"},
		),
		violations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stag_rule_violations_total",
				Help: "Rule violations by rule id",
			},
			[]string{"rule"},
		),
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stag_overseer_decisions_total",
				Help: "Overseer decisions by action",
			},
			[]string{"action"},
		),
		health: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stag_store_health",
				Help: "1 for the current store health status, 0 otherwise",
			},
			[]string{"status"},
		),
	}
}

// RecordMessageSent records a message sent to a backend.
func (r *Recorder) RecordMessageSent(backend, kind string) {
	r.messagesSent.WithLabelValues(backend, kind).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordIngest(event string, accepted bool) {
	r.ingest.WithLabelValues(event, result(accepted, "accepted", "dropped")).Inc()
}

func (r *Recorder) RecordValidation(passed bool) {
	r.validations.WithLabelValues(result(passed, "passed", "failed")).Inc()
}

func (r *Recorder) RecordViolation(ruleID string) {
	r.violations.WithLabelValues(ruleID).Inc()
}

func (r *Recorder) RecordDecision(action string) {
	r.decisions.WithLabelValues(action).Inc()
}

// RecordHealth sets the gauge of status to 1 and the other statuses to 0.
func (r *Recorder) RecordHealth(status string) {
	for _, s := range []string{"healthy", "degraded", "unhealthy"} {
		v := 0.0
		if s == status {
			v = 1
		}
		r.health.WithLabelValues(s).Set(v)
	}
}

func result(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordMessageSent(string, string) {}
func (Nop) RecordError(string)               {}
func (Nop) RecordLastPrice(string, float64)  {}
func (Nop) RecordLatency(string, float64)    {}
func (Nop) RecordIngest(string, bool)        {}
func (Nop) RecordValidation(bool)            {}
func (Nop) RecordViolation(string)           {}
func (Nop) RecordDecision(string)            {}
func (Nop) RecordHealth(string)              {}
