package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	fetchesTotal   *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	alertsTotal    *prometheus.CounterVec
	consensusPrice *prometheus.GaugeVec
	consensusSrcs  *prometheus.GaugeVec
	sourceHealthy  *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		fetchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinsentry_fetches_total",
				Help: "Total exchange fetch attempts by outcome",
			},
			[]string{"exchange", "outcome"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinsentry_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		alertsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinsentry_alerts_total",
				Help: "Total anomaly alerts emitted",
			},
			[]string{"metric", "severity"},
		),
		consensusPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coinsentry_consensus_price",
				Help: "Last consensus price for a symbol",
			},
			[]string{"symbol"},
		),
		consensusSrcs: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coinsentry_consensus_sources",
				Help: "Contributing source count of the last consensus",
			},
			[]string{"symbol"},
		),
		sourceHealthy: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coinsentry_source_healthy",
				Help: "Whether an exchange source is currently healthy (1/0)",
			},
			[]string{"exchange"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coinsentry_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordFetch records an exchange fetch attempt.
func (r *Recorder) RecordFetch(exchange, outcome string) {
	r.fetchesTotal.WithLabelValues(exchange, outcome).Inc()
}

// RecordConsensus records the last consensus price and source count.
func (r *Recorder) RecordConsensus(symbol string, price float64, sources int) {
	r.consensusPrice.WithLabelValues(symbol).Set(price)
	r.consensusSrcs.WithLabelValues(symbol).Set(float64(sources))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordAlert records an emitted anomaly alert.
func (r *Recorder) RecordAlert(metric, severity string) {
	r.alertsTotal.WithLabelValues(metric, severity).Inc()
}

// RecordExchangeHealth records a source's health after a call.
func (r *Recorder) RecordExchangeHealth(exchange string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	r.sourceHealthy.WithLabelValues(exchange).Set(v)
}
