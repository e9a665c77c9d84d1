package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	barsProcessed   *prometheus.CounterVec
	barsRejected    *prometheus.CounterVec
	signalsEmitted  *prometheus.CounterVec
	eventsProcessed *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	healthScore     prometheus.Gauge
	lastPrice       *prometheus.GaugeVec
	latency         *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		barsProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trading_bars_processed_total",
				Help: "Total number of one-minute bars accepted into the pipeline",
			},
			[]string{"symbol"},
		),
		barsRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trading_bars_rejected_total",
				Help: "Total number of bars rejected by validation",
			},
			[]string{"symbol", "reason"},
		),
		signalsEmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trading_signals_emitted_total",
				Help: "Total number of signals emitted after filtering",
			},
			[]string{"symbol", "direction"},
		),
		eventsProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trading_trade_events_processed_total",
				Help: "Total number of trade lifecycle events folded into state",
			},
			[]string{"kind"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trading_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		healthScore: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "trading_data_health_score",
				Help: "Weighted data health score from the last gap scan, 0 to 100",
			},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "trading_last_price",
				Help: "Last observed close price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trading_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordBarProcessed(symbol string) {
	r.barsProcessed.WithLabelValues(symbol).Inc()
}

func (r *Recorder) RecordBarRejected(symbol, reason string) {
	r.barsRejected.WithLabelValues(symbol, reason).Inc()
}

func (r *Recorder) RecordSignalEmitted(symbol, direction string) {
	r.signalsEmitted.WithLabelValues(symbol, direction).Inc()
}

func (r *Recorder) RecordEventProcessed(kind string) {
	r.eventsProcessed.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordHealthScore(score float64) {
	r.healthScore.Set(score)
}

func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
