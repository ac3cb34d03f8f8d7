package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	cyclesTotal     *prometheus.CounterVec
	cycleDuration   *prometheus.HistogramVec
	fetchErrors     *prometheus.CounterVec
	signalsFired    *prometheus.CounterVec
	underlyingPrice *prometheus.GaugeVec
	volatilityState *prometheus.GaugeVec
	subscribers     prometheus.Gauge
	persistErrors   *prometheus.CounterVec
	persistQueue    prometheus.Gauge
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		cyclesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optionpulse_cycles_total",
				Help: "Total number of poll cycles by outcome",
			},
			[]string{"user", "outcome"},
		),
		cycleDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "optionpulse_cycle_duration_seconds",
				Help:    "Duration of a full poll cycle in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"user"},
		),
		fetchErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optionpulse_fetch_errors_total",
				Help: "Total upstream fetch errors by kind",
			},
			[]string{"kind"},
		),
		signalsFired: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optionpulse_signals_fired_total",
				Help: "Total confirmed position signals",
			},
			[]string{"user", "position"},
		),
		underlyingPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "optionpulse_underlying_price",
				Help: "Last observed underlying spot price",
			},
			[]string{"user"},
		),
		volatilityState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "optionpulse_volatility_state",
				Help: "Active volatility regime (1 for the current state)",
			},
			[]string{"user", "state"},
		),
		subscribers: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "optionpulse_ws_subscribers",
				Help: "Connected dashboard websocket clients",
			},
		),
		persistErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optionpulse_persist_errors_total",
				Help: "Write-behind persistence failures by kind",
			},
			[]string{"kind"},
		),
		persistQueue: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "optionpulse_persist_queue_depth",
				Help: "Snapshots waiting in the write-behind buffer",
			},
		),
	}
}

// RecordCycle records a completed poll cycle and its duration.
func (r *Recorder) RecordCycle(username, outcome string, seconds float64) {
	r.cyclesTotal.WithLabelValues(username, outcome).Inc()
	r.cycleDuration.WithLabelValues(username).Observe(seconds)
}

// RecordFetchError records an upstream fetch error.
func (r *Recorder) RecordFetchError(kind string) {
	r.fetchErrors.WithLabelValues(kind).Inc()
}

// RecordSignalFired records a confirmed position signal.
func (r *Recorder) RecordSignalFired(username string, position string) {
	r.signalsFired.WithLabelValues(username, position).Inc()
}

// RecordUnderlyingPrice records the latest spot price.
func (r *Recorder) RecordUnderlyingPrice(username string, price float64) {
	r.underlyingPrice.WithLabelValues(username).Set(price)
}

// RecordVolatilityState marks the active regime for a user.
func (r *Recorder) RecordVolatilityState(username, state string) {
	for _, s := range []string{"UNKNOWN", "CONTRACTION", "TRANSITION", "EXPANSION"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		r.volatilityState.WithLabelValues(username, s).Set(v)
	}
}

// RecordSubscribers records the current websocket subscriber count.
func (r *Recorder) RecordSubscribers(n int) {
	r.subscribers.Set(float64(n))
}

// RecordPersistError records a write-behind persistence failure.
func (r *Recorder) RecordPersistError(kind string) {
	r.persistErrors.WithLabelValues(kind).Inc()
}

// RecordPersistQueueDepth records the write-behind buffer occupancy.
func (r *Recorder) RecordPersistQueueDepth(n int) {
	r.persistQueue.Set(float64(n))
}
