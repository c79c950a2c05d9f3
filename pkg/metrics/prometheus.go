package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	messagesSent *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	lastValue    *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
	horizonError *prometheus.GaugeVec
	anomaly      prometheus.Gauge
	tick         prometheus.Gauge
	queueDepth   *prometheus.GaugeVec
}

// New registers the recorder's collectors on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers on reg; tests pass prometheus.NewRegistry().
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		messagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "streamcast_messages_sent_total",
				Help: "Total number of messages sent to backend",
			},
			[]string{"backend", "source"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "streamcast_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastValue: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "streamcast_last_value",
				Help: "Last observed input value per source",
			},
			[]string{"source"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "streamcast_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		horizonError: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "streamcast_horizon_mean_abs_error",
				Help: "Running mean absolute error per forecast horizon",
			},
			[]string{"horizon"},
		),
		anomaly: f.NewGauge(prometheus.GaugeOpts{
			Name: "streamcast_anomaly_score",
			Help: "Anomaly score of the latest record",
		}),
		tick: f.NewGauge(prometheus.GaugeOpts{
			Name: "streamcast_model_tick",
			Help: "Number of records processed by the model",
		}),
		queueDepth: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "streamcast_queue_depth",
				Help: "Items waiting in an internal queue",
			},
			[]string{"queue"},
		),
	}
}

func (r *Recorder) RecordMessageSent(backend, source string) {
	r.messagesSent.WithLabelValues(backend, source).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLastValue(source string, value float64) {
	r.lastValue.WithLabelValues(source).Set(value)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordHorizonError sets the running mean error for horizon h (1-based).
func (r *Recorder) RecordHorizonError(h int, meanError float64) {
	r.horizonError.WithLabelValues(strconv.Itoa(h)).Set(meanError)
}

func (r *Recorder) RecordAnomaly(score float64) {
	r.anomaly.Set(score)
}

func (r *Recorder) RecordTick(tick int64) {
	r.tick.Set(float64(tick))
}

// RecordQueueDepth sets the number of items waiting in queue.
func (r *Recorder) RecordQueueDepth(queue string, depth int) {
	r.queueDepth.WithLabelValues(queue).Set(float64(depth))
}
