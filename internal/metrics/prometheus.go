// Package metrics provides Prometheus metrics for the watsonx.ai client.
// Every metric is registered on a caller-supplied registry, so several
// clients can coexist and nothing touches the global default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "wxai"
)

// LatencyBuckets defines histogram buckets for latency metrics (in seconds).
var LatencyBuckets = []float64{
	0.005, 0.0125, 0.025, 0.05, 0.1, 0.25, 0.5,
	1.0, 1.5, 2.0, 2.5, 3.0, 4.0, 5.0, 7.5,
	10.0, 15.0, 20.0, 30.0, 60.0, 120.0, 300.0,
}

// Stream end reasons used as the "reason" label.
const (
	ReasonEOF     = "eof"
	ReasonAborted = "aborted"
	ReasonError   = "error"
)

// metricSet holds every vector. It is created once per Collector.
type metricSet struct {
	requests         *prometheus.CounterVec
	failures         *prometheus.CounterVec
	latency          *prometheus.HistogramVec
	retries          *prometheus.CounterVec
	timeToFirstEvent *prometheus.HistogramVec
	streamEvents     *prometheus.CounterVec
	decodeErrors     *prometheus.CounterVec
	activeStreams    *prometheus.GaugeVec
	streamsFinished  *prometheus.CounterVec
	tokens           *prometheus.CounterVec
	circuitState     *prometheus.GaugeVec
}

func newMetricSet(reg prometheus.Registerer) *metricSet {
	f := promauto.With(reg)
	return &metricSet{
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of watsonx.ai API requests",
			},
			[]string{"operation", "model", "status_code"},
		),
		failures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "request_failures_total",
				Help:      "Total number of failed watsonx.ai API requests",
			},
			[]string{"operation", "model", "error_type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_latency_seconds",
				Help:      "Latency until response headers in seconds",
				Buckets:   LatencyBuckets,
			},
			[]string{"operation", "model"},
		),
		retries: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Total number of request retries",
			},
			[]string{"operation"},
		),
		timeToFirstEvent: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "time_to_first_event_seconds",
				Help:      "Time from request start to the first stream event",
				Buckets:   LatencyBuckets,
			},
			[]string{"operation", "model"},
		),
		streamEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_events_total",
				Help:      "Total number of stream events delivered",
			},
			[]string{"operation", "model"},
		),
		decodeErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_decode_errors_total",
				Help:      "Stream events whose data was not valid JSON",
			},
			[]string{"operation", "model"},
		),
		activeStreams: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_streams",
				Help:      "Number of open streams",
			},
			[]string{"operation"},
		),
		streamsFinished: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "streams_finished_total",
				Help:      "Streams that ended, by reason",
			},
			[]string{"operation", "reason"},
		),
		tokens: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_total",
				Help:      "Tokens reported by the service",
			},
			[]string{"model", "direction"},
		),
		circuitState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open)",
			},
			[]string{"name"},
		),
	}
}
