package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Labels identifies the call a measurement belongs to.
type Labels struct {
	Operation string
	Model     string
}

// RequestMetrics contains metrics for a single request attempt.
type RequestMetrics struct {
	Labels Labels

	StartTime time.Time
	EndTime   time.Time

	StatusCode int
	ErrorType  string
	Success    bool
}

// Collector records client metrics. A nil *Collector is valid and records
// nothing.
type Collector struct {
	m *metricSet
}

// NewCollector registers the client metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	return &Collector{m: newMetricSet(reg)}
}

// RecordRequest records the outcome of one HTTP attempt.
func (c *Collector) RecordRequest(r *RequestMetrics) {
	if c == nil {
		return
	}
	l := r.Labels
	c.m.requests.WithLabelValues(l.Operation, l.Model, strconv.Itoa(r.StatusCode)).Inc()
	if !r.Success {
		c.m.failures.WithLabelValues(l.Operation, l.Model, r.ErrorType).Inc()
	}
	if !r.EndTime.IsZero() && !r.StartTime.IsZero() {
		c.m.latency.WithLabelValues(l.Operation, l.Model).Observe(r.EndTime.Sub(r.StartTime).Seconds())
	}
}

// RecordRetry counts one retry of operation.
func (c *Collector) RecordRetry(operation string) {
	if c == nil {
		return
	}
	c.m.retries.WithLabelValues(operation).Inc()
}

// StreamStarted marks a stream as open.
func (c *Collector) StreamStarted(l Labels) {
	if c == nil {
		return
	}
	c.m.activeStreams.WithLabelValues(l.Operation).Inc()
}

// StreamEvent counts a delivered event. ttfe is observed when positive.
func (c *Collector) StreamEvent(l Labels, ttfe time.Duration) {
	if c == nil {
		return
	}
	c.m.streamEvents.WithLabelValues(l.Operation, l.Model).Inc()
	if ttfe > 0 {
		c.m.timeToFirstEvent.WithLabelValues(l.Operation, l.Model).Observe(ttfe.Seconds())
	}
}

// StreamDecodeError counts an event whose payload failed to decode.
func (c *Collector) StreamDecodeError(l Labels) {
	if c == nil {
		return
	}
	c.m.decodeErrors.WithLabelValues(l.Operation, l.Model).Inc()
}

// StreamFinished marks a stream as closed for reason.
func (c *Collector) StreamFinished(l Labels, reason string) {
	if c == nil {
		return
	}
	c.m.activeStreams.WithLabelValues(l.Operation).Dec()
	c.m.streamsFinished.WithLabelValues(l.Operation, reason).Inc()
}

// RecordTokens adds reported token counts.
func (c *Collector) RecordTokens(model string, input, output int) {
	if c == nil {
		return
	}
	if input > 0 {
		c.m.tokens.WithLabelValues(model, "input").Add(float64(input))
	}
	if output > 0 {
		c.m.tokens.WithLabelValues(model, "output").Add(float64(output))
	}
}

// SetCircuitState publishes a breaker state.
func (c *Collector) SetCircuitState(name string, state int) {
	if c == nil {
		return
	}
	c.m.circuitState.WithLabelValues(name).Set(float64(state))
}
