// Package gwmetrics exposes the gateway's Prometheus metrics.
package gwmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "amfgate"
	subsystem = "gateway"
)

// Label names for gateway metrics.
const (
	labelVersion = "version"
	labelOutcome = "outcome"
)

// Envelope version label values.
const (
	versionAMF0 = "amf0"
	versionAMF3 = "amf3"
	versionFMS  = "fms"
)

// -------------------------------------------------------------------------
// Collector — Prometheus Gateway Metrics
// -------------------------------------------------------------------------

// Collector holds all gateway Prometheus metrics.
//
// Counters cover the request pipeline end to end: envelopes decoded,
// bodies dispatched by outcome, fatal decode failures, authentication
// rejections, and ACL denials. The dispatch histogram feeds latency
// alerting per outcome.
type Collector struct {
	// Packets counts decoded request envelopes per wire encoding.
	Packets *prometheus.CounterVec

	// Bodies counts dispatched response bodies labeled by outcome
	// ("result" or "status").
	Bodies *prometheus.CounterVec

	// DecodeErrors counts requests rejected as undecodable. These
	// produce no AMF response at all.
	DecodeErrors prometheus.Counter

	// AuthFailures counts rejected authentication attempts from both
	// the credentials header and the LOGIN command path.
	AuthFailures prometheus.Counter

	// ACLDenials counts calls rejected by the access-control engine.
	ACLDenials prometheus.Counter

	// DispatchSeconds observes per-body dispatch latency by outcome.
	DispatchSeconds *prometheus.HistogramVec

	// Services tracks the number of registered invocables.
	Services prometheus.Gauge
}

// NewCollector creates a Collector with all gateway metrics registered
// against the provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
//
// All metrics carry the "amfgate_gateway_" prefix to avoid collisions
// with other exporters.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Packets,
		c.Bodies,
		c.DecodeErrors,
		c.AuthFailures,
		c.ACLDenials,
		c.DispatchSeconds,
		c.Services,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	return &Collector{
		Packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_total",
			Help:      "Request envelopes decoded, by wire encoding.",
		}, []string{labelVersion}),

		Bodies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bodies_total",
			Help:      "Response bodies produced, by outcome.",
		}, []string{labelOutcome}),

		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "decode_errors_total",
			Help:      "Requests rejected as undecodable.",
		}),

		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "auth_failures_total",
			Help:      "Rejected authentication attempts.",
		}),

		ACLDenials: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "acl_denials_total",
			Help:      "Calls rejected by the access-control engine.",
		}),

		DispatchSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dispatch_seconds",
			Help:      "Per-body dispatch latency, by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{labelOutcome}),

		Services: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "services",
			Help:      "Registered invocables in the dispatch table.",
		}),
	}
}

// -------------------------------------------------------------------------
// remoting.MetricsReporter implementation
// -------------------------------------------------------------------------

// PacketProcessed records one decoded request envelope.
func (c *Collector) PacketProcessed(version uint16) {
	c.Packets.WithLabelValues(versionLabel(version)).Inc()
}

// BodyDispatched records one response body with its dispatch duration.
func (c *Collector) BodyDispatched(outcome string, seconds float64) {
	c.Bodies.WithLabelValues(outcome).Inc()
	c.DispatchSeconds.WithLabelValues(outcome).Observe(seconds)
}

// DecodeError records a fatal envelope decoding failure.
func (c *Collector) DecodeError() {
	c.DecodeErrors.Inc()
}

// AuthFailure records a rejected authentication attempt.
func (c *Collector) AuthFailure() {
	c.AuthFailures.Inc()
}

// ACLDenied records an ACL rejection.
func (c *Collector) ACLDenied() {
	c.ACLDenials.Inc()
}

// SetServices records the dispatch-table size after registration.
func (c *Collector) SetServices(n int) {
	c.Services.Set(float64(n))
}

// versionLabel maps wire encodings onto label values.
func versionLabel(version uint16) string {
	switch version {
	case 0x03:
		return versionAMF3
	case 0x01:
		return versionFMS
	default:
		return versionAMF0
	}
}
