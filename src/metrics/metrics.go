// Package metrics holds the Prometheus collectors for the gateway, the
// dispatcher, the rate limiter and the REST transport.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "siren"

type Metrics struct {
	reconnects       *prometheus.CounterVec
	state            *prometheus.GaugeVec
	heartbeatLatency prometheus.Histogram
	events           *prometheus.CounterVec
	handlerErrors    *prometheus.CounterVec
	rateLimitWait    prometheus.Histogram
	rateLimited      *prometheus.CounterVec
	requests         *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "reconnects_total",
			Help:      "Gateway reconnect attempts by cause.",
		}, []string{"shard", "reason"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "state",
			Help:      "Current gateway session state as its numeric value.",
		}, []string{"shard"}),
		heartbeatLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "heartbeat_latency_seconds",
			Help:      "Time between a heartbeat and its acknowledgement.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "events_total",
			Help:      "Dispatched events by name.",
		}, []string{"event"}),
		handlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "handler_errors_total",
			Help:      "Handler failures (errors, panics, decode failures) by event name.",
		}, []string{"event"}),
		rateLimitWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "wait_seconds",
			Help:      "Time callers spent suspended by the rate limiter.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "limited_total",
			Help:      "429 responses and exceeded waits by scope.",
		}, []string{"scope"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rest",
			Name:      "requests_total",
			Help:      "REST requests by method and status code.",
		}, []string{"method", "status"}),
	}
	reg.MustRegister(
		m.reconnects,
		m.state,
		m.heartbeatLatency,
		m.events,
		m.handlerErrors,
		m.rateLimitWait,
		m.rateLimited,
		m.requests,
	)
	return m
}

func (m *Metrics) Reconnect(shard int, reason string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(strconv.Itoa(shard), reason).Inc()
}

func (m *Metrics) State(shard int, state int) {
	if m == nil {
		return
	}
	m.state.WithLabelValues(strconv.Itoa(shard)).Set(float64(state))
}

func (m *Metrics) HeartbeatLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.heartbeatLatency.Observe(d.Seconds())
}

func (m *Metrics) Event(name string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(name).Inc()
}

func (m *Metrics) HandlerError(name string) {
	if m == nil {
		return
	}
	m.handlerErrors.WithLabelValues(name).Inc()
}

func (m *Metrics) RateLimitWait(d time.Duration) {
	if m == nil {
		return
	}
	m.rateLimitWait.Observe(d.Seconds())
}

// RateLimited counts a limit hit; scope is "global", "bucket" or "max_wait".
func (m *Metrics) RateLimited(scope string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(scope).Inc()
}

func (m *Metrics) Request(method string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}
