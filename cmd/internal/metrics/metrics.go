// Package metrics holds the Prometheus collectors for auth, sessions and presence.
//
// A nil *Metrics is valid and records nothing, so components can be built without it in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lobby"

// Result labels.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	reg *prometheus.Registry

	authAttempts      *prometheus.CounterVec
	reaperPasses      *prometheus.CounterVec
	reapedSessions    prometheus.Counter
	wsHandshakes      *prometheus.CounterVec
	wsConnections     prometheus.Gauge
	onlineUsers       prometheus.Gauge
	presenceEvents    *prometheus.CounterVec
	presenceDropped   prometheus.Counter
	httpRequests      *prometheus.CounterVec
	httpRequestTiming *prometheus.HistogramVec
}

// New registers every collector plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "auth", Name: "attempts_total",
			Help: "Register, login, refresh and logout attempts by outcome.",
		}, []string{"op", "result"}),
		reaperPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session_reaper", Name: "passes_total",
			Help: "Reaper passes by outcome.",
		}, []string{"result"}),
		reapedSessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session_reaper", Name: "deleted_total",
			Help: "Session rows deleted by the reaper.",
		}),
		wsHandshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ws", Name: "handshakes_total",
			Help: "Websocket handshakes by outcome.",
		}, []string{"result"}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "ws", Name: "connections",
			Help: "Open websocket connections.",
		}),
		onlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "presence", Name: "online_users",
			Help: "Users with at least one open connection.",
		}),
		presenceEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "presence", Name: "events_total",
			Help: "Presence envelopes enqueued by type.",
		}, []string{"type"}),
		presenceDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "presence", Name: "dropped_total",
			Help: "Presence envelopes dropped because a send queue was full.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by route and status class.",
		}, []string{"route", "class"}),
		httpRequestTiming: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.authAttempts,
		m.reaperPasses,
		m.reapedSessions,
		m.wsHandshakes,
		m.wsConnections,
		m.onlineUsers,
		m.presenceEvents,
		m.presenceDropped,
		m.httpRequests,
		m.httpRequestTiming,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// AuthAttempt counts one auth operation.
func (m *Metrics) AuthAttempt(op, result string) {
	if m == nil {
		return
	}
	m.authAttempts.WithLabelValues(op, result).Inc()
}

// ReaperPass records a reaper pass. It matches session.WithPassObserver.
func (m *Metrics) ReaperPass(deleted int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.reaperPasses.WithLabelValues(ResultError).Inc()
		return
	}
	m.reaperPasses.WithLabelValues(ResultOK).Inc()
	m.reapedSessions.Add(float64(deleted))
}

// Handshake counts a websocket handshake outcome (ok, origin, unauthenticated, error).
func (m *Metrics) Handshake(result string) {
	if m == nil {
		return
	}
	m.wsHandshakes.WithLabelValues(result).Inc()
}

// ConnOpened and ConnClosed track open websocket connections.
func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.wsConnections.Inc()
}

func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.wsConnections.Dec()
}

// SetOnlineUsers publishes the registry size.
func (m *Metrics) SetOnlineUsers(n int) {
	if m == nil {
		return
	}
	m.onlineUsers.Set(float64(n))
}

// PresenceEvent counts an enqueued envelope, or a drop when delivered is false.
func (m *Metrics) PresenceEvent(typ string, delivered bool) {
	if m == nil {
		return
	}
	if !delivered {
		m.presenceDropped.Inc()
		return
	}
	m.presenceEvents.WithLabelValues(typ).Inc()
}

// HTTPRequest records a finished request.
func (m *Metrics) HTTPRequest(route, class string, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, class).Inc()
	m.httpRequestTiming.WithLabelValues(route).Observe(seconds)
}
