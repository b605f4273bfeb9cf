// Package metrics provides Prometheus metrics for the tracker service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "tracker"
)

// Manager owns every collector registered by the service.
type Manager struct {
	registry *prometheus.Registry

	capturesAccepted prometheus.Counter
	capturesRejected *prometheus.CounterVec

	observersConnected  prometheus.Gauge
	broadcastsDelivered prometheus.Counter
	broadcastsDropped   *prometheus.CounterVec
	hubQueueDepth       prometheus.Gauge

	bridgeMessages *prometheus.CounterVec

	httpRequestDuration *prometheus.HistogramVec
}

var global = NewManager(prometheus.NewRegistry()) //nolint:gochecknoglobals // process-wide metrics

// NewManager registers all collectors on reg.
func NewManager(reg *prometheus.Registry) *Manager {
	f := promauto.With(reg)
	m := &Manager{
		registry: reg,
		capturesAccepted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "captures_accepted_total",
			Help: "Captures durably committed.",
		}),
		capturesRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "captures_rejected_total",
			Help: "Capture submissions rejected, by reason.",
		}, []string{"reason"}),
		observersConnected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "hub", Name: "observers_connected",
			Help: "Live observers currently registered.",
		}),
		broadcastsDelivered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "hub", Name: "broadcasts_delivered_total",
			Help: "Capture events handed to observer buffers.",
		}),
		broadcastsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "hub", Name: "broadcasts_dropped_total",
			Help: "Capture events not delivered, by reason.",
		}, []string{"reason"}),
		hubQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "hub", Name: "queue_depth",
			Help: "Committed captures waiting for fan-out.",
		}),
		bridgeMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "bridge", Name: "messages_total",
			Help: "MQTT capture messages, by outcome.",
		}, []string{"outcome"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(collectors.NewGoCollector())
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Manager) Registry() *prometheus.Registry { return m.registry }

// Handler serves the global registry.
func Handler() http.Handler { return global.Handler() }

// Global returns the process-wide manager.
func Global() *Manager { return global }

// RecordCaptureAccepted counts a committed capture.
func RecordCaptureAccepted() { global.capturesAccepted.Inc() }

// RecordCaptureRejected counts a rejected submission.
func RecordCaptureRejected(reason string) { global.capturesRejected.WithLabelValues(reason).Inc() }

// ObserverConnected increments the observer gauge.
func ObserverConnected() { global.observersConnected.Inc() }

// ObserverDisconnected decrements the observer gauge.
func ObserverDisconnected() { global.observersConnected.Dec() }

// RecordBroadcastDelivered counts one event handed to one observer.
func RecordBroadcastDelivered() { global.broadcastsDelivered.Inc() }

// RecordBroadcastDropped counts an undelivered event.
func RecordBroadcastDropped(reason string) { global.broadcastsDropped.WithLabelValues(reason).Inc() }

// UpdateHubQueueDepth sets the fan-out backlog.
func UpdateHubQueueDepth(n int) { global.hubQueueDepth.Set(float64(n)) }

// RecordBridgeMessage counts an MQTT message outcome.
func RecordBridgeMessage(outcome string) { global.bridgeMessages.WithLabelValues(outcome).Inc() }

// ObserveHTTPRequest records one HTTP request.
func ObserveHTTPRequest(method, route, status string, seconds float64) {
	global.httpRequestDuration.WithLabelValues(method, route, status).Observe(seconds)
}
