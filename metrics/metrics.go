// Package metrics provides Prometheus metrics for the attendance bot.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector of the bot. A nil *Manager is valid and records nothing.
type Manager struct {
	namespace string
	subsystem string
	buckets   []float64
	registry  *prometheus.Registry

	interactions      *prometheus.CounterVec
	eventsRecorded    *prometheus.CounterVec
	webhookAttempts   *prometheus.CounterVec
	webhookLatency    prometheus.Histogram
	validationRejects *prometheus.CounterVec
	dmRefused         prometheus.Counter
	gatewayConnects   *prometheus.CounterVec
}

// NewManager creates a manager registered on its own registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "attendance",
		subsystem: "bot",
		buckets:   prometheus.DefBuckets,
		registry:  prometheus.NewRegistry(),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.interactions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "interactions_total",
		Help:      "Interactions handled by kind and custom id or command name",
	}, []string{"kind", "name"})

	m.eventsRecorded = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_recorded_total",
		Help:      "Attendance events sent to the webhook by action and outcome",
	}, []string{"action", "outcome"})

	m.webhookAttempts = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "webhook_attempts_total",
		Help:      "Individual webhook POST attempts by result",
	}, []string{"result"})

	m.webhookLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "webhook_request_duration_seconds",
		Help:      "Duration of webhook POST attempts",
		Buckets:   m.buckets,
	})

	m.validationRejects = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "validation_rejections_total",
		Help:      "Sales form submissions rejected before recording, by field",
	}, []string{"field"})

	m.dmRefused = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "direct_messages_refused_total",
		Help:      "Confirmation direct messages that could not be delivered",
	})

	m.gatewayConnects = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "gateway_connects_total",
		Help:      "Gateway connection attempts by result",
	}, []string{"result"})
}

// Registry returns the registry backing the manager.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Manager) InteractionHandled(kind, name string) {
	if m == nil {
		return
	}
	m.interactions.WithLabelValues(kind, name).Inc()
}

func (m *Manager) EventRecorded(action string, delivered bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if delivered {
		outcome = "delivered"
	}
	m.eventsRecorded.WithLabelValues(action, outcome).Inc()
}

func (m *Manager) WebhookAttempt(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.webhookAttempts.WithLabelValues(result).Inc()
	m.webhookLatency.Observe(took.Seconds())
}

func (m *Manager) ValidationRejected(field string) {
	if m == nil {
		return
	}
	m.validationRejects.WithLabelValues(field).Inc()
}

func (m *Manager) DirectMessageRefused() {
	if m == nil {
		return
	}
	m.dmRefused.Inc()
}

func (m *Manager) GatewayConnect(result string) {
	if m == nil {
		return
	}
	m.gatewayConnects.WithLabelValues(result).Inc()
}
