package taskengine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	executions        *prometheus.CounterVec
	events            *prometheus.CounterVec
	pushNotifications *prometheus.CounterVec
	operations        *prometheus.CounterVec
}

// NewMetrics registers the engine's collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		executions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskengine_executions_total", Help: "Number of finished task executions by resulting state"}, []string{"state"}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskengine_events_published_total", Help: "Number of task events published by kind"}, []string{"kind"}),
		pushNotifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskengine_push_notifications_total", Help: "Number of push notification deliveries by result"}, []string{"result"}),
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskengine_operations_total", Help: "Number of protocol operations by name and error kind"}, []string{"operation", "result"}),
	}
}

func (m *Metrics) executionFinished(state string) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(state).Inc()
}

func (m *Metrics) eventPublished(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}

func (m *Metrics) pushNotificationSent(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.pushNotifications.WithLabelValues(result).Inc()
}

func (m *Metrics) operation(name string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = string(KindOf(err))
	}
	m.operations.WithLabelValues(name, result).Inc()
}
