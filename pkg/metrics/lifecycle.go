package metrics

import "github.com/prometheus/client_golang/prometheus"

// LifecycleMetrics counts campaign state transitions and materialized orders.
type LifecycleMetrics struct {
	transitions *prometheus.CounterVec
	orders      *prometheus.CounterVec
}

// NewLifecycleMetrics registers lifecycle counters. A nil registerer yields a no-op recorder.
func NewLifecycleMetrics(reg prometheus.Registerer) *LifecycleMetrics {
	if reg == nil {
		return &LifecycleMetrics{}
	}
	m := &LifecycleMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "campaign_transitions_total",
			Help:      "Campaign status transitions applied.",
		}, []string{"from", "to"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_materialized_total",
			Help:      "Order materialization calls by result (created or existing).",
		}, []string{"result"}),
	}
	reg.MustRegister(m.transitions, m.orders)
	return m
}

// IncTransition records a campaign moving from one status to another.
func (m *LifecycleMetrics) IncTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

// IncOrder records an order materialization result.
func (m *LifecycleMetrics) IncOrder(result string) {
	if m == nil || m.orders == nil {
		return
	}
	m.orders.WithLabelValues(normalizeLabel(result)).Inc()
}
