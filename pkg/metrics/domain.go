package metrics

import "github.com/prometheus/client_golang/prometheus"

// DomainMetrics counts order, delivery and prescription outcomes.
type DomainMetrics struct {
	ordersPlaced        prometheus.Counter
	orderTransitions    *prometheus.CounterVec
	agentAssignments    *prometheus.CounterVec
	assignConflicts     prometheus.Counter
	prescriptionReviews *prometheus.CounterVec
}

func NewDomainMetrics(reg prometheus.Registerer) *DomainMetrics {
	if reg == nil {
		return &DomainMetrics{}
	}
	m := &DomainMetrics{
		ordersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_placed_total",
			Help:      "Orders created through checkout.",
		}),
		orderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Order status transitions by target status.",
		}, []string{"status"}),
		agentAssignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_assignments_total",
			Help:      "Delivery agent assignments by mode.",
		}, []string{"mode"}),
		assignConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_assignment_conflicts_total",
			Help:      "Assignments rejected because the agent or order was already claimed.",
		}),
		prescriptionReviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prescription_reviews_total",
			Help:      "Prescription decisions by outcome.",
		}, []string{"status"}),
	}
	reg.MustRegister(m.ordersPlaced, m.orderTransitions, m.agentAssignments, m.assignConflicts, m.prescriptionReviews)
	return m
}

func (m *DomainMetrics) OrderPlaced() {
	if m == nil || m.ordersPlaced == nil {
		return
	}
	m.ordersPlaced.Inc()
}

func (m *DomainMetrics) OrderTransition(status string) {
	if m == nil || m.orderTransitions == nil {
		return
	}
	m.orderTransitions.WithLabelValues(normalizeLabel(status)).Inc()
}

// AgentAssigned records an assignment; mode is "manual" or "auto".
func (m *DomainMetrics) AgentAssigned(mode string) {
	if m == nil || m.agentAssignments == nil {
		return
	}
	m.agentAssignments.WithLabelValues(normalizeLabel(mode)).Inc()
}

func (m *DomainMetrics) AssignmentConflict() {
	if m == nil || m.assignConflicts == nil {
		return
	}
	m.assignConflicts.Inc()
}

func (m *DomainMetrics) PrescriptionReviewed(status string) {
	if m == nil || m.prescriptionReviews == nil {
		return
	}
	m.prescriptionReviews.WithLabelValues(normalizeLabel(status)).Inc()
}
