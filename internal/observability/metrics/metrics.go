package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConversationMetrics exposes counters/histograms for the booking conversation.
type ConversationMetrics struct {
	messagesTotal      *prometheus.CounterVec
	transitionsTotal   *prometheus.CounterVec
	intentsTotal       *prometheus.CounterVec
	collaboratorErrors *prometheus.CounterVec
	degradedTotal      *prometheus.CounterVec
	bookingsTotal      *prometheus.CounterVec
	handleLatency      *prometheus.HistogramVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sobrecupos",
			Subsystem: "conversation",
			Name:      "messages_total",
			Help:      "Inbound messages by stage at arrival and outcome",
		}, []string{"stage", "outcome"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sobrecupos",
			Subsystem: "conversation",
			Name:      "transitions_total",
			Help:      "Session stage transitions",
		}, []string{"from", "to"}),
		intentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sobrecupos",
			Subsystem: "conversation",
			Name:      "intents_total",
			Help:      "Classified intents by source and kind",
		}, []string{"source", "kind"}),
		collaboratorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sobrecupos",
			Subsystem: "collaborator",
			Name:      "errors_total",
			Help:      "Failed calls to the datastore, completion, notification and payment collaborators",
		}, []string{"collaborator", "op"}),
		degradedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sobrecupos",
			Subsystem: "collaborator",
			Name:      "degraded_total",
			Help:      "Replies served from cached or canned fallbacks",
		}, []string{"op"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sobrecupos",
			Subsystem: "booking",
			Name:      "total",
			Help:      "Bookings by outcome",
		}, []string{"outcome"}),
		handleLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sobrecupos",
			Subsystem: "conversation",
			Name:      "handle_latency_seconds",
			Help:      "Latency of handling one inbound message",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.messagesTotal, m.transitionsTotal, m.intentsTotal, m.collaboratorErrors, m.degradedTotal, m.bookingsTotal, m.handleLatency)
	return m
}

// ObserveMessage counts one handled message and its latency.
func (m *ConversationMetrics) ObserveMessage(stage, outcome string, seconds float64) {
	if m == nil {
		return
	}
	if stage == "" {
		stage = "none"
	}
	m.messagesTotal.WithLabelValues(stage, outcome).Inc()
	m.handleLatency.WithLabelValues(stage).Observe(seconds)
}

// ObserveTransition counts a stage change.
func (m *ConversationMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	if from == "" {
		from = "none"
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

// ObserveIntent counts a classification by source (rules or completion) and kind.
func (m *ConversationMetrics) ObserveIntent(source, kind string) {
	if m == nil {
		return
	}
	m.intentsTotal.WithLabelValues(source, kind).Inc()
}

// ObserveCollaboratorError counts a failed datastore, completion, notify or payments call.
func (m *ConversationMetrics) ObserveCollaboratorError(collaborator, op string) {
	if m == nil {
		return
	}
	m.collaboratorErrors.WithLabelValues(collaborator, op).Inc()
}

// ObserveDegraded counts an answer served from a fallback.
func (m *ConversationMetrics) ObserveDegraded(op string) {
	if m == nil {
		return
	}
	m.degradedTotal.WithLabelValues(op).Inc()
}

// ObserveBooking counts a finished booking attempt by outcome.
func (m *ConversationMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}
