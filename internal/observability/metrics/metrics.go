package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "wa"

// MessagingMetrics exposes counters/histograms for inbound webhooks and outbound sends.
type MessagingMetrics struct {
	inboundTotal   *prometheus.CounterVec
	outboundTotal  *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
}

func NewMessagingMetrics(reg prometheus.Registerer) *MessagingMetrics {
	m := &MessagingMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound chat webhooks",
		}, []string{"event_type", "status"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Total outbound chat sends",
		}, []string{"channel", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of inbound webhook handling",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.webhookLatency)
	return m
}

func (m *MessagingMetrics) ObserveInbound(eventType, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(eventType, status).Inc()
}

func (m *MessagingMetrics) ObserveOutbound(channel, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(channel, status).Inc()
}

func (m *MessagingMetrics) ObserveWebhookLatency(eventType string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(eventType).Observe(seconds)
}

// DispatcherMetrics tracks model backend calls made by the dispatcher.
type DispatcherMetrics struct {
	attempts  *prometheus.CounterVec
	cooldowns *prometheus.CounterVec
	fallbacks *prometheus.CounterVec
	latency   *prometheus.HistogramVec
}

func NewDispatcherMetrics(reg prometheus.Registerer) *DispatcherMetrics {
	m := &DispatcherMetrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "backend_attempts_total",
			Help:      "Backend completion attempts by result (ok, transient, permanent, empty)",
		}, []string{"backend", "result"}),
		cooldowns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "backend_cooldowns_total",
			Help:      "Times a backend entered cooldown",
		}, []string{"backend"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "fallback_total",
			Help:      "Dispatches answered with the canned fallback text",
		}, []string{"reason"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "backend_latency_seconds",
			Help:      "Latency of individual backend calls",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"backend"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.attempts, m.cooldowns, m.fallbacks, m.latency)
	return m
}

func (m *DispatcherMetrics) ObserveAttempt(backend, result string, seconds float64) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(backend, result).Inc()
	m.latency.WithLabelValues(backend).Observe(seconds)
}

func (m *DispatcherMetrics) ObserveCooldown(backend string) {
	if m == nil {
		return
	}
	m.cooldowns.WithLabelValues(backend).Inc()
}

func (m *DispatcherMetrics) ObserveFallback(reason string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(reason).Inc()
}

// ConversationMetrics tracks negotiation outcomes.
type ConversationMetrics struct {
	turns    *prometheus.CounterVec
	bookings prometheus.Counter
	duration *prometheus.HistogramVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Inbound turns by negotiation outcome",
		}, []string{"outcome"}),
		bookings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "bookings_closed_total",
			Help:      "Negotiations that reached a closed booking",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "turn_duration_seconds",
			Help:      "Time spent handling one inbound turn",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turns, m.bookings, m.duration)
	return m
}

func (m *ConversationMetrics) ObserveTurn(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(seconds)
}

func (m *ConversationMetrics) ObserveBookingClosed() {
	if m == nil {
		return
	}
	m.bookings.Inc()
}
