package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics records counters for the money-moving paths plus gateway
// call latency. All methods are nil-safe so wiring stays optional in tests.
type SettlementMetrics struct {
	intents         *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	refunds         *prometheus.CounterVec
	payouts         *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
}

// NewSettlementMetrics registers the settlement metrics on the provided registerer.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	intents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_intents_total",
		Help: "Payment intent attempts by outcome.",
	}, []string{"outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Order status transitions by target status.",
	}, []string{"to_status"})
	refunds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "refund_requests_total",
		Help: "Refund requests by outcome.",
	}, []string{"outcome"})
	payouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payouts_processed_total",
		Help: "Payout processing results by outcome.",
	}, []string{"outcome"})
	gatewayDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_call_duration_seconds",
		Help:    "Duration of payment gateway calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	reg.MustRegister(intents, transitions, refunds, payouts, gatewayDuration)
	return &SettlementMetrics{
		intents:         intents,
		transitions:     transitions,
		refunds:         refunds,
		payouts:         payouts,
		gatewayDuration: gatewayDuration,
	}
}

// IncIntent counts a payment intent attempt with the given outcome.
func (m *SettlementMetrics) IncIntent(outcome string) {
	if m == nil || m.intents == nil {
		return
	}
	m.intents.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncTransition counts an order transition into the given status.
func (m *SettlementMetrics) IncTransition(toStatus string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(toStatus)).Inc()
}

// IncRefund counts a refund request with the given outcome.
func (m *SettlementMetrics) IncRefund(outcome string) {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncPayout counts a payout processing result.
func (m *SettlementMetrics) IncPayout(outcome string) {
	if m == nil || m.payouts == nil {
		return
	}
	m.payouts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveGatewayCall records the duration of a gateway operation.
func (m *SettlementMetrics) ObserveGatewayCall(operation string, duration time.Duration) {
	if m == nil || m.gatewayDuration == nil {
		return
	}
	m.gatewayDuration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
