package metrics

import "github.com/prometheus/client_golang/prometheus"

// Completion trigger labels. Three paths can race to finalize the same order.
const (
	TriggerCheckoutReturn = "checkout_return"
	TriggerDirectCharge   = "direct_charge"
	TriggerWebhook        = "webhook"
)

// PaymentMetrics tracks order completion and payment gateway outcomes.
type PaymentMetrics struct {
	completions *prometheus.CounterVec
	duplicates  *prometheus.CounterVec
	declines    prometheus.Counter
	webhooks    *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	completions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_completions_total",
		Help: "Orders transitioned to completed, labeled by triggering path.",
	}, []string{"trigger"})
	duplicates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_completion_duplicates_total",
		Help: "Completion attempts that found the order already finalized.",
	}, []string{"trigger"})
	declines := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payment_declines_total",
		Help: "Card charges rejected by the payment gateway.",
	})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_events_total",
		Help: "Payment gateway webhook deliveries, labeled by handling result.",
	}, []string{"result"})
	reg.MustRegister(completions, duplicates, declines, webhooks)
	return &PaymentMetrics{
		completions: completions,
		duplicates:  duplicates,
		declines:    declines,
		webhooks:    webhooks,
	}
}

// IncCompletion counts a successful pending-to-completed transition.
func (p *PaymentMetrics) IncCompletion(trigger string) {
	if p == nil || p.completions == nil {
		return
	}
	p.completions.WithLabelValues(normalizeLabel(trigger)).Inc()
}

// IncDuplicate counts an attempt that lost the completion race.
func (p *PaymentMetrics) IncDuplicate(trigger string) {
	if p == nil || p.duplicates == nil {
		return
	}
	p.duplicates.WithLabelValues(normalizeLabel(trigger)).Inc()
}

// IncDecline counts a gateway card decline.
func (p *PaymentMetrics) IncDecline() {
	if p == nil || p.declines == nil {
		return
	}
	p.declines.Inc()
}

// IncWebhook counts a webhook delivery outcome (accepted, ignored, rejected).
func (p *PaymentMetrics) IncWebhook(result string) {
	if p == nil || p.webhooks == nil {
		return
	}
	p.webhooks.WithLabelValues(normalizeLabel(result)).Inc()
}
