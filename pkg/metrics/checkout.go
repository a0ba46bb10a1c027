package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Checkout outcomes reported on mall_checkout_total.
const (
	OutcomeSuccess           = "success"
	OutcomeEmptyCart         = "empty_cart"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeContention        = "contention"
	OutcomeError             = "error"
)

// CheckoutMetrics records checkout outcomes and inventory CAS behaviour.
type CheckoutMetrics struct {
	outcomes   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	casRetries prometheus.Counter
	contention prometheus.Counter
}

// NewCheckoutMetrics registers the checkout collectors on reg. A nil
// registerer yields a no-op recorder.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mall_checkout_total",
		Help: "Checkout attempts by outcome.",
	}, []string{"outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mall_checkout_duration_seconds",
		Help:    "Duration of checkout transactions in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	casRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mall_inventory_cas_retries_total",
		Help: "Conditional stock writes that lost a race and were retried.",
	})
	contention := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mall_inventory_contention_total",
		Help: "Stock decrements abandoned after exhausting retries.",
	})
	reg.MustRegister(outcomes, duration, casRetries, contention)
	return &CheckoutMetrics{
		outcomes:   outcomes,
		duration:   duration,
		casRetries: casRetries,
		contention: contention,
	}
}

// ObserveCheckout counts one checkout and records how long it took.
func (m *CheckoutMetrics) ObserveCheckout(outcome string, elapsed time.Duration) {
	if m == nil || m.outcomes == nil {
		return
	}
	outcome = normalizeLabel(outcome)
	m.outcomes.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// IncCASRetry counts a lost conditional write.
func (m *CheckoutMetrics) IncCASRetry() {
	if m == nil || m.casRetries == nil {
		return
	}
	m.casRetries.Inc()
}

// IncContention counts a decrement that ran out of attempts.
func (m *CheckoutMetrics) IncContention() {
	if m == nil || m.contention == nil {
		return
	}
	m.contention.Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
