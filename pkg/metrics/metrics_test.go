package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCheckoutMetricsExportsOutcomesAndRetries(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCheckoutMetrics(reg)
	m.ObserveCheckout(OutcomeSuccess, 120*time.Millisecond)
	m.ObserveCheckout(OutcomeSuccess, 80*time.Millisecond)
	m.ObserveCheckout(OutcomeInsufficientStock, 10*time.Millisecond)
	m.IncCASRetry()
	m.IncCASRetry()
	m.IncContention()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "mall_checkout_total", "outcome", OutcomeSuccess); err != nil {
		t.Fatalf("fetch success: %v", err)
	} else if got != 2 {
		t.Fatalf("expected success=2, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "mall_checkout_total", "outcome", OutcomeInsufficientStock); err != nil {
		t.Fatalf("fetch insufficient: %v", err)
	} else if got != 1 {
		t.Fatalf("expected insufficient_stock=1, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "mall_checkout_duration_seconds", "outcome", OutcomeSuccess); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
	if got := plainCounter(mfs, "mall_inventory_cas_retries_total"); got != 2 {
		t.Fatalf("expected 2 cas retries, got %f", got)
	}
	if got := plainCounter(mfs, "mall_inventory_contention_total"); got != 1 {
		t.Fatalf("expected 1 contention, got %f", got)
	}
}

func TestOutboxMetricsLabelsByEventType(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.IncPublished("order_created")
	m.IncFailed("order_paid")
	m.IncDead("")
	m.ObserveBatch(time.Second)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "mall_outbox_published_total", "event_type", "order_created"); err != nil || got != 1 {
		t.Fatalf("expected published=1, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "mall_outbox_dlq_total", "event_type", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected empty label normalized, got %f err=%v", got, err)
	}
}

func TestCronJobMetricsSplitSuccessAndFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.IncSuccess("outbox-retention")
	m.IncSuccess("outbox-retention")
	m.IncFailure("goods-sales-reconcile")
	m.ObserveDuration("outbox-retention", 250*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "mall_cron_job_success_total", "job", "outbox-retention"); err != nil || got != 2 {
		t.Fatalf("expected success=2, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "mall_cron_job_failure_total", "job", "goods-sales-reconcile"); err != nil || got != 1 {
		t.Fatalf("expected failure=1, got %f err=%v", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "mall_cron_job_duration_seconds", "job", "outbox-retention"); err != nil || got <= 0 {
		t.Fatalf("expected duration recorded, got %f err=%v", got, err)
	}
}

func TestNilRegistererIsNoop(t *testing.T) {
	m := NewCheckoutMetrics(nil)
	m.ObserveCheckout(OutcomeError, time.Second)
	m.IncCASRetry()
	m.IncContention()

	var nilMetrics *CheckoutMetrics
	nilMetrics.IncCASRetry()

	var nilCron *CronJobMetrics
	nilCron.IncFailure("job")
	NewCronJobMetrics(nil).ObserveDuration("job", time.Second)

	o := NewOutboxMetrics(nil)
	o.IncPublished("order_created")
	o.ObserveBatch(time.Second)
}

func plainCounter(mfs []*dto.MetricFamily, name string) float64 {
	mf := findMetricFamily(mfs, name)
	if mf == nil || len(mf.GetMetric()) == 0 {
		return -1
	}
	return mf.GetMetric()[0].GetCounter().GetValue()
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
