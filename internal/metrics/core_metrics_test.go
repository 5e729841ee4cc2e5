package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewCoreMetrics(t *testing.T) {
	m := NewCoreMetrics()

	if m == nil {
		t.Fatal("NewCoreMetrics should not return nil")
	}
	if m.checkoutStarted == nil {
		t.Error("checkoutStarted counter should not be nil")
	}
	if m.checkoutSucceeded == nil {
		t.Error("checkoutSucceeded counter should not be nil")
	}
	if m.checkoutFailed == nil {
		t.Error("checkoutFailed counter vec should not be nil")
	}
	if m.checkoutDuration == nil {
		t.Error("checkoutDuration histogram should not be nil")
	}
	if m.insufficientStock == nil {
		t.Error("insufficientStock counter should not be nil")
	}
	if m.compensationRefund == nil {
		t.Error("compensationRefund counter vec should not be nil")
	}
	if m.reconciliationNeeded == nil {
		t.Error("reconciliationNeeded counter should not be nil")
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func TestRecordCheckoutCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newCoreMetricsWithRegisterer(registry)

	m.RecordCheckoutStarted()
	m.RecordCheckoutStarted()
	m.RecordCheckoutSucceeded()
	m.RecordInsufficientStock()
	m.RecordCheckoutDuration(25 * time.Millisecond)

	if got := counterValue(t, m.checkoutStarted); got != 2 {
		t.Fatalf("expected checkoutStarted 2, got %v", got)
	}
	if got := counterValue(t, m.checkoutSucceeded); got != 1 {
		t.Fatalf("expected checkoutSucceeded 1, got %v", got)
	}
	if got := counterValue(t, m.insufficientStock); got != 1 {
		t.Fatalf("expected insufficientStock 1, got %v", got)
	}
}

func TestRecordStockCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newCoreMetricsWithRegisterer(registry)

	m.RecordStockReserved(3)
	m.RecordStockReleased("restock", 2)
	m.RecordCompensationRefund("approved")
	m.RecordReconciliationNeeded()

	if got := counterValue(t, m.stockReserved); got != 3 {
		t.Fatalf("expected stockReserved 3, got %v", got)
	}
	if got := counterValue(t, m.reconciliationNeeded); got != 1 {
		t.Fatalf("expected reconciliationNeeded 1, got %v", got)
	}
}

func TestRegisterTwiceReusesCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := newCoreMetricsWithRegisterer(registry)
	second := newCoreMetricsWithRegisterer(registry)

	first.RecordCheckoutStarted()
	second.RecordCheckoutStarted()

	if got := counterValue(t, first.checkoutStarted); got != 2 {
		t.Fatalf("expected shared counter value 2, got %v", got)
	}
}
