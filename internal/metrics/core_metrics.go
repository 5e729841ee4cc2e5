package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CoreMetrics содержит метрики операций ядра: checkout, fulfillment, returns.
type CoreMetrics struct {
	// Счётчики checkout
	checkoutStarted   prometheus.Counter
	checkoutSucceeded prometheus.Counter
	checkoutFailed    *prometheus.CounterVec

	// Гистограмма времени checkout
	checkoutDuration prometheus.Histogram

	// Склад
	stockReserved      prometheus.Counter
	stockReleased      *prometheus.CounterVec
	insufficientStock  prometheus.Counter
	compensationRefund *prometheus.CounterVec

	// Переходы позиций и возвраты
	itemTransitions    *prometheus.CounterVec
	invalidTransitions prometheus.Counter
	returnsProcessed   *prometheus.CounterVec

	// Reconcile-инциденты: charge прошёл, а заказ не сохранился,
	// либо шлюз ответил таймаутом.
	reconciliationNeeded prometheus.Counter

	outboxEvents prometheus.Counter
}

// NewCoreMetrics создаёт метрики в default registerer.
func NewCoreMetrics() *CoreMetrics {
	return newCoreMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newCoreMetricsWithRegisterer(registerer prometheus.Registerer) *CoreMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CoreMetrics{
		checkoutStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_checkout_started_total",
			Help: "Total number of checkout operations started",
		}),
		checkoutSucceeded: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_checkout_succeeded_total",
			Help: "Total number of checkout operations completed successfully",
		}),
		checkoutFailed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fulfillment_checkout_failed_total",
			Help: "Total number of failed checkout operations grouped by reason",
		}, []string{"reason"}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "fulfillment_checkout_duration_seconds",
			Help:    "Duration of checkout operations in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		stockReserved: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_stock_reserved_total",
			Help: "Total units of stock reserved",
		}),
		stockReleased: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fulfillment_stock_released_total",
			Help: "Total units of stock released grouped by change type",
		}, []string{"change"}),
		insufficientStock: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_insufficient_stock_total",
			Help: "Total number of reservations rejected due to insufficient stock",
		}),
		compensationRefund: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fulfillment_compensation_refund_total",
			Help: "Total number of compensating refund attempts grouped by result",
		}, []string{"result"}),
		itemTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fulfillment_item_transitions_total",
			Help: "Total number of order item status transitions grouped by action",
		}, []string{"action"}),
		invalidTransitions: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_invalid_transitions_total",
			Help: "Total number of rejected order item transitions",
		}),
		returnsProcessed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fulfillment_returns_processed_total",
			Help: "Total number of processed returns grouped by action",
		}, []string{"action"}),
		reconciliationNeeded: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_reconciliation_needed_total",
			Help: "Total number of ambiguous payment outcomes requiring manual reconciliation",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_outbox_events_total",
			Help: "Total number of events enqueued to transactional outbox",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordCheckoutStarted увеличивает счётчик запущенных checkout.
func (m *CoreMetrics) RecordCheckoutStarted() {
	m.checkoutStarted.Inc()
}

// RecordCheckoutSucceeded увеличивает счётчик успешных checkout.
func (m *CoreMetrics) RecordCheckoutSucceeded() {
	m.checkoutSucceeded.Inc()
}

// RecordCheckoutFailed увеличивает счётчик неудачных checkout по причине.
func (m *CoreMetrics) RecordCheckoutFailed(reason string) {
	m.checkoutFailed.WithLabelValues(reason).Inc()
}

// RecordCheckoutDuration записывает время выполнения checkout.
func (m *CoreMetrics) RecordCheckoutDuration(duration time.Duration) {
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordStockReserved учитывает успешно зарезервированные единицы.
func (m *CoreMetrics) RecordStockReserved(qty int32) {
	m.stockReserved.Add(float64(qty))
}

// RecordStockReleased учитывает возвращённые на склад единицы.
func (m *CoreMetrics) RecordStockReleased(change string, qty int32) {
	m.stockReleased.WithLabelValues(change).Add(float64(qty))
}

// RecordInsufficientStock увеличивает счётчик отказов по нехватке стока.
func (m *CoreMetrics) RecordInsufficientStock() {
	m.insufficientStock.Inc()
}

// RecordCompensationRefund учитывает попытку компенсирующего возврата средств.
func (m *CoreMetrics) RecordCompensationRefund(result string) {
	m.compensationRefund.WithLabelValues(result).Inc()
}

// RecordItemTransition учитывает переход статуса позиции.
func (m *CoreMetrics) RecordItemTransition(action string) {
	m.itemTransitions.WithLabelValues(action).Inc()
}

// RecordInvalidTransition учитывает отклонённый переход.
func (m *CoreMetrics) RecordInvalidTransition() {
	m.invalidTransitions.Inc()
}

// RecordReturnProcessed учитывает обработанный возврат.
func (m *CoreMetrics) RecordReturnProcessed(action string) {
	m.returnsProcessed.WithLabelValues(action).Inc()
}

// RecordReconciliationNeeded учитывает инцидент, требующий ручного reconcile.
func (m *CoreMetrics) RecordReconciliationNeeded() {
	m.reconciliationNeeded.Inc()
}

// RecordOutboxEvent учитывает событие, поставленное в outbox.
func (m *CoreMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
