package domain

import "time"

// InventoryLedger описывает атомарные операции над остатками склада.
// Reserve обязан выполнять проверку остатка и декремент одним неделимым
// шагом: два конкурентных резерва, совместно превышающих остаток, не могут
// оба завершиться успехом.
type InventoryLedger interface {
	// Reserve резервирует qty единиц SKU под заказ и возвращает токен
	// для последующего отката. При нехватке стока — ErrInsufficientStock.
	Reserve(orderID, sku string, qty int32) (Reservation, error)
	// Release атомарно возвращает qty единиц в доступный остаток
	// (откат резерва либо restock при отмене/возврате).
	Release(orderID, sku string, qty int32, change InventoryChangeType) error
}

// PaymentGateway описывает внешний платёжный шлюз. Считается медленным и
// ненадёжным: таймаут обращения — неопределённый исход (ErrGatewayTimeout),
// который требует reconcile, а не повторного списания.
type PaymentGateway interface {
	// Charge списывает сумму с платёжного инструмента.
	Charge(amountMinor int64, instrument PaymentInstrument) (PaymentResult, error)
	// Refund возвращает сумму по референсу исходной транзакции.
	Refund(amountMinor int64, originalRef string) (PaymentResult, error)
}

// Notifier отправляет уведомления покупателю. Вызовы fire-and-forget:
// ошибка уведомления никогда не откатывает заказ.
type Notifier interface {
	OrderPlaced(order Order) error
	ReturnProcessed(ret Return) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// InventoryLogRepository хранит журнал изменений остатков.
type InventoryLogRepository interface {
	Append(entry InventoryLogEntry) error
	ListBySKU(sku string, limit int) ([]InventoryLogEntry, error)
}

// IdempotencyRepository хранит состояние checkout-запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, result []byte, resultCode int) error
	MarkFailed(key string, result []byte, resultCode int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
