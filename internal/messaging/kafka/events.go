package kafka

import "time"

// EventType определяет тип доменного события.
type EventType string

const (
	// События заказа
	EventTypeOrderPlaced EventType = "order.placed"

	// События позиций заказа
	EventTypeItemFulfilled   EventType = "item.fulfilled"
	EventTypeItemBackordered EventType = "item.backordered"
	EventTypeItemShipped     EventType = "item.shipped"
	EventTypeItemCancelled   EventType = "item.cancelled"

	// События возвратов
	EventTypeReturnRequested EventType = "return.requested"
	EventTypeReturnReceived  EventType = "return.received"
	EventTypeReturnApproved  EventType = "return.approved"
	EventTypeReturnDenied    EventType = "return.denied"
	EventTypeReturnRefunded  EventType = "return.refunded"
	EventTypeReturnReopened  EventType = "return.reopened"

	// Платёжные инциденты: исход charge неизвестен, требуется ручная сверка.
	EventTypeReconcileNeeded EventType = "payment.reconcile_needed"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "fulfillment.order.events"
	TopicReturnEvents    = "fulfillment.return.events"
	TopicDeadLetterQueue = "fulfillment.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEvent представляет событие жизненного цикла заказа или его позиции.
type OrderEvent struct {
	EventType EventType              `json:"event_type"`
	OrderID   string                 `json:"order_id"`
	UserID    string                 `json:"user_id,omitempty"`
	ItemID    string                 `json:"item_id,omitempty"`
	Status    string                 `json:"status,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// ReturnEvent представляет событие жизненного цикла заявки на возврат.
type ReturnEvent struct {
	EventType EventType              `json:"event_type"`
	ReturnID  string                 `json:"return_id"`
	OrderID   string                 `json:"order_id"`
	ItemID    string                 `json:"item_id"`
	RMANumber string                 `json:"rma_number"`
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewOrderEvent создает событие заказа с текущей меткой времени.
func NewOrderEvent(eventType EventType, orderID, userID, status string, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType: eventType,
		OrderID:   orderID,
		UserID:    userID,
		Status:    status,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
}

// NewReturnEvent создает событие возврата с текущей меткой времени.
func NewReturnEvent(eventType EventType, ret ReturnRef, metadata map[string]interface{}) *ReturnEvent {
	return &ReturnEvent{
		EventType: eventType,
		ReturnID:  ret.ID,
		OrderID:   ret.OrderID,
		ItemID:    ret.ItemID,
		RMANumber: ret.RMANumber,
		Status:    ret.Status,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
}

// ReturnRef — минимальный набор полей возврата для формирования события.
type ReturnRef struct {
	ID        string
	OrderID   string
	ItemID    string
	RMANumber string
	Status    string
}
