package fulfillment

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
)

const (
	defaultMaxSaveRetries = 5
	defaultRetryDelay     = 50 * time.Millisecond
)

// Service выполняет складские операции над позициями заказа: fulfill,
// backorder, ship, cancel и обновление tracking number. Каждая мутация
// проходит через таблицу переходов и завершается пересчётом производного
// статуса заказа в той же записи.
type Service struct {
	orders domain.OrderRepository
	ledger domain.InventoryLedger
	outbox domain.OutboxRepository

	logger  *log.Entry
	metrics *metrics.CoreMetrics

	maxSaveRetries int
	retryDelay     time.Duration
	now            func() time.Time
}

// NewService создаёт рабочий экземпляр сервиса.
func NewService(
	orders domain.OrderRepository,
	ledger domain.InventoryLedger,
	outbox domain.OutboxRepository,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "fulfillment")
	}
	return &Service{
		orders:         orders,
		ledger:         ledger,
		outbox:         outbox,
		logger:         logger,
		metrics:        metrics.NewCoreMetrics(),
		maxSaveRetries: defaultMaxSaveRetries,
		retryDelay:     defaultRetryDelay,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Fulfill переводит позицию в fulfilled (из paid или backordered).
func (s *Service) Fulfill(itemID string) error {
	return s.transition(itemID, domain.ItemActionFulfill, kafka.EventTypeItemFulfilled, nil)
}

// Backorder помечает позицию как ожидающую пополнения стока. Допустим и
// повторный заход из fulfilled, если при сборке обнаружилась недостача.
func (s *Service) Backorder(itemID string) error {
	return s.transition(itemID, domain.ItemActionBackorder, kafka.EventTypeItemBackordered, nil)
}

// Ship отгружает собранную позицию. Tracking number обязателен.
func (s *Service) Ship(itemID, trackingNumber string) error {
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return domain.ErrTrackingRequired
	}
	return s.transition(itemID, domain.ItemActionShip, kafka.EventTypeItemShipped, func(item *domain.OrderItem) {
		item.TrackingNumber = trackingNumber
	})
}

// UpdateTracking заменяет tracking number уже отгруженной позиции.
func (s *Service) UpdateTracking(itemID, trackingNumber string) error {
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return domain.ErrTrackingRequired
	}
	return s.mutateItem(itemID, func(order *domain.Order, item *domain.OrderItem) error {
		if item.Status != domain.ItemStatusShipped {
			return domain.ErrInvalidTransition
		}
		item.TrackingNumber = trackingNumber
		return nil
	})
}

// Cancel отменяет qty единиц позиции. qty <= 0 трактуется как отмена всего
// открытого остатка. При restock отменённое количество возвращается в
// доступный сток.
func (s *Service) Cancel(itemID string, qty int32, restock bool) error {
	var (
		cancelled int32
		orderID   string
		sku       string
		userID    string
	)

	err := s.mutateItem(itemID, func(order *domain.Order, item *domain.OrderItem) error {
		requested := qty
		if requested <= 0 {
			requested = item.OpenQty()
		}
		if err := item.Cancel(requested); err != nil {
			return err
		}
		cancelled = requested
		orderID = order.ID
		sku = item.SKU
		userID = order.UserID
		return nil
	})
	if err != nil {
		return err
	}

	if restock {
		if err := s.ledger.Release(orderID, sku, cancelled, domain.InventoryChangeRestock); err != nil {
			// Отмена уже зафиксирована; недоливка стока — инцидент, не откат.
			s.logger.WithError(err).WithFields(log.Fields{
				"order_id": orderID,
				"item_id":  itemID,
				"qty":      cancelled,
			}).Error("restock after cancel failed")
		}
	}

	s.metrics.RecordItemTransition("cancel")
	s.publishItemEvent(kafka.EventTypeItemCancelled, orderID, userID, itemID, map[string]interface{}{
		"qty":     cancelled,
		"restock": restock,
	})
	return nil
}

// transition применяет действие из таблицы переходов к позиции.
func (s *Service) transition(itemID string, action domain.ItemAction, eventType kafka.EventType, mutate func(*domain.OrderItem)) error {
	var (
		orderID string
		userID  string
		status  domain.ItemStatus
	)

	err := s.mutateItem(itemID, func(order *domain.Order, item *domain.OrderItem) error {
		if err := item.Transition(action); err != nil {
			return err
		}
		if mutate != nil {
			mutate(item)
		}
		orderID = order.ID
		userID = order.UserID
		status = item.Status
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			s.metrics.RecordInvalidTransition()
		}
		return err
	}

	s.metrics.RecordItemTransition(string(action))
	s.publishItemEvent(eventType, orderID, userID, itemID, map[string]interface{}{
		"status": string(status),
	})
	return nil
}

// mutateItem загружает заказ по позиции, применяет fn и сохраняет заказ с
// пересчитанным производным статусом. Конфликт версий приводит к перезагрузке
// и повторному применению fn поверх свежего состояния: из двух конкурентных
// одинаковых переходов второй отклонится таблицей переходов, а не потеряется.
func (s *Service) mutateItem(itemID string, fn func(*domain.Order, *domain.OrderItem) error) error {
	var lastErr error

	for attempt := 0; attempt < s.maxSaveRetries; attempt++ {
		order, err := s.orders.GetByItem(itemID)
		if err != nil {
			return err
		}
		item, err := order.Item(itemID)
		if err != nil {
			return err
		}

		if err := fn(&order, item); err != nil {
			return err
		}

		order.Status = domain.DeriveOrderStatus(order.Items)
		order.UpdatedAt = s.now()

		err = s.orders.Save(order)
		if err == nil {
			return nil
		}
		if !domain.IsVersionConflict(err) {
			return err
		}

		lastErr = err
		s.logger.WithFields(log.Fields{
			"item_id": itemID,
			"attempt": attempt + 1,
		}).Debug("version conflict, retrying item mutation")
		if s.retryDelay > 0 {
			time.Sleep(s.retryDelay)
		}
	}

	return lastErr
}

func (s *Service) publishItemEvent(eventType kafka.EventType, orderID, userID, itemID string, metadata map[string]interface{}) {
	if s.outbox == nil {
		return
	}
	event := kafka.NewOrderEvent(eventType, orderID, userID, "", metadata)
	event.ItemID = itemID

	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.WithError(err).WithField("event_type", eventType).Error("marshal item event")
		return
	}
	_, err = s.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   orderID,
		EventType:     string(eventType),
		Payload:       payload,
	})
	if err != nil {
		s.logger.WithError(err).WithField("event_type", eventType).Error("enqueue item event")
		return
	}
	s.metrics.RecordOutboxEvent()
}
