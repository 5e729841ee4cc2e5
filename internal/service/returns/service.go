package returns

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
)

const (
	defaultMaxSaveRetries = 5
	defaultRetryDelay     = 50 * time.Millisecond
)

// Service ведёт жизненный цикл заявок на возврат: создание, приёмка товара,
// решение оператора (approve/deny/refund) и повторное открытие отклонённой
// заявки. Денежный возврат выполняется через платёжный шлюз до мутации
// статусов: отклонённый refund не оставляет заявку в полу-обработанном виде.
type Service struct {
	returns domain.ReturnRepository
	orders  domain.OrderRepository
	ledger  domain.InventoryLedger
	gateway domain.PaymentGateway
	outbox  domain.OutboxRepository

	notifier domain.Notifier
	logger   *log.Entry
	metrics  *metrics.CoreMetrics

	maxSaveRetries int
	retryDelay     time.Duration
	now            func() time.Time
}

// NewService создаёт рабочий экземпляр сервиса возвратов.
func NewService(
	returns domain.ReturnRepository,
	orders domain.OrderRepository,
	ledger domain.InventoryLedger,
	gateway domain.PaymentGateway,
	outbox domain.OutboxRepository,
	notifier domain.Notifier,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "returns")
	}
	return &Service{
		returns:        returns,
		orders:         orders,
		ledger:         ledger,
		gateway:        gateway,
		outbox:         outbox,
		notifier:       notifier,
		logger:         logger,
		metrics:        metrics.NewCoreMetrics(),
		maxSaveRetries: defaultMaxSaveRetries,
		retryDelay:     defaultRetryDelay,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Request создаёт заявку на возврат по позиции заказа. qty <= 0 трактуется
// как возврат всего открытого остатка. На позицию допускается не более одной
// открытой заявки.
func (s *Service) Request(userID, itemID string, qty int32, reason string) (domain.Return, error) {
	if strings.TrimSpace(reason) == "" {
		return domain.Return{}, domain.ErrReasonRequired
	}

	order, err := s.orders.GetByItem(itemID)
	if err != nil {
		return domain.Return{}, err
	}
	item, err := order.Item(itemID)
	if err != nil {
		return domain.Return{}, err
	}
	if item.Status != domain.ItemStatusFulfilled && item.Status != domain.ItemStatusShipped {
		// Возврату подлежит исполненный или отгруженный товар.
		return domain.Return{}, domain.ErrInvalidTransition
	}

	if _, err := s.returns.OpenByItem(itemID); err == nil {
		return domain.Return{}, domain.ErrReturnAlreadyOpen
	} else if !errors.Is(err, domain.ErrReturnNotFound) {
		return domain.Return{}, err
	}

	if qty <= 0 {
		qty = item.OpenQty()
	}
	if qty > item.OpenQty() {
		return domain.Return{}, domain.ErrReturnQtyExceedsOpen
	}
	if qty <= 0 {
		return domain.Return{}, domain.ErrQtyInvalid
	}

	ret := domain.Return{
		ID:                uuid.NewString(),
		OrderItemID:       itemID,
		OrderID:           order.ID,
		UserID:            userID,
		Reason:            reason,
		Status:            domain.ReturnStatusRequested,
		Qty:               qty,
		RefundAmountMinor: int64(qty) * item.PriceMinor,
		RMANumber:         domain.GenerateRMANumber(),
		CreatedAt:         s.now(),
	}
	if errs := ret.Validate(); len(errs) > 0 {
		return domain.Return{}, errs[0]
	}
	if err := s.returns.Create(ret); err != nil {
		return domain.Return{}, err
	}

	s.publishReturnEvent(kafka.EventTypeReturnRequested, ret, nil)
	s.logger.WithFields(log.Fields{
		"return_id": ret.ID,
		"rma":       ret.RMANumber,
		"item_id":   itemID,
		"qty":       qty,
	}).Info("return requested")

	return ret, nil
}

// Receive отмечает получение возвращаемого товара складом.
func (s *Service) Receive(returnID string) (domain.Return, error) {
	ret, err := s.returns.Get(returnID)
	if err != nil {
		return domain.Return{}, err
	}
	if err := ret.Receive(s.now()); err != nil {
		return domain.Return{}, err
	}
	if err := s.returns.Save(ret); err != nil {
		return domain.Return{}, err
	}

	s.publishReturnEvent(kafka.EventTypeReturnReceived, ret, nil)
	return ret, nil
}

// Process применяет решение оператора к открытой заявке. Остаток позиции
// перепроверяется на момент обработки: параллельная отмена могла уменьшить
// его после создания заявки. Для ReturnActionRefund средства возвращаются
// через шлюз до каких-либо мутаций.
func (s *Service) Process(returnID string, action domain.ReturnAction, restock bool) (domain.Return, error) {
	ret, err := s.returns.Get(returnID)
	if err != nil {
		return domain.Return{}, err
	}
	if !ret.Open() {
		return domain.Return{}, domain.ErrInvalidTransition
	}

	order, err := s.orders.GetByItem(ret.OrderItemID)
	if err != nil {
		return domain.Return{}, err
	}
	item, err := order.Item(ret.OrderItemID)
	if err != nil {
		return domain.Return{}, err
	}

	if action != domain.ReturnActionDeny && ret.Qty > item.OpenQty() {
		return domain.Return{}, domain.ErrReturnQtyExceedsOpen
	}

	if action == domain.ReturnActionRefund {
		result, err := s.gateway.Refund(ret.RefundAmountMinor, order.PaymentRef)
		if err != nil {
			s.logger.WithError(err).WithField("return_id", ret.ID).Error("refund via gateway failed")
			return domain.Return{}, err
		}
		if !result.Approved {
			return domain.Return{}, fmt.Errorf("%w: %s", domain.ErrRefundDeclined, result.Reason)
		}
	}

	if err := ret.Resolve(action, s.now()); err != nil {
		return domain.Return{}, err
	}
	if err := s.returns.Save(ret); err != nil {
		return domain.Return{}, err
	}

	if action != domain.ReturnActionDeny {
		final := domain.ItemStatusReturned
		if action == domain.ReturnActionRefund {
			final = domain.ItemStatusRefunded
		}
		if err := s.markItemReturned(ret.OrderItemID, ret.Qty, final); err != nil {
			// Заявка уже решена; рассинхрон позиции — инцидент для оператора.
			s.logger.WithError(err).WithFields(log.Fields{
				"return_id": ret.ID,
				"item_id":   ret.OrderItemID,
			}).Error("mark item returned failed")
		}
		if restock {
			if err := s.ledger.Release(ret.OrderID, item.SKU, ret.Qty, domain.InventoryChangeRestock); err != nil {
				s.logger.WithError(err).WithFields(log.Fields{
					"return_id": ret.ID,
					"sku":       item.SKU,
					"qty":       ret.Qty,
				}).Error("restock after return failed")
			}
		}
	}

	s.metrics.RecordReturnProcessed(string(action))
	s.publishReturnEvent(eventTypeForAction(action), ret, map[string]interface{}{
		"restock": restock,
	})
	s.notifyProcessed(ret)

	s.logger.WithFields(log.Fields{
		"return_id": ret.ID,
		"rma":       ret.RMANumber,
		"action":    action,
	}).Info("return processed")

	return ret, nil
}

// Reopen возвращает отклонённую заявку в Requested.
func (s *Service) Reopen(returnID string) (domain.Return, error) {
	ret, err := s.returns.Get(returnID)
	if err != nil {
		return domain.Return{}, err
	}
	if err := ret.Reopen(); err != nil {
		return domain.Return{}, err
	}
	// На позицию допускается не более одной открытой заявки: пока эта
	// лежала в Denied, по той же позиции могли завести новую.
	if _, err := s.returns.OpenByItem(ret.OrderItemID); err == nil {
		return domain.Return{}, domain.ErrReturnAlreadyOpen
	} else if !errors.Is(err, domain.ErrReturnNotFound) {
		return domain.Return{}, err
	}
	if err := s.returns.Save(ret); err != nil {
		return domain.Return{}, err
	}

	s.publishReturnEvent(kafka.EventTypeReturnReopened, ret, nil)
	return ret, nil
}

// Get возвращает заявку по идентификатору.
func (s *Service) Get(returnID string) (domain.Return, error) {
	return s.returns.Get(returnID)
}

// List возвращает заявки с опциональным фильтром по статусу.
func (s *Service) List(status domain.ReturnStatus, limit int) ([]domain.Return, error) {
	return s.returns.List(status, limit)
}

// markItemReturned мутирует позицию с retry по конфликту версий и
// пересчитывает производный статус заказа.
func (s *Service) markItemReturned(itemID string, qty int32, final domain.ItemStatus) error {
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
		if err := item.MarkReturned(qty, final); err != nil {
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
		if s.retryDelay > 0 {
			time.Sleep(s.retryDelay)
		}
	}

	return lastErr
}

func eventTypeForAction(action domain.ReturnAction) kafka.EventType {
	switch action {
	case domain.ReturnActionApprove:
		return kafka.EventTypeReturnApproved
	case domain.ReturnActionDeny:
		return kafka.EventTypeReturnDenied
	default:
		return kafka.EventTypeReturnRefunded
	}
}

func (s *Service) publishReturnEvent(eventType kafka.EventType, ret domain.Return, metadata map[string]interface{}) {
	if s.outbox == nil {
		return
	}
	event := kafka.NewReturnEvent(eventType, kafka.ReturnRef{
		ID:        ret.ID,
		OrderID:   ret.OrderID,
		ItemID:    ret.OrderItemID,
		RMANumber: ret.RMANumber,
		Status:    string(ret.Status),
	}, metadata)

	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.WithError(err).WithField("event_type", eventType).Error("marshal return event")
		return
	}
	_, err = s.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: "return",
		AggregateID:   ret.ID,
		EventType:     string(eventType),
		Payload:       payload,
	})
	if err != nil {
		s.logger.WithError(err).WithField("event_type", eventType).Error("enqueue return event")
		return
	}
	s.metrics.RecordOutboxEvent()
}

func (s *Service) notifyProcessed(ret domain.Return) {
	if s.notifier == nil {
		return
	}
	// Fire-and-forget: ошибка уведомления не откатывает обработку.
	if err := s.notifier.ReturnProcessed(ret); err != nil {
		s.logger.WithError(err).WithField("return_id", ret.ID).Warn("return processed notification failed")
	}
}
