package checkout

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/discount"
)

const defaultIdempotencyTTL = 24 * time.Hour

// CartLine — одна строка корзины на входе checkout. UnitPriceMinor — цена
// за единицу с уже применённой акцией, в минорных единицах.
type CartLine struct {
	SKU            string
	Qty            int32
	UnitPriceMinor int64
}

// Request — запрос на оформление заказа.
type Request struct {
	UserID string
	Lines  []CartLine

	Instrument      domain.PaymentInstrument
	ShippingAddress domain.Address
	// BillingAddress опционален: nil означает "совпадает с адресом доставки".
	BillingAddress *domain.Address

	CouponCode string

	// IdempotencyKey опционален; при повторе с тем же ключом возвращается
	// сохранённый результат вместо повторного списания средств.
	IdempotencyKey string
}

// Result — итог успешного checkout.
type Result struct {
	OrderID       string `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	TotalMinor    int64  `json:"total_minor"`
	DiscountMinor int64  `json:"discount_minor"`
}

// RefundRetryConfig управляет повторами компенсирующего refund.
type RefundRetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRefundRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRefundRetryConfig() RefundRetryConfig {
	return RefundRetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
	}
}

// Orchestrator выполняет четырёхшаговый checkout: резерв остатков → расчёт
// суммы со скидкой → списание средств → сохранение заказа. На каждом шаге
// при ошибке выполняется компенсация уже сделанных шагов, поэтому деньги не
// списываются без заказа, а сток не утекает без оплаты.
type Orchestrator struct {
	orders      domain.OrderRepository
	coupons     domain.CouponRepository
	ledger      domain.InventoryLedger
	gateway     domain.PaymentGateway
	outbox      domain.OutboxRepository
	idempotency domain.IdempotencyRepository
	notifier    domain.Notifier
	evaluator   *discount.Evaluator

	logger        *log.Entry
	metrics       *metrics.CoreMetrics
	kafkaProducer *kafka.Producer // опциональный прямой publisher помимо outbox

	now            func() time.Time
	refundRetry    RefundRetryConfig
	idempotencyTTL time.Duration
}

// Deps перечисляет зависимости оркестратора.
type Deps struct {
	Orders      domain.OrderRepository
	Coupons     domain.CouponRepository
	Ledger      domain.InventoryLedger
	Gateway     domain.PaymentGateway
	Outbox      domain.OutboxRepository
	Idempotency domain.IdempotencyRepository
	Notifier    domain.Notifier

	KafkaProducer *kafka.Producer
	Logger        *log.Entry
}

// NewOrchestrator создаёт рабочий экземпляр оркестратора.
func NewOrchestrator(deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = log.New().WithField("component", "checkout")
	}
	return &Orchestrator{
		orders:         deps.Orders,
		coupons:        deps.Coupons,
		ledger:         deps.Ledger,
		gateway:        deps.Gateway,
		outbox:         deps.Outbox,
		idempotency:    deps.Idempotency,
		notifier:       deps.Notifier,
		evaluator:      discount.NewEvaluator(),
		logger:         logger,
		metrics:        metrics.NewCoreMetrics(),
		kafkaProducer:  deps.KafkaProducer,
		now:            func() time.Time { return time.Now().UTC() },
		refundRetry:    DefaultRefundRetryConfig(),
		idempotencyTTL: defaultIdempotencyTTL,
	}
}

// Checkout оформляет заказ. Либо заказ создаётся целиком (резерв, списание,
// запись в хранилище), либо состояние остаётся как до вызова. Единственное
// исключение — таймаут платёжного шлюза: исход списания неизвестен, резерв
// сохраняется до ручной сверки.
func (o *Orchestrator) Checkout(req Request) (Result, error) {
	started := o.now()
	o.metrics.RecordCheckoutStarted()
	defer func() {
		o.metrics.RecordCheckoutDuration(time.Since(started))
	}()

	if err := o.validate(req); err != nil {
		o.metrics.RecordCheckoutFailed("validation")
		return Result{}, err
	}

	replayed, result, err := o.claimIdempotencyKey(req)
	if err != nil {
		o.metrics.RecordCheckoutFailed("idempotency")
		return Result{}, err
	}
	if replayed {
		o.logger.WithFields(log.Fields{
			"user_id":  req.UserID,
			"order_id": result.OrderID,
		}).Info("checkout replayed from idempotency record")
		return result, nil
	}

	orderID := uuid.NewString()

	// Шаг 1: резервируем все строки корзины. Любой отказ откатывает уже
	// сделанные резервы — корзина резервируется целиком или никак.
	reservations, err := o.reserveAll(orderID, req.Lines)
	if err != nil {
		reason := "reserve_failed"
		if errors.Is(err, domain.ErrInsufficientStock) {
			reason = "insufficient_stock"
		}
		o.failCheckout(req.IdempotencyKey, reason, err)
		return Result{}, err
	}

	// Шаг 2: подытог и скидка.
	subtotal := subtotalMinor(req.Lines)
	coupon, discountMinor, err := o.applyCoupon(req.UserID, req.CouponCode, subtotal)
	if err != nil {
		o.releaseAll(reservations)
		o.failCheckout(req.IdempotencyKey, "coupon_rejected", err)
		return Result{}, err
	}
	total := subtotal - discountMinor

	// Шаг 3: списание средств.
	charge, err := o.gateway.Charge(total, req.Instrument)
	if err != nil {
		if errors.Is(err, domain.ErrGatewayTimeout) {
			// Исход неизвестен: списание могло пройти. Резерв сохраняем,
			// повторное списание запрещено — только ручная сверка.
			o.metrics.RecordReconciliationNeeded()
			o.publishReconcileNeeded(orderID, req.UserID, total)
			o.failCheckout(req.IdempotencyKey, "gateway_timeout", err)
			o.logger.WithFields(log.Fields{
				"order_id":    orderID,
				"user_id":     req.UserID,
				"total_minor": total,
			}).Error("payment outcome unknown, reservation kept for reconciliation")
			return Result{}, err
		}
		o.releaseAll(reservations)
		o.failCheckout(req.IdempotencyKey, "charge_failed", err)
		return Result{}, err
	}
	if !charge.Approved {
		o.releaseAll(reservations)
		err := fmt.Errorf("%w: %s", domain.ErrPaymentDeclined, charge.Reason)
		o.failCheckout(req.IdempotencyKey, "payment_declined", err)
		return Result{}, err
	}

	// Шаг 4: сохраняем заказ целиком.
	order := o.buildOrder(orderID, req, subtotal, discountMinor, coupon, charge.Ref)
	if err := o.orders.Create(order); err != nil {
		// Деньги уже списаны: возвращаем резерв и компенсируем списание.
		o.releaseAll(reservations)
		o.compensateCharge(orderID, total, charge.Ref)
		o.failCheckout(req.IdempotencyKey, "persist_failed", err)
		return Result{}, err
	}

	o.recordCouponUsage(req.UserID, coupon)
	o.publishOrderPlaced(order)
	o.notifyOrderPlaced(order)

	result = Result{
		OrderID:       order.ID,
		OrderNumber:   order.Number,
		TotalMinor:    order.TotalMinor,
		DiscountMinor: order.DiscountMinor,
	}
	o.finishIdempotencyKey(req.IdempotencyKey, result)
	o.metrics.RecordCheckoutSucceeded()

	o.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.Number,
		"user_id":      order.UserID,
		"total_minor":  order.TotalMinor,
		"lines":        len(order.Items),
	}).Info("checkout completed")

	return result, nil
}

func (o *Orchestrator) validate(req Request) error {
	if req.UserID == "" {
		return domain.ErrUserRequired
	}
	if len(req.Lines) == 0 {
		return domain.ErrCartEmpty
	}
	for _, line := range req.Lines {
		if line.SKU == "" {
			return domain.ErrSKURequired
		}
		if line.Qty <= 0 {
			return domain.ErrQtyInvalid
		}
		if line.UnitPriceMinor < 0 {
			return domain.ErrPriceNegative
		}
	}
	if errs := req.Instrument.Validate(); len(errs) > 0 {
		return errs[0]
	}
	if errs := req.ShippingAddress.Validate(); len(errs) > 0 {
		return errs[0]
	}
	if req.BillingAddress != nil {
		if errs := req.BillingAddress.Validate(); len(errs) > 0 {
			return errs[0]
		}
	}
	return nil
}

// claimIdempotencyKey регистрирует ключ идемпотентности запроса. Возвращает
// replayed=true и сохранённый результат, если checkout с этим ключом уже
// завершился успешно.
func (o *Orchestrator) claimIdempotencyKey(req Request) (bool, Result, error) {
	if req.IdempotencyKey == "" || o.idempotency == nil {
		return false, Result{}, nil
	}

	hash := requestHash(req)
	_, err := o.idempotency.CreateProcessing(req.IdempotencyKey, hash, o.now().Add(o.idempotencyTTL))
	if err == nil {
		return false, Result{}, nil
	}
	if !errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
		return false, Result{}, err
	}

	record, getErr := o.idempotency.Get(req.IdempotencyKey)
	if getErr != nil {
		return false, Result{}, getErr
	}
	if record.RequestHash != hash {
		return false, Result{}, domain.ErrIdempotencyHashMismatch
	}
	if record.Status == domain.IdempotencyStatusDone {
		var result Result
		if err := json.Unmarshal(record.Result, &result); err != nil {
			return false, Result{}, fmt.Errorf("decode stored checkout result: %w", err)
		}
		return true, result, nil
	}

	// processing или failed: повтор не реплеится, клиент должен дождаться
	// исхода либо выполнить запрос с новым ключом.
	return false, Result{}, domain.ErrIdempotencyKeyAlreadyExists
}

func (o *Orchestrator) finishIdempotencyKey(key string, result Result) {
	if key == "" || o.idempotency == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		o.logger.WithError(err).Error("marshal checkout result for idempotency record")
		return
	}
	if err := o.idempotency.MarkDone(key, payload, 200); err != nil {
		o.logger.WithError(err).WithField("idempotency_key", key).Error("mark idempotency key done")
	}
}

func (o *Orchestrator) failCheckout(key, reason string, cause error) {
	o.metrics.RecordCheckoutFailed(reason)
	if key == "" || o.idempotency == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{"error": cause.Error()})
	if err := o.idempotency.MarkFailed(key, payload, 422); err != nil {
		o.logger.WithError(err).WithField("idempotency_key", key).Error("mark idempotency key failed")
	}
}

// reserveAll резервирует строки корзины по порядку; при первом отказе
// откатывает уже сделанные резервы.
func (o *Orchestrator) reserveAll(orderID string, lines []CartLine) ([]domain.Reservation, error) {
	reservations := make([]domain.Reservation, 0, len(lines))
	for _, line := range lines {
		reservation, err := o.ledger.Reserve(orderID, line.SKU, line.Qty)
		if err != nil {
			o.releaseAll(reservations)
			return nil, err
		}
		reservations = append(reservations, reservation)
	}
	return reservations, nil
}

func (o *Orchestrator) releaseAll(reservations []domain.Reservation) {
	for _, reservation := range reservations {
		if err := o.ledger.Release(reservation.OrderID, reservation.SKU, reservation.Qty, domain.InventoryChangeRelease); err != nil {
			o.logger.WithError(err).WithFields(log.Fields{
				"order_id": reservation.OrderID,
				"sku":      reservation.SKU,
				"qty":      reservation.Qty,
			}).Error("release reservation failed")
		}
	}
}

// applyCoupon валидирует купон и возвращает размер скидки. Пустой код —
// заказ без купона. Любая проблема с купоном отклоняет checkout целиком:
// молча проигнорировать скидку хуже, чем отказать.
func (o *Orchestrator) applyCoupon(userID, code string, subtotal int64) (domain.Coupon, int64, error) {
	if code == "" {
		return domain.Coupon{}, 0, nil
	}

	coupon, err := o.coupons.GetByCode(code)
	if err != nil {
		return domain.Coupon{}, 0, err
	}
	alreadyUsed, err := o.coupons.HasUsage(userID, coupon.Code)
	if err != nil {
		return domain.Coupon{}, 0, err
	}
	if err := o.evaluator.Validate(coupon, subtotal, alreadyUsed); err != nil {
		return domain.Coupon{}, 0, err
	}
	return coupon, o.evaluator.Discount(coupon, subtotal), nil
}

func (o *Orchestrator) buildOrder(orderID string, req Request, subtotal, discountMinor int64, coupon domain.Coupon, paymentRef string) domain.Order {
	now := o.now()

	items := make([]domain.OrderItem, 0, len(req.Lines))
	for _, line := range req.Lines {
		items = append(items, domain.OrderItem{
			ID:         uuid.NewString(),
			OrderID:    orderID,
			SKU:        line.SKU,
			Qty:        line.Qty,
			PriceMinor: line.UnitPriceMinor,
			Status:     domain.ItemStatusPaid,
			CreatedAt:  now,
		})
	}

	billing := req.ShippingAddress
	if req.BillingAddress != nil {
		billing = *req.BillingAddress
	}

	return domain.Order{
		ID:            orderID,
		Number:        domain.GenerateOrderNumber(),
		UserID:        req.UserID,
		Status:        domain.DeriveOrderStatus(items),
		TotalMinor:    subtotal - discountMinor,
		DiscountMinor: discountMinor,
		CouponCode:    coupon.Code,
		PaymentRef:    paymentRef,
		Shipping:      req.ShippingAddress,
		Billing:       billing,
		Items:         items,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// compensateCharge возвращает списанные средства после того, как заказ не
// удалось сохранить. Refund повторяется с экспоненциальной задержкой; если
// все попытки исчерпаны или провайдер отклонил возврат — инцидент уходит
// в ручную сверку.
func (o *Orchestrator) compensateCharge(orderID string, amountMinor int64, paymentRef string) {
	delay := o.refundRetry.InitialDelay

	for attempt := 1; attempt <= o.refundRetry.MaxAttempts; attempt++ {
		result, err := o.gateway.Refund(amountMinor, paymentRef)
		if err == nil && result.Approved {
			o.metrics.RecordCompensationRefund("succeeded")
			o.logger.WithFields(log.Fields{
				"order_id":     orderID,
				"amount_minor": amountMinor,
				"attempt":      attempt,
			}).Warn("compensating refund completed")
			return
		}
		if err == nil && !result.Approved {
			// Провайдер явно отклонил возврат — повтор не поможет.
			break
		}

		o.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"attempt":  attempt,
		}).Warn("compensating refund failed, retrying")

		if attempt < o.refundRetry.MaxAttempts {
			time.Sleep(delay)
			delay = time.Duration(float64(delay) * o.refundRetry.BackoffFactor)
			if delay > o.refundRetry.MaxDelay {
				delay = o.refundRetry.MaxDelay
			}
		}
	}

	o.metrics.RecordCompensationRefund("failed")
	o.metrics.RecordReconciliationNeeded()
	o.publishReconcileNeeded(orderID, "", amountMinor)
	o.logger.WithFields(log.Fields{
		"order_id":     orderID,
		"amount_minor": amountMinor,
		"payment_ref":  paymentRef,
	}).Error("compensating refund exhausted, manual reconciliation required")
}

func (o *Orchestrator) recordCouponUsage(userID string, coupon domain.Coupon) {
	if coupon.Code == "" {
		return
	}
	coupon.TimesUsed++
	if err := o.coupons.Save(coupon); err != nil {
		o.logger.WithError(err).WithField("coupon", coupon.Code).Error("increment coupon usage")
	}
	err := o.coupons.RecordUsage(domain.CouponUsage{
		UserID: userID,
		Code:   coupon.Code,
		UsedAt: o.now(),
	})
	if err != nil {
		o.logger.WithError(err).WithField("coupon", coupon.Code).Error("record coupon usage")
	}
}

func (o *Orchestrator) publishOrderPlaced(order domain.Order) {
	event := kafka.NewOrderEvent(kafka.EventTypeOrderPlaced, order.ID, order.UserID, string(order.Status), map[string]interface{}{
		"order_number":   order.Number,
		"total_minor":    order.TotalMinor,
		"discount_minor": order.DiscountMinor,
		"lines":          len(order.Items),
	})
	o.enqueueEvent("order", order.ID, kafka.EventTypeOrderPlaced, event)

	if o.kafkaProducer != nil {
		if err := o.kafkaProducer.PublishEvent(kafka.TopicOrderEvents, order.ID, event); err != nil {
			o.logger.WithError(err).WithField("order_id", order.ID).Warn("direct kafka publish failed, outbox will deliver")
		}
	}
}

func (o *Orchestrator) publishReconcileNeeded(orderID, userID string, amountMinor int64) {
	event := kafka.NewOrderEvent(kafka.EventTypeReconcileNeeded, orderID, userID, "", map[string]interface{}{
		"amount_minor": amountMinor,
	})
	o.enqueueEvent("payment", orderID, kafka.EventTypeReconcileNeeded, event)
}

func (o *Orchestrator) enqueueEvent(aggregateType, aggregateID string, eventType kafka.EventType, event interface{}) {
	if o.outbox == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		o.logger.WithError(err).WithField("event_type", eventType).Error("marshal outbox event")
		return
	}
	_, err = o.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     string(eventType),
		Payload:       payload,
	})
	if err != nil {
		o.logger.WithError(err).WithField("event_type", eventType).Error("enqueue outbox event")
		return
	}
	o.metrics.RecordOutboxEvent()
}

func (o *Orchestrator) notifyOrderPlaced(order domain.Order) {
	if o.notifier == nil {
		return
	}
	// Fire-and-forget: проблема с уведомлением не откатывает заказ.
	if err := o.notifier.OrderPlaced(order); err != nil {
		o.logger.WithError(err).WithField("order_id", order.ID).Warn("order placed notification failed")
	}
}

func subtotalMinor(lines []CartLine) int64 {
	var subtotal int64
	for _, line := range lines {
		subtotal += int64(line.Qty) * line.UnitPriceMinor
	}
	return subtotal
}

// requestHash — детерминированный отпечаток запроса без платёжных реквизитов
// и самого ключа: повтор с тем же ключом, но другой корзиной отклоняется.
func requestHash(req Request) string {
	fingerprint := struct {
		UserID     string     `json:"user_id"`
		Lines      []CartLine `json:"lines"`
		CouponCode string     `json:"coupon_code"`
	}{
		UserID:     req.UserID,
		Lines:      req.Lines,
		CouponCode: req.CouponCode,
	}
	raw, _ := json.Marshal(fingerprint)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
