package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора покупателя.
	ErrUserRequired = errors.New("user_id is required")
	// Ошибка пустой корзины при оформлении заказа.
	ErrCartEmpty = errors.New("cart must contain at least one line")
	// Ошибка отсутствующего SKU в позиции корзины или резерва.
	ErrSKURequired = errors.New("sku is required")
	// Ошибка при некорректном количестве (<= 0).
	ErrQtyInvalid = errors.New("qty must be greater than zero")
	// Ошибка отрицательной цены позиции.
	ErrPriceNegative = errors.New("price must be non-negative")
	// Ошибка неполного почтового адреса.
	ErrAddressIncomplete = errors.New("address is incomplete")
	// Ошибка отсутствующих платёжных реквизитов.
	ErrInstrumentRequired = errors.New("payment instrument is incomplete")
	// Ошибка отсутствующей причины возврата.
	ErrReasonRequired = errors.New("return reason is required")
	// Ошибка отсутствующего tracking number при отгрузке.
	ErrTrackingRequired = errors.New("tracking number is required")

	// ErrInsufficientStock возвращается, когда доступного остатка не хватает на резерв.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidTransition возвращается при недопустимом переходе статуса.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrCancelQtyExceedsOpen — количество к отмене больше открытого остатка позиции.
	ErrCancelQtyExceedsOpen = errors.New("cancel quantity exceeds open quantity")
	// ErrReturnQtyExceedsOpen — количество к возврату больше открытого остатка позиции.
	ErrReturnQtyExceedsOpen = errors.New("return quantity exceeds open quantity")
	// ErrReturnAlreadyOpen — по позиции уже есть незакрытый возврат.
	ErrReturnAlreadyOpen = errors.New("return already open for order item")

	// ErrPaymentDeclined — провайдер отклонил списание (бизнес-ошибка).
	ErrPaymentDeclined = errors.New("payment declined")
	// ErrRefundDeclined — провайдер отклонил возврат средств.
	ErrRefundDeclined = errors.New("refund declined")
	// ErrGatewayTimeout — неопределённый исход обращения к провайдеру; требуется reconcile,
	// повторное списание недопустимо.
	ErrGatewayTimeout = errors.New("payment gateway timeout")

	// Ошибки валидации купона: все проверки fail closed.
	ErrCouponInactive    = errors.New("coupon is inactive")
	ErrCouponExpired     = errors.New("coupon is expired")
	ErrCouponExhausted   = errors.New("coupon usage limit reached")
	ErrCouponMinOrder    = errors.New("subtotal below coupon minimum order value")
	ErrCouponAlreadyUsed = errors.New("coupon already used by this user")

	// ErrVariantNotFound возвращается, если вариант товара не найден.
	ErrVariantNotFound = errors.New("product variant not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderItemNotFound возвращается, если позиция заказа не найдена.
	ErrOrderItemNotFound = errors.New("order item not found")
	// ErrReturnNotFound возвращается, если возврат не найден.
	ErrReturnNotFound = errors.New("return not found")
	// ErrCouponNotFound возвращается, если купон не найден по коду.
	ErrCouponNotFound = errors.New("coupon not found")

	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении заказа.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrVariantExists возвращается при попытке создать вариант с занятым SKU.
	ErrVariantExists = errors.New("product variant already exists")
	// ErrCouponExists возвращается при попытке создать купон с занятым кодом.
	ErrCouponExists = errors.New("coupon code already exists")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// Ошибки idempotency-слоя checkout.
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with different request")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsValidation сообщает, относится ли ошибка к входной валидации (без изменения состояния).
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrUserRequired, ErrCartEmpty, ErrSKURequired, ErrQtyInvalid,
		ErrPriceNegative, ErrAddressIncomplete, ErrInstrumentRequired,
		ErrReasonRequired, ErrTrackingRequired,
		ErrCancelQtyExceedsOpen, ErrReturnQtyExceedsOpen, ErrReturnAlreadyOpen,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
