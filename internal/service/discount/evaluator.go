package discount

import (
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// Evaluator вычисляет купонную скидку для подытога корзины. Сервис чистый:
// не ходит в хранилище и не мутирует состояние, поэтому тестируется
// независимо от персистентности. Факт прошлого использования купона
// пользователем передаётся параметром alreadyUsed.
//
// Акции (Sale) применяются выше по стеку: позиции приходят в checkout уже с
// акционными ценами, купон накладывается на акционный подытог. Стекинг
// купонов между собой не поддерживается — один купон на заказ.
type Evaluator struct {
	now func() time.Time
}

// NewEvaluator создаёт evaluator с системными часами.
func NewEvaluator() *Evaluator {
	return &Evaluator{now: time.Now}
}

// NewEvaluatorAt создаёт evaluator с фиксированными часами (для тестов).
func NewEvaluatorAt(now func() time.Time) *Evaluator {
	if now == nil {
		now = time.Now
	}
	return &Evaluator{now: now}
}

// Validate проверяет применимость купона; все проверки fail closed.
func (e *Evaluator) Validate(coupon domain.Coupon, subtotalMinor int64, alreadyUsed bool) error {
	if !coupon.IsActive {
		return domain.ErrCouponInactive
	}
	if !coupon.ExpiresAt.IsZero() && coupon.ExpiresAt.Before(e.now().UTC()) {
		return domain.ErrCouponExpired
	}
	if coupon.MaxUses > 0 && coupon.TimesUsed >= coupon.MaxUses {
		return domain.ErrCouponExhausted
	}
	if subtotalMinor < coupon.MinOrderMinor {
		return domain.ErrCouponMinOrder
	}
	if alreadyUsed {
		return domain.ErrCouponAlreadyUsed
	}
	return nil
}

// Discount возвращает размер скидки в минорных единицах. Процентная скидка
// округляется half-up до цента; итоговая скидка ограничена подытогом, чтобы
// сумма заказа не стала отрицательной.
func (e *Evaluator) Discount(coupon domain.Coupon, subtotalMinor int64) int64 {
	if subtotalMinor <= 0 {
		return 0
	}

	var discount int64
	switch coupon.Type {
	case domain.CouponTypePercent:
		// subtotal * bp / 10000 с округлением half-up.
		discount = (subtotalMinor*coupon.PercentBP + 5000) / 10000
	case domain.CouponTypeFixed:
		discount = coupon.AmountMinor
	default:
		return 0
	}

	if discount < 0 {
		return 0
	}
	if discount > subtotalMinor {
		return subtotalMinor
	}
	return discount
}
