package domain

import "time"

// CouponType — тип купонной скидки.
type CouponType string

const (
	// CouponTypeFixed — фиксированная сумма скидки.
	CouponTypeFixed CouponType = "fixed"
	// CouponTypePercent — процент от подытога корзины.
	CouponTypePercent CouponType = "percent"
)

// Coupon описывает код скидки. Деньги хранятся в минорных единицах,
// процент — в базисных пунктах (100 bp = 1%), чтобы округление оставалось
// целочисленным.
type Coupon struct {
	Code string
	Type CouponType
	// AmountMinor — сумма скидки для типа fixed.
	AmountMinor int64
	// PercentBP — размер скидки для типа percent в базисных пунктах.
	PercentBP int64
	// MinOrderMinor — минимальный подытог для применения купона.
	MinOrderMinor int64
	// ExpiresAt — срок действия; нулевое значение означает "бессрочный".
	ExpiresAt time.Time
	MaxUses   int
	TimesUsed int
	IsActive  bool
	CreatedAt time.Time
}

// CouponUsage фиксирует одноразовое применение купона пользователем.
type CouponUsage struct {
	UserID string
	Code   string
	UsedAt time.Time
}

// Sale — временная акция на категорию или набор вариантов. Акционные цены
// применяются на стороне каталога при чтении: в checkout позиции приходят
// уже с акционной ценой, поэтому ядро акцию не пересчитывает.
type Sale struct {
	ID           string
	Name         string
	DiscountType CouponType
	// DiscountValueMinor для типа fixed, DiscountBP для типа percent.
	DiscountValueMinor int64
	DiscountBP         int64
	StartAt            time.Time
	EndAt              time.Time
	Category           string
	SKUs               []string
}

// IsLive сообщает, действует ли акция в момент now.
func (s *Sale) IsLive(now time.Time) bool {
	if now.Before(s.StartAt) {
		return false
	}
	return s.EndAt.IsZero() || !now.After(s.EndAt)
}
