package discount_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/discount"
)

func fixedClock() func() time.Time {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func percentCoupon(bp int64) domain.Coupon {
	return domain.Coupon{
		Code:      "SAVE10",
		Type:      domain.CouponTypePercent,
		PercentBP: bp,
		MaxUses:   100,
		IsActive:  true,
	}
}

func TestDiscount_PercentTenOnHundred(t *testing.T) {
	e := discount.NewEvaluatorAt(fixedClock())

	// $100.00 с купоном 10% — ровно $10.00.
	got := e.Discount(percentCoupon(1000), 10000)
	if got != 1000 {
		t.Fatalf("expected discount 1000, got %d", got)
	}
}

func TestDiscount_PercentRoundsHalfUp(t *testing.T) {
	e := discount.NewEvaluatorAt(fixedClock())

	// 12.5% от $1.00 = 12.5 цента, округляется вверх до 13.
	if got := e.Discount(percentCoupon(1250), 100); got != 13 {
		t.Fatalf("expected discount 13, got %d", got)
	}
	// 12.4 цента округляется вниз до 12.
	if got := e.Discount(percentCoupon(1240), 100); got != 12 {
		t.Fatalf("expected discount 12, got %d", got)
	}
}

func TestDiscount_FixedClampsToSubtotal(t *testing.T) {
	e := discount.NewEvaluatorAt(fixedClock())
	coupon := domain.Coupon{
		Code:        "BIG150",
		Type:        domain.CouponTypeFixed,
		AmountMinor: 15000,
		IsActive:    true,
	}

	// $150 фиксированной скидки на $100 подытога — скидка $100, итог $0.00.
	got := e.Discount(coupon, 10000)
	if got != 10000 {
		t.Fatalf("expected discount clamped to 10000, got %d", got)
	}
}

func TestDiscount_ZeroSubtotal(t *testing.T) {
	e := discount.NewEvaluatorAt(fixedClock())
	if got := e.Discount(percentCoupon(1000), 0); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestValidate_FailClosed(t *testing.T) {
	e := discount.NewEvaluatorAt(fixedClock())
	now := fixedClock()()

	base := func() domain.Coupon {
		return domain.Coupon{
			Code:          "WELCOME",
			Type:          domain.CouponTypePercent,
			PercentBP:     1000,
			MinOrderMinor: 0,
			ExpiresAt:     now.Add(24 * time.Hour),
			MaxUses:       10,
			TimesUsed:     0,
			IsActive:      true,
		}
	}

	cases := []struct {
		name        string
		mut         func(c *domain.Coupon)
		alreadyUsed bool
		want        error
	}{
		{
			name: "inactive",
			mut:  func(c *domain.Coupon) { c.IsActive = false },
			want: domain.ErrCouponInactive,
		},
		{
			name: "expired",
			mut:  func(c *domain.Coupon) { c.ExpiresAt = now.Add(-time.Hour) },
			want: domain.ErrCouponExpired,
		},
		{
			name: "exhausted",
			mut:  func(c *domain.Coupon) { c.TimesUsed = c.MaxUses },
			want: domain.ErrCouponExhausted,
		},
		{
			name: "below min order",
			mut:  func(c *domain.Coupon) { c.MinOrderMinor = 20000 },
			want: domain.ErrCouponMinOrder,
		},
		{
			name:        "already used by user",
			mut:         func(c *domain.Coupon) {},
			alreadyUsed: true,
			want:        domain.ErrCouponAlreadyUsed,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			coupon := base()
			tc.mut(&coupon)

			err := e.Validate(coupon, 10000, tc.alreadyUsed)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestValidate_Ok(t *testing.T) {
	e := discount.NewEvaluatorAt(fixedClock())
	coupon := percentCoupon(1000)

	if err := e.Validate(coupon, 10000, false); err != nil {
		t.Fatalf("expected valid coupon, got %v", err)
	}
}

func TestValidate_NoExpiryMeansNeverExpires(t *testing.T) {
	e := discount.NewEvaluatorAt(fixedClock())
	coupon := percentCoupon(1000) // ExpiresAt нулевой

	if err := e.Validate(coupon, 10000, false); err != nil {
		t.Fatalf("expected valid coupon without expiry, got %v", err)
	}
}
