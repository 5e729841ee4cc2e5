package memory

import (
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// couponRepositoryInMemory — in-memory реализация CouponRepository.
// Коды купонов нормализуются к верхнему регистру, как в каталоге.
type couponRepositoryInMemory struct {
	mu     sync.RWMutex
	items  map[string]domain.Coupon
	usages map[string]domain.CouponUsage
}

// NewCouponRepository возвращает in-memory репозиторий купонов.
func NewCouponRepository() domain.CouponRepository {
	return &couponRepositoryInMemory{
		items:  make(map[string]domain.Coupon),
		usages: make(map[string]domain.CouponUsage),
	}
}

func couponKey(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func usageKey(userID, code string) string {
	return userID + "|" + couponKey(code)
}

// Create сохраняет новый купон.
func (r *couponRepositoryInMemory) Create(coupon domain.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := couponKey(coupon.Code)
	if _, exists := r.items[key]; exists {
		return domain.ErrCouponExists
	}
	coupon.Code = key
	if coupon.CreatedAt.IsZero() {
		coupon.CreatedAt = time.Now().UTC()
	}
	r.items[key] = coupon
	return nil
}

// GetByCode возвращает купон или ErrCouponNotFound.
func (r *couponRepositoryInMemory) GetByCode(code string) (domain.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	coupon, ok := r.items[couponKey(code)]
	if !ok {
		return domain.Coupon{}, domain.ErrCouponNotFound
	}
	return coupon, nil
}

// Save перезаписывает купон (в том числе счётчик times_used).
func (r *couponRepositoryInMemory) Save(coupon domain.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := couponKey(coupon.Code)
	if _, ok := r.items[key]; !ok {
		return domain.ErrCouponNotFound
	}
	coupon.Code = key
	r.items[key] = coupon
	return nil
}

// RecordUsage фиксирует применение купона пользователем.
func (r *couponRepositoryInMemory) RecordUsage(usage domain.CouponUsage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if usage.UsedAt.IsZero() {
		usage.UsedAt = time.Now().UTC()
	}
	usage.Code = couponKey(usage.Code)
	r.usages[usageKey(usage.UserID, usage.Code)] = usage
	return nil
}

// HasUsage сообщает, применял ли пользователь купон ранее.
func (r *couponRepositoryInMemory) HasUsage(userID, code string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.usages[usageKey(userID, code)]
	return ok, nil
}

var _ domain.CouponRepository = (*couponRepositoryInMemory)(nil)
