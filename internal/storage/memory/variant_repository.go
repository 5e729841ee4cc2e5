package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// variantRepositoryInMemory — in-memory реализация VariantRepository.
// Мутации остатка выполняются под общим мьютексом: проверка остатка и
// декремент — один неделимый шаг, поэтому конкурентные резервы по одному
// SKU не могут совместно уйти в минус.
type variantRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.ProductVariant
}

// NewVariantRepository возвращает in-memory репозиторий вариантов.
func NewVariantRepository() domain.VariantRepository {
	return &variantRepositoryInMemory{
		items: make(map[string]domain.ProductVariant),
	}
}

// Create сохраняет новый вариант, если SKU ещё не занят.
func (r *variantRepositoryInMemory) Create(variant domain.ProductVariant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[variant.SKU]; exists {
		return domain.ErrVariantExists
	}
	if variant.CreatedAt.IsZero() {
		variant.CreatedAt = time.Now().UTC()
	}
	variant.UpdatedAt = variant.CreatedAt
	r.items[variant.SKU] = variant
	return nil
}

// Get возвращает вариант или ErrVariantNotFound.
func (r *variantRepositoryInMemory) Get(sku string) (domain.ProductVariant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	variant, ok := r.items[sku]
	if !ok {
		return domain.ProductVariant{}, domain.ErrVariantNotFound
	}
	return variant, nil
}

// Save обновляет атрибуты варианта, не трогая остаток: Quantity меняется
// только через ReserveStock/ReleaseStock.
func (r *variantRepositoryInMemory) Save(variant domain.ProductVariant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[variant.SKU]
	if !ok {
		return domain.ErrVariantNotFound
	}
	variant.Quantity = current.Quantity
	variant.CreatedAt = current.CreatedAt
	variant.UpdatedAt = time.Now().UTC()
	r.items[variant.SKU] = variant
	return nil
}

// ReserveStock условно уменьшает остаток под мьютексом. Read-then-write
// через Get/Save здесь был бы багом: два конкурентных checkout прочитали бы
// один и тот же остаток и оба прошли бы проверку.
func (r *variantRepositoryInMemory) ReserveStock(sku string, qty int32) (domain.StockChange, error) {
	if qty <= 0 {
		return domain.StockChange{}, domain.ErrQtyInvalid
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	variant, ok := r.items[sku]
	if !ok {
		return domain.StockChange{}, domain.ErrVariantNotFound
	}
	if variant.Quantity < qty {
		return domain.StockChange{}, domain.ErrInsufficientStock
	}

	change := domain.StockChange{Before: variant.Quantity, After: variant.Quantity - qty}
	variant.Quantity = change.After
	variant.UpdatedAt = time.Now().UTC()
	r.items[sku] = variant
	return change, nil
}

// ReleaseStock атомарно увеличивает остаток (откат резерва или restock).
func (r *variantRepositoryInMemory) ReleaseStock(sku string, qty int32) (domain.StockChange, error) {
	if qty <= 0 {
		return domain.StockChange{}, domain.ErrQtyInvalid
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	variant, ok := r.items[sku]
	if !ok {
		return domain.StockChange{}, domain.ErrVariantNotFound
	}

	change := domain.StockChange{Before: variant.Quantity, After: variant.Quantity + qty}
	variant.Quantity = change.After
	variant.UpdatedAt = time.Now().UTC()
	r.items[sku] = variant
	return change, nil
}

var _ domain.VariantRepository = (*variantRepositoryInMemory)(nil)
