package domain

import "time"

// ProductVariant описывает конкретный вариант товара (SKU) и его остаток на складе.
// Quantity — единственный разделяемый ресурс с требованием атомарности:
// проверка остатка и декремент обязаны быть одним неделимым шагом.
type ProductVariant struct {
	SKU       string
	ProductID string
	Size      string
	Color     string
	// Quantity — доступный остаток; никогда не должен становиться отрицательным.
	Quantity int32
	// MaxPerCustomer ограничивает количество в одном заказе; 0 означает "без лимита".
	MaxPerCustomer int32
	// PriceMinor — цена за единицу в минимальных денежных единицах (центах).
	PriceMinor int64
	// DiscountPriceMinor — акционная цена; 0 означает "акции нет".
	DiscountPriceMinor int64
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Validate проверяет корректность ключевых полей варианта.
func (v *ProductVariant) Validate() []error {
	var errs []error

	if v.SKU == "" {
		errs = append(errs, ErrSKURequired)
	}
	if v.Quantity < 0 {
		errs = append(errs, ErrQtyInvalid)
	}
	if v.PriceMinor < 0 || v.DiscountPriceMinor < 0 {
		errs = append(errs, ErrPriceNegative)
	}

	return errs
}

// EffectivePriceMinor возвращает действующую цену: акционную, если она задана.
func (v *ProductVariant) EffectivePriceMinor() int64 {
	if v.DiscountPriceMinor > 0 {
		return v.DiscountPriceMinor
	}
	return v.PriceMinor
}
