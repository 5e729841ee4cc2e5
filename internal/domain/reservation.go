package domain

import "time"

// Reservation — токен успешного резервирования стока под заказ.
// Checkout хранит токены, чтобы откатить ровно то, что было зарезервировано.
type Reservation struct {
	ID        string
	OrderID   string
	SKU       string
	Qty       int32
	CreatedAt time.Time
}

// Validate проверяет, корректно ли заполнены ключевые поля резервирования.
func (r *Reservation) Validate() []error {
	var errs []error

	if r.SKU == "" {
		errs = append(errs, ErrSKURequired)
	}
	if r.Qty <= 0 {
		errs = append(errs, ErrQtyInvalid)
	}

	return errs
}
