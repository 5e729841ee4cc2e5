package inventory

import (
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// MockLedger — конфигурируемая заглушка InventoryLedger для тестов.
type MockLedger struct {
	// ReserveErrBySKU позволяет отклонять резерв только для конкретных SKU.
	ReserveErrBySKU map[string]error
	ReserveErr      error
	ReleaseErr      error

	ReserveCalls int
	ReleaseCalls int

	// Reserved и Released накапливают фактические вызовы для проверок отката.
	Reserved []domain.Reservation
	Released []domain.Reservation
}

// NewMockLedger возвращает mock с успешным сценарием по умолчанию.
func NewMockLedger() *MockLedger {
	return &MockLedger{ReserveErrBySKU: make(map[string]error)}
}

// Reserve возвращает заранее настроенную ошибку и считает вызовы.
func (m *MockLedger) Reserve(orderID, sku string, qty int32) (domain.Reservation, error) {
	m.ReserveCalls++
	if err, ok := m.ReserveErrBySKU[sku]; ok && err != nil {
		return domain.Reservation{}, err
	}
	if m.ReserveErr != nil {
		return domain.Reservation{}, m.ReserveErr
	}
	reservation := domain.Reservation{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		SKU:       sku,
		Qty:       qty,
		CreatedAt: time.Now().UTC(),
	}
	m.Reserved = append(m.Reserved, reservation)
	return reservation, nil
}

// Release возвращает настроенную ошибку и считает вызовы.
func (m *MockLedger) Release(orderID, sku string, qty int32, change domain.InventoryChangeType) error {
	m.ReleaseCalls++
	if m.ReleaseErr != nil {
		return m.ReleaseErr
	}
	m.Released = append(m.Released, domain.Reservation{OrderID: orderID, SKU: sku, Qty: qty})
	return nil
}

var _ domain.InventoryLedger = (*MockLedger)(nil)
