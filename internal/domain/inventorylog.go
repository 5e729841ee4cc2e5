package domain

import "time"

// InventoryChangeType — тип изменения остатка в журнале склада.
type InventoryChangeType string

const (
	// InventoryChangeReserve — декремент под оформляемый заказ.
	InventoryChangeReserve InventoryChangeType = "reserve"
	// InventoryChangeRelease — откат резерва при неудавшемся checkout.
	InventoryChangeRelease InventoryChangeType = "release"
	// InventoryChangeRestock — возврат проданного количества (отмена, возврат).
	InventoryChangeRestock InventoryChangeType = "restock"
)

// InventoryLogEntry — запись журнала изменений остатка. Журнал ведётся на
// каждую мутацию ledger и фиксирует остаток до и после изменения.
type InventoryLogEntry struct {
	ID             string
	SKU            string
	ChangeType     InventoryChangeType
	QuantityBefore int32
	QuantityAfter  int32
	Reason         string
	OrderID        string
	Occurred       time.Time
}
