package memory

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// inventoryLogRepositoryInMemory хранит журнал изменений остатков в памяти.
type inventoryLogRepositoryInMemory struct {
	mu      sync.RWMutex
	entries map[string][]domain.InventoryLogEntry
}

// NewInventoryLogRepository создаёт in-memory реализацию InventoryLogRepository.
func NewInventoryLogRepository() domain.InventoryLogRepository {
	return &inventoryLogRepositoryInMemory{entries: make(map[string][]domain.InventoryLogEntry)}
}

// Append добавляет запись в журнал SKU.
func (r *inventoryLogRepositoryInMemory) Append(entry domain.InventoryLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	r.entries[entry.SKU] = append(r.entries[entry.SKU], entry)

	sort.Slice(r.entries[entry.SKU], func(i, j int) bool {
		return r.entries[entry.SKU][i].Occurred.Before(r.entries[entry.SKU][j].Occurred)
	})

	return nil
}

// ListBySKU возвращает записи журнала в хронологическом порядке.
func (r *inventoryLogRepositoryInMemory) ListBySKU(sku string, limit int) ([]domain.InventoryLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.entries[sku]
	result := make([]domain.InventoryLogEntry, len(entries))
	copy(result, entries)

	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

var _ domain.InventoryLogRepository = (*inventoryLogRepositoryInMemory)(nil)
